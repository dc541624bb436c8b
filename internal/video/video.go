package video

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type (
	// SourceType identifies which ingestion source produced a video record.
	SourceType string

	// Status is the videos position in the transcoding lifecycle. A video is
	// created 'pending', becomes 'submitted' once the transcoding provider
	// accepts the job, and lands on one of the terminal 'ready'/'errored'
	// statuses when the provider reports back.
	Status string

	// Video is one row per distinct source media asset. SourceURL is the
	// canonical locator of the raw media and acts as the dedup key across
	// every ingestion source.
	Video struct {
		ID          uuid.UUID  `db:"id"`
		Title       string     `db:"title"`
		Description string     `db:"description"`
		SourceType  SourceType `db:"source_type"`
		SourceID    *uuid.UUID `db:"source_id"`
		SourceURL   string     `db:"source_url"`
		JobID       *string    `db:"job_id"`
		Status      Status     `db:"status"`
		PlaybackID  *string    `db:"playback_id"`
		CreatedAt   time.Time  `db:"created_at"`
		UpdatedAt   time.Time  `db:"updated_at"`
	}
)

const (
	SourceCSV    SourceType = "csv"
	SourceUpload SourceType = "upload"
	SourceMRSS   SourceType = "mrss"

	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
	StatusReady     Status = "ready"
	StatusErrored   Status = "errored"

	// DefaultTitle is used when an ingestion source supplies no title.
	DefaultTitle = "Untitled"
)

var (
	ErrVideoNotFound     = errors.New("video does not exist")
	ErrVideoExists       = errors.New("a video with this source URL already exists")
	ErrInvalidTransition = errors.New("illegal video status transition")
)

// CanTransition reports whether a video status may move from one status
// to another. Ready and errored are absorbing; a pending video must pass
// through submitted before it can reach either terminal status.
func CanTransition(from Status, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusSubmitted
	case StatusSubmitted:
		return to == StatusReady || to == StatusErrored
	default:
		return false
	}
}

func ValidateTransition(from Status, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	return nil
}

// IsTerminal reports whether no further automatic transition can occur
// from this status.
func (s Status) IsTerminal() bool {
	return s == StatusReady || s == StatusErrored
}

func (v *Video) String() string {
	return fmt.Sprintf("Video{id=%s status=%s source=%s}", v.ID, v.Status, v.SourceType)
}
