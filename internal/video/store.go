package video

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/webflix/webflix/internal/database"
	"github.com/webflix/webflix/pkg/logger"
)

var log = logger.Get("VideoStore")

type (
	// ListFilter restricts the rows returned by List. Nil fields
	// are ignored.
	ListFilter struct {
		SourceType *SourceType
		Status     *Status
		SourceID   *uuid.UUID
	}

	Store struct{}
)

func NewStore() *Store {
	return &Store{}
}

// Create persists the provided video. The videos table enforces a unique
// constraint over source_url; a conflicting insert is reported as
// ErrVideoExists so that callers can treat 'already ingested' as a skip
// without a prior existence check (which would race under concurrent writers).
func (store *Store) Create(db database.Queryable, video *Video) error {
	_, err := db.NamedExec(`
		INSERT INTO videos(id, title, description, source_type, source_id, source_url, job_id, status, playback_id, created_at, updated_at)
		VALUES(:id, :title, :description, :source_type, :source_id, :source_url, :job_id, :status, :playback_id, current_timestamp, current_timestamp)
	`, video)
	if err != nil {
		if database.IsUniqueConstraintViolation(err) {
			return ErrVideoExists
		}

		return fmt.Errorf("failed to insert video: %w", err)
	}

	return nil
}

func (store *Store) Get(db database.Queryable, id uuid.UUID) (*Video, error) {
	var video Video
	if err := db.Get(&video, `SELECT * FROM videos WHERE id=$1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVideoNotFound
		}

		return nil, fmt.Errorf("failed to select video %s: %w", id, err)
	}

	return &video, nil
}

func (store *Store) GetBySourceURL(db database.Queryable, sourceURL string) (*Video, error) {
	var video Video
	if err := db.Get(&video, `SELECT * FROM videos WHERE source_url=$1`, sourceURL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVideoNotFound
		}

		return nil, fmt.Errorf("failed to select video by source url: %w", err)
	}

	return &video, nil
}

// List returns all videos matching the provided filter, newest first.
func (store *Store) List(db database.Queryable, filter ListFilter) ([]*Video, error) {
	builder := squirrel.Select("*").From("videos").OrderBy("created_at DESC")
	if filter.SourceType != nil {
		builder = builder.Where("source_type=?", *filter.SourceType)
	}
	if filter.Status != nil {
		builder = builder.Where("status=?", *filter.Status)
	}
	if filter.SourceID != nil {
		builder = builder.Where("source_id=?", *filter.SourceID)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct list videos query: %w", err)
	}

	var results []*Video
	if err := db.Select(&results, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}

	return results, nil
}

// RecordSubmission marks a pending video as submitted, storing the job
// handle returned by the transcoding provider. The UPDATE is guarded on the
// current status so an illegal transition (e.g. a duplicate submission for
// an already-submitted video) affects zero rows and is reported as
// ErrInvalidTransition.
func (store *Store) RecordSubmission(db database.Queryable, id uuid.UUID, jobID string) error {
	result, err := db.Exec(`
		UPDATE videos
		SET job_id=$1, status=$2, updated_at=current_timestamp
		WHERE id=$3 AND status=$4
	`, jobID, StatusSubmitted, id, StatusPending)
	if err != nil {
		return fmt.Errorf("failed to record submission of video %s: %w", id, err)
	}

	return store.requireOneRow(db, result, id, StatusSubmitted)
}

// RecordReady finalizes a submitted video with its playback identifier.
func (store *Store) RecordReady(db database.Queryable, id uuid.UUID, playbackID string) error {
	result, err := db.Exec(`
		UPDATE videos
		SET status=$1, playback_id=$2, updated_at=current_timestamp
		WHERE id=$3 AND status=$4
	`, StatusReady, playbackID, id, StatusSubmitted)
	if err != nil {
		return fmt.Errorf("failed to record ready status of video %s: %w", id, err)
	}

	return store.requireOneRow(db, result, id, StatusReady)
}

// RecordError finalizes a submitted video as errored, clearing any
// playback identifier.
func (store *Store) RecordError(db database.Queryable, id uuid.UUID) error {
	result, err := db.Exec(`
		UPDATE videos
		SET status=$1, playback_id=NULL, updated_at=current_timestamp
		WHERE id=$2 AND status=$3
	`, StatusErrored, id, StatusSubmitted)
	if err != nil {
		return fmt.Errorf("failed to record errored status of video %s: %w", id, err)
	}

	return store.requireOneRow(db, result, id, StatusErrored)
}

// requireOneRow inspects the result of a status-guarded UPDATE and
// distinguishes 'no such video' from 'video exists but is not in the
// expected state'.
func (store *Store) requireOneRow(db database.Queryable, result sql.Result, id uuid.UUID, target Status) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected row count: %w", err)
	}
	if affected == 1 {
		return nil
	}

	existing, err := store.Get(db, id)
	if err != nil {
		return err
	}

	log.Emit(logger.WARNING, "Refusing transition of %s to %s\n", existing, target)
	return ValidateTransition(existing.Status, target)
}
