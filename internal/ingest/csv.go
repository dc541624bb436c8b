package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/webflix/webflix/internal/event"
	"github.com/webflix/webflix/internal/video"
	"github.com/webflix/webflix/pkg/logger"
)

// ErrMalformedImport indicates a bulk import document could not be
// decoded as CSV, or was missing required columns.
var ErrMalformedImport = errors.New("import document is malformed")

const (
	csvColumnTitle       = "title"
	csvColumnDescription = "description"
	csvColumnSourceURL   = "source_url"
)

// importDocument streams a CSV import document and creates a pending
// video record for each row. The first row must be a header naming a
// 'source_url' column; 'title' and 'description' columns are optional.
//
// Rows whose source URL has been seen before are skipped. Any other
// failure aborts the import: rows created before the failure keep their
// database records, but no submissions are announced for the batch.
func (service *ingestService) importDocument(document io.Reader) ([]uuid.UUID, error) {
	reader := csv.NewReader(document)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: no header row (%s)", ErrMalformedImport, err)
	}

	columns := make(map[string]int, len(header))
	for index, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = index
	}
	if _, ok := columns[csvColumnSourceURL]; !ok {
		return nil, fmt.Errorf("%w: header is missing the %q column", ErrMalformedImport, csvColumnSourceURL)
	}

	createdIDs := make([]uuid.UUID, 0)
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, fmt.Errorf("%w: line %d could not be read (%s)", ErrMalformedImport, line, err)
		}

		sourceURL := columnValue(row, columns, csvColumnSourceURL, "")
		if sourceURL == "" {
			return nil, fmt.Errorf("%w: line %d has an empty source URL", ErrMalformedImport, line)
		}

		newVideo := &video.Video{
			ID:          uuid.New(),
			Title:       columnValue(row, columns, csvColumnTitle, video.DefaultTitle),
			Description: columnValue(row, columns, csvColumnDescription, ""),
			SourceType:  video.SourceCSV,
			SourceURL:   sourceURL,
			Status:      video.StatusPending,
		}

		if err := service.videos.Create(service.db, newVideo); err != nil {
			if errors.Is(err, video.ErrVideoExists) {
				log.Emit(logger.DEBUG, "Skipping import row %d: source URL %s already known\n", line, sourceURL)
				continue
			}

			return nil, fmt.Errorf("failed to save import row %d: %w", line, err)
		}

		createdIDs = append(createdIDs, newVideo.ID)
	}

	return createdIDs, nil
}

// announceCreated dispatches a creation event for each video record so
// the transcode submitter picks the batch up.
func (service *ingestService) announceCreated(createdIDs []uuid.UUID) {
	for _, videoID := range createdIDs {
		service.eventBus.Dispatch(event.VideoCreatedEvent, videoID)
	}
}

func columnValue(row []string, columns map[string]int, column string, fallback string) string {
	index, ok := columns[column]
	if !ok || index >= len(row) {
		return fallback
	}

	if value := strings.TrimSpace(row[index]); value != "" {
		return value
	}

	return fallback
}
