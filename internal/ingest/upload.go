package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/webflix/webflix/internal/event"
	"github.com/webflix/webflix/internal/storage"
	"github.com/webflix/webflix/internal/video"
	"github.com/webflix/webflix/pkg/logger"
)

const (
	uploadTagTitle       = "title"
	uploadTagDescription = "description"
)

// importUpload turns one finished direct upload in to a pending video
// record. Display metadata is read from the objects tags, falling back
// to the object key when no title tag was attached by the uploader.
//
// Storage queues deliver at-least-once, so a redelivered notification
// is expected to land on an existing record and is quietly dropped.
func (service *ingestService) importUpload(ctx context.Context, notification storage.ObjectCreated) error {
	tags, err := service.storage.GetObjectTags(ctx, notification.Bucket, notification.Key)
	if err != nil {
		return fmt.Errorf("failed to read tags for upload %s/%s: %w", notification.Bucket, notification.Key, err)
	}

	title := tags[uploadTagTitle]
	if title == "" {
		title = notification.Key
	}

	newVideo := &video.Video{
		ID:          uuid.New(),
		Title:       title,
		Description: tags[uploadTagDescription],
		SourceType:  video.SourceUpload,
		SourceURL:   storage.ObjectURL(notification.Bucket, notification.Key),
		Status:      video.StatusPending,
	}

	if err := service.videos.Create(service.db, newVideo); err != nil {
		if errors.Is(err, video.ErrVideoExists) {
			log.Emit(logger.DEBUG, "Ignoring redelivered upload notification for %s/%s\n", notification.Bucket, notification.Key)
			return nil
		}

		return fmt.Errorf("failed to save uploaded video %s/%s: %w", notification.Bucket, notification.Key, err)
	}

	log.Emit(logger.INFO, "Upload %s ingested as video %s\n", notification.Key, newVideo.ID)
	service.eventBus.Dispatch(event.VideoCreatedEvent, newVideo.ID)

	return nil
}
