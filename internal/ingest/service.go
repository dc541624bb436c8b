package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rjeczalik/notify"
	"github.com/webflix/webflix/internal/database"
	"github.com/webflix/webflix/internal/event"
	"github.com/webflix/webflix/internal/storage"
	"github.com/webflix/webflix/internal/video"
	"github.com/webflix/webflix/pkg/logger"
)

var log = logger.Get("IngestServ")

type (
	videoStore interface {
		Create(database.Queryable, *video.Video) error
	}

	objectStorage interface {
		StreamObject(ctx context.Context, bucket string, key string) (io.ReadCloser, error)
		GetObjectTags(ctx context.Context, bucket string, key string) (map[string]string, error)
	}

	notificationSource interface {
		Receive(ctx context.Context) ([]storage.ObjectCreated, error)
		Delete(ctx context.Context, receiptHandle string) error
	}

	// ingestService is responsible for turning newly arrived source
	// material in to pending video records. Material arrives two ways:
	// - Object storage notifications, covering both direct uploads and
	//   bulk CSV documents (routed apart by key prefix)
	// - CSV documents dropped in to a watched local directory
	ingestService struct {
		*sync.Mutex

		db            database.Queryable
		videos        videoStore
		storage       objectStorage
		notifications notificationSource
		eventBus      event.EventDispatcher

		config        Config
		importedPaths map[string]bool
	}
)

// New creates a new ingest service. If the configs 'WatchPath' is set
// it is validated to be an existing directory, and created if missing.
func New(
	config Config,
	db database.Queryable,
	videos videoStore,
	objectStore objectStorage,
	notifications notificationSource,
	eventBus event.EventDispatcher,
) (*ingestService, error) {
	if config.WatchPath != "" {
		if info, err := os.Stat(config.WatchPath); err == nil {
			if !info.IsDir() {
				return nil, fmt.Errorf("watch path '%s' is not a directory", config.WatchPath)
			}
		} else if errors.Is(err, os.ErrNotExist) {
			if err := os.MkdirAll(config.WatchPath, os.ModeDir|os.ModePerm); err != nil {
				return nil, fmt.Errorf("watch path '%s' could not be created: %w", config.WatchPath, err)
			}
		} else {
			return nil, fmt.Errorf("watch path '%s' could not be accessed: %w", config.WatchPath, err)
		}
	}

	return &ingestService{
		Mutex:         &sync.Mutex{},
		db:            db,
		videos:        videos,
		storage:       objectStore,
		notifications: notifications,
		eventBus:      eventBus,
		config:        config,
		importedPaths: make(map[string]bool),
	}, nil
}

// Run is the main entry point of this service. It consumes object
// storage notifications until the provided context is cancelled and,
// when a watch path is configured, also responds to CSV documents
// appearing on the local file system.
func (service *ingestService) Run(ctx context.Context) error {
	fsEvents := make(chan notify.EventInfo, 8)
	if service.config.WatchPath != "" {
		watchGlob := filepath.Join(service.config.WatchPath, "...")
		if err := notify.Watch(watchGlob, fsEvents, notify.Create, notify.Rename); err != nil {
			return fmt.Errorf("failed to watch '%s': %w", service.config.WatchPath, err)
		}
		defer notify.Stop(fsEvents)

		service.sweepWatchPath()
	}

	notificationErr := make(chan error, 1)
	go func() { notificationErr <- service.consumeNotifications(ctx) }()

	for {
		select {
		case fsEvent := <-fsEvents:
			service.importLocalDocument(fsEvent.Path())
		case err := <-notificationErr:
			return err
		case <-ctx.Done():
			<-notificationErr
			return nil
		}
	}
}

// consumeNotifications long-polls the notification queue, routing each
// notification to the bulk or upload importer. Messages are only
// acknowledged once handled, so a failed import is redelivered.
func (service *ingestService) consumeNotifications(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		notifications, err := service.notifications.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("notification queue receive failed: %w", err)
		}

		for _, notification := range notifications {
			if err := service.handleNotification(ctx, notification); err != nil {
				log.Emit(logger.ERROR, "Failed to ingest %s/%s: %v\n", notification.Bucket, notification.Key, err)
				continue
			}

			if err := service.notifications.Delete(ctx, notification.ReceiptHandle); err != nil {
				log.Emit(logger.WARNING, "Failed to acknowledge notification for %s: %v\n", notification.Key, err)
			}
		}
	}
}

func (service *ingestService) handleNotification(ctx context.Context, notification storage.ObjectCreated) error {
	if strings.HasPrefix(notification.Key, service.config.BulkPrefix) {
		return service.importBulkDocument(ctx, notification)
	}

	return service.importUpload(ctx, notification)
}

// importBulkDocument streams a CSV document out of object storage and
// imports its rows. Submissions are only announced once the whole
// document has been consumed.
func (service *ingestService) importBulkDocument(ctx context.Context, notification storage.ObjectCreated) error {
	document, err := service.storage.StreamObject(ctx, notification.Bucket, notification.Key)
	if err != nil {
		return fmt.Errorf("failed to open import document %s/%s: %w", notification.Bucket, notification.Key, err)
	}
	defer document.Close()

	createdIDs, err := service.importDocument(document)
	if err != nil {
		return err
	}

	log.Emit(logger.INFO, "Import document %s created %d videos\n", notification.Key, len(createdIDs))
	service.announceCreated(createdIDs)

	return nil
}

// sweepWatchPath imports any CSV documents already sitting in the watch
// path when the service starts.
func (service *ingestService) sweepWatchPath() {
	entries, err := os.ReadDir(service.config.WatchPath)
	if err != nil {
		log.Emit(logger.ERROR, "Failed to sweep watch path '%s': %v\n", service.config.WatchPath, err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		service.importLocalDocument(filepath.Join(service.config.WatchPath, entry.Name()))
	}
}

// importLocalDocument imports a CSV document from the local file
// system. Paths are remembered once imported so rename storms from the
// file system watcher don't re-run the import.
func (service *ingestService) importLocalDocument(path string) {
	if strings.ToLower(filepath.Ext(path)) != ".csv" {
		return
	}

	service.Lock()
	defer service.Unlock()
	if service.importedPaths[path] {
		return
	}

	document, err := os.Open(path)
	if err != nil {
		log.Emit(logger.ERROR, "Failed to open local import document '%s': %v\n", path, err)
		return
	}
	defer document.Close()

	createdIDs, err := service.importDocument(document)
	if err != nil {
		log.Emit(logger.ERROR, "Failed to import local document '%s': %v\n", path, err)
		return
	}

	service.importedPaths[path] = true
	log.Emit(logger.INFO, "Local document %s created %d videos\n", path, len(createdIDs))
	service.announceCreated(createdIDs)
}
