package internal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/webflix/webflix/internal/api"
	"github.com/webflix/webflix/internal/database"
	"github.com/webflix/webflix/internal/event"
	"github.com/webflix/webflix/internal/feed"
	"github.com/webflix/webflix/internal/ingest"
	"github.com/webflix/webflix/internal/storage"
	"github.com/webflix/webflix/internal/transcoder"
	"github.com/webflix/webflix/internal/video"
	"github.com/webflix/webflix/pkg/logger"
)

var log = logger.Get("Core")

type RunnableService interface {
	Run(context.Context) error
}

// Webflix represents the top-level object for the server, and is
// responsible for initialising embedded support services, stores,
// event handling, et cetera...
type webflixImpl struct {
	eventBus event.EventCoordinator
	config   WebflixConfig

	videoStore *video.Store
	feedStore  *feed.Store
}

func New(config WebflixConfig) *webflixImpl {
	log.Emit(logger.DEBUG, "Bootstrapping Webflix services using config: %#v\n", config)

	return &webflixImpl{
		eventBus:   event.New(),
		config:     config,
		videoStore: video.NewStore(),
		feedStore:  feed.NewStore(),
	}
}

// Run will start all of Webflix by bringing up all required services
// and connections: the (optionally embedded) database, object storage
// clients, the ingestion and submission pipelines, and the REST
// gateway.
//
// This function will not return until Webflix is stopped. To stop
// Webflix, the provided context must be cancelled. Errors from which
// Webflix cannot recover will also cause it to stop.
func (webflix *webflixImpl) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel()
	}

	if webflix.config.Services.EnablePostgres {
		log.Emit(logger.INFO, "Initialising embedded database...\n")
		embedded, err := database.SpawnPostgres(ctx, webflix.config.Database)
		if err != nil {
			return fmt.Errorf("failed to spawn embedded database: %w", err)
		}
		defer embedded.Close(time.Second * 10)
	}

	log.Emit(logger.NEW, "Connecting to database...\n")
	db := database.New()
	if err := db.Connect(webflix.config.Database); err != nil {
		return err
	}
	if err := db.ExecuteMigrations(); err != nil {
		return err
	}
	sqlxDb := db.GetSqlxDb()

	log.Emit(logger.NEW, "Initialising object storage clients...\n")
	storageClient, err := storage.NewClient(ctx, webflix.config.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialise object storage: %w", err)
	}
	notifications, err := storage.NewNotificationReceiver(ctx, webflix.config.Storage.NotificationQueueURL)
	if err != nil {
		return fmt.Errorf("failed to initialise notification receiver: %w", err)
	}

	poller := feed.NewPoller(sqlxDb, webflix.feedStore, webflix.videoStore, webflix.eventBus)
	scheduler := feed.NewScheduler(sqlxDb, webflix.feedStore, poller)

	ingestService, err := ingest.New(webflix.config.Ingest, sqlxDb, webflix.videoStore, storageClient, notifications, webflix.eventBus)
	if err != nil {
		return fmt.Errorf("failed to construct ingest service: %w", err)
	}

	provider := transcoder.NewClient(webflix.config.Transcoder)
	submitter := transcoder.NewSubmitter(webflix.config.Submitter, sqlxDb, webflix.videoStore, provider, webflix.eventBus)

	restGateway := api.NewRestGateway(
		&webflix.config.RestConfig,
		sqlxDb,
		webflix.videoStore,
		webflix.feedStore,
		scheduler,
		storageClient,
		webflix.eventBus,
	)

	wg := &sync.WaitGroup{}
	webflix.spawnAsyncService(ctx, wg, scheduler, "feed-scheduler", crashHandler)
	webflix.spawnAsyncService(ctx, wg, ingestService, "ingest-service", crashHandler)
	webflix.spawnAsyncService(ctx, wg, submitter, "transcode-submitter", crashHandler)
	webflix.spawnAsyncService(ctx, wg, restGateway, "rest-gateway", crashHandler)
	log.Emit(logger.SUCCESS, "Webflix services spawned!\n")

	wg.Wait()
	return nil
}

// spawnAsyncService will run the provided function/service as it's own
// go-routine, ensuring that the Webflix service waitgroup is updated correctly
func (webflix *webflixImpl) spawnAsyncService(context context.Context, wg *sync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.NEW, "Spawning %s\n", serviceLabel)
	wg.Add(1)

	go func(wg *sync.WaitGroup, label string, crash func(string, error)) {
		defer func() {
			if r := recover(); r != nil {
				crash(label, fmt.Errorf("panic %v", r))
			}
		}()

		defer wg.Done()
		if err := service.Run(context); err != nil {
			crash(label, err)
		}
	}(wg, serviceLabel, crashHandler)
}
