package transcoder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/webflix/webflix/internal/database"
	"github.com/webflix/webflix/internal/event"
	"github.com/webflix/webflix/internal/video"
	"github.com/webflix/webflix/pkg/logger"
	"github.com/webflix/webflix/pkg/worker"
)

var log = logger.Get("Transcoder")

type (
	// SubmitterConfig controls the submission pipeline between newly
	// created videos and the hosted provider.
	SubmitterConfig struct {
		QueueSize   int `yaml:"queue_size" env:"SUBMITTER_QUEUE_SIZE" env-default:"128"`
		Parallelism int `yaml:"parallelism" env:"SUBMITTER_PARALLELISM" env-default:"2"`
		MaxAttempts int `yaml:"max_attempts" env:"SUBMITTER_MAX_ATTEMPTS" env-default:"3"`
	}

	jobCreator interface {
		CreateJob(ctx context.Context, sourceURL string, token CorrelationToken) (*Job, error)
	}

	submitterVideoStore interface {
		Get(database.Queryable, uuid.UUID) (*video.Video, error)
		RecordSubmission(database.Queryable, uuid.UUID, string) error
	}

	// submitterService listens for video creation announcements and
	// submits each pending video to the provider from a small worker
	// pool. Submission failures are retried a bounded number of times;
	// a video that exhausts its attempts stays pending so an operator
	// can re-trigger it later.
	submitterService struct {
		*sync.Mutex

		db       database.Queryable
		videos   submitterVideoStore
		provider jobCreator
		eventBus event.EventCoordinator

		config     SubmitterConfig
		queue      chan uuid.UUID
		attempts   map[uuid.UUID]int
		workerPool *worker.WorkerPool

		runCtx context.Context
	}
)

func NewSubmitter(
	config SubmitterConfig,
	db database.Queryable,
	videos submitterVideoStore,
	provider jobCreator,
	eventBus event.EventCoordinator,
) *submitterService {
	service := &submitterService{
		Mutex:      &sync.Mutex{},
		db:         db,
		videos:     videos,
		provider:   provider,
		eventBus:   eventBus,
		config:     config,
		queue:      make(chan uuid.UUID, config.QueueSize),
		attempts:   make(map[uuid.UUID]int),
		workerPool: worker.NewWorkerPool(),
	}

	for i := 0; i < config.Parallelism; i++ {
		label := fmt.Sprintf("submit-worker-%d", i)
		service.workerPool.PushWorker(worker.NewWorker(label, service.performSubmission))
	}

	return service
}

// Run is the main entry point of this service. It drains creation
// announcements from the event bus in to the submission queue until the
// provided context is cancelled.
func (service *submitterService) Run(ctx context.Context) error {
	service.runCtx = ctx

	ingestChannel := make(event.HandlerChannel, service.config.QueueSize)
	service.eventBus.RegisterHandlerChannel(ingestChannel, event.VideoCreatedEvent)

	if err := service.workerPool.Start(); err != nil {
		return fmt.Errorf("failed to start submitter worker pool: %w", err)
	}
	defer service.workerPool.Close()

	for {
		select {
		case message := <-ingestChannel:
			videoID, ok := message.Payload.(uuid.UUID)
			if !ok {
				log.Emit(logger.ERROR, "Illegal payload %#v for %s event\n", message.Payload, message.Event)
				continue
			}

			service.enqueue(videoID)
		case <-ctx.Done():
			return nil
		}
	}
}

// enqueue pushes a video on to the submission queue. A full queue drops
// the request; the video record stays pending and is picked up again
// when an operator re-announces it.
func (service *submitterService) enqueue(videoID uuid.UUID) {
	select {
	case service.queue <- videoID:
		_ = service.workerPool.WakeupWorkers()
	default:
		log.Emit(logger.WARNING, "Submission queue is full, video %s remains pending\n", videoID)
	}
}

// performSubmission is the worker function for the submitter, which is
// called by the services worker pool. It claims the next queued video
// and submits it, re-queueing on failure until the attempt budget for
// that video is spent.
func (service *submitterService) performSubmission(w worker.Worker) (bool, error) {
	var videoID uuid.UUID
	select {
	case videoID = <-service.queue:
	default:
		return false, nil
	}

	if err := service.submit(videoID); err != nil {
		attempt := service.recordAttempt(videoID)
		if attempt < service.config.MaxAttempts {
			log.Emit(logger.WARNING, "Submission of video %s failed (attempt %d of %d): %v\n", videoID, attempt, service.config.MaxAttempts, err)
			service.enqueue(videoID)
		} else {
			service.clearAttempts(videoID)
			log.Emit(logger.ERROR, "Submission of video %s abandoned after %d attempts: %v\n", videoID, attempt, err)
		}

		return true, nil
	}

	service.clearAttempts(videoID)
	return true, nil
}

// submit performs one submission attempt. A video that is no longer
// pending is silently dropped: a duplicate announcement or a concurrent
// worker already got there.
func (service *submitterService) submit(videoID uuid.UUID) error {
	subject, err := service.videos.Get(service.db, videoID)
	if err != nil {
		if errors.Is(err, video.ErrVideoNotFound) {
			log.Emit(logger.WARNING, "Dropping submission for unknown video %s\n", videoID)
			return nil
		}

		return fmt.Errorf("failed to load video %s: %w", videoID, err)
	}

	if subject.Status != video.StatusPending {
		log.Emit(logger.DEBUG, "Video %s is already %s, nothing to submit\n", videoID, subject.Status)
		return nil
	}

	job, err := service.provider.CreateJob(service.runCtx, subject.SourceURL, CorrelationToken{VideoID: subject.ID})
	if err != nil {
		return fmt.Errorf("provider rejected video %s: %w", videoID, err)
	}

	if err := service.videos.RecordSubmission(service.db, subject.ID, job.ID); err != nil {
		if errors.Is(err, video.ErrInvalidTransition) {
			log.Emit(logger.WARNING, "Video %s advanced before submission %s could be recorded\n", videoID, job.ID)
			return nil
		}

		return fmt.Errorf("failed to record submission of video %s: %w", videoID, err)
	}

	log.Emit(logger.INFO, "Video %s submitted as job %s (provider status %s)\n", videoID, job.ID, job.Status)
	service.eventBus.Dispatch(event.VideoSubmittedEvent, subject.ID)
	service.eventBus.Dispatch(event.VideoStatusEvent, subject.ID)

	return nil
}

func (service *submitterService) recordAttempt(videoID uuid.UUID) int {
	service.Lock()
	defer service.Unlock()

	service.attempts[videoID]++
	return service.attempts[videoID]
}

func (service *submitterService) clearAttempts(videoID uuid.UUID) {
	service.Lock()
	defer service.Unlock()

	delete(service.attempts, videoID)
}
