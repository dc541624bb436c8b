package transcoder

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/webflix/webflix/internal/database"
	"github.com/webflix/webflix/internal/event"
	"github.com/webflix/webflix/internal/video"
)

type mockVideoStore struct{ mock.Mock }

func (m *mockVideoStore) Get(db database.Queryable, id uuid.UUID) (*video.Video, error) {
	args := m.Called(db, id)
	if v := args.Get(0); v != nil {
		return v.(*video.Video), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockVideoStore) RecordSubmission(db database.Queryable, id uuid.UUID, jobID string) error {
	return m.Called(db, id, jobID).Error(0)
}

type mockProvider struct{ mock.Mock }

func (m *mockProvider) CreateJob(ctx context.Context, sourceURL string, token CorrelationToken) (*Job, error) {
	args := m.Called(ctx, sourceURL, token)
	if job := args.Get(0); job != nil {
		return job.(*Job), args.Error(1)
	}
	return nil, args.Error(1)
}

func newTestSubmitter(videos submitterVideoStore, provider jobCreator, eventBus event.EventCoordinator) *submitterService {
	service := NewSubmitter(SubmitterConfig{QueueSize: 8, Parallelism: 1, MaxAttempts: 2}, nil, videos, provider, eventBus)
	service.runCtx = context.Background()
	return service
}

func Test_Submit_RecordsJobAndAnnouncesSubmission(t *testing.T) {
	t.Parallel()

	videoID := uuid.New()
	pending := &video.Video{ID: videoID, SourceURL: "s3://uploads/episode.mp4", Status: video.StatusPending}

	videoStore := new(mockVideoStore)
	videoStore.On("Get", mock.Anything, videoID).Return(pending, nil)
	videoStore.On("RecordSubmission", mock.Anything, videoID, "job-123").Return(nil)

	provider := new(mockProvider)
	provider.On("CreateJob", mock.Anything, "s3://uploads/episode.mp4", CorrelationToken{VideoID: videoID}).
		Return(&Job{ID: "job-123", Status: "preparing"}, nil)

	eventBus := event.New()
	announced := make(event.HandlerChannel, 4)
	eventBus.RegisterHandlerChannel(announced, event.VideoSubmittedEvent, event.VideoStatusEvent)

	service := newTestSubmitter(videoStore, provider, eventBus)
	require.NoError(t, service.submit(videoID))

	videoStore.AssertExpectations(t)
	assert.Len(t, announced, 2)
}

func Test_Submit_DropsVideosThatAreNoLongerPending(t *testing.T) {
	t.Parallel()

	videoID := uuid.New()
	submitted := &video.Video{ID: videoID, SourceURL: "s3://uploads/episode.mp4", Status: video.StatusSubmitted}

	videoStore := new(mockVideoStore)
	videoStore.On("Get", mock.Anything, videoID).Return(submitted, nil)

	provider := new(mockProvider)

	service := newTestSubmitter(videoStore, provider, event.New())
	require.NoError(t, service.submit(videoID))

	provider.AssertNotCalled(t, "CreateJob", mock.Anything, mock.Anything, mock.Anything)
}

func Test_Submit_DropsUnknownVideos(t *testing.T) {
	t.Parallel()

	videoID := uuid.New()
	videoStore := new(mockVideoStore)
	videoStore.On("Get", mock.Anything, videoID).Return(nil, video.ErrVideoNotFound)

	service := newTestSubmitter(videoStore, new(mockProvider), event.New())
	assert.NoError(t, service.submit(videoID))
}

func Test_PerformSubmission_RetriesUntilAttemptBudgetSpent(t *testing.T) {
	t.Parallel()

	videoID := uuid.New()
	pending := &video.Video{ID: videoID, SourceURL: "s3://uploads/episode.mp4", Status: video.StatusPending}

	videoStore := new(mockVideoStore)
	videoStore.On("Get", mock.Anything, videoID).Return(pending, nil)

	provider := new(mockProvider)
	provider.On("CreateJob", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &UnknownRequestError{"connection refused"})

	service := newTestSubmitter(videoStore, provider, event.New())
	service.enqueue(videoID)

	// First attempt fails and re-queues, second exhausts the budget.
	didWork, err := service.performSubmission(nil)
	require.NoError(t, err)
	require.True(t, didWork)

	didWork, err = service.performSubmission(nil)
	require.NoError(t, err)
	require.True(t, didWork)

	didWork, err = service.performSubmission(nil)
	require.NoError(t, err)
	assert.False(t, didWork, "the abandoned video must not be queued again")

	provider.AssertNumberOfCalls(t, "CreateJob", 2)
}

func Test_Enqueue_DropsWhenQueueIsFull(t *testing.T) {
	t.Parallel()

	service := NewSubmitter(SubmitterConfig{QueueSize: 1, Parallelism: 1, MaxAttempts: 1}, nil, new(mockVideoStore), new(mockProvider), event.New())

	service.enqueue(uuid.New())
	service.enqueue(uuid.New())

	assert.Len(t, service.queue, 1)
}
