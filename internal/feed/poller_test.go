package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/webflix/webflix/internal/database"
	"github.com/webflix/webflix/internal/event"
	"github.com/webflix/webflix/internal/video"
)

type mockFeedStore struct{ mock.Mock }

func (m *mockFeedStore) Get(db database.Queryable, id uuid.UUID) (*Feed, error) {
	args := m.Called(db, id)
	if feed := args.Get(0); feed != nil {
		return feed.(*Feed), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockFeedStore) AdvanceLastPolled(db database.Queryable, id uuid.UUID) error {
	return m.Called(db, id).Error(0)
}

type mockVideoStore struct{ mock.Mock }

func (m *mockVideoStore) Create(db database.Queryable, v *video.Video) error {
	return m.Called(db, v).Error(0)
}

func serveDocument(t *testing.T, document string) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(document))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func Test_PollFeed_IngestsNewItemsAndAdvancesMarker(t *testing.T) {
	t.Parallel()

	srv := serveDocument(t, sampleDocument)
	feedID := uuid.New()

	feedStore := new(mockFeedStore)
	feedStore.On("Get", mock.Anything, feedID).Return(&Feed{ID: feedID, Name: "acme", URL: srv.URL, IntervalMinutes: 5}, nil)
	feedStore.On("AdvanceLastPolled", mock.Anything, feedID).Return(nil)

	videoStore := new(mockVideoStore)
	var created []*video.Video
	videoStore.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		created = append(created, args.Get(1).(*video.Video))
	}).Return(nil)

	eventBus := event.New()
	announced := make(event.HandlerChannel, 10)
	eventBus.RegisterHandlerChannel(announced, event.VideoCreatedEvent)

	poller := NewPoller(nil, feedStore, videoStore, eventBus)
	require.NoError(t, poller.PollFeed(context.Background(), feedID))

	// The third sample item has no MP4 rendition, so only two rows are created.
	require.Len(t, created, 2)
	assert.Equal(t, "https://cdn.acme.test/a-1080.mp4", created[0].SourceURL)
	assert.Equal(t, "https://cdn.acme.test/b-480.mp4", created[1].SourceURL)
	for _, v := range created {
		assert.Equal(t, video.SourceMRSS, v.SourceType)
		assert.Equal(t, video.StatusPending, v.Status)
		require.NotNil(t, v.SourceID)
		assert.Equal(t, feedID, *v.SourceID)
	}

	assert.Len(t, announced, 2)
	feedStore.AssertExpectations(t)
}

func Test_PollFeed_DuplicateSourceURLIsSkipped(t *testing.T) {
	t.Parallel()

	srv := serveDocument(t, sampleDocument)
	feedID := uuid.New()

	feedStore := new(mockFeedStore)
	feedStore.On("Get", mock.Anything, feedID).Return(&Feed{ID: feedID, Name: "acme", URL: srv.URL, IntervalMinutes: 5}, nil)
	feedStore.On("AdvanceLastPolled", mock.Anything, feedID).Return(nil)

	// Every insert reports a pre-existing row; the run must still succeed
	// and still advance last_polled.
	videoStore := new(mockVideoStore)
	videoStore.On("Create", mock.Anything, mock.Anything).Return(video.ErrVideoExists)

	eventBus := event.New()
	announced := make(event.HandlerChannel, 10)
	eventBus.RegisterHandlerChannel(announced, event.VideoCreatedEvent)

	poller := NewPoller(nil, feedStore, videoStore, eventBus)
	require.NoError(t, poller.PollFeed(context.Background(), feedID))

	assert.Len(t, announced, 0)
	feedStore.AssertCalled(t, "AdvanceLastPolled", mock.Anything, feedID)
}

func Test_PollFeed_UnknownFeedAborts(t *testing.T) {
	t.Parallel()

	feedID := uuid.New()
	feedStore := new(mockFeedStore)
	feedStore.On("Get", mock.Anything, feedID).Return(nil, ErrFeedNotFound)

	poller := NewPoller(nil, feedStore, new(mockVideoStore), event.New())
	err := poller.PollFeed(context.Background(), feedID)
	assert.ErrorIs(t, err, ErrFeedNotFound)
	feedStore.AssertNotCalled(t, "AdvanceLastPolled", mock.Anything, mock.Anything)
}

func Test_PollFeed_MalformedDocumentDoesNotAdvanceMarker(t *testing.T) {
	t.Parallel()

	srv := serveDocument(t, "absolutely not xml {")
	feedID := uuid.New()

	feedStore := new(mockFeedStore)
	feedStore.On("Get", mock.Anything, feedID).Return(&Feed{ID: feedID, Name: "acme", URL: srv.URL, IntervalMinutes: 5}, nil)

	poller := NewPoller(nil, feedStore, new(mockVideoStore), event.New())
	err := poller.PollFeed(context.Background(), feedID)
	assert.ErrorIs(t, err, ErrMalformedFeed)
	feedStore.AssertNotCalled(t, "AdvanceLastPolled", mock.Anything, mock.Anything)
}
