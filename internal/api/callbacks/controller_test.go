package callbacks_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/webflix/webflix/internal/api/callbacks"
	"github.com/webflix/webflix/internal/database"
	"github.com/webflix/webflix/internal/event"
	"github.com/webflix/webflix/internal/video"
)

type mockStore struct{ mock.Mock }

func (m *mockStore) RecordReady(db database.Queryable, id uuid.UUID, playbackID string) error {
	return m.Called(db, id, playbackID).Error(0)
}

func (m *mockStore) RecordError(db database.Queryable, id uuid.UUID) error {
	return m.Called(db, id).Error(0)
}

func newServer(store callbacks.Store, eventBus event.EventDispatcher) *echo.Echo {
	ec := echo.New()
	callbacks.New(nil, store, eventBus).SetRoutes(ec.Group("/callbacks"))
	return ec
}

func performCallback(server *echo.Echo, body string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(http.MethodPost, "/callbacks/transcoder/", strings.NewReader(body))
	request.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, request)
	return recorder
}

func readyCallback(videoID uuid.UUID) string {
	return fmt.Sprintf(`{
		"type": "video.asset.ready",
		"data": {
			"id": "job-123",
			"passthrough": "{\"video_id\": \"%s\"}",
			"playback_ids": [{"id": "playback-123", "policy": "public"}]
		}
	}`, videoID)
}

func erroredCallback(videoID uuid.UUID) string {
	return fmt.Sprintf(`{
		"type": "video.asset.errored",
		"data": {
			"id": "job-123",
			"passthrough": "{\"video_id\": \"%s\"}",
			"errors": {"messages": ["input file is not a video"]}
		}
	}`, videoID)
}

func Test_Receive_FinalizesReadyVideo(t *testing.T) {
	t.Parallel()

	videoID := uuid.New()
	store := new(mockStore)
	store.On("RecordReady", mock.Anything, videoID, "playback-123").Return(nil)

	eventBus := event.New()
	announced := make(event.HandlerChannel, 1)
	eventBus.RegisterHandlerChannel(announced, event.VideoStatusEvent)

	server := newServer(store, eventBus)
	response := performCallback(server, readyCallback(videoID))

	assert.Equal(t, http.StatusOK, response.Code)
	store.AssertExpectations(t)
	assert.Len(t, announced, 1)
}

func Test_Receive_FinalizesErroredVideo(t *testing.T) {
	t.Parallel()

	videoID := uuid.New()
	store := new(mockStore)
	store.On("RecordError", mock.Anything, videoID).Return(nil)

	server := newServer(store, event.New())
	response := performCallback(server, erroredCallback(videoID))

	assert.Equal(t, http.StatusOK, response.Code)
	store.AssertExpectations(t)
}

func Test_Receive_IgnoresUninterestingCallbackTypes(t *testing.T) {
	t.Parallel()

	store := new(mockStore)
	server := newServer(store, event.New())
	response := performCallback(server, `{"type": "video.asset.created", "data": {"id": "job-123"}}`)

	assert.Equal(t, http.StatusOK, response.Code)
	store.AssertNotCalled(t, "RecordReady", mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "RecordError", mock.Anything, mock.Anything)
}

func Test_Receive_DropsCallbacksWithForeignPassthrough(t *testing.T) {
	t.Parallel()

	store := new(mockStore)
	server := newServer(store, event.New())
	response := performCallback(server, `{
		"type": "video.asset.ready",
		"data": {"id": "job-123", "passthrough": "someone elses data", "playback_ids": [{"id": "p"}]}
	}`)

	// Acknowledged so the provider does not retry a callback that can
	// never be tied to one of our records.
	assert.Equal(t, http.StatusOK, response.Code)
	store.AssertNotCalled(t, "RecordReady", mock.Anything, mock.Anything, mock.Anything)
}

func Test_Receive_DropsCallbacksForUnknownVideos(t *testing.T) {
	t.Parallel()

	videoID := uuid.New()
	store := new(mockStore)
	store.On("RecordReady", mock.Anything, videoID, "playback-123").Return(video.ErrVideoNotFound)

	server := newServer(store, event.New())
	response := performCallback(server, readyCallback(videoID))

	assert.Equal(t, http.StatusOK, response.Code)
}

func Test_Receive_DropsCallbacksForFinalizedVideos(t *testing.T) {
	t.Parallel()

	videoID := uuid.New()
	store := new(mockStore)
	store.On("RecordError", mock.Anything, videoID).Return(video.ErrInvalidTransition)

	eventBus := event.New()
	announced := make(event.HandlerChannel, 1)
	eventBus.RegisterHandlerChannel(announced, event.VideoStatusEvent)

	server := newServer(store, eventBus)
	response := performCallback(server, erroredCallback(videoID))

	assert.Equal(t, http.StatusOK, response.Code)
	assert.Len(t, announced, 0, "a dropped callback announces nothing")
}

func Test_Receive_SurfacesStorageFailures(t *testing.T) {
	t.Parallel()

	videoID := uuid.New()
	store := new(mockStore)
	store.On("RecordReady", mock.Anything, videoID, "playback-123").Return(fmt.Errorf("connection reset"))

	server := newServer(store, event.New())
	response := performCallback(server, readyCallback(videoID))

	assert.Equal(t, http.StatusInternalServerError, response.Code)
}
