package videos_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/webflix/webflix/internal/api/videos"
	"github.com/webflix/webflix/internal/database"
	"github.com/webflix/webflix/internal/video"
)

type mockStore struct{ mock.Mock }

func (m *mockStore) Get(db database.Queryable, id uuid.UUID) (*video.Video, error) {
	args := m.Called(db, id)
	if v := args.Get(0); v != nil {
		return v.(*video.Video), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) List(db database.Queryable, filter video.ListFilter) ([]*video.Video, error) {
	args := m.Called(db, filter)
	if all := args.Get(0); all != nil {
		return all.([]*video.Video), args.Error(1)
	}
	return nil, args.Error(1)
}

func newServer(store videos.Store) *echo.Echo {
	ec := echo.New()
	videos.New(nil, store).SetRoutes(ec.Group("/videos"))
	return ec
}

func performRequest(server *echo.Echo, path string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(http.MethodGet, path, nil)
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, request)
	return recorder
}

func Test_List_PassesQueryFiltersToStore(t *testing.T) {
	t.Parallel()

	store := new(mockStore)
	var filter video.ListFilter
	store.On("List", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		filter = args.Get(1).(video.ListFilter)
	}).Return([]*video.Video{}, nil)

	server := newServer(store)
	response := performRequest(server, "/videos/?status=ready&source_type=mrss")

	require.Equal(t, http.StatusOK, response.Code)
	require.NotNil(t, filter.Status)
	assert.Equal(t, video.StatusReady, *filter.Status)
	require.NotNil(t, filter.SourceType)
	assert.Equal(t, video.SourceMRSS, *filter.SourceType)
	assert.Nil(t, filter.SourceID)
}

func Test_List_RejectsUnknownFilterValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		summary string
		path    string
	}{
		{"unknown status", "/videos/?status=transcoding"},
		{"unknown source type", "/videos/?source_type=ftp"},
		{"malformed source ID", "/videos/?source_id=not-a-uuid"},
	}

	for _, test := range tests {
		test := test
		t.Run(test.summary, func(t *testing.T) {
			t.Parallel()

			store := new(mockStore)
			server := newServer(store)
			response := performRequest(server, test.path)

			assert.Equal(t, http.StatusBadRequest, response.Code)
			store.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
		})
	}
}

func Test_Get_ReturnsVideoDto(t *testing.T) {
	t.Parallel()

	videoID := uuid.New()
	playbackID := "playback-123"
	record := &video.Video{
		ID:         videoID,
		Title:      "Episode One",
		SourceType: video.SourceUpload,
		SourceURL:  "s3://uploads/episode.mp4",
		Status:     video.StatusReady,
		PlaybackID: &playbackID,
	}

	store := new(mockStore)
	store.On("Get", mock.Anything, videoID).Return(record, nil)

	server := newServer(store)
	response := performRequest(server, "/videos/"+videoID.String()+"/")

	require.Equal(t, http.StatusOK, response.Code)

	var dto videos.Dto
	require.NoError(t, json.Unmarshal(response.Body.Bytes(), &dto))
	assert.Equal(t, videoID, dto.Id)
	assert.Equal(t, "Episode One", dto.Title)
	assert.Equal(t, "ready", dto.Status)
	require.NotNil(t, dto.PlaybackId)
	assert.Equal(t, playbackID, *dto.PlaybackId)
}

func Test_Get_ReturnsNotFoundForUnknownVideo(t *testing.T) {
	t.Parallel()

	videoID := uuid.New()
	store := new(mockStore)
	store.On("Get", mock.Anything, videoID).Return(nil, video.ErrVideoNotFound)

	server := newServer(store)
	response := performRequest(server, "/videos/"+videoID.String()+"/")

	assert.Equal(t, http.StatusNotFound, response.Code)
}
