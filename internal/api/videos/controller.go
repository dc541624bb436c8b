package videos

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/webflix/webflix/internal/api/util"
	"github.com/webflix/webflix/internal/database"
	"github.com/webflix/webflix/internal/video"
)

type (
	// Dto is the response shape used by endpoints that return video
	// records (e.g., list, get).
	Dto struct {
		Id          uuid.UUID  `json:"id"`
		Title       string     `json:"title"`
		Description string     `json:"description"`
		SourceType  string     `json:"source_type"`
		SourceId    *uuid.UUID `json:"source_id"`
		SourceUrl   string     `json:"source_url"`
		JobId       *string    `json:"job_id"`
		Status      string     `json:"status"`
		PlaybackId  *string    `json:"playback_id"`
		CreatedAt   time.Time  `json:"created_at"`
		UpdatedAt   time.Time  `json:"updated_at"`
	}

	Store interface {
		Get(database.Queryable, uuid.UUID) (*video.Video, error)
		List(database.Queryable, video.ListFilter) ([]*video.Video, error)
	}

	Controller struct {
		db    database.Queryable
		store Store
	}
)

func New(db database.Queryable, store Store) *Controller {
	return &Controller{db: db, store: store}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/", controller.list)
	eg.GET("/:id/", controller.get)
}

// list returns all the videos - represented as DTOs - from the
// underlying store. The 'source_type', 'status' and 'source_id' query
// params optionally narrow the result.
func (controller *Controller) list(ec echo.Context) error {
	filter, err := filterFromQuery(ec)
	if err != nil {
		return err
	}

	records, err := controller.store.List(controller.db, filter)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ec.JSON(http.StatusOK, util.ApplyConversion(records, NewDto))
}

// get uses the 'id' path param from the context and retrieves the video
// from the underlying store.
func (controller *Controller) get(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Video ID is not a valid UUID")
	}

	record, err := controller.store.Get(controller.db, id)
	if err != nil {
		if errors.Is(err, video.ErrVideoNotFound) {
			return echo.ErrNotFound
		}

		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ec.JSON(http.StatusOK, NewDto(record))
}

func filterFromQuery(ec echo.Context) (video.ListFilter, error) {
	filter := video.ListFilter{}

	if raw := ec.QueryParam("source_type"); raw != "" {
		sourceType := video.SourceType(raw)
		switch sourceType {
		case video.SourceCSV, video.SourceUpload, video.SourceMRSS:
			filter.SourceType = &sourceType
		default:
			return filter, echo.NewHTTPError(http.StatusBadRequest, "Unknown source type")
		}
	}

	if raw := ec.QueryParam("status"); raw != "" {
		status := video.Status(raw)
		switch status {
		case video.StatusPending, video.StatusSubmitted, video.StatusReady, video.StatusErrored:
			filter.Status = &status
		default:
			return filter, echo.NewHTTPError(http.StatusBadRequest, "Unknown status")
		}
	}

	if raw := ec.QueryParam("source_id"); raw != "" {
		sourceID, err := uuid.Parse(raw)
		if err != nil {
			return filter, echo.NewHTTPError(http.StatusBadRequest, "Source ID is not a valid UUID")
		}
		filter.SourceID = &sourceID
	}

	return filter, nil
}

func NewDto(record *video.Video) *Dto {
	return &Dto{
		Id:          record.ID,
		Title:       record.Title,
		Description: record.Description,
		SourceType:  string(record.SourceType),
		SourceId:    record.SourceID,
		SourceUrl:   record.SourceURL,
		JobId:       record.JobID,
		Status:      string(record.Status),
		PlaybackId:  record.PlaybackID,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
}
