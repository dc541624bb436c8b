package feeds

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/webflix/webflix/internal/api/util"
	"github.com/webflix/webflix/internal/database"
	"github.com/webflix/webflix/internal/feed"
)

type (
	Dto struct {
		Id              uuid.UUID  `json:"id"`
		Name            string     `json:"name"`
		Url             string     `json:"url"`
		IntervalMinutes int        `json:"interval_minutes"`
		ScheduleRule    string     `json:"schedule_rule"`
		LastPolled      *time.Time `json:"last_polled"`
		CreatedAt       time.Time  `json:"created_at"`
		UpdatedAt       time.Time  `json:"updated_at"`
	}

	createRequest struct {
		Name            string `json:"name" validate:"required"`
		Url             string `json:"url" validate:"required,url"`
		IntervalMinutes int    `json:"interval_minutes" validate:"required,gt=0"`
	}

	updateRequest struct {
		Name            *string `json:"name" validate:"omitempty,min=1"`
		Url             *string `json:"url" validate:"omitempty,url"`
		IntervalMinutes *int    `json:"interval_minutes" validate:"omitempty,gt=0"`
	}

	Store interface {
		Create(database.Queryable, *feed.Feed) error
		Get(database.Queryable, uuid.UUID) (*feed.Feed, error)
		GetAll(database.Queryable) ([]*feed.Feed, error)
		Update(database.Queryable, *feed.Feed) error
		Delete(database.Queryable, uuid.UUID) error
	}

	// Scheduler is the live polling schedule; the controller keeps it
	// in lock-step with the rows it mutates.
	Scheduler interface {
		UpsertRule(*feed.Feed) error
		RemoveRule(uuid.UUID)
	}

	Controller struct {
		db        database.Queryable
		store     Store
		scheduler Scheduler
		validate  *validator.Validate
	}
)

func New(validate *validator.Validate, db database.Queryable, store Store, scheduler Scheduler) *Controller {
	return &Controller{db: db, store: store, scheduler: scheduler, validate: validate}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.POST("/", controller.create)
	eg.GET("/", controller.list)
	eg.GET("/:id/", controller.get)
	eg.PUT("/:id/", controller.update)
	eg.DELETE("/:id/", controller.delete)
}

// create registers a new feed and immediately installs its polling
// rule so the first poll happens one interval from now.
func (controller *Controller) create(ec echo.Context) error {
	var request createRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := controller.validate.Struct(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	newFeed := &feed.Feed{
		ID:              uuid.New(),
		Name:            request.Name,
		URL:             request.Url,
		IntervalMinutes: request.IntervalMinutes,
	}
	newFeed.ScheduleRule = feed.RuleName(newFeed.ID)

	if err := controller.store.Create(controller.db, newFeed); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if err := controller.scheduler.UpsertRule(newFeed); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("Feed saved but scheduling failed: %v", err))
	}

	return ec.JSON(http.StatusCreated, NewDto(newFeed))
}

func (controller *Controller) list(ec echo.Context) error {
	records, err := controller.store.GetAll(controller.db)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ec.JSON(http.StatusOK, util.ApplyConversion(records, NewDto))
}

func (controller *Controller) get(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Feed ID is not a valid UUID")
	}

	record, err := controller.store.Get(controller.db, id)
	if err != nil {
		if errors.Is(err, feed.ErrFeedNotFound) {
			return echo.ErrNotFound
		}

		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ec.JSON(http.StatusOK, NewDto(record))
}

// update applies a partial update to a feed and re-installs its polling
// rule so an interval change takes effect without waiting for the old
// timer to fire.
func (controller *Controller) update(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Feed ID is not a valid UUID")
	}

	var request updateRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := controller.validate.Struct(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	record, err := controller.store.Get(controller.db, id)
	if err != nil {
		if errors.Is(err, feed.ErrFeedNotFound) {
			return echo.ErrNotFound
		}

		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	record.Name = util.NotNilOrDefault(request.Name, record.Name)
	record.URL = util.NotNilOrDefault(request.Url, record.URL)
	record.IntervalMinutes = util.NotNilOrDefault(request.IntervalMinutes, record.IntervalMinutes)

	if err := controller.store.Update(controller.db, record); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if err := controller.scheduler.UpsertRule(record); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("Feed saved but scheduling failed: %v", err))
	}

	return ec.JSON(http.StatusOK, NewDto(record))
}

// delete removes a feed and tears down its polling rule. Videos already
// ingested from the feed are kept.
func (controller *Controller) delete(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Feed ID is not a valid UUID")
	}

	if err := controller.store.Delete(controller.db, id); err != nil {
		if errors.Is(err, feed.ErrFeedNotFound) {
			return echo.ErrNotFound
		}

		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	controller.scheduler.RemoveRule(id)

	return ec.NoContent(http.StatusNoContent)
}

func NewDto(record *feed.Feed) *Dto {
	return &Dto{
		Id:              record.ID,
		Name:            record.Name,
		Url:             record.URL,
		IntervalMinutes: record.IntervalMinutes,
		ScheduleRule:    record.ScheduleRule,
		LastPolled:      record.LastPolled,
		CreatedAt:       record.CreatedAt,
		UpdatedAt:       record.UpdatedAt,
	}
}
