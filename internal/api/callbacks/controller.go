package callbacks

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/mitchellh/mapstructure"
	"github.com/webflix/webflix/internal/database"
	"github.com/webflix/webflix/internal/event"
	"github.com/webflix/webflix/internal/transcoder"
	"github.com/webflix/webflix/internal/video"
	"github.com/webflix/webflix/pkg/logger"
)

var controllerLogger = logger.Get("CallbacksController")

const (
	eventAssetReady   = "video.asset.ready"
	eventAssetErrored = "video.asset.errored"
)

type (
	// callbackEnvelope is the providers webhook shape: an event type
	// plus a loosely structured asset document.
	callbackEnvelope struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}

	assetDocument struct {
		Id          string `mapstructure:"id"`
		Passthrough string `mapstructure:"passthrough"`
		PlaybackIds []struct {
			Id     string `mapstructure:"id"`
			Policy string `mapstructure:"policy"`
		} `mapstructure:"playback_ids"`
		Errors struct {
			Messages []string `mapstructure:"messages"`
		} `mapstructure:"errors"`
	}

	Store interface {
		RecordReady(database.Queryable, uuid.UUID, string) error
		RecordError(database.Queryable, uuid.UUID) error
	}

	Controller struct {
		db       database.Queryable
		store    Store
		eventBus event.EventDispatcher
	}
)

func New(db database.Queryable, store Store, eventBus event.EventDispatcher) *Controller {
	return &Controller{db: db, store: store, eventBus: eventBus}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.POST("/transcoder/", controller.receive)
}

// receive handles the providers completion webhook. Callbacks that
// cannot be tied to one of our records are acknowledged and dropped;
// returning an error here would only make the provider retry a callback
// that can never succeed.
func (controller *Controller) receive(ec echo.Context) error {
	var envelope callbackEnvelope
	if err := ec.Bind(&envelope); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if envelope.Type != eventAssetReady && envelope.Type != eventAssetErrored {
		controllerLogger.Emit(logger.DEBUG, "Ignoring uninteresting callback type %q\n", envelope.Type)
		return ec.NoContent(http.StatusOK)
	}

	var document assetDocument
	if err := mapstructure.Decode(envelope.Data, &document); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Callback data could not be decoded")
	}

	token, err := transcoder.DecodeCorrelationToken(document.Passthrough)
	if err != nil {
		controllerLogger.Emit(logger.WARNING, "Dropping %s callback for job %s: %v\n", envelope.Type, document.Id, err)
		return ec.NoContent(http.StatusOK)
	}

	if envelope.Type == eventAssetReady {
		err = controller.recordReady(token.VideoID, document)
	} else {
		err = controller.recordError(token.VideoID, document)
	}

	if err != nil {
		if errors.Is(err, video.ErrVideoNotFound) || errors.Is(err, video.ErrInvalidTransition) {
			controllerLogger.Emit(logger.WARNING, "Dropping %s callback for video %s: %v\n", envelope.Type, token.VideoID, err)
			return ec.NoContent(http.StatusOK)
		}

		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	controller.eventBus.Dispatch(event.VideoStatusEvent, token.VideoID)

	return ec.NoContent(http.StatusOK)
}

func (controller *Controller) recordReady(videoID uuid.UUID, document assetDocument) error {
	if len(document.PlaybackIds) == 0 {
		controllerLogger.Emit(logger.WARNING, "Ready callback for video %s carries no playback IDs\n", videoID)
		return controller.store.RecordReady(controller.db, videoID, "")
	}

	return controller.store.RecordReady(controller.db, videoID, document.PlaybackIds[0].Id)
}

func (controller *Controller) recordError(videoID uuid.UUID, document assetDocument) error {
	for _, message := range document.Errors.Messages {
		controllerLogger.Emit(logger.ERROR, "Transcode of video %s failed: %s\n", videoID, message)
	}

	return controller.store.RecordError(controller.db, videoID)
}
