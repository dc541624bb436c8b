package api

import (
	"context"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/webflix/webflix/internal/api/callbacks"
	"github.com/webflix/webflix/internal/api/feeds"
	"github.com/webflix/webflix/internal/api/uploads"
	"github.com/webflix/webflix/internal/api/videos"
	"github.com/webflix/webflix/internal/database"
	"github.com/webflix/webflix/internal/event"
	"github.com/webflix/webflix/pkg/logger"
)

var log = logger.Get("API")

type (
	RestConfig struct {
		HostAddr string `yaml:"host_address" env:"API_HOST_ADDR" env-default:"0.0.0.0:8080"`
	}

	controller interface {
		SetRoutes(*echo.Group)
	}

	// videoStore represents a union of the video-centric controller store requirements
	videoStore interface {
		videos.Store
		callbacks.Store
	}

	// The RestGateway is a thin-wrapper around the Echo HTTP router. It's sole
	// responsibility is to create the routes Webflix exposes, manage ongoing
	// web socket connections, and push pipeline activity to clients.
	RestGateway struct {
		*broadcaster
		config             *RestConfig
		ec                 *echo.Echo
		socket             *socketHub
		feedController     controller
		videoController    controller
		uploadController   controller
		callbackController controller
	}
)

// NewRestGateway constructs the Echo router and populates it with all the
// routes defined by the various controllers.
func NewRestGateway(
	config *RestConfig,
	db database.Queryable,
	store videoStore,
	feedStore feeds.Store,
	scheduler feeds.Scheduler,
	signer uploads.Signer,
	eventBus event.EventCoordinator,
) *RestGateway {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true

	validate := validator.New()
	socket := newSocketHub()
	gateway := &RestGateway{
		broadcaster:        newBroadcaster(socket, db, store, eventBus),
		config:             config,
		ec:                 ec,
		socket:             socket,
		feedController:     feeds.New(validate, db, feedStore, scheduler),
		videoController:    videos.New(db, store),
		uploadController:   uploads.New(signer),
		callbackController: callbacks.New(db, store, eventBus),
	}

	ec.Use(middleware.Logger())
	ec.Use(middleware.Recover())
	ec.Pre(middleware.AddTrailingSlash())

	ec.GET("/api/webflix/v1/activity/ws/", func(ec echo.Context) error {
		gateway.socket.UpgradeToSocket(ec.Response(), ec.Request())
		return nil
	})

	feedGroup := ec.Group("/api/webflix/v1/feeds")
	gateway.feedController.SetRoutes(feedGroup)

	videoGroup := ec.Group("/api/webflix/v1/videos")
	gateway.videoController.SetRoutes(videoGroup)

	uploadGroup := ec.Group("/api/webflix/v1/presign-upload")
	gateway.uploadController.SetRoutes(uploadGroup)

	callbackGroup := ec.Group("/api/webflix/v1/callbacks")
	gateway.callbackController.SetRoutes(callbackGroup)

	return gateway
}

func (gateway *RestGateway) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	wg := &sync.WaitGroup{}

	// Start echo router
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gateway.ec.Start(gateway.config.HostAddr); err != nil {
			ctxCancel(err)
		}
	}()

	// Start thread to listen for context cancellation
	go func(ec *echo.Echo) {
		<-ctx.Done()
		ec.Close()
		gateway.socket.Close(ctx)
	}(gateway.ec)

	// Start activity broadcaster
	wg.Add(1)
	go func() {
		defer wg.Done()
		gateway.broadcaster.run(ctx)
	}()

	wg.Wait()

	// Return cancellation cause if any, otherwise nil as parent context
	// cancellation is not an error case we should report.
	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}
