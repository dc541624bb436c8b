package api

import (
	"context"

	"github.com/google/uuid"
	"github.com/webflix/webflix/internal/api/videos"
	"github.com/webflix/webflix/internal/database"
	"github.com/webflix/webflix/internal/event"
	"github.com/webflix/webflix/internal/video"
	"github.com/webflix/webflix/pkg/logger"
)

const (
	titleVideoUpdate = "VIDEO_UPDATE"
	titleFeedPolled  = "FEED_POLLED"
)

type (
	videoLookup interface {
		Get(database.Queryable, uuid.UUID) (*video.Video, error)
	}

	// broadcaster bridges the internal event bus to the activity
	// websocket: pipeline progress is pushed to connected clients as it
	// happens.
	broadcaster struct {
		socketHub *socketHub
		db        database.Queryable
		videos    videoLookup
		eventBus  event.EventHandler
	}
)

func newBroadcaster(socketHub *socketHub, db database.Queryable, videos videoLookup, eventBus event.EventHandler) *broadcaster {
	return &broadcaster{socketHub, db, videos, eventBus}
}

// run drains the event bus in to the socket hub until the context is
// cancelled.
func (hub *broadcaster) run(ctx context.Context) {
	activity := make(event.HandlerChannel, 32)
	hub.eventBus.RegisterHandlerChannel(activity,
		event.VideoCreatedEvent, event.VideoSubmittedEvent, event.VideoStatusEvent, event.FeedPolledEvent)

	for {
		select {
		case message := <-activity:
			subjectID, ok := message.Payload.(uuid.UUID)
			if !ok {
				log.Emit(logger.ERROR, "Illegal payload %#v for %s event\n", message.Payload, message.Event)
				continue
			}

			hub.broadcastActivity(message.Event, subjectID)
		case <-ctx.Done():
			return
		}
	}
}

func (hub *broadcaster) broadcastActivity(activityEvent event.Event, subjectID uuid.UUID) {
	if activityEvent == event.FeedPolledEvent {
		hub.broadcast(titleFeedPolled, map[string]any{"feed_id": subjectID})
		return
	}

	subject, err := hub.videos.Get(hub.db, subjectID)
	if err != nil {
		log.Emit(logger.WARNING, "Dropping %s activity for video %s: %v\n", activityEvent, subjectID, err)
		return
	}

	hub.broadcast(titleVideoUpdate, map[string]any{"video_id": subjectID, "video": videos.NewDto(subject)})
}

func (hub *broadcaster) broadcast(title string, arguments map[string]any) {
	hub.socketHub.Send(&SocketMessage{Title: title, Body: arguments})
}
