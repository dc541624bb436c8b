package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/webflix/webflix/pkg/logger"
)

var socketLogger = logger.Get("ActivitySocket")

const socketWriteTimeout = time.Second * 10

type (
	// SocketMessage is the envelope pushed to every connected activity
	// client.
	SocketMessage struct {
		Title string         `json:"title"`
		Body  map[string]any `json:"arguments"`
	}

	socketClient struct {
		id   uuid.UUID
		conn *websocket.Conn
		send chan *SocketMessage
	}

	// socketHub fans activity messages out to all connected websocket
	// clients. Slow clients are disconnected rather than allowed to
	// block the broadcast path.
	socketHub struct {
		*sync.Mutex
		upgrader *websocket.Upgrader
		clients  map[uuid.UUID]*socketClient
	}
)

func newSocketHub() *socketHub {
	return &socketHub{
		Mutex: &sync.Mutex{},
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[uuid.UUID]*socketClient),
	}
}

// UpgradeToSocket upgrades the provided HTTP exchange to a websocket
// connection and registers the resulting client with the hub.
func (hub *socketHub) UpgradeToSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		socketLogger.Emit(logger.ERROR, "Failed to upgrade connection: %v\n", err)
		return
	}

	client := &socketClient{id: uuid.New(), conn: conn, send: make(chan *SocketMessage, 16)}

	hub.Lock()
	hub.clients[client.id] = client
	hub.Unlock()
	socketLogger.Emit(logger.NEW, "Registered new client {%v}\n", client.id)

	go hub.writePump(client)
	go hub.readPump(client)
}

// Send broadcasts the provided message to every connected client. A
// client whose buffer is full is dropped.
func (hub *socketHub) Send(message *SocketMessage) {
	hub.Lock()
	defer hub.Unlock()

	for _, client := range hub.clients {
		select {
		case client.send <- message:
		default:
			socketLogger.Emit(logger.WARNING, "Client {%v} cannot keep up, disconnecting\n", client.id)
			hub.removeLocked(client)
		}
	}
}

// Close disconnects all clients; used when the gateway shuts down.
func (hub *socketHub) Close(ctx context.Context) {
	hub.Lock()
	defer hub.Unlock()

	for _, client := range hub.clients {
		hub.removeLocked(client)
	}
}

func (hub *socketHub) writePump(client *socketClient) {
	for message := range client.send {
		_ = client.conn.SetWriteDeadline(time.Now().Add(socketWriteTimeout))
		if err := client.conn.WriteJSON(message); err != nil {
			socketLogger.Emit(logger.WARNING, "Failed to write to client {%v}: %v\n", client.id, err)
			hub.remove(client)
			return
		}
	}
}

// readPump drains (and discards) client messages so connection-level
// control frames are processed, and detects disconnects.
func (hub *socketHub) readPump(client *socketClient) {
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			socketLogger.Emit(logger.REMOVE, "Client {%v} disconnected\n", client.id)
			hub.remove(client)
			return
		}
	}
}

func (hub *socketHub) remove(client *socketClient) {
	hub.Lock()
	defer hub.Unlock()
	hub.removeLocked(client)
}

func (hub *socketHub) removeLocked(client *socketClient) {
	if _, ok := hub.clients[client.id]; !ok {
		return
	}

	delete(hub.clients, client.id)
	close(client.send)
	_ = client.conn.Close()
}
