package server

import (
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mtesseract/rustberry/rfid"
)

// WebSocket message types on the event feed.
const (
	WSMessageTypeTagPresent = "tagPresent"
	WSMessageTypeTagAbsent  = "tagAbsent"
	WSMessageTypeMode       = "mode"
)

// FeedMessage is one message on the event feed.
type FeedMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// EventFeed fans watcher events out to WebSocket clients. Multiple clients
// are allowed; a late joiner receives the last tag message so it starts with
// the current presence state.
type EventFeed struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*websocket.Conn]string // conn -> clientID
	lastTag *FeedMessage
}

// NewEventFeed creates an event feed with no clients.
func NewEventFeed() *EventFeed {
	return &EventFeed{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*websocket.Conn]string),
	}
}

// clientCount returns the number of connected clients.
func (f *EventFeed) clientCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// PublishTagEvent broadcasts a watcher event to all connected clients.
func (f *EventFeed) PublishTagEvent(ev rfid.Event) {
	msg := &FeedMessage{Type: WSMessageTypeTagAbsent}
	if ev.Kind == rfid.TagPresent {
		msg = &FeedMessage{
			Type: WSMessageTypeTagPresent,
			Payload: map[string]any{
				"uid":     ev.UID,
				"request": ev.Request,
			},
		}
	}
	f.mu.Lock()
	f.lastTag = msg
	f.broadcastLocked(msg)
	f.mu.Unlock()
}

// PublishMode broadcasts a mode change to all connected clients.
func (f *EventFeed) PublishMode(mode Mode) {
	msg := &FeedMessage{Type: WSMessageTypeMode, Payload: map[string]any{"mode": mode}}
	f.mu.Lock()
	f.broadcastLocked(msg)
	f.mu.Unlock()
}

func (f *EventFeed) broadcastLocked(msg *FeedMessage) {
	for conn, clientID := range f.clients {
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("WebSocket write to %s failed: %v", clientID[:8], err)
			conn.Close()
			delete(f.clients, conn)
		}
	}
}

// CloseAll closes all client connections.
func (f *EventFeed) CloseAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for conn := range f.clients {
		conn.Close()
		delete(f.clients, conn)
	}
}

// HandleWebSocket upgrades the connection and keeps it registered until the
// client disconnects.
func (f *EventFeed) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	clientID := uuid.New().String()

	f.mu.Lock()
	f.clients[conn] = clientID
	lastTag := f.lastTag
	f.mu.Unlock()

	log.Printf("Event feed client connected: %s (total: %d)", clientID[:8], f.clientCount())

	if lastTag != nil {
		if err := conn.WriteJSON(lastTag); err != nil {
			log.Printf("Failed to send state to %s: %v", clientID[:8], err)
		}
	}

	defer func() {
		conn.Close()
		f.mu.Lock()
		delete(f.clients, conn)
		f.mu.Unlock()
		log.Printf("Event feed client disconnected: %s (total: %d)", clientID[:8], f.clientCount())
	}()

	// The feed is one-way; drain control frames until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			return
		}
	}
}
