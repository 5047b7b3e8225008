package services

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/aeras-mobility/aeras-backend/internal/models"
	"github.com/aeras-mobility/aeras-backend/internal/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// Client represents a WebSocket client
type Client struct {
	ID   uint
	Role string
	Conn *websocket.Conn
	Send chan []byte
	Hub  *Hub
}

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			log.Printf("Client %d (%s) connected", client.ID, client.Role)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mutex.Unlock()
			log.Printf("Client %d (%s) disconnected", client.ID, client.Role)
		}
	}
}

// BroadcastToUser sends a message to one connected account.
func (h *Hub) BroadcastToUser(role string, userID uint, message []byte) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.clients {
		if client.ID == userID && client.Role == role {
			select {
			case client.Send <- message:
			default:
				log.Printf("Warning: could not send to client %d (channel full)", client.ID)
			}
		}
	}
}

// BroadcastToRole sends a message to all connected accounts of one role.
func (h *Hub) BroadcastToRole(role string, message []byte) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.clients {
		if client.Role == role {
			select {
			case client.Send <- message:
			default:
				log.Printf("Warning: could not send to client %d (channel full)", client.ID)
			}
		}
	}
}

// GetConnectedClients returns the number of connected clients
func (h *Hub) GetConnectedClients() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// WebSocketMessage is the envelope for all hub traffic.
type WebSocketMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// HandleWebSocket handles WebSocket connections
func HandleWebSocket(hub *Hub, w http.ResponseWriter, r *http.Request, userID uint, role string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{
		ID:   userID,
		Role: role,
		Conn: conn,
		Send: make(chan []byte, 256),
		Hub:  hub,
	}

	client.Hub.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump drains the connection so pings and closes are processed.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	defer c.Conn.Close()

	for message := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("WebSocket write error: %v", err)
			return
		}
	}
	c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// RunFeedForwarder mirrors the ride change feed onto live websocket
// sessions: new REQUESTED rides fan out to every connected puller, and
// status updates go to the parties on the ride. Runs until ctx is cancelled.
func RunFeedForwarder(ctx context.Context, feed store.ChangeFeed, hub *Hub) error {
	events, err := feed.Subscribe(ctx)
	if err != nil {
		return err
	}
	for ev := range events {
		switch ev.Kind {
		case store.EventInsert:
			if ev.New.Status != models.RideStatusRequested {
				continue
			}
			msg, err := json.Marshal(WebSocketMessage{
				Type: "ride_request",
				Data: ev.New,
			})
			if err == nil {
				hub.BroadcastToRole(models.RolePuller, msg)
			}
		case store.EventUpdate:
			msg, err := json.Marshal(WebSocketMessage{
				Type: "ride_status_update",
				Data: map[string]interface{}{
					"rideId": ev.New.ID,
					"status": ev.New.Status,
				},
			})
			if err != nil {
				continue
			}
			if ev.New.PassengerID != nil {
				hub.BroadcastToUser(models.RolePassenger, *ev.New.PassengerID, msg)
			}
			if ev.New.PullerID != nil {
				hub.BroadcastToUser(models.RolePuller, *ev.New.PullerID, msg)
			}
		}
	}
	return ctx.Err()
}
