package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"airtouch/internal/engine"
	"airtouch/internal/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The server binds to loopback by default; the token guards the rest.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSManager handles WebSocket connections and broadcasting
type WSManager struct {
	server     *Server
	clients    map[*WebSocketClient]bool
	clientsMu  sync.Mutex
	broadcast  chan protocol.Message
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	done       chan struct{}
}

// WebSocketClient represents a connected status listener
type WebSocketClient struct {
	manager *WSManager
	conn    *websocket.Conn
	send    chan []byte
	ip      string
}

func newWSManager(s *Server) *WSManager {
	return &WSManager{
		server:     s,
		clients:    make(map[*WebSocketClient]bool),
		broadcast:  make(chan protocol.Message, 64),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		done:       make(chan struct{}),
	}
}

func (m *WSManager) start(ctx context.Context) {
	defer close(m.done)
	log := m.server.log
	for {
		select {
		case client := <-m.register:
			m.clientsMu.Lock()
			m.clients[client] = true
			n := len(m.clients)
			m.clientsMu.Unlock()
			log.Info("Websocket client registered", zap.String("remote", client.ip), zap.Int("clients", n))

			// New clients start from the current state.
			m.sendTo(client, protocol.Message{Type: protocol.TypeStatus, Payload: m.server.status.Status()})

		case client := <-m.unregister:
			m.clientsMu.Lock()
			if _, ok := m.clients[client]; ok {
				delete(m.clients, client)
				close(client.send)
				log.Info("Websocket client unregistered", zap.String("remote", client.ip), zap.Int("clients", len(m.clients)))
			}
			m.clientsMu.Unlock()

		case message := <-m.broadcast:
			m.broadcastMessage(message)

		case <-ctx.Done():
			m.clientsMu.Lock()
			for client := range m.clients {
				delete(m.clients, client)
				close(client.send)
			}
			m.clientsMu.Unlock()
			return
		}
	}
}

func (m *WSManager) sendTo(client *WebSocketClient, message protocol.Message) {
	jsonMsg, err := json.Marshal(message)
	if err != nil {
		m.server.log.Warn("Failed to marshal message", zap.Error(err))
		return
	}
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()
	if _, ok := m.clients[client]; !ok {
		return
	}
	select {
	case client.send <- jsonMsg:
	default:
		close(client.send)
		delete(m.clients, client)
	}
}

func (m *WSManager) broadcastMessage(message protocol.Message) {
	jsonMsg, err := json.Marshal(message)
	if err != nil {
		m.server.log.Warn("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()

	for client := range m.clients {
		select {
		case client.send <- jsonMsg:
		default:
			// Slow client: drop it rather than stall everyone else.
			close(client.send)
			delete(m.clients, client)
		}
	}
}

func (m *WSManager) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.server.log.Warn("Failed to upgrade connection", zap.Error(err))
		return
	}

	client := &WebSocketClient{
		manager: m,
		conn:    conn,
		send:    make(chan []byte, 256),
		ip:      r.RemoteAddr,
	}

	// Register client
	select {
	case m.register <- client:
	case <-m.done:
		conn.Close()
		return
	}

	// Start pump goroutines
	go client.writePump()
	go client.readPump()
}

// readPump pumps messages from the websocket connection to the hub.
func (c *WebSocketClient) readPump() {
	defer func() {
		select {
		case c.manager.unregister <- c:
		case <-c.manager.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.manager.server.log.Debug("Websocket read error", zap.Error(err))
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(50 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WebSocketClient) handleMessage(data []byte) {
	log := c.manager.server.log

	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Debug("Invalid websocket message", zap.Error(err))
		return
	}

	switch msg.Type {
	case protocol.TypePause:
		var payload protocol.PausePayload
		jsonBytes, _ := json.Marshal(msg.Payload)
		if err := json.Unmarshal(jsonBytes, &payload); err != nil {
			log.Debug("Invalid pause payload", zap.Error(err))
			return
		}
		log.Info("Pause requested over websocket", zap.Bool("paused", payload.Paused), zap.String("remote", c.ip))
		if p := c.manager.server.pause; p != nil {
			p(payload.Paused)
		}

	case protocol.TypePing:
		c.manager.sendTo(c, protocol.Message{Type: protocol.TypePing})
	}
}

// enqueue hands a message to the hub without blocking the caller. The frame
// loop calls this, so a backed up hub drops messages.
func (m *WSManager) enqueue(msg protocol.Message) {
	select {
	case m.broadcast <- msg:
	default:
		m.server.log.Debug("Dropping broadcast, hub busy", zap.String("type", string(msg.Type)))
	}
}

// BroadcastStatus queues a status snapshot for every client.
func (m *WSManager) BroadcastStatus(st engine.Status) {
	m.enqueue(protocol.Message{Type: protocol.TypeStatus, Payload: st})
}

// BroadcastKeyboardToggle queues a keyboard toggle event for every client.
func (m *WSManager) BroadcastKeyboardToggle(session string, count uint64) {
	m.enqueue(protocol.Message{
		Type:    protocol.TypeKeyboardToggle,
		Payload: protocol.KeyboardTogglePayload{Session: session, Count: count},
	})
}
