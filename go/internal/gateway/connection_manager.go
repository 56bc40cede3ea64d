package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/oscelab/simcore/go/internal/session"
)

// ConnectionManager owns the WebSocket connections of every session and
// implements session.EventSink: rooms publish events here and the
// manager fans them out to the right session's pool, and only that one.
type ConnectionManager struct {
	sessionConns map[string]map[*Connection]bool
	mu           sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan broadcastMessage
}

// Connection is one participant's WebSocket link to a session.
type Connection struct {
	ID            string
	ParticipantID string
	SessionID     string
	Room          *session.Room
	Conn          *websocket.Conn
	Send          chan []byte
	Manager       *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds the WebSocket tunables.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// broadcastMessage routes one event to a session pool. When TargetConnID
// is set only that connection receives it; ExcludeConnID skips one.
type broadcastMessage struct {
	SessionID     string
	Event         *session.Event
	TargetConnID  string
	ExcludeConnID string
}

// DefaultConnectionConfig returns the production defaults.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a WebSocket connection manager.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		sessionConns: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcastMessage, 1000),
	}
}

// Start processes broadcast messages until the context is cancelled.
// A single consumer goroutine preserves per-source event order.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// Publish implements session.EventSink.
func (cm *ConnectionManager) Publish(sessionID string, event *session.Event) {
	cm.enqueue(broadcastMessage{SessionID: sessionID, Event: event})
}

// PublishTo implements session.EventSink.
func (cm *ConnectionManager) PublishTo(sessionID, connectionID string, event *session.Event) {
	cm.enqueue(broadcastMessage{SessionID: sessionID, Event: event, TargetConnID: connectionID})
}

// PublishExcept implements session.EventSink.
func (cm *ConnectionManager) PublishExcept(sessionID, connectionID string, event *session.Event) {
	cm.enqueue(broadcastMessage{SessionID: sessionID, Event: event, ExcludeConnID: connectionID})
}

func (cm *ConnectionManager) enqueue(message broadcastMessage) {
	select {
	case cm.broadcastCh <- message:
	default:
		// Dropping loses the event for the whole session; participants
		// stay out of sync until their next snapshot. A reconnect always
		// yields a fresh one.
		log.Warn().
			Str("session_id", message.SessionID).
			Str("event_type", string(message.Event.Type)).
			Msg("broadcast channel full, dropping message")
	}
}

// Admit upgrades the HTTP request and joins the connection to the room.
// The caller has already validated the handshake against the registry.
func (cm *ConnectionManager) Admit(w http.ResponseWriter, r *http.Request, room *session.Room, hs Handshake) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	connection := &Connection{
		ID:            uuid.New().String(),
		ParticipantID: hs.ParticipantID,
		SessionID:     room.ID(),
		Room:          room,
		Conn:          conn,
		Send:          make(chan []byte, 256),
		Manager:       cm,
		ConnectedAt:   time.Now(),
		LastPing:      time.Now(),
	}

	// Register before joining so the snapshot published by the room
	// finds the connection in the pool.
	cm.registerConnection(connection)

	res, err := room.Join(session.JoinRequest{
		ParticipantID: hs.ParticipantID,
		ConnectionID:  connection.ID,
		Role:          hs.Role,
		Nickname:      hs.Nickname,
	})
	if err != nil {
		cm.unregisterConnection(connection)
		conn.Close()
		return err
	}

	if res.ReplacedConnectionID != "" {
		cm.closeConnection(room.ID(), res.ReplacedConnectionID)
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("participant_id", hs.ParticipantID).
		Str("session_id", room.ID()).
		Bool("reconnected", res.Reconnected).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.sessionConns[conn.SessionID] == nil {
		cm.sessionConns[conn.SessionID] = make(map[*Connection]bool)
	}
	cm.sessionConns[conn.SessionID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("session_id", conn.SessionID).
		Int("total_connections", len(cm.sessionConns[conn.SessionID])).
		Msg("connection registered")
}

// unregisterConnection removes a connection from the pool and reports
// the disconnect to the room exactly once.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	connections, exists := cm.sessionConns[conn.SessionID]
	removed := false
	if exists {
		if _, ok := connections[conn]; ok {
			delete(connections, conn)
			close(conn.Send)
			removed = true
			if len(connections) == 0 {
				delete(cm.sessionConns, conn.SessionID)
			}
		}
	}
	cm.mu.Unlock()

	if !removed {
		return
	}

	conn.Room.Disconnect(conn.ParticipantID, conn.ID)
	log.Info().
		Str("connection_id", conn.ID).
		Str("participant_id", conn.ParticipantID).
		Str("session_id", conn.SessionID).
		Msg("connection unregistered")
}

// closeConnection closes a specific connection of a session, used when a
// participant's new connection replaces an old one.
func (cm *ConnectionManager) closeConnection(sessionID, connectionID string) {
	cm.mu.RLock()
	var target *Connection
	for conn := range cm.sessionConns[sessionID] {
		if conn.ID == connectionID {
			target = conn
			break
		}
	}
	cm.mu.RUnlock()

	if target != nil {
		target.Conn.Close()
	}
}

func (cm *ConnectionManager) handleBroadcast(message broadcastMessage) {
	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	// Sends happen under the read lock and Send is only closed under the
	// write lock (unregisterConnection), so a disconnect racing with a
	// broadcast can never close the channel mid-send.
	cm.mu.RLock()
	connections, exists := cm.sessionConns[message.SessionID]
	if !exists {
		cm.mu.RUnlock()
		return
	}

	delivered := 0
	var dead []*Connection
	for conn := range connections {
		if message.TargetConnID != "" && conn.ID != message.TargetConnID {
			continue
		}
		if message.ExcludeConnID != "" && conn.ID == message.ExcludeConnID {
			continue
		}
		select {
		case conn.Send <- eventData:
			delivered++
		default:
			dead = append(dead, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range dead {
		// Connection is slow or dead; drop it and let the room's
		// tolerance monitor take over.
		log.Warn().
			Str("connection_id", conn.ID).
			Str("participant_id", conn.ParticipantID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("session_id", message.SessionID).
		Int("connections", delivered).
		Msg("event broadcasted")
}

// Stats reports active connection counts per session.
func (cm *ConnectionManager) Stats() (totalConnections int, activeSessions int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	for _, connections := range cm.sessionConns {
		totalConnections += len(connections)
	}
	return totalConnections, len(cm.sessionConns)
}

// writePump sends outbound events and pings until the connection dies.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump decodes inbound commands and submits them to the room.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage decodes one inbound message. Malformed commands
// are answered with a sender-only rejection ack, never a broadcast.
func (c *Connection) handleClientMessage(message []byte) {
	cmd, err := session.DecodeClientCommand(message)
	if err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Str("participant_id", c.ParticipantID).
			Msg("rejected malformed client command")

		ack := session.NewEvent(c.SessionID, session.EventTypeCommandAck, time.Now(), session.CommandAckPayload{
			Command: "unknown",
			Applied: false,
			Reason:  "malformed command",
		})
		// Through the broadcast path so the send obeys its locking.
		c.Manager.PublishTo(c.SessionID, c.ID, ack)
		return
	}

	c.Room.Submit(session.Sender{ParticipantID: c.ParticipantID, ConnectionID: c.ID}, cmd)
}
