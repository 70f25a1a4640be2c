package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/metagame/metagame/go/internal/models"
	"github.com/rs/zerolog/log"
)

// ConnectionManager tracks websocket clients per timer and fans events out to them
type ConnectionManager struct {
	timerConnections map[string]map[*Connection]bool
	mu               sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	clock    clockwork.Clock

	broadcastCh chan BroadcastMessage
}

// Connection is one websocket client watching a single timer
type Connection struct {
	ID        string
	TimerName string
	// Team is the side the client plays for; TeamNone for spectators
	Team    models.Team
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time

	// Broadcasts wait in pending until the snapshot has been queued
	mu      sync.Mutex
	ready   bool
	pending [][]byte
}

// ConnectionConfig holds websocket tuning
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage is an event queued for every client of a timer
type BroadcastMessage struct {
	TimerName string
	Event     *TimerEvent
}

// ConnectionStats is the body served by /ws/stats
type ConnectionStats struct {
	TotalConnections int                       `json:"total_connections"`
	ActiveTimers     int                       `json:"active_timers"`
	TimerConnections map[string]int            `json:"timer_connections"`
	TeamConnections  map[string]map[string]int `json:"team_connections"`
}

// DefaultConnectionConfig returns the default websocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  64,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a connection manager
func NewConnectionManager(config ConnectionConfig, clock clockwork.Clock) *ConnectionManager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = DefaultConnectionConfig().SendBufferSize
	}
	return &ConnectionManager{
		timerConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		clock:       clock,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start processes queued broadcasts until ctx is done
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

// SnapshotFunc loads the event a client reads before any broadcast
type SnapshotFunc func(ctx context.Context) (*TimerEvent, error)

// UpgradeConnection upgrades the request and registers the client, then
// loads its snapshot. Broadcasts that arrive while the snapshot loads are
// held on the connection and sent after it, so the snapshot is always the
// first message and no event committed after it is missed.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, timerName string, team models.Team, snapshot SnapshotFunc) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		TimerName:   timerName,
		Team:        team,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: cm.clock.Now(),
	}

	cm.registerConnection(connection)

	if err := cm.sendSnapshot(r.Context(), connection, snapshot); err != nil {
		cm.unregisterConnection(connection)
		conn.Close()
		return err
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("timer", timerName).
		Str("team", team.String()).
		Msg("websocket connection established")

	return nil
}

func (cm *ConnectionManager) sendSnapshot(ctx context.Context, conn *Connection, snapshot SnapshotFunc) error {
	var data []byte
	if snapshot != nil {
		event, err := snapshot(ctx)
		if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		data, err = json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()
	conn.mu.Lock()
	defer conn.mu.Unlock()

	if !cm.timerConnections[conn.TimerName][conn] {
		return fmt.Errorf("connection %s closed before snapshot", conn.ID)
	}
	queued := conn.pending
	if data != nil {
		queued = append([][]byte{data}, queued...)
	}
	if len(queued) > cap(conn.Send) {
		return fmt.Errorf("connection %s fell %d events behind before snapshot", conn.ID, len(queued))
	}
	for _, message := range queued {
		conn.Send <- message
	}
	conn.pending = nil
	conn.ready = true
	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.timerConnections[conn.TimerName] == nil {
		cm.timerConnections[conn.TimerName] = make(map[*Connection]bool)
	}
	cm.timerConnections[conn.TimerName][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("timer", conn.TimerName).
		Int("total_connections", len(cm.timerConnections[conn.TimerName])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, exists := cm.timerConnections[conn.TimerName]
	if !exists {
		return
	}
	if _, exists := connections[conn]; !exists {
		return
	}

	delete(connections, conn)
	close(conn.Send)
	if len(connections) == 0 {
		delete(cm.timerConnections, conn.TimerName)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("timer", conn.TimerName).
		Msg("connection unregistered")
}

// BroadcastToTimer queues an event for every client watching timerName.
// Returns false when the queue is full and the event was dropped.
func (cm *ConnectionManager) BroadcastToTimer(timerName string, event *TimerEvent) bool {
	select {
	case cm.broadcastCh <- BroadcastMessage{TimerName: timerName, Event: event}:
		return true
	default:
		log.Warn().Str("timer", timerName).Msg("broadcast channel full, dropping message")
		return false
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	cm.mu.RLock()
	connections, exists := cm.timerConnections[message.TimerName]
	if !exists {
		cm.mu.RUnlock()
		return
	}
	targets := make([]*Connection, 0, len(connections))
	for conn := range connections {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, conn := range targets {
		if !cm.enqueue(conn, eventData) {
			log.Warn().
				Str("connection_id", conn.ID).
				Str("timer", conn.TimerName).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("timer", message.TimerName).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// enqueue holds the read lock so Send cannot be closed underneath the write
func (cm *ConnectionManager) enqueue(conn *Connection, data []byte) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if !cm.timerConnections[conn.TimerName][conn] {
		return true
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if !conn.ready {
		if len(conn.pending) >= cap(conn.Send) {
			return false
		}
		conn.pending = append(conn.pending, data)
		return true
	}
	select {
	case conn.Send <- data:
		return true
	default:
		return false
	}
}

// GetConnectionStats returns counts of active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		ActiveTimers:     len(cm.timerConnections),
		TimerConnections: make(map[string]int, len(cm.timerConnections)),
		TeamConnections:  make(map[string]map[string]int, len(cm.timerConnections)),
	}
	for name, connections := range cm.timerConnections {
		stats.TotalConnections += len(connections)
		stats.TimerConnections[name] = len(connections)

		teams := make(map[string]int)
		for conn := range connections {
			teams[conn.Team.String()]++
		}
		stats.TeamConnections[name] = teams
	}
	return stats
}

func (c *Connection) writePump() {
	ticker := c.Manager.clock.NewTicker(c.Manager.config.PingInterval)
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
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message to websocket")
				return
			}

		case <-ticker.Chan():
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump only drains control frames; clients never send commands here
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected websocket close error")
			}
			return
		}

		log.Debug().
			Str("connection_id", c.ID).
			Int("bytes", len(message)).
			Msg("ignoring client message")
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
