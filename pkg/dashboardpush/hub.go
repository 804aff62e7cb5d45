// Package dashboardpush implements the optional websocket fan-out of
// freshly assembled agent.context.v1 records to connected dashboard
// clients. Grounded on the teacher's pkg/events/manager.go
// ConnectionManager: same registration/broadcast shape, simplified to a
// single implicit channel since every dashboard client wants every
// published context update rather than per-channel subscriptions.
package dashboardpush

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/contextengine/pkg/models"
)

const defaultWriteTimeout = 5 * time.Second

// connection is a single connected dashboard client.
type connection struct {
	id     string
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// Hub tracks connected dashboard clients and broadcasts assembled context
// updates to all of them. One Hub per process, matching the teacher's one
// ConnectionManager per pod.
type Hub struct {
	mu           sync.RWMutex
	connections  map[string]*connection
	writeTimeout time.Duration
	logger       *slog.Logger
}

// New constructs a Hub. logger defaults to slog.Default() when nil.
func New(writeTimeout time.Duration, logger *slog.Logger) *Hub {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{connections: make(map[string]*connection), writeTimeout: writeTimeout, logger: logger}
}

// HandleConnection manages one dashboard client's connection lifecycle.
// Called by the websocket HTTP handler after upgrade; blocks until the
// connection closes (the client has nothing to send us, so the read loop
// only exists to detect disconnects and respond to pings).
func (h *Hub) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &connection{id: uuid.NewString(), conn: conn, ctx: ctx, cancel: cancel}

	h.register(c)
	defer h.unregister(c)

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

// PublishedContext is the payload pushed to dashboard clients on every
// successful context-assembly publish (§4.7 step 8).
type PublishedContext struct {
	ConsumerID  string                  `json:"consumer_id"`
	Session     string                  `json:"session"`
	Context     models.AssembledContext `json:"context"`
	PublishedAt time.Time               `json:"published_at"`
}

// Broadcast sends an assembled context update to every connected client.
// Failures on individual connections are logged and never block delivery
// to the others, mirroring the teacher's Broadcast isolation.
func (h *Hub) Broadcast(update PublishedContext) {
	payload, err := json.Marshal(update)
	if err != nil {
		h.logger.Error("marshal dashboard push payload", "error", err)
		return
	}

	h.mu.RLock()
	conns := make([]*connection, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := h.send(c, payload); err != nil {
			h.logger.Warn("dashboard push failed", "connection_id", c.id, "error", err)
		}
	}
}

// NotifyPublish matches pkg/assembler.PublishNotifier's signature, letting
// callers wire a Hub straight into an Assembler via
// assembler.SetPublishNotifier(hub.NotifyPublish).
func (h *Hub) NotifyPublish(consumerID, session string, payload models.AssembledContext) {
	h.Broadcast(PublishedContext{ConsumerID: consumerID, Session: session, Context: payload, PublishedAt: time.Now()})
}

// ActiveConnections reports the number of connected dashboard clients, for
// the debug/admin stats endpoint.
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

func (h *Hub) register(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c.id] = c
}

func (h *Hub) unregister(c *connection) {
	h.mu.Lock()
	delete(h.connections, c.id)
	h.mu.Unlock()

	c.cancel()
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Hub) send(c *connection, data []byte) error {
	ctx, cancel := context.WithTimeout(c.ctx, h.writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, data)
}
