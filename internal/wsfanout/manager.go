// Package wsfanout implements the WebSocket Fanout: per-job connection sets
// plus a per-job subscription task that bridges the Status Channel's pub/sub
// stream to every connected client, with snapshot-then-delta catch-up on
// connect.
package wsfanout

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/deckpipe/deckpipe/internal/models"
	"github.com/deckpipe/deckpipe/internal/statuschan"
)

// clientMessage is the inbound wire shape understood from a client.
type clientMessage struct {
	Type string `json:"type"`
}

// connection is one WebSocket client subscribed to one job's updates.
type connection struct {
	id     string
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// jobFanout is the per-job state: the connection set and the subscription
// task relaying Status Channel deltas to it.
type jobFanout struct {
	conns        map[string]*connection
	subscription *statuschan.Subscription
	subCancel    context.CancelFunc
}

// Manager is the process-wide WebSocket Fanout. One Manager per process:
// readers are broadcasters, writers are connect/disconnect, and a map
// entry's conns field behaves like a read/write lock underneath mu.
type Manager struct {
	status *statuschan.Channel

	mu   sync.RWMutex
	jobs map[string]*jobFanout

	writeTimeout time.Duration
	pingInterval time.Duration
}

// New constructs a Manager. pingInterval of zero disables the protocol-level
// keepalive ping.
func New(status *statuschan.Channel, writeTimeout, pingInterval time.Duration) *Manager {
	return &Manager{
		status:       status,
		jobs:         make(map[string]*jobFanout),
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
	}
}

// HandleConnection manages one WebSocket client's lifecycle for jobID. It
// blocks until the connection closes. Call after the HTTP upgrade.
func (m *Manager) HandleConnection(parentCtx context.Context, jobID string, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &connection{id: uuid.NewString(), conn: conn, ctx: ctx, cancel: cancel}

	m.register(jobID, c)
	defer m.unregister(jobID, c)

	m.sendJSON(c, map[string]string{"type": "connection_established", "connection_id": c.id})

	if snapshot, found, err := m.status.Get(ctx, jobID); err == nil && found {
		m.sendJSON(c, snapshot)
	}

	if m.pingInterval > 0 {
		go m.keepalive(c)
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			m.sendJSON(c, map[string]string{"type": "pong"})
		}
	}
}

// keepalive periodically sends a protocol-level ping; a failed ping means a
// half-open connection, so the context is cancelled to tear it down.
func (m *Manager) keepalive(c *connection) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				c.cancel()
				return
			}
		}
	}
}

// register adds c to jobID's connection set, starting the job's
// subscription task if this is the first connection for it.
func (m *Manager) register(jobID string, c *connection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	jf, ok := m.jobs[jobID]
	if !ok {
		jf = &jobFanout{conns: make(map[string]*connection)}
		m.jobs[jobID] = jf
	}
	jf.conns[c.id] = c

	if jf.subscription == nil {
		subCtx, subCancel := context.WithCancel(context.Background())
		sub, err := m.status.Subscribe(subCtx, jobID)
		if err != nil {
			slog.Error("subscribing to status channel", "job_id", jobID, "error", err)
			subCancel()
			return
		}
		jf.subscription = sub
		jf.subCancel = subCancel
		go m.relay(jobID, sub)
	}
}

// unregister removes c from jobID's connection set, cancelling the
// subscription task once the set becomes empty.
func (m *Manager) unregister(jobID string, c *connection) {
	m.mu.Lock()
	jf, ok := m.jobs[jobID]
	if ok {
		delete(jf.conns, c.id)
	}
	empty := ok && len(jf.conns) == 0
	if empty {
		delete(m.jobs, jobID)
	}
	m.mu.Unlock()

	c.cancel()
	_ = c.conn.Close(websocket.StatusNormalClosure, "")

	if empty && jf.subCancel != nil {
		jf.subCancel()
		_ = jf.subscription.Close()
	}
}

// relay forwards every delta received on sub to every connection currently
// registered for jobID, until the subscription's context is cancelled
// (last connection for jobID disconnected).
func (m *Manager) relay(jobID string, sub *statuschan.Subscription) {
	for snapshot := range sub.C() {
		m.broadcast(jobID, snapshot)
	}
}

// broadcast sends snapshot to every connection currently registered for
// jobID. Connection pointers are copied out under the lock so sends (which
// may block up to writeTimeout) never hold it.
func (m *Manager) broadcast(jobID string, snapshot *models.StatusSnapshot) {
	m.mu.RLock()
	jf, ok := m.jobs[jobID]
	var conns []*connection
	if ok {
		conns = make([]*connection, 0, len(jf.conns))
		for _, c := range jf.conns {
			conns = append(conns, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range conns {
		m.sendJSON(c, snapshot)
	}
}

func (m *Manager) sendJSON(c *connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("marshaling websocket message", "connection_id", c.id, "error", err)
		return
	}
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	if err := c.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		slog.Warn("writing websocket message", "connection_id", c.id, "error", err)
	}
}
