// Package statuschan implements the Status Channel: a durable per-job status
// snapshot with TTL (the catch-up mechanism) plus a best-effort pub/sub
// broadcast (the live-delta mechanism), both over Redis.
package statuschan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/deckpipe/deckpipe/internal/models"
)

// snapshotTTL is the Status Snapshot's TTL, refreshed on every Put — not set
// once at job creation — so a late-arriving client reading a long-running
// job's snapshot never finds it expired mid-job.
const snapshotTTL = 24 * time.Hour

func snapshotKey(jobID string) string { return "status:" + jobID }
func updatesChannel(jobID string) string { return "updates:" + jobID }

// Channel is the Status Channel, backed by a Redis client.
type Channel struct {
	rdb *redis.Client
}

// New constructs a Channel over an already-connected Redis client.
func New(rdb *redis.Client) *Channel {
	return &Channel{rdb: rdb}
}

// Put writes snapshot under status:{jobID} with a fresh 24h TTL. Consumers
// that arrive late read this to catch up before subscribing.
func (c *Channel) Put(ctx context.Context, jobID string, snapshot *models.StatusSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("statuschan: marshaling snapshot for %s: %w", jobID, err)
	}
	if err := c.rdb.Set(ctx, snapshotKey(jobID), data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("statuschan: writing snapshot for %s: %w", jobID, err)
	}
	return nil
}

// Get returns the current snapshot for jobID, or found=false if absent
// (expired, or never written for an unknown job id).
func (c *Channel) Get(ctx context.Context, jobID string) (*models.StatusSnapshot, bool, error) {
	data, err := c.rdb.Get(ctx, snapshotKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("statuschan: reading snapshot for %s: %w", jobID, err)
	}
	var snap models.StatusSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, false, fmt.Errorf("statuschan: unmarshaling snapshot for %s: %w", jobID, err)
	}
	return &snap, true, nil
}

// Publish pushes delta on jobID's channel. Delivery is best-effort
// (at-most-once); Publish alone never updates the durable snapshot — callers
// that need both ordered together must use Update.
func (c *Channel) Publish(ctx context.Context, jobID string, delta *models.StatusSnapshot) error {
	data, err := json.Marshal(delta)
	if err != nil {
		return fmt.Errorf("statuschan: marshaling delta for %s: %w", jobID, err)
	}
	if err := c.rdb.Publish(ctx, updatesChannel(jobID), data).Err(); err != nil {
		return fmt.Errorf("statuschan: publishing delta for %s: %w", jobID, err)
	}
	return nil
}

// Update writes the snapshot and only then broadcasts it, guaranteeing a
// snapshot write occurred no later than that broadcast. Callers must use
// this instead of calling Put/Publish separately whenever both need to
// happen together.
func (c *Channel) Update(ctx context.Context, jobID string, snapshot *models.StatusSnapshot) error {
	if err := c.Put(ctx, jobID, snapshot); err != nil {
		return err
	}
	if err := c.Publish(ctx, jobID, snapshot); err != nil {
		// The snapshot already landed; a lost broadcast is survivable
		// (clients fall back to the snapshot on reconnect), so this is
		// logged, not escalated to a caller-visible failure of Update.
		slog.Warn("statuschan: broadcast failed after snapshot write", "job_id", jobID, "error", err)
	}
	return nil
}

// Subscription delivers deltas for one job's updates channel.
type Subscription struct {
	ps *redis.PubSub
	ch chan *models.StatusSnapshot
}

// Subscribe returns an unbounded (internally buffered by go-redis) delivery
// stream of deltas for jobID. Callers must call Close when done.
func (c *Channel) Subscribe(ctx context.Context, jobID string) (*Subscription, error) {
	ps := c.rdb.Subscribe(ctx, updatesChannel(jobID))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("statuschan: subscribing to %s: %w", jobID, err)
	}

	sub := &Subscription{ps: ps, ch: make(chan *models.StatusSnapshot, 16)}
	go sub.forward()
	return sub, nil
}

func (s *Subscription) forward() {
	defer close(s.ch)
	for msg := range s.ps.Channel() {
		var snap models.StatusSnapshot
		if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
			slog.Warn("statuschan: dropping malformed delta", "error", err)
			continue
		}
		s.ch <- &snap
	}
}

// C returns the channel of delivered deltas; it closes when the
// subscription's underlying pub/sub connection closes.
func (s *Subscription) C() <-chan *models.StatusSnapshot {
	return s.ch
}

// Close terminates the subscription.
func (s *Subscription) Close() error {
	return s.ps.Close()
}
