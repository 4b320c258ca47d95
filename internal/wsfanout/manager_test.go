package wsfanout

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckpipe/deckpipe/internal/models"
	"github.com/deckpipe/deckpipe/internal/statuschan"
)

func newTestServer(t *testing.T, m *Manager) (*httptest.Server, string) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		m.HandleConnection(r.Context(), r.URL.Query().Get("job_id"), conn)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	wsURL := "ws" + srv.URL[len("http"):] + "/ws"
	return srv, wsURL
}

func newTestManager(t *testing.T) (*Manager, *statuschan.Channel, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	status := statuschan.New(rdb)
	return New(status, 5*time.Second, 0), status, mr
}

func dial(t *testing.T, url, jobID string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url+"?job_id="+jobID, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func TestHandleConnection_SendsConnectionEstablished(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, url := newTestServer(t, m)

	conn := dial(t, url, "job-1")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var msg map[string]string
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "connection_established", msg["type"])
	assert.NotEmpty(t, msg["connection_id"])
}

func TestHandleConnection_SendsSnapshotOnConnect(t *testing.T) {
	m, status, _ := newTestManager(t)
	_, url := newTestServer(t, m)

	ctx := context.Background()
	require.NoError(t, status.Put(ctx, "job-2", &models.StatusSnapshot{Status: models.JobStatusProcessing, Progress: 55}))

	conn := dial(t, url, "job-2")
	readCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var established map[string]string
	require.NoError(t, wsjson.Read(readCtx, conn, &established))

	var snap models.StatusSnapshot
	require.NoError(t, wsjson.Read(readCtx, conn, &snap))
	assert.Equal(t, models.JobStatusProcessing, snap.Status)
	assert.Equal(t, 55, snap.Progress)
}

func TestBroadcast_DeliversPublishedDeltaToConnectedClient(t *testing.T) {
	m, status, _ := newTestManager(t)
	_, url := newTestServer(t, m)

	conn := dial(t, url, "job-3")
	readCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var established map[string]string
	require.NoError(t, wsjson.Read(readCtx, conn, &established))

	// Give register() time to start the subscription task before publishing.
	require.Eventually(t, func() bool {
		m.mu.RLock()
		defer m.mu.RUnlock()
		jf, ok := m.jobs["job-3"]
		return ok && jf.subscription != nil
	}, 2*time.Second, 10*time.Millisecond)

	delta := &models.StatusSnapshot{Status: models.JobStatusProcessing, Progress: 80, CurrentStep: "finalize"}
	require.NoError(t, status.Publish(context.Background(), "job-3", delta))

	var got models.StatusSnapshot
	require.NoError(t, wsjson.Read(readCtx, conn, &got))
	assert.Equal(t, *delta, got)
}

func TestHandleConnection_PingRepliesWithPong(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, url := newTestServer(t, m)

	conn := dial(t, url, "job-4")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var established map[string]string
	require.NoError(t, wsjson.Read(ctx, conn, &established))

	require.NoError(t, wsjson.Write(ctx, conn, map[string]string{"type": "ping"}))

	var reply map[string]string
	require.NoError(t, wsjson.Read(ctx, conn, &reply))
	assert.Equal(t, "pong", reply["type"])
}

func TestUnregister_RemovesConnectionAndCancelsSubscriptionWhenEmpty(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, url := newTestServer(t, m)

	conn := dial(t, url, "job-5")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var established map[string]string
	require.NoError(t, wsjson.Read(ctx, conn, &established))

	require.Eventually(t, func() bool {
		m.mu.RLock()
		defer m.mu.RUnlock()
		_, ok := m.jobs["job-5"]
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))

	require.Eventually(t, func() bool {
		m.mu.RLock()
		defer m.mu.RUnlock()
		_, ok := m.jobs["job-5"]
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}
