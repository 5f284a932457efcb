package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sonicspectrum/msghub/internal/config"
	"github.com/sonicspectrum/msghub/internal/core"
	"github.com/sonicspectrum/msghub/internal/metrics"
	"github.com/sonicspectrum/msghub/internal/proto"
	"github.com/sonicspectrum/msghub/internal/store"
	"github.com/sonicspectrum/msghub/internal/store/sqlite"
	"github.com/sonicspectrum/msghub/internal/store/storetest"
)

type testEnv struct {
	ts    *httptest.Server
	hub   *core.Hub
	store store.Store
	cfg   config.Config
}

// startTestServer runs a full server over a seeded SQLite store with users
// alice, bob and carol. mutate may adjust the config before wiring.
func startTestServer(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second
	cfg.WriteTimeout = time.Second
	cfg.KeepaliveInterval = 0
	cfg.JWTSecret = ""
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := sqlite.New(filepath.Join(t.TempDir(), "http.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	storetest.SeedUsers(t, st, "alice", "bob", "carol")

	disabledLogger := zerolog.New(nil)
	reg := prometheus.NewRegistry()
	hub := core.NewHub(st, core.HubConfig{
		Scope:              core.ParseScope(cfg.BroadcastScope),
		WriteTimeout:       cfg.WriteTimeout,
		MaxFramesPerMinute: cfg.MaxFramesPerMinute,
	}, &disabledLogger, metrics.NewMetrics(reg))

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := NewServer(hub, &cfg, reg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})

	return &testEnv{ts: ts, hub: hub, store: st, cfg: cfg}
}

func (e *testEnv) wsURL(query string) string {
	u := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
	if query != "" {
		u += "?" + query
	}
	return u
}

// dial opens a socket and waits until the hub has registered n connections.
func (e *testEnv) dial(t *testing.T, ctx context.Context, query string, n int) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, e.wsURL(query), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })

	require.Eventually(t, func() bool { return e.hub.Registry().Len() == n }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func (e *testEnv) do(t *testing.T, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	e.ts.Config.Handler.ServeHTTP(rec, req)
	return rec
}

func readOutbound(t *testing.T, ctx context.Context, conn *websocket.Conn) proto.Outbound {
	t.Helper()

	var out proto.Outbound
	require.NoError(t, wsjson.Read(ctx, conn, &out))
	return out
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func sendBody(sender, receiver, content string) string {
	raw, _ := json.Marshal(map[string]string{
		"senderId":   sender,
		"receiverId": receiver,
		"content":    content,
	})
	return string(raw)
}
