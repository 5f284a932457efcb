package app

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sonicspectrum/msghub/internal/config"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.DatabaseDriver = "mongo"

	_, err := OpenStore(context.Background(), &cfg)
	require.ErrorContains(t, err, "unknown database driver")
}

func TestAppRunAndShutdown(t *testing.T) {
	cfg := config.Default()
	cfg.Addr = freeAddr(t)
	cfg.DatabasePath = filepath.Join(t.TempDir(), "app.db")
	cfg.ShutdownTimeout = 2 * time.Second
	logger := zerolog.Nop()

	ctx, cancel := context.WithCancel(context.Background())
	a, err := New(ctx, &cfg, &logger)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + cfg.Addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestAppShutdownClosesSockets(t *testing.T) {
	cfg := config.Default()
	cfg.Addr = freeAddr(t)
	cfg.DatabasePath = filepath.Join(t.TempDir(), "app.db")
	cfg.ShutdownTimeout = 2 * time.Second
	cfg.KeepaliveInterval = 0
	logger := zerolog.Nop()

	ctx, cancel := context.WithCancel(context.Background())
	a, err := New(ctx, &cfg, &logger)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dialCancel()

	var conn *websocket.Conn
	require.Eventually(t, func() bool {
		c, _, err := websocket.Dial(dialCtx, "ws://"+cfg.Addr+"/ws", nil)
		if err != nil {
			return false
		}
		conn = c
		return true
	}, 3*time.Second, 20*time.Millisecond)
	defer conn.CloseNow()
	require.Eventually(t, func() bool { return a.hub.Registry().Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()

	_, _, err = conn.Read(dialCtx)
	require.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
	require.Eventually(t, func() bool { return a.hub.Registry().Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}
