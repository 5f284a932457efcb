package core

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sonicspectrum/msghub/internal/store"
	"github.com/sonicspectrum/msghub/internal/store/sqlite"
	"github.com/sonicspectrum/msghub/internal/store/storetest"
)

var testLogger = zerolog.Nop()

// fakeConn is an in-memory Conn. Frames pushed to inbound are returned by
// ReadFrame; closing inbound simulates a normal peer close.
type fakeConn struct {
	inbound chan []byte

	mu     sync.Mutex
	frames [][]byte
	block  bool

	closeOnce sync.Once
	closed    chan struct{}
	cause     error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case raw, ok := <-c.inbound:
		if !ok {
			return nil, ErrConnClosed
		}
		return raw, nil
	case <-c.closed:
		return nil, ErrConnClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) WriteFrame(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	block := c.block
	c.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeConn) Close(cause error) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.cause = cause
		c.mu.Unlock()
		close(c.closed)
	})
	return nil
}

func (c *fakeConn) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

func (c *fakeConn) Cause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

// waitFrames blocks until conn has received n frames.
func waitFrames(t *testing.T, conn *fakeConn, n int) [][]byte {
	t.Helper()
	require.Eventually(t, func() bool { return len(conn.Frames()) >= n }, 2*time.Second, 5*time.Millisecond)
	return conn.Frames()
}

func waitClosed(t *testing.T, conn *fakeConn) {
	t.Helper()
	select {
	case <-conn.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not closed")
	}
}

type mockConn struct {
	mock.Mock
}

func (m *mockConn) ReadFrame(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	raw, _ := args.Get(0).([]byte)
	return raw, args.Error(1)
}

func (m *mockConn) WriteFrame(ctx context.Context, frame []byte) error {
	return m.Called(ctx, frame).Error(0)
}

func (m *mockConn) Close(cause error) error {
	return m.Called(cause).Error(0)
}

// mockStore lets tests inject store failures.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateUser(ctx context.Context, id, username string) (*store.User, error) {
	args := m.Called(ctx, id, username)
	u, _ := args.Get(0).(*store.User)
	return u, args.Error(1)
}

func (m *mockStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*store.User)
	return u, args.Error(1)
}

func (m *mockStore) UserExists(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *mockStore) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	args := m.Called(ctx, id)
	msg, _ := args.Get(0).(*store.Message)
	return msg, args.Error(1)
}

func (m *mockStore) ListConversation(ctx context.Context, userID, otherUserID string, since *time.Time) ([]*store.Message, error) {
	args := m.Called(ctx, userID, otherUserID, since)
	msgs, _ := args.Get(0).([]*store.Message)
	return msgs, args.Error(1)
}

func (m *mockStore) MarkRead(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) Close() error { return nil }

// newTestStore opens a file-backed SQLite store seeded with users.
func newTestStore(t *testing.T, users ...string) store.Store {
	t.Helper()
	st, err := sqlite.New(filepath.Join(t.TempDir(), "core.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	storetest.SeedUsers(t, st, users...)
	return st
}

func newTestHub(t *testing.T, st store.Store, cfg HubConfig) *Hub {
	t.Helper()
	return NewHub(st, cfg, &testLogger, nil)
}

// startSession runs a session for conn in the background and returns a
// channel yielding its result.
func startSession(ctx context.Context, hub *Hub, conn Conn, userID string) (*Session, <-chan error) {
	s := hub.NewSession(conn, userID)
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return s, done
}

func waitRegistered(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Registry().Len() == n }, 2*time.Second, 5*time.Millisecond)
}

func messageIDs(msgs []*store.Message) []string {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}
