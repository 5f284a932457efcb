package core

import (
	"sync"

	"github.com/samber/lo"

	"github.com/sonicspectrum/msghub/internal/metrics"
	"github.com/sonicspectrum/msghub/internal/utils"
)

type registration struct {
	conn   Conn
	userID string
}

// Registry is the set of live connections, keyed by connection id.
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]*registration
	closed  error
	metrics *metrics.Metrics
}

// NewRegistry creates an empty registry. m may be nil.
func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		conns:   make(map[string]*registration),
		metrics: m,
	}
}

// Register adds conn under a fresh id and returns the id. After CloseAll,
// conn is still registered but closed immediately with the same cause.
func (r *Registry) Register(conn Conn) string {
	id := utils.NewID()

	r.mu.Lock()
	r.conns[id] = &registration{conn: conn}
	closed := r.closed
	r.mu.Unlock()

	r.metrics.ConnectionOpened()
	if closed != nil {
		_ = conn.Close(closed)
	}
	return id
}

// Bind associates a registered connection with a user id. Returns false if
// id is not registered.
func (r *Registry) Bind(id, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.conns[id]
	if !ok {
		return false
	}
	reg.userID = userID
	return true
}

// Deregister removes id. Removing an absent id is a no-op and returns false.
func (r *Registry) Deregister(id string) bool {
	r.mu.Lock()
	_, ok := r.conns[id]
	delete(r.conns, id)
	r.mu.Unlock()

	if ok {
		r.metrics.ConnectionClosed()
	}
	return ok
}

// Snapshot returns every registered handle at the time of the call.
func (r *Registry) Snapshot() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.MapToSlice(r.conns, func(_ string, reg *registration) Conn {
		return reg.conn
	})
}

// SnapshotFor returns the handles bound to any of userIDs.
func (r *Registry) SnapshotFor(userIDs ...string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.FilterMap(lo.Values(r.conns), func(reg *registration, _ int) (Conn, bool) {
		return reg.conn, reg.userID != "" && lo.Contains(userIDs, reg.userID)
	})
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll closes every registered handle with cause and waits for the
// close handshakes. Sessions observe the close from their read loop and
// deregister themselves.
func (r *Registry) CloseAll(cause error) {
	r.mu.Lock()
	r.closed = cause
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, conn := range r.Snapshot() {
		wg.Add(1)
		go func(conn Conn) {
			defer wg.Done()
			_ = conn.Close(cause)
		}(conn)
	}
	wg.Wait()
}
