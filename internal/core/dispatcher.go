package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/sonicspectrum/msghub/internal/metrics"
	"github.com/sonicspectrum/msghub/internal/proto"
	"github.com/sonicspectrum/msghub/internal/store"
)

// Scope selects which connections receive a broadcast.
type Scope int

const (
	// ScopeAll delivers every message to every registered connection.
	ScopeAll Scope = iota
	// ScopeConversation delivers only to connections bound to the sender or receiver.
	ScopeConversation
)

// ParseScope maps a config value to a Scope. Unknown values select ScopeAll.
func ParseScope(s string) Scope {
	if s == "conversation" {
		return ScopeConversation
	}
	return ScopeAll
}

func (s Scope) String() string {
	if s == ScopeConversation {
		return "conversation"
	}
	return "all"
}

// Dispatcher writes persisted messages to registered connections.
type Dispatcher struct {
	registry     *Registry
	scope        Scope
	writeTimeout time.Duration
	log          *zerolog.Logger
	metrics      *metrics.Metrics
}

// NewDispatcher creates a dispatcher over registry. A zero writeTimeout
// disables the per-write deadline.
func NewDispatcher(registry *Registry, scope Scope, writeTimeout time.Duration, logger *zerolog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		registry:     registry,
		scope:        scope,
		writeTimeout: writeTimeout,
		log:          logger,
		metrics:      m,
	}
}

// Broadcast encodes msg once and writes it to every targeted connection.
// A failed write is logged and skipped. It returns the number of successful
// deliveries and returns only after every write has finished.
func (d *Dispatcher) Broadcast(ctx context.Context, msg *store.Message) int {
	frame, err := proto.Encode(ToOutbound(msg))
	if err != nil {
		d.log.Error().Err(err).Str("message_id", msg.ID).Msg("encode broadcast frame")
		return 0
	}

	var targets []Conn
	if d.scope == ScopeConversation {
		targets = d.registry.SnapshotFor(msg.SenderID, msg.ReceiverID)
	} else {
		targets = d.registry.Snapshot()
	}

	// Writes outlive the caller's request; only the write timeout bounds them.
	writeCtx := context.WithoutCancel(ctx)

	start := time.Now()
	var (
		wg        sync.WaitGroup
		delivered atomic.Int64
	)
	for _, conn := range targets {
		wg.Add(1)
		go func(conn Conn) {
			defer wg.Done()
			if err := d.write(writeCtx, conn, frame); err != nil {
				d.log.Warn().
					Err(&TransportError{Op: "write", Err: err}).
					Str("message_id", msg.ID).
					Msg("broadcast write failed")
				return
			}
			delivered.Add(1)
		}(conn)
	}
	wg.Wait()

	n := int(delivered.Load())
	d.metrics.RecordBroadcast(len(targets), n, time.Since(start).Seconds())
	d.log.Debug().
		Str("message_id", msg.ID).
		Int("targets", len(targets)).
		Int("delivered", n).
		Msg("message broadcast")
	return n
}

func (d *Dispatcher) write(ctx context.Context, conn Conn, frame []byte) error {
	if d.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.writeTimeout)
		defer cancel()
	}
	return conn.WriteFrame(ctx, frame)
}
