package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sonicspectrum/msghub/internal/metrics"
	"github.com/sonicspectrum/msghub/internal/store"
)

// HubConfig tunes the hub.
type HubConfig struct {
	Scope              Scope
	WriteTimeout       time.Duration
	MaxFramesPerMinute int
}

// Hub ties the connection registry, message service and dispatcher together.
type Hub struct {
	cfg        HubConfig
	registry   *Registry
	service    *Service
	dispatcher *Dispatcher
	log        *zerolog.Logger
	metrics    *metrics.Metrics
}

// NewHub creates a hub over st. m may be nil.
func NewHub(st store.Store, cfg HubConfig, logger *zerolog.Logger, m *metrics.Metrics) *Hub {
	registry := NewRegistry(m)
	return &Hub{
		cfg:        cfg,
		registry:   registry,
		service:    NewService(st, logger),
		dispatcher: NewDispatcher(registry, cfg.Scope, cfg.WriteTimeout, logger, m),
		log:        logger,
		metrics:    m,
	}
}

func (h *Hub) Registry() *Registry     { return h.registry }
func (h *Hub) Service() *Service       { return h.service }
func (h *Hub) Dispatcher() *Dispatcher { return h.dispatcher }

// NewSession prepares a session for conn. userID, if set, binds the
// connection for conversation-scoped delivery.
func (h *Hub) NewSession(conn Conn, userID string) *Session {
	return &Session{
		conn:    conn,
		userID:  userID,
		hub:     h,
		limiter: newRateLimiter(h.cfg.MaxFramesPerMinute, time.Minute),
		log:     *h.log,
	}
}

// Run blocks until ctx is cancelled, then closes every registered connection.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	n := h.registry.Len()
	h.registry.CloseAll(ErrServerShutdown)
	h.log.Info().Int("connections", n).Msg("hub stopped")
}
