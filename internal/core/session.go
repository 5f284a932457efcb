package core

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/sonicspectrum/msghub/internal/metrics"
	"github.com/sonicspectrum/msghub/internal/proto"
)

// SessionState is the lifecycle phase of one connection.
type SessionState int32

const (
	StateAccepting SessionState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateAccepting:
		return "accepting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session drives one connection from registration to cleanup.
type Session struct {
	conn    Conn
	userID  string
	hub     *Hub
	limiter *rateLimiter
	log     zerolog.Logger

	id    atomic.Pointer[string]
	state atomic.Int32
}

// ID returns the registry id, or "" before the session is open.
func (s *Session) ID() string {
	if id := s.id.Load(); id != nil {
		return *id
	}
	return ""
}

// State returns the current lifecycle phase.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Run registers the connection, processes inbound frames until the
// connection ends, then deregisters and closes it. Cleanup runs on every
// exit path. A nil return means the peer closed normally.
func (s *Session) Run(ctx context.Context) (err error) {
	registry := s.hub.registry
	id := registry.Register(s.conn)
	s.id.Store(&id)
	if s.userID != "" {
		registry.Bind(id, s.userID)
	}
	s.log = s.log.With().Str("conn_id", id).Logger()
	s.state.Store(int32(StateOpen))
	s.log.Debug().Str("user_id", s.userID).Msg("session open")

	defer func() {
		s.state.Store(int32(StateClosing))
		registry.Deregister(id)
		if cerr := s.conn.Close(err); cerr != nil {
			s.log.Debug().Err(cerr).Msg("close connection")
		}
		s.state.Store(int32(StateClosed))
		s.log.Debug().Err(err).Msg("session closed")
	}()

	for {
		raw, rerr := s.conn.ReadFrame(ctx)
		if rerr != nil {
			switch {
			case errors.Is(rerr, ErrConnClosed):
				return nil
			case ctx.Err() != nil:
				return ctx.Err()
			default:
				return &TransportError{ConnID: id, Op: "read", Err: rerr}
			}
		}
		if herr := s.handleFrame(ctx, raw); herr != nil {
			return herr
		}
	}
}

// handleFrame processes one inbound frame. Only persistence failures are
// returned; everything else drops the frame and keeps the session open.
func (s *Session) handleFrame(ctx context.Context, raw []byte) error {
	m := s.hub.metrics

	if !s.limiter.allow() {
		m.FrameReceived(metrics.FrameRateLimited)
		s.log.Warn().Msg("rate limit exceeded, frame dropped")
		return nil
	}

	env, err := proto.Decode(raw)
	if err != nil {
		m.FrameReceived(metrics.FrameDecodeError)
		s.log.Warn().Err(err).Msg("dropping malformed frame")
		return nil
	}

	msg, err := s.hub.service.Send(ctx, env.SenderID, env.ReceiverID, env.Content)
	switch {
	case errors.Is(err, ErrUnknownUser):
		m.FrameReceived(metrics.FrameUnknownUser)
		s.log.Warn().Err(err).Msg("dropping frame for unknown user")
		return nil
	case err != nil:
		m.FrameReceived(metrics.FrameFailed)
		s.log.Error().Err(err).Msg("persist message")
		return err
	}

	m.FrameReceived(metrics.FrameAccepted)
	s.hub.dispatcher.Broadcast(ctx, msg)
	return nil
}
