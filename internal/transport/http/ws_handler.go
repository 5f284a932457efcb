package http

import (
	"context"
	"errors"
	stdhttp "net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/sonicspectrum/msghub/internal/auth"
	"github.com/sonicspectrum/msghub/internal/config"
	"github.com/sonicspectrum/msghub/internal/core"
)

// WSHandler upgrades HTTP connections and runs a core.Session for each.
type WSHandler struct {
	hub *core.Hub
	cfg *config.Config
	jwt *auth.JWTConfig
	log *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, cfg *config.Config, jwtCfg *auth.JWTConfig, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{hub: hub, cfg: cfg, jwt: jwtCfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	userID, err := h.resolveUser(r)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws auth failed")
		stdhttp.Error(w, "unauthorized", stdhttp.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.cfg.AllowedOrigins,
		InsecureSkipVerify: lo.Contains(h.cfg.AllowedOrigins, "*"),
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	wc := newWSConn(conn, h.log)
	wc.startKeepalive(h.cfg.KeepaliveInterval, h.cfg.WriteTimeout)

	err = h.hub.NewSession(wc, userID).Run(r.Context())
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		h.log.Debug().Str("user_id", userID).Msg("ws connection closed")
	default:
		h.log.Warn().Err(err).Str("user_id", userID).Msg("ws connection closed with error")
	}
}

// resolveUser returns the user id to bind the connection to. A token, from
// the "token" query parameter or a bearer header, wins over "userId".
func (h *WSHandler) resolveUser(r *stdhttp.Request) (string, error) {
	query := r.URL.Query()
	if !h.jwt.Enabled() {
		return query.Get("userId"), nil
	}

	token := query.Get("token")
	if token == "" {
		token, _ = bearerToken(r.Header.Get("Authorization"))
	}
	if token == "" {
		if h.cfg.JWTRequired {
			return "", errors.New("missing token")
		}
		return query.Get("userId"), nil
	}

	claims, err := auth.ValidateToken(h.jwt, token)
	if err != nil {
		return "", err
	}
	return claims.UserID(), nil
}

// wsConn adapts a WebSocket to core.Conn.
type wsConn struct {
	conn *websocket.Conn
	log  *zerolog.Logger

	closing   atomic.Bool
	closeOnce sync.Once
	stop      chan struct{}
}

func newWSConn(conn *websocket.Conn, logger *zerolog.Logger) *wsConn {
	return &wsConn{
		conn: conn,
		log:  logger,
		stop: make(chan struct{}),
	}
}

func (c *wsConn) ReadFrame(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			// A drop without a close frame surfaces as the raw error.
			if c.closing.Load() {
				return nil, core.ErrConnClosed
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil, core.ErrConnClosed
			}
			return nil, err
		}
		if typ != websocket.MessageText {
			c.log.Debug().Msg("ignoring binary frame")
			continue
		}
		return data, nil
	}
}

func (c *wsConn) WriteFrame(ctx context.Context, frame []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, frame)
}

func (c *wsConn) Close(cause error) error {
	var err error
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		close(c.stop)
		status, reason := closeStatus(cause)
		err = c.conn.Close(status, reason)
	})
	return err
}

// startKeepalive pings the peer every interval until the connection closes.
func (c *wsConn) startKeepalive(interval, timeout time.Duration) {
	if interval <= 0 {
		return
	}
	if timeout <= 0 {
		timeout = interval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), timeout)
				err := c.conn.Ping(ctx)
				cancel()
				if err != nil {
					c.log.Debug().Err(err).Msg("ws keepalive failed")
					_ = c.conn.CloseNow()
					return
				}
			case <-c.stop:
				return
			}
		}
	}()
}

// closeStatus maps a session end cause to a close frame.
func closeStatus(cause error) (websocket.StatusCode, string) {
	var perr *core.PersistenceError
	switch {
	case cause == nil, errors.Is(cause, core.ErrConnClosed):
		return websocket.StatusNormalClosure, "closing"
	case errors.Is(cause, core.ErrServerShutdown), errors.Is(cause, context.Canceled):
		return websocket.StatusGoingAway, "server shutting down"
	case errors.As(cause, &perr):
		return websocket.StatusInternalError, "internal error"
	}
	if s := websocket.CloseStatus(cause); s != -1 {
		return s, "closing"
	}
	return websocket.StatusInternalError, "transport error"
}
