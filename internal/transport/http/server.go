package http

import (
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sonicspectrum/msghub/internal/auth"
	"github.com/sonicspectrum/msghub/internal/config"
	"github.com/sonicspectrum/msghub/internal/core"
)

// NewServer builds the HTTP server: health, metrics, the WebSocket
// endpoint and the message REST API. gatherer may be nil to disable /metrics.
func NewServer(hub *core.Hub, cfg *config.Config, gatherer prometheus.Gatherer, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.AllowedOrigins))

	router.GET("/health", healthHandler)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	jwtCfg := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      24 * time.Hour,
	}

	router.GET("/ws", gin.WrapH(NewWSHandler(hub, cfg, jwtCfg, logger)))

	messages := NewMessageHandlers(hub, logger)
	api := router.Group("/api/messages")
	if jwtCfg.Enabled() {
		api.Use(AuthMiddleware(jwtCfg, cfg.JWTRequired, logger))
	}
	api.POST("/send", messages.Send)
	api.POST("/mark-as-read", messages.MarkRead)
	api.GET("/:userId/:otherUserId", messages.Conversation)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
