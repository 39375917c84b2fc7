package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Ladkan/MeChat/internal/auth"
	"github.com/Ladkan/MeChat/internal/config"
	"github.com/Ladkan/MeChat/internal/core"
	"github.com/Ladkan/MeChat/internal/store"
)

// NewServer builds the HTTP server: health check, the WebSocket endpoint and the
// authenticated message API.
func NewServer(
	hub *core.Hub,
	gate *auth.Gate,
	messages store.MessageStore,
	cfg *config.Config,
	logger *zerolog.Logger,
) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger), CORSMiddleware(cfg.AllowedOrigins))

	router.GET("/health", healthHandler)

	handlers := NewMessageHandlers(hub, messages, logger)
	api := router.Group("/api", AuthMiddleware(gate, logger))
	api.GET("/rooms/:roomId/messages", handlers.History)
	api.PATCH("/messages/:messageId", handlers.Delete)

	// gin's writer refuses to hijack after the 101 is written, so the
	// WebSocket endpoint is served outside the router.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, gate, cfg, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
