// Package api implements the relay's admin REST API: read-only monitoring,
// account moderation and configuration, behind JWT bearer authentication.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/echorelay-project/echorelay/internal/config"
	"github.com/echorelay-project/echorelay/internal/events"
	"github.com/echorelay-project/echorelay/internal/health"
	"github.com/echorelay-project/echorelay/internal/relay"
)

// Version is reported by the ping endpoint.
var Version = "dev"

// HealthSource exposes the most recent health report.
type HealthSource interface {
	LastReport() health.Report
}

// Server is the admin REST API. It is served from the relay listener under
// /api rather than a listener of its own.
type Server struct {
	cfg      *config.Config
	relay    *relay.Relay
	eventBus *events.EventBus
	health   HealthSource

	router *gin.Engine
	logger zerolog.Logger
}

// NewServer builds the router. health may be nil.
func NewServer(cfg *config.Config, r *relay.Relay, h HealthSource) *Server {
	snap := cfg.Snapshot()
	if snap.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:      cfg,
		relay:    r,
		eventBus: r.EventBus(),
		health:   h,
		logger:   log.With().Str("component", "api").Logger(),
	}
	s.router = s.buildRouter(snap.API)
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

// Mount attaches the API to the relay listener under /api.
func (s *Server) Mount() {
	s.relay.Mount("/api", s.router)
	s.logger.Info().Msg("admin API mounted at /api")
}

func (s *Server) buildRouter(apiCfg config.APIConfig) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	allowedOrigins := apiCfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.Use(NewRateLimiter(apiCfg.RateLimitRPS).Middleware())

	auth := NewAuthMiddleware(s.cfg)

	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/info", s.handleInfo)
	}

	protected := router.Group("/api")
	protected.Use(auth.RequireAuth())

	monitor := protected.Group("/monitor")
	monitor.Use(auth.RequirePermission(PermMonitor))
	{
		monitor.GET("/stats", s.handleStats)
		monitor.GET("/peers", s.handlePeers)
		monitor.GET("/servers", s.handleServers)
		monitor.GET("/sessions", s.handleSessions)
		monitor.GET("/health", s.handleHealth)
	}

	control := protected.Group("/control")
	control.Use(auth.RequirePermission(PermControl))
	{
		control.GET("/accounts/:id", s.handleGetAccount)
		control.POST("/accounts/:id/ban", s.handleBan)
		control.POST("/accounts/:id/unban", s.handleUnban)
		control.POST("/accounts/:id/kick", s.handleKick)
		control.POST("/accounts/:id/moderator", s.handleSetModerator)
	}

	configure := protected.Group("/configure")
	configure.Use(auth.RequirePermission(PermConfigure))
	{
		configure.GET("/config", s.handleGetConfig)
		configure.POST("/config", s.handleUpdateConfig)
		configure.GET("/service_config", s.handleServiceConfig)
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		c.Status(http.StatusNotFound)
	})

	return router
}
