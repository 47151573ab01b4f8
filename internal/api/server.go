package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/panelguard-project/panelguard/internal/cloud"
	"github.com/panelguard-project/panelguard/internal/config"
	"github.com/panelguard-project/panelguard/internal/db"
	"github.com/panelguard-project/panelguard/internal/events"
	"github.com/panelguard-project/panelguard/internal/local"
)

// Server is the REST API server for PanelGuard.
type Server struct {
	cfg      *config.Config
	eventBus *events.EventBus
	panel    *local.Client
	journal  *db.Journal

	// Optional: set when the cloud relay is enabled so the API can report
	// the connected device.
	relay *cloud.Server

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, eventBus *events.EventBus, panel *local.Client, journal *db.Journal) *Server {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	return &Server{
		cfg:      cfg,
		eventBus: eventBus,
		panel:    panel,
		journal:  journal,
	}
}

// SetRelay injects the cloud relay server (called after all components are initialized).
func (s *Server) SetRelay(relay *cloud.Server) {
	s.relay = relay
}

// Start initializes and starts the API server, blocking until the context is
// cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.router = s.buildRouter()

	addr := fmt.Sprintf(":%d", s.cfg.API.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("REST API server starting")

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}

	return nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	allowedOrigins := s.cfg.API.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Must be false when AllowOrigins is "*"
		MaxAge:           12 * time.Hour,
	}))

	rateLimiter := NewRateLimiter(s.cfg.API.RateLimitRPS)
	router.Use(rateLimiter.Middleware())

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/ping", s.handlePing)
		apiGroup.GET("/status", s.handleGetStatus)
		apiGroup.GET("/info", s.handleGetInfo)
		apiGroup.GET("/sensors", s.handleGetSensors)
		apiGroup.GET("/devices", s.handleGetDevices)
		apiGroup.GET("/history", s.handleGetHistory)
		apiGroup.GET("/events", s.handleGetEvents)
		apiGroup.GET("/events/summary", s.handleGetEventSummary)
		apiGroup.GET("/system", s.handleGetSystem)
		apiGroup.GET("/relay", s.handleGetRelay)

		apiGroup.POST("/arm/away", s.handleArmAway)
		apiGroup.POST("/arm/home", s.handleArmHome)
		apiGroup.POST("/disarm", s.handleDisarm)
		apiGroup.POST("/devices/:index/on", s.handleDeviceOn)
		apiGroup.POST("/devices/:index/off", s.handleDeviceOff)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})

	return router
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
