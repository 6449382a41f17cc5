package server

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"fleettrack/internal/config"
	"fleettrack/internal/handler"
	"fleettrack/internal/hub"
	"fleettrack/internal/middleware"
	"fleettrack/internal/repository/postgres"
	"fleettrack/internal/service"
)

// Server wires the persistence layer, services, hub and HTTP surface
// together.
type Server struct {
	router *gin.Engine
	config *config.Config
	db     *gorm.DB
	redis  *redis.Client
	nats   *nats.Conn
	http   *http.Server

	hub     *hub.Hub
	history *service.HistoryService
	alerts  *service.AlertService
	poller  *service.Poller
}

// NewServer creates a new server instance. The Redis client and NATS
// connection are optional.
func NewServer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn) *Server {
	return &Server{
		config: cfg,
		db:     db,
		redis:  redisClient,
		nats:   natsConn,
	}
}

// Setup initializes repositories, services, handlers and routes.
func (s *Server) Setup() {
	s.hub = hub.New()

	trackerRepo := postgres.NewTrackerRepository(s.db)
	positionRepo := postgres.NewPositionRepository(s.db)
	geofenceRepo := postgres.NewGeofenceRepository(s.db)
	alertRepo := postgres.NewAlertRepository(s.db)

	trackerService := service.NewTrackerService(trackerRepo, s.redis)
	s.history = service.NewHistoryService(positionRepo, s.config.RetentionDays)
	geofenceService := service.NewGeofenceService(geofenceRepo, trackerRepo)
	s.alerts = service.NewAlertService(alertRepo, trackerService, s.hub, s.nats)
	ingestService := service.NewIngestService(trackerService, s.history, geofenceService, s.alerts, s.hub)

	platformCfg := service.PlatformConfig{
		Platform: s.config.Platform,
		BaseURL:  s.config.PlatformBaseURL,
		Account:  s.config.PlatformAccount,
		Password: s.config.PlatformPassword,
	}
	if platformCfg.Configured() {
		client, err := service.NewPlatformClient(platformCfg)
		if err != nil {
			log.Printf("[Server] platform client disabled: %v", err)
		} else {
			s.poller = service.NewPoller(client, ingestService, s.hub, s.config.PollInterval)
			log.Printf("[Server] platform poller configured for %s", client.Platform())
		}
	}

	trackerHandler := handler.NewTrackerHandler(trackerService)
	ingestHandler := handler.NewIngestHandler(ingestService, s.poller)
	positionHandler := handler.NewPositionHandler(trackerService, s.history)
	geofenceHandler := handler.NewGeofenceHandler(geofenceService)
	alertHandler := handler.NewAlertHandler(s.alerts)
	wsHandler := handler.NewWSHandler(s.hub, trackerService)

	go s.hub.Run()
	log.Println("[Server] WebSocket hub started")

	s.router = gin.Default()

	// CORS middleware
	s.router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// Public routes
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "ws_clients": s.hub.ClientCount()})
	})
	s.router.POST("/api/v1/ingest/position", ingestHandler.Ingest)
	s.router.POST("/api/v1/ingest/positions", ingestHandler.IngestBatch)
	s.router.GET("/ws", wsHandler.Handle)
	s.router.GET("/ws/stats", wsHandler.GetStats)

	// Protected routes
	api := s.router.Group("/api/v1")
	api.Use(middleware.Auth(s.config.JWTSecret))
	{
		// Trackers
		api.GET("/trackers", trackerHandler.List)
		api.POST("/trackers", trackerHandler.Create)
		api.GET("/trackers/:identifier", trackerHandler.Get)
		api.PUT("/trackers/:identifier", trackerHandler.Update)

		// Positions
		api.GET("/positions/latest", positionHandler.GetAllLatest)
		api.GET("/trackers/:identifier/positions", positionHandler.GetHistory)
		api.GET("/trackers/:identifier/track/simplify", positionHandler.GetSimplifiedTrack)
		api.GET("/trackers/:identifier/track/stats", positionHandler.GetTravelStats)

		// Geofences
		api.GET("/geofences", geofenceHandler.List)
		api.POST("/geofences", geofenceHandler.Create)
		api.GET("/geofences/:id", geofenceHandler.Get)
		api.PUT("/geofences/:id", geofenceHandler.Update)
		api.DELETE("/geofences/:id", geofenceHandler.Delete)
		api.POST("/geofences/:id/trackers", geofenceHandler.AssignTrackers)
		api.GET("/geofences/:id/trackers", geofenceHandler.GetTrackers)
		api.GET("/geofences/:id/events", geofenceHandler.GetEvents)
		api.POST("/geofences/:id/check", geofenceHandler.CheckLocation)

		// Alerts
		api.GET("/alerts", alertHandler.List)
		api.GET("/alerts/stats", alertHandler.Stats)
		api.GET("/alerts/export", alertHandler.Export)
		api.GET("/alerts/:id", alertHandler.Get)
		api.POST("/alerts/:id/status", alertHandler.UpdateStatus)

		// Platform sync
		api.POST("/sync", ingestHandler.Sync)
	}
}

// StartBackground launches the poller, retention sweep and offline checker.
// They stop when ctx is cancelled.
func (s *Server) StartBackground(ctx context.Context) {
	go s.history.RunRetention(ctx)
	go s.alerts.RunOfflineChecker(ctx)
	if s.poller != nil {
		go s.poller.Run(ctx)
	}
}

// Run starts the HTTP listener and blocks until it fails or is shut down.
func (s *Server) Run() error {
	s.http = &http.Server{
		Addr:    ":" + s.config.Port,
		Handler: s.router,
	}
	log.Printf("[Server] listening on :%s", s.config.Port)
	return s.http.ListenAndServe()
}

// Shutdown drains the HTTP listener and stops the hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// GetRouter exposes the router for tests.
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
