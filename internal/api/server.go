// Package api serves the MovieHound HTTP surface under /api/v1.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/jwheet/MovieHound/internal/api/handlers"
	apimw "github.com/jwheet/MovieHound/internal/api/middleware"
	"github.com/jwheet/MovieHound/internal/downloader"
	"github.com/jwheet/MovieHound/internal/jobs"
	"github.com/jwheet/MovieHound/internal/metrics"
	"github.com/jwheet/MovieHound/internal/scheduler"
	"github.com/jwheet/MovieHound/internal/store"
	"github.com/jwheet/MovieHound/internal/websocket"
)

// Version is reported by /api/v1/status; set at build time.
var Version = "dev"

// Deps are the services the API exposes. Nil services leave their routes
// unregistered.
type Deps struct {
	Jobs      *jobs.Manager
	Clients   *downloader.Service
	Lists     *store.Store
	History   *store.History
	Scheduler *scheduler.Scheduler
	Hub       *websocket.Hub
	Metrics   *metrics.Metrics
}

// Server handles HTTP requests for the MovieHound API.
type Server struct {
	echo      *echo.Echo
	deps      Deps
	logger    zerolog.Logger
	startTime time.Time
}

// NewServer creates a new API server instance.
func NewServer(deps Deps, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		deps:      deps,
		logger:    logger.With().Str("component", "api").Logger(),
		startTime: time.Now(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(apimw.SecurityHeaders())
	s.echo.Use(middleware.BodyLimit("2M"))

	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := s.logger.Debug()
			if v.Error != nil {
				event = s.logger.Error().Err(v.Error)
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))

	s.echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			return c.Request().Header.Get("Upgrade") == "websocket"
		},
	}))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	api := s.echo.Group("/api/v1", apimw.WriteLimiter(apimw.DefaultWriteRate, apimw.DefaultWriteBurst))
	api.GET("/status", s.getStatus)

	if s.deps.Jobs != nil {
		jobs.NewHandlers(s.deps.Jobs).RegisterRoutes(api.Group("/jobs"))
	}
	if s.deps.Clients != nil {
		downloader.NewHandlers(s.deps.Clients).RegisterRoutes(api.Group("/clients"))
	}
	if s.deps.Lists != nil {
		api.POST("/manual-magnet", s.addManualMagnet)
		api.POST("/cleanup", s.cleanup)
	}
	if s.deps.History != nil {
		api.GET("/history", s.listHistory)
		api.DELETE("/history/:resultsFilename", s.deleteHistory)
	}
	if s.deps.Scheduler != nil {
		h := handlers.NewSchedulerHandler(s.deps.Scheduler)
		api.GET("/scheduler/tasks", h.ListTasks)
		api.POST("/scheduler/tasks/:id/run", h.RunTask)
	}
	if s.deps.Hub != nil {
		api.GET("/ws", s.deps.Hub.HandleWebSocket)
	}
	if s.deps.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.deps.Metrics.Handler()))
	}
}

// Start begins listening for HTTP requests. It returns nil after a clean
// Shutdown.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("Starting HTTP server")
	if err := s.echo.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(c echo.Context) error {
	status := map[string]interface{}{
		"version":   Version,
		"startTime": s.startTime.Format(time.RFC3339),
	}
	if s.deps.Jobs != nil {
		running := 0
		for _, j := range s.deps.Jobs.List() {
			if !j.Finished() {
				running++
			}
		}
		status["runningJobs"] = running
	}
	if s.deps.Hub != nil {
		status["listeners"] = s.deps.Hub.ClientCount()
	}
	return c.JSON(http.StatusOK, status)
}
