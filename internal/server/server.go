// Package server exposes a tool pipeline over HTTP: tool inventory and
// administration, invocation, batches, Prometheus metrics and a websocket
// stream of telemetry events.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"toolpipe/internal/logging"
	"toolpipe/internal/observability"
	"toolpipe/internal/toolexec"
)

// Config configures the HTTP server.
type Config struct {
	Addr         string
	CORSOrigins  []string
	Debug        bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Version      string
}

// Server serves one pipeline.
type Server struct {
	pipeline *toolexec.Pipeline
	metrics  *observability.MetricsCollector
	tracer   *observability.TracerProvider
	hub      *observability.EventHub
	logger   logging.Logger

	engine     *gin.Engine
	httpServer *http.Server
	wsUpgrader websocket.Upgrader

	version   string
	startTime time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures optional collaborators.
type Option func(*Server)

// WithMetrics serves collector on /metrics and records rejections on it.
func WithMetrics(collector *observability.MetricsCollector) Option {
	return func(s *Server) { s.metrics = collector }
}

// WithTracer opens a span per request.
func WithTracer(tracer *observability.TracerProvider) Option {
	return func(s *Server) { s.tracer = tracer }
}

// WithEvents streams hub events on /v1/events.
func WithEvents(hub *observability.EventHub) Option {
	return func(s *Server) { s.hub = hub }
}

// WithLogger sets the access and error logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New builds a server for pipeline. It does not listen until Start.
func New(pipeline *toolexec.Pipeline, cfg Config, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		pipeline:  pipeline,
		version:   cfg.Version,
		startTime: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger)
	if s.tracer == nil {
		s.tracer = observability.NewNoopTracerProvider()
	}
	if s.hub == nil {
		s.hub = observability.NewEventHub(0)
	}
	if s.version == "" {
		s.version = "dev"
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestContext(s.tracer))
	engine.Use(accessLog(s.logger))

	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSOrigins) == 0 || containsWildcard(cfg.CORSOrigins) {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", requestIDHeader}
	corsConfig.ExposeHeaders = []string{requestIDHeader}
	corsConfig.AllowWebSockets = true
	engine.Use(cors.New(corsConfig))

	s.wsUpgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	s.engine = engine
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	s.setupRoutes()
	s.refreshToolGauge()
	return s
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := s.engine.Group("/v1")
	api.Use(jsonOnly())
	{
		api.GET("/tools", s.handleListTools)
		api.GET("/tools/:name", s.handleGetTool)
		api.DELETE("/tools/:name", s.handleUnregisterTool)
		api.DELETE("/tools/:name/cache", s.handleClearCache)
		api.POST("/tools/:name/invoke", s.handleInvoke)
		api.POST("/batch", s.handleBatch)
		api.GET("/events", s.handleEvents)
	}
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("toolpipe server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown closes event streams and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	err := s.httpServer.Shutdown(ctx)
	s.wg.Wait()
	if err != nil {
		return fmt.Errorf("shutdown HTTP server: %w", err)
	}
	s.logger.Info("toolpipe server stopped")
	return nil
}

func (s *Server) refreshToolGauge() {
	s.metrics.Pipeline().SetRegisteredTools(len(s.pipeline.List()))
}
