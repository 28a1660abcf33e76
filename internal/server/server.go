// Package server wires the daemon's dependencies together and hosts the
// control API: logger, metrics, tracer, store, registry, reconciliation
// engine, platform client, router, and middleware, in that construction
// order.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/codedread/spaces/internal/api/http"
	"github.com/codedread/spaces/internal/api/middleware"
	"github.com/codedread/spaces/internal/api/ws"
	"github.com/codedread/spaces/internal/config"
	"github.com/codedread/spaces/internal/logging"
	"github.com/codedread/spaces/internal/metrics"
	"github.com/codedread/spaces/internal/platform"
	"github.com/codedread/spaces/internal/reconcile"
	"github.com/codedread/spaces/internal/registry"
	"github.com/codedread/spaces/internal/store"
	"github.com/codedread/spaces/internal/tracing"
)

// Server wraps the HTTP router and every dependency the control API and the
// reconciliation engine need.
type Server struct {
	router  *gin.Engine
	store   *store.Store
	reg     *registry.Registry
	engine  *reconcile.Engine
	logger  *logging.Logger
	metrics *metrics.Metrics
	tracer  *tracing.Tracer
	cfg     *config.Config
}

// New constructs a Server. plat is the browser platform client; both
// cmd/spacesd and the tests supply platform/fake.
func New(cfg *config.Config, plat platform.Client) (*Server, error) {
	var logger *logging.Logger
	var err error
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger, err = logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development, OutputPaths: []string{"stdout"}})
	}
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	logger.Info("initializing spaces daemon",
		zap.String("port", cfg.Server.Port),
		zap.String("store_path", cfg.Store.Path),
	)

	m := metrics.New()
	logger.Info("metrics initialized")

	tracer := tracing.New(logger.Logger)
	logger.Info("tracing initialized")

	st, err := store.Open(cfg.Store.Path, logger, store.WithMetrics(m))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	reg := registry.New(st, logger)

	engine := reconcile.New(reg, st, plat, cfg.Reconcile.ExtensionID, cfg.Reconcile.CurrentVersion, logger,
		reconcile.WithMetrics(m),
		reconcile.WithTracer(tracing.EngineTracer{Tracer: tracer}),
		reconcile.WithDebounce(time.Duration(cfg.Reconcile.DebounceMillis)*time.Millisecond),
	)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID(logger))
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(metrics.Middleware(m))
	router.Use(middleware.CORS(corsConfigFrom(cfg.CORS)))
	if cfg.RateLimit.Enabled {
		logger.Info("rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := http.NewHandlers(reg, logger)
	wsHandler := ws.New(engine, reg, logger, m)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", http.Metrics())
	router.GET("/spaces", handlers.ListSpaces)
	router.GET("/spaces/:id", handlers.GetSpace)
	router.GET("/stream", wsHandler.HandleConnection)

	logger.Info("server initialized")

	return &Server{
		router:  router,
		store:   st,
		reg:     reg,
		engine:  engine,
		logger:  logger,
		metrics: m,
		tracer:  tracer,
		cfg:     cfg,
	}, nil
}

// corsConfigFrom builds the middleware's CORS configuration from the
// config surface, rather than the middleware package's own hardcoded
// defaults: allowed origins and credentials policy are operator-tunable,
// the header allowlist is not.
func corsConfigFrom(cfg config.CORSConfig) middleware.CORSConfig {
	return middleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Content-Length",
			"Accept-Encoding",
			"X-CSRF-Token",
			"Authorization",
			"Accept",
			"Origin",
			"Cache-Control",
			"X-Requested-With",
		},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           time.Duration(cfg.MaxAgeSeconds) * time.Second,
	}
}

// Engine exposes the reconciliation engine so main can start its event loop
// and run EnsureInitialized before serving.
func (s *Server) Engine() *reconcile.Engine { return s.engine }

// Run starts the HTTP server, blocking until it exits or errors.
func (s *Server) Run() error {
	addr := s.cfg.Server.Host + ":" + s.cfg.Server.Port
	s.logger.Info("starting control API", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Close shuts down the store and flushes the logger.
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.store.Close(); err != nil {
		s.logger.Error("failed to close store", zap.Error(err))
		return fmt.Errorf("close store: %w", err)
	}
	_ = s.logger.Sync()
	return nil
}
