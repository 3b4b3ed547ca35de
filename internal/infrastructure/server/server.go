package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/dachid/flowscope/internal/api/http"
	"github.com/dachid/flowscope/internal/api/middleware"
	"github.com/dachid/flowscope/internal/api/ws"
	"github.com/dachid/flowscope/internal/domain/session"
	"github.com/dachid/flowscope/internal/domain/trace"
	"github.com/dachid/flowscope/internal/infrastructure/config"
	"github.com/dachid/flowscope/internal/infrastructure/logging"
	"github.com/dachid/flowscope/internal/infrastructure/monitoring"
	"github.com/dachid/flowscope/internal/storage"
)

const shutdownTimeout = 10 * time.Second

// Server wires the trace engine together: storage, session registry,
// ingestion pipeline, correlator, broadcast gateway and the HTTP/WS
// surface.
type Server struct {
	httpServer *http.Server
	router     *gin.Engine
	store      storage.Store
	registry   *session.Registry
	gateway    *ws.Gateway
	pipeline   *trace.Pipeline
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics
}

// NewServer creates a server instance from configuration
func NewServer(cfg *config.Config) (*Server, error) {
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		lc := logging.DefaultConfig()
		lc.Level = cfg.Logging.Level
		l, err := logging.New(lc)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
		}
		logger = l
	}

	logger.Info("initializing flowscope engine",
		zap.String("port", cfg.Server.Port),
		zap.String("storage_driver", cfg.Storage.Driver),
	)

	metrics := monitoring.NewMetrics()

	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	registry := session.NewRegistry()
	validator := trace.NewValidator(cfg.Trace.MetadataMaxBytes)
	detector := trace.NewDetector()

	gateway := ws.NewGateway(registry, store, logger.Named("ws")).WithMetrics(metrics)
	pipeline := trace.NewPipeline(validator, detector, registry, store, gateway, logger.Named("pipeline")).WithMetrics(metrics)
	gateway.SetSubmitter(pipeline)
	correlator := trace.NewCorrelator(store)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS())
	if cfg.RateLimit.Enabled {
		logger.Info("rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(cfg.RateLimit))
	}

	handlers := apihttp.NewHandlers(pipeline, correlator, registry, store, gateway, logger.Named("http")).WithMetrics(metrics)

	// Submission
	router.POST("/traces", handlers.SubmitTrace)
	router.POST("/traces/batch", handlers.SubmitBatch)
	router.POST("/sessions/submit", handlers.SubmitSession)

	// Queries
	router.POST("/correlate", handlers.Correlate)
	router.GET("/sessions/:id", handlers.GetSession)
	router.GET("/sessions/:id/traces", handlers.GetSessionTraces)

	// Lifecycle
	router.POST("/sessions/:id/end", handlers.EndSession)
	router.POST("/sessions/:id/archive", handlers.ArchiveSession)

	// Introspection
	router.GET("/status", handlers.Status)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Live streaming
	router.GET("/stream", gateway.HandleConnection)

	logger.Info("engine initialized")

	return &Server{
		httpServer: &http.Server{
			Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
			Handler: router,
		},
		router:   router,
		store:    store,
		registry: registry,
		gateway:  gateway,
		pipeline: pipeline,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}, nil
}

func openStore(cfg *config.Config, logger *logging.Logger) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case "memory":
		logger.Info("using in-memory store")
		return storage.NewMemory(), nil
	default:
		logger.Info("using sqlite store", zap.String("path", cfg.Storage.Path))
		db, err := storage.OpenSQLite(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		return storage.NewResilient(db), nil
	}
}

// Run starts the HTTP server and blocks until it stops
func (s *Server) Run() error {
	s.logger.Info("starting http server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts the server down gracefully: in-flight requests drain
// within the shutdown timeout, then the store closes.
func (s *Server) Close() error {
	s.logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("http shutdown failed", zap.Error(err))
	}

	if err := s.store.Close(); err != nil {
		s.logger.Error("failed to close store", zap.Error(err))
		return fmt.Errorf("failed to close store: %w", err)
	}

	s.logger.Sync()
	return nil
}
