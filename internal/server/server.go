package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"load_simulator/internal/attack"
	"load_simulator/internal/collectors"
	"load_simulator/internal/config"
	"load_simulator/internal/leaderboard"
	"load_simulator/internal/pressure"
	"load_simulator/internal/snapshot"
	"load_simulator/internal/window"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Server is the main server struct
type Server struct {
	config     *config.Config
	logger     *zap.Logger
	httpServer *http.Server
	engine     *gin.Engine
	registry   *prometheus.Registry
	collectors []collectors.Collector

	window    *window.Aggregator
	requests  *collectors.RequestCollector
	manager   *pressure.Manager
	builder   *snapshot.Builder
	board     *leaderboard.Board
	simulator *attack.Simulator
	upgrader  websocket.Upgrader

	stopCollection context.CancelFunc
	collectionDone chan struct{}
	mu             sync.Mutex
}

// ServerParams is the parameters for the server
type ServerParams struct {
	fx.In

	Config    *config.Config
	Logger    *zap.Logger
	Window    *window.Aggregator
	Sampler   *collectors.SystemCollector
	Manager   *pressure.Manager
	Builder   *snapshot.Builder
	Board     *leaderboard.Board
	Simulator *attack.Simulator
}

// New creates a new server
// Args:
// - params: ServerParams
// Returns:
// - *Server: new Server instance
func New(params ServerParams) *Server {
	registry := prometheus.NewRegistry()

	// Create collector dependencies
	deps := &collectors.CollectorDependencies{
		Logger: params.Logger,
		Config: params.Config,
	}

	// Initialize collectors
	request_collector := collectors.NewRequestCollector(deps, params.Window)
	pressure_collector := collectors.NewPressureCollector(deps, params.Manager)

	// Register collectors with Prometheus
	registry.MustRegister(params.Sampler)
	registry.MustRegister(request_collector)
	registry.MustRegister(pressure_collector)

	s := &Server{
		config:   params.Config,
		logger:   params.Logger,
		registry: registry,
		collectors: []collectors.Collector{
			params.Sampler,
			request_collector,
			pressure_collector,
		},
		window:    params.Window,
		requests:  request_collector,
		manager:   params.Manager,
		builder:   params.Builder,
		board:     params.Board,
		simulator: params.Simulator,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	s.engine = s.routes()
	s.httpServer = &http.Server{
		Addr:         params.Config.Server.Port,
		Handler:      s.engine,
		ReadTimeout:  params.Config.Server.ReadTimeout.Duration,
		WriteTimeout: params.Config.Server.WriteTimeout.Duration,
	}

	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	// Recovery sits innermost so recorders see the 500 it writes
	r.Use(s.logRequests(), s.recordRequests(), gin.Recovery())

	api := r.Group("/api")
	api.GET("/identity", s.handleGetIdentity)
	api.POST("/identity", s.handlePostIdentity)
	api.GET("/leaderboard", s.handleLeaderboard)
	api.GET("/metrics", s.handleMetrics)
	api.POST("/load/:level", s.handleSetLoad)
	api.GET("/profile", s.handleProfile)
	api.GET("/health", s.handleHealth)

	sim := r.Group("/attack")
	sim.POST("/ddos/start", s.attackHandler(s.simulator.StartDDoS))
	sim.POST("/ddos/stop", s.attackHandler(s.simulator.StopDDoS))
	sim.POST("/bruteforce/run", s.attackHandler(s.simulator.TriggerBruteForce))
	sim.POST("/portscan/run", s.attackHandler(s.simulator.TriggerPortScan))
	sim.POST("/sqlinj/run", s.attackHandler(s.simulator.TriggerSQLInjection))
	r.GET("/logs/recent", s.handleRecentLogs)
	r.GET("/ws", s.handleStream)

	// Prometheus metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})))
	r.GET("/info", s.handleInfo)

	return r
}

// Start starts the server
func (s *Server) Start(ctx context.Context) error {
	// Start metric collection in background
	s.mu.Lock()
	collectCtx, cancel := context.WithCancel(context.Background())
	s.stopCollection = cancel
	s.collectionDone = make(chan struct{})
	s.mu.Unlock()
	go s.startMetricCollection(collectCtx)

	s.simulator.Start(s.config.Attack.TickInterval.Duration)

	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.httpServer.Addr),
		zap.Duration("read_timeout", s.config.Server.ReadTimeout.Duration),
		zap.Duration("write_timeout", s.config.Server.WriteTimeout.Duration),
		zap.String("level", string(s.manager.Level())),
	)

	// Start HTTP server
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("HTTP server failed", zap.Error(err))
		return err
	}

	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")

	s.simulator.Stop()

	s.mu.Lock()
	cancel, done := s.stopCollection, s.collectionDone
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout.Duration)
	defer cancelShutdown()

	return s.httpServer.Shutdown(shutdownCtx)
}

// startMetricCollection starts the metric collection
// It collects metrics at the specified interval
func (s *Server) startMetricCollection(ctx context.Context) {
	defer close(s.collectionDone)

	ticker := time.NewTicker(s.config.Metrics.CollectionInterval.Duration)
	defer ticker.Stop()

	s.logger.Info("Starting metric collection",
		zap.Duration("interval", s.config.Metrics.CollectionInterval.Duration),
		zap.Int("collectors", len(s.collectors)),
	)

	// Collect metrics immediately on startup, this also seeds the disk counters
	s.collectAllMetrics(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping metric collection")
			return
		case <-ticker.C:
			s.collectAllMetrics(ctx)
		}
	}
}

// collectAllMetrics collects all the metrics
// It calls the CollectMetrics method of all the collectors.
func (s *Server) collectAllMetrics(ctx context.Context) {
	start := time.Now()

	// Create a timeout context for metric collection
	collectCtx, cancel := context.WithTimeout(ctx, s.config.Metrics.CommandTimeout.Duration)
	defer cancel()

	for _, collector := range s.collectors {
		if err := collector.CollectMetrics(collectCtx); err != nil {
			s.logger.Error("Failed to collect metrics",
				zap.String("collector", collector.Name()),
				zap.Error(err),
			)
		}
	}

	duration := time.Since(start)
	s.logger.Debug("Metric collection completed",
		zap.Duration("duration", duration),
		zap.Int("collectors", len(s.collectors)),
	)
}

// ServerLifecycle manages the server lifecycle with fx
type ServerLifecycle struct {
	server *Server
	logger *zap.Logger
}

func NewServerLifecycle(server *Server, logger *zap.Logger) *ServerLifecycle {
	return &ServerLifecycle{
		server: server,
		logger: logger,
	}
}

func (sl *ServerLifecycle) Start(ctx context.Context) error {
	go func() {
		if err := sl.server.Start(ctx); err != nil {
			sl.logger.Error("Server startup failed", zap.Error(err))
		}
	}()
	return nil
}

func (sl *ServerLifecycle) Stop(ctx context.Context) error {
	return sl.server.Stop(ctx)
}
