// Package server sets up the HTTP server with all routes.
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/Kenny3D1/fraudpop/internal/config"
	"github.com/Kenny3D1/fraudpop/internal/health"
	"github.com/Kenny3D1/fraudpop/internal/jobs"
	"github.com/Kenny3D1/fraudpop/internal/ledger"
	"github.com/Kenny3D1/fraudpop/internal/logging"
	"github.com/Kenny3D1/fraudpop/internal/metrics"
	"github.com/Kenny3D1/fraudpop/internal/pipeline"
	"github.com/Kenny3D1/fraudpop/internal/ratelimit"
	"github.com/Kenny3D1/fraudpop/internal/risk"
	"github.com/Kenny3D1/fraudpop/internal/scoring"
	"github.com/Kenny3D1/fraudpop/internal/security"
	"github.com/Kenny3D1/fraudpop/internal/traces"
	"github.com/Kenny3D1/fraudpop/internal/validation"
	"github.com/Kenny3D1/fraudpop/internal/vault"
	"github.com/Kenny3D1/fraudpop/internal/webhook"
	"github.com/Kenny3D1/fraudpop/internal/writeback"
)

// Server wraps the HTTP server and dependencies.
type Server struct {
	cfg         *config.Config
	ledger      ledger.Store
	vault       vault.Store
	risks       risk.Store
	queue       jobs.Queue
	runner      *jobs.Runner
	processor   *pipeline.Processor
	writeback   *writeback.Client
	rateLimiter *ratelimit.Limiter
	healthReg   *health.Registry
	db          *sql.DB // nil if using in-memory
	router      *gin.Engine
	httpSrv     *http.Server
	logger      *slog.Logger
	stopTracing func(context.Context) error
	stopStats   context.CancelFunc

	ready atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithWriteback sets a custom writeback client (for testing).
func WithWriteback(wb *writeback.Client) Option {
	return func(s *Server) {
		s.writeback = wb
	}
}

// New creates a new server instance.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Storage: Postgres if DATABASE_URL set, otherwise in-memory.
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.ledger = ledger.NewPostgresStore(db)
		s.vault = vault.NewPostgresStore(db)
		s.risks = risk.NewPostgresStore(db)
		s.queue = jobs.NewPostgresQueue(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		statsCtx, cancel := context.WithCancel(context.Background())
		s.stopStats = cancel
		go metrics.StartDBStatsCollector(statsCtx, db, 15*time.Second)
	} else {
		s.ledger = ledger.NewMemoryStore()
		s.vault = vault.NewMemoryStore()
		s.risks = risk.NewMemoryStore()
		s.queue = jobs.NewMemoryQueue()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Writeback client unless injected; disabled without a token.
	if s.writeback == nil && cfg.AccessToken != "" {
		s.writeback = writeback.NewClient(writeback.Config{
			APIVersion: cfg.APIVersion,
			Timeout:    cfg.WritebackTimeout,
		}, s.logger)
		s.logger.Info("verdict writeback enabled", "apiVersion", cfg.APIVersion)
	}
	if s.writeback == nil {
		s.logger.Info("verdict writeback disabled (no access token)")
	}

	engine := scoring.NewDefaultEngine(scoring.RuleConfig{
		HighValueAmount:   cfg.HighValueAmount,
		HighItemCount:     cfg.HighItemCount,
		VelocityThreshold: cfg.VelocityThreshold,
		EmailTLDDenylist:  cfg.EmailTLDDenylist,
	})

	s.processor = pipeline.NewProcessor(
		s.ledger,
		s.vault,
		vault.NewHasher(cfg.VaultPepper),
		s.risks,
		engine,
		s.writeback,
		cfg.AccessToken,
		s.logger,
	)

	runnerCfg := jobs.DefaultRunnerConfig()
	runnerCfg.Workers = cfg.WorkerCount
	runnerCfg.MaxAttempts = cfg.JobMaxAttempts
	runnerCfg.BaseBackoff = cfg.JobBaseBackoff
	runnerCfg.JobTimeout = cfg.JobTimeout
	s.runner = jobs.NewRunner(s.queue, runnerCfg, s.logger)
	s.processor.Register(s.runner)

	s.healthReg = health.NewRegistry()
	if s.db != nil {
		s.healthReg.Register("postgres", health.DatabaseChecker("postgres", s.db))
	}
	s.healthReg.Register("runner", health.BoolChecker("runner", func() bool { return s.ready.Load() }))

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())

	// The capture beacon is posted from storefront pages, so cross-origin
	// requests are expected on this API.
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	s.router.Use(validation.RequestSizeMiddleware(validation.MaxWebhookBody))

	limiterCfg := ratelimit.DefaultConfig()
	limiterCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	s.rateLimiter = ratelimit.New(limiterCfg)
	s.router.Use(s.rateLimiter.Middleware())

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.livenessHandler)
	s.router.GET("/readyz", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	ingest := webhook.NewHandler(s.ledger, s.queue, s.risks, s.cfg.WebhookSecret, s.cfg.JobMaxAttempts, s.logger)
	ingest.RegisterRoutes(s.router.Group(""))

	v1 := s.router.Group("/v1")
	ingest.RegisterCaptureRoutes(v1)
	risk.NewHandler(s.risks).RegisterRoutes(v1)
}

func (s *Server) livenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	healthy, statuses := s.healthReg.CheckAll(c.Request.Context())
	code := http.StatusOK
	result := "ok"
	if !healthy {
		code = http.StatusServiceUnavailable
		result = "degraded"
	}
	c.JSON(code, gin.H{"status": result, "checks": statuses})
}

// Run starts the server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.cfg.OTLPEndpoint != "" {
		stop, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
		if err != nil {
			s.logger.Warn("tracing init failed", "error", err)
		} else {
			s.stopTracing = stop
		}
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	s.runner.Start(runCtx)
	s.ready.Store(true)
	s.logger.Info("server ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server. In-flight jobs finish before the
// queue stops being polled.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
		}
	}

	if s.runner != nil {
		s.runner.Stop()
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.stopStats != nil {
		s.stopStats()
	}

	if s.stopTracing != nil {
		if err := s.stopTracing(ctx); err != nil {
			s.logger.Error("tracing shutdown error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// maskDSN hides credentials in a database URL for logging.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "(unparseable)"
	}
	if u.User != nil {
		u.User = url.User(u.User.Username())
	}
	return u.Redacted()
}
