// Package server exposes the audit engine and the fiscal rule tables over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rezonia/nfe-auditor/internal/llm"
	"github.com/rezonia/nfe-auditor/internal/metrics"
	"github.com/rezonia/nfe-auditor/internal/model"
	"github.com/rezonia/nfe-auditor/internal/processor"
	"github.com/rezonia/nfe-auditor/internal/report"
	"github.com/rezonia/nfe-auditor/internal/rules"
	"github.com/rezonia/nfe-auditor/internal/validator"
)

// Config holds server configuration
type Config struct {
	Address       string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	Debug         bool
	Workers       int
	DefaultRegime model.Regime
	ReportVersion string
	AuditTimeout  time.Duration
}

// Server represents the HTTP API server
type Server struct {
	config   *Config
	router   *gin.Engine
	rules    *rules.Snapshot
	engine   *validator.Engine
	pipeline *processor.Pipeline
	advisor  *llm.Advisor
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// Option configures the server
type Option func(*Server)

// WithLogger sets the request and audit logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMetrics records audits and requests on c and serves it on /metrics
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) {
		s.metrics = c
	}
}

// WithAdvisor enables ?advise=true on the audit endpoint
func WithAdvisor(a *llm.Advisor) Option {
	return func(s *Server) {
		s.advisor = a
	}
}

// NewServer creates a new API server validating against snap
func NewServer(config *Config, snap *rules.Snapshot, opts ...Option) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if config.AuditTimeout == 0 {
		config.AuditTimeout = time.Minute
	}

	s := &Server{
		config: config,
		router: gin.New(),
		rules:  snap,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	engineOpts := []validator.EngineOption{validator.WithObserver(s.metrics.ObserveAudit)}
	if config.DefaultRegime != "" {
		engineOpts = append(engineOpts, validator.WithDefaultRegime(config.DefaultRegime))
	}
	s.engine = validator.NewEngine(snap, engineOpts...)

	genOpts := []report.Option{report.WithRepository(snap)}
	if config.ReportVersion != "" {
		genOpts = append(genOpts, report.WithVersion(config.ReportVersion))
	}

	pipeOpts := []processor.Option{
		processor.WithLogger(s.logger),
		processor.WithMetrics(s.metrics),
		processor.WithGenerator(report.NewGenerator(genOpts...)),
	}
	if config.Workers > 0 {
		pipeOpts = append(pipeOpts, processor.WithWorkers(config.Workers))
	}
	s.pipeline = processor.NewPipeline(s.engine, pipeOpts...)
	s.metrics.SetRulesVersion(snap.Version())

	s.router.Use(gin.Recovery(), s.observe())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/audit", s.handleAudit)
		v1.POST("/validate", s.handleValidate)

		r := v1.Group("/rules")
		r.GET("/stats", s.handleRuleStats)
		r.GET("/ncm/:code", s.handleNcm)
		r.GET("/cst/:cst", s.handleCst)
		r.GET("/cfop/:code", s.handleCfop)
		r.GET("/legal", s.handleLegal)
		r.POST("/check", s.handleCheck)
	}
}

// Run starts the HTTP server and shuts it down when ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("address", s.config.Address))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// Handler returns the http.Handler for use with custom servers
func (s *Server) Handler() http.Handler {
	return s.router
}

// observe logs and measures every request
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		status := c.Writer.Status()
		s.metrics.ObserveHTTP(c.Request.Method, route, status, elapsed)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed),
		}
		if status >= http.StatusInternalServerError {
			s.logger.Error("request failed", fields...)
		} else if s.config.Debug {
			s.logger.Debug("request served", fields...)
		}
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"time":          time.Now().UTC().Format(time.RFC3339),
		"rules_version": s.rules.Version(),
	})
}
