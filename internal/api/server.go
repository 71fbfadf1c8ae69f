// Package api is the Bridge Hub's HTTP surface (spec.md §6): a Gin
// server with CORS/rate-limit/logging/timeout middleware, grounded on
// explorer/indexer/internal/api/server.go's structure and wired to the
// hub's own repositories, oracle registry, fee estimator, and signer
// instead of the teacher's blockchain database.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/avicenne-studio/bridge-hub/internal/events"
	"github.com/avicenne-studio/bridge-hub/internal/fees"
	"github.com/avicenne-studio/bridge-hub/internal/oracle/registry"
	"github.com/avicenne-studio/bridge-hub/internal/orders"
	"github.com/avicenne-studio/bridge-hub/internal/respcache"
	"github.com/avicenne-studio/bridge-hub/internal/signer"
	"github.com/avicenne-studio/bridge-hub/pkg/logger"
)

var (
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_hub_api_requests_total",
			Help: "Total number of API requests.",
		},
		[]string{"method", "path", "status"},
	)
	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_hub_api_request_duration_seconds",
			Help:    "API request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Config tunes the HTTP surface itself (spec.md §6 PORT/HOST/RATE_LIMIT_MAX).
type Config struct {
	Host            string
	Port            int
	RateLimitMax    int
	RequestTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
	return c
}

// Deps bundles every collaborator a handler needs. All fields except
// Cache are required.
type Deps struct {
	Orders    orders.Repository
	Events    events.Repository
	Registry  *registry.Registry
	Estimator *fees.Estimator
	Signer    *signer.Signer
	Cache     *respcache.Cache // optional; nil disables response caching
}

// Server is the Bridge Hub HTTP API.
type Server struct {
	cfg       Config
	deps      Deps
	log       *logger.Logger
	router    *gin.Engine
	httpSrv   *http.Server
	limiter   *RateLimiter
	startedAt time.Time
}

func NewServer(cfg Config, deps Deps, log *logger.Logger) *Server {
	cfg = cfg.withDefaults()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		cfg:       cfg,
		deps:      deps,
		log:       log,
		router:    router,
		limiter:   NewRateLimiter(cfg.RateLimitMax),
		startedAt: time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Hub-Id, X-Key-Id, X-Timestamp, X-Nonce, X-Body-Hash, X-Signature")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	s.router.Use(s.limiter.middleware())

	s.router.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		s.log.Info("api request", "method", c.Request.Method, "path", path, "status", status, "duration_ms", duration.Milliseconds())
		apiRequestsTotal.WithLabelValues(c.Request.Method, path, fmt.Sprintf("%d", status)).Inc()
		apiRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration.Seconds())
	})

	s.router.Use(func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"version": "1.0.0"})
	})

	v1 := s.router.Group("/api")
	{
		v1.GET("/health/bridge", s.handleHealthBridge)
		v1.GET("/health/oracles", s.handleHealthOracles)
		v1.GET("/keys", s.handleKeys)
		v1.GET("/stats", s.handleStats)

		ord := v1.Group("/orders")
		{
			ord.GET("", s.handleListOrders)
			ord.GET("/signatures", s.handleOrderSignatures)
			ord.GET("/events", s.handleOrderEvents)
			ord.GET("/trx-hash", s.handleOrderByTrxHash)
			ord.POST("/estimate", s.handleEstimate)
			ord.GET("/:id", s.handleOrderByID)
		}
	}
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpSrv = &http.Server{
		Addr:           addr,
		Handler:        s.router,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	s.log.Info("starting api server", "addr", addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
