package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"quantex/config"
	"quantex/internal/logging"
	"quantex/internal/runs"
)

type Server struct {
	engine  *gin.Engine
	server  *http.Server
	runs    *runs.Manager
	history History
	cfg     *config.Config
	logger  *zap.Logger
	hub     *hub
}

// NewServer wires the HTTP surface. history may be nil when no database is
// configured; lookups then only see in-memory runs.
func NewServer(cfg *config.Config, m *runs.Manager, history History, logger *zap.Logger) *Server {
	logger = logging.Component(logger, "api")

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware(cfg.CORSOrigins))
	engine.Use(loggerMiddleware(logger))

	s := &Server{
		engine:  engine,
		runs:    m,
		history: history,
		cfg:     cfg,
		logger:  logger,
		hub:     newHub(m, logger),
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	s.setupRoutes()
	go s.hub.run()
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) setupRoutes() {
	handler := NewHandler(s.runs, s.history, s.cfg, s.logger)
	limit := rateLimitMiddleware(s.cfg.RateLimit, s.cfg.RateBurst)
	body := bodyLimitMiddleware(s.cfg.MaxBodyBytes)

	api := s.engine.Group("/api")
	{
		api.POST("/backtest", limit, body, handler.PostBacktest)
		api.POST("/backtest/csv", limit, body, handler.PostBacktestCSV)

		api.GET("/runs", handler.ListRuns)
		api.GET("/runs/latest", handler.GetLatestRun)
		api.DELETE("/runs/latest", handler.ResetLatestRun)
		api.GET("/runs/:id", handler.GetRun)
		api.GET("/runs/:id/trades.csv", handler.GetRunTradesCSV)
		api.GET("/runs/:id/chart.svg", handler.GetRunChartSVG)

		api.POST("/structure", limit, body, handler.PostStructure)
		api.GET("/structure", handler.GetStructure)

		api.GET("/ws", s.hub.serve)
	}

	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func (s *Server) Start() error {
	s.logger.Info("listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and closes websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.close()
	return s.server.Shutdown(ctx)
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		logger.Info("request", fields...)
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	allowAll := len(origins) == 0
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimSuffix(o, "/")] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		switch {
		case allowAll:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// bodyLimitMiddleware rejects bodies over max bytes. Declared lengths are
// checked up front; chunked bodies fail on read. max <= 0 disables it.
func bodyLimitMiddleware(max int64) gin.HandlerFunc {
	if max <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > max {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("request body exceeds %d bytes", max)})
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)
		}
		c.Next()
	}
}

// rateLimitMiddleware applies a token bucket per client IP. perSecond <= 0
// disables it.
func rateLimitMiddleware(perSecond float64, burst int) gin.HandlerFunc {
	if perSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiters := newClientLimiters(perSecond, burst)

	return func(c *gin.Context) {
		if !limiters.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

type clientLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// clientLimiters keeps one token bucket per client. A bucket idle long enough
// to have refilled completely is dropped, since a fresh one behaves the same.
type clientLimiters struct {
	mu        sync.Mutex
	perSecond rate.Limit
	burst     int
	idle      time.Duration
	clients   map[string]*clientLimiter
	lastSweep time.Time
	now       func() time.Time
}

func newClientLimiters(perSecond float64, burst int) *clientLimiters {
	if burst < 1 {
		burst = 1
	}
	idle := time.Duration(float64(burst) / perSecond * float64(time.Second))
	if idle < time.Minute {
		idle = time.Minute
	}
	return &clientLimiters{
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		idle:      idle,
		clients:   make(map[string]*clientLimiter),
		now:       time.Now,
	}
}

func (l *clientLimiters) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idle {
		for k, cl := range l.clients {
			if now.Sub(cl.lastSeen) >= l.idle {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	cl, ok := l.clients[ip]
	if !ok {
		cl = &clientLimiter{lim: rate.NewLimiter(l.perSecond, l.burst)}
		l.clients[ip] = cl
	}
	cl.lastSeen = now
	return cl.lim.AllowN(now, 1)
}
