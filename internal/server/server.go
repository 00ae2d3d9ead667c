// Package server exposes execution snapshots over HTTP and websockets
// for chart front-ends, plus health and Prometheus endpoints.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/studiowebux/perfwatch/internal/client"
	"github.com/studiowebux/perfwatch/internal/session"
	"github.com/studiowebux/perfwatch/internal/types"
	"go.uber.org/zap"
)

// ShutdownTimeout bounds graceful shutdown of open connections
const ShutdownTimeout = 10 * time.Second

// detailCache is implemented by sources that cache execution lookups
type detailCache interface {
	CachedExecution(ctx context.Context, execID string) (*types.ExecutionDetail, error)
}

// Options configures the server
type Options struct {
	Session session.Options
	Logger  *zap.Logger
}

// Server serves execution data from a source
type Server struct {
	src      session.Source
	opts     Options
	log      *zap.Logger
	engine   *gin.Engine
	upgrader websocket.Upgrader
}

// New builds the router
func New(src session.Source, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Session.Logger == nil {
		opts.Session.Logger = opts.Logger
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		src:    src,
		opts:   opts,
		log:    opts.Logger.Named("server"),
		engine: gin.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// chart front-ends are served from other origins
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.engine.GET("/healthz", s.healthz)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		prometheus.DefaultGatherer,
		promhttp.HandlerOpts{DisableCompression: true},
	)))

	api := s.engine.Group("/api/executions")
	api.GET("/:id", s.execution)
	api.GET("/:id/stream", s.stream)
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	s.log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "up"})
}

func (s *Server) execution(c *gin.Context) {
	id := c.Param("id")

	var (
		detail *types.ExecutionDetail
		err    error
	)
	if cached, ok := s.src.(detailCache); ok {
		detail, err = cached.CachedExecution(c.Request.Context(), id)
	} else {
		detail, err = s.src.Execution(c.Request.Context(), id)
	}
	if err != nil {
		status := http.StatusBadGateway
		if client.IsNotFound(err) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, detail)
}
