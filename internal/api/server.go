package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pbaille/qabot/internal/observability"
	"github.com/pbaille/qabot/internal/qa"
	"github.com/pbaille/qabot/internal/session"
	"github.com/pbaille/qabot/internal/store"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// SessionCookie carries the session id between requests
const SessionCookie = "qabot_session"

// Options are the dependencies of a Server
type Options struct {
	Addr          string
	Registry      *session.Registry
	QA            *qa.Service
	Tables        store.Tables
	AdminPassword string
	Metrics       *observability.Metrics
	Logger        *zap.Logger
}

// Server handles HTTP requests for the qabot API
type Server struct {
	opts   Options
	logger *zap.Logger
	router *gin.Engine
}

// New creates a new API server
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{opts: opts, logger: logger}
	s.router = s.routes()
	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(observability.ServiceName))
	r.Use(requestLogger(s.logger))
	r.Use(withCORS())

	r.GET("/health", s.health)
	if s.opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.opts.Metrics.Handler()))
	}

	api := r.Group("/api", s.withSession())
	api.GET("/session", s.getSession)
	api.POST("/ask", s.ask)
	api.POST("/history/:id/feedback", s.feedback)
	api.DELETE("/history/:id", s.deleteHistory)

	api.POST("/admin/login", s.adminLogin)
	api.POST("/admin/logout", s.adminLogout)

	admin := api.Group("/admin", s.requireAdmin())
	admin.GET("/manual", s.listManual)
	admin.POST("/manual", s.addManual)
	admin.PUT("/manual/:index", s.updateManual)
	admin.DELETE("/manual/:index", s.deleteManual)
	admin.POST("/manual/reload", s.reloadManual)
	admin.GET("/ledger", s.listLedger)
	admin.GET("/ledger/download", s.downloadLedger)
	admin.POST("/save", s.save)

	return r
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", zap.String("addr", s.opts.Addr))
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("shutting down server")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func writeError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}
