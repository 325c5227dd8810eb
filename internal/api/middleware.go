package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pbaille/qabot/internal/session"
	"go.uber.org/zap"
)

const sessionKey = "qabot.session"

// requestLogger logs one line per request
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Warn("request", fields...)
		default:
			logger.Debug("request", fields...)
		}
	}
}

// withCORS adds CORS headers for frontend development
func withCORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

// withSession holds the caller's session for the whole request
func (s *Server) withSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.Cookie(SessionCookie)
		sess, release, created := s.opts.Registry.Acquire(c.Request.Context(), id)
		defer release()

		if created {
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(SessionCookie, sess.ID, 0, "/", "", false, true)
		}
		c.Set(sessionKey, sess)
		c.Next()
	}
}

// requireAdmin gates admin routes on a configured password and a logged-in
// session
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.opts.AdminPassword == "" {
			writeError(c, http.StatusServiceUnavailable, "admin is disabled: ADMIN_PASSWORD is not set")
			return
		}
		if !currentSession(c).Admin {
			writeError(c, http.StatusUnauthorized, "admin login required")
			return
		}
		c.Next()
	}
}

func currentSession(c *gin.Context) *session.Session {
	return c.MustGet(sessionKey).(*session.Session)
}
