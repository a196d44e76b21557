package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/atharvakonge/finance/internal/models"
	"github.com/atharvakonge/finance/internal/repository"
)

const userKey = "user"

// NoCache stops browsers from caching pages that show account data.
func NoCache() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Header("Expires", "0")
		c.Header("Pragma", "no-cache")
		c.Next()
	}
}

// RequestLogger logs one line per request.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("request_id", requestid.Get(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Error("request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

// RequireLogin redirects anonymous visitors to /login before the handler runs.
func (h *Handler) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := h.sessions.UserID(c.Request)
		if !ok {
			c.Redirect(http.StatusSeeOther, "/login")
			c.Abort()
			return
		}

		user, err := h.users.FindUserByID(c.Request.Context(), id)
		if errors.Is(err, repository.ErrUserNotFound) {
			if err = h.sessions.Clear(c.Writer, c.Request); err != nil {
				h.log.Warn("clear stale session", zap.Error(err))
			}
			c.Redirect(http.StatusSeeOther, "/login")
			c.Abort()
			return
		}
		if err != nil {
			h.internalError(c, err)
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) models.User {
	return c.MustGet(userKey).(models.User)
}
