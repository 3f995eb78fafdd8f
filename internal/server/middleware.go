package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/carebill/internal/observability/context"
	"go.uber.org/zap"
)

const (
	HeaderUserID     = "X-User-ID"
	contextUserIDKey = "user_id"
)

// RequireUser reads the caller identity set by the upstream gateway.
func (s *Server) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextUserIDKey, userID)
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), "user", userID))
		c.Next()
	}
}

// authorize gates a route on one capability of the caller.
func (s *Server) authorize(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(contextUserIDKey)
		if userID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), userID, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// dispatchRateLimit bounds how often one caller may trigger a delivery batch.
// A limiter backend failure lets the request through.
func (s *Server) dispatchRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.dispatchLimiter.Enabled() {
			c.Next()
			return
		}

		result, err := s.dispatchLimiter.Allow(c.Request.Context(), c.GetString(contextUserIDKey))
		if err != nil {
			s.log.Warn("dispatch rate limit check failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			seconds := int(result.RetryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
