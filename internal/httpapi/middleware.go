// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorward Contributors

package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/doorward/doorward/internal/auth"
	"github.com/doorward/doorward/pkg/errutil"
)

// identityKey is the gin context key holding the resolved Identity.
const identityKey = "doorward.identity"

// sessionBinder resolves the session cookie into an Identity for the request.
// A stale cookie is cleared; a valid one is re-issued with the refreshed
// expiry so active clients never fall off a cliff.
func (s *Server) sessionBinder() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(s.cookie.Name)
		if err != nil {
			token = ""
		}

		id, resolveErr := s.svc.Resolve(c.Request.Context(), token)
		if resolveErr != nil {
			errutil.LogError(s.logger, "session resolution failed", resolveErr)
			s.writeError(c, resolveErr)
			c.Abort()
			return
		}

		if id.IsAnonymous() {
			if token != "" {
				s.clearSessionCookie(c)
			}
		} else {
			s.setSessionCookie(c, token, id.Session().ExpiresAt)
		}

		c.Set(identityKey, id)
		c.Next()
	}
}

// identity returns the Identity bound to the request.
func identity(c *gin.Context) auth.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(auth.Identity); ok {
			return id
		}
	}
	return auth.Anonymous()
}

// setSessionCookie issues the session cookie with an expiry matching the
// session's.
func (s *Server) setSessionCookie(c *gin.Context, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(s.cookie.Name, token, maxAge, "/", "", s.cookie.Secure, true)
}

// clearSessionCookie removes the session cookie from the client.
func (s *Server) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(s.cookie.Name, "", -1, "/", "", s.cookie.Secure, true)
}

// requestMetrics records per-route request counts and latency.
func (s *Server) requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		s.metrics.RequestsTotal.WithLabelValues(route, status).Inc()
		s.metrics.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
