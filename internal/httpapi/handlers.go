// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorward Contributors

package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/doorward/doorward/internal/auth"
)

// credentialsRequest is the JSON body for signup and login.
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// userResponse wraps the redacted user snapshot.
type userResponse struct {
	User auth.Snapshot `json:"user"`
}

// recordAuthOp records an auth operation outcome metric when metrics are wired.
func (s *Server) recordAuthOp(operation string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	s.metrics.AuthOpsTotal.WithLabelValues(operation, outcome).Inc()
}

// handleSignup registers a new user and starts a session for it.
func (s *Server) handleSignup(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, oops.Code(auth.CodeMalformedRequest).Wrap(err))
		return
	}

	creds := auth.Credentials{Username: req.Username, Password: req.Password}
	session, token, err := s.svc.Signup(c.Request.Context(), identity(c), creds)
	s.recordAuthOp("signup", err)
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.setSessionCookie(c, token, session.ExpiresAt)
	c.JSON(http.StatusCreated, userResponse{User: session.User})
}

// handleLogin verifies credentials and starts a fresh session.
func (s *Server) handleLogin(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, oops.Code(auth.CodeMalformedRequest).Wrap(err))
		return
	}

	creds := auth.Credentials{Username: req.Username, Password: req.Password}
	session, token, err := s.svc.Login(c.Request.Context(), identity(c), creds)
	s.recordAuthOp("login", err)
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.setSessionCookie(c, token, session.ExpiresAt)
	c.JSON(http.StatusOK, userResponse{User: session.User})
}

// handleLogout destroys the caller's session.
func (s *Server) handleLogout(c *gin.Context) {
	err := s.svc.Logout(c.Request.Context(), identity(c))
	s.recordAuthOp("logout", err)
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.clearSessionCookie(c)
	c.Status(http.StatusNoContent)
}

// handleWhoAmI returns the authenticated caller's redacted snapshot.
func (s *Server) handleWhoAmI(c *gin.Context) {
	snapshot, err := s.svc.WhoAmI(identity(c))
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, userResponse{User: snapshot})
}

// handleHealth reports service liveness for load balancers and dev tooling.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "doorward",
		"version": s.version,
	})
}

// handleNotFound returns a structured JSON 404 for undefined routes.
func (s *Server) handleNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, errorBody{
		Error: errorDetail{
			Code:    "NOT_FOUND",
			Message: "no such route",
		},
	})
}
