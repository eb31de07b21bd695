// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorward Contributors

package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/doorward/doorward/internal/auth"
	"github.com/doorward/doorward/pkg/errutil"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusForCode maps auth error codes to HTTP statuses.
var statusForCode = map[string]int{
	auth.CodeMalformedRequest:     http.StatusBadRequest,
	auth.CodeUsernameTaken:        http.StatusConflict,
	auth.CodeUnknownUser:          http.StatusNotFound,
	auth.CodeInvalidCredentials:   http.StatusUnauthorized,
	auth.CodeUnauthenticated:      http.StatusUnauthorized,
	auth.CodeAlreadyAuthenticated: http.StatusConflict,
}

// writeError translates a service error into an HTTP response. Errors
// without a mapped code become a generic 500; internals are logged, never
// sent to the client.
func (s *Server) writeError(c *gin.Context, err error) {
	code := errutil.CodeOf(err)
	status, ok := statusForCode[code]
	if !ok {
		errutil.LogError(s.logger, "internal error", err)
		c.JSON(http.StatusInternalServerError, errorBody{
			Error: errorDetail{
				Code:    "INTERNAL",
				Message: "internal server error",
			},
		})
		return
	}

	c.JSON(status, errorBody{
		Error: errorDetail{
			Code:    code,
			Message: err.Error(),
		},
	})
}
