// Package handlers implements the HTTP endpoints of the marketplace API.
//
// This file holds the shared response helpers. Every failure goes through
// fail, which produces the uniform error envelope:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "listing not found"
//	}
//
// Success bodies are written as-is, for example a single listing object or
// the {"listings": [...], "total": n} feed shape.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cubamarket/go-classifieds-backend/internal/http/middleware"
)

// ErrorResponse is the error envelope shared by every endpoint. Code is a
// stable machine-readable string from errors.go; Message may be shown to
// users; RequestID echoes X-Request-ID so a client report can be matched
// with server logs.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string `json:"code" example:"not_found"`
	Message   string `json:"message" example:"listing not found"`
}

// fail aborts the request with the error envelope. Server-side failures
// (5xx) additionally leave an error-level line on the request-scoped logger;
// client errors are already covered by the access log.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail exposes fail to the router for the NoRoute/NoMethod fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success body as JSON with the given status.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent answers 204 for operations with nothing to return.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
