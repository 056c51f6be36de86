// Structured request logging, panic recovery, and request-id correlation.
//
// RequestID runs first and gives every request a stable correlation id.
// Logger emits one access-log line per request and parks a request-scoped
// zerolog.Logger in the context under the "logger" key, where LoggerFrom
// picks it up for handlers and services. Recovery turns panics into JSON
// 500 responses that keep the correlation id.
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"

	// maxQueryLogLength caps the logged query string; search filters can
	// get long and logs should not.
	maxQueryLogLength = 2048
)

// RequestID reuses the client's X-Request-ID when present and generates a
// UUIDv4 otherwise. The id is stored in the context and echoed on the
// response so clients can quote it in support requests.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Logger writes a structured access log per request. The log level follows
// the outcome: error for 5xx or when the Gin context collected errors,
// warn for 4xx, info otherwise. The "user_id" field is filled by the
// Telegram auth middleware when the caller presented valid initData.
//
// Must run after RequestID so the correlation id is available.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid, _ := c.Get(requestIDKey)
		path := c.FullPath()
		if path == "" {
			// unmatched route, log the raw URL
			path = c.Request.URL.Path
		}

		l := log.With().
			Str("request_id", asString(rid)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Str("query", truncate(c.Request.URL.RawQuery, maxQueryLogLength)).
			Int64("bytes_in", c.Request.ContentLength).
			Logger()
		c.Set("logger", &l)

		c.Next()

		// Set by the Telegram auth middleware, so only known after the
		// chain ran.
		uid, _ := c.Get("userID")

		done := l.With().
			Str("user_id", asString(uid)).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Int("bytes_out", c.Writer.Size()).
			Logger()

		switch status := c.Writer.Status(); {
		case len(c.Errors) > 0:
			done.Error().Str("errors", c.Errors.String()).Msg("request")
		case status >= 500:
			done.Error().Msg("request")
		case status >= 400:
			done.Warn().Msg("request")
		default:
			done.Info().Msg("request")
		}
	}
}

// Recovery logs the panic with a stack trace and answers with the standard
// JSON error envelope, unless part of the response already went out, in
// which case only the status is forced to 500.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid, _ := c.Get(requestIDKey)
			log.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("request_id", asString(rid)).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header("Content-Type", "application/json")
			c.Header(requestIDHeader, asString(rid))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": asString(rid),
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger attached by Logger, or a
// plain global-backed logger when none is present, so callers never need a
// nil check.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, found := c.Get("logger"); found {
		if lg, isLogger := v.(*zerolog.Logger); isLogger {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// asString narrows a context value to string, empty for anything else.
func asString(v any) string {
	s, _ := v.(string)
	return s
}

// truncate caps s at max bytes, appending an ellipsis. max <= 0 disables
// truncation. Byte-level slicing is fine for log output.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
