// Package middleware – Telegram Mini App authentication.
//
// Mutating endpoints require a verified initData payload; public reads
// accept it opportunistically so views can still be attributed when the
// client sends it. The verified account is exposed to handlers as a
// services.Identity and to the rate limiter as its bucket key.
package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cubamarket/go-classifieds-backend/internal/auth"
	"github.com/cubamarket/go-classifieds-backend/internal/services"
)

const (
	// ctxKeyIdentity holds the verified services.Identity.
	ctxKeyIdentity = "identity"
	// headerInitData carries the raw Mini App init data.
	headerInitData = "X-Telegram-Init-Data"
)

// IdentityFrom returns the verified Telegram identity of the request, if any.
func IdentityFrom(c *gin.Context) (services.Identity, bool) {
	v, ok := c.Get(ctxKeyIdentity)
	if !ok {
		return services.Identity{}, false
	}
	id, ok := v.(services.Identity)
	return id, ok
}

// AdminBypass reports whether the authenticated account is on the given
// admin allow-list, letting moderation traffic skip the rate limiter.
func AdminBypass(policy *services.AuthPolicy) func(*gin.Context) bool {
	return func(c *gin.Context) bool {
		id, ok := IdentityFrom(c)
		return ok && policy.IsAdmin(id.TelegramID)
	}
}

// rawInitData extracts init data from the header or, as a fallback for
// clients that cannot set headers, the initData query parameter.
func rawInitData(c *gin.Context) string {
	if v := c.GetHeader(headerInitData); v != "" {
		return v
	}
	return c.Query("initData")
}

func setIdentity(c *gin.Context, u *auth.WebAppUser) {
	c.Set(ctxKeyIdentity, services.Identity{
		TelegramID: u.ID,
		Username:   u.Username,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
	})
	// Feeds KeyByUserOrIP so authenticated traffic gets per-user buckets.
	c.Set("userID", "tg-"+strconv.FormatInt(u.ID, 10))
}

// RequireTelegramAuth rejects requests without a valid initData signature.
//
// The middleware emits:
//
//	HTTP/1.1 401 Unauthorized
//	{
//	  "request_id": "<uuid>",
//	  "code":       "unauthorized",
//	  "message":    "telegram init data required" | "invalid telegram init data"
//	}
func RequireTelegramAuth(botToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := rawInitData(c)
		u, err := auth.Verify(raw, botToken)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get("X-Request-ID"),
				"code":       "unauthorized",
				"message":    err.Error(),
			})
			return
		}
		setIdentity(c, u)
		c.Next()
	}
}

// OptionalTelegramAuth attaches an identity when valid init data is present
// and silently continues otherwise. Public endpoints use it so anonymous
// browsing keeps working.
func OptionalTelegramAuth(botToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := rawInitData(c); raw != "" {
			if u, err := auth.Verify(raw, botToken); err == nil {
				setIdentity(c, u)
			}
		}
		c.Next()
	}
}
