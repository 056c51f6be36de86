// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging, panic recovery, metrics, CORS,
// security headers, authentication, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/cubamarket/go-classifieds-backend/internal/config"
	"github.com/cubamarket/go-classifieds-backend/internal/http/handlers"
	"github.com/cubamarket/go-classifieds-backend/internal/http/middleware"
	"github.com/cubamarket/go-classifieds-backend/internal/notify"
	"github.com/cubamarket/go-classifieds-backend/internal/services"
	"github.com/cubamarket/go-classifieds-backend/internal/storage"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), authentication and
// rate limiting, CORS and security headers, the health and metrics
// endpoints, static photo serving, and the public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured request logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter (sized for a full photo batch)
//  6. Metrics
//  7. Optional Telegram auth (identifies callers for rate buckets and reads)
//  8. Rate limiter (per user/IP, admins bypass for moderation)
//  9. CORS and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, store *storage.FSStore, notifier notify.Notifier, subs handlers.SubscriptionChecker, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured request logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Body cap: a full photo batch plus form overhead
	maxBody := cfg.Upload.MaxFileBytes*int64(cfg.Upload.MaxPerRequest) + 1<<20
	r.Use(limitBody(maxBody))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Dependency injection: services ← repo/db/storage/bot
	policy := services.NewAuthPolicy(cfg.Telegram.AdminIDs)
	listingSvc := &services.ListingService{
		DB:               db,
		Store:            store,
		Notifier:         notifier,
		Policy:           policy,
		ActiveListingCap: cfg.ActiveListingCap,
		TitleMaxLen:      cfg.TitleMaxLen,
		MaxPhotos:        cfg.Upload.MaxPerRequest,
	}
	h := handlers.New(listingSvc, policy, subs, cfg.Telegram.RequiredChannel,
		cfg.Upload.MaxFileBytes, cfg.Upload.MaxPerRequest)

	// 7) Attach identities early so the rate limiter buckets per account
	r.Use(middleware.OptionalTelegramAuth(cfg.Telegram.BotToken))

	// 8) Token-bucket rate limiter per user/IP; moderation traffic bypasses
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).
		Bypass(middleware.AdminBypass(policy))
	r.Use(rl.Handler())

	// 9) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Telegram-Init-Data"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Telegram-Init-Data"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Stored photos are immutable (unique generated names), so clients may
	// cache them aggressively.
	uploads := r.Group("/"+storage.PublicPrefix, cacheControl(30*24*time.Hour))
	uploads.Static("/", cfg.Upload.Dir)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath) // e.g. "/api"
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":    "ok",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
		})

		// Listings
		requireAuth := middleware.RequireTelegramAuth(cfg.Telegram.BotToken)
		api.GET("/listings", h.ListListings)
		api.GET("/listings/check-admin", h.CheckAdmin)
		api.GET("/listings/:id", h.GetListing)
		api.POST("/listings", requireAuth, h.CreateListing)
		api.PUT("/listings/:id", requireAuth, h.UpdateListing)
		api.PATCH("/listings/:id/status", requireAuth, h.SetListingStatus)
		api.DELETE("/listings/:id", requireAuth, h.DeleteListing)
		api.POST("/listings/:id/promote", requireAuth, h.PromoteListing)

		// Catalogs and channel membership
		api.GET("/cities", h.ListCities)
		api.POST("/subscription/check", h.CheckSubscription)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// cacheControl marks responses as long-lived public content.
func cacheControl(maxAge time.Duration) gin.HandlerFunc {
	value := "public, max-age=" + strconv.Itoa(int(maxAge.Seconds()))
	return func(c *gin.Context) {
		c.Writer.Header().Set("Cache-Control", value)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
