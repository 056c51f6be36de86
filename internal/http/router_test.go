package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cubamarket/go-classifieds-backend/internal/config"
	"github.com/cubamarket/go-classifieds-backend/internal/domain"
	"github.com/cubamarket/go-classifieds-backend/internal/notify"
	"github.com/cubamarket/go-classifieds-backend/internal/storage"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "router.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.Listing{}, &domain.ListingPhoto{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		APIBasePath: "/api",
		RateRPS:     100,
		RateBurst:   10,
		CORS:        config.CORSConfig{AllowedOrigins: nil}, // AllowAllOrigins branch
		Security:    config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
		Upload: config.UploadConfig{
			Dir:           t.TempDir(),
			MaxFileBytes:  5 << 20,
			MaxPerRequest: 5,
		},
		Telegram:         config.TelegramConfig{BotToken: "123:token", RequiredChannel: "@canal"},
		ActiveListingCap: 10,
		TitleMaxLen:      100,
	}
}

func newTestRouter(t *testing.T, cfg config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	store, err := storage.NewFSStore(cfg.Upload.Dir)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	RegisterRoutes(r, newTestDB(t), store, notify.NoopNotifier{}, notify.AlwaysSubscribed{}, cfg)
	return r
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r := newTestRouter(t, testConfig(t))

	// /api/health works and reports a timestamp
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/health = %d", w.Code)
	}
	var health map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil || health["status"] != "ok" || health["timestamp"] == "" {
		t.Fatalf("health payload bad: %s", w.Body.String())
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// /metrics is wired
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || len(w.Body.Bytes()) == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	// NoMethod → 405 (DELETE /api/health)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/api/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("DELETE /api/health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig(t)
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	r := newTestRouter(t, cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://example.com")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestRegisterRoutes_PublicEndpoints(t *testing.T) {
	r := newTestRouter(t, testConfig(t))

	// Empty feed returns the {listings, total} envelope.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/listings", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/listings = %d body=%s", w.Code, w.Body.String())
	}
	var feed struct {
		Listings []json.RawMessage `json:"listings"`
		Total    int64             `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &feed); err != nil {
		t.Fatalf("feed payload: %v", err)
	}
	if feed.Listings == nil || feed.Total != 0 {
		t.Fatalf("empty feed payload bad: %s", w.Body.String())
	}

	// City catalog is served.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/cities", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "la-habana") {
		t.Fatalf("GET /api/cities bad: code=%d body=%s", w.Code, w.Body.String())
	}

	// Unauthenticated callers are not admins.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/listings/check-admin", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"is_admin":false`) {
		t.Fatalf("check-admin bad: code=%d body=%s", w.Code, w.Body.String())
	}

	// Mutations without init data are rejected.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/api/listings/1", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated DELETE = %d, want 401", w.Code)
	}

	// Subscription check with the always-subscribed fake.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/subscription/check",
		strings.NewReader(`{"user_id": 42}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"subscribed":true`) {
		t.Fatalf("subscription check bad: code=%d body=%s", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_ServesUploadsWithCacheHeaders(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(filepath.Join(cfg.Upload.Dir, "pic.jpg"), []byte("jpegdata"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	r := newTestRouter(t, cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/uploads/pic.jpg", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "jpegdata" {
		t.Fatalf("GET /uploads/pic.jpg = %d %q", w.Code, w.Body.String())
	}
	if cc := w.Header().Get("Cache-Control"); !strings.HasPrefix(cc, "public, max-age=") {
		t.Fatalf("Cache-Control = %q, want long-lived public", cc)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	root1 := groupWithPrefix(r, "/")
	root1.GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	root2 := groupWithPrefix(r, "")
	root2.GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })

	// non-root prefix
	api := groupWithPrefix(r, "/api")
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, body := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK || rec.Body.String() != body {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

// Smoke test that a request traverses auth + ratelimit + otel + security headers pipeline.
func TestPipeline_Smoke(t *testing.T) {
	cfg := testConfig(t)
	cfg.Security = config.SecurityConfig{EnableHSTS: true, HSTSMaxAge: time.Hour}
	r := newTestRouter(t, cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	// simulate https so HSTS could be eligible if middleware checks scheme
	req.URL.Scheme = "https"
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("pipeline GET /api/health = %d", w.Code)
	}
	// RequestID header should be present (from RequestID middleware)
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
}
