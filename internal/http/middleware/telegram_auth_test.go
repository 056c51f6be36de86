package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/cubamarket/go-classifieds-backend/internal/auth"
	"github.com/cubamarket/go-classifieds-backend/internal/services"
)

const authTestToken = "12345:TEST-TOKEN"

func signedInitData(t *testing.T, userJSON string) string {
	t.Helper()
	v := url.Values{}
	v.Set("auth_date", "1756600000")
	v.Set("user", userJSON)
	v.Set("hash", auth.Sign(auth.DataCheckString(v), authTestToken))
	return v.Encode()
}

func authRouter(required bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var mw gin.HandlerFunc
	if required {
		mw = RequireTelegramAuth(authTestToken)
	} else {
		mw = OptionalTelegramAuth(authTestToken)
	}
	r.GET("/whoami", mw, func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			c.JSON(http.StatusOK, gin.H{"anonymous": true})
			return
		}
		c.JSON(http.StatusOK, gin.H{"telegram_id": id.TelegramID, "username": id.Username})
	})
	return r
}

func TestRequireTelegramAuth_ValidHeader(t *testing.T) {
	r := authRouter(true)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-Telegram-Init-Data", signedInitData(t, `{"id":42,"username":"ana"}`))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if body := w.Body.String(); !contains(body, `"telegram_id":42`) || !contains(body, `"username":"ana"`) {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestRequireTelegramAuth_QueryFallback(t *testing.T) {
	r := authRouter(true)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/whoami?initData="+url.QueryEscape(signedInitData(t, `{"id":7}`)), nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestRequireTelegramAuth_MissingAndInvalid(t *testing.T) {
	r := authRouter(true)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing initData status = %d, want 401", w.Code)
	}
	if !contains(w.Body.String(), `"code":"unauthorized"`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-Telegram-Init-Data", "auth_date=1&user=%7B%22id%22%3A1%7D&hash=bad")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("invalid initData status = %d, want 401", w.Code)
	}
}

func TestOptionalTelegramAuth(t *testing.T) {
	r := authRouter(false)

	// Anonymous passes through.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	if w.Code != http.StatusOK || !contains(w.Body.String(), "anonymous") {
		t.Fatalf("anonymous = %d %s", w.Code, w.Body.String())
	}

	// Invalid init data is ignored, not rejected.
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-Telegram-Init-Data", "hash=bad")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !contains(w.Body.String(), "anonymous") {
		t.Fatalf("invalid-optional = %d %s", w.Code, w.Body.String())
	}

	// Valid init data attaches the identity.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-Telegram-Init-Data", signedInitData(t, `{"id":9,"username":"opt"}`))
	r.ServeHTTP(w, req)
	if !contains(w.Body.String(), `"telegram_id":9`) {
		t.Fatalf("identity missing: %s", w.Body.String())
	}
}

func TestAdminBypass(t *testing.T) {
	gin.SetMode(gin.TestMode)
	policy := services.NewAuthPolicy([]int64{42})
	bypass := AdminBypass(policy)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	if bypass(c) {
		t.Fatal("anonymous request bypassed limiter")
	}

	c.Set("identity", services.Identity{TelegramID: 42})
	if !bypass(c) {
		t.Fatal("admin request not bypassed")
	}

	c.Set("identity", services.Identity{TelegramID: 7})
	if bypass(c) {
		t.Fatal("regular user bypassed limiter")
	}
}

func contains(s, sub string) bool { return strings.Contains(s, sub) }
