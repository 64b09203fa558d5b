package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/insightboard/internal/config"
)

func newContext(req *http.Request) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = req
	return c, rec
}

func TestReadTokenPrefersBearer(t *testing.T) {
	m := NewManager(config.Config{AuthCookieName: "_sid"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer header-token")
	req.AddCookie(&http.Cookie{Name: "_sid", Value: "cookie-token"})

	c, _ := newContext(req)
	token, ok := m.ReadToken(c)
	if !ok || token != "header-token" {
		t.Fatalf("expected bearer token, got %q (%v)", token, ok)
	}
}

func TestReadTokenFallsBackToCookie(t *testing.T) {
	m := NewManager(config.Config{AuthCookieName: "session"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc")
	req.AddCookie(&http.Cookie{Name: "session", Value: "cookie-token"})

	c, _ := newContext(req)
	token, ok := m.ReadToken(c)
	if !ok || token != "cookie-token" {
		t.Fatalf("expected cookie token, got %q (%v)", token, ok)
	}
}

func TestReadTokenMissing(t *testing.T) {
	m := NewManager(config.Config{})
	if m.CookieName() != DefaultCookieName {
		t.Fatalf("expected default cookie name, got %q", m.CookieName())
	}

	c, _ := newContext(httptest.NewRequest(http.MethodGet, "/", nil))
	if _, ok := m.ReadToken(c); ok {
		t.Fatalf("expected no token")
	}
}

func TestClearExpiresCookie(t *testing.T) {
	m := NewManager(config.Config{AuthCookieName: "_sid", AuthCookieSecure: true})
	c, rec := newContext(httptest.NewRequest(http.MethodPost, "/", nil))
	m.Clear(c)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "_sid" || cookies[0].MaxAge >= 0 {
		t.Fatalf("unexpected cookies: %+v", cookies)
	}
	if !cookies[0].Secure || !cookies[0].HttpOnly {
		t.Fatalf("expected secure http-only cookie")
	}
}
