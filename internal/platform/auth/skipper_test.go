package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestIsPublicPath(t *testing.T) {
	for _, p := range []string{"/health", "/health/db", "/metrics", "/api/signup"} {
		if !IsPublicPath(p) {
			t.Errorf("expected %s to be public", p)
		}
	}
	for _, p := range []string{"/api/hospitals", "/api/patient/reserve_bed", "/api/init_dummy_data"} {
		if IsPublicPath(p) {
			t.Errorf("expected %s to be protected", p)
		}
	}
}

func TestJWTMiddleware_SkipsPublicPaths(t *testing.T) {
	e := echo.New()
	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Skipper: AuthSkipper})
	e.Use(mw)
	e.GET("/health", okHandler)
	e.GET("/api/hospitals", okHandler)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected /health to skip auth, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/hospitals", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 on protected path, got %d", rec.Code)
	}
}
