package internal

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/mediakeep/internal/sse"
	"github.com/starford/mediakeep/internal/testutil"
)

func testRuntime(t *testing.T, authMode, token string) (*Runtime, http.Handler) {
	t.Helper()
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Uploads.Root = filepath.Join(dir, "uploads")
	cfg.Content.Path = filepath.Join(dir, "content")
	cfg.SQLite.Path = filepath.Join(dir, "inventory.db")
	cfg.Auth = AuthConfig{Mode: authMode, Token: token}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	broker := sse.NewBroker(0)
	t.Cleanup(broker.Close)

	rt, err := open(cfg, logger, broker)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { rt.Close() })
	return rt, newRootRouter(cfg, rt, broker)
}

func TestRootRouter_Health(t *testing.T) {
	_, h := testRuntime(t, AuthModeToken, "secret")
	for _, p := range []string{"/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, p, nil))
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
			t.Errorf("%s: %d %s", p, rec.Code, rec.Body.String())
		}
	}
}

func TestRootRouter_UploadsPublicAPIProtected(t *testing.T) {
	rt, h := testRuntime(t, AuthModeToken, "secret")
	if err := rt.Uploads.Write("shared/logo.png", testutil.PNG(t, 2, 2)); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/shared/logo.png", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Errorf("uploads: %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/assets", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("api without token: %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/assets", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("api with token: %d %s", rec.Code, rec.Body.String())
	}
}

func TestOpenRequiresConfig(t *testing.T) {
	if _, err := Open(); err == nil {
		t.Error("expected error without config")
	}
}
