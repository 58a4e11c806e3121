package internal

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/mediakeep/internal/derivative"
	pkgconfig "github.com/starford/mediakeep/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
	if got := cfg.Uploads.Rules().Prefix(); got != "/uploads/" {
		t.Errorf("prefix = %q", got)
	}
	if got := cfg.App.HTTP.Address(); got != ":8080" {
		t.Errorf("address = %q", got)
	}
}

func TestUploadsConfig_RejectsEscapingFolders(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*UploadsConfig)
	}{
		{"derived dir escapes", func(c *UploadsConfig) { c.DerivedDir = "../derived" }},
		{"managed root absolute", func(c *UploadsConfig) { c.ManagedRoots = []string{"/etc"} }},
		{"private root empty", func(c *UploadsConfig) { c.PrivateRoots = []string{""} }},
		{"prefix without slash", func(c *UploadsConfig) { c.URLPrefix = "uploads" }},
		{"missing root", func(c *UploadsConfig) { c.Root = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(&cfg.Uploads)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestDerivativesConfig_Presets(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Derivatives.Presets = []derivative.Preset{{Name: "thumb", Width: 10, Height: 10}, {Name: "thumb", Width: 20, Height: 20}}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "duplicate preset") {
		t.Errorf("duplicate presets: err = %v", err)
	}

	cfg.Derivatives.Presets = []derivative.Preset{{Name: "Bad Name", Width: 10, Height: 10}}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid preset name")
	}

	cfg.Derivatives.Presets = []derivative.Preset{{Name: "wide", Width: 0, Height: 10}}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero width")
	}
}

func TestGCConfig_Protect(t *testing.T) {
	cfg := GCConfig{Protect: []string{"users/**", "shared/logo.*"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid patterns: %v", err)
	}
	cfg.Protect = []string{"shared/[logo"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for malformed glob")
	}
}

func TestImporterConfig_Settings(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Importer.BlockedHosts = []string{"internal.example"}
	cfg.Importer.Concurrency = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero concurrency")
	}
	cfg.Importer.Concurrency = 3
	got := cfg.Importer.ImporterSettings()
	if got.Concurrency != 3 || len(got.BlockedHosts) != 1 || got.MaxBytes != cfg.Importer.MaxBytes {
		t.Errorf("settings = %+v", got)
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("MEDIAKEEP_TEST_ROOT", "/srv/uploads")
	p := filepath.Join(t.TempDir(), "config.yaml")
	body := `
app:
  log_level: debug
  http:
    port: 9090
uploads:
  root: ${MEDIAKEEP_TEST_ROOT}
importer:
  timeout: 5s
derivatives:
  presets:
    - {name: thumb, width: 64, height: 64}
gc:
  protect: ["users/**", "brand/*.svg"]
`
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(p, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.App.LogLevel != slog.LevelDebug || cfg.App.HTTP.Port != 9090 {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.Uploads.Root != "/srv/uploads" || cfg.Uploads.URLPrefix != "/uploads/" {
		t.Errorf("uploads = %+v", cfg.Uploads)
	}
	if cfg.Importer.Timeout != 5*time.Second || cfg.Importer.MaxRedirects == 0 {
		t.Errorf("importer = %+v", cfg.Importer)
	}
	if len(cfg.Derivatives.Presets) != 1 || len(cfg.GC.Protect) != 2 {
		t.Errorf("derivatives = %+v gc = %+v", cfg.Derivatives, cfg.GC)
	}
}

func TestShippedConfigLoads(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(filepath.Join("..", "config", "config.yaml"), cfg); err != nil {
		t.Fatalf("config/config.yaml: %v", err)
	}
	if cfg.Auth.AuthEnabled() || len(cfg.Derivatives.Presets) != 4 {
		t.Errorf("cfg = %+v", cfg)
	}
}
