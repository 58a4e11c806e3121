package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mediakeep/internal/audit"
	"github.com/starford/mediakeep/internal/derivative"
	"github.com/starford/mediakeep/internal/importer"
	"github.com/starford/mediakeep/internal/pathrules"
	"github.com/starford/mediakeep/internal/relocate"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

var (
	urlPrefixRe  = regexp.MustCompile(`^/[A-Za-z0-9._-]+(/[A-Za-z0-9._-]+)*/?$`)
	presetNameRe = regexp.MustCompile(`^[a-z0-9_-]+$`)
)

// Config represents the application configuration.
type Config struct {
	App         ApplicationConfig `yaml:"app"`
	Uploads     UploadsConfig     `yaml:"uploads"`
	Content     ContentConfig     `yaml:"content"`
	SQLite      SQLiteConfig      `yaml:"sqlite"`
	Auth        AuthConfig        `yaml:"auth"`
	Importer    ImporterConfig    `yaml:"importer"`
	Derivatives DerivativesConfig `yaml:"derivatives"`
	Relocation  RelocationConfig  `yaml:"relocation"`
	GC          GCConfig          `yaml:"gc"`
	Audit       AuditConfig       `yaml:"audit"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{
		&c.App, &c.Uploads, &c.Content, &c.SQLite, &c.Auth,
		&c.Importer, &c.Derivatives, &c.Relocation, &c.GC, &c.Audit,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// UploadsConfig describes the uploads namespace.
type UploadsConfig struct {
	Root         string   `yaml:"root"`
	URLPrefix    string   `yaml:"url_prefix"`
	DerivedDir   string   `yaml:"derived_dir"`
	ManagedRoots []string `yaml:"managed_roots"`
	PrivateRoots []string `yaml:"private_roots"`
}

// Validate validates the uploads configuration.
func (c *UploadsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.URLPrefix, validation.Required, validation.Match(urlPrefixRe)),
		validation.Field(&c.DerivedDir, validation.Required, validation.By(relativeFolder)),
		validation.Field(&c.ManagedRoots, validation.Each(validation.Required, validation.By(relativeFolder))),
		validation.Field(&c.PrivateRoots, validation.Each(validation.Required, validation.By(relativeFolder))),
	)
}

// Rules builds the path rules for the namespace.
func (c *UploadsConfig) Rules() *pathrules.Rules {
	return pathrules.New(c.URLPrefix, c.ManagedRoots, c.PrivateRoots)
}

func relativeFolder(v any) error {
	s, _ := v.(string)
	if strings.HasPrefix(s, "/") {
		return errors.New("must be relative to the uploads root")
	}
	if f, ok := pathrules.CleanFolder(s); !ok || f == "" {
		return errors.New("must be a relative folder inside the uploads root")
	}
	return nil
}

// ContentConfig locates the content records.
type ContentConfig struct {
	Path     string        `yaml:"path"`
	Watch    bool          `yaml:"watch"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the content configuration.
func (c *ContentConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// ImporterConfig bounds remote imports.
type ImporterConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxRedirects int           `yaml:"max_redirects"`
	MaxBytes     int64         `yaml:"max_bytes"`
	MaxSVGBytes  int64         `yaml:"max_svg_bytes"`
	MaxWidth     int           `yaml:"max_width"`
	MaxHeight    int           `yaml:"max_height"`
	MaxPixels    int64         `yaml:"max_pixels"`
	Concurrency  int           `yaml:"concurrency"`
	UserAgent    string        `yaml:"user_agent"`
	BlockedHosts []string      `yaml:"blocked_hosts"`
}

// Validate validates the importer configuration.
func (c *ImporterConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second), validation.Max(5*time.Minute)),
		validation.Field(&c.MaxRedirects, validation.Min(0), validation.Max(20)),
		validation.Field(&c.MaxBytes, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.MaxSVGBytes, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.MaxWidth, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxHeight, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxPixels, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.Concurrency, validation.Required, validation.Min(1), validation.Max(64)),
		validation.Field(&c.UserAgent, validation.Required),
	)
}

// ImporterSettings converts the section into importer limits.
func (c *ImporterConfig) ImporterSettings() importer.Config {
	return importer.Config{
		Timeout:      c.Timeout,
		MaxRedirects: c.MaxRedirects,
		MaxBytes:     c.MaxBytes,
		MaxSVGBytes:  c.MaxSVGBytes,
		MaxWidth:     c.MaxWidth,
		MaxHeight:    c.MaxHeight,
		MaxPixels:    c.MaxPixels,
		Concurrency:  c.Concurrency,
		UserAgent:    c.UserAgent,
		BlockedHosts: c.BlockedHosts,
	}
}

// DerivativesConfig selects presets and codec settings.
type DerivativesConfig struct {
	Presets     []derivative.Preset `yaml:"presets"`
	JPEGQuality int                 `yaml:"jpeg_quality"`
	AVIFQuality int                 `yaml:"avif_quality"`
	AVIFSpeed   int                 `yaml:"avif_speed"`
}

// Validate validates the derivatives configuration.
func (c *DerivativesConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Presets, validation.Required),
		validation.Field(&c.JPEGQuality, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.AVIFQuality, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.AVIFSpeed, validation.Min(0), validation.Max(10)),
	); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(c.Presets))
	for i := range c.Presets {
		p := &c.Presets[i]
		if err := validation.ValidateStruct(p,
			validation.Field(&p.Name, validation.Required, validation.Match(presetNameRe)),
			validation.Field(&p.Width, validation.Required, validation.Min(1), validation.Max(8192)),
			validation.Field(&p.Height, validation.Required, validation.Min(1), validation.Max(8192)),
		); err != nil {
			return fmt.Errorf("derivatives: preset %d: %w", i, err)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("derivatives: duplicate preset %q", p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

// RelocationConfig tunes the planner.
type RelocationConfig struct {
	MaxConflictAttempts int `yaml:"max_conflict_attempts"`
}

// Validate validates the relocation configuration.
func (c *RelocationConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxConflictAttempts, validation.Required, validation.Min(1), validation.Max(1000)),
	)
}

// GCConfig lists glob patterns (relative to the uploads root) that garbage
// collection must never delete.
type GCConfig struct {
	Protect []string `yaml:"protect"`
}

// Validate validates the GC configuration.
func (c *GCConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Protect, validation.Each(validation.Required, validation.By(func(v any) error {
			if !doublestar.ValidatePattern(v.(string)) {
				return errors.New("invalid glob pattern")
			}
			return nil
		}))),
	)
}

// AuditConfig bounds audit reports.
type AuditConfig struct {
	MaxExamples int `yaml:"max_examples"`
}

// Validate validates the audit configuration.
func (c *AuditConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxExamples, validation.Required, validation.Min(1), validation.Max(1000)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	imp := importer.DefaultConfig()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Uploads: UploadsConfig{
			Root:         "./data/uploads",
			URLPrefix:    pathrules.DefaultPrefix,
			DerivedDir:   derivative.DefaultDir,
			ManagedRoots: pathrules.DefaultManagedRoots,
			PrivateRoots: pathrules.DefaultPrivateRoots,
		},
		Content: ContentConfig{
			Path:     "./data/content",
			Watch:    true,
			Debounce: 200 * time.Millisecond,
		},
		SQLite: SQLiteConfig{
			Path: "./data/mediakeep.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Importer: ImporterConfig{
			Timeout:      imp.Timeout,
			MaxRedirects: imp.MaxRedirects,
			MaxBytes:     imp.MaxBytes,
			MaxSVGBytes:  imp.MaxSVGBytes,
			MaxWidth:     imp.MaxWidth,
			MaxHeight:    imp.MaxHeight,
			MaxPixels:    imp.MaxPixels,
			Concurrency:  imp.Concurrency,
			UserAgent:    imp.UserAgent,
		},
		Derivatives: DerivativesConfig{
			Presets:     derivative.DefaultPresets,
			JPEGQuality: 82,
			AVIFQuality: 55,
			AVIFSpeed:   8,
		},
		Relocation: RelocationConfig{
			MaxConflictAttempts: relocate.DefaultMaxAttempts,
		},
		GC: GCConfig{
			Protect: []string{"users/**"},
		},
		Audit: AuditConfig{
			MaxExamples: audit.DefaultMaxExamples,
		},
	}
}
