// Package importer fetches third-party images under an anti-SSRF policy,
// validates them by content, and stores them under the uploads root.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/sync/singleflight"

	"github.com/starford/mediakeep/internal/apperr"
	"github.com/starford/mediakeep/internal/checksum"
	"github.com/starford/mediakeep/internal/imagemeta"
	"github.com/starford/mediakeep/internal/inventory"
	"github.com/starford/mediakeep/internal/models"
	"github.com/starford/mediakeep/internal/pathrules"
	"github.com/starford/mediakeep/internal/storage"
)

// Config bounds what the importer will fetch and accept.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	MaxBytes     int64
	MaxSVGBytes  int64
	MaxWidth     int
	MaxHeight    int
	MaxPixels    int64
	Concurrency  int
	UserAgent    string
	BlockedHosts []string
}

// DefaultConfig returns conservative limits.
func DefaultConfig() Config {
	return Config{
		Timeout:      15 * time.Second,
		MaxRedirects: 5,
		MaxBytes:     15 << 20,
		MaxSVGBytes:  512 << 10,
		MaxWidth:     12000,
		MaxHeight:    12000,
		MaxPixels:    64_000_000,
		Concurrency:  4,
		UserAgent:    "mediakeep-importer/1.0",
	}
}

// ReusePolicy controls what a deterministic import does with an existing file.
type ReusePolicy int

const (
	// ReuseNever always fetches and overwrites.
	ReuseNever ReusePolicy = iota
	// ReuseIfValid keeps an existing file that still validates.
	ReuseIfValid
)

var (
	safeNameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)
	baseRe     = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

// Options selects where and how an import is stored.
type Options struct {
	// Folder is relative to the uploads root; empty means the root.
	Folder string `json:"folder"`
	// Base enables deterministic naming when set.
	Base  string      `json:"base,omitempty"`
	Reuse ReusePolicy `json:"reuse,omitempty"`
}

// Validate checks the caller-supplied target.
func (o Options) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.Folder, validation.By(func(v any) error {
			if _, ok := pathrules.CleanFolder(v.(string)); !ok {
				return errors.New("must be a relative folder inside the uploads root")
			}
			return nil
		})),
		validation.Field(&o.Base, validation.Length(1, 120), validation.Match(baseRe)),
		validation.Field(&o.Reuse, validation.In(ReuseNever, ReuseIfValid)),
	)
}

// Result is a successful import.
type Result struct {
	Entry  *models.InventoryEntry `json:"entry"`
	Reused bool                   `json:"reused"`
}

// Importer fetches and stores remote images.
type Importer struct {
	cfg    Config
	rules  *pathrules.Rules
	files  storage.Provider
	inv    inventory.Store
	guard  *Guard
	doer   Doer
	logger *slog.Logger
	now    func() time.Time

	inflight singleflight.Group
	nameMu   sync.Mutex
}

// Option configures an Importer.
type Option func(*Importer)

// WithDoer replaces the HTTP client.
func WithDoer(d Doer) Option { return func(im *Importer) { im.doer = d } }

// WithResolver replaces the DNS resolver used by the guard.
func WithResolver(r Resolver) Option {
	return func(im *Importer) { im.guard.resolver = r }
}

// WithClock replaces the time source used for names.
func WithClock(now func() time.Time) Option { return func(im *Importer) { im.now = now } }

// New creates an importer.
func New(cfg Config, rules *pathrules.Rules, files storage.Provider, inv inventory.Store, logger *slog.Logger, opts ...Option) *Importer {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = def.MaxRedirects
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if cfg.MaxSVGBytes <= 0 {
		cfg.MaxSVGBytes = def.MaxSVGBytes
	}
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = def.MaxWidth
	}
	if cfg.MaxHeight <= 0 {
		cfg.MaxHeight = def.MaxHeight
	}
	if cfg.MaxPixels <= 0 {
		cfg.MaxPixels = def.MaxPixels
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	im := &Importer{
		cfg:    cfg,
		rules:  rules,
		files:  files,
		inv:    inv,
		guard:  NewGuard(nil, cfg.BlockedHosts),
		logger: logger,
		now:    time.Now,
	}
	for _, o := range opts {
		o(im)
	}
	if im.doer == nil {
		im.doer = NewHTTPClient(im.guard)
	}
	return im
}

// Import fetches remoteURL into opts.Folder. Failures are returned as *Error.
func (im *Importer) Import(ctx context.Context, remoteURL string, opts Options) (*Result, error) {
	res, ferr := im.importOne(ctx, remoteURL, opts)
	if ferr != nil {
		im.logger.Warn("importer: import failed",
			slog.String("url", remoteURL),
			slog.String("kind", ferr.Kind.String()),
			slog.String("error", ferr.Error()))
		return nil, ferr
	}
	im.logger.Info("importer: imported",
		slog.String("url", remoteURL),
		slog.String("asset", res.Entry.URL),
		slog.Bool("reused", res.Reused))
	return res, nil
}

func (im *Importer) importOne(ctx context.Context, remoteURL string, opts Options) (*Result, *Error) {
	if err := opts.Validate(); err != nil {
		return nil, fail(KindInvalidTarget, "invalid import target", err)
	}
	folder, _ := pathrules.CleanFolder(opts.Folder)

	// Validate the URL up front so a rejected host never reaches the reuse
	// path or the network.
	if _, ferr := im.guard.CheckURL(ctx, remoteURL); ferr != nil {
		return nil, ferr
	}

	if opts.Base != "" && opts.Reuse == ReuseIfValid {
		if res := im.tryReuse(ctx, folder, opts.Base); res != nil {
			return res, nil
		}
	}

	p, ferr := im.fetch(ctx, remoteURL)
	if ferr != nil {
		return nil, ferr
	}
	v, ferr := im.validate(p.data, p.contentType, path.Ext(p.final.Path))
	if ferr != nil {
		return nil, ferr
	}

	var rel string
	if opts.Base != "" {
		rel = path.Join(folder, opts.Base+v.kind.Ext())
		if err := im.files.Write(rel, v.data); err != nil {
			return nil, fail(KindStorage, "write file", err)
		}
		im.removeStaleSiblings(ctx, folder, opts.Base, rel)
	} else {
		var err error
		rel, err = im.writeUnique(folder, timestampedStem(p.final, im.now()), v.kind.Ext(), v.data)
		if err != nil {
			return nil, fail(KindStorage, "write file", err)
		}
	}

	entry, err := im.record(ctx, rel, v)
	if err != nil {
		return nil, fail(KindStorage, "record inventory entry", err)
	}
	return &Result{Entry: entry}, nil
}

type validated struct {
	kind          imagemeta.Kind
	data          []byte
	width, height int
}

// validate identifies the payload by its magic bytes, falling back to the
// declared type or extension only for allow-listed kinds, then enforces
// dimension ceilings or sanitizes SVG.
func (im *Importer) validate(data []byte, declared, ext string) (*validated, *Error) {
	kind := imagemeta.Sniff(data)
	if kind == imagemeta.KindUnknown {
		kind = imagemeta.KindFromMIME(declared)
		if kind == imagemeta.KindUnknown {
			kind = imagemeta.KindFromExt(ext)
		}
		if kind == imagemeta.KindUnknown {
			return nil, fail(KindUnsupportedType, fmt.Sprintf("unrecognized payload (declared %q)", declared), nil)
		}
	}

	if kind == imagemeta.KindSVG {
		if int64(len(data)) > im.cfg.MaxSVGBytes {
			return nil, fail(KindSVGTooLarge, fmt.Sprintf("svg exceeds %d bytes", im.cfg.MaxSVGBytes), nil)
		}
		clean, err := SanitizeSVG(data)
		if err != nil {
			return nil, fail(KindCorrupt, "svg does not parse", err)
		}
		return &validated{kind: kind, data: clean}, nil
	}

	w, h, err := imagemeta.Dimensions(kind, data)
	if err != nil {
		return nil, fail(KindCorrupt, fmt.Sprintf("payload is not a valid %s", kind), err)
	}
	if w <= 0 || h <= 0 {
		return nil, fail(KindCorrupt, "zero image dimensions", nil)
	}
	if w > im.cfg.MaxWidth || h > im.cfg.MaxHeight || int64(w)*int64(h) > im.cfg.MaxPixels {
		return nil, fail(KindDimensionsTooLarge, fmt.Sprintf("%dx%d exceeds limits", w, h), nil)
	}
	return &validated{kind: kind, data: data, width: w, height: h}, nil
}

// Check applies the fetch limits to a payload that arrived by other means,
// such as an author upload. It returns the detected kind and the bytes to
// store, which for SVG are the sanitized markup.
func (im *Importer) Check(data []byte) (imagemeta.Kind, []byte, error) {
	if int64(len(data)) > im.cfg.MaxBytes {
		return imagemeta.KindUnknown, nil, fail(KindPayloadTooLarge, fmt.Sprintf("payload exceeds %d bytes", im.cfg.MaxBytes), nil)
	}
	v, ferr := im.validate(data, "", "")
	if ferr != nil {
		return imagemeta.KindUnknown, nil, ferr
	}
	return v.kind, v.data, nil
}

// tryReuse returns an existing deterministic file that still validates and,
// when the inventory knows its hash, still matches it.
func (im *Importer) tryReuse(ctx context.Context, folder, base string) *Result {
	for _, ext := range imagemeta.Extensions() {
		rel := path.Join(folder, base+ext)
		if !im.files.Exists(rel) {
			continue
		}
		data, err := im.files.Read(rel)
		if err != nil {
			continue
		}
		v, ferr := im.validate(data, "", ext)
		if ferr != nil {
			im.logger.Debug("importer: existing file not reusable", slog.String("path", rel), slog.String("error", ferr.Error()))
			continue
		}
		u := im.rules.URLFor(rel)
		entry, err := im.inv.GetByURL(ctx, u)
		if err == nil {
			if entry.HashSHA256 != "" && entry.HashSHA256 != checksum.Sum(data) {
				continue
			}
			return &Result{Entry: entry, Reused: true}
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		// Known file, unknown entry: adopt it.
		v.data = data
		if entry, err = im.record(ctx, rel, v); err != nil {
			continue
		}
		return &Result{Entry: entry, Reused: true}
	}
	return nil
}

func (im *Importer) removeStaleSiblings(ctx context.Context, folder, base, keep string) {
	for _, ext := range imagemeta.Extensions() {
		rel := path.Join(folder, base+ext)
		if rel == keep {
			continue
		}
		if err := im.files.Delete(rel); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				im.logger.Warn("importer: stale sibling not removed", slog.String("path", rel), slog.String("error", err.Error()))
			}
			continue
		}
		if e, err := im.inv.GetByURL(ctx, im.rules.URLFor(rel)); err == nil {
			_ = im.inv.Delete(ctx, e.ID)
		}
		im.logger.Debug("importer: removed stale sibling", slog.String("path", rel))
	}
}

// writeUnique writes data under the first free name stem[-n]ext.
func (im *Importer) writeUnique(folder, stem, ext string, data []byte) (string, error) {
	im.nameMu.Lock()
	defer im.nameMu.Unlock()
	rel := path.Join(folder, stem+ext)
	for i := 2; im.files.Exists(rel); i++ {
		rel = path.Join(folder, fmt.Sprintf("%s-%d%s", stem, i, ext))
	}
	return rel, im.files.Write(rel, data)
}

// record creates or refreshes the inventory entry for a written file.
// Replacing the bytes of an existing entry keeps its id and focal points
// but drops derivatives.
func (im *Importer) record(ctx context.Context, rel string, v *validated) (*models.InventoryEntry, error) {
	fresh := inventory.NewEntry(im.rules, rel, v.data, im.now())
	fresh.MIME = v.kind.MIME()
	if v.width > 0 {
		w, h := v.width, v.height
		fresh.Width, fresh.Height = &w, &h
	}
	if old, err := im.inv.GetByURL(ctx, fresh.URL); err == nil {
		fresh.ID = old.ID
		fresh.CreatedAt = old.CreatedAt
		fresh.FocalPoint = old.FocalPoint
		fresh.FocalPoints = old.FocalPoints
		if old.HashSHA256 == fresh.HashSHA256 {
			fresh.Variants = old.Variants
			fresh.VariantsVersion = old.VariantsVersion
			fresh.VariantBytes = old.VariantBytes
		} else {
			fresh.VariantsVersion = old.VariantsVersion
		}
	}
	if err := im.inv.Upsert(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// timestampedStem derives a file stem from the remote basename plus a
// millisecond timestamp.
func timestampedStem(u *url.URL, now time.Time) string {
	base := path.Base(u.Path)
	base = strings.TrimSuffix(base, path.Ext(base))
	base = strings.Trim(safeNameRe.ReplaceAllString(base, "-"), "-.")
	if base == "" || base == "/" {
		base = "image"
	}
	if len(base) > 80 {
		base = base[:80]
	}
	return fmt.Sprintf("%s-%d", base, now.UTC().UnixMilli())
}
