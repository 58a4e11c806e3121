package derivative

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/starford/mediakeep/internal/imagemeta"
	"github.com/starford/mediakeep/internal/models"
	"github.com/starford/mediakeep/internal/pathrules"
	"github.com/starford/mediakeep/internal/storage"
)

// Preset is a named target size.
type Preset struct {
	Name   string `yaml:"name"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// DefaultPresets covers thumbnails, cards, heroes and social previews.
var DefaultPresets = []Preset{
	{Name: "thumb", Width: 320, Height: 320},
	{Name: "card", Width: 800, Height: 500},
	{Name: "hero", Width: 1920, Height: 1080},
	{Name: "social", Width: 1200, Height: 630},
}

// DefaultDir is the folder under the uploads root that holds renditions.
const DefaultDir = "_derived"

// ErrNotRaster is reported when the source cannot be decoded as a raster image.
var ErrNotRaster = errors.New("derivative: source is not a raster image")

// Output is the metadata of one generation run.
type Output struct {
	Variants map[string]models.Variant `json:"variants"`
	Version  int                       `json:"version"`
	Bytes    int64                     `json:"bytes"`
}

// Apply copies the output into the entry's derivative fields.
func (o *Output) Apply(e *models.InventoryEntry) {
	e.Variants = o.Variants
	e.VariantsVersion = o.Version
	e.VariantBytes = o.Bytes
}

// Generator renders presets for inventory entries.
type Generator struct {
	rules   *pathrules.Rules
	files   storage.Provider
	dir     string
	presets []Preset
	enc     Encoders
	logger  *slog.Logger
}

// NewGenerator creates a generator writing below dir.
func NewGenerator(rules *pathrules.Rules, files storage.Provider, dir string, presets []Preset, enc Encoders, logger *slog.Logger) *Generator {
	if dir == "" {
		dir = DefaultDir
	}
	if len(presets) == 0 {
		presets = DefaultPresets
	}
	return &Generator{rules: rules, files: files, dir: dir, presets: presets, enc: enc, logger: logger}
}

// Dir returns the renditions folder for an asset id.
func (g *Generator) Dir(id string) string { return path.Join(g.dir, id) }

// Root returns the renditions folder relative to the uploads root.
func (g *Generator) Root() string { return g.dir }

// Presets returns the configured presets.
func (g *Generator) Presets() []Preset { return g.presets }

// HasPreset reports whether name is a configured preset.
func (g *Generator) HasPreset(name string) bool {
	for _, p := range g.presets {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Generate renders every preset of e into a fresh version directory and,
// once every preset has succeeded, prunes earlier versions. On failure the
// new version directory is removed and earlier versions are left intact, so
// the variants recorded on e keep resolving. A non-raster source yields an
// output with no variants.
func (g *Generator) Generate(ctx context.Context, e *models.InventoryEntry) (*Output, error) {
	rel, ok := g.rules.RelativePath(e.URL)
	if !ok {
		return nil, fmt.Errorf("derivative: invalid asset url %q", e.URL)
	}
	data, err := g.files.Read(rel)
	if err != nil {
		return nil, fmt.Errorf("derivative: read source: %w", err)
	}
	if !imagemeta.Sniff(data).Raster() {
		return &Output{Version: e.VariantsVersion}, nil
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotRaster, err)
	}

	version := e.VariantsVersion + 1
	vdir := path.Join(g.Dir(e.ID), fmt.Sprintf("v%d", version))
	// Nothing references vdir yet; clear leftovers of an interrupted run.
	if err := g.files.RemoveAll(vdir); err != nil {
		return nil, fmt.Errorf("derivative: clear version dir: %w", err)
	}

	fallback := g.enc.FallbackOpaque
	if hasAlpha(src) {
		fallback = g.enc.FallbackAlpha
	}
	encoders := [3]Encoder{g.enc.Primary, g.enc.Secondary, fallback}

	variants := make([]models.Variant, len(g.presets))
	eg, ctx := errgroup.WithContext(ctx)
	for i, p := range g.presets {
		eg.Go(func() error {
			v, err := g.render(ctx, src, e.FocalPointFor(p.Name), p, vdir, encoders)
			if err != nil {
				return fmt.Errorf("preset %s: %w", p.Name, err)
			}
			variants[i] = v
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		if rmErr := g.files.RemoveAll(vdir); rmErr != nil {
			g.logger.Warn("derivative: cleanup failed", slog.String("dir", vdir), slog.String("error", rmErr.Error()))
		}
		return nil, fmt.Errorf("derivative: %s: %w", e.ID, err)
	}

	g.prune(e.ID, vdir)

	out := &Output{Variants: make(map[string]models.Variant, len(g.presets)), Version: version}
	for i, p := range g.presets {
		out.Variants[p.Name] = variants[i]
		out.Bytes += variants[i].Formats.Bytes()
	}
	g.logger.Info("derivative: generated",
		slog.String("id", e.ID),
		slog.Int("version", version),
		slog.Int64("bytes", out.Bytes))
	return out, nil
}

// prune removes everything under the entry's directory except keep. Failures
// are logged only; the new version is already complete.
func (g *Generator) prune(id, keep string) {
	dir := g.Dir(id)
	metas, err := g.files.List(dir)
	if err != nil {
		g.logger.Warn("derivative: list versions failed", slog.String("dir", dir), slog.String("error", err.Error()))
		return
	}
	seen := make(map[string]bool)
	for _, m := range metas {
		rest, ok := strings.CutPrefix(m.Path, dir+"/")
		if !ok {
			continue
		}
		top, _, _ := strings.Cut(rest, "/")
		stale := path.Join(dir, top)
		if stale == keep || seen[stale] {
			continue
		}
		seen[stale] = true
		if err := g.files.RemoveAll(stale); err != nil {
			g.logger.Warn("derivative: prune failed", slog.String("dir", stale), slog.String("error", err.Error()))
		}
	}
}

func (g *Generator) render(ctx context.Context, src image.Image, fp models.FocalPoint, p Preset, vdir string, encoders [3]Encoder) (models.Variant, error) {
	b := src.Bounds()
	crop := CoverCrop(b.Dx(), b.Dy(), p.Width, p.Height, fp).Add(b.Min)
	dst := image.NewNRGBA(image.Rect(0, 0, p.Width, p.Height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)

	var formats [3]models.VariantFormat
	for i, enc := range encoders {
		if err := ctx.Err(); err != nil {
			return models.Variant{}, err
		}
		var buf bytes.Buffer
		if err := enc.Encode(&buf, dst); err != nil {
			return models.Variant{}, fmt.Errorf("encode %s: %w", enc.Ext(), err)
		}
		rel := path.Join(vdir, p.Name+enc.Ext())
		if err := g.files.Write(rel, buf.Bytes()); err != nil {
			return models.Variant{}, err
		}
		formats[i] = models.VariantFormat{URL: g.rules.URLFor(rel), MIME: enc.MIME(), Size: int64(buf.Len())}
	}
	return models.Variant{
		Width:   p.Width,
		Height:  p.Height,
		Formats: models.VariantFormats{Primary: formats[0], Secondary: formats[1], Fallback: formats[2]},
	}, nil
}

// hasAlpha reports whether any pixel of img is not fully opaque.
func hasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return true
			}
		}
	}
	return false
}
