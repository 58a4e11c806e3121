package derivative

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/starford/mediakeep/internal/models"
	"github.com/starford/mediakeep/internal/pathrules"
	"github.com/starford/mediakeep/internal/storage"
	"github.com/starford/mediakeep/internal/testutil"
)

func TestCoverCropWithinBounds(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 5000; i++ {
		sw, sh := 1+r.IntN(5000), 1+r.IntN(5000)
		tw, th := 1+r.IntN(3000), 1+r.IntN(3000)
		fp := models.FocalPoint{X: r.Float64(), Y: r.Float64()}
		if i%10 == 0 {
			fp = models.FocalPoint{X: float64(r.IntN(2)), Y: float64(r.IntN(2))}
		}
		c := CoverCrop(sw, sh, tw, th, fp)
		if c.Min.X < 0 || c.Min.Y < 0 || c.Max.X > sw || c.Max.Y > sh || c.Empty() {
			t.Fatalf("CoverCrop(%d,%d,%d,%d,%v) = %v out of bounds", sw, sh, tw, th, fp, c)
		}
		if c.Dx() != sw && c.Dy() != sh {
			t.Fatalf("CoverCrop(%d,%d,%d,%d) = %v is not maximal", sw, sh, tw, th, c)
		}
	}
}

func TestCoverCropFocal(t *testing.T) {
	tests := []struct {
		name string
		fp   models.FocalPoint
		want image.Rectangle
	}{
		{"center", models.Center, image.Rect(50, 0, 150, 100)},
		{"left edge clamps", models.FocalPoint{X: 0, Y: 0.5}, image.Rect(0, 0, 100, 100)},
		{"right edge clamps", models.FocalPoint{X: 1, Y: 0.5}, image.Rect(100, 0, 200, 100)},
		{"near right", models.FocalPoint{X: 0.6, Y: 0.9}, image.Rect(70, 0, 170, 100)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CoverCrop(200, 100, 50, 50, tt.fp); got != tt.want {
				t.Errorf("CoverCrop = %v, want %v", got, tt.want)
			}
		})
	}
	if got := CoverCrop(100, 300, 16, 9, models.FocalPoint{X: 0.5, Y: 0}); got != image.Rect(0, 0, 100, 56) {
		t.Errorf("portrait crop = %v", got)
	}
}

func TestFocalPointFallback(t *testing.T) {
	e := &models.InventoryEntry{}
	if got := e.FocalPointFor("card"); got != models.Center {
		t.Errorf("no focal point = %v, want center", got)
	}
	e.FocalPoint = &models.FocalPoint{X: 0.1, Y: 0.2}
	if got := e.FocalPointFor("card"); got != *e.FocalPoint {
		t.Errorf("shared focal point = %v", got)
	}
	e.FocalPoints = map[string]models.FocalPoint{"card": {X: 0.9, Y: 0.9}}
	if got := e.FocalPointFor("card"); got.X != 0.9 {
		t.Errorf("per-preset focal point = %v", got)
	}
	if got := e.FocalPointFor("thumb"); got.X != 0.1 {
		t.Errorf("other preset = %v, want shared", got)
	}
}

type stubEncoder struct {
	ext  string
	fail bool
}

func (s stubEncoder) Encode(w io.Writer, img image.Image) error {
	if s.fail {
		return errors.New("boom")
	}
	b := img.Bounds()
	_, err := io.WriteString(w, s.ext+":"+strings.Repeat("x", b.Dx()))
	return err
}
func (s stubEncoder) MIME() string { return "image/" + strings.TrimPrefix(s.ext, ".") }
func (s stubEncoder) Ext() string  { return s.ext }

func stubEncoders() Encoders {
	return Encoders{
		Primary:        stubEncoder{ext: ".avif"},
		Secondary:      stubEncoder{ext: ".webp"},
		FallbackOpaque: stubEncoder{ext: ".jpg"},
		FallbackAlpha:  stubEncoder{ext: ".png"},
	}
}

func setup(t *testing.T, enc Encoders) (*Generator, *storage.FS) {
	t.Helper()
	_, files := testutil.TestRoot(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	presets := []Preset{{Name: "small", Width: 8, Height: 8}, {Name: "wide", Width: 16, Height: 9}}
	return NewGenerator(pathrules.Default(), files, "", presets, enc, logger), files
}

func TestGenerate(t *testing.T) {
	g, files := setup(t, stubEncoders())
	if err := files.Write("shared/a.png", testutil.PNG(t, 40, 30)); err != nil {
		t.Fatal(err)
	}
	// Leftovers from an earlier version must disappear.
	if err := files.Write("_derived/id1/v1/small.avif", []byte("old")); err != nil {
		t.Fatal(err)
	}
	e := &models.InventoryEntry{ID: "id1", URL: "/uploads/shared/a.png", VariantsVersion: 1}

	out, err := g.Generate(context.Background(), e)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out.Version != 2 || len(out.Variants) != 2 {
		t.Fatalf("out = %+v", out)
	}
	wide := out.Variants["wide"]
	if wide.Width != 16 || wide.Height != 9 {
		t.Errorf("wide = %+v", wide)
	}
	if wide.Formats.Fallback.URL != "/uploads/_derived/id1/v2/wide.jpg" || wide.Formats.Fallback.MIME != "image/jpg" {
		t.Errorf("opaque fallback = %+v", wide.Formats.Fallback)
	}
	var total int64
	for _, v := range out.Variants {
		total += v.Formats.Bytes()
	}
	if out.Bytes != total || total == 0 {
		t.Errorf("bytes = %d, want %d", out.Bytes, total)
	}
	if files.Exists("_derived/id1/v1/small.avif") {
		t.Error("previous version not wiped")
	}
	metas, _ := files.List("_derived/id1")
	if len(metas) != 6 {
		t.Errorf("files = %d, want 6", len(metas))
	}

	out.Apply(e)
	if e.VariantsVersion != 2 || e.VariantBytes != total {
		t.Errorf("entry after apply = %+v", e)
	}
}

func TestGenerateAlphaFallback(t *testing.T) {
	g, files := setup(t, stubEncoders())
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	img.Set(1, 1, color.NRGBA{R: 255, A: 10})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	_ = files.Write("t.png", buf.Bytes())
	out, err := g.Generate(context.Background(), &models.InventoryEntry{ID: "t", URL: "/uploads/t.png"})
	if err != nil {
		t.Fatal(err)
	}
	if got := out.Variants["small"].Formats.Fallback.URL; !strings.HasSuffix(got, "/small.png") {
		t.Errorf("alpha fallback = %q", got)
	}
}

func TestGenerateFailureCleansUp(t *testing.T) {
	enc := stubEncoders()
	enc.Secondary = stubEncoder{ext: ".webp", fail: true}
	g, files := setup(t, enc)
	_ = files.Write("a.png", testutil.PNG(t, 20, 20))

	out, err := g.Generate(context.Background(), &models.InventoryEntry{ID: "a", URL: "/uploads/a.png"})
	if err == nil || out != nil {
		t.Fatalf("Generate = %v, %v; want error", out, err)
	}
	metas, _ := files.List("_derived/a")
	if len(metas) != 0 {
		t.Errorf("partial renditions left behind: %+v", metas)
	}
}

func TestGenerateFailureKeepsPreviousVersion(t *testing.T) {
	g, files := setup(t, stubEncoders())
	_ = files.Write("a.png", testutil.PNG(t, 20, 20))
	e := &models.InventoryEntry{ID: "a", URL: "/uploads/a.png"}
	out, err := g.Generate(context.Background(), e)
	if err != nil {
		t.Fatal(err)
	}
	out.Apply(e)

	enc := stubEncoders()
	enc.Primary = stubEncoder{ext: ".avif", fail: true}
	broken := NewGenerator(pathrules.Default(), files, "", g.Presets(), enc, g.logger)
	if _, err := broken.Generate(context.Background(), e); err == nil {
		t.Fatal("expected failure")
	}
	for name, v := range e.Variants {
		for _, f := range []models.VariantFormat{v.Formats.Primary, v.Formats.Secondary, v.Formats.Fallback} {
			rel, _ := pathrules.Default().RelativePath(f.URL)
			if !files.Exists(rel) {
				t.Errorf("%s: recorded rendition %s is gone", name, f.URL)
			}
		}
	}
	if metas, _ := files.List("_derived/a/v2"); len(metas) != 0 {
		t.Errorf("failed version left behind: %+v", metas)
	}
}

func TestGenerateSkipsVector(t *testing.T) {
	g, files := setup(t, stubEncoders())
	_ = files.Write("logo.svg", []byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`))
	out, err := g.Generate(context.Background(), &models.InventoryEntry{ID: "l", URL: "/uploads/logo.svg", VariantsVersion: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Variants) != 0 || out.Version != 3 {
		t.Errorf("out = %+v", out)
	}
}
