package derivative

import (
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/HugoSmits86/nativewebp"
	"github.com/gen2brain/avif"
)

// Encoder writes one output format.
type Encoder interface {
	Encode(w io.Writer, img image.Image) error
	MIME() string
	Ext() string
}

// Encoders is the format set for every preset. The fallback codec depends
// on whether the source has transparency.
type Encoders struct {
	Primary        Encoder
	Secondary      Encoder
	FallbackOpaque Encoder
	FallbackAlpha  Encoder
}

// DefaultEncoders returns AVIF, WebP, and JPEG or PNG fallbacks.
func DefaultEncoders(jpegQuality, avifQuality, avifSpeed int) Encoders {
	return Encoders{
		Primary:        AVIF{Quality: avifQuality, Speed: avifSpeed},
		Secondary:      WebP{},
		FallbackOpaque: JPEG{Quality: jpegQuality},
		FallbackAlpha:  PNG{},
	}
}

// AVIF encodes with the AV1 still-image codec.
type AVIF struct {
	Quality int
	Speed   int
}

func (a AVIF) Encode(w io.Writer, img image.Image) error {
	return avif.Encode(w, img, avif.Options{Quality: a.Quality, Speed: a.Speed})
}
func (AVIF) MIME() string { return "image/avif" }
func (AVIF) Ext() string  { return ".avif" }

// WebP encodes lossless WebP.
type WebP struct{}

func (WebP) Encode(w io.Writer, img image.Image) error { return nativewebp.Encode(w, img, nil) }
func (WebP) MIME() string                              { return "image/webp" }
func (WebP) Ext() string                               { return ".webp" }

// JPEG is the opaque fallback.
type JPEG struct{ Quality int }

func (j JPEG) Encode(w io.Writer, img image.Image) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: j.Quality})
}
func (JPEG) MIME() string { return "image/jpeg" }
func (JPEG) Ext() string  { return ".jpg" }

// PNG is the fallback for sources with transparency.
type PNG struct{}

func (PNG) Encode(w io.Writer, img image.Image) error { return png.Encode(w, img) }
func (PNG) MIME() string                              { return "image/png" }
func (PNG) Ext() string                               { return ".png" }
