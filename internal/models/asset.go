// Package models defines the domain types for mediakeep.
package models

import "time"

// FocalPoint is the fractional coordinate of the visually important region
// of an image. Both axes are in [0,1].
type FocalPoint struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Center is the fallback focal point.
var Center = FocalPoint{X: 0.5, Y: 0.5}

// Valid reports whether both coordinates lie in [0,1].
func (f FocalPoint) Valid() bool {
	return f.X >= 0 && f.X <= 1 && f.Y >= 0 && f.Y <= 1
}

// VariantFormat is one encoded rendition file.
type VariantFormat struct {
	URL  string `json:"url"`
	MIME string `json:"mime"`
	Size int64  `json:"size"`
}

// VariantFormats groups the three encodings produced for each preset.
type VariantFormats struct {
	Primary   VariantFormat `json:"primary"`
	Secondary VariantFormat `json:"secondary"`
	Fallback  VariantFormat `json:"fallback"`
}

// Bytes returns the combined encoded size of all formats.
func (v VariantFormats) Bytes() int64 {
	return v.Primary.Size + v.Secondary.Size + v.Fallback.Size
}

// Variant is the rendition set for a single preset.
type Variant struct {
	Width   int            `json:"width"`
	Height  int            `json:"height"`
	Formats VariantFormats `json:"formats"`
}

// InventoryEntry describes one physical asset under the uploads root.
type InventoryEntry struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	FileName  string    `json:"fileName"`
	Folder    string    `json:"folder"`
	Size      int64     `json:"size"`
	MIME      string    `json:"mime"`
	Width     *int      `json:"width,omitempty"`
	Height    *int      `json:"height,omitempty"`
	CreatedAt time.Time `json:"createdAt"`

	HashSHA256      string                `json:"hashSha256,omitempty"`
	FocalPoint      *FocalPoint           `json:"focalPoint,omitempty"`
	FocalPoints     map[string]FocalPoint `json:"focalPoints,omitempty"`
	Variants        map[string]Variant    `json:"variants,omitempty"`
	VariantsVersion int                   `json:"variantsVersion"`
	VariantBytes    int64                 `json:"variantBytes"`
	Area            string                `json:"area,omitempty"`
}

// FocalPointFor resolves the focal point for a preset: the per-preset value,
// then the shared value, then the image center.
func (e *InventoryEntry) FocalPointFor(preset string) FocalPoint {
	if fp, ok := e.FocalPoints[preset]; ok && fp.Valid() {
		return fp
	}
	if e.FocalPoint != nil && e.FocalPoint.Valid() {
		return *e.FocalPoint
	}
	return Center
}

// ClearVariants drops all derivative metadata.
func (e *InventoryEntry) ClearVariants() {
	e.Variants = nil
	e.VariantBytes = 0
}
