// Package derivative renders resized, re-encoded renditions of raster
// assets using focal-point-aware cover crops.
package derivative

import (
	"image"
	"math"

	"github.com/starford/mediakeep/internal/models"
)

// CoverCrop returns the largest rectangle with the target aspect ratio that
// fits inside a srcW×srcH image, shifted so the focal point sits as close
// to its center as the image bounds allow. The result always lies within
// the source bounds.
func CoverCrop(srcW, srcH, targetW, targetH int, fp models.FocalPoint) image.Rectangle {
	if srcW <= 0 || srcH <= 0 {
		return image.Rectangle{}
	}
	if targetW <= 0 || targetH <= 0 {
		return image.Rect(0, 0, srcW, srcH)
	}

	cw, ch := srcW, srcH
	if int64(srcW)*int64(targetH) > int64(srcH)*int64(targetW) {
		cw = int(int64(srcH) * int64(targetW) / int64(targetH))
	} else {
		ch = int(int64(srcW) * int64(targetH) / int64(targetW))
	}
	cw = max(1, min(cw, srcW))
	ch = max(1, min(ch, srcH))

	x0 := place(unit(fp.X)*float64(srcW), cw, srcW)
	y0 := place(unit(fp.Y)*float64(srcH), ch, srcH)
	return image.Rect(x0, y0, x0+cw, y0+ch)
}

// place returns the origin of a span of length n centered on c and clamped
// to [0, limit-n].
func place(c float64, n, limit int) int {
	o := int(math.Round(c - float64(n)/2))
	return max(0, min(o, limit-n))
}

func unit(v float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	return max(0, min(v, 1))
}
