package imaging

import (
	"fmt"

	"github.com/pagepress/pagepress/internal/domain"
)

const (
	densitySample = 100
	// Channels above this 8-bit value count as near-white background.
	whiteThreshold = 240
)

// PixelDensity returns the fraction of non-background pixels in [0,1]. The
// image is downsampled to at most 100×100 before counting, and a pixel is
// background when every channel exceeds the near-white threshold. This is
// a background-vs-content heuristic only, not a general quality check: a
// full-page background render scores low, a genuine photo scores high.
func PixelDensity(path string) (float64, error) {
	img, err := decodeImage(path)
	if err != nil {
		return 0, domain.IOError(fmt.Sprintf("decode image for density: %s", path), err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > densitySample || h > densitySample {
		sw, sh := fitWithin(w, h, densitySample)
		img = downsample(img, sw, sh)
		bounds = img.Bounds()
	}

	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return 0, nil
	}

	white := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			if r>>8 > whiteThreshold && g>>8 > whiteThreshold && b>>8 > whiteThreshold {
				white++
			}
		}
	}

	return 1 - float64(white)/float64(total), nil
}

// fitWithin scales (w, h) down proportionally so both fit within limit.
func fitWithin(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	scale := float64(limit) / float64(w)
	if h > w {
		scale = float64(limit) / float64(h)
	}
	sw := int(float64(w) * scale)
	sh := int(float64(h) * scale)
	if sw < 1 {
		sw = 1
	}
	if sh < 1 {
		sh = 1
	}
	return sw, sh
}
