// Package imaging provides raster quality checks and crop primitives.
package imaging

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"sync"

	"golang.org/x/image/draw"

	"github.com/pagepress/pagepress/internal/hashing"
	"github.com/pagepress/pagepress/internal/observability"
)

const (
	minDimension   = 50
	minAspectRatio = 0.2
	maxAspectRatio = 5.0

	// Images larger than this on either side are downsampled to a fixed
	// sample before statistics are computed, so validation cost does not
	// grow with source resolution.
	largeDimension = 1000
	sampleSize     = 64

	minMeanIntensity = 10.0
	maxMeanIntensity = 245.0
	minStdDev        = 15.0
)

// Validator is the quality gate for raster images. Verdicts are cached by
// image digest, so re-validating the same content is free.
type Validator struct {
	hasher *hashing.Hasher
	logger *observability.Logger

	mu       sync.RWMutex
	verdicts map[string]bool
}

// NewValidator creates a Validator with an empty verdict cache.
func NewValidator(hasher *hashing.Hasher, logger *observability.Logger) *Validator {
	return &Validator{
		hasher:   hasher,
		logger:   logger.WithComponent("validator"),
		verdicts: make(map[string]bool),
	}
}

// IsValid reports whether the image passes the quality gate: large enough,
// sane aspect ratio, and not blank or flat-color. Unreadable or
// undecodable files are invalid.
func (v *Validator) IsValid(path string) bool {
	digest, err := v.hasher.ImageDigest(path)
	if err != nil {
		v.logger.Debug().Str("path", path).Err(err).Msg("digest failed, rejecting")
		return false
	}

	v.mu.RLock()
	verdict, ok := v.verdicts[digest]
	v.mu.RUnlock()
	if ok {
		return verdict
	}

	verdict = v.validate(path)

	v.mu.Lock()
	v.verdicts[digest] = verdict
	v.mu.Unlock()
	return verdict
}

// Reset clears the verdict cache. Called at the start of each run.
func (v *Validator) Reset() {
	v.mu.Lock()
	v.verdicts = make(map[string]bool)
	v.mu.Unlock()
}

func (v *Validator) validate(path string) bool {
	img, err := decodeImage(path)
	if err != nil {
		v.logger.Debug().Str("path", path).Err(err).Msg("decode failed, rejecting")
		return false
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if width < minDimension || height < minDimension {
		return false
	}

	ratio := float64(width) / float64(height)
	if ratio < minAspectRatio || ratio > maxAspectRatio {
		return false
	}

	sample := img
	if width > largeDimension || height > largeDimension {
		sample = downsample(img, sampleSize, sampleSize)
	}
	mean, stddev := intensityStats(sample)

	if mean <= minMeanIntensity || mean >= maxMeanIntensity {
		return false
	}
	if stddev <= minStdDev {
		return false
	}
	return true
}

// decodeImage opens and decodes a raster image file.
func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}

// downsample scales img to at most w×h, preserving nothing about the
// source beyond the resulting pixels.
func downsample(img image.Image, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// intensityStats returns the mean and standard deviation of the 8-bit
// grayscale intensity over all pixels.
func intensityStats(img image.Image) (mean, stddev float64) {
	bounds := img.Bounds()
	n := bounds.Dx() * bounds.Dy()
	if n == 0 {
		return 0, 0
	}

	var sum, sumSq float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			// Rec. 601 luma on 8-bit channels.
			luma := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			sum += luma
			sumSq += luma * luma
		}
	}

	mean = sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}
