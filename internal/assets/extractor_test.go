package assets

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagepress/pagepress/internal/domain"
	"github.com/pagepress/pagepress/internal/hashing"
	"github.com/pagepress/pagepress/internal/observability"
)

type acceptAllValidator struct{}

func (acceptAllValidator) IsValid(string) bool { return true }

type rejectAllValidator struct{}

func (rejectAllValidator) IsValid(string) bool { return false }

func newTestExtractor(validator domain.ImageValidator) *Extractor {
	return NewExtractor(hashing.New(), validator, time.Minute, 10, observability.Nop())
}

// writeAsset writes a deterministic PNG named like a tool-produced asset.
func writeAsset(t *testing.T, dir, name string, w, h int, seed int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x*29 + y*71 + seed) % 256)
			img.Set(x, y, color.RGBA{v, uint8(255 - int(v)), uint8((x + y + seed) % 256), 255})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestExtractNoToolsAvailableReturnsEmpty(t *testing.T) {
	e := newTestExtractor(acceptAllValidator{})
	e.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	e.runTool = func(ctx context.Context, name string, args ...string) error {
		t.Error("no tool should run when none is available")
		return nil
	}

	assets, err := e.Extract(context.Background(), domain.Document{Path: "doc.pdf", Hash: "h"}, t.TempDir())
	require.NoError(t, err, "missing tools degrade the run, they do not fail it")
	assert.Empty(t, assets)
}

func TestExtractDeduplicatesByContent(t *testing.T) {
	dir := t.TempDir()

	e := newTestExtractor(acceptAllValidator{})
	e.lookPath = func(string) (string, error) { return "/usr/bin/tool", nil }
	e.runTool = func(ctx context.Context, name string, args ...string) error {
		if name != bitmapTool {
			return nil
		}
		// Two identical files, one distinct.
		writeAsset(t, dir, "embed-000.png", 200, 160, 1)
		writeAsset(t, dir, "embed-001.png", 200, 160, 1)
		writeAsset(t, dir, "embed-002.png", 200, 160, 2)
		return nil
	}

	assets, err := e.Extract(context.Background(), domain.Document{Path: "doc.pdf", Hash: "h"}, dir)
	require.NoError(t, err)
	assert.Len(t, assets, 2)

	seen := make(map[string]bool)
	for _, a := range assets {
		assert.False(t, seen[a.Hash], "two accepted assets share hash %s", a.Hash)
		seen[a.Hash] = true
		assert.Equal(t, "h", a.DocumentHash)
		assert.Equal(t, domain.AssetRaster, a.Kind)
	}
}

func TestExtractSkipsRendererArtifacts(t *testing.T) {
	dir := t.TempDir()

	e := newTestExtractor(acceptAllValidator{})
	e.lookPath = func(string) (string, error) { return "/usr/bin/tool", nil }
	e.runTool = func(ctx context.Context, name string, args ...string) error {
		if name != bitmapTool {
			return nil
		}
		writeAsset(t, dir, "page_000.jpg", 200, 160, 1)
		writeAsset(t, dir, "embed-000.png", 200, 160, 2)
		return nil
	}

	assets, err := e.Extract(context.Background(), domain.Document{Path: "doc.pdf", Hash: "h"}, dir)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Contains(t, assets[0].Path, "embed-000.png")
}

func TestExtractVectorPassesWithSizeCheckOnly(t *testing.T) {
	dir := t.TempDir()

	e := newTestExtractor(rejectAllValidator{}) // raster gate rejects everything
	e.lookPath = func(string) (string, error) { return "/usr/bin/tool", nil }
	e.runTool = func(ctx context.Context, name string, args ...string) error {
		if name != vectorTool {
			return nil
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, "embed.svg"), []byte("<svg></svg>"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "embed-empty.svg"), nil, 0o644))
		return nil
	}

	assets, err := e.Extract(context.Background(), domain.Document{Path: "doc.pdf", Hash: "h"}, dir)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, domain.AssetVector, assets[0].Kind)
	assert.Contains(t, assets[0].Path, "embed.svg")
}

func TestExtractRejectsInvalidRasters(t *testing.T) {
	dir := t.TempDir()

	e := newTestExtractor(rejectAllValidator{})
	e.lookPath = func(string) (string, error) { return "/usr/bin/tool", nil }
	e.runTool = func(ctx context.Context, name string, args ...string) error {
		if name != bitmapTool {
			return nil
		}
		writeAsset(t, dir, "embed-000.png", 200, 160, 1)
		return nil
	}

	assets, err := e.Extract(context.Background(), domain.Document{Path: "doc.pdf", Hash: "h"}, dir)
	require.NoError(t, err)
	assert.Empty(t, assets)
}

func TestExtractDropsLowDensitySquareBackground(t *testing.T) {
	dir := t.TempDir()

	e := newTestExtractor(acceptAllValidator{})
	e.lookPath = func(string) (string, error) { return "/usr/bin/tool", nil }
	e.runTool = func(ctx context.Context, name string, args ...string) error {
		if name != bitmapTool {
			return nil
		}
		// A 600x600 nearly-white square: the page-background shape a
		// naive size filter would admit.
		img := image.NewRGBA(image.Rect(0, 0, 600, 600))
		for y := 0; y < 600; y++ {
			for x := 0; x < 600; x++ {
				img.Set(x, y, color.RGBA{252, 252, 252, 255})
			}
		}
		f, err := os.Create(filepath.Join(dir, "embed-bg.png"))
		require.NoError(t, err)
		defer f.Close()
		return png.Encode(f, img)
	}

	assets, err := e.Extract(context.Background(), domain.Document{Path: "doc.pdf", Hash: "h"}, dir)
	require.NoError(t, err)
	assert.Empty(t, assets)
}

func TestExtractTimeoutKeepsPartialOutput(t *testing.T) {
	dir := t.TempDir()

	e := NewExtractor(hashing.New(), acceptAllValidator{}, 50*time.Millisecond, 10, observability.Nop())
	e.lookPath = func(string) (string, error) { return "/usr/bin/tool", nil }
	e.runTool = func(ctx context.Context, name string, args ...string) error {
		if name != bitmapTool {
			return nil
		}
		// Produce one file, then hang until the tool deadline fires.
		writeAsset(t, dir, "embed-000.png", 200, 160, 1)
		<-ctx.Done()
		return ctx.Err()
	}

	start := time.Now()
	assets, err := e.Extract(context.Background(), domain.Document{Path: "doc.pdf", Hash: "h"}, dir)
	require.NoError(t, err, "a tool timeout degrades the run, it does not fail it")
	assert.Less(t, time.Since(start), 5*time.Second, "extraction must stop at the tool deadline")
	require.Len(t, assets, 1)
	assert.Contains(t, assets[0].Path, "embed-000.png")
}

func TestExtractKeepsDenseSquarePhoto(t *testing.T) {
	dir := t.TempDir()

	e := newTestExtractor(acceptAllValidator{})
	e.lookPath = func(string) (string, error) { return "/usr/bin/tool", nil }
	e.runTool = func(ctx context.Context, name string, args ...string) error {
		if name != bitmapTool {
			return nil
		}
		writeAsset(t, dir, "embed-photo.png", 600, 600, 5)
		return nil
	}

	assets, err := e.Extract(context.Background(), domain.Document{Path: "doc.pdf", Hash: "h"}, dir)
	require.NoError(t, err)
	assert.Len(t, assets, 1)
}
