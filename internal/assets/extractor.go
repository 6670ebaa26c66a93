// Package assets extracts embedded images and vectors from documents by
// shelling out to native extraction tools.
package assets

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pagepress/pagepress/internal/domain"
	"github.com/pagepress/pagepress/internal/hashing"
	"github.com/pagepress/pagepress/internal/imaging"
	"github.com/pagepress/pagepress/internal/observability"
	"github.com/pagepress/pagepress/internal/render"
)

const (
	bitmapTool = "pdfimages"
	vectorTool = "pdftocairo"

	assetPrefix = "embed"

	// Square rasters at least this large are suspected page backgrounds
	// and must pass the pixel-density check.
	backgroundMinSide = 500
	minPixelDensity   = 0.10
)

var pageFileRe = regexp.MustCompile(render.PageFilePattern)

// Extractor pulls embedded assets out of a document. Missing native tools
// degrade to an empty result; a timeout yields whatever was produced so
// far. Never fatal to the run.
type Extractor struct {
	hasher    *hashing.Hasher
	validator domain.ImageValidator
	timeout   time.Duration
	batchSize int
	logger    *observability.Logger

	// Overridable in tests.
	lookPath func(string) (string, error)
	runTool  func(ctx context.Context, name string, args ...string) error
}

// NewExtractor creates an Extractor.
func NewExtractor(hasher *hashing.Hasher, validator domain.ImageValidator, timeout time.Duration, batchSize int, logger *observability.Logger) *Extractor {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if batchSize < 1 {
		batchSize = 10
	}
	return &Extractor{
		hasher:    hasher,
		validator: validator,
		timeout:   timeout,
		batchSize: batchSize,
		logger:    logger.WithComponent("assets"),
		lookPath:  exec.LookPath,
		runTool: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

// Extract runs the available native tools against the document, then scans
// and filters their output. Files that are renderer artifacts, duplicates,
// or quality-gate failures are skipped.
func (e *Extractor) Extract(ctx context.Context, doc domain.Document, outputDir string) ([]domain.EmbeddedAsset, error) {
	toolCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ran := e.runTools(toolCtx, doc, outputDir)
	if ran == 0 {
		e.logger.Warn().Msg("no native extraction tools available, skipping asset extraction")
		return nil, nil
	}

	files, err := e.listCandidates(outputDir)
	if err != nil {
		return nil, err
	}

	return e.scanFiles(ctx, doc, files)
}

// runTools invokes every available extraction tool in parallel and returns
// how many were found. Tool failures and timeouts are soft: whatever files
// landed on disk are scanned anyway.
func (e *Extractor) runTools(ctx context.Context, doc domain.Document, outputDir string) int {
	type tool struct {
		name string
		args []string
	}

	tools := []tool{
		{bitmapTool, []string{"-png", doc.Path, filepath.Join(outputDir, assetPrefix)}},
		{vectorTool, []string{"-svg", doc.Path, filepath.Join(outputDir, assetPrefix+".svg")}},
	}

	var wg sync.WaitGroup
	available := 0
	for _, t := range tools {
		if _, err := e.lookPath(t.name); err != nil {
			e.logger.Debug().Str("tool", t.name).Msg("extraction tool not found")
			continue
		}
		available++
		wg.Add(1)
		go func(t tool) {
			defer wg.Done()
			if err := e.runTool(ctx, t.name, t.args...); err != nil {
				e.logger.Warn().Str("tool", t.name).Err(err).Msg("extraction tool failed, keeping partial output")
			}
		}(t)
	}
	wg.Wait()
	return available
}

// listCandidates returns extracted files, excluding renderer artifacts.
func (e *Extractor) listCandidates(outputDir string) ([]string, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return nil, domain.IOError(fmt.Sprintf("list extraction output: %s", outputDir), err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if pageFileRe.MatchString(entry.Name()) {
			continue
		}
		if !strings.HasPrefix(entry.Name(), assetPrefix) {
			continue
		}
		files = append(files, filepath.Join(outputDir, entry.Name()))
	}
	return files, nil
}

// scanFiles filters candidates in fixed-size batches, each batch processed
// concurrently. Dedup by content digest spans the whole run.
func (e *Extractor) scanFiles(ctx context.Context, doc domain.Document, files []string) ([]domain.EmbeddedAsset, error) {
	var (
		mu     sync.Mutex
		seen   = make(map[string]bool)
		assets []domain.EmbeddedAsset
	)

	for start := 0; start < len(files); start += e.batchSize {
		end := start + e.batchSize
		if end > len(files) {
			end = len(files)
		}

		g, _ := errgroup.WithContext(ctx)
		for _, path := range files[start:end] {
			g.Go(func() error {
				asset, ok := e.inspect(doc, path, &mu, seen)
				if !ok {
					return nil
				}
				mu.Lock()
				assets = append(assets, asset)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return assets, err
		}
	}

	e.logger.Info().Int("candidates", len(files)).Int("accepted", len(assets)).Msg("asset extraction complete")
	return assets, nil
}

// inspect decides whether one extracted file is a genuine embedded asset.
func (e *Extractor) inspect(doc domain.Document, path string, mu *sync.Mutex, seen map[string]bool) (domain.EmbeddedAsset, bool) {
	digest, err := e.hasher.ImageDigest(path)
	if err != nil {
		e.logger.Debug().Str("path", path).Err(err).Msg("skipping unreadable file")
		return domain.EmbeddedAsset{}, false
	}

	mu.Lock()
	if seen[digest] {
		mu.Unlock()
		return domain.EmbeddedAsset{}, false
	}
	seen[digest] = true
	mu.Unlock()

	if strings.EqualFold(filepath.Ext(path), ".svg") {
		info, err := os.Stat(path)
		if err != nil || info.Size() == 0 {
			return domain.EmbeddedAsset{}, false
		}
		return domain.EmbeddedAsset{
			DocumentHash: doc.Hash,
			Hash:         digest,
			Kind:         domain.AssetVector,
			Path:         path,
		}, true
	}

	if !e.validator.IsValid(path) {
		return domain.EmbeddedAsset{}, false
	}

	if isSuspectedBackground(path) {
		density, err := imaging.PixelDensity(path)
		if err != nil || density < minPixelDensity {
			e.logger.Debug().Str("path", path).Float64("density", density).Msg("dropping page-background asset")
			return domain.EmbeddedAsset{}, false
		}
	}

	return domain.EmbeddedAsset{
		DocumentHash: doc.Hash,
		Hash:         digest,
		Kind:         domain.AssetRaster,
		Path:         path,
	}, true
}

// isSuspectedBackground reports whether the raster is square and at least
// 500px per side. A naive size filter alone would admit full-page
// background renders; those get the density check.
func isSuspectedBackground(path string) bool {
	w, h, err := imaging.Dimensions(path)
	if err != nil {
		return false
	}
	return w == h && w >= backgroundMinSide
}
