// Package pipeline drives the end-to-end document processing flow.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pagepress/pagepress/internal/domain"
	"github.com/pagepress/pagepress/internal/hashing"
	"github.com/pagepress/pagepress/internal/observability"
)

const maxPageWorkerCap = 3

// Resettable is a per-run cache owned by the orchestrator. All registered
// caches are cleared at the start of each document run, so no dedup or
// annotation assumption leaks across unrelated documents.
type Resettable interface {
	Reset()
}

// Orchestrator runs the pipeline: hash the input, extract assets and
// render pages in parallel, validate and dedup pages, process page batches
// under a bounded worker count, and publish the assembled session.
type Orchestrator struct {
	hasher     *hashing.Hasher
	renderer   domain.Renderer
	extractor  domain.AssetExtractor
	summarizer domain.Summarizer
	detector   domain.Detector
	validator  domain.ImageValidator
	caches     []Resettable
	store      *SessionStore
	outputRoot string
	maxWorkers int
	logger     *observability.Logger

	// PageProcessed, when set, is called after each page finishes with
	// the number of completed pages and the total. Used by the CLI for
	// progress display.
	PageProcessed func(completed, total int)
}

// Options groups the orchestrator's collaborators.
type Options struct {
	Hasher     *hashing.Hasher
	Renderer   domain.Renderer
	Extractor  domain.AssetExtractor
	Summarizer domain.Summarizer
	Detector   domain.Detector
	Validator  domain.ImageValidator
	Caches     []Resettable
	Store      *SessionStore
	OutputRoot string
	MaxWorkers int
	Logger     *observability.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(opts Options) *Orchestrator {
	maxWorkers := opts.MaxWorkers
	if maxWorkers < 1 || maxWorkers > maxPageWorkerCap {
		maxWorkers = maxPageWorkerCap
	}
	store := opts.Store
	if store == nil {
		store = NewSessionStore()
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.Default()
	}
	return &Orchestrator{
		hasher:     opts.Hasher,
		renderer:   opts.Renderer,
		extractor:  opts.Extractor,
		summarizer: opts.Summarizer,
		detector:   opts.Detector,
		validator:  opts.Validator,
		caches:     opts.Caches,
		store:      store,
		outputRoot: opts.OutputRoot,
		maxWorkers: maxWorkers,
		logger:     logger.WithComponent("pipeline"),
	}
}

// Store returns the session store read by downstream consumers.
func (o *Orchestrator) Store() *SessionStore { return o.store }

// Process runs the whole pipeline for one document. Partial failures
// degrade to fewer summaries; only configuration and run-level I/O setup
// failures propagate as errors.
func (o *Orchestrator) Process(ctx context.Context, path string) (*domain.ProcessingSession, error) {
	start := time.Now()

	hash, err := o.hasher.HashFile(path)
	if err != nil {
		return nil, err
	}
	doc := domain.Document{Path: path, Hash: hash}

	for _, c := range o.caches {
		c.Reset()
	}

	outputDir := filepath.Join(o.outputRoot, hash)
	if err := os.RemoveAll(outputDir); err != nil {
		return nil, domain.IOError(fmt.Sprintf("clear output directory: %s", outputDir), err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, domain.IOError(fmt.Sprintf("create output directory: %s", outputDir), err)
	}

	o.logger.Info().Str("document", path).Str("hash", hash).Msg("run started")

	assets, pages := o.extractAndRender(ctx, doc, outputDir)
	doc.PageCount = len(pages)

	pages = o.validPages(pages)

	summaries := o.processPages(ctx, pages, outputDir, assets)

	session := &domain.ProcessingSession{
		ID:          uuid.New(),
		Document:    doc,
		OutputDir:   outputDir,
		CompletedAt: time.Now(),
		Summaries:   summaries,
	}
	o.store.Replace(session)

	o.logger.Info().
		Int("pages", len(pages)).
		Int("summaries", len(summaries)).
		Int("assets", len(assets)).
		Dur("duration", time.Since(start)).
		Msg("run complete")

	return session, nil
}

// extractAndRender runs asset extraction and page rendering concurrently.
// Both are soft: a failed extractor yields no assets, a failed renderer
// yields no pages, and the run still completes.
func (o *Orchestrator) extractAndRender(ctx context.Context, doc domain.Document, outputDir string) ([]domain.EmbeddedAsset, []domain.PageImage) {
	var (
		assets []domain.EmbeddedAsset
		pages  []domain.PageImage
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := o.extractor.Extract(gctx, doc, outputDir)
		if err != nil {
			o.logger.Warn().Err(err).Msg("asset extraction failed, continuing without assets")
			return nil
		}
		assets = a
		return nil
	})
	g.Go(func() error {
		p, err := o.renderer.Render(gctx, doc, outputDir)
		if err != nil {
			o.logger.Warn().Err(err).Msg("page rendering failed, continuing without pages")
			return nil
		}
		pages = p
		return nil
	})
	_ = g.Wait()

	return assets, pages
}

// validPages filters rendered pages through the quality gate and drops
// duplicates by content digest. A repeated page (a duplicated cover, say)
// is silently excluded, not reported as an error.
func (o *Orchestrator) validPages(pages []domain.PageImage) []domain.PageImage {
	seen := make(map[string]bool)
	valid := make([]domain.PageImage, 0, len(pages))

	for _, page := range pages {
		digest, err := o.hasher.ImageDigest(page.Path)
		if err != nil {
			o.logger.Warn().Int("page", page.Index).Err(err).Msg("skipping unreadable page")
			continue
		}
		page.Hash = digest

		if seen[digest] {
			o.logger.Debug().Int("page", page.Index).Msg("skipping duplicate page")
			continue
		}
		if !o.validator.IsValid(page.Path) {
			o.logger.Debug().Int("page", page.Index).Msg("skipping invalid page")
			continue
		}

		seen[digest] = true
		valid = append(valid, page)
	}
	return valid
}

// processPages runs summarization and feature detection for each page.
// Pages are processed in batches of the worker count: concurrent within a
// batch, sequential across batches, bounding peak memory and connections.
// Summaries are reassembled in source page order.
func (o *Orchestrator) processPages(ctx context.Context, pages []domain.PageImage, outputDir string, assets []domain.EmbeddedAsset) []domain.PageSummary {
	workers := o.maxWorkers
	if n := runtime.GOMAXPROCS(0); n < workers {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}

	var (
		mu        sync.Mutex
		completed int
		byIndex   = make(map[int]domain.PageSummary, len(pages))
	)

	for startIdx := 0; startIdx < len(pages); startIdx += workers {
		endIdx := startIdx + workers
		if endIdx > len(pages) {
			endIdx = len(pages)
		}

		var wg sync.WaitGroup
		for _, page := range pages[startIdx:endIdx] {
			wg.Add(1)
			go func(page domain.PageImage) {
				defer wg.Done()

				summary, ok := o.processPage(ctx, page, outputDir)

				mu.Lock()
				completed++
				done := completed
				if ok {
					byIndex[page.Index] = summary
				}
				mu.Unlock()

				if o.PageProcessed != nil {
					o.PageProcessed(done, len(pages))
				}
			}(page)
		}
		wg.Wait()
	}

	summaries := make([]domain.PageSummary, 0, len(byIndex))
	for _, page := range pages {
		if s, ok := byIndex[page.Index]; ok {
			// The run's embedded assets ride on page index 0 only.
			if page.Index == 0 {
				s.EmbeddedAssets = assets
			}
			summaries = append(summaries, s)
		}
	}
	return summaries
}

// processPage runs the summarizer and the detector concurrently for one
// page. A page whose summary is nil or failed is dropped entirely: no
// partial summary is emitted.
func (o *Orchestrator) processPage(ctx context.Context, page domain.PageImage, outputDir string) (domain.PageSummary, bool) {
	var (
		text     *domain.PageText
		features domain.Features
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		t, err := o.summarizer.Summarize(ctx, page.Path)
		if err != nil {
			o.logger.Warn().Int("page", page.Index).Err(err).Msg("summarization failed, dropping page")
			return
		}
		text = t
	}()
	go func() {
		defer wg.Done()
		f, err := o.detector.Detect(ctx, page, outputDir)
		if err != nil {
			o.logger.Warn().Int("page", page.Index).Err(err).Msg("feature detection failed")
			return
		}
		features = f
	}()
	wg.Wait()

	if text == nil {
		return domain.PageSummary{}, false
	}

	return domain.PageSummary{
		Image:       page,
		Title:       text.Title,
		Description: text.Description,
		Logos:       features.Logos,
		Photos:      features.Photos,
		Scenes:      features.Scenes,
	}, true
}
