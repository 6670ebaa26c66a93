package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/pagepress/pagepress/internal/annotate"
	"github.com/pagepress/pagepress/internal/assets"
	"github.com/pagepress/pagepress/internal/config"
	"github.com/pagepress/pagepress/internal/detect"
	"github.com/pagepress/pagepress/internal/gate"
	"github.com/pagepress/pagepress/internal/hashing"
	"github.com/pagepress/pagepress/internal/imaging"
	"github.com/pagepress/pagepress/internal/observability"
	"github.com/pagepress/pagepress/internal/pipeline"
	"github.com/pagepress/pagepress/internal/render"
	"github.com/pagepress/pagepress/internal/summarize"
)

const version = "1.0.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:     "pagepress",
		Short:   "Document visual-content extraction pipeline",
		Version: version,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")

	process := &cobra.Command{
		Use:   "process <document>",
		Short: "Process a document: render pages, extract assets, detect features, summarize",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(configPath, args[0])
		},
	}
	root.AddCommand(process)

	return root
}

func runProcess(configPath, docPath string) error {
	// Ignore error if .env doesn't exist.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: "pagepress",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Warn().Msg("interrupt received, cancelling run")
		cancel()
	}()

	hasher := hashing.New()
	validator := imaging.NewValidator(hasher, logger)

	annotator, err := annotate.NewClient(cfg.Annotation, logger)
	if err != nil {
		return err
	}
	annotationGate := gate.New(cfg.Annotation.MaxConcurrent)
	annotationCache := annotate.NewCache(annotationGate)

	orchestrator := pipeline.NewOrchestrator(pipeline.Options{
		Hasher:     hasher,
		Renderer:   render.NewRenderer(cfg.Pipeline.RenderQuality, logger),
		Extractor:  assets.NewExtractor(hasher, validator, cfg.Extraction.Timeout, cfg.Extraction.BatchSize, logger),
		Summarizer: summarize.NewSummarizer(summarize.NewTesseractEngine(), summarize.NewClient(cfg.Completion, logger), cfg.OCR.Language, logger),
		Detector:   detect.NewDetector(annotator, annotationCache, validator, logger),
		Validator:  validator,
		Caches:     []pipeline.Resettable{annotationCache, validator},
		OutputRoot: cfg.Output.Root,
		MaxWorkers: cfg.Pipeline.MaxPageWorkers,
		Logger:     logger,
	})

	var bar *progressbar.ProgressBar
	orchestrator.PageProcessed = func(completed, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("processing pages"),
				progressbar.OptionSetWriter(os.Stderr),
			)
		}
		_ = bar.Set(completed)
	}

	session, err := orchestrator.Process(ctx, docPath)
	if err != nil {
		return err
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}

	fmt.Printf("Processed %s (%d pages, %d summaries)\n", docPath, session.Document.PageCount, len(session.Summaries))
	for _, s := range session.Summaries {
		fmt.Printf("  page %d: %s (logos=%d photos=%d scenes=%d assets=%d)\n",
			s.Image.Index, s.Title, len(s.Logos), len(s.Photos), len(s.Scenes), len(s.EmbeddedAssets))
	}
	fmt.Printf("Output: %s\n", session.OutputDir)
	return nil
}
