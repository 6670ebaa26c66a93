// Package config provides unified configuration loading for the pipeline.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pagepress/pagepress/internal/domain"
)

// Config holds all configuration for the pipeline.
type Config struct {
	Output        OutputConfig        `yaml:"output"`
	Annotation    AnnotationConfig    `yaml:"annotation"`
	Completion    CompletionConfig    `yaml:"completion"`
	OCR           OCRConfig           `yaml:"ocr"`
	Extraction    ExtractionConfig    `yaml:"extraction"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// OutputConfig holds output directory settings.
type OutputConfig struct {
	// Root is the directory under which per-document output directories
	// (named by document hash) are created.
	Root string `yaml:"root"`
}

// AnnotationConfig holds external vision annotation service settings.
type AnnotationConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
	// MaxConcurrent bounds in-flight annotation calls through the gate.
	MaxConcurrent int `yaml:"max_concurrent"`
	MaxResults    int `yaml:"max_results"`
}

// CompletionConfig holds external text-completion service settings.
type CompletionConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	// BaseBackoff is multiplied by the attempt number on each retry.
	BaseBackoff time.Duration `yaml:"base_backoff"`
}

// OCRConfig holds OCR engine settings.
type OCRConfig struct {
	Language string `yaml:"language"`
}

// ExtractionConfig holds native asset extraction settings.
type ExtractionConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	BatchSize int           `yaml:"batch_size"`
}

// PipelineConfig holds orchestration settings.
type PipelineConfig struct {
	// MaxPageWorkers caps the per-batch page concurrency. The effective
	// worker count is min(MaxPageWorkers, GOMAXPROCS).
	MaxPageWorkers int `yaml:"max_page_workers"`
	RenderQuality  int `yaml:"render_quality"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, domain.IOError("read config file", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, domain.ConfigError("parse config file", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Output: OutputConfig{
			Root: "output",
		},
		Annotation: AnnotationConfig{
			Endpoint:      "https://vision.googleapis.com/v1/images:annotate",
			Timeout:       30 * time.Second,
			MaxConcurrent: 4,
			MaxResults:    10,
		},
		Completion: CompletionConfig{
			Endpoint:    "https://openrouter.ai/api/v1/chat/completions",
			Model:       "google/gemini-2.5-flash-preview-09-2025",
			Timeout:     60 * time.Second,
			MaxRetries:  3,
			BaseBackoff: time.Second,
		},
		OCR: OCRConfig{
			Language: "eng",
		},
		Extraction: ExtractionConfig{
			Timeout:   60 * time.Second,
			BatchSize: 10,
		},
		Pipeline: PipelineConfig{
			MaxPageWorkers: 3,
			RenderQuality:  85,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "console",
		},
	}
}

// applyEnvOverrides maps environment variables onto the config. Credentials
// are env-only so they never end up in a config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VISION_API_KEY"); v != "" {
		cfg.Annotation.APIKey = v
	}
	if v := os.Getenv("VISION_ENDPOINT"); v != "" {
		cfg.Annotation.Endpoint = v
	}
	if v := os.Getenv("COMPLETION_API_KEY"); v != "" {
		cfg.Completion.APIKey = v
	}
	if v := os.Getenv("COMPLETION_ENDPOINT"); v != "" {
		cfg.Completion.Endpoint = v
	}
	if v := os.Getenv("COMPLETION_MODEL"); v != "" {
		cfg.Completion.Model = v
	}
	if v := os.Getenv("PAGEPRESS_OUTPUT_ROOT"); v != "" {
		cfg.Output.Root = v
	}
	if v := os.Getenv("PAGEPRESS_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
}

// Validate checks the configuration for errors. A missing annotation
// credential is fatal: the pipeline cannot run without the vision service.
func (c *Config) Validate() error {
	if c.Annotation.APIKey == "" {
		return domain.ConfigError("annotation API key not set (VISION_API_KEY)", nil)
	}
	if c.Annotation.MaxConcurrent < 1 {
		return domain.ConfigError(fmt.Sprintf("invalid annotation max_concurrent: %d", c.Annotation.MaxConcurrent), nil)
	}
	if c.Pipeline.MaxPageWorkers < 1 {
		return domain.ConfigError(fmt.Sprintf("invalid max_page_workers: %d", c.Pipeline.MaxPageWorkers), nil)
	}
	if c.Pipeline.RenderQuality < 1 || c.Pipeline.RenderQuality > 100 {
		return domain.ConfigError(fmt.Sprintf("render quality must be between 1 and 100, got %d", c.Pipeline.RenderQuality), nil)
	}
	if c.Extraction.BatchSize < 1 {
		return domain.ConfigError(fmt.Sprintf("invalid extraction batch_size: %d", c.Extraction.BatchSize), nil)
	}
	if c.Completion.MaxRetries < 0 {
		return domain.ConfigError(fmt.Sprintf("invalid completion max_retries: %d", c.Completion.MaxRetries), nil)
	}
	return nil
}
