// Package summarize derives a title and description for a page image by
// running OCR and asking a text-completion service for structured output.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pagepress/pagepress/internal/domain"
	"github.com/pagepress/pagepress/internal/observability"
)

const promptTemplate = `You are given the OCR text of one page of a marketing document.
Produce strict JSON with exactly these keys and nothing else:
{"title": "<short page title, at most 8 words>", "description": "<one or two sentences describing the page>"}

OCR text:
%s`

// Summarizer runs OCR on a page image and turns the text into a title and
// description. A page with no legible text yields (nil, nil): it simply
// contributes no summary.
type Summarizer struct {
	ocr       domain.OCREngine
	completer domain.Completer
	language  string
	logger    *observability.Logger
}

// NewSummarizer creates a Summarizer.
func NewSummarizer(ocr domain.OCREngine, completer domain.Completer, language string, logger *observability.Logger) *Summarizer {
	if language == "" {
		language = "eng"
	}
	return &Summarizer{
		ocr:       ocr,
		completer: completer,
		language:  language,
		logger:    logger.WithComponent("summarize"),
	}
}

// Summarize OCRs the image and asks the completion service for
// {title, description}. Failures are summarization errors that drop only
// this page from the run.
func (s *Summarizer) Summarize(ctx context.Context, imagePath string) (*domain.PageText, error) {
	text, err := s.ocr.Recognize(ctx, imagePath, s.language)
	if err != nil {
		return nil, domain.SummarizationError(fmt.Sprintf("OCR: %s", imagePath), err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	raw, err := s.completer.Complete(ctx, fmt.Sprintf(promptTemplate, text))
	if err != nil {
		return nil, err
	}

	var result domain.PageText
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &result); err != nil {
		return nil, domain.SummarizationError("parse completion JSON", err)
	}
	if result.Title == "" && result.Description == "" {
		return nil, domain.SummarizationError("completion JSON missing title and description", nil)
	}

	s.logger.Debug().Str("image", imagePath).Str("title", result.Title).Msg("page summarized")
	return &result, nil
}

// stripCodeFence removes markdown code-fence wrappers the completion
// service sometimes adds around its JSON output.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	// Drop a language tag like "json" on the opening fence line.
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		first := strings.TrimSpace(trimmed[:idx])
		if first != "" && !strings.HasPrefix(first, "{") {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
