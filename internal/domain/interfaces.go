package domain

import "context"

// Renderer converts document pages into raster images, one file per page,
// deterministically named by page order.
type Renderer interface {
	Render(ctx context.Context, doc Document, outputDir string) ([]PageImage, error)
}

// AssetExtractor pulls embedded images and vectors out of a document.
// Absence of native extraction tools yields an empty result, not an error.
type AssetExtractor interface {
	Extract(ctx context.Context, doc Document, outputDir string) ([]EmbeddedAsset, error)
}

// Summarizer derives a title and description from a page image. A page
// with no legible text returns (nil, nil).
type Summarizer interface {
	Summarize(ctx context.Context, imagePath string) (*PageText, error)
}

// Detector finds and crops visually distinct regions of a page image.
type Detector interface {
	Detect(ctx context.Context, page PageImage, outputDir string) (Features, error)
}

// ImageValidator is the quality gate for raster images.
type ImageValidator interface {
	IsValid(path string) bool
}

// OCREngine extracts plain text from an image. Empty output is valid.
type OCREngine interface {
	Recognize(ctx context.Context, imagePath, language string) (string, error)
}

// Completer calls an external text-completion service with a prompt and
// returns the raw response text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
