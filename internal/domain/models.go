package domain

import (
	"time"

	"github.com/google/uuid"
)

// Document represents the source file being processed. It is immutable
// once hashed; Hash is the identity used for output namespacing and
// duplicate-run detection.
type Document struct {
	Path      string
	Hash      string
	PageCount int
}

// PageImage represents a single rasterized page of a document.
type PageImage struct {
	Index  int
	Path   string
	Hash   string
	Width  int
	Height int
}

// AssetKind distinguishes extracted embedded assets.
type AssetKind string

const (
	AssetRaster AssetKind = "raster"
	AssetVector AssetKind = "vector"
)

// EmbeddedAsset is an image or vector pulled out of the source document.
// Within one run no two assets share a Hash.
type EmbeddedAsset struct {
	DocumentHash string
	Hash         string
	Kind         AssetKind
	Path         string
}

// BoundingBox is an axis-aligned rectangle in pixel space. A box produced
// by the pipeline is always clipped to its image bounds.
type BoundingBox struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Right returns the exclusive right edge.
func (b BoundingBox) Right() int { return b.Left + b.Width }

// Bottom returns the exclusive bottom edge.
func (b BoundingBox) Bottom() int { return b.Top + b.Height }

// Area returns the box area in pixels.
func (b BoundingBox) Area() int {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// FeatureClass classifies a detected crop region.
type FeatureClass string

const (
	FeatureLogo  FeatureClass = "logo"
	FeaturePhoto FeatureClass = "photo"
	FeatureScene FeatureClass = "scene"
)

// DetectedFeature is a cropped region of a page image.
type DetectedFeature struct {
	Class FeatureClass
	Box   BoundingBox
	Path  string
}

// Features groups per-page detection results. The three slices carry no
// guaranteed relative order.
type Features struct {
	Logos  []DetectedFeature
	Photos []DetectedFeature
	Scenes []DetectedFeature
}

// PageText is the title/description derived from a page's OCR text.
type PageText struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// PageSummary is the per-page pipeline output. EmbeddedAssets is populated
// on page index 0 only.
type PageSummary struct {
	Image          PageImage
	Title          string
	Description    string
	EmbeddedAssets []EmbeddedAsset
	Logos          []DetectedFeature
	Photos         []DetectedFeature
	Scenes         []DetectedFeature
}

// ProcessingSession is the most recently completed run. A single
// process-wide slot holds the current session; each completed run
// replaces it atomically and no history is retained.
type ProcessingSession struct {
	ID          uuid.UUID
	Document    Document
	OutputDir   string
	CompletedAt time.Time
	Summaries   []PageSummary
}
