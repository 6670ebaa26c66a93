// Package detect converts annotation geometry into cropped page features.
package detect

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pagepress/pagepress/internal/annotate"
	"github.com/pagepress/pagepress/internal/domain"
	"github.com/pagepress/pagepress/internal/imaging"
	"github.com/pagepress/pagepress/internal/observability"
)

const (
	// Padding ratios and the overlap threshold are empirical constants
	// carried over from production tuning.
	logoPadRatio     = 0.05
	photoPadRatio    = 0.10
	overlapThreshold = 0.70

	minBoxSide    = 50
	minBoxAspect  = 0.2
	maxBoxAspect  = 5.0
	photoMinScore = 0.8
	photoCatScore = 0.7
	sceneMinScore = 0.75
	sceneMaxSide  = 1200
)

// photoCategories is the fixed vocabulary marking object detections as
// photo-worthy subjects regardless of raw confidence.
var photoCategories = []string{
	"person", "man", "woman", "child", "face", "people",
	"dog", "cat", "bird", "horse", "animal", "pet", "wildlife",
	"mountain", "beach", "sea", "lake", "forest", "tree", "landscape",
	"building", "house", "architecture", "tower", "bridge", "skyscraper",
}

// sceneVocabulary marks whole-image labels that justify a scenic crop.
var sceneVocabulary = []string{
	"nature", "mountain", "sky", "beach", "sea", "ocean", "forest",
	"field", "sunset", "landscape", "outdoor",
	"city", "cityscape", "urban", "street", "downtown", "skyline",
	"room", "interior", "kitchen", "bedroom", "office", "lobby",
}

// Annotator is the external annotation call the detector routes through
// the cache.
type Annotator interface {
	Annotate(ctx context.Context, imagePath string, kind annotate.Kind) (annotate.Result, error)
}

// Detector turns annotation geometry into cropped asset files. The three
// stages (logos, photos, scenes) are independent: a failure in one is
// logged and yields empty results for that stage only.
type Detector struct {
	annotator Annotator
	cache     *annotate.Cache
	validator domain.ImageValidator
	logger    *observability.Logger
}

// NewDetector creates a Detector.
func NewDetector(annotator Annotator, cache *annotate.Cache, validator domain.ImageValidator, logger *observability.Logger) *Detector {
	return &Detector{
		annotator: annotator,
		cache:     cache,
		validator: validator,
		logger:    logger.WithComponent("detect"),
	}
}

// Detect finds logos, subject photos, and scenic crops on one page image.
// It never fails the page: the worst case is zero features.
func (d *Detector) Detect(ctx context.Context, page domain.PageImage, outputDir string) (domain.Features, error) {
	var features domain.Features

	logos, err := d.detectLogos(ctx, page, outputDir)
	if err != nil {
		d.logger.Warn().Int("page", page.Index).Err(err).Msg("logo detection failed")
	}
	features.Logos = logos

	photos, err := d.detectPhotos(ctx, page, outputDir)
	if err != nil {
		d.logger.Warn().Int("page", page.Index).Err(err).Msg("photo detection failed")
	}
	features.Photos = photos

	// A page already covered by a photo crop does not also get a scene crop.
	scenes, err := d.detectScenes(ctx, page, outputDir, len(photos) > 0)
	if err != nil {
		d.logger.Warn().Int("page", page.Index).Err(err).Msg("scene detection failed")
	}
	features.Scenes = scenes

	return features, nil
}

func (d *Detector) annotation(ctx context.Context, page domain.PageImage, kind annotate.Kind) (annotate.Result, error) {
	res := d.cache.GetOrCompute(ctx, page.Hash, kind, func(ctx context.Context) (annotate.Result, error) {
		return d.annotator.Annotate(ctx, page.Path, kind)
	})
	return res, res.Err
}

func (d *Detector) detectLogos(ctx context.Context, page domain.PageImage, outputDir string) ([]domain.DetectedFeature, error) {
	res, err := d.annotation(ctx, page, annotate.KindLogo)
	if err != nil {
		return nil, err
	}

	var logos []domain.DetectedFeature
	for i, logo := range res.Logos {
		box, ok := boxFromVertices(logo.Vertices)
		if !ok {
			// Malformed geometry is skipped, not fatal.
			continue
		}

		pad := int(logoPadRatio * float64(minInt(box.Width, box.Height)))
		box = clipBox(padBox(box, pad, pad), page.Width, page.Height)
		if box.Area() == 0 {
			continue
		}

		cropPath := filepath.Join(outputDir, fmt.Sprintf("logo_%03d_%d.jpg", page.Index, i))
		if err := imaging.Crop(page.Path, box, cropPath); err != nil {
			d.logger.Warn().Str("path", cropPath).Err(err).Msg("logo crop failed")
			continue
		}

		logos = append(logos, domain.DetectedFeature{
			Class: domain.FeatureLogo,
			Box:   box,
			Path:  cropPath,
		})
	}
	return logos, nil
}

func (d *Detector) detectPhotos(ctx context.Context, page domain.PageImage, outputDir string) ([]domain.DetectedFeature, error) {
	res, err := d.annotation(ctx, page, annotate.KindObject)
	if err != nil {
		return nil, err
	}

	var (
		photos   []domain.DetectedFeature
		accepted []domain.BoundingBox
	)

	for i, obj := range res.Objects {
		if !photoWorthy(obj.Name, obj.Score) {
			continue
		}

		box, ok := boxFromNormalized(obj.NormalizedVertices, page.Width, page.Height)
		if !ok {
			continue
		}
		box = clipBox(box, page.Width, page.Height)

		if box.Width < minBoxSide || box.Height < minBoxSide {
			continue
		}
		aspect := float64(box.Width) / float64(box.Height)
		if aspect < minBoxAspect || aspect > maxBoxAspect {
			continue
		}

		if overlapsExisting(box, accepted, overlapThreshold) {
			continue
		}

		padded := clipBox(padBox(box,
			int(photoPadRatio*float64(box.Width)),
			int(photoPadRatio*float64(box.Height)),
		), page.Width, page.Height)

		cropPath := filepath.Join(outputDir, fmt.Sprintf("photo_%03d_%d.jpg", page.Index, i))
		if err := imaging.Crop(page.Path, padded, cropPath); err != nil {
			d.logger.Warn().Str("path", cropPath).Err(err).Msg("photo crop failed")
			continue
		}

		if !d.validator.IsValid(cropPath) {
			os.Remove(cropPath)
			continue
		}

		accepted = append(accepted, box)
		photos = append(photos, domain.DetectedFeature{
			Class: domain.FeaturePhoto,
			Box:   padded,
			Path:  cropPath,
		})
	}
	return photos, nil
}

func (d *Detector) detectScenes(ctx context.Context, page domain.PageImage, outputDir string, hasPhotoCrop bool) ([]domain.DetectedFeature, error) {
	res, err := d.annotation(ctx, page, annotate.KindLabel)
	if err != nil {
		return nil, err
	}

	scenic := false
	for _, label := range res.Labels {
		if label.Score > sceneMinScore && matchesVocabulary(label.Description, sceneVocabulary) {
			scenic = true
			break
		}
	}
	if !scenic || hasPhotoCrop {
		return nil, nil
	}

	box, err := imaging.SceneBox(page.Path, sceneMaxSide)
	if err != nil {
		return nil, err
	}

	cropPath := filepath.Join(outputDir, fmt.Sprintf("scene_%03d.jpg", page.Index))
	if err := imaging.Crop(page.Path, box, cropPath); err != nil {
		return nil, err
	}

	return []domain.DetectedFeature{{
		Class: domain.FeatureScene,
		Box:   box,
		Path:  cropPath,
	}}, nil
}

// photoWorthy applies the confidence/category rule: a category match
// passes above the lower bar, everything else needs high confidence.
func photoWorthy(name string, score float64) bool {
	if matchesVocabulary(name, photoCategories) {
		return score > photoCatScore
	}
	return score >= photoMinScore
}

func matchesVocabulary(label string, vocabulary []string) bool {
	lower := strings.ToLower(label)
	for _, term := range vocabulary {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
