// Package render converts document pages into raster images.
package render

import (
	"context"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"

	"github.com/pagepress/pagepress/internal/domain"
	"github.com/pagepress/pagepress/internal/observability"
)

// PageFilePattern matches renderer output filenames. The asset extractor
// uses it to skip renderer artifacts when scanning extracted files.
const PageFilePattern = `^page_\d{3}\.(jpg|jpeg|png)$`

// Renderer rasterizes document pages using go-fitz. One JPEG per page,
// named page_%03d.jpg so a sorted directory listing follows page order.
type Renderer struct {
	quality int
	logger  *observability.Logger
}

// NewRenderer creates a Renderer encoding pages at the given JPEG quality.
func NewRenderer(quality int, logger *observability.Logger) *Renderer {
	if quality < 1 || quality > 100 {
		quality = 85
	}
	return &Renderer{
		quality: quality,
		logger:  logger.WithComponent("render"),
	}
}

// Render rasterizes every page of the document into outputDir. It shares
// no state with the asset extractor, so the two can run concurrently
// against the same document.
func (r *Renderer) Render(ctx context.Context, doc domain.Document, outputDir string) ([]domain.PageImage, error) {
	fdoc, err := fitz.New(doc.Path)
	if err != nil {
		return nil, domain.ConversionError(fmt.Sprintf("open document: %s", doc.Path), err)
	}
	defer fdoc.Close()

	pageCount := fdoc.NumPage()
	if pageCount == 0 {
		return nil, domain.ValidationError("document has no pages", nil)
	}

	pages := make([]domain.PageImage, 0, pageCount)

	for pageNum := 0; pageNum < pageCount; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		img, err := fdoc.Image(pageNum)
		if err != nil {
			return nil, domain.ConversionError(fmt.Sprintf("rasterize page %d", pageNum), err)
		}

		outputPath := filepath.Join(outputDir, fmt.Sprintf("page_%03d.jpg", pageNum))
		outputFile, err := os.Create(outputPath)
		if err != nil {
			return nil, domain.IOError(fmt.Sprintf("create page file: %s", outputPath), err)
		}

		err = jpeg.Encode(outputFile, img, &jpeg.Options{Quality: r.quality})
		outputFile.Close()
		if err != nil {
			return nil, domain.ConversionError(fmt.Sprintf("encode page %d", pageNum), err)
		}

		bounds := img.Bounds()
		pages = append(pages, domain.PageImage{
			Index:  pageNum,
			Path:   outputPath,
			Width:  bounds.Dx(),
			Height: bounds.Dy(),
		})
	}

	r.logger.Info().Int("pages", len(pages)).Str("dir", outputDir).Msg("rendered document")
	return pages, nil
}
