package summarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/pagepress/pagepress/internal/domain"
)

// TesseractEngine runs OCR through the gosseract Tesseract binding. Each
// call uses a fresh client, so concurrent recognition is safe.
type TesseractEngine struct {
	clientFactory func() *gosseract.Client
}

// NewTesseractEngine constructs a Tesseract-backed OCR engine.
func NewTesseractEngine() *TesseractEngine {
	return &TesseractEngine{clientFactory: gosseract.NewClient}
}

// Recognize extracts plain text from the image at path. Empty output is a
// valid result, not an error.
func (e *TesseractEngine) Recognize(ctx context.Context, imagePath, language string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := e.clientFactory()
	defer client.Close()

	if language != "" {
		if err := client.SetLanguage(language); err != nil {
			return "", domain.IOError(fmt.Sprintf("set OCR language %q", language), err)
		}
	}
	if err := client.SetImage(imagePath); err != nil {
		return "", domain.IOError(fmt.Sprintf("set OCR image: %s", imagePath), err)
	}

	text, err := client.Text()
	if err != nil {
		return "", domain.IOError(fmt.Sprintf("OCR failed: %s", imagePath), err)
	}
	return strings.TrimSpace(text), nil
}
