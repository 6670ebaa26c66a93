// Package annotate provides the external vision annotation client and the
// per-run annotation cache.
package annotate

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/pagepress/pagepress/internal/config"
	"github.com/pagepress/pagepress/internal/domain"
	"github.com/pagepress/pagepress/internal/observability"
)

// Kind selects which annotation the vision service performs.
type Kind string

const (
	KindLogo   Kind = "LOGO_DETECTION"
	KindObject Kind = "OBJECT_LOCALIZATION"
	KindLabel  Kind = "LABEL_DETECTION"
)

// Vertex is a single point of a bounding polygon. Logo vertices are in
// absolute pixel coordinates; object vertices are normalized to [0,1].
type Vertex struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Logo is one logo detection with absolute-pixel polygon vertices.
type Logo struct {
	Description string
	Score       float64
	Vertices    []Vertex
}

// Object is one localized object with normalized polygon vertices.
type Object struct {
	Name               string
	Score              float64
	NormalizedVertices []Vertex
}

// Label is one whole-image label.
type Label struct {
	Description string
	Score       float64
}

// Result is the response for one (image, kind) pair. Exactly one of the
// three slices is populated, matching Kind. Err records a failed external
// call; failed results are cached for the run so a failing service is not
// hammered with repeats.
type Result struct {
	Kind    Kind
	Logos   []Logo
	Objects []Object
	Labels  []Label
	Err     error
}

// Client calls the vision annotation HTTP API.
type Client struct {
	endpoint   string
	apiKey     string
	maxResults int
	httpClient *http.Client
	logger     *observability.Logger
}

// NewClient creates a vision client. A missing API key is a fatal
// configuration error: the pipeline cannot run without annotations.
func NewClient(cfg config.AnnotationConfig, logger *observability.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, domain.ConfigError("annotation API key not set", nil)
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.WithComponent("annotate"),
	}, nil
}

// Wire format for the images:annotate endpoint.
type annotateRequest struct {
	Requests []imageRequest `json:"requests"`
}

type imageRequest struct {
	Image    imageContent `json:"image"`
	Features []feature    `json:"features"`
}

type imageContent struct {
	Content string `json:"content"`
}

type feature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults"`
}

type annotateResponse struct {
	Responses []imageResponse `json:"responses"`
}

type imageResponse struct {
	LogoAnnotations            []logoAnnotation   `json:"logoAnnotations"`
	LocalizedObjectAnnotations []objectAnnotation `json:"localizedObjectAnnotations"`
	LabelAnnotations           []labelAnnotation  `json:"labelAnnotations"`
	Error                      *statusError       `json:"error"`
}

type logoAnnotation struct {
	Description  string       `json:"description"`
	Score        float64      `json:"score"`
	BoundingPoly boundingPoly `json:"boundingPoly"`
}

type objectAnnotation struct {
	Name         string       `json:"name"`
	Score        float64      `json:"score"`
	BoundingPoly boundingPoly `json:"boundingPoly"`
}

type labelAnnotation struct {
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

type boundingPoly struct {
	Vertices           []Vertex `json:"vertices"`
	NormalizedVertices []Vertex `json:"normalizedVertices"`
}

type statusError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Annotate reads the image at path and requests one annotation kind.
func (c *Client) Annotate(ctx context.Context, imagePath string, kind Kind) (Result, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return Result{Kind: kind}, domain.IOError(fmt.Sprintf("read image: %s", imagePath), err)
	}

	reqBody := annotateRequest{
		Requests: []imageRequest{{
			Image:    imageContent{Content: base64.StdEncoding.EncodeToString(data)},
			Features: []feature{{Type: string(kind), MaxResults: c.maxResults}},
		}},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return Result{Kind: kind}, domain.AnnotationError("marshal annotation request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"?key="+c.apiKey, bytes.NewReader(body))
	if err != nil {
		return Result{Kind: kind}, domain.AnnotationError("build annotation request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Result{Kind: kind}, domain.AnnotationError("send annotation request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{Kind: kind}, domain.AnnotationError(
			fmt.Sprintf("annotation service returned status %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	var parsed annotateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{Kind: kind}, domain.AnnotationError("decode annotation response", err)
	}
	if len(parsed.Responses) == 0 {
		return Result{Kind: kind}, nil
	}

	ir := parsed.Responses[0]
	if ir.Error != nil {
		return Result{Kind: kind}, domain.AnnotationError(
			fmt.Sprintf("annotation failed (code %d): %s", ir.Error.Code, ir.Error.Message), nil)
	}

	result := Result{Kind: kind}
	switch kind {
	case KindLogo:
		for _, a := range ir.LogoAnnotations {
			result.Logos = append(result.Logos, Logo{
				Description: a.Description,
				Score:       a.Score,
				Vertices:    a.BoundingPoly.Vertices,
			})
		}
	case KindObject:
		for _, a := range ir.LocalizedObjectAnnotations {
			result.Objects = append(result.Objects, Object{
				Name:               a.Name,
				Score:              a.Score,
				NormalizedVertices: a.BoundingPoly.NormalizedVertices,
			})
		}
	case KindLabel:
		for _, a := range ir.LabelAnnotations {
			result.Labels = append(result.Labels, Label{
				Description: a.Description,
				Score:       a.Score,
			})
		}
	}

	c.logger.Debug().
		Str("kind", string(kind)).
		Int("logos", len(result.Logos)).
		Int("objects", len(result.Objects)).
		Int("labels", len(result.Labels)).
		Msg("annotation complete")

	return result, nil
}
