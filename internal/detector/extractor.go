package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/ayusman/drishti/internal/identity"
	"github.com/ayusman/drishti/internal/session"
)

// DefaultExtractorConfig returns the embedding service configuration.
func DefaultExtractorConfig() Config {
	config := DefaultConfig()
	config.Script = "face_embedding_service.py"
	return config
}

// ServiceExtractor implements session.Extractor using the embedding helper.
type ServiceExtractor struct {
	svc  *service
	dims int
}

// NewServiceExtractor creates an extractor backed by config.Script. dims is
// the expected embedding length; zero accepts any length.
func NewServiceExtractor(config Config, dims int) (*ServiceExtractor, error) {
	svc, err := newService(config)
	if err != nil {
		return nil, err
	}
	return &ServiceExtractor{svc: svc, dims: dims}, nil
}

// Extract encodes region as JPEG and asks the helper for its embedding.
func (e *ServiceExtractor) Extract(ctx context.Context, region image.Image) (identity.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if region == nil {
		return nil, session.ErrNoRegion
	}

	data, err := encodeRegion(region)
	if err != nil {
		return nil, fmt.Errorf("encode region: %w", err)
	}

	line, err := e.svc.roundTrip(ctx, data)
	if err != nil {
		return nil, err
	}
	return parseEmbedding(line, e.dims)
}

// Close shuts down the Python process.
func (e *ServiceExtractor) Close() error {
	return e.svc.close()
}

// encodedImage is implemented by camera crops that carry their own JPEG.
type encodedImage interface {
	JPEG() []byte
}

func encodeRegion(region image.Image) ([]byte, error) {
	if enc, ok := region.(encodedImage); ok {
		if data := enc.JPEG(); len(data) > 0 {
			return data, nil
		}
	}

	mat, err := gocv.ImageToMatRGB(region)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), nil
}

func parseEmbedding(line []byte, dims int) (identity.Embedding, error) {
	var response struct {
		Embedding []float64 `json:"embedding"`
		Error     string    `json:"error"`
	}
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("%w: %s", session.ErrNoEmbedding, response.Error)
	}
	if len(response.Embedding) == 0 {
		return nil, session.ErrNoEmbedding
	}
	if dims > 0 && len(response.Embedding) != dims {
		return nil, fmt.Errorf("%w: got %d, want %d", identity.ErrDimensionMismatch, len(response.Embedding), dims)
	}
	return identity.Embedding(response.Embedding), nil
}
