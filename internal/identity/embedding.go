// Package identity matches face embeddings against a gallery of enrolled
// people.
package identity

import (
	"errors"
	"fmt"
	"math"
)

// DefaultDims is the embedding length produced by the stock extractor.
const DefaultDims = 128

var (
	// ErrDimensionMismatch is returned when two embeddings differ in length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrEmptyEmbedding is returned for zero-length embeddings.
	ErrEmptyEmbedding = errors.New("empty embedding")
)

// Embedding is a fixed-length face descriptor. Closer vectors in Euclidean
// space belong to more similar faces.
type Embedding []float64

// Clone returns a copy of e that shares no memory with it.
func (e Embedding) Clone() Embedding {
	if e == nil {
		return nil
	}
	out := make(Embedding, len(e))
	copy(out, e)
	return out
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Embedding) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Centroid returns the element-wise mean of the given embeddings.
func Centroid(embeddings []Embedding) (Embedding, error) {
	if len(embeddings) == 0 {
		return nil, ErrEmptyEmbedding
	}

	dims := len(embeddings[0])
	if dims == 0 {
		return nil, ErrEmptyEmbedding
	}

	mean := make(Embedding, dims)
	for i, e := range embeddings {
		if len(e) != dims {
			return nil, fmt.Errorf("embedding %d: %w", i, ErrDimensionMismatch)
		}
		for j, v := range e {
			mean[j] += v
		}
	}

	n := float64(len(embeddings))
	for j := range mean {
		mean[j] /= n
	}
	return mean, nil
}
