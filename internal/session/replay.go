package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/ayusman/drishti/internal/liveness"
)

// ReplaySource plays back recorded samples, optionally with a fixed face
// region for extraction. It is used to calibrate thresholds offline.
type ReplaySource struct {
	samples []liveness.FrameSample
	region  image.Image
	next    int
}

// NewReplaySource creates a source over samples. region may be nil.
func NewReplaySource(samples []liveness.FrameSample, region image.Image) *ReplaySource {
	return &ReplaySource{samples: samples, region: region}
}

// Next returns the next recorded sample or ErrSourceClosed when exhausted.
func (s *ReplaySource) Next(ctx context.Context) (liveness.FrameSample, error) {
	if err := ctx.Err(); err != nil {
		return liveness.FrameSample{}, err
	}
	if s.next >= len(s.samples) {
		return liveness.FrameSample{}, ErrSourceClosed
	}
	sample := s.samples[s.next]
	s.next++
	return sample, nil
}

// FaceRegion returns the configured region.
func (s *ReplaySource) FaceRegion() (image.Image, error) {
	if s.region == nil {
		return nil, ErrNoRegion
	}
	return s.region, nil
}

// Remaining returns the number of samples not yet delivered.
func (s *ReplaySource) Remaining() int {
	return len(s.samples) - s.next
}

// DecodeSamples reads newline-delimited JSON samples.
func DecodeSamples(r io.Reader) ([]liveness.FrameSample, error) {
	dec := json.NewDecoder(r)

	var samples []liveness.FrameSample
	for {
		var s liveness.FrameSample
		err := dec.Decode(&s)
		if errors.Is(err, io.EOF) {
			return samples, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode sample %d: %w", len(samples), err)
		}
		samples = append(samples, s)
	}
}

// EncodeSamples writes samples as newline-delimited JSON.
func EncodeSamples(w io.Writer, samples []liveness.FrameSample) error {
	enc := json.NewEncoder(w)
	for i, s := range samples {
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("encode sample %d: %w", i, err)
		}
	}
	return nil
}
