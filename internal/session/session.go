// Package session runs one face verification attempt: it drives a liveness
// session over a frame source and, when the person is live, extracts an
// embedding and matches it against a gallery snapshot.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"math"
	"time"

	"github.com/ayusman/drishti/internal/identity"
	"github.com/ayusman/drishti/internal/liveness"
)

var (
	// ErrSessionActive is returned by Run while another run is in progress.
	ErrSessionActive = errors.New("verification session already active")
	// ErrSourceClosed signals that the frame source will deliver no more frames.
	ErrSourceClosed = errors.New("frame source closed")
	// ErrNoRegion is returned by a FrameSource that holds no face region.
	ErrNoRegion = errors.New("no face region available")
	// ErrNoEmbedding is returned by an Extractor that could not produce an embedding.
	ErrNoEmbedding = errors.New("no embedding")
)

// FrameSource supplies samples in strictly increasing sequence order.
type FrameSource interface {
	// Next blocks until the next frame has been processed by the detector.
	// It returns ErrSourceClosed or io.EOF once the source is exhausted.
	Next(ctx context.Context) (liveness.FrameSample, error)

	// FaceRegion returns the face pixels of the most recent detection.
	FaceRegion() (image.Image, error)
}

// Extractor turns a face region into an embedding.
type Extractor interface {
	Extract(ctx context.Context, region image.Image) (identity.Embedding, error)
}

// Recorder consumes session results, e.g. to record attendance.
type Recorder interface {
	Record(ctx context.Context, result Result) error
}

// Outcome is the single outcome of a verification attempt.
type Outcome string

const (
	OutcomeSpoofRejected  Outcome = "spoof_rejected"
	OutcomeLivenessFailed Outcome = "liveness_failed"
	OutcomeRecognized     Outcome = "recognized"
	OutcomeUnrecognized   Outcome = "unrecognized"
)

// Outcomes lists every outcome.
var Outcomes = []Outcome{OutcomeSpoofRejected, OutcomeLivenessFailed, OutcomeRecognized, OutcomeUnrecognized}

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	for _, known := range Outcomes {
		if o == known {
			return true
		}
	}
	return false
}

// Reasons attached to liveness_failed results.
const (
	ReasonInsufficient = "insufficient liveness signals"
	ReasonCancelled    = "cancelled"
	ReasonTimeout      = "timeout"
	ReasonSourceLost   = "frame source lost"
	ReasonNoRegion     = "no face region"
	ReasonNoEmbedding  = "no embedding"
)

// Result is the outcome of one Run.
type Result struct {
	ID              string    `json:"id"`
	Outcome         Outcome   `json:"outcome"`
	Label           string    `json:"label,omitempty"`
	Distance        float64   `json:"distance"`
	Blinks          int       `json:"blinks"`
	HeadMovement    bool      `json:"head_movement"`
	SpoofConfidence float64   `json:"spoof_confidence"`
	Frames          int       `json:"frames"`
	Reason          string    `json:"reason,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}

// Progress is reported after every observed frame.
type Progress struct {
	SessionID    string               `json:"session_id"`
	Sequence     int                  `json:"sequence"`
	Frames       int                  `json:"frames"`
	Blinks       int                  `json:"blinks"`
	HeadMovement bool                 `json:"head_movement"`
	Observation  liveness.Observation `json:"observation"`
}

// MarshalJSON encodes an infinite distance (empty gallery) as null.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	out := struct {
		plain
		Distance *float64 `json:"distance"`
	}{plain: plain(r)}
	if !math.IsInf(r.Distance, 0) && !math.IsNaN(r.Distance) {
		d := r.Distance
		out.Distance = &d
	}
	return json.Marshal(out)
}
