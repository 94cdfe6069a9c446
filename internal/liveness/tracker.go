package liveness

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionComplete is returned when a frame is observed after the session ended.
	ErrSessionComplete = errors.New("liveness session already complete")
	// ErrSessionActive is returned when a verdict is requested before the session ended.
	ErrSessionActive = errors.New("liveness session still collecting")
	// ErrOutOfOrder is returned when sequence indices do not strictly increase.
	ErrOutOfOrder = errors.New("frame sequence index out of order")
)

// State is the lifecycle state of a Tracker.
type State int

const (
	// StateCollecting accepts frames.
	StateCollecting State = iota
	// StateComplete is terminal; no more frames are accepted.
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateCollecting:
		return "collecting"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Observation describes what a single observed frame contributed.
type Observation struct {
	// BlinkDetected is true when this frame incremented the blink count.
	BlinkDetected bool `json:"blink_detected"`
	// EyesClosed is the raw closed-eye predicate before debouncing.
	EyesClosed bool `json:"eyes_closed"`
	// HeadMovement is true when this frame moved more than HeadMovementPx.
	HeadMovement bool `json:"head_movement"`
	// Skipped is true for frames without a usable detection.
	Skipped bool         `json:"skipped"`
	EAR     float64      `json:"ear"`
	Spoof   SpoofVerdict `json:"spoof"`
}

// Verdict is the final liveness result of a session.
type Verdict struct {
	Success         bool    `json:"success"`
	Blinks          int     `json:"blinks"`
	HeadMovement    bool    `json:"head_movement"`
	Frames          int     `json:"frames"`
	SpoofConfidence float64 `json:"spoof_confidence"`
	Spoofed         bool    `json:"spoofed"`
}

// Tracker accumulates one liveness session. A Tracker is single-use and must
// only be driven by one goroutine at a time.
type Tracker struct {
	params Params
	spoof  SpoofHeuristic
	state  State

	blinkCount   int
	headMovement bool
	lastCenter   *Point
	frameCount   int

	lastIndex int
	started   bool

	spoofSum    float64
	spoofFrames int
}

// NewTracker starts a session in the collecting state.
func NewTracker(params Params) *Tracker {
	return &Tracker{
		params: params,
		spoof:  NewSpoofHeuristic(params),
		state:  StateCollecting,
	}
}

// Observe folds one frame into the session.
//
// Frames without a face or with malformed landmarks are skipped but still
// count toward MaxFrames. Only the sequence index of a frame decides whether
// a closed-eye frame counts as a blink, so a held eye closure is counted
// once per BlinkDebounce frames rather than once per frame.
func (t *Tracker) Observe(sample FrameSample) (Observation, error) {
	if t.state == StateComplete {
		return Observation{}, ErrSessionComplete
	}
	if t.started && sample.SequenceIndex <= t.lastIndex {
		return Observation{}, fmt.Errorf("%w: %d after %d", ErrOutOfOrder, sample.SequenceIndex, t.lastIndex)
	}
	t.started = true
	t.lastIndex = sample.SequenceIndex
	t.frameCount++

	obs := t.fold(sample)

	if t.frameCount >= t.params.MaxFrames || (t.params.StopWhenSatisfied && t.Satisfied()) {
		t.state = StateComplete
	}

	return obs, nil
}

func (t *Tracker) fold(sample FrameSample) Observation {
	if !sample.HasFace() {
		return Observation{Skipped: true}
	}

	ear, err := averageEAR(sample.Left, sample.Right)
	if err != nil {
		return Observation{Skipped: true}
	}

	obs := Observation{
		EAR:   ear,
		Spoof: t.spoof.Score(sample.Box, sample.FrameWidth, sample.FrameHeight, t.lastCenter),
	}

	if ear < t.params.EARThreshold {
		obs.EyesClosed = true
		if sample.SequenceIndex%t.params.BlinkDebounce == 0 {
			t.blinkCount++
			obs.BlinkDetected = true
		}
	}

	center := sample.Box.Center()
	if t.lastCenter != nil && center.Dist(*t.lastCenter) > t.params.HeadMovementPx {
		t.headMovement = true
		obs.HeadMovement = true
	}
	t.lastCenter = &center

	t.spoofSum += obs.Spoof.Confidence
	t.spoofFrames++

	return obs
}

// Stop ends the session immediately with the counters it currently holds.
func (t *Tracker) Stop() {
	t.state = StateComplete
}

// State returns the lifecycle state.
func (t *Tracker) State() State {
	return t.state
}

// Complete reports whether the session has ended.
func (t *Tracker) Complete() bool {
	return t.state == StateComplete
}

// Satisfied reports whether both liveness signals have been seen so far.
func (t *Tracker) Satisfied() bool {
	return t.blinkCount >= t.params.RequiredBlinks && t.headMovement
}

// Blinks returns the number of counted blinks.
func (t *Tracker) Blinks() int {
	return t.blinkCount
}

// HeadMovement reports whether head movement has been seen.
func (t *Tracker) HeadMovement() bool {
	return t.headMovement
}

// Frames returns the number of observed frames, skipped ones included.
func (t *Tracker) Frames() int {
	return t.frameCount
}

// Verdict returns the final result. Both a blink count of at least
// RequiredBlinks and head movement are required: blinking alone is
// reproduced by a looped video and movement alone by a waved photo.
func (t *Tracker) Verdict() (Verdict, error) {
	if t.state != StateComplete {
		return Verdict{}, ErrSessionActive
	}

	var spoofConfidence float64
	if t.spoofFrames > 0 {
		spoofConfidence = t.spoofSum / float64(t.spoofFrames)
	}

	return Verdict{
		Success:         t.Satisfied(),
		Blinks:          t.blinkCount,
		HeadMovement:    t.headMovement,
		Frames:          t.frameCount,
		SpoofConfidence: spoofConfidence,
		Spoofed:         spoofConfidence > t.params.SpoofCutoff,
	}, nil
}
