package liveness

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Params holds the thresholds used by the tracker and the spoof heuristic.
// The defaults are empirical and have not been calibrated against a labelled
// data set; deployments should tune them per camera.
type Params struct {
	// EARThreshold is the average eye aspect ratio below which eyes count as closed.
	EARThreshold float64 `yaml:"ear_threshold" validate:"gt=0,lt=1"`
	// BlinkDebounce counts a closed-eye frame only when SequenceIndex is a multiple of it.
	BlinkDebounce int `yaml:"blink_debounce" validate:"gte=1"`
	// HeadMovementPx is the center shift between frames that counts as head movement.
	HeadMovementPx float64 `yaml:"head_movement_px" validate:"gt=0"`
	// MaxFrames ends the session once this many frames have been observed.
	MaxFrames int `yaml:"max_frames" validate:"gte=1"`
	// RequiredBlinks is the blink count needed for a successful verdict.
	RequiredBlinks int `yaml:"required_blinks" validate:"gte=1"`
	// StopWhenSatisfied completes the session as soon as both signals are present.
	StopWhenSatisfied bool `yaml:"stop_when_satisfied"`

	MinFaceRatio          float64 `yaml:"min_face_ratio" validate:"gte=0,ltfield=MaxFaceRatio"`
	MaxFaceRatio          float64 `yaml:"max_face_ratio" validate:"gt=0,lte=1"`
	MinJitterPx           float64 `yaml:"min_jitter_px" validate:"gte=0,ltfield=MaxJitterPx"`
	MaxJitterPx           float64 `yaml:"max_jitter_px" validate:"gt=0"`
	JitterStability       float64 `yaml:"jitter_stability" validate:"gte=0,lte=1"`
	UnstableStability     float64 `yaml:"unstable_stability" validate:"gte=0,lte=1"`
	ConsistentSpoofBase   float64 `yaml:"consistent_spoof_base" validate:"gte=0,lte=1"`
	InconsistentSpoofBase float64 `yaml:"inconsistent_spoof_base" validate:"gte=0,lte=1"`
	StabilityWeight       float64 `yaml:"stability_weight" validate:"gte=0,lte=1"`
	SpoofCutoff           float64 `yaml:"spoof_cutoff" validate:"gt=0,lt=1"`
}

// DefaultParams returns the stock thresholds: ~10s at 30 fps, two blinks.
func DefaultParams() Params {
	return Params{
		EARThreshold:          0.25,
		BlinkDebounce:         5,
		HeadMovementPx:        10,
		MaxFrames:             300,
		RequiredBlinks:        2,
		MinFaceRatio:          0.05,
		MaxFaceRatio:          0.4,
		MinJitterPx:           5,
		MaxJitterPx:           50,
		JitterStability:       0.8,
		UnstableStability:     0.3,
		ConsistentSpoofBase:   0.2,
		InconsistentSpoofBase: 0.6,
		StabilityWeight:       0.3,
		SpoofCutoff:           0.5,
	}
}

var validate = validator.New()

// Validate checks that every threshold is in range.
func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid liveness params: %w", err)
	}
	return nil
}
