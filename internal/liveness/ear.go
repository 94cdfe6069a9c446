package liveness

import (
	"errors"
	"fmt"
)

// ErrMalformedLandmarks is returned for eye landmark sets that cannot produce
// an aspect ratio: wrong point count or a degenerate eye width.
var ErrMalformedLandmarks = errors.New("malformed eye landmarks")

// EyeAspectRatio computes (|p1-p5| + |p2-p4|) / (2|p0-p3|) for one eye.
// Open eyes sit around 0.3, closed eyes approach 0.
func EyeAspectRatio(eye EyeLandmarks) (float64, error) {
	if len(eye) != EyeLandmarkCount {
		return 0, fmt.Errorf("%w: got %d points, want %d", ErrMalformedLandmarks, len(eye), EyeLandmarkCount)
	}

	width := eye[0].Dist(eye[3])
	if width < 1e-9 {
		return 0, fmt.Errorf("%w: zero eye width", ErrMalformedLandmarks)
	}

	vertical := eye[1].Dist(eye[5]) + eye[2].Dist(eye[4])
	return vertical / (2 * width), nil
}

// averageEAR returns the mean aspect ratio of both eyes.
func averageEAR(left, right EyeLandmarks) (float64, error) {
	l, err := EyeAspectRatio(left)
	if err != nil {
		return 0, fmt.Errorf("left eye: %w", err)
	}
	r, err := EyeAspectRatio(right)
	if err != nil {
		return 0, fmt.Errorf("right eye: %w", err)
	}
	return (l + r) / 2, nil
}
