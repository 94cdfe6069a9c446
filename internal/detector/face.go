package detector

import "github.com/ayusman/drishti/internal/liveness"

// Face is one detection: its bounding box and six landmarks per eye, all in
// frame pixel coordinates.
type Face struct {
	Box   liveness.FaceBox      `json:"box"`
	Left  liveness.EyeLandmarks `json:"left"`
	Right liveness.EyeLandmarks `json:"right"`
	Score float64               `json:"score"`
}

// Largest returns the face with the biggest box, or false if faces is empty.
func Largest(faces []Face) (Face, bool) {
	if len(faces) == 0 {
		return Face{}, false
	}
	best := faces[0]
	for _, f := range faces[1:] {
		if f.Box.Area() > best.Box.Area() {
			best = f
		}
	}
	return best, true
}

// Sample converts the face into a liveness frame sample.
func (f Face) Sample(frameWidth, frameHeight, seq int) liveness.FrameSample {
	return liveness.FrameSample{
		Box:           f.Box,
		Left:          f.Left,
		Right:         f.Right,
		FrameWidth:    frameWidth,
		FrameHeight:   frameHeight,
		SequenceIndex: seq,
	}
}
