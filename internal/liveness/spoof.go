package liveness

// SpoofVerdict is the per-frame output of SpoofHeuristic.
type SpoofVerdict struct {
	IsSpoofed         bool    `json:"is_spoofed"`
	Confidence        float64 `json:"confidence"`
	SizeConsistency   bool    `json:"size_consistency"`
	PositionStability float64 `json:"position_stability"`
}

// SpoofHeuristic scores a single detection for presentation attacks using
// the face-to-frame size ratio and frame-to-frame jitter. It keeps no state;
// callers carry the face center forward themselves.
type SpoofHeuristic struct {
	params Params
}

// NewSpoofHeuristic creates a SpoofHeuristic using the given thresholds.
func NewSpoofHeuristic(params Params) SpoofHeuristic {
	return SpoofHeuristic{params: params}
}

// Score rates how likely the box is a spoof.
//
// A real face at a usable distance fills between MinFaceRatio and
// MaxFaceRatio of the frame (exclusive). Between frames a live head drifts by
// a few pixels; a perfectly still face or a jumping one both lower the
// stability. previousCenter is nil on the first frame of a session.
func (h SpoofHeuristic) Score(box FaceBox, frameWidth, frameHeight int, previousCenter *Point) SpoofVerdict {
	p := h.params

	var faceRatio float64
	if frameWidth > 0 && frameHeight > 0 {
		faceRatio = box.Area() / (float64(frameWidth) * float64(frameHeight))
	}
	sizeConsistency := faceRatio > p.MinFaceRatio && faceRatio < p.MaxFaceRatio

	stability := 1.0
	if previousCenter != nil {
		movement := box.Center().Dist(*previousCenter)
		if movement > p.MinJitterPx && movement < p.MaxJitterPx {
			stability = p.JitterStability
		} else {
			stability = p.UnstableStability
		}
	}

	base := p.InconsistentSpoofBase
	if sizeConsistency {
		base = p.ConsistentSpoofBase
	}

	score := base * (1 - stability*p.StabilityWeight)

	return SpoofVerdict{
		IsSpoofed:         score > p.SpoofCutoff,
		Confidence:        score,
		SizeConsistency:   sizeConsistency,
		PositionStability: stability,
	}
}
