package capture

import (
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

const (
	// GaussianBlurSize is the kernel size for Gaussian blur (21x21).
	GaussianBlurSize = 21
	// DiffThreshold is the per-pixel intensity change counted as motion.
	DiffThreshold = 25
)

// Motion is the result of comparing a frame with its predecessor.
type Motion struct {
	Detected bool
	// ChangePercent is the share of pixels that changed, 0-100.
	ChangePercent float64
}

// MotionDetector wakes the kiosk when someone steps in front of the camera.
// It differences consecutive blurred grayscale frames.
type MotionDetector struct {
	threshold   float64
	prevGray    gocv.Mat
	initialized bool
	lastMotion  time.Time
	now         func() time.Time
	mu          sync.Mutex
}

// NewMotionDetector creates a detector that fires when more than threshold
// percent of pixels change between frames.
func NewMotionDetector(threshold float64) *MotionDetector {
	return &MotionDetector{
		threshold: threshold,
		prevGray:  gocv.NewMat(),
		now:       time.Now,
	}
}

// Detect compares frame with the previous one. The first frame after
// construction or Reset only sets the baseline.
func (m *MotionDetector) Detect(frame *gocv.Mat) Motion {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return Motion{}
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: GaussianBlurSize, Y: GaussianBlurSize}, 0, 0, gocv.BorderDefault)

	if !m.initialized {
		blurred.CopyTo(&m.prevGray)
		m.initialized = true
		return Motion{}
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, m.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, DiffThreshold, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(thresh)) / float64(thresh.Rows()*thresh.Cols()) * 100.0
	blurred.CopyTo(&m.prevGray)

	motion := Motion{Detected: changed > m.threshold, ChangePercent: changed}
	if motion.Detected {
		m.lastMotion = m.now()
	}
	return motion
}

// QuietFor returns how long ago motion was last seen. It is zero if motion
// has never been seen.
func (m *MotionDetector) QuietFor() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastMotion.IsZero() {
		return 0
	}
	return m.now().Sub(m.lastMotion)
}

// Reset drops the baseline frame so the next frame starts a new comparison.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

// Close releases resources used by the motion detector.
func (m *MotionDetector) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

func (m *MotionDetector) release() {
	if !m.prevGray.Empty() {
		m.prevGray.Close()
		m.prevGray = gocv.NewMat()
	}
	m.initialized = false
}

// SetThreshold sets the change percentage that counts as motion.
// Values <= 0 are ignored.
func (m *MotionDetector) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threshold = threshold
}
