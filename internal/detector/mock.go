package detector

import (
	"context"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/drishti/internal/identity"
	"github.com/ayusman/drishti/internal/liveness"
	"github.com/ayusman/drishti/internal/session"
)

// MockDetector is a test implementation of the Detector interface.
// It returns queued results in order, then the configured faces forever.
type MockDetector struct {
	mu    sync.Mutex
	faces []Face
	queue [][]Face
	err   error
	calls int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetFaces sets the faces returned once the queue is drained.
func (m *MockDetector) SetFaces(faces []Face) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faces = faces
}

// Queue appends per-call results consumed before the fallback faces.
func (m *MockDetector) Queue(results ...[]Face) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, results...)
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect was called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the next queued result, the configured faces or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]Face, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		return next, nil
	}
	return m.faces, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// MockExtractor is a session.Extractor returning a fixed embedding.
type MockExtractor struct {
	mu        sync.Mutex
	embedding identity.Embedding
	err       error
	calls     int
}

// NewMockExtractor creates a MockExtractor returning embedding.
func NewMockExtractor(embedding identity.Embedding) *MockExtractor {
	return &MockExtractor{embedding: embedding}
}

// SetEmbedding replaces the returned embedding.
func (m *MockExtractor) SetEmbedding(embedding identity.Embedding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedding = embedding
}

// SetError sets the error that will be returned by Extract.
func (m *MockExtractor) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Extract was called.
func (m *MockExtractor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Extract returns the configured embedding or error.
func (m *MockExtractor) Extract(ctx context.Context, region image.Image) (identity.Embedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if region == nil {
		return nil, session.ErrNoRegion
	}
	if len(m.embedding) == 0 {
		return nil, session.ErrNoEmbedding
	}
	return m.embedding.Clone(), nil
}

// OpenEyesFace returns a preset face centred at (cx, cy) in a 640x480 frame
// with both eyes open (EAR about 0.33).
func OpenEyesFace(cx, cy float64) Face {
	return presetFace(cx, cy, 10)
}

// ClosedEyesFace returns a preset face centred at (cx, cy) with both eyes
// closed (EAR about 0.07).
func ClosedEyesFace(cx, cy float64) Face {
	return presetFace(cx, cy, 2)
}

// presetFace builds a 160x160 face. Each eye is 30px wide; lidGap is the
// vertical distance between upper and lower lid points.
func presetFace(cx, cy, lidGap float64) Face {
	const size = 160
	eye := func(ex, ey float64) liveness.EyeLandmarks {
		h := lidGap / 2
		return liveness.EyeLandmarks{
			{X: ex - 15, Y: ey},
			{X: ex - 5, Y: ey - h},
			{X: ex + 5, Y: ey - h},
			{X: ex + 15, Y: ey},
			{X: ex + 5, Y: ey + h},
			{X: ex - 5, Y: ey + h},
		}
	}
	return Face{
		Box:   liveness.FaceBox{X: cx - size/2, Y: cy - size/2, Width: size, Height: size},
		Left:  eye(cx-25, cy-15),
		Right: eye(cx+25, cy-15),
		Score: 0.95,
	}
}
