package detector

import (
	"context"
	"encoding/json"
	"fmt"

	"gocv.io/x/gocv"

	"github.com/ayusman/drishti/internal/liveness"
)

// ServiceDetector implements Detector using the face landmark helper.
type ServiceDetector struct {
	svc *service
}

// NewServiceDetector creates a detector backed by config.Script.
// The Python process is started lazily on first detection.
func NewServiceDetector(config Config) (*ServiceDetector, error) {
	svc, err := newService(config)
	if err != nil {
		return nil, err
	}
	return &ServiceDetector{svc: svc}, nil
}

// Detect analyzes a frame and returns detected faces.
func (d *ServiceDetector) Detect(frame *gocv.Mat) ([]Face, error) {
	if frame == nil || frame.Empty() {
		return nil, nil
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	line, err := d.svc.roundTrip(context.Background(), buf.GetBytes())
	if err != nil {
		return nil, err
	}
	return parseFaces(line)
}

// Close shuts down the Python process.
func (d *ServiceDetector) Close() error {
	return d.svc.close()
}

// jsonFace is the wire form produced by the landmark helper.
type jsonFace struct {
	Box   liveness.FaceBox `json:"box"`
	Left  []liveness.Point `json:"left"`
	Right []liveness.Point `json:"right"`
	Score float64          `json:"score"`
}

func parseFaces(line []byte) ([]Face, error) {
	var response struct {
		Faces []jsonFace `json:"faces"`
		Error string     `json:"error"`
	}
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("landmark service: %s", response.Error)
	}

	faces := make([]Face, 0, len(response.Faces))
	for _, f := range response.Faces {
		faces = append(faces, Face{
			Box:   f.Box,
			Left:  liveness.EyeLandmarks(f.Left),
			Right: liveness.EyeLandmarks(f.Right),
			Score: f.Score,
		})
	}
	return faces, nil
}
