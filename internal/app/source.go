package app

import (
	"context"
	"errors"
	"fmt"
	"image"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/drishti/internal/capture"
	"github.com/ayusman/drishti/internal/detector"
	"github.com/ayusman/drishti/internal/liveness"
	"github.com/ayusman/drishti/internal/logging"
	"github.com/ayusman/drishti/internal/session"
)

// CameraSource turns camera frames into liveness samples. It keeps the crop
// of the most recent detected face for embedding extraction.
type CameraSource struct {
	camera   capture.Camera
	detector detector.Detector
	onFrame  func(*gocv.Mat)
	seq      int
	region   image.Image
}

var _ session.FrameSource = (*CameraSource)(nil)

// NewCameraSource creates a source reading from camera. onFrame, if not
// nil, sees every frame before it is released.
func NewCameraSource(camera capture.Camera, d detector.Detector, onFrame func(*gocv.Mat)) *CameraSource {
	return &CameraSource{camera: camera, detector: d, onFrame: onFrame}
}

// Next reads and analyzes one frame. Frames where detection fails or finds
// no face yield a sample without a face. Camera loss returns
// session.ErrSourceClosed.
func (s *CameraSource) Next(ctx context.Context) (liveness.FrameSample, error) {
	if err := ctx.Err(); err != nil {
		return liveness.FrameSample{}, err
	}

	frame, err := s.camera.ReadFrame()
	if err != nil {
		if errors.Is(err, capture.ErrNoMoreFrames) || errors.Is(err, capture.ErrCameraNotOpen) {
			return liveness.FrameSample{}, fmt.Errorf("%w: %v", session.ErrSourceClosed, err)
		}
		return liveness.FrameSample{}, err
	}
	defer frame.Close()

	if s.onFrame != nil {
		s.onFrame(frame)
	}

	s.seq++
	sample := liveness.FrameSample{
		FrameWidth:    frame.Cols(),
		FrameHeight:   frame.Rows(),
		SequenceIndex: s.seq,
	}

	faces, err := s.detector.Detect(frame)
	if err != nil {
		logging.L().Debug("face detection failed", zap.Int("seq", s.seq), zap.Error(err))
		return sample, nil
	}

	face, ok := detector.Largest(faces)
	if !ok {
		return sample, nil
	}
	sample = face.Sample(sample.FrameWidth, sample.FrameHeight, s.seq)

	if region, err := capture.CropFace(frame, face.Box, capture.DefaultCropMargin); err == nil {
		s.region = region
	}
	return sample, nil
}

// FaceRegion returns the crop of the last detected face.
func (s *CameraSource) FaceRegion() (image.Image, error) {
	if s.region == nil {
		return nil, session.ErrNoRegion
	}
	return s.region, nil
}

// Frames returns how many frames were read.
func (s *CameraSource) Frames() int {
	return s.seq
}
