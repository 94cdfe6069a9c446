// Package detector finds faces and eye landmarks in camera frames and turns
// face crops into embeddings, both through Python helper processes.
package detector

import (
	"time"

	"gocv.io/x/gocv"
)

// Detector defines the interface for face detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns detected faces.
	// Returns an empty slice if no faces are detected.
	Detect(frame *gocv.Mat) ([]Face, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config locates a helper script and controls its lifetime.
type Config struct {
	// Script is a file name looked up in the scripts directories, or a path.
	Script string

	// Python is the interpreter. Empty means a venv python if one is found,
	// otherwise python3.
	Python string

	// IdleTimeout stops the helper after this long without requests.
	IdleTimeout time.Duration

	// RequestTimeout bounds a single request. Zero means no bound beyond
	// the caller's context.
	RequestTimeout time.Duration
}

// DefaultConfig returns the landmark service configuration.
func DefaultConfig() Config {
	return Config{
		Script:         "face_landmarks_service.py",
		IdleTimeout:    30 * time.Second,
		RequestTimeout: 5 * time.Second,
	}
}
