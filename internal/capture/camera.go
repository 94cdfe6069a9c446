// Package capture reads frames from the kiosk camera, wakes the pipeline on
// motion and crops detected faces out of frames.
package capture

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

var (
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrEmptyFrame is returned when the device delivered no pixels.
	ErrEmptyFrame = errors.New("captured frame is empty")
	// ErrNoMoreFrames is returned by a finite playback camera once drained.
	ErrNoMoreFrames = errors.New("no more frames")
)

// Camera defines the interface for camera capture implementations.
type Camera interface {
	Open() error
	Close() error
	// ReadFrame returns the next frame. The caller closes the returned Mat.
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// Config selects the capture device and its mode.
type Config struct {
	DeviceID int
	FPS      int
	Width    int
	Height   int
}

// DefaultConfig returns a 640x480 capture at 30 fps from device 0. Blink
// detection needs the higher rate; the pipeline throttles while idle.
func DefaultConfig() Config {
	return Config{FPS: 30, Width: 640, Height: 480}
}

// Webcam captures frames from a local device using GoCV.
type Webcam struct {
	config  Config
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
}

// NewWebcam creates a camera for config.DeviceID. The device is not opened
// until Open is called.
func NewWebcam(config Config) *Webcam {
	defaults := DefaultConfig()
	if config.FPS <= 0 {
		config.FPS = defaults.FPS
	}
	if config.Width <= 0 || config.Height <= 0 {
		config.Width, config.Height = defaults.Width, defaults.Height
	}
	return &Webcam{config: config}
}

// Open opens the device and requests the configured resolution and rate.
func (c *Webcam) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(c.config.DeviceID)
	if err != nil {
		return fmt.Errorf("open camera %d: %w", c.config.DeviceID, err)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(c.config.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(c.config.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(c.config.FPS))

	c.capture = capture
	c.running = true
	return nil
}

// Close releases the device.
func (c *Webcam) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false
	return err
}

// ReadFrame reads a single frame from the camera.
func (c *Webcam) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok {
		mat.Close()
		return nil, fmt.Errorf("read camera %d: device returned no frame", c.config.DeviceID)
	}
	if mat.Empty() {
		mat.Close()
		return nil, ErrEmptyFrame
	}
	return &mat, nil
}

// SetFPS changes the requested rate. Values <= 0 are ignored.
func (c *Webcam) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.config.FPS = fps
	if c.capture != nil {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

// FPS returns the requested frames per second.
func (c *Webcam) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config.FPS
}

// IsOpen returns true if the camera is currently open.
func (c *Webcam) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
