package capture

import (
	"sync"

	"gocv.io/x/gocv"
)

// PlaybackCamera replays a fixed list of frames. It backs tests and the
// offline replay command.
type PlaybackCamera struct {
	frames  []*gocv.Mat
	index   int
	loop    bool
	fps     int
	mu      sync.Mutex
	running bool
}

// NewPlaybackCamera returns a camera yielding clones of frames in order.
// With loop set it starts over after the last frame, otherwise ReadFrame
// returns ErrNoMoreFrames.
func NewPlaybackCamera(frames []*gocv.Mat, loop bool) *PlaybackCamera {
	return &PlaybackCamera{frames: frames, loop: loop, fps: DefaultConfig().FPS}
}

// BlankFrames allocates n black BGR frames of the given size. The caller
// closes them.
func BlankFrames(n, width, height int) []*gocv.Mat {
	frames := make([]*gocv.Mat, n)
	for i := range frames {
		mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
		frames[i] = &mat
	}
	return frames
}

func (c *PlaybackCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = true
	c.index = 0
	return nil
}

func (c *PlaybackCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	return nil
}

func (c *PlaybackCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil, ErrCameraNotOpen
	}
	if len(c.frames) == 0 {
		return nil, ErrNoMoreFrames
	}
	if c.index >= len(c.frames) {
		if !c.loop {
			return nil, ErrNoMoreFrames
		}
		c.index = 0
	}

	frame := c.frames[c.index].Clone()
	c.index++
	return &frame, nil
}

func (c *PlaybackCamera) SetFPS(fps int) {
	if fps <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fps = fps
}

func (c *PlaybackCamera) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps
}

func (c *PlaybackCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Played returns how many frames have been read since Open.
func (c *PlaybackCamera) Played() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}
