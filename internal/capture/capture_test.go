package capture

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/drishti/internal/liveness"
)

func TestNewWebcam(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   Config
	}{
		{name: "defaults fill zero values", config: Config{DeviceID: 1}, want: Config{DeviceID: 1, FPS: 30, Width: 640, Height: 480}},
		{name: "explicit mode", config: Config{FPS: 15, Width: 1280, Height: 720}, want: Config{FPS: 15, Width: 1280, Height: 720}},
		{name: "partial size resets both", config: Config{FPS: 10, Width: 800}, want: Config{FPS: 10, Width: 640, Height: 480}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := NewWebcam(tt.config)
			assert.Equal(t, tt.want, cam.config)
			assert.False(t, cam.IsOpen())
		})
	}
}

func TestWebcam_SetFPS(t *testing.T) {
	cam := NewWebcam(DefaultConfig())

	cam.SetFPS(10)
	assert.Equal(t, 10, cam.FPS())

	cam.SetFPS(0)
	cam.SetFPS(-5)
	assert.Equal(t, 10, cam.FPS(), "non-positive fps should be ignored")
}

func TestWebcam_NotOpened(t *testing.T) {
	cam := NewWebcam(DefaultConfig())

	_, err := cam.ReadFrame()
	assert.ErrorIs(t, err, ErrCameraNotOpen)
	assert.NoError(t, cam.Close())
}

func TestWebcam_OpenClose_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cam := NewWebcam(DefaultConfig())
	if err := cam.Open(); err != nil {
		t.Skipf("skipping test - camera not available: %v", err)
	}
	require.True(t, cam.IsOpen())

	mat, err := cam.ReadFrame()
	if assert.NoError(t, err) {
		assert.False(t, mat.Empty())
		mat.Close()
	}

	require.NoError(t, cam.Close())
	assert.False(t, cam.IsOpen())
}

func TestPlaybackCamera(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frames := BlankFrames(2, 640, 480)
	defer func() {
		for _, f := range frames {
			f.Close()
		}
	}()

	t.Run("finite", func(t *testing.T) {
		cam := NewPlaybackCamera(frames, false)
		_, err := cam.ReadFrame()
		assert.ErrorIs(t, err, ErrCameraNotOpen)

		require.NoError(t, cam.Open())
		defer cam.Close()

		for i := 0; i < 2; i++ {
			f, err := cam.ReadFrame()
			require.NoError(t, err)
			assert.Equal(t, 640, f.Cols())
			f.Close()
		}
		_, err = cam.ReadFrame()
		assert.ErrorIs(t, err, ErrNoMoreFrames)
		assert.Equal(t, 2, cam.Played())
	})

	t.Run("loop", func(t *testing.T) {
		cam := NewPlaybackCamera(frames, true)
		require.NoError(t, cam.Open())
		defer cam.Close()

		for i := 0; i < 5; i++ {
			f, err := cam.ReadFrame()
			require.NoError(t, err, "iteration %d", i)
			f.Close()
		}
	})
}

func TestCropRect(t *testing.T) {
	tests := []struct {
		name   string
		box    liveness.FaceBox
		margin float64
		want   image.Rectangle
	}{
		{
			name: "no margin",
			box:  liveness.FaceBox{X: 100, Y: 50, Width: 200, Height: 100},
			want: image.Rect(100, 50, 300, 150),
		},
		{
			name:   "margin grows every side",
			box:    liveness.FaceBox{X: 100, Y: 100, Width: 100, Height: 100},
			margin: 0.2,
			want:   image.Rect(80, 80, 220, 220),
		},
		{
			name:   "clipped to frame",
			box:    liveness.FaceBox{X: -10, Y: 400, Width: 100, Height: 100},
			margin: 0.1,
			want:   image.Rect(0, 390, 100, 480),
		},
		{
			name: "outside frame",
			box:  liveness.FaceBox{X: 700, Y: 10, Width: 50, Height: 50},
			want: image.Rectangle{},
		},
		{
			name: "invalid box",
			box:  liveness.FaceBox{X: 10, Y: 10},
			want: image.Rectangle{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CropRect(tt.box, tt.margin, 640, 480)
			assert.True(t, got.Eq(tt.want), "got %v, want %v", got, tt.want)
		})
	}
}

func TestCropFace(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frames := BlankFrames(1, 640, 480)
	defer frames[0].Close()

	img, err := CropFace(frames[0], liveness.FaceBox{X: 100, Y: 100, Width: 100, Height: 100}, DefaultCropMargin)
	require.NoError(t, err)
	assert.Equal(t, 140, img.Bounds().Dx())
	assert.Equal(t, 140, img.Bounds().Dy())

	crop, ok := img.(*Crop)
	require.True(t, ok)
	require.Greater(t, len(crop.JPEG()), 2)
	assert.Equal(t, []byte{0xff, 0xd8}, crop.JPEG()[:2])

	_, err = CropFace(nil, liveness.FaceBox{Width: 1, Height: 1}, 0)
	assert.ErrorIs(t, err, ErrEmptyFrame)
}
