package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/drishti/internal/capture"
	"github.com/ayusman/drishti/internal/detector"
	"github.com/ayusman/drishti/internal/identity"
	"github.com/ayusman/drishti/internal/liveness"
	"github.com/ayusman/drishti/internal/session"
	"github.com/ayusman/drishti/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// liveFaces queues a person who blinks at frames 5 and 10 and moves their
// head at frame 12.
func liveFaces(d *detector.MockDetector) {
	for seq := 1; seq <= 12; seq++ {
		cx := 320.0
		if seq >= 12 {
			cx = 335
		}
		face := detector.OpenEyesFace(cx, 240)
		if seq == 5 || seq == 10 {
			face = detector.ClosedEyesFace(cx, 240)
		}
		d.Queue([]detector.Face{face})
	}
}

func testSessionConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.Liveness.MaxFrames = 40
	cfg.Liveness.StopWhenSatisfied = true
	return cfg
}

type fixture struct {
	app      *App
	store    *store.Store
	detector *detector.MockDetector
	extract  *detector.MockExtractor
	frames   []*gocv.Mat
}

func newFixture(t *testing.T, frames []*gocv.Mat, loop bool, hookDir string) *fixture {
	t.Helper()

	s := newTestStore(t)
	d := detector.NewMockDetector()
	ext := detector.NewMockExtractor(identity.Embedding{1, 0, 0})
	cam := capture.NewPlaybackCamera(frames, loop)

	a, err := New(Config{
		Store:     s,
		Camera:    cam,
		Detector:  d,
		Extractor: ext,
		Session:   testSessionConfig(),
		IdleFPS:   50,
		HookDir:   hookDir,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		for _, f := range frames {
			f.Close()
		}
	})
	return &fixture{app: a, store: s, detector: d, extract: ext, frames: frames}
}

func TestBus(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	var got []EventType
	unsubscribe := bus.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		assert.False(t, e.Time.IsZero())
		got = append(got, e.Type)
	})

	bus.Publish(Event{Type: EventState})
	bus.Publish(Event{Type: EventResult})
	unsubscribe()
	bus.Publish(Event{Type: EventProgress})

	assert.Equal(t, []EventType{EventState, EventResult}, got)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{Detector: detector.NewMockDetector()})
	assert.Error(t, err)

	_, err = New(Config{Camera: capture.NewPlaybackCamera(nil, false)})
	assert.Error(t, err)
}

func TestApp_Enroll(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Enroll("alice", identity.Embedding{1, 0, 0})
	require.NoError(t, err)

	a, err := New(Config{
		Store:    s,
		Camera:   capture.NewPlaybackCamera(nil, false),
		Detector: detector.NewMockDetector(),
	})
	require.NoError(t, err)
	require.Equal(t, 1, a.Gallery().Len(), "gallery is loaded from the store")

	before := a.Gallery().Snapshot()

	st, err := a.Enroll("bob", identity.Embedding{0, 1, 0})
	require.NoError(t, err)
	assert.Equal(t, "bob", st.Name)
	assert.Equal(t, 2, a.Gallery().Len())
	assert.Equal(t, 1, before.Len(), "existing snapshots are not affected")

	_, err = a.Enroll("carol", identity.Embedding{1, 2})
	assert.ErrorIs(t, err, identity.ErrDimensionMismatch)
	_, err = s.Students().GetByName("carol")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = a.Enroll(" Unknown ", identity.Embedding{0, 0, 1})
	assert.ErrorIs(t, err, identity.ErrReservedLabel)
	assert.Equal(t, 2, a.Gallery().Len())

	_, err = a.EnrollImage(context.Background(), "dave", nil)
	assert.ErrorIs(t, err, ErrNoExtractor)

	require.NoError(t, a.RemoveStudent(st.ID))
	assert.Equal(t, 1, a.Gallery().Len())
	assert.ErrorIs(t, a.RemoveStudent(st.ID), store.ErrNotFound)

	require.NoError(t, a.Reload())
	assert.Equal(t, 1, a.Gallery().Len())
}

func TestApp_SetEnabledPersists(t *testing.T) {
	s := newTestStore(t)
	cfg := Config{Store: s, Camera: capture.NewPlaybackCamera(nil, false), Detector: detector.NewMockDetector()}

	a, err := New(cfg)
	require.NoError(t, err)
	assert.True(t, a.IsEnabled())

	var states []State
	a.Subscribe(func(e Event) {
		if e.Type == EventState {
			states = append(states, *e.State)
		}
	})
	a.SetEnabled(false)
	require.Len(t, states, 1)
	assert.False(t, states[0].Enabled)

	again, err := New(cfg)
	require.NoError(t, err)
	assert.False(t, again.IsEnabled())
}

func TestApp_RunSession(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	t.Run("recognized", func(t *testing.T) {
		f := newFixture(t, capture.BlankFrames(1, 640, 480), true, "")
		_, err := f.store.Enroll("alice", identity.Embedding{1, 0, 0})
		require.NoError(t, err)
		require.NoError(t, f.app.Reload())
		require.NoError(t, f.app.camera.Open())
		liveFaces(f.detector)

		var results []session.Result
		var progress int
		f.app.Subscribe(func(e Event) {
			switch e.Type {
			case EventResult:
				results = append(results, *e.Result)
			case EventProgress:
				progress++
			}
		})

		res, err := f.app.RunSession(context.Background())
		require.NoError(t, err)

		assert.Equal(t, session.OutcomeRecognized, res.Outcome)
		assert.Equal(t, "alice", res.Label)
		assert.Equal(t, 2, res.Blinks)
		assert.True(t, res.HeadMovement)
		assert.Equal(t, 12, res.Frames)
		assert.Equal(t, 1, f.extract.Calls())

		require.Len(t, results, 1)
		assert.Equal(t, res.ID, results[0].ID)
		assert.Equal(t, 12, progress)

		last, ok := f.app.LastResult()
		require.True(t, ok)
		assert.Equal(t, res.ID, last.ID)

		jpeg, seq := f.app.LatestFrame()
		assert.NotEmpty(t, jpeg)
		assert.Equal(t, uint64(12), seq)

		records, err := f.store.Attendance().List(10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, session.OutcomeRecognized, records[0].Outcome)
		assert.NotEmpty(t, records[0].StudentID)
	})

	t.Run("unrecognized", func(t *testing.T) {
		f := newFixture(t, capture.BlankFrames(1, 640, 480), true, "")
		_, err := f.app.Enroll("bob", identity.Embedding{0, 1, 0})
		require.NoError(t, err)
		require.NoError(t, f.app.camera.Open())
		liveFaces(f.detector)

		res, err := f.app.RunSession(context.Background())
		require.NoError(t, err)
		assert.Equal(t, session.OutcomeUnrecognized, res.Outcome)
		assert.Empty(t, res.Label)
	})

	t.Run("camera closed", func(t *testing.T) {
		f := newFixture(t, capture.BlankFrames(1, 640, 480), true, "")

		res, err := f.app.RunSession(context.Background())
		require.NoError(t, err)
		assert.Equal(t, session.OutcomeLivenessFailed, res.Outcome)
		assert.Equal(t, session.ReasonSourceLost, res.Reason)
		assert.Zero(t, f.extract.Calls())
	})
}

func TestApp_RunSession_Hooks(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	hookDir := t.TempDir()
	greeter := filepath.Join(hookDir, "greeter")
	require.NoError(t, os.MkdirAll(greeter, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(greeter, "hook.json"),
		[]byte(`{"name":"greeter","executable":"run.sh","outcomes":["recognized"]}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(greeter, "run.sh"),
		[]byte("#!/bin/sh\ncat > greeted.json\necho '{\"success\":true}'\n"), 0755))

	f := newFixture(t, capture.BlankFrames(1, 640, 480), true, hookDir)
	_, err := f.app.Enroll("alice", identity.Embedding{1, 0, 0})
	require.NoError(t, err)
	require.NoError(t, f.app.camera.Open())
	liveFaces(f.detector)

	res, err := f.app.RunSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, session.OutcomeRecognized, res.Outcome)

	f.app.WaitHooks()
	data, err := os.ReadFile(filepath.Join(greeter, "greeted.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"label":"alice"`)
}

func TestApp_Run_MotionStartsSession(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frames := capture.BlankFrames(2, 640, 480)
	frames[1].SetTo(gocv.NewScalar(255, 255, 255, 0))

	f := newFixture(t, frames, false, "")

	done := make(chan session.Result, 1)
	f.app.Subscribe(func(e Event) {
		if e.Type == EventResult {
			done <- *e.Result
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, f.app.Run(ctx), "Run returns once the playback camera is exhausted")

	select {
	case res := <-done:
		// The white frame woke the kiosk; the camera ran dry during the session.
		assert.Equal(t, session.OutcomeLivenessFailed, res.Outcome)
		assert.Equal(t, session.ReasonSourceLost, res.Reason)
	default:
		t.Fatal("motion should have started a session")
	}
	assert.False(t, f.app.camera.IsOpen(), "Run closes the camera on exit")
}

func TestCameraSource(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frames := capture.BlankFrames(1, 640, 480)
	defer frames[0].Close()
	cam := capture.NewPlaybackCamera(frames, false)
	require.NoError(t, cam.Open())

	d := detector.NewMockDetector()
	big := detector.OpenEyesFace(320, 240)
	small := detector.Face{Box: liveness.FaceBox{X: 0, Y: 0, Width: 20, Height: 20}}
	d.Queue([]detector.Face{small, big})

	src := NewCameraSource(cam, d, nil)

	_, err := src.FaceRegion()
	assert.ErrorIs(t, err, session.ErrNoRegion)

	sample, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sample.SequenceIndex)
	assert.Equal(t, big.Box, sample.Box, "largest face wins")
	assert.Equal(t, 640, sample.FrameWidth)

	region, err := src.FaceRegion()
	require.NoError(t, err)
	assert.Equal(t, 224, region.Bounds().Dx())

	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, session.ErrSourceClosed)
}
