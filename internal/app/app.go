// Package app wires the kiosk together: it watches the camera for motion,
// runs a verification session when someone steps up, records attendance,
// notifies hooks and publishes events for the dashboard.
package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/drishti/internal/capture"
	"github.com/ayusman/drishti/internal/detector"
	"github.com/ayusman/drishti/internal/hook"
	"github.com/ayusman/drishti/internal/identity"
	"github.com/ayusman/drishti/internal/logging"
	"github.com/ayusman/drishti/internal/session"
	"github.com/ayusman/drishti/internal/store"
)

var (
	// ErrNoExtractor is returned by EnrollImage when no extractor is configured.
	ErrNoExtractor = errors.New("no embedding extractor configured")
	// ErrNoStore is returned by operations that need persistence.
	ErrNoStore = errors.New("no store configured")
)

// Config holds the application's collaborators and tuning.
type Config struct {
	// Store is optional; without it the gallery lives only in memory and
	// attendance is not logged.
	Store    *store.Store
	Camera   capture.Camera
	Detector detector.Detector
	// Extractor is optional; without it live sessions end with "no embedding".
	Extractor session.Extractor
	Session   session.Config

	MotionThreshold float64
	// IdleFPS is the polling rate while waiting for motion.
	IdleFPS int
	// Cooldown is the pause after a session before motion is watched again.
	Cooldown time.Duration

	HookDir       string
	HookTimeoutMs int
}

// App runs the kiosk pipeline.
type App struct {
	config       Config
	camera       capture.Camera
	motion       *capture.MotionDetector
	detector     detector.Detector
	orchestrator *session.Orchestrator
	hooks        *hook.Manager
	dispatcher   *hook.Dispatcher
	bus          *Bus

	mu      sync.RWMutex
	gallery *identity.Gallery
	enabled bool
	last    *session.Result

	frameMu  sync.RWMutex
	frame    []byte
	frameSeq uint64

	hookWG sync.WaitGroup
}

// New creates an App and loads the gallery from the store.
func New(config Config) (*App, error) {
	if config.Camera == nil {
		return nil, errors.New("app: camera is required")
	}
	if config.Detector == nil {
		return nil, errors.New("app: detector is required")
	}
	if config.MotionThreshold <= 0 {
		config.MotionThreshold = 1.0
	}
	if config.IdleFPS <= 0 {
		config.IdleFPS = 5
	}
	if config.HookTimeoutMs <= 0 {
		config.HookTimeoutMs = 5000
	}

	a := &App{
		config:       config,
		camera:       config.Camera,
		motion:       capture.NewMotionDetector(config.MotionThreshold),
		detector:     config.Detector,
		orchestrator: session.New(config.Session, config.Extractor),
		bus:          NewBus(),
		enabled:      true,
	}

	a.orchestrator.OnFrame(func(p session.Progress) {
		a.bus.Publish(Event{Type: EventProgress, Progress: &p})
	})

	if config.HookDir != "" {
		a.hooks = hook.NewManager(config.HookDir)
		if err := a.hooks.Discover(); err != nil {
			logging.L().Warn("hook discovery failed", zap.String("dir", config.HookDir), zap.Error(err))
		}
		a.dispatcher = hook.NewDispatcher(a.hooks, hook.NewExecutor(config.HookTimeoutMs))
	}

	if config.Store != nil {
		a.enabled = config.Store.Settings().Bool(store.SettingEnabled, true)
	}

	if err := a.Reload(); err != nil {
		return nil, err
	}
	return a, nil
}

// Reload rebuilds the in-memory gallery from the store.
func (a *App) Reload() error {
	var entries []identity.Entry
	if a.config.Store != nil {
		var err error
		entries, err = a.config.Store.LoadGallery()
		if err != nil {
			return fmt.Errorf("load gallery: %w", err)
		}
	}

	gallery, err := identity.NewGallery(entries)
	if err != nil {
		return fmt.Errorf("build gallery: %w", err)
	}

	a.mu.Lock()
	a.gallery = gallery
	a.mu.Unlock()

	logging.L().Info("gallery loaded", zap.Int("students", gallery.Len()))
	return nil
}

// Gallery returns the live gallery.
func (a *App) Gallery() *identity.Gallery {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.gallery
}

// Enroll stores emb for label and adds it to the live gallery. Sessions that
// already started keep matching against their own snapshot.
func (a *App) Enroll(label string, emb identity.Embedding) (*store.Student, error) {
	label, err := identity.NormalizeLabel(label)
	if err != nil {
		return nil, err
	}

	gallery := a.Gallery()
	if gallery.Dims() > 0 && len(emb) != gallery.Dims() {
		return nil, fmt.Errorf("%w: got %d, want %d", identity.ErrDimensionMismatch, len(emb), gallery.Dims())
	}

	st := &store.Student{Name: label}
	if a.config.Store != nil {
		st, err = a.config.Store.Enroll(label, emb)
		if err != nil {
			return nil, err
		}
	}

	if err := gallery.Enroll(st.Name, emb); err != nil {
		return nil, err
	}

	logging.L().Info("student enrolled", zap.String("name", st.Name), zap.Int("embeddings", st.Embeddings))
	return st, nil
}

// EnrollImage extracts an embedding from img and enrolls it under label.
func (a *App) EnrollImage(ctx context.Context, label string, img image.Image) (*store.Student, error) {
	if a.config.Extractor == nil {
		return nil, ErrNoExtractor
	}
	emb, err := a.config.Extractor.Extract(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("extract embedding: %w", err)
	}
	return a.Enroll(label, emb)
}

// RemoveStudent deletes a student from the store and the live gallery.
func (a *App) RemoveStudent(id string) error {
	if a.config.Store == nil {
		return ErrNoStore
	}
	st, err := a.config.Store.Students().GetByID(id)
	if err != nil {
		return err
	}
	if err := a.config.Store.Students().Delete(id); err != nil {
		return err
	}
	a.Gallery().Remove(st.Name)
	return nil
}

// Store returns the configured store, which may be nil.
func (a *App) Store() *store.Store {
	return a.config.Store
}

// Hooks returns the hook manager, or nil when hooks are disabled.
func (a *App) Hooks() *hook.Manager {
	return a.hooks
}

// SetEnabled pauses or resumes the kiosk and persists the choice.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	a.enabled = enabled
	a.mu.Unlock()

	if a.config.Store != nil {
		if err := a.config.Store.Settings().SetBool(store.SettingEnabled, enabled); err != nil {
			logging.L().Warn("persist enabled setting", zap.Error(err))
		}
	}
	a.publishState()
}

// IsEnabled reports whether the kiosk watches for people.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// State returns the current kiosk state.
func (a *App) State() State {
	return State{Enabled: a.IsEnabled(), Active: a.orchestrator.Active()}
}

// LastResult returns the most recent session result, if any.
func (a *App) LastResult() (session.Result, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.last == nil {
		return session.Result{}, false
	}
	return *a.last, true
}

// Subscribe registers fn for every published event.
func (a *App) Subscribe(fn func(Event)) (unsubscribe func()) {
	return a.bus.Subscribe(fn)
}

// LatestFrame returns the last camera frame as JPEG and a counter that
// increases with every new frame.
func (a *App) LatestFrame() ([]byte, uint64) {
	a.frameMu.RLock()
	defer a.frameMu.RUnlock()
	return a.frame, a.frameSeq
}

func (a *App) publishFrame(frame *gocv.Mat) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return
	}
	data := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	a.frameMu.Lock()
	a.frame = data
	a.frameSeq++
	a.frameMu.Unlock()
}

func (a *App) publishState() {
	state := a.State()
	a.bus.Publish(Event{Type: EventState, State: &state})
}
