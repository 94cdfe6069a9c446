package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/drishti/internal/capture"
	"github.com/ayusman/drishti/internal/logging"
	"github.com/ayusman/drishti/internal/session"
)

// Run opens the camera and drives the kiosk until ctx is cancelled or a
// finite camera runs out of frames.
//
// Pipeline:
//  1. Poll at IdleFPS and difference frames for motion.
//  2. On motion, switch the camera to its active rate and run one session.
//  3. Record the result, notify hooks and publish it.
//  4. Wait out the cooldown, drop the motion baseline and go back to idle.
func (a *App) Run(ctx context.Context) error {
	if err := a.camera.Open(); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	defer a.shutdown()

	activeFPS := a.camera.FPS()
	a.camera.SetFPS(a.config.IdleFPS)

	log := logging.L()
	log.Info("kiosk pipeline started", zap.Int("idle_fps", a.config.IdleFPS), zap.Int("active_fps", activeFPS))

	ticker := time.NewTicker(time.Second / time.Duration(a.config.IdleFPS))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("kiosk pipeline stopped")
			return nil
		case <-ticker.C:
		}

		if !a.IsEnabled() {
			continue
		}

		frame, err := a.camera.ReadFrame()
		if err != nil {
			if errors.Is(err, capture.ErrNoMoreFrames) {
				log.Info("camera exhausted")
				return nil
			}
			log.Warn("read frame", zap.Error(err))
			continue
		}

		a.publishFrame(frame)
		motion := a.motion.Detect(frame)
		frame.Close()

		if !motion.Detected {
			continue
		}
		log.Debug("motion detected", zap.Float64("change_percent", motion.ChangePercent))

		a.camera.SetFPS(activeFPS)
		_, err = a.RunSession(ctx)
		a.camera.SetFPS(a.config.IdleFPS)
		if err != nil {
			log.Error("session failed", zap.Error(err))
		}

		if !sleepCtx(ctx, a.config.Cooldown) {
			return nil
		}
		a.motion.Reset()
	}
}

// RunSession runs one verification attempt against the camera, records it
// and publishes the result. The gallery snapshot is taken here, so
// enrollments during the session apply to the next one.
func (a *App) RunSession(ctx context.Context) (session.Result, error) {
	src := NewCameraSource(a.camera, a.detector, a.publishFrame)
	snapshot := a.Gallery().Snapshot()

	a.publishState()
	result, err := a.orchestrator.Run(ctx, src, snapshot)
	a.publishState()
	if err != nil {
		return session.Result{}, err
	}

	a.record(ctx, result)

	a.mu.Lock()
	a.last = &result
	a.mu.Unlock()

	a.bus.Publish(Event{Type: EventResult, Result: &result})
	return result, nil
}

// record logs attendance synchronously and runs hooks in the background.
func (a *App) record(ctx context.Context, result session.Result) {
	log := logging.L()

	if a.config.Store != nil {
		if err := a.config.Store.Attendance().Record(ctx, result); err != nil {
			log.Error("record attendance", zap.String("session", result.ID), zap.Error(err))
		}
	}

	if a.dispatcher == nil {
		return
	}
	a.hookWG.Add(1)
	go func() {
		defer a.hookWG.Done()
		// Hooks are bounded by the executor timeout rather than ctx.
		hookCtx := context.WithoutCancel(ctx)
		if err := a.dispatcher.Record(hookCtx, result); err != nil {
			log.Warn("hooks reported failure", zap.String("session", result.ID), zap.Error(err))
		}
	}()
}

// WaitHooks blocks until background hook runs finish.
func (a *App) WaitHooks() {
	a.hookWG.Wait()
}

func (a *App) shutdown() {
	log := logging.L()

	a.WaitHooks()
	if err := a.camera.Close(); err != nil {
		log.Warn("close camera", zap.Error(err))
	}
	a.motion.Close()
	if err := a.detector.Close(); err != nil {
		log.Warn("close detector", zap.Error(err))
	}
	if c, ok := a.config.Extractor.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			log.Warn("close extractor", zap.Error(err))
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
