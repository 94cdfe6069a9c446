package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ayusman/drishti/internal/identity"
	"github.com/ayusman/drishti/internal/liveness"
	"github.com/ayusman/drishti/internal/logging"
)

// Config holds the orchestrator settings.
type Config struct {
	Liveness  liveness.Params
	Threshold float64
	// Timeout bounds the wall-clock time of the capture loop. Zero disables it;
	// MaxFrames still ends the session.
	Timeout time.Duration
}

// DefaultConfig returns the default liveness params and match threshold.
func DefaultConfig() Config {
	return Config{
		Liveness:  liveness.DefaultParams(),
		Threshold: identity.DefaultThreshold,
	}
}

// Orchestrator sequences capture, liveness, extraction and matching for one
// camera stream. It owns at most one active session at a time.
type Orchestrator struct {
	config    Config
	extractor Extractor
	onFrame   func(Progress)
	active    atomic.Bool
}

// New creates an Orchestrator.
func New(config Config, extractor Extractor) *Orchestrator {
	return &Orchestrator{
		config:    config,
		extractor: extractor,
	}
}

// OnFrame sets a callback invoked after every observed frame. It must be set
// before Run is called.
func (o *Orchestrator) OnFrame(fn func(Progress)) {
	o.onFrame = fn
}

// Active reports whether a session is running.
func (o *Orchestrator) Active() bool {
	return o.active.Load()
}

// Run performs one verification attempt and returns its outcome. Negative
// outcomes are results, not errors; an error means the orchestrator was
// misused or an internal invariant broke. Run does not retry.
//
// gallery must be a snapshot taken when the session starts so that
// enrollments during the session cannot change the comparison set.
func (o *Orchestrator) Run(ctx context.Context, src FrameSource, gallery identity.Snapshot) (Result, error) {
	if !o.active.CompareAndSwap(false, true) {
		return Result{}, ErrSessionActive
	}
	defer o.active.Store(false)

	log := logging.L()

	// Distance stays infinite unless a comparison happens.
	result := Result{
		ID:        uuid.NewString(),
		Distance:  math.Inf(1),
		StartedAt: time.Now(),
	}

	tracker := liveness.NewTracker(o.config.Liveness)
	reason, err := o.collect(ctx, src, tracker, result.ID)
	if err != nil {
		return Result{}, err
	}

	verdict, err := tracker.Verdict()
	if err != nil {
		return Result{}, fmt.Errorf("liveness verdict: %w", err)
	}

	result.Blinks = verdict.Blinks
	result.HeadMovement = verdict.HeadMovement
	result.SpoofConfidence = verdict.SpoofConfidence
	result.Frames = verdict.Frames

	finish := func(outcome Outcome, reason string) (Result, error) {
		result.Outcome = outcome
		result.Reason = reason
		result.FinishedAt = time.Now()
		log.Info("session finished",
			zap.String("session", result.ID),
			zap.String("outcome", string(outcome)),
			zap.String("reason", reason),
			zap.Int("blinks", result.Blinks),
			zap.Bool("head_movement", result.HeadMovement),
			zap.Float64("spoof_confidence", result.SpoofConfidence),
			zap.Int("frames", result.Frames),
		)
		return result, nil
	}

	switch {
	case verdict.Spoofed:
		return finish(OutcomeSpoofRejected, "")
	case !verdict.Success:
		if reason == "" {
			reason = ReasonInsufficient
		}
		return finish(OutcomeLivenessFailed, reason)
	case reason != "":
		// Signals seen before the source stopped do not count.
		return finish(OutcomeLivenessFailed, reason)
	}

	if o.extractor == nil {
		return finish(OutcomeLivenessFailed, ReasonNoEmbedding)
	}

	region, err := src.FaceRegion()
	if err != nil {
		log.Warn("no face region after live session", zap.String("session", result.ID), zap.Error(err))
		return finish(OutcomeLivenessFailed, ReasonNoRegion)
	}

	embedding, err := o.extractor.Extract(ctx, region)
	if err != nil {
		log.Warn("embedding extraction failed", zap.String("session", result.ID), zap.Error(err))
		return finish(OutcomeLivenessFailed, ReasonNoEmbedding)
	}

	match, err := gallery.Match(embedding, o.config.Threshold)
	if err != nil {
		return Result{}, fmt.Errorf("match embedding: %w", err)
	}

	result.Distance = match.Distance
	if !match.Known() {
		return finish(OutcomeUnrecognized, "")
	}
	result.Label = match.Label
	return finish(OutcomeRecognized, "")
}

// collect feeds frames into tracker until it completes. The returned reason
// is non-empty when the loop ended before MaxFrames.
func (o *Orchestrator) collect(ctx context.Context, src FrameSource, tracker *liveness.Tracker, sessionID string) (string, error) {
	if o.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.Timeout)
		defer cancel()
	}

	for !tracker.Complete() {
		if err := ctx.Err(); err != nil {
			tracker.Stop()
			return stopReason(err), nil
		}

		sample, err := src.Next(ctx)
		if err != nil {
			tracker.Stop()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stopReason(ctxErr), nil
			}
			if !errors.Is(err, ErrSourceClosed) && !errors.Is(err, io.EOF) {
				logging.L().Warn("frame source failed", zap.String("session", sessionID), zap.Error(err))
			}
			return ReasonSourceLost, nil
		}

		obs, err := tracker.Observe(sample)
		if err != nil {
			tracker.Stop()
			return "", fmt.Errorf("observe frame %d: %w", sample.SequenceIndex, err)
		}

		if o.onFrame != nil {
			o.onFrame(Progress{
				SessionID:    sessionID,
				Sequence:     sample.SequenceIndex,
				Frames:       tracker.Frames(),
				Blinks:       tracker.Blinks(),
				HeadMovement: tracker.HeadMovement(),
				Observation:  obs,
			})
		}
	}

	return "", nil
}

func stopReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	return ReasonCancelled
}
