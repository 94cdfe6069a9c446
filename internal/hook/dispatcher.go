package hook

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/drishti/internal/logging"
	"github.com/ayusman/drishti/internal/session"
)

// Dispatcher runs every subscribed hook for a session result. It implements
// session.Recorder.
type Dispatcher struct {
	manager  *Manager
	executor *Executor
}

var _ session.Recorder = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher.
func NewDispatcher(manager *Manager, executor *Executor) *Dispatcher {
	return &Dispatcher{manager: manager, executor: executor}
}

// Record runs the hooks subscribed to result.Outcome concurrently and waits
// for them. It returns the first failure; every failure is logged.
func (d *Dispatcher) Record(ctx context.Context, result session.Result) error {
	hooks := d.manager.ForOutcome(result.Outcome)
	if len(hooks) == 0 {
		return nil
	}

	log := logging.L()
	var g errgroup.Group
	for _, h := range hooks {
		h := h
		g.Go(func() error {
			resp, err := d.executor.Execute(ctx, h, &Request{Event: EventSessionFinished, Result: result})
			if err == nil && !resp.Success {
				err = fmt.Errorf("hook %s: %s", h.Manifest.Name, resp.Error)
			}
			if err != nil {
				log.Warn("hook failed",
					zap.String("hook", h.Manifest.Name),
					zap.String("session", result.ID),
					zap.Error(err))
				return err
			}
			log.Debug("hook ran", zap.String("hook", h.Manifest.Name), zap.String("session", result.ID))
			return nil
		})
	}
	return g.Wait()
}
