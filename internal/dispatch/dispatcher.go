// Package dispatch runs a validated request against an open session.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-dispatch/api/schemas"
)

// Progress messages announced before the terminal event.
const (
	MsgNavigating = "Navigating to page"
	MsgExecuting  = "Executing command"
)

// Progress receives lifecycle announcements.
type Progress interface {
	Progress(message string)
}

// ProgressFunc adapts a function to Progress.
type ProgressFunc func(message string)

func (f ProgressFunc) Progress(message string) { f(message) }

// Observer is notified of each execution outcome. Metrics hang off it.
type Observer interface {
	ObserveExecution(mode schemas.Mode, err error, seconds float64)
}

// Dispatcher routes a request to exactly one of the action or extraction paths.
type Dispatcher struct {
	logger   *zap.Logger
	observer Observer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithObserver reports every execution outcome to o.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// New creates a dispatcher.
func New(logger *zap.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{logger: logger.Named("dispatcher")}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Execute navigates to req.StartURL, then performs the command according to
// req.Mode. Any failure is returned as *schemas.ExecutionError wrapping the cause.
func (d *Dispatcher) Execute(ctx context.Context, session schemas.AutomationSession, req schemas.Request, progress Progress) (result schemas.ExecutionResult, err error) {
	start := time.Now()
	log := d.logger.With(zap.String("session_id", session.ID()), zap.String("mode", string(req.Mode)))
	defer func() {
		if d.observer != nil {
			d.observer.ObserveExecution(req.Mode, err, time.Since(start).Seconds())
		}
	}()

	if !req.Mode.Valid() {
		return schemas.ExecutionResult{}, &schemas.ExecutionError{Step: "dispatch", Err: fmt.Errorf("unknown mode %q", req.Mode)}
	}

	progress.Progress(MsgNavigating)
	if err := session.Navigate(ctx, req.StartURL); err != nil {
		log.Warn("Navigation failed.", zap.String("url", req.StartURL), zap.Error(err))
		return schemas.ExecutionResult{}, &schemas.ExecutionError{Step: "navigate", Err: err}
	}

	progress.Progress(MsgExecuting)
	var output interface{}
	switch req.Mode {
	case schemas.ModeActions:
		res, actErr := session.Act(ctx, schemas.ActOptions{Action: req.Command, ModelName: req.ModelName})
		if actErr != nil {
			log.Warn("Action failed.", zap.Error(actErr))
			return schemas.ExecutionResult{}, &schemas.ExecutionError{Step: "act", Err: actErr}
		}
		output = res
	case schemas.ModeOutput:
		value, extractErr := session.Extract(ctx, schemas.ExtractOptions{
			Instruction:    req.Command,
			Schema:         req.SchemaHint(),
			ModelName:      req.ModelName,
			UseTextExtract: true,
		})
		if extractErr != nil {
			log.Warn("Extraction failed.", zap.Error(extractErr))
			return schemas.ExecutionResult{}, &schemas.ExecutionError{Step: "extract", Err: extractErr}
		}
		output = value
	}

	log.Info("Command executed.")
	return schemas.NewAnswer(output), nil
}
