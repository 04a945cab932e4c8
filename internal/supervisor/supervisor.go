// Package supervisor is the single fault boundary of the server. Request
// handlers, their panics, and background goroutines all report unexpected
// failures here, and the supervisor applies the process-wide policy: log and
// keep serving (the default), or log and trigger shutdown (fail-fast).
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-dispatch/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrFailFast wraps the fault that made a fail-fast supervisor shut down.
var ErrFailFast = errors.New("fail-fast shutdown after unexpected fault")

// Supervisor applies the fault policy.
type Supervisor struct {
	logger   *zap.Logger
	failFast bool
	shutdown func()

	shutdownOnce sync.Once
	wg           sync.WaitGroup

	mu    sync.Mutex
	cause error
}

// New creates a supervisor. shutdown is invoked at most once, and only when
// failFast is set.
func New(logger *zap.Logger, failFast bool, shutdown func()) *Supervisor {
	if shutdown == nil {
		shutdown = func() {}
	}
	return &Supervisor{
		logger:   logger.Named("supervisor"),
		failFast: failFast,
		shutdown: shutdown,
	}
}

// Fault records an unexpected failure and applies the policy.
func (s *Supervisor) Fault(source string, err error) {
	s.logger.Error("Unexpected fault.",
		zap.String("source", source),
		zap.Error(err),
		zap.Bool("fail_fast", s.failFast),
	)
	if !s.failFast {
		return
	}
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		s.cause = fmt.Errorf("%w: %s: %w", ErrFailFast, source, err)
		s.mu.Unlock()
		s.logger.Warn("Fail-fast is enabled; initiating shutdown.", zap.String("source", source))
		s.shutdown()
	})
}

// Err returns the fault that triggered a fail-fast shutdown, wrapped in
// ErrFailFast, or nil if none has.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// -- Request Boundary --

type abortKey struct{}

// abortSlot lets a handler that has already started a response tell the
// middleware how to terminate it after a panic.
type abortSlot struct {
	mu sync.Mutex
	fn func(error)
}

// OnAbort registers fn as the way to terminate the current response if the
// handler panics after it started writing. The last registration wins.
func OnAbort(ctx context.Context, fn func(error)) {
	if slot, ok := ctx.Value(abortKey{}).(*abortSlot); ok {
		slot.mu.Lock()
		slot.fn = fn
		slot.mu.Unlock()
	}
}

func (a *abortSlot) hook() func(error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fn
}

// Middleware recovers handler panics. A response that has not started gets
// the generic 500 envelope; one that has started is handed to the registered
// abort hook, if any.
func (s *Supervisor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		slot := &abortSlot{}
		r = r.WithContext(context.WithValue(r.Context(), abortKey{}, slot))

		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			err := &schemas.InternalError{Err: fmt.Errorf("panic: %v", rec)}
			hook := slot.hook()
			s.logger.Error("Panic recovered in request handler.",
				zap.Any("panic", rec),
				zap.Bool("response_started", ww.Status() != 0),
				zap.Bool("abort_hook", hook != nil),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.Stack("stack"),
			)

			switch {
			case hook != nil:
				hook(err)
			case ww.Status() == 0:
				WriteJSON(w, http.StatusInternalServerError, schemas.NewStatusError(err), s.logger)
			}
			s.Fault("http "+r.Method+" "+r.URL.Path, err)
		}()

		next.ServeHTTP(ww, r)
	})
}

// Handle adapts an error-returning handler. A returned error is logged and
// answered with a 500 envelope carrying its caller-safe message, so internal
// details never reach the client.
func (s *Supervisor) Handle(fn func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		fields := []zap.Field{
			zap.String("path", r.URL.Path),
			zap.String("kind", string(schemas.KindOf(err))),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		}
		if schemas.KindOf(err) == schemas.KindInternal {
			s.logger.Error("Request failed with an internal error.", fields...)
		} else {
			s.logger.Warn("Request failed.", fields...)
		}
		WriteJSON(w, http.StatusInternalServerError, schemas.NewStatusError(err), s.logger)
	}
}

// -- Background Work --

// Go runs fn in a goroutine under supervision. A panic or an unexpected error
// (anything but context cancellation) is reported as a fault.
func (s *Supervisor) Go(ctx context.Context, name string, fn func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("Panic recovered in background task.",
					zap.String("task", name),
					zap.Any("panic", rec),
					zap.Stack("stack"),
				)
				s.Fault(name, fmt.Errorf("panic: %v", rec))
			}
		}()

		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.Fault(name, err)
		}
	}()
}

// Wait blocks until every goroutine started with Go has returned.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}
