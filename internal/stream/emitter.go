// Package stream writes the server-sent event stream of a /test request.
//
// Each event is one `data: <json>` line followed by a blank line. A stream
// carries any number of progress events and then exactly one terminal event,
// either an answer or an error. Nothing is written after the terminal event.
package stream

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-dispatch/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrStreamClosed is returned for writes attempted after the terminal event.
var ErrStreamClosed = errors.New("event stream already terminated")

// ErrNotFlushable is returned when the ResponseWriter cannot flush.
var ErrNotFlushable = errors.New("response writer does not support flushing")

// Emitter serializes events onto an http.ResponseWriter. It is safe for
// concurrent use; the first terminal event wins.
type Emitter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	logger  *zap.Logger

	mu         sync.Mutex
	terminated bool
	writeErr   error
}

// New sets the event-stream headers on w and returns an emitter for it.
// Headers are sent with the first event.
func New(w http.ResponseWriter, logger *zap.Logger) (*Emitter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrNotFlushable
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	return &Emitter{w: w, flusher: flusher, logger: logger.Named("stream")}, nil
}

// Progress announces a lifecycle step. It satisfies dispatch.Progress.
func (e *Emitter) Progress(message string) {
	if err := e.emit(schemas.ProgressEvent{Message: message}, false); err != nil && !errors.Is(err, ErrStreamClosed) {
		e.logger.Debug("Progress event not delivered.", zap.Error(err))
	}
}

// Answer writes the successful terminal event. If the result cannot be
// serialized, an error event takes its place.
func (e *Emitter) Answer(result schemas.ExecutionResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		e.logger.Error("Failed to serialize result.", zap.Error(err))
		return e.Fail(&schemas.InternalError{Err: fmt.Errorf("serialize result: %w", err)})
	}
	return e.write(data, true)
}

// Fail writes the failing terminal event with the caller-safe message for err.
func (e *Emitter) Fail(err error) error {
	return e.emit(schemas.NewErrorEvent(schemas.PublicMessage(err)), true)
}

// Terminated reports whether the terminal event has been written.
func (e *Emitter) Terminated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminated
}

func (e *Emitter) emit(v interface{}, terminal bool) error {
	data, err := json.Marshal(v)
	if err != nil {
		// Event types are plain structs of strings; this only fires on a programming error.
		e.logger.Error("Failed to serialize event.", zap.Error(err))
		data = []byte(`{"message":"Error","error":{"message":"` + schemas.GenericErrorMessage + `"}}`)
		terminal = true
	}
	return e.write(data, terminal)
}

func (e *Emitter) write(data []byte, terminal bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.terminated {
		e.logger.Warn("Dropped event written after the terminal event.", zap.ByteString("event", data))
		return ErrStreamClosed
	}
	if terminal {
		e.terminated = true
	}
	if e.writeErr != nil {
		return e.writeErr
	}

	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		// The client is gone. Later writes are pointless but still bookkept.
		e.writeErr = err
		e.logger.Debug("Event stream write failed.", zap.Error(err))
		return err
	}
	e.flusher.Flush()
	return nil
}
