package server

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/scalpel-dispatch/internal/config"
	"github.com/xkilldash9x/scalpel-dispatch/internal/metrics"
	"github.com/xkilldash9x/scalpel-dispatch/internal/mocks"
	"github.com/xkilldash9x/scalpel-dispatch/internal/supervisor"
)

var fixedNow = time.Date(2024, 1, 2, 3, 4, 5, 6_000_000, time.UTC)

const fixedTimestamp = "2024-01-02T03:04:05.006Z"

type testEnv struct {
	server       *Server
	handler      http.Handler
	bootstrapper *mocks.MockSessionBootstrapper
	metrics      *metrics.Collector
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.NewDefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	logger := zaptest.NewLogger(t)
	boot := new(mocks.MockSessionBootstrapper)
	collector := metrics.NewCollector("dispatch", zap.NewNop())
	sup := supervisor.New(logger, false, nil)

	s := New(cfg, boot, sup, logger, WithMetrics(collector), WithClock(func() time.Time { return fixedNow }))
	t.Cleanup(func() { boot.AssertExpectations(t) })

	return &testEnv{server: s, handler: s.Handler(), bootstrapper: boot, metrics: collector}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// streamEvents decodes every `data:` frame of an event-stream body and checks
// the framing along the way.
func streamEvents(t *testing.T, body string) []map[string]interface{} {
	t.Helper()
	require.True(t, strings.HasSuffix(body, "\n\n"), "stream must end with a complete event")

	var events []map[string]interface{}
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		require.True(t, strings.HasPrefix(line, "data: "), "unexpected stream line %q", line)
		var ev map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())
	return events
}

// isTerminal reports whether ev is an answer or an error event.
func isTerminal(ev map[string]interface{}) bool {
	if ev["type"] == "answer" {
		return true
	}
	_, hasErr := ev["error"]
	return hasErr
}

// requireSingleTerminal asserts exactly one terminal event, in last position.
func requireSingleTerminal(t *testing.T, events []map[string]interface{}) map[string]interface{} {
	t.Helper()
	require.NotEmpty(t, events)
	for _, ev := range events[:len(events)-1] {
		require.False(t, isTerminal(ev), "terminal event before the end of the stream: %v", ev)
	}
	last := events[len(events)-1]
	require.True(t, isTerminal(last), "last event is not terminal: %v", last)
	return last
}

func errorMessage(ev map[string]interface{}) string {
	detail, _ := ev["error"].(map[string]interface{})
	msg, _ := detail["message"].(string)
	return msg
}
