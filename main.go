// ./main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-dispatch/cmd"
	"github.com/xkilldash9x/scalpel-dispatch/internal/observability"
	"github.com/xkilldash9x/scalpel-dispatch/internal/supervisor"
)

// osExit allows mocking os.Exit in tests.
var osExit = os.Exit

func main() {
	// The sentinel catches faults outside any request, e.g. during wiring.
	defer handlePanic()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		observability.Sync()
		osExit(exitCode(err))
	}
}

// exitCode maps the command's error to a process status. An interrupt is a
// clean stop; a fail-fast shutdown is not, so restart policies see a failure.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, supervisor.ErrFailFast):
		return 1
	case errors.Is(err, context.Canceled):
		return 0
	}
	return 1
}

// handlePanic logs an escaped panic with its stack, flushes the logger and
// exits non-zero.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.GetLogger().Error("Unrecovered panic; exiting.",
		zap.Any("panic", r),
		zap.ByteString("stack", debug.Stack()),
	)
	observability.Sync()
	fmt.Fprintf(os.Stderr, "panic: %v\n", r)
	osExit(2)
}
