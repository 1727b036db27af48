package controller

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var (
	terminationOnce sync.Once
	terminationCtx  context.Context
)

// TerminationContext returns the process-wide context cancelled on SIGINT or
// SIGTERM. Every controller links its tasks to it, so one signal cancels the
// tasks of all controllers in the process, not only those of one controller.
func TerminationContext() context.Context {
	terminationOnce.Do(func() {
		terminationCtx, _ = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	})
	return terminationCtx
}
