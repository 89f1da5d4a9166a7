package engine

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// Runtime runs one asynchronous transfer from a synchronous caller. Each
// Block call owns its goroutine and context; nothing is shared between
// calls.
type Runtime struct {
	logger logrus.FieldLogger
}

func NewRuntime(logger logrus.FieldLogger) *Runtime {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Runtime{logger: logger}
}

// Block runs task and waits for it to finish. A panic in task is recovered
// and returned as an error. Cancelling ctx is visible to task but does not
// make Block return early.
func (r *Runtime) Block(ctx context.Context, task func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				r.logger.WithField("stack", string(debug.Stack())).Error("transfer panicked")
				done <- fmt.Errorf("transfer panicked: %v", p)
			}
		}()
		done <- task(ctx)
	}()
	return <-done
}
