package reschedule

import (
	"context"

	"github.com/keepitcut/reschedule-service/pkg/logging"
)

// compensationLog is a request-scoped undo stack. Every mutating step that
// succeeds pushes its inverse; on failure the stack unwinds in LIFO order.
// An inverse action's own failure is logged and counted but never aborts the
// unwind — the caller's original error is the one that matters, and the
// vendor remains the system of record either way.
type compensationLog struct {
	logger  *logging.Logger
	actions []compensation
}

type compensation struct {
	label string
	run   func(ctx context.Context) error
}

func newCompensationLog(logger *logging.Logger) *compensationLog {
	return &compensationLog{logger: logger}
}

// push records an inverse action for a mutation that just succeeded.
func (l *compensationLog) push(label string, run func(ctx context.Context) error) {
	l.actions = append(l.actions, compensation{label: label, run: run})
}

// unwind runs every recorded inverse action, newest first, and returns how
// many of them failed.
func (l *compensationLog) unwind(ctx context.Context) int {
	failed := 0
	for i := len(l.actions) - 1; i >= 0; i-- {
		action := l.actions[i]
		if err := action.run(ctx); err != nil {
			failed++
			l.logger.Warn("rollback action failed",
				"action", action.label,
				"error", err,
			)
		}
	}
	l.actions = nil
	return failed
}

// discard drops the recorded actions without running them, once the steps
// they would undo are final.
func (l *compensationLog) discard() {
	l.actions = nil
}

func (l *compensationLog) depth() int {
	return len(l.actions)
}
