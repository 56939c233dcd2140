package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/BranchIntl/ojsworker/errors"
	"github.com/BranchIntl/ojsworker/job"
)

// Recover returns middleware that converts a panic in any inner layer into a
// HandlerError carrying the stack trace as its backtrace.
func Recover(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return Func(func(ctx *job.Context, next Next) (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("Job handler panicked",
					"job_id", ctx.Job.ID,
					"type", ctx.Job.Type,
					"panic", r,
					"stack", stack,
				)
				result = nil
				err = &errors.HandlerError{
					JobType:   ctx.Job.Type,
					Backtrace: Backtrace(stack),
					Err:       fmt.Errorf("panic: %v", r),
				}
			}
		}()
		return next()
	})
}

// Backtrace splits a debug.Stack dump into trimmed, non-empty lines
func Backtrace(stack string) []string {
	lines := strings.Split(stack, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
