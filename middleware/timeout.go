package middleware

import (
	"context"

	"github.com/BranchIntl/ojsworker/job"
)

// Timeout returns middleware that bounds the Go context seen by inner layers
// by the job's own timeout. Handlers must observe ctx.Context() for the
// deadline to have any effect.
func Timeout() Middleware {
	return Func(func(ctx *job.Context, next Next) (any, error) {
		d := ctx.Job.TimeoutDuration()
		if d <= 0 {
			return next()
		}

		tctx, cancel := context.WithTimeout(ctx.Context(), d)
		defer cancel()
		restore := ctx.SetContext(tctx)
		defer restore()

		return next()
	})
}
