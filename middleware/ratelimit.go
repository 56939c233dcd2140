package middleware

import (
	"fmt"

	"golang.org/x/time/rate"

	"github.com/BranchIntl/ojsworker/job"
)

// RateLimit returns middleware that waits for a token from limiter before
// running inner layers. The wait is bounded by the dispatch context; when it
// is cancelled the job fails without running.
func RateLimit(limiter *rate.Limiter) Middleware {
	return Func(func(ctx *job.Context, next Next) (any, error) {
		if err := limiter.Wait(ctx.Context()); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
		return next()
	})
}
