package middleware

import (
	"log/slog"
	"time"

	"github.com/BranchIntl/ojsworker/job"
)

// Logging returns middleware that logs job start and completion
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return Func(func(ctx *job.Context, next Next) (any, error) {
		j := ctx.Job
		logger.Info("Job started",
			"job_id", j.ID,
			"type", j.Type,
			"queue", j.Queue,
			"attempt", j.Attempt,
		)

		start := time.Now()
		result, err := next()
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("Job failed",
				"job_id", j.ID,
				"type", j.Type,
				"elapsed", elapsed,
				"error", err,
			)
		} else {
			logger.Info("Job completed",
				"job_id", j.ID,
				"type", j.Type,
				"elapsed", elapsed,
			)
		}

		return result, err
	})
}
