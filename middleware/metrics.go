package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/BranchIntl/ojsworker/job"
)

// Metrics returns middleware that records per-job execution metrics:
//
//   - ojs_worker_jobs_total (counter): labels type, queue, status
//   - ojs_worker_job_duration_seconds (histogram): labels type, queue, status
//
// status is "ok" or "error". The collectors are registered on reg, or on the
// default registerer when reg is nil.
func Metrics(reg prometheus.Registerer) Middleware {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	executions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ojs_worker_jobs_total",
			Help: "Total number of executed jobs.",
		},
		[]string{"type", "queue", "status"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ojs_worker_job_duration_seconds",
			Help:    "Job execution duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type", "queue", "status"},
	)
	executions = registerOrExisting(reg, executions)
	duration = registerOrExisting(reg, duration)

	return Func(func(ctx *job.Context, next Next) (any, error) {
		start := time.Now()
		result, err := next()
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}

		executions.WithLabelValues(ctx.Job.Type, ctx.Job.Queue, status).Inc()
		duration.WithLabelValues(ctx.Job.Type, ctx.Job.Queue, status).Observe(elapsed)

		return result, err
	})
}

// registerOrExisting registers c, reusing an identical collector that is
// already registered so Metrics can be built more than once per registry.
func registerOrExisting[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
