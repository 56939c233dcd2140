// Package ojsworker is a Go worker for Open Job Spec (OJS)
// job services. It claims jobs from a remote queue service,
// drives each one through an onion-style middleware chain,
// runs the handler registered for its type and reports the
// outcome back, while bounding concurrency and shutting
// down cleanly.
//
// ojsworker supports multiple transports:
//   - HTTP/JSON (the OJS worker protocol)
//   - RabbitMQ (OJS envelopes as message bodies)
//   - Bring Your Own (implement core.Transport)
//
// and multiple statistics backends:
//   - Redis
//   - NoOp
//
// # Example
//
//	package main
//
//	import (
//		"context"
//
//		"github.com/BranchIntl/ojsworker/core"
//		"github.com/BranchIntl/ojsworker/job"
//		"github.com/BranchIntl/ojsworker/registry"
//		"github.com/BranchIntl/ojsworker/statistics/noop"
//		"github.com/BranchIntl/ojsworker/transports/http"
//	)
//
//	func main() {
//		transport := http.NewTransport(http.DefaultOptions())
//		reg := registry.NewRegistry()
//
//		engine := core.NewEngine(
//			transport,
//			noop.NewStatistics(),
//			reg,
//			core.WithConcurrency(50),
//			core.WithQueues([]string{"critical", "default"}),
//		)
//
//		engine.RegisterFunc("email.send", sendEmail)
//
//		// Process jobs until SIGINT or SIGTERM
//		if err := engine.Run(context.Background()); err != nil {
//			panic(err)
//		}
//	}
//
// # Handlers
//
// A handler receives a *job.Context holding the job and
// returns a result, which is sent with the ack, or an
// error, which becomes a structured nack. Arguments are
// decoded from JSON; Bind converts one into a typed value.
//
//	func sendEmail(ctx *job.Context) (any, error) {
//		var to string
//		if err := ctx.Job.Bind(0, &to); err != nil {
//			return nil, err
//		}
//		return map[string]any{"sent": to}, deliver(ctx.Context(), to)
//	}
//
// Delivery is at-least-once: a job may run again after a
// crash or an expired lease, so handlers must be idempotent.
// Long-running handlers can call ctx.Heartbeat() to extend
// their lease outside the periodic heartbeat.
//
// # Middleware
//
// Middleware wraps every handler call. The first middleware
// added is the outermost layer:
//
//	engine.Use("recover", middleware.Recover(logger))
//	engine.Use("timeout", middleware.Timeout())
//	engine.Use("metrics", middleware.Metrics(nil))
//
// # Shutdown
//
// SIGINT and SIGTERM stop fetching and wait up to the
// shutdown timeout for in-flight jobs. SIGTSTP makes the
// worker quiet: it finishes what it has but fetches nothing
// new.
//
// # Process-wide worker
//
// For small programs the package-level functions configure
// an engine from flags and the OJS_URL, RABBITMQ_URL and
// REDIS_URL environment variables:
//
//	func init() {
//		ojsworker.RegisterFunc("email.send", sendEmail)
//	}
//
//	func main() {
//		if err := ojsworker.Work(); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// # Testing
//
// transports/memory provides an in-process transport that
// records every fetch, ack, nack and heartbeat:
//
//	transport := memory.NewTransport()
//	transport.Enqueue("email.send", "default", "a@example.com")
//	engine := core.NewEngine(transport, noop.NewStatistics(), reg)
package ojsworker
