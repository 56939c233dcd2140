package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/BranchIntl/ojsworker"
	"github.com/BranchIntl/ojsworker/internal/status"
	"github.com/BranchIntl/ojsworker/job"
	"github.com/BranchIntl/ojsworker/middleware"
	"golang.org/x/sync/errgroup"
)

var statusAddr = flag.String("status-addr", envOr("OJS_STATUS_ADDR", ":9090"),
	"listen address of the health and metrics server; empty disables it")

func main() {
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "ojs-worker: an Open Job Spec worker")
		fmt.Fprintln(flag.CommandLine.Output(), "\nUsage: ojs-worker [options]")
		fmt.Fprintln(flag.CommandLine.Output(), "\nOptions:")
		flag.PrintDefaults()
		fmt.Fprintln(flag.CommandLine.Output(), "\nExample:")
		fmt.Fprintln(flag.CommandLine.Output(), "  ojs-worker -url=http://localhost:8080 -queues=critical,default -concurrency=25")
	}
	flag.Parse()

	if err := run(context.Background()); err != nil {
		log.Fatal("Error: ", err)
	}
}

func run(ctx context.Context) error {
	if err := ojsworker.RegisterFunc("ojs.echo", echo); err != nil {
		return err
	}

	if err := ojsworker.Init(); err != nil {
		return err
	}
	defer ojsworker.Close()
	engine := ojsworker.Engine()
	logger := ojsworker.Logger()

	if err := use(logger); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	statusCtx, stopStatus := context.WithCancel(gctx)

	g.Go(func() error {
		defer stopStatus()
		return engine.Run(gctx)
	})
	if *statusAddr != "" {
		g.Go(func() error {
			return status.NewServer(*statusAddr, engine, nil, logger).Run(statusCtx)
		})
	}

	return g.Wait()
}

// use installs the default middleware stack, outermost first
func use(logger *slog.Logger) error {
	for _, m := range []struct {
		name string
		mw   middleware.Middleware
	}{
		{"recover", middleware.Recover(logger)},
		{"tracing", middleware.Tracing()},
		{"metrics", middleware.Metrics(nil)},
		{"logging", middleware.Logging(logger)},
		{"timeout", middleware.Timeout()},
	} {
		if err := ojsworker.Use(m.name, m.mw); err != nil {
			return err
		}
	}
	return nil
}

// echo returns the job's arguments; useful for checking a deployment end to end
func echo(ctx *job.Context) (any, error) {
	return map[string]any{"args": ctx.Job.Args, "attempt": ctx.Job.Attempt}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
