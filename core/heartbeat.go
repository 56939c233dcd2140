package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/BranchIntl/ojsworker/errors"
)

// Heartbeater periodically extends the leases of all active jobs in a
// single batched call. Failures are logged and never stop the loop.
type Heartbeater struct {
	transport Transport
	interval  time.Duration
	state     func() State
	logger    *slog.Logger
}

// NewHeartbeater creates a new heartbeater
func NewHeartbeater(transport Transport, interval time.Duration, state func() State, logger *slog.Logger) *Heartbeater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Heartbeater{
		transport: transport,
		interval:  interval,
		state:     state,
		logger:    logger,
	}
}

// Run ticks until r.done is closed or no further beats are needed
func (h *Heartbeater) Run(ctx context.Context, r *run) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
		}

		if !h.shouldBeat(r) {
			return
		}
		h.beat(ctx, r)
	}
}

func (h *Heartbeater) shouldBeat(r *run) bool {
	switch h.state() {
	case StateRunning, StateQuiet:
		return true
	case StateTerminating:
		return r.active.len() > 0
	}
	return false
}

// beat sends one heartbeat covering every active job; an empty set sends nothing
func (h *Heartbeater) beat(ctx context.Context, r *run) {
	ids := r.active.ids()
	if len(ids) == 0 {
		return
	}

	if err := h.transport.Heartbeat(ctx, ids); err != nil {
		h.logger.Warn("Heartbeat failed",
			"jobs", len(ids),
			"error", err,
			"kind", errors.KindOf(err),
			"timeout", errors.IsTimeout(err))
		return
	}
	h.logger.Debug("Heartbeat sent", "jobs", len(ids))
}
