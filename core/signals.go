package core

import (
	"os"
	"os/signal"
	"syscall"
)

// stopSignals trigger a graceful shutdown
var stopSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// handleSignals maps process signals onto Stop and Quiet until the returned
// function is called
func (e *Engine) handleSignals() func() {
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, stopSignals...)

	quietChan := make(chan os.Signal, 1)
	if len(quietSignals) > 0 {
		signal.Notify(quietChan, quietSignals...)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-stopChan:
				e.logger.Info("Received signal, shutting down", "signal", sig)
				e.Stop()
			case sig := <-quietChan:
				e.logger.Info("Received signal, going quiet", "signal", sig)
				e.Quiet()
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(stopChan)
		signal.Stop(quietChan)
		close(done)
	}
}
