//go:build !windows

package core

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_Run_Signals(t *testing.T) {
	engine := NewTestSetup().NewEngine().Build()

	done := make(chan error, 1)
	go func() {
		done <- engine.Run(context.Background())
	}()
	require.Eventually(t, func() bool { return engine.State() == StateRunning }, time.Second, time.Millisecond)

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTSTP))
	Eventually(t, func() bool { return engine.State() == StateQuiet }, "SIGTSTP did not quiet the engine")

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("SIGTERM did not stop the engine")
	}
	assert.Equal(t, StateStopped, engine.State())
}
