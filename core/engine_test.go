package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	ojserrors "github.com/BranchIntl/ojsworker/errors"
	"github.com/BranchIntl/ojsworker/job"
	"github.com/BranchIntl/ojsworker/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_InitialState(t *testing.T) {
	engine := NewTestSetup().NewEngine().Build()

	assert.Equal(t, StateStopped, engine.State())
	assert.NotEmpty(t, engine.ID())
}

func TestEngine_Stop_BeforeStart(t *testing.T) {
	engine := NewTestSetup().NewEngine().Build()

	engine.Stop()
	engine.Quiet()
	assert.Equal(t, StateStopped, engine.State())
}

func TestEngine_StateTransitions(t *testing.T) {
	setup := NewTestSetup()
	engine := setup.NewEngine().Build()

	errCh := StartAsync(t, engine, context.Background())
	assert.Equal(t, StateRunning, engine.State())

	engine.Quiet()
	assert.Equal(t, StateQuiet, engine.State())

	// quiet is only entered from running
	engine.Quiet()
	assert.Equal(t, StateQuiet, engine.State())

	engine.Stop()
	require.NoError(t, WaitForStart(t, errCh, 3*time.Second))
	assert.Equal(t, StateStopped, engine.State())
}

func TestEngine_Start_AlreadyRunning(t *testing.T) {
	engine := NewTestSetup().NewEngine().Build()

	errCh := StartAsync(t, engine, context.Background())

	err := engine.Start(context.Background())
	assert.ErrorIs(t, err, ojserrors.ErrEngineRunning)
	assert.Equal(t, StateRunning, engine.State())

	engine.Stop()
	require.NoError(t, WaitForStart(t, errCh, 3*time.Second))
}

func TestEngine_ConnectionErrors(t *testing.T) {
	testCases := []struct {
		name        string
		setupError  func(*TestSetup)
		expectedErr string
	}{
		{
			name: "transport connection error",
			setupError: func(s *TestSetup) {
				s.Transport.SetConnectError(errors.New("transport connection failed"))
			},
			expectedErr: "failed to connect transport",
		},
		{
			name: "stats connection error",
			setupError: func(s *TestSetup) {
				s.Stats.SetConnectError(errors.New("stats connection failed"))
			},
			expectedErr: "failed to connect statistics",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			setup := NewTestSetup()
			tc.setupError(setup)
			engine := setup.NewEngine().Build()

			err := engine.Start(context.Background())

			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.expectedErr)
			var connErr *ojserrors.ConnectionError
			assert.ErrorAs(t, err, &connErr)
			assert.Equal(t, StateStopped, engine.State())
			assert.False(t, setup.Transport.IsConnected())
		})
	}
}

func TestEngine_InvalidConfig(t *testing.T) {
	setup := NewTestSetup()

	engine := setup.NewEngine().WithOptions(WithConcurrency(0)).Build()
	assert.ErrorIs(t, engine.Start(context.Background()), ojserrors.ErrInvalidConfig)

	engine = setup.NewEngine().WithOptions(WithQueues(nil)).Build()
	assert.ErrorIs(t, engine.Start(context.Background()), ojserrors.ErrNoQueues)

	engine = NewEngine(nil, setup.Stats, setup.Registry)
	assert.ErrorIs(t, engine.Start(context.Background()), ojserrors.ErrInvalidConfig)
	assert.Equal(t, StateStopped, engine.State())
}

func TestEngine_SingleJobAcked(t *testing.T) {
	setup := NewTestSetup()
	setup.RegisterFunc("echo", func(ctx *job.Context) (any, error) {
		return map[string]any{"ok": true}, nil
	})
	setup.Transport.AddJobs(NewTestJob("job-1", "echo"))

	engine := setup.NewEngine().WithOptions(WithConcurrency(1)).Build()
	errCh := StartAsync(t, engine, context.Background())

	Eventually(t, func() bool { return len(setup.Transport.GetAcks()) == 1 }, "job was not acked")

	engine.Stop()
	require.NoError(t, WaitForStart(t, errCh, 3*time.Second))

	acks := setup.Transport.GetAcks()
	require.Len(t, acks, 1)
	assert.Equal(t, "job-1", acks[0].JobID)
	assert.Equal(t, map[string]any{"ok": true}, acks[0].Result)
	assert.Empty(t, setup.Transport.GetNacks())
	assert.Equal(t, StateStopped, engine.State())
}

func TestEngine_ActiveJobsNeverExceedConcurrency(t *testing.T) {
	setup := NewTestSetup()
	engine := setup.NewEngine().WithOptions(
		WithConcurrency(2),
		WithBatchSize(5),
	).Build()

	var maxActive int64
	setup.RegisterFunc("slow", func(ctx *job.Context) (any, error) {
		active := int64(engine.Health().ActiveJobs)
		for {
			prev := atomic.LoadInt64(&maxActive)
			if active <= prev || atomic.CompareAndSwapInt64(&maxActive, prev, active) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return nil, nil
	})
	setup.Transport.AddJobs(NewTestJobs(10, "slow")...)

	errCh := StartAsync(t, engine, context.Background())
	Eventually(t, func() bool { return len(setup.Transport.GetAcks()) == 10 }, "not all jobs acked")

	engine.Stop()
	require.NoError(t, WaitForStart(t, errCh, 3*time.Second))

	assert.LessOrEqual(t, atomic.LoadInt64(&maxActive), int64(2))
	for _, call := range setup.Transport.GetFetchCalls() {
		assert.LessOrEqual(t, call.BatchSize, 2)
		assert.Equal(t, []string{"default"}, call.Queues)
	}
}

func TestEngine_MissingHandlerNacked(t *testing.T) {
	setup := NewTestSetup()
	setup.Transport.AddJobs(NewTestJob("job-1", "unknown.type"))

	engine := setup.NewEngine().WithOptions(WithConcurrency(1)).Build()
	errCh := StartAsync(t, engine, context.Background())

	Eventually(t, func() bool { return len(setup.Transport.GetNacks()) == 1 }, "job was not nacked")
	engine.Stop()
	require.NoError(t, WaitForStart(t, errCh, 3*time.Second))

	nacks := setup.Transport.GetNacks()
	require.Len(t, nacks, 1)
	assert.Equal(t, ojserrors.TypeHandlerNotFound, nacks[0].Err.Type)
	assert.Empty(t, setup.Transport.GetAcks())
}

func TestEngine_ContextCancellation(t *testing.T) {
	setup := NewTestSetup()
	engine := setup.NewEngine().WithOptions(WithConcurrency(1)).Build()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := StartAsync(t, engine, ctx)

	cancel()

	require.NoError(t, WaitForStart(t, errCh, 3*time.Second))
	assert.Equal(t, StateStopped, engine.State())
}

func TestEngine_Run_ContextCancellation(t *testing.T) {
	engine := NewTestSetup().NewEngine().Build()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- engine.Run(ctx)
	}()

	require.Eventually(t, func() bool { return engine.State() == StateRunning }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Engine.Run did not stop within timeout")
	}
}

func TestEngine_Restart(t *testing.T) {
	setup := NewTestSetup()
	setup.RegisterFunc("echo", func(ctx *job.Context) (any, error) { return nil, nil })
	engine := setup.NewEngine().WithOptions(WithConcurrency(2)).Build()

	for round := 0; round < 2; round++ {
		setup.Transport.AddJobs(NewTestJob("round-"+string(rune('a'+round)), "echo"))
		errCh := StartAsync(t, engine, context.Background())

		want := round + 1
		Eventually(t, func() bool { return len(setup.Transport.GetAcks()) == want }, "job not acked")

		engine.Stop()
		require.NoError(t, WaitForStart(t, errCh, 3*time.Second))
		assert.Equal(t, StateStopped, engine.State())
	}

	assert.Equal(t, 2, setup.Transport.CloseCount())
}

func TestEngine_ShutdownDeadline(t *testing.T) {
	setup := NewTestSetup()
	cancelled := make(chan struct{})
	started := make(chan struct{})
	setup.RegisterFunc("stuck", func(ctx *job.Context) (any, error) {
		close(started)
		<-ctx.Context().Done()
		close(cancelled)
		return nil, ctx.Context().Err()
	})
	setup.Transport.AddJobs(NewTestJob("job-1", "stuck"))

	engine := setup.NewEngine().WithOptions(
		WithConcurrency(1),
		WithShutdownTimeout(100*time.Millisecond),
	).Build()
	errCh := StartAsync(t, engine, context.Background())

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never started")
	}

	begin := time.Now()
	engine.Stop()
	require.NoError(t, WaitForStart(t, errCh, 3*time.Second))

	assert.Less(t, time.Since(begin), time.Second)
	assert.Equal(t, StateStopped, engine.State())

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("abandoned handler was not cancelled")
	}
}

func TestEngine_InFlightJobFinishesOnStop(t *testing.T) {
	setup := NewTestSetup()
	release := make(chan struct{})
	setup.RegisterFunc("wait", func(ctx *job.Context) (any, error) {
		<-release
		return "done", nil
	})
	setup.Transport.AddJobs(NewTestJob("job-1", "wait"))

	engine := setup.NewEngine().WithOptions(WithConcurrency(1)).Build()
	errCh := StartAsync(t, engine, context.Background())

	Eventually(t, func() bool { return engine.Health().ActiveJobs == 1 }, "job not active")
	engine.Stop()
	assert.Equal(t, StateTerminating, engine.State())
	close(release)

	require.NoError(t, WaitForStart(t, errCh, 3*time.Second))

	acks := setup.Transport.GetAcks()
	require.Len(t, acks, 1)
	assert.Equal(t, "done", acks[0].Result)
	assert.Empty(t, setup.Transport.GetNacks())
}

func TestEngine_Quiet_StopsFetching(t *testing.T) {
	setup := NewTestSetup()
	engine := setup.NewEngine().Build()
	errCh := StartAsync(t, engine, context.Background())

	Eventually(t, func() bool { return len(setup.Transport.GetFetchCalls()) > 0 }, "no fetch issued")
	engine.Quiet()
	time.Sleep(30 * time.Millisecond)
	calls := len(setup.Transport.GetFetchCalls())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, len(setup.Transport.GetFetchCalls()))

	engine.Stop()
	require.NoError(t, WaitForStart(t, errCh, 3*time.Second))
}

func TestEngine_FetchErrorsDoNotStopLoop(t *testing.T) {
	setup := NewTestSetup()
	setup.Transport.SetFetchError(ojserrors.NewTransportError("fetch", ojserrors.KindServer, errors.New("503")))

	engine := setup.NewEngine().Build()
	errCh := StartAsync(t, engine, context.Background())

	Eventually(t, func() bool { return len(setup.Transport.GetFetchCalls()) >= 3 }, "poll loop stopped")
	assert.Equal(t, StateRunning, engine.State())

	engine.Stop()
	require.NoError(t, WaitForStart(t, errCh, 3*time.Second))
}

func TestEngine_MiddlewareApplied(t *testing.T) {
	setup := NewTestSetup()
	setup.RegisterFunc("echo", func(ctx *job.Context) (any, error) {
		v, _ := ctx.Get("tenant")
		return v, nil
	})
	setup.Transport.AddJobs(NewTestJob("job-1", "echo"))

	engine := setup.NewEngine().WithOptions(WithConcurrency(1)).Build()
	require.NoError(t, engine.Use("tenant", middleware.Func(func(ctx *job.Context, next middleware.Next) (any, error) {
		ctx.Set("tenant", "acme")
		return next()
	})))
	assert.Equal(t, []string{"tenant"}, engine.Middleware().Names())

	errCh := StartAsync(t, engine, context.Background())
	Eventually(t, func() bool { return len(setup.Transport.GetAcks()) == 1 }, "job not acked")
	engine.Stop()
	require.NoError(t, WaitForStart(t, errCh, 3*time.Second))

	assert.Equal(t, "acme", setup.Transport.GetAcks()[0].Result)
}

func TestEngine_Health(t *testing.T) {
	setup := NewTestSetup()
	engine := setup.NewEngine().WithOptions(WithConcurrency(3)).Build()

	health := engine.Health()
	assert.True(t, health.Healthy)
	assert.Equal(t, StateStopped, health.State)
	assert.False(t, health.LastCheck.IsZero())

	errCh := StartAsync(t, engine, context.Background())
	Eventually(t, func() bool { return engine.Health().ActiveWorkers == 3 }, "workers not started")

	health = engine.Health()
	assert.Equal(t, StateRunning, health.State)
	assert.Len(t, health.Workers, 3)

	setup.Transport.SetHealthError(errors.New("server unreachable"))
	health = engine.Health()
	assert.False(t, health.Healthy)
	assert.EqualError(t, health.TransportHealth, "server unreachable")

	engine.Stop()
	require.NoError(t, WaitForStart(t, errCh, 3*time.Second))
	assert.Equal(t, 0, engine.Health().ActiveWorkers)
}

func TestEngine_Register(t *testing.T) {
	setup := NewTestSetup()
	engine := setup.NewEngine().Build()

	err := engine.RegisterFunc("TestJob", func(ctx *job.Context) (any, error) { return nil, nil })
	assert.NoError(t, err)

	_, exists := setup.Registry.Get("TestJob")
	assert.True(t, exists)

	assert.ErrorIs(t, engine.RegisterFunc("Nil", nil), ojserrors.ErrNilHandler)
}

func TestEngine_Config(t *testing.T) {
	engine := NewTestSetup().NewEngine().WithOptions(
		WithConcurrency(4),
		WithQueues([]string{"critical", "default"}),
	).Build()

	cfg := engine.Config()
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, []string{"critical", "default"}, cfg.Queues)

	cfg.Queues[0] = "mutated"
	assert.Equal(t, "critical", engine.Config().Queues[0])
}
