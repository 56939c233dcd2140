package memory

import (
	"context"
	"errors"
	"testing"

	ojserrors "github.com/BranchIntl/ojsworker/errors"
	"github.com/BranchIntl/ojsworker/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransport_FetchOrder(t *testing.T) {
	tr := NewTransport()
	tr.Enqueue("low.1", "low")
	tr.Enqueue("high.1", "high")
	tr.Enqueue("high.2", "high")
	tr.Enqueue("low.2", "low")

	jobs, err := tr.Fetch(context.Background(), []string{"high", "low"}, 3)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "high.1", jobs[0].Type)
	assert.Equal(t, "high.2", jobs[1].Type)
	assert.Equal(t, "low.1", jobs[2].Type)

	for _, j := range jobs {
		assert.Equal(t, job.StateActive, j.State)
		assert.Equal(t, 1, j.Attempt)
		assert.NotEmpty(t, j.ID)
	}

	assert.Equal(t, 1, tr.Pending("low"))
	assert.Equal(t, 3, tr.Leased())
	assert.Equal(t, []int{3}, tr.Fetches())
}

func TestTransport_Push_Defaults(t *testing.T) {
	tr := NewTransport()
	j := tr.Push(&job.Job{Type: "t"})

	assert.NotEmpty(t, j.ID)
	assert.Equal(t, "default", j.Queue)
	assert.Equal(t, job.StateAvailable, j.State)
	assert.Equal(t, 1, tr.Pending("default"))
}

func TestTransport_AckNack(t *testing.T) {
	tr := NewTransport()
	a := tr.Enqueue("t", "default")
	b := tr.Enqueue("t", "default")

	_, err := tr.Fetch(context.Background(), []string{"default"}, 2)
	require.NoError(t, err)

	require.NoError(t, tr.Ack(context.Background(), a.ID, "done"))
	require.NoError(t, tr.Nack(context.Background(), b.ID, &job.Error{Type: "HandlerError", Message: "x"}))

	stored, ok := tr.Lookup(a.ID)
	require.True(t, ok)
	assert.Equal(t, job.StateCompleted, stored.State)
	stored, ok = tr.Lookup(b.ID)
	require.True(t, ok)
	assert.Equal(t, job.StateDiscarded, stored.State)
	assert.Equal(t, 0, tr.Leased())
	assert.Equal(t, []Ack{{JobID: a.ID, Result: "done"}}, tr.Acks())
	require.Len(t, tr.Nacks(), 1)
	assert.Equal(t, "HandlerError", tr.Nacks()[0].Error.Type)
}

func TestTransport_AckUnknownJob(t *testing.T) {
	tr := NewTransport()

	err := tr.Ack(context.Background(), "ghost", nil)
	assert.ErrorIs(t, err, ojserrors.ErrJobNotFound)
	assert.Equal(t, ojserrors.KindClient, ojserrors.KindOf(err))
	assert.Len(t, tr.Acks(), 1)
}

func TestTransport_InjectedErrors(t *testing.T) {
	tr := NewTransport()
	tr.Enqueue("t", "default")
	boom := errors.New("boom")

	tr.SetError("fetch", boom)
	_, err := tr.Fetch(context.Background(), []string{"default"}, 1)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, tr.Pending("default"))

	tr.SetError("fetch", nil)
	jobs, err := tr.Fetch(context.Background(), []string{"default"}, 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	tr.SetError("heartbeat", boom)
	assert.ErrorIs(t, tr.Heartbeat(context.Background(), []string{jobs[0].ID}), boom)
	assert.Equal(t, [][]string{{jobs[0].ID}}, tr.Heartbeats())

	tr.SetError("ack", boom)
	assert.ErrorIs(t, tr.Ack(context.Background(), jobs[0].ID, nil), boom)
	assert.Equal(t, 1, tr.Leased())
}

func TestTransport_Lifecycle(t *testing.T) {
	tr := NewTransport()
	assert.NoError(t, tr.Health())

	require.NoError(t, tr.Close())
	assert.ErrorIs(t, tr.Health(), ojserrors.ErrNotConnected)

	require.NoError(t, tr.Connect(context.Background()))
	assert.NoError(t, tr.Health())
}

func TestTransport_DispatchedJobsAreCopies(t *testing.T) {
	tr := NewTransport()
	pushed := tr.Enqueue("t", "default")

	jobs, err := tr.Fetch(context.Background(), []string{"default"}, 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	fetched := jobs[0]
	assert.NotSame(t, pushed, fetched)

	require.NoError(t, tr.Ack(context.Background(), fetched.ID, nil))

	assert.Equal(t, job.StateAvailable, pushed.State)
	assert.Equal(t, 0, pushed.Attempt)
	assert.Equal(t, job.StateActive, fetched.State)
	assert.Equal(t, 1, fetched.Attempt)

	stored, ok := tr.Lookup(fetched.ID)
	require.True(t, ok)
	assert.Equal(t, job.StateCompleted, stored.State)

	_, ok = tr.Lookup("ghost")
	assert.False(t, ok)
}
