package registry

import (
	"testing"

	"github.com/BranchIntl/ojsworker/errors"
	"github.com/BranchIntl/ojsworker/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test handlers for testing
func testHandler1(ctx *job.Context) (any, error) {
	return nil, nil
}

func testHandler2(ctx *job.Context) (any, error) {
	return "two", nil
}

func TestRegistry_Register(t *testing.T) {
	tests := []struct {
		name      string
		jobType   string
		handler   job.Handler
		expectErr error
	}{
		{
			name:      "valid registration",
			jobType:   "email.send",
			handler:   job.HandlerFunc(testHandler1),
			expectErr: nil,
		},
		{
			name:      "empty job type",
			jobType:   "",
			handler:   job.HandlerFunc(testHandler1),
			expectErr: errors.ErrEmptyJobType,
		},
		{
			name:      "nil handler",
			jobType:   "email.send",
			handler:   nil,
			expectErr: errors.ErrNilHandler,
		},
		{
			name:      "nil handler func",
			jobType:   "email.send",
			handler:   job.HandlerFunc(nil),
			expectErr: errors.ErrNilHandler,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewRegistry()

			err := registry.Register(tt.jobType, tt.handler)

			if tt.expectErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.expectErr)
				assert.Empty(t, registry.List())
			} else {
				require.NoError(t, err)

				handler, found := registry.Get(tt.jobType)
				assert.True(t, found)
				assert.NotNil(t, handler)
			}
		})
	}
}

func TestRegistry_BasicOperations(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.Register("report.build", job.HandlerFunc(testHandler2)))
	require.NoError(t, registry.Register("email.send", job.HandlerFunc(testHandler1)))

	handler, found := registry.Get("report.build")
	require.True(t, found)
	result, err := handler.Handle(nil)
	require.NoError(t, err)
	assert.Equal(t, "two", result)

	_, found = registry.Get("missing")
	assert.False(t, found)

	assert.Equal(t, []string{"email.send", "report.build"}, registry.List())

	registry.Remove("email.send")
	_, found = registry.Get("email.send")
	assert.False(t, found)
	assert.Len(t, registry.List(), 1)

	registry.Clear()
	assert.Empty(t, registry.List())
}

func TestRegistry_ReplaceHandler(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register("t", job.HandlerFunc(testHandler1)))
	require.NoError(t, registry.Register("t", job.HandlerFunc(testHandler2)))

	handler, _ := registry.Get("t")
	result, _ := handler.Handle(nil)
	assert.Equal(t, "two", result)
}
