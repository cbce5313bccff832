package dbgerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsLoading(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"loading error", New(Loading, "symbols are not loaded yet"), true},
		{"usage error", New(Usage, "not suspended"), false},
		{"wrapped loading error", fmt.Errorf("resolve: %w", New(Loading, "still loading")), true},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsLoading(tt.err))
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("peekuser failed")
	err := Wrap(DebugInfoError, cause, "bad unwind row")
	require.ErrorIs(t, err, err)
	assert.Same(t, cause, errors.Unwrap(err))
	assert.Contains(t, err.Error(), "bad unwind row")
	assert.Contains(t, err.Error(), "peekuser failed")
}

func TestKindIs(t *testing.T) {
	a := New(OutOfHardwareBreakpoints, "location 1")
	b := New(OutOfHardwareBreakpoints, "location 2")
	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, New(Usage, "")))
}
