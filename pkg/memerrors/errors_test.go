package memerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_PreservesStackOfStructuredCause(t *testing.T) {
	inner := New(ErrorTypeIO, "read failed")
	outer := Wrap(inner, ErrorTypeConnectorInitFailed, "probe failed")

	require.NotNil(t, outer)
	assert.Equal(t, inner.Stack, outer.Stack)
	assert.Equal(t, "connector_init_failed: probe failed: io: read failed", outer.Error())
	assert.True(t, errors.Is(outer, ErrConnectorInitFailed))
	assert.True(t, errors.Is(outer, ErrIO))
}

func TestWrap_Nil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeIO, "nothing"))
}

func TestTypeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{name: "nil", err: nil, want: ""},
		{name: "foreign", err: fmt.Errorf("boom"), want: ErrorTypeInternal},
		{name: "structured", err: New(ErrorTypeShortRead, "short"), want: ErrorTypeShortRead},
		{name: "wrapped by fmt", err: fmt.Errorf("ctx: %w", New(ErrorTypeOutOfBounds, "oob")), want: ErrorTypeOutOfBounds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TypeOf(tt.err))
		})
	}
}

func TestIs_SentinelRequiresEmptyMessage(t *testing.T) {
	a := New(ErrorTypeUnsupported, "write on read-only backend")
	b := New(ErrorTypeUnsupported, "other message")

	assert.True(t, errors.Is(a, ErrUnsupported))
	assert.False(t, errors.Is(a, b))
}

func TestWithDetail(t *testing.T) {
	err := Newf(ErrorTypeValidation, "request %d has zero length", 3).
		WithDetail("index", 3).
		WithDetail("address", "0x1000")

	assert.Equal(t, "validation: request 3 has zero length", err.Error())
	assert.Equal(t, 3, err.Details["index"])
	assert.NotEmpty(t, err.Stack)
}
