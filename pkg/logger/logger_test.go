package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestUninitializedIsNoop(t *testing.T) {
	require.NoError(t, Shutdown())
	assert.False(t, Initialized())

	assert.NotPanics(t, func() {
		Error("dropped")
		Warn("dropped")
		Info("dropped")
		Debug("dropped")
		Trace("dropped")
	})
}

func TestVerbosityLevel(t *testing.T) {
	tests := []struct {
		verbosity int
		want      string
	}{
		{-1, "error"},
		{0, "error"},
		{1, "warn"},
		{2, "info"},
		{3, "debug"},
		{4, "trace"},
		{9, "trace"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, VerbosityLevel(tt.verbosity))
	}
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("trace")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestTraceReachesCore(t *testing.T) {
	core, logs := observer.New(TraceLevel)
	restore := Replace(zap.New(core))
	defer restore()

	Trace("page walk", zap.Uint64("addr", 0x1000))
	Debug("debug entry")

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, TraceLevel, logs.All()[0].Level)
	assert.Equal(t, "page walk", logs.All()[0].Message)
}

func TestInitOnlyOnce(t *testing.T) {
	require.NoError(t, Shutdown())
	defer func() { _ = Shutdown() }()

	require.NoError(t, Init(Config{Level: "error", Encoding: "json", OutputPaths: []string{"stderr"}}))
	first := Get()
	require.NoError(t, Init(Config{Level: "debug"}))
	assert.Same(t, first, Get())
	assert.True(t, Initialized())
}

func TestInitRejectsBadLevel(t *testing.T) {
	require.NoError(t, Shutdown())
	err := Init(Config{Level: "noisy"})
	assert.Error(t, err)
	assert.False(t, Initialized())
}
