package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("nonsense"))
}

func TestOrFallsBackToGlobal(t *testing.T) {
	prev := L()
	defer SetLogger(prev)

	l := zap.NewNop()
	SetLogger(l)
	assert.Same(t, l, Or(nil))

	other := zap.NewExample()
	assert.Same(t, other, Or(other))
}

func TestSetLoggerIgnoresNil(t *testing.T) {
	prev := L()
	SetLogger(nil)
	assert.Same(t, prev, L())
}
