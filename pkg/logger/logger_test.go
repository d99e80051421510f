package logger

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zapcore.Level
		ok    bool
	}{
		{"debug", zapcore.DebugLevel, true},
		{"info", zapcore.InfoLevel, true},
		{"warn", zapcore.WarnLevel, true},
		{"error", zapcore.ErrorLevel, true},
		{"bogus", zapcore.InfoLevel, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseLevel(tt.input)
			if tt.ok {
				assert.NoError(t, err)
				assert.Equal(t, tt.want, got)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestGetBeforeInit(t *testing.T) {
	// Reset global state
	globalLogger = nil
	once = sync.Once{}

	l := Get()
	assert.NotNil(t, l, "Get() should return a no-op logger before Init")
}

func TestInitOnlyOnce(t *testing.T) {
	globalLogger = nil
	once = sync.Once{}

	assert.NoError(t, Init(Config{Level: "debug", Format: "json"}))
	first := globalLogger

	// Second init is a no-op
	assert.NoError(t, Init(Config{Level: "error", Format: "text"}))
	assert.Same(t, first, globalLogger)
}

func TestTruncateField(t *testing.T) {
	short := "hello"
	assert.Equal(t, short, TruncateField(short))

	long := strings.Repeat("x", 500)
	got := TruncateField(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Len(t, got, 103)
}
