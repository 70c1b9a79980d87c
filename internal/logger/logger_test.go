package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetOutputSurvivesInit(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		Init(false)
		mu.Lock()
		out, errOut = os.Stdout, os.Stderr
		mu.Unlock()
		setup()
	})

	Init(false)
	Info("hello %d", 1)
	Debug("hidden")
	ToolWarn("column %s missing", "x")
	assert.Contains(t, buf.String(), "hello 1")
	assert.Contains(t, buf.String(), "[TOOL] column x missing")
	assert.NotContains(t, buf.String(), "hidden")

	Init(true)
	StoreDebug("shown")
	assert.Contains(t, buf.String(), "[STORE] shown")
	assert.True(t, IsDebugEnabled())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"debug", true},
		{" DEBUG ", true},
		{"info", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}
