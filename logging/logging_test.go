package logging

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"verbose", InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultLoggerRoutesByLevel(t *testing.T) {
	var out, errOut bytes.Buffer
	l := NewWriterLogger(&out, &errOut, false)

	l.Debug("hidden")
	l.Info("started", Fields{"component": "preprocess"})
	l.Warn("rounded")
	l.Error(errors.New("boom"), "failed")

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "[INFO] started component=preprocess")
	assert.Contains(t, errOut.String(), "[WARN] rounded")
	assert.Contains(t, errOut.String(), "[ERROR] failed: boom")
}

func TestWithFieldsSharesLevel(t *testing.T) {
	var out bytes.Buffer
	parent := NewWriterLogger(&out, &out, false)
	child := parent.WithFields(Fields{"component": "matcher"})

	parent.SetLevel(DebugLevel)
	child.Debug("pair", Fields{"i": 1, "j": 2})

	assert.Contains(t, out.String(), "[DEBUG] pair component=matcher i=1 j=2")
}

func TestWithContextFields(t *testing.T) {
	var out bytes.Buffer
	l := NewWriterLogger(&out, &out, false)

	ctx := ContextWithFields(context.Background(), Fields{"run": "abc"})
	ctx = ContextWithFields(ctx, Fields{"stage": "clustering"})
	l.WithContext(ctx).Info("done")

	assert.Contains(t, out.String(), "run=abc stage=clustering")
}

func TestSetGlobalLoggerNil(t *testing.T) {
	prev := GetGlobalLogger()
	t.Cleanup(func() { SetGlobalLogger(prev) })

	SetGlobalLogger(nil)
	_, ok := GetGlobalLogger().(*NoOpLogger)
	assert.True(t, ok)
}
