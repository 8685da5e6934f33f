package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/petermazzocco/go-image-host/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{" error ", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imagehost.log")

	log, err := New(config.LogConfig{Level: "info", JSON: true, File: path})
	require.NoError(t, err)

	log.Named("test").Info("hello")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"logger":"test"`)
}
