package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"DEBUG", zapcore.DebugLevel},
		{"trace", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"ERROR", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"nonsense", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLogLevel(tt.in))
		})
	}
}

func TestEnsureLogPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "nvdoctor.log")

	require.NoError(t, EnsureLogPermissions(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// second call leaves the file in place
	require.NoError(t, EnsureLogPermissions(path))
}

func TestGetLogFileWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nvdoctor.log")

	w, err := GetLogFileWriter(path)
	require.NoError(t, err)
	_, err = w.Write([]byte("hello\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestLInitialisesFallback(t *testing.T) {
	SetLogger(nil)
	l := L()
	require.NotNil(t, l)
	assert.Same(t, l, GetLogger())
}

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { SetLevel("info") })

	InitFallback()

	SetLevel("debug")
	assert.Equal(t, zapcore.DebugLevel, Level())
	assert.True(t, L().Core().Enabled(zapcore.DebugLevel))

	SetLevel("error")
	assert.Equal(t, zapcore.ErrorLevel, Level())
	assert.False(t, L().Core().Enabled(zapcore.WarnLevel))
}
