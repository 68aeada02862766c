package flashvfs

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(buf *bytes.Buffer) *Logger {
	return NewLogger(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestLogger_HumanReadableErrors(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
	}{
		{"disabled", false},
		{"enabled", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			_, v := newTestVolume(t, VolumeConfig{},
				WithLogger(newBufferLogger(&buf)),
				WithHumanReadableErrors(tt.enabled),
			)
			require.NoError(t, v.Mkdir("/d", 0))

			_, err := v.Open("/d", os.O_RDONLY, 0)
			require.ErrorIs(t, err, ErrIsDirectory)

			out := buf.String()
			assert.Contains(t, out, `"msg":"open failed"`)
			assert.Contains(t, out, `"volume":"data"`)
			if tt.enabled {
				assert.Contains(t, out, `"errno":"ERR_ISDIR"`)
			} else {
				assert.NotContains(t, out, "ERR_ISDIR")
			}
		})
	}
}

func TestLogger_MissingFileIsDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	_, v := newTestVolume(t, VolumeConfig{}, WithLogger(logger))

	_, err := v.Open("/missing", os.O_RDONLY, 0)
	require.ErrorIs(t, err, os.ErrNotExist)
	assert.NotContains(t, buf.String(), "/missing")
}

func TestLogger_MountFormatsBlankPartition(t *testing.T) {
	var buf bytes.Buffer
	newTestVolume(t, VolumeConfig{}, WithLogger(newBufferLogger(&buf)))

	out := buf.String()
	assert.Contains(t, out, `"msg":"mount failed, formatting"`)
	assert.Contains(t, out, `"msg":"volume mounted"`)
}

func TestNoopLogger(t *testing.T) {
	l := NoopLogger()
	l.LogIOError(t.Context(), "read", 3, ErrIO)
	l.WithVolume("x").LogMount(t.Context(), 1, nil)
}

func TestLogger_VolumeAttributeOnce(t *testing.T) {
	var buf bytes.Buffer
	newTestVolume(t, VolumeConfig{}, WithLogger(newBufferLogger(&buf)))

	var line string
	for _, l := range strings.Split(buf.String(), "\n") {
		if strings.Contains(l, `"msg":"volume mounted"`) {
			line = l
		}
	}
	require.NotEmpty(t, line)
	assert.Equal(t, 1, strings.Count(line, `"volume":"data"`))
}
