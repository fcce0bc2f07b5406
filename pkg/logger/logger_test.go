package logger

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"shotprobe/pkg/config"
)

func newBufferLogger(buf *bytes.Buffer) *zerologLogger {
	zlog := zerolog.New(buf).Level(zerolog.DebugLevel)
	return &zerologLogger{logger: &zlog, fields: map[string]interface{}{}}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{"console info", &config.LoggingConfig{Level: "info", Format: "console"}, false},
		{"json debug", &config.LoggingConfig{Level: "debug", Format: "json"}, false},
		{"invalid level", &config.LoggingConfig{Level: "invalid"}, true},
		{"file output", &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "run.log")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestNewWithOutputDiscardWritesOnlyToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	l, err := NewWithOutput(&config.LoggingConfig{Level: "info", Format: "console", File: path}, io.Discard)
	require.NoError(t, err)

	l.Info("quiet terminal")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "quiet terminal")
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseLogLevel() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if level != tt.expected {
				t.Errorf("parseLogLevel() = %v, want %v", level, tt.expected)
			}
		})
	}
}

func TestFieldChaining(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	l.WithField("code", "abc123XYZ00").
		WithFields(map[string]interface{}{"attempt": 4, "hit": true}).
		Info("chained fields")

	out := buf.String()
	assert.Contains(t, out, "chained fields")
	assert.Contains(t, out, `"code":"abc123XYZ00"`)
	assert.Contains(t, out, `"attempt":4`)
	assert.Contains(t, out, `"hit":true`)
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	_ = l.WithField("child", "yes")
	l.Info("parent")

	assert.NotContains(t, buf.String(), "child")
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	assert.Same(t, l, l.WithError(nil))

	l.WithError(errors.New("boom")).Error("failed")
	assert.Contains(t, buf.String(), "boom")
}

func TestFieldTypes(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	l.InfoWithFields("types", map[string]interface{}{
		"duration": 1500 * time.Millisecond,
		"bytes":    int64(2048),
		"err":      errors.New("nested"),
		"tags":     []string{"a", "b"},
	})

	out := buf.String()
	assert.Contains(t, out, `"bytes":2048`)
	assert.Contains(t, out, `"err":"nested"`)
	assert.True(t, strings.Contains(out, `"tags":["a","b"]`))
}

func TestHelpers(t *testing.T) {
	tl := NewTestLogger()

	LogAttempt(tl, 3, "abcdefghijk", "missed", nil)
	LogAttempt(tl, 4, "bcdefghijkl", "download_failed", errors.New("reset"))
	LogRequest(tl, "GET", "https://prnt.sc/x", 503, time.Second)
	LogComponentStart(tl, "prober", map[string]interface{}{"workers": 8})

	assert.True(t, tl.HasMessage("Attempt finished"))
	warns := tl.GetMessagesByLevel("WARN")
	require.Len(t, warns, 2)
	assert.EqualError(t, warns[0].Error, "reset")
	assert.Equal(t, "bcdefghijkl", warns[0].Fields["code"])
	assert.Equal(t, 503, warns[1].Fields["status_code"])

	assert.Equal(t, "50.0%", Percent(5, 10))
	assert.Equal(t, "0.0%", Percent(1, 0))
}

func TestTestLoggerSharesCapture(t *testing.T) {
	tl := NewTestLogger()
	child := tl.WithField("component", "fetcher")
	child.Warn("slow")

	msgs := tl.GetMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "fetcher", msgs[0].Fields["component"])

	tl.Clear()
	assert.Empty(t, tl.GetMessages())
}

func TestGlobalLogger(t *testing.T) {
	tl := NewTestLogger()
	SetLogger(tl)
	t.Cleanup(func() { SetLogger(NewNopLogger()) })

	Info("from global")
	WithField("k", "v").Warn("with field")

	assert.Same(t, tl, GetLogger())
	assert.True(t, tl.HasMessage("from global"))
	assert.True(t, tl.HasMessage("with field"))
}
