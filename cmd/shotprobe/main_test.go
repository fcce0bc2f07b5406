package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsKnownCommand(t *testing.T) {
	for _, name := range []string{"run", "model", "config", "version"} {
		assert.True(t, isKnownCommand(name), name)
	}
	assert.False(t, isKnownCommand("500"))
}

func TestModelProgressFinishesLine(t *testing.T) {
	var buf bytes.Buffer
	progress := modelProgress(&buf)

	progress(1<<20, 4<<20)
	progress(2<<20, 4<<20) // throttled
	progress(4<<20, 4<<20)

	out := buf.String()
	assert.Contains(t, out, "1.0 MB / 4.2 MB (25%)")
	assert.NotContains(t, out, "(50%)")
	assert.Contains(t, out, "(100%)")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestModelProgressUnknownTotal(t *testing.T) {
	var buf bytes.Buffer
	modelProgress(&buf)(2048, -1)
	assert.Contains(t, buf.String(), "Downloading model: 2.0 kB")
}

func TestFinishPassesErrors(t *testing.T) {
	assert.NoError(t, finish(nil))
	boom := errors.New("boom")
	assert.Equal(t, boom, finish(boom))
}
