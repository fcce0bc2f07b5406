package metadata

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"shotprobe/pkg/models"
)

// tiffWithSoftware is a little-endian TIFF block whose IFD0 holds a single
// Software tag, wrapped in a JPEG APP1 segment
func tiffWithSoftware() []byte {
	var b bytes.Buffer
	b.Write([]byte{0xFF, 0xD8, 0xFF, 0xE1, 0x00, 0x2C})
	b.WriteString("Exif\x00\x00")
	b.Write([]byte{'I', 'I', 0x2A, 0x00, 0x08, 0x00, 0x00, 0x00})
	b.Write([]byte{0x01, 0x00})
	b.Write([]byte{0x31, 0x01, 0x02, 0x00, 0x0A, 0x00, 0x00, 0x00, 0x1A, 0x00, 0x00, 0x00})
	b.Write([]byte{0x00, 0x00, 0x00, 0x00})
	b.WriteString("shotprobe\x00")
	b.Write([]byte{0xFF, 0xD9})
	return b.Bytes()
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 3))))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func analyzedEvent(file string) models.Event {
	return models.Event{
		RunID:     "run-1",
		Code:      "abcDEF12345",
		PageURL:   "https://prnt.sc/abcDEF12345",
		ImageURL:  "https://image.prntscr.com/image/abc.png",
		File:      file,
		Bytes:     2048,
		State:     models.StateAnalyzed,
		StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:  time.Second,
		Analysis: &models.Analysis{
			Caption:  "A code editor with Go source",
			Answer:   "Source code",
			Question: "What's in this image?",
			Width:    1920,
			Height:   1080,
			Format:   "png",
		},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatJSON, "JSON": FormatJSON, "yaml": FormatYAML, "yml": FormatYAML} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestFromEvent(t *testing.T) {
	meta := FromEvent(analyzedEvent("d/abcDEF12345.jpg"), "moondream-2b")

	assert.Equal(t, "abcDEF12345", meta.Code)
	assert.Equal(t, int64(2048), meta.FileSize)
	assert.Equal(t, 1920, meta.Width)
	assert.Equal(t, "png", meta.Format)
	assert.Equal(t, "moondream-2b", meta.ModelVariant)
	assert.Equal(t, "16:9", meta.AspectRatio)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC), meta.DownloadedAt)

	e := analyzedEvent("d/x.jpg")
	e.State = models.StateAnalysisFailed
	e.Analysis = nil
	e.Err = errors.New("inference unavailable")
	meta = FromEvent(e, "moondream-2b")
	assert.Equal(t, "inference unavailable", meta.AnalysisError)
	assert.Empty(t, meta.ModelVariant)
	assert.Empty(t, meta.AspectRatio, "no dimensions without analysis")
}

func TestAspectRatio(t *testing.T) {
	assert.Equal(t, "16:9", AspectRatio(1920, 1080))
	assert.Equal(t, "4:3", AspectRatio(1024, 768))
	assert.Equal(t, "1:1", AspectRatio(500, 500))
	assert.Equal(t, "2.50:1", AspectRatio(250, 100))
	assert.Equal(t, "unknown", AspectRatio(10, 0))
}

func TestSaveAndLoad(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			img := filepath.Join(t.TempDir(), "abcDEF12345.jpg")
			meta := FromEvent(analyzedEvent(img), "moondream-0.5b")
			meta.EXIF = map[string]string{"Software": "shotprobe"}

			require.NoError(t, meta.Save(img, format))
			assert.FileExists(t, img+"."+string(format))
			assert.True(t, Exists(img))

			loaded, err := Load(img)
			require.NoError(t, err)
			assert.Equal(t, meta.Caption, loaded.Caption)
			assert.Equal(t, meta.Answer, loaded.Answer)
			assert.Equal(t, meta.Height, loaded.Height)
			assert.Equal(t, "16:9", loaded.AspectRatio)
			assert.Equal(t, "shotprobe", loaded.EXIF["Software"])
			assert.True(t, meta.DownloadedAt.Equal(loaded.DownloadedAt))
		})
	}
}

func TestLoadMissing(t *testing.T) {
	img := filepath.Join(t.TempDir(), "none.jpg")
	_, err := Load(img)
	assert.Error(t, err)
	assert.False(t, Exists(img))
}

func TestCleanOrphaned(t *testing.T) {
	dir := t.TempDir()
	kept := filepath.Join(dir, "kept0000000.jpg")
	writePNG(t, kept)
	require.NoError(t, FromEvent(analyzedEvent(kept), "").Save(kept, FormatJSON))

	gone := filepath.Join(dir, "gone0000000.jpg")
	require.NoError(t, FromEvent(analyzedEvent(gone), "").Save(gone, FormatYAML))
	unrelated := filepath.Join(dir, "report.json")
	require.NoError(t, os.WriteFile(unrelated, []byte("{}"), 0644))

	removed, err := CleanOrphaned(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.True(t, Exists(kept))
	assert.False(t, Exists(gone))
	assert.FileExists(t, unrelated)
}

func TestReadEXIF(t *testing.T) {
	dir := t.TempDir()

	plain := filepath.Join(dir, "plain.jpg")
	writePNG(t, plain)
	tags, err := ReadEXIF(plain)
	require.NoError(t, err)
	assert.Nil(t, tags)

	tagged := filepath.Join(dir, "tagged.jpg")
	require.NoError(t, os.WriteFile(tagged, tiffWithSoftware(), 0644))
	tags, err = ReadEXIF(tagged)
	require.NoError(t, err)
	assert.Equal(t, "shotprobe", tags["Software"])

	_, err = ReadEXIF(filepath.Join(dir, "missing.jpg"))
	assert.Error(t, err)
}

func TestWriter(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "abcDEF12345.jpg")
	writePNG(t, img)

	w := NewWriter(FormatJSON, "moondream-2b", nil)
	w.OnEvent(models.Event{State: models.StateMissed, Code: "zzzzzzzzzzz"})
	w.OnEvent(models.Event{State: models.StateDownloadFailed, Code: "yyyyyyyyyyy"})
	w.OnEvent(analyzedEvent(img))

	assert.Equal(t, 1, w.Written())
	meta, err := Load(img)
	require.NoError(t, err)
	assert.Equal(t, "A code editor with Go source", meta.Caption)
	assert.Empty(t, meta.EXIF)
}
