package report

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"shotprobe/pkg/models"
)

func sampleReport() *Report {
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	return &Report{
		RunID:      "3f0c9a5e-run",
		Checks:     100,
		Workers:    4,
		Analyze:    true,
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
		Stats: models.Stats{
			Attempts:            100,
			Hits:                12,
			SuccessfulDownloads: 11,
			DownloadFailures:    1,
			Analyzed:            10,
			AnalysisFailures:    1,
			Misses:              88,
			TransientMisses:     3,
			BytesDownloaded:     3 * 1000 * 1000,
		},
		Findings: []Row{{
			Finding: models.Finding{
				Code:    "abcDEF12345",
				PageURL: "https://prnt.sc/abcDEF12345",
				File:    "downloads/abcDEF12345.jpg",
				Bytes:   250000,
				Caption: "A terminal | with logs\nand more",
				Answer:  "A terminal session",
			},
			Width: 1920, Height: 1080, Format: "png",
		}},
	}
}

func TestMarkdownWriter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewMarkdownWriter(&buf).Write(sampleReport()))
	out := buf.String()

	assert.Contains(t, out, "# Screenshot Probe Report")
	assert.Contains(t, out, "3f0c9a5e-run")
	assert.Contains(t, out, "1m30s")
	assert.Contains(t, out, "100 / 100")
	assert.Contains(t, out, "## Outcomes")
	assert.Contains(t, out, "3.0 MB")
	assert.Contains(t, out, "12.00%")
	assert.Contains(t, out, "mermaid")
	assert.Contains(t, out, "[abcDEF12345](https://prnt.sc/abcDEF12345)")
	assert.Contains(t, out, "1920x1080 (16:9)")
	assert.Contains(t, out, "with logs and more")
	assert.Contains(t, out, "A terminal session")
	assert.Contains(t, out, "✅ Complete")
}

func TestMarkdownWriterEmptyAndInterrupted(t *testing.T) {
	r := &Report{RunID: "r", Checks: 10, Interrupted: true, Stats: models.Stats{Attempts: 4, Misses: 4}}

	var buf bytes.Buffer
	require.NoError(t, NewMarkdownWriter(&buf).Write(r))
	out := buf.String()

	assert.Contains(t, out, "Interrupted")
	assert.Contains(t, out, "--resume")
	assert.Contains(t, out, "No screenshots were downloaded.")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "a b", truncate("a\n\tb", 10))
	assert.Equal(t, "äöü...", truncate("äöüäöüäöü", 6))
}

func TestCollector(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "run.md")
	c := NewCollector(path, &Report{RunID: "run-7", Checks: 3, Workers: 1, Analyze: true}, nil)

	now := time.Now()
	c.OnEvent(models.Event{Code: "missmissmis", State: models.StateMissed, StartedAt: now})
	c.OnEvent(models.Event{Code: "failfailfai", State: models.StateDownloadFailed, StartedAt: now})
	c.OnEvent(models.Event{
		Code:      "goodgoodgoo",
		State:     models.StateAnalyzed,
		PageURL:   "https://prnt.sc/goodgoodgoo",
		File:      "downloads/goodgoodgoo.jpg",
		Bytes:     1024,
		StartedAt: now,
		Analysis:  &models.Analysis{Caption: "a spreadsheet", Width: 800, Height: 600, Format: "jpeg"},
	})
	require.Len(t, c.Report().Findings, 1)
	assert.Equal(t, 800, c.Report().Findings[0].Width)

	c.OnFinish(models.Stats{Attempts: 3, Hits: 2, SuccessfulDownloads: 1, StartedAt: now}, errors.New("interrupted"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "goodgoodgoo")
	assert.Contains(t, out, "a spreadsheet")
	assert.Contains(t, out, "800x600 (4:3)")
	assert.True(t, c.Report().Interrupted)
}
