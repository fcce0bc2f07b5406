package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatsRecord(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	events := []Event{
		{State: StateMissed, MissReason: MissNotFound},
		{State: StateMissed, MissReason: MissTransient},
		{State: StateMissed, MissReason: MissPlaceholder},
		{State: StateDownloadFailed},
		{State: StateDownloaded, Bytes: 10},
		{State: StateAnalysisFailed, Bytes: 20},
		{State: StateAnalyzed, Bytes: 30, StartedAt: start, Duration: time.Second},
	}

	var s Stats
	for _, e := range events {
		s.Record(e)
	}

	assert.Equal(t, 7, s.Attempts)
	assert.Equal(t, 3, s.Misses)
	assert.Equal(t, 1, s.TransientMisses)
	assert.Equal(t, 1, s.PlaceholderMisses)
	assert.Equal(t, 4, s.Hits)
	assert.Equal(t, 1, s.DownloadFailures)
	assert.Equal(t, 3, s.SuccessfulDownloads, "analysis failure still counts as a download")
	assert.Equal(t, 1, s.AnalysisFailures)
	assert.Equal(t, 1, s.Analyzed)
	assert.Equal(t, int64(60), s.BytesDownloaded)
	assert.Equal(t, start.Add(time.Second), s.UpdatedAt)
	assert.InDelta(t, 4.0/7.0, s.HitRate(), 1e-9)
	assert.Equal(t, 3, s.Remaining(10))
	assert.Equal(t, 0, s.Remaining(5))
}

func TestEventFinding(t *testing.T) {
	e := Event{
		Code:     "abcDEF12345",
		State:    StateAnalysisFailed,
		ImageURL: "https://image.prntscr.com/image/x.png",
		File:     "downloads/abcDEF12345.jpg",
		Bytes:    512,
		Err:      errors.New("model timeout"),
	}

	f := e.Finding()
	assert.Equal(t, "abcDEF12345", f.Code)
	assert.Equal(t, "model timeout", f.AnalysisError)
	assert.Empty(t, f.Caption)

	e.State = StateAnalyzed
	e.Err = nil
	e.Analysis = &Analysis{Caption: "a terminal window", Answer: "code"}
	f = e.Finding()
	assert.Equal(t, "a terminal window", f.Caption)
	assert.Empty(t, f.AnalysisError)
}
