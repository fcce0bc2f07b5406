package tui

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"shotprobe/pkg/models"
)

func downloaded(code, caption string) models.Event {
	e := models.Event{
		Code:      code,
		State:     models.StateAnalyzed,
		File:      "downloads/" + code + ".jpg",
		Bytes:     4096,
		StartedAt: time.Now(),
		Analysis:  &models.Analysis{Caption: caption},
	}
	return e
}

func keyMsg(s string) tea.KeyMsg {
	if s == "ctrl+c" {
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func isQuit(t *testing.T, cmd tea.Cmd) bool {
	t.Helper()
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestModelRecordEvent(t *testing.T) {
	m := NewModel(100, 4, models.Stats{})

	m.RecordEvent(models.Event{Code: "missmissmis", State: models.StateMissed})
	m.RecordEvent(downloaded("goodgoodgoo", "A map of a city"))
	m.RecordEvent(models.Event{Code: "failfailfai", State: models.StateDownloadFailed, Err: errors.New("reset")})

	s := m.Stats()
	assert.Equal(t, 3, s.Attempts)
	assert.Equal(t, 2, s.Hits)
	assert.Equal(t, 1, s.SuccessfulDownloads)
	assert.InDelta(t, 0.03, m.Progress(), 1e-9)

	require.Len(t, m.RecentFindings(), 1)
	assert.Equal(t, "A map of a city", m.RecentFindings()[0].Caption)

	require.Len(t, m.logMessages, 2)
	assert.Equal(t, "SUCCESS", m.logMessages[0].Level)
	assert.Equal(t, "ERROR", m.logMessages[1].Level)
	assert.Contains(t, m.logMessages[1].Message, "reset")
}

func TestModelKeepsRecentFindings(t *testing.T) {
	m := NewModel(100, 1, models.Stats{})
	for i := 0; i < maxRecentFindings+3; i++ {
		m.RecordEvent(downloaded(fmt.Sprintf("code%07d", i), "x"))
	}

	findings := m.RecentFindings()
	require.Len(t, findings, maxRecentFindings)
	assert.Equal(t, "code0000003", findings[0].Code)
	assert.Equal(t, fmt.Sprintf("code%07d", maxRecentFindings+2), findings[len(findings)-1].Code)
}

func TestModelLogCap(t *testing.T) {
	m := NewModel(10, 1, models.Stats{})
	for i := 0; i < defaultMaxLogs+5; i++ {
		m.AddLogMessage("INFO", fmt.Sprintf("msg %d", i))
	}
	assert.Len(t, m.logMessages, defaultMaxLogs)
	assert.Equal(t, "msg 5", m.logMessages[0].Message)
}

func TestModelResumedProgress(t *testing.T) {
	m := NewModel(10, 1, models.Stats{Attempts: 10})
	assert.Equal(t, 1.0, m.Progress())
	assert.Zero(t, m.ETA())

	empty := NewModel(0, 1, models.Stats{})
	assert.Zero(t, empty.Progress())
}

func TestUpdateMessages(t *testing.T) {
	m := NewModel(5, 2, models.Stats{})

	m.Update(EventMsg{Event: downloaded("goodgoodgoo", "terminal")})
	m.Update(LogMsg{Level: "INFO", Message: "Model ready"})
	assert.Equal(t, 1, m.Stats().SuccessfulDownloads)
	assert.Equal(t, "Model ready", m.logMessages[len(m.logMessages)-1].Message)

	_, cmd := m.Update(TickMsg(time.Now()))
	assert.NotNil(t, cmd, "ticks continue while running")

	m.Update(FinishMsg{Stats: models.Stats{Attempts: 5}})
	assert.True(t, m.finished)
	_, cmd = m.Update(TickMsg(time.Now()))
	assert.Nil(t, cmd, "ticks stop after the run")
}

func TestStopKeyDrainsThenQuits(t *testing.T) {
	m := NewModel(5, 2, models.Stats{})
	stops := 0
	m.onStop = func() { stops++ }

	_, cmd := m.Update(keyMsg("q"))
	assert.False(t, isQuit(t, cmd))
	assert.Equal(t, 1, stops)
	assert.True(t, m.stopping)

	_, cmd = m.Update(keyMsg("ctrl+c"))
	assert.True(t, isQuit(t, cmd))
	assert.Equal(t, 1, stops, "second press does not stop again")
}

func TestQuitAfterFinish(t *testing.T) {
	m := NewModel(5, 2, models.Stats{})
	m.onStop = func() { t.Fatal("run already finished") }
	m.Update(FinishMsg{Stats: models.Stats{Attempts: 5}})

	_, cmd := m.Update(keyMsg("q"))
	assert.True(t, isQuit(t, cmd))
}

func TestHelpAndClear(t *testing.T) {
	m := NewModel(5, 2, models.Stats{})
	m.AddLogMessage("INFO", "hello")

	m.Update(keyMsg("?"))
	assert.True(t, m.showHelp)
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	assert.Empty(t, m.logMessages)
}

func TestView(t *testing.T) {
	m := NewModel(20, 3, models.Stats{})
	assert.Equal(t, "Initializing...", m.View())

	m.Update(tea.WindowSizeMsg{Width: 140, Height: 50})
	m.Update(EventMsg{Event: downloaded("goodgoodgoo", "A spreadsheet with totals")})
	m.Update(EventMsg{Event: models.Event{Code: "missmissmis", State: models.StateMissed, MissReason: models.MissTransient}})

	view := m.View()
	assert.Contains(t, view, "RUN STATS")
	assert.Contains(t, view, "RECENT FINDINGS")
	assert.Contains(t, view, "goodgoodgoo")
	assert.Contains(t, view, "A spreadsheet with totals")
	assert.Contains(t, view, "2 / 20 attempts")
	assert.Contains(t, view, "1 network errors")

	m.Update(FinishMsg{Stats: m.Stats(), Err: errors.New("interrupted")})
	assert.Contains(t, m.View(), "interrupted")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:45", formatDuration(45*time.Second))
	assert.Equal(t, "02:05", formatDuration(125*time.Second))
	assert.Equal(t, "01:00:01", formatDuration(time.Hour+time.Second))
	assert.Equal(t, "00:00", formatDuration(-time.Second))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmn", 10))
	assert.True(t, strings.HasSuffix(truncate("line one\nline two and more", 12), "..."))
}
