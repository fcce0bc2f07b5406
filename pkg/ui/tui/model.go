package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"shotprobe/pkg/models"
)

const (
	maxRecentFindings = 8
	defaultMaxLogs    = 50
)

// Model is the bubbletea model of a probe run. It is only mutated from
// Update, on the program's goroutine.
type Model struct {
	// UI components
	spinner  spinner.Model
	progress progress.Model

	// Run state
	checks   int
	workers  int
	stats    models.Stats
	resumed  int
	findings []models.Finding
	lastCode string
	finished bool
	stopping bool
	runErr   error

	sessionStartTime time.Time

	// UI state
	width          int
	height         int
	showHelp       bool
	logMessages    []LogMessage
	maxLogMessages int

	// onStop is called once when the user asks to stop the run
	onStop func()
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// NewModel creates a model for a run of checks attempts. initial carries the
// counters of a resumed run.
func NewModel(checks, workers int, initial models.Stats) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(cyan)

	p := progress.New(progress.WithDefaultGradient())
	p.Width = 40

	return Model{
		spinner:          s,
		progress:         p,
		checks:           checks,
		workers:          workers,
		stats:            initial,
		resumed:          initial.Attempts,
		sessionStartTime: time.Now(),
		maxLogMessages:   defaultMaxLogs,
	}
}

// Init starts the spinner and the refresh tick
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// RecordEvent folds a finished attempt into the model
func (m *Model) RecordEvent(e models.Event) {
	m.stats.Record(e)
	m.lastCode = e.Code

	switch {
	case e.State.Downloaded():
		m.findings = append(m.findings, e.Finding())
		if len(m.findings) > maxRecentFindings {
			m.findings = m.findings[len(m.findings)-maxRecentFindings:]
		}
		m.AddLogMessage("SUCCESS", "Downloaded "+e.Code)
		if e.State == models.StateAnalysisFailed && e.Err != nil {
			m.AddLogMessage("WARN", "Analysis failed for "+e.Code+": "+e.Err.Error())
		}
	case e.State == models.StateDownloadFailed:
		msg := "Download failed for " + e.Code
		if e.Err != nil {
			msg += ": " + e.Err.Error()
		}
		m.AddLogMessage("ERROR", msg)
	}
}

// Finish marks the run as over
func (m *Model) Finish(stats models.Stats, runErr error) {
	m.stats = stats
	m.finished = true
	m.runErr = runErr
	if runErr != nil {
		m.AddLogMessage("WARN", "Run interrupted: "+runErr.Error())
		return
	}
	m.AddLogMessage("SUCCESS", "Run complete")
}

// AddLogMessage adds a log message
func (m *Model) AddLogMessage(level, message string) {
	color := muted
	switch level {
	case "ERROR":
		color = red
	case "WARN":
		color = orange
	case "SUCCESS":
		color = green
	case "INFO":
		color = cyan
	}

	m.logMessages = append(m.logMessages, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Color:   color,
	})

	// Keep only the last N messages
	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// Stats returns the counters seen so far
func (m *Model) Stats() models.Stats {
	return m.stats
}

// RecentFindings returns the latest downloads, oldest first
func (m *Model) RecentFindings() []models.Finding {
	return m.findings
}

// Progress is the fraction of the attempt budget used
func (m *Model) Progress() float64 {
	if m.checks <= 0 {
		return 0
	}
	p := float64(m.stats.Attempts) / float64(m.checks)
	if p > 1 {
		return 1
	}
	return p
}

// Rate is attempts per minute in this session
func (m *Model) Rate() float64 {
	elapsed := time.Since(m.sessionStartTime).Minutes()
	if elapsed <= 0 {
		return 0
	}
	return float64(m.stats.Attempts-m.resumed) / elapsed
}

// ETA estimates the time until the attempt budget is used up
func (m *Model) ETA() time.Duration {
	done := m.stats.Attempts - m.resumed
	if done <= 0 {
		return 0
	}
	perAttempt := time.Since(m.sessionStartTime) / time.Duration(done)
	return perAttempt * time.Duration(m.stats.Remaining(m.checks))
}
