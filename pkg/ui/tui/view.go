package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

const logo = `┏━┓╻ ╻┏━┓╺┳╸┏━┓┏━┓┏━┓┏┓ ┏━╸
┗━┓┣━┫┃ ┃ ┃ ┣━┛┣┳┛┃ ┃┣┻┓┣╸
┗━┛╹ ╹┗━┛ ╹ ╹  ╹┗╸┗━┛┗━┛┗━╸`

// View renders the entire TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, logoStyle.Width(m.width).Render(logo))
	sections = append(sections, m.renderProgressPanel(m.width-2))

	width := (m.width - 4) / 2
	left := lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatsPanel(width),
		m.renderFindingsPanel(width),
	)
	right := m.renderLogsPanel(width)
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right))

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, hintStyle.Render("q stop • ? help"))
	}

	return screenStyle.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

// renderProgressPanel renders the attempt budget bar
func (m *Model) renderProgressPanel(width int) string {
	status := m.spinner.View() + " probing"
	switch {
	case m.finished && m.runErr != nil:
		status = alertStyle.Render("⚠ interrupted - press q to exit")
	case m.finished:
		status = doneStyle.Render("✓ complete - press q to exit")
	case m.stopping:
		status = alertStyle.Render(m.spinner.View() + " draining in-flight attempts")
	}

	counts := fmt.Sprintf("%s / %s attempts",
		humanize.Comma(int64(m.stats.Attempts)), humanize.Comma(int64(m.checks)))
	line := lipgloss.JoinHorizontal(lipgloss.Center,
		m.progress.ViewAs(m.Progress()), "  ", valueStyle.Render(counts))

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, status, line),
	)
}

// renderStatsPanel renders the counters
func (m *Model) renderStatsPanel(width int) string {
	title := panelTitleStyle.Render(" RUN STATS ")
	s := m.stats

	row := func(label, value string) string {
		return fmt.Sprintf("%s %s", labelStyle.Render(label), valueStyle.Render(value))
	}
	stats := []string{
		row("Session Time:", formatDuration(time.Since(m.sessionStartTime))),
		row("Workers:", fmt.Sprintf("%d", m.workers)),
		row("Hits:", fmt.Sprintf("%d (%.2f%%)", s.Hits, s.HitRate()*100)),
		row("Saved:", fmt.Sprintf("%d files, %s", s.SuccessfulDownloads, humanize.Bytes(uint64(s.BytesDownloaded)))),
		row("Captioned:", fmt.Sprintf("%d", s.Analyzed)),
		row("Rate:", fmt.Sprintf("%.1f codes/min", m.Rate())),
		row("ETA:", formatDuration(m.ETA())),
	}
	if s.TransientMisses > 0 {
		stats = append(stats, alertStyle.Render(fmt.Sprintf("⚠ %d network errors", s.TransientMisses)))
	}
	if s.DownloadFailures > 0 || s.AnalysisFailures > 0 {
		stats = append(stats, failStyle.Render(fmt.Sprintf("✗ %d download / %d analysis failures", s.DownloadFailures, s.AnalysisFailures)))
	}
	if m.lastCode != "" {
		stats = append(stats, lastCodeStyle.Render("last code "+m.lastCode))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, stats...)),
	)
}

// renderFindingsPanel renders the most recent downloads with captions
func (m *Model) renderFindingsPanel(width int) string {
	title := panelTitleStyle.Render(" RECENT FINDINGS ")

	if len(m.findings) == 0 {
		content := mutedStyle.Render("Nothing found yet")
		return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
	}

	var items []string
	for i := len(m.findings) - 1; i >= 0; i-- {
		f := m.findings[i]
		items = append(items, findingCodeStyle.Render("✓ "+f.Code)+" "+
			mutedStyle.Render(humanize.Bytes(uint64(f.Bytes))))
		switch {
		case f.Caption != "":
			items = append(items, captionStyle.Render(truncate(f.Caption, width-8)))
		case f.AnalysisError != "":
			items = append(items, analysisFailedStyle.Render("analysis failed"))
		}
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, items...)),
	)
}

// renderLogsPanel renders the logs panel
func (m *Model) renderLogsPanel(width int) string {
	title := panelTitleStyle.Render(" LOG ")

	start := len(m.logMessages) - 12
	if start < 0 {
		start = 0
	}

	var logs []string
	for _, log := range m.logMessages[start:] {
		timestamp := logTimeStyle.Render(log.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(log.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", log.Level))
		message := logTextStyle.Render(truncate(log.Message, width-25))
		logs = append(logs, fmt.Sprintf("%s %s %s", timestamp, level, message))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = mutedStyle.Render("No logs yet...")
	}

	logsHeight := m.height - 16
	if logsHeight < 5 {
		logsHeight = 5
	}

	return panelStyle.Width(width).Height(logsHeight).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

// renderHelp renders the help panel
func (m *Model) renderHelp() string {
	help := `
  Keys:
    q/Q      - Stop the run (press again to exit)
    ctrl+l   - Clear the log
    ?        - Toggle this help

  Status Indicators:
    ` + doneStyle.Render("Green") + `    - Downloaded
    ` + alertStyle.Render("Orange") + `   - Network error / analysis failed
    ` + failStyle.Render("Red") + `      - Download failed
`
	return panelStyle.Width(m.width - 2).Render(help)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "00:00"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if max < 4 || len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
