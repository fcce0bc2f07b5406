package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"shotprobe/pkg/models"
)

// Mode selects how much the console prints per attempt
type Mode int

const (
	// ModeProgress redraws a single progress line and prints downloads
	ModeProgress Mode = iota
	// ModeVerbose prints every step of every attempt
	ModeVerbose
	// ModeQuiet prints errors only
	ModeQuiet
)

const (
	barWidth       = 20
	redrawInterval = 100 * time.Millisecond
	captionWidth   = 60
)

// ConsoleObserver prints attempt outcomes and a running progress line
type ConsoleObserver struct {
	mu       sync.Mutex
	out      io.Writer
	mode     Mode
	checks   int
	stats    models.Stats
	resumed  int
	start    time.Time
	lastDraw time.Time
	drawn    bool
	now      func() time.Time
}

// NewConsoleObserver creates a console display for a run of checks attempts.
// initial carries the counters of a resumed run.
func NewConsoleObserver(out io.Writer, checks int, mode Mode, initial models.Stats) *ConsoleObserver {
	return &ConsoleObserver{
		out:     out,
		mode:    mode,
		checks:  checks,
		stats:   initial,
		resumed: initial.Attempts,
		start:   time.Now(),
		now:     time.Now,
	}
}

// OnEvent prints one finished attempt
func (c *ConsoleObserver) OnEvent(e models.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Record(e)
	switch c.mode {
	case ModeVerbose:
		c.printAttempt(e)
	case ModeProgress:
		if e.State.Downloaded() || e.State == models.StateDownloadFailed {
			c.clearLine()
			c.printFinding(e)
			c.drawProgress()
			return
		}
		if c.now().Sub(c.lastDraw) >= redrawInterval {
			c.drawProgress()
		}
	}
}

// printAttempt writes the full step-by-step account of an attempt
func (c *ConsoleObserver) printAttempt(e models.Event) {
	fmt.Fprintf(c.out, "%s %s %s\n", Dim(fmt.Sprintf("[%d/%d]", e.Attempt, c.checks)), Cyan("Trying code:"), e.Code)

	if e.State == models.StateMissed {
		reason := string(e.MissReason)
		if e.Err != nil {
			reason += ": " + e.Err.Error()
		}
		fmt.Fprintf(c.out, "  %s %s\n", Yellow("No valid image found"), Dim("("+reason+")"))
		return
	}

	fmt.Fprintf(c.out, "  %s %s\n", Cyan("Found image:"), e.ImageURL)
	if e.State == models.StateDownloadFailed {
		fmt.Fprintf(c.out, "  %s %v\n", Red("Download failed:"), e.Err)
		return
	}

	fmt.Fprintf(c.out, "  %s %s %s\n", Green("Downloaded as:"), e.File, Dim(humanize.Bytes(uint64(e.Bytes))))
	switch {
	case e.Analysis != nil:
		fmt.Fprintf(c.out, "  %s %s\n", Magenta("Caption:"), e.Analysis.Caption)
		fmt.Fprintf(c.out, "  %s %s\n", Magenta("Answer:"), e.Analysis.Answer)
	case e.State == models.StateAnalysisFailed:
		fmt.Fprintf(c.out, "  %s %v\n", Red("Analysis failed:"), e.Err)
	}
}

// printFinding writes the one-line form used in progress mode
func (c *ConsoleObserver) printFinding(e models.Event) {
	if e.State == models.StateDownloadFailed {
		fmt.Fprintf(c.out, "%s %s • %v\n", Red("✗"), e.Code, e.Err)
		return
	}

	line := fmt.Sprintf("%s %s • %s", Green("✓"), e.Code, humanize.Bytes(uint64(e.Bytes)))
	switch {
	case e.Analysis != nil && e.Analysis.Caption != "":
		line += " • " + Dim(shorten(e.Analysis.Caption, captionWidth))
	case e.State == models.StateAnalysisFailed:
		line += " • " + Yellow("analysis failed")
	}
	fmt.Fprintln(c.out, line)
}

// ProgressLine renders the current progress without printing it
func (c *ConsoleObserver) ProgressLine() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progressLine()
}

func (c *ConsoleObserver) progressLine() string {
	s := c.stats
	progress := 0.0
	if c.checks > 0 {
		progress = float64(s.Attempts) / float64(c.checks)
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(progress * barWidth)
	bar := strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)

	line := fmt.Sprintf("%s [%s] %s/%s • %d hits • %d saved • %.1f/min • %s • ETA %s",
		Cyan("probing"),
		bar,
		humanize.Comma(int64(s.Attempts)),
		humanize.Comma(int64(c.checks)),
		s.Hits,
		s.SuccessfulDownloads,
		c.rate(),
		humanize.Bytes(uint64(s.BytesDownloaded)),
		c.eta(),
	)
	if s.TransientMisses > 0 {
		line += " • " + Yellow(fmt.Sprintf("%d network errors", s.TransientMisses))
	}
	return line
}

func (c *ConsoleObserver) drawProgress() {
	c.lastDraw = c.now()
	c.drawn = true
	fmt.Fprintf(c.out, "\r%s", c.progressLine())
}

func (c *ConsoleObserver) clearLine() {
	if c.drawn {
		fmt.Fprintf(c.out, "\r%s\r", strings.Repeat(" ", 120))
		c.drawn = false
	}
}

// rate is attempts per minute for this session
func (c *ConsoleObserver) rate() float64 {
	elapsed := c.now().Sub(c.start).Minutes()
	if elapsed <= 0 {
		return 0
	}
	return float64(c.stats.Attempts-c.resumed) / elapsed
}

func (c *ConsoleObserver) eta() string {
	done := c.stats.Attempts - c.resumed
	if done <= 0 {
		return "calculating..."
	}
	perAttempt := c.now().Sub(c.start) / time.Duration(done)
	return formatDuration(perAttempt * time.Duration(c.stats.Remaining(c.checks)))
}

// OnFinish prints the run summary
func (c *ConsoleObserver) OnFinish(stats models.Stats, runErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats = stats
	if c.mode == ModeQuiet {
		if runErr != nil {
			fmt.Fprintln(c.out, Red(runErr.Error()))
		}
		return
	}
	if c.drawn {
		c.drawProgress()
		fmt.Fprintln(c.out)
	}

	elapsed := c.now().Sub(c.start)
	headline := fmt.Sprintf("%s Probed %s codes, saved %d screenshots", Green("✓"), humanize.Comma(int64(stats.Attempts)), stats.SuccessfulDownloads)
	if runErr != nil {
		headline = fmt.Sprintf("%s Stopped after %s of %s codes, saved %d screenshots", Yellow("⚠"),
			humanize.Comma(int64(stats.Attempts)), humanize.Comma(int64(c.checks)), stats.SuccessfulDownloads)
	}
	fmt.Fprintf(c.out, "\n%s\n", headline)

	fmt.Fprintf(c.out, "  %s %s in %s (%.1f codes/min)\n", Dim("•"),
		humanize.Bytes(uint64(stats.BytesDownloaded)), formatDuration(elapsed), c.rate())
	fmt.Fprintf(c.out, "  %s hit rate %.2f%% (%d hits, %d misses)\n", Dim("•"), stats.HitRate()*100, stats.Hits, stats.Misses)
	if stats.Analyzed > 0 || stats.AnalysisFailures > 0 {
		fmt.Fprintf(c.out, "  %s %d captioned, %d analysis failures\n", Dim("•"), stats.Analyzed, stats.AnalysisFailures)
	}
	if stats.DownloadFailures > 0 {
		fmt.Fprintf(c.out, "  %s %d downloads failed\n", Dim("•"), stats.DownloadFailures)
	}
	if stats.TransientMisses > 0 {
		fmt.Fprintf(c.out, "  %s %d attempts lost to network errors\n", Dim("•"), stats.TransientMisses)
	}
	if runErr != nil {
		fmt.Fprintf(c.out, "  Use: %s to continue where you left off\n", Green("--resume"))
	}
}

func (c *ConsoleObserver) logf(color func(string) string, always bool, format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == ModeQuiet && !always {
		return
	}
	c.clearLine()
	fmt.Fprintln(c.out, color(fmt.Sprintf(format, args...)))
}

func (c *ConsoleObserver) LogInfo(format string, args ...interface{}) {
	c.logf(Cyan, false, format, args...)
}

func (c *ConsoleObserver) LogSuccess(format string, args ...interface{}) {
	c.logf(Green, false, format, args...)
}

func (c *ConsoleObserver) LogWarning(format string, args ...interface{}) {
	c.logf(Yellow, false, format, args...)
}

func (c *ConsoleObserver) LogError(format string, args ...interface{}) {
	c.logf(Red, true, format, args...)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

func shorten(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
