package report

import (
	"bytes"
	"time"

	"shotprobe/pkg/logger"
	"shotprobe/pkg/models"
	"shotprobe/pkg/storage"
)

// Collector gathers findings while the prober runs and writes the report
// when it finishes
type Collector struct {
	path   string
	report *Report
	logger logger.Logger
	now    func() time.Time
}

// NewCollector creates a collector writing to path. r carries the run
// parameters; its stats and findings are filled in as events arrive.
func NewCollector(path string, r *Report, log logger.Logger) *Collector {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Collector{path: path, report: r, logger: log, now: time.Now}
}

// OnEvent keeps every attempt that left an image on disk
func (c *Collector) OnEvent(e models.Event) {
	if !e.State.Downloaded() {
		return
	}
	row := Row{Finding: e.Finding()}
	if e.Analysis != nil {
		row.Width = e.Analysis.Width
		row.Height = e.Analysis.Height
		row.Format = e.Analysis.Format
	}
	c.report.Findings = append(c.report.Findings, row)
}

// OnFinish writes the report file
func (c *Collector) OnFinish(stats models.Stats, runErr error) {
	c.report.Stats = stats
	c.report.StartedAt = stats.StartedAt
	c.report.FinishedAt = c.now()
	c.report.Interrupted = runErr != nil

	if err := c.WriteFile(); err != nil {
		c.logger.WithError(err).Error("Failed to write report")
		return
	}
	c.logger.InfoWithFields("Report written", map[string]interface{}{
		"path":     c.path,
		"findings": len(c.report.Findings),
	})
}

// WriteFile renders the current report to the collector's path
func (c *Collector) WriteFile() error {
	var buf bytes.Buffer
	if err := NewMarkdownWriter(&buf).Write(c.report); err != nil {
		return err
	}
	_, err := storage.WriteAtomic(c.path, &buf)
	return err
}

// Report returns the collected report
func (c *Collector) Report() *Report {
	return c.report
}

// Path is the report file location
func (c *Collector) Path() string {
	return c.path
}
