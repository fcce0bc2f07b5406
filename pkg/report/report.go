package report

import (
	"time"

	"shotprobe/pkg/models"
)

// Report is the end-of-run summary
type Report struct {
	RunID       string
	Checks      int
	Workers     int
	Analyze     bool
	StartedAt   time.Time
	FinishedAt  time.Time
	Interrupted bool
	Error       string
	Stats       models.Stats
	Findings    []Row
}

// Row is one downloaded screenshot in the findings table
type Row struct {
	models.Finding
	Width  int
	Height int
	Format string
}

// Duration is the wall time of the run
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Status is a one-word outcome for the run info table
func (r *Report) Status() string {
	switch {
	case r.Interrupted:
		return "⚠️ Interrupted (partial results)"
	case r.Error != "":
		return "❌ Error - " + r.Error
	default:
		return "✅ Complete"
	}
}
