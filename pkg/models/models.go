package models

import (
	"time"
)

// ResultKind tells whether a code resolved to a real screenshot
type ResultKind int

const (
	Miss ResultKind = iota
	Hit
)

func (k ResultKind) String() string {
	if k == Hit {
		return "hit"
	}
	return "miss"
}

// MissReason explains why a probe produced no image
type MissReason string

const (
	MissNone        MissReason = ""
	MissNotFound    MissReason = "not_found"    // non-2xx page
	MissNoImageTag  MissReason = "no_image_tag" // page without og:image
	MissPlaceholder MissReason = "placeholder"  // og:image points at the "removed" placeholder
	MissTransient   MissReason = "transient"    // timeout or network failure
)

// ProbeResult is the outcome of resolving one candidate code
type ProbeResult struct {
	Kind       ResultKind
	Code       string
	PageURL    string
	ImageURL   string
	Reason     MissReason
	StatusCode int
	Err        error
}

// IsHit reports whether the result carries an image URL
func (r ProbeResult) IsHit() bool {
	return r.Kind == Hit
}

// AttemptState is the terminal state of one attempt
type AttemptState string

const (
	StateMissed         AttemptState = "missed"
	StateDownloadFailed AttemptState = "download_failed"
	StateDownloaded     AttemptState = "downloaded" // analysis disabled
	StateAnalysisFailed AttemptState = "analysis_failed"
	StateAnalyzed       AttemptState = "analyzed"
)

// Downloaded reports whether the state implies the image is on disk
func (s AttemptState) Downloaded() bool {
	switch s {
	case StateDownloaded, StateAnalysisFailed, StateAnalyzed:
		return true
	}
	return false
}

// Analysis is what the vision model said about an image
type Analysis struct {
	Caption  string        `json:"caption" yaml:"caption"`
	Answer   string        `json:"answer" yaml:"answer"`
	Question string        `json:"question" yaml:"question"`
	Width    int           `json:"width" yaml:"width"`
	Height   int           `json:"height" yaml:"height"`
	Format   string        `json:"format" yaml:"format"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Event is emitted once per attempt when it reaches a terminal state
type Event struct {
	RunID      string
	Attempt    int
	Code       string
	PageURL    string
	State      AttemptState
	MissReason MissReason
	ImageURL   string
	File       string
	Bytes      int64
	Analysis   *Analysis
	Err        error
	StartedAt  time.Time
	Duration   time.Duration
}

// Finding returns the persisted view of a downloaded image
func (e Event) Finding() Finding {
	f := Finding{
		Code:     e.Code,
		PageURL:  e.PageURL,
		ImageURL: e.ImageURL,
		File:     e.File,
		Bytes:    e.Bytes,
		FoundAt:  e.StartedAt.Add(e.Duration),
	}
	if e.Analysis != nil {
		f.Caption = e.Analysis.Caption
		f.Answer = e.Analysis.Answer
	}
	if e.State == StateAnalysisFailed && e.Err != nil {
		f.AnalysisError = e.Err.Error()
	}
	return f
}

// Finding is a downloaded screenshot together with its analysis
type Finding struct {
	Code          string    `json:"code"`
	PageURL       string    `json:"page_url"`
	ImageURL      string    `json:"image_url"`
	File          string    `json:"file"`
	Bytes         int64     `json:"bytes"`
	Caption       string    `json:"caption,omitempty"`
	Answer        string    `json:"answer,omitempty"`
	AnalysisError string    `json:"analysis_error,omitempty"`
	FoundAt       time.Time `json:"found_at"`
}

// Stats are the run counters. They are owned by a single aggregator and
// updated through Record.
type Stats struct {
	Attempts            int       `json:"attempts"`
	SuccessfulDownloads int       `json:"successful_downloads"`
	Hits                int       `json:"hits"`
	Misses              int       `json:"misses"`
	TransientMisses     int       `json:"transient_misses"`
	PlaceholderMisses   int       `json:"placeholder_misses"`
	DownloadFailures    int       `json:"download_failures"`
	AnalysisFailures    int       `json:"analysis_failures"`
	Analyzed            int       `json:"analyzed"`
	BytesDownloaded     int64     `json:"bytes_downloaded"`
	StartedAt           time.Time `json:"started_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Record folds one terminal event into the counters
func (s *Stats) Record(e Event) {
	s.Attempts++
	s.UpdatedAt = e.StartedAt.Add(e.Duration)

	switch e.State {
	case StateMissed:
		s.Misses++
		switch e.MissReason {
		case MissTransient:
			s.TransientMisses++
		case MissPlaceholder:
			s.PlaceholderMisses++
		}
		return
	case StateDownloadFailed:
		s.Hits++
		s.DownloadFailures++
		return
	}

	if e.State.Downloaded() {
		s.Hits++
		s.SuccessfulDownloads++
		s.BytesDownloaded += e.Bytes
	}
	switch e.State {
	case StateAnalysisFailed:
		s.AnalysisFailures++
	case StateAnalyzed:
		s.Analyzed++
	}
}

// HitRate is the fraction of attempts that resolved to an image
func (s Stats) HitRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Attempts)
}

// Remaining returns how many of total attempts are still to run
func (s Stats) Remaining(total int) int {
	if s.Attempts >= total {
		return 0
	}
	return total - s.Attempts
}
