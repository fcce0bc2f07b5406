package prober

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"shotprobe/pkg/codegen"
	"shotprobe/pkg/logger"
	"shotprobe/pkg/models"
)

// Options configures a run
type Options struct {
	// Checks is the total number of attempts for the run, including any
	// already recorded in Initial
	Checks  int
	Workers int
	RunID   string
	// Initial seeds the statistics when resuming
	Initial models.Stats
	Codes   CodeSource
}

// Prober runs attempts through resolve, fetch and analyze on a fixed pool
// of workers
type Prober struct {
	resolver  Resolver
	fetcher   Fetcher
	analyzer  Analyzer
	dest      Destinations
	observers []Observer
	opts      Options
	logger    logger.Logger
	now       func() time.Time
}

// New creates a prober. analyzer may be nil, in which case downloaded
// images end in the Downloaded state.
func New(r Resolver, f Fetcher, a Analyzer, d Destinations, opts Options, log logger.Logger) *Prober {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Codes == nil {
		opts.Codes = codegen.NewGenerator(codegen.DefaultLength, uint64(time.Now().UnixNano()))
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Prober{
		resolver: r,
		fetcher:  f,
		analyzer: a,
		dest:     d,
		opts:     opts,
		logger:   log.WithField("run_id", opts.RunID),
		now:      time.Now,
	}
}

// AddObserver registers an observer. It must be called before Run.
func (p *Prober) AddObserver(o Observer) {
	p.observers = append(p.observers, o)
}

// RunID identifies this run in events, checkpoints and reports
func (p *Prober) RunID() string {
	return p.opts.RunID
}

// Run executes the remaining attempts and returns the final statistics.
//
// Cancelling ctx stops workers from claiming new attempts; attempts already
// in flight finish on their own timeouts and are recorded. The returned
// error is ctx's error when the run was interrupted.
func (p *Prober) Run(ctx context.Context) (models.Stats, error) {
	stats := p.opts.Initial
	if stats.StartedAt.IsZero() {
		stats.StartedAt = p.now()
	}

	remaining := stats.Remaining(p.opts.Checks)
	workers := p.opts.Workers
	if workers > remaining {
		workers = remaining
	}

	logger.LogComponentStart(p.logger, "prober", map[string]interface{}{
		"checks":    p.opts.Checks,
		"remaining": remaining,
		"workers":   workers,
	})

	events := make(chan models.Event, workers+1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range events {
			stats.Record(e)
			for _, o := range p.observers {
				o.OnEvent(e)
			}
		}
	}()

	// in-flight attempts must not be torn down by the run's cancellation
	attemptCtx := context.WithoutCancel(ctx)
	base := stats.Attempts
	var claimed atomic.Int64

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				if ctx.Err() != nil {
					return nil
				}
				n := claimed.Add(1)
				if n > int64(remaining) {
					return nil
				}
				events <- p.attempt(attemptCtx, base+int(n))
			}
		})
	}
	_ = g.Wait()
	close(events)
	<-done

	runErr := ctx.Err()
	reason := "completed"
	if runErr != nil {
		reason = "interrupted"
		runErr = fmt.Errorf("run interrupted after %d attempts: %w", stats.Attempts, runErr)
	}
	for _, o := range p.observers {
		if f, ok := o.(Finisher); ok {
			f.OnFinish(stats, runErr)
		}
	}

	logger.LogMetrics(p.logger, "probe_run", map[string]interface{}{
		"attempts":             stats.Attempts,
		"successful_downloads": stats.SuccessfulDownloads,
		"hits":                 stats.Hits,
		"transient_misses":     stats.TransientMisses,
		"analysis_failures":    stats.AnalysisFailures,
	})
	logger.LogComponentStop(p.logger, "prober", reason)
	return stats, runErr
}

// attempt drives one code to a terminal state
func (p *Prober) attempt(ctx context.Context, n int) models.Event {
	e := models.Event{
		RunID:     p.opts.RunID,
		Attempt:   n,
		Code:      p.opts.Codes.Next(),
		StartedAt: p.now(),
	}
	defer func() {
		e.Duration = p.now().Sub(e.StartedAt)
		logger.LogAttempt(p.logger, e.Attempt, e.Code, string(e.State), e.Err)
	}()

	res := p.resolver.Resolve(ctx, e.Code)
	e.PageURL = res.PageURL
	if !res.IsHit() {
		e.State = models.StateMissed
		e.MissReason = res.Reason
		if res.Reason == models.MissTransient {
			e.Err = res.Err
		}
		return e
	}
	e.ImageURL = res.ImageURL

	dest := p.dest.PathFor(e.Code)
	n64, err := p.fetcher.Fetch(ctx, res.ImageURL, dest)
	if err != nil {
		e.State = models.StateDownloadFailed
		e.Err = err
		return e
	}
	e.File = dest
	e.Bytes = n64

	if p.analyzer == nil {
		e.State = models.StateDownloaded
		return e
	}

	analysis, err := p.analyzer.Analyze(ctx, dest)
	if err != nil {
		e.State = models.StateAnalysisFailed
		e.Err = err
		return e
	}
	e.State = models.StateAnalyzed
	e.Analysis = &analysis
	return e
}
