package prober

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"shotprobe/pkg/logger"
	"shotprobe/pkg/models"
)

// listCodes hands out a fixed sequence of codes
type listCodes struct {
	mu    sync.Mutex
	codes []string
	i     int
}

func newListCodes(n int) *listCodes {
	codes := make([]string, n)
	for i := range codes {
		codes[i] = fmt.Sprintf("code%07d", i)
	}
	return &listCodes{codes: codes}
}

func (l *listCodes) Next() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := l.codes[l.i%len(l.codes)]
	l.i++
	return c
}

// scriptedResolver decides by code: every third code is a miss
type scriptedResolver struct {
	delay time.Duration
	calls atomic.Int64
	all   bool
}

func (r *scriptedResolver) Resolve(ctx context.Context, code string) models.ProbeResult {
	r.calls.Add(1)
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	res := models.ProbeResult{Code: code, PageURL: "https://prnt.sc/" + code}
	var n int
	fmt.Sscanf(strings.TrimPrefix(code, "code"), "%d", &n)
	if !r.all && n%3 == 0 {
		res.Reason = models.MissNotFound
		return res
	}
	res.Kind = models.Hit
	res.ImageURL = "https://image.prntscr.com/image/" + code + ".png"
	return res
}

type fakeFetcher struct {
	fail func(url string) bool
}

func (f *fakeFetcher) Fetch(ctx context.Context, imageURL, destPath string) (int64, error) {
	if f.fail != nil && f.fail(imageURL) {
		return 0, errors.New("connection reset")
	}
	return 100, nil
}

type fakeAnalyzer struct {
	err error
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, path string) (models.Analysis, error) {
	if a.err != nil {
		return models.Analysis{}, a.err
	}
	return models.Analysis{Caption: "a desktop", Answer: "a desktop"}, nil
}

type dirDest string

func (d dirDest) PathFor(code string) string { return filepath.Join(string(d), code+".jpg") }

type recorder struct {
	mu       sync.Mutex
	events   []models.Event
	finished *models.Stats
	finErr   error
}

func (r *recorder) OnEvent(e models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) OnFinish(s models.Stats, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = &s
	r.finErr = err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newProber(t *testing.T, r Resolver, f Fetcher, a Analyzer, opts Options) (*Prober, *recorder) {
	t.Helper()
	if opts.Codes == nil {
		opts.Codes = newListCodes(1000)
	}
	p := New(r, f, a, dirDest(t.TempDir()), opts, logger.NewTestLogger())
	rec := &recorder{}
	p.AddObserver(rec)
	return p, rec
}

func TestRunAllHits(t *testing.T) {
	var analyzer Analyzer = &fakeAnalyzer{}
	p, rec := newProber(t, &scriptedResolver{all: true}, &fakeFetcher{}, analyzer, Options{Checks: 5, Workers: 1})

	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Attempts)
	assert.Equal(t, 5, stats.SuccessfulDownloads)
	assert.Equal(t, 5, stats.Analyzed)
	assert.Equal(t, int64(500), stats.BytesDownloaded)
	require.Len(t, rec.events, 5)
	for i, e := range rec.events {
		assert.Equal(t, i+1, e.Attempt)
		assert.Equal(t, models.StateAnalyzed, e.State)
		assert.Equal(t, "a desktop", e.Analysis.Caption)
		assert.Equal(t, p.RunID(), e.RunID)
	}
	require.NotNil(t, rec.finished)
	assert.Equal(t, stats, *rec.finished)
	assert.NoError(t, rec.finErr)
}

func TestRunWorkersMatchSequentialCounts(t *testing.T) {
	run := func(workers int) models.Stats {
		p, _ := newProber(t, &scriptedResolver{}, &fakeFetcher{
			fail: func(url string) bool { return strings.Contains(url, "5.png") },
		}, nil, Options{Checks: 60, Workers: workers})
		stats, err := p.Run(context.Background())
		require.NoError(t, err)
		return stats
	}

	seq := run(1)
	par := run(8)

	assert.Equal(t, 60, seq.Attempts)
	assert.Equal(t, 20, seq.Misses)
	assert.Equal(t, seq.Attempts, par.Attempts)
	assert.Equal(t, seq.Misses, par.Misses)
	assert.Equal(t, seq.Hits, par.Hits)
	assert.Equal(t, seq.SuccessfulDownloads, par.SuccessfulDownloads)
	assert.Equal(t, seq.DownloadFailures, par.DownloadFailures)
	assert.Equal(t, seq.Hits, seq.SuccessfulDownloads+seq.DownloadFailures)
}

func TestRunAttemptNumbersAreUnique(t *testing.T) {
	p, rec := newProber(t, &scriptedResolver{}, &fakeFetcher{}, nil, Options{Checks: 40, Workers: 6})
	_, err := p.Run(context.Background())
	require.NoError(t, err)

	seen := make(map[int]bool)
	for _, e := range rec.events {
		assert.False(t, seen[e.Attempt], "attempt %d reported twice", e.Attempt)
		seen[e.Attempt] = true
	}
	assert.Len(t, seen, 40)
}

func TestRunAnalysisFailureStillCountsDownload(t *testing.T) {
	p, rec := newProber(t, &scriptedResolver{all: true}, &fakeFetcher{},
		&fakeAnalyzer{err: errors.New("inference timed out")}, Options{Checks: 3, Workers: 2})

	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.SuccessfulDownloads)
	assert.Equal(t, 3, stats.AnalysisFailures)
	assert.Equal(t, 0, stats.Analyzed)
	for _, e := range rec.events {
		assert.Equal(t, models.StateAnalysisFailed, e.State)
		assert.NotEmpty(t, e.File)
		assert.EqualError(t, e.Err, "inference timed out")
		assert.Nil(t, e.Analysis)
	}
}

func TestRunWithoutAnalyzer(t *testing.T) {
	p, rec := newProber(t, &scriptedResolver{all: true}, &fakeFetcher{}, nil, Options{Checks: 2})

	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.SuccessfulDownloads)
	for _, e := range rec.events {
		assert.Equal(t, models.StateDownloaded, e.State)
	}
}

func TestRunMissesCarryReason(t *testing.T) {
	p, rec := newProber(t, &scriptedResolver{}, &fakeFetcher{}, nil, Options{Checks: 3, Workers: 1})
	_, err := p.Run(context.Background())
	require.NoError(t, err)

	// code0000000 is a miss
	e := rec.events[0]
	assert.Equal(t, models.StateMissed, e.State)
	assert.Equal(t, models.MissNotFound, e.MissReason)
	assert.Empty(t, e.File)
	assert.NoError(t, e.Err)
}

func TestRunDownloadFailure(t *testing.T) {
	p, rec := newProber(t, &scriptedResolver{all: true}, &fakeFetcher{
		fail: func(string) bool { return true },
	}, &fakeAnalyzer{}, Options{Checks: 2})

	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.DownloadFailures)
	assert.Equal(t, 0, stats.SuccessfulDownloads)
	assert.Equal(t, 0, stats.Analyzed)
	assert.Equal(t, models.StateDownloadFailed, rec.events[0].State)
}

func TestRunResumesFromInitialStats(t *testing.T) {
	initial := models.Stats{Attempts: 7, SuccessfulDownloads: 2, Hits: 2, Misses: 5}
	p, rec := newProber(t, &scriptedResolver{all: true}, &fakeFetcher{}, nil,
		Options{Checks: 10, Workers: 1, Initial: initial})

	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, stats.Attempts)
	assert.Equal(t, 5, stats.SuccessfulDownloads)
	require.Len(t, rec.events, 3)
	assert.Equal(t, 8, rec.events[0].Attempt)
	assert.Equal(t, 10, rec.events[2].Attempt)
}

func TestRunNothingRemaining(t *testing.T) {
	r := &scriptedResolver{}
	p, rec := newProber(t, r, &fakeFetcher{}, nil,
		Options{Checks: 4, Initial: models.Stats{Attempts: 4}})

	stats, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Attempts)
	assert.Zero(t, r.calls.Load())
	assert.NotNil(t, rec.finished)
}

func TestRunCancellationDrainsInFlight(t *testing.T) {
	r := &scriptedResolver{all: true, delay: 20 * time.Millisecond}
	p, rec := newProber(t, r, &fakeFetcher{}, nil, Options{Checks: 1000, Workers: 4})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for rec.count() < 8 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	stats, err := p.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Less(t, stats.Attempts, 1000)
	assert.GreaterOrEqual(t, stats.Attempts, 8)
	// every attempt that started was recorded
	assert.Equal(t, int(r.calls.Load()), stats.Attempts)
	assert.Equal(t, stats.Attempts, rec.count())
	assert.Equal(t, stats.Attempts, stats.SuccessfulDownloads)
	assert.ErrorIs(t, rec.finErr, context.Canceled)
}

func TestObserverFunc(t *testing.T) {
	var got []string
	p := New(&scriptedResolver{all: true}, &fakeFetcher{}, nil, dirDest(t.TempDir()),
		Options{Checks: 2, Codes: newListCodes(10)}, nil)
	p.AddObserver(ObserverFunc(func(e models.Event) { got = append(got, e.Code) }))

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"code0000000", "code0000001"}, got)
}
