package runner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"shotprobe/internal/downloader"
	"shotprobe/pkg/checkpoint"
	"shotprobe/pkg/codegen"
	"shotprobe/pkg/config"
	"shotprobe/pkg/logger"
	"shotprobe/pkg/metadata"
	"shotprobe/pkg/model"
	"shotprobe/pkg/models"
	"shotprobe/pkg/prntsc"
	"shotprobe/pkg/prober"
	"shotprobe/pkg/ratelimit"
	"shotprobe/pkg/report"
	"shotprobe/pkg/retry"
	"shotprobe/pkg/storage"
	"shotprobe/pkg/vision"
)

// ErrCheckpointExists is returned by Prepare when a previous run was left
// unfinished and neither resume nor restart was requested
var ErrCheckpointExists = checkpoint.ErrExists

// Runner builds probe sessions from a configuration
type Runner struct {
	config        *config.Config
	logger        logger.Logger
	httpClient    *http.Client
	checkpointDir string
	progress      model.ProgressFunc
	seed          uint64
}

// Option configures a Runner
type Option func(*Runner)

// WithLogger sets the logger used by every component of a session
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithHTTPClient replaces the client used for page and image requests
func WithHTTPClient(hc *http.Client) Option {
	return func(r *Runner) { r.httpClient = hc }
}

// WithCheckpointDir stores checkpoints in dir instead of the XDG data home
func WithCheckpointDir(dir string) Option {
	return func(r *Runner) { r.checkpointDir = dir }
}

// WithModelProgress reports model download progress
func WithModelProgress(fn model.ProgressFunc) Option {
	return func(r *Runner) { r.progress = fn }
}

// WithSeed fixes the code generator seed
func WithSeed(seed uint64) Option {
	return func(r *Runner) { r.seed = seed }
}

// New creates a runner for cfg
func New(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		config: cfg,
		logger: logger.GetLogger(),
		seed:   uint64(time.Now().UnixNano()),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EnsureModel makes sure a model artifact is on disk, downloading the
// default variant when nothing usable is present
func (r *Runner) EnsureModel(ctx context.Context) (model.Artifact, error) {
	dl := model.NewHTTPDownloader(r.config.Model.DownloadTimeout, r.config.Probe.UserAgent, r.progress)
	b := model.NewBootstrapper(r.config.Model, dl,
		model.WithRetry(retry.FromSettings(r.config.Retry, r.logger)),
		model.WithLogger(r.logger.WithField("component", "model")),
	)
	return b.Acquire(ctx)
}

// Session is one prepared run. Observers added before Run see every event.
type Session struct {
	RunID      string
	Checks     int
	Workers    int
	CodeLength int
	Initial    models.Stats
	Resumed    bool
	// Artifact is nil when analysis is disabled
	Artifact *model.Artifact

	prober    *prober.Prober
	store     *storage.Manager
	saver     *checkpoint.Saver
	collector *report.Collector
	metadata  *metadata.Writer
	logger    logger.Logger
}

// Prepare acquires and loads the model when analysis is enabled, opens or
// creates the checkpoint and wires the prober. A model that cannot be
// acquired aborts before any probing and before a checkpoint is written.
func (r *Runner) Prepare(ctx context.Context, resume, forceRestart bool) (*Session, error) {
	cfg := r.config
	s := &Session{
		RunID:      uuid.NewString(),
		Checks:     cfg.Probe.Checks,
		Workers:    cfg.Probe.Workers,
		CodeLength: cfg.Probe.CodeLength,
		logger:     r.logger,
	}

	var analyzer prober.Analyzer
	variant := ""
	if cfg.Inference.Enabled {
		artifact, err := r.EnsureModel(ctx)
		if err != nil {
			return nil, err
		}
		engine := vision.NewHTTPEngine(cfg.Inference, retry.FromSettings(cfg.Retry, r.logger), r.logger.WithField("component", "vision"))
		m, err := engine.Load(ctx, artifact)
		if err != nil {
			return nil, err
		}
		s.Artifact = &artifact
		variant = artifact.Variant.Name
		analyzer = vision.NewAnalyzer(m, cfg.Inference.Question, cfg.Inference.Slots, r.logger.WithField("component", "analyzer"))
	}

	if cfg.Checkpoint.Enabled {
		mgr, err := r.checkpointManager()
		if err != nil {
			return nil, fmt.Errorf("failed to create checkpoint manager: %w", err)
		}
		cp, resumed, err := mgr.Open(s.RunID, cfg.Probe.Checks, cfg.Probe.CodeLength, resume, forceRestart)
		if err != nil {
			if errors.Is(err, checkpoint.ErrExists) {
				return nil, err
			}
			return nil, fmt.Errorf("failed to open checkpoint: %w", err)
		}
		if resumed {
			s.RunID = cp.RunID
			s.Checks = cp.Checks
			if cp.CodeLength > 0 {
				s.CodeLength = cp.CodeLength
			}
			s.Initial = cp.Stats
			s.Resumed = true
			r.logger.InfoWithFields("Resuming from checkpoint", map[string]interface{}{
				"run_id":   cp.RunID,
				"attempts": cp.Stats.Attempts,
				"checks":   cp.Checks,
				"length":   s.CodeLength,
			})
		}
		s.saver = checkpoint.NewSaver(mgr, cp, cfg.Checkpoint.Interval, r.logger.WithField("component", "checkpoint"))
	}

	store, err := storage.NewManager(cfg.Output.DownloadDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage manager: %w", err)
	}
	s.store = store

	clientOpts := []prntsc.Option{
		prntsc.WithLimiter(ratelimit.FromSettings(cfg.RateLimit)),
		prntsc.WithLogger(r.logger.WithField("component", "prntsc")),
	}
	if r.httpClient != nil {
		clientOpts = append(clientOpts, prntsc.WithHTTPClient(r.httpClient))
	}
	client := prntsc.NewClient(cfg.Probe, clientOpts...)
	fetcher := downloader.NewFetcher(client, r.logger.WithField("component", "fetcher"))

	s.prober = prober.New(client, fetcher, analyzer, store, prober.Options{
		Checks:  s.Checks,
		Workers: s.Workers,
		RunID:   s.RunID,
		Initial: s.Initial,
		Codes:   codegen.NewGenerator(s.CodeLength, r.seed),
	}, r.logger)

	if cfg.Output.SaveMetadata {
		format, err := metadata.ParseFormat(cfg.Output.MetadataFormat)
		if err != nil {
			return nil, err
		}
		if removed, err := metadata.CleanOrphaned(store.OutputDir()); err != nil {
			r.logger.WithError(err).Warn("Failed to clean orphaned metadata")
		} else if removed > 0 {
			r.logger.WithField("removed", removed).Info("Removed orphaned metadata")
		}
		s.metadata = metadata.NewWriter(format, variant, r.logger.WithField("component", "metadata"))
	}

	if cfg.Output.ReportFile != "" {
		s.collector = report.NewCollector(cfg.Output.ReportFile, &report.Report{
			RunID:   s.RunID,
			Checks:  s.Checks,
			Workers: s.Workers,
			Analyze: analyzer != nil,
		}, r.logger.WithField("component", "report"))
	}

	return s, nil
}

// CheckpointInfo summarizes the stored checkpoint, or returns nil when there
// is none
func (r *Runner) CheckpointInfo() (map[string]interface{}, error) {
	mgr, err := r.checkpointManager()
	if err != nil {
		return nil, err
	}
	return mgr.Info()
}

func (r *Runner) checkpointManager() (*checkpoint.Manager, error) {
	if r.checkpointDir != "" {
		return checkpoint.NewManagerInDir(r.checkpointDir, r.config.Checkpoint.Name)
	}
	return checkpoint.NewManager(r.config.Checkpoint.Name)
}

// AddObserver registers an additional observer on the session
func (s *Session) AddObserver(o prober.Observer) {
	s.prober.AddObserver(o)
}

// Remaining is the number of attempts the session will run
func (s *Session) Remaining() int {
	return s.Initial.Remaining(s.Checks)
}

// Run probes until all checks are done or ctx is cancelled. Sidecars are
// written first so the checkpoint and report only reference images whose
// metadata is already on disk.
func (s *Session) Run(ctx context.Context) (models.Stats, error) {
	s.prober.AddObserver(s.store)
	if s.metadata != nil {
		s.prober.AddObserver(s.metadata)
	}
	if s.saver != nil {
		s.prober.AddObserver(s.saver)
	}
	if s.collector != nil {
		s.prober.AddObserver(s.collector)
	}

	s.logger.InfoWithFields("Starting probe run", map[string]interface{}{
		"run_id":    s.RunID,
		"checks":    s.Checks,
		"remaining": s.Remaining(),
		"workers":   s.Workers,
		"resumed":   s.Resumed,
		"existing":  s.store.Count(),
	})
	return s.prober.Run(ctx)
}

// ReportPath is where the report is written, or "" when disabled
func (s *Session) ReportPath() string {
	if s.collector == nil {
		return ""
	}
	return s.collector.Path()
}

// Stored is the number of images in the output directory, including those
// from earlier runs
func (s *Session) Stored() int {
	return s.store.Count()
}

// OutputDir is the directory images are written to
func (s *Session) OutputDir() string {
	return s.store.OutputDir()
}
