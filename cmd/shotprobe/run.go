package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"shotprobe/pkg/config"
	"shotprobe/pkg/logger"
	"shotprobe/pkg/runner"
	"shotprobe/pkg/ui"
	"shotprobe/pkg/ui/tui"
)

var (
	// Run command flags
	workers      int
	codeLength   int
	rateLimit    int
	rateStrategy string
	outputDir    string
	modelDir     string
	endpoint     string
	reportFile   string
	useTUI       bool
	resumeRun    bool
	forceRestart bool
	noAnalyze    bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [checks]",
	Short: "Probe random share codes and caption every screenshot found",
	Long: `Generate random share codes, resolve each share page to its screenshot,
download the image into the output directory and caption it with the local
vision model.

The model is downloaded into the model directory on first use. Press Ctrl+C
once to stop issuing new attempts and let the ones in flight finish; press it
again to exit immediately. An interrupted run can be continued with --resume.`,
	Example: `  # Probe 10,000 codes with the defaults
  shotprobe run

  # Probe 500 codes with 16 workers into ./shots
  shotprobe run 500 --workers 16 --output ./shots

  # Only download, skip the vision model
  shotprobe run 200 --no-analyze

  # Interactive UI and a Markdown report
  shotprobe run 1000 --tui --report report.md

  # Continue an interrupted run
  shotprobe run --resume`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProbe,
}

func addRunFlags(fs *pflag.FlagSet) {
	fs.IntVarP(&workers, "workers", "w", 0, "number of concurrent attempts (default from config: 8)")
	fs.IntVar(&codeLength, "code-length", 0, "length of generated codes (default 11)")
	fs.IntVar(&rateLimit, "rate-limit", 0, "requests per minute across all workers")
	fs.StringVar(&rateStrategy, "rate-strategy", "", "pacing strategy: token_bucket or sliding_window")
	fs.StringVarP(&outputDir, "output", "o", "", "directory for downloaded images")
	fs.StringVar(&modelDir, "model-dir", "", "directory holding the vision model")
	fs.StringVar(&endpoint, "endpoint", "", "inference server endpoint")
	fs.StringVar(&reportFile, "report", "", "write a Markdown report to this file")
	fs.BoolVar(&useTUI, "tui", false, "use interactive terminal UI with real-time progress")
	fs.BoolVar(&resumeRun, "resume", false, "resume from last checkpoint")
	fs.BoolVar(&forceRestart, "force-restart", false, "force restart, ignoring existing checkpoint")
	fs.BoolVar(&noAnalyze, "no-analyze", false, "download images without captioning them")
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd.Flags())

	// Also accept run flags on the root command so "shotprobe 500" works
	addRunFlags(rootCmd.Flags())
	rootCmd.Args = cobra.ArbitraryArgs
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 && isKnownCommand(args[0]) {
			return cmd.Help()
		}
		if len(args) > 1 {
			return fmt.Errorf("unknown command %q", args[0])
		}
		return runProbe(cmd, args)
	}
}

func isKnownCommand(arg string) bool {
	for _, cmd := range rootCmd.Commands() {
		if cmd.Name() == arg || cmd.HasAlias(arg) {
			return true
		}
	}
	return false
}

func runProbe(cmd *cobra.Command, args []string) error {
	// Build flags map from command line
	flags := map[string]interface{}{
		"workers":       workers,
		"code-length":   codeLength,
		"rate-limit":    rateLimit,
		"rate-strategy": rateStrategy,
		"output":        outputDir,
		"model-dir":     modelDir,
		"endpoint":      endpoint,
		"report":        reportFile,
		"no-analyze":    noAnalyze,
		"log-level":     logLevel,
		"log-file":      logFile,
	}
	if len(args) == 1 {
		checks, err := strconv.Atoi(args[0])
		if err != nil || checks <= 0 {
			return fmt.Errorf("checks must be a positive number, got %q", args[0])
		}
		flags["checks"] = checks
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := setupLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log.WithField("version", version).Info("shotprobe starting")

	ctx, stop := interruptContext(func() {
		if !useTUI {
			ui.PrintWarning("Interrupt received, finishing attempts in flight", "press Ctrl+C again to exit now")
		}
	})
	defer stop()

	opts := []runner.Option{runner.WithLogger(log)}
	if !useTUI && !quiet {
		opts = append(opts, runner.WithModelProgress(modelProgress(os.Stdout)))
	}
	r := runner.New(cfg, opts...)

	session, err := r.Prepare(ctx, resumeRun, forceRestart)
	if err != nil {
		if errors.Is(err, runner.ErrCheckpointExists) {
			info, _ := r.CheckpointInfo()
			printCheckpointHint(info)
			return err
		}
		log.WithError(err).Error("Failed to prepare run")
		return fmt.Errorf("failed to prepare run: %w", err)
	}

	if !useTUI {
		printSessionInfo(cfg, session)
	}

	if useTUI {
		return runWithTUI(ctx, stop, session)
	}
	return runWithConsole(ctx, session)
}

func runWithConsole(ctx context.Context, session *runner.Session) error {
	mode := ui.ModeProgress
	switch {
	case quiet:
		mode = ui.ModeQuiet
	case verbose:
		mode = ui.ModeVerbose
	}
	console := ui.NewConsoleObserver(os.Stdout, session.Checks, mode, session.Initial)
	session.AddObserver(console)
	if notifications {
		session.AddObserver(ui.NewNotifier())
	}

	_, runErr := session.Run(ctx)
	printRunOutputs(session)
	return finish(runErr)
}

func runWithTUI(ctx context.Context, stop context.CancelFunc, session *runner.Session) error {
	terminal := tui.NewTUI(session.Checks, session.Workers, session.Initial, stop)
	session.AddObserver(terminal)
	if notifications {
		session.AddObserver(ui.NewNotifier())
	}
	if session.Resumed {
		terminal.LogInfo("Resuming run %s at attempt %d", session.RunID, session.Initial.Attempts+1)
	}
	if session.Artifact != nil {
		terminal.LogInfo("Using model %s", session.Artifact.Variant.Name)
	}

	// The probe keeps running if the UI cannot start, so stop it too
	tuiDone := make(chan error, 1)
	go func() {
		err := terminal.Run()
		if err != nil {
			stop()
		}
		tuiDone <- err
	}()

	_, runErr := session.Run(ctx)
	if err := <-tuiDone; err != nil {
		logger.WithError(err).Error("TUI failed")
		ui.PrintError("TUI failed", err.Error())
	}
	printRunOutputs(session)
	return finish(runErr)
}

// finish maps the run result to the process exit. An interrupted run is not
// an error for cobra, but exits with the conventional status for SIGINT.
func finish(runErr error) error {
	if runErr == nil {
		return nil
	}
	if errors.Is(runErr, context.Canceled) {
		logger.WithError(runErr).Warn("Run interrupted")
		os.Exit(130)
	}
	return runErr
}

// setupLogger routes logs so they do not fight with the display. The TUI
// owns the terminal, so logs only go to the log file there. The progress
// line is redrawn in place, so only errors are shown unless a level was
// asked for explicitly or verbose output is on.
func setupLogger(cfg *config.Config) (logger.Logger, error) {
	console := io.Writer(os.Stderr)
	switch {
	case useTUI:
		console = io.Discard
	case quiet:
		cfg.Logging.Level = "error"
	case !verbose && logLevel == "":
		cfg.Logging.Level = "error"
	}

	l, err := logger.NewWithOutput(&cfg.Logging, console)
	if err != nil {
		return nil, err
	}
	logger.SetLogger(l)
	return l, nil
}

// interruptContext cancels on the first SIGINT or SIGTERM and exits the
// process on the second
func interruptContext(onFirst func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigs:
		case <-ctx.Done():
			return
		}
		onFirst()
		cancel()
		<-sigs
		os.Exit(130)
	}()

	return ctx, func() {
		cancel()
		signal.Stop(sigs)
	}
}

func printSessionInfo(cfg *config.Config, session *runner.Session) {
	ui.PrintInfo("Run ID", session.RunID)
	ui.PrintInfo("Checks", fmt.Sprintf("%d (%d remaining)", session.Checks, session.Remaining()))
	ui.PrintInfo("Workers", strconv.Itoa(session.Workers))
	ui.PrintInfo("Output", session.OutputDir())
	if session.Artifact != nil {
		ui.PrintInfo("Model", fmt.Sprintf("%s (%s)", session.Artifact.Variant.Name, session.Artifact.Path))
		ui.PrintInfo("Question", cfg.Inference.Question)
	} else {
		ui.PrintInfo("Model", "analysis disabled")
	}
	if session.Resumed {
		ui.PrintInfo("Resuming", fmt.Sprintf("%d attempts already done", session.Initial.Attempts))
	}
	fmt.Println()
}

func printRunOutputs(session *runner.Session) {
	ui.PrintInfo("Images", fmt.Sprintf("%d in %s", session.Stored(), session.OutputDir()))
	if path := session.ReportPath(); path != "" {
		ui.PrintInfo("Report", path)
	}
}

func printCheckpointHint(info map[string]interface{}) {
	if ui.IsQuietMode() {
		return
	}
	if info != nil {
		fmt.Printf("\n%s Previous run found (%d of %d attempts, %d downloads)\n",
			ui.Yellow("►"), info["attempts"], info["checks"], info["downloads"])
	} else {
		ui.PrintWarning("Previous run found")
	}
	fmt.Printf("  Use: %s to continue where you left off\n", ui.Green("--resume"))
	fmt.Printf("  Use: %s to start fresh\n\n", ui.Yellow("--force-restart"))
}
