package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"shotprobe/pkg/config"
	"shotprobe/pkg/model"
	"shotprobe/pkg/runner"
	"shotprobe/pkg/ui"
)

// modelCmd represents the model command
var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Manage the local vision model",
}

var modelEnsureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Download the vision model if no usable copy is present",
	Long: `Make sure a usable vision model file is present in the model directory.

The larger preferred variant is used when it is already there. Otherwise the
default variant is downloaded as a gzip archive and unpacked. Nothing is
downloaded when a usable file exists.`,
	RunE: runModelEnsure,
}

var modelStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which model variants are present",
	RunE:  runModelStatus,
}

func init() {
	rootCmd.AddCommand(modelCmd)
	modelCmd.AddCommand(modelEnsureCmd)
	modelCmd.AddCommand(modelStatusCmd)

	modelCmd.PersistentFlags().StringVar(&modelDir, "model-dir", "", "directory holding the vision model")
}

func loadModelConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile, map[string]interface{}{
		"model-dir": modelDir,
		"log-level": logLevel,
		"log-file":  logFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func runModelEnsure(cmd *cobra.Command, args []string) error {
	cfg, err := loadModelConfig()
	if err != nil {
		return err
	}
	log, err := setupLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, stop := interruptContext(func() {})
	defer stop()

	ui.PrintInfo("Model directory", cfg.Model.Dir)
	r := runner.New(cfg, runner.WithLogger(log), runner.WithModelProgress(modelProgress(cmd.OutOrStdout())))
	artifact, err := r.EnsureModel(ctx)
	if err != nil {
		return err
	}

	if artifact.Downloaded {
		ui.PrintSuccess(fmt.Sprintf("Downloaded %s (%s)", artifact.Variant.Name, humanize.Bytes(uint64(artifact.Size))))
	} else {
		ui.PrintSuccess(fmt.Sprintf("Using existing %s (%s)", artifact.Variant.Name, humanize.Bytes(uint64(artifact.Size))))
	}
	fmt.Fprintln(cmd.OutOrStdout(), artifact.Path)
	return nil
}

func runModelStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadModelConfig()
	if err != nil {
		return err
	}

	preferred := model.PreferredVariant
	preferred.File = cfg.Model.PreferredFile
	fallback := model.DefaultVariant
	fallback.File = cfg.Model.DefaultFile

	ui.PrintHighlight("Model variants")
	out := cmd.OutOrStdout()
	for _, st := range model.Inspect(cfg.Model.Dir, preferred, fallback) {
		state := ui.Red("missing")
		if st.Present {
			state = ui.Green("present, " + humanize.Bytes(uint64(st.Size)))
		}
		fmt.Fprintf(out, "  %-22s %s  %s\n", st.Variant.Name, state, ui.Dim(st.Path))
	}
	return nil
}

// modelProgress redraws a single download line at most a few times per second
func modelProgress(out io.Writer) model.ProgressFunc {
	var (
		mu   sync.Mutex
		last time.Time
	)
	return func(written, total int64) {
		mu.Lock()
		defer mu.Unlock()

		done := total > 0 && written >= total
		if !done && time.Since(last) < 200*time.Millisecond {
			return
		}
		last = time.Now()

		if total > 0 {
			pct := float64(written) / float64(total) * 100
			fmt.Fprintf(out, "\rDownloading model: %s / %s (%.0f%%)   ",
				humanize.Bytes(uint64(written)), humanize.Bytes(uint64(total)), pct)
		} else {
			fmt.Fprintf(out, "\rDownloading model: %s   ", humanize.Bytes(uint64(written)))
		}
		if done {
			fmt.Fprintln(out)
		}
	}
}
