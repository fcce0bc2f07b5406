package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"shotprobe/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile    string
	logLevel      string
	logFile       string
	noColor       bool
	notifications bool
	quiet         bool
	verbose       bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "shotprobe",
	Short: "Probe prnt.sc for public screenshots and caption them locally",
	Long: `shotprobe generates random prnt.sc share codes, resolves each share page to
its screenshot, downloads the image and describes it with a local moondream
vision model.

Features:
  - Concurrent probing with a fixed worker pool
  - Request pacing shared by page probes and image downloads
  - Automatic model bootstrap on first run
  - Caption and question answering for every downloaded image
  - JSON or YAML metadata sidecars with EXIF tags
  - Markdown run report
  - Resume interrupted runs from a checkpoint`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.SetNoColor(noColor || os.Getenv("NO_COLOR") != "")
		if quiet {
			ui.SetQuietMode(true)
		}

		// Don't show logo for certain commands
		if cmd.Name() != "version" && cmd.Name() != "help" && !useTUI {
			ui.PrintLogo()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err.Error())
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("shotprobe %s\n", rootCmd.Version)
		fmt.Printf("Go Version: %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.shotprobe.yaml or $XDG_CONFIG_HOME/shotprobe/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&notifications, "notifications", false, "send a desktop notification when a run ends")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print every attempt and all logs")

	rootCmd.AddCommand(versionCmd)
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	// Version template
	rootCmd.SetVersionTemplate(`shotprobe {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	// Disable default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
