package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"shotprobe/pkg/config"
	"shotprobe/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage shotprobe configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (SHOTPROBE_*)
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file with the default values",
	Long: `Create a configuration file holding every option with its default value.

The file is created in the current directory as '.shotprobe.yaml' unless a
different path is given with the --config flag.`,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the effective configuration after merging all sources:
  - Environment variables
  - Configuration file
  - Default values`,
	RunE: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate a configuration file for syntax errors and invalid values.

This command checks:
  - YAML syntax
  - Value types and ranges
  - Path accessibility`,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = ".shotprobe.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", configPath)
		return fmt.Errorf("%s already exists", configPath)
	}

	if err := config.DefaultConfig().Save(configPath); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Adjust workers, rate limit and output directory to taste")
	fmt.Println("2. Run 'shotprobe config validate' to check the configuration")
	fmt.Println("3. Run 'shotprobe model ensure' to fetch the vision model")
	fmt.Println("4. Start probing with 'shotprobe run 1000'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (SHOTPROBE_*)")
	if configFile != "" {
		fmt.Printf("3. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("3. Configuration file: first of")
		for _, p := range config.SearchPaths() {
			fmt.Printf("     %s\n", p)
		}
	}
	fmt.Println("4. Default values")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		for _, p := range config.SearchPaths() {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
		if path == "" {
			ui.PrintError("No configuration file found", "Specify a file with --config flag")
			return fmt.Errorf("no configuration file found")
		}
	}

	ui.PrintInfo("Validating configuration", path)

	cfg, err := config.Load(path, nil)
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	var warnings, problems []string

	if err := os.MkdirAll(cfg.Output.DownloadDir, 0755); err != nil {
		problems = append(problems, fmt.Sprintf("Cannot create output directory: %v", err))
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("Cannot create log directory: %v", err))
		}
	}
	if cfg.Inference.Enabled {
		if err := os.MkdirAll(cfg.Model.Dir, 0755); err != nil {
			problems = append(problems, fmt.Sprintf("Cannot create model directory: %v", err))
		}
		if cfg.Inference.Slots > cfg.Probe.Workers {
			warnings = append(warnings, "inference slots exceed workers; extra slots are never used")
		}
	}
	if cfg.Probe.CodeLength != 11 {
		warnings = append(warnings, fmt.Sprintf("code length %d differs from the service's 11-character codes", cfg.Probe.CodeLength))
	}

	if len(problems) > 0 {
		ui.PrintError("Configuration has errors:")
		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}
		return fmt.Errorf("configuration has %d errors", len(problems))
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
		fmt.Println()
	}

	ui.PrintSuccess("Configuration is valid")

	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Checks: %d\n", cfg.Probe.Checks)
	fmt.Printf("  Workers: %d\n", cfg.Probe.Workers)
	fmt.Printf("  Rate limit: %d requests/minute (%s)\n", cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Strategy)
	fmt.Printf("  Output directory: %s\n", cfg.Output.DownloadDir)
	fmt.Printf("  Model directory: %s\n", cfg.Model.Dir)
	fmt.Printf("  Analysis: %t\n", cfg.Inference.Enabled)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
	return nil
}
