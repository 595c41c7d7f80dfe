package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dartseries/internal/app"
	"github.com/ternarybob/dartseries/internal/common"
)

var (
	// Command-line flags
	configFiles []string // later files override earlier ones
	serverPort  int
	serverHost  string
	logLevel    string
	storageType string

	// Global state
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:           "dartseries",
	Short:         "Quarterly revenue and operating profit from Open DART",
	Long:          `Builds a 16-quarter revenue and operating profit series for Korean listed companies from Open DART filings, caching normalized quarters locally.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		return loadConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVarP(&configFiles, "config", "c", nil, "Configuration file path (repeatable, later files override earlier ones)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")
	rootCmd.PersistentFlags().StringVar(&storageType, "storage", "", "Storage backend: sqlite, badger or memory (overrides config)")

	rootCmd.AddCommand(seriesCmd, refreshCmd, resolveCmd, directoryCmd, warmCmd, serveCmd, versionCmd)
}

func main() {
	defer common.RecoverWithCrashFile()

	if err := rootCmd.Execute(); err != nil {
		if logger != nil {
			logger.Error().Err(err).Msg("Command failed")
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(exitCode(err))
	}
}

// loadConfig runs the startup sequence shared by every command:
// .env, then defaults -> files -> env, then flags, then the logger.
func loadConfig() error {
	// A missing .env is normal
	_ = godotenv.Load()

	if len(configFiles) == 0 {
		if _, err := os.Stat("dartseries.toml"); err == nil {
			configFiles = append(configFiles, "dartseries.toml")
		} else if _, err := os.Stat("deployments/local/dartseries.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/dartseries.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	common.ApplyFlagOverrides(config, serverPort, serverHost)
	if logLevel != "" {
		config.Logging.Level = logLevel
	}
	if storageType != "" {
		config.Storage.Type = storageType
	}
	if err := config.Validate(); err != nil {
		return err
	}

	logger = common.SetupLogger(config)
	common.InstallCrashHandler(filepath.Dir(config.Logging.File))

	logger.Debug().
		Strs("config_files", configFiles).
		Str("storage_type", config.Storage.Type).
		Str("log_level", config.Logging.Level).
		Strs("log_output", config.Logging.Output).
		Msg("Resolved configuration")

	return nil
}

// newApp initializes the application for a command
func newApp() (*app.App, error) {
	application, err := app.New(config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return application, nil
}
