package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/khushi89012/syook/common/logging"
	"github.com/khushi89012/syook/emitter/internal/config"
)

var (
	cfgFile    string
	passphrase string
	noColor    bool
	cfg        *config.Config
	cfgErr     error
	logger     *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "emitter",
	Short: "Encrypted time-series traffic generator",
	Long: `emitter produces simulated traffic for the time-series listener.

Each batch is a random number of records, each sealed with its integrity
tag, encrypted with the shared passphrase and framed as seg1|seg2|...\n
over a fresh TCP connection.

Configuration cascade (priority order):
  1. Command-line flags
  2. EMITTER_* environment variables
  3. ./emitter.yaml or --config
  4. Built-in defaults`,
	Version:      "0.1.0",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./emitter.yaml)")
	rootCmd.PersistentFlags().StringVar(&passphrase, "passphrase", "", "shared encryption passphrase (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

func initConfig() {
	if noColor {
		color.NoColor = true
	}

	cfg, cfgErr = config.Load(cfgFile)
	if cfgErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", cfgErr)
		cfg = config.Default()
	}
	if rootCmd.PersistentFlags().Changed("passphrase") {
		cfg.Crypto.Passphrase = passphrase
	}

	logger = logging.NewWithWriter(os.Stderr,
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("emitter"))
}

// loadedConfig returns the configuration for commands that must not run on
// fallback defaults.
func loadedConfig() (*config.Config, error) {
	if cfgErr != nil {
		return nil, fmt.Errorf("failed to load config: %w", cfgErr)
	}
	return cfg, nil
}
