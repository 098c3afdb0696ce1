// Package cmd implements the rowguard command-line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/veridian-systems/rowguard/internal/config"
	"github.com/veridian-systems/rowguard/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "rowguard",
	Short: "Data-quality rules engine",
	Long: `rowguard evaluates declarative data-quality rules against batches of
tabular records and appends every violation found to a durable sink.

Run it as a long-lived service reacting to artifact events, or invoke a
single synchronous run from the command line.`,
	Version: "0.1.0",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger = logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
		return nil
	},
}

// Execute runs the CLI.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}
