package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/veridian-systems/rowguard/internal/pipeline"
)

var runArtifact string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a single evaluation run",
	Long: `Fetch rules, read the artifact's record batch, evaluate, and write
violations to the configured sink. The run summary is printed as JSON.

Rule and record faults are absorbed into the summary; the command exits
non-zero only when the run fails entirely.`,
	RunE: runOnce,
}

func init() {
	runCmd.Flags().StringVar(&runArtifact, "artifact", "", "record batch artifact to evaluate (required)")
	_ = runCmd.MarkFlagRequired("artifact")
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	d, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.close()

	summary, err := d.coordinator.Run(ctx, runArtifact)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(summary)

	if err != nil {
		var runErr *pipeline.RunError
		if errors.As(err, &runErr) {
			return fmt.Errorf("run failed at stage %s: %w", runErr.Stage, runErr.Err)
		}
		return err
	}
	return nil
}
