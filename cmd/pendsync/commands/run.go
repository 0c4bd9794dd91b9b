package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/pendsync/internal/metrics"
	"github.com/dgnsrekt/pendsync/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Log in, export, download, finalize and publish once.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		ctx := cmd.Context()

		stack, err := pipeline.Assemble(ctx, cfg, metrics.NewCollector(false), cfg.MetricsTextfile)
		if err != nil {
			return err
		}
		defer func() {
			if err := stack.Close(); err != nil {
				slog.Debug("run history close failed", "error", err)
			}
		}()

		rep, err := stack.Runner.Run(ctx)
		if err != nil {
			return fmt.Errorf("run %s failed at %s: %w", rep.RunID, rep.FailedStage, err)
		}
		if !rep.Succeeded() {
			return errors.New("run " + rep.RunID + " did not succeed")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "run %s published %d rows from %s\n", rep.RunID, rep.Rows(), rep.Artifact.Path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
