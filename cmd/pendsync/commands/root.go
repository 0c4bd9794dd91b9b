package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/pendsync/internal/config"
	"github.com/dgnsrekt/pendsync/internal/logging"
)

var (
	cfg       *config.Config
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:           "pendsync",
	Short:         "pendsync exports the pending-trips report from the SPX portal and publishes it to a Google Sheet.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		closer, err := logging.Setup(loaded.LogLevel, loaded.LogFile)
		if err != nil {
			return fmt.Errorf("logger setup: %w", err)
		}
		cfg, logCloser = loaded, closer
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeLog()
	},
}

func closeLog() {
	if logCloser == nil {
		return
	}
	if err := logCloser.Close(); err != nil {
		slog.Debug("log file close failed", "error", err)
	}
	logCloser = nil
}

// ExecuteContext runs the CLI and returns the process exit code.
func ExecuteContext(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("pendsync failed", "error", err)
		closeLog()
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
