package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/pendsync/internal/pipeline"
)

var publishCmd = &cobra.Command{
	Use:   "publish <path>",
	Short: "Replace the sheet tab with an existing artifact, without a browser.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.SheetURL == "" {
			return fmt.Errorf("config: missing SHEET_URL")
		}
		pub, err := pipeline.NewPublisher(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		res, err := pub.Publish(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "published %d rows x %d columns to %s\n", res.Rows, res.Columns, res.Destination.SheetRange())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)
}
