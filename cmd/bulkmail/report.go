package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ignite/bulk-mailer/internal/report"
)

func (c *cli) reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <name>",
		Short: "Print a failure report to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := report.StoreFromConfig(ctx, cfg.Reports)
			if err != nil {
				return err
			}
			dl, err := report.NewGateway(store).Resolve(ctx, args[0])
			if err != nil {
				return fmt.Errorf("report %q: %w", args[0], err)
			}
			defer dl.Body.Close()
			_, err = io.Copy(cmd.OutOrStdout(), dl.Body)
			return err
		},
	}
}
