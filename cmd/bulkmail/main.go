// Command bulkmail runs a bulk send from the terminal and fetches its
// failure reports.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ignite/bulk-mailer/internal/app"
	"github.com/ignite/bulk-mailer/internal/config"
)

func main() {
	if err := newRootCmd(app.Options{}).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cli carries the flags shared by every subcommand.
type cli struct {
	cfgFile string
	opts    app.Options
}

func newRootCmd(opts app.Options) *cobra.Command {
	c := &cli{opts: opts}
	root := &cobra.Command{
		Use:   "bulkmail",
		Short: "Bulk email batch sender",
		Long: `bulkmail sends one message to a deduplicated recipient list in
fixed-size chunks and writes a CSV report of the addresses that failed.`,
		SilenceUsage: true,
	}

	defaultCfg := os.Getenv("CONFIG_PATH")
	if defaultCfg == "" {
		defaultCfg = "config/config.yaml"
	}
	root.PersistentFlags().StringVar(&c.cfgFile, "config", defaultCfg, "config file")

	root.AddCommand(c.sendCmd())
	root.AddCommand(c.reportCmd())
	return root
}

func (c *cli) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFromEnv(c.cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	app.ConfigureLogging(cfg.Logging)
	return cfg, nil
}
