// Package cmd defines the pinfetch command line.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/pinfetch/internal/config"
	"github.com/JakeFAU/pinfetch/internal/server"
)

// Builders are variables so tests can swap them.
var (
	buildServer  = server.Build
	buildWorker  = server.BuildWorker
	buildResolve = server.BuildResolve
)

type rootOptions struct {
	configPath string
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "pinfetch",
		Short: "Telegram bot that resolves Pinterest links and sends back the media.",
		Long: `pinfetch turns Pinterest pin links, including pin.it shortlinks, into the
underlying image or video and delivers it to the chat that sent the link.

Configuration comes from an optional YAML file (--config) overlaid by
PINFETCH_* environment variables, e.g. PINFETCH_TELEGRAM_TOKEN.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a config file")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newOffloadCmd(opts))
	cmd.AddCommand(newResolveCmd(opts))
	return cmd
}

func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
