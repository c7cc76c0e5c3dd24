package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		Long: `Starts the HTTP server that receives bot webhook updates on POST /{token}.
GET / registers the webhook at telegram.webhook_url.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			app, err := buildServer(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("build server: %w", err)
			}
			return app.Run(cmd.Context())
		},
	}
}

func newOffloadCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "offload",
		Short: "Run the offload worker",
		Long: `Starts the worker that downloads oversized videos and uploads the bytes
to the chat. It listens on offload.listen_port and serves POST /send.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			app, err := buildWorker(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("build offload worker: %w", err)
			}
			return app.Run(cmd.Context())
		},
	}
}
