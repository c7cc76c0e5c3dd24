package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/pinfetch/internal/media"
)

type describer interface {
	Describe(ctx context.Context, text string) (media.SourceURL, media.Descriptor, error)
}

type resolveOutput struct {
	Source string `json:"source"`
	media.Descriptor
}

func newResolveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <text>",
		Short: "Resolve a link and print the media descriptor",
		Long: `Runs URL extraction, resolution, page fetch and state extraction for the
given text and prints the resulting descriptor as JSON. Nothing is sent.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			app, err := buildResolve(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("build resolver: %w", err)
			}
			defer app.Close()
			return runResolve(cmd.Context(), cmd.OutOrStdout(), app.Pipeline(), strings.Join(args, " "))
		},
	}
}

func runResolve(ctx context.Context, out io.Writer, d describer, text string) error {
	source, desc, err := d.Describe(ctx, text)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", text, err)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resolveOutput{Source: string(source), Descriptor: desc}); err != nil {
		return fmt.Errorf("write descriptor: %w", err)
	}
	return nil
}
