package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/gdrive-go/internal/config"
)

func newConfigCmd(flags *CLIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(newConfigShowCmd(flags))
	cmd.AddCommand(newConfigWatchCmd(flags))

	return cmd
}

func newConfigShowCmd(flags *CLIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE: withContext(flags, func(_ context.Context, cc *CLIContext, _ []string) error {
			if cc.Flags.JSON {
				return printJSON(os.Stdout, cc.Resolved)
			}

			return config.RenderEffective(cc.Resolved, os.Stdout)
		}),
	}
}

func newConfigWatchCmd(flags *CLIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Validate the config file every time it changes",
		Long: `Watch the config file and re-validate it on every write, logging the
result. Useful while hand-editing disk sections. Stops on Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: withContext(flags, func(ctx context.Context, cc *CLIContext, _ []string) error {
			cc.Statusf("Watching %s (Ctrl-C to stop)\n", cc.Store.Path())

			return cc.Store.Watch(ctx, func(cfg *config.Config) {
				cc.Logger.Info("config valid", slog.Int("disks", len(cfg.Disks)))
			})
		}),
	}
}
