package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/gdrive-go/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// CLIFlags holds the global persistent flags.
type CLIFlags struct {
	ConfigPath string
	Disk       string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	flags := &CLIFlags{}

	cmd := &cobra.Command{
		Use:     "gdrive-go",
		Short:   "Google Drive CLI client",
		Long:    "A command-line client for Google Drive accounts, addressed by path.",
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVarP(&flags.Disk, "disk", "d", "", "disk tag to operate on")
	cmd.PersistentFlags().BoolVar(&flags.JSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(
		newLoginCmd(flags),
		newLogoutCmd(flags),
		newDiskCmd(flags),
		newConfigCmd(flags),
		newStatusCmd(flags),
		newLsCmd(flags),
		newStatCmd(flags),
		newCatCmd(flags),
		newMkdirCmd(flags),
		newTouchCmd(flags),
		newRmCmd(flags),
		newMvCmd(flags),
		newCpCmd(flags),
		newRenameCmd(flags),
		newEditCmd(flags),
		newPutCmd(flags),
		newQuotaCmd(flags),
		newThumbCmd(flags),
		newSharedDriveCmd(flags),
		newPasswdCmd(flags),
	)

	return cmd
}

// resolveConfig applies the four-layer override chain for the current flags.
func resolveConfig(flags *CLIFlags) (*config.Resolved, error) {
	resolved, err := config.Resolve(config.ReadEnvOverrides(), config.CLIOverrides{
		ConfigPath: flags.ConfigPath,
		Disk:       flags.Disk,
	})
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return resolved, nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger(cfg *config.Config, flags *CLIFlags) *slog.Logger {
	level := slog.LevelWarn
	format := "auto"

	if cfg != nil {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}

		format = cfg.LogFormat
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	return newLogger(os.Stderr, level, format, isatty.IsTerminal(os.Stderr.Fd()))
}

// newLogger picks the handler for format. "auto" means text for a terminal
// and JSON otherwise, so piped logs stay machine-readable.
func newLogger(w io.Writer, level slog.Level, format string, terminal bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	if format == "json" || (format == "auto" && !terminal) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
