package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/gdrive-go/internal/config"
	"github.com/tonimelisma/gdrive-go/internal/gdrive"
)

// Disk state labels for disk list and status.
const (
	diskStateReady    = "ready"
	diskStateNoToken  = "no token"
	diskStateCooldown = "cooling down"
)

func newDiskCmd(flags *CLIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disk",
		Short: "Manage configured disks",
	}

	cmd.AddCommand(newDiskListCmd(flags))
	cmd.AddCommand(newDiskAddCmd(flags))
	cmd.AddCommand(newDiskRemoveCmd(flags))

	return cmd
}

func newDiskListCmd(flags *CLIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured disks",
		Args:  cobra.NoArgs,
		RunE: withContext(flags, func(_ context.Context, cc *CLIContext, _ []string) error {
			disks := diskSummaries(cc.Store.Config(), cc.Resolved.DiskTag, time.Now())

			if cc.Flags.JSON {
				return printJSON(os.Stdout, disks)
			}

			if len(disks) == 0 {
				fmt.Println("No disks configured. Run 'gdrive-go disk add <tag>' to add one.")
				return nil
			}

			printDiskTable(os.Stdout, disks)

			return nil
		}),
	}
}

func newDiskAddCmd(flags *CLIFlags) *cobra.Command {
	var (
		clientID     string
		clientSecret string
		rootPath     string
	)

	cmd := &cobra.Command{
		Use:   "add <tag>",
		Short: "Add a disk section to the config file",
		Long: `Add a disk with its OAuth client credentials. Run 'gdrive-go login <tag>'
afterwards to obtain a refresh token.`,
		Args: cobra.ExactArgs(1),
		RunE: withContext(flags, func(_ context.Context, cc *CLIContext, args []string) error {
			tag := args[0]

			if _, ok := cc.Store.Disk(tag); ok {
				return fmt.Errorf("disk %q already exists", tag)
			}

			values := map[string]string{
				gdrive.ConfigKeyClientID:     clientID,
				gdrive.ConfigKeyClientSecret: clientSecret,
			}

			if rootPath != "" {
				values["root_path"] = rootPath
			}

			if err := cc.Store.SaveDiskValues(tag, values); err != nil {
				return err
			}

			cc.Logger.Info("disk added", slog.String("disk", tag))
			cc.Statusf("Added disk %s. Run 'gdrive-go login %s' to authorize it.\n", tag, tag)

			return nil
		}),
	}

	cmd.Flags().StringVar(&clientID, "client-id", "", "OAuth client ID")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "OAuth client secret")
	cmd.Flags().StringVar(&rootPath, "root-path", "", "folder treated as the disk root (default /)")

	if err := cmd.MarkFlagRequired("client-id"); err != nil {
		panic(err)
	}

	if err := cmd.MarkFlagRequired("client-secret"); err != nil {
		panic(err)
	}

	return cmd
}

func newDiskRemoveCmd(flags *CLIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <tag>",
		Short: "Remove a disk and everything cached for it",
		Args:  cobra.ExactArgs(1),
		RunE: withContext(flags, func(ctx context.Context, cc *CLIContext, args []string) error {
			tag := args[0]

			if err := cc.Store.RemoveDisk(tag); err != nil {
				return err
			}

			if err := forgetDisk(ctx, cc, tag); err != nil {
				return err
			}

			cc.Logger.Info("disk removed", slog.String("disk", tag))
			cc.Statusf("Removed disk %s.\n", tag)

			return nil
		}),
	}
}

// diskSummary is one row of disk list and the JSON schema for it.
type diskSummary struct {
	Tag           string    `json:"tag"`
	RootPath      string    `json:"root_path"`
	Active        bool      `json:"active"`
	LoggedIn      bool      `json:"logged_in"`
	State         string    `json:"state"`
	CooldownUntil time.Time `json:"cooldown_until,omitzero"`
}

func diskSummaries(cfg *config.Config, activeTag string, now time.Time) []diskSummary {
	tags := cfg.DiskTags()
	out := make([]diskSummary, 0, len(tags))

	for _, tag := range tags {
		d := cfg.Disks[tag]

		s := diskSummary{
			Tag:      tag,
			RootPath: d.RootPath,
			Active:   tag == activeTag,
			LoggedIn: d.RefreshToken != "",
		}

		if d.ActiveLimit > 0 {
			s.CooldownUntil = time.Unix(d.ActiveLimit, 0).UTC()
		}

		s.State = diskState(&s, now)
		out = append(out, s)
	}

	return out
}

func diskState(s *diskSummary, now time.Time) string {
	switch {
	case !s.LoggedIn:
		return diskStateNoToken
	case now.Before(s.CooldownUntil):
		return diskStateCooldown
	default:
		return diskStateReady
	}
}

func printDiskTable(w io.Writer, disks []diskSummary) {
	rows := make([][]string, 0, len(disks))

	for i := range disks {
		marker := ""
		if disks[i].Active {
			marker = "*"
		}

		rows = append(rows, []string{marker, disks[i].Tag, disks[i].RootPath, disks[i].State})
	}

	printTable(w, []string{"", "TAG", "ROOT", "STATE"}, rows)
}
