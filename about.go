package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/gdrive-go/internal/gdrive"
)

const defaultPassFileName = ".password"

func newQuotaCmd(flags *CLIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show storage usage of the active disk",
		Args:  cobra.NoArgs,
		RunE: withAdapter(flags, func(ctx context.Context, cc *CLIContext, a *gdrive.Adapter, _ []string) error {
			q, err := a.DiskSpace(ctx)
			if err != nil {
				return err
			}

			if cc.Flags.JSON {
				return printJSON(os.Stdout, q)
			}

			fmt.Printf("Used:  %s\n", formatSize(q.Used))
			fmt.Printf("Total: %s\n", formatSize(q.Total))

			if q.Total > 0 {
				fmt.Printf("Free:  %s (%.1f%% used)\n", formatSize(q.Total-q.Used), float64(q.Used)*100/float64(q.Total))
			}

			return nil
		}),
	}
}

func newThumbCmd(flags *CLIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "thumb <path>",
		Short: "Print the thumbnail URL of a file",
		Args:  cobra.ExactArgs(1),
		RunE: withAdapter(flags, func(ctx context.Context, _ *CLIContext, a *gdrive.Adapter, args []string) error {
			link, err := a.ThumbnailURL(ctx, args[0])
			if err != nil {
				return err
			}

			if link == "" {
				return fmt.Errorf("%s has no thumbnail", args[0])
			}

			fmt.Println(link)

			return nil
		}),
	}
}

func newSharedDriveCmd(flags *CLIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "shared-drive [name]",
		Short: "List shared drives, or print the ID of one by name",
		Args:  cobra.MaximumNArgs(1),
		RunE: withAdapter(flags, func(ctx context.Context, cc *CLIContext, a *gdrive.Adapter, args []string) error {
			if len(args) == 1 {
				id, err := a.SharedDriveID(ctx, args[0])
				if err != nil {
					return err
				}

				fmt.Println(id)

				return nil
			}

			drives, err := a.SharedDrives(ctx)
			if err != nil {
				return err
			}

			if cc.Flags.JSON {
				return printJSON(os.Stdout, drives)
			}

			rows := make([][]string, 0, len(drives))
			for _, d := range drives {
				rows = append(rows, []string{d.Name, d.ID})
			}

			printTable(os.Stdout, []string{"NAME", "ID"}, rows)

			return nil
		}),
	}
}

func newPasswdCmd(flags *CLIFlags) *cobra.Command {
	var fileName string

	cmd := &cobra.Command{
		Use:   "passwd <folder> [password]",
		Short: "Protect a folder with a password file",
		Long: `Write a password file into a folder. Frontends serving the disk refuse
to list a folder holding this file until the password is supplied. When the
password is omitted it is read from the first line of stdin.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: withAdapter(flags, func(ctx context.Context, cc *CLIContext, a *gdrive.Adapter, args []string) error {
			pass, err := passwordArg(args[1:], os.Stdin)
			if err != nil {
				return err
			}

			folderID, err := a.ResolveID(ctx, args[0])
			if err != nil {
				return err
			}

			if err := a.SetFolderPassword(ctx, folderID, fileName, pass); err != nil {
				return err
			}

			cc.Statusf("Protected %s.\n", args[0])

			return nil
		}),
	}

	cmd.Flags().StringVar(&fileName, "file-name", defaultPassFileName, "name of the password file")

	return cmd
}

// passwordArg returns the password given on the command line, or the first
// line of stdin.
func passwordArg(rest []string, stdin io.Reader) (string, error) {
	if len(rest) > 0 {
		return rest[0], nil
	}

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}

	pass := strings.TrimRight(line, "\r\n")
	if pass == "" {
		return "", errors.New("empty password")
	}

	return pass, nil
}
