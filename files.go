package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/gdrive-go/internal/config"
	"github.com/tonimelisma/gdrive-go/internal/gdrive"
)

// resumableThreshold is the size above which put switches to a resumable
// upload session even without --resumable.
const resumableThreshold = 5 * sizeMB

func newLsCmd(flags *CLIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List files and folders",
		Args:  cobra.MaximumNArgs(1),
		RunE:  withAdapter(flags, runLs),
	}
}

func newStatCmd(flags *CLIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Display file or folder metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  withAdapter(flags, runStat),
	}
}

func newCatCmd(flags *CLIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Print a file's content",
		Args:  cobra.ExactArgs(1),
		RunE:  withAdapter(flags, runCat),
	}
}

func newMkdirCmd(flags *CLIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE: withAdapter(flags, func(ctx context.Context, cc *CLIContext, a *gdrive.Adapter, args []string) error {
			id, err := a.CreatePath(ctx, args[0], gdrive.KindFolder, nil)
			if err != nil {
				return err
			}

			return reportCreated(cc, args[0], id)
		}),
	}
}

func newTouchCmd(flags *CLIFlags) *cobra.Command {
	var content string

	cmd := &cobra.Command{
		Use:   "touch <path>",
		Short: "Create a file, optionally with text content",
		Args:  cobra.ExactArgs(1),
		RunE: withAdapter(flags, func(ctx context.Context, cc *CLIContext, a *gdrive.Adapter, args []string) error {
			id, err := a.CreatePath(ctx, args[0], gdrive.KindFile, []byte(content))
			if err != nil {
				if id != "" {
					cc.Statusf("Created %s (id %s) but writing its content failed\n", args[0], id)
				}

				return err
			}

			return reportCreated(cc, args[0], id)
		}),
	}

	cmd.Flags().StringVar(&content, "content", "", "initial text content")

	return cmd
}

func newRmCmd(flags *CLIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Permanently delete a file or folder",
		Args:  cobra.ExactArgs(1),
		RunE: withAdapter(flags, func(ctx context.Context, cc *CLIContext, a *gdrive.Adapter, args []string) error {
			if err := a.DeletePath(ctx, args[0]); err != nil {
				return err
			}

			cc.Statusf("Deleted %s\n", args[0])

			return nil
		}),
	}
}

func newMvCmd(flags *CLIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mv <path> <dest-folder>",
		Short: "Move a file or folder into another folder",
		Args:  cobra.ExactArgs(2),
		RunE: withAdapter(flags, func(ctx context.Context, cc *CLIContext, a *gdrive.Adapter, args []string) error {
			if err := a.MovePath(ctx, args[0], args[1]); err != nil {
				return err
			}

			cc.Statusf("Moved %s to %s\n", args[0], args[1])

			return nil
		}),
	}
}

func newCpCmd(flags *CLIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cp <path>",
		Short: "Copy a file next to itself with a timestamp suffix",
		Args:  cobra.ExactArgs(1),
		RunE: withAdapter(flags, func(ctx context.Context, cc *CLIContext, a *gdrive.Adapter, args []string) error {
			id, err := a.CopyPath(ctx, args[0])
			if err != nil {
				return err
			}

			if cc.Flags.JSON {
				return printJSON(os.Stdout, map[string]string{"id": id})
			}

			cc.Statusf("Copied %s (new id %s)\n", args[0], id)

			return nil
		}),
	}
}

func newRenameCmd(flags *CLIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <path> <new-name>",
		Short: "Rename a file or folder in place",
		Args:  cobra.ExactArgs(2),
		RunE: withAdapter(flags, func(ctx context.Context, cc *CLIContext, a *gdrive.Adapter, args []string) error {
			if err := a.RenamePath(ctx, args[0], args[1]); err != nil {
				return err
			}

			cc.Statusf("Renamed %s to %s\n", args[0], args[1])

			return nil
		}),
	}
}

func newEditCmd(flags *CLIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <path> <local-file|->",
		Short: "Replace a file's content with a local file or stdin",
		Args:  cobra.ExactArgs(2),
		RunE: withAdapter(flags, func(ctx context.Context, cc *CLIContext, a *gdrive.Adapter, args []string) error {
			content, err := readLocal(args[1])
			if err != nil {
				return err
			}

			if err := a.EditPath(ctx, args[0], content); err != nil {
				return err
			}

			cc.Statusf("Updated %s (%s)\n", args[0], formatSize(int64(len(content))))

			return nil
		}),
	}
}

func newPutCmd(flags *CLIFlags) *cobra.Command {
	var (
		resumable bool
		chunkSize string
	)

	cmd := &cobra.Command{
		Use:   "put <local-path> [remote-path]",
		Short: "Upload a file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withAdapter(flags, func(ctx context.Context, cc *CLIContext, a *gdrive.Adapter, args []string) error {
			return runPut(ctx, cc, a, args, resumable, chunkSize)
		}),
	}

	cmd.Flags().BoolVar(&resumable, "resumable", false, "always use a resumable upload session")
	cmd.Flags().StringVar(&chunkSize, "chunk-size", "", "resumable chunk size, a multiple of 256KiB (default from config)")

	return cmd
}

func runLs(ctx context.Context, cc *CLIContext, a *gdrive.Adapter, args []string) error {
	remotePath := "/"
	if len(args) > 0 {
		remotePath = args[0]
	}

	items, err := a.ListChildren(ctx, remotePath)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(os.Stdout, listingJSON(items))
	}

	printListing(os.Stdout, items, time.Now())

	return nil
}

// lsJSONItem is the JSON output schema for one entry of ls. File content
// fetched for small files is left out.
type lsJSONItem struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	Extension  string    `json:"ext,omitempty"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
	MimeType   string    `json:"mime_type,omitempty"`
}

func listingJSON(items []gdrive.FileDescriptor) []lsJSONItem {
	out := make([]lsJSONItem, 0, len(items))

	for i := range items {
		out = append(out, lsJSONItem{
			ID:         items[i].ID,
			Name:       items[i].Name,
			Kind:       string(items[i].Kind),
			Extension:  items[i].Extension,
			Size:       items[i].Size,
			ModifiedAt: items[i].ModifiedAt,
			MimeType:   items[i].MimeType,
		})
	}

	return out
}

func runStat(ctx context.Context, cc *CLIContext, a *gdrive.Adapter, args []string) error {
	fd, err := a.Info(ctx, args[0])
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(os.Stdout, listingJSON([]gdrive.FileDescriptor{fd})[0])
	}

	fmt.Printf("Name:     %s\n", fd.Name)
	fmt.Printf("ID:       %s\n", fd.ID)
	fmt.Printf("Kind:     %s\n", fd.Kind)

	if !fd.IsFolder() {
		fmt.Printf("Size:     %s (%d bytes)\n", formatSize(fd.Size), fd.Size)
		fmt.Printf("Type:     %s\n", fd.MimeType)
	}

	fmt.Printf("Modified: %s\n", fd.ModifiedAt.Local().Format(time.RFC3339))

	if fd.ParentID != "" {
		fmt.Printf("Parent:   %s\n", fd.ParentID)
	}

	return nil
}

func runCat(ctx context.Context, _ *CLIContext, a *gdrive.Adapter, args []string) error {
	data, err := a.ReadFile(ctx, args[0])
	if err != nil {
		return err
	}

	_, err = os.Stdout.Write(data)

	return err
}

func runPut(ctx context.Context, cc *CLIContext, a *gdrive.Adapter, args []string, resumable bool, chunkFlag string) error {
	localPath := args[0]

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening local file: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stating local file: %w", err)
	}

	if fi.IsDir() {
		return fmt.Errorf("%q is a directory, not a file", localPath)
	}

	remotePath := remoteTarget(localPath, args[1:])

	cc.Logger.Debug("put",
		slog.String("local_path", localPath),
		slog.String("remote_path", remotePath),
		slog.Int64("size", fi.Size()),
	)

	if !resumable && fi.Size() < resumableThreshold {
		id, err := a.SmallFileUpload(ctx, remotePath, f)
		if err != nil {
			return err
		}

		cc.Statusf("Uploaded %s (%s)\n", remotePath, formatSize(fi.Size()))

		if cc.Flags.JSON {
			return printJSON(os.Stdout, map[string]string{"id": id})
		}

		return nil
	}

	chunkSize := cc.Resolved.ChunkSize
	if chunkFlag != "" {
		if chunkSize, err = config.ParseChunkSize(chunkFlag); err != nil {
			return fmt.Errorf("--chunk-size: %w", err)
		}
	}

	done := activeUploads.begin(remotePath)
	defer done()

	item, err := a.ResumeUpload(ctx, remotePath, f, fi.Size(), chunkSize)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			cc.Statusf("Upload interrupted; re-run the same command to resume.\n")
		}

		return err
	}

	cc.Statusf("Uploaded %s (%s)\n", remotePath, formatSize(fi.Size()))

	if cc.Flags.JSON {
		return printJSON(os.Stdout, listingJSON([]gdrive.FileDescriptor{*item})[0])
	}

	return nil
}

// remoteTarget returns the upload destination: the explicit argument, with
// the local base name appended when it names a folder ("/docs/"), or
// "/<base name>" when absent.
func remoteTarget(localPath string, rest []string) string {
	base := filepath.Base(localPath)

	if len(rest) == 0 || rest[0] == "" {
		return "/" + base
	}

	target := rest[0]
	if target[len(target)-1] == '/' {
		return path.Join(target, base)
	}

	return target
}

// readLocal reads a local file, or stdin when name is "-".
func readLocal(name string) ([]byte, error) {
	if name == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}

		return data, nil
	}

	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	return data, nil
}

func reportCreated(cc *CLIContext, p, id string) error {
	if cc.Flags.JSON {
		return printJSON(os.Stdout, map[string]string{"id": id, "path": p})
	}

	cc.Statusf("Created %s (id %s)\n", p, id)

	return nil
}
