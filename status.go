package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/gdrive-go/internal/cache"
	"github.com/tonimelisma/gdrive-go/internal/gdrive"
)

func newStatusCmd(flags *CLIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show every disk with its login, cache and upload state",
		Long: `Display the status of all configured disks: whether a refresh token is
stored, whether the disk is cooling down after throttling, how many cache
entries it holds, and which resumable uploads are pending.

Reads local state only; no requests are sent to Google.`,
		Args: cobra.NoArgs,
		RunE: withContext(flags, runStatus),
	}
}

// statusDisk is the status report of one disk.
type statusDisk struct {
	diskSummary

	Cache   cache.Stats    `json:"cache"`
	Uploads []statusUpload `json:"pending_uploads"`
}

// statusUpload is one pending resumable upload.
type statusUpload struct {
	Path      string    `json:"path"`
	Offset    int64     `json:"offset"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

func runStatus(ctx context.Context, cc *CLIContext, _ []string) error {
	cfg := cc.Store.Config()

	if len(cfg.Disks) == 0 {
		fmt.Println("No disks configured. Run 'gdrive-go disk add <tag>' to get started.")
		return nil
	}

	store, err := cc.Cache(ctx)
	if err != nil {
		return err
	}

	summaries := diskSummaries(cfg, cc.Resolved.DiskTag, time.Now())
	disks := make([]statusDisk, 0, len(summaries))

	for i := range summaries {
		d, err := buildStatusDisk(ctx, cc, store, summaries[i])
		if err != nil {
			return err
		}

		disks = append(disks, d)
	}

	if cc.Flags.JSON {
		return printJSON(os.Stdout, disks)
	}

	printStatusText(os.Stdout, disks)

	return nil
}

func buildStatusDisk(ctx context.Context, cc *CLIContext, store *cache.Store, s diskSummary) (statusDisk, error) {
	st, err := store.Stats(ctx, s.Tag)
	if err != nil {
		return statusDisk{}, err
	}

	sessions, err := cc.sessions.List(s.Tag)
	if err != nil {
		// A broken session directory should not hide the rest of the report.
		cc.Logger.Warn("listing upload sessions failed",
			slog.String("disk", s.Tag), slog.String("error", err.Error()))
	}

	return statusDisk{
		diskSummary: s,
		Cache:       st,
		Uploads:     statusUploads(sessions),
	}, nil
}

func statusUploads(sessions []gdrive.UploadSession) []statusUpload {
	out := make([]statusUpload, 0, len(sessions))

	for i := range sessions {
		out = append(out, statusUpload{
			Path:      sessions[i].Path,
			Offset:    sessions[i].Offset,
			Size:      sessions[i].Size,
			CreatedAt: sessions[i].CreatedAt,
		})
	}

	return out
}

func printStatusText(w io.Writer, disks []statusDisk) {
	for i := range disks {
		d := &disks[i]

		if i > 0 {
			fmt.Fprintln(w)
		}

		label := d.Tag
		if d.Active {
			label += " (active)"
		}

		fmt.Fprintf(w, "Disk: %s\n", label)
		fmt.Fprintf(w, "  Root:  %s\n", d.RootPath)
		fmt.Fprintf(w, "  State: %s\n", d.State)

		if d.State == diskStateCooldown {
			fmt.Fprintf(w, "  Until: %s\n", d.CooldownUntil.Local().Format(time.RFC3339))
		}

		fmt.Fprintf(w, "  Cache: %d entries (%d expired)\n", d.Cache.Entries, d.Cache.Expired)

		for _, u := range d.Uploads {
			fmt.Fprintf(w, "  Upload: %s  %s of %s\n", u.Path, formatSize(u.Offset), formatSize(u.Size))
		}
	}
}
