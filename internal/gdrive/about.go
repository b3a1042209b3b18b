package gdrive

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"google.golang.org/api/drive/v3"
)

// defaultQuotaTotal is reported when the account has no storage limit field
// (the free-tier allowance).
const defaultQuotaTotal int64 = 15_000_000_000

// quotaUnit is the unit of Quota values.
const quotaUnit = "byte"

// DiskSpace reports storage usage for the account.
func (a *Adapter) DiskSpace(ctx context.Context) (Quota, error) {
	var about drive.About
	if err := a.callJSON(ctx, http.MethodGet, "/about?fields=storageQuota", nil, &about, http.StatusOK); err != nil {
		return Quota{}, fmt.Errorf("gdrive: reading storage quota: %w", err)
	}

	q := Quota{Total: defaultQuotaTotal, Unit: quotaUnit}

	if sq := about.StorageQuota; sq != nil {
		q.Used = sq.Usage

		if sq.Limit > 0 {
			q.Total = sq.Limit
		}
	}

	return q, nil
}

// ThumbnailURL returns the thumbnail link of the item at p, or "" when the
// provider has none.
func (a *Adapter) ThumbnailURL(ctx context.Context, p string) (string, error) {
	id, err := a.ResolveID(ctx, p)
	if err != nil {
		return "", err
	}

	f, err := a.getFile(ctx, id, "thumbnailLink")
	if err != nil {
		return "", fmt.Errorf("gdrive: reading thumbnail of %q: %w", cleanPath(p), err)
	}

	return f.ThumbnailLink, nil
}

// SharedDriveID returns the id of the shared drive called name.
func (a *Adapter) SharedDriveID(ctx context.Context, name string) (string, error) {
	drives, err := a.SharedDrives(ctx)
	if err != nil {
		return "", err
	}

	for _, d := range drives {
		if d.Name == name {
			return d.ID, nil
		}
	}

	return "", fmt.Errorf("shared drive %q: %w", name, ErrNotFound)
}

// SharedDrives lists every shared drive visible to the account.
func (a *Adapter) SharedDrives(ctx context.Context) ([]SharedDrive, error) {
	var (
		drives    []SharedDrive
		pageToken string
	)

	for {
		q := url.Values{}
		q.Set("pageSize", "100")
		q.Set("fields", "nextPageToken,drives(id,name)")

		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var list drive.DriveList
		if err := a.callJSON(ctx, http.MethodGet, "/drives?"+q.Encode(), nil, &list, http.StatusOK); err != nil {
			return nil, fmt.Errorf("gdrive: listing shared drives: %w", err)
		}

		for _, d := range list.Drives {
			drives = append(drives, SharedDrive{ID: d.Id, Name: d.Name})
		}

		if list.NextPageToken == "" {
			break
		}

		pageToken = list.NextPageToken
	}

	a.logger.Debug("listed shared drives", slog.Int("count", len(drives)))

	return drives, nil
}
