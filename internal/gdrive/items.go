package gdrive

import (
	"context"
	"crypto/md5" //nolint:gosec // cache key digest, not a security boundary
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
)

// listPageSize is the pageSize for children queries (Drive's maximum).
const listPageSize = 1000

// Field masks requested from the files endpoints.
const (
	itemFields = "id,name,mimeType,size,modifiedTime,parents,webContentLink,trashed"
	listFields = "nextPageToken,files(" + itemFields + ")"
)

// listCachePrefix namespaces cached listings in the cache store.
const listCachePrefix = "google_list_"

// ListChildren returns the non-trashed children of the folder at p in
// provider order. Small files carry their content. Results are cached per
// path for the configured list TTL.
func (a *Adapter) ListChildren(ctx context.Context, p string) ([]FileDescriptor, error) {
	key, err := a.listCacheKey(p)
	if err != nil {
		return nil, err
	}

	if items, ok := a.cachedListing(ctx, key); ok {
		a.logger.Debug("listing served from cache", slog.String("path", cleanPath(p)))
		return items, nil
	}

	id, err := a.ResolveID(ctx, p)
	if err != nil {
		return nil, err
	}

	a.logger.Info("listing children",
		slog.String("path", cleanPath(p)),
		slog.String("folder_id", id),
	)

	files, err := a.fetchAllChildren(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("gdrive: listing %q: %w", cleanPath(p), err)
	}

	items := make([]FileDescriptor, 0, len(files))

	for _, f := range files {
		// The query already excludes trashed items; guard anyway.
		if f.Trashed {
			continue
		}

		d := a.normalize(f)
		if !d.IsFolder() && d.Size < inlineContentLimit {
			d.Content = a.fetchContent(ctx, d.ID)
		}

		items = append(items, d)
	}

	a.saveListing(ctx, key, items)

	a.logger.Info("listed children",
		slog.String("path", cleanPath(p)),
		slog.Int("total_items", len(items)),
	)

	return items, nil
}

// fetchAllChildren follows nextPageToken until the listing is exhausted.
func (a *Adapter) fetchAllChildren(ctx context.Context, folderID string) ([]*drive.File, error) {
	var (
		files     []*drive.File
		pageToken string
	)

	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("q", fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(folderID)))
		q.Set("fields", listFields)
		q.Set("pageSize", fmt.Sprint(listPageSize))

		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var list drive.FileList
		if err := a.callJSON(ctx, http.MethodGet, "/files?"+q.Encode(), nil, &list, http.StatusOK); err != nil {
			return nil, err
		}

		a.logger.Debug("fetched children page",
			slog.String("folder_id", folderID),
			slog.Int("page", page),
			slog.Int("count", len(list.Files)),
		)

		files = append(files, list.Files...)

		if list.NextPageToken == "" {
			return files, nil
		}

		pageToken = list.NextPageToken
	}
}

// normalize converts a Drive file into a FileDescriptor.
func (a *Adapter) normalize(f *drive.File) FileDescriptor {
	d := FileDescriptor{
		ID:          f.Id,
		Name:        f.Name,
		Kind:        KindFile,
		Size:        f.Size,
		DownloadURL: f.WebContentLink,
		MimeType:    f.MimeType,
	}

	if f.MimeType == folderMimeType {
		d.Kind = KindFolder
		d.Size = 0
	} else {
		d.Extension = strings.TrimPrefix(path.Ext(f.Name), ".")
	}

	if len(f.Parents) > 0 {
		d.ParentID = f.Parents[0]
	}

	if f.ModifiedTime != "" {
		t, err := time.Parse(time.RFC3339, f.ModifiedTime)
		if err != nil {
			a.logger.Warn("invalid modifiedTime",
				slog.String("item_id", f.Id),
				slog.String("raw", f.ModifiedTime),
			)
		} else {
			d.ModifiedAt = t
		}
	}

	return d
}

// fetchContent downloads a small file's bytes, re-encoded to UTF-8 when the
// detector reports another text encoding. Failures are logged and yield nil.
func (a *Adapter) fetchContent(ctx context.Context, id string) []byte {
	data, err := a.download(ctx, id)
	if err != nil {
		a.logger.Warn("fetching content failed",
			slog.String("item_id", id),
			slog.String("error", err.Error()),
		)

		return nil
	}

	label := a.detector.Detect(data)

	out, err := toUTF8(label, data)
	if err != nil {
		a.logger.Warn("re-encoding content failed, keeping raw bytes",
			slog.String("item_id", id),
			slog.String("encoding", label),
			slog.String("error", err.Error()),
		)

		return data
	}

	return out
}

// download fetches the raw bytes of a file.
func (a *Adapter) download(ctx context.Context, id string) ([]byte, error) {
	resp, err := a.call(ctx, http.MethodGet, "/files/"+url.PathEscape(id)+"?alt=media", nil, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gdrive: reading content of %s: %w", id, err)
	}

	return data, nil
}

// Info returns the descriptor of the item at p, without content.
func (a *Adapter) Info(ctx context.Context, p string) (FileDescriptor, error) {
	id, err := a.ResolveID(ctx, p)
	if err != nil {
		return FileDescriptor{}, err
	}

	f, err := a.getFile(ctx, id, itemFields)
	if err != nil {
		return FileDescriptor{}, err
	}

	return a.normalize(f), nil
}

// ReadFile returns the raw bytes of the file at p.
func (a *Adapter) ReadFile(ctx context.Context, p string) ([]byte, error) {
	id, err := a.ResolveID(ctx, p)
	if err != nil {
		return nil, err
	}

	a.logger.Info("reading file", slog.String("path", cleanPath(p)))

	return a.download(ctx, id)
}

// getFile fetches one file's metadata restricted to fields.
func (a *Adapter) getFile(ctx context.Context, id, fields string) (*drive.File, error) {
	var f drive.File

	apiPath := "/files/" + url.PathEscape(id) + "?fields=" + url.QueryEscape(fields)
	if err := a.callJSON(ctx, http.MethodGet, apiPath, nil, &f, http.StatusOK); err != nil {
		return nil, err
	}

	return &f, nil
}

// listCacheKey is the cache key for the listing of p. The digest covers
// the validated segments under the disk's root path.
func (a *Adapter) listCacheKey(p string) (string, error) {
	parts, err := a.splitPath(p)
	if err != nil {
		return "", err
	}

	sum := md5.Sum([]byte("/" + strings.Join(parts, "/"))) //nolint:gosec // see import

	return listCachePrefix + a.tag + "_" + hex.EncodeToString(sum[:]), nil
}

// cachedListing returns a cached listing. Cache failures count as a miss.
func (a *Adapter) cachedListing(ctx context.Context, key string) ([]FileDescriptor, bool) {
	raw, ok, err := a.cache.Get(ctx, key)
	if err != nil {
		a.logger.Warn("reading cached listing failed", slog.String("error", err.Error()))
		return nil, false
	}

	if !ok {
		return nil, false
	}

	var items []FileDescriptor
	if err := json.Unmarshal(raw, &items); err != nil {
		a.logger.Warn("discarding undecodable cached listing", slog.String("error", err.Error()))
		return nil, false
	}

	return items, true
}

func (a *Adapter) saveListing(ctx context.Context, key string, items []FileDescriptor) {
	raw, err := json.Marshal(items)
	if err == nil {
		err = a.cache.Put(ctx, key, a.tag, raw, a.listTTL)
	}

	if err != nil {
		a.logger.Warn("caching listing failed", slog.String("error", err.Error()))
	}
}

// invalidate drops the cached listings of the given folder paths.
func (a *Adapter) invalidate(ctx context.Context, folders ...string) {
	for _, p := range folders {
		key, err := a.listCacheKey(p)
		if err != nil {
			a.logger.Debug("skipping invalidation of invalid path", slog.String("path", p))
			continue
		}

		if err := a.cache.Delete(ctx, key); err != nil {
			a.logger.Warn("invalidating cached listing failed",
				slog.String("path", cleanPath(p)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// parentOf returns the parent folder path of p ("/" for top-level items).
func parentOf(p string) string {
	return path.Dir(cleanPath(p))
}
