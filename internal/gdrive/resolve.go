package gdrive

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
	"google.golang.org/api/drive/v3"
)

// rootID is Drive's alias for the account's root folder.
const rootID = "root"

// ResolveID walks p from the disk root one segment at a time and returns the
// id of the item it names. The disk's configured root path is prefixed to p.
func (a *Adapter) ResolveID(ctx context.Context, p string) (string, error) {
	parts, err := a.splitPath(p)
	if err != nil {
		return "", err
	}

	id := rootID

	for i, name := range parts {
		f, err := a.findChild(ctx, id, name)
		if err != nil {
			return "", fmt.Errorf("resolving %q: %w", "/"+strings.Join(parts[:i+1], "/"), err)
		}

		id = f.Id
	}

	a.logger.Debug("resolved path",
		slog.String("path", p),
		slog.String("id", id),
	)

	return id, nil
}

// findChild looks up a non-trashed item called name directly under parentID.
// The first match wins.
func (a *Adapter) findChild(ctx context.Context, parentID, name string) (*drive.File, error) {
	q := url.Values{}
	q.Set("q", fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", escapeQuery(name), escapeQuery(parentID)))
	q.Set("fields", "files(id)")

	var list drive.FileList
	if err := a.callJSON(ctx, http.MethodGet, "/files?"+q.Encode(), nil, &list, http.StatusOK); err != nil {
		return nil, err
	}

	if len(list.Files) == 0 {
		return nil, ErrNotFound
	}

	return list.Files[0], nil
}

// splitPath validates p, prefixes the disk's root path, and returns the
// NFC-normalized segments. An empty result means the root.
func (a *Adapter) splitPath(p string) ([]string, error) {
	rootParts, err := splitSegments(a.disk.RootPath)
	if err != nil {
		return nil, fmt.Errorf("disk root_path: %w", err)
	}

	parts, err := splitSegments(p)
	if err != nil {
		return nil, err
	}

	return append(rootParts, parts...), nil
}

// splitSegments splits a slash-separated path, dropping empty segments.
// Relative components are rejected rather than cleaned away.
func splitSegments(p string) ([]string, error) {
	var parts []string

	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "":
			continue
		case ".", "..":
			return nil, fmt.Errorf("%w: relative component in %q", ErrInvalidPath, p)
		}

		parts = append(parts, norm.NFC.String(seg))
	}

	return parts, nil
}

// escapeQuery escapes a value for use inside a single-quoted Drive query
// string. Backslashes go first so the quote escapes survive.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "'", `\'`)

	return s
}

// splitParent returns the parent path and base name of p.
func splitParent(p string) (dir, name string, err error) {
	parts, err := splitSegments(p)
	if err != nil {
		return "", "", err
	}

	if len(parts) == 0 {
		return "", "", fmt.Errorf("%w: %q has no parent", ErrInvalidPath, p)
	}

	return "/" + path.Join(parts[:len(parts)-1]...), parts[len(parts)-1], nil
}

// cleanPath canonicalizes a caller path for cache keys and logging.
func cleanPath(p string) string {
	return path.Clean("/" + p)
}
