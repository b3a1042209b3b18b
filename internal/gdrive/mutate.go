package gdrive

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"google.golang.org/api/drive/v3"
)

// copySuffixLayout is appended to the name of a copied item.
const copySuffixLayout = "20060102150405"

// Rename changes the name of item id.
func (a *Adapter) Rename(ctx context.Context, id, newName string) error {
	a.logger.Info("renaming item",
		slog.String("item_id", id),
		slog.String("new_name", newName),
	)

	body := map[string]string{"name": newName}
	if err := a.callJSON(ctx, http.MethodPatch, "/files/"+url.PathEscape(id), body, nil, http.StatusOK); err != nil {
		return fmt.Errorf("gdrive: renaming %s: %w", id, err)
	}

	return nil
}

// Delete permanently removes item id.
func (a *Adapter) Delete(ctx context.Context, id string) error {
	a.logger.Info("deleting item", slog.String("item_id", id))

	if err := a.callJSON(ctx, http.MethodDelete, "/files/"+url.PathEscape(id), nil, nil, http.StatusNoContent); err != nil {
		return fmt.Errorf("gdrive: deleting %s: %w", id, err)
	}

	return nil
}

// Move reparents item id under newParentID. The current parent is looked up
// first so it can be removed in the same request.
func (a *Adapter) Move(ctx context.Context, id, newParentID string) error {
	oldParent, err := a.currentParent(ctx, id)
	if err != nil {
		return fmt.Errorf("gdrive: moving %s: %w", id, err)
	}

	a.logger.Info("moving item",
		slog.String("item_id", id),
		slog.String("from", oldParent),
		slog.String("to", newParentID),
	)

	q := url.Values{}
	q.Set("addParents", newParentID)
	q.Set("removeParents", oldParent)

	apiPath := "/files/" + url.PathEscape(id) + "?" + q.Encode()
	if err := a.callJSON(ctx, http.MethodPatch, apiPath, struct{}{}, nil, http.StatusOK); err != nil {
		return fmt.Errorf("gdrive: moving %s: %w", id, err)
	}

	return nil
}

// currentParent returns the first parent of id, defaulting to the root.
func (a *Adapter) currentParent(ctx context.Context, id string) (string, error) {
	f, err := a.getFile(ctx, id, "parents")
	if err != nil {
		return "", fmt.Errorf("looking up parent: %w", err)
	}

	if len(f.Parents) == 0 {
		return rootID, nil
	}

	return f.Parents[0], nil
}

// Copy duplicates item id next to the original, naming the copy
// "<name>_<YYYYMMDDhhmmss>". Returns the id of the copy.
func (a *Adapter) Copy(ctx context.Context, id string) (string, error) {
	f, err := a.getFile(ctx, id, "name,mimeType")
	if err != nil {
		return "", fmt.Errorf("gdrive: copying %s: %w", id, err)
	}

	newName := f.Name + "_" + a.now().Format(copySuffixLayout)

	a.logger.Info("copying item",
		slog.String("item_id", id),
		slog.String("new_name", newName),
	)

	var created drive.File
	if err := a.callJSON(ctx, http.MethodPost, "/files/"+url.PathEscape(id)+"/copy",
		map[string]string{"name": newName}, &created, http.StatusOK); err != nil {
		return "", fmt.Errorf("gdrive: copying %s: %w", id, err)
	}

	return created.Id, nil
}

// Create makes a new file or folder called name under parentID. Non-empty
// content of a file is written with a follow-up Edit; a failed Edit leaves
// the empty file in place. Returns the new id.
func (a *Adapter) Create(ctx context.Context, parentID string, kind Kind, name string, content []byte) (string, error) {
	mimeType := defaultFileMimeType
	if kind == KindFolder {
		mimeType = folderMimeType
	}

	a.logger.Info("creating item",
		slog.String("parent_id", parentID),
		slog.String("name", name),
		slog.String("kind", string(kind)),
	)

	req := &drive.File{
		Name:     name,
		Parents:  []string{parentID},
		MimeType: mimeType,
	}

	var created drive.File
	if err := a.callJSON(ctx, http.MethodPost, "/files", req, &created, http.StatusOK); err != nil {
		return "", fmt.Errorf("gdrive: creating %q: %w", name, err)
	}

	if kind != KindFolder && len(content) > 0 {
		if err := a.Edit(ctx, created.Id, content); err != nil {
			return created.Id, err
		}
	}

	return created.Id, nil
}

// Edit replaces the content of file id.
func (a *Adapter) Edit(ctx context.Context, id string, content []byte) error {
	a.logger.Info("writing content",
		slog.String("item_id", id),
		slog.Int("size", len(content)),
	)

	header := http.Header{"Content-Type": {"text/plain"}}
	apiURL := a.uploadURL + "/files/" + url.PathEscape(id) + "?uploadType=media"

	resp, err := a.call(ctx, http.MethodPut, apiURL, content, header, http.StatusOK)
	if err != nil {
		return fmt.Errorf("gdrive: editing %s: %w", id, err)
	}

	return decodeBody(resp, nil)
}

// RenamePath renames the item at p.
func (a *Adapter) RenamePath(ctx context.Context, p, newName string) error {
	id, err := a.ResolveID(ctx, p)
	if err != nil {
		return err
	}

	if err := a.Rename(ctx, id, newName); err != nil {
		return err
	}

	a.invalidate(ctx, parentOf(p), p)

	return nil
}

// DeletePath deletes the item at p.
func (a *Adapter) DeletePath(ctx context.Context, p string) error {
	id, err := a.ResolveID(ctx, p)
	if err != nil {
		return err
	}

	if err := a.Delete(ctx, id); err != nil {
		return err
	}

	a.invalidate(ctx, parentOf(p), p)

	return nil
}

// MovePath moves the item at p into the folder at destDir.
func (a *Adapter) MovePath(ctx context.Context, p, destDir string) error {
	id, err := a.ResolveID(ctx, p)
	if err != nil {
		return err
	}

	destID, err := a.ResolveID(ctx, destDir)
	if err != nil {
		return err
	}

	if err := a.Move(ctx, id, destID); err != nil {
		return err
	}

	a.invalidate(ctx, parentOf(p), p, destDir)

	return nil
}

// CopyPath copies the item at p and returns the id of the copy.
func (a *Adapter) CopyPath(ctx context.Context, p string) (string, error) {
	id, err := a.ResolveID(ctx, p)
	if err != nil {
		return "", err
	}

	newID, err := a.Copy(ctx, id)
	if err != nil {
		return "", err
	}

	a.invalidate(ctx, parentOf(p))

	return newID, nil
}

// CreatePath creates a file or folder at p. The parent must exist.
func (a *Adapter) CreatePath(ctx context.Context, p string, kind Kind, content []byte) (string, error) {
	dir, name, err := splitParent(p)
	if err != nil {
		return "", err
	}

	parentID, err := a.ResolveID(ctx, dir)
	if err != nil {
		return "", err
	}

	id, err := a.Create(ctx, parentID, kind, name, content)

	// A file may exist even when the content write failed.
	if id != "" {
		a.invalidate(ctx, dir)
	}

	return id, err
}

// EditPath replaces the content of the file at p.
func (a *Adapter) EditPath(ctx context.Context, p string, content []byte) error {
	id, err := a.ResolveID(ctx, p)
	if err != nil {
		return err
	}

	if err := a.Edit(ctx, id, content); err != nil {
		return err
	}

	a.invalidate(ctx, parentOf(p))

	return nil
}
