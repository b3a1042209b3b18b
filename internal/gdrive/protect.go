package gdrive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// SetFolderPassword installs or removes a password marker file called
// passFileName inside folderID. A non-empty pass creates the file holding
// pass when it does not exist yet; an empty pass deletes it when present.
// Both directions are no-ops when the folder is already in the wanted state.
func (a *Adapter) SetFolderPassword(ctx context.Context, folderID, passFileName, pass string) error {
	existing, err := a.findChild(ctx, folderID, passFileName)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("gdrive: looking up password file: %w", err)
	}

	switch {
	case pass != "" && existing == nil:
		a.logger.Info("protecting folder", slog.String("folder_id", folderID))

		_, err := a.Create(ctx, folderID, KindFile, passFileName, []byte(pass))

		return err

	case pass == "" && existing != nil:
		a.logger.Info("unprotecting folder", slog.String("folder_id", folderID))

		return a.Delete(ctx, existing.Id)

	default:
		return nil
	}
}
