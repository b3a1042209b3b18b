package gdrive

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requestLog records "METHOD path" for every request a fake provider sees.
type requestLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *requestLog) add(r *http.Request) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lines = append(l.lines, r.Method+" "+r.URL.Path)
}

func (l *requestLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), l.lines...)
}

func decodeRequest(t *testing.T, r *http.Request) map[string]any {
	t.Helper()

	var body map[string]any
	assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

	return body
}

func TestRename(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /drive/v3/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "id-1", r.PathValue("id"))
		assert.Equal(t, map[string]any{"name": "new.txt"}, decodeRequest(t, r))
		writeJSON(t, w, map[string]string{"id": "id-1"})
	})

	env := newTestEnv(t, mux)
	require.NoError(t, env.adapter.Rename(context.Background(), "id-1", "new.txt"))
}

func TestRename_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /drive/v3/files/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	env := newTestEnv(t, mux)

	err := env.adapter.Rename(context.Background(), "missing", "x")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestDelete_Expects204(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"no content", http.StatusNoContent, nil},
		{"ok is unexpected", http.StatusOK, ErrUnexpectedStatus},
		{"not found", http.StatusNotFound, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("DELETE /drive/v3/files/{id}", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			})

			env := newTestEnv(t, mux)

			err := env.adapter.Delete(context.Background(), "id-1")
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}

			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestMove_DiscoversParentFirst(t *testing.T) {
	var log requestLog

	mux := http.NewServeMux()
	mux.HandleFunc("GET /drive/v3/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		log.add(r)
		assert.Equal(t, "parents", r.URL.Query().Get("fields"))
		writeJSON(t, w, map[string]any{"parents": []string{"old-parent"}})
	})
	mux.HandleFunc("PATCH /drive/v3/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		log.add(r)
		assert.Equal(t, "new-parent", r.URL.Query().Get("addParents"))
		assert.Equal(t, "old-parent", r.URL.Query().Get("removeParents"))
		writeJSON(t, w, map[string]string{"id": "id-1"})
	})

	env := newTestEnv(t, mux)
	require.NoError(t, env.adapter.Move(context.Background(), "id-1", "new-parent"))

	assert.Equal(t, []string{
		"GET /drive/v3/files/id-1",
		"PATCH /drive/v3/files/id-1",
	}, log.all())
}

func TestMove_NoParentDefaultsToRoot(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /drive/v3/files/{id}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{})
	})
	mux.HandleFunc("PATCH /drive/v3/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "root", r.URL.Query().Get("removeParents"))
		writeJSON(t, w, map[string]string{"id": "id-1"})
	})

	env := newTestEnv(t, mux)
	require.NoError(t, env.adapter.Move(context.Background(), "id-1", "dest"))
}

func TestMove_ParentLookupFailureSkipsMutation(t *testing.T) {
	var log requestLog

	mux := http.NewServeMux()
	mux.HandleFunc("GET /drive/v3/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		log.add(r)
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("PATCH /drive/v3/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		log.add(r)
	})

	env := newTestEnv(t, mux)

	err := env.adapter.Move(context.Background(), "id-1", "dest")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"GET /drive/v3/files/id-1"}, log.all())
}

func TestCopy_AppendsTimestamp(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /drive/v3/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "name,mimeType", r.URL.Query().Get("fields"))
		writeJSON(t, w, map[string]string{"name": "report.pdf", "mimeType": "application/pdf"})
	})
	mux.HandleFunc("POST /drive/v3/files/{id}/copy", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "id-1", r.PathValue("id"))
		assert.Equal(t, map[string]any{"name": "report.pdf_20260304050607"}, decodeRequest(t, r))
		writeJSON(t, w, map[string]string{"id": "id-copy"})
	})

	env := newTestEnv(t, mux)
	env.adapter.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }

	id, err := env.adapter.Copy(context.Background(), "id-1")
	require.NoError(t, err)
	assert.Equal(t, "id-copy", id)
}

func TestCreate_FolderSkipsEdit(t *testing.T) {
	var log requestLog

	mux := http.NewServeMux()
	mux.HandleFunc("POST /drive/v3/files", func(w http.ResponseWriter, r *http.Request) {
		log.add(r)

		body := decodeRequest(t, r)
		assert.Equal(t, "Docs", body["name"])
		assert.Equal(t, folderMimeType, body["mimeType"])
		assert.Equal(t, []any{"parent-1"}, body["parents"])

		writeJSON(t, w, map[string]string{"id": "new-folder"})
	})
	mux.HandleFunc("/upload/", func(_ http.ResponseWriter, r *http.Request) {
		log.add(r)
	})

	env := newTestEnv(t, mux)

	id, err := env.adapter.Create(context.Background(), "parent-1", KindFolder, "Docs", []byte("ignored"))
	require.NoError(t, err)
	assert.Equal(t, "new-folder", id)
	assert.Equal(t, []string{"POST /drive/v3/files"}, log.all())
}

func TestCreate_FileWithContentEdits(t *testing.T) {
	var log requestLog

	mux := http.NewServeMux()
	mux.HandleFunc("POST /drive/v3/files", func(w http.ResponseWriter, r *http.Request) {
		log.add(r)
		assert.Equal(t, defaultFileMimeType, decodeRequest(t, r)["mimeType"])
		writeJSON(t, w, map[string]string{"id": "new-file"})
	})
	mux.HandleFunc("PUT /upload/drive/v3/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		log.add(r)
		assert.Equal(t, "media", r.URL.Query().Get("uploadType"))
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "hello", string(body))

		writeJSON(t, w, map[string]string{"id": r.PathValue("id")})
	})

	env := newTestEnv(t, mux)

	id, err := env.adapter.Create(context.Background(), "root", KindFile, "a.txt", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "new-file", id)
	assert.Equal(t, []string{
		"POST /drive/v3/files",
		"PUT /upload/drive/v3/files/new-file",
	}, log.all())
}

func TestCreate_EditFailureReturnsID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /drive/v3/files", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]string{"id": "new-file"})
	})
	mux.HandleFunc("PUT /upload/drive/v3/files/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	env := newTestEnv(t, mux)

	id, err := env.adapter.Create(context.Background(), "root", KindFile, "a.txt", []byte("x"))
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.Equal(t, "new-file", id)
}

func TestPathWrappers_InvalidateParentListing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /drive/v3/files", childLookup(t, map[string]string{
		"root/docs":     "id-docs",
		"id-docs/a.txt": "id-a",
	}))
	mux.HandleFunc("PATCH /drive/v3/files/{id}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]string{"id": "id-a"})
	})
	mux.HandleFunc("DELETE /drive/v3/files/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	env := newTestEnv(t, mux)
	ctx := context.Background()

	seed := func() {
		require.NoError(t, env.cache.Put(ctx, env.listKey(t, "/docs"), testTag, []byte("[]"), time.Hour))
	}

	seed()
	require.NoError(t, env.adapter.RenamePath(ctx, "/docs/a.txt", "b.txt"))

	_, ok := env.cache.entry(env.listKey(t, "/docs"))
	assert.False(t, ok, "rename must drop the parent listing")

	seed()
	require.NoError(t, env.adapter.DeletePath(ctx, "/docs/a.txt"))

	_, ok = env.cache.entry(env.listKey(t, "/docs"))
	assert.False(t, ok, "delete must drop the parent listing")
}

func TestPathWrappers_InvalidateOwnListing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /drive/v3/files", childLookup(t, map[string]string{
		"root/old":     "id-old",
		"root/archive": "id-archive",
	}))
	mux.HandleFunc("GET /drive/v3/files/{id}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{"parents": []string{"root"}})
	})
	mux.HandleFunc("PATCH /drive/v3/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]string{"id": r.PathValue("id")})
	})

	env := newTestEnv(t, mux)
	ctx := context.Background()

	seed := func(p string) {
		require.NoError(t, env.cache.Put(ctx, env.listKey(t, p), testTag, []byte("[]"), time.Hour))
	}

	seed("/old")
	require.NoError(t, env.adapter.RenamePath(ctx, "/old", "new"))

	_, ok := env.cache.entry(env.listKey(t, "/old"))
	assert.False(t, ok, "rename must drop the folder's own listing")

	seed("/old")
	seed("/archive")
	require.NoError(t, env.adapter.MovePath(ctx, "/old", "/archive"))

	_, ok = env.cache.entry(env.listKey(t, "/old"))
	assert.False(t, ok, "move must drop the folder's own listing")

	_, ok = env.cache.entry(env.listKey(t, "/archive"))
	assert.False(t, ok, "move must drop the destination listing")
}

func TestCreatePath_ResolvesParent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /drive/v3/files", childLookup(t, map[string]string{"root/docs": "id-docs"}))
	mux.HandleFunc("POST /drive/v3/files", func(w http.ResponseWriter, r *http.Request) {
		body := decodeRequest(t, r)
		assert.Equal(t, "notes", body["name"])
		assert.Equal(t, []any{"id-docs"}, body["parents"])
		writeJSON(t, w, map[string]string{"id": "id-notes"})
	})

	env := newTestEnv(t, mux)

	id, err := env.adapter.CreatePath(context.Background(), "/docs/notes", KindFolder, nil)
	require.NoError(t, err)
	assert.Equal(t, "id-notes", id)
}

func TestSetFolderPassword(t *testing.T) {
	tests := []struct {
		name       string
		exists     bool
		pass       string
		wantCreate bool
		wantDelete bool
	}{
		{"set new", false, "secret", true, false},
		{"set existing", true, "secret", false, false},
		{"clear existing", true, "", false, true},
		{"clear missing", false, "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var created, deleted atomic.Bool

			tree := map[string]string{}
			if tt.exists {
				tree["folder-1/.password"] = "pw-file"
			}

			mux := http.NewServeMux()
			mux.HandleFunc("GET /drive/v3/files", childLookup(t, tree))
			mux.HandleFunc("POST /drive/v3/files", func(w http.ResponseWriter, r *http.Request) {
				created.Store(true)
				assert.Equal(t, ".password", decodeRequest(t, r)["name"])
				writeJSON(t, w, map[string]string{"id": "pw-file"})
			})
			mux.HandleFunc("PUT /upload/drive/v3/files/{id}", func(w http.ResponseWriter, r *http.Request) {
				body, _ := io.ReadAll(r.Body)
				assert.Equal(t, tt.pass, string(body))
				writeJSON(t, w, map[string]string{"id": "pw-file"})
			})
			mux.HandleFunc("DELETE /drive/v3/files/{id}", func(w http.ResponseWriter, r *http.Request) {
				deleted.Store(true)
				assert.Equal(t, "pw-file", r.PathValue("id"))
				w.WriteHeader(http.StatusNoContent)
			})

			env := newTestEnv(t, mux)

			require.NoError(t, env.adapter.SetFolderPassword(context.Background(), "folder-1", ".password", tt.pass))
			assert.Equal(t, tt.wantCreate, created.Load())
			assert.Equal(t, tt.wantDelete, deleted.Load())
		})
	}
}
