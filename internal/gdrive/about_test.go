package gdrive

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskSpace(t *testing.T) {
	tests := []struct {
		name      string
		quota     map[string]string
		wantUsed  int64
		wantTotal int64
	}{
		{"limited", map[string]string{"usage": "100", "limit": "2000"}, 100, 2000},
		{"unlimited defaults", map[string]string{"usage": "7"}, 7, defaultQuotaTotal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /drive/v3/about", func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "storageQuota", r.URL.Query().Get("fields"))
				writeJSON(t, w, map[string]any{"storageQuota": tt.quota})
			})

			env := newTestEnv(t, mux)

			q, err := env.adapter.DiskSpace(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantUsed, q.Used)
			assert.Equal(t, tt.wantTotal, q.Total)
			assert.Equal(t, "byte", q.Unit)
		})
	}
}

func TestThumbnailURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /drive/v3/files", childLookup(t, map[string]string{
		"root/pic.jpg": "id-pic",
		"root/doc.txt": "id-doc",
	}))
	mux.HandleFunc("GET /drive/v3/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "thumbnailLink", r.URL.Query().Get("fields"))

		if r.PathValue("id") == "id-pic" {
			writeJSON(t, w, map[string]string{"thumbnailLink": "https://thumb/pic"})
			return
		}

		writeJSON(t, w, map[string]string{})
	})

	env := newTestEnv(t, mux)

	link, err := env.adapter.ThumbnailURL(context.Background(), "/pic.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://thumb/pic", link)

	link, err = env.adapter.ThumbnailURL(context.Background(), "/doc.txt")
	require.NoError(t, err)
	assert.Empty(t, link)
}

func TestSharedDriveID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /drive/v3/drives", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pageToken") == "" {
			writeJSON(t, w, map[string]any{
				"nextPageToken": "p2",
				"drives":        []map[string]string{{"id": "d1", "name": "Marketing"}},
			})

			return
		}

		writeJSON(t, w, map[string]any{
			"drives": []map[string]string{{"id": "d2", "name": "Engineering"}},
		})
	})

	env := newTestEnv(t, mux)

	id, err := env.adapter.SharedDriveID(context.Background(), "Engineering")
	require.NoError(t, err)
	assert.Equal(t, "d2", id)

	_, err = env.adapter.SharedDriveID(context.Background(), "Legal")
	assert.ErrorIs(t, err, ErrNotFound)
}
