package gdrive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const testTag = "work"

// memCache is an in-memory CacheStore.
type memCache struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

type memEntry struct {
	value   []byte
	tag     string
	expires time.Time
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]memEntry), now: time.Now}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expires) {
		return nil, false, nil
	}

	return e.value, true, nil
}

func (c *memCache) Put(_ context.Context, key, tag string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memEntry{value: value, tag: tag, expires: c.now().Add(ttl)}

	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)

	return nil
}

func (c *memCache) entry(key string) (memEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]

	return e, ok
}

// memConfig is an in-memory ConfigStore that records every save.
type memConfig struct {
	mu    sync.Mutex
	disks map[string]DiskConfig
	saved []map[string]string
}

func newMemConfig() *memConfig {
	return &memConfig{disks: map[string]DiskConfig{
		testTag: {
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			RefreshToken: "refresh-1",
			RootPath:     "/",
		},
	}}
}

func (c *memConfig) LoadDisk(tag string) (DiskConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.disks[tag]
	if !ok {
		return DiskConfig{}, ErrNotFound
	}

	return d, nil
}

func (c *memConfig) SaveDiskValues(tag string, values map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.saved = append(c.saved, values)

	d := c.disks[tag]
	for k, v := range values {
		switch k {
		case ConfigKeyClientID:
			d.ClientID = v
		case ConfigKeyClientSecret:
			d.ClientSecret = v
		case ConfigKeyRefreshToken:
			d.RefreshToken = v
		case ConfigKeyActiveLimit:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				d.ActiveLimit = time.Unix(n, 0)
			}
		}
	}

	c.disks[tag] = d

	return nil
}

func (c *memConfig) savedValues() []map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]map[string]string(nil), c.saved...)
}

func (c *memConfig) disk(tag string) DiskConfig {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.disks[tag]
}

// testEnv is an Adapter wired to a fake provider.
type testEnv struct {
	adapter *Adapter
	cache   *memCache
	config  *memConfig
	srv     *httptest.Server
}

// newTestEnv starts a fake provider serving mux and returns an adapter
// pointed at it. The API lives under /drive/v3, uploads under
// /upload/drive/v3 and the token endpoint at /token. The adapter starts with
// a valid access token so tests that do not exercise refresh never hit
// /token.
func newTestEnv(t *testing.T, mux *http.ServeMux) *testEnv {
	t.Helper()

	return newTestEnvWith(t, mux, newMemConfig(), true)
}

func newTestEnvWith(t *testing.T, mux *http.ServeMux, cfg *memConfig, seedToken bool) *testEnv {
	t.Helper()

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cache := newMemCache()

	a, err := New(Options{
		Tag:       testTag,
		Config:    cfg,
		Cache:     cache,
		APIURL:    srv.URL + "/drive/v3",
		UploadURL: srv.URL + "/upload/drive/v3",
		Endpoint: &oauth2.Endpoint{
			AuthURL:   srv.URL + "/auth",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)

	a.setSleepFunc(noopSleep)

	if seedToken {
		a.creds.cred.AccessToken = "test-token"
		a.creds.cred.ExpiresAt = time.Now().Add(time.Hour)
	}

	return &testEnv{adapter: a, cache: cache, config: cfg, srv: srv}
}

// listKey returns the listing cache key for p, failing the test on an
// invalid path.
func (e *testEnv) listKey(t *testing.T, p string) string {
	t.Helper()

	key, err := e.adapter.listCacheKey(p)
	require.NoError(t, err)

	return key
}

// writeJSON writes v as a 200 JSON response.
func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

// childLookup serves name-in-parent queries from a map of
// "parentID/name" to child id.
func childLookup(t *testing.T, tree map[string]string) http.HandlerFunc {
	t.Helper()

	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")

		for key, id := range tree {
			parent, name := splitKey(key)
			if q == "name = '"+escapeQuery(name)+"' and '"+parent+"' in parents and trashed = false" {
				writeJSON(t, w, map[string]any{"files": []map[string]string{{"id": id}}})
				return
			}
		}

		writeJSON(t, w, map[string]any{"files": []any{}})
	}
}

func splitKey(key string) (parent, name string) {
	for i := range len(key) {
		if key[i] == '/' {
			return key[:i], key[i+1:]
		}
	}

	return key, ""
}
