package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/gdrive-go/internal/cache"
	"github.com/tonimelisma/gdrive-go/internal/config"
	"github.com/tonimelisma/gdrive-go/internal/gdrive"
	"github.com/tonimelisma/gdrive-go/internal/uploadsession"
)

const (
	cacheDirPerms = 0o700
	dialKeepAlive = 30 * time.Second
)

// CLIContext bundles what every command needs: the resolved config, the
// config store that persists disk values, a logger, and lazily opened
// cache and session stores.
type CLIContext struct {
	Flags    *CLIFlags
	Resolved *config.Resolved
	Store    *config.Store
	Logger   *slog.Logger

	cache    *cache.Store
	sessions *uploadsession.Store
}

// newCLIContext resolves configuration for the current invocation.
func newCLIContext(flags *CLIFlags) (*CLIContext, error) {
	resolved, err := resolveConfig(flags)
	if err != nil {
		return nil, err
	}

	logger := buildLogger(resolved.Config, flags)

	return &CLIContext{
		Flags:    flags,
		Resolved: resolved,
		Store:    config.NewStore(resolved.Path, resolved.Config, logger),
		Logger:   logger,
		sessions: uploadsession.New(resolved.SessionDir, logger),
	}, nil
}

// Cache opens the shared cache database on first use and drops expired
// entries.
func (cc *CLIContext) Cache(ctx context.Context) (*cache.Store, error) {
	if cc.cache != nil {
		return cc.cache, nil
	}

	if err := os.MkdirAll(filepath.Dir(cc.Resolved.CachePath), cacheDirPerms); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	store, err := cache.Open(ctx, cc.Resolved.CachePath, cc.Logger)
	if err != nil {
		return nil, err
	}

	if _, err := store.Purge(ctx); err != nil {
		cc.Logger.Warn("purging expired cache entries failed", slog.String("error", err.Error()))
	}

	cc.cache = store

	return store, nil
}

// Adapter builds the Drive adapter for the active disk.
func (cc *CLIContext) Adapter(ctx context.Context) (*gdrive.Adapter, error) {
	tag := cc.Resolved.DiskTag
	if tag == "" {
		return nil, errors.New("no disk selected: pass --disk or set GDRIVE_GO_DISK (see 'gdrive-go disk list')")
	}

	if _, ok := cc.Store.Disk(tag); !ok {
		return nil, fmt.Errorf("disk %q is not configured: run 'gdrive-go disk add %s'", tag, tag)
	}

	return cc.adapterFor(ctx, tag)
}

func (cc *CLIContext) adapterFor(ctx context.Context, tag string) (*gdrive.Adapter, error) {
	store, err := cc.Cache(ctx)
	if err != nil {
		return nil, err
	}

	cfg := cc.Store.Config()

	return gdrive.New(gdrive.Options{
		Tag:               tag,
		Config:            cc.Store,
		Cache:             store,
		Sessions:          cc.sessions,
		HTTPClient:        newHTTPClient(cc.Resolved),
		Logger:            cc.Logger.With(slog.String("disk", tag)),
		UserAgent:         userAgent(cfg.UserAgent),
		RequestsPerSecond: cfg.RequestsPerSecond,
		ListTTL:           cc.Resolved.ListTTL,
	})
}

// Close releases the cache database.
func (cc *CLIContext) Close() {
	if cc.cache == nil {
		return
	}

	if err := cc.cache.Close(); err != nil {
		cc.Logger.Warn("closing cache failed", slog.String("error", err.Error()))
	}
}

// withAdapter wraps a command body that operates on the active disk.
func withAdapter(
	flags *CLIFlags,
	run func(ctx context.Context, cc *CLIContext, a *gdrive.Adapter, args []string) error,
) func(*cobra.Command, []string) error {
	return withContext(flags, func(ctx context.Context, cc *CLIContext, args []string) error {
		a, err := cc.Adapter(ctx)
		if err != nil {
			return err
		}

		return run(ctx, cc, a, args)
	})
}

// withContext wraps a command body that needs resolved config but no disk.
func withContext(
	flags *CLIFlags,
	run func(ctx context.Context, cc *CLIContext, args []string) error,
) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cc, err := newCLIContext(flags)
		if err != nil {
			return err
		}
		defer cc.Close()

		return run(cmd.Context(), cc, args)
	}
}

// newHTTPClient builds the client shared by API and upload calls. There is
// no overall timeout because uploads can run for a long time; the connect
// and first-byte deadlines bound hung connections instead.
func newHTTPClient(r *config.Resolved) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   r.ConnectTimeout,
		KeepAlive: dialKeepAlive,
	}).DialContext
	transport.TLSHandshakeTimeout = r.ConnectTimeout
	transport.ResponseHeaderTimeout = r.DataTimeout

	return &http.Client{Transport: transport}
}

func userAgent(configured string) string {
	if configured != "" {
		return configured
	}

	return "gdrive-go/" + version
}
