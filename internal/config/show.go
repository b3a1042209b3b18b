package config

import (
	"fmt"
	"io"
	"time"
)

// RenderEffective writes the resolved configuration as a human-readable
// annotated summary to w. This powers the "config show" command. Secrets
// are never printed, only whether they are set.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration from %s\n\n", r.Path)

	cfg := r.Config

	ew.printf("redirect_uri        = %q\n", cfg.RedirectURI)
	ew.printf("log_level           = %q\n", cfg.LogLevel)
	ew.printf("log_format          = %q\n", cfg.LogFormat)
	ew.printf("connect_timeout     = %q\n", r.ConnectTimeout.String())
	ew.printf("data_timeout        = %q\n", r.DataTimeout.String())

	if cfg.UserAgent != "" {
		ew.printf("user_agent          = %q\n", cfg.UserAgent)
	}

	ew.printf("requests_per_second = %v\n", cfg.RequestsPerSecond)
	ew.printf("list_ttl            = %q\n", r.ListTTL.String())
	ew.printf("chunk_size          = %d\n", r.ChunkSize)
	ew.printf("cache_path          = %q\n", r.CachePath)
	ew.printf("session_dir         = %q\n", r.SessionDir)

	for _, tag := range cfg.DiskTags() {
		renderDiskSection(ew, tag, cfg.Disks[tag], tag == r.DiskTag)
	}

	return ew.err
}

func renderDiskSection(ew *errWriter, tag string, d Disk, active bool) {
	ew.printf("\n%s", diskHeader(tag))

	if active {
		ew.printf("  # active")
	}

	ew.printf("\n")
	ew.printf("  client_id     = %q\n", d.ClientID)
	ew.printf("  client_secret = %s\n", redacted(d.ClientSecret))
	ew.printf("  refresh_token = %s\n", redacted(d.RefreshToken))
	ew.printf("  root_path     = %q\n", d.RootPath)

	if d.ActiveLimit > 0 {
		ew.printf("  active_limit  = %d  # %s\n", d.ActiveLimit, time.Unix(d.ActiveLimit, 0).UTC().Format(time.RFC3339))
	}
}

func redacted(secret string) string {
	if secret == "" {
		return "(unset)"
	}

	return "(set)"
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain
// printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
