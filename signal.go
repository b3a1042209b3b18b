package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
)

// activeUploads tracks resumable puts for the interrupt handler.
var activeUploads = newUploadTracker()

// uploadTracker records remote paths with a resumable upload in flight.
type uploadTracker struct {
	mu    sync.Mutex
	paths map[string]int
}

func newUploadTracker() *uploadTracker {
	return &uploadTracker{paths: make(map[string]int)}
}

// begin marks p as uploading until the returned func is called.
func (u *uploadTracker) begin(p string) func() {
	u.mu.Lock()
	u.paths[p]++
	u.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			u.mu.Lock()
			defer u.mu.Unlock()

			if u.paths[p]--; u.paths[p] <= 0 {
				delete(u.paths, p)
			}
		})
	}
}

// pending returns the in-flight paths in sorted order.
func (u *uploadTracker) pending() []string {
	u.mu.Lock()
	defer u.mu.Unlock()

	out := make([]string, 0, len(u.paths))
	for p := range u.paths {
		out = append(out, p)
	}

	slices.Sort(out)

	return out
}

// shutdownContext returns a context canceled by the first SIGINT or SIGTERM.
// A resumable put stops between chunks and keeps its session, so the same
// command resumes later. A second signal exits at once.
func shutdownContext(parent context.Context, logger *slog.Logger, uploads *uploadTracker) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		handleSignals(ctx, parent, cancel, sigCh, logger, uploads, os.Exit)
	}()

	return ctx
}

func handleSignals(
	ctx, parent context.Context,
	cancel context.CancelFunc,
	sigCh <-chan os.Signal,
	logger *slog.Logger,
	uploads *uploadTracker,
	exit func(int),
) {
	select {
	case sig := <-sigCh:
		logger.Info("interrupted, stopping", slog.String("signal", sig.String()))

		for _, p := range uploads.pending() {
			logger.Info("upload session kept for resume", slog.String("path", p))
		}

		cancel()
	case <-ctx.Done():
		return
	}

	select {
	case sig := <-sigCh:
		logger.Warn("second signal, exiting without cleanup",
			slog.String("signal", sig.String()),
			slog.Int("pending_uploads", len(uploads.pending())),
		)
		exit(1)
	case <-parent.Done():
	}
}
