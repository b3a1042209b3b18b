package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/gdrive-go/internal/gdrive"
)

const (
	callbackReadTimeout = 10 * time.Second
	callbackShutdown    = 5 * time.Second
)

func newLoginCmd(flags *CLIFlags) *cobra.Command {
	var (
		clientID     string
		clientSecret string
		noBrowser    bool
	)

	cmd := &cobra.Command{
		Use:   "login [tag]",
		Short: "Authorize a disk through the browser consent flow",
		Long: `Authorize a Google account for a disk tag. A local callback server is
started on redirect_uri; the consent page is opened in a browser (or printed),
and the refresh token returned by Google is saved to the disk section.`,
		Args: cobra.MaximumNArgs(1),
		RunE: withContext(flags, func(ctx context.Context, cc *CLIContext, args []string) error {
			tag := cc.Resolved.DiskTag
			if len(args) > 0 {
				tag = args[0]
			}

			if tag == "" {
				return errors.New("login needs a disk tag: gdrive-go login <tag>")
			}

			if clientID != "" || clientSecret != "" {
				if err := cc.Store.SaveDiskValues(tag, map[string]string{
					gdrive.ConfigKeyClientID:     clientID,
					gdrive.ConfigKeyClientSecret: clientSecret,
				}); err != nil {
					return err
				}
			}

			return runLogin(ctx, cc, tag, browserOpener(noBrowser, isatty.IsTerminal(os.Stdout.Fd())))
		}),
	}

	cmd.Flags().StringVar(&clientID, "client-id", "", "OAuth client ID (saved to the disk section)")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "OAuth client secret (saved to the disk section)")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "print the consent URL instead of opening a browser")

	return cmd
}

func newLogoutCmd(flags *CLIFlags) *cobra.Command {
	var purge bool

	cmd := &cobra.Command{
		Use:   "logout [tag]",
		Short: "Forget a disk's refresh token and cached data",
		Args:  cobra.MaximumNArgs(1),
		RunE: withContext(flags, func(ctx context.Context, cc *CLIContext, args []string) error {
			tag := cc.Resolved.DiskTag
			if len(args) > 0 {
				tag = args[0]
			}

			if _, ok := cc.Store.Disk(tag); !ok {
				return fmt.Errorf("disk %q is not configured", tag)
			}

			if err := forgetDisk(ctx, cc, tag); err != nil {
				return err
			}

			if purge {
				if err := cc.Store.RemoveDisk(tag); err != nil {
					return err
				}
			} else if err := cc.Store.SaveDiskValues(tag, map[string]string{gdrive.ConfigKeyRefreshToken: ""}); err != nil {
				return err
			}

			cc.Logger.Info("logout successful", slog.String("disk", tag))
			cc.Statusf("Logged out of %s.\n", tag)

			return nil
		}),
	}

	cmd.Flags().BoolVar(&purge, "purge", false, "also remove the disk section from the config file")

	return cmd
}

// runLogin serves the OAuth callback until one code exchange has finished
// or ctx is canceled. openURL may be nil.
func runLogin(ctx context.Context, cc *CLIContext, tag string, openURL func(string) error) error {
	a, err := cc.adapterFor(ctx, tag)
	if err != nil {
		return fmt.Errorf("%w (pass --client-id and --client-secret, or run 'gdrive-go disk add')", err)
	}

	redirectURI := cc.Store.Config().RedirectURI

	u, err := url.Parse(redirectURI)
	if err != nil {
		return fmt.Errorf("parsing redirect_uri: %w", err)
	}

	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return fmt.Errorf("listening on %s for the OAuth callback: %w", u.Host, err)
	}

	state := uuid.NewString()
	handler := a.NewAuthHandler(redirectURI, state)

	result := make(chan error, 1)
	handler.Done = func(err error) {
		select {
		case result <- err:
		default:
		}
	}

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: callbackReadTimeout}

	go func() {
		if serveErr := srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			cc.Logger.Error("callback server stopped", slog.String("error", serveErr.Error()))
		}
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), callbackShutdown)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			cc.Logger.Warn("callback server shutdown failed", slog.String("error", err.Error()))
		}
	}()

	authURL := a.Credentials().AuthCodeURL(redirectURI, state)

	// Consent prompts must always be visible, not suppressed by --quiet.
	fmt.Fprintf(os.Stderr, "To authorize disk %q, visit:\n\n  %s\n\n", tag, authURL)

	launchBrowser(authURL, openURL, cc.Logger)

	cc.Logger.Info("waiting for OAuth callback", slog.String("disk", tag), slog.String("redirect_uri", redirectURI))

	select {
	case err := <-result:
		if err != nil {
			return fmt.Errorf("authorizing disk %s: %w", tag, err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	cc.Logger.Info("login successful", slog.String("disk", tag))
	cc.Statusf("Disk %s authorized.\n", tag)

	return nil
}

// forgetDisk drops everything cached for tag: access token, listings and
// pending upload sessions.
func forgetDisk(ctx context.Context, cc *CLIContext, tag string) error {
	store, err := cc.Cache(ctx)
	if err != nil {
		return err
	}

	if _, err := store.DeleteTag(ctx, tag); err != nil {
		return err
	}

	sessions, err := cc.sessions.List(tag)
	if err != nil {
		return err
	}

	for i := range sessions {
		if err := cc.sessions.Delete(tag, sessions[i].Path); err != nil {
			return err
		}
	}

	return nil
}
