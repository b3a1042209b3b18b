package main

import (
	"log/slog"
	"os"

	"github.com/pkg/browser"
)

// browserOpener returns the function login uses to show the consent page,
// or nil when no browser should be launched.
func browserOpener(noBrowser, terminal bool) func(string) error {
	if noBrowser || !terminal {
		return nil
	}

	// Keep launcher output off stdout, which may carry --json output.
	browser.Stdout = os.Stderr

	return browser.OpenURL
}

// launchBrowser opens authURL with openURL. The consent URL has already
// been printed, so a failure only costs the user a copy-paste.
func launchBrowser(authURL string, openURL func(string) error, logger *slog.Logger) bool {
	if openURL == nil {
		return false
	}

	if err := openURL(authURL); err != nil {
		logger.Warn("could not open a browser", slog.String("error", err.Error()))
		return false
	}

	logger.Debug("opened browser for authorization")

	return true
}
