package gdrive

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
)

// defaultScopes grants full Drive access, matching what the adapter needs
// for every mutation.
var defaultScopes = []string{drive.DriveScope}

// defaultEndpoint is Google's OAuth2 endpoint with client credentials sent
// in the form body, so each refresh is exactly one request.
func defaultEndpoint() oauth2.Endpoint {
	ep := google.Endpoint
	ep.AuthStyle = oauth2.AuthStyleInParams

	return ep
}

// AuthCodeURL returns the consent-screen URL for the disk's client.
func (m *Credentials) AuthCodeURL(redirectURI, state string) string {
	cfg := *m.oauth
	cfg.RedirectURL = redirectURI

	return cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Authorize exchanges an authorization code for tokens and persists the
// refresh token and client credentials into the config store.
func (m *Credentials) Authorize(ctx context.Context, code, redirectURI string) error {
	m.logger.Info("exchanging authorization code", slog.String("disk", m.tag))

	cfg := *m.oauth
	cfg.RedirectURL = redirectURI

	tok, err := cfg.Exchange(context.WithValue(ctx, oauth2.HTTPClient, m.httpClient), code)
	if err != nil {
		return fmt.Errorf("%w: exchanging authorization code: %w", ErrAuth, err)
	}

	if tok.RefreshToken == "" {
		return fmt.Errorf("%w: provider returned no refresh token", ErrAuth)
	}

	if err := m.config.SaveDiskValues(m.tag, map[string]string{
		ConfigKeyRefreshToken: tok.RefreshToken,
		ConfigKeyClientID:     m.oauth.ClientID,
		ConfigKeyClientSecret: m.oauth.ClientSecret,
	}); err != nil {
		return fmt.Errorf("gdrive: saving refresh token: %w", err)
	}

	m.mu.Lock()
	m.cred.RefreshToken = tok.RefreshToken
	m.mu.Unlock()

	// The exchange also yields a usable access token.
	m.store(ctx, tok, tok.RefreshToken)

	m.logger.Info("disk authorized", slog.String("disk", m.tag))

	return nil
}

// AuthHandler is the two-phase interactive authorization endpoint. A request
// without a code is redirected to the consent screen; a request carrying a
// code is exchanged and the refresh token persisted. Each request is handled
// independently.
type AuthHandler struct {
	creds       *Credentials
	redirectURI string
	state       string

	// Done, when set, receives the outcome of every code exchange.
	Done func(error)
}

// NewAuthHandler creates an AuthHandler. When state is non-empty, callbacks
// must echo it back.
func (a *Adapter) NewAuthHandler(redirectURI, state string) *AuthHandler {
	return &AuthHandler{
		creds:       a.creds,
		redirectURI: redirectURI,
		state:       state,
	}
}

func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if errParam := q.Get("error"); errParam != "" {
		http.Error(w, "Authorization failed: "+errParam, http.StatusBadRequest)
		h.finish(fmt.Errorf("%w: authorization failed: %s: %s", ErrAuth, errParam, q.Get("error_description")))

		return
	}

	code := q.Get("code")
	if code == "" {
		http.Redirect(w, r, h.creds.AuthCodeURL(h.redirectURI, h.state), http.StatusFound)
		return
	}

	if h.state != "" && q.Get("state") != h.state {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		h.finish(fmt.Errorf("%w: OAuth2 state mismatch", ErrAuth))

		return
	}

	if err := h.creds.Authorize(r.Context(), code, h.redirectURI); err != nil {
		http.Error(w, "Failed to add disk", http.StatusBadGateway)
		h.finish(err)

		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "Disk added successfully")
	h.finish(nil)
}

func (h *AuthHandler) finish(err error) {
	if h.Done != nil {
		h.Done(err)
	}
}
