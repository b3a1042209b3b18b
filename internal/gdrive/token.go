package gdrive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Token refresh constants.
const (
	tokenAttempts        = 3
	tokenRetryPause      = 1 * time.Second
	tokenExpiryMargin    = 60 * time.Second
	defaultTokenLifetime = time.Hour
	accessTokenKeyPrefix = "google_access_token_"
)

// cachedToken is the cache-store format of an access token.
type cachedToken struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"` // unix seconds, margin already applied
}

// Credentials maintains a valid bearer token for one disk tag. The access
// token is shared with other processes through the cache store; a rotated
// refresh token is written back to the config store. Concurrent callers in
// one process share a single in-flight refresh.
type Credentials struct {
	tag        string
	oauth      *oauth2.Config
	cache      CacheStore
	config     ConfigStore
	httpClient *http.Client
	logger     *slog.Logger

	sleepFunc func(ctx context.Context, d time.Duration) error
	now       func() time.Time

	group singleflight.Group

	mu   sync.Mutex
	cred Credential
}

// NewCredentials creates a credential manager for tag. refreshToken may be
// empty for a disk that has not been authorized yet.
func NewCredentials(
	tag string, oauthCfg *oauth2.Config, refreshToken string,
	cache CacheStore, config ConfigStore, httpClient *http.Client, logger *slog.Logger,
) *Credentials {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Credentials{
		tag:        tag,
		oauth:      oauthCfg,
		cache:      cache,
		config:     config,
		httpClient: httpClient,
		logger:     logger,
		sleepFunc:  timeSleep,
		now:        time.Now,
		cred:       Credential{RefreshToken: refreshToken},
	}
}

// Token implements TokenSource.
func (m *Credentials) Token(ctx context.Context) (string, error) {
	return m.EnsureAccessToken(ctx)
}

// Credential returns a copy of the current credential.
func (m *Credentials) Credential() Credential {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.cred
}

// EnsureAccessToken returns a non-expired access token, refreshing it when
// neither memory nor the cache store holds a valid one.
func (m *Credentials) EnsureAccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.cred.AccessToken != "" && m.now().Before(m.cred.ExpiresAt) {
		tok := m.cred.AccessToken
		m.mu.Unlock()

		return tok, nil
	}
	m.mu.Unlock()

	v, err, shared := m.group.Do(m.tag, func() (any, error) {
		return m.loadOrRefresh(ctx)
	})
	if err != nil {
		return "", err
	}

	if shared {
		m.logger.Debug("joined in-flight token refresh", slog.String("disk", m.tag))
	}

	tok, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: unexpected token type %T", ErrAuth, v)
	}

	return tok, nil
}

// loadOrRefresh checks the cache store and falls back to a refresh.
func (m *Credentials) loadOrRefresh(ctx context.Context) (string, error) {
	if tok, ok := m.loadCached(ctx); ok {
		return tok, nil
	}

	return m.refresh(ctx)
}

// loadCached returns the cached access token if it has not expired.
// Cache failures are logged and treated as a miss.
func (m *Credentials) loadCached(ctx context.Context) (string, bool) {
	raw, ok, err := m.cache.Get(ctx, m.cacheKey())
	if err != nil {
		m.logger.Warn("reading cached token failed",
			slog.String("disk", m.tag),
			slog.String("error", err.Error()),
		)

		return "", false
	}

	if !ok {
		return "", false
	}

	var ct cachedToken
	if err := json.Unmarshal(raw, &ct); err != nil {
		m.logger.Warn("discarding undecodable cached token",
			slog.String("disk", m.tag),
			slog.String("error", err.Error()),
		)

		return "", false
	}

	expiresAt := time.Unix(ct.ExpiresAt, 0)
	if ct.AccessToken == "" || !expiresAt.After(m.now()) {
		return "", false
	}

	m.mu.Lock()
	m.cred.AccessToken = ct.AccessToken
	m.cred.ExpiresAt = expiresAt
	m.mu.Unlock()

	m.logger.Debug("using cached access token",
		slog.String("disk", m.tag),
		slog.Time("expires_at", expiresAt),
	)

	return ct.AccessToken, true
}

// refresh exchanges the refresh token for a new access token, making up to
// tokenAttempts attempts with tokenRetryPause between failures.
func (m *Credentials) refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	refreshToken := m.cred.RefreshToken
	m.mu.Unlock()

	if refreshToken == "" {
		return "", fmt.Errorf("%w: disk %q has no refresh token (run login)", ErrAuth, m.tag)
	}

	m.logger.Info("refreshing access token", slog.String("disk", m.tag))

	var lastErr error

	for attempt := 1; attempt <= tokenAttempts; attempt++ {
		tok, err := m.exchangeRefresh(ctx, refreshToken)
		if err == nil {
			return m.store(ctx, tok, refreshToken), nil
		}

		lastErr = err

		if ctx.Err() != nil {
			break
		}

		m.logger.Warn("token refresh attempt failed",
			slog.String("disk", m.tag),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)

		if attempt < tokenAttempts {
			if sleepErr := m.sleepFunc(ctx, tokenRetryPause); sleepErr != nil {
				lastErr = sleepErr
				break
			}
		}
	}

	return "", fmt.Errorf("%w: refreshing token for disk %q: %w", ErrAuth, m.tag, lastErr)
}

// exchangeRefresh performs a single refresh_token grant.
func (m *Credentials) exchangeRefresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)

	return m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
}

// store records a freshly issued token in memory and in the cache store, and
// persists a rotated refresh token. Persistence failures are logged only: the
// token is valid either way.
func (m *Credentials) store(ctx context.Context, tok *oauth2.Token, oldRefresh string) string {
	now := m.now()

	var expiresAt time.Time

	switch {
	case tok.ExpiresIn > 0:
		expiresAt = now.Add(time.Duration(tok.ExpiresIn)*time.Second - tokenExpiryMargin)
	case !tok.Expiry.IsZero():
		expiresAt = tok.Expiry.Add(-tokenExpiryMargin)
	default:
		expiresAt = now.Add(defaultTokenLifetime - tokenExpiryMargin)
	}

	m.mu.Lock()
	m.cred.AccessToken = tok.AccessToken
	m.cred.ExpiresAt = expiresAt

	rotated := tok.RefreshToken != "" && tok.RefreshToken != oldRefresh
	if rotated {
		m.cred.RefreshToken = tok.RefreshToken
	}
	m.mu.Unlock()

	m.logger.Info("access token refreshed",
		slog.String("disk", m.tag),
		slog.Time("expires_at", expiresAt),
		slog.Bool("refresh_token_rotated", rotated),
	)

	raw, err := json.Marshal(cachedToken{AccessToken: tok.AccessToken, ExpiresAt: expiresAt.Unix()})
	if err == nil {
		err = m.cache.Put(ctx, m.cacheKey(), m.tag, raw, expiresAt.Sub(now))
	}

	if err != nil {
		m.logger.Warn("caching access token failed",
			slog.String("disk", m.tag),
			slog.String("error", err.Error()),
		)
	}

	if rotated && m.config != nil {
		if err := m.config.SaveDiskValues(m.tag, map[string]string{
			ConfigKeyRefreshToken: tok.RefreshToken,
		}); err != nil {
			m.logger.Warn("persisting rotated refresh token failed",
				slog.String("disk", m.tag),
				slog.String("error", err.Error()),
			)
		}
	}

	return tok.AccessToken
}

// cacheKey is the cache-store key for this disk's access token.
func (m *Credentials) cacheKey() string {
	return accessTokenKeyPrefix + m.tag
}
