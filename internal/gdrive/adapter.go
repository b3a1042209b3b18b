package gdrive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

// Default provider endpoints.
const (
	DefaultAPIURL    = "https://www.googleapis.com/drive/v3"
	DefaultUploadURL = "https://www.googleapis.com/upload/drive/v3"
)

// defaultListTTL bounds how long a cached listing is served.
const defaultListTTL = 5 * time.Minute

// Options configures an Adapter. Tag, Config and Cache are required.
type Options struct {
	Tag      string
	Config   ConfigStore
	Cache    CacheStore
	Sessions SessionStore     // nil keeps sessions in memory only
	Detector EncodingDetector // nil uses CharsetDetector

	HTTPClient *http.Client
	Logger     *slog.Logger

	APIURL    string          // default DefaultAPIURL
	UploadURL string          // default DefaultUploadURL
	Endpoint  *oauth2.Endpoint // default Google, credentials in params

	UserAgent         string
	RequestsPerSecond float64
	ListTTL           time.Duration
}

// Adapter exposes one configured Drive account ("disk") as a
// filesystem-like interface. Operations are synchronous; each issues one or
// more sequential requests.
type Adapter struct {
	tag       string
	disk      DiskConfig
	client    *Client
	creds     *Credentials
	cache     CacheStore
	sessions  SessionStore
	detector  EncodingDetector
	logger    *slog.Logger
	uploadURL string
	listTTL   time.Duration

	now func() time.Time
}

// New creates an Adapter for opts.Tag, loading its DiskConfig from the
// config store. No network call is made until the first operation.
func New(opts Options) (*Adapter, error) {
	if opts.Tag == "" {
		return nil, errors.New("gdrive: disk tag is required")
	}

	if opts.Config == nil || opts.Cache == nil {
		return nil, errors.New("gdrive: config and cache stores are required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	disk, err := opts.Config.LoadDisk(opts.Tag)
	if err != nil {
		return nil, fmt.Errorf("gdrive: loading disk %q: %w", opts.Tag, err)
	}

	if disk.ClientID == "" || disk.ClientSecret == "" {
		return nil, fmt.Errorf("gdrive: disk %q has no client_id/client_secret configured", opts.Tag)
	}

	endpoint := defaultEndpoint()
	if opts.Endpoint != nil {
		endpoint = *opts.Endpoint
	}

	oauthCfg := &oauth2.Config{
		ClientID:     disk.ClientID,
		ClientSecret: disk.ClientSecret,
		Endpoint:     endpoint,
		Scopes:       defaultScopes,
	}

	creds := NewCredentials(opts.Tag, oauthCfg, disk.RefreshToken, opts.Cache, opts.Config, opts.HTTPClient, logger)

	apiURL := opts.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}

	uploadURL := opts.UploadURL
	if uploadURL == "" {
		uploadURL = DefaultUploadURL
	}

	client := NewClient(apiURL, opts.HTTPClient, creds, logger)
	client.SetUserAgent(opts.UserAgent)
	client.SetRateLimit(opts.RequestsPerSecond)
	client.SetCooldown(disk.ActiveLimit)

	tag := opts.Tag
	client.OnThrottle(func(until time.Time) {
		if err := opts.Config.SaveDiskValues(tag, map[string]string{
			ConfigKeyActiveLimit: strconv.FormatInt(until.Unix(), 10),
		}); err != nil {
			logger.Warn("recording rate-limit cooldown failed",
				slog.String("disk", tag),
				slog.String("error", err.Error()),
			)
		}
	})

	sessions := opts.Sessions
	if sessions == nil {
		sessions = newMemorySessions()
	}

	detector := opts.Detector
	if detector == nil {
		detector = CharsetDetector{}
	}

	listTTL := opts.ListTTL
	if listTTL <= 0 {
		listTTL = defaultListTTL
	}

	logger.Debug("adapter created",
		slog.String("disk", opts.Tag),
		slog.String("root_path", disk.RootPath),
	)

	return &Adapter{
		tag:       opts.Tag,
		disk:      disk,
		client:    client,
		creds:     creds,
		cache:     opts.Cache,
		sessions:  sessions,
		detector:  detector,
		logger:    logger,
		uploadURL: uploadURL,
		listTTL:   listTTL,
		now:       time.Now,
	}, nil
}

// Tag returns the disk tag this adapter serves.
func (a *Adapter) Tag() string {
	return a.tag
}

// EnsureAccessToken returns a valid bearer token, refreshing if needed.
func (a *Adapter) EnsureAccessToken(ctx context.Context) (string, error) {
	return a.creds.EnsureAccessToken(ctx)
}

// Credentials exposes the adapter's credential manager (authorization flow).
func (a *Adapter) Credentials() *Credentials {
	return a.creds
}

// setSleepFunc replaces every retry sleep. Test hook.
func (a *Adapter) setSleepFunc(fn func(ctx context.Context, d time.Duration) error) {
	a.client.sleepFunc = fn
	a.creds.sleepFunc = fn
}
