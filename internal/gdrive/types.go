package gdrive

import (
	"context"
	"time"
)

// Kind distinguishes files from folders in a FileDescriptor.
type Kind string

// Descriptor kinds.
const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

// folderMimeType is the mimetype Drive uses to mark folders.
const folderMimeType = "application/vnd.google-apps.folder"

// defaultFileMimeType is used for files created through Create.
const defaultFileMimeType = "application/octet-stream"

// inlineContentLimit is the size below which listing eagerly fetches content.
const inlineContentLimit = 1_000_000

// FileDescriptor is the normalized form of a Drive file or folder.
// Folders never carry Extension or Content.
type FileDescriptor struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Kind        Kind      `json:"kind"`
	Extension   string    `json:"ext,omitempty"`
	Size        int64     `json:"size"`
	ModifiedAt  time.Time `json:"modified_at"`
	DownloadURL string    `json:"url,omitempty"` // NEVER log
	MimeType    string    `json:"mime_type,omitempty"`
	ParentID    string    `json:"parent_id,omitempty"`
	Content     []byte    `json:"content,omitempty"`
}

// IsFolder reports whether the descriptor is a folder.
func (d *FileDescriptor) IsFolder() bool {
	return d.Kind == KindFolder
}

// Credential is the adapter's live OAuth2 credential for one disk tag.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// DiskConfig is the per-disk configuration read once at construction.
type DiskConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	RootPath     string
	// ActiveLimit is the end of the last recorded rate-limit cooldown.
	ActiveLimit time.Time
}

// UploadSession is a resumable upload in progress. UploadURL is
// pre-authenticated; NEVER log it.
type UploadSession struct {
	UploadURL string    `json:"upload_url"`
	Offset    int64     `json:"offset"`
	Size      int64     `json:"size"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// Quota is the storage usage reported by the provider, in bytes.
type Quota struct {
	Used  int64  `json:"used"`
	Total int64  `json:"total"`
	Unit  string `json:"unit"`
}

// SharedDrive identifies a shared drive visible to the account.
type SharedDrive struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Config keys written through ConfigStore.SaveDiskValues.
const (
	ConfigKeyClientID     = "client_id"
	ConfigKeyClientSecret = "client_secret"
	ConfigKeyRefreshToken = "refresh_token"
	ConfigKeyActiveLimit  = "active_limit"
)

// CacheStore is an opaque key-value store with per-entry tags and TTLs.
// Get reports a miss with ok=false and a nil error.
type CacheStore interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Put(ctx context.Context, key, tag string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ConfigStore provides durable per-disk settings keyed by disk tag.
type ConfigStore interface {
	LoadDisk(tag string) (DiskConfig, error)
	SaveDiskValues(tag string, values map[string]string) error
}

// SessionStore persists resumable upload sessions keyed by disk tag and
// destination path. Load returns nil, nil when no session exists.
type SessionStore interface {
	Load(tag, path string) (*UploadSession, error)
	Save(tag, path string, session *UploadSession) error
	Delete(tag, path string) error
}

// EncodingDetector reports the text encoding of raw bytes as a WHATWG
// label, or "" when nothing can be determined.
type EncodingDetector interface {
	Detect(data []byte) string
}
