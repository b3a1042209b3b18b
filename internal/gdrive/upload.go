package gdrive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"google.golang.org/api/drive/v3"
)

// ChunkAlignment is the required alignment for resumable chunk sizes. All
// chunks except the final one must be a multiple of this value.
const ChunkAlignment = 256 * 1024

// DefaultChunkSize is used by ResumeUpload when no chunk size is given.
const DefaultChunkSize = 32 * ChunkAlignment

// statusResumeIncomplete is the status Drive returns for an accepted,
// non-final chunk.
const statusResumeIncomplete = http.StatusPermanentRedirect

// SmallFileUpload uploads the whole of r as a new file at p in a single
// request. The media endpoint accepts neither a name nor a parent, so the
// created file is renamed, then moved under the parent folder. Returns the
// new file id.
func (a *Adapter) SmallFileUpload(ctx context.Context, p string, r io.Reader) (string, error) {
	dir, name, err := splitParent(p)
	if err != nil {
		return "", err
	}

	parentID, err := a.ResolveID(ctx, dir)
	if err != nil {
		return "", err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("gdrive: reading upload source: %w", err)
	}

	a.logger.Info("simple upload",
		slog.String("path", cleanPath(p)),
		slog.String("parent_id", parentID),
		slog.Int("size", len(data)),
	)

	header := http.Header{
		"Content-Type":            {http.DetectContentType(data)},
		"X-Upload-Content-Length": {strconv.Itoa(len(data))},
	}

	resp, err := a.call(ctx, http.MethodPost, a.uploadURL+"/files?uploadType=media", data, header, http.StatusOK)
	if err != nil {
		return "", fmt.Errorf("gdrive: uploading %q: %w", cleanPath(p), err)
	}
	defer resp.Body.Close()

	var created drive.File
	if err := decodeBody(resp, &created); err != nil {
		return "", err
	}

	if err := a.Rename(ctx, created.Id, name); err != nil {
		return created.Id, err
	}

	if parentID != rootID {
		if err := a.Move(ctx, created.Id, parentID); err != nil {
			return created.Id, err
		}
	}

	a.invalidate(ctx, dir)

	return created.Id, nil
}

// BigFileUpload opens a resumable upload session for a file of size bytes at
// p and persists it in the session store. Content is sent with UploadChunk
// or ResumeUpload.
func (a *Adapter) BigFileUpload(ctx context.Context, p string, size int64) (*UploadSession, error) {
	dir, name, err := splitParent(p)
	if err != nil {
		return nil, err
	}

	parentID, err := a.ResolveID(ctx, dir)
	if err != nil {
		return nil, err
	}

	a.logger.Info("creating upload session",
		slog.String("path", cleanPath(p)),
		slog.String("parent_id", parentID),
		slog.Int64("size", size),
	)

	body, err := json.Marshal(&drive.File{Name: name, Parents: []string{parentID}})
	if err != nil {
		return nil, fmt.Errorf("gdrive: marshaling upload session request: %w", err)
	}

	header := http.Header{
		"X-Upload-Content-Type":   {defaultFileMimeType},
		"X-Upload-Content-Length": {strconv.FormatInt(size, 10)},
	}

	resp, err := a.call(ctx, http.MethodPost, a.uploadURL+"/files?uploadType=resumable", body, header, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("gdrive: creating upload session for %q: %w", cleanPath(p), err)
	}

	defer resp.Body.Close()

	if err := decodeBody(resp, nil); err != nil {
		return nil, err
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return nil, fmt.Errorf("%w: upload session response has no Location", ErrUnexpectedStatus)
	}

	session := &UploadSession{
		UploadURL: location,
		Size:      size,
		Path:      cleanPath(p),
		CreatedAt: a.now().UTC(),
	}

	if err := a.sessions.Save(a.tag, session.Path, session); err != nil {
		return nil, fmt.Errorf("gdrive: saving upload session: %w", err)
	}

	return session, nil
}

// UploadChunk sends length bytes from chunk starting at offset. It returns
// the next offset the provider expects and, once the final byte has been
// accepted, the created file. The session URL is pre-authenticated, so no
// Authorization header is sent and the request is not retried.
func (a *Adapter) UploadChunk(
	ctx context.Context, session *UploadSession, chunk io.Reader, offset, length int64,
) (int64, *FileDescriptor, error) {
	a.logger.Debug("uploading chunk",
		slog.Int64("offset", offset),
		slog.Int64("length", length),
		slog.Int64("total", session.Size),
	)

	contentRange := fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, session.Size)

	return a.sessionRequest(ctx, session, contentRange, chunk, length)
}

// QueryUpload asks the provider how many bytes of session it has committed.
// It returns the next expected offset and, when the upload already finished,
// the created file.
func (a *Adapter) QueryUpload(ctx context.Context, session *UploadSession) (int64, *FileDescriptor, error) {
	a.logger.Info("querying upload session", slog.String("path", session.Path))

	return a.sessionRequest(ctx, session, fmt.Sprintf("bytes */%d", session.Size), http.NoBody, 0)
}

// ResumeUpload uploads size bytes from r to p in chunks of chunkSize,
// continuing a stored session for p when one exists. The session offset is
// persisted after every chunk, and the session is deleted on completion.
func (a *Adapter) ResumeUpload(
	ctx context.Context, p string, r io.ReaderAt, size, chunkSize int64,
) (*FileDescriptor, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	if chunkSize%ChunkAlignment != 0 {
		return nil, fmt.Errorf("gdrive: chunk size %d is not a multiple of %d", chunkSize, ChunkAlignment)
	}

	key := cleanPath(p)

	session, offset, item, err := a.openSession(ctx, p, size)
	if err != nil {
		return nil, err
	}

	for item == nil && offset < size {
		length := min(chunkSize, size-offset)

		next, done, err := a.UploadChunk(ctx, session, io.NewSectionReader(r, offset, length), offset, length)
		if err != nil {
			if errors.Is(err, ErrSessionExpired) {
				a.dropSession(key)
			}

			return nil, err
		}

		item = done
		offset = next
		session.Offset = next

		if item == nil {
			if err := a.sessions.Save(a.tag, key, session); err != nil {
				a.logger.Warn("persisting upload offset failed",
					slog.String("path", key),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	// An empty file, or a provider that withheld the final response.
	if item == nil {
		if _, item, err = a.QueryUpload(ctx, session); err != nil {
			return nil, err
		}

		if item == nil {
			return nil, fmt.Errorf("%w: upload of %q did not complete", ErrUnexpectedStatus, key)
		}
	}

	a.dropSession(key)
	a.invalidate(ctx, parentOf(p))

	a.logger.Info("upload complete",
		slog.String("path", key),
		slog.String("item_id", item.ID),
	)

	return item, nil
}

// openSession returns a usable session for p and the offset to continue
// from. A stored session whose size differs, or that has expired, is
// replaced by a new one.
func (a *Adapter) openSession(
	ctx context.Context, p string, size int64,
) (*UploadSession, int64, *FileDescriptor, error) {
	key := cleanPath(p)

	stored, err := a.sessions.Load(a.tag, key)
	if err != nil {
		a.logger.Warn("loading upload session failed",
			slog.String("path", key),
			slog.String("error", err.Error()),
		)
	}

	if stored != nil && stored.Size == size {
		offset, item, err := a.QueryUpload(ctx, stored)
		if err == nil {
			a.logger.Info("resuming upload",
				slog.String("path", key),
				slog.Int64("offset", offset),
			)

			return stored, offset, item, nil
		}

		if !errors.Is(err, ErrSessionExpired) {
			return nil, 0, nil, err
		}

		a.logger.Info("stored upload session expired, starting over", slog.String("path", key))
	}

	if stored != nil {
		a.dropSession(key)
	}

	session, err := a.BigFileUpload(ctx, p, size)
	if err != nil {
		return nil, 0, nil, err
	}

	return session, 0, nil, nil
}

func (a *Adapter) dropSession(key string) {
	if err := a.sessions.Delete(a.tag, key); err != nil {
		a.logger.Warn("deleting upload session failed",
			slog.String("path", key),
			slog.String("error", err.Error()),
		)
	}
}

// sessionRequest PUTs to a session URL and interprets the reply.
func (a *Adapter) sessionRequest(
	ctx context.Context, session *UploadSession, contentRange string, body io.Reader, length int64,
) (int64, *FileDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session.UploadURL, body)
	if err != nil {
		return 0, nil, fmt.Errorf("gdrive: creating session request: %w", err)
	}

	req.ContentLength = length
	req.Header.Set("Content-Range", contentRange)
	req.Header.Set("User-Agent", a.client.userAgent)

	if length > 0 {
		req.Header.Set("Content-Type", defaultFileMimeType)
	}

	resp, err := a.sessionHTTPClient().Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: session request failed: %w", ErrTransport, err)
	}

	switch resp.StatusCode {
	case statusResumeIncomplete:
		defer resp.Body.Close()

		if _, err := io.Copy(io.Discard, resp.Body); err != nil {
			return 0, nil, fmt.Errorf("gdrive: draining session response: %w", err)
		}

		next, err := parseRangeEnd(resp.Header.Get("Range"))
		if err != nil {
			return 0, nil, err
		}

		return next, nil, nil

	case http.StatusOK, http.StatusCreated:
		defer resp.Body.Close()

		var f drive.File
		if err := decodeBody(resp, &f); err != nil {
			return 0, nil, err
		}

		item := a.normalize(&f)

		return session.Size, &item, nil

	case http.StatusNotFound, http.StatusGone:
		resp.Body.Close()

		return 0, nil, fmt.Errorf("%w: HTTP %d", ErrSessionExpired, resp.StatusCode)

	default:
		return 0, nil, newDriveError(resp)
	}
}

// sessionHTTPClient is the client's transport with redirects disabled, so a
// 308 reaches the caller untouched.
func (a *Adapter) sessionHTTPClient() *http.Client {
	hc := *a.client.httpClient
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &hc
}

// parseRangeEnd converts a "bytes=0-N" Range header into the next offset
// (N+1). A missing header means nothing has been committed.
func parseRangeEnd(h string) (int64, error) {
	if h == "" {
		return 0, nil
	}

	_, end, ok := strings.Cut(strings.TrimPrefix(h, "bytes="), "-")
	if !ok {
		return 0, fmt.Errorf("%w: malformed Range header %q", ErrUnexpectedStatus, h)
	}

	n, err := strconv.ParseInt(end, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed Range header %q", ErrUnexpectedStatus, h)
	}

	return n + 1, nil
}

// memorySessions is the SessionStore used when none is configured.
type memorySessions struct {
	mu       sync.Mutex
	sessions map[string]UploadSession
}

func newMemorySessions() *memorySessions {
	return &memorySessions{sessions: make(map[string]UploadSession)}
}

func (m *memorySessions) Load(tag, path string) (*UploadSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[tag+"\x00"+path]
	if !ok {
		return nil, nil
	}

	return &s, nil
}

func (m *memorySessions) Save(tag, path string, session *UploadSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[tag+"\x00"+path] = *session

	return nil
}

func (m *memorySessions) Delete(tag, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, tag+"\x00"+path)

	return nil
}
