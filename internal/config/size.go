package config

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/tonimelisma/gdrive-go/internal/gdrive"
)

// MaxChunkSize is the largest accepted resumable upload chunk.
const MaxChunkSize = 1 << 30

// ErrChunkSize is returned when a chunk size is out of range or misaligned.
var ErrChunkSize = errors.New("invalid chunk size")

// ParseSize converts a size such as "8MiB", "10MB" or "4096" to bytes. SI and
// IEC suffixes are accepted in any case. An empty string means zero.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	if n > math.MaxInt64 {
		return 0, fmt.Errorf("invalid size %q: too large", s)
	}

	return int64(n), nil
}

// ParseChunkSize parses a resumable upload chunk size. The result is
// positive, at most MaxChunkSize, and a multiple of gdrive.ChunkAlignment.
func ParseChunkSize(s string) (int64, error) {
	n, err := ParseSize(s)
	if err != nil {
		return 0, err
	}

	if n <= 0 || n > MaxChunkSize {
		return 0, fmt.Errorf("%w: %q must be between %s and %s",
			ErrChunkSize, s, humanize.IBytes(gdrive.ChunkAlignment), humanize.IBytes(MaxChunkSize))
	}

	if n%gdrive.ChunkAlignment != 0 {
		return 0, fmt.Errorf("%w: %q is not a multiple of %s",
			ErrChunkSize, s, humanize.IBytes(gdrive.ChunkAlignment))
	}

	return n, nil
}
