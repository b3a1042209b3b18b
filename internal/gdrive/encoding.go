package gdrive

import (
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/htmlindex"
)

// utf8Label is the WHATWG label for UTF-8.
const utf8Label = "utf-8"

// CharsetDetector is the default EncodingDetector. It reports a label only
// for content that sniffs as text; binary content yields "".
type CharsetDetector struct{}

// Detect implements EncodingDetector.
func (CharsetDetector) Detect(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	if utf8.Valid(data) {
		return utf8Label
	}

	// DetectContentType always claims utf-8 for text, so only its media
	// type is used.
	if !strings.HasPrefix(http.DetectContentType(data), "text/") {
		return ""
	}

	_, name, _ := charset.DetermineEncoding(data, "text/plain")

	return name
}

// toUTF8 re-encodes data from the encoding named by label. UTF-8 and empty
// labels return data unchanged.
func toUTF8(label string, data []byte) ([]byte, error) {
	if label == "" || strings.EqualFold(label, utf8Label) {
		return data, nil
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("gdrive: unknown encoding %q: %w", label, err)
	}

	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("gdrive: decoding %s content: %w", label, err)
	}

	return out, nil
}
