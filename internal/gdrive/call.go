package gdrive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// call issues a request and checks the response status against want. A
// different 2xx status yields ErrUnexpectedStatus. On success the caller
// owns the response body.
func (a *Adapter) call(
	ctx context.Context, method, path string, body []byte, header http.Header, want int,
) (*http.Response, error) {
	resp, err := a.client.Do(ctx, method, path, body, header)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != want {
		resp.Body.Close()

		return nil, fmt.Errorf("%w: %s %s: got HTTP %d, want %d",
			ErrUnexpectedStatus, method, path, resp.StatusCode, want)
	}

	return resp, nil
}

// callJSON marshals in (when non-nil) as the request body, expects want,
// and decodes the response into out (when non-nil).
func (a *Adapter) callJSON(ctx context.Context, method, path string, in, out any, want int) error {
	var body []byte

	if in != nil {
		var err error

		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("gdrive: marshaling %s %s request: %w", method, path, err)
		}
	}

	resp, err := a.call(ctx, method, path, body, nil, want)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeBody(resp, out)
}

// decodeBody decodes a JSON response body into out, or drains it when out
// is nil.
func decodeBody(resp *http.Response, out any) error {
	if out == nil {
		_, err := io.Copy(io.Discard, resp.Body)
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gdrive: decoding response: %w", err)
	}

	return nil
}
