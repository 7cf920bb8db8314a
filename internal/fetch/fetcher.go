// Package fetch downloads single media segments over HTTP.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"m3u8grab/internal/playlist"
)

// Error is a failed fetch attempt. Retryable marks failures believed
// transient (connection errors, timeouts, 5xx, rate limiting, short bodies);
// everything else is permanent.
type Error struct {
	URL        string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *Error) Unwrap() error { return e.Err }

// Fetcher performs segment GETs with a shared client.
type Fetcher struct {
	client *http.Client
}

// New creates a fetcher. headers, if non-nil, are attached to every request.
func New(headers map[string]string) *Fetcher {
	client := &http.Client{}
	if len(headers) > 0 {
		client.Transport = &HeaderMapTransport{
			Headers: headers,
			Base:    http.DefaultTransport,
		}
	}
	return &Fetcher{client: client}
}

// Fetch downloads one segment and returns the full body. All failures come
// back as *Error; nothing is retried here, retry policy belongs to the
// coordinator.
func (f *Fetcher) Fetch(ctx context.Context, d playlist.SegmentDescriptor, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return nil, &Error{URL: d.URL, Retryable: false, Err: err}
	}
	if d.ByteRange != nil {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", d.ByteRange.Offset, d.ByteRange.Offset+d.ByteRange.Length-1))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{URL: d.URL, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if err := checkStatus(d, resp); err != nil {
		return nil, err
	}

	// A body cut short of the declared Content-Length surfaces here as
	// ErrUnexpectedEOF from the transport.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{URL: d.URL, Retryable: true, Err: fmt.Errorf("read body: %w", err)}
	}
	if d.ByteRange != nil && int64(len(body)) != d.ByteRange.Length {
		return nil, &Error{
			URL:       d.URL,
			Retryable: true,
			Err:       fmt.Errorf("range mismatch: got %d bytes, requested %d", len(body), d.ByteRange.Length),
		}
	}

	return body, nil
}

func checkStatus(d playlist.SegmentDescriptor, resp *http.Response) error {
	switch {
	case d.ByteRange != nil && resp.StatusCode == http.StatusOK:
		// Server ignored the Range header; the full resource is not the
		// requested sub-range.
		return &Error{
			URL:       d.URL,
			Retryable: true,
			Err:       fmt.Errorf("server ignored range request (status 200)"),
		}
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &Error{URL: d.URL, StatusCode: resp.StatusCode, Retryable: true}
	default:
		return &Error{URL: d.URL, StatusCode: resp.StatusCode, Retryable: false}
	}
}

// Retryable reports whether err is a fetch failure worth re-attempting.
func Retryable(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	return false
}
