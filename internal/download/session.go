// Package download fetches ATT&CK Navigator layers from the ATT&CK website.
package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/lherron/navmerge/internal/logging"
)

var (
	// ErrNotPublished is returned when the server has no layer at the URL.
	ErrNotPublished = errors.New("this layer is not available on the ATT&CK website yet")

	// ErrNotJSON is returned when the server answered with something other
	// than a JSON document, typically an HTML page.
	ErrNotJSON = errors.New("the downloaded file is not a valid JSON layer")
)

// HTTPError reports an unexpected response status.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("download failed: HTTP code %d for %s", e.StatusCode, e.URL)
}

// Temporary reports whether a retry may succeed.
func (e *HTTPError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Session holds the HTTP client shared by every download of a run.
type Session struct {
	http    *http.Client
	retries int
	backoff time.Duration
	log     *logging.Logger
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		s.http.Timeout = d
	}
}

// WithHTTPClient replaces the underlying *http.Client entirely.
func WithHTTPClient(hc *http.Client) SessionOption {
	return func(s *Session) {
		s.http = hc
	}
}

// WithRetries sets how many times a transient failure is retried.
func WithRetries(n int) SessionOption {
	return func(s *Session) {
		s.retries = n
	}
}

// WithBackoff sets the delay before the first retry. It doubles on every
// further attempt.
func WithBackoff(d time.Duration) SessionOption {
	return func(s *Session) {
		s.backoff = d
	}
}

// WithLogger sets the logger used to report retries.
func WithLogger(log *logging.Logger) SessionOption {
	return func(s *Session) {
		s.log = log
	}
}

// NewSession creates a Session.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		retries: 2,
		backoff: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch downloads url and checks that the body is a JSON document.
// Network errors and 5xx/429 answers are retried; a 404 is reported as
// ErrNotPublished and other failing statuses as *HTTPError.
func (s *Session) Fetch(ctx context.Context, url string) ([]byte, error) {
	delay := s.backoff
	for attempt := 0; ; attempt++ {
		body, err := s.fetchOnce(ctx, url)
		if err == nil || attempt >= s.retries || !retryable(ctx, err) {
			return body, err
		}

		s.log.Debugf("attempt %d for %s failed: %v, retrying in %s", attempt+1, url, err, delay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}

func (s *Session) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotPublished
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{URL: url, StatusCode: resp.StatusCode}
	}

	if mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil && mediaType == "text/html" {
		return nil, ErrNotJSON
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}
	if !json.Valid(body) {
		return nil, ErrNotJSON
	}
	return body, nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, ErrNotPublished) || errors.Is(err, ErrNotJSON) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Temporary()
	}
	return true
}
