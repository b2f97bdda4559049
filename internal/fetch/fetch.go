// Package fetch opens streaming HTTP connections to track URLs. A fetcher
// produces one finite byte stream per call; it never retries on its own —
// reconnect policy belongs to the playback controller.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultReadTimeout = 5 * time.Second
	defaultUserAgent   = "subwave"
)

// StatusError is returned when the server answers with a non-success status.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("stream returned status %d: %s", e.StatusCode, e.Status)
}

// Terminal reports whether the status makes retrying pointless.
func (e *StatusError) Terminal() bool {
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
		http.StatusNotFound, http.StatusGone:
		return true
	}
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// Auth reports whether the status indicates rejected credentials.
func (e *StatusError) Auth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Fetcher opens byte streams over HTTP.
type Fetcher struct {
	client      *http.Client
	userAgent   string
	readTimeout time.Duration
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithUserAgent sets the User-Agent header sent with stream requests.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.userAgent = ua }
}

// WithReadTimeout sets the per-read stall watchdog. A read that produces no
// data for this long fails the stream.
func WithReadTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.readTimeout = d }
}

// New creates a Fetcher with a transport tuned for long-lived streams: no
// overall request timeout, bounded dial and header phases.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{
			Timeout: 0, // streams are long-lived
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 15 * time.Second,
				MaxIdleConns:          10,
				IdleConnTimeout:       90 * time.Second,
				DisableCompression:    true,
			},
		},
		userAgent:   defaultUserAgent,
		readTimeout: defaultReadTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Stream is one open byte stream. Offset is the byte position the body
// actually starts at: it matches the requested offset when the server
// honored the range request and is zero when it did not.
type Stream struct {
	Body          io.ReadCloser
	Offset        int64
	ContentLength int64 // total track bytes when known, else -1
}

// Open issues a streaming GET for url starting at the given byte offset.
// The returned stream is finite and not restartable; issue a new Open for a
// new offset. Cancelling ctx fails in-flight and future reads.
func (f *Fetcher) Open(ctx context.Context, url string, offset int64) (*Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
	default:
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	actualOffset := offset
	total := resp.ContentLength
	if resp.StatusCode == http.StatusPartialContent {
		if resp.ContentLength >= 0 {
			total = offset + resp.ContentLength
		}
	} else if offset > 0 {
		// Server ignored the range request; the body starts at zero.
		log.Debug().Str("url", url).Int64("offset", offset).
			Msg("range request not honored, stream restarts at byte 0")
		actualOffset = 0
	}

	return &Stream{
		Body: &stallReader{
			rc:      resp.Body,
			ctx:     ctx,
			timeout: f.readTimeout,
		},
		Offset:        actualOffset,
		ContentLength: total,
	}, nil
}

// stallReader fails a Read that produces no data within the timeout, so a
// silently dead connection surfaces as a network error instead of hanging
// the decode pipeline. Relies on context cancellation to clean up the
// spawned read goroutine.
type stallReader struct {
	rc      io.ReadCloser
	ctx     context.Context
	timeout time.Duration
}

func (r *stallReader) Read(p []byte) (int, error) {
	select {
	case <-r.ctx.Done():
		return 0, r.ctx.Err()
	default:
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)

	go func() {
		n, err := r.rc.Read(p)
		select {
		case done <- result{n, err}:
		case <-r.ctx.Done():
		}
	}()

	select {
	case res := <-done:
		return res.n, res.err
	case <-timer.C:
		return 0, fmt.Errorf("read timeout: no data received for %v", r.timeout)
	case <-r.ctx.Done():
		return 0, r.ctx.Err()
	}
}

func (r *stallReader) Close() error {
	return r.rc.Close()
}

// IsTerminal reports whether err rules out a reconnect attempt.
func IsTerminal(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Terminal()
}

// IsAuth reports whether err indicates rejected credentials.
func IsAuth(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Auth()
}
