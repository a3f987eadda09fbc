// Package fetch provides ranged reads against remote resources.
//
// A Fetcher retrieves arbitrary byte spans of a single remote resource. The
// package requires genuine partial-content support from the remote side: a
// server that answers a ranged request with the full resource is reported
// with ErrRangeUnsupported instead of being silently downloaded in full.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrRangeUnsupported is returned when the server does not honor range
	// requests, either by answering with a full-content status or by
	// returning a span of unexpected length.
	ErrRangeUnsupported = errors.New("fetch: server does not support range requests")

	// ErrUnknownSize is returned by Size when the server does not report
	// the total resource length.
	ErrUnknownSize = errors.New("fetch: server did not report resource size")
)

// Fetcher retrieves byte spans of a remote resource.
//
// Implementations must be safe for concurrent use; each call is an
// independent request against the remote side.
type Fetcher interface {
	// Size returns the total length of the resource in bytes.
	Size(ctx context.Context) (int64, error)

	// Fetch returns exactly the span [offset, offset+length).
	Fetch(ctx context.Context, offset, length int64) ([]byte, error)

	// FetchSuffix returns exactly the trailing length bytes of the
	// resource, for reading the end of the stream without knowing the
	// resource size upfront.
	FetchSuffix(ctx context.Context, length int64) ([]byte, error)
}

// StatusError is returned for HTTP-level failures that must not be retried,
// such as authentication failures or a missing resource.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: %s", e.Status)
}

// Options customises NewHTTP.
type Options struct {
	// Client is the http.Client making the requests.
	//
	// Defaults to http.DefaultClient. Redirects are followed by default.
	Client *http.Client

	// MaxAttempts caps how many times a single span is requested before
	// the transient failure becomes permanent.
	//
	// Defaults to DefaultMaxAttempts. Cannot be non-positive.
	MaxAttempts int

	// BackoffBase is the delay before the first retry; each subsequent
	// retry doubles it.
	//
	// Defaults to DefaultBackoffBase.
	BackoffBase time.Duration
}

const (
	DefaultMaxAttempts = 4
	DefaultBackoffBase = 200 * time.Millisecond
)

// NewHTTP returns a Fetcher issuing ranged GET requests against url.
func NewHTTP(url string, optFns ...func(*Options)) (Fetcher, error) {
	opts := &Options{
		Client:      http.DefaultClient,
		MaxAttempts: DefaultMaxAttempts,
		BackoffBase: DefaultBackoffBase,
	}
	for _, fn := range optFns {
		fn(opts)
	}

	if opts.MaxAttempts <= 0 {
		return nil, fmt.Errorf("maxAttempts (%d) must be greater than 0", opts.MaxAttempts)
	}

	return &httpFetcher{
		client:      opts.Client,
		url:         url,
		maxAttempts: opts.MaxAttempts,
		backoffBase: opts.BackoffBase,
	}, nil
}

type httpFetcher struct {
	client      *http.Client
	url         string
	maxAttempts int
	backoffBase time.Duration
}

func (f *httpFetcher) Size(ctx context.Context) (int64, error) {
	var size int64

	err := f.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, f.url, nil)
		if err != nil {
			return err
		}

		res, err := f.client.Do(req)
		if err != nil {
			return err
		}
		_ = res.Body.Close()

		if err = checkStatus(res); err != nil {
			return err
		}

		if res.ContentLength < 0 {
			return ErrUnknownSize
		}

		size = res.ContentLength
		return nil
	})

	return size, err
}

func (f *httpFetcher) Fetch(ctx context.Context, offset, length int64) (data []byte, err error) {
	if length <= 0 {
		return nil, fmt.Errorf("fetch: invalid span length %d", length)
	}

	err = f.retry(ctx, func() error {
		data, err = f.fetchRange(ctx, fmt.Sprintf("bytes=%d-%d", offset, offset+length-1), length)
		return err
	})
	return
}

func (f *httpFetcher) FetchSuffix(ctx context.Context, length int64) (data []byte, err error) {
	if length <= 0 {
		return nil, fmt.Errorf("fetch: invalid suffix length %d", length)
	}

	err = f.retry(ctx, func() error {
		data, err = f.fetchRange(ctx, fmt.Sprintf("bytes=-%d", length), length)
		return err
	})
	return
}

// fetchRange issues one ranged GET and validates that the server honored it.
func (f *httpFetcher) fetchRange(ctx context.Context, rangeHeader string, length int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", rangeHeader)

	res, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusOK:
		// full-content answer to a ranged request; do not degrade into
		// downloading the whole resource.
		return nil, fmt.Errorf("got status %s for range %s: %w", res.Status, rangeHeader, ErrRangeUnsupported)
	case res.StatusCode != http.StatusPartialContent:
		if err = checkStatus(res); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("fetch: unexpected status %s for range %s", res.Status, rangeHeader)
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read range %s body error: %w", rangeHeader, err)
	}

	if int64(len(data)) != length {
		return nil, fmt.Errorf("got %d bytes for range %s, expected %d: %w", len(data), rangeHeader, length, ErrRangeUnsupported)
	}

	return data, nil
}

// retry runs fn up to maxAttempts times with doubling delay in between.
// Non-retryable failures stop the loop immediately.
func (f *httpFetcher) retry(ctx context.Context, fn func() error) error {
	var err error

	delay := f.backoffBase
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil || !retryable(err) || attempt == f.maxAttempts {
			return err
		}

		select {
		case <-time.After(delay):
			delay *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// retryable reports whether err is a transient failure worth another attempt.
// Range refusal and client-level HTTP statuses are permanent.
func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
	}

	return !errors.Is(err, ErrRangeUnsupported) &&
		!errors.Is(err, ErrUnknownSize) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

func checkStatus(res *http.Response) error {
	if res.StatusCode >= 400 {
		return &StatusError{StatusCode: res.StatusCode, Status: res.Status}
	}

	return nil
}
