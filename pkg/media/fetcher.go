// Package media downloads stand-in images for posts that have none.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/entrhq/notepost/pkg/logging"
)

// Fetch defaults
const (
	DefaultSourceURL   = "https://picsum.photos/1024/1024"
	DefaultCount       = 2
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 2 * time.Second
	DefaultHTTPTimeout = 30 * time.Second

	maxImageBytes = 20 << 20
)

// TransientFetchError is a failed remote download: a network error, a non-2xx
// response or an empty body. Every one is retried up to the attempt bound.
type TransientFetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransientFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransientFetchError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a failed remote download.
func IsTransient(err error) bool {
	var transient *TransientFetchError
	return errors.As(err, &transient)
}

// TempImage is a downloaded image on disk. Release deletes it.
type TempImage struct {
	Path string
	Size int64
	URL  string
}

// Release removes the file. Safe to call more than once.
func (t *TempImage) Release() error {
	if t == nil || t.Path == "" {
		return nil
	}
	err := os.Remove(t.Path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", t.Path, err)
	}
	return nil
}

// Fetcher downloads random images with bounded retries.
type Fetcher struct {
	client      *http.Client
	sourceURL   string
	maxAttempts int
	retryDelay  time.Duration
	tempDir     string
	logger      *logging.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithSourceURL sets the random image endpoint.
func WithSourceURL(sourceURL string) Option {
	return func(f *Fetcher) {
		f.sourceURL = sourceURL
	}
}

// WithRetry sets the attempt bound per image and the pause between attempts.
func WithRetry(maxAttempts int, delay time.Duration) Option {
	return func(f *Fetcher) {
		f.maxAttempts = maxAttempts
		f.retryDelay = delay
	}
}

// WithTempDir sets where downloads are written. Empty uses the OS default.
func WithTempDir(dir string) Option {
	return func(f *Fetcher) {
		f.tempDir = dir
	}
}

// NewFetcher creates a fetcher for the default image source.
func NewFetcher(logger *logging.Logger, opts ...Option) *Fetcher {
	if logger == nil {
		logger = logging.Discard()
	}
	f := &Fetcher{
		client:      &http.Client{Timeout: DefaultHTTPTimeout},
		sourceURL:   DefaultSourceURL,
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.maxAttempts < 1 {
		f.maxAttempts = 1
	}
	return f
}

// URL returns the download URL for an image and attempt. Both are part of the
// query so every attempt asks for a different image.
func (f *Fetcher) URL(index, attempt int) string {
	u, err := url.Parse(f.sourceURL)
	if err != nil {
		return fmt.Sprintf("%s?random=%d_%d", f.sourceURL, index, attempt)
	}
	q := u.Query()
	q.Set("random", fmt.Sprintf("%d_%d", index, attempt))
	u.RawQuery = q.Encode()
	return u.String()
}

// Fetch downloads image index to a temporary file. Any failure is retried up
// to the attempt bound; only cancellation of ctx stops it early.
func (f *Fetcher) Fetch(ctx context.Context, index int) (*TempImage, error) {
	var lastErr error
	for attempt := 0; attempt < f.maxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(f.retryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		src := f.URL(index, attempt)
		f.logger.Debugf("Downloading image %d (attempt %d/%d): %s", index+1, attempt+1, f.maxAttempts, src)

		img, err := f.download(ctx, src)
		if err == nil {
			return img, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.logger.Warnf("Image %d attempt %d failed: %v", index+1, attempt+1, err)
		lastErr = err
	}
	return nil, fmt.Errorf("image %d failed after %d attempts: %w", index+1, f.maxAttempts, lastErr)
}

// WithImage downloads image index, passes its path to fn, and deletes the file
// whether or not fn succeeds.
func (f *Fetcher) WithImage(ctx context.Context, index int, fn func(path string) error) (err error) {
	img, err := f.Fetch(ctx, index)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := img.Release(); releaseErr != nil {
			f.logger.Warnf("%v", releaseErr)
			if err == nil {
				err = releaseErr
			}
		}
	}()
	return fn(img.Path)
}

func (f *Fetcher) download(ctx context.Context, src string) (*TempImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid image URL %s: %w", src, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientFetchError{URL: src, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &TransientFetchError{URL: src, StatusCode: resp.StatusCode}
	}

	file, err := os.CreateTemp(f.tempDir, "notepost-*"+extension(resp.Header.Get("Content-Type")))
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	img := &TempImage{Path: file.Name(), URL: src}
	n, copyErr := io.Copy(file, io.LimitReader(resp.Body, maxImageBytes))
	closeErr := file.Close()
	if copyErr != nil || closeErr != nil {
		_ = img.Release()
		if copyErr != nil {
			return nil, &TransientFetchError{URL: src, Err: copyErr}
		}
		return nil, fmt.Errorf("failed to save image: %w", closeErr)
	}
	if n == 0 {
		_ = img.Release()
		return nil, &TransientFetchError{URL: src, Err: errors.New("empty response body")}
	}

	img.Size = n
	return img, nil
}

func extension(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/png"):
		return ".png"
	case strings.HasPrefix(contentType, "image/webp"):
		return ".webp"
	default:
		return ".jpg"
	}
}
