package media

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher(t *testing.T, handler http.HandlerFunc) (*Fetcher, *int32) {
	t.Helper()
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	f := NewFetcher(nil,
		WithSourceURL(server.URL+"/1024/1024"),
		WithRetry(DefaultMaxAttempts, time.Millisecond),
		WithTempDir(t.TempDir()),
	)
	return f, &hits
}

func TestURL(t *testing.T) {
	f := NewFetcher(nil)
	assert.Equal(t, "https://picsum.photos/1024/1024?random=1_2", f.URL(1, 2))
}

func TestFetchSuccess(t *testing.T) {
	f, hits := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0_0", r.URL.Query().Get("random"))
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("\xff\xd8\xff\xe0fake-jpeg"))
	})

	img, err := f.Fetch(context.Background(), 0)
	require.NoError(t, err)
	defer img.Release()

	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
	assert.Equal(t, ".jpg", img.Path[len(img.Path)-4:])
	data, err := os.ReadFile(img.Path)
	require.NoError(t, err)
	assert.Equal(t, "\xff\xd8\xff\xe0fake-jpeg", string(data))
	assert.Equal(t, int64(len(data)), img.Size)
}

func TestFetchRetriesExactlyMaxAttempts(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	f, hits := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.URL.Query().Get("random"))
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	img, err := f.Fetch(context.Background(), 1)
	assert.Nil(t, img)
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	assert.Equal(t, int32(DefaultMaxAttempts), atomic.LoadInt32(hits))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"1_0", "1_1", "1_2"}, seen)
}

func TestFetchRecoversOnRetry(t *testing.T) {
	var calls int32
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("image"))
	})

	img, err := f.Fetch(context.Background(), 0)
	require.NoError(t, err)
	assert.NoError(t, img.Release())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchRetriesEveryHTTPFailure(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"forbidden", http.StatusForbidden},
		{"not found", http.StatusNotFound},
		{"unavailable", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, hits := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := f.Fetch(context.Background(), 0)
			require.Error(t, err)
			assert.True(t, IsTransient(err))

			var fetchErr *TransientFetchError
			require.ErrorAs(t, err, &fetchErr)
			assert.Equal(t, tt.status, fetchErr.StatusCode)
			assert.Equal(t, int32(DefaultMaxAttempts), atomic.LoadInt32(hits))
		})
	}
}

func TestFetchNetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	f := NewFetcher(nil, WithSourceURL(addr), WithRetry(2, time.Millisecond), WithTempDir(t.TempDir()))

	_, err := f.Fetch(context.Background(), 0)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestWithImageDeletesFile(t *testing.T) {
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("image"))
	})

	t.Run("on success", func(t *testing.T) {
		var path string
		err := f.WithImage(context.Background(), 0, func(p string) error {
			path = p
			_, statErr := os.Stat(p)
			return statErr
		})
		require.NoError(t, err)
		_, statErr := os.Stat(path)
		assert.True(t, errors.Is(statErr, os.ErrNotExist))
	})

	t.Run("on failure", func(t *testing.T) {
		var path string
		uploadErr := errors.New("file input detached")
		err := f.WithImage(context.Background(), 1, func(p string) error {
			path = p
			return uploadErr
		})
		assert.ErrorIs(t, err, uploadErr)
		_, statErr := os.Stat(path)
		assert.True(t, errors.Is(statErr, os.ErrNotExist))
	})
}

func TestWithImageSkipsCallbackWhenFetchFails(t *testing.T) {
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	called := false
	err := f.WithImage(context.Background(), 0, func(string) error {
		called = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, called)
}

func TestFetchCanceledDuringRetry(t *testing.T) {
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	f.retryDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReleaseIdempotent(t *testing.T) {
	file, err := os.CreateTemp(t.TempDir(), "img-*.jpg")
	require.NoError(t, err)
	require.NoError(t, file.Close())

	img := &TempImage{Path: file.Name()}
	assert.NoError(t, img.Release())
	assert.NoError(t, img.Release())

	var nilImg *TempImage
	assert.NoError(t, nilImg.Release())
}
