package ghclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabscout/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func noSleep(time.Duration) {}

func TestDoCachesSuccessfulResponse(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("ETag", `"v1"`)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	st := newTestStore(t)
	c := New(srv.URL, "tok", "collabscout-test", "2022-11-28", st, WithSleep(noSleep))

	resp, err := c.Do(context.Background(), Request{Path: "/thing", Bucket: BucketCore})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.False(t, resp.FromCache)
	assert.Equal(t, 1, hits)
}

func TestDoHandles304WithoutOverwritingBody(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("ETag", `"v1"`)
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"original":true}`))
			return
		}
		assert.Equal(t, `"v1"`, r.Header.Get("If-None-Match"))
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	st := newTestStore(t)
	c := New(srv.URL, "tok", "collabscout-test", "2022-11-28", st, WithSleep(noSleep))

	first, err := c.Do(context.Background(), Request{Path: "/thing", Bucket: BucketCore})
	require.NoError(t, err)

	second, err := c.Do(context.Background(), Request{Path: "/thing", Bucket: BucketCore})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, 200, second.Status)
	assert.Equal(t, first.Raw, second.Raw)
}

func TestDoRetriesOn5xxWithBackoff(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var slept []time.Duration
	st := newTestStore(t)
	c := New(srv.URL, "tok", "collabscout-test", "2022-11-28", st, WithSleep(func(d time.Duration) {
		slept = append(slept, d)
	}))

	resp, err := c.Do(context.Background(), Request{Path: "/thing", Bucket: BucketCore})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, 3, calls)
	require.Len(t, slept, 2)
	assert.Equal(t, 2*time.Second, slept[0])
	assert.Equal(t, 4*time.Second, slept[1])
}

func TestDoRetryAfterHeaderDeterminesWaitExactly(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var slept []time.Duration
	st := newTestStore(t)
	var throttles []ThrottleEvent
	c := New(srv.URL, "tok", "collabscout-test", "2022-11-28", st,
		WithSleep(func(d time.Duration) { slept = append(slept, d) }),
		WithThrottleCallback(func(e ThrottleEvent) { throttles = append(throttles, e) }),
	)

	_, err := c.Do(context.Background(), Request{Path: "/thing", Bucket: BucketCore})
	require.NoError(t, err)
	require.NotEmpty(t, slept)
	assert.Contains(t, slept, 2000*time.Millisecond)

	var sawRateLimit429 bool
	for _, e := range throttles {
		if e.Reason == ReasonRateLimit429 {
			sawRateLimit429 = true
			assert.Equal(t, int64(2000), e.WaitMs)
		}
	}
	assert.True(t, sawRateLimit429)
}

func TestDoExhaustsRateLimitRetriesAndFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	st := newTestStore(t)
	c := New(srv.URL, "tok", "collabscout-test", "2022-11-28", st, WithSleep(noSleep))

	_, err := c.Do(context.Background(), Request{Path: "/thing", Bucket: BucketCore})
	require.Error(t, err)
	var ghErr *Error
	require.ErrorAs(t, err, &ghErr)
	assert.Equal(t, KindRateLimited, ghErr.Kind)
}

func TestDo404MapsToReadmeMissingKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	st := newTestStore(t)
	c := New(srv.URL, "tok", "collabscout-test", "2022-11-28", st, WithSleep(noSleep))

	_, err := c.Do(context.Background(), Request{Path: "/repos/a/b/readme", Bucket: BucketCore})
	require.Error(t, err)
	var ghErr *Error
	require.ErrorAs(t, err, &ghErr)
	assert.Equal(t, KindReadmeMissing, ghErr.Kind)
}
