package ics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedCacheRoundTrip(t *testing.T) {
	c := feedCache{dir: filepath.Join(t.TempDir(), "nested")}
	src := Source{ID: "staff/42", URL: "https://cal.example.com/a.ics"}

	_, ok := c.load(src)
	assert.False(t, ok)

	require.NoError(t, c.store(src, cachedFeed{ETag: `"v1"`, Body: sampleFeed}))
	got, ok := c.load(src)
	require.True(t, ok)
	assert.Equal(t, `"v1"`, got.ETag)
	assert.Equal(t, sampleFeed, got.Body)

	metaPath, bodyPath := c.paths(src)
	assert.Equal(t, filepath.Dir(metaPath), c.dir)
	assert.Contains(t, filepath.Base(bodyPath), "staff_42-")
	info, err := os.Stat(bodyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// Same staff member, new feed URL: separate entry.
	_, ok = c.load(Source{ID: src.ID, URL: "https://cal.example.com/b.ics"})
	assert.False(t, ok)
}

func TestFeedCacheIgnoresCorruptValidators(t *testing.T) {
	c := feedCache{dir: t.TempDir()}
	src := Source{ID: "u1", URL: "https://cal.example.com/u1.ics"}
	require.NoError(t, c.store(src, cachedFeed{ETag: `"v1"`, Body: sampleFeed}))

	metaPath, _ := c.paths(src)
	require.NoError(t, os.WriteFile(metaPath, []byte("{not json"), 0o600))

	got, ok := c.load(src)
	require.True(t, ok)
	assert.Empty(t, got.ETag)
	assert.Equal(t, sampleFeed, got.Body)
}

func TestFetchOneReportsHostStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	_, err := NewFetcher(t.TempDir()).FetchOne(context.Background(), Source{ID: "u1", URL: srv.URL})
	var se *StatusError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, http.StatusGone, se.Code)
}

func TestFetchOneNotModifiedWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	_, err := NewFetcher(t.TempDir()).FetchOne(context.Background(), Source{ID: "u1", URL: srv.URL})
	assert.Error(t, err)
}

func TestFetchOneSkipsConditionalHeadersWithoutCache(t *testing.T) {
	var conditional atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			conditional.Add(1)
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write(sampleFeed)
	}))
	defer srv.Close()

	dir := t.TempDir()
	src := Source{ID: "u1", URL: srv.URL + "/u1.ics"}
	res, err := NewFetcher(dir).FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.False(t, res.FetchedAt.IsZero())
	assert.Equal(t, int32(0), conditional.Load())

	// A second fetcher over the same directory reuses the stored validators.
	_, err = NewFetcher(dir).FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, int32(1), conditional.Load())
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "u1", safeName("u1"))
	assert.Equal(t, "a_b_c", safeName("a/b c"))
	assert.Equal(t, "_", safeName(""))
}
