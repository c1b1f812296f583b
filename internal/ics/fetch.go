package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	appLog "staffcal/internal/log"
	"staffcal/internal/metrics"
)

const (
	maxParallelFetches = 4
	maxFeedBytes       = 16 << 20
)

// Feed fetch outcomes, also used as metric labels.
const (
	outcomeFresh         = "fresh"
	outcomeNotModified   = "not_modified"
	outcomeCacheFallback = "cache_fallback"
	outcomeError         = "error"
)

// Source is one staff member's calendar feed.
type Source struct {
	// ID is the staff ID the feed belongs to.
	ID  string
	URL string
}

// FetchResult is the body served for one feed.
type FetchResult struct {
	Source Source
	Body   []byte
	// FromCache is set when Body is the stored copy (304 or host failure).
	FromCache bool
	// FetchedAt is when Body was last downloaded.
	FetchedAt time.Time
}

// StatusError is a non-2xx/304 answer from a feed host.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string { return "ics: feed host answered " + e.Status }

// Fetcher downloads staff feeds with conditional requests and serves the
// last good copy while a calendar host is down.
type Fetcher struct {
	client *http.Client
	cache  feedCache
}

// NewFetcher returns a Fetcher caching feeds under cacheDir.
func NewFetcher(cacheDir string) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/ics-cache"
	}
	return &Fetcher{
		client: &http.Client{Timeout: 15 * time.Second},
		cache:  feedCache{dir: cacheDir},
	}
}

// WithClient swaps the HTTP client, e.g. for tests.
func (f *Fetcher) WithClient(c *http.Client) *Fetcher {
	f.client = c
	return f
}

// FetchAll fetches every feed concurrently. Results keep source order and
// skip failed feeds; each failure is returned wrapped with its staff ID and
// never cancels the other fetches.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) ([]FetchResult, []error) {
	slots := make([]*FetchResult, len(sources))
	errSlots := make([]error, len(sources))

	var g errgroup.Group
	g.SetLimit(maxParallelFetches)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			res, err := f.FetchOne(ctx, src)
			if err != nil {
				metrics.FeedFetches.WithLabelValues(outcomeError).Inc()
				appLog.Error("ics fetch failed", err, "staff", src.ID, "url", redactURL(src.URL))
				errSlots[i] = fmt.Errorf("ics: source %s: %w", src.ID, err)
				return nil
			}
			slots[i] = &res
			return nil
		})
	}
	_ = g.Wait()

	results := make([]FetchResult, 0, len(sources))
	errs := make([]error, 0)
	for i := range sources {
		switch {
		case errSlots[i] != nil:
			errs = append(errs, errSlots[i])
		case slots[i] != nil:
			results = append(results, *slots[i])
		}
	}
	return results, errs
}

// FetchOne returns the current body of one feed: a fresh download, the
// cached copy on 304, or the cached copy when the host fails. It errors
// only when the host fails and nothing is cached.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (FetchResult, error) {
	if src.URL == "" {
		return FetchResult{}, errors.New("ics: feed URL is empty")
	}

	cached, haveCache := f.cache.load(src)
	fresh, err := f.download(ctx, src, cached, haveCache)
	if err == nil && fresh == nil {
		if haveCache {
			return f.served(src, cached, outcomeNotModified), nil
		}
		err = errors.New("ics: 304 Not Modified without a cached copy")
	}
	if err != nil {
		if !haveCache {
			return FetchResult{}, err
		}
		appLog.Warn("ics feed unavailable, serving cached copy",
			"staff", src.ID,
			"url", redactURL(src.URL),
			"err", err.Error(),
			"fetched_at", cached.FetchedAt.Format(time.RFC3339),
		)
		return f.served(src, cached, outcomeCacheFallback), nil
	}

	if err := f.cache.store(src, *fresh); err != nil {
		appLog.Error("ics cache write failed", err, "staff", src.ID)
	}
	return f.served(src, *fresh, outcomeFresh), nil
}

// download performs the conditional GET. A nil feed with a nil error means
// 304 Not Modified.
func (f *Fetcher) download(ctx context.Context, src Source, cached cachedFeed, conditional bool) (*cachedFeed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/calendar")
	if conditional {
		if cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}
		if cached.LastModified != "" {
			req.Header.Set("If-Modified-Since", cached.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxFeedBytes {
		return nil, fmt.Errorf("ics: feed larger than %d bytes", maxFeedBytes)
	}
	return &cachedFeed{
		StaffID:      src.ID,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		FetchedAt:    time.Now().UTC(),
		Body:         body,
	}, nil
}

func (f *Fetcher) served(src Source, feed cachedFeed, outcome string) FetchResult {
	metrics.FeedFetches.WithLabelValues(outcome).Inc()
	appLog.Debug("ics feed served",
		"staff", src.ID,
		"outcome", outcome,
		"bytes", len(feed.Body),
	)
	return FetchResult{
		Source:    src,
		Body:      feed.Body,
		FromCache: outcome != outcomeFresh,
		FetchedAt: feed.FetchedAt,
	}
}

// redactURL keeps only scheme and host; private feed URLs carry their
// secret in the path or query.
//
//	https://calendar.example.com/private/abcd/basic.ics?token=x
//	-> https://calendar.example.com/...(redacted)
func redactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "ics://...(redacted)"
	}
	return parsed.Scheme + "://" + parsed.Host + "/...(redacted)"
}
