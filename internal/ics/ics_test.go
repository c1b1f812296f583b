package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func icsBody(lines ...string) []byte {
	all := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//staffcal//test//EN"}, lines...)
	all = append(all, "END:VCALENDAR", "")
	return []byte(strings.Join(all, "\r\n"))
}

var sampleFeed = icsBody(
	"BEGIN:VEVENT",
	"UID:m1@example.com",
	"DTSTAMP:20251029T080000Z",
	"DTSTART:20251029T090000Z",
	"DTEND:20251029T100000Z",
	"SUMMARY:Intro call",
	"LOCATION:Room 1",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:m2@example.com",
	"DTSTAMP:20251029T080000Z",
	"DTSTART;VALUE=DATE:20251030",
	"SUMMARY:Offsite",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:m3@example.com",
	"DTSTAMP:20251029T080000Z",
	"DTSTART:20251029T093000Z",
	"DTEND:20251029T103000Z",
	"RRULE:FREQ=WEEKLY;BYDAY=MO,WE;COUNT=4",
	"SUMMARY:Standup",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:m4@example.com",
	"DTSTAMP:20251029T080000Z",
	"DTSTART:20251029T110000Z",
	"DTEND:20251029T113000Z",
	"STATUS:CANCELLED",
	"SUMMARY:Dropped",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"DTSTAMP:20251029T080000Z",
	"DTSTART:20251029T120000Z",
	"SUMMARY:No uid",
	"END:VEVENT",
)

func TestParseICS(t *testing.T) {
	src := Source{ID: "u1", URL: "https://cal.example.com/u1.ics"}

	events, err := ParseICS(src, sampleFeed)
	require.NoError(t, err)
	require.Len(t, events, 3, "cancelled and uid-less events are dropped")

	byUID := map[string]ParsedEvent{}
	for _, ev := range events {
		byUID[ev.UID] = ev
	}

	intro := byUID["m1@example.com"]
	assert.Equal(t, "Intro call", intro.Summary)
	assert.Equal(t, "Room 1", intro.Location)
	assert.False(t, intro.AllDay)
	assert.True(t, intro.Start.Equal(time.Date(2025, 10, 29, 9, 0, 0, 0, time.UTC)))
	assert.True(t, intro.End.Equal(time.Date(2025, 10, 29, 10, 0, 0, 0, time.UTC)))

	offsite := byUID["m2@example.com"]
	assert.True(t, offsite.AllDay)
	assert.Equal(t, 24*time.Hour, offsite.End.Sub(offsite.Start))

	standup := byUID["m3@example.com"]
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=MO,WE;COUNT=4", standup.RawRRule)
}

func TestParseICSRejectsEmpty(t *testing.T) {
	_, err := ParseICS(Source{ID: "u1"}, nil)
	assert.Error(t, err)
}

func TestToMeetings(t *testing.T) {
	src := Source{ID: "u1", URL: "https://cal.example.com/u1.ics"}
	events, err := ParseICS(src, sampleFeed)
	require.NoError(t, err)

	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	meetings := ToMeetings("u1", events, kolkata)
	require.Len(t, meetings, 3)

	for _, m := range meetings {
		assert.Equal(t, "u1", m.StaffID)
		assert.Equal(t, "u1", m.SourceID)
		assert.Equal(t, kolkata, m.Start.Location())
	}

	var standupLabel string
	for _, m := range meetings {
		if m.ID == "m3@example.com" {
			standupLabel = m.RecurrenceLabel
		}
	}
	assert.Equal(t, "Weekly on Mon, Wed, 4 times", standupLabel)
}

func TestToMeetingsOverrideID(t *testing.T) {
	rid := time.Date(2025, 11, 3, 9, 30, 0, 0, time.UTC)
	events := []ParsedEvent{{
		UID:        "series",
		Start:      rid.Add(time.Hour),
		End:        rid.Add(2 * time.Hour),
		Recurrence: &rid,
	}}

	meetings := ToMeetings("u1", events, time.UTC)
	require.Len(t, meetings, 1)
	assert.Equal(t, "series@20251103T093000Z", meetings[0].ID)
}

func TestDescribeRecurrence(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", ""},
		{"FREQ=DAILY", "Daily"},
		{"RRULE:FREQ=DAILY;INTERVAL=2", "Every 2 days"},
		{"FREQ=WEEKLY;BYDAY=TU,TH", "Weekly on Tue, Thu"},
		{"FREQ=MONTHLY;UNTIL=20251231T000000Z", "Monthly, until 2025-12-31"},
		{"FREQ=YEARLY;COUNT=3", "Yearly, 3 times"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := DescribeRecurrence(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := DescribeRecurrence("FREQ=SOMETIMES")
	assert.Error(t, err)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://cal.example.com/...(redacted)", redactURL("https://cal.example.com/private/abc/basic.ics?token=x"))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
}

func TestFetchOneUsesConditionalCache(t *testing.T) {
	var hits, conditional atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			conditional.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write(sampleFeed)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	src := Source{ID: "u1", URL: srv.URL + "/u1.ics"}

	first, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, sampleFeed, first.Body)

	second, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, sampleFeed, second.Body)

	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int32(1), conditional.Load())
}

func TestFetchOneFallsBackToCacheOnServerError(t *testing.T) {
	var failing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		_, _ = w.Write(sampleFeed)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	src := Source{ID: "u1", URL: srv.URL + "/u1.ics"}

	_, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)

	failing.Store(true)
	res, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, res.FromCache)

	_, err = f.FetchOne(context.Background(), Source{ID: "u2", URL: srv.URL + "/u2.ics"})
	assert.Error(t, err, "no cache to fall back on")
}

func TestFeedSourceSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken.ics" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(sampleFeed)
	}))
	defer srv.Close()

	fs := NewFeedSource(NewFetcher(t.TempDir()), []Source{
		{ID: "u1", URL: srv.URL + "/u1.ics"},
		{ID: "u2", URL: srv.URL + "/broken.ics"},
	}, time.UTC)

	from := time.Date(2025, 10, 29, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 10, 29, 23, 59, 59, 0, time.UTC)
	meetings, err := fs.Search(context.Background(), from, to)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "u2")

	// The all-day offsite lands on either side of the window depending on
	// the host zone, so only timed meetings are compared.
	ids := make([]string, 0, len(meetings))
	for _, m := range meetings {
		assert.Equal(t, "u1", m.StaffID)
		if !m.AllDay {
			ids = append(ids, m.ID)
		}
	}
	assert.ElementsMatch(t, []string{"m1@example.com", "m3@example.com"}, ids)
}
