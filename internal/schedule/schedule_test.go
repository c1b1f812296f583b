package schedule

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staffcal/internal/model"
)

type fakeSource struct {
	mu       sync.Mutex
	meetings []model.Meeting
	err      error
	calls    int
	from, to time.Time
}

func (f *fakeSource) Search(_ context.Context, from, to time.Time) ([]model.Meeting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.from, f.to = from, to
	return f.meetings, f.err
}

var fixedNow = time.Date(2025, 10, 29, 15, 4, 5, 0, time.UTC)

func newTestRefresher(t *testing.T, src Source) (*Refresher, *Store) {
	t.Helper()
	store := NewStore()
	r, err := NewRefresher(src, store, RefresherConfig{
		Spec:     "*/15 * * * *",
		Location: time.UTC,
		Backfill: 1,
		Horizon:  7,
		Now:      func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return r, store
}

func TestRefresherWindow(t *testing.T) {
	r, _ := newTestRefresher(t, &fakeSource{})
	from, to := r.Window()
	assert.Equal(t, time.Date(2025, 10, 28, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2025, 11, 6, 0, 0, 0, 0, time.UTC), to)
}

func TestRefreshSwapsSnapshot(t *testing.T) {
	src := &fakeSource{meetings: []model.Meeting{{ID: "m1", StaffID: "u1"}}}
	r, store := newTestRefresher(t, src)

	_, ok := store.Current()
	assert.False(t, ok)

	snap, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Version)
	assert.Len(t, snap.Meetings, 1)
	assert.Equal(t, time.Date(2025, 10, 28, 0, 0, 0, 0, time.UTC), src.from)

	src.meetings = append(src.meetings, model.Meeting{ID: "m2", StaffID: "u1"})
	snap, err = r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Version)

	cur, ok := store.Current()
	require.True(t, ok)
	assert.Len(t, cur.Meetings, 2)
}

func TestRefreshFailureKeepsPreviousSnapshot(t *testing.T) {
	src := &fakeSource{meetings: []model.Meeting{{ID: "m1"}}}
	r, store := newTestRefresher(t, src)

	_, err := r.Refresh(context.Background())
	require.NoError(t, err)

	src.meetings = nil
	src.err = errors.New("host unreachable")
	snap, err := r.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, uint64(1), snap.Version)

	cur, _ := store.Current()
	assert.Len(t, cur.Meetings, 1)
}

func TestRefreshPartialFailureStillSwaps(t *testing.T) {
	src := &fakeSource{
		meetings: []model.Meeting{{ID: "m1"}, {ID: "m2"}},
		err:      errors.New("feed u3: 404"),
	}
	r, store := newTestRefresher(t, src)

	snap, err := r.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, uint64(1), snap.Version)

	cur, ok := store.Current()
	require.True(t, ok)
	assert.Len(t, cur.Meetings, 2)
}

func TestRefresherSetSource(t *testing.T) {
	first := &fakeSource{meetings: []model.Meeting{{ID: "a"}}}
	second := &fakeSource{meetings: []model.Meeting{{ID: "b"}, {ID: "c"}}}
	r, _ := newTestRefresher(t, first)

	r.SetSource(second)
	snap, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Meetings, 2)
	assert.Equal(t, 0, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestRefresherStartStop(t *testing.T) {
	r, _ := newTestRefresher(t, &fakeSource{})
	require.NoError(t, r.Start(context.Background()))
	assert.Error(t, r.Start(context.Background()))
	r.Stop()
	r.Stop()
}

func TestNewRefresherValidates(t *testing.T) {
	_, err := NewRefresher(&fakeSource{}, NewStore(), RefresherConfig{Spec: "not a schedule"})
	assert.Error(t, err)

	_, err = NewRefresher(nil, NewStore(), RefresherConfig{Spec: "* * * * *"})
	assert.Error(t, err)
}

func TestSnapshotBetween(t *testing.T) {
	day := time.Date(2025, 10, 29, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{Meetings: []model.Meeting{
		{ID: "in", Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour)},
		{ID: "before", Start: day.Add(-3 * time.Hour), End: day.Add(-2 * time.Hour)},
		{ID: "spans", Start: day.Add(-1 * time.Hour), End: day.Add(1 * time.Hour)},
	}}

	got := snap.Between(day, day.Add(24*time.Hour))
	ids := []string{}
	for _, m := range got {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"in", "spans"}, ids)
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "meetings.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`[
		{"id": "m1", "staff_id": "u1", "title": "Intro", "start": "2025-10-29T09:00:00Z", "end": "2025-10-29T10:00:00Z"},
		{"id": "m2", "staff_id": "u1", "title": "Later", "start": "2025-11-20T09:00:00Z", "end": "2025-11-20T10:00:00Z"}
	]`), 0o600))

	yamlPath := filepath.Join(dir, "meetings.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`meetings:
  - id: m3
    staff_id: u2
    title: Review
    start: 2025-10-29T11:00:00Z
    end: 2025-10-29T12:00:00Z
`), 0o600))

	from := time.Date(2025, 10, 29, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	got, err := FileSource{Path: jsonPath}.Search(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].ID)
	assert.True(t, got[0].Start.Equal(from.Add(9*time.Hour)))

	got, err = FileSource{Path: yamlPath}.Search(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "u2", got[0].StaffID)

	_, err = FileSource{Path: filepath.Join(dir, "missing.json")}.Search(context.Background(), from, to)
	assert.Error(t, err)
}
