package schedule

import (
	"sync"
	"time"

	"staffcal/internal/model"
)

// Snapshot is an immutable view of the meetings known at a point in time.
type Snapshot struct {
	// Version increases by one on every successful swap.
	Version   uint64
	UpdatedAt time.Time
	From, To  time.Time
	Meetings  []model.Meeting
}

// Store holds the current snapshot. Readers never block a refresh for
// longer than a pointer swap.
type Store struct {
	mu   sync.RWMutex
	snap *Snapshot
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Current returns the latest snapshot and whether one exists yet.
func (s *Store) Current() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return Snapshot{}, false
	}
	return *s.snap, true
}

// Replace swaps in a new meeting list and returns the stored snapshot.
func (s *Store) Replace(from, to time.Time, meetings []model.Meeting) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var version uint64 = 1
	if s.snap != nil {
		version = s.snap.Version + 1
	}
	s.snap = &Snapshot{
		Version:   version,
		UpdatedAt: time.Now(),
		From:      from,
		To:        to,
		Meetings:  meetings,
	}
	return *s.snap
}

// Between returns the snapshot's meetings touching [from, to].
func (s Snapshot) Between(from, to time.Time) []model.Meeting {
	out := make([]model.Meeting, 0)
	for _, m := range s.Meetings {
		if m.Touches(from, to) {
			out = append(out, m)
		}
	}
	return out
}
