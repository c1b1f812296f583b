package model

import "time"

// Staff is one bookable person; each active staff member gets a column on
// the day board.
type Staff struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email,omitempty" yaml:"email,omitempty"`
	Role  string `json:"role,omitempty" yaml:"role,omitempty"`

	// Active is false for deactivated users; they are hidden from boards.
	Active bool `json:"active" yaml:"active"`
}

// Meeting is a single booked meeting as returned by a meeting source.
// Recurrence is kept as an opaque descriptive string and never expanded.
type Meeting struct {
	// ID is stable per meeting and used to look up its lane assignment.
	ID string `json:"id" yaml:"id"`
	// StaffID is the assignee; it selects the board column.
	StaffID string `json:"staff_id" yaml:"staff_id"`
	// SourceID names the feed the meeting came from.
	SourceID string `json:"source_id,omitempty" yaml:"source_id,omitempty"`

	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Location    string `json:"location,omitempty" yaml:"location,omitempty"`

	AllDay bool `json:"all_day" yaml:"all_day"`

	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`

	// RawRecurrence is the RRULE as found in the source, e.g.
	// "FREQ=WEEKLY;BYDAY=MO". RecurrenceLabel is a short human summary.
	RawRecurrence   string `json:"recurrence,omitempty" yaml:"recurrence,omitempty"`
	RecurrenceLabel string `json:"recurrence_label,omitempty" yaml:"recurrence_label,omitempty"`
}

// Touches reports whether m intersects [from, to]. Meetings that end
// exactly at from or start exactly at to count as touching.
func (m Meeting) Touches(from, to time.Time) bool {
	end := m.End
	if end.IsZero() {
		end = m.Start
	}
	return !(end.Before(from) || m.Start.After(to))
}
