// Package board turns a meeting snapshot into per-staff day columns with
// proportional lane placement, the shape the calendar front-end draws.
package board

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"staffcal/internal/lanes"
	appLog "staffcal/internal/log"
	"staffcal/internal/metrics"
	"staffcal/internal/minutes"
	"staffcal/internal/model"
)

// allDayThreshold marks timed meetings long enough to be drawn as all-day.
const allDayThreshold = 23 * time.Hour

// Options controls geometry and filtering for a board.
type Options struct {
	// Location is the display zone; days start at local midnight.
	Location *time.Location
	// RowHeight is the pixel height of one hour.
	RowHeight int
	// Gutter is the pixel gap between neighbouring lanes.
	Gutter int
	// ShowAllDay keeps all-day meetings on the board.
	ShowAllDay bool
}

func (o Options) loc() *time.Location {
	if o.Location == nil {
		return time.Local
	}
	return o.Location
}

// Placement is one meeting positioned inside its staff column.
type Placement struct {
	MeetingID string `json:"meeting_id"`
	StaffID   string `json:"staff_id"`
	Title     string `json:"title"`
	AllDay    bool   `json:"all_day"`

	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`

	Lane  int `json:"lane"`
	Lanes int `json:"lanes"`

	LeftPct  float64 `json:"left_pct"`
	WidthPct float64 `json:"width_pct"`
	// Left and Width are CSS lengths with the gutter applied.
	Left  string `json:"left"`
	Width string `json:"width"`

	Top    float64 `json:"top"`
	Height float64 `json:"height"`

	Recurrence string `json:"recurrence,omitempty"`
}

// Column is one staff member's day.
type Column struct {
	Staff      model.Staff `json:"staff"`
	Placements []Placement `json:"placements"`
}

// DayBoard is the full multi-staff view of a single day.
type DayBoard struct {
	Date    string   `json:"date"`
	Columns []Column `json:"columns"`
}

// Position computes the horizontal placement of a lane assignment:
// left = 100*lane/lanes and width = 100/lanes percent, with gutter pixels
// taken off the width and half of it added to the left edge.
func Position(a lanes.Assignment, gutter int) (leftPct, widthPct float64, left, width string) {
	n := a.Lanes
	if n < 1 {
		n = 1
	}
	widthPct = 100 / float64(n)
	leftPct = widthPct * float64(a.Lane)

	left = fmt.Sprintf("calc(%s%% + %spx)", formatNum(leftPct), formatNum(float64(gutter)/2))
	width = fmt.Sprintf("calc(%s%% - %dpx)", formatNum(widthPct), gutter)
	return leftPct, widthPct, left, width
}

func formatNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Team orders the active staff for display: people with at least one
// meeting first, then everyone else, each group sorted by name.
func Team(staff []model.Staff, meetings []model.Meeting) []model.Staff {
	busy := make(map[string]bool, len(meetings))
	for _, m := range meetings {
		busy[m.StaffID] = true
	}

	var with, without []model.Staff
	for _, s := range staff {
		if !s.Active {
			continue
		}
		if busy[s.ID] {
			with = append(with, s)
		} else {
			without = append(without, s)
		}
	}
	sortByName(with)
	sortByName(without)
	return append(with, without...)
}

func sortByName(staff []model.Staff) {
	sort.SliceStable(staff, func(i, j int) bool {
		a, b := strings.ToLower(staff[i].Name), strings.ToLower(staff[j].Name)
		if a != b {
			return a < b
		}
		return staff[i].ID < staff[j].ID
	})
}

// Day builds the board for the calendar day containing day. Every member of
// staff gets a column in the given order, even without meetings.
func Day(day time.Time, staff []model.Staff, meetings []model.Meeting, opts Options) DayBoard {
	loc := opts.loc()
	local := day.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	byStaff := make(map[string][]model.Meeting)
	for _, m := range meetings {
		byStaff[m.StaffID] = append(byStaff[m.StaffID], m)
	}

	b := DayBoard{
		Date:    dayStart.Format(time.DateOnly),
		Columns: make([]Column, 0, len(staff)),
	}
	for _, s := range staff {
		b.Columns = append(b.Columns, Column{
			Staff:      s,
			Placements: layoutColumn(s.ID, byStaff[s.ID], dayStart, dayEnd, opts),
		})
	}

	appLog.Debug("day board built", "date", b.Date, "columns", len(b.Columns))
	return b
}

// Range builds days consecutive day boards starting at from. A week view
// is Range(WeekStart(d, first), 7, ...).
func Range(from time.Time, days int, staff []model.Staff, meetings []model.Meeting, opts Options) []DayBoard {
	if days < 1 {
		days = 1
	}
	loc := opts.loc()
	local := from.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	out := make([]DayBoard, 0, days)
	for i := 0; i < days; i++ {
		out = append(out, Day(start.AddDate(0, 0, i), staff, meetings, opts))
	}
	return out
}

type span struct {
	m          model.Meeting
	start, end int
	allDay     bool
}

func layoutColumn(staffID string, meetings []model.Meeting, dayStart, dayEnd time.Time, opts Options) []Placement {
	loc := opts.loc()

	spans := make([]span, 0, len(meetings))
	for _, m := range meetings {
		end := m.End
		if end.IsZero() {
			end = m.Start
		}
		if !m.Start.Before(dayEnd) || !end.After(dayStart) {
			continue
		}

		allDay := m.AllDay || end.Sub(m.Start) >= allDayThreshold
		if allDay && !opts.ShowAllDay {
			continue
		}

		sp := span{m: m, allDay: allDay, start: 0, end: minutes.MinutesPerDay}
		if !allDay {
			if m.Start.After(dayStart) {
				sp.start = minutes.FromTime(m.Start.In(loc))
			}
			if end.Before(dayEnd) {
				sp.end = minutes.FromTime(end.In(loc))
			}
			// Clipped to nothing; not drawable.
			if sp.end <= sp.start {
				continue
			}
		}
		spans = append(spans, sp)
	}

	ivs := make([]lanes.Interval, len(spans))
	for i, sp := range spans {
		ivs[i] = lanes.Interval{ID: sp.m.ID, Start: sp.start, End: sp.end}
	}
	assignments := lanes.Compute(ivs)
	observe(ivs, assignments)

	out := make([]Placement, len(spans))
	for i, sp := range spans {
		a := assignments[i]
		leftPct, widthPct, left, width := Position(a, opts.Gutter)
		out[i] = Placement{
			MeetingID:   sp.m.ID,
			StaffID:     staffID,
			Title:       sp.m.Title,
			AllDay:      sp.allDay,
			StartMinute: sp.start,
			EndMinute:   sp.end,
			Lane:        a.Lane,
			Lanes:       a.Lanes,
			LeftPct:     leftPct,
			WidthPct:    widthPct,
			Left:        left,
			Width:       width,
			Top:         float64(sp.start) / 60 * float64(opts.RowHeight),
			Height:      float64(sp.end-sp.start) / 60 * float64(opts.RowHeight),
			Recurrence:  sp.m.RecurrenceLabel,
		}
	}
	return out
}

func observe(ivs []lanes.Interval, as []lanes.Assignment) {
	metrics.LayoutIntervals.Observe(float64(len(ivs)))
	for _, c := range lanes.Clusters(ivs) {
		metrics.ClusterLanes.Observe(float64(as[c[0]].Lanes))
	}
}
