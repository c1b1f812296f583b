package ics

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appLog "staffcal/internal/log"
	"staffcal/internal/model"
)

// Recurring meetings are shown at their own DTSTART only. The RRULE is kept
// verbatim on the meeting together with a short label such as
// "Weekly on Mon, Wed" so the UI can mark the series.

// weekdayNames is indexed by rrule.Weekday.Day() (Monday = 0).
var weekdayNames = [...]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// DescribeRecurrence returns a human label for a raw RRULE value. Invalid
// rules yield an error; the caller keeps the raw string either way.
func DescribeRecurrence(raw string) (string, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "RRULE:"))
	if raw == "" {
		return "", nil
	}

	opt, err := rrule.StrToROption(raw)
	if err != nil {
		return "", fmt.Errorf("ics: invalid RRULE %q: %w", raw, err)
	}

	var b strings.Builder
	b.WriteString(frequencyLabel(opt.Freq, opt.Interval))

	if len(opt.Byweekday) > 0 {
		days := make([]string, 0, len(opt.Byweekday))
		for _, wd := range opt.Byweekday {
			// Day() drops any nth prefix (e.g. 2MO).
			if d := wd.Day(); d >= 0 && d < len(weekdayNames) {
				days = append(days, weekdayNames[d])
			}
		}
		if len(days) > 0 {
			b.WriteString(" on ")
			b.WriteString(strings.Join(days, ", "))
		}
	}

	switch {
	case opt.Count > 0:
		fmt.Fprintf(&b, ", %d times", opt.Count)
	case !opt.Until.IsZero():
		fmt.Fprintf(&b, ", until %s", opt.Until.Format(time.DateOnly))
	}

	return b.String(), nil
}

func frequencyLabel(f rrule.Frequency, interval int) string {
	unit := map[rrule.Frequency]string{
		rrule.YEARLY:   "year",
		rrule.MONTHLY:  "month",
		rrule.WEEKLY:   "week",
		rrule.DAILY:    "day",
		rrule.HOURLY:   "hour",
		rrule.MINUTELY: "minute",
		rrule.SECONDLY: "second",
	}[f]
	if interval > 1 {
		return fmt.Sprintf("Every %d %ss", interval, unit)
	}
	switch f {
	case rrule.DAILY:
		return "Daily"
	case rrule.WEEKLY:
		return "Weekly"
	case rrule.MONTHLY:
		return "Monthly"
	case rrule.YEARLY:
		return "Yearly"
	default:
		return "Every " + unit
	}
}

// ToMeetings converts parsed events of one staff feed into meetings in
// displayLoc. Overrides of recurring instances (RECURRENCE-ID) are kept as
// standalone meetings with an instance-specific id.
func ToMeetings(staffID string, events []ParsedEvent, displayLoc *time.Location) []model.Meeting {
	if displayLoc == nil {
		displayLoc = time.Local
	}

	out := make([]model.Meeting, 0, len(events))
	for _, ev := range events {
		id := ev.UID
		if ev.Recurrence != nil {
			// Overrides share the series UID; the instance start keeps them apart.
			id = ev.UID + "@" + ev.Recurrence.UTC().Format("20060102T150405Z")
		}

		m := model.Meeting{
			ID:            id,
			StaffID:       staffID,
			SourceID:      ev.Source.ID,
			Title:         ev.Summary,
			Description:   ev.Description,
			Location:      ev.Location,
			AllDay:        ev.AllDay,
			Start:         ev.Start.In(displayLoc),
			End:           ev.End.In(displayLoc),
			RawRecurrence: ev.RawRRule,
		}
		if ev.End.IsZero() {
			m.End = m.Start
		}

		if ev.RawRRule != "" {
			label, err := DescribeRecurrence(ev.RawRRule)
			if err != nil {
				appLog.Error("ics: recurrence not understood", err, "uid", ev.UID, "staff_id", staffID)
			}
			m.RecurrenceLabel = label
		}

		out = append(out, m)
	}
	return out
}
