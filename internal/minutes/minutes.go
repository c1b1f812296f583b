// Package minutes normalizes heterogeneous time values into minutes since
// local midnight, the comparison key used by the lane layout engine.
package minutes

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the length of a calendar day in minutes.
const MinutesPerDay = 24 * 60

// ErrMalformed is the sentinel wrapped by every *ParseError.
var ErrMalformed = errors.New("minutes: malformed time value")

// ParseError reports a value that could not be turned into minutes. Upstream
// records with bad time fields surface here instead of as garbage numbers.
type ParseError struct {
	Value  any
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("minutes: cannot parse %#v: %s", e.Value, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrMalformed }

// dateTimeLayouts are tried in order for ISO-like strings.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Parser extracts minutes relative to Location. A nil Location means
// time.Local.
type Parser struct {
	Location *time.Location
}

// Extract converts v using time.Local as the local zone.
func Extract(v any) (int, error) {
	return Parser{}.Extract(v)
}

// FromTime returns the minutes since midnight of t in its own location.
func FromTime(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// Clock formats minutes as a 24-hour "HH:MM" string. Values outside a day
// wrap around.
func Clock(m int) string {
	m %= MinutesPerDay
	if m < 0 {
		m += MinutesPerDay
	}
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

func (p Parser) loc() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}

// Extract converts v into minutes since local midnight.
//
// Supported inputs:
//   - time.Time: local hour/minute
//   - integer and float numbers: already minutes, returned unchanged
//   - strings containing "T" or "-": parsed as an ISO-like date-time
//   - other strings: "H[:MM]" with an optional am/pm suffix
func (p Parser) Extract(v any) (int, error) {
	switch t := v.(type) {
	case time.Time:
		return FromTime(t.In(p.loc())), nil
	case *time.Time:
		if t == nil {
			return 0, &ParseError{Value: v, Reason: "nil time"}
		}
		return FromTime(t.In(p.loc())), nil
	case int:
		return t, nil
	case int32:
		return int(t), nil
	case int64:
		return int(t), nil
	case uint:
		return int(t), nil
	case uint32:
		return int(t), nil
	case uint64:
		return int(t), nil
	case float32:
		return fromFloat(v, float64(t))
	case float64:
		return fromFloat(v, t)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n), nil
		}
		f, err := t.Float64()
		if err != nil {
			return 0, &ParseError{Value: v, Reason: "not a number"}
		}
		return fromFloat(v, f)
	case fmt.Stringer:
		return p.parseString(t.String())
	case string:
		return p.parseString(t)
	case nil:
		return 0, &ParseError{Value: v, Reason: "missing value"}
	default:
		return 0, &ParseError{Value: v, Reason: fmt.Sprintf("unsupported type %T", v)}
	}
}

func fromFloat(raw any, f float64) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &ParseError{Value: raw, Reason: "not a finite number"}
	}
	if f != math.Trunc(f) {
		return 0, &ParseError{Value: raw, Reason: "fractional minutes"}
	}
	return int(f), nil
}

func (p Parser) parseString(raw string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 0, &ParseError{Value: raw, Reason: "empty string"}
	}

	if strings.Contains(s, "t") || strings.Contains(s, "-") {
		return p.parseDateTime(raw)
	}
	return parseClock(raw, s)
}

func (p Parser) parseDateTime(raw string) (int, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	for _, layout := range dateTimeLayouts {
		// Layouts without an offset are read in the local zone.
		t, err := time.ParseInLocation(layout, s, p.loc())
		if err == nil {
			return FromTime(t.In(p.loc())), nil
		}
	}
	return 0, &ParseError{Value: raw, Reason: "not an ISO 8601 date-time"}
}

func parseClock(raw, s string) (int, error) {
	suffix := ""
	if strings.HasSuffix(s, "am") || strings.HasSuffix(s, "pm") {
		suffix = s[len(s)-2:]
		s = strings.TrimSpace(s[:len(s)-2])
	}

	// "H", "H:MM" or "H:MM:SS"; seconds and anything after are checked
	// but do not move the result.
	parts := strings.Split(s, ":")
	h, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, &ParseError{Value: raw, Reason: "bad hour"}
	}
	m := 0
	if len(parts) > 1 {
		if mStr := strings.TrimSpace(parts[1]); mStr != "" {
			if m, err = strconv.Atoi(mStr); err != nil {
				return 0, &ParseError{Value: raw, Reason: "bad minute"}
			}
		}
	}
	for _, extra := range parts[min(len(parts), 2):] {
		if _, err := strconv.Atoi(strings.TrimSpace(extra)); err != nil {
			return 0, &ParseError{Value: raw, Reason: "bad seconds"}
		}
	}

	switch suffix {
	case "am":
		if h == 12 {
			h = 0
		}
	case "pm":
		if h != 12 {
			h += 12
		}
	}
	return h*60 + m, nil
}
