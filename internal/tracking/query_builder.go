package tracking

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/tj/go-naturaldate"
)

// QueryFilter represents common query structure for all analyze commands
type QueryFilter struct {
	// Time filters
	StartTime  *time.Time // Start of time range (inclusive)
	EndTime    *time.Time // End of time range (inclusive)
	Days       int        // Convenience: last N days
	DatePreset string     // Convenience: "today", "yesterday", "week", "month", "all"

	// Content filters
	SessionID string
	Path      string

	Limit int // Maximum results (0 = no limit)
}

// ApplyTimeFilter converts QueryFilter time options to Unix timestamps.
// A zero start means no lower bound.
func (q *QueryFilter) ApplyTimeFilter(now time.Time) (startUnix, endUnix int64) {
	slog.Debug("applying time filter", "days", q.Days, "date_preset", q.DatePreset)

	endUnix = now.Unix()

	// Priority order: DatePreset > StartTime/EndTime > Days > no filter
	if q.DatePreset != "" {
		start, end, err := ParseDatePreset(q.DatePreset, now)
		if err != nil {
			slog.Warn("invalid date preset, using no time filter", "preset", q.DatePreset, "error", err)
			return 0, endUnix
		}
		if start.IsZero() {
			return 0, end.Unix()
		}
		return start.Unix(), end.Unix()
	}

	if q.StartTime != nil && q.EndTime != nil {
		return q.StartTime.Unix(), q.EndTime.Unix()
	}
	if q.StartTime != nil {
		return q.StartTime.Unix(), endUnix
	}
	if q.EndTime != nil {
		return 0, q.EndTime.Unix()
	}

	if q.Days > 0 {
		return now.AddDate(0, 0, -q.Days).Unix(), endUnix
	}

	return 0, endUnix
}

// hasTimeFilter reports whether any time option is set
func (q *QueryFilter) hasTimeFilter() bool {
	return q.StartTime != nil || q.EndTime != nil || q.Days > 0 || q.DatePreset != ""
}

// applyTo adds the filter's conditions to sb. column is the timestamp
// column of the filtered table.
func (q *QueryFilter) applyTo(sb *sqlbuilder.SelectBuilder, timeColumn, sessionColumn, pathColumn string, now time.Time) {
	if q.hasTimeFilter() {
		startUnix, endUnix := q.ApplyTimeFilter(now)
		if startUnix > 0 {
			sb.Where(sb.GreaterEqualThan(timeColumn, startUnix))
		}
		sb.Where(sb.LessEqualThan(timeColumn, endUnix))
	}
	if q.SessionID != "" {
		sb.Where(sb.Equal(sessionColumn, q.SessionID))
	}
	if q.Path != "" && pathColumn != "" {
		sb.Where(sb.Equal(pathColumn, q.Path))
	}
	if q.Limit > 0 {
		sb.Limit(q.Limit)
	}
}

// ParseDatePreset converts date preset strings to time ranges
func ParseDatePreset(preset string, now time.Time) (start, end time.Time, err error) {
	switch preset {
	case "today":
		start = beginningOfDay(now)
		end = now
	case "yesterday":
		start = beginningOfDay(now.AddDate(0, 0, -1))
		end = beginningOfDay(now)
	case "week", "this-week":
		start = beginningOfWeek(now)
		end = now
	case "last-week":
		start = beginningOfWeek(now).AddDate(0, 0, -7)
		end = beginningOfWeek(now)
	case "month", "this-month":
		start = beginningOfMonth(now)
		end = now
	case "last-month":
		start = beginningOfMonth(now).AddDate(0, -1, 0)
		end = beginningOfMonth(now)
	case "all", "all-time":
		start = time.Time{}
		end = now
	default:
		err = fmt.Errorf("unknown preset: %s", preset)
		return
	}
	return
}

// ParseNaturalDate parses natural language dates such as "3 days ago"
func ParseNaturalDate(naturalDate string, now time.Time) (time.Time, error) {
	slog.Debug("parsing natural language date", "input", naturalDate)

	result, err := naturaldate.Parse(naturalDate, now)
	if err != nil {
		slog.Warn("failed to parse natural language date", "input", naturalDate, "error", err)
		return time.Time{}, fmt.Errorf("failed to parse natural date '%s': %w", naturalDate, err)
	}
	return result, nil
}

func beginningOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// beginningOfWeek returns Monday 00:00:00 of t's week
func beginningOfWeek(t time.Time) time.Time {
	weekday := t.Weekday()
	if weekday == time.Sunday {
		weekday = 7
	}
	return beginningOfDay(t.AddDate(0, 0, -int(weekday-1)))
}

func beginningOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
