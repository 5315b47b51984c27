package period

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const week = 7 * 24 * time.Hour

// Older documents wrote the week without zero padding ("2025-W5"), so the
// parser accepts one or two digits. Only the padded form is Valid.
var calendarIDPattern = regexp.MustCompile(`^(\d{4})-W(\d{1,2})$`)

// WeekStart is the local weekday and hour at which a calendar period begins.
type WeekStart struct {
	Day  time.Weekday
	Hour int
}

// DefaultWeekStart is Monday 00:00, the ISO week boundary.
var DefaultWeekStart = WeekStart{Day: time.Monday}

// ParseWeekStart parses "monday", "sun", or "sunday@12" (weekday@hour).
func ParseWeekStart(s string) (WeekStart, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultWeekStart, nil
	}

	dayPart, hourPart, hasHour := strings.Cut(s, "@")
	ws := WeekStart{}

	found := false
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if dayPart == name || dayPart == name[:3] {
			ws.Day = d
			found = true
			break
		}
	}
	if !found {
		return WeekStart{}, fmt.Errorf("invalid week_start %q: unknown weekday %q", s, dayPart)
	}

	if hasHour {
		h, err := strconv.Atoi(hourPart)
		if err != nil {
			return WeekStart{}, fmt.Errorf("invalid week_start %q: %w", s, err)
		}
		if h < 0 || h > 23 {
			return WeekStart{}, fmt.Errorf("invalid week_start %q: hour must be 0-23", s)
		}
		ws.Hour = h
	}
	return ws, nil
}

func (w WeekStart) String() string {
	return fmt.Sprintf("%s@%02d", strings.ToLower(w.Day.String()), w.Hour)
}

// shift is how far a local wall-clock time must move forward so that this
// week start lands on an ISO week boundary (Monday 00:00).
func (w WeekStart) shift() time.Duration {
	days := (int(w.Day) - int(time.Monday) + 7) % 7
	offset := time.Duration(days)*24*time.Hour + time.Duration(w.Hour)*time.Hour
	return (week - offset) % week
}

// CalendarWeek keys periods by calendar week in a fixed timezone.
// Identifiers have the form "<year>-W<week>" with the week zero-padded,
// so they sort in chronological order.
type CalendarWeek struct {
	Location *time.Location
	Start    WeekStart
}

func (c CalendarWeek) Name() string { return PolicyCalendar }

// Key returns the calendar week containing t.
func (c CalendarWeek) Key(t time.Time) (ID, bool) {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)

	// Work on the wall clock so DST transitions never move a boundary.
	wall := time.Date(local.Year(), local.Month(), local.Day(),
		local.Hour(), local.Minute(), local.Second(), local.Nanosecond(), time.UTC)
	year, wk := wall.Add(c.Start.shift()).ISOWeek()
	return FormatCalendar(year, wk), true
}

func (c CalendarWeek) Valid(id ID) bool {
	year, wk, err := ParseCalendar(id)
	return err == nil && FormatCalendar(year, wk) == id
}

func (c CalendarWeek) Before(a, b ID) bool {
	ay, aw, errA := ParseCalendar(a)
	by, bw, errB := ParseCalendar(b)
	if errA != nil || errB != nil {
		return a < b
	}
	if ay != by {
		return ay < by
	}
	return aw < bw
}

// FormatCalendar renders a calendar period identifier.
func FormatCalendar(year, week int) ID {
	return ID(fmt.Sprintf("%04d-W%02d", year, week))
}

// Canonical rewrites an unpadded calendar identifier such as "2025-W5" to
// its padded form. Any other identifier is returned unchanged.
func Canonical(id ID) ID {
	year, wk, err := ParseCalendar(id)
	if err != nil {
		return id
	}
	return FormatCalendar(year, wk)
}

// ParseCalendar splits a calendar identifier into year and week.
func ParseCalendar(id ID) (year, week int, err error) {
	m := calendarIDPattern.FindStringSubmatch(string(id))
	if m == nil {
		return 0, 0, fmt.Errorf("malformed calendar period %q (want YYYY-Www)", id)
	}
	year, _ = strconv.Atoi(m[1])
	week, _ = strconv.Atoi(m[2])
	if week < 1 || week > 53 {
		return 0, 0, fmt.Errorf("calendar period %q: week must be 1-53", id)
	}
	return year, week, nil
}
