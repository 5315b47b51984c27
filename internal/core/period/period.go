// Package period maps timestamps to the identifiers of the counting periods
// they fall into. Exactly one Policy is active per deployment.
package period

import (
	"fmt"
	"strings"
	"time"
)

// Supported policy names.
const (
	PolicyCalendar = "calendar"
	PolicyOrdinal  = "ordinal"
)

// ID identifies one counting period, e.g. "2025-W27" or "W12".
type ID string

// Policy decides which period a timestamp belongs to.
type Policy interface {
	// Name returns the configuration name of the policy.
	Name() string

	// Key maps t to a period identifier. Policies that do not depend on
	// wall-clock time return ok=false and the caller keeps its active period.
	Key(t time.Time) (id ID, ok bool)

	// Valid reports whether id is a well-formed identifier under this policy.
	Valid(id ID) bool

	// Before reports whether period a strictly precedes period b.
	Before(a, b ID) bool
}

// New builds the policy registered under name.
// loc and start are only used by the calendar policy.
func New(name string, loc *time.Location, start WeekStart) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case PolicyCalendar:
		return CalendarWeek{Location: loc, Start: start}, nil
	case PolicyOrdinal:
		return Ordinal{}, nil
	default:
		return nil, fmt.Errorf("unsupported period policy %q (must be %s or %s)", name, PolicyCalendar, PolicyOrdinal)
	}
}

// LoadLocation resolves a timezone setting. Accepts an IANA zone name
// ("America/New_York"), "UTC", or a fixed offset such as "-05:00".
func LoadLocation(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "UTC") {
		return time.UTC, nil
	}

	if s[0] == '+' || s[0] == '-' {
		var h, m int
		if _, err := fmt.Sscanf(s[1:], "%d:%d", &h, &m); err != nil {
			return nil, fmt.Errorf("invalid timezone offset %q: %w", s, err)
		}
		if h > 14 || m < 0 || m > 59 {
			return nil, fmt.Errorf("timezone offset %q out of range", s)
		}
		secs := h*3600 + m*60
		if s[0] == '-' {
			secs = -secs
		}
		return time.FixedZone(s, secs), nil
	}

	loc, err := time.LoadLocation(s)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", s, err)
	}
	return loc, nil
}
