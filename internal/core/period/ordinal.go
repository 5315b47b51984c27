package period

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Ordinal numbers periods W1, W2, ... and only moves on when an
// administrator resets the current period. Wall-clock time is ignored.
type Ordinal struct{}

func (Ordinal) Name() string { return PolicyOrdinal }

func (Ordinal) Key(time.Time) (ID, bool) { return "", false }

func (Ordinal) Valid(id ID) bool {
	_, err := ParseOrdinal(id)
	return err == nil
}

func (Ordinal) Before(a, b ID) bool {
	an, errA := ParseOrdinal(a)
	bn, errB := ParseOrdinal(b)
	if errA != nil || errB != nil {
		return a < b
	}
	return an < bn
}

// OrdinalID returns the identifier for the n-th period.
func OrdinalID(n int) ID {
	return ID("W" + strconv.Itoa(n))
}

// ParseOrdinal returns the index encoded in an ordinal identifier.
// Only the canonical form is accepted ("W7", not "W07").
func ParseOrdinal(id ID) (int, error) {
	s := string(id)
	if !strings.HasPrefix(s, "W") {
		return 0, fmt.Errorf("malformed ordinal period %q (want W<n>)", id)
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil || n < 1 || OrdinalID(n) != id {
		return 0, fmt.Errorf("malformed ordinal period %q (want W<n>, n >= 1)", id)
	}
	return n, nil
}
