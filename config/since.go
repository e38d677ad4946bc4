package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseSince parses a compact day count such as "2d". Only the day unit is
// supported.
func ParseSince(s string) (int, error) {
	digits, ok := strings.CutSuffix(s, "d")
	if !ok {
		return 0, fmt.Errorf("unsupported time unit in %q: only the 'd' (days) suffix is supported, e.g. '2d'", s)
	}
	n, err := strconv.ParseUint(digits, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: expected an integer before the unit, like '1d' or '30d'", s)
	}
	return int(n), nil
}

// StartOfDay returns local midnight daysAgo days before now.
func StartOfDay(now time.Time, daysAgo int) time.Time {
	y, m, d := now.AddDate(0, 0, -daysAgo).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}
