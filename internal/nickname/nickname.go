// Package nickname builds the clock-suffixed display name.
package nickname

import (
	"fmt"
	"strings"
	"time"
)

// Separator joins the base name and the appended time fields.
const Separator = " | "

const (
	MinTimezone = -12
	MaxTimezone = 14

	dayStart = 6
	dayEnd   = 18
)

// Format returns "{base} | {HH}:{MM} | {day|night}" for the wall clock at
// offset hours from UTC.
func Format(base string, offset int, now time.Time) string {
	local := now.UTC().Add(time.Duration(offset) * time.Hour)
	return fmt.Sprintf("%s%s%02d:%02d%s%s", base, Separator, local.Hour(), local.Minute(), Separator, Period(local.Hour()))
}

// Period labels a local hour as "day" in [6,18) and "night" otherwise.
func Period(hour int) string {
	if hour >= dayStart && hour < dayEnd {
		return "day"
	}
	return "night"
}

// BaseName strips everything from the first separator on, so a name that
// already carries a suffix yields the user's own name.
func BaseName(displayName string) string {
	if i := strings.Index(displayName, Separator); i >= 0 {
		return displayName[:i]
	}
	return displayName
}

// ValidTimezone reports whether offset is a whole-hour UTC offset in the
// range offered to the user.
func ValidTimezone(offset int) bool {
	return offset >= MinTimezone && offset <= MaxTimezone
}

// TimezoneLabel renders an offset as "UTC+3" / "UTC-5" / "UTC+0".
func TimezoneLabel(offset int) string {
	if offset >= 0 {
		return fmt.Sprintf("UTC+%d", offset)
	}
	return fmt.Sprintf("UTC%d", offset)
}
