// Package timeutil provides UTC calendar helpers for FitCoach Client Hub.
// Every date comparison in the system (task buckets, "today" quick
// filters, creation-date ranges) uses UTC day boundaries; local zones
// never leak into classification or query predicates.
// No external dependencies - uses only standard library.
package timeutil

import "time"

// Now returns the current time in UTC.
func Now() time.Time {
	return time.Now().UTC()
}

// ToUTC converts a time to UTC.
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}

// StartOfDay returns 00:00:00.000 UTC of the calendar day of t.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns 23:59:59.999 UTC of the calendar day of t.
// Millisecond precision matches the store's timestamp wire format.
func EndOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 23, 59, 59, 999*int(time.Millisecond), time.UTC)
}

// DayBounds returns the inclusive [start, end] pair for the calendar
// day of t in UTC.
func DayBounds(t time.Time) (time.Time, time.Time) {
	return StartOfDay(t), EndOfDay(t)
}

// Date creates a UTC time for the given date at midnight.
func Date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// DateTime creates a UTC time for the given date and time.
func DateTime(year, month, day, hour, min, sec int) time.Time {
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC)
}

// SameDay checks whether two instants fall on the same UTC calendar day.
func SameDay(t1, t2 time.Time) bool {
	u1, u2 := t1.UTC(), t2.UTC()
	return u1.Year() == u2.Year() && u1.YearDay() == u2.YearDay()
}

// IsToday checks whether t falls on the current UTC calendar day.
func IsToday(t time.Time) bool {
	return SameDay(t, Now())
}

// DaysBetween returns the absolute number of UTC calendar days between
// two instants.
func DaysBetween(t1, t2 time.Time) int {
	d1 := StartOfDay(t1)
	d2 := StartOfDay(t2)
	days := int(d2.Sub(d1).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
	// FormatStamp is the store's timestamp wire format, millisecond
	// precision with an explicit UTC marker.
	FormatStamp = "2006-01-02T15:04:05.000Z"
)

// FormatStampUTC formats an instant in the store's wire format.
func FormatStampUTC(t time.Time) string {
	return t.UTC().Format(FormatStamp)
}

// ParseDate parses a YYYY-MM-DD string as a UTC midnight instant.
func ParseDate(value string) (time.Time, error) {
	return time.Parse(FormatDate, value)
}
