// Package timeutil normalizes the many date representations seen in feeds
// and user input into canonical UTC instants, and renders them back into
// display timezones. Every persisted timestamp in the database goes through
// FormatUTC.
package timeutil

import (
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"
)

// UTCFormat is the only representation ever written to the database:
// second precision, literal Z suffix.
const UTCFormat = "2006-01-02T15:04:05Z"

// DefaultZone is the input/display timezone used when none is configured.
const DefaultZone = "Asia/Tokyo"

// Hour of day assumed when a schedule input carries a date but no time.
const defaultScheduleHour = 9

// DateParseError reports a date string that could not be interpreted.
type DateParseError struct {
	Input string
	Zone  string
}

func (e *DateParseError) Error() string {
	if e.Zone != "" {
		return fmt.Sprintf("unparseable date %q (timezone %s)", e.Input, e.Zone)
	}
	return fmt.Sprintf("unparseable date %q", e.Input)
}

// UnknownTimezoneError reports an unrecognized zone name.
type UnknownTimezoneError struct {
	Name string
}

func (e *UnknownTimezoneError) Error() string {
	return fmt.Sprintf("unknown timezone %q", e.Name)
}

// EntryTimes carries every timestamp candidate a feed entry may expose.
// Parsed fields come from gofeed; string fields are the raw element values
// for feeds gofeed could not parse (dc:date and the old Atom 0.3 names).
type EntryTimes struct {
	PublishedParsed *time.Time
	UpdatedParsed   *time.Time
	Published       string
	Updated         string
	DCDate          string
	Issued          string
	Created         string
}

// EntryTime resolves an entry's publication instant. Candidates are tried
// in a fixed priority order; when nothing is usable the current UTC time is
// returned so ingestion never blocks on a bad date.
func EntryTime(e EntryTimes, now time.Time) time.Time {
	if e.PublishedParsed != nil {
		return e.PublishedParsed.UTC()
	}
	if e.UpdatedParsed != nil {
		return e.UpdatedParsed.UTC()
	}
	for _, s := range []string{e.Published, e.Updated, e.DCDate, e.Issued, e.Created} {
		if t, err := ParseDateString(s); err == nil {
			return t
		}
	}
	return now.UTC()
}

// isoLayouts are tried in order after RFC-822. Layouts without zone
// information are interpreted as UTC.
var isoLayouts = []string{
	"2006-01-02T15:04:05-07:00",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDateString parses an RFC-822 or ISO-8601-like date string into a UTC
// instant. A value without timezone information is assumed UTC.
func ParseDateString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, &DateParseError{Input: s}
	}

	if t, err := mail.ParseDate(s); err == nil {
		return t.UTC(), nil
	}

	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, &DateParseError{Input: s}
}

// LoadZone resolves an IANA timezone name.
func LoadZone(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, &UnknownTimezoneError{Name: name}
	}
	return loc, nil
}

// ParseScheduleInput interprets operator scheduling input in the given
// timezone and returns a UTC instant. Accepted forms:
//
//	now
//	+<N>m | +<N>h | +<N>d      relative to now
//	YYYY-MM-DD[ HH:MM[:SS]]    absolute local time (09:00 when time omitted)
//	HH:MM                      today at that local time
func ParseScheduleInput(s string, loc *time.Location, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, &DateParseError{Input: s, Zone: loc.String()}
	}

	if s == "now" {
		return now.UTC().Truncate(time.Second), nil
	}

	if strings.HasPrefix(s, "+") {
		d, err := parseRelative(s)
		if err != nil {
			return time.Time{}, &DateParseError{Input: s, Zone: loc.String()}
		}
		return now.UTC().Add(d).Truncate(time.Second), nil
	}

	// Bare HH:MM means today in the input timezone.
	if len(s) <= 5 && strings.Contains(s, ":") {
		s = now.In(loc).Format("2006-01-02") + " " + s
	}

	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}

	// Bare date defaults to 09:00 local.
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t.Add(defaultScheduleHour * time.Hour).UTC(), nil
	}

	return time.Time{}, &DateParseError{Input: s, Zone: loc.String()}
}

func parseRelative(s string) (time.Duration, error) {
	if len(s) < 3 {
		return 0, fmt.Errorf("relative input too short: %q", s)
	}
	n, err := strconv.Atoi(s[1 : len(s)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid relative amount: %w", err)
	}
	switch s[len(s)-1] {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid relative unit in %q", s)
	}
}

// RenderInZone formats a UTC instant for display in the given timezone.
func RenderInZone(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02 15:04 (MST)")
}

// FormatUTC serializes an instant in the canonical persisted form.
func FormatUTC(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(UTCFormat)
}

// ParseUTC reads a timestamp previously written by FormatUTC.
func ParseUTC(s string) (time.Time, error) {
	t, err := time.Parse(UTCFormat, s)
	if err != nil {
		return time.Time{}, &DateParseError{Input: s}
	}
	return t, nil
}
