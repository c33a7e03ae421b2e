package domain

import (
	"fmt"
	"time"
)

const MinutesPerDay = 24 * 60

// WeeklySchedule lists the "normal hours" intervals for each weekday.
// A weekday with no intervals is all overtime.
type WeeklySchedule struct {
	Days     map[time.Weekday][]MinuteInterval
	Location *time.Location
}

// DefaultSchedule is Mon-Fri 09:00-18:00 and Sat 09:00-14:00 in UTC.
func DefaultSchedule() WeeklySchedule {
	weekday := []MinuteInterval{{Start: 9 * 60, End: 18 * 60}}
	return WeeklySchedule{
		Days: map[time.Weekday][]MinuteInterval{
			time.Monday:    weekday,
			time.Tuesday:   weekday,
			time.Wednesday: weekday,
			time.Thursday:  weekday,
			time.Friday:    weekday,
			time.Saturday:  {{Start: 9 * 60, End: 14 * 60}},
		},
		Location: time.UTC,
	}
}

// NormalIntervals returns the configured intervals for a weekday, or nil.
func (s WeeklySchedule) NormalIntervals(day time.Weekday) []MinuteInterval {
	if s.Days == nil {
		return nil
	}
	return s.Days[day]
}

// Loc returns the schedule's time zone, defaulting to UTC.
func (s WeeklySchedule) Loc() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// Validate checks that every interval lies within a day and is non-empty.
func (s WeeklySchedule) Validate() error {
	for day, ivs := range s.Days {
		for i, iv := range ivs {
			if iv.Start < 0 || iv.End > MinutesPerDay || iv.End <= iv.Start {
				return fmt.Errorf("validate schedule: %s interval #%d [%d, %d) out of range", day, i+1, iv.Start, iv.End)
			}
		}
	}
	return nil
}

// Date is a calendar date in the schedule's local time.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	y, m, d := t.In(loc).Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t, time.UTC), nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Start returns local midnight of the date.
func (d Date) Start(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Before reports whether d is earlier than o.
func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
