package core

import (
	"errors"
	"time"
)

// Date is a calendar date with the time component zeroed, UTC.
type Date struct {
	time.Time
}

// NewDate creates a new Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// NewPeriod returns the canonical period date for a year and month:
// the first day of that month.
func NewPeriod(year, month int) Date {
	return NewDate(year, month, 1)
}

// ParseDate parses a YYYY-MM-DD string into a Date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t.UTC()}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

// Day returns the day of the month.
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month as an int (1-12).
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year.
func (d Date) Year() int {
	return d.Time.Year()
}

// IsEmpty returns true if the date is zero (optional dates).
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format("2006-01-02")
}

// FirstOfMonth returns the date truncated to the first day of its month.
func (d Date) FirstOfMonth() Date {
	return NewDate(d.Year(), d.Month(), 1)
}

// EndOfMonth returns the last calendar day of the date's month,
// accounting for leap years.
func (d Date) EndOfMonth() Date {
	// day zero of the next month
	t := time.Date(d.Year(), d.Time.Month()+1, 0, 0, 0, 0, 0, time.UTC)
	return Date{Time: t}
}

// AddMonths shifts the date by n calendar months (n may be negative),
// preserving the day of the month. Period dates are always day 1, so the
// shift never normalizes into a neighboring month.
func (d Date) AddMonths(n int) Date {
	return Date{Time: d.AddDate(0, n, 0)}
}

// MonthsBetween returns the signed number of whole calendar months from a
// to b, ignoring days: (b.year-a.year)*12 + (b.month-a.month).
func MonthsBetween(a, b Date) int {
	return (b.Year()-a.Year())*12 + (b.Month() - a.Month())
}
