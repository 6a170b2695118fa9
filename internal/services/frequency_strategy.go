// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for recurrence checking.
// Each frequency (once, monthly, bimonthly, quarterly, semiannually,
// annually) has its own strategy that encapsulates the inclusion test
// for a calendar period.

package services

import (
	"fmt"

	"impegni/internal/core"
)

// PeriodChecker is the strategy interface for deciding whether a calendar
// period falls on a term's recurrence schedule. Both dates are normalized
// to the first of their month before the test; a period that precedes the
// start is never due.
type PeriodChecker interface {
	IsDue(start, period core.Date) bool
}

// monthsSince returns the whole-month distance from start to period, both
// truncated to the first of the month.
func monthsSince(start, period core.Date) int {
	return core.MonthsBetween(start.FirstOfMonth(), period.FirstOfMonth())
}

// OnceChecker matches only the starting month itself.
type OnceChecker struct{}

func (OnceChecker) IsDue(start, period core.Date) bool {
	return monthsSince(start, period) == 0
}

// MonthlyChecker matches every month from the start onward.
type MonthlyChecker struct{}

func (MonthlyChecker) IsDue(start, period core.Date) bool {
	return monthsSince(start, period) >= 0
}

// BimonthlyChecker matches every second month from the start.
type BimonthlyChecker struct{}

func (BimonthlyChecker) IsDue(start, period core.Date) bool {
	d := monthsSince(start, period)
	return d >= 0 && d%2 == 0
}

// QuarterlyChecker matches every third month from the start.
type QuarterlyChecker struct{}

func (QuarterlyChecker) IsDue(start, period core.Date) bool {
	d := monthsSince(start, period)
	return d >= 0 && d%3 == 0
}

// SemiannualChecker matches every sixth month from the start.
type SemiannualChecker struct{}

func (SemiannualChecker) IsDue(start, period core.Date) bool {
	d := monthsSince(start, period)
	return d >= 0 && d%6 == 0
}

// AnnualChecker matches the starting month of every following year.
type AnnualChecker struct{}

func (AnnualChecker) IsDue(start, period core.Date) bool {
	d := monthsSince(start, period)
	return d >= 0 && d%12 == 0
}

// periodStrategies maps frequencies to their corresponding checkers.
var periodStrategies = map[core.Frequency]PeriodChecker{
	core.Once:         OnceChecker{},
	core.Monthly:      MonthlyChecker{},
	core.Bimonthly:    BimonthlyChecker{},
	core.Quarterly:    QuarterlyChecker{},
	core.Semiannually: SemiannualChecker{},
	core.Annually:     AnnualChecker{},
}

// GetPeriodChecker returns the checker for a frequency, or an error if the
// frequency is not supported.
func GetPeriodChecker(frequency core.Frequency) (PeriodChecker, error) {
	checker, ok := periodStrategies[frequency]
	if !ok {
		return nil, fmt.Errorf("unknown frequency: %s", frequency)
	}
	return checker, nil
}

// RegisterPeriodChecker allows registering custom checkers for new
// frequency types without touching the existing strategies.
func RegisterPeriodChecker(frequency core.Frequency, checker PeriodChecker) {
	periodStrategies[frequency] = checker
}

// IsPeriodDue reports whether the period falls on the recurrence schedule
// of the given frequency anchored at start. Pure and side-effect free.
func IsPeriodDue(frequency core.Frequency, start, period core.Date) (bool, error) {
	checker, err := GetPeriodChecker(frequency)
	if err != nil {
		return false, err
	}
	return checker.IsDue(start, period), nil
}
