// Package schedule converts a user's self-reported local clock reading
// into server-side trigger instants and keeps recurring triggers firing
// across restarts.
//
// The offset approximation is deliberate: one reported "HH:MM" reading
// stands in for a timezone. It is captured once, baked into the stored
// trigger time, and never recomputed later.
package schedule

import (
	"fmt"
	"time"
)

// Plan is the output of the pure calculator: the first trigger instant
// and the recurrence interval.
type Plan struct {
	FirstTrigger time.Time
	Interval     time.Duration
}

// ParseHHMM parses a strict 24-hour "HH:MM" string.
func ParseHHMM(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("bad time %q: want HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}

// combine returns the instant at hour:minute on day's UTC date.
func combine(day time.Time, hour, minute int) time.Time {
	y, m, d := day.UTC().Date()
	return time.Date(y, m, d, hour, minute, 0, 0, time.UTC)
}

// ClockOffset derives the server-minus-local offset from a reported
// local reading, assuming the reading refers to the server's UTC date.
func ClockOffset(serverNowUTC time.Time, reportedLocal string) (time.Duration, error) {
	h, m, err := ParseHHMM(reportedLocal)
	if err != nil {
		return 0, err
	}
	return serverNowUTC.Sub(combine(serverNowUTC, h, m)), nil
}

// desiredServerInstant maps the desired local time-of-day onto the
// server clock for the server's current date.
func desiredServerInstant(serverNowUTC time.Time, desiredLocal string, offset time.Duration) (time.Time, error) {
	h, m, err := ParseHHMM(desiredLocal)
	if err != nil {
		return time.Time{}, err
	}
	return combine(serverNowUTC, h, m).Add(offset), nil
}

// DailyReminderPlan computes the first strictly-future trigger for a
// daily reminder. If today's instant has already elapsed the trigger
// rolls to the next day.
func DailyReminderPlan(serverNowUTC time.Time, reportedLocal, desiredLocal string) (Plan, error) {
	offset, err := ClockOffset(serverNowUTC, reportedLocal)
	if err != nil {
		return Plan{}, err
	}
	first, err := desiredServerInstant(serverNowUTC, desiredLocal, offset)
	if err != nil {
		return Plan{}, err
	}
	for !first.After(serverNowUTC) {
		first = first.Add(24 * time.Hour)
	}
	return Plan{FirstTrigger: first, Interval: 24 * time.Hour}, nil
}

// RetrospectivePlan computes the first strictly-future occurrence of
// targetWeekday (0=Monday..6=Sunday) at the desired local time, with the
// given recurrence interval. A same-day candidate that has already
// elapsed rolls a full week forward, never just to the next day.
func RetrospectivePlan(serverNowUTC time.Time, reportedLocal, desiredLocal string, targetWeekday int, interval time.Duration) (Plan, error) {
	if targetWeekday < 0 || targetWeekday > 6 {
		return Plan{}, fmt.Errorf("bad weekday %d: want 0..6", targetWeekday)
	}
	offset, err := ClockOffset(serverNowUTC, reportedLocal)
	if err != nil {
		return Plan{}, err
	}
	inst, err := desiredServerInstant(serverNowUTC, desiredLocal, offset)
	if err != nil {
		return Plan{}, err
	}
	first := NextWeekdayOccurrence(inst, serverNowUTC, targetWeekday)
	return Plan{FirstTrigger: first, Interval: interval}, nil
}

// NextWeekdayOccurrence advances candidate by whole days until its
// weekday equals targetWeekday, then by whole weeks until it is strictly
// after now.
func NextWeekdayOccurrence(candidate, now time.Time, targetWeekday int) time.Time {
	for WeekdayIndex(candidate) != targetWeekday {
		candidate = candidate.Add(24 * time.Hour)
	}
	for !candidate.After(now) {
		candidate = candidate.Add(7 * 24 * time.Hour)
	}
	return candidate
}

// WeekdayIndex maps time.Weekday to the Monday=0..Sunday=6 wire format.
func WeekdayIndex(t time.Time) int {
	return (int(t.UTC().Weekday()) + 6) % 7
}
