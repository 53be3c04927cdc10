package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// ScheduleKind identifies which recurring trigger a record describes.
type ScheduleKind string

const (
	KindDailyReminder ScheduleKind = "daily_reminder"
	KindRetrospective ScheduleKind = "retrospective"
)

// Recurrence intervals, in seconds.
const (
	IntervalDaily    = 86400
	IntervalWeekly   = 604800
	IntervalBiweekly = 1209600
)

// ScheduleRecord is a persisted description of a recurring trigger.
// At most one active record exists per (user, kind).
//
// LocalTime and ReportedLocalTime are the user's "HH:MM" inputs;
// ReportedLocalTime is only the reading used to derive the clock offset
// at creation and is never reused afterwards. ServerTime is the computed
// UTC trigger time-of-day ("HH:MM") that rehydration works from.
type ScheduleRecord struct {
	UserID            int64
	Kind              ScheduleKind
	Weekday           int // 0=Monday .. 6=Sunday; meaningful for retrospectives only
	LocalTime         string
	ReportedLocalTime string
	ServerTime        string
	IntervalSec       int64
	Active            bool
	// Timezone is reserved for a future IANA identifier captured at
	// onboarding; the current offset approximation leaves it empty.
	Timezone  string
	UpdatedAt time.Time
}

// AssessmentRecord is one completed questionnaire. Immutable once written.
// Answers is keyed "fixed_1".."fixed_6", "open_1", "open_2".
type AssessmentRecord struct {
	ID      string
	UserID  int64
	TakenAt time.Time
	Answers map[string]string
}

// RetroReport is a persisted retrospective result.
type RetroReport struct {
	ID             string
	UserID         int64
	CreatedAt      time.Time
	PeriodDays     int
	RecordCount    int
	Averages       map[string]*float64
	OpenAnswers    map[string]string
	Interpretation string
}
