package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "sanbot/pkg/logx"
)

// Store is the persistence API consumed by the scheduler, the
// aggregation service and the dialog layer.
type Store interface {
	ActiveReminders(ctx context.Context) ([]ScheduleRecord, error)
	ActiveRetroSchedules(ctx context.Context) ([]ScheduleRecord, error)
	UpsertReminder(ctx context.Context, rec ScheduleRecord) error
	UpsertRetroSchedule(ctx context.Context, rec ScheduleRecord) error
	DeactivateSchedule(ctx context.Context, userID int64, kind ScheduleKind) error

	SaveAssessment(ctx context.Context, rec AssessmentRecord) error
	AssessmentsInRange(ctx context.Context, userID int64, from, to time.Time) ([]AssessmentRecord, error)

	SaveRetroReport(ctx context.Context, rep RetroReport) error

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, ErrDisabled
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
