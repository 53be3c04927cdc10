package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "sanbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// timeColumnLayout keeps a fixed fractional width (RFC3339Nano trims
// trailing zeros), so lexicographic comparison in SQL matches
// chronological order exactly at window boundaries.
const timeColumnLayout = "2006-01-02T15:04:05.000000000Z07:00"

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) ActiveReminders(ctx context.Context) ([]ScheduleRecord, error) {
	return s.activeSchedules(ctx, KindDailyReminder)
}

func (s *sqliteStore) ActiveRetroSchedules(ctx context.Context) ([]ScheduleRecord, error) {
	return s.activeSchedules(ctx, KindRetrospective)
}

func (s *sqliteStore) activeSchedules(ctx context.Context, kind ScheduleKind) ([]ScheduleRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, kind, weekday, local_time, reported_local_time, server_time,
		        interval_sec, active, COALESCE(timezone, ''), updated_at
		 FROM schedules WHERE kind = ? AND active = 1`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScheduleRecord
	for rows.Next() {
		var (
			rec       ScheduleRecord
			kindStr   string
			active    int
			updatedAt string
		)
		if err := rows.Scan(&rec.UserID, &kindStr, &rec.Weekday, &rec.LocalTime,
			&rec.ReportedLocalTime, &rec.ServerTime, &rec.IntervalSec,
			&active, &rec.Timezone, &updatedAt); err != nil {
			return nil, err
		}
		rec.Kind = ScheduleKind(kindStr)
		rec.Active = active != 0
		if t, err := time.Parse(timeColumnLayout, updatedAt); err == nil {
			rec.UpdatedAt = t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpsertReminder(ctx context.Context, rec ScheduleRecord) error {
	rec.Kind = KindDailyReminder
	return s.upsertSchedule(ctx, rec)
}

func (s *sqliteStore) UpsertRetroSchedule(ctx context.Context, rec ScheduleRecord) error {
	rec.Kind = KindRetrospective
	return s.upsertSchedule(ctx, rec)
}

func (s *sqliteStore) upsertSchedule(ctx context.Context, rec ScheduleRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	active := 0
	if rec.Active {
		active = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules (user_id, kind, weekday, local_time, reported_local_time,
		                        server_time, interval_sec, active, timezone, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(user_id, kind) DO UPDATE SET
		   weekday             = excluded.weekday,
		   local_time          = excluded.local_time,
		   reported_local_time = excluded.reported_local_time,
		   server_time         = excluded.server_time,
		   interval_sec        = excluded.interval_sec,
		   active              = excluded.active,
		   timezone            = excluded.timezone,
		   updated_at          = excluded.updated_at`,
		rec.UserID, string(rec.Kind), rec.Weekday, rec.LocalTime, rec.ReportedLocalTime,
		rec.ServerTime, rec.IntervalSec, active, nullStr(rec.Timezone),
		rec.UpdatedAt.Format(timeColumnLayout),
	)
	return err
}

func (s *sqliteStore) DeactivateSchedule(ctx context.Context, userID int64, kind ScheduleKind) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET active = 0, updated_at = ? WHERE user_id = ? AND kind = ?`,
		time.Now().UTC().Format(timeColumnLayout), userID, string(kind))
	return err
}

func (s *sqliteStore) SaveAssessment(ctx context.Context, rec AssessmentRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if rec.TakenAt.IsZero() {
		rec.TakenAt = time.Now().UTC()
	}
	answers, err := json.Marshal(rec.Answers)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO assessments (id, user_id, taken_at, answers) VALUES (?,?,?,?)`,
		rec.ID, rec.UserID, rec.TakenAt.UTC().Format(timeColumnLayout), string(answers))
	return err
}

func (s *sqliteStore) AssessmentsInRange(ctx context.Context, userID int64, from, to time.Time) ([]AssessmentRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, taken_at, answers FROM assessments
		 WHERE user_id = ? AND taken_at >= ? AND taken_at <= ?
		 ORDER BY taken_at`,
		userID, from.UTC().Format(timeColumnLayout), to.UTC().Format(timeColumnLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AssessmentRecord
	for rows.Next() {
		var (
			rec     AssessmentRecord
			takenAt string
			answers string
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &takenAt, &answers); err != nil {
			return nil, err
		}
		if t, err := time.Parse(timeColumnLayout, takenAt); err == nil {
			rec.TakenAt = t
		}
		if err := json.Unmarshal([]byte(answers), &rec.Answers); err != nil {
			// A corrupt row should not hide the rest of the window.
			s.log.Warn("skipping assessment with malformed answers", logx.String("id", rec.ID))
			continue
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SaveRetroReport(ctx context.Context, rep RetroReport) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = time.Now().UTC()
	}
	averages, err := json.Marshal(rep.Averages)
	if err != nil {
		return err
	}
	open, err := json.Marshal(rep.OpenAnswers)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO retro_reports (id, user_id, created_at, period_days, record_count,
		                            averages, open_answers, interpretation)
		 VALUES (?,?,?,?,?,?,?,?)`,
		rep.ID, rep.UserID, rep.CreatedAt.UTC().Format(timeColumnLayout),
		rep.PeriodDays, rep.RecordCount, string(averages), string(open),
		nullStr(rep.Interpretation))
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
