package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"sanbot/internal/storage"
	logx "sanbot/pkg/logx"
)

// Key identifies one recurring job. At most one runtime timer exists
// per key at any instant.
type Key struct {
	UserID int64
	Kind   storage.ScheduleKind
}

// FireFunc delivers one scheduled trigger. It must not block for long;
// outbound I/O belongs in an async pipeline behind it. A returned error
// is logged and the timer continues on schedule.
type FireFunc func(ctx context.Context, rec storage.ScheduleRecord) error

// Service owns the runtime timers for all persisted schedules. Records
// are the durable source of truth; timers are rebuilt from them on start.
type Service struct {
	store storage.Store
	fire  FireFunc
	log   logx.Logger
	now   func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[Key]cron.EntryID

	runCtx context.Context
}

type Option func(*Service)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) { s.now = fn }
}

func New(store storage.Store, fire FireFunc, log logx.Logger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		fire:    fire,
		log:     log,
		now:     time.Now,
		entries: make(map[Key]cron.EntryID),
		runCtx:  context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cron = cron.New(cron.WithChain(cron.Recover(cronLogger{log: log})))
	return s
}

// Start rehydrates every active schedule and starts the timer loop.
func (s *Service) Start(ctx context.Context) error {
	s.runCtx = ctx
	if err := s.rehydrateAll(ctx); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the timer loop, waiting briefly for in-flight fires.
// Dropped timers are rebuilt from the store on the next start.
func (s *Service) Stop() {
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.log.Warn("scheduler stop timed out waiting for running jobs")
	}
}

// PlanDailyReminder persists and installs a daily reminder, replacing
// any existing one for the user. Returns the first trigger instant.
func (s *Service) PlanDailyReminder(ctx context.Context, userID int64, reportedLocal, desiredLocal string) (time.Time, error) {
	now := s.now().UTC()
	plan, err := DailyReminderPlan(now, reportedLocal, desiredLocal)
	if err != nil {
		return time.Time{}, err
	}
	rec := storage.ScheduleRecord{
		UserID:            userID,
		Kind:              storage.KindDailyReminder,
		LocalTime:         desiredLocal,
		ReportedLocalTime: reportedLocal,
		ServerTime:        plan.FirstTrigger.UTC().Format("15:04"),
		IntervalSec:       int64(plan.Interval / time.Second),
		Active:            true,
		UpdatedAt:         now,
	}
	// Persist first: a timer must never exist without a durable record.
	if err := s.store.UpsertReminder(ctx, rec); err != nil {
		return time.Time{}, fmt.Errorf("persist reminder: %w", err)
	}
	s.install(rec, plan.FirstTrigger)
	return plan.FirstTrigger, nil
}

// PlanRetrospective persists and installs a weekly or biweekly
// retrospective schedule, replacing any existing one for the user.
func (s *Service) PlanRetrospective(ctx context.Context, userID int64, reportedLocal, desiredLocal string, weekday int, interval time.Duration) (time.Time, error) {
	now := s.now().UTC()
	plan, err := RetrospectivePlan(now, reportedLocal, desiredLocal, weekday, interval)
	if err != nil {
		return time.Time{}, err
	}
	rec := storage.ScheduleRecord{
		UserID:            userID,
		Kind:              storage.KindRetrospective,
		Weekday:           weekday,
		LocalTime:         desiredLocal,
		ReportedLocalTime: reportedLocal,
		ServerTime:        plan.FirstTrigger.UTC().Format("15:04"),
		IntervalSec:       int64(plan.Interval / time.Second),
		Active:            true,
		UpdatedAt:         now,
	}
	if err := s.store.UpsertRetroSchedule(ctx, rec); err != nil {
		return time.Time{}, fmt.Errorf("persist retrospective schedule: %w", err)
	}
	s.install(rec, plan.FirstTrigger)
	return plan.FirstTrigger, nil
}

// Cancel deactivates the record and removes its timer.
func (s *Service) Cancel(ctx context.Context, userID int64, kind storage.ScheduleKind) error {
	if err := s.store.DeactivateSchedule(ctx, userID, kind); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := Key{UserID: userID, Kind: kind}
	if id, ok := s.entries[key]; ok {
		s.cron.Remove(id)
		delete(s.entries, key)
	}
	return nil
}

// install atomically replaces the timer for rec's key with one anchored
// at anchor. The anchor may lie in the past; firing then resumes on the
// original anchor + n*interval grid.
func (s *Service) install(rec storage.ScheduleRecord, anchor time.Time) {
	interval := time.Duration(rec.IntervalSec) * time.Second
	key := Key{UserID: rec.UserID, Kind: rec.Kind}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[key]; ok {
		s.cron.Remove(id)
	}
	s.entries[key] = s.cron.Schedule(
		anchored{anchor: anchor, interval: interval},
		cron.FuncJob(func() { s.dispatch(rec) }),
	)
	s.log.Debug("timer installed",
		logx.Int64("user_id", rec.UserID),
		logx.String("kind", string(rec.Kind)),
		logx.Time("anchor", anchor))
}

func (s *Service) dispatch(rec storage.ScheduleRecord) {
	if err := s.fire(s.runCtx, rec); err != nil {
		// Delivery failure never deactivates the schedule; the timer
		// continues and the next occurrence retries naturally.
		s.log.Warn("scheduled delivery failed",
			logx.Int64("user_id", rec.UserID),
			logx.String("kind", string(rec.Kind)),
			logx.Err(err))
	}
}

// rehydrateAll rebuilds timers from every active record. A record whose
// current-cycle occurrence elapsed during downtime fires once
// immediately; further missed occurrences are not replayed.
func (s *Service) rehydrateAll(ctx context.Context) error {
	reminders, err := s.store.ActiveReminders(ctx)
	if err != nil {
		return fmt.Errorf("load reminders: %w", err)
	}
	retros, err := s.store.ActiveRetroSchedules(ctx)
	if err != nil {
		return fmt.Errorf("load retrospective schedules: %w", err)
	}

	var catchUps int
	for _, rec := range append(reminders, retros...) {
		anchor, catchUp, err := rehydrateAnchor(s.now().UTC(), rec)
		if err != nil {
			s.log.Warn("skipping unreadable schedule record",
				logx.Int64("user_id", rec.UserID),
				logx.String("kind", string(rec.Kind)),
				logx.Err(err))
			continue
		}
		s.install(rec, anchor)
		if catchUp {
			catchUps++
			rec := rec
			go s.dispatch(rec)
		}
	}
	s.log.Info("schedules rehydrated",
		logx.Int("reminders", len(reminders)),
		logx.Int("retrospectives", len(retros)),
		logx.Int("catch_ups", catchUps))
	return nil
}

// rehydrateAnchor places the stored server time-of-day into the current
// cycle: today for reminders, the nearest forward weekday match for
// retrospectives. catchUp reports that the occurrence already elapsed.
func rehydrateAnchor(now time.Time, rec storage.ScheduleRecord) (anchor time.Time, catchUp bool, err error) {
	// A non-positive interval would divide by zero inside anchored.Next,
	// on cron's own goroutine where no recovery chain applies.
	if rec.IntervalSec <= 0 {
		return time.Time{}, false, fmt.Errorf("bad interval %ds", rec.IntervalSec)
	}
	h, m, err := ParseHHMM(rec.ServerTime)
	if err != nil {
		return time.Time{}, false, err
	}
	anchor = combine(now, h, m)
	if rec.Kind == storage.KindRetrospective {
		for WeekdayIndex(anchor) != rec.Weekday {
			anchor = anchor.Add(24 * time.Hour)
		}
	}
	return anchor, !anchor.After(now), nil
}

// anchored is a cron.Schedule firing at anchor + n*interval. Computing
// each occurrence from the grid, not from "now", keeps the sequence free
// of cumulative drift from callback latency or timer granularity.
type anchored struct {
	anchor   time.Time
	interval time.Duration
}

func (a anchored) Next(t time.Time) time.Time {
	if t.Before(a.anchor) {
		return a.anchor
	}
	steps := t.Sub(a.anchor)/a.interval + 1
	return a.anchor.Add(steps * a.interval)
}

// cronLogger adapts logx to the cron.Logger interface used by the
// recovery chain.
type cronLogger struct {
	log logx.Logger
}

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.log.Debug(msg, logx.Any("details", kv))
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.log.Error(msg, logx.Err(err), logx.Any("details", kv))
}
