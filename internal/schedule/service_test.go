package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sanbot/internal/storage"
	logx "sanbot/pkg/logx"
)

type fakeStore struct {
	mu          sync.Mutex
	reminders   []storage.ScheduleRecord
	retros      []storage.ScheduleRecord
	upserts     []storage.ScheduleRecord
	deactivated []Key
	failUpsert  bool
}

func (f *fakeStore) ActiveReminders(context.Context) ([]storage.ScheduleRecord, error) {
	return f.reminders, nil
}

func (f *fakeStore) ActiveRetroSchedules(context.Context) ([]storage.ScheduleRecord, error) {
	return f.retros, nil
}

func (f *fakeStore) UpsertReminder(_ context.Context, rec storage.ScheduleRecord) error {
	return f.upsert(rec)
}

func (f *fakeStore) UpsertRetroSchedule(_ context.Context, rec storage.ScheduleRecord) error {
	return f.upsert(rec)
}

func (f *fakeStore) upsert(rec storage.ScheduleRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpsert {
		return errors.New("disk full")
	}
	f.upserts = append(f.upserts, rec)
	return nil
}

func (f *fakeStore) DeactivateSchedule(_ context.Context, userID int64, kind storage.ScheduleKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivated = append(f.deactivated, Key{UserID: userID, Kind: kind})
	return nil
}

func (f *fakeStore) SaveAssessment(context.Context, storage.AssessmentRecord) error { return nil }

func (f *fakeStore) AssessmentsInRange(context.Context, int64, time.Time, time.Time) ([]storage.AssessmentRecord, error) {
	return nil, nil
}

func (f *fakeStore) SaveRetroReport(context.Context, storage.RetroReport) error { return nil }

func (f *fakeStore) Close() error { return nil }

func noFire(context.Context, storage.ScheduleRecord) error { return nil }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestPlanReplacesTimer(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	svc := New(st, noFire, logx.Nop(), WithClock(fixedClock(day(2, 4, 0))))
	ctx := context.Background()

	first, err := svc.PlanDailyReminder(ctx, 42, "01:00", "08:00")
	require.NoError(t, err)
	assert.Equal(t, day(2, 5, 0), first)

	// Replanning the same user must swap the timer, never add one.
	_, err = svc.PlanDailyReminder(ctx, 42, "01:00", "09:30")
	require.NoError(t, err)
	assert.Len(t, svc.entries, 1)
	assert.Len(t, svc.cron.Entries(), 1)

	// A retrospective for the same user is a distinct key.
	_, err = svc.PlanRetrospective(ctx, 42, "01:00", "08:00", 2, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Len(t, svc.entries, 2)
	assert.Len(t, svc.cron.Entries(), 2)

	require.Len(t, st.upserts, 3)
	rec := st.upserts[1]
	assert.Equal(t, "06:30", rec.ServerTime)
	assert.Equal(t, int64(storage.IntervalDaily), rec.IntervalSec)
	assert.True(t, rec.Active)
}

func TestPersistFailureInstallsNoTimer(t *testing.T) {
	t.Parallel()
	st := &fakeStore{failUpsert: true}
	svc := New(st, noFire, logx.Nop(), WithClock(fixedClock(day(2, 4, 0))))

	_, err := svc.PlanDailyReminder(context.Background(), 42, "01:00", "08:00")
	require.Error(t, err)
	assert.Empty(t, svc.entries)
	assert.Empty(t, svc.cron.Entries())
}

func TestCancelRemovesTimer(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	svc := New(st, noFire, logx.Nop(), WithClock(fixedClock(day(2, 4, 0))))
	ctx := context.Background()

	_, err := svc.PlanDailyReminder(ctx, 42, "01:00", "08:00")
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, 42, storage.KindDailyReminder))
	assert.Empty(t, svc.entries)
	assert.Empty(t, svc.cron.Entries())
	assert.Equal(t, []Key{{UserID: 42, Kind: storage.KindDailyReminder}}, st.deactivated)
}

func TestRehydrateCatchUpOnce(t *testing.T) {
	t.Parallel()
	st := &fakeStore{
		reminders: []storage.ScheduleRecord{{
			UserID:      42,
			Kind:        storage.KindDailyReminder,
			ServerTime:  "05:00",
			IntervalSec: storage.IntervalDaily,
			Active:      true,
		}},
	}
	fired := make(chan int64, 4)
	fire := func(_ context.Context, rec storage.ScheduleRecord) error {
		fired <- rec.UserID
		return nil
	}
	// 06:00 on the fake clock: today's 05:00 trigger was missed.
	svc := New(st, fire, logx.Nop(), WithClock(fixedClock(day(2, 6, 0))))

	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	select {
	case id := <-fired:
		assert.Equal(t, int64(42), id)
	case <-time.After(time.Second):
		t.Fatal("missed trigger was not caught up")
	}
	select {
	case <-fired:
		t.Fatal("catch-up must fire exactly once")
	case <-time.After(150 * time.Millisecond):
	}
	assert.Len(t, svc.entries, 1, "timer stays installed after catch-up")
}

func TestRehydrateAnchor(t *testing.T) {
	t.Parallel()
	now := day(2, 6, 0) // Tuesday

	anchor, catchUp, err := rehydrateAnchor(now, storage.ScheduleRecord{
		Kind: storage.KindDailyReminder, ServerTime: "07:30",
	})
	require.NoError(t, err)
	assert.Equal(t, day(2, 7, 30), anchor)
	assert.False(t, catchUp)

	anchor, catchUp, err = rehydrateAnchor(now, storage.ScheduleRecord{
		Kind: storage.KindDailyReminder, ServerTime: "05:00",
	})
	require.NoError(t, err)
	assert.Equal(t, day(2, 5, 0), anchor)
	assert.True(t, catchUp, "elapsed occurrence must be caught up")

	anchor, catchUp, err = rehydrateAnchor(now, storage.ScheduleRecord{
		Kind: storage.KindRetrospective, Weekday: 4, ServerTime: "11:00",
	})
	require.NoError(t, err)
	assert.Equal(t, day(5, 11, 0), anchor, "nearest forward Friday")
	assert.False(t, catchUp)

	_, _, err = rehydrateAnchor(now, storage.ScheduleRecord{
		Kind: storage.KindDailyReminder, ServerTime: "half past",
	})
	assert.Error(t, err)

	_, _, err = rehydrateAnchor(now, storage.ScheduleRecord{
		Kind: storage.KindDailyReminder, ServerTime: "07:30", IntervalSec: 0,
	})
	assert.Error(t, err, "zero interval must not produce a timer")
}

func TestRehydrateSkipsCorruptInterval(t *testing.T) {
	t.Parallel()
	st := &fakeStore{
		reminders: []storage.ScheduleRecord{
			{
				UserID:      41,
				Kind:        storage.KindDailyReminder,
				ServerTime:  "05:00",
				IntervalSec: 0, // corrupt row
				Active:      true,
			},
			{
				UserID:      42,
				Kind:        storage.KindDailyReminder,
				ServerTime:  "12:00",
				IntervalSec: storage.IntervalDaily,
				Active:      true,
			},
		},
	}
	svc := New(st, noFire, logx.Nop(), WithClock(fixedClock(day(2, 6, 0))))

	// One unreadable record must not stop the rest from rehydrating.
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	assert.Len(t, svc.entries, 1)
	_, ok := svc.entries[Key{UserID: 42, Kind: storage.KindDailyReminder}]
	assert.True(t, ok)
}

func TestAnchoredNext(t *testing.T) {
	t.Parallel()
	a := anchored{anchor: day(2, 5, 0), interval: 24 * time.Hour}

	assert.Equal(t, day(2, 5, 0), a.Next(day(2, 4, 0)))
	assert.Equal(t, day(3, 5, 0), a.Next(day(2, 5, 0)), "strictly after t")
	// Late callbacks stay on the anchor grid instead of drifting.
	assert.Equal(t, day(4, 5, 0), a.Next(day(3, 5, 42)))
	assert.Equal(t, day(9, 5, 0), a.Next(day(8, 12, 0)), "multi-day gap")
}
