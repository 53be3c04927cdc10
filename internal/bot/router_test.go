package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sanbot/internal/aggregate"
	"sanbot/internal/narrative"
	"sanbot/internal/schedule"
	"sanbot/internal/storage"
	kit "sanbot/internal/transport"
	logx "sanbot/pkg/logx"
)

type sentMsg struct {
	chatID int64
	text   string
	opt    *kit.SendOptions
}

type captureAdapter struct {
	mu   sync.Mutex
	sent []sentMsg
}

func (a *captureAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (a *captureAdapter) Stop(context.Context) error                    { return nil }

func (a *captureAdapter) SendText(_ context.Context, chatID int64, text string, opt *kit.SendOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, sentMsg{chatID: chatID, text: text, opt: opt})
	return nil
}

func (a *captureAdapter) last(t *testing.T) sentMsg {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	require.NotEmpty(t, a.sent)
	return a.sent[len(a.sent)-1]
}

type memStore struct {
	mu          sync.Mutex
	assessments []storage.AssessmentRecord
	schedules   []storage.ScheduleRecord
	reports     []storage.RetroReport
}

func (m *memStore) ActiveReminders(context.Context) ([]storage.ScheduleRecord, error) {
	return nil, nil
}

func (m *memStore) ActiveRetroSchedules(context.Context) ([]storage.ScheduleRecord, error) {
	return nil, nil
}

func (m *memStore) UpsertReminder(_ context.Context, rec storage.ScheduleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules = append(m.schedules, rec)
	return nil
}

func (m *memStore) UpsertRetroSchedule(_ context.Context, rec storage.ScheduleRecord) error {
	return m.UpsertReminder(context.Background(), rec)
}

func (m *memStore) DeactivateSchedule(context.Context, int64, storage.ScheduleKind) error {
	return nil
}

func (m *memStore) SaveAssessment(_ context.Context, rec storage.AssessmentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assessments = append(m.assessments, rec)
	return nil
}

func (m *memStore) AssessmentsInRange(context.Context, int64, time.Time, time.Time) ([]storage.AssessmentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.AssessmentRecord(nil), m.assessments...), nil
}

func (m *memStore) SaveRetroReport(_ context.Context, rep storage.RetroReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, rep)
	return nil
}

func (m *memStore) Close() error { return nil }

func testRouter(t *testing.T) (*Router, *captureAdapter, *memStore) {
	t.Helper()
	ad := &captureAdapter{}
	st := &memStore{}
	clock := func() time.Time { return time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC) } // Tuesday
	sched := schedule.New(st, func(context.Context, storage.ScheduleRecord) error { return nil },
		logx.Nop(), schedule.WithClock(clock))
	agg := aggregate.New(st, logx.Nop(), aggregate.WithClock(clock))
	gen := narrative.New(narrative.Config{Enabled: false}, logx.Nop())
	r := New(ad, st, sched, agg, gen, logx.Nop(), WithClock(clock))
	return r, ad, st
}

func say(r *Router, chatID int64, text string) {
	r.HandleUpdate(context.Background(), kit.Update{Message: &kit.Message{
		ChatID: chatID, FromID: chatID, Text: text,
	}})
}

func TestStartShowsMenu(t *testing.T) {
	t.Parallel()
	r, ad, _ := testRouter(t)
	say(r, 1, "/start")
	msg := ad.last(t)
	assert.Equal(t, welcomeText, msg.text)
	require.NotNil(t, msg.opt.Keyboard)
	assert.Contains(t, msg.opt.Keyboard.Rows[0], btnTest)
}

func TestFullTestFlow(t *testing.T) {
	t.Parallel()
	r, ad, st := testRouter(t)

	say(r, 7, btnTest)
	// Tuesday question set.
	assert.Contains(t, ad.last(t).text, "работоспособность")

	// Out-of-range input re-prompts the same question.
	say(r, 7, "9")
	assert.Contains(t, ad.last(t).text, "работоспособность")

	for i := 0; i < 6; i++ {
		say(r, 7, "5")
	}
	assert.Contains(t, ad.last(t).text, "три слова")
	say(r, 7, "спокойно, ровно, тихо")
	say(r, 7, "Сон")

	assert.Contains(t, ad.last(t).text, "Тест сохранён")
	require.Len(t, st.assessments, 1)
	rec := st.assessments[0]
	assert.Equal(t, int64(7), rec.UserID)
	assert.NotEmpty(t, rec.ID)
	assert.Len(t, rec.Answers, 8)
	assert.Equal(t, "5", rec.Answers["fixed_6"])
	assert.Equal(t, "Сон", rec.Answers["open_2"])
}

func TestMenuEscapeMidTest(t *testing.T) {
	t.Parallel()
	r, ad, st := testRouter(t)
	say(r, 7, btnTest)
	say(r, 7, "4")
	say(r, 7, "Главное меню")
	assert.Contains(t, ad.last(t).text, "Возвращаемся в главное меню")
	assert.Empty(t, st.assessments)

	// The next message is treated as a menu command again.
	say(r, 7, btnHelp)
	assert.Contains(t, ad.last(t).text, "Наш бот предназначен")
}

func TestReminderFlow(t *testing.T) {
	t.Parallel()
	r, ad, st := testRouter(t)

	say(r, 7, btnReminder)
	assert.Contains(t, ad.last(t).text, "Выберите тип напоминания")
	say(r, 7, btnDailyTest)
	say(r, 7, "25:99")
	assert.Equal(t, badTimeText, ad.last(t).text)
	say(r, 7, "06:00") // +3h offset against the 09:00 UTC clock
	say(r, 7, "08:00")
	assert.Equal(t, "Напоминание установлено!", ad.last(t).text)

	require.Len(t, st.schedules, 1)
	rec := st.schedules[0]
	assert.Equal(t, storage.KindDailyReminder, rec.Kind)
	assert.Equal(t, "11:00", rec.ServerTime)
	assert.Equal(t, int64(storage.IntervalDaily), rec.IntervalSec)
}

func TestScheduledRetroFlow(t *testing.T) {
	t.Parallel()
	r, ad, st := testRouter(t)

	say(r, 7, btnRetro)
	say(r, 7, btnRetroSchedule)
	say(r, 7, "пятница")
	say(r, 7, "06:00")
	say(r, 7, "08:00")
	say(r, 7, btnWeekly)
	assert.Equal(t, "Запланированная ретроспектива установлена!", ad.last(t).text)

	require.Len(t, st.schedules, 1)
	rec := st.schedules[0]
	assert.Equal(t, storage.KindRetrospective, rec.Kind)
	assert.Equal(t, 4, rec.Weekday)
	assert.Equal(t, int64(storage.IntervalWeekly), rec.IntervalSec)
}

func TestInstantRetroInsufficientData(t *testing.T) {
	t.Parallel()
	r, ad, _ := testRouter(t)

	say(r, 7, btnRetro)
	say(r, 7, btnRetroNow)
	say(r, 7, btnRetroWeek)
	assert.Contains(t, ad.last(t).text, "Недостаточно данных")
}

func TestInstantRetroWithData(t *testing.T) {
	t.Parallel()
	r, ad, st := testRouter(t)
	for i := 0; i < 4; i++ {
		require.NoError(t, st.SaveAssessment(context.Background(), storage.AssessmentRecord{
			ID: fmt.Sprintf("a%d", i), UserID: 7,
			Answers: map[string]string{"fixed_1": "6", "fixed_2": "7"},
		}))
	}

	say(r, 7, btnRetro)
	say(r, 7, btnRetroNow)
	say(r, 7, btnRetroTwoWeeks)
	report := ad.last(t)
	assert.True(t, strings.HasPrefix(report.text, "Ретроспектива за последние 14 дней:"))
	require.Len(t, st.reports, 1)
	assert.Equal(t, 14, st.reports[0].PeriodDays)
	assert.Equal(t, 4, st.reports[0].RecordCount)

	// The narrator is disabled, so there is no follow-up chat: the report
	// comes with the main menu and the next message is a menu command.
	require.NotNil(t, report.opt.Keyboard)
	assert.Contains(t, report.opt.Keyboard.Rows[0], btnTest)
	say(r, 7, "что это значит?")
	assert.NotEqual(t, narrative.Fallback, ad.last(t).text)
	assert.Equal(t, welcomeText, ad.last(t).text)
}

func TestScheduledNotification(t *testing.T) {
	t.Parallel()
	n := ScheduledNotification(storage.ScheduleRecord{UserID: 9, Kind: storage.KindDailyReminder})
	assert.Equal(t, int64(9), n.ChatID)
	assert.Contains(t, n.Text, "ежедневный тест")

	n = ScheduledNotification(storage.ScheduleRecord{UserID: 9, Kind: storage.KindRetrospective})
	assert.Contains(t, n.Text, "ретроспективу")
	require.NotNil(t, n.Options.Keyboard)
	assert.Contains(t, n.Options.Keyboard.Rows[0], btnRunRetro)
}
