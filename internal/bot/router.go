// Package bot is the dialog controller: it routes incoming messages
// into the main-menu flows (daily test, retrospectives, reminders) and
// the post-report chat, one serialized conversation per user.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sanbot/internal/aggregate"
	"sanbot/internal/narrative"
	"sanbot/internal/notify"
	"sanbot/internal/questionnaire"
	"sanbot/internal/schedule"
	"sanbot/internal/storage"
	kit "sanbot/internal/transport"
	logx "sanbot/pkg/logx"
)

type stage int

const (
	stageIdle stage = iota
	stageTest
	stageTestChat
	stageRetroChoice
	stageRetroPeriod
	stageRetroOpen
	stageRetroChat
	stageReminderChoice
	stageReminderCurrent
	stageReminderTarget
	stageRetroSchedDay
	stageRetroSchedCurrent
	stageRetroSchedTarget
	stageRetroSchedMode
)

const (
	welcomeText = "Добро пожаловать! Выберите действие:"
	helpText    = "Наш бот предназначен для оценки вашего состояния с помощью короткого теста.\n\n" +
		"Команды:\n" +
		"• Тест – пройти тест (фиксированные вопросы, зависящие от дня недели, и 2 открытых вопроса).\n" +
		"• Ретроспектива – анализ изменений за последний период (за 7 или 14 дней) и обсуждение итогов.\n" +
		"• Напоминание – установить напоминание для прохождения теста.\n" +
		"• Помощь – справочная информация.\n\n" +
		"Во всех этапах работы доступна кнопка «Главное меню» для возврата в стартовое меню."
	badTimeText   = "Неверный формат времени. Пожалуйста, введите время в формате ЧЧ:ММ."
	pickOptionTxt = "Пожалуйста, выберите один из предложенных вариантов."
)

// userState is one user's conversation. Its mutex serializes message
// handling so the questionnaire engine sees single-threaded access.
type userState struct {
	mu    sync.Mutex
	stage stage
	quiz  *questionnaire.Session

	chatContext  string // test follow-up chat
	weekOverview string // retrospective follow-up chat

	weekday     int
	currentTime string
	targetTime  string
}

// reset clears the conversation without touching the mutex, which is
// held by the caller.
func (st *userState) reset() {
	st.stage = stageIdle
	st.quiz = nil
	st.chatContext = ""
	st.weekOverview = ""
	st.weekday = 0
	st.currentTime = ""
	st.targetTime = ""
}

type Router struct {
	log     logx.Logger
	adapter kit.Adapter
	store   storage.Store
	sched   *schedule.Service
	agg     *aggregate.Service
	gen     *narrative.Client
	now     func() time.Time

	mu    sync.Mutex
	users map[int64]*userState
}

type Option func(*Router)

func WithClock(fn func() time.Time) Option {
	return func(r *Router) { r.now = fn }
}

func New(adapter kit.Adapter, store storage.Store, sched *schedule.Service, agg *aggregate.Service, gen *narrative.Client, log logx.Logger, opts ...Option) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		log:     log,
		adapter: adapter,
		store:   store,
		sched:   sched,
		agg:     agg,
		gen:     gen,
		now:     time.Now,
		users:   make(map[int64]*userState),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandleUpdate processes one inbound update end to end.
func (r *Router) HandleUpdate(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil || strings.TrimSpace(msg.Text) == "" {
		return
	}
	st := r.user(msg.ChatID)
	st.mu.Lock()
	defer st.mu.Unlock()

	text := strings.TrimSpace(msg.Text)

	// The escape works from every state, including mid-questionnaire.
	if questionnaire.IsMenuCommand(text) || text == "/start" {
		r.toMainMenu(ctx, st, msg.ChatID, text == "/start")
		return
	}

	switch st.stage {
	case stageIdle:
		r.handleMenu(ctx, st, msg.ChatID, text)
	case stageTest:
		r.handleTestAnswer(ctx, st, msg.ChatID, text)
	case stageTestChat:
		reply := r.gen.GenerateOrFallback(ctx, narrative.ChatPrompt(text, st.chatContext))
		r.send(ctx, msg.ChatID, reply, &kit.SendOptions{Keyboard: menuOnlyKeyboard()})
	case stageRetroChoice:
		r.handleRetroChoice(ctx, st, msg.ChatID, text)
	case stageRetroPeriod:
		r.handleRetroPeriod(ctx, st, msg.ChatID, text)
	case stageRetroOpen:
		r.handleRetroOpenAnswer(ctx, st, msg.ChatID, text)
	case stageRetroChat:
		reply := r.gen.GenerateOrFallback(ctx, narrative.RetroChatPrompt(text, st.weekOverview))
		r.send(ctx, msg.ChatID, reply, &kit.SendOptions{Keyboard: menuOnlyKeyboard()})
	case stageReminderChoice:
		r.handleReminderChoice(ctx, st, msg.ChatID, text)
	case stageReminderCurrent:
		r.handleTimeInput(ctx, st, msg.ChatID, text, stageReminderTarget,
			"Во сколько напоминать о ежедневном тесте? (например, 08:00)")
	case stageReminderTarget:
		r.handleReminderTarget(ctx, st, msg.ChatID, text)
	case stageRetroSchedDay:
		r.handleRetroSchedDay(ctx, st, msg.ChatID, text)
	case stageRetroSchedCurrent:
		r.handleTimeInput(ctx, st, msg.ChatID, text, stageRetroSchedTarget,
			"Введите желаемое время проведения ретроспективы (например, 08:00):")
	case stageRetroSchedTarget:
		r.handleRetroSchedTarget(ctx, st, msg.ChatID, text)
	case stageRetroSchedMode:
		r.handleRetroSchedMode(ctx, st, msg.ChatID, text)
	default:
		r.toMainMenu(ctx, st, msg.ChatID, true)
	}
}

func (r *Router) user(chatID int64) *userState {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.users[chatID]
	if !ok {
		st = &userState{}
		r.users[chatID] = st
	}
	return st
}

func (r *Router) send(ctx context.Context, chatID int64, text string, opt *kit.SendOptions) {
	if err := r.adapter.SendText(ctx, chatID, text, opt); err != nil {
		r.log.Warn("send failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}

func (r *Router) toMainMenu(ctx context.Context, st *userState, chatID int64, greeting bool) {
	st.reset()
	text := welcomeText
	if !greeting {
		text = "Возвращаемся в главное меню.\n\n" + welcomeText
	}
	r.send(ctx, chatID, text, &kit.SendOptions{Keyboard: mainMenuKeyboard()})
}

func (r *Router) handleMenu(ctx context.Context, st *userState, chatID int64, text string) {
	switch text {
	case btnTest:
		r.startTest(ctx, st, chatID)
	case btnRetro:
		st.stage = stageRetroChoice
		r.send(ctx, chatID, "Выберите вариант ретроспективы:", &kit.SendOptions{Keyboard: retroChoiceKeyboard()})
	case btnReminder:
		st.stage = stageReminderChoice
		r.send(ctx, chatID, "Выберите тип напоминания:", &kit.SendOptions{Keyboard: reminderKeyboard()})
	case btnHelp:
		r.send(ctx, chatID, helpText, &kit.SendOptions{Keyboard: menuOnlyKeyboard()})
	case btnRunRetro:
		r.startRetroOpen(ctx, st, chatID)
	default:
		r.send(ctx, chatID, welcomeText, &kit.SendOptions{Keyboard: mainMenuKeyboard()})
	}
}

// --- daily test flow ---

func (r *Router) startTest(ctx context.Context, st *userState, chatID int64) {
	weekday := schedule.WeekdayIndex(r.now())
	sess, first, err := questionnaire.Start(dailySetFor(weekday), r.now().UTC())
	if err != nil {
		r.log.Error("cannot start test", logx.Err(err))
		return
	}
	st.stage = stageTest
	st.quiz = sess
	st.weekday = weekday
	r.send(ctx, chatID, first.Text, &kit.SendOptions{Keyboard: gradedKeyboard()})
}

func (r *Router) handleTestAnswer(ctx context.Context, st *userState, chatID int64, text string) {
	res, err := questionnaire.Submit(st.quiz, text)
	if err != nil {
		r.toMainMenu(ctx, st, chatID, true)
		return
	}
	switch res.Kind {
	case questionnaire.ResultPrompt:
		kb := menuOnlyKeyboard()
		if res.Prompt.Graded {
			kb = gradedKeyboard()
		}
		r.send(ctx, chatID, res.Prompt.Text, &kit.SendOptions{Keyboard: kb})
	case questionnaire.ResultCompleted:
		r.finishTest(ctx, st, chatID, res.Answers)
	case questionnaire.ResultCancelled:
		r.toMainMenu(ctx, st, chatID, false)
	}
}

func (r *Router) finishTest(ctx context.Context, st *userState, chatID int64, answers map[string]string) {
	rec := storage.AssessmentRecord{
		ID:      uuid.NewString(),
		UserID:  chatID,
		TakenAt: r.now().UTC(),
		Answers: answers,
	}
	if err := r.store.SaveAssessment(ctx, rec); err != nil {
		r.log.Error("save assessment failed", logx.Int64("chat_id", chatID), logx.Err(err))
		r.send(ctx, chatID, "Произошла ошибка при сохранении данных теста.", &kit.SendOptions{Keyboard: mainMenuKeyboard()})
		st.stage = stageIdle
		return
	}

	if !r.gen.Enabled() {
		r.send(ctx, chatID, "Тест сохранён. Спасибо!", &kit.SendOptions{Keyboard: mainMenuKeyboard()})
		st.stage = stageIdle
		return
	}

	prompt := narrative.TestPrompt(weekdayGradedQuestions[st.weekday], openQuestions, answers)
	interpretation := r.gen.GenerateOrFallback(ctx, prompt)
	st.chatContext = testChatContext(answers)
	st.stage = stageTestChat

	message := "Результат анализа:\n" + interpretation + "\n\n" +
		"Теперь вы можете общаться с ИИ-психологом по результатам теста. " +
		"Отправляйте свои сообщения, и они будут учитываться в рамках этого чата.\n" +
		"Для выхода в главное меню нажмите кнопку «Главное меню»."
	r.send(ctx, chatID, message, &kit.SendOptions{Keyboard: menuOnlyKeyboard()})
}

// testChatContext compresses the six graded answers into the compact
// pair-mean summary fed to follow-up chat prompts.
func testChatContext(answers map[string]string) string {
	mean := func(a, b string) string {
		va, errA := strconv.Atoi(a)
		vb, errB := strconv.Atoi(b)
		if errA != nil || errB != nil {
			return "не указано"
		}
		return fmt.Sprintf("%.1f", float64(va+vb)/2)
	}
	return fmt.Sprintf("Самочувствие: %s, Активность: %s, Настроение: %s. Открытые ответы учтены.",
		mean(answers["fixed_1"], answers["fixed_2"]),
		mean(answers["fixed_3"], answers["fixed_4"]),
		mean(answers["fixed_5"], answers["fixed_6"]))
}

// --- retrospective flows ---

func (r *Router) handleRetroChoice(ctx context.Context, st *userState, chatID int64, text string) {
	switch text {
	case btnRetroNow:
		st.stage = stageRetroPeriod
		r.send(ctx, chatID, "Выберите период ретроспективы:", &kit.SendOptions{Keyboard: retroPeriodKeyboard()})
	case btnRetroSchedule:
		st.stage = stageRetroSchedDay
		r.send(ctx, chatID, "Введите день недели для запланированной ретроспективы (например, 'Понедельник'):",
			&kit.SendOptions{Keyboard: weekdayKeyboard()})
	default:
		r.send(ctx, chatID, pickOptionTxt, &kit.SendOptions{Keyboard: retroChoiceKeyboard()})
	}
}

func (r *Router) handleRetroPeriod(ctx context.Context, st *userState, chatID int64, text string) {
	var days int
	switch strings.ToLower(text) {
	case strings.ToLower(btnRetroWeek), "1 неделя", "1", "1 неделю":
		days = 7
	case strings.ToLower(btnRetroTwoWeeks), "2 недели", "2":
		days = 14
	default:
		r.send(ctx, chatID, pickOptionTxt, &kit.SendOptions{Keyboard: retroPeriodKeyboard()})
		return
	}
	r.send(ctx, chatID, fmt.Sprintf("Формируется ретроспектива за последние %d дней...", days), nil)
	r.runRetrospective(ctx, st, chatID, days, nil)
}

func (r *Router) startRetroOpen(ctx context.Context, st *userState, chatID int64) {
	sess, first, err := questionnaire.Start(retroOpenSet(), r.now().UTC())
	if err != nil {
		r.log.Error("cannot start retrospective questions", logx.Err(err))
		return
	}
	st.stage = stageRetroOpen
	st.quiz = sess
	r.send(ctx, chatID, first.Text, &kit.SendOptions{Keyboard: menuOnlyKeyboard()})
}

func (r *Router) handleRetroOpenAnswer(ctx context.Context, st *userState, chatID int64, text string) {
	res, err := questionnaire.Submit(st.quiz, text)
	if err != nil {
		r.toMainMenu(ctx, st, chatID, true)
		return
	}
	switch res.Kind {
	case questionnaire.ResultPrompt:
		r.send(ctx, chatID, res.Prompt.Text, &kit.SendOptions{Keyboard: menuOnlyKeyboard()})
	case questionnaire.ResultCompleted:
		r.send(ctx, chatID, "Запускается ретроспектива по результатам теста...", nil)
		r.runRetrospective(ctx, st, chatID, 7, res.Answers)
	case questionnaire.ResultCancelled:
		r.toMainMenu(ctx, st, chatID, false)
	}
}

func (r *Router) runRetrospective(ctx context.Context, st *userState, chatID int64, days int, openAnswers map[string]string) {
	sum, err := r.agg.Summarize(ctx, chatID, days)
	if err != nil {
		var ins *aggregate.InsufficientDataError
		if errors.As(err, &ins) {
			r.send(ctx, chatID, fmt.Sprintf(
				"Недостаточно данных для ретроспективы за последние %d дней. Пройдите тест минимум %d раза за указанный период.",
				days, ins.Need), &kit.SendOptions{Keyboard: menuOnlyKeyboard()})
		} else {
			r.log.Error("retrospective failed", logx.Int64("chat_id", chatID), logx.Err(err))
			r.send(ctx, chatID, "Произошла ошибка при формировании ретроспективы.", &kit.SendOptions{Keyboard: menuOnlyKeyboard()})
		}
		st.stage = stageIdle
		return
	}

	names := make([]string, 0, len(aggregate.Categories))
	for _, c := range aggregate.Categories {
		names = append(names, c.Name)
	}
	interpretation := weekOverview(sum.Averages)
	if r.gen.Enabled() {
		prompt := narrative.RetroPrompt(days, sum.RecordCount, names, sum.Averages, retroOpenQuestions, openAnswers)
		interpretation = r.gen.GenerateOrFallback(ctx, prompt)
	}

	rep := storage.RetroReport{
		ID:             uuid.NewString(),
		UserID:         chatID,
		CreatedAt:      r.now().UTC(),
		PeriodDays:     days,
		RecordCount:    sum.RecordCount,
		Averages:       sum.Averages,
		OpenAnswers:    openAnswers,
		Interpretation: interpretation,
	}
	// Report delivery matters more than the audit row.
	if err := r.store.SaveRetroReport(ctx, rep); err != nil {
		r.log.Warn("save retro report failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}

	// Without the narrator there is nothing to discuss; deliver the
	// report and return to the menu instead of a dead-end chat stage.
	if !r.gen.Enabled() {
		st.stage = stageIdle
		r.send(ctx, chatID, fmt.Sprintf("Ретроспектива за последние %d дней:\n%s", days, interpretation),
			&kit.SendOptions{Keyboard: mainMenuKeyboard()})
		return
	}

	st.weekOverview = weekOverview(sum.Averages)
	st.stage = stageRetroChat

	message := fmt.Sprintf("Ретроспектива за последние %d дней:\n%s\n\n", days, interpretation) +
		"Если хотите обсудить итоги периода, задайте свой вопрос.\n" +
		"Для выхода в главное меню нажмите кнопку «Главное меню»."
	r.send(ctx, chatID, message, &kit.SendOptions{Keyboard: menuOnlyKeyboard()})
}

func weekOverview(averages map[string]*float64) string {
	part := func(name string) string {
		if v := averages[name]; v != nil {
			return fmt.Sprintf("%s: %.2f", name, *v)
		}
		return name + ": не указано"
	}
	return fmt.Sprintf("%s, %s, %s. Ответы на качественные вопросы учтены.",
		part("Самочувствие"), part("Активность"), part("Настроение"))
}

// --- reminder flow ---

func (r *Router) handleReminderChoice(ctx context.Context, st *userState, chatID int64, text string) {
	if text != btnDailyTest {
		r.toMainMenu(ctx, st, chatID, false)
		return
	}
	st.stage = stageReminderCurrent
	r.send(ctx, chatID, "Сколько у вас сейчас времени? (например, 15:30)", &kit.SendOptions{Keyboard: menuOnlyKeyboard()})
}

// handleTimeInput validates one HH:MM reading, stores it as the current
// local time and advances to the next stage with the given prompt.
func (r *Router) handleTimeInput(ctx context.Context, st *userState, chatID int64, text string, next stage, prompt string) {
	if _, _, err := schedule.ParseHHMM(text); err != nil {
		r.send(ctx, chatID, badTimeText, &kit.SendOptions{Keyboard: menuOnlyKeyboard()})
		return
	}
	st.currentTime = text
	st.stage = next
	r.send(ctx, chatID, prompt, &kit.SendOptions{Keyboard: menuOnlyKeyboard()})
}

func (r *Router) handleReminderTarget(ctx context.Context, st *userState, chatID int64, text string) {
	if _, _, err := schedule.ParseHHMM(text); err != nil {
		r.send(ctx, chatID, badTimeText, &kit.SendOptions{Keyboard: menuOnlyKeyboard()})
		return
	}
	if _, err := r.sched.PlanDailyReminder(ctx, chatID, st.currentTime, text); err != nil {
		r.log.Error("plan reminder failed", logx.Int64("chat_id", chatID), logx.Err(err))
		r.send(ctx, chatID, "Ошибка при сохранении напоминания. Попробуйте еще раз позже.", &kit.SendOptions{Keyboard: mainMenuKeyboard()})
		st.stage = stageIdle
		return
	}
	st.stage = stageIdle
	r.send(ctx, chatID, "Напоминание установлено!", &kit.SendOptions{Keyboard: menuOnlyKeyboard()})
}

// --- scheduled retrospective flow ---

func (r *Router) handleRetroSchedDay(ctx context.Context, st *userState, chatID int64, text string) {
	day := -1
	for i, name := range weekdayNames {
		if strings.EqualFold(text, name) {
			day = i
			break
		}
	}
	if day < 0 {
		r.send(ctx, chatID, "Неверный ввод. Пожалуйста, выберите день недели или 'Главное меню'.",
			&kit.SendOptions{Keyboard: weekdayKeyboard()})
		return
	}
	st.weekday = day
	st.stage = stageRetroSchedCurrent
	r.send(ctx, chatID, "Введите ваше текущее время (например, 15:30):", &kit.SendOptions{Keyboard: menuOnlyKeyboard()})
}

func (r *Router) handleRetroSchedTarget(ctx context.Context, st *userState, chatID int64, text string) {
	if _, _, err := schedule.ParseHHMM(text); err != nil {
		r.send(ctx, chatID, badTimeText, &kit.SendOptions{Keyboard: menuOnlyKeyboard()})
		return
	}
	st.targetTime = text
	st.stage = stageRetroSchedMode
	r.send(ctx, chatID, "Выберите режим ретроспективы:", &kit.SendOptions{Keyboard: retroModeKeyboard()})
}

func (r *Router) handleRetroSchedMode(ctx context.Context, st *userState, chatID int64, text string) {
	var interval time.Duration
	switch strings.ToLower(text) {
	case strings.ToLower(btnWeekly), "1":
		interval = time.Duration(storage.IntervalWeekly) * time.Second
	case strings.ToLower(btnBiweekly), "2":
		interval = time.Duration(storage.IntervalBiweekly) * time.Second
	default:
		r.send(ctx, chatID, "Пожалуйста, выберите 'Еженедельная' или 'Двухнедельная'.",
			&kit.SendOptions{Keyboard: retroModeKeyboard()})
		return
	}

	if _, err := r.sched.PlanRetrospective(ctx, chatID, st.currentTime, st.targetTime, st.weekday, interval); err != nil {
		r.log.Error("plan retrospective failed", logx.Int64("chat_id", chatID), logx.Err(err))
		r.send(ctx, chatID, "Ошибка при сохранении ретроспективы. Попробуйте ещё раз позже.",
			&kit.SendOptions{Keyboard: mainMenuKeyboard()})
		st.reset()
		return
	}
	st.reset()
	r.send(ctx, chatID, "Запланированная ретроспектива установлена!", &kit.SendOptions{Keyboard: runRetroKeyboard()})
}

// ScheduledNotification builds the outbound message for a timer fire.
func ScheduledNotification(rec storage.ScheduleRecord) notify.Notification {
	switch rec.Kind {
	case storage.KindRetrospective:
		return notify.Notification{
			ChatID:  rec.UserID,
			Text:    "Напоминание: пришло время пройти запланированную ретроспективу!",
			Options: &kit.SendOptions{Keyboard: runRetroKeyboard()},
		}
	default:
		return notify.Notification{
			ChatID:  rec.UserID,
			Text:    "Напоминание: пришло время пройти ежедневный тест!",
			Options: &kit.SendOptions{Keyboard: mainMenuKeyboard()},
		}
	}
}
