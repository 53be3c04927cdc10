package bot

import (
	"fmt"

	"sanbot/internal/questionnaire"
	kit "sanbot/internal/transport"
)

// Graded question sets by weekday (0=Monday). The wording rotates daily
// so the six SAN scales do not feel repetitive; pairs always map
// (1,2)=самочувствие, (3,4)=активность, (5,6)=настроение.
var weekdayGradedQuestions = [7][]string{
	{ // Понедельник
		"Оцените, насколько ваше самочувствие сегодня ближе к хорошему или плохому (при 1 – крайне плохое самочувствие, а 7 – превосходное самочувствие)",
		"Оцените, чувствуете ли вы себя сильным или слабым (при 1 – чрезвычайно слабым, а 7 – исключительно сильным)",
		"Оцените свою активность: насколько вы ощущаете себя пассивным или активным (при 1 – крайне пассивным, а 7 – исключительно активным)",
		"Оцените вашу подвижность: насколько вы ощущаете себя малоподвижным или подвижным (при 1 – крайне малоподвижным, а 7 – чрезвычайно подвижным)",
		"Оцените ваше эмоциональное состояние: насколько вы чувствуете себя весёлым или грустным (при 1 – крайне грустным, а 7 – исключительно весёлым)",
		"Оцените ваше настроение: насколько оно ближе к хорошему или плохому (при 1 – очень плохое настроение, а 7 – прекрасное настроение)",
	},
	{ // Вторник
		"Оцените свою работоспособность: насколько вы чувствуете себя работоспособным или разбитым (при 1 – совершенно разбитым, а 7 – на пике работоспособности)",
		"Оцените уровень своих сил: чувствуете ли вы себя полным сил или обессиленным (при 1 – абсолютно обессиленным, а 7 – полон энергии)",
		"Оцените скорость ваших мыслей или действий: насколько вы ощущаете себя медлительным или быстрым (при 1 – крайне медлительным, а 7 – исключительно быстрым)",
		"Оцените вашу активность: насколько вы чувствуете себя бездеятельным или деятельным (при 1 – полностью бездеятельным, а 7 – очень деятельным)",
		"Оцените своё счастье: насколько вы ощущаете себя счастливым или несчастным (при 1 – крайне несчастным, а 7 – чрезвычайно счастливым)",
		"Оцените вашу жизнерадостность: насколько вы чувствуете себя жизнерадостным или мрачным (при 1 – полностью мрачным, а 7 – исключительно жизнерадостным)",
	},
	{ // Среда
		"Оцените, насколько вы чувствуете напряжение или расслабленность (при 1 – невероятно напряжённый, а 7 – совершенно расслабленный)",
		"Оцените ваше здоровье: ощущаете ли вы себя здоровым или больным (при 1 – крайне больным, а 7 – абсолютно здоровым)",
		"Оцените вашу вовлечённость: насколько вы чувствуете себя безучастным или увлечённым (при 1 – совершенно безучастным, а 7 – полностью увлечённым)",
		"Оцените, насколько вы равнодушны или заинтересованы (при 1 – крайне равнодушны, а 7 – чрезвычайно заинтересованы)",
		"Оцените ваш эмоциональный подъем: насколько вы чувствуете восторг или уныние (при 1 – совершенно унылый, а 7 – безмерно восторженный)",
		"Оцените вашу радость: насколько вы чувствуете радость или печаль (при 1 – крайне печальный, а 7 – исключительно радостный)",
	},
	{ // Четверг
		"Оцените, насколько вы чувствуете себя отдохнувшим или усталым (при 1 – совершенно усталым, а 7 – полностью отдохнувшим)",
		"Оцените, насколько вы ощущаете свежесть или изнурённость (при 1 – абсолютно изнурённый, а 7 – исключительно свежий)",
		"Оцените уровень своей сонливости или возбуждения (при 1 – крайне сонливый, а 7 – невероятно возбуждённый)",
		"Оцените, насколько у вас желание отдохнуть или работать (при 1 – исключительно желание отдохнуть, а 7 – сильное желание работать)",
		"Оцените ваше спокойствие: насколько вы чувствуете себя взволнованным или спокойным (при 1 – полностью взволнованным, а 7 – исключительно спокойным)",
		"Оцените ваш оптимизм: насколько вы чувствуете себя пессимистичным или оптимистичным (при 1 – крайне пессимистичным, а 7 – чрезвычайно оптимистичным)",
	},
	{ // Пятница
		"Оцените вашу выносливость: насколько вы чувствуете себя выносливым или утомляемым (при 1 – совершенно утомляемым, а 7 – исключительно выносливым)",
		"Оцените уровень вашей бодрости: насколько вы чувствуете себя бодрым или вялым (при 1 – крайне вялым, а 7 – полностью бодрым)",
		"Оцените способность соображать: насколько вам сложно или легко соображать (при 1 – соображать крайне трудно, а 7 – соображать очень легко)",
		"Оцените вашу внимательность: насколько вы чувствуете себя рассеянным или внимательным (при 1 – совершенно рассеянным, а 7 – исключительно внимательным)",
		"Оцените вашу надежду: насколько вы чувствуете себя разочарованным или полным надежд (при 1 – полностью разочарованным, а 7 – полон надежд)",
		"Оцените ваше удовлетворение: насколько вы чувствуете себя недовольным или довольным (при 1 – абсолютно недовольным, а 7 – исключительно довольным)",
	},
	{ // Суббота
		"Оцените ваше бодрствование: насколько вы чувствуете себя сонным или бодрствующим (при 1 – крайне сонным, а 7 – совершенно бодрствующим)",
		"Оцените, насколько вы чувствуете себя напряжённым или расслабленным (при 1 – невероятно напряжённым, а 7 – абсолютно расслабленным)",
		"Оцените, насколько вы ощущаете свежесть или утомлённость (при 1 – совершенно утомлённый, а 7 – исключительно свежий)",
		"Оцените ваше здоровье: насколько вы ощущаете себя нездоровым или здоровым (при 1 – абсолютно нездоровым, а 7 – полностью здоровым)",
		"Оцените уровень вашей энергии: насколько вы чувствуете себя вялым или энергичным (при 1 – чрезвычайно вялым, а 7 – исключительно энергичным)",
		"Оцените вашу решительность: насколько вы чувствуете себя колеблющимся или решительным (при 1 – совершенно колеблющимся, а 7 – исключительно решительным)",
	},
	{ // Воскресенье
		"Оцените, насколько вы чувствуете себя сосредоточенным или рассеянным (при 1 – невероятно рассеянный, а 7 – чрезвычайно сосредоточенный)",
		"Оцените, насколько вы чувствуете себя пассивным или деятельным (при 1 – полностью пассивным, а 7 – исключительно деятельным)",
		"Оцените ваш оптимизм: насколько вы чувствуете себя пессимистичным или оптимистичным (при 1 – крайне пессимистичным, а 7 – чрезвычайно оптимистичным)",
		"Оцените ваше спокойствие: насколько вы чувствуете себя взволнованным или спокойным (при 1 – совершенно взволнованным, а 7 – исключительно спокойным)",
		"Оцените вашу уверенность: насколько вы чувствуете себя неуверенным или уверенным (при 1 – абсолютно неуверенным, а 7 – полностью уверенным)",
		"Оцените ваше удовлетворение: насколько вы чувствуете себя недовольным или довольным (при 1 – крайне недовольным, а 7 – исключительно довольным)",
	},
}

var openQuestions = []string{
	"Какие три слова лучше всего описывают ваше текущее состояние?",
	"Что больше всего повлияло на ваше состояние сегодня?",
}

var retroOpenQuestions = []string{
	"Какие события на этой неделе больше всего повлияли на ваше общее состояние?",
	"Какие факторы способствовали вашей продуктивности, а какие, наоборот, мешали?",
	"Какие у вас были ожидания от этой недели, и насколько они оправдались?",
	"Какие уроки вы вынесли из прошедшей недели, и как вы планируете использовать этот опыт в будущем?",
}

// dailySetFor builds the questionnaire for the given weekday (0=Monday):
// six graded questions followed by the two open ones.
func dailySetFor(weekday int) questionnaire.Set {
	graded := weekdayGradedQuestions[0]
	if weekday >= 0 && weekday < len(weekdayGradedQuestions) {
		graded = weekdayGradedQuestions[weekday]
	}
	qs := make([]questionnaire.Question, 0, len(graded)+len(openQuestions))
	for i, text := range graded {
		qs = append(qs, questionnaire.Question{
			Kind:   questionnaire.Graded,
			Key:    fmt.Sprintf("fixed_%d", i+1),
			Prompt: text,
		})
	}
	for j, text := range openQuestions {
		qs = append(qs, questionnaire.Question{
			Kind:   questionnaire.OpenText,
			Key:    fmt.Sprintf("open_%d", j+1),
			Prompt: text,
		})
	}
	set, err := questionnaire.NewSet("daily", qs)
	if err != nil {
		panic(err) // static content
	}
	return set
}

// retroOpenSet is the four qualitative questions asked before a
// scheduled retrospective report.
func retroOpenSet() questionnaire.Set {
	qs := make([]questionnaire.Question, 0, len(retroOpenQuestions))
	for i, text := range retroOpenQuestions {
		qs = append(qs, questionnaire.Question{
			Kind:   questionnaire.OpenText,
			Key:    fmt.Sprintf("retro_open_%d", i+1),
			Prompt: text,
		})
	}
	set, err := questionnaire.NewSet("retro", qs)
	if err != nil {
		panic(err)
	}
	return set
}

// Menu button labels.
const (
	btnTest          = "Тест"
	btnRetro         = "Ретроспектива"
	btnReminder      = "Напоминание"
	btnHelp          = "Помощь"
	btnMainMenu      = "Главное меню"
	btnRetroNow      = "Ретроспектива сейчас"
	btnRetroSchedule = "Запланировать ретроспективу"
	btnRetroWeek     = "Ретроспектива за 1 неделю"
	btnRetroTwoWeeks = "Ретроспектива за 2 недели"
	btnDailyTest     = "Ежедневный тест"
	btnWeekly        = "Еженедельная"
	btnBiweekly      = "Двухнедельная"
	btnRunRetro      = "Пройти ретроспективу"
)

var weekdayNames = []string{
	"Понедельник", "Вторник", "Среда", "Четверг", "Пятница", "Суббота", "Воскресенье",
}

func mainMenuKeyboard() *kit.Keyboard {
	return &kit.Keyboard{Rows: [][]string{{btnTest, btnRetro}, {btnReminder, btnHelp}}, OneTime: true}
}

func gradedKeyboard() *kit.Keyboard {
	return &kit.Keyboard{Rows: [][]string{
		{"1", "2", "3", "4", "5", "6", "7"},
		{btnMainMenu},
	}, OneTime: true}
}

func menuOnlyKeyboard() *kit.Keyboard {
	return &kit.Keyboard{Rows: [][]string{{btnMainMenu}}, OneTime: true}
}

func retroChoiceKeyboard() *kit.Keyboard {
	return &kit.Keyboard{Rows: [][]string{{btnRetroNow, btnRetroSchedule, btnMainMenu}}, OneTime: true}
}

func retroPeriodKeyboard() *kit.Keyboard {
	return &kit.Keyboard{Rows: [][]string{{btnRetroWeek, btnRetroTwoWeeks}, {btnMainMenu}}, OneTime: true}
}

func retroModeKeyboard() *kit.Keyboard {
	return &kit.Keyboard{Rows: [][]string{{btnWeekly, btnBiweekly, btnMainMenu}}, OneTime: true}
}

func weekdayKeyboard() *kit.Keyboard {
	row := append(append([]string(nil), weekdayNames...), btnMainMenu)
	return &kit.Keyboard{Rows: [][]string{row}, OneTime: true}
}

func reminderKeyboard() *kit.Keyboard {
	return &kit.Keyboard{Rows: [][]string{{btnDailyTest}, {btnMainMenu}}, OneTime: true}
}

func runRetroKeyboard() *kit.Keyboard {
	return &kit.Keyboard{Rows: [][]string{{btnRunRetro, btnMainMenu}}, OneTime: true}
}
