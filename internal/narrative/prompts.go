package narrative

import (
	"fmt"
	"strings"
)

const psychologistPreamble = "Вы — высококвалифицированный психолог с более чем десятилетним стажем. " +
	"Обращайтесь к пользователю на «Вы». "

// TestPrompt builds the interpretation prompt for one completed daily
// assessment: the questions as asked, graded answers on the 1–7 scale,
// then the open answers.
func TestPrompt(gradedQuestions []string, openQuestions []string, answers map[string]string) string {
	var sb strings.Builder
	sb.WriteString("Вы профессиональный психолог с 10-летним стажем. Клиент прошёл ежедневный опрос.\n")
	sb.WriteString("Фиксированные вопросы оцениваются по 7-балльной шкале, где 1 – крайне негативное состояние, а 7 – исключительно позитивное состояние.\n")
	sb.WriteString("Каждая шкала состоит из 2 вопросов (итоговый балл = сумма двух оценок, диапазон 2–14: 2–5 – низкий, 6–10 – средний, 11–14 – высокий).\n")
	sb.WriteString("Пожалуйста, выполните все вычисления итоговых баллов в уме без вывода промежуточных данных. ")
	sb.WriteString("Сформируйте один абзац общего анализа итоговых баллов и динамики состояния клиента, а затем сразу кратко опишите анализ открытых вопросов.\n")
	sb.WriteString("Запрещается использование символа \"*\" для форматирования результатов.\n\n")

	for i, q := range gradedQuestions {
		fmt.Fprintf(&sb, "%d. %s\n   Ответ: %s\n", i+1, q, answerOr(answers, fmt.Sprintf("fixed_%d", i+1)))
	}
	for j, q := range openQuestions {
		fmt.Fprintf(&sb, "%d. %s\n   Ответ: %s\n", len(gradedQuestions)+j+1, q, answerOr(answers, fmt.Sprintf("open_%d", j+1)))
	}
	return sb.String()
}

// RetroPrompt builds the retrospective report prompt from computed
// category averages and the retrospective open answers.
func RetroPrompt(periodDays, testCount int, categories []string, averages map[string]*float64, openQuestions []string, openAnswers map[string]string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Ретроспектива: за последние %d дней проведено %d тестов.\n", periodDays, testCount)
	sb.WriteString("Средние показатели:\n")
	for _, name := range categories {
		if avg := averages[name]; avg != nil {
			fmt.Fprintf(&sb, "%s: %.2f\n", name, *avg)
		} else {
			fmt.Fprintf(&sb, "%s: не указано\n", name)
		}
	}
	sb.WriteString("\nКачественный анализ:\n")
	for i, q := range openQuestions {
		fmt.Fprintf(&sb, "%d. %s\n   Ответ: %s\n", i+1, q, answerOr(openAnswers, fmt.Sprintf("retro_open_%d", i+1)))
	}
	sb.WriteString("\nПожалуйста, сформируйте аналитический отчет по динамике состояния клиента за указанный период.")
	return sb.String()
}

// ChatPrompt builds the stateless follow-up prompt: a compact context
// string from the preceding report plus the user's question.
func ChatPrompt(userMessage, chatContext string) string {
	return psychologistPreamble +
		"Ваш профессионализм подкреплён глубокими академическими знаниями и практическим опытом. " +
		"Контекст теста: " + chatContext + "\n\n" +
		"Вопрос пользователя: " + userMessage
}

// RetroChatPrompt is the follow-up prompt after a retrospective report.
func RetroChatPrompt(userMessage, overview string) string {
	return psychologistPreamble +
		"Пожалуйста, отвечайте на вопросы, рассматривая их как отдельные аспекты анализа состояния клиента, без прямого упоминания ретроспективы. " +
		"Контекст анализа: " + overview + "\n\n" +
		"Вопрос пользователя: " + userMessage
}

func answerOr(answers map[string]string, key string) string {
	if v, ok := answers[key]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return "не указано"
}
