// Package questionnaire implements a declarative multi-step dialog state
// machine: an ordered set of graded (1–7) questions followed by open-text
// questions, with a universal "main menu" escape.
//
// The engine holds no locks; the caller is responsible for serializing
// messages from the same user (one live Session per user).
package questionnaire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MenuCommand is the universal escape phrase. Matching is case-insensitive
// and checked before any other validation.
const MenuCommand = "главное меню"

// Graded answers must be integers within [GradedMin, GradedMax].
const (
	GradedMin = 1
	GradedMax = 7
)

var (
	ErrEmptySet = errors.New("questionnaire: empty question set")
	ErrFinished = errors.New("questionnaire: session already finished")
)

type Kind string

const (
	Graded   Kind = "graded"
	OpenText Kind = "open_text"
)

// Question is one step of a questionnaire. Key names the answer in the
// resulting answer map (e.g. "fixed_1", "open_2").
type Question struct {
	Kind   Kind
	Key    string
	Prompt string
}

// Set is an ordered question set: all graded steps, then all open steps.
type Set struct {
	Name      string
	Questions []Question
}

// NewSet validates ordering and keys.
func NewSet(name string, qs []Question) (Set, error) {
	if len(qs) == 0 {
		return Set{}, ErrEmptySet
	}
	seenOpen := false
	keys := map[string]bool{}
	for i, q := range qs {
		switch q.Kind {
		case Graded:
			if seenOpen {
				return Set{}, fmt.Errorf("questionnaire: graded step %d after open step", i)
			}
		case OpenText:
			seenOpen = true
		default:
			return Set{}, fmt.Errorf("questionnaire: unknown step kind %q", q.Kind)
		}
		if strings.TrimSpace(q.Key) == "" {
			return Set{}, fmt.Errorf("questionnaire: step %d has empty key", i)
		}
		if keys[q.Key] {
			return Set{}, fmt.Errorf("questionnaire: duplicate key %q", q.Key)
		}
		keys[q.Key] = true
	}
	return Set{Name: name, Questions: qs}, nil
}

type State string

const (
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

// Session is the ephemeral per-user state of one questionnaire run.
// It snapshots the question set at start time.
type Session struct {
	Set       Set
	Index     int
	Answers   map[string]string
	State     State
	CreatedAt time.Time
}

// Prompt is what should be shown to the user next.
type Prompt struct {
	Text   string
	Graded bool // true when a 1–7 keyboard is appropriate
}

type ResultKind string

const (
	// ResultPrompt: show Prompt and wait for the next message. Emitted
	// both on advance and on re-prompt after invalid input.
	ResultPrompt ResultKind = "prompt"
	// ResultCompleted: the full answer map is available in Answers.
	ResultCompleted ResultKind = "completed"
	// ResultCancelled: the user escaped to the main menu.
	ResultCancelled ResultKind = "cancelled"
)

type Result struct {
	Kind    ResultKind
	Prompt  Prompt
	Answers map[string]string
}

// IsMenuCommand reports whether text is the universal escape.
func IsMenuCommand(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), MenuCommand)
}

// Start initializes a Session at step 0 and returns the first prompt.
func Start(set Set, now time.Time) (*Session, Prompt, error) {
	if len(set.Questions) == 0 {
		return nil, Prompt{}, ErrEmptySet
	}
	s := &Session{
		Set:       set,
		Answers:   make(map[string]string, len(set.Questions)),
		State:     StateActive,
		CreatedAt: now,
	}
	return s, promptFor(set.Questions[0]), nil
}

// Submit feeds one user message into the session.
//
// The escape command wins over everything, including validation. An
// out-of-range graded answer or an empty open answer re-emits the same
// prompt without advancing the step index.
func Submit(s *Session, raw string) (Result, error) {
	if s == nil || s.State != StateActive {
		return Result{}, ErrFinished
	}
	if IsMenuCommand(raw) {
		s.State = StateCancelled
		return Result{Kind: ResultCancelled}, nil
	}

	q := s.Set.Questions[s.Index]
	text := strings.TrimSpace(raw)

	switch q.Kind {
	case Graded:
		v, err := strconv.Atoi(text)
		if err != nil || v < GradedMin || v > GradedMax {
			return Result{Kind: ResultPrompt, Prompt: promptFor(q)}, nil
		}
		s.Answers[q.Key] = strconv.Itoa(v)
	case OpenText:
		if text == "" {
			return Result{Kind: ResultPrompt, Prompt: promptFor(q)}, nil
		}
		s.Answers[q.Key] = text
	}

	s.Index++
	if s.Index >= len(s.Set.Questions) {
		s.State = StateCompleted
		return Result{Kind: ResultCompleted, Answers: s.Answers}, nil
	}
	return Result{Kind: ResultPrompt, Prompt: promptFor(s.Set.Questions[s.Index])}, nil
}

func promptFor(q Question) Prompt {
	return Prompt{Text: q.Prompt, Graded: q.Kind == Graded}
}
