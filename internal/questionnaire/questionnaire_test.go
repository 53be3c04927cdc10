package questionnaire

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSet(t *testing.T) Set {
	t.Helper()
	set, err := NewSet("daily", []Question{
		{Kind: Graded, Key: "fixed_1", Prompt: "Оцените самочувствие"},
		{Kind: Graded, Key: "fixed_2", Prompt: "Оцените бодрость"},
		{Kind: OpenText, Key: "open_1", Prompt: "Что запомнилось?"},
	})
	require.NoError(t, err)
	return set
}

func TestNewSetValidation(t *testing.T) {
	t.Parallel()

	_, err := NewSet("empty", nil)
	assert.ErrorIs(t, err, ErrEmptySet)

	_, err = NewSet("order", []Question{
		{Kind: OpenText, Key: "open_1", Prompt: "a"},
		{Kind: Graded, Key: "fixed_1", Prompt: "b"},
	})
	assert.Error(t, err, "graded after open must be rejected")

	_, err = NewSet("dup", []Question{
		{Kind: Graded, Key: "fixed_1", Prompt: "a"},
		{Kind: Graded, Key: "fixed_1", Prompt: "b"},
	})
	assert.Error(t, err)
}

func TestHappyPath(t *testing.T) {
	t.Parallel()
	s, first, err := Start(testSet(t), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "Оцените самочувствие", first.Text)
	assert.True(t, first.Graded)

	res, err := Submit(s, "6")
	require.NoError(t, err)
	require.Equal(t, ResultPrompt, res.Kind)
	assert.Equal(t, "Оцените бодрость", res.Prompt.Text)

	res, err = Submit(s, " 7 ")
	require.NoError(t, err)
	require.Equal(t, ResultPrompt, res.Kind)
	assert.False(t, res.Prompt.Graded)

	res, err = Submit(s, "Хорошо выспался")
	require.NoError(t, err)
	require.Equal(t, ResultCompleted, res.Kind)
	assert.Equal(t, map[string]string{
		"fixed_1": "6",
		"fixed_2": "7",
		"open_1":  "Хорошо выспался",
	}, res.Answers)
	assert.Equal(t, StateCompleted, s.State)

	_, err = Submit(s, "1")
	assert.ErrorIs(t, err, ErrFinished)
}

func TestGradedBounds(t *testing.T) {
	t.Parallel()
	for v := -17; v <= 17; v++ {
		v := v
		t.Run(fmt.Sprintf("v=%d", v), func(t *testing.T) {
			t.Parallel()
			s, first, err := Start(testSet(t), time.Now())
			require.NoError(t, err)

			res, err := Submit(s, fmt.Sprintf("%d", v))
			require.NoError(t, err)
			if v >= GradedMin && v <= GradedMax {
				assert.Equal(t, 1, s.Index, "valid answer must advance")
			} else {
				require.Equal(t, ResultPrompt, res.Kind)
				assert.Equal(t, first, res.Prompt, "re-prompt must repeat the same question")
				assert.Equal(t, 0, s.Index, "invalid answer must not advance")
			}
		})
	}
}

func TestGradedRejectsNonInteger(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"", "abc", "6.5", "seven", "7б"} {
		s, first, err := Start(testSet(t), time.Now())
		require.NoError(t, err)
		res, err := Submit(s, in)
		require.NoError(t, err)
		assert.Equal(t, ResultPrompt, res.Kind, "input %q", in)
		assert.Equal(t, first, res.Prompt)
		assert.Equal(t, 0, s.Index)
	}
}

func TestOpenRejectsBlank(t *testing.T) {
	t.Parallel()
	s, _, err := Start(testSet(t), time.Now())
	require.NoError(t, err)
	_, _ = Submit(s, "5")
	_, _ = Submit(s, "5")

	res, err := Submit(s, "   ")
	require.NoError(t, err)
	assert.Equal(t, ResultPrompt, res.Kind)
	assert.Equal(t, 2, s.Index)
}

func TestMenuEscape(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"главное меню", "Главное меню", "ГЛАВНОЕ МЕНЮ", "  Главное Меню  "} {
		s, _, err := Start(testSet(t), time.Now())
		require.NoError(t, err)
		_, _ = Submit(s, "4")

		res, err := Submit(s, in)
		require.NoError(t, err)
		assert.Equal(t, ResultCancelled, res.Kind, "input %q", in)
		assert.Equal(t, StateCancelled, s.State)

		_, err = Submit(s, "5")
		assert.ErrorIs(t, err, ErrFinished)
	}
}

func TestMenuEscapeBeatsValidation(t *testing.T) {
	t.Parallel()
	// The escape is not "invalid graded input": it must cancel, not re-prompt.
	s, _, err := Start(testSet(t), time.Now())
	require.NoError(t, err)
	res, err := Submit(s, "главное меню")
	require.NoError(t, err)
	assert.Equal(t, ResultCancelled, res.Kind)
}
