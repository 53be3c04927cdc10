package aggregate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sanbot/internal/storage"
	logx "sanbot/pkg/logx"
)

type stubStore struct {
	storage.Store
	records []storage.AssessmentRecord
	err     error
}

func (s *stubStore) AssessmentsInRange(context.Context, int64, time.Time, time.Time) ([]storage.AssessmentRecord, error) {
	return s.records, s.err
}

func records(pairs ...[2]int) []storage.AssessmentRecord {
	out := make([]storage.AssessmentRecord, 0, len(pairs))
	for i, p := range pairs {
		out = append(out, storage.AssessmentRecord{
			ID:     fmt.Sprintf("a%d", i),
			UserID: 42,
			Answers: map[string]string{
				"fixed_1": fmt.Sprint(p[0]),
				"fixed_2": fmt.Sprint(p[1]),
			},
		})
	}
	return out
}

func TestSummarizePairMean(t *testing.T) {
	t.Parallel()
	st := &stubStore{records: records([2]int{6, 7}, [2]int{5, 6}, [2]int{7, 7}, [2]int{4, 5}, [2]int{6, 6})}
	svc := New(st, logx.Nop())

	sum, err := svc.Summarize(context.Background(), 42, 7)
	require.NoError(t, err)
	assert.Equal(t, 5, sum.RecordCount)
	assert.Equal(t, 7, sum.WindowDays)

	require.NotNil(t, sum.Averages["Самочувствие"])
	assert.InDelta(t, 5.90, *sum.Averages["Самочувствие"], 1e-9)
	assert.Nil(t, sum.Averages["Активность"], "no fixed_3/fixed_4 answers")
	assert.Nil(t, sum.Averages["Настроение"])
}

func TestSummarizeThreshold(t *testing.T) {
	t.Parallel()
	st := &stubStore{records: records([2]int{6, 7}, [2]int{5, 6}, [2]int{7, 7})}
	svc := New(st, logx.Nop())

	_, err := svc.Summarize(context.Background(), 42, 7)
	var ins *InsufficientDataError
	require.ErrorAs(t, err, &ins)
	assert.Equal(t, 3, ins.Have)
	assert.Equal(t, 4, ins.Need)

	st.records = records([2]int{6, 7}, [2]int{5, 6}, [2]int{7, 7}, [2]int{4, 5})
	_, err = svc.Summarize(context.Background(), 42, 7)
	assert.NoError(t, err, "exactly 4 records is enough")
}

func TestSummarizeMalformedFieldExcludedNotRecord(t *testing.T) {
	t.Parallel()
	recs := records([2]int{6, 6}, [2]int{6, 6}, [2]int{6, 6})
	recs = append(recs, storage.AssessmentRecord{
		ID:     "a3",
		UserID: 42,
		Answers: map[string]string{
			"fixed_1": "не скажу",
			"fixed_2": "3",
		},
	})
	svc := New(&stubStore{records: recs}, logx.Nop())

	sum, err := svc.Summarize(context.Background(), 42, 7)
	require.NoError(t, err)
	require.NotNil(t, sum.Averages["Самочувствие"])
	// (6*6 + 3) / 7 = 5.571... → 5.57: the valid field still counts.
	assert.InDelta(t, 5.57, *sum.Averages["Самочувствие"], 1e-9)
}

func TestSummarizeStoreError(t *testing.T) {
	t.Parallel()
	svc := New(&stubStore{err: errors.New("io")}, logx.Nop())
	_, err := svc.Summarize(context.Background(), 42, 7)
	require.Error(t, err)
	var ins *InsufficientDataError
	assert.False(t, errors.As(err, &ins))
}
