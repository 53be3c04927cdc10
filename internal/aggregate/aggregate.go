// Package aggregate computes windowed category averages over stored
// assessments for retrospective reports.
package aggregate

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"sanbot/internal/storage"
	logx "sanbot/pkg/logx"
)

// MinRecords is the minimum number of assessments in the window below
// which no summary is produced.
const MinRecords = 4

// Category pairs two graded answer keys under one reported name.
type Category struct {
	Name string
	Keys [2]string
}

// Categories of the SAN methodology, in report order.
var Categories = []Category{
	{Name: "Самочувствие", Keys: [2]string{"fixed_1", "fixed_2"}},
	{Name: "Активность", Keys: [2]string{"fixed_3", "fixed_4"}},
	{Name: "Настроение", Keys: [2]string{"fixed_5", "fixed_6"}},
}

// InsufficientDataError is the expected outcome when the window holds
// fewer than MinRecords assessments. It is not a failure.
type InsufficientDataError struct {
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %d of %d records", e.Have, e.Need)
}

// Summary is a windowed per-category report. A category with no valid
// contributions in the window maps to nil, never to zero.
type Summary struct {
	UserID      int64
	WindowDays  int
	RecordCount int
	Averages    map[string]*float64
	From        time.Time
	To          time.Time
}

type Service struct {
	store storage.Store
	cats  []Category
	now   func() time.Time
	log   logx.Logger
}

type Option func(*Service)

func WithClock(fn func() time.Time) Option {
	return func(s *Service) { s.now = fn }
}

func WithCategories(cats []Category) Option {
	return func(s *Service) { s.cats = cats }
}

func New(store storage.Store, log logx.Logger, opts ...Option) *Service {
	s := &Service{store: store, cats: Categories, now: time.Now, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize averages each category over assessments taken in the last
// windowDays. A malformed or missing field excludes only that field; the
// rest of the record still contributes.
func (s *Service) Summarize(ctx context.Context, userID int64, windowDays int) (Summary, error) {
	to := s.now().UTC()
	from := to.Add(-time.Duration(windowDays) * 24 * time.Hour)

	records, err := s.store.AssessmentsInRange(ctx, userID, from, to)
	if err != nil {
		return Summary{}, fmt.Errorf("load assessments: %w", err)
	}
	if len(records) < MinRecords {
		return Summary{}, &InsufficientDataError{Have: len(records), Need: MinRecords}
	}

	averages := make(map[string]*float64, len(s.cats))
	for _, cat := range s.cats {
		averages[cat.Name] = categoryMean(records, cat)
	}

	s.log.Debug("summary computed",
		logx.Int64("user_id", userID),
		logx.Int("window_days", windowDays),
		logx.Int("records", len(records)))

	return Summary{
		UserID:      userID,
		WindowDays:  windowDays,
		RecordCount: len(records),
		Averages:    averages,
		From:        from,
		To:          to,
	}, nil
}

// categoryMean pools every parseable field of the pair across records
// and rounds to 2 decimals. nil when nothing parsed.
func categoryMean(records []storage.AssessmentRecord, cat Category) *float64 {
	var sum, count float64
	for _, rec := range records {
		for _, key := range cat.Keys {
			v, ok := rec.Answers[key]
			if !ok {
				continue
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				continue
			}
			sum += float64(n)
			count++
		}
	}
	if count == 0 {
		return nil
	}
	mean := math.Round(sum/count*100) / 100
	return &mean
}
