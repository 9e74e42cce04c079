// Package stats keeps the daily review aggregates and derives the
// distribution and forecast views from the card set.
package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/conorfennell/leetsrs/internal/domain"
	"github.com/conorfennell/leetsrs/internal/fsrs"
	"github.com/conorfennell/leetsrs/internal/storage"
)

// DateFormat keys the daily buckets.
const DateFormat = "2006-01-02"

// DailyStats pairs a calendar date with its aggregate counts.
type DailyStats struct {
	Date string `json:"date"`
	domain.DayStats
}

// DueForecast is the number of cards coming due on a future date.
type DueForecast struct {
	Date string `json:"date"`
	Due  int    `json:"due"`
}

// Service records ratings into per-day buckets. The day boundary follows
// the configured location. RecordRating read-modify-writes the whole stats
// document and is serialized by mu.
type Service struct {
	store *storage.Store
	loc   *time.Location

	mu  sync.Mutex
	now func() time.Time
}

func New(store *storage.Store, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{store: store, loc: loc, now: time.Now}
}

// DayKey returns the bucket key for t in the configured location.
func (s *Service) DayKey(t time.Time) string {
	return t.In(s.loc).Format(DateFormat)
}

// RecordRating folds one rating event into the bucket for `when`. wasNew
// marks ratings applied to a card that was still in the New state, which is
// what the review-queue quota counts.
func (s *Service) RecordRating(rating fsrs.Rating, wasNew bool, when time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return err
	}
	key := s.DayKey(when)
	day := all[key]
	switch rating {
	case fsrs.Again:
		day.Again++
	case fsrs.Hard:
		day.Hard++
	case fsrs.Good:
		day.Good++
	case fsrs.Easy:
		day.Easy++
	}
	if wasNew {
		day.NewCards++
	}
	all[key] = day
	return s.store.SetJSON(storage.KeyStats, all)
}

// Today returns the bucket for the current day, zero-valued when nothing has
// been reviewed yet.
func (s *Service) Today() (domain.DayStats, error) {
	all, err := s.load()
	if err != nil {
		return domain.DayStats{}, err
	}
	return all[s.DayKey(s.now())], nil
}

// NewCardsReviewedToday is consulted by the review-queue quota.
func (s *Service) NewCardsReviewedToday() (int, error) {
	today, err := s.Today()
	if err != nil {
		return 0, err
	}
	return today.NewCards, nil
}

// All returns every recorded day, oldest first.
func (s *Service) All() ([]DailyStats, error) {
	all, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]DailyStats, 0, len(all))
	for date, day := range all {
		out = append(out, DailyStats{Date: date, DayStats: day})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// LastNDays returns one entry per day for the trailing n days including
// today, zero-filled for days with no reviews.
func (s *Service) LastNDays(n int) ([]DailyStats, error) {
	all, err := s.load()
	if err != nil {
		return nil, err
	}
	now := s.now().In(s.loc)
	out := make([]DailyStats, 0, n)
	for i := n - 1; i >= 0; i-- {
		date := now.AddDate(0, 0, -i).Format(DateFormat)
		out = append(out, DailyStats{Date: date, DayStats: all[date]})
	}
	return out, nil
}

// NextNDays forecasts how many of the given cards come due on each of the
// next n days starting today. Paused cards and cards already overdue are
// counted on today's entry.
func (s *Service) NextNDays(cards []domain.Card, n int) []DueForecast {
	now := s.now().In(s.loc)
	today := now.Format(DateFormat)
	counts := make(map[string]int)
	for _, card := range cards {
		if card.Paused {
			continue
		}
		key := s.DayKey(card.Scheduler.Due)
		if key < today {
			key = today
		}
		counts[key]++
	}
	out := make([]DueForecast, 0, n)
	for i := 0; i < n; i++ {
		date := now.AddDate(0, 0, i).Format(DateFormat)
		out = append(out, DueForecast{Date: date, Due: counts[date]})
	}
	return out
}

// CardStateCounts returns the card distribution per scheduler state.
func CardStateCounts(cards []domain.Card) map[string]int {
	counts := map[string]int{
		domain.New.String():        0,
		domain.Learning.String():   0,
		domain.Review.String():     0,
		domain.Relearning.String(): 0,
	}
	for _, card := range cards {
		counts[card.Scheduler.State.String()]++
	}
	return counts
}

func (s *Service) load() (map[string]domain.DayStats, error) {
	all := make(map[string]domain.DayStats)
	if _, err := s.store.GetJSON(storage.KeyStats, &all); err != nil {
		return nil, err
	}
	return all, nil
}
