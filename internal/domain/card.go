package domain

import "time"

// State is the scheduler's lifecycle phase for a card.
type State int

const (
	New State = iota
	Learning
	Review
	Relearning
)

// String returns the lowercase name used in stats buckets and JSON output.
func (s State) String() string {
	switch s {
	case New:
		return "new"
	case Learning:
		return "learning"
	case Review:
		return "review"
	case Relearning:
		return "relearning"
	default:
		return "unknown"
	}
}

// Difficulty tiers as assigned by the problem site.
const (
	DifficultyEasy   = 1
	DifficultyMedium = 2
	DifficultyHard   = 3
)

// SchedulerState is the spaced-repetition memory model carried by each card.
// Stability is measured in days; Difficulty is a 1-10 score. LastReview is
// the zero time for cards that have never been rated.
type SchedulerState struct {
	State      State     `json:"state"`
	Stability  float64   `json:"stability"`
	Difficulty float64   `json:"difficulty"`
	Reps       int       `json:"reps"`
	Lapses     int       `json:"lapses"`
	Due        time.Time `json:"due"`
	LastReview time.Time `json:"lastReview"`
}

// Card tracks one problem. Slug is the site's problem identifier and is
// immutable after creation; exactly one card exists per slug.
type Card struct {
	ID         string         `json:"id"`
	Slug       string         `json:"slug"`
	Name       string         `json:"name"`
	LeetCodeID string         `json:"leetcodeId"`
	Difficulty int            `json:"difficulty"`
	Paused     bool           `json:"paused"`
	CreatedAt  time.Time      `json:"createdAt"`
	Scheduler  SchedulerState `json:"fsrs"`
}
