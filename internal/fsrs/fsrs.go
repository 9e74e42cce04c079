package fsrs

import (
	"math"
	"time"

	"github.com/conorfennell/leetsrs/internal/domain"
)

// Rating is the user's response to a card review.
type Rating int

const (
	Again Rating = 1
	Hard  Rating = 2
	Good  Rating = 3
	Easy  Rating = 4
)

// Valid reports whether r is one of the four ratings.
func (r Rating) Valid() bool {
	return r >= Again && r <= Easy
}

// String returns the lowercase rating name used in stats buckets.
func (r Rating) String() string {
	switch r {
	case Again:
		return "again"
	case Hard:
		return "hard"
	case Good:
		return "good"
	case Easy:
		return "easy"
	default:
		return "unknown"
	}
}

// Params holds the parameters for the FSRS algorithm.
type Params struct {
	A                float64 // scales the overall memory increase
	B                float64 // difficulty exponent
	C                float64 // stability exponent
	D                float64 // retention effect scaler
	DesiredRetention float64 // desired retention rate (e.g., 0.9 for 90%)
}

// DefaultParams provides a set of sensible default parameters to start with.
func DefaultParams() *Params {
	return &Params{
		A:                0.2,
		B:                0.5,
		C:                0.1,
		D:                4.0,
		DesiredRetention: 0.9,
	}
}

// First-review stability in days, seeded by the initial rating.
var initialStability = map[Rating]float64{
	Again: 1,
	Hard:  2,
	Good:  3,
	Easy:  6,
}

// First-review difficulty adjustment around the 5.0 baseline.
var initialDifficultyDelta = map[Rating]float64{
	Again: 1.5,
	Hard:  0.5,
	Good:  0,
	Easy:  -1.5,
}

// Interval multipliers applied to the successful-review stability update so
// that Hard grows the interval least and Easy most.
const (
	hardFactor = 0.85
	easyFactor = 1.3
)

// NewCardState returns the scheduler state for a freshly created card,
// due immediately.
func NewCardState(now time.Time) domain.SchedulerState {
	return domain.SchedulerState{
		State:      domain.New,
		Stability:  0,
		Difficulty: 0,
		Due:        now,
	}
}

// NextState advances a card's scheduler state for one rating. It is a pure
// function of (current, rating, now): identical inputs always produce the
// identical next state.
func (p *Params) NextState(current domain.SchedulerState, rating Rating, now time.Time) domain.SchedulerState {
	next := current
	next.Reps++
	next.LastReview = now

	if current.State == domain.New {
		next.Stability = initialStability[rating]
		next.Difficulty = clampDifficulty(5 + initialDifficultyDelta[rating])
		if rating == Easy {
			next.State = domain.Review
		} else {
			next.State = domain.Learning
		}
		next.Due = dueFrom(now, next.Stability)
		return next
	}

	if rating == Again {
		// Forgotten: stability resets, difficulty drifts up. A lapse is
		// counted only when a graduated card falls back.
		if current.State == domain.Review {
			next.Lapses++
			next.State = domain.Relearning
		}
		next.Stability = 1
		next.Difficulty = clampDifficulty(current.Difficulty + 0.5)
		next.Due = dueFrom(now, next.Stability)
		return next
	}

	// Successful review: Learning and Relearning cards graduate.
	next.State = domain.Review
	stability := p.calculateNewStability(current.Stability, current.Difficulty)
	switch rating {
	case Hard:
		stability *= hardFactor
		next.Difficulty = clampDifficulty(current.Difficulty + 0.1)
	case Easy:
		stability *= easyFactor
		next.Difficulty = clampDifficulty(current.Difficulty - 0.1)
	}
	next.Stability = stability
	next.Due = dueFrom(now, stability)
	return next
}

// calculateNewStability applies the core FSRS formula for a successful review.
func (p *Params) calculateNewStability(stability, difficulty float64) float64 {
	// Formula: S' = S * (1 + a * D^(-b) * S^c * (e^(d * (1-R)) - 1))
	if stability < 1 {
		stability = 1
	}
	if difficulty < 1 {
		difficulty = 1
	}

	factor := p.A * math.Pow(difficulty, -p.B) * math.Pow(stability, p.C)
	exponent := p.D * (1 - p.DesiredRetention)
	multiplier := math.Exp(exponent) - 1

	return stability * (1 + factor*multiplier)
}

// dueFrom schedules the next review 'stability' days out, never less than
// one day.
func dueFrom(now time.Time, stability float64) time.Time {
	days := math.Round(stability)
	if days < 1 {
		days = 1
	}
	return now.Add(time.Duration(days) * 24 * time.Hour)
}

func clampDifficulty(d float64) float64 {
	return math.Min(10, math.Max(1, d))
}
