// Package cards is the repository for tracked problems: CRUD, rating, and
// the review queue.
package cards

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/leetsrs/internal/domain"
	"github.com/conorfennell/leetsrs/internal/fsrs"
	"github.com/conorfennell/leetsrs/internal/notes"
	"github.com/conorfennell/leetsrs/internal/settings"
	"github.com/conorfennell/leetsrs/internal/stats"
	"github.com/conorfennell/leetsrs/internal/storage"
)

var (
	// ErrDuplicateCard is returned when the slug is already tracked.
	ErrDuplicateCard = errors.New("card already exists")
	// ErrNotFound is returned when no card is tracked for the slug.
	ErrNotFound = errors.New("card not found")
	// ErrInvalidRating is returned for ratings outside Again..Easy.
	ErrInvalidRating = errors.New("invalid rating")
	// ErrInvalidDelay is returned when a delay is not a positive day count.
	ErrInvalidDelay = errors.New("invalid delay")
)

// Service owns the card map stored under the cards key. Read-modify-write
// sequences are serialized by mu; the store itself only guarantees per-key
// atomicity.
type Service struct {
	store    *storage.Store
	notes    *notes.Service
	stats    *stats.Service
	settings *settings.Service
	params   *fsrs.Params

	mu  sync.Mutex
	now func() time.Time
}

func New(store *storage.Store, notesSvc *notes.Service, statsSvc *stats.Service, settingsSvc *settings.Service, params *fsrs.Params) *Service {
	return &Service{
		store:    store,
		notes:    notesSvc,
		stats:    statsSvc,
		settings: settingsSvc,
		params:   params,
		now:      time.Now,
	}
}

// Add creates a card for a problem not yet tracked. The new card starts in
// the New state and is due immediately.
func (s *Service) Add(slug, name, leetcodeID string, difficulty int) (domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return domain.Card{}, err
	}
	if _, ok := all[slug]; ok {
		return domain.Card{}, fmt.Errorf("%w: %s", ErrDuplicateCard, slug)
	}

	card := s.newCard(slug, name, leetcodeID, difficulty)
	all[slug] = card
	if err := s.save(all); err != nil {
		return domain.Card{}, err
	}
	return card, nil
}

// All returns every card, oldest first.
func (s *Service) All() ([]domain.Card, error) {
	all, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Card, 0, len(all))
	for _, card := range all {
		out = append(out, card)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Slug < out[j].Slug
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Get returns the card for a slug.
func (s *Service) Get(slug string) (domain.Card, error) {
	all, err := s.load()
	if err != nil {
		return domain.Card{}, err
	}
	card, ok := all[slug]
	if !ok {
		return domain.Card{}, fmt.Errorf("%w: %s", ErrNotFound, slug)
	}
	return card, nil
}

// Remove deletes a card and its note.
func (s *Service) Remove(slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return err
	}
	card, ok := all[slug]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, slug)
	}
	delete(all, slug)
	if err := s.save(all); err != nil {
		return err
	}
	return s.notes.Delete(card.ID)
}

// Delay shifts a card's due date forward by whole days without touching its
// scheduler state ("snooze"). The shift is forward only.
func (s *Service) Delay(slug string, days int) (domain.Card, error) {
	if days < 1 {
		return domain.Card{}, fmt.Errorf("%w: %d days", ErrInvalidDelay, days)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return domain.Card{}, err
	}
	card, ok := all[slug]
	if !ok {
		return domain.Card{}, fmt.Errorf("%w: %s", ErrNotFound, slug)
	}
	card.Scheduler.Due = card.Scheduler.Due.Add(time.Duration(days) * 24 * time.Hour)
	all[slug] = card
	if err := s.save(all); err != nil {
		return domain.Card{}, err
	}
	return card, nil
}

// SetPaused toggles a card out of or into the review queue.
func (s *Service) SetPaused(slug string, paused bool) (domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return domain.Card{}, err
	}
	card, ok := all[slug]
	if !ok {
		return domain.Card{}, fmt.Errorf("%w: %s", ErrNotFound, slug)
	}
	card.Paused = paused
	all[slug] = card
	if err := s.save(all); err != nil {
		return domain.Card{}, err
	}
	return card, nil
}

// Rate applies one review. A card that is not tracked yet is created first,
// so rating on first encounter works in one step. The rating is folded into
// today's stats bucket.
func (s *Service) Rate(slug, name, leetcodeID string, difficulty int, rating fsrs.Rating) (domain.Card, error) {
	if !rating.Valid() {
		return domain.Card{}, fmt.Errorf("%w: %d", ErrInvalidRating, rating)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return domain.Card{}, err
	}
	card, ok := all[slug]
	if !ok {
		card = s.newCard(slug, name, leetcodeID, difficulty)
	}

	now := s.now()
	wasNew := card.Scheduler.State == domain.New
	card.Scheduler = s.params.NextState(card.Scheduler, rating, now)
	all[slug] = card
	if err := s.save(all); err != nil {
		return domain.Card{}, err
	}
	if err := s.stats.RecordRating(rating, wasNew, now); err != nil {
		return domain.Card{}, err
	}
	return card, nil
}

// ReviewQueue returns the non-paused cards due now, oldest due first. New
// cards are admitted only up to what is left of today's new-card quota.
func (s *Service) ReviewQueue() ([]domain.Card, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	quota, err := s.settings.MaxNewCardsPerDay()
	if err != nil {
		return nil, err
	}
	reviewedToday, err := s.stats.NewCardsReviewedToday()
	if err != nil {
		return nil, err
	}

	now := s.now()
	newBudget := quota - reviewedToday
	if newBudget < 0 {
		newBudget = 0
	}

	var due []domain.Card
	for _, card := range all {
		if card.Paused || card.Scheduler.Due.After(now) {
			continue
		}
		due = append(due, card)
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].Scheduler.Due.Before(due[j].Scheduler.Due)
	})

	// The new-card quota admits the oldest-due New cards first.
	queue := due[:0]
	for _, card := range due {
		if card.Scheduler.State == domain.New {
			if newBudget == 0 {
				continue
			}
			newBudget--
		}
		queue = append(queue, card)
	}
	return queue, nil
}

func (s *Service) newCard(slug, name, leetcodeID string, difficulty int) domain.Card {
	now := s.now()
	return domain.Card{
		ID:         uuid.NewString(),
		Slug:       slug,
		Name:       name,
		LeetCodeID: leetcodeID,
		Difficulty: difficulty,
		CreatedAt:  now,
		Scheduler:  fsrs.NewCardState(now),
	}
}

func (s *Service) load() (map[string]domain.Card, error) {
	all := make(map[string]domain.Card)
	if _, err := s.store.GetJSON(storage.KeyCards, &all); err != nil {
		return nil, err
	}
	return all, nil
}

func (s *Service) save(all map[string]domain.Card) error {
	if err := s.store.SetJSON(storage.KeyCards, all); err != nil {
		return err
	}
	return s.store.MarkDataUpdated(s.now())
}
