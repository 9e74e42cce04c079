// Package notes manages the free-text note attached 1:1 to a card.
package notes

import (
	"errors"
	"sync"
	"time"

	"github.com/conorfennell/leetsrs/internal/domain"
	"github.com/conorfennell/leetsrs/internal/storage"
)

// ErrTooLong is returned when a note exceeds domain.MaxNoteLength.
var ErrTooLong = errors.New("note exceeds maximum length")

// Service stores notes as a single map keyed by card id. Read-modify-write
// sequences are serialized by mu; the store itself only guarantees per-key
// atomicity.
type Service struct {
	store *storage.Store

	mu  sync.Mutex
	now func() time.Time
}

func New(store *storage.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Get returns the note for a card. The second return is false when the card
// has no note.
func (s *Service) Get(cardID string) (domain.Note, bool, error) {
	all, err := s.load()
	if err != nil {
		return domain.Note{}, false, err
	}
	note, ok := all[cardID]
	return note, ok, nil
}

// Save creates or replaces the note for a card and stamps the data-modified
// marker.
func (s *Service) Save(cardID, text string) (domain.Note, error) {
	if len(text) > domain.MaxNoteLength {
		return domain.Note{}, ErrTooLong
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return domain.Note{}, err
	}
	note := domain.Note{CardID: cardID, Text: text, UpdatedAt: s.now()}
	all[cardID] = note
	if err := s.save(all); err != nil {
		return domain.Note{}, err
	}
	return note, nil
}

// Delete removes the note for a card. Deleting an absent note is a no-op.
func (s *Service) Delete(cardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := all[cardID]; !ok {
		return nil
	}
	delete(all, cardID)
	return s.save(all)
}

func (s *Service) load() (map[string]domain.Note, error) {
	all := make(map[string]domain.Note)
	if _, err := s.store.GetJSON(storage.KeyNotes, &all); err != nil {
		return nil, err
	}
	return all, nil
}

func (s *Service) save(all map[string]domain.Note) error {
	if err := s.store.SetJSON(storage.KeyNotes, all); err != nil {
		return err
	}
	return s.store.MarkDataUpdated(s.now())
}
