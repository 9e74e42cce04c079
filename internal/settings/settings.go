// Package settings reads and writes the synchronized user configuration.
package settings

import (
	"errors"
	"sync"
	"time"

	"github.com/conorfennell/leetsrs/internal/domain"
	"github.com/conorfennell/leetsrs/internal/storage"
)

// ErrOutOfRange is returned when a quota value falls outside the allowed
// bounds.
var ErrOutOfRange = errors.New("max new cards per day out of range")

// Service provides typed access to the settings document. Updates are
// serialized by mu so concurrent writers cannot lose each other's fields.
type Service struct {
	store *storage.Store

	mu  sync.Mutex
	now func() time.Time
}

func New(store *storage.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Get returns the current settings, falling back to defaults when the
// settings document has never been written.
func (s *Service) Get() (domain.Settings, error) {
	settings := domain.DefaultSettings()
	if _, err := s.store.GetJSON(storage.KeySettings, &settings); err != nil {
		return domain.Settings{}, err
	}
	return settings, nil
}

// MaxNewCardsPerDay returns the per-day new-card quota.
func (s *Service) MaxNewCardsPerDay() (int, error) {
	settings, err := s.Get()
	if err != nil {
		return 0, err
	}
	return settings.MaxNewCardsPerDay, nil
}

// SetMaxNewCardsPerDay updates the quota, enforcing the documented bounds.
func (s *Service) SetMaxNewCardsPerDay(value int) error {
	if value < domain.MinNewCardsPerDay || value > domain.MaxNewCardsPerDay {
		return ErrOutOfRange
	}
	return s.update(func(settings *domain.Settings) {
		settings.MaxNewCardsPerDay = value
	})
}

func (s *Service) AnimationsEnabled() (bool, error) {
	settings, err := s.Get()
	if err != nil {
		return false, err
	}
	return settings.AnimationsEnabled, nil
}

func (s *Service) SetAnimationsEnabled(enabled bool) error {
	return s.update(func(settings *domain.Settings) {
		settings.AnimationsEnabled = enabled
	})
}

func (s *Service) Theme() (string, error) {
	settings, err := s.Get()
	if err != nil {
		return "", err
	}
	return settings.Theme, nil
}

func (s *Service) SetTheme(theme string) error {
	return s.update(func(settings *domain.Settings) {
		settings.Theme = theme
	})
}

func (s *Service) update(mutate func(*domain.Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.Get()
	if err != nil {
		return err
	}
	mutate(&settings)
	if err := s.store.SetJSON(storage.KeySettings, settings); err != nil {
		return err
	}
	return s.store.MarkDataUpdated(s.now())
}
