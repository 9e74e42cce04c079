// Package backup serializes the whole dataset to the versioned JSON
// envelope used for both gist sync payloads and user-facing backup files,
// and imports such envelopes back atomically.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/leetsrs/internal/domain"
	"github.com/conorfennell/leetsrs/internal/storage"
)

// SchemaVersion is the current envelope version.
const SchemaVersion = 1

// RemoteFilename is the fixed payload filename inside the remote document.
const RemoteFilename = "leetsrs-backup.json"

var (
	// ErrInvalidFormat is returned when the import text is not a well-formed
	// envelope.
	ErrInvalidFormat = errors.New("invalid backup format")
	// ErrUnsupportedVersion is returned when the envelope was produced by a
	// newer schema than this build supports.
	ErrUnsupportedVersion = errors.New("unsupported backup schema version")
)

// Envelope is the wire format for exports. Data is a pointer so an envelope
// missing the data key entirely fails validation instead of importing an
// empty dataset.
type Envelope struct {
	SchemaVersion int      `json:"schemaVersion" validate:"required,gte=1"`
	ExportDate    string   `json:"exportDate" validate:"required"`
	DataUpdatedAt string   `json:"dataUpdatedAt,omitempty"`
	Data          *Payload `json:"data" validate:"required"`
}

// Payload carries the full dataset.
type Payload struct {
	Cards    []domain.Card              `json:"cards"`
	Notes    []domain.Note              `json:"notes"`
	Settings domain.Settings            `json:"settings"`
	Stats    map[string]domain.DayStats `json:"stats"`
}

// Service builds and applies envelopes against the store.
type Service struct {
	store    *storage.Store
	validate *validator.Validate
	now      func() time.Time
}

func New(store *storage.Store) *Service {
	return &Service{
		store:    store,
		validate: validator.New(),
		now:      time.Now,
	}
}

// Export serializes the current store contents. ExportDate is the wall-clock
// serialization time and is never used for merge decisions; DataUpdatedAt is.
func (s *Service) Export() (string, error) {
	payload, err := s.payload()
	if err != nil {
		return "", err
	}

	envelope := Envelope{
		SchemaVersion: SchemaVersion,
		ExportDate:    s.now().UTC().Format(time.RFC3339),
		Data:          &payload,
	}
	if updatedAt, ok, err := s.store.DataUpdatedAt(); err != nil {
		return "", err
	} else if ok {
		envelope.DataUpdatedAt = updatedAt.UTC().Format(time.RFC3339)
	}

	raw, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal export: %w", err)
	}
	return string(raw), nil
}

// Import parses jsonText and atomically replaces all cards, notes, settings
// and stats with the imported payload. The local data-modified marker is set
// to the envelope's dataUpdatedAt so later sync comparisons stay consistent.
func (s *Service) Import(jsonText string) error {
	var envelope Envelope
	if err := json.Unmarshal([]byte(jsonText), &envelope); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if err := s.validate.Struct(envelope); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if envelope.SchemaVersion > SchemaVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, envelope.SchemaVersion)
	}

	dataUpdatedAt := envelope.DataUpdatedAt
	if dataUpdatedAt == "" {
		// Legacy envelope with no marker: seed one so the next comparison
		// has something to work with.
		dataUpdatedAt = s.now().UTC().Format(time.RFC3339)
	} else if _, err := time.Parse(time.RFC3339, dataUpdatedAt); err != nil {
		return fmt.Errorf("%w: bad dataUpdatedAt: %v", ErrInvalidFormat, err)
	}

	cardsBySlug := make(map[string]domain.Card, len(envelope.Data.Cards))
	for _, card := range envelope.Data.Cards {
		if card.Slug == "" {
			return fmt.Errorf("%w: card with empty slug", ErrInvalidFormat)
		}
		cardsBySlug[card.Slug] = card
	}
	notesByCard := make(map[string]domain.Note, len(envelope.Data.Notes))
	for _, note := range envelope.Data.Notes {
		notesByCard[note.CardID] = note
	}
	settings := envelope.Data.Settings
	if settings == (domain.Settings{}) {
		settings = domain.DefaultSettings()
	}
	dayStats := envelope.Data.Stats
	if dayStats == nil {
		dayStats = make(map[string]domain.DayStats)
	}

	set := make(map[string]string, 5)
	for key, v := range map[string]any{
		storage.KeyCards:    cardsBySlug,
		storage.KeyNotes:    notesByCard,
		storage.KeySettings: settings,
		storage.KeyStats:    dayStats,
	} {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", key, err)
		}
		set[key] = string(raw)
	}
	set[storage.KeyDataUpdatedAt] = dataUpdatedAt

	return s.store.Apply(set, nil)
}

// Reset clears all cards, notes, settings, stats and sync metadata back to
// defaults. Irreversible.
func (s *Service) Reset() error {
	if err := s.store.Reset(); err != nil {
		return err
	}
	return s.store.SetJSON(storage.KeySettings, domain.DefaultSettings())
}

// BackupFilename names a user-facing download with the current date
// embedded.
func (s *Service) BackupFilename() string {
	return fmt.Sprintf("leetsrs-backup-%s.json", s.now().UTC().Format("2006-01-02"))
}

func (s *Service) payload() (Payload, error) {
	cardsBySlug := make(map[string]domain.Card)
	if _, err := s.store.GetJSON(storage.KeyCards, &cardsBySlug); err != nil {
		return Payload{}, err
	}
	notesByCard := make(map[string]domain.Note)
	if _, err := s.store.GetJSON(storage.KeyNotes, &notesByCard); err != nil {
		return Payload{}, err
	}
	settings := domain.DefaultSettings()
	if _, err := s.store.GetJSON(storage.KeySettings, &settings); err != nil {
		return Payload{}, err
	}
	dayStats := make(map[string]domain.DayStats)
	if _, err := s.store.GetJSON(storage.KeyStats, &dayStats); err != nil {
		return Payload{}, err
	}

	cards := make([]domain.Card, 0, len(cardsBySlug))
	for _, card := range cardsBySlug {
		cards = append(cards, card)
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].Slug < cards[j].Slug })

	noteList := make([]domain.Note, 0, len(notesByCard))
	for _, note := range notesByCard {
		noteList = append(noteList, note)
	}
	sort.Slice(noteList, func(i, j int) bool { return noteList[i].CardID < noteList[j].CardID })

	return Payload{
		Cards:    cards,
		Notes:    noteList,
		Settings: settings,
		Stats:    dayStats,
	}, nil
}
