package storage

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/conorfennell/leetsrs/internal/domain"
)

// Migration upgrades stored data from one schema version to the next.
// Migrations run in order at startup; the reached version is recorded under
// KeySchemaVersion.
type Migration struct {
	Version int
	Name    string
	Run     func(s *Store) error
}

// Migrations is the ordered upgrade list. Version 1 seeds default settings
// for fresh installs.
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "seed default settings",
		Run: func(s *Store) error {
			var settings domain.Settings
			ok, err := s.GetJSON(KeySettings, &settings)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
			return s.SetJSON(KeySettings, domain.DefaultSettings())
		},
	},
}

// Migrate runs every migration newer than the stored schema version.
func (s *Store) Migrate(migrations []Migration) error {
	version := 0
	if raw, ok, err := s.Get(KeySchemaVersion); err != nil {
		return err
	} else if ok {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("failed to parse schema version %q: %w", raw, err)
		}
		version = v
	}

	for _, m := range migrations {
		if m.Version <= version {
			continue
		}
		slog.Info("running migration", "version", m.Version, "name", m.Name)
		if err := m.Run(s); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
		}
		if err := s.Set(KeySchemaVersion, strconv.Itoa(m.Version)); err != nil {
			return err
		}
		version = m.Version
	}
	return nil
}
