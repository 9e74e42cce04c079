package domain

// Bounds for the per-day new-card quota.
const (
	DefaultMaxNewCardsPerDay = 10
	MinNewCardsPerDay        = 1
	MaxNewCardsPerDay        = 100
)

// Settings is the synchronized user configuration. The UI-facing fields
// (AnimationsEnabled, Theme) ride along in the sync payload but are never
// interpreted here.
type Settings struct {
	MaxNewCardsPerDay int    `json:"maxNewCardsPerDay"`
	AnimationsEnabled bool   `json:"animationsEnabled"`
	Theme             string `json:"theme"`
}

// DefaultSettings returns the settings seeded on first run.
func DefaultSettings() Settings {
	return Settings{
		MaxNewCardsPerDay: DefaultMaxNewCardsPerDay,
		AnimationsEnabled: true,
		Theme:             "system",
	}
}
