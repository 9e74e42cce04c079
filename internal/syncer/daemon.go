package syncer

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInterval is the periodic sync cadence.
const DefaultInterval = time.Minute

// RunPeriodic triggers a sync once per interval until ctx is cancelled.
// Ticks are skipped while sync is unconfigured or disabled; a tick that
// loses the race against a manual sync fails fast and waits for the next
// one.
func (e *Engine) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("periodic sync started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("periodic sync stopped")
			return
		case <-ticker.C:
			cfg, err := e.Config()
			if err != nil {
				slog.Error("failed to read sync config", "error", err)
				continue
			}
			if !cfg.Enabled || cfg.PAT == "" || cfg.GistID == nil || *cfg.GistID == "" {
				continue
			}
			result := e.Sync(ctx)
			if result.Success {
				slog.Info("periodic sync completed", "action", result.Action, "timestamp", result.Timestamp)
			} else {
				slog.Warn("periodic sync failed", "error", result.Error)
			}
		}
	}
}
