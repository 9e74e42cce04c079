// Package syncer reconciles the local dataset against the remote gist
// document with a last-write-wins comparison of data-modified timestamps.
package syncer

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/conorfennell/leetsrs/internal/backup"
	"github.com/conorfennell/leetsrs/internal/gist"
	"github.com/conorfennell/leetsrs/internal/storage"
)

// Sync directions and actions reported in results.
const (
	ActionPushed   = "pushed"
	ActionPulled   = "pulled"
	ActionNoChange = "no-change"

	DirectionPush = "push"
	DirectionPull = "pull"
)

// API is the surface of the remote document client the engine consumes.
type API interface {
	Get(ctx context.Context, id string) (*gist.Gist, error)
	Create(ctx context.Context, description string, public bool, files map[string]gist.File) (*gist.Gist, error)
	Update(ctx context.Context, id string, files map[string]gist.File) error
	AuthenticatedUser(ctx context.Context) (string, error)
}

// ClientFactory builds an API client for a credential. Clients are built per
// attempt because the credential can change between attempts.
type ClientFactory func(token string) API

// Config is the persisted sync configuration.
type Config struct {
	PAT     string  `json:"pat"`
	GistID  *string `json:"gistId"` // null when no target is configured
	Enabled bool    `json:"enabled"`
}

// ConfigUpdate is a partial update; nil fields are left untouched.
// ClearGistID removes the configured target.
type ConfigUpdate struct {
	PAT         *string `json:"pat"`
	GistID      *string `json:"gistId"`
	ClearGistID bool    `json:"clearGistId"`
	Enabled     *bool   `json:"enabled"`
}

// Status is the process-lifetime sync status. The timestamps come from the
// store; the in-progress flag and last error live only in memory and reset
// on restart.
type Status struct {
	LastSyncTime      *string `json:"lastSyncTime"`
	LastSyncDirection *string `json:"lastSyncDirection"`
	SyncInProgress    bool    `json:"syncInProgress"`
	LastError         *string `json:"lastError"`
}

// Result is the outcome of one sync attempt.
type Result struct {
	Success   bool   `json:"success"`
	Action    string `json:"action,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Engine runs sync attempts. At most one attempt executes at a time; a
// concurrent trigger fails fast instead of queuing.
type Engine struct {
	store   *storage.Store
	backup  *backup.Service
	clients ClientFactory

	mu         sync.Mutex
	inProgress bool
	lastError  string

	now func() time.Time
}

func New(store *storage.Store, backupSvc *backup.Service, clients ClientFactory) *Engine {
	return &Engine{
		store:   store,
		backup:  backupSvc,
		clients: clients,
		now:     time.Now,
	}
}

// Config reads the persisted sync configuration.
func (e *Engine) Config() (Config, error) {
	cfg := Config{}
	pat, _, err := e.store.Get(storage.KeyGithubPAT)
	if err != nil {
		return Config{}, err
	}
	cfg.PAT = pat

	if id, ok, err := e.store.Get(storage.KeyGistID); err != nil {
		return Config{}, err
	} else if ok {
		cfg.GistID = &id
	}

	if raw, ok, err := e.store.Get(storage.KeyGistSyncEnabled); err != nil {
		return Config{}, err
	} else if ok {
		cfg.Enabled, _ = strconv.ParseBool(raw)
	}
	return cfg, nil
}

// SetConfig applies a partial configuration update.
func (e *Engine) SetConfig(update ConfigUpdate) error {
	if update.PAT != nil {
		if err := e.store.Set(storage.KeyGithubPAT, *update.PAT); err != nil {
			return err
		}
	}
	if update.ClearGistID {
		if err := e.store.Remove(storage.KeyGistID); err != nil {
			return err
		}
	} else if update.GistID != nil {
		if err := e.store.Set(storage.KeyGistID, *update.GistID); err != nil {
			return err
		}
	}
	if update.Enabled != nil {
		if err := e.store.Set(storage.KeyGistSyncEnabled, strconv.FormatBool(*update.Enabled)); err != nil {
			return err
		}
	}
	return nil
}

// Status reports the current sync status.
func (e *Engine) Status() (Status, error) {
	status := Status{}
	if raw, ok, err := e.store.Get(storage.KeyLastSyncTime); err != nil {
		return Status{}, err
	} else if ok {
		status.LastSyncTime = &raw
	}
	if raw, ok, err := e.store.Get(storage.KeyLastSyncDirection); err != nil {
		return Status{}, err
	} else if ok {
		status.LastSyncDirection = &raw
	}

	e.mu.Lock()
	status.SyncInProgress = e.inProgress
	if e.lastError != "" {
		lastError := e.lastError
		status.LastError = &lastError
	}
	e.mu.Unlock()
	return status, nil
}

// Sync runs one attempt. A second call while an attempt is outstanding
// returns immediately with a failure result; the guard is released on every
// path, success or not.
func (e *Engine) Sync(ctx context.Context) Result {
	e.mu.Lock()
	if e.inProgress {
		e.mu.Unlock()
		return Result{Success: false, Error: "Sync already in progress"}
	}
	e.inProgress = true
	e.lastError = ""
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.inProgress = false
		e.mu.Unlock()
	}()

	result := e.sync(ctx)
	if !result.Success {
		e.mu.Lock()
		e.lastError = result.Error
		e.mu.Unlock()
	}
	return result
}

func (e *Engine) sync(ctx context.Context) Result {
	cfg, err := e.Config()
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	if cfg.PAT == "" {
		return Result{Success: false, Error: "PAT is not configured"}
	}
	if cfg.GistID == nil || *cfg.GistID == "" {
		return Result{Success: false, Error: "Gist ID is not configured"}
	}
	gistID := *cfg.GistID

	client := e.clients(cfg.PAT)
	remote, err := client.Get(ctx, gistID)
	if err != nil {
		if gist.IsNotFound(err) {
			return Result{Success: false, Error: "Gist not found"}
		}
		return e.failure(err)
	}

	file, ok := remote.Files[backup.RemoteFilename]
	if !ok || file.Content == "" {
		// Remote document exists but has no payload file yet.
		return e.push(ctx, client, gistID)
	}

	var remoteEnvelope backup.Envelope
	if err := json.Unmarshal([]byte(file.Content), &remoteEnvelope); err != nil {
		// An unparsable remote payload is treated as no usable remote data:
		// overwrite it with the local snapshot.
		return e.push(ctx, client, gistID)
	}

	localUpdatedAt, hasLocal, err := e.store.DataUpdatedAt()
	if err != nil {
		return e.failure(err)
	}

	if remoteEnvelope.DataUpdatedAt == "" {
		// Legacy remote with no marker: push to establish one. Seed the
		// local marker first if this is also a fresh install.
		if !hasLocal {
			if err := e.store.MarkDataUpdated(e.now()); err != nil {
				return e.failure(err)
			}
		}
		return e.push(ctx, client, gistID)
	}
	remoteUpdatedAt, err := time.Parse(time.RFC3339, remoteEnvelope.DataUpdatedAt)
	if err != nil {
		return e.push(ctx, client, gistID)
	}

	if !hasLocal {
		// Fresh install with existing remote data.
		return e.pull(file.Content)
	}

	switch {
	case localUpdatedAt.Before(remoteUpdatedAt):
		return e.pull(file.Content)
	case localUpdatedAt.After(remoteUpdatedAt):
		return e.push(ctx, client, gistID)
	}

	// Equal timestamps: nothing to transfer, but record that the check ran.
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.store.Set(storage.KeyLastSyncTime, now); err != nil {
		return e.failure(err)
	}
	return Result{Success: true, Action: ActionNoChange, Timestamp: now}
}

func (e *Engine) push(ctx context.Context, client API, gistID string) Result {
	content, err := e.backup.Export()
	if err != nil {
		return e.failure(err)
	}
	files := map[string]gist.File{backup.RemoteFilename: {Content: content}}
	if err := client.Update(ctx, gistID, files); err != nil {
		return e.failure(err)
	}
	now, err := e.recordSync(DirectionPush)
	if err != nil {
		return e.failure(err)
	}
	return Result{Success: true, Action: ActionPushed, Timestamp: now}
}

func (e *Engine) pull(content string) Result {
	if err := e.backup.Import(content); err != nil {
		return e.failure(err)
	}
	now, err := e.recordSync(DirectionPull)
	if err != nil {
		return e.failure(err)
	}
	return Result{Success: true, Action: ActionPulled, Timestamp: now}
}

func (e *Engine) recordSync(direction string) (string, error) {
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.store.Set(storage.KeyLastSyncTime, now); err != nil {
		return "", err
	}
	if err := e.store.Set(storage.KeyLastSyncDirection, direction); err != nil {
		return "", err
	}
	return now, nil
}

func (e *Engine) failure(err error) Result {
	if gist.IsRateLimited(err) {
		return Result{Success: false, Error: "GitHub API rate limit exceeded. Please try again later."}
	}
	return Result{Success: false, Error: err.Error()}
}
