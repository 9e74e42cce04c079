package syncer

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/leetsrs/internal/backup"
	"github.com/conorfennell/leetsrs/internal/domain"
	"github.com/conorfennell/leetsrs/internal/gist"
	"github.com/conorfennell/leetsrs/internal/storage"
)

// fakeAPI is an in-memory stand-in for the gist client.
type fakeAPI struct {
	mu sync.Mutex

	gists     map[string]*gist.Gist
	getErr    error
	updateErr error
	createErr error
	user      string
	userErr   error

	getCalls    int
	userCalls   int
	updates     []map[string]gist.File
	createdGist *gist.Gist

	// blockUpdate, when non-nil, is drained before Update returns.
	blockUpdate chan struct{}
}

func (f *fakeAPI) Get(ctx context.Context, id string) (*gist.Gist, error) {
	f.mu.Lock()
	f.getCalls++
	f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	g, ok := f.gists[id]
	if !ok {
		return nil, &gist.APIError{StatusCode: http.StatusNotFound, Message: "Not Found"}
	}
	return g, nil
}

func (f *fakeAPI) Create(ctx context.Context, description string, public bool, files map[string]gist.File) (*gist.Gist, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.createdGist == nil {
		f.createdGist = &gist.Gist{ID: "created-id", Description: description, Files: files}
	}
	return f.createdGist, nil
}

func (f *fakeAPI) Update(ctx context.Context, id string, files map[string]gist.File) error {
	if f.blockUpdate != nil {
		<-f.blockUpdate
	}
	if f.updateErr != nil {
		return f.updateErr
	}
	f.mu.Lock()
	f.updates = append(f.updates, files)
	f.mu.Unlock()
	return nil
}

func (f *fakeAPI) AuthenticatedUser(ctx context.Context) (string, error) {
	f.mu.Lock()
	f.userCalls++
	f.mu.Unlock()
	if f.userErr != nil {
		return "", f.userErr
	}
	return f.user, nil
}

func newTestEngine(t *testing.T, api *fakeAPI) (*Engine, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	engine := New(store, backup.New(store), func(string) API { return api })
	return engine, store
}

func configure(t *testing.T, store *storage.Store, pat, gistID string) {
	t.Helper()
	require.NoError(t, store.Set(storage.KeyGithubPAT, pat))
	if gistID != "" {
		require.NoError(t, store.Set(storage.KeyGistID, gistID))
	}
}

func remoteEnvelope(t *testing.T, dataUpdatedAt string, cards ...domain.Card) string {
	t.Helper()
	envelope := backup.Envelope{
		SchemaVersion: backup.SchemaVersion,
		ExportDate:    "2024-05-01T00:00:00Z",
		DataUpdatedAt: dataUpdatedAt,
		Data:          &backup.Payload{Cards: cards},
	}
	raw, err := json.Marshal(envelope)
	require.NoError(t, err)
	return string(raw)
}

func TestSyncRequiresConfiguration(t *testing.T) {
	engine, store := newTestEngine(t, &fakeAPI{})

	result := engine.Sync(context.Background())
	assert.False(t, result.Success)
	assert.Equal(t, "PAT is not configured", result.Error)

	require.NoError(t, store.Set(storage.KeyGithubPAT, "token"))
	result = engine.Sync(context.Background())
	assert.False(t, result.Success)
	assert.Equal(t, "Gist ID is not configured", result.Error)

	status, err := engine.Status()
	require.NoError(t, err)
	require.NotNil(t, status.LastError)
	assert.Equal(t, "Gist ID is not configured", *status.LastError)
	assert.False(t, status.SyncInProgress)
}

func TestSyncGistNotFound(t *testing.T) {
	api := &fakeAPI{gists: map[string]*gist.Gist{}}
	engine, store := newTestEngine(t, api)
	configure(t, store, "token", "gone")

	result := engine.Sync(context.Background())
	assert.False(t, result.Success)
	assert.Equal(t, "Gist not found", result.Error)

	status, err := engine.Status()
	require.NoError(t, err)
	require.NotNil(t, status.LastError)
	assert.Equal(t, "Gist not found", *status.LastError)

	// The guard is released; a later attempt is not blocked.
	result = engine.Sync(context.Background())
	assert.Equal(t, "Gist not found", result.Error)
}

func TestSyncPushesWhenRemoteFileMissing(t *testing.T) {
	api := &fakeAPI{gists: map[string]*gist.Gist{
		"g1": {ID: "g1", Files: map[string]gist.File{}},
	}}
	engine, store := newTestEngine(t, api)
	configure(t, store, "token", "g1")
	require.NoError(t, store.MarkDataUpdated(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))

	result := engine.Sync(context.Background())
	require.True(t, result.Success, result.Error)
	assert.Equal(t, ActionPushed, result.Action)
	require.Len(t, api.updates, 1)
	assert.Contains(t, api.updates[0], backup.RemoteFilename)

	direction, _, err := store.Get(storage.KeyLastSyncDirection)
	require.NoError(t, err)
	assert.Equal(t, DirectionPush, direction)
}

func TestSyncPushesOverUnparsableRemote(t *testing.T) {
	api := &fakeAPI{gists: map[string]*gist.Gist{
		"g1": {ID: "g1", Files: map[string]gist.File{
			backup.RemoteFilename: {Content: "corrupted {{{"},
		}},
	}}
	engine, store := newTestEngine(t, api)
	configure(t, store, "token", "g1")

	result := engine.Sync(context.Background())
	require.True(t, result.Success, result.Error)
	assert.Equal(t, ActionPushed, result.Action)
}

func TestSyncPullsOnFreshInstall(t *testing.T) {
	remote := remoteEnvelope(t, "2024-05-01T00:00:00Z", domain.Card{
		ID: "id-1", Slug: "two-sum", Name: "Two Sum",
	})
	api := &fakeAPI{gists: map[string]*gist.Gist{
		"g1": {ID: "g1", Files: map[string]gist.File{backup.RemoteFilename: {Content: remote}}},
	}}
	engine, store := newTestEngine(t, api)
	configure(t, store, "token", "g1")

	result := engine.Sync(context.Background())
	require.True(t, result.Success, result.Error)
	assert.Equal(t, ActionPulled, result.Action)

	cards := make(map[string]domain.Card)
	_, err := store.GetJSON(storage.KeyCards, &cards)
	require.NoError(t, err)
	assert.Contains(t, cards, "two-sum")

	marker, ok, err := store.DataUpdatedAt()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-05-01T00:00:00Z", marker.UTC().Format(time.RFC3339))
}

func TestSyncLastWriteWins(t *testing.T) {
	remoteStamp := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	remote := remoteEnvelope(t, remoteStamp.Format(time.RFC3339))

	t.Run("local newer pushes", func(t *testing.T) {
		api := &fakeAPI{gists: map[string]*gist.Gist{
			"g1": {ID: "g1", Files: map[string]gist.File{backup.RemoteFilename: {Content: remote}}},
		}}
		engine, store := newTestEngine(t, api)
		configure(t, store, "token", "g1")
		require.NoError(t, store.MarkDataUpdated(remoteStamp.Add(time.Hour)))

		result := engine.Sync(context.Background())
		require.True(t, result.Success, result.Error)
		assert.Equal(t, ActionPushed, result.Action)
	})

	t.Run("local older pulls", func(t *testing.T) {
		api := &fakeAPI{gists: map[string]*gist.Gist{
			"g1": {ID: "g1", Files: map[string]gist.File{backup.RemoteFilename: {Content: remote}}},
		}}
		engine, store := newTestEngine(t, api)
		configure(t, store, "token", "g1")
		require.NoError(t, store.MarkDataUpdated(remoteStamp.Add(-time.Hour)))

		result := engine.Sync(context.Background())
		require.True(t, result.Success, result.Error)
		assert.Equal(t, ActionPulled, result.Action)
	})

	t.Run("equal timestamps are a no-op", func(t *testing.T) {
		api := &fakeAPI{gists: map[string]*gist.Gist{
			"g1": {ID: "g1", Files: map[string]gist.File{backup.RemoteFilename: {Content: remote}}},
		}}
		engine, store := newTestEngine(t, api)
		configure(t, store, "token", "g1")
		require.NoError(t, store.MarkDataUpdated(remoteStamp))

		result := engine.Sync(context.Background())
		require.True(t, result.Success, result.Error)
		assert.Equal(t, ActionNoChange, result.Action)
		assert.Empty(t, api.updates)

		// The check itself is still recorded.
		_, ok, err := store.Get(storage.KeyLastSyncTime)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestSyncIsIdempotentAfterPush(t *testing.T) {
	api := &fakeAPI{gists: map[string]*gist.Gist{
		"g1": {ID: "g1", Files: map[string]gist.File{}},
	}}
	engine, store := newTestEngine(t, api)
	configure(t, store, "token", "g1")
	require.NoError(t, store.MarkDataUpdated(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))

	result := engine.Sync(context.Background())
	require.True(t, result.Success, result.Error)
	require.Len(t, api.updates, 1)

	// Reflect the push on the fake remote, then sync again.
	api.gists["g1"].Files = api.updates[0]
	result = engine.Sync(context.Background())
	require.True(t, result.Success, result.Error)
	assert.Equal(t, ActionNoChange, result.Action)
	assert.Len(t, api.updates, 1)
}

func TestSyncConcurrentTriggerFailsFast(t *testing.T) {
	api := &fakeAPI{
		gists: map[string]*gist.Gist{
			"g1": {ID: "g1", Files: map[string]gist.File{}},
		},
		blockUpdate: make(chan struct{}),
	}
	engine, store := newTestEngine(t, api)
	configure(t, store, "token", "g1")

	first := make(chan Result, 1)
	go func() { first <- engine.Sync(context.Background()) }()

	// Wait until the first attempt is inside the remote call.
	require.Eventually(t, func() bool {
		status, err := engine.Status()
		return err == nil && status.SyncInProgress
	}, time.Second, 5*time.Millisecond)

	second := engine.Sync(context.Background())
	assert.False(t, second.Success)
	assert.Equal(t, "Sync already in progress", second.Error)

	close(api.blockUpdate)
	result := <-first
	assert.True(t, result.Success, result.Error)

	status, err := engine.Status()
	require.NoError(t, err)
	assert.False(t, status.SyncInProgress)
}

func TestSyncMapsRateLimit(t *testing.T) {
	api := &fakeAPI{getErr: &gist.APIError{StatusCode: http.StatusForbidden, Message: "API rate limit exceeded"}}
	engine, store := newTestEngine(t, api)
	configure(t, store, "token", "g1")

	result := engine.Sync(context.Background())
	assert.False(t, result.Success)
	assert.Equal(t, "GitHub API rate limit exceeded. Please try again later.", result.Error)
}

func TestValidatePAT(t *testing.T) {
	t.Run("blank fails without a network call", func(t *testing.T) {
		api := &fakeAPI{}
		engine, _ := newTestEngine(t, api)

		check := engine.ValidatePAT(context.Background(), "   ")
		assert.False(t, check.Valid)
		assert.Equal(t, "PAT is required", check.Error)
		assert.Equal(t, 0, api.userCalls)
	})

	t.Run("unauthorized", func(t *testing.T) {
		api := &fakeAPI{userErr: &gist.APIError{StatusCode: http.StatusUnauthorized, Message: "Bad credentials"}}
		engine, _ := newTestEngine(t, api)

		check := engine.ValidatePAT(context.Background(), "bad")
		assert.False(t, check.Valid)
		assert.Equal(t, "Invalid token", check.Error)
	})

	t.Run("missing scope", func(t *testing.T) {
		api := &fakeAPI{userErr: &gist.APIError{StatusCode: http.StatusForbidden, Message: "Forbidden"}}
		engine, _ := newTestEngine(t, api)

		check := engine.ValidatePAT(context.Background(), "limited")
		assert.False(t, check.Valid)
		assert.Equal(t, "Token lacks required permissions (needs gist scope)", check.Error)
	})

	t.Run("valid returns the username", func(t *testing.T) {
		api := &fakeAPI{user: "octocat"}
		engine, _ := newTestEngine(t, api)

		check := engine.ValidatePAT(context.Background(), "good")
		assert.True(t, check.Valid)
		assert.Equal(t, "octocat", check.Username)
	})
}

func TestValidateGistID(t *testing.T) {
	t.Run("blank", func(t *testing.T) {
		engine, _ := newTestEngine(t, &fakeAPI{})
		check := engine.ValidateGistID(context.Background(), "", "token")
		assert.Equal(t, "Gist ID is required", check.Error)
	})

	t.Run("not found", func(t *testing.T) {
		engine, _ := newTestEngine(t, &fakeAPI{gists: map[string]*gist.Gist{}})
		check := engine.ValidateGistID(context.Background(), "gone", "token")
		assert.Equal(t, "Gist not found", check.Error)
	})

	t.Run("missing payload file", func(t *testing.T) {
		api := &fakeAPI{gists: map[string]*gist.Gist{
			"g1": {ID: "g1", Files: map[string]gist.File{"other.txt": {Content: "x"}}},
		}}
		engine, _ := newTestEngine(t, api)
		check := engine.ValidateGistID(context.Background(), "g1", "token")
		assert.Equal(t, "Gist does not contain leetsrs-backup.json", check.Error)
	})

	t.Run("valid", func(t *testing.T) {
		api := &fakeAPI{gists: map[string]*gist.Gist{
			"g1": {ID: "g1", Files: map[string]gist.File{backup.RemoteFilename: {Content: "{}"}}},
		}}
		engine, _ := newTestEngine(t, api)
		check := engine.ValidateGistID(context.Background(), "g1", "token")
		assert.True(t, check.Valid)
	})
}

func TestCreateGist(t *testing.T) {
	t.Run("requires a PAT", func(t *testing.T) {
		engine, _ := newTestEngine(t, &fakeAPI{})
		_, err := engine.CreateGist(context.Background())
		require.Error(t, err)
		assert.Equal(t, "PAT is required to create a gist", err.Error())
	})

	t.Run("persists the created id and records a push", func(t *testing.T) {
		api := &fakeAPI{}
		engine, store := newTestEngine(t, api)
		require.NoError(t, store.Set(storage.KeyGithubPAT, "token"))

		id, err := engine.CreateGist(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "created-id", id)
		assert.Equal(t, GistDescription, api.createdGist.Description)
		assert.Contains(t, api.createdGist.Files, backup.RemoteFilename)

		stored, _, err := store.Get(storage.KeyGistID)
		require.NoError(t, err)
		assert.Equal(t, "created-id", stored)

		direction, _, err := store.Get(storage.KeyLastSyncDirection)
		require.NoError(t, err)
		assert.Equal(t, DirectionPush, direction)
	})

	t.Run("rejects a response with no id", func(t *testing.T) {
		api := &fakeAPI{createdGist: &gist.Gist{ID: ""}}
		engine, store := newTestEngine(t, api)
		require.NoError(t, store.Set(storage.KeyGithubPAT, "token"))

		_, err := engine.CreateGist(context.Background())
		require.Error(t, err)
		assert.Equal(t, "Failed to create gist: no ID returned", err.Error())
	})
}

func TestSetConfigPartialUpdate(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeAPI{})

	pat := "token"
	gistID := "g1"
	enabled := true
	require.NoError(t, engine.SetConfig(ConfigUpdate{PAT: &pat, GistID: &gistID, Enabled: &enabled}))

	cfg, err := engine.Config()
	require.NoError(t, err)
	assert.Equal(t, "token", cfg.PAT)
	require.NotNil(t, cfg.GistID)
	assert.Equal(t, "g1", *cfg.GistID)
	assert.True(t, cfg.Enabled)

	// Updating one field leaves the rest alone.
	disabled := false
	require.NoError(t, engine.SetConfig(ConfigUpdate{Enabled: &disabled}))
	cfg, err = engine.Config()
	require.NoError(t, err)
	assert.Equal(t, "token", cfg.PAT)
	assert.False(t, cfg.Enabled)

	// Clearing the gist id leaves it null.
	require.NoError(t, engine.SetConfig(ConfigUpdate{ClearGistID: true}))
	cfg, err = engine.Config()
	require.NoError(t, err)
	assert.Nil(t, cfg.GistID)
}
