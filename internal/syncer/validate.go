package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/conorfennell/leetsrs/internal/backup"
	"github.com/conorfennell/leetsrs/internal/gist"
	"github.com/conorfennell/leetsrs/internal/storage"
)

// GistDescription labels gists created by CreateGist.
const GistDescription = "leetsrs data backup"

// PatValidation is the outcome of a credential check.
type PatValidation struct {
	Valid    bool   `json:"valid"`
	Username string `json:"username,omitempty"`
	Error    string `json:"error,omitempty"`
}

// GistValidation is the outcome of a target check.
type GistValidation struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ValidatePAT checks that the credential authenticates and carries the gist
// scope. A blank credential fails without any network call.
func (e *Engine) ValidatePAT(ctx context.Context, pat string) PatValidation {
	if strings.TrimSpace(pat) == "" {
		return PatValidation{Valid: false, Error: "PAT is required"}
	}

	login, err := e.clients(pat).AuthenticatedUser(ctx)
	if err != nil {
		switch {
		case gist.IsUnauthorized(err):
			return PatValidation{Valid: false, Error: "Invalid token"}
		case gist.IsForbidden(err):
			return PatValidation{Valid: false, Error: "Token lacks required permissions (needs gist scope)"}
		default:
			return PatValidation{Valid: false, Error: err.Error()}
		}
	}
	return PatValidation{Valid: true, Username: login}
}

// ValidateGistID checks that the target exists and contains the expected
// payload file.
func (e *Engine) ValidateGistID(ctx context.Context, gistID, pat string) GistValidation {
	if strings.TrimSpace(gistID) == "" {
		return GistValidation{Valid: false, Error: "Gist ID is required"}
	}

	remote, err := e.clients(pat).Get(ctx, gistID)
	if err != nil {
		if gist.IsNotFound(err) {
			return GistValidation{Valid: false, Error: "Gist not found"}
		}
		return GistValidation{Valid: false, Error: err.Error()}
	}
	if _, ok := remote.Files[backup.RemoteFilename]; !ok {
		return GistValidation{Valid: false, Error: fmt.Sprintf("Gist does not contain %s", backup.RemoteFilename)}
	}
	return GistValidation{Valid: true}
}

// CreateGist exports the current local data into a new private gist,
// persists the returned id as the active sync target, and records push
// metadata.
func (e *Engine) CreateGist(ctx context.Context) (string, error) {
	cfg, err := e.Config()
	if err != nil {
		return "", err
	}
	if cfg.PAT == "" {
		return "", errors.New("PAT is required to create a gist")
	}

	content, err := e.backup.Export()
	if err != nil {
		return "", err
	}
	files := map[string]gist.File{backup.RemoteFilename: {Content: content}}
	created, err := e.clients(cfg.PAT).Create(ctx, GistDescription, false, files)
	if err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", errors.New("Failed to create gist: no ID returned")
	}

	if err := e.store.Set(storage.KeyGistID, created.ID); err != nil {
		return "", err
	}
	if _, err := e.recordSync(DirectionPush); err != nil {
		return "", err
	}
	return created.ID, nil
}
