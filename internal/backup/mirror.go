package backup

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/conorfennell/leetsrs/internal/storage"
)

// Mirror keeps a git-versioned history of backup snapshots: every changed
// export becomes one commit of the backup file, optionally pushed to a
// configured remote.
type Mirror struct {
	path      string
	remoteURL string
}

// NewMirror returns a mirror rooted at path. remoteURL may be empty, in
// which case commits stay local.
func NewMirror(path, remoteURL string) *Mirror {
	return &Mirror{path: path, remoteURL: remoteURL}
}

// Write commits content as the backup file. The repository is initialized
// on first use and pushed when a remote is configured.
func (m *Mirror) Write(content string, when time.Time) error {
	repo, err := m.openOrInit()
	if err != nil {
		return err
	}

	target := filepath.Join(m.path, RemoteFilename)
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write backup file: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree for mirror at %s: %w", m.path, err)
	}
	if _, err := worktree.Add(RemoteFilename); err != nil {
		return fmt.Errorf("failed to stage backup file: %w", err)
	}

	status, err := worktree.Status()
	if err != nil {
		return fmt.Errorf("failed to read mirror status: %w", err)
	}
	if status.IsClean() {
		return nil
	}

	message := fmt.Sprintf("backup %s", when.UTC().Format(time.RFC3339))
	if _, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "leetsrs",
			Email: "leetsrs@localhost",
			When:  when,
		},
	}); err != nil {
		return fmt.Errorf("failed to commit backup: %w", err)
	}

	if m.remoteURL == "" {
		return nil
	}
	if err := repo.Push(&git.PushOptions{RemoteName: "origin"}); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to push mirror to %s: %w", m.remoteURL, err)
	}
	return nil
}

func (m *Mirror) openOrInit() (*git.Repository, error) {
	repo, err := git.PlainOpen(m.path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		if mkErr := os.MkdirAll(m.path, 0o755); mkErr != nil {
			return nil, fmt.Errorf("failed to create mirror directory: %w", mkErr)
		}
		slog.Info("initializing backup mirror", "path", m.path)
		repo, err = git.PlainInit(m.path, false)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror at %s: %w", m.path, err)
	}

	if m.remoteURL != "" {
		_, err := repo.CreateRemote(&gitconfig.RemoteConfig{
			Name: "origin",
			URLs: []string{m.remoteURL},
		})
		if err != nil && !errors.Is(err, git.ErrRemoteExists) {
			return nil, fmt.Errorf("failed to configure mirror remote: %w", err)
		}
	}
	return repo, nil
}

// MirrorBackup exports the dataset and commits it to the mirror, skipping
// the commit when the payload checksum is unchanged since the last mirrored
// snapshot. It reports whether a commit was made.
func (s *Service) MirrorBackup(m *Mirror) (bool, error) {
	content, err := s.Export()
	if err != nil {
		return false, err
	}
	checksum, err := SnapshotChecksum(content)
	if err != nil {
		return false, err
	}
	if last, ok, err := s.store.Get(storage.KeyMirrorChecksum); err != nil {
		return false, err
	} else if ok && last == checksum {
		return false, nil
	}

	if err := m.Write(content, s.now()); err != nil {
		return false, err
	}
	if err := s.store.Set(storage.KeyMirrorChecksum, checksum); err != nil {
		return false, err
	}
	return true, nil
}
