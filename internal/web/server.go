// Package web is the command boundary: every operation is a typed JSON
// message posted to a single endpoint and dispatched on its type tag.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/conorfennell/leetsrs/internal/backup"
	"github.com/conorfennell/leetsrs/internal/bulk"
	"github.com/conorfennell/leetsrs/internal/cards"
	"github.com/conorfennell/leetsrs/internal/fsrs"
	"github.com/conorfennell/leetsrs/internal/notes"
	"github.com/conorfennell/leetsrs/internal/settings"
	"github.com/conorfennell/leetsrs/internal/stats"
	"github.com/conorfennell/leetsrs/internal/syncer"
)

// Server holds the dependencies for the HTTP message boundary.
type Server struct {
	router   *http.ServeMux
	cards    *cards.Service
	notes    *notes.Service
	stats    *stats.Service
	settings *settings.Service
	backup   *backup.Service
	engine   *syncer.Engine
	mirror   *backup.Mirror // nil when no mirror is configured
}

// NewServer creates and configures a new server. mirror may be nil.
func NewServer(
	cardsSvc *cards.Service,
	notesSvc *notes.Service,
	statsSvc *stats.Service,
	settingsSvc *settings.Service,
	backupSvc *backup.Service,
	engine *syncer.Engine,
	mirror *backup.Mirror,
) *Server {
	s := &Server{
		router:   http.NewServeMux(),
		cards:    cardsSvc,
		notes:    notesSvc,
		stats:    statsSvc,
		settings: settingsSvc,
		backup:   backupSvc,
		engine:   engine,
		mirror:   mirror,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.HandleFunc("/api/message", s.handleMessage())
}

// request is the union of every message's arguments; the Type tag selects
// which fields are read.
type request struct {
	Type       string          `json:"type"`
	Slug       string          `json:"slug"`
	Name       string          `json:"name"`
	LeetCodeID string          `json:"leetcodeId"`
	Difficulty int             `json:"difficulty"`
	Days       int             `json:"days"`
	Paused     bool            `json:"paused"`
	Rating     int             `json:"rating"`
	CardID     string          `json:"cardId"`
	Text       string          `json:"text"`
	Value      json.RawMessage `json:"value"`
	JSONData   string          `json:"jsonData"`
	Config     json.RawMessage `json:"config"`
	Pat        string          `json:"pat"`
	GistID     string          `json:"gistId"`
	List       string          `json:"list"`
}

func (s *Server) handleMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("malformed request: %v", err))
			return
		}

		data, err := s.dispatch(r, &req)
		if err != nil {
			status := statusFor(err)
			if status == http.StatusInternalServerError {
				slog.Error("message failed", "type", req.Type, "error", err)
			}
			writeError(w, status, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": data})
	}
}

var errUnknownMessage = errors.New("unknown message type")

func (s *Server) dispatch(r *http.Request, req *request) (any, error) {
	ctx := r.Context()

	switch req.Type {
	case "ping":
		return "pong", nil

	// Cards
	case "addCard":
		return s.cards.Add(req.Slug, req.Name, req.LeetCodeID, req.Difficulty)
	case "getAllCards":
		return s.cards.All()
	case "removeCard":
		return nil, s.cards.Remove(req.Slug)
	case "delayCard":
		return s.cards.Delay(req.Slug, req.Days)
	case "setPauseStatus":
		return s.cards.SetPaused(req.Slug, req.Paused)
	case "rateCard":
		return s.cards.Rate(req.Slug, req.Name, req.LeetCodeID, req.Difficulty, fsrs.Rating(req.Rating))
	case "getReviewQueue":
		return s.cards.ReviewQueue()

	// Stats
	case "getTodayStats":
		return s.stats.Today()
	case "getCardStateStats":
		all, err := s.cards.All()
		if err != nil {
			return nil, err
		}
		return stats.CardStateCounts(all), nil
	case "getAllStats":
		return s.stats.All()
	case "getLastNDaysStats":
		return s.stats.LastNDays(req.Days)
	case "getNextNDaysStats":
		all, err := s.cards.All()
		if err != nil {
			return nil, err
		}
		return s.stats.NextNDays(all, req.Days), nil

	// Notes
	case "getNote":
		note, ok, err := s.notes.Get(req.CardID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return note, nil
	case "saveNote":
		return s.notes.Save(req.CardID, req.Text)
	case "deleteNote":
		return nil, s.notes.Delete(req.CardID)

	// Settings
	case "getMaxNewCardsPerDay":
		return s.settings.MaxNewCardsPerDay()
	case "setMaxNewCardsPerDay":
		var value int
		if err := json.Unmarshal(req.Value, &value); err != nil {
			return nil, fmt.Errorf("malformed value: %w", err)
		}
		return nil, s.settings.SetMaxNewCardsPerDay(value)
	case "getAnimationsEnabled":
		return s.settings.AnimationsEnabled()
	case "setAnimationsEnabled":
		var value bool
		if err := json.Unmarshal(req.Value, &value); err != nil {
			return nil, fmt.Errorf("malformed value: %w", err)
		}
		return nil, s.settings.SetAnimationsEnabled(value)
	case "getTheme":
		return s.settings.Theme()
	case "setTheme":
		var value string
		if err := json.Unmarshal(req.Value, &value); err != nil {
			return nil, fmt.Errorf("malformed value: %w", err)
		}
		return nil, s.settings.SetTheme(value)

	// Data
	case "exportData":
		content, err := s.backup.Export()
		if err != nil {
			return nil, err
		}
		return map[string]string{
			"filename": s.backup.BackupFilename(),
			"content":  content,
		}, nil
	case "importData":
		return nil, s.backup.Import(req.JSONData)
	case "resetAllData":
		return nil, s.backup.Reset()
	case "importProblemList":
		return bulk.Import(s.cards, strings.NewReader(req.List))
	case "mirrorBackup":
		if s.mirror == nil {
			return nil, errors.New("backup mirror is not configured")
		}
		committed, err := s.backup.MirrorBackup(s.mirror)
		if err != nil {
			return nil, err
		}
		return map[string]bool{"committed": committed}, nil

	// Gist sync
	case "getGistSyncConfig":
		return s.engine.Config()
	case "setGistSyncConfig":
		update, err := parseConfigUpdate(req.Config)
		if err != nil {
			return nil, err
		}
		return nil, s.engine.SetConfig(update)
	case "getGistSyncStatus":
		return s.engine.Status()
	case "triggerGistSync":
		return s.engine.Sync(ctx), nil
	case "createNewGist":
		gistID, err := s.engine.CreateGist(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]string{"gistId": gistID}, nil
	case "validatePat":
		return s.engine.ValidatePAT(ctx, req.Pat), nil
	case "validateGistId":
		return s.engine.ValidateGistID(ctx, req.GistID, req.Pat), nil

	default:
		return nil, fmt.Errorf("%w: %q", errUnknownMessage, req.Type)
	}
}

// parseConfigUpdate distinguishes `"gistId": null` (clear the target) from
// an absent gistId field (leave it alone).
func parseConfigUpdate(raw json.RawMessage) (syncer.ConfigUpdate, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return syncer.ConfigUpdate{}, fmt.Errorf("malformed config: %w", err)
	}

	var update syncer.ConfigUpdate
	if v, ok := fields["pat"]; ok {
		var pat string
		if err := json.Unmarshal(v, &pat); err != nil {
			return syncer.ConfigUpdate{}, fmt.Errorf("malformed config: %w", err)
		}
		update.PAT = &pat
	}
	if v, ok := fields["gistId"]; ok {
		if string(v) == "null" {
			update.ClearGistID = true
		} else {
			var gistID string
			if err := json.Unmarshal(v, &gistID); err != nil {
				return syncer.ConfigUpdate{}, fmt.Errorf("malformed config: %w", err)
			}
			update.GistID = &gistID
		}
	}
	if v, ok := fields["enabled"]; ok {
		var enabled bool
		if err := json.Unmarshal(v, &enabled); err != nil {
			return syncer.ConfigUpdate{}, fmt.Errorf("malformed config: %w", err)
		}
		update.Enabled = &enabled
	}
	return update, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, cards.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, cards.ErrDuplicateCard):
		return http.StatusConflict
	case errors.Is(err, cards.ErrInvalidRating),
		errors.Is(err, cards.ErrInvalidDelay),
		errors.Is(err, notes.ErrTooLong),
		errors.Is(err, settings.ErrOutOfRange),
		errors.Is(err, backup.ErrInvalidFormat),
		errors.Is(err, backup.ErrUnsupportedVersion),
		errors.Is(err, errUnknownMessage):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
