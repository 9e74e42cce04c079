// Package bulk imports cards from a plain-text problem list, one problem
// per line:
//
//	slug | name | id | difficulty
//
// Blank lines and '#' comments are skipped. Difficulty is easy/medium/hard
// or the numeric tier 1-3.
package bulk

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/conorfennell/leetsrs/internal/cards"
	"github.com/conorfennell/leetsrs/internal/domain"
)

// Entry is one parsed problem line.
type Entry struct {
	Slug       string
	Name       string
	LeetCodeID string
	Difficulty int
}

// Result summarizes an import run. Problems already tracked are counted as
// skipped, not errors.
type Result struct {
	Added   int      `json:"added"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// Parse reads problem lines from r.
func Parse(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	var entries []Entry
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, "|")
		if len(parts) != 4 {
			return nil, fmt.Errorf("line %d: expected 4 fields, got %d", lineNo, len(parts))
		}
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if parts[0] == "" {
			return nil, fmt.Errorf("line %d: empty slug", lineNo)
		}
		difficulty, err := parseDifficulty(parts[3])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		entries = append(entries, Entry{
			Slug:       parts[0],
			Name:       parts[1],
			LeetCodeID: parts[2],
			Difficulty: difficulty,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Import parses r and adds each problem through the card repository.
func Import(svc *cards.Service, r io.Reader) (Result, error) {
	entries, err := Parse(r)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for _, entry := range entries {
		_, err := svc.Add(entry.Slug, entry.Name, entry.LeetCodeID, entry.Difficulty)
		switch {
		case err == nil:
			result.Added++
		case errors.Is(err, cards.ErrDuplicateCard):
			result.Skipped++
		default:
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", entry.Slug, err))
		}
	}
	return result, nil
}

func parseDifficulty(raw string) (int, error) {
	switch strings.ToLower(raw) {
	case "easy":
		return domain.DifficultyEasy, nil
	case "medium":
		return domain.DifficultyMedium, nil
	case "hard":
		return domain.DifficultyHard, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < domain.DifficultyEasy || n > domain.DifficultyHard {
		return 0, fmt.Errorf("invalid difficulty %q", raw)
	}
	return n, nil
}
