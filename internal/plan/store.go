package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kristerus/nulalabs/internal/logging"
)

// Store persists plans as one JSON file per plan, named
// {sessionID}-{unix-millis}.json so directory listings sort by time.
type Store struct {
	dir    string
	logger logging.Logger
}

// NewStore builds a store rooted at dir, creating it if needed.
func NewStore(dir string, logger logging.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create plan dir: %w", err)
	}
	return &Store{dir: dir, logger: logging.OrNop(logger)}, nil
}

func (s *Store) fileName(rec Record) string {
	return fmt.Sprintf("%s-%d.json", sanitizeSession(rec.SessionID), rec.Timestamp.UnixMilli())
}

func sanitizeSession(sessionID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, sessionID)
}

// Save writes one plan record.
func (s *Store) Save(rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	path := filepath.Join(s.dir, s.fileName(rec))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write plan: %w", err)
	}
	s.logger.Debug("plan: saved %s", path)
	return nil
}

// LoadAll returns every plan for a session, oldest first. Unreadable files
// are skipped with a warning.
func (s *Store) LoadAll(sessionID string) ([]Record, error) {
	prefix := sanitizeSession(sessionID) + "-"
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read plan dir: %w", err)
	}

	var records []Record
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			s.logger.Warn("plan: reading %s: %v", name, err)
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			s.logger.Warn("plan: skipping corrupt file %s: %v", name, err)
			continue
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	return records, nil
}

// Cleanup removes plan files older than maxAge and returns how many were
// deleted.
func (s *Store) Cleanup(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read plan dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			s.logger.Warn("plan: removing %s: %v", entry.Name(), err)
			continue
		}
		removed++
	}
	return removed, nil
}
