package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/penguin-run/penguin/pkg/perrors"
)

// Store persists Session objects (spec.md §4.6/§6.2). Save/Load/List/Delete
// must never let one corrupt file fail an unrelated operation.
type Store interface {
	Save(s *Session) error
	Load(id string) (*Session, error)
	List() ([]Summary, error)
	Delete(id string) error
}

// FileStore persists sessions as one JSON file per session under
// <dir>/<id>.json, grounded on goclaw's internal/sessions/manager.go
// atomic-write pattern (temp file + fsync + rename).
type FileStore struct {
	dir    string
	logger *slog.Logger
}

// NewFileStore creates a FileStore rooted at dir, creating it if absent.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, perrors.NewPersistenceError("session.FileStore", "creating session directory", err)
	}
	return &FileStore{dir: dir, logger: slog.Default()}, nil
}

func (s *FileStore) pathFor(id string) string {
	return filepath.Join(s.dir, sanitizeID(id)+".json")
}

func sanitizeID(id string) string {
	return strings.ReplaceAll(id, string(filepath.Separator), "_")
}

// Save atomically writes sess to disk (write-temp-then-rename, spec.md §4.6).
func (s *FileStore) Save(sess *Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return perrors.NewPersistenceError("session.FileStore", "marshaling session", err)
	}

	tmp, err := os.CreateTemp(s.dir, "session-*.tmp")
	if err != nil {
		return perrors.NewPersistenceError("session.FileStore", "creating temp file", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return perrors.NewPersistenceError("session.FileStore", "writing temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return perrors.NewPersistenceError("session.FileStore", "syncing temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return perrors.NewPersistenceError("session.FileStore", "closing temp file", err)
	}

	if err := os.Rename(tmpPath, s.pathFor(sess.ID)); err != nil {
		return perrors.NewPersistenceError("session.FileStore", "renaming into place", err)
	}
	cleanup = false
	return nil
}

// Load reads and decodes the session file for id.
func (s *FileStore) Load(id string) (*Session, error) {
	data, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		return nil, perrors.NewPersistenceError("session.FileStore", fmt.Sprintf("loading session %q", id), err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, perrors.NewPersistenceError("session.FileStore", fmt.Sprintf("decoding session %q", id), err)
	}
	return &sess, nil
}

// summaryView decodes only the fields needed for a Summary, leaving
// Messages as raw JSON so List never fully materializes message bodies.
type summaryView struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	LastActiveAt string            `json:"last_active_at"`
	Messages     []json.RawMessage `json:"messages"`
}

// List returns a Summary per session file, skipping (and logging) any file
// that fails to decode rather than failing the whole call (spec.md §4.6:
// "Corrupt files must fail only the affected session").
func (s *FileStore) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, perrors.NewPersistenceError("session.FileStore", "reading session directory", err)
	}

	var summaries []Summary
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.logger.Warn("session.FileStore: skipping unreadable file", "file", entry.Name(), "error", err)
			continue
		}
		var v summaryView
		if err := json.Unmarshal(data, &v); err != nil {
			s.logger.Warn("session.FileStore: skipping corrupt session file", "file", entry.Name(), "error", err)
			continue
		}
		lastActive, _ := time.Parse(time.RFC3339Nano, v.LastActiveAt)
		summaries = append(summaries, Summary{
			ID:           v.ID,
			Title:        v.Title,
			MessageCount: len(v.Messages),
			LastActiveAt: lastActive,
		})
	}
	return summaries, nil
}

// Delete removes the session file for id. Deleting an absent session is
// not an error.
func (s *FileStore) Delete(id string) error {
	if err := os.Remove(s.pathFor(id)); err != nil && !os.IsNotExist(err) {
		return perrors.NewPersistenceError("session.FileStore", fmt.Sprintf("deleting session %q", id), err)
	}
	return nil
}
