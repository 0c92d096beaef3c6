package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fablegate/fable/pkg/state"
)

// FileStore implements Store on the local filesystem. Each session is a
// JSON document under <dataDir>/sessions, and the active-session pointer
// is a single small file next to them.
type FileStore struct {
	dataDir string
	logger  *slog.Logger
}

var _ Store = (*FileStore)(nil)

const (
	sessionsDirName   = "sessions"
	activePointerName = "active_session"
)

// NewFileStore creates a filesystem store rooted at dataDir, creating the
// directory layout if needed.
func NewFileStore(dataDir string, logger *slog.Logger) (*FileStore, error) {
	if dataDir == "" {
		dataDir = "./data"
	}
	if err := os.MkdirAll(filepath.Join(dataDir, sessionsDirName), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileStore{dataDir: dataDir, logger: logger}, nil
}

func (f *FileStore) Ping(ctx context.Context) error {
	if _, err := os.Stat(f.dataDir); err != nil {
		return fmt.Errorf("data directory unavailable: %w", err)
	}
	return nil
}

func (f *FileStore) Close() error {
	return nil
}

func (f *FileStore) sessionPath(id string) string {
	return filepath.Join(f.dataDir, sessionsDirName, id+".json")
}

func (f *FileStore) SaveSession(ctx context.Context, s *state.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// Write-then-rename so a crash mid-write never leaves a truncated
	// session file behind.
	path := f.sessionPath(s.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

func (f *FileStore) LoadSessions(ctx context.Context) (map[string]*state.Session, error) {
	sessionsDir := filepath.Join(f.dataDir, sessionsDirName)
	entries, err := os.ReadDir(sessionsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*state.Session{}, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	sessions := make(map[string]*state.Session)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(sessionsDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			f.logger.Warn("Failed to read session file", "path", path, "error", err)
			continue
		}
		var s state.Session
		if err := json.Unmarshal(data, &s); err != nil {
			f.logger.Warn("Skipping corrupt session file", "path", path, "error", err)
			continue
		}
		if s.ID == "" {
			s.ID = strings.TrimSuffix(entry.Name(), ".json")
		}
		sessions[s.ID] = &s
	}
	return sessions, nil
}

func (f *FileStore) DeleteSession(ctx context.Context, id string) error {
	if err := os.Remove(f.sessionPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

func (f *FileStore) SaveActiveID(ctx context.Context, id string) error {
	path := filepath.Join(f.dataDir, activePointerName)
	if id == "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to clear active pointer: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(path, []byte(id), 0o644); err != nil {
		return fmt.Errorf("failed to write active pointer: %w", err)
	}
	return nil
}

func (f *FileStore) LoadActiveID(ctx context.Context) (string, error) {
	data, err := os.ReadFile(filepath.Join(f.dataDir, activePointerName))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read active pointer: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
