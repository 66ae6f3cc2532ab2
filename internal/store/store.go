// Package store keeps the engine's on-disk state: book snapshots, runtime
// status, the event journal and the catalog backends.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"spread-trading/internal/book"
	"spread-trading/internal/events"
)

type RuntimeStatus struct {
	Mode        string                 `json:"mode"`
	InstanceID  string                 `json:"instance_id"`
	PID         int                    `json:"pid"`
	State       string                 `json:"state"`
	StartedAt   time.Time              `json:"started_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	Passes      int64                  `json:"passes"`
	LastPassAt  time.Time              `json:"last_pass_at,omitempty"`
	LastPassMs  int64                  `json:"last_pass_ms,omitempty"`
	AssetErrors map[string]string      `json:"asset_errors,omitempty"`
	Counts      map[string]book.Counts `json:"counts,omitempty"`
	LastError   string                 `json:"last_error,omitempty"`
}

type Store struct {
	root string
	log  *zap.SugaredLogger

	mu        sync.Mutex
	journalMu sync.Mutex
}

func New(root string, log *zap.SugaredLogger) (*Store, error) {
	if root == "" {
		return nil, errors.New("state dir required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Store{root: root, log: log}, nil
}

func (s *Store) Root() string { return s.root }

func (s *Store) SaveBook(snap book.Snapshot) error {
	if snap.TakenAt.IsZero() {
		snap.TakenAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSONAtomic(s.bookPath(), snap)
}

// LoadBook returns false when no snapshot has been written yet.
func (s *Store) LoadBook() (book.Snapshot, bool, error) {
	var snap book.Snapshot
	ok, err := readJSON(s.bookPath(), &snap)
	if err != nil || !ok {
		return book.Snapshot{}, ok, err
	}
	if snap.Assets == nil {
		snap.Assets = make(map[string]book.AssetSnapshot)
	}
	return snap, true, nil
}

func (s *Store) SaveRuntimeStatus(status RuntimeStatus) error {
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSONAtomic(s.runtimeStatusPath(), status)
}

func (s *Store) LoadRuntimeStatus() (RuntimeStatus, bool, error) {
	var status RuntimeStatus
	ok, err := readJSON(s.runtimeStatusPath(), &status)
	if err != nil || !ok {
		return RuntimeStatus{}, ok, err
	}
	return status, true, nil
}

// Publish appends the event to a per-day JSONL journal under events/.
func (s *Store) Publish(_ context.Context, ev events.Event) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	s.journalMu.Lock()
	defer s.journalMu.Unlock()

	dir := filepath.Join(s.root, "events")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, ev.Time.UTC().Format("2006-01-02")+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

func (s *Store) bookPath() string {
	return filepath.Join(s.root, "book.json")
}

func (s *Store) runtimeStatusPath() string {
	return filepath.Join(s.root, "runtime_status.json")
}

func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return false, errors.New(filepath.Base(path) + " is empty")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, append(data, '\n'), s.log)
}

func writeFileAtomic(path string, data []byte, log *zap.SugaredLogger) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	syncDir(dir, path, log)
	return nil
}

// syncDir makes the rename durable where the platform allows it.
func syncDir(dir, path string, log *zap.SugaredLogger) {
	d, err := os.Open(dir)
	if err != nil {
		log.Warnw("store_dir_fsync_skipped", "dir", dir, "target", path, "err", err)
		return
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		log.Warnw("store_dir_fsync_failed", "dir", dir, "target", path, "err", err)
	}
}
