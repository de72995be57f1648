package offlinequeue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// StorageKey prefixes the queue's record in a Store.
const StorageKey = "judgeboard.offline-queue.v1"

// SessionKey names the record holding one judge's queue for one event.
func SessionKey(eventID, judgeID string) string {
	return StorageKey + "/" + eventID + "/" + judgeID
}

// Store persists one session's whole queue. Load on an empty store returns
// no mutations and no error.
type Store interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Close() error
}

// Encode serializes mutations for a Store.
func Encode(items []Mutation) ([]byte, error) {
	if items == nil {
		items = []Mutation{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("offlinequeue.Encode: %w", err)
	}
	return data, nil
}

// Decode parses a stored queue. Empty or unreadable data yields an empty
// queue; individual malformed items are dropped and counted.
func Decode(data []byte) (items []Mutation, dropped int) {
	if len(data) == 0 {
		return nil, 0
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 1
	}
	for _, r := range raw {
		var m Mutation
		if err := json.Unmarshal(r, &m); err != nil || !m.Valid() {
			dropped++
			continue
		}
		items = append(items, m)
	}
	return items, dropped
}

// MemoryStore keeps the queue in process. Used by tests and when no path is
// configured.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Load(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.data...), nil
}

func (s *MemoryStore) Save(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// FileStore keeps the queue in a single JSON file, replaced atomically on
// every save. The file holds one session.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore { return &FileStore{path: path} }

func (s *FileStore) Load(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FileStore.Load: %w", err)
	}
	return data, nil
}

func (s *FileStore) Save(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("FileStore.Save: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("FileStore.Save: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("FileStore.Save: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("FileStore.Save: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("FileStore.Save: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("FileStore.Save: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

const maxBusyRetries = 5

// SQLiteStore keeps the queue as one row of a key/value table. Consoles for
// different sessions can share a database file as long as each opens it
// under its own key.
type SQLiteStore struct {
	db  *sql.DB
	key string
}

// OpenSQLiteStore opens or creates the database at path and binds the store
// to key, usually a SessionKey. An empty key falls back to StorageKey.
func OpenSQLiteStore(ctx context.Context, path, key string) (*SQLiteStore, error) {
	if key == "" {
		key = StorageKey
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("OpenSQLiteStore: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(2000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("OpenSQLiteStore: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("OpenSQLiteStore: create table: %w", err)
	}
	return &SQLiteStore{db: db, key: key}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, s.key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("SQLiteStore.Load: %w", err)
	}
	return data, nil
}

func (s *SQLiteStore) Save(ctx context.Context, data []byte) error {
	var lastBusyErr error
	for attempt := 0; attempt <= maxBusyRetries; attempt++ {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			s.key, data, time.Now().UnixMilli(),
		)
		if err == nil {
			return nil
		}
		if !isSQLiteBusyError(err) {
			return fmt.Errorf("SQLiteStore.Save: %w", err)
		}
		lastBusyErr = err
		if err := waitForRetry(ctx, attempt); err != nil {
			return err
		}
	}
	return fmt.Errorf("SQLiteStore.Save: database busy after %d attempts: %w", maxBusyRetries+1, lastBusyErr)
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func isSQLiteBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}

func waitForRetry(ctx context.Context, attempt int) error {
	timer := time.NewTimer(time.Duration(attempt+1) * 20 * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
