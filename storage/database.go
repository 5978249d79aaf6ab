package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"stratizen/logging"
)

const (
	// DefaultDBFileName is the SQLite filename under app data dir.
	DefaultDBFileName = "messages.db"
	// DefaultMaintenanceInterval controls WAL truncation and send token pruning.
	DefaultMaintenanceInterval = time.Hour
	// DefaultSendTokenRetention bounds how long send tokens are kept for dedup lookups.
	DefaultSendTokenRetention = 24 * time.Hour
)

var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS messages (
  id        INTEGER PRIMARY KEY AUTOINCREMENT,
  sender    TEXT NOT NULL,
  receiver  TEXT NOT NULL,
  content   TEXT NOT NULL,
  timestamp INTEGER NOT NULL
);
`,
	`
CREATE INDEX IF NOT EXISTS idx_messages_pair_time
ON messages (sender, receiver, timestamp, id);
`,
	`
CREATE INDEX IF NOT EXISTS idx_messages_receiver_time
ON messages (receiver, timestamp, id);
`,
	`
CREATE TABLE IF NOT EXISTS read_markers (
  conversation_id     TEXT NOT NULL,
  user_id             TEXT NOT NULL,
  last_read_timestamp INTEGER NOT NULL,
  PRIMARY KEY (conversation_id, user_id)
);
`,
	`
CREATE TABLE IF NOT EXISTS send_tokens (
  token      TEXT PRIMARY KEY,
  message_id INTEGER NOT NULL REFERENCES messages(id),
  created_at INTEGER NOT NULL
);
`,
	`
CREATE INDEX IF NOT EXISTS idx_send_tokens_created_at
ON send_tokens (created_at);
`,
	`
ALTER TABLE read_markers ADD COLUMN last_read_message_id INTEGER NOT NULL DEFAULT 0;
`,
}

// Store is a thin wrapper around a SQLite connection.
type Store struct {
	db *sql.DB

	maintenanceInterval time.Duration
	sendTokenRetention  time.Duration
	maintenanceStop     chan struct{}
	maintenanceWG       sync.WaitGroup
	closeOnce           sync.Once
}

// Option adjusts Store behavior at open time.
type Option func(*Store)

// WithMaintenanceInterval sets how often the WAL is truncated and stale send tokens are
// pruned. Zero or negative disables the background loop.
func WithMaintenanceInterval(interval time.Duration) Option {
	return func(s *Store) {
		s.maintenanceInterval = interval
	}
}

// WithSendTokenRetention sets how long send tokens survive the maintenance prune.
func WithSendTokenRetention(retention time.Duration) Option {
	return func(s *Store) {
		s.sendTokenRetention = retention
	}
}

// Open opens (or creates) the message database under the given data directory and runs migrations.
func Open(dataDir string, opts ...Option) (*Store, string, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, "", fmt.Errorf("create storage directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DefaultDBFileName)
	store, err := OpenPath(dbPath, opts...)
	if err != nil {
		return nil, "", err
	}

	return store, dbPath, nil
}

// OpenPath opens SQLite at an explicit path and runs schema migrations.
func OpenPath(dbPath string, opts ...Option) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", filepath.ToSlash(dbPath))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	store := &Store{
		db:                  db,
		maintenanceInterval: DefaultMaintenanceInterval,
		sendTokenRetention:  DefaultSendTokenRetention,
		maintenanceStop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(store)
	}

	if err := store.enableWALMode(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.checkpointWAL(); err != nil {
		_ = db.Close()
		return nil, err
	}
	store.startMaintenanceLoop()

	return store, nil
}

// Close stops background maintenance and closes the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	var closeErr error
	s.closeOnce.Do(func() {
		if s.maintenanceStop != nil {
			close(s.maintenanceStop)
			s.maintenanceWG.Wait()
		}
		closeErr = s.db.Close()
	})
	return closeErr
}

func (s *Store) applyMigrations() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version >= len(migrations) {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i := version; i < len(migrations); i++ {
		if _, err := tx.Exec(migrations[i]); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d;", i+1)); err != nil {
			return fmt.Errorf("set schema version %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration transaction: %w", err)
	}

	return nil
}

func (s *Store) enableWALMode() error {
	var journalMode string
	if err := s.db.QueryRow("PRAGMA journal_mode=WAL;").Scan(&journalMode); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	if !strings.EqualFold(journalMode, "wal") {
		return fmt.Errorf("enable WAL mode: unexpected journal mode %q", journalMode)
	}
	return nil
}

func (s *Store) checkpointWAL() error {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE);"); err != nil {
		return fmt.Errorf("wal checkpoint truncate: %w", err)
	}
	return nil
}

func (s *Store) runMaintenance() {
	logger := logging.L().With().Str(logging.FieldComponent, "storage").Logger()

	if err := s.checkpointWAL(); err != nil {
		logger.Warn().Err(err).Msg("wal checkpoint failed")
	}
	if s.sendTokenRetention <= 0 {
		return
	}

	cutoff := nowUnixMilli() - s.sendTokenRetention.Milliseconds()
	pruned, err := s.PruneSendTokens(context.Background(), cutoff)
	if err != nil {
		logger.Warn().Err(err).Msg("send token prune failed")
		return
	}
	if pruned > 0 {
		logger.Debug().Int64(logging.FieldCount, pruned).Msg("pruned expired send tokens")
	}
}

func (s *Store) startMaintenanceLoop() {
	interval := s.maintenanceInterval
	if interval <= 0 || s.maintenanceStop == nil {
		return
	}

	s.maintenanceWG.Add(1)
	go func() {
		defer s.maintenanceWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.runMaintenance()
			case <-s.maintenanceStop:
				return
			}
		}
	}()
}
