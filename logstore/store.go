// Package logstore is the reference implementation of the recorder.Log
// interface: it persists received messages to a SQLite database, the same
// storage backend and DSN/pragma idiom the teacher repo uses for its own
// telemetry store.
package logstore

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/jki757/topicrecorder/recorder"

	_ "modernc.org/sqlite"
)

// Store persists recorder messages to a SQLite database.
type Store struct {
	logger *slog.Logger

	mu sync.Mutex
	db *sql.DB
}

// New constructs a Store. It does not open a database until Open is
// called — recorder.Recorder creates a fresh Store per Start call via a
// NewLog factory.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{logger: logger}
}

// Open creates parent directories as needed and opens (or creates) the
// SQLite database at path. It returns false — never an error, per the
// Log interface's "0/false means failure" contract — if any step fails.
func (s *Store) Open(path string, _ recorder.OpenMode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.logger.Error("logstore: create directory failed", "path", path, "error", err)
			return false
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		s.logger.Error("logstore: open sqlite failed", "path", path, "error", err)
		return false
	}
	db.SetMaxOpenConns(1)

	const schema = `CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts_utc_ns INTEGER NOT NULL,
		topic TEXT NOT NULL,
		type_name TEXT NOT NULL,
		payload BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_ts ON messages(ts_utc_ns);
	CREATE INDEX IF NOT EXISTS idx_messages_topic ON messages(topic);`

	if _, err := db.Exec(schema); err != nil {
		s.logger.Error("logstore: init schema failed", "path", path, "error", err)
		_ = db.Close()
		return false
	}

	s.db = db
	s.logger.Info("logstore: opened", "path", path)
	return true
}

// InsertMessage appends one received message. It returns false, and logs
// the underlying error, on any failure — recording is best-effort per
// message and the recorder never retries.
func (s *Store) InsertMessage(tsUTCNs int64, topic, typeName string, payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		s.logger.Warn("logstore: insert attempted before open")
		return false
	}

	_, err := s.db.Exec(
		`INSERT INTO messages (ts_utc_ns, topic, type_name, payload) VALUES (?, ?, ?, ?);`,
		tsUTCNs, topic, typeName, payload,
	)
	if err != nil {
		s.logger.Error("logstore: insert message failed", "topic", topic, "error", err)
		return false
	}
	return true
}

// Close releases the underlying database handle. Store satisfies
// io.Closer so recorder.Recorder's Stop can close it when dropping the
// log, even though the Log interface itself has no Close method.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
