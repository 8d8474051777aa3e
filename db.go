package main

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"
)

// ErrDuplicateMessage is returned by Append when a message id has already
// been logged. Ingestion treats it as a skip, not a failure.
var ErrDuplicateMessage = errors.New("duplicate message id")

// MessageStore is the append-only message log. It owns the SQLite handle;
// construct one in main and pass it to the router and builders. Writes are
// serialized against reads so concurrent requests see consistent snapshots.
type MessageStore struct {
	mu sync.RWMutex
	db *sql.DB
}

func OpenMessageStore(path string) (*MessageStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		message_id TEXT PRIMARY KEY,
		author_id  TEXT NOT NULL,
		text       TEXT NOT NULL DEFAULT '',
		channel_id TEXT NOT NULL,
		posted_at  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_author ON messages(author_id);
	CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id);
	CREATE INDEX IF NOT EXISTS idx_messages_posted_at ON messages(posted_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &MessageStore{db: db}, nil
}

func (s *MessageStore) Close() error {
	return s.db.Close()
}

func (s *MessageStore) Append(rec LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO messages (message_id, author_id, text, channel_id, posted_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.MessageID, rec.AuthorID, rec.Text, rec.ChannelID, rec.Timestamp,
	)
	if isDuplicateErr(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateMessage, rec.MessageID)
	}
	return err
}

// isDuplicateErr reports whether err is a key collision on message_id. Other
// constraint classes (NOT NULL, CHECK) surface unchanged.
func isDuplicateErr(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// where builds the parameterized WHERE clause for a filter. Field values are
// always bound, never interpolated.
func (f RecordFilter) where() (string, []any) {
	var conds []string
	var args []any
	if f.AuthorID != "" {
		conds = append(conds, "author_id = ?")
		args = append(args, f.AuthorID)
	}
	if f.ChannelID != "" {
		conds = append(conds, "channel_id = ?")
		args = append(args, f.ChannelID)
	}
	if !f.From.IsZero() {
		conds = append(conds, "posted_at >= ?")
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		conds = append(conds, "posted_at < ?")
		args = append(args, f.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// RecordIter is a lazy, non-restartable cursor over matching records in
// insertion order. It holds the store's read lock until Close.
type RecordIter struct {
	rows    *sql.Rows
	err     error
	release func()
	closed  bool
}

// Query returns a cursor over matching records. Callers must Close it.
func (s *MessageStore) Query(f RecordFilter) (*RecordIter, error) {
	s.mu.RLock()

	clause, args := f.where()
	rows, err := s.db.Query(
		`SELECT message_id, author_id, text, channel_id, posted_at FROM messages`+clause+` ORDER BY rowid`,
		args...,
	)
	if err != nil {
		s.mu.RUnlock()
		return nil, err
	}
	return &RecordIter{rows: rows, release: s.mu.RUnlock}, nil
}

func (it *RecordIter) Next() (LogRecord, bool) {
	if it.closed || !it.rows.Next() {
		return LogRecord{}, false
	}
	var rec LogRecord
	if err := it.rows.Scan(&rec.MessageID, &rec.AuthorID, &rec.Text, &rec.ChannelID, &rec.Timestamp); err != nil {
		it.err = err
		return LogRecord{}, false
	}
	return rec, true
}

func (it *RecordIter) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.rows.Err()
}

func (it *RecordIter) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	err := it.rows.Close()
	it.release()
	return err
}

// AuthorsInOrder returns distinct author ids in order of first appearance
// within the filtered record set.
func (s *MessageStore) AuthorsInOrder(f RecordFilter) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clause, args := f.where()
	rows, err := s.db.Query(`SELECT author_id FROM messages`+clause+` ORDER BY rowid`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var authors []string
	for rows.Next() {
		var author string
		if err := rows.Scan(&author); err != nil {
			return nil, err
		}
		if author == "" || seen[author] {
			continue
		}
		seen[author] = true
		authors = append(authors, author)
	}
	return authors, rows.Err()
}

func (s *MessageStore) CountMessages(f RecordFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clause, args := f.where()
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages`+clause, args...).Scan(&count)
	return count, err
}

// Clear deletes every record. Idempotent; callers must have already passed
// the admin check.
func (s *MessageStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM messages`)
	return err
}
