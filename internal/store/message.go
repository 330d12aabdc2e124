package store

import (
	"database/sql"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxContentLen is the maximum message length in characters.
const MaxContentLen = 1000

// Append validates content, assigns identity and timestamp, and inserts a
// row. The insert is a single statement, so there is never a partial row.
func (db *DB) Append(content string) (*Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, &ValidationError{Reason: "content is empty"}
	}
	if utf8.RuneCountInString(content) > MaxContentLen {
		return nil, &ValidationError{Reason: "content exceeds 1000 characters"}
	}

	m := &Message{
		ID:         uuid.New().String(),
		Content:    content,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		OriginRepo: LocalOrigin,
	}
	_, err := db.Exec(`
		INSERT INTO messages (id, content, timestamp, origin_repo)
		VALUES (?, ?, ?, ?)`,
		m.ID, m.Content, m.Timestamp, m.OriginRepo)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListAll returns every locally known message ordered by timestamp
// ascending, ties broken by id.
func (db *DB) ListAll() ([]Message, error) {
	rows, err := db.Query(`
		SELECT id, content, timestamp, origin_repo, commit_hash
		FROM messages
		ORDER BY timestamp ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		var hash sql.NullString
		if err := rows.Scan(&m.ID, &m.Content, &m.Timestamp, &m.OriginRepo, &hash); err != nil {
			return nil, err
		}
		m.CommitHash = hash.String
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// GetByID returns a message by id, or nil if absent.
func (db *DB) GetByID(id string) (*Message, error) {
	var m Message
	var hash sql.NullString
	err := db.QueryRow(`
		SELECT id, content, timestamp, origin_repo, commit_hash
		FROM messages WHERE id = ?`, id).
		Scan(&m.ID, &m.Content, &m.Timestamp, &m.OriginRepo, &hash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.CommitHash = hash.String
	return &m, nil
}

// SetCommitHash records the mirror commit that introduced a message's file.
// Provenance only; never consulted for ordering or identity.
func (db *DB) SetCommitHash(id, hash string) error {
	_, err := db.Exec(`UPDATE messages SET commit_hash = ? WHERE id = ?`, hash, id)
	return err
}

// Delete removes a message row. Used to unwind an append whose mirror
// write failed, so a half-posted message is never visible through reads.
func (db *DB) Delete(id string) error {
	_, err := db.Exec(`DELETE FROM messages WHERE id = ?`, id)
	return err
}

// Uncommitted returns messages that have no commit hash yet, oldest first.
// The pusher uses this to restage files after a failed commit or push.
func (db *DB) Uncommitted() ([]Message, error) {
	rows, err := db.Query(`
		SELECT id, content, timestamp, origin_repo
		FROM messages
		WHERE commit_hash IS NULL
		ORDER BY timestamp ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Content, &m.Timestamp, &m.OriginRepo); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ComputeStats returns store statistics for the stats command.
func (db *DB) ComputeStats() (*Stats, error) {
	s := &Stats{}
	if err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&s.TotalMessages); err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().Add(-24 * time.Hour).Format(time.RFC3339)
	if err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE timestamp >= ?`, cutoff).
		Scan(&s.Last24hCount); err != nil {
		return nil, err
	}

	var first, last sql.NullString
	if err := db.QueryRow(`SELECT MIN(timestamp), MAX(timestamp) FROM messages`).
		Scan(&first, &last); err != nil {
		return nil, err
	}
	s.FirstTimestamp = first.String
	s.LastTimestamp = last.String
	return s, nil
}
