// Package history persists scrape sessions in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/use-agent/dataflow/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	created_at   INTEGER NOT NULL,
	platform     TEXT NOT NULL,
	url          TEXT NOT NULL,
	status       TEXT NOT NULL,
	result_count INTEGER NOT NULL,
	results      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_platform ON sessions(platform, created_at);
`

// Store is a SQLite-backed history of scrape calls.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// single connection: SQLite allows one writer at a time
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: running migrations: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save records one scrape call and returns the stored session.
// The session status is the status of its first record.
func (s *Store) Save(ctx context.Context, platform, url string, records []models.CanonicalRecord) (*models.HistorySession, error) {
	results, err := json.Marshal(records)
	if err != nil {
		return nil, err
	}

	status := models.CrawlBlocked
	if len(records) > 0 {
		status = records[0].CrawlingStatus
	}
	sess := &models.HistorySession{
		ID:          uuid.NewString(),
		CreatedAt:   s.now().UTC().Truncate(time.Millisecond),
		Platform:    platform,
		URL:         url,
		Status:      status,
		ResultCount: len(records),
		Results:     records,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, created_at, platform, url, status, result_count, results)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sess.ID, sess.CreatedAt.UnixMilli(), sess.Platform, sess.URL, string(sess.Status), sess.ResultCount, string(results))
	if err != nil {
		return nil, fmt.Errorf("history: insert: %w", err)
	}
	return sess, nil
}

// ListOptions filters List.
type ListOptions struct {
	Platform string
	Limit    int // default: 50
}

// List returns sessions newest first, without their results.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]models.HistorySession, error) {
	query := `SELECT id, created_at, platform, url, status, result_count FROM sessions WHERE 1=1`
	var args []any
	if opts.Platform != "" {
		query += " AND platform = ?"
		args = append(args, opts.Platform)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []models.HistorySession{}
	for rows.Next() {
		var sess models.HistorySession
		var status string
		var created int64
		if err := rows.Scan(&sess.ID, &created, &sess.Platform, &sess.URL, &status, &sess.ResultCount); err != nil {
			return nil, err
		}
		sess.CreatedAt = time.UnixMilli(created).UTC()
		sess.Status = models.CrawlingStatus(status)
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Get returns one session with its records. The second value is false when
// no session has that id.
func (s *Store) Get(ctx context.Context, id string) (*models.HistorySession, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, platform, url, status, result_count, results
		FROM sessions WHERE id = ?
	`, id)

	var sess models.HistorySession
	var status, results string
	var created int64
	err := row.Scan(&sess.ID, &created, &sess.Platform, &sess.URL, &status, &sess.ResultCount, &results)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	sess.CreatedAt = time.UnixMilli(created).UTC()
	sess.Status = models.CrawlingStatus(status)

	recs, err := decodeRecords([]byte(results), sess.Platform)
	if err != nil {
		return nil, false, fmt.Errorf("history: decode results: %w", err)
	}
	sess.Results = recs
	return &sess, true, nil
}

func decodeRecords(data []byte, platform string) ([]models.CanonicalRecord, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	recs := make([]models.CanonicalRecord, 0, len(raw))
	for _, r := range raw {
		rec, err := models.DecodeRecord(r, platform)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
