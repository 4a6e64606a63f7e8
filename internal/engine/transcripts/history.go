package transcripts

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/anatolykoptev/go_transcript/internal/engine"
	"lukechampine.com/blake3"
	_ "modernc.org/sqlite"
)

// Store persists finished batches.
type Store interface {
	SaveBatch(ctx context.Context, b *engine.Batch) error
	ListBatches(ctx context.Context, limit int) ([]BatchSummary, error)
	BatchItems(ctx context.Context, batchID string) ([]HistoryItem, error)
	Close() error
}

// BatchSummary is one row of the batch history.
type BatchSummary struct {
	ID         string `json:"id"`
	Format     string `json:"format"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
	Total      int    `json:"total"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
}

// HistoryItem is one stored batch position.
type HistoryItem struct {
	Position int    `json:"position"`
	Input    string `json:"input"`
	VideoID  string `json:"video_id,omitempty"`
	Status   string `json:"status"`
	Language string `json:"language,omitempty"`
	Segments int    `json:"segments"`
	Attempts int    `json:"attempts"`
	Reason   string `json:"reason,omitempty"`
	Error    string `json:"error,omitempty"`
	Digest   string `json:"digest,omitempty"` // BLAKE3 of the full text
}

// Package-level store, set from main.go. May be nil.
var store Store

// SetStore sets the package-level history store.
func SetStore(s Store) { store = s }

// GetStore returns the package-level history store (may be nil).
func GetStore() Store { return store }

// TextDigest returns the hex BLAKE3-256 digest of text.
func TextDigest(text string) string {
	h := blake3.New(32, nil)
	_, _ = h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// DefaultHistoryDir is where the SQLite history lives when HISTORY_DIR is unset.
func DefaultHistoryDir() string {
	return filepath.Join(os.Getenv("HOME"), ".go_transcript")
}

func batchSummary(b *engine.Batch) BatchSummary {
	ok, failed := b.Counts()
	return BatchSummary{
		ID:         b.ID,
		Format:     string(b.Format),
		StartedAt:  b.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt: b.FinishedAt.UTC().Format(time.RFC3339),
		Total:      b.Len(),
		Succeeded:  ok,
		Failed:     failed,
	}
}

func itemFromResult(pos int, r engine.TranscriptResult) HistoryItem {
	it := HistoryItem{
		Position: pos,
		Input:    r.Input,
		VideoID:  r.VideoID,
		Status:   string(r.Status),
		Language: r.Language,
		Segments: r.TotalSegments,
		Attempts: r.Attempts,
		Reason:   string(r.Reason),
		Error:    r.Error,
	}
	if r.OK() {
		it.Digest = TextDigest(r.FullText)
	}
	return it
}

// SQLiteStore keeps history in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) <dir>/history.db.
func OpenSQLite(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("history: mkdir %s: %w", dir, err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "history.db"))
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer
	if err := initHistorySchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func initHistorySchema(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS batches (
		id          TEXT PRIMARY KEY,
		format      TEXT NOT NULL,
		started_at  TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		total       INTEGER NOT NULL,
		succeeded   INTEGER NOT NULL,
		failed      INTEGER NOT NULL
	)`); err != nil {
		return err
	}
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS batch_items (
		batch_id TEXT NOT NULL REFERENCES batches(id),
		position INTEGER NOT NULL,
		input    TEXT NOT NULL,
		video_id TEXT,
		status   TEXT NOT NULL,
		language TEXT,
		segments INTEGER NOT NULL DEFAULT 0,
		attempts INTEGER NOT NULL DEFAULT 0,
		reason   TEXT,
		error    TEXT,
		digest   TEXT,
		PRIMARY KEY (batch_id, position)
	)`)
	return err
}

// SaveBatch writes the batch and all of its items in one transaction.
func (s *SQLiteStore) SaveBatch(ctx context.Context, b *engine.Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sum := batchSummary(b)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO batches (id, format, started_at, finished_at, total, succeeded, failed)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sum.ID, sum.Format, sum.StartedAt, sum.FinishedAt, sum.Total, sum.Succeeded, sum.Failed,
	); err != nil {
		return fmt.Errorf("history: insert batch: %w", err)
	}
	for i, r := range b.Results {
		it := itemFromResult(i, r)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO batch_items (batch_id, position, input, video_id, status, language, segments, attempts, reason, error, digest)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID, it.Position, it.Input, it.VideoID, it.Status, it.Language,
			it.Segments, it.Attempts, it.Reason, it.Error, it.Digest,
		); err != nil {
			return fmt.Errorf("history: insert item %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// ListBatches returns the most recent batches first.
func (s *SQLiteStore) ListBatches(ctx context.Context, limit int) ([]BatchSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, format, started_at, finished_at, total, succeeded, failed
		 FROM batches ORDER BY started_at DESC, rowid DESC LIMIT ?`, normLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	var out []BatchSummary
	for rows.Next() {
		var b BatchSummary
		if err := rows.Scan(&b.ID, &b.Format, &b.StartedAt, &b.FinishedAt, &b.Total, &b.Succeeded, &b.Failed); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// BatchItems returns the items of one batch in position order.
func (s *SQLiteStore) BatchItems(ctx context.Context, batchID string) ([]HistoryItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT position, input, COALESCE(video_id, ''), status, COALESCE(language, ''),
		        segments, attempts, COALESCE(reason, ''), COALESCE(error, ''), COALESCE(digest, '')
		 FROM batch_items WHERE batch_id = ? ORDER BY position`, batchID)
	if err != nil {
		return nil, fmt.Errorf("history: items: %w", err)
	}
	defer rows.Close()

	var out []HistoryItem
	for rows.Next() {
		var it HistoryItem
		if err := rows.Scan(&it.Position, &it.Input, &it.VideoID, &it.Status, &it.Language,
			&it.Segments, &it.Attempts, &it.Reason, &it.Error, &it.Digest); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func normLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 20
	}
	return limit
}
