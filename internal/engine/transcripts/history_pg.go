package transcripts

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/anatolykoptev/go_transcript/internal/engine"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// PostgresStore keeps history in PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// ConnectPostgres creates a pgx pool and runs schema migrations.
func ConnectPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	config.MaxConns = 4
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("history postgres connected", slog.String("addr", config.ConnConfig.Host))
	return s, nil
}

func (s *PostgresStore) runMigrations(ctx context.Context) error {
	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := schemaFS.ReadFile("schema/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		if _, err := s.pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("execute %s: %w", entry.Name(), err)
		}
		slog.Debug("migration applied", slog.String("file", entry.Name()))
	}
	return nil
}

// SaveBatch writes the batch and its items in one transaction.
func (s *PostgresStore) SaveBatch(ctx context.Context, b *engine.Batch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ok, failed := b.Counts()
	if _, err := tx.Exec(ctx,
		`INSERT INTO transcript_batches (id, format, started_at, finished_at, total, succeeded, failed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.ID, string(b.Format), b.StartedAt, b.FinishedAt, b.Len(), ok, failed,
	); err != nil {
		return fmt.Errorf("history: insert batch: %w", err)
	}

	rows := make([][]any, 0, len(b.Results))
	for i, r := range b.Results {
		it := itemFromResult(i, r)
		rows = append(rows, []any{
			b.ID, it.Position, it.Input, it.VideoID, it.Status, it.Language,
			it.Segments, it.Attempts, it.Reason, it.Error, it.Digest,
		})
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"transcript_batch_items"},
		[]string{"batch_id", "position", "input", "video_id", "status", "language",
			"segments", "attempts", "reason", "error", "digest"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("history: copy items: %w", err)
	}
	return tx.Commit(ctx)
}

// ListBatches returns the most recent batches first.
func (s *PostgresStore) ListBatches(ctx context.Context, limit int) ([]BatchSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, format, started_at, finished_at, total, succeeded, failed
		 FROM transcript_batches ORDER BY started_at DESC LIMIT $1`, normLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	var out []BatchSummary
	for rows.Next() {
		var b BatchSummary
		var started, finished time.Time
		if err := rows.Scan(&b.ID, &b.Format, &started, &finished, &b.Total, &b.Succeeded, &b.Failed); err != nil {
			return nil, err
		}
		b.StartedAt = started.UTC().Format(time.RFC3339)
		b.FinishedAt = finished.UTC().Format(time.RFC3339)
		out = append(out, b)
	}
	return out, rows.Err()
}

// BatchItems returns the items of one batch in position order.
func (s *PostgresStore) BatchItems(ctx context.Context, batchID string) ([]HistoryItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT position, input, video_id, status, language, segments, attempts, reason, error, digest
		 FROM transcript_batch_items WHERE batch_id = $1 ORDER BY position`, batchID)
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

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
