package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RecordError reports a failed datastore update.
type RecordError struct {
	PostID string
	Err    error
}

func (e *RecordError) Error() string { return fmt.Sprintf("update record %s: %v", e.PostID, e.Err) }

func (e *RecordError) Unwrap() error { return e.Err }

// Store updates post records held in Postgres. The posts table is owned by
// the ingestion side; this service only writes thumbnail references back.
type Store struct {
	pool  *pgxpool.Pool
	table string
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn, table string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if table == "" {
		table = "posts"
	}
	return &Store{pool: pool, table: table}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping verifies connectivity; used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// UpdateThumbnail sets the thumbnail URL on the post row keyed by post id
// and returns how many rows matched. Zero rows means the post is unknown
// to the datastore, which callers treat as a non-fatal outcome.
func (s *Store) UpdateThumbnail(ctx context.Context, postID, thumbnailURL string) (int64, error) {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET thumbnail_url = $2, updated_at = NOW() WHERE post_id = $1
	`, s.table), postID, thumbnailURL)
	if err != nil {
		return 0, &RecordError{PostID: postID, Err: err}
	}
	return tag.RowsAffected(), nil
}
