package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dharsanguruparan/OTADrop/internal/storage"
)

// DB is the subset of *pgxpool.Pool used by the repository.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ArtifactRepository stores archives and manifests in Postgres. It
// implements storage.Store.
type ArtifactRepository struct {
	db DB
}

// NewArtifactRepository constructs a repository.
func NewArtifactRepository(db DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// Save inserts a new artifact. Rows are never overwritten.
func (r *ArtifactRepository) Save(ctx context.Context, ns storage.Namespace, name string, data []byte) error {
	if err := storage.Validate(ns, name); err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		INSERT INTO artifacts (namespace, name, content, size_bytes, created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (namespace, name) DO NOTHING
	`, string(ns), name, data, int64(len(data)), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrExists
	}
	return nil
}

// Read returns the artifact content.
func (r *ArtifactRepository) Read(ctx context.Context, ns storage.Namespace, name string) ([]byte, error) {
	if err := storage.Validate(ns, name); err != nil {
		return nil, err
	}
	var content []byte
	row := r.db.QueryRow(ctx, `SELECT content FROM artifacts WHERE namespace=$1 AND name=$2`, string(ns), name)
	if err := row.Scan(&content); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("select artifact: %w", err)
	}
	return content, nil
}

// Delete removes the artifact row.
func (r *ArtifactRepository) Delete(ctx context.Context, ns storage.Namespace, name string) error {
	if err := storage.Validate(ns, name); err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM artifacts WHERE namespace=$1 AND name=$2`, string(ns), name)
	if err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
