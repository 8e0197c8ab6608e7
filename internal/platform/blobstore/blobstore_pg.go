package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dentaldesk/clinic/internal/platform/db"
)

// PGStore keeps blobs in the blob table of the request's tenant schema.
type PGStore struct {
	pool   *pgxpool.Pool
	limits Limits
}

func NewPGStore(pool *pgxpool.Pool, limits Limits) *PGStore {
	return &PGStore{pool: pool, limits: limits}
}

const blobCols = `id, owner_id, category, file_name, content_type, size_bytes, sha256, notes, COALESCE(created_by::text, ''), created_at`

func (s *PGStore) Put(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	data, err := readValidated(&meta, content, s.limits)
	if err != nil {
		return nil, err
	}

	var createdBy interface{}
	if meta.CreatedBy != "" {
		createdBy = meta.CreatedBy
	}
	_, err = db.Conn(ctx, s.pool).Exec(ctx, `
		INSERT INTO blob (id, owner_id, category, file_name, content_type, size_bytes, sha256, notes, content, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		meta.ID, meta.OwnerID, meta.Category, meta.FileName, meta.ContentType,
		meta.Size, meta.Hash, meta.Notes, data, createdBy, meta.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("store blob: %w", err)
	}
	return &meta, nil
}

func (s *PGStore) Get(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	var content []byte
	meta, err := scanBlob(db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT `+blobCols+`, content FROM blob WHERE id = $1`, id), &content)
	if err != nil {
		return nil, nil, err
	}
	return io.NopCloser(bytes.NewReader(content)), meta, nil
}

func (s *PGStore) Stat(ctx context.Context, id string) (*BlobMetadata, error) {
	return scanBlob(db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT `+blobCols+` FROM blob WHERE id = $1`, id))
}

func (s *PGStore) ListByOwner(ctx context.Context, ownerID, category string) ([]*BlobMetadata, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx,
		`SELECT `+blobCols+` FROM blob
		 WHERE owner_id = $1 AND ($2 = '' OR category = $2)
		 ORDER BY created_at DESC`, ownerID, category)
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	defer rows.Close()

	var out []*BlobMetadata
	for rows.Next() {
		m, err := scanBlob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanBlob(row pgx.Row, extra ...interface{}) (*BlobMetadata, error) {
	var m BlobMetadata
	dest := []interface{}{
		&m.ID, &m.OwnerID, &m.Category, &m.FileName, &m.ContentType,
		&m.Size, &m.Hash, &m.Notes, &m.CreatedBy, &m.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("scan blob: %w", err)
	}
	return &m, nil
}
