package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/swscloud/reviewd/internal/docmodel"
	rerr "github.com/swscloud/reviewd/internal/errors"
)

// CreateKBSource registers a knowledge-base source in PROCESSING state.
func (s *Store) CreateKBSource(ctx context.Context, name, kbType, objectKey string) (*docmodel.KBSource, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO kb_sources (name, kb_type, status, object_key) VALUES (?, ?, ?, ?)`,
		name, kbType, docmodel.KBProcessing, objectKey)
	if err != nil {
		return nil, fmt.Errorf("insert kb source: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetKBSource(ctx, id)
}

// GetKBSource loads a source by id.
func (s *Store) GetKBSource(ctx context.Context, id int64) (*docmodel.KBSource, error) {
	var src docmodel.KBSource
	err := s.db.GetContext(ctx, &src, `SELECT * FROM kb_sources WHERE id = ?`, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, rerr.Newf(rerr.CategoryNotFound, rerr.SeverityError, "kb source %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

// ListKBSources returns all sources newest first.
func (s *Store) ListKBSources(ctx context.Context) ([]docmodel.KBSource, error) {
	var out []docmodel.KBSource
	err := s.db.SelectContext(ctx, &out, `SELECT * FROM kb_sources ORDER BY id DESC`)
	return out, err
}

// SetKBSourceObjectKey records where the uploaded file landed. The key
// embeds the source id, so it is only known after insertion.
func (s *Store) SetKBSourceObjectKey(ctx context.Context, id int64, key string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE kb_sources SET object_key = ? WHERE id = ?`, key, id)
	return err
}

// UpdateKBSourceStatus transitions a source, truncating any error message.
func (s *Store) UpdateKBSourceStatus(ctx context.Context, id int64, status docmodel.KBStatus, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE kb_sources SET status = ?, error_message = ? WHERE id = ?`,
		status, rerr.Truncate(errMsg, 2000), id)
	return err
}

// InsertKBChunk inserts a chunk; duplicates by (source, hash) are ignored.
func (s *Store) InsertKBChunk(ctx context.Context, c *docmodel.KBChunk) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kb_chunks (kb_source_id, chunk_index, text, meta, hash)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (kb_source_id, hash) DO NOTHING`,
		c.KBSourceID, c.ChunkIndex, c.Text, c.Meta, c.Hash)
	return err
}

// ListKBChunks returns a source's chunks in order.
func (s *Store) ListKBChunks(ctx context.Context, sourceID int64) ([]docmodel.KBChunk, error) {
	var out []docmodel.KBChunk
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM kb_chunks WHERE kb_source_id = ? ORDER BY chunk_index`, sourceID)
	return out, err
}

// DeleteKBChunks wipes a source's chunks before reindexing.
func (s *Store) DeleteKBChunks(ctx context.Context, sourceID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kb_chunks WHERE kb_source_id = ?`, sourceID)
	return err
}
