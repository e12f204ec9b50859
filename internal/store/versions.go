package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/swscloud/reviewd/internal/docmodel"
	rerr "github.com/swscloud/reviewd/internal/errors"
)

// CreateVersion inserts a new version for a document with the next
// monotonic version number.
func (s *Store) CreateVersion(ctx context.Context, documentID int64, status docmodel.VersionStatus) (*docmodel.Version, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var next int
	if err := tx.GetContext(ctx, &next,
		`SELECT COALESCE(MAX(version_no), 0) + 1 FROM versions WHERE document_id = ?`, documentID); err != nil {
		return nil, fmt.Errorf("next version no: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO versions (document_id, version_no, status) VALUES (?, ?, ?)`,
		documentID, next, status)
	if err != nil {
		return nil, fmt.Errorf("insert version: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetVersion(ctx, id)
}

// GetVersion loads a version by id.
func (s *Store) GetVersion(ctx context.Context, id int64) (*docmodel.Version, error) {
	var v docmodel.Version
	err := s.db.GetContext(ctx, &v, `SELECT * FROM versions WHERE id = ?`, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, rerr.Newf(rerr.CategoryNotFound, rerr.SeverityError, "version %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get version: %w", err)
	}
	return &v, nil
}

// ListVersions returns a document's versions newest first.
func (s *Store) ListVersions(ctx context.Context, documentID int64) ([]docmodel.Version, error) {
	var out []docmodel.Version
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM versions WHERE document_id = ? ORDER BY version_no DESC`, documentID)
	return out, err
}

// UpdateVersionProgress sets status, progress and the human-readable step.
func (s *Store) UpdateVersionProgress(ctx context.Context, id int64, status docmodel.VersionStatus, progress int, step string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE versions SET status = ?, progress = ?, current_step = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, progress, step, id)
	return err
}

// FailVersion marks a version FAILED with a truncated error message.
func (s *Store) FailVersion(ctx context.Context, id int64, msg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE versions SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		docmodel.VersionFailed, rerr.Truncate(msg, 2000), id)
	return err
}

// LinkArtifact records an artifact key on the version row. kind is one of
// source|preview|structure|page_map.
func (s *Store) LinkArtifact(ctx context.Context, id int64, kind, key string) error {
	var col string
	switch kind {
	case "source":
		col = "source_key"
	case "preview":
		col = "preview_key"
	case "structure":
		col = "structure_key"
	case "page_map":
		col = "page_map_key"
	default:
		return rerr.Newf(rerr.CategoryValidation, rerr.SeverityError, "unknown artifact kind %q", kind)
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE versions SET %s = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, col), key, id)
	return err
}

// CancelVersion transitions a version to CANCELED. Allowed from PROCESSING,
// READY, DONE and UPLOADED.
func (s *Store) CancelVersion(ctx context.Context, id int64) error {
	return s.transition(ctx, id, docmodel.VersionCanceled,
		docmodel.VersionProcessing, docmodel.VersionReady, docmodel.VersionDone, docmodel.VersionUploaded)
}

// ResetForReprocess transitions a version back to PROCESSING. Allowed from
// FAILED, CANCELED, READY, UPLOADED and DONE.
func (s *Store) ResetForReprocess(ctx context.Context, id int64) error {
	v, err := s.GetVersion(ctx, id)
	if err != nil {
		return err
	}
	switch v.Status {
	case docmodel.VersionFailed, docmodel.VersionCanceled, docmodel.VersionReady,
		docmodel.VersionUploaded, docmodel.VersionDone:
	default:
		return rerr.Newf(rerr.CategoryValidation, rerr.SeverityError,
			"version %d cannot be reprocessed from status %s", id, v.Status)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE versions SET status = ?, progress = 0, current_step = '', error_message = '', updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		docmodel.VersionProcessing, id)
	return err
}

func (s *Store) transition(ctx context.Context, id int64, to docmodel.VersionStatus, from ...docmodel.VersionStatus) error {
	v, err := s.GetVersion(ctx, id)
	if err != nil {
		return err
	}
	for _, f := range from {
		if v.Status == f {
			_, err := s.db.ExecContext(ctx,
				`UPDATE versions SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, to, id)
			return err
		}
	}
	return rerr.Newf(rerr.CategoryValidation, rerr.SeverityError,
		"version %d cannot transition %s -> %s", id, v.Status, to)
}

// WipeDerived deletes all rows derived from parsing a version: anchors,
// cells, blocks, tables, outline nodes and facts. Used before reprocessing
// and by the idempotent parse stage.
func (s *Store) WipeDerived(ctx context.Context, versionID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`DELETE FROM page_anchors WHERE block_id IN (SELECT id FROM blocks WHERE version_id = ?)`,
		`DELETE FROM cells WHERE table_id IN (SELECT id FROM doc_tables WHERE version_id = ?)`,
		`DELETE FROM blocks WHERE version_id = ?`,
		`DELETE FROM doc_tables WHERE version_id = ?`,
		`DELETE FROM outline_nodes WHERE version_id = ?`,
		`DELETE FROM facts WHERE version_id = ?`,
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q, versionID); err != nil {
			return fmt.Errorf("wipe derived: %w", err)
		}
	}
	return tx.Commit()
}

// DeleteVersion removes a version and everything it owns. Refused while the
// version is PROCESSING.
func (s *Store) DeleteVersion(ctx context.Context, id int64) error {
	v, err := s.GetVersion(ctx, id)
	if err != nil {
		return err
	}
	if v.Status == docmodel.VersionProcessing {
		return rerr.Newf(rerr.CategoryValidation, rerr.SeverityError,
			"version %d is processing and cannot be deleted", id)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`DELETE FROM issue_actions WHERE issue_id IN (SELECT id FROM issues WHERE version_id = ?)`,
		`DELETE FROM issues WHERE version_id = ?`,
		`DELETE FROM review_runs WHERE version_id = ?`,
		`DELETE FROM page_anchors WHERE block_id IN (SELECT id FROM blocks WHERE version_id = ?)`,
		`DELETE FROM cells WHERE table_id IN (SELECT id FROM doc_tables WHERE version_id = ?)`,
		`DELETE FROM blocks WHERE version_id = ?`,
		`DELETE FROM doc_tables WHERE version_id = ?`,
		`DELETE FROM outline_nodes WHERE version_id = ?`,
		`DELETE FROM facts WHERE version_id = ?`,
		`DELETE FROM versions WHERE id = ?`,
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("delete version: %w", err)
		}
	}
	return tx.Commit()
}

// StaleProcessingVersions returns ids of versions stuck in PROCESSING for
// longer than maxAgeMinutes.
func (s *Store) StaleProcessingVersions(ctx context.Context, maxAgeMinutes int) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids,
		`SELECT id FROM versions WHERE status = ? AND updated_at < datetime('now', ?)`,
		docmodel.VersionProcessing, fmt.Sprintf("-%d minutes", maxAgeMinutes))
	return ids, err
}
