package store

import (
	"context"
	"fmt"

	"github.com/swscloud/reviewd/internal/docmodel"
)

// UpsertFact inserts a fact or replaces the existing one with the same
// (version, fact key, scope). Last write wins.
func (s *Store) UpsertFact(ctx context.Context, f *docmodel.Fact) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO facts (version_id, fact_key, value_num, value_text, unit, scope,
		                    source_block_id, source_table_id, confidence)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (version_id, fact_key, scope) DO UPDATE SET
		   value_num = excluded.value_num,
		   value_text = excluded.value_text,
		   unit = excluded.unit,
		   source_block_id = excluded.source_block_id,
		   source_table_id = excluded.source_table_id,
		   confidence = excluded.confidence`,
		f.VersionID, f.FactKey, f.ValueNum, f.ValueText, f.Unit, f.Scope,
		f.SourceBlockID, f.SourceTableID, f.Confidence)
	if err != nil {
		return fmt.Errorf("upsert fact: %w", err)
	}
	return nil
}

// ListFacts returns all facts of a version.
func (s *Store) ListFacts(ctx context.Context, versionID int64) ([]docmodel.Fact, error) {
	var out []docmodel.Fact
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM facts WHERE version_id = ? ORDER BY fact_key, scope`, versionID)
	return out, err
}

// DeleteFacts wipes a version's facts. Run first by the idempotent
// fact-extraction stage.
func (s *Store) DeleteFacts(ctx context.Context, versionID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM facts WHERE version_id = ?`, versionID)
	return err
}
