package store

import (
	"context"
	"fmt"

	"github.com/swscloud/reviewd/internal/docmodel"
)

// ListEnabledCheckpoints returns enabled checkpoints of the given engine
// ordered by (order_index nulls last, id).
func (s *Store) ListEnabledCheckpoints(ctx context.Context, engine docmodel.EngineType) ([]docmodel.Checkpoint, error) {
	var out []docmodel.Checkpoint
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM checkpoints WHERE enabled = 1 AND engine_type = ?
		 ORDER BY order_index IS NULL, order_index, id`, engine)
	return out, err
}

// ListCheckpoints returns all checkpoints.
func (s *Store) ListCheckpoints(ctx context.Context) ([]docmodel.Checkpoint, error) {
	var out []docmodel.Checkpoint
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM checkpoints ORDER BY order_index IS NULL, order_index, id`)
	return out, err
}

// UpsertCheckpoint inserts or updates a checkpoint by code. Used by the
// seeding command.
func (s *Store) UpsertCheckpoint(ctx context.Context, c *docmodel.Checkpoint) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (code, name, engine_type, review_category, enabled,
		                          order_index, target_outline_prefix, prompt_template, rule_config)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (code) DO UPDATE SET
		   name = excluded.name,
		   engine_type = excluded.engine_type,
		   review_category = excluded.review_category,
		   enabled = excluded.enabled,
		   order_index = excluded.order_index,
		   target_outline_prefix = excluded.target_outline_prefix,
		   prompt_template = excluded.prompt_template,
		   rule_config = excluded.rule_config`,
		c.Code, c.Name, c.EngineType, c.ReviewCategory, c.Enabled,
		c.OrderIndex, c.TargetOutlinePrefix, c.PromptTemplate, c.RuleConfig)
	if err != nil {
		return fmt.Errorf("upsert checkpoint %s: %w", c.Code, err)
	}
	return nil
}
