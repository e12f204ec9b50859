package store

import (
	"context"
	"fmt"

	"github.com/swscloud/reviewd/internal/docmodel"
)

// InsertOutlineNode inserts one outline node and returns its id. Nodes must
// be inserted in document order so parent ids are available for children.
func (s *Store) InsertOutlineNode(ctx context.Context, n *docmodel.OutlineNode) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO outline_nodes (version_id, node_no, title, level, parent_id, order_index)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.VersionID, n.NodeNo, n.Title, n.Level, n.ParentID, n.OrderIndex)
	if err != nil {
		return 0, fmt.Errorf("insert outline node: %w", err)
	}
	return res.LastInsertId()
}

// ListOutline returns a version's outline in document order.
func (s *Store) ListOutline(ctx context.Context, versionID int64) ([]docmodel.OutlineNode, error) {
	var out []docmodel.OutlineNode
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM outline_nodes WHERE version_id = ? ORDER BY order_index`, versionID)
	return out, err
}

// InsertTable inserts a table and returns its id.
func (s *Store) InsertTable(ctx context.Context, t *docmodel.Table) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO doc_tables (version_id, outline_node_id, table_no, title, n_rows, n_cols)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.VersionID, t.OutlineNodeID, t.TableNo, t.Title, t.NRows, t.NCols)
	if err != nil {
		return 0, fmt.Errorf("insert table: %w", err)
	}
	return res.LastInsertId()
}

// InsertCells batch-inserts cells for a table.
func (s *Store) InsertCells(ctx context.Context, cells []docmodel.Cell) error {
	if len(cells) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cells (table_id, row, col, text, num_value, unit) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, c := range cells {
		if _, err := stmt.ExecContext(ctx, c.TableID, c.Row, c.Col, c.Text, c.NumValue, c.Unit); err != nil {
			return fmt.Errorf("insert cell: %w", err)
		}
	}
	return tx.Commit()
}

// ListTables returns a version's tables in insertion order.
func (s *Store) ListTables(ctx context.Context, versionID int64) ([]docmodel.Table, error) {
	var out []docmodel.Table
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM doc_tables WHERE version_id = ? ORDER BY id`, versionID)
	return out, err
}

// ListCells returns a table's cells in (row, col) order.
func (s *Store) ListCells(ctx context.Context, tableID int64) ([]docmodel.Cell, error) {
	var out []docmodel.Cell
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM cells WHERE table_id = ? ORDER BY row, col`, tableID)
	return out, err
}

// InsertBlock inserts one block and returns its id.
func (s *Store) InsertBlock(ctx context.Context, b *docmodel.Block) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO blocks (version_id, outline_node_id, block_type, order_index, text, table_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		b.VersionID, b.OutlineNodeID, b.BlockType, b.OrderIndex, b.Text, b.TableID)
	if err != nil {
		return 0, fmt.Errorf("insert block: %w", err)
	}
	return res.LastInsertId()
}

// ListBlocks returns a version's blocks in document order.
func (s *Store) ListBlocks(ctx context.Context, versionID int64) ([]docmodel.Block, error) {
	var out []docmodel.Block
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM blocks WHERE version_id = ? ORDER BY order_index`, versionID)
	return out, err
}

// InsertAnchors batch-inserts page anchors.
func (s *Store) InsertAnchors(ctx context.Context, anchors []docmodel.PageAnchor) error {
	if len(anchors) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO page_anchors (block_id, page_no, x0, y0, x1, y1, nx0, ny0, nx1, ny1, confidence)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, a := range anchors {
		if _, err := stmt.ExecContext(ctx, a.BlockID, a.PageNo,
			a.X0, a.Y0, a.X1, a.Y1, a.NX0, a.NY0, a.NX1, a.NY1, a.Confidence); err != nil {
			return fmt.Errorf("insert anchor: %w", err)
		}
	}
	return tx.Commit()
}

// BestAnchor returns the highest-confidence anchor for a block, or nil.
func (s *Store) BestAnchor(ctx context.Context, blockID int64) (*docmodel.PageAnchor, error) {
	var out []docmodel.PageAnchor
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM page_anchors WHERE block_id = ? ORDER BY confidence DESC, id LIMIT 1`, blockID)
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return &out[0], nil
}

// ListAnchors returns all anchors for a version's blocks.
func (s *Store) ListAnchors(ctx context.Context, versionID int64) ([]docmodel.PageAnchor, error) {
	var out []docmodel.PageAnchor
	err := s.db.SelectContext(ctx, &out,
		`SELECT a.* FROM page_anchors a JOIN blocks b ON b.id = a.block_id
		 WHERE b.version_id = ? ORDER BY a.id`, versionID)
	return out, err
}
