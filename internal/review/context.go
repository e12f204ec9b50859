// Package review builds the shared review context, dispatches checkpoints to
// registered rule executors, and implements the built-in executor families.
package review

import (
	"context"

	"github.com/swscloud/reviewd/internal/docmodel"
	"github.com/swscloud/reviewd/internal/norms"
	"github.com/swscloud/reviewd/internal/store"
)

// TableWithCells pairs a table with its cells and its embedding block.
type TableWithCells struct {
	Table   docmodel.Table
	Cells   []docmodel.Cell
	BlockID *int64
}

// Context is the read-only snapshot every executor works against. It is
// built once per run.
type Context struct {
	VersionID          int64
	Outline            []docmodel.OutlineNode
	Blocks             []docmodel.Block
	BlocksByID         map[int64]*docmodel.Block
	BlocksByOutline    map[int64][]*docmodel.Block
	Tables             []TableWithCells
	FactsByKey         map[string][]docmodel.Fact
	HeadingBlockByNode map[int64]int64

	// Norms is optional; executors that cite the standard library skip
	// themselves when it is nil.
	Norms *norms.Library
}

// BuildContext loads a version's structure and facts into a Context.
func BuildContext(ctx context.Context, st *store.Store, versionID int64) (*Context, error) {
	outline, err := st.ListOutline(ctx, versionID)
	if err != nil {
		return nil, err
	}
	blocks, err := st.ListBlocks(ctx, versionID)
	if err != nil {
		return nil, err
	}
	tables, err := st.ListTables(ctx, versionID)
	if err != nil {
		return nil, err
	}
	facts, err := st.ListFacts(ctx, versionID)
	if err != nil {
		return nil, err
	}

	rc := &Context{
		VersionID:          versionID,
		Outline:            outline,
		Blocks:             blocks,
		BlocksByID:         make(map[int64]*docmodel.Block, len(blocks)),
		BlocksByOutline:    make(map[int64][]*docmodel.Block),
		FactsByKey:         make(map[string][]docmodel.Fact),
		HeadingBlockByNode: make(map[int64]int64),
	}
	blockByTable := make(map[int64]int64)
	for i := range blocks {
		b := &rc.Blocks[i]
		rc.BlocksByID[b.ID] = b
		if b.OutlineNodeID != nil {
			rc.BlocksByOutline[*b.OutlineNodeID] = append(rc.BlocksByOutline[*b.OutlineNodeID], b)
			if b.BlockType == docmodel.BlockHeading {
				if _, ok := rc.HeadingBlockByNode[*b.OutlineNodeID]; !ok {
					rc.HeadingBlockByNode[*b.OutlineNodeID] = b.ID
				}
			}
		}
		if b.TableID != nil {
			blockByTable[*b.TableID] = b.ID
		}
	}
	for _, t := range tables {
		cells, err := st.ListCells(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		twc := TableWithCells{Table: t, Cells: cells}
		if bid, ok := blockByTable[t.ID]; ok {
			id := bid
			twc.BlockID = &id
		}
		rc.Tables = append(rc.Tables, twc)
	}
	for _, f := range facts {
		rc.FactsByKey[f.FactKey] = append(rc.FactsByKey[f.FactKey], f)
	}
	return rc, nil
}

// FirstHeadingBlock returns the heading block of the first outline node, or
// nil when the version has no outline. Used to evidence document-level
// findings.
func (c *Context) FirstHeadingBlock() *int64 {
	for _, n := range c.Outline {
		if id, ok := c.HeadingBlockByNode[n.ID]; ok {
			return &id
		}
	}
	return nil
}

// TableEvidence returns the evidence block list for a table finding.
func (c *Context) TableEvidence(t *TableWithCells) []int64 {
	if t.BlockID != nil {
		return []int64{*t.BlockID}
	}
	return nil
}
