// Package pipeline turns an uploaded source document into its derived
// artifacts: preview PDF, structure, page anchors, and facts.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/swscloud/reviewd/internal/align"
	"github.com/swscloud/reviewd/internal/convert"
	"github.com/swscloud/reviewd/internal/docmodel"
	"github.com/swscloud/reviewd/internal/docxparse"
	"github.com/swscloud/reviewd/internal/errors"
	"github.com/swscloud/reviewd/internal/facts"
	"github.com/swscloud/reviewd/internal/metrics"
	"github.com/swscloud/reviewd/internal/objstore"
	"github.com/swscloud/reviewd/internal/observability"
	"github.com/swscloud/reviewd/internal/pagetext"
	"github.com/swscloud/reviewd/internal/store"
)

// ReviewStarter triggers a review run once processing finishes.
type ReviewStarter interface {
	Start(ctx context.Context, versionID int64, runType docmodel.RunType) (*docmodel.ReviewRun, error)
}

// Pipeline processes one version at a time through the fixed stage chain.
type Pipeline struct {
	st          *store.Store
	obj         objstore.Store
	conv        *convert.Converter
	rec         metrics.Recorder
	dedupWindow int

	reviewStarter ReviewStarter
	autoTrigger   bool
}

// New wires a pipeline. reviewStarter may be nil, which disables the
// auto-triggered review.
func New(st *store.Store, obj objstore.Store, conv *convert.Converter, rec metrics.Recorder, dedupWindow int, reviewStarter ReviewStarter, autoTrigger bool) *Pipeline {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Pipeline{
		st:            st,
		obj:           obj,
		conv:          conv,
		rec:           rec,
		dedupWindow:   dedupWindow,
		reviewStarter: reviewStarter,
		autoTrigger:   autoTrigger,
	}
}

// state carries intermediate results between stages.
type state struct {
	version   *docmodel.Version
	projectID int64

	src []byte
	pdf []byte

	outline []docmodel.OutlineNode
	blocks  []docmodel.Block
	tables  []facts.TableInput
	layout  *pagetext.Layout
}

type stage struct {
	name     string
	progress int
	fn       func(context.Context, *state) error
	// soft stages log their failure and let the pipeline continue.
	soft bool
}

func (p *Pipeline) stages() []stage {
	return []stage{
		{name: "convert", progress: 15, fn: p.stageConvert},
		{name: "parse_structure", progress: 35, fn: p.stageParse},
		{name: "extract_layout", progress: 50, fn: p.stageLayout},
		{name: "align", progress: 70, fn: p.stageAlign},
		{name: "extract_facts", progress: 80, fn: p.stageFacts, soft: true},
		{name: "chunks", progress: 90, fn: p.stageChunks},
		{name: "finalize", progress: 100, fn: p.stageFinalize},
	}
}

// Process runs the full chain for a version. Cancellation is honored at
// stage boundaries; a failed stage marks the version FAILED.
func (p *Pipeline) Process(ctx context.Context, versionID int64) error {
	ctx = observability.WithVersionID(ctx, versionID)
	start := time.Now()

	v, err := p.st.GetVersion(ctx, versionID)
	if err != nil {
		return err
	}
	doc, err := p.st.GetDocument(ctx, v.DocumentID)
	if err != nil {
		return err
	}
	st := &state{version: v, projectID: doc.ProjectID}

	if err := p.st.UpdateVersionProgress(ctx, versionID, docmodel.VersionProcessing, 0, "convert"); err != nil {
		return err
	}
	// Reprocessing replaces all derived rows.
	if err := p.st.WipeDerived(ctx, versionID); err != nil {
		return p.fail(ctx, versionID, err)
	}

	for _, sg := range p.stages() {
		if ctx.Err() != nil {
			return p.canceled(ctx, versionID)
		}
		ctx := observability.WithStage(ctx, sg.name)
		stageStart := time.Now()
		err := sg.fn(ctx, st)
		p.rec.ObserveStageDuration(sg.name, time.Since(stageStart))
		if err != nil {
			if ctx.Err() != nil {
				p.rec.IncStageResult(sg.name, metrics.ResultCanceled)
				return p.canceled(ctx, versionID)
			}
			if sg.soft {
				p.rec.IncStageResult(sg.name, metrics.ResultWarning)
				observability.Warn(ctx, "stage failed, continuing", slog.Any("error", err))
			} else {
				p.rec.IncStageResult(sg.name, metrics.ResultFatal)
				return p.fail(ctx, versionID, err)
			}
		} else {
			p.rec.IncStageResult(sg.name, metrics.ResultSuccess)
		}
		if uerr := p.st.UpdateVersionProgress(ctx, versionID, docmodel.VersionProcessing, sg.progress, sg.name); uerr != nil {
			return p.fail(ctx, versionID, uerr)
		}
		observability.Info(ctx, "stage done", slog.Duration("took", time.Since(stageStart)))
	}

	if err := p.st.UpdateVersionProgress(ctx, versionID, docmodel.VersionReady, 100, "ready"); err != nil {
		return p.fail(ctx, versionID, err)
	}
	p.rec.ObservePipelineDuration(time.Since(start))
	p.rec.IncPipelineOutcome("ready")
	observability.Info(ctx, "version ready", slog.Duration("took", time.Since(start)))

	if p.autoTrigger && p.reviewStarter != nil {
		if _, err := p.reviewStarter.Start(context.WithoutCancel(ctx), versionID, docmodel.RunAI); err != nil {
			observability.Warn(ctx, "auto review trigger failed", slog.Any("error", err))
		}
	}
	return nil
}

func (p *Pipeline) fail(ctx context.Context, versionID int64, err error) error {
	observability.Error(ctx, "pipeline failed", slog.Any("error", err))
	if ferr := p.st.FailVersion(context.WithoutCancel(ctx), versionID, err.Error()); ferr != nil {
		observability.Error(ctx, "mark version failed errored", slog.Any("error", ferr))
	}
	p.rec.IncPipelineOutcome("failed")
	return err
}

func (p *Pipeline) canceled(ctx context.Context, versionID int64) error {
	base := context.WithoutCancel(ctx)
	observability.Info(base, "pipeline canceled")
	if cerr := p.st.CancelVersion(base, versionID); cerr != nil {
		observability.Warn(base, "mark version canceled errored", slog.Any("error", cerr))
	}
	p.rec.IncPipelineOutcome("canceled")
	return ctx.Err()
}

func (p *Pipeline) stageConvert(ctx context.Context, st *state) error {
	src, err := p.obj.Get(ctx, st.version.SourceKey)
	if err != nil {
		return err
	}
	st.src = src

	tmp, err := os.MkdirTemp("", "reviewd-convert-*")
	if err != nil {
		return errors.Wrap(err, errors.CategoryConvert, errors.SeverityError, "create work dir")
	}
	defer os.RemoveAll(tmp)

	srcPath := filepath.Join(tmp, "source.docx")
	if err := os.WriteFile(srcPath, src, 0600); err != nil {
		return errors.Wrap(err, errors.CategoryConvert, errors.SeverityError, "stage source file")
	}
	pdfPath, err := p.conv.ToPDF(ctx, srcPath, tmp)
	if err != nil {
		return err
	}
	pdf, err := os.ReadFile(pdfPath)
	if err != nil {
		return errors.Wrap(err, errors.CategoryConvert, errors.SeverityError, "read converted pdf")
	}
	st.pdf = pdf

	key := objstore.VersionKey(st.projectID, st.version.DocumentID, st.version.ID, "preview.pdf")
	if err := p.obj.Put(ctx, key, pdf); err != nil {
		return err
	}
	return p.st.LinkArtifact(ctx, st.version.ID, "preview", key)
}

func (p *Pipeline) stageParse(ctx context.Context, st *state) error {
	elems, err := docxparse.ReadDocx(st.src)
	if err != nil {
		return err
	}
	parsed := docxparse.BuildStructure(elems, docxparse.Options{DedupWindow: p.dedupWindow})
	if err := p.persistStructure(ctx, st, parsed); err != nil {
		return err
	}

	artifact := struct {
		Outline []docmodel.OutlineNode `json:"outline"`
		Blocks  []docmodel.Block       `json:"blocks"`
	}{st.outline, st.blocks}
	data, err := json.Marshal(artifact)
	if err != nil {
		return errors.Wrap(err, errors.CategoryParse, errors.SeverityError, "encode structure artifact")
	}
	key := objstore.VersionKey(st.projectID, st.version.DocumentID, st.version.ID, "structure.json")
	if err := p.obj.Put(ctx, key, data); err != nil {
		return err
	}
	return p.st.LinkArtifact(ctx, st.version.ID, "structure", key)
}

// persistStructure inserts outline nodes, tables, cells, and blocks in
// document order and fills the state's persisted views.
func (p *Pipeline) persistStructure(ctx context.Context, st *state, parsed *docxparse.ParsedDoc) error {
	versionID := st.version.ID

	nodeIDs := make([]int64, len(parsed.Nodes))
	for i, n := range parsed.Nodes {
		node := docmodel.OutlineNode{
			VersionID:  versionID,
			NodeNo:     n.NodeNo,
			Title:      n.Title,
			Level:      n.Level,
			OrderIndex: n.OrderIndex,
		}
		if n.ParentIdx >= 0 {
			node.ParentID = &nodeIDs[n.ParentIdx]
		}
		id, err := p.st.InsertOutlineNode(ctx, &node)
		if err != nil {
			return err
		}
		nodeIDs[i] = id
		node.ID = id
		st.outline = append(st.outline, node)
	}

	tableIDs := make([]int64, len(parsed.Tables))
	tableModels := make([]docmodel.Table, len(parsed.Tables))
	for i, t := range parsed.Tables {
		nRows := len(t.Rows)
		nCols := 0
		for _, row := range t.Rows {
			if len(row) > nCols {
				nCols = len(row)
			}
		}
		tbl := docmodel.Table{
			VersionID: versionID,
			TableNo:   t.TableNo,
			Title:     t.Title,
			NRows:     nRows,
			NCols:     nCols,
		}
		if t.OutlineIdx >= 0 {
			tbl.OutlineNodeID = &nodeIDs[t.OutlineIdx]
		}
		id, err := p.st.InsertTable(ctx, &tbl)
		if err != nil {
			return err
		}
		tbl.ID = id
		tableIDs[i] = id
		tableModels[i] = tbl

		var cells []docmodel.Cell
		for r, row := range t.Rows {
			for c, cell := range row {
				cells = append(cells, docmodel.Cell{
					TableID:  id,
					Row:      r,
					Col:      c,
					Text:     cell.Text,
					NumValue: cell.Num,
					Unit:     cell.Unit,
				})
			}
		}
		if err := p.st.InsertCells(ctx, cells); err != nil {
			return err
		}
	}

	for _, b := range parsed.Blocks {
		block := docmodel.Block{
			VersionID:  versionID,
			BlockType:  docmodel.BlockType(b.Kind),
			OrderIndex: b.OrderIndex,
			Text:       b.Text,
		}
		if b.OutlineIdx >= 0 {
			block.OutlineNodeID = &nodeIDs[b.OutlineIdx]
		}
		if b.Kind == docxparse.KindTable && b.TableIdx >= 0 {
			block.TableID = &tableIDs[b.TableIdx]
		}
		id, err := p.st.InsertBlock(ctx, &block)
		if err != nil {
			return err
		}
		block.ID = id
		st.blocks = append(st.blocks, block)
	}

	for i := range tableModels {
		input := facts.TableInput{Table: tableModels[i]}
		cells, err := p.st.ListCells(ctx, tableModels[i].ID)
		if err != nil {
			return err
		}
		input.Cells = cells
		for j := range st.blocks {
			if st.blocks[j].TableID != nil && *st.blocks[j].TableID == tableModels[i].ID {
				input.BlockID = &st.blocks[j].ID
				break
			}
		}
		st.tables = append(st.tables, input)
	}
	return nil
}

func (p *Pipeline) stageLayout(ctx context.Context, st *state) error {
	layout, err := pagetext.ExtractLayout(st.pdf)
	if err != nil {
		return err
	}
	st.layout = layout

	data, err := json.Marshal(layout)
	if err != nil {
		return errors.Wrap(err, errors.CategoryParse, errors.SeverityError, "encode layout artifact")
	}
	key := objstore.VersionKey(st.projectID, st.version.DocumentID, st.version.ID, "pdf_layout.json")
	return p.obj.Put(ctx, key, data)
}

func (p *Pipeline) stageAlign(ctx context.Context, st *state) error {
	tableByBlock := make(map[int64]*docmodel.Table)
	for i := range st.tables {
		if st.tables[i].BlockID != nil {
			tableByBlock[*st.tables[i].BlockID] = &st.tables[i].Table
		}
	}

	inputs := make([]align.Input, 0, len(st.blocks))
	for _, b := range st.blocks {
		in := align.Input{BlockID: b.ID, Kind: b.BlockType, Text: b.Text}
		if t := tableByBlock[b.ID]; t != nil {
			if t.TableNo != nil {
				in.TableNo = *t.TableNo
			}
			if t.Title != nil {
				in.Title = *t.Title
			}
		}
		inputs = append(inputs, in)
	}

	res := align.Align(st.layout, inputs)
	if err := p.st.InsertAnchors(ctx, res.Anchors); err != nil {
		return err
	}

	data, err := json.Marshal(res.BlockPages)
	if err != nil {
		return errors.Wrap(err, errors.CategoryAlign, errors.SeverityError, "encode page map")
	}
	key := objstore.VersionKey(st.projectID, st.version.DocumentID, st.version.ID, "page_map.json")
	if err := p.obj.Put(ctx, key, data); err != nil {
		return err
	}
	return p.st.LinkArtifact(ctx, st.version.ID, "page_map", key)
}

func (p *Pipeline) stageFacts(ctx context.Context, st *state) error {
	extracted := facts.Extract(st.version.ID, st.outline, st.blocks, st.tables)
	if err := p.st.DeleteFacts(ctx, st.version.ID); err != nil {
		return err
	}
	for i := range extracted {
		if err := p.st.UpsertFact(ctx, &extracted[i]); err != nil {
			return err
		}
	}
	observability.Info(ctx, "facts extracted", slog.Int("facts", len(extracted)))
	return nil
}

// stageChunks is reserved for retrieval chunking of the reviewed document
// itself; the knowledge base covers reference material separately.
func (p *Pipeline) stageChunks(ctx context.Context, st *state) error {
	observability.Debug(ctx, "chunk stage skipped")
	return nil
}

func (p *Pipeline) stageFinalize(ctx context.Context, st *state) error {
	observability.Info(ctx, "finalized",
		slog.Int("outline_nodes", len(st.outline)),
		slog.Int("blocks", len(st.blocks)),
		slog.Int("tables", len(st.tables)))
	return nil
}
