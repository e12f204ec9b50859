package review

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swscloud/reviewd/internal/docmodel"
	"github.com/swscloud/reviewd/internal/norms"
)

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }
func str(s string) *string   { return &s }

func numCell(row, col int, text string, v float64) docmodel.Cell {
	return docmodel.Cell{Row: row, Col: col, Text: text, NumValue: f64(v)}
}

func textCell(row, col int, text string) docmodel.Cell {
	return docmodel.Cell{Row: row, Col: col, Text: text}
}

func singleTableCtx(t TableWithCells) *Context {
	return &Context{
		Tables:             []TableWithCells{t},
		BlocksByID:         map[int64]*docmodel.Block{},
		BlocksByOutline:    map[int64][]*docmodel.Block{},
		FactsByKey:         map[string][]docmodel.Fact{},
		HeadingBlockByNode: map[int64]int64{},
	}
}

func TestSumMismatchRow(t *testing.T) {
	tbl := TableWithCells{
		Table:   docmodel.Table{ID: 1, TableNo: str("表4.1"), NRows: 4, NCols: 2},
		BlockID: i64(10),
		Cells: []docmodel.Cell{
			textCell(0, 0, "分区"), textCell(0, 1, "面积"),
			textCell(1, 0, "甲区"), numCell(1, 1, "3", 3),
			textCell(2, 0, "乙区"), numCell(2, 1, "4", 4),
			textCell(3, 0, "合计"), numCell(3, 1, "9", 9),
		},
	}
	drafts := SumMismatch(singleTableCtx(tbl), RuleConfig{})
	require.Len(t, drafts, 1)
	d := drafts[0]
	assert.Equal(t, "SUM_MISMATCH_ROW", d.IssueType)
	assert.Equal(t, docmodel.SeverityS1, d.Severity)
	assert.Contains(t, d.Description, "3 + 4 = 7 ≠ 9")
	assert.Equal(t, []int64{10}, d.EvidenceBlockIDs)
}

func TestSumMismatchRowWithinTolerance(t *testing.T) {
	tbl := TableWithCells{
		Table: docmodel.Table{ID: 1, NRows: 4, NCols: 2},
		Cells: []docmodel.Cell{
			textCell(1, 0, "甲区"), numCell(1, 1, "3.001", 3.001),
			textCell(2, 0, "乙区"), numCell(2, 1, "4", 4),
			textCell(3, 0, "合计"), numCell(3, 1, "7", 7),
		},
	}
	drafts := SumMismatch(singleTableCtx(tbl), RuleConfig{})
	assert.Empty(t, drafts)
}

func TestSumMismatchPercentages(t *testing.T) {
	tbl := TableWithCells{
		Table: docmodel.Table{ID: 2, NRows: 3, NCols: 2},
		Cells: []docmodel.Cell{
			textCell(0, 0, "分区"), textCell(0, 1, "占比"),
			textCell(1, 0, "甲区"), numCell(1, 1, "60", 60),
			textCell(2, 0, "乙区"), numCell(2, 1, "30", 30),
		},
	}
	drafts := SumMismatch(singleTableCtx(tbl), RuleConfig{OnlyChecks: []string{"percentages"}})
	require.Len(t, drafts, 1)
	assert.Equal(t, "PERCENTAGE_SUM_MISMATCH", drafts[0].IssueType)
	assert.Contains(t, drafts[0].Description, "90")
}

func TestConsistencyNumericMismatch(t *testing.T) {
	ctx := &Context{FactsByKey: map[string][]docmodel.Fact{
		"总占地面积": {
			{FactKey: "总占地面积", ValueNum: f64(125000), Unit: str("m²"), Scope: "1 综合说明", SourceBlockID: i64(1)},
			{FactKey: "总占地面积", ValueNum: f64(118000), Unit: str("m²"), Scope: "表2.1", SourceBlockID: i64(2)},
		},
	}}
	drafts := ConsistencyReview(ctx, RuleConfig{})
	require.Len(t, drafts, 1)
	d := drafts[0]
	assert.Equal(t, "CONSISTENCY_VALUE_MISMATCH", d.IssueType)
	assert.ElementsMatch(t, []int64{1, 2}, d.EvidenceBlockIDs)
}

func TestConsistencyUnitAwareMatch(t *testing.T) {
	// 12.5 hm² and 125000 m² are the same quantity.
	ctx := &Context{FactsByKey: map[string][]docmodel.Fact{
		"总占地面积": {
			{FactKey: "总占地面积", ValueNum: f64(12.5), Unit: str("hm²"), Scope: "正文"},
			{FactKey: "总占地面积", ValueNum: f64(125000), Unit: str("m²"), Scope: "表格"},
		},
	}}
	assert.Empty(t, ConsistencyReview(ctx, RuleConfig{}))
}

func TestFormulaBalanceMismatch(t *testing.T) {
	ctx := &Context{FactsByKey: map[string][]docmodel.Fact{
		"挖方":  {{ValueNum: f64(10000), SourceBlockID: i64(1)}},
		"填方":  {{ValueNum: f64(5000), SourceBlockID: i64(2)}},
		"弃方":  {{ValueNum: f64(3000), SourceBlockID: i64(3)}},
		"外运量": {{ValueNum: f64(1000), SourceBlockID: i64(4)}},
	}}
	drafts := FormulaCalculation(ctx, RuleConfig{FormulaType: "balance"})
	require.Len(t, drafts, 1)
	d := drafts[0]
	assert.Equal(t, "FORMULA_BALANCE_MISMATCH", d.IssueType)
	assert.Contains(t, d.Description, "5000 + 3000 + 1000 = 9000 ≠ 10000")
	assert.Len(t, d.EvidenceBlockIDs, 4)
}

func TestFormulaBalanceHolds(t *testing.T) {
	ctx := &Context{FactsByKey: map[string][]docmodel.Fact{
		"挖方":  {{ValueNum: f64(9000)}},
		"填方":  {{ValueNum: f64(5000)}},
		"弃方":  {{ValueNum: f64(3000)}},
		"外运量": {{ValueNum: f64(1000)}},
	}}
	assert.Empty(t, FormulaCalculation(ctx, RuleConfig{FormulaType: "balance"}))
}

func TestFormulaSixIndicators(t *testing.T) {
	tbl := TableWithCells{
		Table:   docmodel.Table{ID: 7, Title: str("六项指标达标情况表"), NRows: 2, NCols: 2},
		BlockID: i64(30),
		Cells: []docmodel.Cell{
			textCell(0, 0, "指标"), textCell(0, 1, "数值"),
			textCell(1, 0, "治理度"), numCell(1, 1, "0.85", 0.85),
		},
	}
	ctx := singleTableCtx(tbl)
	ctx.FactsByKey = map[string][]docmodel.Fact{
		"治理达标面积":  {{ValueNum: f64(8000), SourceBlockID: i64(1)}},
		"水土流失总面积": {{ValueNum: f64(10000), SourceBlockID: i64(2)}},
	}
	drafts := FormulaCalculation(ctx, RuleConfig{FormulaType: "six_indicators"})
	require.Len(t, drafts, 1)
	assert.Equal(t, "FORMULA_MISMATCH_SIX_INDICATORS", drafts[0].IssueType)
	assert.Contains(t, drafts[0].Description, "0.8000 ≠ 0.8500")
}

func TestFormulaSixIndicatorsSingleCell(t *testing.T) {
	// Name and value glued into one cell still supply the stated indicator.
	tbl := TableWithCells{
		Table:   docmodel.Table{ID: 8, Title: str("六项指标达标情况表"), NRows: 2, NCols: 1},
		BlockID: i64(31),
		Cells: []docmodel.Cell{
			textCell(0, 0, "指标"),
			numCell(1, 0, "治理度 0.85", 0.85),
		},
	}
	ctx := singleTableCtx(tbl)
	ctx.FactsByKey = map[string][]docmodel.Fact{
		"治理达标面积":  {{ValueNum: f64(8000), SourceBlockID: i64(1)}},
		"水土流失总面积": {{ValueNum: f64(10000), SourceBlockID: i64(2)}},
	}
	drafts := FormulaCalculation(ctx, RuleConfig{FormulaType: "six_indicators"})
	require.Len(t, drafts, 1)
	assert.Equal(t, "FORMULA_MISMATCH_SIX_INDICATORS", drafts[0].IssueType)
	assert.Contains(t, drafts[0].Description, "0.8000 ≠ 0.8500")
}

func TestUnitInconsistent(t *testing.T) {
	tbl := TableWithCells{
		Table:   docmodel.Table{ID: 3, NRows: 3, NCols: 1},
		BlockID: i64(20),
		Cells: []docmodel.Cell{
			{Row: 1, Col: 0, Text: "100 m³", NumValue: f64(100), Unit: str("m³")},
			{Row: 2, Col: 0, Text: "5 万m³", NumValue: f64(5), Unit: str("万m³")},
		},
	}
	drafts := UnitInconsistent(singleTableCtx(tbl), RuleConfig{})
	require.Len(t, drafts, 1)
	assert.Equal(t, "UNIT_INCONSISTENT", drafts[0].IssueType)
	assert.Contains(t, drafts[0].Description, "m³")
}

func TestMissingSection(t *testing.T) {
	ctx := &Context{
		Outline: []docmodel.OutlineNode{
			{ID: 1, Title: "综合说明"},
			{ID: 2, Title: "项目概况"},
		},
		HeadingBlockByNode: map[int64]int64{1: 100},
	}
	drafts := MissingSection(ctx, RuleConfig{})
	require.NotEmpty(t, drafts)
	titles := make([]string, 0, len(drafts))
	for _, d := range drafts {
		assert.Equal(t, "MISSING_SECTION", d.IssueType)
		assert.Equal(t, []int64{100}, d.EvidenceBlockIDs)
		titles = append(titles, d.Title)
	}
	assert.Contains(t, titles, "缺少必备章节：结论")
}

func TestMissingSectionConfiguredList(t *testing.T) {
	ctx := &Context{Outline: []docmodel.OutlineNode{{ID: 1, Title: "结论"}}}
	drafts := MissingSection(ctx, RuleConfig{RequiredSections: []string{"结论"}})
	assert.Empty(t, drafts)
}

func TestBusinessLogicProhibition(t *testing.T) {
	ctx := &Context{Blocks: []docmodel.Block{
		{ID: 1, BlockType: docmodel.BlockPara, Text: "消纳场位于某水源保护区下游一公里处。"},
		{ID: 2, BlockType: docmodel.BlockPara, Text: "消纳场已按规范设置拦挡。"},
	}}
	drafts := BusinessLogicReview(ctx, RuleConfig{})
	require.Len(t, drafts, 1)
	assert.Equal(t, "BUSINESS_LOGIC", drafts[0].IssueType)
	assert.Equal(t, []int64{1}, drafts[0].EvidenceBlockIDs)
}

func TestNormCitationReview(t *testing.T) {
	dir := t.TempDir()
	data := `- code: GB50433
  standard: GB 50433-2018
  title: 生产建设项目水土保持技术标准
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "norms.yaml"), []byte(data), 0o644))
	lib, err := norms.NewLibrary(dir)
	require.NoError(t, err)

	ctx := &Context{
		Norms: lib,
		Blocks: []docmodel.Block{
			{ID: 1, BlockType: docmodel.BlockPara, Text: "本方案依据GB 50433-2008编制。"},
			{ID: 2, BlockType: docmodel.BlockPara, Text: "同时参照GB 50433-2018的规定。"},
		},
	}
	drafts := NormCitationReview(ctx, RuleConfig{})
	require.Len(t, drafts, 1)
	assert.Contains(t, drafts[0].Title, "GB 50433-2008")
	assert.Equal(t, []int64{1}, drafts[0].EvidenceBlockIDs)
}

func TestNormCitationNoLibrary(t *testing.T) {
	ctx := &Context{Blocks: []docmodel.Block{{ID: 1, Text: "依据GB 50433-2008。"}}}
	assert.Empty(t, NormCitationReview(ctx, RuleConfig{}))
}
