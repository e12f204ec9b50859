package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swscloud/reviewd/internal/docmodel"
)

func TestFormatCoverElements(t *testing.T) {
	ctx := &Context{
		Blocks: []docmodel.Block{
			{ID: 1, BlockType: docmodel.BlockPara, Text: "某高速公路工程水土保持方案报告书"},
			{ID: 2, BlockType: docmodel.BlockPara, Text: "2024年6月"},
			{ID: 3, BlockType: docmodel.BlockHeading, Text: "综合说明"},
		},
	}
	drafts := FormatReview(ctx, RuleConfig{OnlyChecks: []string{"cover_required_elements"}})
	// 方案名称 and 编制日期 are present; 责任单位 is missing.
	require.Len(t, drafts, 1)
	assert.Equal(t, "封面缺少责任单位", drafts[0].Title)
	assert.Equal(t, docmodel.SeverityS3, drafts[0].Severity)
}

func TestFormatHeadingNumberingGap(t *testing.T) {
	ctx := &Context{
		Outline: []docmodel.OutlineNode{
			{ID: 1, NodeNo: "1", Title: "综合说明", Level: 1},
			{ID: 2, NodeNo: "2", Title: "项目概况", Level: 1},
			{ID: 3, NodeNo: "4", Title: "防治措施", Level: 1},
		},
		HeadingBlockByNode: map[int64]int64{3: 33},
	}
	drafts := FormatReview(ctx, RuleConfig{OnlyChecks: []string{"heading_numbering"}})
	require.Len(t, drafts, 1)
	assert.Contains(t, drafts[0].Description, "应为 3")
	assert.Equal(t, []int64{33}, drafts[0].EvidenceBlockIDs)
}

func TestFormatTableNumberingDuplicate(t *testing.T) {
	no := "表2.1"
	ctx := &Context{Tables: []TableWithCells{
		{Table: docmodel.Table{ID: 1, TableNo: &no}, BlockID: i64(1)},
		{Table: docmodel.Table{ID: 2, TableNo: &no}, BlockID: i64(2)},
	}}
	drafts := FormatReview(ctx, RuleConfig{OnlyChecks: []string{"table_numbering"}})
	require.Len(t, drafts, 1)
	assert.Equal(t, "表号重复：表2.1", drafts[0].Title)
	assert.Equal(t, docmodel.SeverityS2, drafts[0].Severity)
}

func TestFormatTableReferenced(t *testing.T) {
	no := "表3.1"
	title := "土石方平衡表"
	ctx := &Context{
		Blocks: []docmodel.Block{
			{ID: 1, BlockType: docmodel.BlockPara, Text: "土石方平衡情况见表3.1。"},
		},
		Tables: []TableWithCells{
			{Table: docmodel.Table{ID: 1, TableNo: &no, Title: &title}, BlockID: i64(5)},
		},
	}
	drafts := FormatReview(ctx, RuleConfig{OnlyChecks: []string{"table_referenced"}})
	assert.Empty(t, drafts)

	ctx.Blocks[0].Text = "本节介绍土石方平衡情况。"
	drafts = FormatReview(ctx, RuleConfig{OnlyChecks: []string{"table_referenced"}})
	require.Len(t, drafts, 1)
	assert.Equal(t, "正文未引用表3.1", drafts[0].Title)
}

func TestFormatUnitSymbolMix(t *testing.T) {
	ctx := &Context{Blocks: []docmodel.Block{
		{ID: 1, BlockType: docmodel.BlockPara, Text: "占地12.5hm²，另有3公顷临时用地。"},
	}}
	drafts := FormatReview(ctx, RuleConfig{OnlyChecks: []string{"unit_symbol_consistency"}})
	require.Len(t, drafts, 1)
	assert.Equal(t, "面积单位写法不统一", drafts[0].Title)
}

func TestFormatUnitSymbolShadowed(t *testing.T) {
	// m² only appears inside hm² and must not count as a second variant.
	ctx := &Context{Blocks: []docmodel.Block{
		{ID: 1, BlockType: docmodel.BlockPara, Text: "占地12.5hm²，扰动面积10hm²。"},
	}}
	drafts := FormatReview(ctx, RuleConfig{OnlyChecks: []string{"unit_symbol_consistency"}})
	assert.Empty(t, drafts)
}

func TestFormatTableUnitColumn(t *testing.T) {
	ctx := singleTableCtx(TableWithCells{
		Table:   docmodel.Table{ID: 4, NRows: 2, NCols: 2},
		BlockID: i64(9),
		Cells: []docmodel.Cell{
			textCell(0, 0, "分区"), textCell(0, 1, "挖方"),
			textCell(1, 0, "甲区"), numCell(1, 1, "100", 100),
		},
	})
	drafts := FormatReview(ctx, RuleConfig{OnlyChecks: []string{"table_unit_column_present"}})
	require.Len(t, drafts, 1)
	assert.Contains(t, drafts[0].Title, "未标注计量单位")

	// A 单位 header suppresses the finding.
	ctx.Tables[0].Cells[1] = textCell(0, 1, "挖方(单位:m³)")
	drafts = FormatReview(ctx, RuleConfig{OnlyChecks: []string{"table_unit_column_present"}})
	assert.Empty(t, drafts)
}

func TestContentTriggerRequirements(t *testing.T) {
	ctx := &Context{
		Outline: []docmodel.OutlineNode{{ID: 1, Title: "防治措施"}},
		Blocks: []docmodel.Block{
			{ID: 1, BlockType: docmodel.BlockPara, Text: "本工程弃渣主要来自路基开挖，已设置拦挡与排水设施。"},
		},
		FactsByKey: map[string][]docmodel.Fact{
			"是否弃渣": {{FactKey: "是否弃渣", ValueText: str("弃渣"), SourceBlockID: i64(1)}},
		},
	}
	drafts := ContentReview(ctx, RuleConfig{OnlyChecks: []string{"trigger_requirements"}})

	titles := make([]string, 0, len(drafts))
	for _, d := range drafts {
		assert.Equal(t, docmodel.SeverityS2, d.Severity)
		titles = append(titles, d.Title)
	}
	// 弃渣场 chapter and 覆盖 measure are missing; 拦挡 and 排水 are present.
	assert.Contains(t, titles, "触发条件“是否弃渣”成立但缺少“弃渣场”章节")
	assert.Contains(t, titles, "触发条件“是否弃渣”成立但未见“覆盖”措施")
	assert.Len(t, drafts, 2)
}

func TestContentResponsibilityAreaQuantified(t *testing.T) {
	ctx := &Context{Blocks: []docmodel.Block{
		{ID: 1, BlockType: docmodel.BlockPara, Text: "防治责任范围包括项目建设区和直接影响区。"},
	}}
	drafts := ContentReview(ctx, RuleConfig{OnlyChecks: []string{"required_elements"}})
	require.Len(t, drafts, 1)
	assert.Equal(t, "防治责任范围未量化", drafts[0].Title)

	ctx.Blocks[0].Text = "防治责任范围面积共计15.2hm²。"
	drafts = ContentReview(ctx, RuleConfig{OnlyChecks: []string{"required_elements"}})
	assert.Empty(t, drafts)
}

func TestRunCheckpointsDispatch(t *testing.T) {
	reg := NewRegistry()
	rctx := &Context{
		Outline:            []docmodel.OutlineNode{{ID: 1, Title: "综合说明"}},
		HeadingBlockByNode: map[int64]int64{1: 1},
	}
	checkpoints := []docmodel.Checkpoint{
		{Code: "MISSING_SECTION", ReviewCategory: "FORM", EngineType: docmodel.EngineRule,
			RuleConfig: `{"executor":"missing_section","required_sections":["结论"]}`},
		{Code: "NO_SUCH", RuleConfig: `{"executor":"does_not_exist"}`},
	}
	out := RunCheckpoints(t.Context(), reg, rctx, checkpoints)
	require.Len(t, out, 1)
	assert.Equal(t, "MISSING_SECTION", out[0].CheckpointCode)
	assert.Equal(t, "FORM", out[0].ReviewCategory)
	assert.Equal(t, "MISSING_SECTION", out[0].Draft.IssueType)
}
