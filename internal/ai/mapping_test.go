package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swscloud/reviewd/internal/docmodel"
)

func testIndex() *DocIndex {
	return &DocIndex{
		Blocks: []docmodel.Block{
			{ID: 1, Text: "本项目位于某省，总占地面积12.5hm²。"},
			{ID: 2, Text: "弃渣场设置在主体工程下游，已布设拦挡措施。"},
		},
		PageByBlock: map[int64]int{1: 3, 2: 7},
	}
}

func TestParseBatchResponseMapsIssue(t *testing.T) {
	raw := "```json\n" + `{
		"规则校验结果": [
			{
				"rule_definition": {"rule_id": "R-001", "rule_name": "一致性规则"},
				"issue_title": "总占地面积前后不一致",
				"issue_type": "一致性",
				"severity": "致命",
				"description": "正文与表格不一致。",
				"location": {"anchor_text": "总占地面积12.5hm²"},
				"evidence": {"snippets": ["总占地面积12.5hm²"], "page_refs": [3]},
				"norm_basis": {"basis_text": "GB 50433"},
				"fix_suggestion": {"suggested_text": "统一为12.5hm²", "fix_steps": ["修改表2.1"]}
			}
		],
		"规则库沉淀清单": [
			{"rule_id": "R-001", "rule_summary": "同一数值全文一致"}
		]
	}` + "\n```"

	issues, deposits, err := ParseBatchResponse(raw, testIndex(), map[string]string{"R-001": "TECH"})
	require.NoError(t, err)
	require.Len(t, issues, 1)

	m := issues[0]
	assert.Equal(t, "CONSISTENCY", m.Draft.IssueType)
	assert.Equal(t, docmodel.SeverityS1, m.Draft.Severity)
	assert.Equal(t, "R-001", m.CheckpointCode)
	assert.Equal(t, docmodel.ReviewTech, m.ReviewType)
	require.NotNil(t, m.Draft.PageNo)
	assert.Equal(t, 3, *m.Draft.PageNo)
	assert.Equal(t, []int64{1}, m.Draft.EvidenceBlockIDs)
	assert.Contains(t, m.Draft.Description, "规则：一致性规则")
	assert.Contains(t, m.Draft.Description, "依据：GB 50433")
	assert.Contains(t, m.Draft.Suggestion, "统一为12.5hm²")
	assert.Contains(t, m.Draft.Suggestion, "修改表2.1")

	require.Len(t, deposits, 1)
	assert.Equal(t, "R-001", deposits[0].RuleID)
}

func TestParseBatchResponseInvalidJSON(t *testing.T) {
	_, _, err := ParseBatchResponse("抱歉，我无法输出JSON。", testIndex(), nil)
	assert.Error(t, err)

	_, _, err = ParseBatchResponse(`{"规则校验结果": "not an array"}`, testIndex(), nil)
	assert.Error(t, err)
}

func TestMapEngineIssueDefaults(t *testing.T) {
	raw := `{"规则校验结果": [
		{"issue_title": "某问题", "issue_type": "未知类型", "severity": "离谱"}
	]}`
	issues, _, err := ParseBatchResponse(raw, testIndex(), nil)
	require.NoError(t, err)
	require.Len(t, issues, 1)

	m := issues[0]
	assert.Equal(t, "AI_COMPLIANCE_GAP", m.Draft.IssueType)
	assert.Equal(t, docmodel.SeverityS2, m.Draft.Severity)
	assert.Equal(t, "AI_RULE", m.CheckpointCode)
	assert.Equal(t, "请根据规范库与问题描述自行修正。", m.Draft.Suggestion)
	// No anchor: evidence falls back to the first block, page unresolved.
	assert.Equal(t, []int64{1}, m.Draft.EvidenceBlockIDs)
	assert.Nil(t, m.Draft.PageNo)
}

func TestResolvePageFromAnchor(t *testing.T) {
	raw := `{"规则校验结果": [
		{
			"issue_title": "弃渣场拦挡不足",
			"issue_type": "业务逻辑",
			"severity": "高",
			"location": {"anchor_text": "弃渣场设置在主体工程下游"}
		}
	]}`
	issues, _, err := ParseBatchResponse(raw, testIndex(), nil)
	require.NoError(t, err)
	require.Len(t, issues, 1)

	m := issues[0]
	require.NotNil(t, m.Draft.PageNo)
	assert.Equal(t, 7, *m.Draft.PageNo)
	assert.Equal(t, []int64{2}, m.Draft.EvidenceBlockIDs)
	assert.Equal(t, docmodel.ReviewTech, m.ReviewType)
}

func TestFormatIssueDefaultsToFormReview(t *testing.T) {
	raw := `{"issues": [
		{"issue_title": "标点混用", "issue_type": "标点", "severity": "中"}
	]}`
	issues, _, err := ParseBatchResponse(raw, testIndex(), nil)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "FORMAT", issues[0].Draft.IssueType)
	assert.Equal(t, docmodel.ReviewForm, issues[0].ReviewType)
	assert.Equal(t, docmodel.SeverityS3, issues[0].Draft.Severity)
}

func TestIssueWithoutTitleSkipped(t *testing.T) {
	raw := `{"规则校验结果": [{"issue_type": "格式", "severity": "低"}]}`
	issues, _, err := ParseBatchResponse(raw, testIndex(), nil)
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestAssembleDocTruncatesBlocks(t *testing.T) {
	long := make([]rune, 3000)
	for i := range long {
		long[i] = '字'
	}
	idx := &DocIndex{
		Blocks:      []docmodel.Block{{ID: 1, Text: string(long)}},
		PageByBlock: map[int64]int{1: 2},
	}
	doc := AssembleDoc(idx.Blocks, idx.PageByBlock)
	assert.Contains(t, doc, "[block_id=1][page=2]")
	assert.LessOrEqual(t, len([]rune(doc)), maxBlockChars+64)
}
