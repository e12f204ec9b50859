package docxparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func para(style, text string) Element {
	return Element{Kind: ElemPara, Style: style, Text: text}
}

func table(rows ...[]string) Element {
	return Element{Kind: ElemTable, Rows: rows}
}

func TestDetectHeading(t *testing.T) {
	cases := []struct {
		style string
		text  string
		level int
		ok    bool
	}{
		{"Heading 1", "综合说明", 1, true},
		{"标题 2", "任意文字", 2, true},
		{"", "1 综合说明", 1, true},
		{"", "2.3 水土流失预测", 2, true},
		{"", "3.1.2 弃渣场设计", 3, true},
		{"", "附表", 1, true},
		{"", "附件 3", 2, true},
		{"", "2023年11月9日", 0, false},
		{"", "本项目位于某省某市。", 0, false},
		{"", "1000 立方米", 0, false},
		{"", "", 0, false},
	}
	for _, c := range cases {
		level, ok := DetectHeading(c.style, c.text)
		assert.Equal(t, c.ok, ok, "text=%q", c.text)
		if c.ok {
			assert.Equal(t, c.level, level, "text=%q", c.text)
		}
	}
}

func TestParseNumber(t *testing.T) {
	v, unit := ParseNumber("12,345.6 hm²")
	require.NotNil(t, v)
	assert.InDelta(t, 12345.6, *v, 1e-9)
	require.NotNil(t, unit)
	assert.Equal(t, "hm²", *unit)

	v, unit = ParseNumber("（200）")
	require.NotNil(t, v)
	assert.InDelta(t, -200, *v, 1e-9)
	assert.Nil(t, unit)

	v, _ = ParseNumber("合计")
	assert.Nil(t, v)

	v, unit = ParseNumber("0.85")
	require.NotNil(t, v)
	assert.InDelta(t, 0.85, *v, 1e-9)
	assert.Nil(t, unit)
}

func TestBuildStructureOutline(t *testing.T) {
	doc := BuildStructure([]Element{
		para("", "1 综合说明"),
		para("", "项目基本情况介绍。"),
		para("", "1.1 项目概况"),
		para("", "占地面积 12.5 hm²。"),
		para("", "2 项目概况"),
	}, Options{})

	require.Len(t, doc.Nodes, 3)
	assert.Equal(t, "1", doc.Nodes[0].NodeNo)
	assert.Equal(t, "综合说明", doc.Nodes[0].Title)
	assert.Equal(t, 1, doc.Nodes[0].Level)
	assert.Equal(t, -1, doc.Nodes[0].ParentIdx)

	assert.Equal(t, "1.1", doc.Nodes[1].NodeNo)
	assert.Equal(t, 0, doc.Nodes[1].ParentIdx)

	assert.Equal(t, "2", doc.Nodes[2].NodeNo)
	assert.Equal(t, -1, doc.Nodes[2].ParentIdx)

	// Heading and paragraph blocks interleave in document order.
	kinds := make([]BlockKind, 0, len(doc.Blocks))
	for _, b := range doc.Blocks {
		kinds = append(kinds, b.Kind)
	}
	assert.Equal(t, []BlockKind{KindHeading, KindPara, KindHeading, KindPara, KindHeading}, kinds)
}

func TestBuildStructureTOCDedup(t *testing.T) {
	doc := BuildStructure([]Element{
		para("", "目录"),
		para("", "1 综合说明 1"),
		para("", "2 项目概况 5"),
		para("", "1 综合说明"),
		para("", "正文内容。"),
		para("", "2 项目概况"),
	}, Options{})

	require.Len(t, doc.Nodes, 2)
	assert.Equal(t, "综合说明", doc.Nodes[0].Title)
	assert.Equal(t, "项目概况", doc.Nodes[1].Title)
}

func TestBuildStructureTOCWithoutMarker(t *testing.T) {
	// Some documents open straight into TOC lines without a 目录 paragraph.
	// Headings ending in a bare page number must be stripped and must not
	// duplicate their body counterparts.
	doc := BuildStructure([]Element{
		para("Heading 1", "综合说明 12"),
		para("Heading 1", "防治措施 15"),
		para("Heading 1", "综合说明"),
		para("Heading 1", "防治措施"),
	}, Options{})

	require.Len(t, doc.Nodes, 2)
	assert.Equal(t, "综合说明", doc.Nodes[0].Title)
	assert.Equal(t, "防治措施", doc.Nodes[1].Title)
}

func TestBuildStructureSpacedTOCMarker(t *testing.T) {
	doc := BuildStructure([]Element{
		para("", "目 录"),
		para("", "1 综合说明 3"),
		para("", "1 综合说明"),
	}, Options{})

	require.Len(t, doc.Nodes, 1)
	assert.Equal(t, "综合说明", doc.Nodes[0].Title)
}

func TestBuildStructureAppendixNotTOC(t *testing.T) {
	doc := BuildStructure([]Element{
		para("", "附件 3"),
	}, Options{})

	require.Len(t, doc.Nodes, 1)
	assert.Equal(t, "附件 3", doc.Nodes[0].Title)
	assert.Equal(t, 2, doc.Nodes[0].Level)
}

func TestBuildStructureTableCaption(t *testing.T) {
	doc := BuildStructure([]Element{
		para("", "1 土石方平衡"),
		para("", "表1.1 土石方平衡表"),
		table(
			[]string{"分区", "挖方", "填方"},
			[]string{"主体工程区", "1000", "800"},
		),
	}, Options{})

	require.Len(t, doc.Tables, 1)
	tb := doc.Tables[0]
	require.NotNil(t, tb.TableNo)
	assert.Equal(t, "表1.1", *tb.TableNo)
	require.NotNil(t, tb.Title)
	assert.Equal(t, "土石方平衡表", *tb.Title)

	require.Len(t, tb.Rows, 2)
	require.NotNil(t, tb.Rows[1][1].Num)
	assert.InDelta(t, 1000, *tb.Rows[1][1].Num, 1e-9)
	assert.Nil(t, tb.Rows[0][0].Num)
}

func TestBuildStructureRepeatedOutlineArtifact(t *testing.T) {
	elems := []Element{
		para("", "1 综合说明"),
		para("", "2 项目概况"),
		para("", "3 水土流失预测"),
		para("", "4 防治措施"),
		para("", "5 监测"),
		para("", "6 投资估算"),
		// The generator re-emits the leading outline; it must not duplicate.
		para("", "1 综合说明"),
		para("", "2 项目概况"),
	}
	doc := BuildStructure(elems, Options{DedupWindow: 10})
	assert.Len(t, doc.Nodes, 6)
}
