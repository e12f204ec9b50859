package align

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swscloud/reviewd/internal/docmodel"
	"github.com/swscloud/reviewd/internal/pagetext"
)

// fakeSource serves fixed page texts; Find returns one rect per occurrence
// with Y0 proportional to the match offset.
type fakeSource struct {
	pages []string
}

func (f *fakeSource) PageCount() int { return len(f.pages) }

func (f *fakeSource) PageNormText(p int) string {
	if p < 1 || p > len(f.pages) {
		return ""
	}
	return pagetext.Normalize(f.pages[p-1])
}

func (f *fakeSource) PageSize(int) (float64, float64) { return 595, 842 }

func (f *fakeSource) Find(p int, fragment string) []docmodel.Rect {
	text := f.PageNormText(p)
	var out []docmodel.Rect
	off := 0
	for {
		i := strings.Index(text[off:], fragment)
		if i < 0 {
			return out
		}
		pos := off + i
		y := float64(pos)
		out = append(out, docmodel.Rect{X0: 50, Y0: y, X1: 500, Y1: y + 12})
		off = pos + len(fragment)
	}
}

func TestAlignAnchorsBlocks(t *testing.T) {
	src := &fakeSource{pages: []string{
		"第一章 综合说明 本项目位于某省某市某县境内，是一条新建公路工程。",
		"第二章 项目概况 项目占地面积共计十二点五公顷，其中永久占地十公顷。",
	}}
	blocks := []Input{
		{BlockID: 1, Kind: docmodel.BlockPara, Text: "本项目位于某省某市某县境内，是一条新建公路工程。"},
		{BlockID: 2, Kind: docmodel.BlockPara, Text: "项目占地面积共计十二点五公顷，其中永久占地十公顷。"},
	}

	res := Align(src, blocks)
	require.Len(t, res.Anchors, 2)
	assert.Equal(t, 1, res.Anchors[0].PageNo)
	assert.Equal(t, 2, res.Anchors[1].PageNo)
	for _, a := range res.Anchors {
		assert.Greater(t, a.Confidence, 0.0)
		assert.LessOrEqual(t, a.Confidence, 1.0)
		assert.Greater(t, a.NY1, a.NY0)
	}

	require.Len(t, res.BlockPages, 2)
	require.NotNil(t, res.BlockPages[0].PageNo)
	assert.Equal(t, 1, *res.BlockPages[0].PageNo)
	require.NotNil(t, res.BlockPages[1].PageNo)
	assert.Equal(t, 2, *res.BlockPages[1].PageNo)
}

func TestAlignUnmatchedBlockGetsNilPage(t *testing.T) {
	src := &fakeSource{pages: []string{"完全无关的页面内容，什么也对不上。"}}
	res := Align(src, []Input{
		{BlockID: 7, Kind: docmodel.BlockPara, Text: "这段文字根本不在任何页面上出现过的样子。"},
	})
	assert.Empty(t, res.Anchors)
	require.Len(t, res.BlockPages, 1)
	assert.Nil(t, res.BlockPages[0].PageNo)
}

func TestAlignShortBlockSkipped(t *testing.T) {
	src := &fakeSource{pages: []string{"短文本 页面"}}
	res := Align(src, []Input{
		{BlockID: 3, Kind: docmodel.BlockPara, Text: "短文本"},
	})
	assert.Empty(t, res.Anchors)
	require.Len(t, res.BlockPages, 1)
	assert.Nil(t, res.BlockPages[0].PageNo)
}

func TestAlignTableByCaption(t *testing.T) {
	src := &fakeSource{pages: []string{
		"一些前置文字。表2.1 土石方平衡汇总表 分区 挖方 填方",
	}}
	res := Align(src, []Input{
		{BlockID: 9, Kind: docmodel.BlockTable, TableNo: "表2.1", Title: "土石方平衡汇总表"},
	})
	require.Len(t, res.Anchors, 1)
	assert.Equal(t, 1, res.Anchors[0].PageNo)
	assert.Equal(t, int64(9), res.Anchors[0].BlockID)
}

func TestCandidatePagesWindowFarEdge(t *testing.T) {
	probe := "弃渣场拦挡措施应当先行实施到位"
	pages := make([]string, 12)
	for i := range pages {
		pages[i] = "其他无关的页面内容"
	}
	pages[4] = "前文。" + probe + "后文。"
	pages[7] = probe + " 再次出现"
	src := &fakeSource{pages: pages}

	// From last page 3 the first window spans pages 2..5; page 5 sits on its
	// far edge, so the wider window that would also pick up page 8 is never
	// consulted.
	got := candidatePages(src, pagetext.Normalize(probe), 3, len(pages))
	assert.Equal(t, []int{5}, got)
}

func TestAlignForwardProgressionOnRepeatedText(t *testing.T) {
	repeated := "每个分区均应布设临时排水与沉沙措施，并及时覆盖。"
	src := &fakeSource{pages: []string{
		"第一段 " + repeated + " 中间其他内容 " + repeated + " 结尾",
	}}
	blocks := []Input{
		{BlockID: 1, Kind: docmodel.BlockPara, Text: repeated},
		{BlockID: 2, Kind: docmodel.BlockPara, Text: repeated},
	}
	res := Align(src, blocks)
	require.Len(t, res.Anchors, 2)
	// The second occurrence must sit at or below the first.
	assert.GreaterOrEqual(t, res.Anchors[1].Y0, res.Anchors[0].Y0)
}
