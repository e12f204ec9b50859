package kb

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swscloud/reviewd/internal/pagetext"
)

func TestSplitEmpty(t *testing.T) {
	assert.Nil(t, Split("", nil))
}

func TestSplitSingleChunk(t *testing.T) {
	chunks := Split("短文档内容。", nil)
	require.Len(t, chunks, 1)
	c := chunks[0]
	assert.Equal(t, 0, c.Index)
	assert.Equal(t, "短文档内容。", c.Text)
	assert.Equal(t, 0, c.CharStart)
	assert.Equal(t, 6, c.CharEnd)
	assert.Nil(t, c.PageStart)
	assert.Nil(t, c.PageEnd)
}

func TestSplitOverlapWindows(t *testing.T) {
	text := strings.Repeat("水", 2000)
	chunks := Split(text, nil)
	require.Len(t, chunks, 3)

	assert.Equal(t, 0, chunks[0].CharStart)
	assert.Equal(t, 800, chunks[0].CharEnd)
	assert.Equal(t, 700, chunks[1].CharStart)
	assert.Equal(t, 1500, chunks[1].CharEnd)
	assert.Equal(t, 1400, chunks[2].CharStart)
	assert.Equal(t, 2000, chunks[2].CharEnd)

	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, c.CharEnd-c.CharStart, len([]rune(c.Text)))
	}
}

func TestSplitPageSpans(t *testing.T) {
	// Two 600-rune pages of a 3-byte rune: boundaries are byte offsets.
	text := strings.Repeat("持", 1200)
	bounds := []pagetext.PageBoundary{
		{CharStart: 0, CharEnd: 1800, PageNo: 1},
		{CharStart: 1800, CharEnd: 3600, PageNo: 2},
	}
	chunks := Split(text, bounds)
	require.Len(t, chunks, 2)

	require.NotNil(t, chunks[0].PageStart)
	require.NotNil(t, chunks[0].PageEnd)
	assert.Equal(t, 1, *chunks[0].PageStart)
	assert.Equal(t, 2, *chunks[0].PageEnd)

	require.NotNil(t, chunks[1].PageStart)
	assert.Equal(t, 2, *chunks[1].PageStart)
	assert.Equal(t, 2, *chunks[1].PageEnd)
}

func TestChunkMeta(t *testing.T) {
	ps, pe := 1, 2
	c := Chunk{Index: 3, Text: "x", CharStart: 2100, CharEnd: 2900, PageStart: &ps, PageEnd: &pe}

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(c.Meta()), &m))
	assert.EqualValues(t, 3, m["chunk_index"])
	assert.EqualValues(t, 2100, m["char_start"])
	assert.EqualValues(t, 2900, m["char_end"])
	assert.EqualValues(t, 1, m["page_start"])
	assert.EqualValues(t, 2, m["page_end"])

	bare := Chunk{Index: 0}
	assert.NotContains(t, bare.Meta(), "page_start")
}

func TestChunkHashStable(t *testing.T) {
	a := Chunk{Text: "同样的内容"}
	b := Chunk{Text: "同样的内容"}
	c := Chunk{Text: "不同的内容"}
	assert.Equal(t, a.Hash(), b.Hash())
	assert.NotEqual(t, a.Hash(), c.Hash())
	assert.Len(t, a.Hash(), 64)
}
