package facts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swscloud/reviewd/internal/docmodel"
)

func TestNormalizeUnit(t *testing.T) {
	v, u := NormalizeUnit(1.2, "万m³")
	assert.InDelta(t, 12000, v, 1e-9)
	assert.Equal(t, "m³", u)

	v, u = NormalizeUnit(12.5, "hm²")
	assert.InDelta(t, 125000, v, 1e-9)
	assert.Equal(t, "m²", u)

	v, u = NormalizeUnit(3.4, "公顷")
	assert.InDelta(t, 34000, v, 1e-9)
	assert.Equal(t, "m²", u)

	v, u = NormalizeUnit(500, "m³")
	assert.InDelta(t, 500, v, 1e-9)
	assert.Equal(t, "m³", u)

	v, u = NormalizeUnit(7, "")
	assert.InDelta(t, 7, v, 1e-9)
	assert.Equal(t, "", u)
}

func TestScopeFor(t *testing.T) {
	assert.Equal(t, ProjectScope, ScopeFor(nil))
	assert.Equal(t, "2.1 项目概况", ScopeFor(&docmodel.OutlineNode{NodeNo: "2.1", Title: "项目概况"}))
	assert.Equal(t, ProjectScope, ScopeFor(&docmodel.OutlineNode{}))
}

func TestExtractBlockFacts(t *testing.T) {
	nodeID := int64(11)
	outline := []docmodel.OutlineNode{{ID: nodeID, NodeNo: "2", Title: "项目概况"}}
	blocks := []docmodel.Block{
		{ID: 1, OutlineNodeID: &nodeID, Text: "项目总占地面积12.5hm²，其中永久占地10hm²。"},
		{ID: 2, Text: "挖方量：1.2万m³，填方量：0.8万m³。"},
	}

	facts := Extract(42, outline, blocks, nil)

	byKey := make(map[string][]docmodel.Fact)
	for _, f := range facts {
		byKey[f.FactKey] = append(byKey[f.FactKey], f)
	}

	area := byKey["总占地面积"]
	require.NotEmpty(t, area)
	require.NotNil(t, area[0].ValueNum)
	assert.InDelta(t, 125000, *area[0].ValueNum, 1e-6)
	require.NotNil(t, area[0].Unit)
	assert.Equal(t, "m²", *area[0].Unit)
	assert.Equal(t, "2 项目概况", area[0].Scope)

	dig := byKey["挖方"]
	require.NotEmpty(t, dig)
	require.NotNil(t, dig[0].ValueNum)
	assert.InDelta(t, 12000, *dig[0].ValueNum, 1e-6)
	assert.Equal(t, ProjectScope, dig[0].Scope)

	for _, f := range facts {
		assert.Equal(t, int64(42), f.VersionID)
		assert.Greater(t, f.Confidence, 0.0)
	}
}

func TestExtractTableFacts(t *testing.T) {
	tableNo := "表3.1"
	num := 800.0
	unit := "m³"
	blockID := int64(5)
	ti := TableInput{
		Table:   docmodel.Table{ID: 3, TableNo: &tableNo, NRows: 2, NCols: 2},
		BlockID: &blockID,
		Cells: []docmodel.Cell{
			{TableID: 3, Row: 0, Col: 0, Text: "分区"},
			{TableID: 3, Row: 0, Col: 1, Text: "填方(m³)"},
			{TableID: 3, Row: 1, Col: 0, Text: "主体工程区"},
			{TableID: 3, Row: 1, Col: 1, Text: "800", NumValue: &num, Unit: &unit},
		},
	}

	facts := Extract(1, nil, nil, []TableInput{ti})

	var fill *docmodel.Fact
	for i := range facts {
		if facts[i].FactKey == "填方" {
			fill = &facts[i]
			break
		}
	}
	require.NotNil(t, fill)
	require.NotNil(t, fill.ValueNum)
	assert.InDelta(t, 800, *fill.ValueNum, 1e-9)
	assert.Equal(t, "表3.1", fill.Scope)
	require.NotNil(t, fill.SourceTableID)
	assert.Equal(t, int64(3), *fill.SourceTableID)
	require.NotNil(t, fill.SourceBlockID)
	assert.Equal(t, blockID, *fill.SourceBlockID)
}
