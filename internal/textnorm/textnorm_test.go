package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNorm(t *testing.T) {
	assert.Equal(t, "", Norm(""))
	assert.Equal(t, "a b c", Norm("  a \t b\n\nc  "))
	assert.Equal(t, "水土 保持", Norm("水土　保持"))
	assert.Equal(t, "abc", Norm("\ufeffa\u200bb\u200cc\u200d"))
}

func TestCompact(t *testing.T) {
	assert.Equal(t, "水土保持方案", Compact(" 水土 保持\n方案 "))
	assert.Equal(t, "", Compact("  \t\n"))
}

func TestFoldWidth(t *testing.T) {
	assert.Equal(t, "GB50433", FoldWidth("ＧＢ５０４３３"))
	assert.Equal(t, "12.5hm", FoldWidth("１２．５hm"))
	// CJK stays untouched.
	assert.Equal(t, "水土保持", FoldWidth("水土保持"))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "水土保", TruncateRunes("水土保持方案", 3))
	assert.Equal(t, "短", TruncateRunes("短", 10))
	assert.Equal(t, "", TruncateRunes("任何", 0))
}
