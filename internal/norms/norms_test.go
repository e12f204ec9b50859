package norms

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swscloud/reviewd/internal/docmodel"
)

func writeLibrary(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, data := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(data), 0o644))
	}
	return dir
}

func TestNewLibraryEmptyDir(t *testing.T) {
	lib, err := NewLibrary("")
	require.NoError(t, err)
	assert.Empty(t, lib.All())
	_, ok := lib.Get("GB50433")
	assert.False(t, ok)
}

func TestLibraryLoadAndGet(t *testing.T) {
	dir := writeLibrary(t, map[string]string{
		"standards.yaml": `- code: GB50433
  standard: GB 50433-2018
  title: 生产建设项目水土保持技术标准
  keywords: [水土保持, 技术标准]
- code: SL773
  standard: SL 773-2018
  title: 生产建设项目土壤流失量测算导则
  keywords: [土壤流失量]
`,
		"notes.txt": "ignored, wrong extension",
	})
	lib, err := NewLibrary(dir)
	require.NoError(t, err)
	require.Len(t, lib.All(), 2)

	rec, ok := lib.Get("GB50433")
	require.True(t, ok)
	assert.Equal(t, "GB 50433-2018", rec.Standard)

	_, ok = lib.Get("NOPE")
	assert.False(t, ok)
}

func TestLibraryMatchRanksByHits(t *testing.T) {
	dir := writeLibrary(t, map[string]string{
		"standards.yaml": `- code: A
  standard: GB A
  title: 甲
  keywords: [弃渣场, 拦挡]
- code: B
  standard: GB B
  title: 乙
  keywords: [弃渣场]
- code: C
  standard: GB C
  title: 丙
  keywords: [完全无关]
`,
	})
	lib, err := NewLibrary(dir)
	require.NoError(t, err)

	out := lib.Match("弃渣场应先拦后弃，设置拦挡措施。", 10)
	require.Len(t, out, 2)
	assert.Equal(t, "A", out[0].Code)
	assert.Equal(t, "B", out[1].Code)

	out = lib.Match("弃渣场应先拦后弃，设置拦挡措施。", 1)
	require.Len(t, out, 1)
	assert.Equal(t, "A", out[0].Code)
}

func TestLibraryReloadPicksUpChanges(t *testing.T) {
	dir := writeLibrary(t, map[string]string{
		"standards.yaml": `- code: A
  standard: GB A
  title: 甲
`,
	})
	lib, err := NewLibrary(dir)
	require.NoError(t, err)
	require.Len(t, lib.All(), 1)

	more := `- code: A
  standard: GB A
  title: 甲
- code: B
  standard: GB B
  title: 乙
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "standards.yaml"), []byte(more), 0o644))
	require.NoError(t, lib.Reload())
	assert.Len(t, lib.All(), 2)
}

func TestNewLibraryBadYAML(t *testing.T) {
	dir := writeLibrary(t, map[string]string{"bad.yaml": "{{{not yaml"})
	_, err := NewLibrary(dir)
	assert.Error(t, err)
}

func TestLoadCheckpointSeeds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoints.yaml")
	data := `- code: SUM_ROW
  name: 行合计校验
  engine_type: RULE
  review_category: TECH
  rule_config: '{"executor":"sum_mismatch"}'
- code: AI_GAP
  name: 合规差距
  engine_type: AI
  review_category: TECH
  enabled: false
  prompt_template: 请检查文档
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cps, err := LoadCheckpointSeeds(path)
	require.NoError(t, err)
	require.Len(t, cps, 2)

	assert.Equal(t, "SUM_ROW", cps[0].Code)
	assert.Equal(t, docmodel.EngineRule, cps[0].EngineType)
	assert.True(t, cps[0].Enabled)
	assert.Equal(t, `{"executor":"sum_mismatch"}`, cps[0].RuleConfig)

	assert.Equal(t, docmodel.EngineAI, cps[1].EngineType)
	assert.False(t, cps[1].Enabled)
	assert.Equal(t, "请检查文档", cps[1].PromptTemplate)
}

func TestLoadCheckpointSeedsValidation(t *testing.T) {
	dir := t.TempDir()

	missing := filepath.Join(dir, "missing-name.yaml")
	require.NoError(t, os.WriteFile(missing, []byte("- code: X\n  engine_type: RULE\n"), 0o644))
	_, err := LoadCheckpointSeeds(missing)
	assert.Error(t, err)

	badEngine := filepath.Join(dir, "bad-engine.yaml")
	require.NoError(t, os.WriteFile(badEngine, []byte("- code: X\n  name: 某校验\n  engine_type: MAGIC\n"), 0o644))
	_, err = LoadCheckpointSeeds(badEngine)
	assert.Error(t, err)

	_, err = LoadCheckpointSeeds(filepath.Join(dir, "does-not-exist.yaml"))
	assert.Error(t, err)
}
