// Package facts extracts typed, scoped quantitative statements from parsed
// blocks and table cells into the fact store. Facts feed the consistency,
// formula and business-logic executors.
package facts

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/swscloud/reviewd/internal/docmodel"
)

// ProjectScope is the scope of statements not attributable to a section.
const ProjectScope = "项目整体"

type synPattern struct {
	key string
	re  *regexp.Regexp
}

var blockPatterns []synPattern

func init() {
	for _, def := range Keys {
		for _, syn := range def.Synonyms {
			re := regexp.MustCompile(regexp.QuoteMeta(syn) + `[：:\s]*([\d.，,]+)\s*([^\d\s，,。.；;]+)?`)
			blockPatterns = append(blockPatterns, synPattern{key: def.Key, re: re})
		}
	}
}

// NormalizeUnit rewrites (value, unit) into canonical form: a 万-prefixed
// unit multiplies by 10,000 and loses the prefix; hectares become m².
func NormalizeUnit(value float64, unit string) (float64, string) {
	if unit == "" {
		return value, unit
	}
	if strings.Contains(unit, "万") {
		value *= 10000
		unit = strings.ReplaceAll(unit, "万", "")
	}
	if unit == "hm²" || unit == "hm2" || unit == "公顷" {
		value *= 10000
		unit = "m²"
	}
	return value, unit
}

// ScopeFor renders the scope of an outline node ("node-no title"), or the
// project-wide scope when the node is unknown.
func ScopeFor(node *docmodel.OutlineNode) string {
	if node == nil {
		return ProjectScope
	}
	s := strings.TrimSpace(node.NodeNo + " " + node.Title)
	if s == "" {
		return ProjectScope
	}
	return s
}

// TableInput bundles a table with its cells and the block that embeds it.
type TableInput struct {
	Table   docmodel.Table
	Cells   []docmodel.Cell
	BlockID *int64
}

// Extract scans blocks and tables for fact statements. Results are in
// deterministic order; the caller upserts them (last write wins per scope).
func Extract(versionID int64, outline []docmodel.OutlineNode, blocks []docmodel.Block, tables []TableInput) []docmodel.Fact {
	nodeByID := make(map[int64]*docmodel.OutlineNode, len(outline))
	for i := range outline {
		nodeByID[outline[i].ID] = &outline[i]
	}
	scopeOf := func(nodeID *int64) string {
		if nodeID == nil {
			return ProjectScope
		}
		return ScopeFor(nodeByID[*nodeID])
	}

	var out []docmodel.Fact

	for _, blk := range blocks {
		text := strings.TrimSpace(blk.Text)
		if text == "" {
			continue
		}
		scope := scopeOf(blk.OutlineNodeID)
		for _, p := range blockPatterns {
			for _, m := range p.re.FindAllStringSubmatch(text, -1) {
				out = append(out, blockFact(versionID, p.key, scope, blk.ID, m))
			}
		}
	}

	for _, ti := range tables {
		out = append(out, extractFromTable(versionID, ti, scopeOf)...)
	}
	return out
}

func blockFact(versionID int64, key, scope string, blockID int64, m []string) docmodel.Fact {
	f := docmodel.Fact{
		VersionID:     versionID,
		FactKey:       key,
		Scope:         scope,
		SourceBlockID: &blockID,
	}
	valueStr := strings.ReplaceAll(strings.ReplaceAll(m[1], "，", ""), ",", "")
	num, err := strconv.ParseFloat(strings.Trim(valueStr, "."), 64)
	if err != nil {
		// Textual fact: keep the matched statement verbatim.
		text := m[0]
		f.ValueText = &text
		f.Confidence = 0.6
		return f
	}

	unit := strings.TrimSpace(m[2])
	num, unit = NormalizeUnit(num, unit)
	f.ValueNum = &num
	if unit != "" {
		f.Unit = &unit
	}
	f.Confidence = 0.7
	return f
}

func extractFromTable(versionID int64, ti TableInput, scopeOf func(*int64) string) []docmodel.Fact {
	byRow := make(map[int][]docmodel.Cell)
	for _, c := range ti.Cells {
		byRow[c.Row] = append(byRow[c.Row], c)
	}
	header := byRow[0]
	if len(header) == 0 {
		return nil
	}

	tableNo := fmt.Sprintf("表%d", ti.Table.ID)
	if ti.Table.TableNo != nil && *ti.Table.TableNo != "" {
		tableNo = *ti.Table.TableNo
	}
	scope := tableNo
	if ti.Table.OutlineNodeID != nil {
		scope = fmt.Sprintf("%s(%s)", tableNo, scopeOf(ti.Table.OutlineNodeID))
	}

	var out []docmodel.Fact
	for _, def := range Keys {
		for _, syn := range def.Synonyms {
			for hi, hc := range header {
				if !strings.Contains(hc.Text, syn) {
					continue
				}
				for r := 1; r < ti.Table.NRows; r++ {
					row := byRow[r]
					if hi >= len(row) || row[hi].NumValue == nil {
						continue
					}
					num := *row[hi].NumValue
					unit := ""
					if row[hi].Unit != nil {
						unit = *row[hi].Unit
					}
					num, unit = NormalizeUnit(num, unit)
					f := docmodel.Fact{
						VersionID:     versionID,
						FactKey:       def.Key,
						ValueNum:      &num,
						Scope:         scope,
						SourceBlockID: ti.BlockID,
						SourceTableID: &ti.Table.ID,
						Confidence:    0.8,
					}
					if unit != "" {
						f.Unit = &unit
					}
					out = append(out, f)
				}
			}
		}
	}
	return out
}
