package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/swscloud/reviewd/internal/docmodel"
	"github.com/swscloud/reviewd/internal/textnorm"
)

const (
	maxDocChars   = 100000
	maxBlockChars = 2000
)

// systemPrompt instructs the model to act as a rule-validation engine and
// emit exactly one JSON object.
const systemPrompt = `你是"生产建设项目水土保持方案报批稿"的【规则校验引擎】。
请仅基于我提供的文档内容与给定的规范库（法规/标准/格式规定）进行判断，输出可程序化的规则校验结果。

【输入】
- 文档内容（每段正文前有 [block_id=xx][page=N] 标注）
- 规范库（每条规则含 rule_id, name, review_type, rule_logic 等）

【输出要求】
1) 逐条输出"规则校验结果"，每条必须包含以下字段（JSON数组，键名用英文）：
   - issue_id: 自增编号
   - issue_title: 问题标题（20字以内）
   - issue_type: 枚举 [一致性/格式/表内计算/业务逻辑/规范引用/信息缺失/术语规范/标点/缺失章节/单位不一致/公式平衡/AI合规差距]
   - severity: 枚举 [致命/高/中/低]
   - location: {section, page, anchor_text}（page 必须为整数页码，取自所引用段落的 [page=N]，不得填 1 或省略）
   - evidence: {snippets: [原文片段...], page_refs: [页码...]}（page_refs 必须与原文所在 [page=N] 一致）
   - rule_definition: {rule_id, rule_name, rule_logic, can_auto_check, auto_check_method}（rule_id 必须为规范库中本批规则 ID）
   - norm_basis: {doc, clause_or_section, basis_text} 或 经验规则时 clause_or_section:"-", basis_text:"-"
   - fix_suggestion: {suggested_text, fix_steps: [], verification_after_fix: []}
   - dependencies: 本条规则依赖的字段/表格/附件

2) 对于"一致性问题"：必须列出所有冲突版本，并给出统一后的标准写法。

3) 对于"表内计算问题"：必须给出重新计算过程（含公式与中间值），并指出差值。

4) 对于"业务逻辑问题"与"AI合规差距"：必须指出逻辑冲突点或缺失条件，及应补齐内容所在章节/表格。

5) 对于"缺失章节"：列出缺失的章节或子节标题。

6) 最后输出"规则库沉淀清单"：按模块汇总可沉淀为自动规则的条目列表。

请仅输出一个合法 JSON 对象，包含且仅包含以下两个键：
- "规则校验结果": 上述问题数组
- "规则库沉淀清单": 数组，每项 {rule_id, rule_summary}

若无问题，则 "规则校验结果" 为 []。`

// promptRule is a checkpoint rendered into the prompt's rule schema.
type promptRule struct {
	RuleID     string `json:"rule_id"`
	Name       string `json:"name"`
	ReviewType string `json:"review_type,omitempty"`
	RuleLogic  string `json:"rule_logic,omitempty"`
	Target     string `json:"target_section,omitempty"`
}

func renderRules(batch []docmodel.Checkpoint) (string, []string) {
	rules := make([]promptRule, 0, len(batch))
	ids := make([]string, 0, len(batch))
	for _, cp := range batch {
		r := promptRule{
			RuleID:     cp.Code,
			Name:       cp.Name,
			ReviewType: cp.ReviewCategory,
			RuleLogic:  cp.PromptTemplate,
		}
		if cp.TargetOutlinePrefix != nil {
			r.Target = *cp.TargetOutlinePrefix
		}
		rules = append(rules, r)
		ids = append(ids, cp.Code)
	}
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return "[]", ids
	}
	return string(data), ids
}

// AssembleDoc renders blocks into the prompt's document form: each block as
// "[block_id=ID][page=N]\ntext", blocks joined by blank lines, the whole
// capped at maxDocChars runes. Blocks without a resolved page carry page=0.
func AssembleDoc(blocks []docmodel.Block, pageByBlock map[int64]int) string {
	var parts []string
	total := 0
	for _, b := range blocks {
		text := textnorm.Norm(b.Text)
		if text == "" {
			continue
		}
		text = textnorm.TruncateRunes(text, maxBlockChars)
		page := pageByBlock[b.ID]
		part := fmt.Sprintf("[block_id=%d][page=%d]\n%s", b.ID, page, text)

		n := len([]rune(part)) + 2
		if total+n > maxDocChars {
			break
		}
		parts = append(parts, part)
		total += n
	}
	return strings.Join(parts, "\n\n")
}

// BuildBatchUserMessage renders the user message for one rule batch.
func BuildBatchUserMessage(doc string, batch []docmodel.Checkpoint, batchIndex, totalBatches int) string {
	rulesJSON, ids := renderRules(batch)
	return fmt.Sprintf(`【文档内容】
%s

【本批校验规则】（第 %d/%d 批，共 %d 条）
规则 ID 列表：%s

【规范库】（仅本批规则）
%s

【重要】文档中每一段格式为：[block_id=xx][page=N] 换行 正文。你发现问题的原文来自某段时，location.page 和 evidence.page_refs 必须填该段的 N（真实页码），不要填 1 或留空。

请仅针对以上 %d 条规则，根据文档内容逐条校验。输出一个 JSON 对象：
- "规则校验结果": 本批规则发现的问题数组（每条规则 0 或若干条）
- "规则库沉淀清单": 本批规则的 rule_id + 一句话 rule_summary

若无问题，则 "规则校验结果" 为 []。仅输出 JSON，不要其他解释。`,
		doc, batchIndex+1, totalBatches, len(batch), strings.Join(ids, ", "), rulesJSON, len(batch))
}
