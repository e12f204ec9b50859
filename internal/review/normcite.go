package review

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/swscloud/reviewd/internal/docmodel"
)

// citationRe matches standard citations such as "GB 50433-2018",
// "GB/T 15776-2023" or "SL 773-2018".
var citationRe = regexp.MustCompile(`(GB(?:/T)?|SL(?:/T)?|HJ|NY/T|DL/T|TD/T|JTG)\s*(\d{2,5}(?:\.\d+)?)(?:[-—－](\d{4}))?`)

type citation struct {
	family  string
	number  string
	year    int
	blockID int64
	quote   string
}

// NormCitationReview checks every cited standard against the loaded norm
// library and flags citations of superseded editions. Without a library the
// executor is a no-op.
func NormCitationReview(c *Context, rc RuleConfig) []IssueDraft {
	if c.Norms == nil {
		return nil
	}
	latest := latestEditions(c)
	if len(latest) == 0 {
		return nil
	}

	var out []IssueDraft
	seen := make(map[string]bool)
	for _, cit := range collectCitations(c) {
		if cit.year == 0 {
			continue
		}
		key := cit.family + " " + cit.number
		cur, ok := latest[key]
		if !ok || cit.year >= cur {
			continue
		}
		dedup := fmt.Sprintf("%s-%d", key, cit.year)
		if seen[dedup] {
			continue
		}
		seen[dedup] = true
		out = append(out, IssueDraft{
			IssueType: "CONTENT",
			Severity:  docmodel.SeverityS2,
			Title:     fmt.Sprintf("引用了已替代的规范版本 %s-%d", key, cit.year),
			Description: fmt.Sprintf("文中引用 %s-%d，规范库中该标准的现行版本为 %s-%d，引用版本已被替代。",
				key, cit.year, key, cur),
			Suggestion:       fmt.Sprintf("请将引用更新为现行版本 %s-%d，并核对相关条款内容是否发生变化。", key, cur),
			Confidence:       0.85,
			EvidenceBlockIDs: []int64{cit.blockID},
			EvidenceQuotes:   []string{cit.quote},
		})
	}
	return out
}

func collectCitations(c *Context) []citation {
	var out []citation
	for i := range c.Blocks {
		b := &c.Blocks[i]
		if b.Text == "" {
			continue
		}
		for _, m := range citationRe.FindAllStringSubmatch(b.Text, -1) {
			cit := citation{
				family:  strings.ReplaceAll(m[1], " ", ""),
				number:  m[2],
				blockID: b.ID,
				quote:   strings.TrimSpace(m[0]),
			}
			if m[3] != "" {
				cit.year, _ = strconv.Atoi(m[3])
			}
			out = append(out, cit)
		}
	}
	return out
}

// latestEditions maps "family number" to the newest edition year the norm
// library knows about.
func latestEditions(c *Context) map[string]int {
	out := make(map[string]int)
	for _, rec := range c.Norms.All() {
		m := citationRe.FindStringSubmatch(rec.Standard)
		if m == nil || m[3] == "" {
			continue
		}
		year, _ := strconv.Atoi(m[3])
		key := strings.ReplaceAll(m[1], " ", "") + " " + m[2]
		if year > out[key] {
			out[key] = year
		}
	}
	return out
}
