package export

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/swscloud/reviewd/internal/docmodel"
	"github.com/swscloud/reviewd/internal/errors"
)

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

var severityOrder = []docmodel.Severity{
	docmodel.SeverityS1, docmodel.SeverityS2, docmodel.SeverityS3, docmodel.SeverityInfo,
}

var severityNames = map[docmodel.Severity]string{
	docmodel.SeverityS1:   "致命问题",
	docmodel.SeverityS2:   "高风险问题",
	docmodel.SeverityS3:   "中风险问题",
	docmodel.SeverityInfo: "提示",
}

func escape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

func para(text string, bold bool, size int) string {
	var props strings.Builder
	if bold {
		props.WriteString("<w:b/>")
	}
	if size > 0 {
		fmt.Fprintf(&props, `<w:sz w:val="%d"/>`, size*2)
	}
	rpr := ""
	if props.Len() > 0 {
		rpr = "<w:rPr>" + props.String() + "</w:rPr>"
	}
	return fmt.Sprintf(`<w:p><w:r>%s<w:t xml:space="preserve">%s</w:t></w:r></w:p>`, rpr, escape(text))
}

// IssuesDOCX renders the issue list as a WordprocessingML report grouped by
// severity.
func IssuesDOCX(title string, issues []docmodel.Issue) ([]byte, error) {
	var body strings.Builder
	body.WriteString(para(title, true, 18))
	body.WriteString(para(fmt.Sprintf("共 %d 条审查问题", len(issues)), false, 0))

	grouped := make(map[docmodel.Severity][]docmodel.Issue)
	for _, iss := range issues {
		grouped[iss.Severity] = append(grouped[iss.Severity], iss)
	}

	for _, sev := range severityOrder {
		group := grouped[sev]
		if len(group) == 0 {
			continue
		}
		body.WriteString(para(fmt.Sprintf("%s（%d 条）", severityNames[sev], len(group)), true, 14))
		for _, iss := range group {
			head := fmt.Sprintf("[%d] %s", iss.ID, iss.Title)
			if iss.PageNo != nil {
				head += fmt.Sprintf("（第 %d 页）", *iss.PageNo)
			}
			body.WriteString(para(head, true, 0))
			if iss.Description != "" {
				body.WriteString(para("描述："+iss.Description, false, 0))
			}
			if iss.Suggestion != "" {
				body.WriteString(para("建议："+iss.Suggestion, false, 0))
			}
		}
	}

	document := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
		`<w:body>` + body.String() + `<w:sectPr/></w:body></w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	parts := []struct{ name, content string }{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", relsXML},
		{"word/document.xml", document},
	}
	for _, p := range parts {
		w, err := zw.Create(p.name)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryExport, errors.SeverityError, "create docx entry")
		}
		if _, err := w.Write([]byte(p.content)); err != nil {
			return nil, errors.Wrap(err, errors.CategoryExport, errors.SeverityError, "write docx entry")
		}
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryExport, errors.SeverityError, "finalize docx")
	}
	return buf.Bytes(), nil
}
