// Package export renders review findings into downloadable reports.
package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/swscloud/reviewd/internal/docmodel"
	"github.com/swscloud/reviewd/internal/errors"
)

const issuesSheet = "审查问题"

var issueHeaders = []string{"ID", "类型", "严重程度", "标题", "描述", "建议", "置信度", "状态", "页码", "创建时间"}

// IssuesXLSX renders the issue list as a workbook with one sheet.
func IssuesXLSX(issues []docmodel.Issue) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(issuesSheet)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryExport, errors.SeverityError, "create sheet")
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, errors.Wrap(err, errors.CategoryExport, errors.SeverityError, "drop default sheet")
	}

	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryExport, errors.SeverityError, "create header style")
	}

	for col, h := range issueHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(issuesSheet, cell, h); err != nil {
			return nil, errors.Wrap(err, errors.CategoryExport, errors.SeverityError, "write header")
		}
	}
	endCell, _ := excelize.CoordinatesToCellName(len(issueHeaders), 1)
	if err := f.SetCellStyle(issuesSheet, "A1", endCell, boldStyle); err != nil {
		return nil, errors.Wrap(err, errors.CategoryExport, errors.SeverityError, "style header")
	}

	for i, iss := range issues {
		row := i + 2
		page := ""
		if iss.PageNo != nil {
			page = fmt.Sprintf("%d", *iss.PageNo)
		}
		values := []any{
			iss.ID,
			iss.IssueType,
			string(iss.Severity),
			iss.Title,
			iss.Description,
			iss.Suggestion,
			iss.Confidence,
			string(iss.Status),
			page,
			iss.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(issuesSheet, cell, v); err != nil {
				return nil, errors.Wrap(err, errors.CategoryExport, errors.SeverityError, "write issue row")
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, errors.Wrap(err, errors.CategoryExport, errors.SeverityError, "serialize workbook")
	}
	return buf.Bytes(), nil
}
