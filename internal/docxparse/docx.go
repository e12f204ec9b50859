// Package docxparse reads authoring-format documents (OOXML) and decomposes
// them into an outline tree, ordered blocks and tables with parsed cells.
package docxparse

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	rerr "github.com/swscloud/reviewd/internal/errors"
)

// ElementKind discriminates source elements.
type ElementKind int

const (
	ElemPara ElementKind = iota
	ElemTable
)

// Element is one body-level element of the source document in order.
type Element struct {
	Kind  ElementKind
	Style string
	Text  string
	Rows  [][]string
}

// ReadDocx extracts the ordered body elements from a .docx payload.
func ReadDocx(data []byte) ([]Element, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, rerr.Wrap(err, rerr.CategoryParse, rerr.SeverityFatal, "open docx archive")
	}
	var docXML []byte
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			rc, err := f.Open()
			if err != nil {
				return nil, rerr.Wrap(err, rerr.CategoryParse, rerr.SeverityFatal, "open document.xml")
			}
			docXML, err = io.ReadAll(rc)
			_ = rc.Close()
			if err != nil {
				return nil, rerr.Wrap(err, rerr.CategoryParse, rerr.SeverityFatal, "read document.xml")
			}
			break
		}
	}
	if docXML == nil {
		return nil, rerr.New(rerr.CategoryParse, rerr.SeverityFatal, "docx has no word/document.xml")
	}
	return parseBody(docXML)
}

func parseBody(docXML []byte) ([]Element, error) {
	d := xml.NewDecoder(bytes.NewReader(docXML))
	var elems []Element
	inBody := false
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "body":
				inBody = true
			case "p":
				if !inBody {
					continue
				}
				style, text, err := parsePara(d)
				if err != nil {
					return nil, err
				}
				elems = append(elems, Element{Kind: ElemPara, Style: style, Text: text})
			case "tbl":
				if !inBody {
					continue
				}
				rows, err := parseTable(d)
				if err != nil {
					return nil, err
				}
				elems = append(elems, Element{Kind: ElemTable, Rows: rows})
			}
		case xml.EndElement:
			if t.Name.Local == "body" {
				inBody = false
			}
		}
	}
	return elems, nil
}

// parsePara consumes tokens up to the matching </p>, collecting run text and
// the paragraph style. Paragraphs do not nest in OOXML.
func parsePara(d *xml.Decoder) (style, text string, err error) {
	var sb strings.Builder
	inT := false
	for {
		tok, err := d.Token()
		if err != nil {
			return "", "", fmt.Errorf("parse paragraph: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "pStyle":
				for _, a := range t.Attr {
					if a.Name.Local == "val" {
						style = a.Value
					}
				}
			case "t":
				inT = true
			case "tab":
				sb.WriteByte('\t')
			case "br":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inT = false
			case "p":
				return style, sb.String(), nil
			}
		case xml.CharData:
			if inT {
				sb.Write(t)
			}
		}
	}
}

// parseTable consumes tokens up to the matching </tbl>. Nested tables are
// flattened into the enclosing cell's text.
func parseTable(d *xml.Decoder) ([][]string, error) {
	var rows [][]string
	var row []string
	var cell strings.Builder
	depth := 1
	inT := false
	inCell := false
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, fmt.Errorf("parse table: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				depth++
			case "tr":
				if depth == 1 {
					row = nil
				}
			case "tc":
				if depth == 1 {
					cell.Reset()
					inCell = true
				}
			case "t":
				inT = true
			case "tab":
				if inCell {
					cell.WriteByte('\t')
				}
			case "br":
				if inCell {
					cell.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "tbl":
				depth--
				if depth == 0 {
					return rows, nil
				}
			case "tr":
				if depth == 1 && row != nil {
					rows = append(rows, row)
				}
			case "tc":
				if depth == 1 {
					row = append(row, strings.TrimSpace(cell.String()))
					inCell = false
				}
			case "p":
				if inCell {
					cell.WriteByte('\n')
				}
			case "t":
				inT = false
			}
		case xml.CharData:
			if inT && inCell {
				cell.Write(t)
			}
		}
	}
}
