package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// extractDOCX reads word/document.xml from the OOXML container and walks it
// with a streaming decoder: paragraph text first, then tables flattened as
// "cell | cell" rows appended after the prose.
func (e *Extractor) extractDOCX(data []byte) (*Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open docx container: %w", err)
	}

	var docXML []byte
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("open document.xml: %w", err)
			}
			docXML, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return nil, fmt.Errorf("read document.xml: %w", err)
			}
			break
		}
	}
	if docXML == nil {
		return nil, fmt.Errorf("docx has no word/document.xml")
	}

	paragraphs, tables, err := walkDocumentXML(docXML)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	for _, p := range paragraphs {
		if p == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(p)
	}
	for _, tbl := range tables {
		if len(tbl) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		for i, row := range tbl {
			if i > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(strings.Join(row, " | "))
		}
	}

	if sb.Len() == 0 {
		return nil, fmt.Errorf("docx has no text content")
	}
	return &Result{Text: sb.String(), Method: "ooxml"}, nil
}

// walkDocumentXML collects paragraph strings and table cell grids. Only the
// w:p / w:t / w:tbl / w:tr / w:tc structure matters; everything else is
// skipped. Paragraphs inside tables belong to their cell, not the prose.
func walkDocumentXML(docXML []byte) (paragraphs []string, tables [][][]string, err error) {
	dec := xml.NewDecoder(bytes.NewReader(docXML))

	var (
		para       strings.Builder
		inPara     bool
		tableDepth int
		curTable   [][]string
		curRow     []string
		cell       strings.Builder
		inCell     bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth++
				if tableDepth == 1 {
					curTable = nil
				}
			case "tr":
				if tableDepth == 1 {
					curRow = nil
				}
			case "tc":
				if tableDepth == 1 {
					inCell = true
					cell.Reset()
				}
			case "p":
				if tableDepth == 0 {
					inPara = true
					para.Reset()
				}
			case "t":
				var text string
				if err := dec.DecodeElement(&text, &t); err != nil {
					continue
				}
				switch {
				case inCell:
					cell.WriteString(text)
				case inPara:
					para.WriteString(text)
				}
			case "br", "cr":
				if inPara {
					para.WriteString("\n")
				}
			case "tab":
				if inPara {
					para.WriteString("\t")
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "tbl":
				if tableDepth == 1 && len(curTable) > 0 {
					tables = append(tables, curTable)
				}
				tableDepth--
			case "tr":
				if tableDepth == 1 && len(curRow) > 0 {
					curTable = append(curTable, curRow)
				}
			case "tc":
				if tableDepth == 1 && inCell {
					curRow = append(curRow, strings.TrimSpace(cell.String()))
					inCell = false
				}
			case "p":
				if inPara {
					paragraphs = append(paragraphs, strings.TrimSpace(para.String()))
					inPara = false
				} else if inCell {
					// Paragraph break inside a cell.
					cell.WriteString(" ")
				}
			}
		}
	}

	return paragraphs, tables, nil
}
