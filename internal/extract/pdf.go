package extract

import (
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// extractPDF iterates pages with go-fitz and concatenates their text. Pages
// with no extractable text are skipped; a PDF where every page is empty
// (scanned images, no text layer) fails so the caller can surface it.
func (e *Extractor) extractPDF(data []byte) (*Result, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	var sb strings.Builder
	var marks []PageMark
	extracted := 0

	for pageNum := 0; pageNum < pageCount; pageNum++ {
		text, err := doc.Text(pageNum)
		if err != nil {
			e.logger.Warn().Err(err).Int("page", pageNum+1).Msg("Skipping unreadable PDF page")
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		marks = append(marks, PageMark{Page: pageNum + 1, Offset: len([]rune(sb.String()))})
		sb.WriteString(text)
		extracted++
	}

	if extracted == 0 {
		return nil, fmt.Errorf("no extractable text in %d pages", pageCount)
	}

	return &Result{Text: sb.String(), Method: "go-fitz", PageMarks: marks}, nil
}
