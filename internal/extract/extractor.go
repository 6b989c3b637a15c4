// Package extract turns uploaded document bytes into normalized plain text.
// Each supported format has a primary extraction strategy and a fallback
// chain ending in a plain UTF-8 decode.
package extract

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/covalent-ai/covalent/libs/rag-engine/internal/observability"
)

// ErrExtractionFailed indicates that no strategy could produce text from the
// document. Fatal for the document: the ingestion pipeline marks it error.
var ErrExtractionFailed = errors.New("extraction failed")

// PageMark records the rune offset at which a page begins in the combined
// text, so chunks can carry their source page.
type PageMark struct {
	Page   int
	Offset int
}

// Result is the extracted text plus provenance metadata.
type Result struct {
	Text      string
	Filename  string
	MIMEType  string
	Method    string // extraction strategy that produced the text
	PageMarks []PageMark
}

// PageFor returns the page containing the given rune offset, or 0 when the
// format has no page structure.
func (r *Result) PageFor(offset int) int {
	page := 0
	for _, m := range r.PageMarks {
		if m.Offset > offset {
			break
		}
		page = m.Page
	}
	return page
}

// Extractor dispatches on MIME type and filename extension.
type Extractor struct {
	logger *observability.Logger
}

// New creates an Extractor.
func New(logger *observability.Logger) *Extractor {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Extractor{logger: logger}
}

// Extract produces normalized UTF-8 text from raw document bytes. The
// declared MIME type wins; when absent it is sniffed from the filename
// extension and content. Page and paragraph breaks become double newlines.
func (e *Extractor) Extract(data []byte, mimeType, filename string) (*Result, error) {
	if len(data) == 0 {
		return &Result{Filename: filename, MIMEType: mimeType, Method: "empty"}, nil
	}

	mime := detectMIME(data, mimeType, filename)

	var (
		res *Result
		err error
	)
	switch {
	case mime == "application/pdf":
		res, err = e.extractPDF(data)
	case mime == mimeDOCX:
		res, err = e.extractDOCX(data)
	case mime == mimeXLSX:
		res, err = e.extractXLSX(data)
	case mime == "text/csv":
		res, err = e.extractCSV(data)
	case mime == "text/html":
		res, err = e.extractHTML(data)
	default:
		res, err = e.extractText(data)
	}

	if err != nil {
		e.logger.Warn().
			Err(err).
			Str("mime_type", mime).
			Str("filename", filename).
			Msg("Primary extraction failed, falling back to plain text decode")
		res, err = e.extractText(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrExtractionFailed, mime, err)
		}
	}

	res.Filename = filename
	res.MIMEType = mime
	res.Text = normalizeText(res.Text)
	return res, nil
}

const (
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var extMIME = map[string]string{
	".pdf":      "application/pdf",
	".docx":     mimeDOCX,
	".xlsx":     mimeXLSX,
	".csv":      "text/csv",
	".html":     "text/html",
	".htm":      "text/html",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".txt":      "text/plain",
}

// detectMIME resolves the effective MIME type: declared type first, then the
// filename extension, then content sniffing.
func detectMIME(data []byte, declared, filename string) string {
	if declared != "" && declared != "application/octet-stream" {
		if i := strings.IndexByte(declared, ';'); i >= 0 {
			declared = declared[:i]
		}
		return strings.TrimSpace(strings.ToLower(declared))
	}

	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		if m, ok := extMIME[ext]; ok {
			return m
		}
	}

	sniffed := http.DetectContentType(data)
	if i := strings.IndexByte(sniffed, ';'); i >= 0 {
		sniffed = sniffed[:i]
	}
	// Office documents sniff as generic zip; without an extension there is
	// nothing better than the container type.
	return strings.TrimSpace(sniffed)
}

// normalizeText collapses runs of three-plus newlines and trims the edges.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(s)
}

// decodeUTF8 is the last-resort strategy: decode bytes as UTF-8, replacing
// invalid sequences. Content that is overwhelmingly non-printable is treated
// as binary and rejected.
func decodeUTF8(data []byte) (string, error) {
	text := strings.ToValidUTF8(string(data), string(utf8.RuneError))

	printable := 0
	total := 0
	for _, r := range text {
		total++
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			printable++
		}
	}
	if total == 0 || float64(printable)/float64(total) < 0.7 {
		return "", fmt.Errorf("content is not text (%d/%d printable)", printable, total)
	}
	return text, nil
}
