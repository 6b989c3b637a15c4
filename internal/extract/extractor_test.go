package extract

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExtractEmptyDocument(t *testing.T) {
	e := New(nil)
	res, err := e.Extract(nil, "text/plain", "empty.txt")
	require.NoError(t, err)
	assert.Empty(t, res.Text)
}

func TestExtractPlainText(t *testing.T) {
	e := New(nil)
	res, err := e.Extract([]byte("hello world\r\nsecond line"), "text/plain", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world\nsecond line", res.Text)
	assert.Equal(t, "utf-8", res.Method)
	assert.Equal(t, "text/plain", res.MIMEType)
}

func TestExtractMarkdownInvalidBytesReplaced(t *testing.T) {
	e := New(nil)
	data := append([]byte("# Title\n\nbody "), 0xff, 0xfe)
	res, err := e.Extract(data, "text/markdown", "a.md")
	require.NoError(t, err)
	assert.Contains(t, res.Text, "# Title")
	assert.Contains(t, res.Text, "�")
}

func TestExtractBinaryFails(t *testing.T) {
	e := New(nil)
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i % 7)
	}
	_, err := e.Extract(data, "application/octet-stream", "blob.bin")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestExtractCSVSmallSingleBlock(t *testing.T) {
	e := New(nil)
	csv := "name,city\nalice,paris\nbob,lyon\n"
	res, err := e.Extract([]byte(csv), "text/csv", "people.csv")
	require.NoError(t, err)
	assert.Equal(t, "name | city\nalice | paris\nbob | lyon", res.Text)
	assert.Equal(t, "csv", res.Method)
}

func TestExtractCSVLargeRepeatsHeader(t *testing.T) {
	e := New(nil)
	var sb strings.Builder
	sb.WriteString("id,payload\n")
	row := "1," + strings.Repeat("x", 4096) + "\n"
	for sb.Len() < csvBlockThreshold+4096 {
		sb.WriteString(row)
	}

	res, err := e.Extract([]byte(sb.String()), "text/csv", "big.csv")
	require.NoError(t, err)
	assert.Greater(t, strings.Count(res.Text, "id | payload"), 1, "header not repeated per block")
}

func TestExtractHTMLKeepsTextDropsScript(t *testing.T) {
	e := New(nil)
	html := `<html><head><style>body{color:red}</style></head>
<body><h1>Welcome</h1><script>alert("x")</script><p>Visible paragraph.</p></body></html>`

	res, err := e.Extract([]byte(html), "text/html", "page.html")
	require.NoError(t, err)
	assert.Contains(t, res.Text, "Welcome")
	assert.Contains(t, res.Text, "Visible paragraph.")
	assert.NotContains(t, res.Text, "alert")
	assert.NotContains(t, res.Text, "color:red")
}

func TestExtractXLSXTables(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"h1", "h2"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"v1", "v2"}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	e := New(nil)
	res, err := e.Extract(buf.Bytes(), mimeXLSX, "book.xlsx")
	require.NoError(t, err)
	assert.Contains(t, res.Text, "h1 | h2")
	assert.Contains(t, res.Text, "v1 | v2")
	assert.Equal(t, "excelize", res.Method)
}

func TestExtractDOCXParagraphsAndTables(t *testing.T) {
	docXML := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
    <w:tbl>
      <w:tr>
        <w:tc><w:p><w:r><w:t>cell a</w:t></w:r></w:p></w:tc>
        <w:tc><w:p><w:r><w:t>cell b</w:t></w:r></w:p></w:tc>
      </w:tr>
    </w:tbl>
  </w:body>
</w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(docXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	e := New(nil)
	res, err := e.Extract(buf.Bytes(), mimeDOCX, "doc.docx")
	require.NoError(t, err)
	assert.Contains(t, res.Text, "First paragraph.")
	assert.Contains(t, res.Text, "Second paragraph.")
	assert.Contains(t, res.Text, "cell a | cell b")
	// Tables come after prose.
	assert.Less(t, strings.Index(res.Text, "Second paragraph."), strings.Index(res.Text, "cell a"))
}

func TestDetectMIMEFromExtension(t *testing.T) {
	assert.Equal(t, "text/csv", detectMIME([]byte("a,b"), "", "x.csv"))
	assert.Equal(t, "application/pdf", detectMIME([]byte("%PDF-1.4"), "", "x.pdf"))
	assert.Equal(t, "text/html", detectMIME([]byte("<p>hi</p>"), "text/html; charset=utf-8", ""))
}

func TestPageFor(t *testing.T) {
	r := &Result{PageMarks: []PageMark{{Page: 1, Offset: 0}, {Page: 2, Offset: 100}, {Page: 4, Offset: 250}}}
	assert.Equal(t, 1, r.PageFor(0))
	assert.Equal(t, 1, r.PageFor(99))
	assert.Equal(t, 2, r.PageFor(100))
	assert.Equal(t, 4, r.PageFor(9999))

	empty := &Result{}
	assert.Equal(t, 0, empty.PageFor(10))
}
