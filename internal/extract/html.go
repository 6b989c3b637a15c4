package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/go-shiori/go-readability"
)

var (
	tagRe      = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceRunRe = regexp.MustCompile(`[ \t]+`)
)

// extractHTML converts markup to markdown-ish text. Primary path is the
// html-to-markdown converter (keeps headings and lists, which the chunker
// uses as boundaries); fallback is readability's main-content isolation,
// then a bare tag strip.
func (e *Extractor) extractHTML(data []byte) (*Result, error) {
	md, err := htmltomarkdown.ConvertString(string(data))
	if err == nil && strings.TrimSpace(md) != "" {
		return &Result{Text: md, Method: "html-to-markdown"}, nil
	}
	if err != nil {
		e.logger.Warn().Err(err).Msg("html-to-markdown conversion failed, trying readability")
	}

	article, rerr := readability.FromReader(bytes.NewReader(data), nil)
	if rerr == nil && strings.TrimSpace(article.TextContent) != "" {
		return &Result{Text: article.TextContent, Method: "readability"}, nil
	}

	text := stripTags(string(data))
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("html has no text content")
	}
	return &Result{Text: text, Method: "tag-strip"}, nil
}

// stripTags removes script/style blocks and all tags, then collapses
// horizontal whitespace per line.
func stripTags(html string) string {
	html = removeElement(html, "script")
	html = removeElement(html, "style")
	html = removeElement(html, "noscript")
	text := tagRe.ReplaceAllString(html, " ")
	text = spaceRunRe.ReplaceAllString(text, " ")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func removeElement(html, name string) string {
	re := regexp.MustCompile(`(?is)<` + name + `\b.*?</` + name + `>`)
	return re.ReplaceAllString(html, " ")
}
