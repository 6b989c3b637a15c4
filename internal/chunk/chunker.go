// Package chunk splits extracted document text into overlapping windows
// sized for embedding and retrieval.
package chunk

import (
	"sort"
	"strings"
	"unicode"
)

// Default parameters approximate 800 tokens with a 150-token overlap.
const (
	DefaultSize    = 3200
	DefaultOverlap = 600
)

// Chunk is one span of the source text. Start and End are rune offsets into
// the input; Index is dense and 0-based across the emitted chunks.
type Chunk struct {
	Index   int
	Text    string
	Section string
	Start   int
	End     int
}

// Params are the active window parameters for one split run.
type Params struct {
	Size    int
	Overlap int
}

// Config holds chunker settings.
type Config struct {
	Size     int
	Overlap  int
	Adaptive bool
}

// Chunker splits text at semantic boundaries, preferring the strongest
// separator available near the target size.
type Chunker struct {
	defaults Params
	adaptive bool
}

// New creates a Chunker. Zero config values fall back to the defaults.
func New(cfg Config) *Chunker {
	size := cfg.Size
	if size <= 0 {
		size = DefaultSize
	}
	overlap := cfg.Overlap
	if overlap < 0 || overlap >= size {
		overlap = DefaultOverlap
		if overlap >= size {
			overlap = size / 5
		}
	}
	return &Chunker{
		defaults: Params{Size: size, Overlap: overlap},
		adaptive: cfg.Adaptive,
	}
}

// Split chunks the text. In adaptive mode the whole text is classified first
// and the class's parameters replace the defaults; the output contract is
// identical either way.
func (c *Chunker) Split(text string) []Chunk {
	params := c.defaults
	if c.adaptive {
		if p, ok := paramsFor(Classify(text)); ok {
			params = p
		}
	}
	return split(text, params)
}

// SplitWithParams chunks the text with explicit parameters, bypassing both
// defaults and classification.
func (c *Chunker) SplitWithParams(text string, params Params) []Chunk {
	return split(text, params)
}

func split(text string, p Params) []Chunk {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	size := p.Size
	overlap := p.Overlap
	maxEnd := size + size/4 // 1.25x

	headings := scanHeadings(runes)

	var chunks []Chunk
	index := 0
	start := 0

	for start < n {
		var end int
		if n-start <= maxEnd {
			end = n
		} else {
			end = findBoundary(runes, start, p)
		}

		body := strings.TrimSpace(string(runes[start:end]))
		if body != "" {
			chunks = append(chunks, Chunk{
				Index:   index,
				Text:    body,
				Section: sectionFor(headings, start),
				Start:   start,
				End:     end,
			})
			index++
		}

		if end >= n {
			break
		}

		next := end - overlap
		if overlap > 0 && next > start {
			if adv := sentenceStart(runes, next, end); adv > next && adv < end {
				next = adv
			}
		}
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// Boundary classes in priority order. Each matcher reports whether position i
// is a boundary of its class and where the cut lands.
var boundaryClasses = []func(runes []rune, i int) (cut int, ok bool){
	matchTripleNewline,
	matchDoubleNewline,
	matchHeading,
	matchListMarker,
	matchSingleNewline,
	matchSentenceEnd,
	matchSemicolon,
	matchSpace,
}

// findBoundary picks the strongest separator whose cut keeps the chunk within
// [size/4, size*1.25], preferring cuts near the target size. A hard cut at
// size is the last resort.
func findBoundary(runes []rune, start int, p Params) int {
	target := start + p.Size
	lo := start + p.Size/4
	hi := start + p.Size + p.Size/4
	if hi > len(runes) {
		hi = len(runes)
	}

	for _, match := range boundaryClasses {
		best := -1
		bestDist := hi - start + 1
		for i := lo; i < hi; i++ {
			cut, ok := match(runes, i)
			if !ok || cut < lo || cut > hi {
				continue
			}
			dist := cut - target
			if dist < 0 {
				dist = -dist
			}
			if dist < bestDist {
				best = cut
				bestDist = dist
			}
		}
		if best >= 0 {
			return best
		}
	}

	return target
}

func matchTripleNewline(runes []rune, i int) (int, bool) {
	if i+2 < len(runes) && runes[i] == '\n' && runes[i+1] == '\n' && runes[i+2] == '\n' {
		return i + 3, true
	}
	return 0, false
}

func matchDoubleNewline(runes []rune, i int) (int, bool) {
	if i+1 < len(runes) && runes[i] == '\n' && runes[i+1] == '\n' {
		return i + 2, true
	}
	return 0, false
}

// matchHeading cuts before a markdown heading line so the heading opens the
// next chunk.
func matchHeading(runes []rune, i int) (int, bool) {
	if runes[i] == '\n' && isHeadingAt(runes, i+1) {
		return i + 1, true
	}
	return 0, false
}

// matchListMarker cuts before a list item line.
func matchListMarker(runes []rune, i int) (int, bool) {
	if runes[i] == '\n' && isListItemAt(runes, i+1) {
		return i + 1, true
	}
	return 0, false
}

func matchSingleNewline(runes []rune, i int) (int, bool) {
	if runes[i] == '\n' {
		return i + 1, true
	}
	return 0, false
}

func matchSentenceEnd(runes []rune, i int) (int, bool) {
	if !isSentenceEnd(runes[i]) {
		return 0, false
	}
	if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
		return i + 1, true
	}
	return 0, false
}

func matchSemicolon(runes []rune, i int) (int, bool) {
	if runes[i] == ';' {
		return i + 1, true
	}
	return 0, false
}

func matchSpace(runes []rune, i int) (int, bool) {
	if runes[i] == ' ' || runes[i] == '\t' {
		return i + 1, true
	}
	return 0, false
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isHeadingAt(runes []rune, i int) bool {
	hashes := 0
	for i < len(runes) && runes[i] == '#' {
		hashes++
		i++
	}
	return hashes >= 1 && hashes <= 6 && i < len(runes) && runes[i] == ' '
}

func isListItemAt(runes []rune, i int) bool {
	if i >= len(runes) {
		return false
	}
	switch runes[i] {
	case '-', '*', '+':
		return i+1 < len(runes) && runes[i+1] == ' '
	}
	// Numbered list: digits then ". ".
	j := i
	for j < len(runes) && unicode.IsDigit(runes[j]) {
		j++
	}
	return j > i && j+1 < len(runes) && runes[j] == '.' && runes[j+1] == ' '
}

// sentenceStart finds the first position in [from, to) that opens a sentence,
// so the overlap region does not begin mid-sentence.
func sentenceStart(runes []rune, from, to int) int {
	for i := from; i < to-1; i++ {
		if isSentenceEnd(runes[i]) && unicode.IsSpace(runes[i+1]) {
			j := i + 1
			for j < to && unicode.IsSpace(runes[j]) {
				j++
			}
			if j < to {
				return j
			}
		}
		if runes[i] == '\n' {
			j := i + 1
			for j < to && (runes[j] == ' ' || runes[j] == '\t') {
				j++
			}
			if j < to && runes[j] != '\n' {
				return j
			}
		}
	}
	return from
}

type headingMark struct {
	pos   int
	title string
}

// scanHeadings collects markdown heading lines so chunks can carry the
// section they fall under.
func scanHeadings(runes []rune) []headingMark {
	var marks []headingMark
	lineStart := 0
	for i := 0; i <= len(runes); i++ {
		if i == len(runes) || runes[i] == '\n' {
			if isHeadingAt(runes, lineStart) {
				title := strings.TrimSpace(strings.TrimLeft(string(runes[lineStart:i]), "#"))
				if title != "" {
					marks = append(marks, headingMark{pos: lineStart, title: title})
				}
			}
			lineStart = i + 1
		}
	}
	return marks
}

func sectionFor(marks []headingMark, start int) string {
	idx := sort.Search(len(marks), func(i int) bool { return marks[i].pos > start })
	if idx == 0 {
		return ""
	}
	return marks[idx-1].title
}
