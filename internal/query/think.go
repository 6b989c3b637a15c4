package query

import "strings"

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// ThinkFilter strips <think>...</think> spans from a token stream. It is a
// two-state machine over the concatenated stream; fragments may split a tag
// at any byte, so a small lookahead buffer holds anything that could still
// become a tag.
type ThinkFilter struct {
	inside bool
	buf    string
}

// Feed pushes one fragment through the filter and returns the text safe to
// emit now.
func (f *ThinkFilter) Feed(fragment string) string {
	f.buf += fragment
	var out strings.Builder

	for {
		if f.inside {
			idx := strings.Index(f.buf, thinkClose)
			if idx < 0 {
				// Keep only what could still complete the close tag.
				f.buf = tailPrefix(f.buf, thinkClose)
				return out.String()
			}
			f.buf = f.buf[idx+len(thinkClose):]
			f.inside = false
			continue
		}

		idx := strings.Index(f.buf, thinkOpen)
		if idx < 0 {
			hold := tailPrefix(f.buf, thinkOpen)
			out.WriteString(f.buf[:len(f.buf)-len(hold)])
			f.buf = hold
			return out.String()
		}
		out.WriteString(f.buf[:idx])
		f.buf = f.buf[idx+len(thinkOpen):]
		f.inside = true
	}
}

// Flush drains the lookahead at end of stream. A partial open tag that
// never completed is ordinary text; an unclosed think span is dropped.
func (f *ThinkFilter) Flush() string {
	defer func() { f.buf = "" }()
	if f.inside {
		return ""
	}
	return f.buf
}

// tailPrefix returns the longest suffix of s that is a proper prefix of
// tag.
func tailPrefix(s, tag string) string {
	max := len(tag) - 1
	if max > len(s) {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if s[len(s)-n:] == tag[:n] {
			return s[len(s)-n:]
		}
	}
	return ""
}
