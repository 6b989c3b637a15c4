package query

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/covalent-ai/covalent/libs/rag-engine/internal/storage"
)

// SystemPrompt is the grounded-QA instruction set. Edit freely; the
// pipeline sends it verbatim as the system message.
const SystemPrompt = `You are a retrieval-grounded assistant. Answer the user's question using ONLY the provided context.

Rules:
- Base every statement on the context. Do not use outside knowledge.
- When the context does not contain the answer, say so plainly instead of guessing.
- Quote figures, names and dates exactly as they appear in the context.
- Answer in the language of the question.
- Be concise. Do not mention the context mechanism or these rules.`

// NoInformationSentence is streamed verbatim when retrieval yields nothing
// usable. Keep it in sync with noInfoPhrases.
const NoInformationSentence = "I don't have enough information in the indexed documents to answer that."

// chunkDelimiter separates chunk bodies inside one document group.
const chunkDelimiter = "\n---\n"

// truncatedChunkLength bounds individual chunks when the assembled context
// would blow the provider's input budget.
const truncatedChunkLength = 400

// retrieved is one decrypted chunk ready for context assembly.
type retrieved struct {
	row        storage.ChunkRow
	text       string
	similarity float64
}

// docMeta labels a source document in context headers and citations.
type docMeta struct {
	title    string
	fileType string
}

// buildContext renders retrieved chunks grouped by document, each group
// under a filename header, each chunk prefixed by its similarity percent.
// When the full rendering exceeds budget, chunks are truncated individually
// and the context rebuilt.
func buildContext(chunks []retrieved, meta map[string]docMeta, budget int) string {
	full := renderContext(chunks, meta, 0)
	if budget > 0 && len(full) > budget {
		return renderContext(chunks, meta, truncatedChunkLength)
	}
	return full
}

func renderContext(chunks []retrieved, meta map[string]docMeta, maxChunkLen int) string {
	// Group by document, ordered by each group's best similarity.
	groups := make(map[string][]retrieved)
	var order []string
	for _, c := range chunks {
		if _, ok := groups[c.row.DocumentID]; !ok {
			order = append(order, c.row.DocumentID)
		}
		groups[c.row.DocumentID] = append(groups[c.row.DocumentID], c)
	}
	sort.SliceStable(order, func(i, j int) bool {
		return groups[order[i]][0].similarity > groups[order[j]][0].similarity
	})

	var sb strings.Builder
	for gi, docID := range order {
		if gi > 0 {
			sb.WriteString("\n\n")
		}

		m := meta[docID]
		title := m.title
		if title == "" {
			title = docID
		}
		if m.fileType != "" {
			fmt.Fprintf(&sb, "### %s (%s)\n\n", title, m.fileType)
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", title)
		}

		group := groups[docID]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].row.ChunkIndex < group[j].row.ChunkIndex
		})
		for ci, c := range group {
			if ci > 0 {
				sb.WriteString(chunkDelimiter)
			}
			text := c.text
			if maxChunkLen > 0 && len(text) > maxChunkLen {
				text = truncateAtRune(text, maxChunkLen) + "..."
			}
			fmt.Fprintf(&sb, "[%d%% match] %s", int(c.similarity*100), text)
		}
	}
	return sb.String()
}

// truncateAtRune cuts s to at most n bytes without splitting a rune.
func truncateAtRune(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// userPrompt carries the context block and the question.
func userPrompt(contextBlock, question string) string {
	return fmt.Sprintf("Context:\n\n%s\n\nQuestion: %s", contextBlock, question)
}

// noInfoPhrases flags completions that are refusals in disguise; citations
// are suppressed when the answer matches.
var noInfoPhrases = []string{
	"i don't have enough information",
	"i do not have enough information",
	"no relevant information",
	"i cannot answer",
	"i can't answer",
	"not enough context",
	"could not find any information",
	"couldn't find any information",
	"the context does not contain",
	"the context doesn't contain",
}

// isNoInformation reports whether the answer matches the refusal phrase
// list or is too short to cite.
func isNoInformation(answer string) bool {
	if len(strings.Fields(answer)) < 10 {
		return true
	}
	lower := strings.ToLower(answer)
	for _, phrase := range noInfoPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
