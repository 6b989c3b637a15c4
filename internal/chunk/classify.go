package chunk

import (
	"regexp"
	"strings"
)

// DocClass is an adaptive-mode document classification.
type DocClass string

const (
	ClassTechnical DocClass = "technical"
	ClassFAQ       DocClass = "faq"
	ClassLegal     DocClass = "legal"
	ClassProduct   DocClass = "product"
	ClassEmail     DocClass = "email"
	ClassFinancial DocClass = "financial"
	ClassMeeting   DocClass = "meeting"
	ClassGeneric   DocClass = "generic"
)

// classParams maps each class to its window parameters. Classes absent here
// fall through to the defaults.
var classParams = map[DocClass]Params{
	ClassTechnical: {Size: 4000, Overlap: 800},
	ClassFAQ:       {Size: 2400, Overlap: 400},
	ClassLegal:     {Size: 6000, Overlap: 1600},
	ClassProduct:   {Size: 3200, Overlap: 600},
	ClassEmail:     {Size: 2000, Overlap: 300},
	ClassFinancial: {Size: 3600, Overlap: 700},
	ClassMeeting:   {Size: 2800, Overlap: 500},
}

func paramsFor(class DocClass) (Params, bool) {
	p, ok := classParams[class]
	return p, ok
}

type classSignal struct {
	keywords []string
	patterns []*regexp.Regexp
	weight   float64
}

var classSignals = map[DocClass]classSignal{
	ClassTechnical: {
		keywords: []string{"installation", "configuration", "troubleshooting", "procedure", "specification", "manual", "api", "parameter"},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?m)^\s*(?:Step|STEP)\s+\d+`),
			regexp.MustCompile(`(?m)^\s*\d+\.\d+(?:\.\d+)?\s+\S`),
		},
		weight: 1.0,
	},
	ClassFAQ: {
		keywords: []string{"frequently asked", "faq"},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?mi)^\s*(?:Q[:.]|Q\d+[:.]|Question[:.])`),
			regexp.MustCompile(`(?mi)^\s*(?:A[:.]|A\d+[:.]|Answer[:.])`),
			regexp.MustCompile(`(?mi)^#+\s+.{0,80}\?\s*$`),
		},
		weight: 1.2,
	},
	ClassLegal: {
		keywords: []string{"hereinafter", "whereas", "pursuant", "indemnify", "liability", "jurisdiction", "warranty", "agreement", "hereby", "terms and conditions"},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?m)^\s*(?:Article|Section|Clause)\s+\d+`),
			regexp.MustCompile(`(?m)^\s*\d+\.\d+\s+[A-Z]`),
		},
		weight: 1.1,
	},
	ClassProduct: {
		keywords: []string{"features", "benefits", "pricing", "warranty", "specifications", "available in", "variant", "edition", "model"},
		weight:   0.8,
	},
	ClassEmail: {
		keywords: []string{"dear", "regards", "sincerely", "best wishes", "forwarded message"},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?mi)^(?:From|To|Cc|Subject|Sent|Date):\s`),
		},
		weight: 1.3,
	},
	ClassFinancial: {
		keywords: []string{"revenue", "ebitda", "fiscal", "quarter", "balance sheet", "cash flow", "assets", "liabilities", "earnings"},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`[$€£]\s?\d[\d,]*(?:\.\d+)?\s?(?:million|billion|M|B)?`),
			regexp.MustCompile(`(?i)\bQ[1-4]\s+20\d{2}\b`),
		},
		weight: 1.0,
	},
	ClassMeeting: {
		keywords: []string{"attendees", "agenda", "action items", "minutes", "next steps", "follow-up", "discussed"},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?mi)^\s*(?:Attendees|Agenda|Action Items|Minutes)\b`),
		},
		weight: 1.2,
	},
}

// Classify scores the text against each class's keyword and regex signals and
// returns the highest-scoring class. Ties, and texts matching nothing, are
// generic. Only a bounded prefix of very large texts is scanned.
func Classify(text string) DocClass {
	const scanLimit = 20000
	sample := text
	if len(sample) > scanLimit {
		sample = sample[:scanLimit]
	}
	lower := strings.ToLower(sample)

	best := ClassGeneric
	bestScore := 0.0
	tied := false

	for class, sig := range classSignals {
		score := 0.0
		for _, kw := range sig.keywords {
			score += float64(strings.Count(lower, kw))
		}
		for _, re := range sig.patterns {
			score += 2.0 * float64(len(re.FindAllStringIndex(sample, 8)))
		}
		score *= sig.weight

		switch {
		case score > bestScore:
			best = class
			bestScore = score
			tied = false
		case score == bestScore && score > 0:
			tied = true
		}
	}

	// A handful of incidental keyword hits is not a classification.
	if bestScore < 3 || tied {
		return ClassGeneric
	}
	return best
}
