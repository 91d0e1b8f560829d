package linking

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/agenthands/cardgraph/internal/core/common"
)

// Token is a candidate span of text that may name a known entity.
type Token struct {
	Text  string
	Start int // character offsets
	End   int
}

var (
	capitalizedRunRE = regexp.MustCompile(`\b[A-Z][A-Za-z0-9]*(?:[ \t]+[A-Z][A-Za-z0-9]*)+`)
	capitalizedRE    = regexp.MustCompile(`\b[A-Z][A-Za-z0-9]{2,}\b`)
	technicalRE      = regexp.MustCompile(`\b[A-Za-z][a-z0-9]*(?:[A-Z][a-z0-9]+)+\b|\b[a-z][a-z0-9]*(?:_[a-z0-9]+)+\b`)
	wordRE           = regexp.MustCompile(`[A-Za-z0-9]+`)
)

// stopwords are capitalized words that start sentences or card titles far
// more often than they name anything.
var stopwords = toSet(
	"the", "this", "that", "these", "those", "there", "then", "than", "when", "what",
	"where", "which", "while", "who", "why", "how", "and", "but", "for", "with",
	"from", "into", "onto", "after", "before", "also", "should", "would", "could",
	"will", "can", "must", "may", "might", "need", "needs", "please", "fix", "fixes",
	"add", "adds", "update", "updates", "remove", "removes", "make", "use", "check",
	"bug", "feature", "task", "todo", "done", "wip", "note", "notes", "see", "via",
	"our", "your", "their", "its", "has", "have", "had", "not", "all", "any", "some",
	"every", "each", "new", "old", "now", "today", "tomorrow", "yesterday", "yes",
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
	"january", "february", "march", "april", "june", "july", "august",
	"september", "october", "november", "december",
)

func toSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

func isStopword(w string) bool {
	return stopwords[strings.ToLower(w)]
}

// CandidateTokens runs the three token passes over text: capitalized phrases
// of two to four words, single capitalized words, and technical identifiers
// (CamelCase or snake_case).
func CandidateTokens(text string) []Token {
	var tokens []Token

	for _, run := range capitalizedRunRE.FindAllStringIndex(text, -1) {
		tokens = append(tokens, phraseWindows(text, run[0], run[1])...)
	}

	for _, m := range capitalizedRE.FindAllStringIndex(text, -1) {
		word := text[m[0]:m[1]]
		if isStopword(word) {
			continue
		}
		tokens = append(tokens, newToken(text, m[0], m[1]))
	}

	for _, m := range technicalRE.FindAllStringIndex(text, -1) {
		tokens = append(tokens, newToken(text, m[0], m[1]))
	}

	return tokens
}

// phraseWindows emits every window of 2-4 words inside a run of capitalized
// words whose first and last word are not stopwords.
func phraseWindows(text string, runStart, runEnd int) []Token {
	words := wordRE.FindAllStringIndex(text[runStart:runEnd], -1)
	var out []Token
	for i := range words {
		for size := 2; size <= 4 && i+size <= len(words); size++ {
			first := words[i]
			last := words[i+size-1]
			if isStopword(text[runStart+first[0]:runStart+first[1]]) ||
				isStopword(text[runStart+last[0]:runStart+last[1]]) {
				continue
			}
			out = append(out, newToken(text, runStart+first[0], runStart+last[1]))
		}
	}
	return out
}

func newToken(text string, byteStart, byteEnd int) Token {
	start, end := common.RuneSpan(text, byteStart, byteEnd)
	return Token{Text: text[byteStart:byteEnd], Start: start, End: end}
}

// SplitTokens breaks a name on whitespace, underscores, hyphens and
// camelCase boundaries, returning lower-cased parts.
// "PaymentService" -> ["payment", "service"], "HTTPServer" -> ["http", "server"].
func SplitTokens(s string) []string {
	runes := []rune(s)
	var parts []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			parts = append(parts, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	for i, r := range runes {
		switch {
		case unicode.IsSpace(r) || r == '_' || r == '-' || r == '.' || r == '/':
			flush()
		case unicode.IsUpper(r) && len(cur) > 0:
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return parts
}
