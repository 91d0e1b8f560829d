// Package pattern extracts candidate entities and facts from card text with a
// declarative table of regular expressions. It never calls out of process.
package pattern

import (
	"strings"

	"github.com/agenthands/cardgraph/internal/core/common"
	"github.com/agenthands/cardgraph/internal/core/model"
)

type Extractor struct {
	Rules []Rule
}

// Result holds the candidates from one call.
type Result struct {
	Entities []model.ExtractedEntity `json:"entities"`
	Facts    []model.ExtractedFact   `json:"facts"`
}

// Len is the extraction yield used by the LLM gate.
func (r Result) Len() int {
	return len(r.Entities) + len(r.Facts)
}

// Merge appends other to r.
func (r Result) Merge(other Result) Result {
	r.Entities = append(r.Entities, other.Entities...)
	r.Facts = append(r.Facts, other.Facts...)
	return r
}

func NewExtractor() *Extractor {
	return &Extractor{Rules: DefaultLibrary()}
}

func NewExtractorWithRules(rules []Rule) *Extractor {
	return &Extractor{Rules: rules}
}

// Extract applies every rule to text. Entities are deduplicated by name,
// ignoring case; facts are kept as found.
func (e *Extractor) Extract(text, sourceField string) Result {
	res := Result{
		Entities: []model.ExtractedEntity{},
		Facts:    []model.ExtractedFact{},
	}
	if strings.TrimSpace(text) == "" {
		return res
	}

	seen := make(map[string]bool)
	for _, rule := range e.Rules {
		for _, m := range rule.Pattern.FindAllStringSubmatchIndex(text, -1) {
			if 2*rule.Group+1 >= len(m) {
				continue
			}
			bStart, bEnd := m[2*rule.Group], m[2*rule.Group+1]
			if bStart < 0 {
				continue
			}
			raw := text[bStart:bEnd]
			value := raw
			if rule.Normalize != nil {
				value = rule.Normalize(raw)
			}
			if value == "" {
				continue
			}
			start, end := common.RuneSpan(text, bStart, bEnd)

			if rule.EntityType != "" {
				key := strings.ToLower(value)
				if !seen[key] {
					seen[key] = true
					res.Entities = append(res.Entities, model.ExtractedEntity{
						Name:        value,
						EntityType:  rule.EntityType,
						Confidence:  rule.Confidence,
						SourceField: sourceField,
						OffsetStart: intPtr(start),
						OffsetEnd:   intPtr(end),
						MatchedText: raw,
						Method:      model.MethodPattern,
					})
				}
			}

			if rule.FactPredicate != "" {
				res.Facts = append(res.Facts, model.ExtractedFact{
					Predicate:      rule.FactPredicate,
					Object:         value,
					ObjectIsEntity: rule.ObjectIsEntity,
					ObjectType:     rule.ObjectType,
					Confidence:     rule.Confidence,
					SourceField:    sourceField,
					OffsetStart:    intPtr(start),
					OffsetEnd:      intPtr(end),
					Method:         model.MethodPattern,
				})
			}
		}
	}
	return res
}

func intPtr(i int) *int {
	return &i
}
