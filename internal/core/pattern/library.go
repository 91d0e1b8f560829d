package pattern

import (
	"regexp"

	"github.com/agenthands/cardgraph/internal/core/model"
)

// Rule is one row of the pattern library. A rule yields a candidate entity
// when EntityType is set and a candidate fact when FactPredicate is set.
type Rule struct {
	Name           string
	Pattern        *regexp.Regexp
	Group          int // capture group holding the value
	Confidence     float64
	EntityType     string
	FactPredicate  string
	ObjectType     string
	ObjectIsEntity bool
	Normalize      func(string) string
}

// Object types for literal fact objects.
const (
	ObjectVersion = "version"
	ObjectURL     = "url"
	ObjectIssue   = "issue"
	ObjectDate    = "date"
	ObjectEntity  = "entity"
)

// DefaultLibrary returns the built-in extraction rules.
func DefaultLibrary() []Rule {
	return []Rule{
		{
			Name:       "mention",
			Pattern:    regexp.MustCompile(`(?:^|[^\w@])@([A-Za-z](?:[\w.-]*[A-Za-z0-9_])?)`),
			Group:      1,
			Confidence: 0.9,
			EntityType: model.EntityPerson,
			Normalize:  NormalizePerson,
		},
		{
			Name:           "assigned_to",
			Pattern:        regexp.MustCompile(`(?i)\bassigned\s+to\s+@?([A-Za-z](?:[\w.-]*[A-Za-z0-9])?)`),
			Group:          1,
			Confidence:     0.85,
			EntityType:     model.EntityPerson,
			FactPredicate:  model.PredAssignedTo,
			ObjectType:     ObjectEntity,
			ObjectIsEntity: true,
			Normalize:      NormalizePerson,
		},
		{
			Name:           "owned_by",
			Pattern:        regexp.MustCompile(`(?i)\bowned\s+by\s+@?([A-Za-z](?:[\w.-]*[A-Za-z0-9])?)`),
			Group:          1,
			Confidence:     0.8,
			EntityType:     model.EntityPerson,
			FactPredicate:  model.PredOwnedBy,
			ObjectType:     ObjectEntity,
			ObjectIsEntity: true,
			Normalize:      NormalizePerson,
		},
		{
			Name:          "version",
			Pattern:       regexp.MustCompile(`(?i)(?:^|[^\w.])(v?\d+\.\d+(?:\.\d+)*(?:-[0-9a-z]+(?:\.[0-9a-z]+)*)?)\b`),
			Group:         1,
			Confidence:    0.8,
			FactPredicate: model.PredHasVersion,
			ObjectType:    ObjectVersion,
			Normalize:     NormalizeVersion,
		},
		{
			Name:          "url",
			Pattern:       regexp.MustCompile(`(https?://[^\s<>"'()\[\]]*[^\s<>"'()\[\].,;:!?])`),
			Group:         1,
			Confidence:    0.95,
			FactPredicate: model.PredReferences,
			ObjectType:    ObjectURL,
			Normalize:     trimValue,
		},
		{
			Name:          "issue_reference",
			Pattern:       regexp.MustCompile(`(?:^|[^\w&/#])(#\d+|[A-Z][A-Z0-9]{1,9}-\d+)\b`),
			Group:         1,
			Confidence:    0.85,
			FactPredicate: model.PredReferences,
			ObjectType:    ObjectIssue,
			Normalize:     trimValue,
		},
		{
			Name:       "service_name",
			Pattern:    regexp.MustCompile(`(?i)\b([a-z][a-z0-9]*(?:[-_][a-z0-9]+)*[-_](?:service|svc|api|server|worker|gateway|db))\b`),
			Group:      1,
			Confidence: 0.8,
			EntityType: model.EntitySystem,
			Normalize:  NormalizeSystem,
		},
		{
			Name:       "component_name",
			Pattern:    regexp.MustCompile(`\b([A-Z][a-z0-9]+(?:[A-Z][a-z0-9]+)*(?:Controller|Service|Component|Module|Handler|Manager|Repository|Worker|Client|Gateway))\b`),
			Group:      1,
			Confidence: 0.75,
			EntityType: model.EntitySystem,
			Normalize:  trimValue,
		},
		{
			Name:          "due_date",
			Pattern:       regexp.MustCompile(`(?i)\b(?:due|deadline)(?:\s+(?:on|by|date))?\s*:?\s*(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4}|(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?)`),
			Group:         1,
			Confidence:    0.85,
			FactPredicate: model.PredDueOn,
			ObjectType:    ObjectDate,
			Normalize:     NormalizeDate,
		},
		{
			Name:           "depends_on",
			Pattern:        regexp.MustCompile(`(?i)\bdepends\s+on\s+([#@]?\w(?:[\w./-]*\w)?)`),
			Group:          1,
			Confidence:     0.8,
			FactPredicate:  model.PredDependsOn,
			ObjectType:     ObjectEntity,
			ObjectIsEntity: true,
			Normalize:      NormalizeReference,
		},
		{
			Name:           "blocks",
			Pattern:        regexp.MustCompile(`(?i)\bblocks\s+([#@]?\w(?:[\w./-]*\w)?)`),
			Group:          1,
			Confidence:     0.8,
			FactPredicate:  model.PredBlocks,
			ObjectType:     ObjectEntity,
			ObjectIsEntity: true,
			Normalize:      NormalizeReference,
		},
	}
}
