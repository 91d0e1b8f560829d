package model

import (
	"errors"
	"strings"
	"time"
)

// Extraction methods recorded on facts and mentions.
const (
	MethodManual     = "manual"
	MethodLLM        = "ai_llm"
	MethodPattern    = "ai_pattern"
	MethodFuzzyMatch = "fuzzy_match"
	MethodInferred   = "inferred"
)

// Source fields of a card a mention or fact can come from.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldComment     = "comment"
)

// CardFact roles.
const (
	RoleSource   = "source"
	RoleEvidence = "evidence"
	RoleRelated  = "related"
)

var (
	ErrFactObjectMissing   = errors.New("fact has neither object entity nor object value")
	ErrFactObjectAmbiguous = errors.New("fact has both object entity and object value")
	ErrInvalidOffsets      = errors.New("invalid text offsets")
)

type Fact struct {
	ID               string     `json:"id"`
	DomainID         string     `json:"domain_id"`
	SubjectID        string     `json:"subject_entity_id"`
	Predicate        string     `json:"predicate"`
	ObjectEntityID   *string    `json:"object_entity_id,omitempty"`
	ObjectValue      *string    `json:"object_value,omitempty"`
	ObjectType       string     `json:"object_type,omitempty"`
	Confidence       float64    `json:"confidence"`
	ExtractionMethod string     `json:"extraction_method"`
	Negated          bool       `json:"negated"`
	ValidFrom        *time.Time `json:"valid_from,omitempty"`
	ValidUntil       *time.Time `json:"valid_until,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Validate checks that exactly one kind of object is set.
func (f Fact) Validate() error {
	hasEntity := f.ObjectEntityID != nil && *f.ObjectEntityID != ""
	hasValue := f.ObjectValue != nil
	switch {
	case hasEntity && hasValue:
		return ErrFactObjectAmbiguous
	case !hasEntity && !hasValue:
		return ErrFactObjectMissing
	}
	return nil
}

// Historical reports whether the fact has been expired.
func (f Fact) Historical() bool {
	return f.ValidUntil != nil
}

type Mention struct {
	ID               string    `json:"id"`
	EntityID         string    `json:"entity_id"`
	CardID           string    `json:"card_id"`
	MentionText      string    `json:"mention_text"`
	SourceField      string    `json:"source_field"`
	TextOffsetStart  *int      `json:"text_offset_start,omitempty"`
	TextOffsetEnd    *int      `json:"text_offset_end,omitempty"`
	Confidence       float64   `json:"confidence"`
	ExtractionMethod string    `json:"extraction_method"`
	MatchStrategy    string    `json:"match_strategy,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// ValidateOffsets checks offsets are non-negative and ordered when both present.
func ValidateOffsets(start, end *int) error {
	if start != nil && *start < 0 {
		return ErrInvalidOffsets
	}
	if end != nil && *end < 0 {
		return ErrInvalidOffsets
	}
	if start != nil && end != nil && *start > *end {
		return ErrInvalidOffsets
	}
	return nil
}

type CardFact struct {
	ID              string    `json:"id"`
	CardID          string    `json:"card_id"`
	FactID          string    `json:"fact_id"`
	Role            string    `json:"role"`
	SourceField     string    `json:"source_field,omitempty"`
	TextOffsetStart *int      `json:"text_offset_start,omitempty"`
	TextOffsetEnd   *int      `json:"text_offset_end,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
