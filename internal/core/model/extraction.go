package model

// ExtractedEntity is a candidate entity produced by pattern or LLM extraction.
type ExtractedEntity struct {
	Name        string  `json:"name"`
	EntityType  string  `json:"entity_type"`
	Description string  `json:"description,omitempty"`
	Confidence  float64 `json:"confidence"`
	SourceField string  `json:"source_field,omitempty"`
	OffsetStart *int    `json:"offset_start,omitempty"`
	OffsetEnd   *int    `json:"offset_end,omitempty"`
	MatchedText string  `json:"matched_text,omitempty"`
	Method      string  `json:"method"`
}

// ExtractedFact is a candidate subject-predicate-object triple. An empty
// Subject refers to the card the text came from.
type ExtractedFact struct {
	Subject        string  `json:"subject,omitempty"`
	Predicate      string  `json:"predicate"`
	Object         string  `json:"object"`
	ObjectIsEntity bool    `json:"object_is_entity"`
	ObjectType     string  `json:"object_type,omitempty"`
	Confidence     float64 `json:"confidence"`
	SourceField    string  `json:"source_field,omitempty"`
	OffsetStart    *int    `json:"offset_start,omitempty"`
	OffsetEnd      *int    `json:"offset_end,omitempty"`
	Method         string  `json:"method"`
}

// CandidateMention points at an entity either by ID (linker) or by name
// (pattern entities created in the same run).
type CandidateMention struct {
	EntityID    string  `json:"entity_id,omitempty"`
	EntityName  string  `json:"entity_name,omitempty"`
	MentionText string  `json:"mention_text"`
	SourceField string  `json:"source_field"`
	OffsetStart *int    `json:"offset_start,omitempty"`
	OffsetEnd   *int    `json:"offset_end,omitempty"`
	Confidence  float64 `json:"confidence"`
	Method      string  `json:"method"`
	Strategy    string  `json:"strategy,omitempty"`
}

type ExtractionStats struct {
	Pattern int `json:"pattern"`
	LLM     int `json:"llm"`
	Linked  int `json:"linked"`
}

// ExtractionResult summarises one run. Entities, Facts and Mentions hold only
// rows created by the run.
type ExtractionResult struct {
	CardID   string          `json:"card_id"`
	Entities []Entity        `json:"entities"`
	Facts    []Fact          `json:"facts"`
	Mentions []Mention       `json:"mentions"`
	Errors   []string        `json:"errors"`
	Stats    ExtractionStats `json:"stats"`
}

// Counts is the summary broadcast on completion.
type Counts struct {
	Entities int `json:"entities"`
	Facts    int `json:"facts"`
	Mentions int `json:"mentions"`
}

func (r *ExtractionResult) Counts() Counts {
	return Counts{
		Entities: len(r.Entities),
		Facts:    len(r.Facts),
		Mentions: len(r.Mentions),
	}
}

// Progress is reported after each stage transition.
type Progress struct {
	CardID string `json:"card_id"`
	Stage  string `json:"stage"`
	Index  int    `json:"index"`
	Total  int    `json:"total"`
	Status string `json:"status"`
}
