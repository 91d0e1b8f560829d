package model

type DuplicatePair struct {
	OriginalID  string  `json:"original_id"`  // Entity to keep
	DuplicateID string  `json:"duplicate_id"` // Entity absorbed into the original
	Confidence  float64 `json:"confidence"`
}

type DeduplicationResult struct {
	Duplicates []DuplicatePair `json:"duplicates"`
}

type ContradictionResult struct {
	ContradictedFactIDs []string `json:"contradicted_fact_ids"`
}

type EntitySummary struct {
	Summary string `json:"summary"`
}

// Cluster is a group of entities densely connected by entity-to-entity facts.
type Cluster struct {
	Label    string   `json:"label"`
	Entities []Entity `json:"entities"`
	Summary  string   `json:"summary,omitempty"`
}

// Edge is an undirected view of an active entity-to-entity fact.
type Edge struct {
	FactID   string `json:"fact_id"`
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
}
