package config

// Verb order for each template:
//
//	Extraction:     title, description, known entities, known domains
//	Duplicates:     entity list
//	Contradictions: fact list
//	EntitySummary:  entity name, entity type, fact list
//	ClusterSummary: member list
//	ClusterName:    cluster summary
func DefaultPrompts() Prompts {
	return Prompts{
		Extraction:     extractionPrompt,
		Duplicates:     duplicatesPrompt,
		Contradictions: contradictionsPrompt,
		EntitySummary:  entitySummaryPrompt,
		ClusterSummary: clusterSummaryPrompt,
		ClusterName:    clusterNamePrompt,
	}
}

func (p Prompts) withDefaults() Prompts {
	d := DefaultPrompts()
	if p.Extraction == "" {
		p.Extraction = d.Extraction
	}
	if p.Duplicates == "" {
		p.Duplicates = d.Duplicates
	}
	if p.Contradictions == "" {
		p.Contradictions = d.Contradictions
	}
	if p.EntitySummary == "" {
		p.EntitySummary = d.EntitySummary
	}
	if p.ClusterSummary == "" {
		p.ClusterSummary = d.ClusterSummary
	}
	if p.ClusterName == "" {
		p.ClusterName = d.ClusterName
	}
	return p
}

const extractionPrompt = `You extract knowledge from a kanban card.

Card title: %s
Card description:
%s

Entities already known on this board (reuse these names exactly when the card refers to them):
%s

Known domains:
%s

Return JSON only:
{
  "entities": [{"name": "...", "entityType": "person|system|concept|artifact|event|organization|location", "description": "...", "confidence": 0.0, "isNew": true}],
  "facts": [{"subject": "...", "predicate": "snake_case_verb", "object": "...", "objectIsEntity": true, "confidence": 0.0}]
}
Leave "subject" empty when the fact is about the card itself.`

const duplicatesPrompt = `The following entities were extracted automatically from kanban cards.
Find pairs that refer to the same real-world thing.

%s

Return JSON only:
{"duplicates": [{"original_id": "...", "duplicate_id": "...", "confidence": 0.0}]}`

const contradictionsPrompt = `Each fact below can hold only one value at a time for a given subject.
Identify facts that are superseded by a newer fact about the same subject and predicate.

%s

Return JSON only:
{"contradicted_fact_ids": ["..."]}`

const entitySummaryPrompt = `Write a two sentence description of %s (%s) based on these facts:

%s

Return JSON only:
{"summary": "..."}`

const clusterSummaryPrompt = `These entities form a connected group on a kanban board:

%s

Describe what the group is about in two sentences. Return JSON only:
{"summary": "..."}`

const clusterNamePrompt = `Give a short label (at most four words) for this group:

%s

Return JSON only:
{"label": "..."}`
