// Package infer guesses an entity type from a bare name when no LLM signal
// is available.
package infer

import (
	"regexp"
	"strings"

	"github.com/agenthands/cardgraph/internal/core/model"
)

// Confidence is assigned to entities auto-created from a heuristic type.
const Confidence = 0.7

type rule struct {
	re         *regexp.Regexp
	entityType string
}

// Order matters: the first matching rule wins.
var rules = []rule{
	{regexp.MustCompile(`^@\w`), model.EntityPerson},
	{regexp.MustCompile(`(?i)^https?://|\.(md|pdf|docx?|txt|ya?ml|json|go|rb|py|ts|js)$`), model.EntityArtifact},
	{regexp.MustCompile(`^v?\d+(\.\d+)+`), model.EntityArtifact},
	{regexp.MustCompile(`^#\d+$|^[A-Z][A-Z0-9]+-\d+$`), model.EntityArtifact},
	{regexp.MustCompile(`(?i)(service|svc|controller|server|database|queue|worker|gateway|cache|cluster|handler|repository|module|component|pipeline)|\bapi|api\b|(?:^|[\s_-])db(?:$|[\s_-])`), model.EntitySystem},
	{regexp.MustCompile(`(?i)\b(document|doc|spec|report|pr|pull request|ticket|design|runbook|dashboard)\b`), model.EntityArtifact},
	{regexp.MustCompile(`(?i)\b(meeting|release|launch|incident|sprint|outage|deploy(ment)?|retro|standup|demo|migration)\b`), model.EntityEvent},
	{regexp.MustCompile(`(?i)\b(inc|corp|ltd|llc|gmbh|team|company|department|squad)\.?$`), model.EntityOrganization},
	{regexp.MustCompile(`(?i)\b(office|city|region|datacenter|country|street)\b`), model.EntityLocation},
	{regexp.MustCompile(`^[A-Z][a-z]+(?: [A-Z][a-z]+){1,2}$`), model.EntityPerson},
}

// EntityType classifies name into one of the model entity types, falling
// back to concept.
func EntityType(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.EntityConcept
	}
	for _, r := range rules {
		if r.re.MatchString(name) {
			return r.entityType
		}
	}
	return model.EntityConcept
}

var knownTypes = map[string]bool{
	model.EntityPerson:       true,
	model.EntitySystem:       true,
	model.EntityConcept:      true,
	model.EntityArtifact:     true,
	model.EntityEvent:        true,
	model.EntityOrganization: true,
	model.EntityLocation:     true,
}

// Resolve keeps a supplied type when it is one of the known types and infers
// one otherwise.
func Resolve(name, suggested string) string {
	t := strings.ToLower(strings.TrimSpace(suggested))
	if knownTypes[t] {
		return t
	}
	return EntityType(name)
}
