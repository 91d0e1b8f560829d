package model

import (
	"regexp"
	"strings"
)

// Predicates in the shared vocabulary. Free-text predicates are still allowed.
const (
	PredDependsOn  = "depends_on"
	PredBlocks     = "blocks"
	PredAssignedTo = "assigned_to"
	PredOwnedBy    = "owned_by"
	PredPartOf     = "part_of"
	PredUses       = "uses"
	PredImplements = "implements"
	PredReferences = "references"
	PredRelatesTo  = "relates_to"
	PredCreatedBy  = "created_by"
	PredHasVersion = "has_version"
	PredDueOn      = "due_on"
	PredMentions   = "mentions"
	PredDuplicates = "duplicates"
	PredFixes      = "fixes"
	PredDeployedTo = "deployed_to"
	PredReplaces   = "replaces"
)

var inversePredicates = map[string]string{
	PredDependsOn:  "depended_on_by",
	PredBlocks:     "blocked_by",
	PredAssignedTo: "assignee_of",
	PredOwnedBy:    "owns",
	PredPartOf:     "has_part",
	PredUses:       "used_by",
	PredImplements: "implemented_by",
	PredReferences: "referenced_by",
	PredRelatesTo:  PredRelatesTo,
	PredCreatedBy:  "creator_of",
	PredHasVersion: "version_of",
	PredDueOn:      "due_for",
	PredMentions:   "mentioned_in",
	PredDuplicates: "duplicated_by",
	PredFixes:      "fixed_by",
	PredDeployedTo: "hosts",
	PredReplaces:   "replaced_by",
}

// singleValued predicates hold at most one current object per subject.
// A newer fact for the same subject may contradict an older one.
var singleValued = map[string]bool{
	PredAssignedTo: true,
	PredOwnedBy:    true,
	PredDueOn:      true,
	PredHasVersion: true,
}

// Vocabulary returns the known predicates in a stable order.
func Vocabulary() []string {
	return []string{
		PredDependsOn, PredBlocks, PredAssignedTo, PredOwnedBy, PredPartOf,
		PredUses, PredImplements, PredReferences, PredRelatesTo, PredCreatedBy,
		PredHasVersion, PredDueOn, PredMentions, PredDuplicates, PredFixes,
		PredDeployedTo, PredReplaces,
	}
}

// Inverse returns the inverse of a predicate, checking both directions of the
// vocabulary. ok is false for free-text predicates.
func Inverse(predicate string) (string, bool) {
	if inv, ok := inversePredicates[predicate]; ok {
		return inv, true
	}
	for p, inv := range inversePredicates {
		if inv == predicate {
			return p, true
		}
	}
	return "", false
}

// IsSingleValued reports whether at most one current fact per subject is expected.
func IsSingleValued(predicate string) bool {
	return singleValued[predicate]
}

var nonWordRE = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizePredicate lower-cases a free-text predicate into snake_case.
// "Depends On" and "depends-on" both become "depends_on".
func NormalizePredicate(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	p = nonWordRE.ReplaceAllString(p, "_")
	return strings.Trim(p, "_")
}
