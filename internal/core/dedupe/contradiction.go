package dedupe

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agenthands/cardgraph/internal/core/common"
	"github.com/agenthands/cardgraph/internal/core/model"
)

// ResolveContradictions asks the LLM which of facts are superseded. facts
// must share one subject and one single-valued predicate. The newest fact is
// never reported, so at least one stays active.
func (d *Deduplicator) ResolveContradictions(ctx context.Context, facts []model.Fact, names map[string]string) ([]string, error) {
	if len(facts) < 2 {
		return []string{}, nil
	}
	ordered := append([]model.Fact(nil), facts...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return validFrom(ordered[i]).Before(validFrom(ordered[j]))
	})
	newest := ordered[len(ordered)-1].ID

	prompt := fmt.Sprintf(d.Prompts.Contradictions, serializeFacts(ordered, names))
	response, err := d.LLM.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate contradiction check: %w", err)
	}
	result, err := common.ParseJSON[model.ContradictionResult](response)
	if err != nil {
		return nil, fmt.Errorf("failed to parse contradiction result: %w", err)
	}

	inGroup := make(map[string]bool, len(facts))
	for _, f := range facts {
		inGroup[f.ID] = true
	}
	ids := []string{}
	seen := make(map[string]bool)
	for _, id := range result.ContradictedFactIDs {
		if !inGroup[id] || id == newest || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

// singleValuedGroups groups active facts by subject and single-valued
// predicate, keeping only groups with more than one fact.
func singleValuedGroups(facts []model.Fact) [][]model.Fact {
	type key struct{ subject, predicate string }
	groups := make(map[key][]model.Fact)
	var order []key
	for _, f := range facts {
		if f.Historical() || f.Negated || !model.IsSingleValued(f.Predicate) {
			continue
		}
		k := key{f.SubjectID, f.Predicate}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], f)
	}
	out := [][]model.Fact{}
	for _, k := range order {
		if len(groups[k]) > 1 {
			out = append(out, groups[k])
		}
	}
	return out
}

func serializeFacts(facts []model.Fact, names map[string]string) string {
	var sb strings.Builder
	for _, f := range facts {
		object := ""
		if f.ObjectEntityID != nil {
			object = nameOf(*f.ObjectEntityID, names)
		} else if f.ObjectValue != nil {
			object = *f.ObjectValue
		}
		fmt.Fprintf(&sb, "- id: %s, fact: %s %s %s, since: %s\n",
			f.ID, nameOf(f.SubjectID, names), f.Predicate, object, validFrom(f).Format(time.RFC3339))
	}
	return sb.String()
}

func nameOf(id string, names map[string]string) string {
	if n, ok := names[id]; ok {
		return n
	}
	return id
}

func validFrom(f model.Fact) time.Time {
	if f.ValidFrom != nil {
		return *f.ValidFrom
	}
	return f.CreatedAt
}
