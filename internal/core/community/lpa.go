package community

import (
	"sort"

	"github.com/agenthands/cardgraph/internal/core/model"
)

// LabelPropagationDetector implements community detection using the Label
// Propagation Algorithm. Nodes are visited in input order and ties are broken
// deterministically, so equal inputs give equal clusters.
type LabelPropagationDetector struct {
	MaxIterations int
}

func NewLabelPropagationDetector() *LabelPropagationDetector {
	return &LabelPropagationDetector{
		MaxIterations: 20,
	}
}

func (d *LabelPropagationDetector) Detect(entities []model.Entity, edges []model.Edge) ([][]model.Entity, error) {
	communities := [][]model.Entity{}
	if len(entities) == 0 {
		return communities, nil
	}
	g := newGraph(entities, edges)

	labels := make(map[string]string, len(g.order))
	for _, id := range g.order {
		labels[id] = id
	}

	for iter := 0; iter < d.MaxIterations; iter++ {
		changed := 0
		for _, u := range g.order {
			if len(g.adj[u]) == 0 {
				continue
			}

			counts := make(map[string]int)
			best := 0
			for v, weight := range g.adj[u] {
				counts[labels[v]] += weight
				if counts[labels[v]] > best {
					best = counts[labels[v]]
				}
			}

			// Keep the current label when it is among the most frequent;
			// otherwise take the lexicographically largest candidate.
			if counts[labels[u]] == best {
				continue
			}
			var candidates []string
			for label, c := range counts {
				if c == best {
					candidates = append(candidates, label)
				}
			}
			sort.Strings(candidates)
			labels[u] = candidates[len(candidates)-1]
			changed++
		}
		if changed == 0 {
			break
		}
	}

	groups := make(map[string][]string)
	var order []string
	for _, id := range g.order {
		l := labels[id]
		if _, ok := groups[l]; !ok {
			order = append(order, l)
		}
		groups[l] = append(groups[l], id)
	}
	for _, l := range order {
		if len(groups[l]) >= MinClusterSize {
			communities = append(communities, g.members(groups[l]))
		}
	}
	return communities, nil
}
