// Package community groups a board's entities into clusters that are densely
// connected by entity-to-entity facts.
package community

import (
	"sort"

	"github.com/agenthands/cardgraph/internal/core/model"
)

// MinClusterSize drops singletons: an isolated entity is not a cluster.
const MinClusterSize = 2

type CommunityDetector interface {
	Detect(entities []model.Entity, edges []model.Edge) ([][]model.Entity, error)
}

// ComponentDetector returns connected components.
type ComponentDetector struct{}

func NewComponentDetector() *ComponentDetector {
	return &ComponentDetector{}
}

func NewDefaultDetector() CommunityDetector {
	return NewLabelPropagationDetector()
}

func (d *ComponentDetector) Detect(entities []model.Entity, edges []model.Edge) ([][]model.Entity, error) {
	g := newGraph(entities, edges)

	visited := make(map[string]bool)
	communities := [][]model.Entity{}
	for _, id := range g.order {
		if visited[id] {
			continue
		}
		var component []string
		stack := []string{id}
		visited[id] = true
		for len(stack) > 0 {
			u := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			component = append(component, u)
			for _, v := range g.neighbors(u) {
				if !visited[v] {
					visited[v] = true
					stack = append(stack, v)
				}
			}
		}
		if len(component) >= MinClusterSize {
			communities = append(communities, g.members(component))
		}
	}
	return communities, nil
}

// graph is an undirected multigraph; parallel facts add weight.
type graph struct {
	order []string
	nodes map[string]model.Entity
	adj   map[string]map[string]int
}

func newGraph(entities []model.Entity, edges []model.Edge) *graph {
	g := &graph{
		nodes: make(map[string]model.Entity, len(entities)),
		adj:   make(map[string]map[string]int, len(entities)),
	}
	for _, e := range entities {
		if _, dup := g.nodes[e.ID]; dup {
			continue
		}
		g.order = append(g.order, e.ID)
		g.nodes[e.ID] = e
		g.adj[e.ID] = make(map[string]int)
	}
	for _, e := range edges {
		if _, ok := g.nodes[e.SourceID]; !ok {
			continue
		}
		if _, ok := g.nodes[e.TargetID]; !ok {
			continue
		}
		if e.SourceID == e.TargetID {
			continue
		}
		g.adj[e.SourceID][e.TargetID]++
		g.adj[e.TargetID][e.SourceID]++
	}
	return g
}

func (g *graph) neighbors(id string) []string {
	out := make([]string, 0, len(g.adj[id]))
	for v := range g.adj[id] {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (g *graph) degree(id string) int {
	total := 0
	for _, w := range g.adj[id] {
		total += w
	}
	return total
}

// members returns the entities for ids, most connected first.
func (g *graph) members(ids []string) []model.Entity {
	sort.SliceStable(ids, func(i, j int) bool {
		di, dj := g.degree(ids[i]), g.degree(ids[j])
		if di != dj {
			return di > dj
		}
		return g.nodes[ids[i]].Name < g.nodes[ids[j]].Name
	})
	out := make([]model.Entity, len(ids))
	for i, id := range ids {
		out[i] = g.nodes[id]
	}
	return out
}
