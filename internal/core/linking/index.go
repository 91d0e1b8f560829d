package linking

import (
	"strings"

	"github.com/agenthands/cardgraph/internal/core/model"
)

type namedEntity struct {
	folded string
	entity model.Entity
}

// Index answers exact, alias and token lookups over a set of known entities.
// Iteration order follows the order entities were given.
type Index struct {
	exact  map[string]model.Entity
	alias  map[string]model.Entity
	tokens map[string][]model.Entity
	names  []namedEntity
}

func NewIndex(known []model.Entity, minTokenLength int) *Index {
	idx := &Index{
		exact:  make(map[string]model.Entity, len(known)),
		alias:  make(map[string]model.Entity),
		tokens: make(map[string][]model.Entity),
	}
	for _, e := range known {
		folded := strings.ToLower(strings.TrimSpace(e.Name))
		if folded == "" {
			continue
		}
		if _, ok := idx.exact[folded]; !ok {
			idx.exact[folded] = e
			idx.names = append(idx.names, namedEntity{folded: folded, entity: e})
		}
		for _, a := range e.Aliases {
			fa := strings.ToLower(strings.TrimSpace(a))
			if fa == "" {
				continue
			}
			if _, ok := idx.alias[fa]; !ok {
				idx.alias[fa] = e
			}
		}
		for _, tok := range SplitTokens(e.Name) {
			if len([]rune(tok)) < minTokenLength {
				continue
			}
			if !containsEntity(idx.tokens[tok], e.ID) {
				idx.tokens[tok] = append(idx.tokens[tok], e)
			}
		}
	}
	return idx
}

func containsEntity(list []model.Entity, id string) bool {
	for _, e := range list {
		if e.ID == id {
			return true
		}
	}
	return false
}

func (idx *Index) Exact(token string) (model.Entity, bool) {
	e, ok := idx.exact[strings.ToLower(token)]
	return e, ok
}

func (idx *Index) Alias(token string) (model.Entity, bool) {
	e, ok := idx.alias[strings.ToLower(token)]
	return e, ok
}

// Fuzzy returns the known name with the highest similarity to token. Ties
// keep the first name in index order.
func (idx *Index) Fuzzy(token string, similarity func(a, b string) float64) (model.Entity, float64, bool) {
	folded := strings.ToLower(token)
	var best model.Entity
	bestScore := -1.0
	for _, n := range idx.names {
		if s := similarity(folded, n.folded); s > bestScore {
			best, bestScore = n.entity, s
		}
	}
	return best, bestScore, bestScore >= 0
}

// Token returns the first entity indexed under sub-token tok.
func (idx *Index) Token(tok string) (model.Entity, bool) {
	list := idx.tokens[strings.ToLower(tok)]
	if len(list) == 0 {
		return model.Entity{}, false
	}
	return list[0], true
}

func (idx *Index) Len() int {
	return len(idx.names)
}
