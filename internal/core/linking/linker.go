// Package linking finds mentions of already-known entities in free text.
package linking

import (
	"sort"

	"github.com/agenthands/cardgraph/internal/core/common"
	"github.com/agenthands/cardgraph/internal/core/model"
)

const (
	StrategyExact        = "exact_match"
	StrategyAlias        = "alias_match"
	StrategyFuzzy        = "fuzzy_match"
	StrategyTokenOverlap = "token_overlap"
)

const (
	ExactConfidence        = 1.0
	AliasConfidence        = 0.95
	TokenOverlapConfidence = 0.75

	DefaultFuzzyThreshold = 0.8
	DefaultMinTokenLength = 3
)

type Config struct {
	// FuzzyThreshold is the similarity a fuzzy match must exceed.
	FuzzyThreshold float64
	MinTokenLength int
}

type Linker struct {
	cfg Config
}

func NewLinker(cfg Config) *Linker {
	if cfg.FuzzyThreshold <= 0 {
		cfg.FuzzyThreshold = DefaultFuzzyThreshold
	}
	if cfg.MinTokenLength <= 0 {
		cfg.MinTokenLength = DefaultMinTokenLength
	}
	return &Linker{cfg: cfg}
}

// Link returns candidate mentions of known entities in text. Each token is
// tried against exact name, alias, fuzzy and sub-token strategies in that
// order and the first hit wins. Results are unique per (entity, start offset)
// keeping the highest confidence, ordered by offset.
func (l *Linker) Link(text, sourceField string, known []model.Entity) []model.CandidateMention {
	out := []model.CandidateMention{}
	if text == "" || len(known) == 0 {
		return out
	}
	idx := NewIndex(known, l.cfg.MinTokenLength)
	if idx.Len() == 0 {
		return out
	}

	best := make(map[mentionKey]model.CandidateMention)
	var order []mentionKey
	for _, tok := range CandidateTokens(text) {
		if tok.End-tok.Start < l.cfg.MinTokenLength {
			continue
		}
		entity, confidence, strategy, ok := l.match(idx, tok.Text)
		if !ok {
			continue
		}
		start, end := tok.Start, tok.End
		m := model.CandidateMention{
			EntityID:    entity.ID,
			EntityName:  entity.Name,
			MentionText: tok.Text,
			SourceField: sourceField,
			OffsetStart: &start,
			OffsetEnd:   &end,
			Confidence:  confidence,
			Method:      PersistedMethod(strategy),
			Strategy:    strategy,
		}
		key := mentionKey{entityID: entity.ID, start: start}
		prev, seen := best[key]
		if !seen {
			order = append(order, key)
		}
		if !seen || m.Confidence > prev.Confidence {
			best[key] = m
		}
	}

	for _, k := range order {
		out = append(out, best[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].OffsetStart < *out[j].OffsetStart
	})
	return out
}

type mentionKey struct {
	entityID string
	start    int
}

func (l *Linker) match(idx *Index, token string) (model.Entity, float64, string, bool) {
	if e, ok := idx.Exact(token); ok {
		return e, ExactConfidence, StrategyExact, true
	}
	if e, ok := idx.Alias(token); ok {
		return e, AliasConfidence, StrategyAlias, true
	}
	if e, score, ok := idx.Fuzzy(token, common.Similarity); ok && score > l.cfg.FuzzyThreshold {
		return e, score, StrategyFuzzy, true
	}
	for _, sub := range SplitTokens(token) {
		if len([]rune(sub)) < l.cfg.MinTokenLength {
			continue
		}
		if e, ok := idx.Token(sub); ok {
			return e, TokenOverlapConfidence, StrategyTokenOverlap, true
		}
	}
	return model.Entity{}, 0, "", false
}

// PersistedMethod maps a linking strategy onto the extraction method stored
// with the mention. Exact and alias hits are as trustworthy as a pattern hit.
func PersistedMethod(strategy string) string {
	switch strategy {
	case StrategyExact, StrategyAlias:
		return model.MethodPattern
	default:
		return model.MethodFuzzyMatch
	}
}
