package extraction

import (
	"github.com/agenthands/cardgraph/internal/config"
	"github.com/agenthands/cardgraph/internal/core/model"
)

// Policy decides when a card is worth an LLM call.
type Policy struct {
	Enabled          bool
	MinContentLength int
	MinPatternYield  int
}

func PolicyFromConfig(cfg config.ExtractionConfig) Policy {
	return Policy{
		Enabled:          cfg.LLMEnabled,
		MinContentLength: cfg.MinContentLength,
		MinPatternYield:  cfg.MinPatternYield,
	}
}

// ShouldUseLLM reports whether the LLM stage should run: it must be enabled,
// the card must carry more than MinContentLength characters and the pattern
// stage must have found fewer than MinPatternYield items.
func ShouldUseLLM(p Policy, card model.Card, patternYield int) bool {
	if !p.Enabled {
		return false
	}
	if card.ContentLength() <= p.MinContentLength {
		return false
	}
	return patternYield < p.MinPatternYield
}
