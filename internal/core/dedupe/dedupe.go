// Package dedupe reconciles a board's knowledge after extraction: it merges
// AI-inferred entities the LLM judges to be duplicates and expires
// single-valued facts that newer facts supersede.
package dedupe

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/agenthands/cardgraph/internal/config"
	"github.com/agenthands/cardgraph/internal/core/common"
	"github.com/agenthands/cardgraph/internal/core/model"
	"github.com/agenthands/cardgraph/internal/llm"
)

// DefaultMergeConfidence is the lowest duplicate confidence that triggers a merge.
const DefaultMergeConfidence = 0.9

type Deduplicator struct {
	LLM             llm.LLMClient
	Prompts         config.Prompts
	MergeConfidence float64
	Logger          *zap.Logger
}

func NewDeduplicator(llmClient llm.LLMClient, prompts config.Prompts, mergeConfidence float64) *Deduplicator {
	if mergeConfidence <= 0 {
		mergeConfidence = DefaultMergeConfidence
	}
	return &Deduplicator{
		LLM:             llmClient,
		Prompts:         prompts,
		MergeConfidence: mergeConfidence,
		Logger:          zap.NewNop(),
	}
}

// ResolveDuplicates asks the LLM which entities name the same thing. Only
// pairs whose duplicate is an inferred entity are returned; user-created
// entities are never absorbed.
func (d *Deduplicator) ResolveDuplicates(ctx context.Context, entities []model.Entity) ([]model.DuplicatePair, error) {
	if len(entities) < 2 {
		return []model.DuplicatePair{}, nil
	}
	byID := make(map[string]model.Entity, len(entities))
	for _, e := range entities {
		byID[e.ID] = e
	}

	prompt := fmt.Sprintf(d.Prompts.Duplicates, serializeEntities(entities))
	response, err := d.LLM.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate deduplication result: %w", err)
	}
	result, err := common.ParseJSON[model.DeduplicationResult](response)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dedupe result: %w", err)
	}

	pairs := []model.DuplicatePair{}
	for _, p := range result.Duplicates {
		original, ok := byID[p.OriginalID]
		if !ok {
			continue
		}
		duplicate, ok := byID[p.DuplicateID]
		if !ok || original.ID == duplicate.ID || !duplicate.Inferred() {
			continue
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

func serializeEntities(entities []model.Entity) string {
	var sb strings.Builder
	for _, e := range entities {
		source := "user"
		if e.Inferred() {
			source = "inferred"
		}
		fmt.Fprintf(&sb, "- id: %s, name: %s, type: %s, source: %s", e.ID, e.Name, e.EntityType, source)
		if len(e.Aliases) > 0 {
			fmt.Fprintf(&sb, ", aliases: %s", strings.Join(e.Aliases, ", "))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
