// Package summary writes LLM descriptions for entities and entity clusters.
package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenthands/cardgraph/internal/config"
	"github.com/agenthands/cardgraph/internal/core/common"
	"github.com/agenthands/cardgraph/internal/core/model"
	"github.com/agenthands/cardgraph/internal/llm"
)

// ChunkSize bounds how many members go into one cluster prompt; larger
// clusters are summarised in parts and the parts summarised again.
const ChunkSize = 20

const maxLabelLength = 60

type Summarizer struct {
	LLM     llm.LLMClient
	Prompts config.Prompts
}

func NewSummarizer(llmClient llm.LLMClient, prompts config.Prompts) *Summarizer {
	return &Summarizer{
		LLM:     llmClient,
		Prompts: prompts,
	}
}

// SummarizeEntity describes entity from the facts it takes part in. names
// resolves entity IDs appearing in facts.
func (s *Summarizer) SummarizeEntity(ctx context.Context, entity model.Entity, facts []model.Fact, names map[string]string) (string, error) {
	var sb strings.Builder
	for _, f := range facts {
		if f.Historical() {
			continue
		}
		object := ""
		switch {
		case f.ObjectEntityID != nil:
			object = lookupName(*f.ObjectEntityID, names)
		case f.ObjectValue != nil:
			object = *f.ObjectValue
		}
		neg := ""
		if f.Negated {
			neg = "not "
		}
		fmt.Fprintf(&sb, "- %s %s%s %s\n", lookupName(f.SubjectID, names), neg, f.Predicate, object)
	}
	if sb.Len() == 0 {
		sb.WriteString("- (no facts recorded)\n")
	}

	prompt := fmt.Sprintf(s.Prompts.EntitySummary, entity.Name, entity.EntityType, sb.String())
	response, err := s.LLM.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate summary: %w", err)
	}

	result, err := common.ParseJSON[model.EntitySummary](response)
	if err != nil {
		return "", fmt.Errorf("failed to parse summary result: %w", err)
	}
	return strings.TrimSpace(result.Summary), nil
}

func lookupName(id string, names map[string]string) string {
	if n, ok := names[id]; ok {
		return n
	}
	return id
}

func (s *Summarizer) SummarizeCluster(ctx context.Context, members []model.Entity) (string, error) {
	if len(members) <= ChunkSize {
		var sb strings.Builder
		for _, m := range members {
			fmt.Fprintf(&sb, "- %s (%s)", m.Name, m.EntityType)
			if m.Description != "" {
				fmt.Fprintf(&sb, ": %s", m.Description)
			}
			sb.WriteString("\n")
		}

		prompt := fmt.Sprintf(s.Prompts.ClusterSummary, sb.String())
		response, err := s.LLM.Generate(ctx, prompt)
		if err != nil {
			return "", fmt.Errorf("failed to generate cluster summary: %w", err)
		}
		result, err := common.ParseJSON[model.EntitySummary](response)
		if err == nil {
			return strings.TrimSpace(result.Summary), nil
		}
		return strings.TrimSpace(response), nil
	}

	var parts []model.Entity
	for i := 0; i < len(members); i += ChunkSize {
		end := min(i+ChunkSize, len(members))
		summary, err := s.SummarizeCluster(ctx, members[i:end])
		if err != nil {
			continue
		}
		parts = append(parts, model.Entity{
			Name:        fmt.Sprintf("Part %d", len(parts)+1),
			EntityType:  "group",
			Description: summary,
		})
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("failed to summarise any part of a %d member cluster", len(members))
	}
	return s.SummarizeCluster(ctx, parts)
}

type clusterLabel struct {
	Label string `json:"label"`
}

func (s *Summarizer) NameCluster(ctx context.Context, summary string) (string, error) {
	if s.Prompts.ClusterName == "" || strings.TrimSpace(summary) == "" {
		return "", nil
	}
	response, err := s.LLM.Generate(ctx, fmt.Sprintf(s.Prompts.ClusterName, summary))
	if err != nil {
		return "", fmt.Errorf("failed to generate cluster name: %w", err)
	}
	if result, err := common.ParseJSON[clusterLabel](response); err == nil {
		return strings.TrimSpace(result.Label), nil
	}
	// A bare label, possibly quoted.
	label := strings.Trim(strings.TrimSpace(response), `"'`)
	if label == "" || len([]rune(label)) > maxLabelLength || strings.Contains(label, "\n") {
		return "", nil
	}
	return label, nil
}
