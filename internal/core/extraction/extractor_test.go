package extraction

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/cardgraph/internal/config"
	"github.com/agenthands/cardgraph/internal/core/model"
	"github.com/agenthands/cardgraph/internal/llm"
)

func newTestExtractor(t *testing.T, resp llm.Response) (*Extractor, *llm.MockCaller) {
	t.Helper()
	caller := &llm.MockCaller{Response: resp}
	ex, err := NewExtractor(caller, "", config.Default().Extraction, 5*time.Second)
	require.NoError(t, err)
	return ex, caller
}

var testCard = model.Card{
	ID:          "card-1",
	BoardID:     "board-1",
	Title:       "Migrate billing to Stripe",
	Description: "The billing worker should call the Stripe API instead of the legacy gateway.",
}

func TestExtractWithLLM_ValidResponse(t *testing.T) {
	content := `{
		"entities": [
			{"name": "Stripe", "entityType": "organization", "description": "Payment provider", "confidence": 0.9, "isNew": true},
			{"name": "Billing Worker", "entityType": "widget", "description": "", "confidence": 0.8, "isNew": false}
		],
		"facts": [
			{"subject": "Migrate billing to Stripe", "predicate": "Depends On", "object": "Stripe", "objectIsEntity": true, "confidence": 0.85},
			{"subject": "Billing Worker", "predicate": "uses", "object": "legacy gateway", "objectIsEntity": false, "confidence": 0.6}
		]
	}`
	ex, caller := newTestExtractor(t, llm.Response{Success: true, Content: content})

	res := ex.ExtractWithLLM(context.Background(), testCard, nil, nil)

	require.NoError(t, res.Err)
	assert.True(t, res.Validated)
	require.Len(t, res.Entities, 2)
	assert.Equal(t, model.EntityOrganization, res.Entities[0].EntityType)
	assert.Equal(t, "Payment provider", res.Entities[0].Description)
	assert.Equal(t, model.MethodLLM, res.Entities[0].Method)
	assert.Equal(t, model.EntitySystem, res.Entities[1].EntityType, "unknown type falls back to inference")

	require.Len(t, res.Facts, 2)
	assert.Empty(t, res.Facts[0].Subject, "card title refers to the card itself")
	assert.Equal(t, model.PredDependsOn, res.Facts[0].Predicate)
	assert.True(t, res.Facts[0].ObjectIsEntity)
	assert.Equal(t, "Billing Worker", res.Facts[1].Subject)
	assert.Equal(t, "text", res.Facts[1].ObjectType)

	require.Equal(t, 1, caller.Calls())
	assert.NotNil(t, caller.Requests[0].Schema)
	assert.Equal(t, 5*time.Second, caller.Requests[0].Timeout)
	assert.Contains(t, caller.Requests[0].Prompt, testCard.Title)
}

func TestExtractWithLLM_SchemaViolationFallsBackToBestEffort(t *testing.T) {
	content := "Sure! ```json\n" + `{"entities": [{"name": "Stripe", "confidence": 1.5}], "facts": []}` + "\n```"
	ex, _ := newTestExtractor(t, llm.Response{Success: true, Content: content})

	res := ex.ExtractWithLLM(context.Background(), testCard, nil, nil)

	assert.False(t, res.Validated)
	assert.Error(t, res.Err)
	require.Len(t, res.Entities, 1)
	assert.Equal(t, 1.0, res.Entities[0].Confidence)
	assert.Equal(t, model.EntityConcept, res.Entities[0].EntityType)
}

func TestExtractWithLLM_UnparseableResponse(t *testing.T) {
	ex, _ := newTestExtractor(t, llm.Response{Success: true, Content: "I could not find anything."})

	res := ex.ExtractWithLLM(context.Background(), testCard, nil, nil)

	assert.Error(t, res.Err)
	assert.NotNil(t, res.Entities)
	assert.Empty(t, res.Entities)
	assert.Empty(t, res.Facts)
}

func TestExtractWithLLM_FailedCall(t *testing.T) {
	ex, _ := newTestExtractor(t, llm.Response{Success: false, Error: "timeout"})

	res := ex.ExtractWithLLM(context.Background(), testCard, nil, nil)

	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "timeout")
	assert.Equal(t, 0, res.Len())
	assert.False(t, res.Validated)
}

func TestExtractWithLLM_PromptCapsContext(t *testing.T) {
	ex, caller := newTestExtractor(t, llm.Response{Success: true, Content: `{"entities":[],"facts":[]}`})

	var known []model.Entity
	for i := 0; i < 40; i++ {
		known = append(known, model.Entity{Name: fmt.Sprintf("Entity %d", i), EntityType: model.EntityConcept})
	}
	var domains []model.Domain
	for i := 0; i < 60; i++ {
		domains = append(domains, model.Domain{Name: fmt.Sprintf("D%d", i)})
	}

	res := ex.ExtractWithLLM(context.Background(), testCard, known, domains)
	require.NoError(t, res.Err)
	assert.True(t, res.Validated)

	prompt := caller.Requests[0].Prompt
	assert.Contains(t, prompt, "- Entity 29 (concept)")
	assert.NotContains(t, prompt, "- Entity 30 (")
	assert.Contains(t, prompt, "D49")
	assert.NotContains(t, prompt, "D50")
	assert.Equal(t, 30, strings.Count(prompt, "(concept)"))
}

func TestShouldUseLLM(t *testing.T) {
	policy := PolicyFromConfig(config.Default().Extraction)
	long := model.Card{Title: "Investigate flaky checkout", Description: strings.Repeat("details ", 10)}

	tests := []struct {
		name   string
		policy Policy
		card   model.Card
		yield  int
		want   bool
	}{
		{"short title", policy, model.Card{Title: "Fix login"}, 0, false},
		{"ten characters", policy, model.Card{Title: "0123456789"}, 0, false},
		{"long and sparse", policy, long, 2, true},
		{"long but rich", policy, long, 3, false},
		{"disabled", Policy{Enabled: false, MinContentLength: 50, MinPatternYield: 3}, long, 0, false},
		{"exactly at length", policy, model.Card{Title: strings.Repeat("a", 50)}, 0, false},
		{"one over length", policy, model.Card{Title: strings.Repeat("a", 51)}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldUseLLM(tt.policy, tt.card, tt.yield))
		})
	}
}

func TestResponseSchemaResolves(t *testing.T) {
	_, err := ResponseSchema().Resolve(nil)
	assert.NoError(t, err)
}
