package dedupe

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/cardgraph/internal/config"
	"github.com/agenthands/cardgraph/internal/core/model"
	"github.com/agenthands/cardgraph/internal/llm"
	"github.com/agenthands/cardgraph/internal/store"
)

func ptr[T any](v T) *T { return &v }

func TestResolveDuplicates(t *testing.T) {
	entities := []model.Entity{
		{ID: "e1", Name: "Auth Service", Confidence: 1},
		{ID: "e2", Name: "auth svc", Confidence: 0.7},
		{ID: "e3", Name: "Billing", Confidence: 0.8},
	}
	mockLLM := &llm.MockClient{Response: `{
		"duplicates": [
			{"original_id": "e1", "duplicate_id": "e2", "confidence": 0.95},
			{"original_id": "e2", "duplicate_id": "e1", "confidence": 0.95},
			{"original_id": "e1", "duplicate_id": "missing", "confidence": 0.99},
			{"original_id": "e3", "duplicate_id": "e3", "confidence": 0.99}
		]
	}`}
	d := NewDeduplicator(mockLLM, config.DefaultPrompts(), 0)

	pairs, err := d.ResolveDuplicates(context.Background(), entities)
	require.NoError(t, err)
	require.Len(t, pairs, 1, "user-created, unknown and self pairs are dropped")
	assert.Equal(t, "e1", pairs[0].OriginalID)
	assert.Equal(t, "e2", pairs[0].DuplicateID)

	require.Len(t, mockLLM.Prompts, 1)
	assert.Contains(t, mockLLM.Prompts[0], "- id: e2, name: auth svc, type: , source: inferred")
	assert.Contains(t, mockLLM.Prompts[0], "source: user")
}

func TestResolveDuplicates_Errors(t *testing.T) {
	entities := []model.Entity{{ID: "a"}, {ID: "b"}}

	d := NewDeduplicator(&llm.MockClient{Err: errors.New("boom")}, config.DefaultPrompts(), 0)
	_, err := d.ResolveDuplicates(context.Background(), entities)
	assert.Error(t, err)

	d = NewDeduplicator(&llm.MockClient{Response: "no idea"}, config.DefaultPrompts(), 0)
	_, err = d.ResolveDuplicates(context.Background(), entities)
	assert.Error(t, err)

	mockLLM := &llm.MockClient{}
	d = NewDeduplicator(mockLLM, config.DefaultPrompts(), 0)
	pairs, err := d.ResolveDuplicates(context.Background(), entities[:1])
	require.NoError(t, err)
	assert.Empty(t, pairs)
	assert.Empty(t, mockLLM.Prompts, "a single entity needs no LLM call")
}

func TestResolveContradictions_KeepsNewest(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	facts := []model.Fact{
		{ID: "new", SubjectID: "card", Predicate: model.PredAssignedTo, ObjectEntityID: ptr("maria"), ValidFrom: ptr(t0.Add(time.Hour))},
		{ID: "old", SubjectID: "card", Predicate: model.PredAssignedTo, ObjectEntityID: ptr("john"), ValidFrom: ptr(t0)},
	}
	mockLLM := &llm.MockClient{Response: `{"contradicted_fact_ids": ["old", "new", "old", "other"]}`}
	d := NewDeduplicator(mockLLM, config.DefaultPrompts(), 0)

	ids, err := d.ResolveContradictions(context.Background(), facts, map[string]string{
		"card": "Release checklist", "john": "John", "maria": "Maria",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, ids)
	assert.Contains(t, mockLLM.Prompts[0], "- id: old, fact: Release checklist assigned_to John, since: 2025-01-01T00:00:00Z")
}

func TestSingleValuedGroups(t *testing.T) {
	expired := time.Now()
	facts := []model.Fact{
		{ID: "1", SubjectID: "s", Predicate: model.PredAssignedTo},
		{ID: "2", SubjectID: "s", Predicate: model.PredAssignedTo},
		{ID: "3", SubjectID: "s", Predicate: model.PredDependsOn},
		{ID: "4", SubjectID: "s", Predicate: model.PredDependsOn},
		{ID: "5", SubjectID: "t", Predicate: model.PredOwnedBy},
		{ID: "6", SubjectID: "t", Predicate: model.PredOwnedBy, ValidUntil: &expired},
	}
	groups := singleValuedGroups(facts)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0], 2)
	assert.Equal(t, "1", groups[0][0].ID)
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	domain, err := st.DefaultDomain(ctx, "board-1")
	require.NoError(t, err)
	newEntity := func(name string, confidence float64) model.Entity {
		e, _, err := st.FindOrCreateEntity(ctx, model.Entity{
			DomainID: domain.ID, Name: name, EntityType: model.EntitySystem, Confidence: confidence,
		})
		require.NoError(t, err)
		return e
	}
	authService := newEntity("Auth Service", 1)
	authSvc := newEntity("auth svc", 0.7)
	card := newEntity("Release checklist", 1)
	john := newEntity("John", 0.9)
	maria := newEntity("Maria", 0.9)

	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assign := func(who model.Entity, at time.Time) model.Fact {
		f, _, err := st.FindOrCreateFact(ctx, model.Fact{
			DomainID: domain.ID, SubjectID: card.ID, Predicate: model.PredAssignedTo,
			ObjectEntityID: &who.ID, Confidence: 0.85, ExtractionMethod: model.MethodPattern, ValidFrom: &at,
		})
		require.NoError(t, err)
		return f
	}
	oldFact := assign(john, t0)
	newFact := assign(maria, t0.Add(24*time.Hour))
	_, _, err = st.FindOrCreateFact(ctx, model.Fact{
		DomainID: domain.ID, SubjectID: authSvc.ID, Predicate: model.PredDependsOn,
		ObjectEntityID: &john.ID, Confidence: 0.8, ExtractionMethod: model.MethodLLM,
	})
	require.NoError(t, err)

	mockLLM := &llm.MockClient{ResponseQueue: []string{
		fmt.Sprintf(`{"duplicates": [
			{"original_id": %q, "duplicate_id": %q, "confidence": 0.95},
			{"original_id": %q, "duplicate_id": %q, "confidence": 0.6}
		]}`, authService.ID, authSvc.ID, john.ID, maria.ID),
		fmt.Sprintf(`{"contradicted_fact_ids": [%q]}`, oldFact.ID),
	}}
	d := NewDeduplicator(mockLLM, config.DefaultPrompts(), 0.9)

	report, err := d.Reconcile(ctx, st, "board-1")
	require.NoError(t, err)
	assert.Empty(t, report.Errors)
	require.Len(t, report.Merged, 1, "low confidence pairs are not merged")
	assert.Equal(t, authSvc.ID, report.Merged[0].DuplicateID)
	assert.Equal(t, []string{oldFact.ID}, report.Expired)

	_, err = st.GetEntity(ctx, authSvc.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
	merged, err := st.GetEntity(ctx, authService.ID)
	require.NoError(t, err)
	assert.True(t, merged.HasAlias("auth svc"))

	moved, err := st.ListEntityFacts(ctx, authService.ID)
	require.NoError(t, err)
	assert.Len(t, moved, 1)

	expired, err := st.GetFact(ctx, oldFact.ID)
	require.NoError(t, err)
	assert.True(t, expired.Historical())
	current, err := st.GetFact(ctx, newFact.ID)
	require.NoError(t, err)
	assert.False(t, current.Historical())
}

func TestReconcile_LLMFailureIsReported(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	domain, err := st.DefaultDomain(ctx, "board-1")
	require.NoError(t, err)
	for _, name := range []string{"alpha", "beta"} {
		_, _, err := st.FindOrCreateEntity(ctx, model.Entity{DomainID: domain.ID, Name: name, Confidence: 0.7})
		require.NoError(t, err)
	}

	d := NewDeduplicator(&llm.MockClient{Err: errors.New("rate limited")}, config.DefaultPrompts(), 0.9)
	report, err := d.Reconcile(ctx, st, "board-1")
	require.NoError(t, err)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "rate limited")
	assert.Empty(t, report.Merged)
}
