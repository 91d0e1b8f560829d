package pattern

import (
	"testing"

	"github.com/agenthands/cardgraph/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findEntity(res Result, name string) *model.ExtractedEntity {
	for i := range res.Entities {
		if res.Entities[i].Name == name {
			return &res.Entities[i]
		}
	}
	return nil
}

func findFacts(res Result, predicate string) []model.ExtractedFact {
	var out []model.ExtractedFact
	for _, f := range res.Facts {
		if f.Predicate == predicate {
			out = append(out, f)
		}
	}
	return out
}

func TestExtract_CardTitleScenario(t *testing.T) {
	ex := NewExtractor()
	res := ex.Extract("Fix auth-service bug, depends on v2.1.0, assigned to @john", model.FieldTitle)

	svc := findEntity(res, "Auth Service")
	require.NotNil(t, svc)
	assert.Equal(t, model.EntitySystem, svc.EntityType)
	assert.Equal(t, model.FieldTitle, svc.SourceField)
	assert.Equal(t, 4, *svc.OffsetStart)
	assert.Equal(t, 16, *svc.OffsetEnd)

	john := findEntity(res, "John")
	require.NotNil(t, john)
	assert.Equal(t, model.EntityPerson, john.EntityType)
	assert.Len(t, res.Entities, 2)

	versions := findFacts(res, model.PredHasVersion)
	require.Len(t, versions, 1)
	assert.Equal(t, "2.1.0", versions[0].Object)
	assert.False(t, versions[0].ObjectIsEntity)
	assert.Equal(t, ObjectVersion, versions[0].ObjectType)

	deps := findFacts(res, model.PredDependsOn)
	require.Len(t, deps, 1)
	assert.True(t, deps[0].ObjectIsEntity)
	assert.Equal(t, "v2.1.0", deps[0].Object)

	assigned := findFacts(res, model.PredAssignedTo)
	require.Len(t, assigned, 1)
	assert.Equal(t, "John", assigned[0].Object)
	assert.True(t, assigned[0].ObjectIsEntity)
	assert.Empty(t, assigned[0].Subject)
	assert.Equal(t, model.MethodPattern, assigned[0].Method)
}

func TestExtract_EmptyText(t *testing.T) {
	res := NewExtractor().Extract("   ", model.FieldDescription)
	assert.NotNil(t, res.Entities)
	assert.NotNil(t, res.Facts)
	assert.Equal(t, 0, res.Len())
}

func TestExtract_DeduplicatesEntitiesIgnoringCase(t *testing.T) {
	res := NewExtractor().Extract("ping @alice and @Alice again", model.FieldDescription)
	require.Len(t, res.Entities, 1)
	assert.Equal(t, "Alice", res.Entities[0].Name)
}

func TestExtract_EmailIsNotAMention(t *testing.T) {
	res := NewExtractor().Extract("mail bob@example.com for access", model.FieldDescription)
	assert.Nil(t, findEntity(res, "Example.com"))
	assert.Empty(t, res.Entities)
}

func TestExtract_URLsAndIssues(t *testing.T) {
	res := NewExtractor().Extract("See https://example.com/docs/page. Relates to #42 and PROJ-7", model.FieldDescription)

	refs := findFacts(res, model.PredReferences)
	require.Len(t, refs, 3)
	assert.Equal(t, "https://example.com/docs/page", refs[0].Object)
	assert.Equal(t, ObjectURL, refs[0].ObjectType)
	assert.Equal(t, "#42", refs[1].Object)
	assert.Equal(t, ObjectIssue, refs[1].ObjectType)
	assert.Equal(t, "PROJ-7", refs[2].Object)
}

func TestExtract_ComponentNames(t *testing.T) {
	res := NewExtractor().Extract("PaymentService calls NotificationWorker on retry", model.FieldDescription)
	assert.NotNil(t, findEntity(res, "PaymentService"))
	assert.NotNil(t, findEntity(res, "NotificationWorker"))
}

func TestExtract_DueDates(t *testing.T) {
	cases := map[string]string{
		"Deadline: 2024-03-15":       "2024-03-15",
		"due by March 15th, 2025":    "2025-03-15",
		"due on 3/7/2025 please":     "2025-03-07",
		"due Sept. 5, 2024 at latest": "2024-09-05",
		"due March 15":               "March 15",
	}
	for text, want := range cases {
		res := NewExtractor().Extract(text, model.FieldDescription)
		due := findFacts(res, model.PredDueOn)
		require.Len(t, due, 1, text)
		assert.Equal(t, want, due[0].Object, text)
		assert.Equal(t, ObjectDate, due[0].ObjectType)
	}
}

func TestExtract_BlocksAndOwnedBy(t *testing.T) {
	res := NewExtractor().Extract("This blocks #12. Owned by @platform-team", model.FieldDescription)

	blocks := findFacts(res, model.PredBlocks)
	require.Len(t, blocks, 1)
	assert.Equal(t, "#12", blocks[0].Object)
	assert.True(t, blocks[0].ObjectIsEntity)

	owned := findFacts(res, model.PredOwnedBy)
	require.Len(t, owned, 1)
	assert.Equal(t, "Platform Team", owned[0].Object)
}

func TestNormalizers(t *testing.T) {
	assert.Equal(t, "John Doe", NormalizePerson("@john.doe"))
	assert.Equal(t, "Payment Gateway", NormalizeSystem("payment_gateway"))
	assert.Equal(t, "Auth Service", NormalizeSystem("AUTH-service"))
	assert.Equal(t, "1.2", NormalizeVersion("v1.2"))
	assert.Equal(t, "1.2", NormalizeVersion("1.2"))
	assert.Equal(t, "v2", NormalizeReference("@v2."))
	assert.Equal(t, "not a date", NormalizeDate("not a date"))
}

func TestResultMerge(t *testing.T) {
	a := Result{Entities: []model.ExtractedEntity{{Name: "A"}}}
	b := Result{Facts: []model.ExtractedFact{{Predicate: "uses"}}}
	merged := a.Merge(b)
	assert.Equal(t, 2, merged.Len())
}
