package infer

import (
	"testing"

	"github.com/agenthands/cardgraph/internal/core/model"
	"github.com/stretchr/testify/assert"
)

func TestEntityType(t *testing.T) {
	cases := map[string]string{
		"@john":                 model.EntityPerson,
		"Auth Service":          model.EntitySystem,
		"PaymentController":     model.EntitySystem,
		"user_db":               model.EntitySystem,
		"v2.1.0":                model.EntityArtifact,
		"https://example.com/x": model.EntityArtifact,
		"README.md":             model.EntityArtifact,
		"#42":                   model.EntityArtifact,
		"PROJ-123":              model.EntityArtifact,
		"Design Doc":            model.EntityArtifact,
		"Q3 Release":            model.EntityEvent,
		"Platform Team":         model.EntityOrganization,
		"Berlin Office":         model.EntityLocation,
		"Jane Doe":              model.EntityPerson,
		"idempotency":           model.EntityConcept,
		"":                      model.EntityConcept,
	}
	for name, want := range cases {
		assert.Equal(t, want, EntityType(name), name)
	}
}

func TestResolve(t *testing.T) {
	assert.Equal(t, model.EntityPerson, Resolve("Auth Service", "Person"))
	assert.Equal(t, model.EntitySystem, Resolve("Auth Service", "widget"))
	assert.Equal(t, model.EntitySystem, Resolve("Auth Service", ""))
}
