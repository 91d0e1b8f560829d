package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestFactValidate(t *testing.T) {
	assert.ErrorIs(t, Fact{}.Validate(), ErrFactObjectMissing)
	assert.ErrorIs(t, Fact{ObjectEntityID: strPtr("e1"), ObjectValue: strPtr("x")}.Validate(), ErrFactObjectAmbiguous)
	assert.NoError(t, Fact{ObjectEntityID: strPtr("e1")}.Validate())
	assert.NoError(t, Fact{ObjectValue: strPtr("")}.Validate())
	assert.ErrorIs(t, Fact{ObjectEntityID: strPtr("")}.Validate(), ErrFactObjectMissing)
}

func TestValidateOffsets(t *testing.T) {
	assert.NoError(t, ValidateOffsets(nil, nil))
	assert.NoError(t, ValidateOffsets(intPtr(0), intPtr(0)))
	assert.NoError(t, ValidateOffsets(intPtr(3), nil))
	assert.ErrorIs(t, ValidateOffsets(intPtr(-1), nil), ErrInvalidOffsets)
	assert.ErrorIs(t, ValidateOffsets(intPtr(5), intPtr(2)), ErrInvalidOffsets)
}

func TestInverse(t *testing.T) {
	inv, ok := Inverse(PredDependsOn)
	assert.True(t, ok)
	assert.Equal(t, "depended_on_by", inv)

	inv, ok = Inverse("blocked_by")
	assert.True(t, ok)
	assert.Equal(t, PredBlocks, inv)

	inv, ok = Inverse(PredRelatesTo)
	assert.True(t, ok)
	assert.Equal(t, PredRelatesTo, inv)

	_, ok = Inverse("likes")
	assert.False(t, ok)
	assert.Len(t, Vocabulary(), 17)
}

func TestNormalizePredicate(t *testing.T) {
	assert.Equal(t, "depends_on", NormalizePredicate("Depends On"))
	assert.Equal(t, "depends_on", NormalizePredicate(" depends-on "))
	assert.Equal(t, "", NormalizePredicate("--"))
}

func TestEntityHelpers(t *testing.T) {
	e := Entity{Name: "PaymentService", Aliases: []string{"PayService"}, Confidence: 0.7}
	assert.True(t, e.HasAlias("payservice"))
	assert.False(t, e.HasAlias("Payments"))
	assert.True(t, e.Inferred())

	c := Card{Title: "héllo", Description: "abc"}
	assert.Equal(t, 8, c.ContentLength())
}
