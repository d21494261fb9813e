package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepgen/deepgen/internal/model"
)

func TestVerify_NoClaims(t *testing.T) {
	v := Verify(testPerson(), nil)
	assert.Empty(t, v.Global)
	assert.Empty(t, v.FlagsFor(model.RelationshipFather))
}

func TestVerify_SelfParent(t *testing.T) {
	claims := []model.CandidateClaim{
		{Relationship: model.RelationshipFather, CandidateName: "elias  THORNTON", Confidence: 0.8},
	}
	v := Verify(testPerson(), claims)
	assert.Equal(t, []string{model.FlagSelfParentConflict}, v.FlagsFor(model.RelationshipFather))
	assert.Empty(t, v.FlagsFor(model.RelationshipMother))
}

func TestVerify_Chronology(t *testing.T) {
	person := &model.Person{Xref: "@I1@", Name: "Ruth Adler", BirthYear: 1930}

	claims := []model.CandidateClaim{
		{Relationship: model.RelationshipFather, CandidateName: "Abe Adler", Confidence: 0.8,
			Rationale: "Listed as head of household, born 1925"},
	}
	v := Verify(person, claims)
	assert.Contains(t, v.FlagsFor(model.RelationshipFather), model.FlagChronologyConflict)

	claims[0].Rationale = "Listed as head of household, born 1900"
	v = Verify(person, claims)
	assert.Empty(t, v.FlagsFor(model.RelationshipFather))
}

func TestVerify_ChronologyIgnoredWithoutBirthYear(t *testing.T) {
	person := &model.Person{Xref: "@I1@", Name: "Ruth Adler"}
	claims := []model.CandidateClaim{
		{Relationship: model.RelationshipFather, CandidateName: "Abe Adler", Rationale: "born 2050"},
	}
	v := Verify(person, claims)
	assert.Empty(t, v.FlagsFor(model.RelationshipFather))
}

func TestVerify_MultipleHighConfidence(t *testing.T) {
	claims := []model.CandidateClaim{
		{Relationship: model.RelationshipFather, CandidateName: "William Thornton", Confidence: 0.7},
		{Relationship: model.RelationshipFather, CandidateName: "Wilhelm Thornton", Confidence: 0.66},
		{Relationship: model.RelationshipMother, CandidateName: "Mary", Confidence: 0.9},
	}
	v := Verify(testPerson(), claims)
	assert.Equal(t, []string{model.FlagMultipleHighConfidence}, v.FlagsFor(model.RelationshipFather))
	assert.Empty(t, v.FlagsFor(model.RelationshipMother))
}

func TestVerify_OneHighOneLowIsNotAConflict(t *testing.T) {
	claims := []model.CandidateClaim{
		{Relationship: model.RelationshipFather, CandidateName: "William Thornton", Confidence: 0.7},
		{Relationship: model.RelationshipFather, CandidateName: "Wilhelm Thornton", Confidence: 0.5},
	}
	v := Verify(testPerson(), claims)
	assert.Empty(t, v.FlagsFor(model.RelationshipFather))
}

func TestVerify_SameParentNameForBoth(t *testing.T) {
	claims := []model.CandidateClaim{
		{Relationship: model.RelationshipFather, CandidateName: "Pat Morgan", Confidence: 0.8},
		{Relationship: model.RelationshipMother, CandidateName: "pat  morgan", Confidence: 0.7},
	}
	v := Verify(testPerson(), claims)
	require.Equal(t, []string{model.FlagSameParentNameForBoth}, v.Global)

	// Global flags surface on both slots.
	assert.Contains(t, v.FlagsFor(model.RelationshipFather), model.FlagSameParentNameForBoth)
	assert.Contains(t, v.FlagsFor(model.RelationshipMother), model.FlagSameParentNameForBoth)
}

func TestRationaleYear(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"last year wins", "married 1890, died 1950", 1950},
		{"no year", "no dates here", 0},
		{"out of range low", "anno 1200", 0},
		{"out of range high", "year 2150", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rationaleYear(tt.in))
		})
	}
}
