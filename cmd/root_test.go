package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepgen/deepgen/internal/model"
)

func TestCommandWiring(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"people", "research", "proposals", "questions", "apply"} {
		assert.True(t, names[want], "missing command %q", want)
	}
}

func TestResolveBirthYear(t *testing.T) {
	assert.Equal(t, 1902, resolveBirthYear(1902, "ABT 1900"))
	assert.Equal(t, 1900, resolveBirthYear(0, "ABT 1900"))
	assert.Equal(t, 0, resolveBirthYear(0, "unknown"))
	assert.Equal(t, 0, resolveBirthYear(0, ""))
}

func TestFormatPeopleList(t *testing.T) {
	var buf bytes.Buffer
	formatPeopleList(&buf, []model.Person{
		{Xref: "@I1@", Name: "Elias Thornton", BirthYear: 1902},
		{Xref: "@I2@", Name: "Ruth Adler", FatherXref: "@I1@", MotherXref: "@I3@"},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "XREF")
	assert.Contains(t, lines[1], "Elias Thornton")
	assert.Contains(t, lines[1], "true")
	assert.Contains(t, lines[2], "false", "person with both parents is not eligible")
}

func TestFormatProposalsList(t *testing.T) {
	var buf bytes.Buffer
	formatProposalsList(&buf, []model.ParentProposal{
		{ID: 1, PersonXref: "@I1@", Relationship: model.RelationshipFather,
			CandidateName: "William", Confidence: 0.738, Status: model.ProposalStatusPendingReview},
		{ID: 2, PersonXref: "@I1@", Relationship: model.RelationshipMother,
			Status: model.ProposalStatusPendingReview,
			ContradictionFlags: []string{model.FlagChronologyConflict}},
	})

	out := buf.String()
	assert.Contains(t, out, "William")
	assert.Contains(t, out, "0.738")
	assert.Contains(t, out, "chronology_conflict")
	assert.Regexp(t, `\s-\s`, out, "empty candidate renders as a dash")
}

func TestFormatQuestionsList_TruncatesLongText(t *testing.T) {
	var buf bytes.Buffer
	formatQuestionsList(&buf, []model.ResearchQuestion{
		{ID: 1, PersonXref: "@I1@", Relationship: model.RelationshipFather,
			Status: model.QuestionStatusPending, Question: strings.Repeat("x", 120)},
	})
	assert.Contains(t, buf.String(), "...")
}
