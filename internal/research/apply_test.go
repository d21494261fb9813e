package research

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepgen/deepgen/internal/model"
	"github.com/deepgen/deepgen/internal/store"
)

func approvedProposal(xref string, rel model.Relationship, candidate string) *model.ParentProposal {
	return &model.ParentProposal{
		JobID:         "job-1",
		SessionID:     "sess-1",
		PersonXref:    xref,
		Relationship:  rel,
		CandidateName: candidate,
		Status:        model.ProposalStatusApproved,
		EvidenceIDs:   []int64{1},
	}
}

func newApplier(st store.Store) *Applier {
	return &Applier{Store: st, SimilarityThreshold: 0.93}
}

func TestApply_LinksExistingPerson(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedSessionPeople(t, st, "sess-1",
		model.Person{Xref: "@I1@", Name: "Elias Thornton"},
		model.Person{Xref: "@I2@", Name: "william  THORNTON", Sex: "M"},
	)
	seedReviewJob(t, st, "job-1", "sess-1")
	seedProposal(t, st, approvedProposal("@I1@", model.RelationshipFather, "William Thornton"))

	result, err := newApplier(st).Apply(ctx, "sess-1", "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.AppliedUpdates)
	assert.Empty(t, result.Skipped)

	child, err := st.GetPersonByXref(ctx, "sess-1", "@I1@")
	require.NoError(t, err)
	assert.Equal(t, "@I2@", child.FatherXref)
	assert.Empty(t, child.MotherXref)

	events, err := st.ListAuditEvents(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "applied", events[0].Action)
	assert.Equal(t, "Applied approved proposal.", events[0].Detail)
	assert.Empty(t, events[0].CreatedPersonXref)

	proposals, err := st.ListProposals(ctx, store.ProposalFilter{SessionID: "sess-1"})
	require.NoError(t, err)
	require.Len(t, proposals, 1)
	assert.Equal(t, model.ProposalStatusApplied, proposals[0].Status)
}

func TestApply_FuzzyNameMatch(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedSessionPeople(t, st, "sess-1",
		model.Person{Xref: "@I1@", Name: "Ruth Adler"},
		model.Person{Xref: "@I2@", Name: "Abraham Adler", Sex: "M"},
	)
	seedReviewJob(t, st, "job-1", "sess-1")
	seedProposal(t, st, approvedProposal("@I1@", model.RelationshipFather, "Abrahan Adler"))

	a := newApplier(st)
	a.SimilarityThreshold = 0.9
	result, err := a.Apply(ctx, "sess-1", "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.AppliedUpdates)

	child, err := st.GetPersonByXref(ctx, "sess-1", "@I1@")
	require.NoError(t, err)
	assert.Equal(t, "@I2@", child.FatherXref)
}

func TestApply_CreatesNewPerson(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedSessionPeople(t, st, "sess-1",
		model.Person{Xref: "@I1@", Name: "Elias Thornton"},
		model.Person{Xref: "@I7@", Name: "Unrelated Person"},
	)
	seedReviewJob(t, st, "job-1", "sess-1")
	seedProposal(t, st, approvedProposal("@I1@", model.RelationshipMother, "Mary Whitfield"))

	result, err := newApplier(st).Apply(ctx, "sess-1", "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.AppliedUpdates)

	child, err := st.GetPersonByXref(ctx, "sess-1", "@I1@")
	require.NoError(t, err)
	assert.Equal(t, "@I8@", child.MotherXref, "new xref continues after the highest @I<n>@")

	mother, err := st.GetPersonByXref(ctx, "sess-1", "@I8@")
	require.NoError(t, err)
	require.NotNil(t, mother)
	assert.Equal(t, "Mary Whitfield", mother.Name)
	assert.Equal(t, "F", mother.Sex)
	assert.False(t, mother.IsLiving)
	assert.True(t, mother.CanUseData)
	assert.True(t, mother.CanLLMResearch)

	events, err := st.ListAuditEvents(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "@I8@", events[0].CreatedPersonXref)
}

func TestApply_SexConflictForcesNewPerson(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedSessionPeople(t, st, "sess-1",
		model.Person{Xref: "@I1@", Name: "Elias Thornton"},
		model.Person{Xref: "@I2@", Name: "Pat Morgan", Sex: "F"},
	)
	seedReviewJob(t, st, "job-1", "sess-1")
	seedProposal(t, st, approvedProposal("@I1@", model.RelationshipFather, "Pat Morgan"))

	result, err := newApplier(st).Apply(ctx, "sess-1", "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.AppliedUpdates)

	child, err := st.GetPersonByXref(ctx, "sess-1", "@I1@")
	require.NoError(t, err)
	assert.Equal(t, "@I3@", child.FatherXref, "recorded-female person must not become the father")
}

func TestApply_SkipReasons(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedSessionPeople(t, st, "sess-1",
		model.Person{Xref: "@I1@", Name: "Elias Thornton", FatherXref: "@I5@"},
		model.Person{Xref: "@I2@", Name: "Ruth Adler", MotherXref: "@I6@"},
	)
	seedReviewJob(t, st, "job-1", "sess-1")

	noName := approvedProposal("@I1@", model.RelationshipMother, "")
	seedProposal(t, st, noName)
	noCitations := approvedProposal("@I2@", model.RelationshipFather, "Abe Adler")
	noCitations.EvidenceIDs = nil
	seedProposal(t, st, noCitations)
	ghostChild := approvedProposal("@I99@", model.RelationshipFather, "Someone")
	seedProposal(t, st, ghostChild)
	fatherSet := approvedProposal("@I1@", model.RelationshipFather, "William")
	seedProposal(t, st, fatherSet)
	motherSet := approvedProposal("@I2@", model.RelationshipMother, "Mary")
	seedProposal(t, st, motherSet)

	result, err := newApplier(st).Apply(ctx, "sess-1", "")
	require.NoError(t, err)
	assert.Zero(t, result.AppliedUpdates)
	require.Len(t, result.Skipped, 5)

	byProposal := make(map[int64]SkippedProposal)
	for _, s := range result.Skipped {
		byProposal[s.ProposalID] = s
	}
	assert.Equal(t, model.SkipCandidateMissing, byProposal[noName.ID].Reason)
	assert.Equal(t, "Candidate name is empty.", byProposal[noName.ID].Detail)
	assert.Equal(t, model.SkipMissingCitations, byProposal[noCitations.ID].Reason)
	assert.Equal(t, "Proposal has no citations.", byProposal[noCitations.ID].Detail)
	assert.Equal(t, model.SkipChildNotFound, byProposal[ghostChild.ID].Reason)
	assert.Equal(t, "Child not found in session.", byProposal[ghostChild.ID].Detail)
	assert.Equal(t, model.SkipFatherAlreadySet, byProposal[fatherSet.ID].Reason)
	assert.Equal(t, "Father is already linked.", byProposal[fatherSet.ID].Detail)
	assert.Equal(t, model.SkipMotherAlreadySet, byProposal[motherSet.ID].Reason)
	assert.Equal(t, "Mother is already linked.", byProposal[motherSet.ID].Detail)

	events, err := st.ListAuditEvents(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, events, 5)
	for _, e := range events {
		assert.Equal(t, "skipped", e.Action)
		assert.NotEmpty(t, e.Detail)
	}
}

func TestApply_JobFilter(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedSessionPeople(t, st, "sess-1",
		model.Person{Xref: "@I1@", Name: "Elias Thornton"},
	)
	seedReviewJob(t, st, "job-1", "sess-1")
	seedReviewJob(t, st, "job-2", "sess-1")

	inScope := approvedProposal("@I1@", model.RelationshipFather, "William")
	seedProposal(t, st, inScope)
	outOfScope := approvedProposal("@I1@", model.RelationshipMother, "Mary")
	outOfScope.JobID = "job-2"
	seedProposal(t, st, outOfScope)

	result, err := newApplier(st).Apply(ctx, "sess-1", "job-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.AppliedUpdates)

	stored, err := st.GetProposal(ctx, outOfScope.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProposalStatusApproved, stored.Status, "other job's proposal stays untouched")
}

func TestApply_OnlyApprovedProposals(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedSessionPeople(t, st, "sess-1", model.Person{Xref: "@I1@", Name: "Elias Thornton"})
	seedReviewJob(t, st, "job-1", "sess-1")

	pending := approvedProposal("@I1@", model.RelationshipFather, "William")
	pending.Status = model.ProposalStatusPendingReview
	seedProposal(t, st, pending)

	result, err := newApplier(st).Apply(ctx, "sess-1", "")
	require.NoError(t, err)
	assert.Zero(t, result.AppliedUpdates)
	assert.Empty(t, result.Skipped)
}

func TestApply_SessionMissing(t *testing.T) {
	st := newTestStore(t)
	_, err := newApplier(st).Apply(context.Background(), "nope", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session not found")
}

func TestNextXref(t *testing.T) {
	people := []model.Person{
		{Xref: "@I3@"}, {Xref: "@I17@"}, {Xref: "@F2@"}, {Xref: "weird"},
	}
	assert.Equal(t, "@I18@", nextXref(people))
	assert.Equal(t, "@I1@", nextXref(nil))
}
