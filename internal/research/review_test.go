package research

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepgen/deepgen/internal/model"
	"github.com/deepgen/deepgen/internal/store"
)

func seedReviewJob(t *testing.T, st store.Store, jobID, sessionID string) {
	t.Helper()
	require.NoError(t, st.CreateJob(context.Background(), &model.ResearchJob{
		ID:        jobID,
		SessionID: sessionID,
		Status:    model.JobStatusCompleted,
		Stage:     model.JobStageCompleted,
		Stats:     model.NewStageStats(),
	}))
}

func seedProposal(t *testing.T, st store.Store, p *model.ParentProposal) *model.ParentProposal {
	t.Helper()
	if p.Status == "" {
		p.Status = model.ProposalStatusPendingReview
	}
	require.NoError(t, st.InsertProposal(context.Background(), p))
	return p
}

func TestDecideProposal_ApproveRequiresCitations(t *testing.T) {
	st := newTestStore(t)
	seedSessionPeople(t, st, "sess-1")
	seedReviewJob(t, st, "job-1", "sess-1")
	p := seedProposal(t, st, &model.ParentProposal{
		JobID: "job-1", SessionID: "sess-1", PersonXref: "@I1@",
		Relationship: model.RelationshipFather, CandidateName: "William",
	})

	r := &Reviewer{Store: st}
	_, err := r.DecideProposal(context.Background(), DecisionRequest{ProposalID: p.ID, Action: ActionApprove})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cannot approve proposal without citations")
}

func TestDecideProposal_ApproveRequiresCandidateName(t *testing.T) {
	st := newTestStore(t)
	seedSessionPeople(t, st, "sess-1")
	seedReviewJob(t, st, "job-1", "sess-1")
	p := seedProposal(t, st, &model.ParentProposal{
		JobID: "job-1", SessionID: "sess-1", PersonXref: "@I1@",
		Relationship: model.RelationshipFather, EvidenceIDs: []int64{1},
	})

	r := &Reviewer{Store: st}
	_, err := r.DecideProposal(context.Background(), DecisionRequest{ProposalID: p.ID, Action: ActionApprove})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cannot approve proposal without candidate_name")
}

func TestDecideProposal_Approve(t *testing.T) {
	st := newTestStore(t)
	seedSessionPeople(t, st, "sess-1")
	seedReviewJob(t, st, "job-1", "sess-1")
	p := seedProposal(t, st, &model.ParentProposal{
		JobID: "job-1", SessionID: "sess-1", PersonXref: "@I1@",
		Relationship: model.RelationshipFather, CandidateName: "William", EvidenceIDs: []int64{1},
	})

	r := &Reviewer{Store: st}
	got, err := r.DecideProposal(context.Background(), DecisionRequest{ProposalID: p.ID, Action: ActionApprove})
	require.NoError(t, err)
	assert.Equal(t, model.ProposalStatusApproved, got.Status)

	stored, err := st.GetProposal(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProposalStatusApproved, stored.Status)
}

func TestDecideProposal_Reject(t *testing.T) {
	st := newTestStore(t)
	seedSessionPeople(t, st, "sess-1")
	seedReviewJob(t, st, "job-1", "sess-1")
	p := seedProposal(t, st, &model.ParentProposal{
		JobID: "job-1", SessionID: "sess-1", PersonXref: "@I1@",
		Relationship: model.RelationshipMother, CandidateName: "Mary",
	})

	r := &Reviewer{Store: st}
	got, err := r.DecideProposal(context.Background(), DecisionRequest{
		ProposalID: p.ID, Action: ActionReject, Notes: "wrong generation",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ProposalStatusRejected, got.Status)
}

func TestDecideProposal_Edit(t *testing.T) {
	st := newTestStore(t)
	seedSessionPeople(t, st, "sess-1")
	seedReviewJob(t, st, "job-1", "sess-1")
	p := seedProposal(t, st, &model.ParentProposal{
		JobID: "job-1", SessionID: "sess-1", PersonXref: "@I1@",
		Relationship: model.RelationshipFather, CandidateName: "William",
		Confidence: 0.6, Status: model.ProposalStatusRejected,
	})

	name := "  William H. Thornton  "
	confidence := 1.7
	r := &Reviewer{Store: st}
	got, err := r.DecideProposal(context.Background(), DecisionRequest{
		ProposalID:    p.ID,
		Action:        ActionEdit,
		CandidateName: &name,
		Confidence:    &confidence,
		Notes:         "corrected middle initial",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ProposalStatusPendingReview, got.Status)
	assert.Equal(t, "William H. Thornton", got.CandidateName)
	assert.Equal(t, 1.0, got.Confidence, "confidence is clamped to [0, 1]")
	assert.Equal(t, "corrected middle initial", got.Notes)
}

func TestDecideProposal_EditCanClearName(t *testing.T) {
	st := newTestStore(t)
	seedSessionPeople(t, st, "sess-1")
	seedReviewJob(t, st, "job-1", "sess-1")
	p := seedProposal(t, st, &model.ParentProposal{
		JobID: "job-1", SessionID: "sess-1", PersonXref: "@I1@",
		Relationship: model.RelationshipFather, CandidateName: "William",
	})

	empty := "   "
	r := &Reviewer{Store: st}
	got, err := r.DecideProposal(context.Background(), DecisionRequest{
		ProposalID: p.ID, Action: ActionEdit, CandidateName: &empty,
	})
	require.NoError(t, err)
	assert.Empty(t, got.CandidateName)
}

func TestDecideProposal_UnsupportedAction(t *testing.T) {
	st := newTestStore(t)
	seedSessionPeople(t, st, "sess-1")
	seedReviewJob(t, st, "job-1", "sess-1")
	p := seedProposal(t, st, &model.ParentProposal{
		JobID: "job-1", SessionID: "sess-1", PersonXref: "@I1@",
		Relationship: model.RelationshipFather,
	})

	r := &Reviewer{Store: st}
	_, err := r.DecideProposal(context.Background(), DecisionRequest{ProposalID: p.ID, Action: "promote"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unsupported action: promote")
}

func TestAnswerQuestion_RequiresAnswer(t *testing.T) {
	st := newTestStore(t)
	seedSessionPeople(t, st, "sess-1")
	seedReviewJob(t, st, "job-1", "sess-1")
	q := &model.ResearchQuestion{
		JobID: "job-1", SessionID: "sess-1", PersonXref: "@I1@",
		Relationship: model.RelationshipFather, Question: "Who was the father?",
	}
	require.NoError(t, st.InsertQuestion(context.Background(), q))

	r := &Reviewer{Store: st}
	_, err := r.AnswerQuestion(context.Background(), q.ID, model.QuestionStatusAnswered, "   ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Answer is required when status is 'answered'")
}

func TestAnswerQuestion_AnswerAndSkip(t *testing.T) {
	st := newTestStore(t)
	seedSessionPeople(t, st, "sess-1")
	seedReviewJob(t, st, "job-1", "sess-1")

	answered := &model.ResearchQuestion{
		JobID: "job-1", SessionID: "sess-1", PersonXref: "@I1@",
		Relationship: model.RelationshipFather, Question: "Who was the father?",
	}
	require.NoError(t, st.InsertQuestion(context.Background(), answered))
	skipped := &model.ResearchQuestion{
		JobID: "job-1", SessionID: "sess-1", PersonXref: "@I1@",
		Relationship: model.RelationshipMother, Question: "Who was the mother?",
	}
	require.NoError(t, st.InsertQuestion(context.Background(), skipped))

	r := &Reviewer{Store: st}
	got, err := r.AnswerQuestion(context.Background(), answered.ID, model.QuestionStatusAnswered, " William ")
	require.NoError(t, err)
	assert.Equal(t, model.QuestionStatusAnswered, got.Status)
	assert.Equal(t, "William", got.Answer)

	got, err = r.AnswerQuestion(context.Background(), skipped.ID, model.QuestionStatusSkipped, "ignored")
	require.NoError(t, err)
	assert.Equal(t, model.QuestionStatusSkipped, got.Status)
	assert.Empty(t, got.Answer)
}

func TestAnswerQuestion_UnsupportedStatus(t *testing.T) {
	st := newTestStore(t)
	seedSessionPeople(t, st, "sess-1")
	seedReviewJob(t, st, "job-1", "sess-1")
	q := &model.ResearchQuestion{
		JobID: "job-1", SessionID: "sess-1", PersonXref: "@I1@",
		Relationship: model.RelationshipFather, Question: "Who was the father?",
	}
	require.NoError(t, st.InsertQuestion(context.Background(), q))

	r := &Reviewer{Store: st}
	_, err := r.AnswerQuestion(context.Background(), q.ID, model.QuestionStatusPending, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unsupported status: pending")
}
