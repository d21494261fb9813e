package research

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/deepgen/deepgen/internal/model"
	"github.com/deepgen/deepgen/internal/store"
)

// Review actions.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionEdit    = "edit"
)

// DecisionRequest is one review action on a proposal. CandidateName and
// Confidence are pointers so an edit can distinguish "not provided"
// from "clear the field".
type DecisionRequest struct {
	ProposalID    int64    `json:"proposal_id"`
	Action        string   `json:"action"`
	CandidateName *string  `json:"candidate_name,omitempty"`
	Confidence    *float64 `json:"confidence,omitempty"`
	Notes         string   `json:"notes,omitempty"`
	DecidedBy     string   `json:"decided_by,omitempty"`
}

// Reviewer handles the human review surface: proposal decisions and
// question answers.
type Reviewer struct {
	Store store.Store
}

// DecideProposal applies one review action and records the decision.
// Approval requires a candidate name and at least one citation. An edit
// returns the proposal to pending review.
func (r *Reviewer) DecideProposal(ctx context.Context, req DecisionRequest) (*model.ParentProposal, error) {
	proposal, err := r.Store.GetProposal(ctx, req.ProposalID)
	if err != nil {
		return nil, err
	}

	switch req.Action {
	case ActionApprove:
		if len(proposal.EvidenceIDs) == 0 {
			return nil, eris.New("Cannot approve proposal without citations")
		}
		if proposal.CandidateName == "" {
			return nil, eris.New("Cannot approve proposal without candidate_name")
		}
		proposal.Status = model.ProposalStatusApproved

	case ActionReject:
		proposal.Status = model.ProposalStatusRejected

	case ActionEdit:
		if req.CandidateName != nil {
			proposal.CandidateName = strings.TrimSpace(*req.CandidateName)
		}
		if req.Confidence != nil {
			proposal.Confidence = clamp01(*req.Confidence)
		}
		if req.Notes != "" {
			proposal.Notes = req.Notes
		}
		proposal.Status = model.ProposalStatusPendingReview

	default:
		return nil, eris.Errorf("Unsupported action: %s", req.Action)
	}

	if err := r.Store.UpdateProposal(ctx, proposal); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "research: encode decision payload")
	}
	decidedBy := req.DecidedBy
	if decidedBy == "" {
		decidedBy = "user"
	}
	decision := &model.ProposalDecision{
		ProposalID: proposal.ID,
		Action:     req.Action,
		DecidedBy:  decidedBy,
		Notes:      req.Notes,
		Payload:    string(payload),
	}
	if err := r.Store.InsertDecision(ctx, decision); err != nil {
		return nil, err
	}

	zap.L().Info("proposal decided",
		zap.Int64("proposal_id", proposal.ID),
		zap.String("action", req.Action),
		zap.String("status", string(proposal.Status)),
	)
	return proposal, nil
}

// AnswerQuestion records an answer or skips a question. Answering
// requires a non-empty answer; skipping discards any provided text.
func (r *Reviewer) AnswerQuestion(ctx context.Context, questionID int64, status model.QuestionStatus, answer string) (*model.ResearchQuestion, error) {
	question, err := r.Store.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}

	switch status {
	case model.QuestionStatusAnswered:
		answer = strings.TrimSpace(answer)
		if answer == "" {
			return nil, eris.New("Answer is required when status is 'answered'")
		}
		question.Status = model.QuestionStatusAnswered
		question.Answer = answer

	case model.QuestionStatusSkipped:
		question.Status = model.QuestionStatusSkipped
		question.Answer = ""

	default:
		return nil, eris.Errorf("Unsupported status: %s", status)
	}

	if err := r.Store.UpdateQuestion(ctx, question); err != nil {
		return nil, err
	}
	return question, nil
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
