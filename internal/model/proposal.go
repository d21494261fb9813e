package model

import "time"

// ProposalStatus represents the review state of a parent proposal.
type ProposalStatus string

const (
	ProposalStatusPendingReview ProposalStatus = "pending_review"
	ProposalStatusApproved      ProposalStatus = "approved"
	ProposalStatusRejected      ProposalStatus = "rejected"
	ProposalStatusApplied       ProposalStatus = "applied"
)

// ScoreComponents is the synthesis score breakdown persisted with each
// proposal. FinalScore is the clamped weighted composite; the rounded
// copy also lands on the proposal's Confidence.
type ScoreComponents struct {
	AvgConfidence        float64 `json:"avg_confidence"`
	SupportCount         int     `json:"support_count"`
	SourceDiversity      float64 `json:"source_diversity"`
	EvidenceSpecificity  float64 `json:"evidence_specificity"`
	ContradictionPenalty float64 `json:"contradiction_penalty"`
	FinalScore           float64 `json:"final_score"`
}

// ParentProposal is one review-ready candidate parent per job, person
// and relationship. CandidateName == "" marks an insufficient-evidence
// proposal; EvidenceIDs are the citations backing the candidate.
type ParentProposal struct {
	ID                 int64           `json:"id"`
	JobID              string          `json:"job_id"`
	SessionID          string          `json:"session_id"`
	PersonXref         string          `json:"person_xref"`
	Relationship       Relationship    `json:"relationship"`
	CandidateName      string          `json:"candidate_name,omitempty"`
	Confidence         float64         `json:"confidence"`
	Status             ProposalStatus  `json:"status"`
	Notes              string          `json:"notes,omitempty"`
	EvidenceIDs        []int64         `json:"evidence_ids"`
	ContradictionFlags []string        `json:"contradiction_flags"`
	ScoreComponents    ScoreComponents `json:"score_components"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Approvable reports whether the proposal can transition to approved:
// it needs a candidate name and at least one citation.
func (p *ParentProposal) Approvable() bool {
	return p.CandidateName != "" && len(p.EvidenceIDs) > 0
}

// ProposalDecision is one audit row for a review action. Payload holds
// the JSON body that produced the action.
type ProposalDecision struct {
	ID         int64     `json:"id"`
	ProposalID int64     `json:"proposal_id"`
	Action     string    `json:"action"` // approve, reject, edit
	DecidedBy  string    `json:"decided_by"`
	Notes      string    `json:"notes,omitempty"`
	Payload    string    `json:"payload,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ApplyAuditEvent records one apply-stage outcome for a proposal:
// either a parent link committed to the tree or a skip with a detail.
type ApplyAuditEvent struct {
	ID                int64        `json:"id"`
	JobID             string       `json:"job_id,omitempty"`
	SessionID         string       `json:"session_id"`
	ProposalID        int64        `json:"proposal_id,omitempty"`
	ChildXref         string       `json:"child_xref"`
	Relationship      Relationship `json:"relationship"`
	Action            string       `json:"action"` // applied, skipped
	Detail            string       `json:"detail,omitempty"`
	CreatedPersonXref string       `json:"created_person_xref,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
}

// Apply skip reasons.
const (
	SkipCandidateMissing = "candidate_missing"
	SkipMissingCitations = "missing_citations"
	SkipChildNotFound    = "child_not_found"
	SkipFatherAlreadySet = "father_already_set"
	SkipMotherAlreadySet = "mother_already_set"
)
