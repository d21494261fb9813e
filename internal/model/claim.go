package model

import "time"

// Relationship identifies which parent slot a claim or proposal targets.
type Relationship string

const (
	RelationshipFather Relationship = "father"
	RelationshipMother Relationship = "mother"

	// RelationshipGeneral is used only on research questions that are
	// not tied to a single parent slot.
	RelationshipGeneral Relationship = "general"
)

// Relationships lists the parent slots in canonical order.
var Relationships = []Relationship{RelationshipFather, RelationshipMother}

// CandidateClaim is one candidate-parent assertion extracted from evidence.
// CandidateName == "" means the model found no candidate for the slot.
// EvidenceIDs reference EvidenceItem rows for the same job and person;
// ids the model invented are filtered out before the claim is stored.
type CandidateClaim struct {
	ID                 int64        `json:"id"`
	JobID              string       `json:"job_id"`
	PersonXref         string       `json:"person_xref"`
	Relationship       Relationship `json:"relationship"`
	CandidateName      string       `json:"candidate_name,omitempty"`
	Confidence         float64      `json:"confidence"`
	Rationale          string       `json:"rationale,omitempty"`
	EvidenceIDs        []int64      `json:"evidence_ids"`
	ContradictionFlags []string     `json:"contradiction_flags"`
	ParseValid         bool         `json:"parse_valid"`
	RawOutput          string       `json:"raw_output,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
}

// Contradiction rule names attached to claims during verification.
const (
	FlagSelfParentConflict     = "self_parent_conflict"
	FlagChronologyConflict     = "chronology_conflict"
	FlagMultipleHighConfidence = "multiple_high_confidence_candidates"
	FlagSameParentNameForBoth  = "same_parent_name_for_both_relationships"
)
