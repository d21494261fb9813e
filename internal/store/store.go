package store

import (
	"context"

	"github.com/deepgen/deepgen/internal/model"
)

// ProposalFilter specifies criteria for listing proposals.
type ProposalFilter struct {
	JobID     string               `json:"job_id,omitempty"`
	SessionID string               `json:"session_id,omitempty"`
	Status    model.ProposalStatus `json:"status,omitempty"`
	Limit     int                  `json:"limit,omitempty"`
	Offset    int                  `json:"offset,omitempty"`
}

// Store defines the persistence interface for the research pipeline.
// Insert methods assign the generated id back onto the passed entity.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, session *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)

	// People
	InsertPerson(ctx context.Context, person *model.Person) error
	InsertPeople(ctx context.Context, people []model.Person) error
	ListPeople(ctx context.Context, sessionID string) ([]model.Person, error)
	GetPersonByXref(ctx context.Context, sessionID, xref string) (*model.Person, error)
	UpdatePersonParents(ctx context.Context, sessionID, xref, fatherXref, motherXref string) error

	// Jobs
	CreateJob(ctx context.Context, job *model.ResearchJob) error
	GetJob(ctx context.Context, id string) (*model.ResearchJob, error)
	UpdateJob(ctx context.Context, job *model.ResearchJob) error
	ListJobs(ctx context.Context, sessionID string) ([]model.ResearchJob, error)

	// Evidence
	InsertEvidence(ctx context.Context, item *model.EvidenceItem) error
	ListEvidence(ctx context.Context, jobID, personXref string) ([]model.EvidenceItem, error)

	// Claims
	InsertClaim(ctx context.Context, claim *model.CandidateClaim) error
	ListClaims(ctx context.Context, jobID, personXref string) ([]model.CandidateClaim, error)

	// Proposals
	InsertProposal(ctx context.Context, proposal *model.ParentProposal) error
	GetProposal(ctx context.Context, id int64) (*model.ParentProposal, error)
	UpdateProposal(ctx context.Context, proposal *model.ParentProposal) error
	ListProposals(ctx context.Context, filter ProposalFilter) ([]model.ParentProposal, error)
	InsertDecision(ctx context.Context, decision *model.ProposalDecision) error

	// Questions
	InsertQuestion(ctx context.Context, question *model.ResearchQuestion) error
	FindQuestion(ctx context.Context, jobID, personXref string, relationship model.Relationship, text string) (*model.ResearchQuestion, error)
	GetQuestion(ctx context.Context, id int64) (*model.ResearchQuestion, error)
	UpdateQuestion(ctx context.Context, question *model.ResearchQuestion) error
	ListJobQuestions(ctx context.Context, jobID string) ([]model.ResearchQuestion, error)
	ListAnsweredQuestions(ctx context.Context, sessionID, personXref string, limit int) ([]model.ResearchQuestion, error)

	// Apply audit
	InsertAuditEvent(ctx context.Context, event *model.ApplyAuditEvent) error
	ListAuditEvents(ctx context.Context, sessionID string) ([]model.ApplyAuditEvent, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
