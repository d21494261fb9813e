package research

import (
	"context"
	"sort"
	"time"

	"github.com/deepgen/deepgen/internal/model"
	"github.com/deepgen/deepgen/internal/store"
)

// StatusReport is the job snapshot rendered by the status command.
type StatusReport struct {
	JobID            string           `json:"job_id"`
	SessionID        string           `json:"session_id"`
	Status           model.JobStatus  `json:"status"`
	Stage            model.JobStage   `json:"stage"`
	Progress         float64          `json:"progress"`
	TargetCount      int              `json:"target_count"`
	CompletedCount   int              `json:"completed_count"`
	ErrorCount       int              `json:"error_count"`
	RetryCount       int              `json:"retry_count"`
	ParseRepairCount int              `json:"parse_repair_count"`
	LLMBackend       string           `json:"llm_backend"`
	LLMModel         string           `json:"llm_model,omitempty"`
	LastError        string           `json:"last_error,omitempty"`
	Errors           []string         `json:"errors"`
	StageDurationsMS map[string]int64 `json:"stage_durations_ms"`
	CreatedAt        time.Time        `json:"created_at"`
	StartedAt        *time.Time       `json:"started_at,omitempty"`
	FinishedAt       *time.Time       `json:"finished_at,omitempty"`
}

// Status reports the current state of a job.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (*StatusReport, error) {
	job, err := o.Store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &StatusReport{
		JobID:            job.ID,
		SessionID:        job.SessionID,
		Status:           job.Status,
		Stage:            job.Stage,
		Progress:         job.Progress,
		TargetCount:      job.TargetCount,
		CompletedCount:   job.CompletedCount,
		ErrorCount:       job.ErrorCount,
		RetryCount:       job.RetryCount,
		ParseRepairCount: job.ParseRepairCount,
		LLMBackend:       job.LLMBackend,
		LLMModel:         job.LLMModel,
		LastError:        job.LastError,
		Errors:           job.Stats.Errors,
		StageDurationsMS: job.Stats.StageDurationsMS,
		CreatedAt:        job.CreatedAt,
		StartedAt:        job.StartedAt,
		FinishedAt:       job.FinishedAt,
	}, nil
}

// PersonFindings gathers one person's review material: their evidence,
// the union of contradiction flags seen across slots, and the proposals
// with their score breakdowns.
type PersonFindings struct {
	PersonXref         string                 `json:"person_xref"`
	Evidence           []model.EvidenceItem   `json:"evidence"`
	ContradictionFlags []string               `json:"contradiction_flags"`
	Proposals          []model.ParentProposal `json:"proposals"`
}

// FindingsReport packages a job's review material: per-person findings
// plus the flat proposal and question lists for the CLI views.
type FindingsReport struct {
	JobID     string                   `json:"job_id"`
	SessionID string                   `json:"session_id"`
	Summary   string                   `json:"summary"`
	People    []PersonFindings         `json:"people"`
	Proposals []model.ParentProposal   `json:"proposals"`
	Questions []model.ResearchQuestion `json:"questions"`
}

// Findings collects a job's proposals and questions for review, grouped
// by person in the order the job selected them.
func (o *Orchestrator) Findings(ctx context.Context, jobID string) (*FindingsReport, error) {
	job, err := o.Store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	proposals, err := o.Store.ListProposals(ctx, store.ProposalFilter{JobID: job.ID})
	if err != nil {
		return nil, err
	}
	questions, err := o.Store.ListJobQuestions(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	people := make([]PersonFindings, 0, len(job.Stats.PersonXrefs))
	for _, xref := range job.Stats.PersonXrefs {
		evidence, err := o.Store.ListEvidence(ctx, job.ID, xref)
		if err != nil {
			return nil, err
		}

		pf := PersonFindings{PersonXref: xref, Evidence: evidence}
		seen := map[string]bool{}
		for _, p := range proposals {
			if p.PersonXref != xref {
				continue
			}
			pf.Proposals = append(pf.Proposals, p)
			for _, flag := range p.ContradictionFlags {
				if !seen[flag] {
					seen[flag] = true
					pf.ContradictionFlags = append(pf.ContradictionFlags, flag)
				}
			}
		}
		sort.Strings(pf.ContradictionFlags)
		people = append(people, pf)
	}

	return &FindingsReport{
		JobID:     job.ID,
		SessionID: job.SessionID,
		Summary:   "Research findings generated for manual review.",
		People:    people,
		Proposals: proposals,
		Questions: questions,
	}, nil
}
