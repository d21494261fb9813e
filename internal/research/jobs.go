package research

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/deepgen/deepgen/internal/config"
	"github.com/deepgen/deepgen/internal/connector"
	"github.com/deepgen/deepgen/internal/llm"
	"github.com/deepgen/deepgen/internal/model"
	"github.com/deepgen/deepgen/internal/store"
)

const rawOutputLimit = 6000

// Orchestrator drives research jobs through the retrieval, extraction,
// verification and synthesis stages, persisting after every person so
// an interrupted job can be inspected mid-flight.
type Orchestrator struct {
	Store  store.Store
	Config config.Config

	// Overridable in tests. Nil means the production implementations.
	ResolveRuntime func(config.LLMConfig) llm.Runtime
	BuildSources   func(config.ConnectorsConfig, time.Duration) []connector.Source
}

func NewOrchestrator(st store.Store, cfg config.Config) *Orchestrator {
	return &Orchestrator{Store: st, Config: cfg}
}

// CreateJob selects the research-eligible people in the session and
// queues a job over them. Connector overrides are recorded on the job
// so a re-run uses the same source set.
func (o *Orchestrator) CreateJob(ctx context.Context, sessionID string, overrides map[string]bool) (*model.ResearchJob, error) {
	if _, err := o.Store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	people, err := o.Store.ListPeople(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var xrefs []string
	for i := range people {
		if !people[i].ResearchEligible() {
			continue
		}
		xrefs = append(xrefs, people[i].Xref)
		if len(xrefs) >= o.Config.Research.MaxPeople {
			break
		}
	}

	stats := model.NewStageStats()
	stats.PersonXrefs = xrefs
	if overrides != nil {
		stats.ConnectorOverrides = overrides
	}

	job := &model.ResearchJob{
		ID:                    newJobID(),
		SessionID:             sessionID,
		Status:                model.JobStatusQueued,
		Stage:                 model.JobStageQueued,
		LLMBackend:            o.Config.LLM.Backend,
		PromptTemplateVersion: o.Config.Research.PromptTemplateVersion,
		TargetCount:           len(xrefs),
		Stats:                 stats,
	}
	if err := o.Store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	zap.L().Info("research job created",
		zap.String("job_id", job.ID),
		zap.String("session_id", sessionID),
		zap.Int("target_count", job.TargetCount),
	)
	return job, nil
}

func newJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Run executes the job to completion. Completed jobs are a no-op;
// failed jobs may be re-run. Per-person failures are recorded and do
// not abort the remaining people.
func (o *Orchestrator) Run(ctx context.Context, jobID string) (*model.ResearchJob, error) {
	job, err := o.Store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == model.JobStatusCompleted {
		return job, nil
	}

	if secs := o.Config.Research.JobTimeoutSecs; secs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		defer cancel()
	}

	if err := o.runStages(ctx, job); err != nil {
		job.Stats.AddError(fmt.Sprintf("fatal: %v", err))
		job.Status = model.JobStatusFailed
		job.Stage = model.JobStageFailed
		job.LastError = err.Error()
		now := time.Now().UTC()
		job.FinishedAt = &now
		if updateErr := o.Store.UpdateJob(ctx, job); updateErr != nil {
			zap.L().Error("failed to persist job failure", zap.String("job_id", job.ID), zap.Error(updateErr))
		}
		return job, err
	}
	return job, nil
}

func (o *Orchestrator) runStages(ctx context.Context, job *model.ResearchJob) error {
	job.Status = model.JobStatusRunning
	job.Stage = model.JobStageInitializing
	if job.StartedAt == nil {
		now := time.Now().UTC()
		job.StartedAt = &now
	}
	if err := o.Store.UpdateJob(ctx, job); err != nil {
		return err
	}

	resolve := o.ResolveRuntime
	if resolve == nil {
		resolve = llm.Resolve
	}
	build := o.BuildSources
	if build == nil {
		build = connector.Build
	}

	runtime := resolve(o.Config.LLM)
	job.LLMBackend = runtime.Backend
	job.LLMModel = runtime.Model

	sources := connector.Filter(
		build(o.Config.Connectors, time.Duration(o.Config.Research.ConnectorTimeoutSecs)*time.Second),
		job.Stats.ConnectorOverrides,
	)

	people, err := o.selectPeople(ctx, job)
	if err != nil {
		return err
	}
	if len(people) == 0 {
		return o.finishJob(ctx, job)
	}

	retriever := &Retriever{
		Sources:         sources,
		MaxRetries:      o.Config.Research.MaxRetries,
		MaxPerConnector: o.Config.Research.MaxPerConnector,
		MaxTotal:        o.Config.Research.MaxTotal,
		MaxParallel:     o.Config.Research.MaxParallelConnectors,
	}
	extractor := &Extractor{
		Client:          runtime.Client,
		TemplateVersion: job.PromptTemplateVersion,
	}
	synth := &Synthesizer{MinimumScore: o.Config.Research.MinimumScore}

	for idx, person := range people {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "research: job interrupted")
		}
		if err := o.researchPerson(ctx, job, &person, retriever, extractor, synth); err != nil {
			return err
		}

		job.CompletedCount = idx + 1
		job.Progress = round2(float64(idx+1) / float64(len(people)) * 100)
		if err := o.Store.UpdateJob(ctx, job); err != nil {
			return err
		}
	}

	return o.finishJob(ctx, job)
}

// selectPeople resolves the job's recorded xrefs, falling back to a
// fresh eligibility scan for jobs created before the xref list existed.
func (o *Orchestrator) selectPeople(ctx context.Context, job *model.ResearchJob) ([]model.Person, error) {
	all, err := o.Store.ListPeople(ctx, job.SessionID)
	if err != nil {
		return nil, err
	}

	if len(job.Stats.PersonXrefs) == 0 {
		var selected []model.Person
		for i := range all {
			if !all[i].ResearchEligible() {
				continue
			}
			selected = append(selected, all[i])
			if len(selected) >= o.Config.Research.MaxPeople {
				break
			}
		}
		for i := range selected {
			job.Stats.PersonXrefs = append(job.Stats.PersonXrefs, selected[i].Xref)
		}
		job.TargetCount = len(selected)
		return selected, nil
	}

	wanted := make(map[string]bool, len(job.Stats.PersonXrefs))
	for _, xref := range job.Stats.PersonXrefs {
		wanted[xref] = true
	}
	var selected []model.Person
	for i := range all {
		if wanted[all[i].Xref] {
			selected = append(selected, all[i])
		}
	}
	return selected, nil
}

func (o *Orchestrator) finishJob(ctx context.Context, job *model.ResearchJob) error {
	job.Status = model.JobStatusCompleted
	job.Stage = model.JobStageCompleted
	job.Progress = 100
	now := time.Now().UTC()
	job.FinishedAt = &now
	return o.Store.UpdateJob(ctx, job)
}

func (o *Orchestrator) researchPerson(ctx context.Context, job *model.ResearchJob, person *model.Person, retriever *Retriever, extractor *Extractor, synth *Synthesizer) error {
	// Retrieval
	job.Stage = model.JobStageRetrieval
	start := time.Now()
	retrieved := retriever.Run(ctx, person)
	job.Stats.AddStageDuration(model.JobStageRetrieval, time.Since(start))
	job.RetryCount += retrieved.RetriesUsed
	for _, msg := range retrieved.Errors {
		job.Stats.AddError(fmt.Sprintf("%s retrieval: %s", person.Xref, msg))
	}

	evidence, err := o.persistEvidence(ctx, job, person, retrieved.Items)
	if err != nil {
		return err
	}

	// Extraction
	job.Stage = model.JobStageExtraction
	start = time.Now()
	outcome := extractor.Run(ctx, person, evidence)
	job.Stats.AddStageDuration(model.JobStageExtraction, time.Since(start))
	job.RetryCount += outcome.RetriesUsed
	job.ParseRepairCount += outcome.RepairsUsed
	for _, msg := range outcome.Errors {
		job.Stats.AddError(fmt.Sprintf("%s extraction: %s", person.Xref, msg))
	}

	// Verification
	job.Stage = model.JobStageVerification
	start = time.Now()
	verification := Verify(person, outcome.Claims)
	job.Stats.AddStageDuration(model.JobStageVerification, time.Since(start))

	// Synthesis
	job.Stage = model.JobStageSynthesis
	start = time.Now()
	drafts := synth.Synthesize(person, outcome.Claims, evidence, verification)
	job.Stats.AddStageDuration(model.JobStageSynthesis, time.Since(start))

	for i := range outcome.Claims {
		claim := outcome.Claims[i]
		claim.JobID = job.ID
		claim.PersonXref = person.Xref
		claim.ContradictionFlags = verification.FlagsFor(claim.Relationship)
		claim.ParseValid = outcome.ParseValid
		claim.RawOutput = truncate(outcome.RawOutput, rawOutputLimit)
		if err := o.Store.InsertClaim(ctx, &claim); err != nil {
			return err
		}
	}

	for i := range drafts {
		draft := drafts[i]
		draft.JobID = job.ID
		draft.SessionID = job.SessionID
		if err := o.Store.InsertProposal(ctx, &draft); err != nil {
			return err
		}
		if draft.CandidateName == "" {
			if err := o.askGapQuestions(ctx, job, person, draft.Relationship); err != nil {
				return err
			}
		}
	}

	if err := o.askContradictionQuestion(ctx, job, person, verification); err != nil {
		return err
	}

	if len(retrieved.Errors) > 0 || !outcome.ParseValid {
		job.ErrorCount++
	}
	return nil
}

// persistEvidence stores the merged retrieval items plus the person's
// answered questions as first-class evidence, and returns the stored
// rows (ids assigned) for extraction.
func (o *Orchestrator) persistEvidence(ctx context.Context, job *model.ResearchJob, person *model.Person, items []model.EvidenceItem) ([]model.EvidenceItem, error) {
	var stored []model.EvidenceItem

	if len(items) == 0 {
		placeholder := model.EvidenceItem{
			JobID:               job.ID,
			PersonXref:          person.Xref,
			SourceName:          "system",
			Title:               "No evidence found",
			Note:                "No configured connector returned evidence.",
			NormalizedTitleHash: "no-evidence",
		}
		if err := o.Store.InsertEvidence(ctx, &placeholder); err != nil {
			return nil, err
		}
		stored = append(stored, placeholder)
	}

	// Rank 0 is reserved for the placeholder; retrieved items and user
	// answers share one sequential counter.
	rank := 0
	for i := range items {
		item := items[i]
		item.JobID = job.ID
		item.PersonXref = person.Xref
		rank++
		item.Rank = rank
		if err := o.Store.InsertEvidence(ctx, &item); err != nil {
			return nil, err
		}
		stored = append(stored, item)
	}

	answered, err := o.Store.ListAnsweredQuestions(ctx, job.SessionID, person.Xref, 8)
	if err != nil {
		return nil, err
	}
	for _, q := range answered {
		answer := strings.TrimSpace(q.Answer)
		if answer == "" {
			continue
		}
		rank++
		item := model.EvidenceItem{
			JobID:               job.ID,
			PersonXref:          person.Xref,
			SourceName:          "user_answers",
			Title:               fmt.Sprintf("User answer (%s)", q.Relationship),
			Note:                fmt.Sprintf("Q: %s | A: %s", q.Question, answer),
			NormalizedTitleHash: fmt.Sprintf("user-answer-%d", q.ID),
			Rank:                rank,
		}
		if err := o.Store.InsertEvidence(ctx, &item); err != nil {
			return nil, err
		}
		stored = append(stored, item)
	}

	return stored, nil
}

// askGapQuestions raises the human-in-the-loop prompts for a parent
// slot the pipeline could not fill. Inserts are idempotent on the
// question text.
func (o *Orchestrator) askGapQuestions(ctx context.Context, job *model.ResearchJob, person *model.Person, rel model.Relationship) error {
	type gapQuestion struct {
		text      string
		rationale string
	}
	questions := []gapQuestion{
		{
			text:      fmt.Sprintf("For %s (%s), do you know any likely %s name, nickname, or surname variant?", person.Name, person.Xref, rel),
			rationale: "Model found insufficient evidence for this parent relationship.",
		},
		{
			text:      fmt.Sprintf("Do you have any records for %s (%s) that mention their %s (census, obituary, church, military, or newspaper)?", person.Name, person.Xref, rel),
			rationale: "Additional records may unlock parent attribution confidence.",
		},
		{
			text:      fmt.Sprintf("Are there living relatives, local historians, or social-media contacts you can reach who may know %s's %s?", person.Name, rel),
			rationale: "Human contact leads can provide non-indexed family knowledge.",
		},
	}

	for _, q := range questions {
		if err := o.insertQuestionOnce(ctx, job, person.Xref, rel, q.text, q.rationale); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) askContradictionQuestion(ctx context.Context, job *model.ResearchJob, person *model.Person, v Verification) error {
	var all []string
	for _, rel := range model.Relationships {
		all = append(all, v.ByRelationship[rel]...)
	}
	all = append(all, v.Global...)
	flags := sortedUnique(all)
	if len(flags) == 0 {
		return nil
	}

	text := fmt.Sprintf("There are conflicting parent leads for %s (%s). Which candidate is most credible and why?", person.Name, person.Xref)
	rationale := "Contradictions detected: " + strings.Join(flags, ", ")
	return o.insertQuestionOnce(ctx, job, person.Xref, model.RelationshipGeneral, text, rationale)
}

func (o *Orchestrator) insertQuestionOnce(ctx context.Context, job *model.ResearchJob, personXref string, rel model.Relationship, text, rationale string) error {
	existing, err := o.Store.FindQuestion(ctx, job.ID, personXref, rel, text)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return o.Store.InsertQuestion(ctx, &model.ResearchQuestion{
		JobID:        job.ID,
		SessionID:    job.SessionID,
		PersonXref:   personXref,
		Relationship: rel,
		Question:     text,
		Rationale:    rationale,
	})
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
