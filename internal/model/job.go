package model

import "time"

// JobStatus represents the lifecycle state of a research job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobStage is the pipeline stage a job is currently in.
type JobStage string

const (
	JobStageQueued       JobStage = "queued"
	JobStageInitializing JobStage = "initializing"
	JobStageRetrieval    JobStage = "retrieval"
	JobStageExtraction   JobStage = "extraction"
	JobStageVerification JobStage = "verification"
	JobStageSynthesis    JobStage = "synthesis"
	JobStageCompleted    JobStage = "completed"
	JobStageFailed       JobStage = "failed"
)

// StageStats is the per-job telemetry blob persisted as a JSON column:
// the person snapshot selected at creation, connector overrides, an
// ordered error log, and cumulative per-stage millisecond durations.
type StageStats struct {
	PersonXrefs        []string         `json:"person_xrefs"`
	ConnectorOverrides map[string]bool  `json:"connector_overrides"`
	Errors             []string         `json:"errors"`
	StageDurationsMS   map[string]int64 `json:"stage_durations_ms"`
}

// NewStageStats returns stats with every field initialized so the
// serialized form always carries all four keys.
func NewStageStats() StageStats {
	return StageStats{
		PersonXrefs:        []string{},
		ConnectorOverrides: map[string]bool{},
		Errors:             []string{},
		StageDurationsMS:   map[string]int64{},
	}
}

// AddError appends to the ordered error log.
func (s *StageStats) AddError(msg string) {
	s.Errors = append(s.Errors, msg)
}

// AddStageDuration accumulates elapsed time for a stage.
func (s *StageStats) AddStageDuration(stage JobStage, elapsed time.Duration) {
	if s.StageDurationsMS == nil {
		s.StageDurationsMS = map[string]int64{}
	}
	s.StageDurationsMS[string(stage)] += elapsed.Milliseconds()
}

// ResearchJob is one research run over a set of people in a session.
// Progress is a 0..100 percentage rounded to 2 decimals; counters are
// cumulative across the per-person loop. Completed and failed jobs are
// immutable.
type ResearchJob struct {
	ID                    string     `json:"id"`
	SessionID             string     `json:"session_id"`
	Status                JobStatus  `json:"status"`
	Stage                 JobStage   `json:"stage"`
	LLMBackend            string     `json:"llm_backend"`
	LLMModel              string     `json:"llm_model,omitempty"`
	PromptTemplateVersion string     `json:"prompt_template_version"`
	TargetCount           int        `json:"target_count"`
	CompletedCount        int        `json:"completed_count"`
	ErrorCount            int        `json:"error_count"`
	Progress              float64    `json:"progress"`
	RetryCount            int        `json:"retry_count"`
	ParseRepairCount      int        `json:"parse_repair_count"`
	Stats                 StageStats `json:"stats"`
	LastError             string     `json:"last_error,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	StartedAt             *time.Time `json:"started_at,omitempty"`
	FinishedAt            *time.Time `json:"finished_at,omitempty"`
}

// Terminal reports whether the job has reached a final state.
func (j *ResearchJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
