package model

import "time"

// QuestionStatus represents the answer state of a research question.
type QuestionStatus string

const (
	QuestionStatusPending  QuestionStatus = "pending"
	QuestionStatusAnswered QuestionStatus = "answered"
	QuestionStatusSkipped  QuestionStatus = "skipped"
)

// ResearchQuestion is a gap question generated when a run cannot
// produce a candidate for a parent slot, or when contradictions
// surfaced. Relationship is father, mother, or general. Answered
// questions feed back into later runs as user_answers evidence.
type ResearchQuestion struct {
	ID           int64          `json:"id"`
	JobID        string         `json:"job_id"`
	SessionID    string         `json:"session_id"`
	PersonXref   string         `json:"person_xref"`
	Relationship Relationship   `json:"relationship"`
	Status       QuestionStatus `json:"status"`
	Question     string         `json:"question"`
	Rationale    string         `json:"rationale,omitempty"`
	Answer       string         `json:"answer,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
