package model

import "time"

// EvidenceItem is one retrieved record tied to a job and person. Rank is
// 1-based within the person's merged evidence list; rank 0 is reserved for
// the synthetic no-evidence placeholder. NormalizedURL and
// NormalizedTitleHash are the dedup keys computed at merge time.
type EvidenceItem struct {
	ID                  int64     `json:"id"`
	JobID               string    `json:"job_id"`
	PersonXref          string    `json:"person_xref"`
	SourceName          string    `json:"source_name"`
	Title               string    `json:"title"`
	URL                 string    `json:"url,omitempty"`
	Note                string    `json:"note,omitempty"`
	NormalizedURL       string    `json:"normalized_url,omitempty"`
	NormalizedTitleHash string    `json:"normalized_title_hash"`
	Rank                int       `json:"rank"`
	CreatedAt           time.Time `json:"created_at"`
}

// SourceResult is one connector's outcome for one person: the records it
// produced, the errors hit across attempts, and how many retries were used.
type SourceResult struct {
	SourceName  string
	Items       []EvidenceItem
	Errors      []string
	RetriesUsed int
}

// RetrievalResult is the merged, deduplicated evidence for one person
// together with the per-connector error log.
type RetrievalResult struct {
	Items       []EvidenceItem
	Errors      []string
	RetriesUsed int
}
