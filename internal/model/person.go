package model

import "time"

// Person is one individual in an uploaded tree session. Xref is the stable
// identifier carried over from the source tree (e.g. "@I12@"); parent links
// reference other xrefs in the same session. An empty FatherXref/MotherXref
// means the slot is open for research.
type Person struct {
	ID             int64     `json:"id"`
	SessionID      string    `json:"session_id"`
	Xref           string    `json:"xref"`
	Name           string    `json:"name"`
	Sex            string    `json:"sex,omitempty"` // "M", "F" or ""
	BirthDate      string    `json:"birth_date,omitempty"`
	DeathDate      string    `json:"death_date,omitempty"`
	BirthYear      int       `json:"birth_year,omitempty"` // 0 = unknown
	IsLiving       bool      `json:"is_living"`
	CanUseData     bool      `json:"can_use_data"`
	CanLLMResearch bool      `json:"can_llm_research"`
	FatherXref     string    `json:"father_xref,omitempty"`
	MotherXref     string    `json:"mother_xref,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ResearchEligible reports whether a person may be targeted by a research
// job: at least one parent slot is open, and living people require both
// consent flags.
func (p Person) ResearchEligible() bool {
	if p.FatherXref != "" && p.MotherXref != "" {
		return false
	}
	if p.IsLiving && !(p.CanUseData && p.CanLLMResearch) {
		return false
	}
	return true
}
