package store

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/deepgen/deepgen/internal/model"
)

// errNoRow is the driver-neutral sentinel returned by the scan helpers.
var errNoRow = eris.New("no row")

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func checkRowsAffectedID(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %d", entity, id)
	}
	return nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func nullInt64(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}

func emptyIfNilInt64(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

func emptyIfNilStr(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// scannable is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanPerson(row scannable) (*model.Person, error) {
	var p model.Person
	var sex, birthDate, deathDate, fatherXref, motherXref sql.NullString
	var birthYear sql.NullInt64

	err := row.Scan(&p.ID, &p.SessionID, &p.Xref, &p.Name, &sex, &birthDate, &deathDate,
		&birthYear, &p.IsLiving, &p.CanUseData, &p.CanLLMResearch, &fatherXref, &motherXref,
		&p.CreatedAt)
	if isNoRows(err) {
		return nil, errNoRow
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan person")
	}

	p.Sex = sex.String
	p.BirthDate = birthDate.String
	p.DeathDate = deathDate.String
	p.BirthYear = int(birthYear.Int64)
	p.FatherXref = fatherXref.String
	p.MotherXref = motherXref.String
	return &p, nil
}

func scanJob(row scannable) (*model.ResearchJob, error) {
	var j model.ResearchJob
	var statsJSON string
	var lastError sql.NullString
	var startedAt, finishedAt sql.NullTime

	err := row.Scan(&j.ID, &j.SessionID, &j.Status, &j.Stage, &j.LLMBackend, &j.LLMModel,
		&j.PromptTemplateVersion, &j.TargetCount, &j.CompletedCount, &j.ErrorCount, &j.Progress,
		&j.RetryCount, &j.ParseRepairCount, &statsJSON, &lastError, &j.CreatedAt, &j.UpdatedAt,
		&startedAt, &finishedAt)
	if isNoRows(err) {
		return nil, errNoRow
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan job")
	}

	if err := json.Unmarshal([]byte(statsJSON), &j.Stats); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal stage stats")
	}
	j.LastError = lastError.String
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		j.FinishedAt = &t
	}
	return &j, nil
}

func scanEvidence(row scannable) (*model.EvidenceItem, error) {
	var item model.EvidenceItem
	err := row.Scan(&item.ID, &item.JobID, &item.PersonXref, &item.SourceName, &item.Title,
		&item.URL, &item.Note, &item.NormalizedURL, &item.NormalizedTitleHash, &item.Rank,
		&item.CreatedAt)
	if isNoRows(err) {
		return nil, errNoRow
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan evidence")
	}
	return &item, nil
}

func scanClaim(row scannable) (*model.CandidateClaim, error) {
	var c model.CandidateClaim
	var name sql.NullString
	var evidenceJSON, flagsJSON string

	err := row.Scan(&c.ID, &c.JobID, &c.PersonXref, &c.Relationship, &name, &c.Confidence,
		&c.Rationale, &evidenceJSON, &flagsJSON, &c.ParseValid, &c.RawOutput, &c.CreatedAt)
	if isNoRows(err) {
		return nil, errNoRow
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan claim")
	}

	c.CandidateName = name.String
	if err := json.Unmarshal([]byte(evidenceJSON), &c.EvidenceIDs); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal evidence ids")
	}
	if err := json.Unmarshal([]byte(flagsJSON), &c.ContradictionFlags); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal contradiction flags")
	}
	return &c, nil
}

func marshalProposalColumns(p *model.ParentProposal) (string, string, string, error) {
	evidenceJSON, err := json.Marshal(emptyIfNilInt64(p.EvidenceIDs))
	if err != nil {
		return "", "", "", eris.Wrap(err, "store: marshal evidence ids")
	}
	flagsJSON, err := json.Marshal(emptyIfNilStr(p.ContradictionFlags))
	if err != nil {
		return "", "", "", eris.Wrap(err, "store: marshal contradiction flags")
	}
	componentsJSON, err := json.Marshal(p.ScoreComponents)
	if err != nil {
		return "", "", "", eris.Wrap(err, "store: marshal score components")
	}
	return string(evidenceJSON), string(flagsJSON), string(componentsJSON), nil
}

func scanProposal(row scannable) (*model.ParentProposal, error) {
	var p model.ParentProposal
	var name sql.NullString
	var evidenceJSON, flagsJSON, componentsJSON string

	err := row.Scan(&p.ID, &p.JobID, &p.SessionID, &p.PersonXref, &p.Relationship, &name,
		&p.Confidence, &p.Status, &p.Notes, &evidenceJSON, &flagsJSON, &componentsJSON,
		&p.CreatedAt, &p.UpdatedAt)
	if isNoRows(err) {
		return nil, errNoRow
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan proposal")
	}

	p.CandidateName = name.String
	if err := json.Unmarshal([]byte(evidenceJSON), &p.EvidenceIDs); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal evidence ids")
	}
	if err := json.Unmarshal([]byte(flagsJSON), &p.ContradictionFlags); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal contradiction flags")
	}
	if err := json.Unmarshal([]byte(componentsJSON), &p.ScoreComponents); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal score components")
	}
	return &p, nil
}

func scanQuestion(row scannable) (*model.ResearchQuestion, error) {
	var q model.ResearchQuestion
	var answer sql.NullString

	err := row.Scan(&q.ID, &q.JobID, &q.SessionID, &q.PersonXref, &q.Relationship, &q.Status,
		&q.Question, &q.Rationale, &answer, &q.CreatedAt, &q.UpdatedAt)
	if isNoRows(err) {
		return nil, errNoRow
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan question")
	}

	q.Answer = answer.String
	return &q, nil
}

func scanAuditEvent(row scannable) (*model.ApplyAuditEvent, error) {
	var e model.ApplyAuditEvent
	var jobID, createdXref sql.NullString
	var proposalID sql.NullInt64

	err := row.Scan(&e.ID, &jobID, &e.SessionID, &proposalID, &e.ChildXref, &e.Relationship,
		&e.Action, &e.Detail, &createdXref, &e.CreatedAt)
	if isNoRows(err) {
		return nil, errNoRow
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan audit event")
	}

	e.JobID = jobID.String
	e.ProposalID = proposalID.Int64
	e.CreatedPersonXref = createdXref.String
	return &e, nil
}
