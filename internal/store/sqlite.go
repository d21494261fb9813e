package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/deepgen/deepgen/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS upload_sessions (
	id         TEXT PRIMARY KEY,
	filename   TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS people (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id       TEXT NOT NULL REFERENCES upload_sessions(id),
	xref             TEXT NOT NULL,
	name             TEXT NOT NULL DEFAULT 'Unknown',
	sex              TEXT,
	birth_date       TEXT,
	death_date       TEXT,
	birth_year       INTEGER,
	is_living        INTEGER NOT NULL DEFAULT 1,
	can_use_data     INTEGER NOT NULL DEFAULT 0,
	can_llm_research INTEGER NOT NULL DEFAULT 0,
	father_xref      TEXT,
	mother_xref      TEXT,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (session_id, xref)
);

CREATE TABLE IF NOT EXISTS research_jobs (
	id                      TEXT PRIMARY KEY,
	session_id              TEXT NOT NULL REFERENCES upload_sessions(id),
	status                  TEXT NOT NULL DEFAULT 'queued',
	stage                   TEXT NOT NULL DEFAULT 'queued',
	llm_backend             TEXT NOT NULL DEFAULT 'none',
	llm_model               TEXT NOT NULL DEFAULT '',
	prompt_template_version TEXT NOT NULL DEFAULT 'v2',
	target_count            INTEGER NOT NULL DEFAULT 0,
	completed_count         INTEGER NOT NULL DEFAULT 0,
	error_count             INTEGER NOT NULL DEFAULT 0,
	progress                REAL NOT NULL DEFAULT 0,
	retry_count             INTEGER NOT NULL DEFAULT 0,
	parse_repair_count      INTEGER NOT NULL DEFAULT 0,
	stage_stats             TEXT NOT NULL DEFAULT '{}',
	last_error              TEXT,
	created_at              DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at              DATETIME NOT NULL DEFAULT (datetime('now')),
	started_at              DATETIME,
	finished_at             DATETIME
);

CREATE TABLE IF NOT EXISTS evidence_items (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id                TEXT NOT NULL REFERENCES research_jobs(id),
	person_xref           TEXT NOT NULL,
	source                TEXT NOT NULL,
	title                 TEXT NOT NULL,
	url                   TEXT NOT NULL DEFAULT '',
	note                  TEXT NOT NULL DEFAULT '',
	normalized_url        TEXT NOT NULL DEFAULT '',
	normalized_title_hash TEXT NOT NULL DEFAULT '',
	retrieval_rank        INTEGER NOT NULL DEFAULT 0,
	created_at            DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS extracted_claims (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id              TEXT NOT NULL REFERENCES research_jobs(id),
	person_xref         TEXT NOT NULL,
	relationship        TEXT NOT NULL,
	candidate_name      TEXT,
	confidence          REAL NOT NULL DEFAULT 0,
	rationale           TEXT NOT NULL DEFAULT '',
	evidence_ids        TEXT NOT NULL DEFAULT '[]',
	contradiction_flags TEXT NOT NULL DEFAULT '[]',
	parse_valid         INTEGER NOT NULL DEFAULT 1,
	raw_output          TEXT NOT NULL DEFAULT '',
	created_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS parent_proposals (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id              TEXT NOT NULL REFERENCES research_jobs(id),
	session_id          TEXT NOT NULL REFERENCES upload_sessions(id),
	person_xref         TEXT NOT NULL,
	relationship        TEXT NOT NULL,
	candidate_name      TEXT,
	confidence          REAL NOT NULL DEFAULT 0,
	status              TEXT NOT NULL DEFAULT 'pending_review',
	notes               TEXT NOT NULL DEFAULT '',
	evidence_ids        TEXT NOT NULL DEFAULT '[]',
	contradiction_flags TEXT NOT NULL DEFAULT '[]',
	score_components    TEXT NOT NULL DEFAULT '{}',
	created_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS proposal_decisions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	proposal_id INTEGER NOT NULL REFERENCES parent_proposals(id),
	action      TEXT NOT NULL,
	decided_by  TEXT NOT NULL DEFAULT 'user',
	notes       TEXT NOT NULL DEFAULT '',
	payload     TEXT NOT NULL DEFAULT '{}',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS research_questions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id       TEXT NOT NULL REFERENCES research_jobs(id),
	session_id   TEXT NOT NULL REFERENCES upload_sessions(id),
	person_xref  TEXT NOT NULL,
	relationship TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	question     TEXT NOT NULL,
	rationale    TEXT NOT NULL DEFAULT '',
	answer       TEXT,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS apply_audit_events (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id              TEXT,
	session_id          TEXT NOT NULL REFERENCES upload_sessions(id),
	proposal_id         INTEGER,
	child_xref          TEXT NOT NULL,
	relationship        TEXT NOT NULL,
	action              TEXT NOT NULL,
	detail              TEXT NOT NULL DEFAULT '',
	created_person_xref TEXT,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_people_session ON people(session_id);
CREATE INDEX IF NOT EXISTS idx_jobs_session ON research_jobs(session_id);
CREATE INDEX IF NOT EXISTS idx_evidence_job_person ON evidence_items(job_id, person_xref);
CREATE INDEX IF NOT EXISTS idx_claims_job_person ON extracted_claims(job_id, person_xref);
CREATE INDEX IF NOT EXISTS idx_proposals_job ON parent_proposals(job_id);
CREATE INDEX IF NOT EXISTS idx_proposals_session_status ON parent_proposals(session_id, status);
CREATE INDEX IF NOT EXISTS idx_questions_job ON research_questions(job_id);
CREATE INDEX IF NOT EXISTS idx_questions_session_person ON research_questions(session_id, person_xref);
CREATE INDEX IF NOT EXISTS idx_audit_session ON apply_audit_events(session_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Sessions

func (s *SQLiteStore) CreateSession(ctx context.Context, session *model.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO upload_sessions (id, filename, created_at) VALUES (?, ?, ?)`,
		session.ID, session.Filename, session.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert session %s", session.ID)
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var sess model.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, filename, created_at FROM upload_sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Filename, &sess.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("session not found: %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get session %s", id)
	}
	return &sess, nil
}

// People

func (s *SQLiteStore) InsertPerson(ctx context.Context, p *model.Person) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO people (session_id, xref, name, sex, birth_date, death_date, birth_year,
			is_living, can_use_data, can_llm_research, father_xref, mother_xref, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.SessionID, p.Xref, p.Name, nullStr(p.Sex), nullStr(p.BirthDate), nullStr(p.DeathDate),
		nullInt(p.BirthYear), p.IsLiving, p.CanUseData, p.CanLLMResearch,
		nullStr(p.FatherXref), nullStr(p.MotherXref), p.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert person %s", p.Xref)
	}
	p.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: person id")
}

// InsertPeople loads an imported tree in a single transaction.
func (s *SQLiteStore) InsertPeople(ctx context.Context, people []model.Person) error {
	if len(people) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO people (session_id, xref, name, sex, birth_date, death_date, birth_year,
			is_living, can_use_data, can_llm_research, father_xref, mother_xref, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (session_id, xref) DO UPDATE SET
			name = excluded.name, sex = excluded.sex, birth_date = excluded.birth_date,
			death_date = excluded.death_date, birth_year = excluded.birth_year,
			is_living = excluded.is_living, can_use_data = excluded.can_use_data,
			can_llm_research = excluded.can_llm_research,
			father_xref = excluded.father_xref, mother_xref = excluded.mother_xref`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert people")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range people {
		p := &people[i]
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		_, err := stmt.ExecContext(ctx,
			p.SessionID, p.Xref, p.Name, nullStr(p.Sex), nullStr(p.BirthDate), nullStr(p.DeathDate),
			nullInt(p.BirthYear), p.IsLiving, p.CanUseData, p.CanLLMResearch,
			nullStr(p.FatherXref), nullStr(p.MotherXref), p.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert person %s", p.Xref)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit insert people")
}

const personColumns = `id, session_id, xref, name, sex, birth_date, death_date, birth_year,
	is_living, can_use_data, can_llm_research, father_xref, mother_xref, created_at`

func (s *SQLiteStore) ListPeople(ctx context.Context, sessionID string) ([]model.Person, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+personColumns+` FROM people WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list people")
	}
	defer rows.Close()

	var people []model.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		people = append(people, *p)
	}
	return people, eris.Wrap(rows.Err(), "sqlite: list people iterate")
}

func (s *SQLiteStore) GetPersonByXref(ctx context.Context, sessionID, xref string) (*model.Person, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM people WHERE session_id = ? AND xref = ?`, sessionID, xref,
	)
	p, err := scanPerson(row)
	if err == errNoRow {
		return nil, nil
	}
	return p, err
}

func (s *SQLiteStore) UpdatePersonParents(ctx context.Context, sessionID, xref, fatherXref, motherXref string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE people SET father_xref = ?, mother_xref = ? WHERE session_id = ? AND xref = ?`,
		nullStr(fatherXref), nullStr(motherXref), sessionID, xref,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update person parents %s", xref)
	}
	return checkRowsAffected(res, "person", xref)
}

// Jobs

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.ResearchJob) error {
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	statsJSON, err := json.Marshal(job.Stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stage stats")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO research_jobs (id, session_id, status, stage, llm_backend, llm_model,
			prompt_template_version, target_count, completed_count, error_count, progress,
			retry_count, parse_repair_count, stage_stats, last_error, created_at, updated_at,
			started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.SessionID, string(job.Status), string(job.Stage), job.LLMBackend, job.LLMModel,
		job.PromptTemplateVersion, job.TargetCount, job.CompletedCount, job.ErrorCount, job.Progress,
		job.RetryCount, job.ParseRepairCount, string(statsJSON), nullStr(job.LastError),
		job.CreatedAt, job.UpdatedAt, job.StartedAt, job.FinishedAt,
	)
	return eris.Wrapf(err, "sqlite: insert job %s", job.ID)
}

const jobColumns = `id, session_id, status, stage, llm_backend, llm_model, prompt_template_version,
	target_count, completed_count, error_count, progress, retry_count, parse_repair_count,
	stage_stats, last_error, created_at, updated_at, started_at, finished_at`

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.ResearchJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM research_jobs WHERE id = ?`, id,
	)
	job, err := scanJob(row)
	if err == errNoRow {
		return nil, eris.Errorf("job not found: %s", id)
	}
	return job, err
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, job *model.ResearchJob) error {
	job.UpdatedAt = time.Now().UTC()

	statsJSON, err := json.Marshal(job.Stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stage stats")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE research_jobs SET status = ?, stage = ?, llm_backend = ?, llm_model = ?,
			target_count = ?, completed_count = ?, error_count = ?, progress = ?,
			retry_count = ?, parse_repair_count = ?, stage_stats = ?, last_error = ?,
			updated_at = ?, started_at = ?, finished_at = ?
		 WHERE id = ?`,
		string(job.Status), string(job.Stage), job.LLMBackend, job.LLMModel,
		job.TargetCount, job.CompletedCount, job.ErrorCount, job.Progress,
		job.RetryCount, job.ParseRepairCount, string(statsJSON), nullStr(job.LastError),
		job.UpdatedAt, job.StartedAt, job.FinishedAt, job.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job %s", job.ID)
	}
	return checkRowsAffected(res, "job", job.ID)
}

func (s *SQLiteStore) ListJobs(ctx context.Context, sessionID string) ([]model.ResearchJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM research_jobs WHERE session_id = ? ORDER BY created_at DESC, id`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.ResearchJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

// Evidence

func (s *SQLiteStore) InsertEvidence(ctx context.Context, item *model.EvidenceItem) error {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO evidence_items (job_id, person_xref, source, title, url, note,
			normalized_url, normalized_title_hash, retrieval_rank, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.JobID, item.PersonXref, item.SourceName, item.Title, item.URL, item.Note,
		item.NormalizedURL, item.NormalizedTitleHash, item.Rank, item.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert evidence for %s", item.PersonXref)
	}
	item.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: evidence id")
}

func (s *SQLiteStore) ListEvidence(ctx context.Context, jobID, personXref string) ([]model.EvidenceItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, person_xref, source, title, url, note, normalized_url,
			normalized_title_hash, retrieval_rank, created_at
		 FROM evidence_items WHERE job_id = ? AND person_xref = ?
		 ORDER BY retrieval_rank, id`,
		jobID, personXref,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list evidence")
	}
	defer rows.Close()

	var items []model.EvidenceItem
	for rows.Next() {
		item, err := scanEvidence(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: list evidence iterate")
}

// Claims

func (s *SQLiteStore) InsertClaim(ctx context.Context, claim *model.CandidateClaim) error {
	if claim.CreatedAt.IsZero() {
		claim.CreatedAt = time.Now().UTC()
	}
	evidenceJSON, err := json.Marshal(emptyIfNilInt64(claim.EvidenceIDs))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal evidence ids")
	}
	flagsJSON, err := json.Marshal(emptyIfNilStr(claim.ContradictionFlags))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal contradiction flags")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO extracted_claims (job_id, person_xref, relationship, candidate_name,
			confidence, rationale, evidence_ids, contradiction_flags, parse_valid, raw_output, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		claim.JobID, claim.PersonXref, string(claim.Relationship), nullStr(claim.CandidateName),
		claim.Confidence, claim.Rationale, string(evidenceJSON), string(flagsJSON),
		claim.ParseValid, claim.RawOutput, claim.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert claim for %s", claim.PersonXref)
	}
	claim.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: claim id")
}

func (s *SQLiteStore) ListClaims(ctx context.Context, jobID, personXref string) ([]model.CandidateClaim, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, person_xref, relationship, candidate_name, confidence, rationale,
			evidence_ids, contradiction_flags, parse_valid, raw_output, created_at
		 FROM extracted_claims WHERE job_id = ? AND person_xref = ? ORDER BY id`,
		jobID, personXref,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list claims")
	}
	defer rows.Close()

	var claims []model.CandidateClaim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, *c)
	}
	return claims, eris.Wrap(rows.Err(), "sqlite: list claims iterate")
}

// Proposals

func (s *SQLiteStore) InsertProposal(ctx context.Context, p *model.ParentProposal) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	evidenceJSON, flagsJSON, componentsJSON, err := marshalProposalColumns(p)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO parent_proposals (job_id, session_id, person_xref, relationship,
			candidate_name, confidence, status, notes, evidence_ids, contradiction_flags,
			score_components, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.JobID, p.SessionID, p.PersonXref, string(p.Relationship), nullStr(p.CandidateName),
		p.Confidence, string(p.Status), p.Notes, evidenceJSON, flagsJSON, componentsJSON,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert proposal for %s", p.PersonXref)
	}
	p.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: proposal id")
}

const proposalColumns = `id, job_id, session_id, person_xref, relationship, candidate_name,
	confidence, status, notes, evidence_ids, contradiction_flags, score_components,
	created_at, updated_at`

func (s *SQLiteStore) GetProposal(ctx context.Context, id int64) (*model.ParentProposal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+proposalColumns+` FROM parent_proposals WHERE id = ?`, id,
	)
	p, err := scanProposal(row)
	if err == errNoRow {
		return nil, eris.Errorf("proposal not found: %d", id)
	}
	return p, err
}

func (s *SQLiteStore) UpdateProposal(ctx context.Context, p *model.ParentProposal) error {
	p.UpdatedAt = time.Now().UTC()

	evidenceJSON, flagsJSON, componentsJSON, err := marshalProposalColumns(p)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE parent_proposals SET candidate_name = ?, confidence = ?, status = ?, notes = ?,
			evidence_ids = ?, contradiction_flags = ?, score_components = ?, updated_at = ?
		 WHERE id = ?`,
		nullStr(p.CandidateName), p.Confidence, string(p.Status), p.Notes,
		evidenceJSON, flagsJSON, componentsJSON, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update proposal %d", p.ID)
	}
	return checkRowsAffectedID(res, "proposal", p.ID)
}

func (s *SQLiteStore) ListProposals(ctx context.Context, filter ProposalFilter) ([]model.ParentProposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM parent_proposals WHERE 1=1`
	var args []any

	if filter.JobID != "" {
		query += ` AND job_id = ?`
		args = append(args, filter.JobID)
	}
	if filter.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, filter.SessionID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY person_xref, relationship, id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list proposals")
	}
	defer rows.Close()

	var proposals []model.ParentProposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, *p)
	}
	return proposals, eris.Wrap(rows.Err(), "sqlite: list proposals iterate")
}

func (s *SQLiteStore) InsertDecision(ctx context.Context, d *model.ProposalDecision) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.DecidedBy == "" {
		d.DecidedBy = "user"
	}
	payload := d.Payload
	if payload == "" {
		payload = "{}"
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO proposal_decisions (proposal_id, action, decided_by, notes, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		d.ProposalID, d.Action, d.DecidedBy, d.Notes, payload, d.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert decision for proposal %d", d.ProposalID)
	}
	d.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: decision id")
}

// Questions

func (s *SQLiteStore) InsertQuestion(ctx context.Context, q *model.ResearchQuestion) error {
	now := time.Now().UTC()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	q.UpdatedAt = now
	if q.Status == "" {
		q.Status = model.QuestionStatusPending
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO research_questions (job_id, session_id, person_xref, relationship, status,
			question, rationale, answer, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.JobID, q.SessionID, q.PersonXref, string(q.Relationship), string(q.Status),
		q.Question, q.Rationale, nullStr(q.Answer), q.CreatedAt, q.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert question for %s", q.PersonXref)
	}
	q.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: question id")
}

const questionColumns = `id, job_id, session_id, person_xref, relationship, status, question,
	rationale, answer, created_at, updated_at`

func (s *SQLiteStore) FindQuestion(ctx context.Context, jobID, personXref string, relationship model.Relationship, text string) (*model.ResearchQuestion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM research_questions
		 WHERE job_id = ? AND person_xref = ? AND relationship = ? AND question = ?`,
		jobID, personXref, string(relationship), text,
	)
	q, err := scanQuestion(row)
	if err == errNoRow {
		return nil, nil
	}
	return q, err
}

func (s *SQLiteStore) GetQuestion(ctx context.Context, id int64) (*model.ResearchQuestion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM research_questions WHERE id = ?`, id,
	)
	q, err := scanQuestion(row)
	if err == errNoRow {
		return nil, eris.Errorf("question not found: %d", id)
	}
	return q, err
}

func (s *SQLiteStore) UpdateQuestion(ctx context.Context, q *model.ResearchQuestion) error {
	q.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE research_questions SET status = ?, answer = ?, updated_at = ? WHERE id = ?`,
		string(q.Status), nullStr(q.Answer), q.UpdatedAt, q.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update question %d", q.ID)
	}
	return checkRowsAffectedID(res, "question", q.ID)
}

func (s *SQLiteStore) ListJobQuestions(ctx context.Context, jobID string) ([]model.ResearchQuestion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM research_questions WHERE job_id = ?
		 ORDER BY status, person_xref, id`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list job questions")
	}
	defer rows.Close()
	return collectQuestions(rows)
}

func (s *SQLiteStore) ListAnsweredQuestions(ctx context.Context, sessionID, personXref string, limit int) ([]model.ResearchQuestion, error) {
	if limit <= 0 {
		limit = 8
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM research_questions
		 WHERE session_id = ? AND person_xref = ? AND status = 'answered'
		 ORDER BY updated_at DESC, id DESC LIMIT ?`,
		sessionID, personXref, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list answered questions")
	}
	defer rows.Close()
	return collectQuestions(rows)
}

// Apply audit

func (s *SQLiteStore) InsertAuditEvent(ctx context.Context, e *model.ApplyAuditEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO apply_audit_events (job_id, session_id, proposal_id, child_xref, relationship,
			action, detail, created_person_xref, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullStr(e.JobID), e.SessionID, nullInt64(e.ProposalID), e.ChildXref,
		string(e.Relationship), e.Action, e.Detail, nullStr(e.CreatedPersonXref), e.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert audit event for %s", e.ChildXref)
	}
	e.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: audit event id")
}

func (s *SQLiteStore) ListAuditEvents(ctx context.Context, sessionID string) ([]model.ApplyAuditEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, session_id, proposal_id, child_xref, relationship, action, detail,
			created_person_xref, created_at
		 FROM apply_audit_events WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list audit events")
	}
	defer rows.Close()

	var events []model.ApplyAuditEvent
	for rows.Next() {
		e, err := scanAuditEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list audit events iterate")
}

func collectQuestions(rows *sql.Rows) ([]model.ResearchQuestion, error) {
	var questions []model.ResearchQuestion
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *q)
	}
	return questions, eris.Wrap(rows.Err(), "sqlite: questions iterate")
}
