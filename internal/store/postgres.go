package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/deepgen/deepgen/internal/db"
	"github.com/deepgen/deepgen/internal/model"
	"github.com/deepgen/deepgen/internal/resilience"
)

// PostgresStore implements Store using pgxpool. Writes are retried on
// transient failures (serialization conflicts, dropped connections).
type PostgresStore struct {
	pool    db.Pool
	retry   resilience.RetryConfig
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{
		pool:    pool,
		retry:   resilience.DefaultRetryConfig(),
		closeFn: pool.Close,
	}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, retry: resilience.RetryConfig{MaxAttempts: 1}}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS upload_sessions (
	id         TEXT PRIMARY KEY,
	filename   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS people (
	id               BIGSERIAL PRIMARY KEY,
	session_id       TEXT NOT NULL REFERENCES upload_sessions(id),
	xref             TEXT NOT NULL,
	name             TEXT NOT NULL DEFAULT 'Unknown',
	sex              TEXT,
	birth_date       TEXT,
	death_date       TEXT,
	birth_year       INTEGER,
	is_living        BOOLEAN NOT NULL DEFAULT true,
	can_use_data     BOOLEAN NOT NULL DEFAULT false,
	can_llm_research BOOLEAN NOT NULL DEFAULT false,
	father_xref      TEXT,
	mother_xref      TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
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
	progress                DOUBLE PRECISION NOT NULL DEFAULT 0,
	retry_count             INTEGER NOT NULL DEFAULT 0,
	parse_repair_count      INTEGER NOT NULL DEFAULT 0,
	stage_stats             JSONB NOT NULL DEFAULT '{}',
	last_error              TEXT,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at              TIMESTAMPTZ,
	finished_at             TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS evidence_items (
	id                    BIGSERIAL PRIMARY KEY,
	job_id                TEXT NOT NULL REFERENCES research_jobs(id),
	person_xref           TEXT NOT NULL,
	source                TEXT NOT NULL,
	title                 TEXT NOT NULL,
	url                   TEXT NOT NULL DEFAULT '',
	note                  TEXT NOT NULL DEFAULT '',
	normalized_url        TEXT NOT NULL DEFAULT '',
	normalized_title_hash TEXT NOT NULL DEFAULT '',
	retrieval_rank        INTEGER NOT NULL DEFAULT 0,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS extracted_claims (
	id                  BIGSERIAL PRIMARY KEY,
	job_id              TEXT NOT NULL REFERENCES research_jobs(id),
	person_xref         TEXT NOT NULL,
	relationship        TEXT NOT NULL,
	candidate_name      TEXT,
	confidence          DOUBLE PRECISION NOT NULL DEFAULT 0,
	rationale           TEXT NOT NULL DEFAULT '',
	evidence_ids        JSONB NOT NULL DEFAULT '[]',
	contradiction_flags JSONB NOT NULL DEFAULT '[]',
	parse_valid         BOOLEAN NOT NULL DEFAULT true,
	raw_output          TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS parent_proposals (
	id                  BIGSERIAL PRIMARY KEY,
	job_id              TEXT NOT NULL REFERENCES research_jobs(id),
	session_id          TEXT NOT NULL REFERENCES upload_sessions(id),
	person_xref         TEXT NOT NULL,
	relationship        TEXT NOT NULL,
	candidate_name      TEXT,
	confidence          DOUBLE PRECISION NOT NULL DEFAULT 0,
	status              TEXT NOT NULL DEFAULT 'pending_review',
	notes               TEXT NOT NULL DEFAULT '',
	evidence_ids        JSONB NOT NULL DEFAULT '[]',
	contradiction_flags JSONB NOT NULL DEFAULT '[]',
	score_components    JSONB NOT NULL DEFAULT '{}',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS proposal_decisions (
	id          BIGSERIAL PRIMARY KEY,
	proposal_id BIGINT NOT NULL REFERENCES parent_proposals(id),
	action      TEXT NOT NULL,
	decided_by  TEXT NOT NULL DEFAULT 'user',
	notes       TEXT NOT NULL DEFAULT '',
	payload     JSONB NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS research_questions (
	id           BIGSERIAL PRIMARY KEY,
	job_id       TEXT NOT NULL REFERENCES research_jobs(id),
	session_id   TEXT NOT NULL REFERENCES upload_sessions(id),
	person_xref  TEXT NOT NULL,
	relationship TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	question     TEXT NOT NULL,
	rationale    TEXT NOT NULL DEFAULT '',
	answer       TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS apply_audit_events (
	id                  BIGSERIAL PRIMARY KEY,
	job_id              TEXT,
	session_id          TEXT NOT NULL REFERENCES upload_sessions(id),
	proposal_id         BIGINT,
	child_xref          TEXT NOT NULL,
	relationship        TEXT NOT NULL,
	action              TEXT NOT NULL,
	detail              TEXT NOT NULL DEFAULT '',
	created_person_xref TEXT,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
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

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

// exec runs a write statement with retry on transient failures.
func (s *PostgresStore) exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	return resilience.DoVal(ctx, s.retry, func(ctx context.Context) (pgconn.CommandTag, error) {
		return s.pool.Exec(ctx, query, args...)
	})
}

// insertReturningID runs an INSERT ... RETURNING id with retry and scans
// the generated id.
func (s *PostgresStore) insertReturningID(ctx context.Context, query string, args ...any) (int64, error) {
	return resilience.DoVal(ctx, s.retry, func(ctx context.Context) (int64, error) {
		var id int64
		err := s.pool.QueryRow(ctx, query, args...).Scan(&id)
		return id, err
	})
}

// Sessions

func (s *PostgresStore) CreateSession(ctx context.Context, session *model.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx,
		`INSERT INTO upload_sessions (id, filename, created_at) VALUES ($1, $2, $3)`,
		session.ID, session.Filename, session.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert session %s", session.ID)
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var sess model.Session
	err := s.pool.QueryRow(ctx,
		`SELECT id, filename, created_at FROM upload_sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.Filename, &sess.CreatedAt)
	if isNoRows(err) {
		return nil, eris.Errorf("session not found: %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get session %s", id)
	}
	return &sess, nil
}

// People

func (s *PostgresStore) InsertPerson(ctx context.Context, p *model.Person) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	id, err := s.insertReturningID(ctx,
		`INSERT INTO people (session_id, xref, name, sex, birth_date, death_date, birth_year,
			is_living, can_use_data, can_llm_research, father_xref, mother_xref, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING id`,
		p.SessionID, p.Xref, p.Name, nullStr(p.Sex), nullStr(p.BirthDate), nullStr(p.DeathDate),
		nullInt(p.BirthYear), p.IsLiving, p.CanUseData, p.CanLLMResearch,
		nullStr(p.FatherXref), nullStr(p.MotherXref), p.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert person %s", p.Xref)
	}
	p.ID = id
	return nil
}

var peopleBulkColumns = []string{
	"session_id", "xref", "name", "sex", "birth_date", "death_date", "birth_year",
	"is_living", "can_use_data", "can_llm_research", "father_xref", "mother_xref", "created_at",
}

// InsertPeople bulk-loads an imported tree via COPY and ON CONFLICT upsert.
func (s *PostgresStore) InsertPeople(ctx context.Context, people []model.Person) error {
	if len(people) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(people))
	for i := range people {
		p := &people[i]
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		rows = append(rows, []any{
			p.SessionID, p.Xref, p.Name, nullStr(p.Sex), nullStr(p.BirthDate), nullStr(p.DeathDate),
			nullInt(p.BirthYear), p.IsLiving, p.CanUseData, p.CanLLMResearch,
			nullStr(p.FatherXref), nullStr(p.MotherXref), p.CreatedAt,
		})
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "people",
		Columns:      peopleBulkColumns,
		ConflictKeys: []string{"session_id", "xref"},
	}, rows)
	return eris.Wrap(err, "postgres: insert people")
}

func (s *PostgresStore) ListPeople(ctx context.Context, sessionID string) ([]model.Person, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+personColumns+` FROM people WHERE session_id = $1 ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list people")
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
	return people, eris.Wrap(rows.Err(), "postgres: list people iterate")
}

func (s *PostgresStore) GetPersonByXref(ctx context.Context, sessionID, xref string) (*model.Person, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+personColumns+` FROM people WHERE session_id = $1 AND xref = $2`, sessionID, xref,
	)
	p, err := scanPerson(row)
	if err == errNoRow {
		return nil, nil
	}
	return p, err
}

func (s *PostgresStore) UpdatePersonParents(ctx context.Context, sessionID, xref, fatherXref, motherXref string) error {
	tag, err := s.exec(ctx,
		`UPDATE people SET father_xref = $1, mother_xref = $2 WHERE session_id = $3 AND xref = $4`,
		nullStr(fatherXref), nullStr(motherXref), sessionID, xref,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update person parents %s", xref)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("person not found: %s", xref)
	}
	return nil
}

// Jobs

func (s *PostgresStore) CreateJob(ctx context.Context, job *model.ResearchJob) error {
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	statsJSON, err := json.Marshal(job.Stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stage stats")
	}

	_, err = s.exec(ctx,
		`INSERT INTO research_jobs (id, session_id, status, stage, llm_backend, llm_model,
			prompt_template_version, target_count, completed_count, error_count, progress,
			retry_count, parse_repair_count, stage_stats, last_error, created_at, updated_at,
			started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		job.ID, job.SessionID, string(job.Status), string(job.Stage), job.LLMBackend, job.LLMModel,
		job.PromptTemplateVersion, job.TargetCount, job.CompletedCount, job.ErrorCount, job.Progress,
		job.RetryCount, job.ParseRepairCount, statsJSON, nullStr(job.LastError),
		job.CreatedAt, job.UpdatedAt, job.StartedAt, job.FinishedAt,
	)
	return eris.Wrapf(err, "postgres: insert job %s", job.ID)
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.ResearchJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM research_jobs WHERE id = $1`, id,
	)
	job, err := scanJob(row)
	if err == errNoRow {
		return nil, eris.Errorf("job not found: %s", id)
	}
	return job, err
}

func (s *PostgresStore) UpdateJob(ctx context.Context, job *model.ResearchJob) error {
	job.UpdatedAt = time.Now().UTC()

	statsJSON, err := json.Marshal(job.Stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stage stats")
	}

	tag, err := s.exec(ctx,
		`UPDATE research_jobs SET status = $1, stage = $2, llm_backend = $3, llm_model = $4,
			target_count = $5, completed_count = $6, error_count = $7, progress = $8,
			retry_count = $9, parse_repair_count = $10, stage_stats = $11, last_error = $12,
			updated_at = $13, started_at = $14, finished_at = $15
		 WHERE id = $16`,
		string(job.Status), string(job.Stage), job.LLMBackend, job.LLMModel,
		job.TargetCount, job.CompletedCount, job.ErrorCount, job.Progress,
		job.RetryCount, job.ParseRepairCount, statsJSON, nullStr(job.LastError),
		job.UpdatedAt, job.StartedAt, job.FinishedAt, job.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job %s", job.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", job.ID)
	}
	return nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, sessionID string) ([]model.ResearchJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM research_jobs WHERE session_id = $1 ORDER BY created_at DESC, id`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
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
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

// Evidence

func (s *PostgresStore) InsertEvidence(ctx context.Context, item *model.EvidenceItem) error {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	id, err := s.insertReturningID(ctx,
		`INSERT INTO evidence_items (job_id, person_xref, source, title, url, note,
			normalized_url, normalized_title_hash, retrieval_rank, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		item.JobID, item.PersonXref, item.SourceName, item.Title, item.URL, item.Note,
		item.NormalizedURL, item.NormalizedTitleHash, item.Rank, item.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert evidence for %s", item.PersonXref)
	}
	item.ID = id
	return nil
}

func (s *PostgresStore) ListEvidence(ctx context.Context, jobID, personXref string) ([]model.EvidenceItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, person_xref, source, title, url, note, normalized_url,
			normalized_title_hash, retrieval_rank, created_at
		 FROM evidence_items WHERE job_id = $1 AND person_xref = $2
		 ORDER BY retrieval_rank, id`,
		jobID, personXref,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list evidence")
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
	return items, eris.Wrap(rows.Err(), "postgres: list evidence iterate")
}

// Claims

func (s *PostgresStore) InsertClaim(ctx context.Context, claim *model.CandidateClaim) error {
	if claim.CreatedAt.IsZero() {
		claim.CreatedAt = time.Now().UTC()
	}
	evidenceJSON, err := json.Marshal(emptyIfNilInt64(claim.EvidenceIDs))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal evidence ids")
	}
	flagsJSON, err := json.Marshal(emptyIfNilStr(claim.ContradictionFlags))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal contradiction flags")
	}

	id, err := s.insertReturningID(ctx,
		`INSERT INTO extracted_claims (job_id, person_xref, relationship, candidate_name,
			confidence, rationale, evidence_ids, contradiction_flags, parse_valid, raw_output, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		claim.JobID, claim.PersonXref, string(claim.Relationship), nullStr(claim.CandidateName),
		claim.Confidence, claim.Rationale, evidenceJSON, flagsJSON,
		claim.ParseValid, claim.RawOutput, claim.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert claim for %s", claim.PersonXref)
	}
	claim.ID = id
	return nil
}

func (s *PostgresStore) ListClaims(ctx context.Context, jobID, personXref string) ([]model.CandidateClaim, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, person_xref, relationship, candidate_name, confidence, rationale,
			evidence_ids, contradiction_flags, parse_valid, raw_output, created_at
		 FROM extracted_claims WHERE job_id = $1 AND person_xref = $2 ORDER BY id`,
		jobID, personXref,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list claims")
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
	return claims, eris.Wrap(rows.Err(), "postgres: list claims iterate")
}

// Proposals

func (s *PostgresStore) InsertProposal(ctx context.Context, p *model.ParentProposal) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	evidenceJSON, flagsJSON, componentsJSON, err := marshalProposalColumns(p)
	if err != nil {
		return err
	}

	id, err := s.insertReturningID(ctx,
		`INSERT INTO parent_proposals (job_id, session_id, person_xref, relationship,
			candidate_name, confidence, status, notes, evidence_ids, contradiction_flags,
			score_components, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING id`,
		p.JobID, p.SessionID, p.PersonXref, string(p.Relationship), nullStr(p.CandidateName),
		p.Confidence, string(p.Status), p.Notes, evidenceJSON, flagsJSON, componentsJSON,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert proposal for %s", p.PersonXref)
	}
	p.ID = id
	return nil
}

func (s *PostgresStore) GetProposal(ctx context.Context, id int64) (*model.ParentProposal, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+proposalColumns+` FROM parent_proposals WHERE id = $1`, id,
	)
	p, err := scanProposal(row)
	if err == errNoRow {
		return nil, eris.Errorf("proposal not found: %d", id)
	}
	return p, err
}

func (s *PostgresStore) UpdateProposal(ctx context.Context, p *model.ParentProposal) error {
	p.UpdatedAt = time.Now().UTC()

	evidenceJSON, flagsJSON, componentsJSON, err := marshalProposalColumns(p)
	if err != nil {
		return err
	}

	tag, err := s.exec(ctx,
		`UPDATE parent_proposals SET candidate_name = $1, confidence = $2, status = $3, notes = $4,
			evidence_ids = $5, contradiction_flags = $6, score_components = $7, updated_at = $8
		 WHERE id = $9`,
		nullStr(p.CandidateName), p.Confidence, string(p.Status), p.Notes,
		evidenceJSON, flagsJSON, componentsJSON, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update proposal %d", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("proposal not found: %d", p.ID)
	}
	return nil
}

func (s *PostgresStore) ListProposals(ctx context.Context, filter ProposalFilter) ([]model.ParentProposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM parent_proposals WHERE true`
	args := []any{}
	argIdx := 1

	if filter.JobID != "" {
		query += fmt.Sprintf(` AND job_id = $%d`, argIdx)
		args = append(args, filter.JobID)
		argIdx++
	}
	if filter.SessionID != "" {
		query += fmt.Sprintf(` AND session_id = $%d`, argIdx)
		args = append(args, filter.SessionID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY person_xref, relationship, id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list proposals")
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
	return proposals, eris.Wrap(rows.Err(), "postgres: list proposals iterate")
}

func (s *PostgresStore) InsertDecision(ctx context.Context, d *model.ProposalDecision) error {
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
	id, err := s.insertReturningID(ctx,
		`INSERT INTO proposal_decisions (proposal_id, action, decided_by, notes, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		d.ProposalID, d.Action, d.DecidedBy, d.Notes, payload, d.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert decision for proposal %d", d.ProposalID)
	}
	d.ID = id
	return nil
}

// Questions

func (s *PostgresStore) InsertQuestion(ctx context.Context, q *model.ResearchQuestion) error {
	now := time.Now().UTC()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	q.UpdatedAt = now
	if q.Status == "" {
		q.Status = model.QuestionStatusPending
	}
	id, err := s.insertReturningID(ctx,
		`INSERT INTO research_questions (job_id, session_id, person_xref, relationship, status,
			question, rationale, answer, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		q.JobID, q.SessionID, q.PersonXref, string(q.Relationship), string(q.Status),
		q.Question, q.Rationale, nullStr(q.Answer), q.CreatedAt, q.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert question for %s", q.PersonXref)
	}
	q.ID = id
	return nil
}

func (s *PostgresStore) FindQuestion(ctx context.Context, jobID, personXref string, relationship model.Relationship, text string) (*model.ResearchQuestion, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+questionColumns+` FROM research_questions
		 WHERE job_id = $1 AND person_xref = $2 AND relationship = $3 AND question = $4`,
		jobID, personXref, string(relationship), text,
	)
	q, err := scanQuestion(row)
	if err == errNoRow {
		return nil, nil
	}
	return q, err
}

func (s *PostgresStore) GetQuestion(ctx context.Context, id int64) (*model.ResearchQuestion, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+questionColumns+` FROM research_questions WHERE id = $1`, id,
	)
	q, err := scanQuestion(row)
	if err == errNoRow {
		return nil, eris.Errorf("question not found: %d", id)
	}
	return q, err
}

func (s *PostgresStore) UpdateQuestion(ctx context.Context, q *model.ResearchQuestion) error {
	q.UpdatedAt = time.Now().UTC()
	tag, err := s.exec(ctx,
		`UPDATE research_questions SET status = $1, answer = $2, updated_at = $3 WHERE id = $4`,
		string(q.Status), nullStr(q.Answer), q.UpdatedAt, q.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update question %d", q.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("question not found: %d", q.ID)
	}
	return nil
}

func (s *PostgresStore) ListJobQuestions(ctx context.Context, jobID string) ([]model.ResearchQuestion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM research_questions WHERE job_id = $1
		 ORDER BY status, person_xref, id`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list job questions")
	}
	defer rows.Close()
	return collectPgxQuestions(rows)
}

func (s *PostgresStore) ListAnsweredQuestions(ctx context.Context, sessionID, personXref string, limit int) ([]model.ResearchQuestion, error) {
	if limit <= 0 {
		limit = 8
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM research_questions
		 WHERE session_id = $1 AND person_xref = $2 AND status = 'answered'
		 ORDER BY updated_at DESC, id DESC LIMIT $3`,
		sessionID, personXref, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list answered questions")
	}
	defer rows.Close()
	return collectPgxQuestions(rows)
}

func collectPgxQuestions(rows pgx.Rows) ([]model.ResearchQuestion, error) {
	var questions []model.ResearchQuestion
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *q)
	}
	return questions, eris.Wrap(rows.Err(), "postgres: questions iterate")
}

// Apply audit

func (s *PostgresStore) InsertAuditEvent(ctx context.Context, e *model.ApplyAuditEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	id, err := s.insertReturningID(ctx,
		`INSERT INTO apply_audit_events (job_id, session_id, proposal_id, child_xref, relationship,
			action, detail, created_person_xref, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		nullStr(e.JobID), e.SessionID, nullInt64(e.ProposalID), e.ChildXref,
		string(e.Relationship), e.Action, e.Detail, nullStr(e.CreatedPersonXref), e.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert audit event for %s", e.ChildXref)
	}
	e.ID = id
	return nil
}

func (s *PostgresStore) ListAuditEvents(ctx context.Context, sessionID string) ([]model.ApplyAuditEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, session_id, proposal_id, child_xref, relationship, action, detail,
			created_person_xref, created_at
		 FROM apply_audit_events WHERE session_id = $1 ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list audit events")
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
	return events, eris.Wrap(rows.Err(), "postgres: list audit events iterate")
}
