package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/intent-core/internal/db"
	"github.com/sells-group/intent-core/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
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
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool exposes the underlying pool for bulk filing ingest.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	normalized_name TEXT NOT NULL,
	domain          TEXT,
	pattern         TEXT,
	tax_id          TEXT,
	city            TEXT,
	state           TEXT,
	region          TEXT,
	employee_count  INTEGER,
	data_quality    DOUBLE PRECISION NOT NULL DEFAULT 0,
	merged_into     TEXT,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS domain_records (
	id            TEXT PRIMARY KEY,
	company_id    TEXT NOT NULL REFERENCES companies(id),
	domain        TEXT,
	status        TEXT NOT NULL,
	checked_at    TIMESTAMPTZ NOT NULL,
	superseded_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS email_patterns (
	id            TEXT PRIMARY KEY,
	company_id    TEXT NOT NULL REFERENCES companies(id),
	template      TEXT NOT NULL,
	source        TEXT NOT NULL,
	confidence    TEXT NOT NULL,
	discovered_at TIMESTAMPTZ NOT NULL,
	superseded_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS people (
	id               TEXT PRIMARY KEY,
	company_id       TEXT NOT NULL REFERENCES companies(id),
	first_name       TEXT,
	last_name        TEXT,
	full_name        TEXT NOT NULL,
	title            TEXT,
	seniority_rank   INTEGER NOT NULL DEFAULT 0,
	slot             TEXT,
	email            TEXT,
	email_confidence TEXT,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS slots (
	company_id TEXT NOT NULL REFERENCES companies(id),
	type       TEXT NOT NULL,
	state      TEXT NOT NULL,
	person_id  TEXT,
	rank       INTEGER NOT NULL DEFAULT 0,
	filled_at  TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (company_id, type)
);

CREATE TABLE IF NOT EXISTS signals (
	id          TEXT PRIMARY KEY,
	company_id  TEXT NOT NULL,
	kind        TEXT NOT NULL,
	source      TEXT NOT NULL,
	impact      DOUBLE PRECISION NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	dedup_key   TEXT NOT NULL UNIQUE,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS intent_scores (
	company_id      TEXT PRIMARY KEY,
	score           DOUBLE PRECISION NOT NULL,
	tier            TEXT NOT NULL,
	recalculated_at TIMESTAMPTZ NOT NULL,
	contributing    JSONB
);

CREATE TABLE IF NOT EXISTS filings (
	id            TEXT PRIMARY KEY,
	ein           TEXT NOT NULL,
	sponsor_name  TEXT NOT NULL,
	sponsor_city  TEXT,
	sponsor_state TEXT,
	plan_name     TEXT,
	participants  INTEGER NOT NULL DEFAULT 0,
	broker_name   TEXT,
	plan_year     INTEGER NOT NULL,
	filed_at      TIMESTAMPTZ NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	UNIQUE (ein, plan_year)
);

CREATE TABLE IF NOT EXISTS holding_queue (
	id             TEXT PRIMARY KEY,
	kind           TEXT NOT NULL,
	reason         TEXT NOT NULL,
	raw            JSONB NOT NULL,
	detail         TEXT,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 0,
	next_retry_at  TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	last_failed_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_companies_normalized_name
	ON companies(normalized_name) WHERE merged_into IS NULL OR merged_into = '';
CREATE INDEX IF NOT EXISTS idx_companies_domain ON companies(domain);
CREATE INDEX IF NOT EXISTS idx_companies_tax_id ON companies(tax_id);
CREATE INDEX IF NOT EXISTS idx_domain_records_current
	ON domain_records(company_id) WHERE superseded_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_email_patterns_current
	ON email_patterns(company_id) WHERE superseded_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_people_company ON people(company_id);
CREATE INDEX IF NOT EXISTS idx_signals_company ON signals(company_id);
CREATE INDEX IF NOT EXISTS idx_filings_ein ON filings(ein);
CREATE INDEX IF NOT EXISTS idx_holding_next_retry ON holding_queue(next_retry_at);
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

func checkTagAffected(tag pgconn.CommandTag, entity, id string) error {
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: %s %s not found", entity, id)
	}
	return nil
}

// Companies

const pgCompanyColumns = `id, name, normalized_name, domain, pattern, tax_id,
	city, state, region, employee_count, data_quality, merged_into,
	created_at, updated_at`

func (s *PostgresStore) CreateCompany(ctx context.Context, c *model.CompanyIdentity) error {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	c.DataQuality = c.ComputeDataQuality()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO companies (`+pgCompanyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		c.ID, c.Name, c.NormalizedName, c.Domain, c.Pattern, c.TaxID,
		c.City, c.State, c.Region, c.EmployeeCount, c.DataQuality, c.MergedInto,
		c.CreatedAt, c.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: insert company")
}

func (s *PostgresStore) UpdateCompany(ctx context.Context, c *model.CompanyIdentity) error {
	c.UpdatedAt = time.Now().UTC()
	c.DataQuality = c.ComputeDataQuality()

	tag, err := s.pool.Exec(ctx,
		`UPDATE companies SET name = $1, normalized_name = $2, domain = $3,
			pattern = $4, tax_id = $5, city = $6, state = $7, region = $8,
			employee_count = $9, data_quality = $10, merged_into = $11,
			updated_at = $12
		WHERE id = $13`,
		c.Name, c.NormalizedName, c.Domain, c.Pattern, c.TaxID, c.City, c.State,
		c.Region, c.EmployeeCount, c.DataQuality, c.MergedInto, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update company %s", c.ID)
	}
	return checkTagAffected(tag, "company", c.ID)
}

func scanPGCompany(row pgx.Row) (*model.CompanyIdentity, error) {
	var c model.CompanyIdentity
	var domain, pattern, taxID, city, state, region, mergedInto *string
	var employeeCount *int
	err := row.Scan(&c.ID, &c.Name, &c.NormalizedName, &domain, &pattern, &taxID,
		&city, &state, &region, &employeeCount, &c.DataQuality, &mergedInto,
		&c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan company")
	}
	assignString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	assignString(&c.Domain, domain)
	assignString(&c.Pattern, pattern)
	assignString(&c.TaxID, taxID)
	assignString(&c.City, city)
	assignString(&c.State, state)
	assignString(&c.Region, region)
	assignString(&c.MergedInto, mergedInto)
	c.EmployeeCount = employeeCount
	return &c, nil
}

func (s *PostgresStore) GetCompany(ctx context.Context, id string) (*model.CompanyIdentity, error) {
	return scanPGCompany(s.pool.QueryRow(ctx,
		`SELECT `+pgCompanyColumns+` FROM companies WHERE id = $1`, id))
}

func (s *PostgresStore) GetCompanyByDomain(ctx context.Context, domain string) (*model.CompanyIdentity, error) {
	if domain == "" {
		return nil, nil
	}
	return scanPGCompany(s.pool.QueryRow(ctx,
		`SELECT `+pgCompanyColumns+` FROM companies
		WHERE domain = $1 AND (merged_into IS NULL OR merged_into = '')
		ORDER BY created_at LIMIT 1`, domain))
}

func (s *PostgresStore) GetCompanyByNormalizedName(ctx context.Context, name string) (*model.CompanyIdentity, error) {
	if name == "" {
		return nil, nil
	}
	return scanPGCompany(s.pool.QueryRow(ctx,
		`SELECT `+pgCompanyColumns+` FROM companies
		WHERE normalized_name = $1 AND (merged_into IS NULL OR merged_into = '')
		ORDER BY created_at LIMIT 1`, name))
}

func (s *PostgresStore) GetCompanyByTaxID(ctx context.Context, taxID string) (*model.CompanyIdentity, error) {
	if taxID == "" {
		return nil, nil
	}
	return scanPGCompany(s.pool.QueryRow(ctx,
		`SELECT `+pgCompanyColumns+` FROM companies
		WHERE tax_id = $1 AND (merged_into IS NULL OR merged_into = '')
		ORDER BY created_at LIMIT 1`, taxID))
}

func (s *PostgresStore) ListCompanies(ctx context.Context) ([]model.CompanyIdentity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgCompanyColumns+` FROM companies ORDER BY created_at`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list companies")
	}
	defer rows.Close()

	var out []model.CompanyIdentity
	for rows.Next() {
		c, err := scanPGCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate companies")
}

// Domain records

func (s *PostgresStore) AppendDomainRecord(ctx context.Context, r *model.DomainRecord) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin domain append")
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx,
		`UPDATE domain_records SET superseded_at = $1
		WHERE company_id = $2 AND superseded_at IS NULL`,
		now, r.CompanyID,
	); err != nil {
		return eris.Wrap(err, "postgres: supersede domain records")
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO domain_records (id, company_id, domain, status, checked_at)
		VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.CompanyID, r.Domain, string(r.Status), r.CheckedAt,
	); err != nil {
		return eris.Wrap(err, "postgres: insert domain record")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit domain append")
}

func (s *PostgresStore) CurrentDomainRecord(ctx context.Context, companyID string) (*model.DomainRecord, error) {
	var r model.DomainRecord
	var domain *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, company_id, domain, status, checked_at FROM domain_records
		WHERE company_id = $1 AND superseded_at IS NULL`, companyID,
	).Scan(&r.ID, &r.CompanyID, &domain, &r.Status, &r.CheckedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: current domain record")
	}
	if domain != nil {
		r.Domain = *domain
	}
	return &r, nil
}

// Email patterns

func (s *PostgresStore) AppendEmailPattern(ctx context.Context, p *model.EmailPattern) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin pattern append")
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx,
		`UPDATE email_patterns SET superseded_at = $1
		WHERE company_id = $2 AND superseded_at IS NULL`,
		now, p.CompanyID,
	); err != nil {
		return eris.Wrap(err, "postgres: supersede patterns")
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO email_patterns (id, company_id, template, source, confidence, discovered_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.CompanyID, p.Template, p.Source, string(p.Confidence), p.DiscoveredAt,
	); err != nil {
		return eris.Wrap(err, "postgres: insert pattern")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit pattern append")
}

func (s *PostgresStore) CurrentEmailPattern(ctx context.Context, companyID string) (*model.EmailPattern, error) {
	var p model.EmailPattern
	err := s.pool.QueryRow(ctx,
		`SELECT id, company_id, template, source, confidence, discovered_at
		FROM email_patterns WHERE company_id = $1 AND superseded_at IS NULL`, companyID,
	).Scan(&p.ID, &p.CompanyID, &p.Template, &p.Source, &p.Confidence, &p.DiscoveredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: current pattern")
	}
	return &p, nil
}

// People

func (s *PostgresStore) UpsertPerson(ctx context.Context, p *model.PersonRecord) error {
	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO people (id, company_id, first_name, last_name, full_name, title,
			seniority_rank, slot, email, email_confidence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			company_id = EXCLUDED.company_id,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			full_name = EXCLUDED.full_name,
			title = EXCLUDED.title,
			seniority_rank = EXCLUDED.seniority_rank,
			slot = EXCLUDED.slot,
			email = EXCLUDED.email,
			email_confidence = EXCLUDED.email_confidence,
			updated_at = EXCLUDED.updated_at`,
		p.ID, p.CompanyID, p.FirstName, p.LastName, p.FullName, p.Title,
		p.SeniorityRank, string(p.Slot), p.Email, string(p.EmailConfidence),
		p.CreatedAt, p.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert person %s", p.ID)
}

const pgPersonColumns = `id, company_id, first_name, last_name, full_name, title,
	seniority_rank, slot, email, email_confidence, created_at, updated_at`

func scanPGPerson(row pgx.Row) (*model.PersonRecord, error) {
	var p model.PersonRecord
	var first, last, title, slot, email, conf *string
	err := row.Scan(&p.ID, &p.CompanyID, &first, &last, &p.FullName, &title,
		&p.SeniorityRank, &slot, &email, &conf, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if first != nil {
		p.FirstName = *first
	}
	if last != nil {
		p.LastName = *last
	}
	if title != nil {
		p.Title = *title
	}
	if slot != nil {
		p.Slot = model.SlotType(*slot)
	}
	if email != nil {
		p.Email = *email
	}
	if conf != nil {
		p.EmailConfidence = model.ConfidenceTier(*conf)
	}
	return &p, nil
}

func (s *PostgresStore) GetPerson(ctx context.Context, id string) (*model.PersonRecord, error) {
	p, err := scanPGPerson(s.pool.QueryRow(ctx,
		`SELECT `+pgPersonColumns+` FROM people WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get person")
	}
	return p, nil
}

func (s *PostgresStore) ListPeopleByCompany(ctx context.Context, companyID string) ([]model.PersonRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgPersonColumns+` FROM people WHERE company_id = $1 ORDER BY created_at`, companyID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list people")
	}
	defer rows.Close()

	var out []model.PersonRecord
	for rows.Next() {
		p, err := scanPGPerson(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan person row")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate people")
}

// Slots

func (s *PostgresStore) GetSlot(ctx context.Context, companyID string, typ model.SlotType) (*model.Slot, error) {
	var sl model.Slot
	var personID *string
	err := s.pool.QueryRow(ctx,
		`SELECT company_id, type, state, person_id, rank, filled_at, updated_at
		FROM slots WHERE company_id = $1 AND type = $2`, companyID, string(typ),
	).Scan(&sl.CompanyID, &sl.Type, &sl.State, &personID, &sl.Rank, &sl.FilledAt, &sl.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get slot")
	}
	if personID != nil {
		sl.PersonID = *personID
	}
	return &sl, nil
}

func (s *PostgresStore) SaveSlot(ctx context.Context, sl *model.Slot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO slots (company_id, type, state, person_id, rank, filled_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (company_id, type) DO UPDATE SET
			state = EXCLUDED.state,
			person_id = EXCLUDED.person_id,
			rank = EXCLUDED.rank,
			filled_at = EXCLUDED.filled_at,
			updated_at = EXCLUDED.updated_at`,
		sl.CompanyID, string(sl.Type), string(sl.State), sl.PersonID, sl.Rank,
		sl.FilledAt, sl.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: save slot %s/%s", sl.CompanyID, sl.Type)
}

func (s *PostgresStore) ListSlots(ctx context.Context, companyID string) ([]model.Slot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT company_id, type, state, person_id, rank, filled_at, updated_at
		FROM slots WHERE company_id = $1`, companyID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list slots")
	}
	defer rows.Close()

	var out []model.Slot
	for rows.Next() {
		var sl model.Slot
		var personID *string
		if err := rows.Scan(&sl.CompanyID, &sl.Type, &sl.State, &personID, &sl.Rank,
			&sl.FilledAt, &sl.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan slot row")
		}
		if personID != nil {
			sl.PersonID = *personID
		}
		out = append(out, sl)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate slots")
}

// Signals

func (s *PostgresStore) AppendSignal(ctx context.Context, sig *model.Signal) (bool, error) {
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO signals (id, company_id, kind, source, impact, occurred_at, dedup_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (dedup_key) DO NOTHING`,
		sig.ID, sig.CompanyID, string(sig.Kind), sig.Source, sig.Impact,
		sig.OccurredAt, sig.DedupKey, sig.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: insert signal")
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListSignals(ctx context.Context, companyID string) ([]model.Signal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, company_id, kind, source, impact, occurred_at, dedup_key, created_at
		FROM signals WHERE company_id = $1 ORDER BY occurred_at`, companyID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list signals")
	}
	defer rows.Close()

	var out []model.Signal
	for rows.Next() {
		var sig model.Signal
		if err := rows.Scan(&sig.ID, &sig.CompanyID, &sig.Kind, &sig.Source,
			&sig.Impact, &sig.OccurredAt, &sig.DedupKey, &sig.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan signal row")
		}
		out = append(out, sig)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate signals")
}

// Intent scores

func (s *PostgresStore) SaveScore(ctx context.Context, score *model.IntentScore) error {
	contributing, err := json.Marshal(score.Contributing)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal contributions")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO intent_scores (company_id, score, tier, recalculated_at, contributing)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (company_id) DO UPDATE SET
			score = EXCLUDED.score,
			tier = EXCLUDED.tier,
			recalculated_at = EXCLUDED.recalculated_at,
			contributing = EXCLUDED.contributing`,
		score.CompanyID, score.Score, string(score.Tier), score.RecalculatedAt,
		contributing,
	)
	return eris.Wrapf(err, "postgres: save score %s", score.CompanyID)
}

func (s *PostgresStore) GetScore(ctx context.Context, companyID string) (*model.IntentScore, error) {
	var score model.IntentScore
	var contributing []byte
	err := s.pool.QueryRow(ctx,
		`SELECT company_id, score, tier, recalculated_at, contributing
		FROM intent_scores WHERE company_id = $1`, companyID,
	).Scan(&score.CompanyID, &score.Score, &score.Tier, &score.RecalculatedAt, &contributing)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get score")
	}
	if len(contributing) > 0 {
		if err := json.Unmarshal(contributing, &score.Contributing); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal contributions")
		}
	}
	return &score, nil
}

func (s *PostgresStore) ListScores(ctx context.Context, filter ScoreFilter) ([]model.IntentScore, error) {
	query := `SELECT company_id, score, tier, recalculated_at, contributing FROM intent_scores`
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.Tier != "" {
		conds = append(conds, "tier = "+arg(string(filter.Tier)))
	}
	if filter.MinScore > 0 {
		conds = append(conds, "score >= "+arg(filter.MinScore))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY score DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET " + arg(filter.Offset)
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list scores")
	}
	defer rows.Close()

	var out []model.IntentScore
	for rows.Next() {
		var score model.IntentScore
		var contributing []byte
		if err := rows.Scan(&score.CompanyID, &score.Score, &score.Tier,
			&score.RecalculatedAt, &contributing); err != nil {
			return nil, eris.Wrap(err, "postgres: scan score row")
		}
		if len(contributing) > 0 {
			if err := json.Unmarshal(contributing, &score.Contributing); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal contributions")
			}
		}
		out = append(out, score)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate scores")
}

// Filings

func (s *PostgresStore) UpsertFiling(ctx context.Context, f *model.Filing) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO filings (id, ein, sponsor_name, sponsor_city, sponsor_state,
			plan_name, participants, broker_name, plan_year, filed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (ein, plan_year) DO UPDATE SET
			sponsor_name = EXCLUDED.sponsor_name,
			sponsor_city = EXCLUDED.sponsor_city,
			sponsor_state = EXCLUDED.sponsor_state,
			plan_name = EXCLUDED.plan_name,
			participants = EXCLUDED.participants,
			broker_name = EXCLUDED.broker_name,
			filed_at = EXCLUDED.filed_at`,
		f.ID, f.EIN, f.SponsorName, f.SponsorCity, f.SponsorState,
		f.PlanName, f.Participants, f.BrokerName, f.PlanYear, f.FiledAt, f.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert filing %s/%d", f.EIN, f.PlanYear)
}

func (s *PostgresStore) GetFilingsByEIN(ctx context.Context, ein string) ([]model.Filing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, ein, sponsor_name, sponsor_city, sponsor_state, plan_name,
			participants, broker_name, plan_year, filed_at, created_at
		FROM filings WHERE ein = $1 ORDER BY plan_year DESC`, ein)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: filings by ein")
	}
	defer rows.Close()

	var out []model.Filing
	for rows.Next() {
		var f model.Filing
		var city, state, plan, broker *string
		if err := rows.Scan(&f.ID, &f.EIN, &f.SponsorName, &city, &state, &plan,
			&f.Participants, &broker, &f.PlanYear, &f.FiledAt, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan filing row")
		}
		if city != nil {
			f.SponsorCity = *city
		}
		if state != nil {
			f.SponsorState = *state
		}
		if plan != nil {
			f.PlanName = *plan
		}
		if broker != nil {
			f.BrokerName = *broker
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate filings")
}

// Holding queue

func (s *PostgresStore) EnqueueHolding(ctx context.Context, e *model.HoldingEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO holding_queue (id, kind, reason, raw, detail, retry_count,
			max_retries, next_retry_at, created_at, last_failed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, string(e.Kind), string(e.Reason), e.Raw, e.Detail,
		e.RetryCount, e.MaxRetries, e.NextRetryAt, e.CreatedAt, e.LastFailedAt,
	)
	return eris.Wrap(err, "postgres: enqueue holding")
}

func (s *PostgresStore) UpdateHolding(ctx context.Context, e *model.HoldingEntry) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE holding_queue SET retry_count = $1, next_retry_at = $2, last_failed_at = $3
		WHERE id = $4`,
		e.RetryCount, e.NextRetryAt, e.LastFailedAt, e.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update holding %s", e.ID)
	}
	return checkTagAffected(tag, "holding entry", e.ID)
}

func (s *PostgresStore) GetHolding(ctx context.Context, id string) (*model.HoldingEntry, error) {
	var e model.HoldingEntry
	var detail *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, kind, reason, raw, detail, retry_count, max_retries,
			next_retry_at, created_at, last_failed_at
		FROM holding_queue WHERE id = $1`, id,
	).Scan(&e.ID, &e.Kind, &e.Reason, &e.Raw, &detail, &e.RetryCount, &e.MaxRetries,
		&e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get holding")
	}
	if detail != nil {
		e.Detail = *detail
	}
	return &e, nil
}

func (s *PostgresStore) ListHolding(ctx context.Context, filter HoldingFilter) ([]model.HoldingEntry, error) {
	query := `SELECT id, kind, reason, raw, detail, retry_count, max_retries,
		next_retry_at, created_at, last_failed_at FROM holding_queue`
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.Kind != "" {
		conds = append(conds, "kind = "+arg(string(filter.Kind)))
	}
	if filter.Reason != "" {
		conds = append(conds, "reason = "+arg(string(filter.Reason)))
	}
	if !filter.DueBefore.IsZero() {
		conds = append(conds, "next_retry_at <= "+arg(filter.DueBefore)+" AND retry_count < max_retries")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY next_retry_at"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list holding")
	}
	defer rows.Close()

	var out []model.HoldingEntry
	for rows.Next() {
		var e model.HoldingEntry
		var detail *string
		if err := rows.Scan(&e.ID, &e.Kind, &e.Reason, &e.Raw, &detail, &e.RetryCount,
			&e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan holding row")
		}
		if detail != nil {
			e.Detail = *detail
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate holding")
}

func (s *PostgresStore) DeleteHolding(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM holding_queue WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete holding %s", id)
	}
	return checkTagAffected(tag, "holding entry", id)
}

