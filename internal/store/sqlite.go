package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/intent-core/internal/model"
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
	data_quality    REAL NOT NULL DEFAULT 0,
	merged_into     TEXT,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS domain_records (
	id            TEXT PRIMARY KEY,
	company_id    TEXT NOT NULL REFERENCES companies(id),
	domain        TEXT,
	status        TEXT NOT NULL,
	checked_at    DATETIME NOT NULL,
	superseded_at DATETIME
);

CREATE TABLE IF NOT EXISTS email_patterns (
	id            TEXT PRIMARY KEY,
	company_id    TEXT NOT NULL REFERENCES companies(id),
	template      TEXT NOT NULL,
	source        TEXT NOT NULL,
	confidence    TEXT NOT NULL,
	discovered_at DATETIME NOT NULL,
	superseded_at DATETIME
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
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS slots (
	company_id TEXT NOT NULL REFERENCES companies(id),
	type       TEXT NOT NULL,
	state      TEXT NOT NULL,
	person_id  TEXT,
	rank       INTEGER NOT NULL DEFAULT 0,
	filled_at  DATETIME,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (company_id, type)
);

CREATE TABLE IF NOT EXISTS signals (
	id          TEXT PRIMARY KEY,
	company_id  TEXT NOT NULL,
	kind        TEXT NOT NULL,
	source      TEXT NOT NULL,
	impact      REAL NOT NULL,
	occurred_at DATETIME NOT NULL,
	dedup_key   TEXT NOT NULL UNIQUE,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS intent_scores (
	company_id      TEXT PRIMARY KEY,
	score           REAL NOT NULL,
	tier            TEXT NOT NULL,
	recalculated_at DATETIME NOT NULL,
	contributing    TEXT
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
	filed_at      DATETIME NOT NULL,
	created_at    DATETIME NOT NULL,
	UNIQUE (ein, plan_year)
);

CREATE TABLE IF NOT EXISTS holding_queue (
	id             TEXT PRIMARY KEY,
	kind           TEXT NOT NULL,
	reason         TEXT NOT NULL,
	raw            TEXT NOT NULL,
	detail         TEXT,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 0,
	next_retry_at  DATETIME NOT NULL,
	created_at     DATETIME NOT NULL,
	last_failed_at DATETIME NOT NULL
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

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return eris.Errorf("sqlite: %s %s not found", entity, id)
	}
	return nil
}

// Companies

func (s *SQLiteStore) CreateCompany(ctx context.Context, c *model.CompanyIdentity) error {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	c.DataQuality = c.ComputeDataQuality()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO companies (id, name, normalized_name, domain, pattern, tax_id,
			city, state, region, employee_count, data_quality, merged_into,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.NormalizedName, c.Domain, c.Pattern, c.TaxID,
		c.City, c.State, c.Region, c.EmployeeCount, c.DataQuality, c.MergedInto,
		c.CreatedAt, c.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: insert company")
}

func (s *SQLiteStore) UpdateCompany(ctx context.Context, c *model.CompanyIdentity) error {
	c.UpdatedAt = time.Now().UTC()
	c.DataQuality = c.ComputeDataQuality()

	res, err := s.db.ExecContext(ctx,
		`UPDATE companies SET name = ?, normalized_name = ?, domain = ?, pattern = ?,
			tax_id = ?, city = ?, state = ?, region = ?, employee_count = ?,
			data_quality = ?, merged_into = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, c.NormalizedName, c.Domain, c.Pattern,
		c.TaxID, c.City, c.State, c.Region, c.EmployeeCount,
		c.DataQuality, c.MergedInto, c.UpdatedAt,
		c.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update company %s", c.ID)
	}
	return checkRowsAffected(res, "company", c.ID)
}

const companyColumns = `id, name, normalized_name, domain, pattern, tax_id,
	city, state, region, employee_count, data_quality, merged_into,
	created_at, updated_at`

func (s *SQLiteStore) scanCompany(row *sql.Row) (*model.CompanyIdentity, error) {
	var c model.CompanyIdentity
	var domain, pattern, taxID, city, state, region, mergedInto sql.NullString
	var employeeCount sql.NullInt64
	err := row.Scan(&c.ID, &c.Name, &c.NormalizedName, &domain, &pattern, &taxID,
		&city, &state, &region, &employeeCount, &c.DataQuality, &mergedInto,
		&c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan company")
	}
	c.Domain = domain.String
	c.Pattern = pattern.String
	c.TaxID = taxID.String
	c.City = city.String
	c.State = state.String
	c.Region = region.String
	c.MergedInto = mergedInto.String
	if employeeCount.Valid {
		n := int(employeeCount.Int64)
		c.EmployeeCount = &n
	}
	return &c, nil
}

func (s *SQLiteStore) GetCompany(ctx context.Context, id string) (*model.CompanyIdentity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE id = ?`, id)
	return s.scanCompany(row)
}

func (s *SQLiteStore) GetCompanyByDomain(ctx context.Context, domain string) (*model.CompanyIdentity, error) {
	if domain == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+companyColumns+` FROM companies
		WHERE domain = ? AND (merged_into IS NULL OR merged_into = '')
		ORDER BY created_at LIMIT 1`, domain)
	return s.scanCompany(row)
}

func (s *SQLiteStore) GetCompanyByNormalizedName(ctx context.Context, name string) (*model.CompanyIdentity, error) {
	if name == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+companyColumns+` FROM companies
		WHERE normalized_name = ? AND (merged_into IS NULL OR merged_into = '')
		ORDER BY created_at LIMIT 1`, name)
	return s.scanCompany(row)
}

func (s *SQLiteStore) GetCompanyByTaxID(ctx context.Context, taxID string) (*model.CompanyIdentity, error) {
	if taxID == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+companyColumns+` FROM companies
		WHERE tax_id = ? AND (merged_into IS NULL OR merged_into = '')
		ORDER BY created_at LIMIT 1`, taxID)
	return s.scanCompany(row)
}

func (s *SQLiteStore) ListCompanies(ctx context.Context) ([]model.CompanyIdentity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+companyColumns+` FROM companies ORDER BY created_at`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list companies")
	}
	defer rows.Close()

	var out []model.CompanyIdentity
	for rows.Next() {
		var c model.CompanyIdentity
		var domain, pattern, taxID, city, state, region, mergedInto sql.NullString
		var employeeCount sql.NullInt64
		if err := rows.Scan(&c.ID, &c.Name, &c.NormalizedName, &domain, &pattern, &taxID,
			&city, &state, &region, &employeeCount, &c.DataQuality, &mergedInto,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company row")
		}
		c.Domain = domain.String
		c.Pattern = pattern.String
		c.TaxID = taxID.String
		c.City = city.String
		c.State = state.String
		c.Region = region.String
		c.MergedInto = mergedInto.String
		if employeeCount.Valid {
			n := int(employeeCount.Int64)
			c.EmployeeCount = &n
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate companies")
}

// Domain records

func (s *SQLiteStore) AppendDomainRecord(ctx context.Context, r *model.DomainRecord) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin domain append")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE domain_records SET superseded_at = ?
		WHERE company_id = ? AND superseded_at IS NULL`,
		now, r.CompanyID,
	); err != nil {
		return eris.Wrap(err, "sqlite: supersede domain records")
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO domain_records (id, company_id, domain, status, checked_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.CompanyID, r.Domain, string(r.Status), r.CheckedAt,
	); err != nil {
		return eris.Wrap(err, "sqlite: insert domain record")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit domain append")
}

func (s *SQLiteStore) CurrentDomainRecord(ctx context.Context, companyID string) (*model.DomainRecord, error) {
	var r model.DomainRecord
	var domain sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, company_id, domain, status, checked_at FROM domain_records
		WHERE company_id = ? AND superseded_at IS NULL`, companyID,
	).Scan(&r.ID, &r.CompanyID, &domain, &r.Status, &r.CheckedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: current domain record")
	}
	r.Domain = domain.String
	return &r, nil
}

// Email patterns

func (s *SQLiteStore) AppendEmailPattern(ctx context.Context, p *model.EmailPattern) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin pattern append")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE email_patterns SET superseded_at = ?
		WHERE company_id = ? AND superseded_at IS NULL`,
		now, p.CompanyID,
	); err != nil {
		return eris.Wrap(err, "sqlite: supersede patterns")
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO email_patterns (id, company_id, template, source, confidence, discovered_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.CompanyID, p.Template, p.Source, string(p.Confidence), p.DiscoveredAt,
	); err != nil {
		return eris.Wrap(err, "sqlite: insert pattern")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit pattern append")
}

func (s *SQLiteStore) CurrentEmailPattern(ctx context.Context, companyID string) (*model.EmailPattern, error) {
	var p model.EmailPattern
	err := s.db.QueryRowContext(ctx,
		`SELECT id, company_id, template, source, confidence, discovered_at
		FROM email_patterns WHERE company_id = ? AND superseded_at IS NULL`, companyID,
	).Scan(&p.ID, &p.CompanyID, &p.Template, &p.Source, &p.Confidence, &p.DiscoveredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: current pattern")
	}
	return &p, nil
}

// People

func (s *SQLiteStore) UpsertPerson(ctx context.Context, p *model.PersonRecord) error {
	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO people (id, company_id, first_name, last_name, full_name, title,
			seniority_rank, slot, email, email_confidence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			company_id = excluded.company_id,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			full_name = excluded.full_name,
			title = excluded.title,
			seniority_rank = excluded.seniority_rank,
			slot = excluded.slot,
			email = excluded.email,
			email_confidence = excluded.email_confidence,
			updated_at = excluded.updated_at`,
		p.ID, p.CompanyID, p.FirstName, p.LastName, p.FullName, p.Title,
		p.SeniorityRank, string(p.Slot), p.Email, string(p.EmailConfidence),
		p.CreatedAt, p.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert person %s", p.ID)
}

const personColumns = `id, company_id, first_name, last_name, full_name, title,
	seniority_rank, slot, email, email_confidence, created_at, updated_at`

func scanPerson(scan func(dest ...any) error) (*model.PersonRecord, error) {
	var p model.PersonRecord
	var first, last, title, slot, email, conf sql.NullString
	err := scan(&p.ID, &p.CompanyID, &first, &last, &p.FullName, &title,
		&p.SeniorityRank, &slot, &email, &conf, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.FirstName = first.String
	p.LastName = last.String
	p.Title = title.String
	p.Slot = model.SlotType(slot.String)
	p.Email = email.String
	p.EmailConfidence = model.ConfidenceTier(conf.String)
	return &p, nil
}

func (s *SQLiteStore) GetPerson(ctx context.Context, id string) (*model.PersonRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM people WHERE id = ?`, id)
	p, err := scanPerson(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get person")
	}
	return p, nil
}

func (s *SQLiteStore) ListPeopleByCompany(ctx context.Context, companyID string) ([]model.PersonRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+personColumns+` FROM people WHERE company_id = ? ORDER BY created_at`, companyID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list people")
	}
	defer rows.Close()

	var out []model.PersonRecord
	for rows.Next() {
		p, err := scanPerson(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan person row")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate people")
}

// Slots

func (s *SQLiteStore) GetSlot(ctx context.Context, companyID string, typ model.SlotType) (*model.Slot, error) {
	var sl model.Slot
	var personID sql.NullString
	var filledAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT company_id, type, state, person_id, rank, filled_at, updated_at
		FROM slots WHERE company_id = ? AND type = ?`, companyID, string(typ),
	).Scan(&sl.CompanyID, &sl.Type, &sl.State, &personID, &sl.Rank, &filledAt, &sl.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get slot")
	}
	sl.PersonID = personID.String
	if filledAt.Valid {
		t := filledAt.Time
		sl.FilledAt = &t
	}
	return &sl, nil
}

func (s *SQLiteStore) SaveSlot(ctx context.Context, sl *model.Slot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO slots (company_id, type, state, person_id, rank, filled_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(company_id, type) DO UPDATE SET
			state = excluded.state,
			person_id = excluded.person_id,
			rank = excluded.rank,
			filled_at = excluded.filled_at,
			updated_at = excluded.updated_at`,
		sl.CompanyID, string(sl.Type), string(sl.State), sl.PersonID, sl.Rank,
		sl.FilledAt, sl.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: save slot %s/%s", sl.CompanyID, sl.Type)
}

func (s *SQLiteStore) ListSlots(ctx context.Context, companyID string) ([]model.Slot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT company_id, type, state, person_id, rank, filled_at, updated_at
		FROM slots WHERE company_id = ?`, companyID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list slots")
	}
	defer rows.Close()

	var out []model.Slot
	for rows.Next() {
		var sl model.Slot
		var personID sql.NullString
		var filledAt sql.NullTime
		if err := rows.Scan(&sl.CompanyID, &sl.Type, &sl.State, &personID, &sl.Rank,
			&filledAt, &sl.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan slot row")
		}
		sl.PersonID = personID.String
		if filledAt.Valid {
			t := filledAt.Time
			sl.FilledAt = &t
		}
		out = append(out, sl)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate slots")
}

// Signals

func (s *SQLiteStore) AppendSignal(ctx context.Context, sig *model.Signal) (bool, error) {
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO signals (id, company_id, kind, source, impact, occurred_at, dedup_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dedup_key) DO NOTHING`,
		sig.ID, sig.CompanyID, string(sig.Kind), sig.Source, sig.Impact,
		sig.OccurredAt, sig.DedupKey, sig.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert signal")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: signal rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListSignals(ctx context.Context, companyID string) ([]model.Signal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_id, kind, source, impact, occurred_at, dedup_key, created_at
		FROM signals WHERE company_id = ? ORDER BY occurred_at`, companyID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list signals")
	}
	defer rows.Close()

	var out []model.Signal
	for rows.Next() {
		var sig model.Signal
		if err := rows.Scan(&sig.ID, &sig.CompanyID, &sig.Kind, &sig.Source,
			&sig.Impact, &sig.OccurredAt, &sig.DedupKey, &sig.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan signal row")
		}
		out = append(out, sig)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate signals")
}

// Intent scores

func (s *SQLiteStore) SaveScore(ctx context.Context, score *model.IntentScore) error {
	contributing, err := json.Marshal(score.Contributing)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal contributions")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO intent_scores (company_id, score, tier, recalculated_at, contributing)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(company_id) DO UPDATE SET
			score = excluded.score,
			tier = excluded.tier,
			recalculated_at = excluded.recalculated_at,
			contributing = excluded.contributing`,
		score.CompanyID, score.Score, string(score.Tier), score.RecalculatedAt,
		string(contributing),
	)
	return eris.Wrapf(err, "sqlite: save score %s", score.CompanyID)
}

func (s *SQLiteStore) GetScore(ctx context.Context, companyID string) (*model.IntentScore, error) {
	var score model.IntentScore
	var contributing sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT company_id, score, tier, recalculated_at, contributing
		FROM intent_scores WHERE company_id = ?`, companyID,
	).Scan(&score.CompanyID, &score.Score, &score.Tier, &score.RecalculatedAt, &contributing)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get score")
	}
	if contributing.Valid && contributing.String != "" {
		if err := json.Unmarshal([]byte(contributing.String), &score.Contributing); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal contributions")
		}
	}
	return &score, nil
}

func (s *SQLiteStore) ListScores(ctx context.Context, filter ScoreFilter) ([]model.IntentScore, error) {
	query := `SELECT company_id, score, tier, recalculated_at, contributing FROM intent_scores`
	var conds []string
	var args []any
	if filter.Tier != "" {
		conds = append(conds, "tier = ?")
		args = append(args, string(filter.Tier))
	}
	if filter.MinScore > 0 {
		conds = append(conds, "score >= ?")
		args = append(args, filter.MinScore)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY score DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list scores")
	}
	defer rows.Close()

	var out []model.IntentScore
	for rows.Next() {
		var score model.IntentScore
		var contributing sql.NullString
		if err := rows.Scan(&score.CompanyID, &score.Score, &score.Tier,
			&score.RecalculatedAt, &contributing); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan score row")
		}
		if contributing.Valid && contributing.String != "" {
			if err := json.Unmarshal([]byte(contributing.String), &score.Contributing); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal contributions")
			}
		}
		out = append(out, score)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate scores")
}

// Filings

func (s *SQLiteStore) UpsertFiling(ctx context.Context, f *model.Filing) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO filings (id, ein, sponsor_name, sponsor_city, sponsor_state,
			plan_name, participants, broker_name, plan_year, filed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ein, plan_year) DO UPDATE SET
			sponsor_name = excluded.sponsor_name,
			sponsor_city = excluded.sponsor_city,
			sponsor_state = excluded.sponsor_state,
			plan_name = excluded.plan_name,
			participants = excluded.participants,
			broker_name = excluded.broker_name,
			filed_at = excluded.filed_at`,
		f.ID, f.EIN, f.SponsorName, f.SponsorCity, f.SponsorState,
		f.PlanName, f.Participants, f.BrokerName, f.PlanYear, f.FiledAt, f.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert filing %s/%d", f.EIN, f.PlanYear)
}

func (s *SQLiteStore) GetFilingsByEIN(ctx context.Context, ein string) ([]model.Filing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ein, sponsor_name, sponsor_city, sponsor_state, plan_name,
			participants, broker_name, plan_year, filed_at, created_at
		FROM filings WHERE ein = ? ORDER BY plan_year DESC`, ein)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: filings by ein")
	}
	defer rows.Close()

	var out []model.Filing
	for rows.Next() {
		var f model.Filing
		var city, state, plan, broker sql.NullString
		if err := rows.Scan(&f.ID, &f.EIN, &f.SponsorName, &city, &state, &plan,
			&f.Participants, &broker, &f.PlanYear, &f.FiledAt, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan filing row")
		}
		f.SponsorCity = city.String
		f.SponsorState = state.String
		f.PlanName = plan.String
		f.BrokerName = broker.String
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate filings")
}

// Holding queue

func (s *SQLiteStore) EnqueueHolding(ctx context.Context, e *model.HoldingEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO holding_queue (id, kind, reason, raw, detail, retry_count,
			max_retries, next_retry_at, created_at, last_failed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), string(e.Reason), string(e.Raw), e.Detail,
		e.RetryCount, e.MaxRetries, e.NextRetryAt, e.CreatedAt, e.LastFailedAt,
	)
	return eris.Wrap(err, "sqlite: enqueue holding")
}

func (s *SQLiteStore) UpdateHolding(ctx context.Context, e *model.HoldingEntry) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE holding_queue SET retry_count = ?, next_retry_at = ?, last_failed_at = ?
		WHERE id = ?`,
		e.RetryCount, e.NextRetryAt, e.LastFailedAt, e.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update holding %s", e.ID)
	}
	return checkRowsAffected(res, "holding entry", e.ID)
}

func (s *SQLiteStore) GetHolding(ctx context.Context, id string) (*model.HoldingEntry, error) {
	var e model.HoldingEntry
	var raw string
	var detail sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, kind, reason, raw, detail, retry_count, max_retries,
			next_retry_at, created_at, last_failed_at
		FROM holding_queue WHERE id = ?`, id,
	).Scan(&e.ID, &e.Kind, &e.Reason, &raw, &detail, &e.RetryCount, &e.MaxRetries,
		&e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get holding")
	}
	e.Raw = []byte(raw)
	e.Detail = detail.String
	return &e, nil
}

func (s *SQLiteStore) ListHolding(ctx context.Context, filter HoldingFilter) ([]model.HoldingEntry, error) {
	query := `SELECT id, kind, reason, raw, detail, retry_count, max_retries,
		next_retry_at, created_at, last_failed_at FROM holding_queue`
	var conds []string
	var args []any
	if filter.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.Reason != "" {
		conds = append(conds, "reason = ?")
		args = append(args, string(filter.Reason))
	}
	if !filter.DueBefore.IsZero() {
		conds = append(conds, "next_retry_at <= ? AND retry_count < max_retries")
		args = append(args, filter.DueBefore)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY next_retry_at"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list holding")
	}
	defer rows.Close()

	var out []model.HoldingEntry
	for rows.Next() {
		var e model.HoldingEntry
		var raw string
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.Kind, &e.Reason, &raw, &detail, &e.RetryCount,
			&e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan holding row")
		}
		e.Raw = []byte(raw)
		e.Detail = detail.String
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate holding")
}

func (s *SQLiteStore) DeleteHolding(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM holding_queue WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete holding %s", id)
	}
	return checkRowsAffected(res, "holding entry", id)
}
