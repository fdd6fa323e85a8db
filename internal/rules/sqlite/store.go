// Package sqlite persists rule packs in a SQLite database so the reference
// tables can be versioned and edited outside the binary.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/rezonia/nfe-auditor/internal/rules"
)

//go:embed schema.sql
var schemaSQL string

// Store provides durable storage for the fiscal reference tables.
// Lookups never hit the database: Load builds an immutable rules.Snapshot.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open creates or opens a SQLite database at the given path and applies the schema.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Version returns the stored pack version, empty when the database was never seeded.
func (s *Store) Version(ctx context.Context) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = 'version'").Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read version: %w", err)
	}
	return v, nil
}

// Seed replaces every table with the content of the pack in one transaction.
func (s *Store) Seed(ctx context.Context, p *rules.Pack) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{
		"state_ncm_overrides", "state_rules", "pis_cofins_rates", "pis_cofins_rules",
		"consistency_rules", "ncm_rules", "cfop_rules", "legal_references", "metadata",
	} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "INSERT INTO metadata (key, value) VALUES ('version', ?)", p.Version); err != nil {
		return fmt.Errorf("insert version: %w", err)
	}

	for _, n := range p.Ncm {
		keywords, err := json.Marshal(n.Keywords)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO ncm_rules (code, description, category, sugar, keywords) VALUES (?, ?, ?, ?, ?)",
			n.Code, n.Description, n.Category, n.Sugar, string(keywords)); err != nil {
			return fmt.Errorf("insert ncm %s: %w", n.Code, err)
		}
	}

	for _, c := range p.PisCofins {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO pis_cofins_rules (cst, description, situation) VALUES (?, ?, ?)",
			c.CST, c.Description, c.Situation); err != nil {
			return fmt.Errorf("insert cst %s: %w", c.CST, err)
		}
		for regime, r := range c.Rates {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO pis_cofins_rates (cst, regime, pis_rate, cofins_rate) VALUES (?, ?, ?, ?)",
				c.CST, regime, r.Pis, r.Cofins); err != nil {
				return fmt.Errorf("insert rates %s/%s: %w", c.CST, regime, err)
			}
		}
	}

	for i, r := range p.ConsistencyRules {
		logic, err := json.Marshal(r.Logic)
		if err != nil {
			return fmt.Errorf("encode rule %s: %w", r.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO consistency_rules (id, description, logic, position) VALUES (?, ?, ?, ?)",
			r.ID, r.Description, string(logic), i); err != nil {
			return fmt.Errorf("insert rule %s: %w", r.ID, err)
		}
	}

	for _, c := range p.Cfop {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO cfop_rules (code, description, scope, direction, sugar) VALUES (?, ?, ?, ?, ?)",
			c.Code, c.Description, c.Scope, c.Direction, c.Sugar); err != nil {
			return fmt.Errorf("insert cfop %s: %w", c.Code, err)
		}
	}

	for _, st := range p.States {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO state_rules (uf, name, icms_rate, legal_ref) VALUES (?, ?, ?, ?)",
			st.UF, st.Name, st.IcmsRate, st.LegalRef); err != nil {
			return fmt.Errorf("insert state %s: %w", st.UF, err)
		}
		for ncm, rate := range st.NcmOverrides {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO state_ncm_overrides (uf, ncm, icms_rate) VALUES (?, ?, ?)",
				st.UF, ncm, rate); err != nil {
				return fmt.Errorf("insert override %s/%s: %w", st.UF, ncm, err)
			}
		}
	}

	for i, l := range p.LegalReferences {
		taxes, err := json.Marshal(l.Taxes)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO legal_references (code, title, citation, article, scope, taxes, summary, url, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.Code, l.Title, l.Citation, l.Article, l.Scope, string(taxes), l.Summary, l.URL, i); err != nil {
			return fmt.Errorf("insert legal reference %s: %w", l.Code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}

	s.logger.Info("rules database seeded",
		zap.String("version", p.Version),
		zap.Int("ncm", len(p.Ncm)),
		zap.Int("cst", len(p.PisCofins)),
		zap.Int("cfop", len(p.Cfop)),
	)
	return nil
}

// LoadPack reads every table back into a rules.Pack.
func (s *Store) LoadPack(ctx context.Context) (*rules.Pack, error) {
	version, err := s.Version(ctx)
	if err != nil {
		return nil, err
	}
	if version == "" {
		return nil, fmt.Errorf("%w: database has not been seeded", rules.ErrInvalidPack)
	}

	p := &rules.Pack{Version: version}
	loaders := []func(context.Context, *rules.Pack) error{
		s.loadNcm, s.loadCst, s.loadConsistency, s.loadCfop, s.loadStates, s.loadLegal,
	}
	for _, load := range loaders {
		if err := load(ctx, p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Load builds an immutable snapshot from the database.
func (s *Store) Load(ctx context.Context) (*rules.Snapshot, error) {
	p, err := s.LoadPack(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := rules.NewSnapshot(p)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("rules loaded from database", zap.String("version", p.Version))
	return snap, nil
}

func (s *Store) loadNcm(ctx context.Context, p *rules.Pack) error {
	rows, err := s.db.QueryContext(ctx, "SELECT code, description, category, sugar, keywords FROM ncm_rules ORDER BY code")
	if err != nil {
		return fmt.Errorf("query ncm: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var n rules.NcmEntry
		var keywords string
		if err := rows.Scan(&n.Code, &n.Description, &n.Category, &n.Sugar, &keywords); err != nil {
			return fmt.Errorf("scan ncm: %w", err)
		}
		if err := json.Unmarshal([]byte(keywords), &n.Keywords); err != nil {
			return fmt.Errorf("decode keywords of %s: %w", n.Code, err)
		}
		p.Ncm = append(p.Ncm, n)
	}
	return rows.Err()
}

func (s *Store) loadCst(ctx context.Context, p *rules.Pack) error {
	rows, err := s.db.QueryContext(ctx, "SELECT cst, description, situation FROM pis_cofins_rules ORDER BY cst")
	if err != nil {
		return fmt.Errorf("query cst: %w", err)
	}
	defer rows.Close()

	index := make(map[string]int)
	for rows.Next() {
		var c rules.CstEntry
		if err := rows.Scan(&c.CST, &c.Description, &c.Situation); err != nil {
			return fmt.Errorf("scan cst: %w", err)
		}
		index[c.CST] = len(p.PisCofins)
		p.PisCofins = append(p.PisCofins, c)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	// release the single connection before the next query
	rows.Close()

	rateRows, err := s.db.QueryContext(ctx, "SELECT cst, regime, pis_rate, cofins_rate FROM pis_cofins_rates")
	if err != nil {
		return fmt.Errorf("query rates: %w", err)
	}
	defer rateRows.Close()

	for rateRows.Next() {
		var cst, regime string
		var r rules.RateEntry
		if err := rateRows.Scan(&cst, &regime, &r.Pis, &r.Cofins); err != nil {
			return fmt.Errorf("scan rates: %w", err)
		}
		i, ok := index[cst]
		if !ok {
			continue
		}
		if p.PisCofins[i].Rates == nil {
			p.PisCofins[i].Rates = make(map[string]rules.RateEntry)
		}
		p.PisCofins[i].Rates[regime] = r
	}
	return rateRows.Err()
}

func (s *Store) loadConsistency(ctx context.Context, p *rules.Pack) error {
	rows, err := s.db.QueryContext(ctx, "SELECT id, description, logic FROM consistency_rules ORDER BY position")
	if err != nil {
		return fmt.Errorf("query consistency rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r rules.ConsistencyRule
		var logic string
		if err := rows.Scan(&r.ID, &r.Description, &logic); err != nil {
			return fmt.Errorf("scan consistency rule: %w", err)
		}
		if err := json.Unmarshal([]byte(logic), &r.Logic); err != nil {
			return fmt.Errorf("decode rule %s: %w", r.ID, err)
		}
		p.ConsistencyRules = append(p.ConsistencyRules, r)
	}
	return rows.Err()
}

func (s *Store) loadCfop(ctx context.Context, p *rules.Pack) error {
	rows, err := s.db.QueryContext(ctx, "SELECT code, description, scope, direction, sugar FROM cfop_rules ORDER BY code")
	if err != nil {
		return fmt.Errorf("query cfop: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c rules.CfopEntry
		if err := rows.Scan(&c.Code, &c.Description, &c.Scope, &c.Direction, &c.Sugar); err != nil {
			return fmt.Errorf("scan cfop: %w", err)
		}
		p.Cfop = append(p.Cfop, c)
	}
	return rows.Err()
}

func (s *Store) loadStates(ctx context.Context, p *rules.Pack) error {
	rows, err := s.db.QueryContext(ctx, "SELECT uf, name, icms_rate, legal_ref FROM state_rules ORDER BY uf")
	if err != nil {
		return fmt.Errorf("query states: %w", err)
	}
	defer rows.Close()

	index := make(map[string]int)
	for rows.Next() {
		var st rules.StateEntry
		if err := rows.Scan(&st.UF, &st.Name, &st.IcmsRate, &st.LegalRef); err != nil {
			return fmt.Errorf("scan state: %w", err)
		}
		index[st.UF] = len(p.States)
		p.States = append(p.States, st)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	ovRows, err := s.db.QueryContext(ctx, "SELECT uf, ncm, icms_rate FROM state_ncm_overrides")
	if err != nil {
		return fmt.Errorf("query overrides: %w", err)
	}
	defer ovRows.Close()

	for ovRows.Next() {
		var uf, ncm, rate string
		if err := ovRows.Scan(&uf, &ncm, &rate); err != nil {
			return fmt.Errorf("scan override: %w", err)
		}
		i, ok := index[uf]
		if !ok {
			continue
		}
		if p.States[i].NcmOverrides == nil {
			p.States[i].NcmOverrides = make(map[string]string)
		}
		p.States[i].NcmOverrides[ncm] = rate
	}
	return ovRows.Err()
}

func (s *Store) loadLegal(ctx context.Context, p *rules.Pack) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT code, title, citation, article, scope, taxes, summary, url FROM legal_references ORDER BY position")
	if err != nil {
		return fmt.Errorf("query legal references: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l rules.LegalEntry
		var taxes string
		if err := rows.Scan(&l.Code, &l.Title, &l.Citation, &l.Article, &l.Scope, &taxes, &l.Summary, &l.URL); err != nil {
			return fmt.Errorf("scan legal reference: %w", err)
		}
		if err := json.Unmarshal([]byte(taxes), &l.Taxes); err != nil {
			return fmt.Errorf("decode taxes of %s: %w", l.Code, err)
		}
		p.LegalReferences = append(p.LegalReferences, l)
	}
	return rows.Err()
}
