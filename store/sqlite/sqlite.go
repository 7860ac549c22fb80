/*
Package sqlite provides a SQLite-backed implementation of the payroll
storage interfaces.

PURPOSE:
  Implements StructureStore, ConfigStore, PeriodStore, and
  LedgerEventSink on SQLite. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  structures:    Versioned compensation structures (components as JSON)
  tax_configs:   Jurisdiction contribution schedules (rates as JSON)
  periods:       Payroll period records with denormalized totals
  ledger_events: Ledger-impact events, unique on payment reference

TRANSITION ATOMICITY:
  PeriodStore.Transition runs a transactional read-modify-write: the row
  is read, the status precondition checked, and the UPDATE carries a
  "WHERE status = ?" guard. A concurrent transition that slipped in
  between loses the race and gets a TransitionError, never a lost update.

UNIQUENESS:
  Ordinary periods are unique on (subject_id, period_start, period_end).
  Reversal periods share the original's range; they are unique on the
  period they reverse (partial unique index on reversal_of).

WAL MODE:
  SQLite is opened with WAL so readers do not block the single writer.

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - payroll/store.go: Interface definitions
  - payroll/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/payroll-engine/payroll"
)

// Store implements all payroll storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Compile-time interface checks.
var (
	_ payroll.StructureStore  = (*Store)(nil)
	_ payroll.ConfigStore     = (*Store)(nil)
	_ payroll.PeriodStore     = (*Store)(nil)
	_ payroll.LedgerEventSink = (*Store)(nil)
)

// New opens (and migrates) a SQLite store. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single pooled connection also keeps a
	// ":memory:" database from splitting per connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS structures (
		id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		base_amount INTEGER NOT NULL,
		currency TEXT NOT NULL,
		cadence TEXT NOT NULL,
		components TEXT NOT NULL,
		effective_start TEXT NOT NULL,
		effective_end TEXT,
		is_active INTEGER NOT NULL,
		version INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_structures_subject ON structures(subject_id);

	CREATE TABLE IF NOT EXISTS tax_configs (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		jurisdiction_id TEXT NOT NULL,
		name TEXT NOT NULL,
		currency TEXT NOT NULL,
		effective_start TEXT NOT NULL,
		effective_end TEXT,
		rates TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tax_configs_jurisdiction ON tax_configs(jurisdiction_id);

	CREATE TABLE IF NOT EXISTS periods (
		id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		structure_id TEXT,
		structure_version INTEGER NOT NULL DEFAULT 0,
		jurisdiction_id TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		payment_date TEXT NOT NULL,
		context TEXT NOT NULL,
		status TEXT NOT NULL,
		calculation_version INTEGER NOT NULL DEFAULT 0,
		items TEXT NOT NULL DEFAULT '[]',
		tax TEXT NOT NULL DEFAULT '{}',
		currency TEXT,
		gross_amount INTEGER NOT NULL DEFAULT 0,
		total_deductions INTEGER NOT NULL DEFAULT 0,
		net_amount INTEGER NOT NULL DEFAULT 0,
		total_employer_cost INTEGER NOT NULL DEFAULT 0,
		approved_by TEXT,
		approved_at TEXT,
		paid_at TEXT,
		payment_reference TEXT,
		reversal_of TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_periods_subject_range
		ON periods(subject_id, period_start, period_end) WHERE reversal_of = '';
	CREATE UNIQUE INDEX IF NOT EXISTS idx_periods_reversal
		ON periods(reversal_of) WHERE reversal_of != '';
	CREATE INDEX IF NOT EXISTS idx_periods_subject ON periods(subject_id);
	CREATE INDEX IF NOT EXISTS idx_periods_status ON periods(status);

	CREATE TABLE IF NOT EXISTS ledger_events (
		id TEXT PRIMARY KEY,
		period_id TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		currency TEXT,
		total_employer_cost INTEGER NOT NULL,
		payment_date TEXT NOT NULL,
		payment_reference TEXT NOT NULL UNIQUE,
		emitted_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

const dayFormat = "2006-01-02"

func fmtDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return payroll.Day(t).Format(dayFormat)
}

func parseDay(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(dayFormat, s)
	return t
}

func fmtStamp(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseStamp(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

// =============================================================================
// STRUCTURE STORE
// =============================================================================

func (s *Store) SaveStructure(ctx context.Context, st *payroll.CompensationStructure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	components, err := json.Marshal(st.Components)
	if err != nil {
		return fmt.Errorf("marshal components: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO structures
			(id, subject_id, kind, base_amount, currency, cadence, components,
			 effective_start, effective_end, is_active, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			base_amount = excluded.base_amount,
			currency = excluded.currency,
			cadence = excluded.cadence,
			components = excluded.components,
			effective_start = excluded.effective_start,
			effective_end = excluded.effective_end,
			is_active = excluded.is_active,
			version = excluded.version`,
		string(st.ID), string(st.SubjectID), string(st.Kind), int64(st.BaseAmount),
		st.Currency, string(st.Cadence), string(components),
		fmtDay(st.Effective.Start), fmtDay(st.Effective.End),
		boolToInt(st.IsActive), st.Version)
	return err
}

func (s *Store) Structure(ctx context.Context, id payroll.StructureID) (*payroll.CompensationStructure, error) {
	row := s.db.QueryRowContext(ctx, structureSelect+` WHERE id = ?`, string(id))
	st, err := scanStructure(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payroll.ErrStructureNotFound
	}
	return st, err
}

func (s *Store) StructuresBySubject(ctx context.Context, subject payroll.SubjectID) ([]*payroll.CompensationStructure, error) {
	rows, err := s.db.QueryContext(ctx, structureSelect+` WHERE subject_id = ? ORDER BY rowid`, string(subject))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*payroll.CompensationStructure
	for rows.Next() {
		st, err := scanStructure(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, st)
	}
	return result, rows.Err()
}

const structureSelect = `
	SELECT id, subject_id, kind, base_amount, currency, cadence, components,
	       effective_start, effective_end, is_active, version
	FROM structures`

func scanStructure(row scannable) (*payroll.CompensationStructure, error) {
	var (
		st                  payroll.CompensationStructure
		id, subject, kind   string
		base                int64
		cadence, components string
		effStart            string
		effEnd              sql.NullString
		isActive            int
	)
	err := row.Scan(&id, &subject, &kind, &base, &st.Currency, &cadence,
		&components, &effStart, &effEnd, &isActive, &st.Version)
	if err != nil {
		return nil, err
	}

	st.ID = payroll.StructureID(id)
	st.SubjectID = payroll.SubjectID(subject)
	st.Kind = payroll.StructureKind(kind)
	st.BaseAmount = payroll.Money(base)
	st.Cadence = payroll.PaymentCadence(cadence)
	st.Effective = payroll.DateRange{Start: parseDay(effStart), End: parseDay(effEnd.String)}
	st.IsActive = isActive != 0

	if err := json.Unmarshal([]byte(components), &st.Components); err != nil {
		return nil, fmt.Errorf("unmarshal components: %w", err)
	}
	return &st, nil
}

// =============================================================================
// CONFIG STORE
// =============================================================================

func (s *Store) SaveConfig(ctx context.Context, c *payroll.JurisdictionTaxConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rates, err := json.Marshal(c.Rates)
	if err != nil {
		return fmt.Errorf("marshal rates: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tax_configs
			(jurisdiction_id, name, currency, effective_start, effective_end, rates)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(c.JurisdictionID), c.Name, c.Currency,
		fmtDay(c.Effective.Start), fmtDay(c.Effective.End), string(rates))
	return err
}

func (s *Store) ConfigFor(ctx context.Context, jurisdiction payroll.JurisdictionID, date time.Time) (*payroll.JurisdictionTaxConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT jurisdiction_id, name, currency, effective_start, effective_end, rates
		FROM tax_configs WHERE jurisdiction_id = ? ORDER BY seq DESC`,
		string(jurisdiction))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	day := payroll.Day(date)
	for rows.Next() {
		var (
			c         payroll.JurisdictionTaxConfig
			jID       string
			effStart  string
			effEnd    sql.NullString
			ratesJSON string
		)
		if err := rows.Scan(&jID, &c.Name, &c.Currency, &effStart, &effEnd, &ratesJSON); err != nil {
			return nil, err
		}
		c.JurisdictionID = payroll.JurisdictionID(jID)
		c.Effective = payroll.DateRange{Start: parseDay(effStart), End: parseDay(effEnd.String)}
		if !c.Effective.Contains(day) {
			continue
		}
		if err := json.Unmarshal([]byte(ratesJSON), &c.Rates); err != nil {
			return nil, fmt.Errorf("unmarshal rates: %w", err)
		}
		return &c, nil
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return nil, payroll.ErrConfigNotFound
}

// =============================================================================
// PERIOD STORE
// =============================================================================

func (s *Store) CreatePeriod(ctx context.Context, p *payroll.PayrollPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	contextJSON, itemsJSON, taxJSON, err := marshalPeriodBlobs(p)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO periods
			(id, subject_id, structure_id, structure_version, jurisdiction_id,
			 period_start, period_end, payment_date, context, status,
			 calculation_version, items, tax, currency, gross_amount,
			 total_deductions, net_amount, total_employer_cost,
			 approved_by, approved_at, paid_at, payment_reference, reversal_of,
			 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(p.ID), string(p.SubjectID), string(p.StructureID), p.StructureVersion,
		string(p.JurisdictionID), fmtDay(p.Start), fmtDay(p.End), fmtDay(p.PaymentDate),
		contextJSON, string(p.Status), p.CalculationVersion, itemsJSON, taxJSON,
		p.Currency, int64(p.GrossAmount), int64(p.TotalDeductions),
		int64(p.NetAmount), int64(p.TotalEmployerCost),
		p.ApprovedBy, fmtStamp(p.ApprovedAt), fmtStamp(p.PaidAt),
		p.PaymentReference, string(p.ReversalOf),
		p.CreatedAt.UTC().Format(time.RFC3339Nano), p.UpdatedAt.UTC().Format(time.RFC3339Nano))

	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return payroll.ErrDuplicatePeriod
	}
	return err
}

func (s *Store) Period(ctx context.Context, id payroll.PeriodID) (*payroll.PayrollPeriod, error) {
	return getPeriod(ctx, s.db, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getPeriod(ctx context.Context, q querier, id payroll.PeriodID) (*payroll.PayrollPeriod, error) {
	row := q.QueryRowContext(ctx, periodSelect+` WHERE id = ?`, string(id))
	p, err := scanPeriod(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payroll.ErrPeriodNotFound
	}
	return p, err
}

func (s *Store) PeriodsBySubject(ctx context.Context, subject payroll.SubjectID) ([]*payroll.PayrollPeriod, error) {
	rows, err := s.db.QueryContext(ctx,
		periodSelect+` WHERE subject_id = ? ORDER BY period_start, id`, string(subject))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPeriods(rows)
}

func (s *Store) PeriodsInWindow(ctx context.Context, subjects []payroll.SubjectID, w payroll.Window) ([]*payroll.PayrollPeriod, error) {
	if len(subjects) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(subjects)), ",")
	args := make([]any, 0, len(subjects)+2)
	for _, subj := range subjects {
		args = append(args, string(subj))
	}
	args = append(args, fmtDay(w.Start), fmtDay(w.End))

	rows, err := s.db.QueryContext(ctx,
		periodSelect+` WHERE subject_id IN (`+placeholders+`)
		 AND period_start >= ? AND period_end <= ?
		 ORDER BY period_start, subject_id, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPeriods(rows)
}

func (s *Store) Transition(
	ctx context.Context,
	id payroll.PeriodID,
	from []payroll.PeriodStatus,
	to payroll.PeriodStatus,
	mutate func(*payroll.PayrollPeriod) error,
) (*payroll.PayrollPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	p, err := getPeriod(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, status := range from {
		if p.Status == status {
			allowed = true
			break
		}
	}
	if !allowed || !payroll.CanTransition(p.Status, to) {
		return nil, &payroll.TransitionError{PeriodID: id, From: p.Status, Requested: to}
	}

	previous := p.Status
	if err := mutate(p); err != nil {
		return nil, err
	}
	p.Status = to

	contextJSON, itemsJSON, taxJSON, err := marshalPeriodBlobs(p)
	if err != nil {
		return nil, err
	}

	// The WHERE status guard makes the precondition check and the write
	// one indivisible operation even against writers outside this mutex.
	res, err := tx.ExecContext(ctx, `
		UPDATE periods SET
			structure_id = ?, structure_version = ?, context = ?, status = ?,
			calculation_version = ?, items = ?, tax = ?, currency = ?,
			gross_amount = ?, total_deductions = ?, net_amount = ?,
			total_employer_cost = ?, approved_by = ?, approved_at = ?,
			paid_at = ?, payment_reference = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(p.StructureID), p.StructureVersion, contextJSON, string(p.Status),
		p.CalculationVersion, itemsJSON, taxJSON, p.Currency,
		int64(p.GrossAmount), int64(p.TotalDeductions), int64(p.NetAmount),
		int64(p.TotalEmployerCost), p.ApprovedBy, fmtStamp(p.ApprovedAt),
		fmtStamp(p.PaidAt), p.PaymentReference,
		p.UpdatedAt.UTC().Format(time.RFC3339Nano),
		string(id), string(previous))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected != 1 {
		return nil, &payroll.TransitionError{PeriodID: id, From: previous, Requested: to}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}

const periodSelect = `
	SELECT id, subject_id, structure_id, structure_version, jurisdiction_id,
	       period_start, period_end, payment_date, context, status,
	       calculation_version, items, tax, currency, gross_amount,
	       total_deductions, net_amount, total_employer_cost,
	       approved_by, approved_at, paid_at, payment_reference, reversal_of,
	       created_at, updated_at
	FROM periods`

func scanPeriod(row scannable) (*payroll.PayrollPeriod, error) {
	var (
		p                               payroll.PayrollPeriod
		id, subject, jID                string
		structID                        sql.NullString
		start, end, payDate             string
		contextJSON, status             string
		itemsJSON, taxJSON              string
		currency, approvedBy, payRef    sql.NullString
		reversalOf                      string
		gross, deductions, net, empCost int64
		approvedAt, paidAt              sql.NullString
		createdAt, updatedAt            string
	)
	err := row.Scan(&id, &subject, &structID, &p.StructureVersion, &jID,
		&start, &end, &payDate, &contextJSON, &status,
		&p.CalculationVersion, &itemsJSON, &taxJSON, &currency, &gross,
		&deductions, &net, &empCost,
		&approvedBy, &approvedAt, &paidAt, &payRef, &reversalOf,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	p.ID = payroll.PeriodID(id)
	p.SubjectID = payroll.SubjectID(subject)
	p.StructureID = payroll.StructureID(structID.String)
	p.JurisdictionID = payroll.JurisdictionID(jID)
	p.Start = parseDay(start)
	p.End = parseDay(end)
	p.PaymentDate = parseDay(payDate)
	p.Status = payroll.PeriodStatus(status)
	p.Currency = currency.String
	p.GrossAmount = payroll.Money(gross)
	p.TotalDeductions = payroll.Money(deductions)
	p.NetAmount = payroll.Money(net)
	p.TotalEmployerCost = payroll.Money(empCost)
	p.ApprovedBy = approvedBy.String
	p.ApprovedAt = parseStamp(approvedAt)
	p.PaidAt = parseStamp(paidAt)
	p.PaymentReference = payRef.String
	p.ReversalOf = payroll.PeriodID(reversalOf)

	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		p.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		p.UpdatedAt = t
	}

	if err := json.Unmarshal([]byte(contextJSON), &p.Context); err != nil {
		return nil, fmt.Errorf("unmarshal context: %w", err)
	}
	if err := json.Unmarshal([]byte(itemsJSON), &p.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	if err := json.Unmarshal([]byte(taxJSON), &p.Tax); err != nil {
		return nil, fmt.Errorf("unmarshal tax: %w", err)
	}
	if len(p.Items) == 0 {
		p.Items = nil
	}
	return &p, nil
}

func collectPeriods(rows *sql.Rows) ([]*payroll.PayrollPeriod, error) {
	var result []*payroll.PayrollPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func marshalPeriodBlobs(p *payroll.PayrollPeriod) (contextJSON, itemsJSON, taxJSON string, err error) {
	c, err := json.Marshal(p.Context)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal context: %w", err)
	}
	items := p.Items
	if items == nil {
		items = []payroll.ComponentResult{}
	}
	i, err := json.Marshal(items)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal items: %w", err)
	}
	t, err := json.Marshal(p.Tax)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal tax: %w", err)
	}
	return string(c), string(i), string(t), nil
}

// =============================================================================
// LEDGER EVENT SINK
// =============================================================================

func (s *Store) Emit(ctx context.Context, event payroll.LedgerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// INSERT OR IGNORE on the unique payment reference gives idempotent
	// re-delivery without a read-check race.
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO ledger_events
			(id, period_id, subject_id, currency, total_employer_cost,
			 payment_date, payment_reference, emitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, string(event.PeriodID), string(event.SubjectID), event.Currency,
		int64(event.TotalEmployerCost), fmtDay(event.PaymentDate),
		event.PaymentReference, event.EmittedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *Store) Events(ctx context.Context) ([]payroll.LedgerEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, period_id, subject_id, currency, total_employer_cost,
		       payment_date, payment_reference, emitted_at
		FROM ledger_events ORDER BY emitted_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []payroll.LedgerEvent
	for rows.Next() {
		var (
			e        payroll.LedgerEvent
			periodID string
			subject  string
			currency sql.NullString
			cost     int64
			payDate  string
			emitted  string
		)
		if err := rows.Scan(&e.ID, &periodID, &subject, &currency, &cost,
			&payDate, &e.PaymentReference, &emitted); err != nil {
			return nil, err
		}
		e.PeriodID = payroll.PeriodID(periodID)
		e.SubjectID = payroll.SubjectID(subject)
		e.Currency = currency.String
		e.TotalEmployerCost = payroll.Money(cost)
		e.PaymentDate = parseDay(payDate)
		if t, err := time.Parse(time.RFC3339Nano, emitted); err == nil {
			e.EmittedAt = t
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
