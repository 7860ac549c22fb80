/*
store.go - Persistence interfaces and the ledger-impact event boundary

PURPOSE:
  Defines the interfaces between the engine and its storage/notification
  collaborators. The engine computes purely and then invokes these as
  side effects; their failure never corrupts computed state.

KEY INTERFACES:
  StructureStore:  Versioned compensation structures per subject
  ConfigStore:     Jurisdiction tax configurations, date-resolved
  PeriodStore:     Payroll period records with atomic transitions
  LedgerEventSink: Exactly-once ledger-impact events on payment

ATOMIC TRANSITIONS:
  PeriodStore.Transition performs the precondition check and the status
  change as one indivisible operation (mutex in memory, transactional
  read-modify-write in SQLite). This is what prevents two concurrent
  approvals, or an approval racing a cancellation.

IDEMPOTENT EVENTS:
  LedgerEventSink deduplicates on PaymentReference. MarkPaid retried
  with the same reference re-delivers at most once.

IMPLEMENTATIONS:
  - payroll/store/memory.go: In-memory, for tests and dev
  - store/sqlite/sqlite.go:  Production SQLite

SEE ALSO:
  - lifecycle.go: The only writer of period state
*/
package payroll

import (
	"context"
	"time"
)

// =============================================================================
// STRUCTURE STORE
// =============================================================================

// StructureStore persists compensation structures. Overlap validation is
// the Registry's job; the store is a dumb record holder.
type StructureStore interface {
	SaveStructure(ctx context.Context, s *CompensationStructure) error
	Structure(ctx context.Context, id StructureID) (*CompensationStructure, error)

	// StructuresBySubject returns every structure for a subject, active
	// or not, in registration order.
	StructuresBySubject(ctx context.Context, subject SubjectID) ([]*CompensationStructure, error)
}

// =============================================================================
// CONFIG STORE
// =============================================================================

// ConfigStore persists jurisdiction tax configurations. Read-only from
// the engine's perspective at calculation time.
type ConfigStore interface {
	SaveConfig(ctx context.Context, c *JurisdictionTaxConfig) error

	// ConfigFor resolves the configuration effective on the given date.
	// Returns ErrConfigNotFound when none covers it.
	ConfigFor(ctx context.Context, jurisdiction JurisdictionID, date time.Time) (*JurisdictionTaxConfig, error)
}

// =============================================================================
// PERIOD STORE
// =============================================================================

// PeriodStore persists payroll periods, unique on (subject, start, end).
type PeriodStore interface {
	// CreatePeriod persists a new Draft period. Returns ErrDuplicatePeriod
	// if the (subject, start, end) triple already exists.
	CreatePeriod(ctx context.Context, p *PayrollPeriod) error

	Period(ctx context.Context, id PeriodID) (*PayrollPeriod, error)

	PeriodsBySubject(ctx context.Context, subject SubjectID) ([]*PayrollPeriod, error)

	// PeriodsInWindow returns every period for the given subjects whose
	// interval falls entirely inside the window, any status.
	PeriodsInWindow(ctx context.Context, subjects []SubjectID, w Window) ([]*PayrollPeriod, error)

	// Transition atomically loads the period, verifies its status is one
	// of from, applies mutate, sets the status to to, and persists the
	// result. Check and write are indivisible with respect to concurrent
	// Transitions. Returns a TransitionError when the status check fails.
	Transition(ctx context.Context, id PeriodID, from []PeriodStatus, to PeriodStatus, mutate func(*PayrollPeriod) error) (*PayrollPeriod, error)
}

// =============================================================================
// LEDGER-IMPACT EVENTS
// =============================================================================

// LedgerEvent is emitted exactly once per Approved -> Paid transition.
// A downstream cash-ledger collaborator consumes it to record the
// expense; the engine never posts ledger entries itself.
type LedgerEvent struct {
	ID                string
	PeriodID          PeriodID
	SubjectID         SubjectID
	Currency          string
	TotalEmployerCost Money
	PaymentDate       time.Time

	// PaymentReference is the idempotency key: re-emission with the same
	// reference is a no-op at the sink.
	PaymentReference string

	EmittedAt time.Time
}

// LedgerEventSink receives ledger-impact events. Emit with an already-seen
// PaymentReference succeeds without re-delivering.
type LedgerEventSink interface {
	Emit(ctx context.Context, event LedgerEvent) error
	Events(ctx context.Context) ([]LedgerEvent, error)
}
