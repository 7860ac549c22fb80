/*
period.go - Payroll periods and their state machine

PURPOSE:
  A PayrollPeriod is the durable artifact of the engine: one calculation
  for one subject over one bounded interval, carrying the frozen input
  snapshot, the itemized result, and a status that only ever moves
  forward.

STATE MACHINE:

  Draft ──▶ Calculated ──▶ Approved ──▶ Paid
    │            │
    └────────────┴──▶ Cancelled

  - Draft/Calculated: mutable; Calculate may run and re-run
  - Approved: immutable except status and paid_at
  - Paid, Cancelled: terminal
  - Approved/Paid are never cancelled; corrections are compensating
    reversal periods so audit history survives

SEE ALSO:
  - lifecycle.go: Operations driving these transitions
  - report.go: Aggregation over Paid periods
*/
package payroll

import "time"

// =============================================================================
// PERIOD STATUS
// =============================================================================

type PeriodStatus string

const (
	StatusDraft      PeriodStatus = "draft"
	StatusCalculated PeriodStatus = "calculated"
	StatusApproved   PeriodStatus = "approved"
	StatusPaid       PeriodStatus = "paid"
	StatusCancelled  PeriodStatus = "cancelled"
)

// transitions is the complete set of legal status moves. Anything not
// listed here is rejected with ErrInvalidTransition.
var transitions = map[PeriodStatus][]PeriodStatus{
	StatusDraft:      {StatusCalculated, StatusCancelled},
	StatusCalculated: {StatusCalculated, StatusApproved, StatusCancelled},
	StatusApproved:   {StatusPaid},
	StatusPaid:       {},
	StatusCancelled:  {},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to PeriodStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions exist.
func (s PeriodStatus) IsTerminal() bool { return len(transitions[s]) == 0 }

// IsMutable reports whether the period's figures may still change.
func (s PeriodStatus) IsMutable() bool {
	return s == StatusDraft || s == StatusCalculated
}

// =============================================================================
// PAYROLL PERIOD - One calculation for one subject over one interval
// =============================================================================

// PayrollPeriod is the persisted record other systems (ledger, reporting)
// read. Unique on (SubjectID, Start, End).
type PayrollPeriod struct {
	ID        PeriodID
	SubjectID SubjectID

	// Structure and config versions the last calculation used.
	StructureID      StructureID
	StructureVersion int
	JurisdictionID   JurisdictionID

	Start       time.Time
	End         time.Time
	PaymentDate time.Time

	// Context is captured once at period creation and frozen; a
	// recalculation re-reads structure and config, never the context.
	Context ComputationContext

	Status PeriodStatus

	// CalculationVersion increments on every Calculate while mutable.
	CalculationVersion int

	// Itemized result of the last calculation.
	Items []ComponentResult
	Tax   TaxResult

	// Headline figures, denormalized from Items/Tax for readers.
	Currency          string
	GrossAmount       Money
	TotalDeductions   Money
	NetAmount         Money
	TotalEmployerCost Money

	// Audit trail.
	ApprovedBy       string
	ApprovedAt       *time.Time
	PaidAt           *time.Time
	PaymentReference string

	// ReversalOf links a compensating reversal period to the Paid period
	// it corrects. Empty for ordinary periods.
	ReversalOf PeriodID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Window is a reporting interval (month or year) used by the aggregator.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether a period falls entirely inside the window.
func (w Window) Contains(p *PayrollPeriod) bool {
	return !Day(p.Start).Before(Day(w.Start)) && !Day(p.End).After(Day(w.End))
}

// MonthWindow returns the calendar-month window containing the date.
func MonthWindow(year int, month time.Month) Window {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Window{Start: start, End: start.AddDate(0, 1, -1)}
}

// YearWindow returns the calendar-year window.
func YearWindow(year int) Window {
	return Window{
		Start: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
	}
}
