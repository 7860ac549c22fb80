/*
errors.go - Centralized error types for the payroll engine

PURPOSE:
  All engine error kinds in one place. Callers classify with errors.Is /
  errors.As; structured variants carry enough context to correct the
  input without re-deriving anything.

ERROR CATEGORIES:
  1. Registry errors - Bad compensation structure input
  2. Evaluator errors - Missing computation context
  3. Lifecycle errors - Illegal state transitions
  4. Aggregator errors - Provisional periods in a report window
  5. Fatal errors - Internal consistency violations (never recovered)

PROPAGATION POLICY:
  Validation-class errors are returned to the immediate caller for
  correction and never retried automatically. Lifecycle-guard errors are
  permanent rejections of the requested operation. A rounding invariant
  violation aborts the calculation for that period only; a batch run
  continues with unrelated subjects.

SEE ALSO:
  - lifecycle.go: Uses transition errors
  - batch.go: Fatal-error isolation across a run
*/
package payroll

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrStructureNotFound is returned when no active compensation
	// structure covers the requested date.
	ErrStructureNotFound = errors.New("no active compensation structure for date")

	// ErrAmbiguousStructure is returned when more than one active
	// structure covers a date. This is a write-time invariant violation
	// surfaced lazily at read time.
	ErrAmbiguousStructure = errors.New("ambiguous compensation structure")

	// ErrOverlappingRange is returned by Register when a new structure's
	// effective range intersects an existing active structure.
	ErrOverlappingRange = errors.New("overlapping effective range")

	// ErrMissingPerformanceInput is returned when a performance-scaled
	// component is active but the context has no performance score.
	ErrMissingPerformanceInput = errors.New("missing performance input")

	// ErrInvalidTransition is returned when a lifecycle operation is
	// requested in a state that does not permit it.
	ErrInvalidTransition = errors.New("invalid period transition")

	// ErrIncompletePeriodSet is returned when a report window contains a
	// period that has not reached Paid.
	ErrIncompletePeriodSet = errors.New("incomplete period set")

	// ErrRoundingInvariant indicates the sum of itemized figures does not
	// equal a persisted total. FATAL for the affected period: it means a
	// defect in the evaluator or tax calculator, and the inconsistent
	// result must not be persisted.
	ErrRoundingInvariant = errors.New("rounding invariant violation")

	// ErrPeriodNotFound is returned when a period id resolves to nothing.
	ErrPeriodNotFound = errors.New("period not found")

	// ErrConfigNotFound is returned when no jurisdiction tax config
	// covers the payment date.
	ErrConfigNotFound = errors.New("no tax configuration for date")

	// ErrDuplicatePeriod is returned when a period already exists for a
	// (subject, start, end) triple.
	ErrDuplicatePeriod = errors.New("period already exists for subject and range")

	// ErrInvalidStructure is returned by Register for malformed input
	// (bad currency, negative base, method/payload mismatch).
	ErrInvalidStructure = errors.New("invalid compensation structure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// AmbiguousStructureError reports which structures collide on a date.
type AmbiguousStructureError struct {
	SubjectID SubjectID
	Date      time.Time
	Matches   []StructureID
}

func (e *AmbiguousStructureError) Error() string {
	return fmt.Sprintf("ambiguous structure for %s on %s: %d active structures match",
		e.SubjectID, e.Date.Format("2006-01-02"), len(e.Matches))
}

func (e *AmbiguousStructureError) Unwrap() error { return ErrAmbiguousStructure }

// OverlappingRangeError reports the existing structure a registration
// collides with.
type OverlappingRangeError struct {
	SubjectID SubjectID
	New       DateRange
	Existing  StructureID
}

func (e *OverlappingRangeError) Error() string {
	return fmt.Sprintf("structure for %s overlaps existing active structure %s",
		e.SubjectID, e.Existing)
}

func (e *OverlappingRangeError) Unwrap() error { return ErrOverlappingRange }

// MissingPerformanceInputError names the component that needed a score.
type MissingPerformanceInputError struct {
	Component string
}

func (e *MissingPerformanceInputError) Error() string {
	return fmt.Sprintf("component %q is performance-scaled but context has no performance score", e.Component)
}

func (e *MissingPerformanceInputError) Unwrap() error { return ErrMissingPerformanceInput }

// TransitionError reports an illegal lifecycle transition attempt.
type TransitionError struct {
	PeriodID  PeriodID
	From      PeriodStatus
	Requested PeriodStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("period %s: cannot transition %s -> %s", e.PeriodID, e.From, e.Requested)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// IncompletePeriodSetError lists the periods blocking a report.
type IncompletePeriodSetError struct {
	Blocking []PeriodID
}

func (e *IncompletePeriodSetError) Error() string {
	return fmt.Sprintf("report window contains %d periods not yet paid", len(e.Blocking))
}

func (e *IncompletePeriodSetError) Unwrap() error { return ErrIncompletePeriodSet }

// RoundingInvariantError carries the figures that failed to reconcile.
type RoundingInvariantError struct {
	PeriodID PeriodID
	Figure   string // which named total failed, e.g. "gross", "net"
	Itemized Money
	Total    Money
}

func (e *RoundingInvariantError) Error() string {
	return fmt.Sprintf("period %s: %s mismatch: itemized %d != total %d",
		e.PeriodID, e.Figure, e.Itemized, e.Total)
}

func (e *RoundingInvariantError) Unwrap() error { return ErrRoundingInvariant }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation reports whether the error is a correctable input error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrStructureNotFound) ||
		errors.Is(err, ErrAmbiguousStructure) ||
		errors.Is(err, ErrOverlappingRange) ||
		errors.Is(err, ErrMissingPerformanceInput) ||
		errors.Is(err, ErrInvalidStructure) ||
		errors.Is(err, ErrDuplicatePeriod)
}

// IsFatal reports whether the error must abort the affected period's
// processing rather than be returned for correction.
func IsFatal(err error) bool {
	return errors.Is(err, ErrRoundingInvariant)
}

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStructureNotFound) ||
		errors.Is(err, ErrPeriodNotFound) ||
		errors.Is(err, ErrConfigNotFound)
}
