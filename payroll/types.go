/*
Package payroll provides the core payroll calculation and compliance engine.

PURPOSE:
  This package contains the types and algorithms that turn a subject's
  compensation structure, a period's worked-time and performance inputs,
  and a jurisdiction's tax rules into an itemized, auditable payroll
  result, and that roll finalized periods up into compliance reports.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A monetary amount in minor units (cents, öre) as an integer
  - CompensationStructure: Versioned pay configuration per subject
  - SalaryComponent: A conditionally-active piece of compensation
  - ComputationContext: The frozen per-period input snapshot
  - Subject/Structure/Period IDs: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Integer money: All persisted amounts are minor-unit integers.
     decimal.Decimal is used only for rate arithmetic, and every product
     is rounded exactly once at a named point (see evaluate.go, tax.go).
  2. Closed unions: CalculationMethod and ConditionKind are closed enums
     with exhaustive switches; an unknown variant is a programming error,
     never a silently-skipped component.
  3. Purity: Evaluation reads only its arguments. No ambient state.
  4. Immutability: Once a period is approved its figures never change;
     corrections are compensating reversal periods.

USAGE:
  structure := payroll.CompensationStructure{
      SubjectID:  "emp-42",
      Kind:       payroll.StructureFixedSalary,
      BaseAmount: payroll.Money(3_000_000), // 30,000.00 in minor units
      Currency:   "SEK",
      Cadence:    payroll.CadenceMonthly,
  }

SEE ALSO:
  - evaluate.go: Condition evaluation and amount computation
  - tax.go: Jurisdiction withholding and contributions
  - lifecycle.go: Period state machine
*/
package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Minor-unit integer amounts
// =============================================================================

// Money is a monetary amount in the smallest denomination of its currency
// (e.g., cents). All engine arithmetic on Money is plain integer math;
// fractional rate products go through RoundHalfUp exactly once.
type Money int64

func (m Money) Add(o Money) Money { return m + o }
func (m Money) Sub(o Money) Money { return m - o }
func (m Money) Neg() Money        { return -m }
func (m Money) IsZero() bool      { return m == 0 }
func (m Money) IsNegative() bool  { return m < 0 }

// Min returns the smaller of two amounts. Used for capped contribution bases.
func (m Money) Min(o Money) Money {
	if m < o {
		return m
	}
	return o
}

// Decimal converts to decimal for rate multiplication.
func (m Money) Decimal() decimal.Decimal { return decimal.NewFromInt(int64(m)) }

// RoundHalfUp rounds a decimal amount to the minor unit, half away from
// zero. This is the single rounding primitive of the engine: every named
// figure (component amount, contribution line) passes through it exactly
// once, and nothing downstream re-rounds.
func RoundHalfUp(d decimal.Decimal) Money {
	return Money(d.Round(0).IntPart())
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type SubjectID string
type StructureID string
type PeriodID string
type JurisdictionID string

// =============================================================================
// COMPENSATION STRUCTURE - Versioned pay configuration
// =============================================================================

type StructureKind string

const (
	StructureFixedSalary StructureKind = "fixed_salary"
	StructureHourly      StructureKind = "hourly"
	StructureProject     StructureKind = "project"
	StructureCommission  StructureKind = "commission"
	StructureMixed       StructureKind = "mixed"
)

type PaymentCadence string

const (
	CadenceMonthly  PaymentCadence = "monthly"
	CadenceBiweekly PaymentCadence = "biweekly"
	CadenceWeekly   PaymentCadence = "weekly"
)

// DateRange is a closed interval of calendar days. A zero End means
// open-ended (valid until superseded).
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether the day falls inside the range.
func (r DateRange) Contains(day time.Time) bool {
	d := Day(day)
	if d.Before(Day(r.Start)) {
		return false
	}
	if r.End.IsZero() {
		return true
	}
	return !d.After(Day(r.End))
}

// Overlaps reports whether two ranges share at least one day.
func (r DateRange) Overlaps(o DateRange) bool {
	if !r.End.IsZero() && Day(o.Start).After(Day(r.End)) {
		return false
	}
	if !o.End.IsZero() && Day(r.Start).After(Day(o.End)) {
		return false
	}
	return true
}

// Day truncates a timestamp to its calendar day in UTC. All effective-date
// and period comparisons happen at day granularity.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// CompensationStructure is one versioned pay configuration for a subject,
// valid over an effective date range.
//
// INVARIANT: at most one active structure per subject covers any given
// date. Enforced by Registry.Register at write time; surfaced lazily by
// ActiveStructureFor if violated out-of-band.
type CompensationStructure struct {
	ID        StructureID
	SubjectID SubjectID
	Kind      StructureKind

	// Base compensation per period, in minor units.
	BaseAmount Money
	Currency   string
	Cadence    PaymentCadence

	// Conditionally-active components, evaluated in order.
	Components []SalaryComponent

	Effective DateRange
	IsActive  bool
	Version   int
}

// =============================================================================
// SALARY COMPONENT - Conditionally-active piece of compensation
// =============================================================================

type ComponentKind string

const (
	KindBonus      ComponentKind = "bonus"
	KindCommission ComponentKind = "commission"
	KindAllowance  ComponentKind = "allowance"
	KindDeduction  ComponentKind = "deduction"
	KindTax        ComponentKind = "tax"
	KindPension    ComponentKind = "pension"
)

// IsAdditive reports whether the kind adds to gross. Deduction-like kinds
// (deduction, tax, pension) are tracked separately and subtracted after
// tax computation; they never reduce gross.
func (k ComponentKind) IsAdditive() bool {
	switch k {
	case KindBonus, KindCommission, KindAllowance:
		return true
	default:
		return false
	}
}

type ComponentFrequency string

const (
	FrequencyPeriodic ComponentFrequency = "periodic"
	FrequencyOneTime  ComponentFrequency = "one_time"
)

// CalculationMethod is the closed set of ways a component amount is
// produced. Every switch over it must cover every variant; evaluate.go
// returns an error for an unknown method rather than skipping.
type CalculationMethod string

const (
	MethodFixedAmount       CalculationMethod = "fixed_amount"
	MethodPercentOfBase     CalculationMethod = "percent_of_base"
	MethodPercentOfRevenue  CalculationMethod = "percent_of_revenue"
	MethodRatePerHour       CalculationMethod = "rate_per_hour"
	MethodPerformanceScaled CalculationMethod = "performance_scaled"
)

// Calculation carries the payload for a CalculationMethod.
//
//	FixedAmount:       Amount (minor units, unscaled)
//	PercentOfBase:     Rate (e.g., 0.05 for 5% of base)
//	PercentOfRevenue:  Rate applied to context revenue
//	RatePerHour:       Amount per hour; OvertimeHours selects which hours
//	PerformanceScaled: Rate; amount = base * rate * performance score
type Calculation struct {
	Method CalculationMethod
	Amount Money
	Rate   decimal.Decimal

	// OvertimeHours: for RatePerHour, read overtime hours from the
	// context instead of regular hours.
	OvertimeHours bool
}

// SalaryComponent is one named, conditionally-active piece of
// compensation. A component with no satisfied condition contributes zero
// and is omitted from the result; that is normal operation, not an error.
type SalaryComponent struct {
	Name        string
	Kind        ComponentKind
	Calculation Calculation
	Conditions  []ComponentCondition // logical AND; empty = always active
	Frequency   ComponentFrequency

	// AffectsTaxableIncome: when false, the component's amount is
	// excluded from the taxable income basis (additive kinds only).
	AffectsTaxableIncome bool

	// AffectsPensionBasis: when true, the component's amount counts
	// toward the pension contribution basis.
	AffectsPensionBasis bool
}

// =============================================================================
// COMPONENT CONDITIONS - Predicates gating component activation
// =============================================================================

// ConditionMetric names the context figure a condition inspects.
type ConditionMetric string

const (
	MetricHoursWorked   ConditionMetric = "hours_worked"
	MetricOvertimeHours ConditionMetric = "overtime_hours"
	MetricRevenue       ConditionMetric = "revenue"
	MetricPerformance   ConditionMetric = "performance_score"
)

type ConditionOperator string

const (
	OpGreaterThan    ConditionOperator = "gt"
	OpGreaterOrEqual ConditionOperator = "gte"
	OpLessThan       ConditionOperator = "lt"
	OpLessOrEqual    ConditionOperator = "lte"
	OpEqual          ConditionOperator = "eq"
)

type ConditionKind string

const (
	// ConditionThreshold: metric OP threshold.
	ConditionThreshold ConditionKind = "threshold"
	// ConditionRange: min <= metric <= max.
	ConditionRange ConditionKind = "range"
	// ConditionDateWindow: the period's payment date falls in the window.
	ConditionDateWindow ConditionKind = "date_window"
)

// ComponentCondition is one predicate on the computation context. All of
// a component's conditions must hold for it to contribute.
type ComponentCondition struct {
	Kind   ConditionKind
	Metric ConditionMetric
	Op     ConditionOperator

	Threshold decimal.Decimal // ConditionThreshold
	Min, Max  decimal.Decimal // ConditionRange
	Window    DateRange       // ConditionDateWindow
}

// =============================================================================
// COMPUTATION CONTEXT - Frozen per-period input snapshot
// =============================================================================

// ComputationContext is the worked-time and performance snapshot for one
// (subject, period). It is captured once at calculation time and frozen;
// the engine never fetches these figures itself.
type ComputationContext struct {
	HoursWorked   decimal.Decimal
	OvertimeHours decimal.Decimal
	Revenue       Money

	// PerformanceScore in [0,1]; nil when no review exists. A nil score
	// is a hard error for performance-scaled components.
	PerformanceScore *decimal.Decimal

	PeriodStart time.Time
	PeriodEnd   time.Time
	PaymentDate time.Time
}

// metric returns the decimal value of a condition metric, plus whether it
// is present (performance score may be absent).
func (c ComputationContext) metric(m ConditionMetric) (decimal.Decimal, bool) {
	switch m {
	case MetricHoursWorked:
		return c.HoursWorked, true
	case MetricOvertimeHours:
		return c.OvertimeHours, true
	case MetricRevenue:
		return c.Revenue.Decimal(), true
	case MetricPerformance:
		if c.PerformanceScore == nil {
			return decimal.Zero, false
		}
		return *c.PerformanceScore, true
	default:
		return decimal.Zero, false
	}
}

// =============================================================================
// COMPONENT RESULT - One evaluated component line
// =============================================================================

// ComponentResult is the evaluated amount of one active component.
// Amounts are always positive magnitudes; Kind determines whether the
// line adds to gross or is deducted net-of-tax.
type ComponentResult struct {
	Name   string
	Kind   ComponentKind
	Method CalculationMethod
	Amount Money

	AffectsTaxableIncome bool
	AffectsPensionBasis  bool
}
