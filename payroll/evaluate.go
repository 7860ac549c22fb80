/*
evaluate.go - Component rule evaluation

PURPOSE:
  Turns a compensation structure plus a frozen computation context into
  an ordered list of component results. This is the rule engine at the
  heart of every calculation.

EVALUATION ALGORITHM:
  For each SalaryComponent, in structure order:
  1. Evaluate every condition (logical AND). Unsatisfied -> skip the
     component entirely; it contributes zero and is omitted from the
     result. That is normal, not an error.
  2. Compute the amount per CalculationMethod, rounding the decimal
     product half-up to the minor unit exactly once.

PURITY:
  Evaluate reads only its arguments. Identical (structure, context)
  always yields identical results, which is what makes recalculation
  idempotent and audit possible.

THE ONE HARD ERROR:
  A performance-scaled component whose conditions are satisfied but
  whose context carries no performance score fails with
  MissingPerformanceInputError. A silent zero here would hide a missing
  review from the payroll run.

SEE ALSO:
  - types.go: Calculation / ComponentCondition unions
  - tax.go: Consumes the gross and basis figures produced here
*/
package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EVALUATION
// =============================================================================

// Evaluate computes the active components of a structure for a context.
// The returned slice preserves structure order and contains only
// components whose conditions were all satisfied.
func Evaluate(structure *CompensationStructure, ctx ComputationContext) ([]ComponentResult, error) {
	var results []ComponentResult

	for _, comp := range structure.Components {
		ok, err := conditionsSatisfied(comp, ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		amount, err := componentAmount(comp, structure.BaseAmount, ctx)
		if err != nil {
			return nil, err
		}

		results = append(results, ComponentResult{
			Name:                 comp.Name,
			Kind:                 comp.Kind,
			Method:               comp.Calculation.Method,
			Amount:               amount,
			AffectsTaxableIncome: comp.AffectsTaxableIncome,
			AffectsPensionBasis:  comp.AffectsPensionBasis,
		})
	}

	return results, nil
}

// conditionsSatisfied applies the component's condition list (AND).
func conditionsSatisfied(comp SalaryComponent, ctx ComputationContext) (bool, error) {
	for _, cond := range comp.Conditions {
		ok, err := evalCondition(cond, ctx)
		if err != nil {
			return false, fmt.Errorf("component %q: %w", comp.Name, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evalCondition(cond ComponentCondition, ctx ComputationContext) (bool, error) {
	switch cond.Kind {
	case ConditionThreshold:
		value, present := ctx.metric(cond.Metric)
		if !present {
			// Absent metric cannot satisfy a threshold; the component is
			// simply inactive. Only performance-scaled CALCULATION makes
			// an absent score an error.
			return false, nil
		}
		return compare(value, cond.Op, cond.Threshold), nil

	case ConditionRange:
		value, present := ctx.metric(cond.Metric)
		if !present {
			return false, nil
		}
		return value.GreaterThanOrEqual(cond.Min) && value.LessThanOrEqual(cond.Max), nil

	case ConditionDateWindow:
		return cond.Window.Contains(ctx.PaymentDate), nil

	default:
		return false, fmt.Errorf("unknown condition kind %q", cond.Kind)
	}
}

func compare(value decimal.Decimal, op ConditionOperator, threshold decimal.Decimal) bool {
	switch op {
	case OpGreaterThan:
		return value.GreaterThan(threshold)
	case OpGreaterOrEqual:
		return value.GreaterThanOrEqual(threshold)
	case OpLessThan:
		return value.LessThan(threshold)
	case OpLessOrEqual:
		return value.LessThanOrEqual(threshold)
	case OpEqual:
		return value.Equal(threshold)
	default:
		return false
	}
}

// =============================================================================
// AMOUNT COMPUTATION - One rounding per produced amount
// =============================================================================

func componentAmount(comp SalaryComponent, base Money, ctx ComputationContext) (Money, error) {
	calc := comp.Calculation

	switch calc.Method {
	case MethodFixedAmount:
		// Stored minor-unit value, unscaled. No rounding needed.
		return calc.Amount, nil

	case MethodPercentOfBase:
		return RoundHalfUp(base.Decimal().Mul(calc.Rate)), nil

	case MethodPercentOfRevenue:
		return RoundHalfUp(ctx.Revenue.Decimal().Mul(calc.Rate)), nil

	case MethodRatePerHour:
		hours := ctx.HoursWorked
		if calc.OvertimeHours {
			hours = ctx.OvertimeHours
		}
		return RoundHalfUp(calc.Amount.Decimal().Mul(hours)), nil

	case MethodPerformanceScaled:
		if ctx.PerformanceScore == nil {
			return 0, &MissingPerformanceInputError{Component: comp.Name}
		}
		product := base.Decimal().Mul(calc.Rate).Mul(*ctx.PerformanceScore)
		return RoundHalfUp(product), nil

	default:
		return 0, fmt.Errorf("component %q: unknown calculation method %q", comp.Name, calc.Method)
	}
}

// =============================================================================
// DERIVED FIGURES - Gross and contribution bases
// =============================================================================

// GrossAmount is base plus every additive component amount. Deduction-like
// components do not reduce gross; they are applied net-of-tax.
func GrossAmount(base Money, items []ComponentResult) Money {
	gross := base
	for _, item := range items {
		if item.Kind.IsAdditive() {
			gross = gross.Add(item.Amount)
		}
	}
	return gross
}

// DeductionComponents sums the deduction-like component amounts. These are
// subtracted after tax computation, distinct from withholding.
func DeductionComponents(items []ComponentResult) Money {
	var total Money
	for _, item := range items {
		if !item.Kind.IsAdditive() {
			total = total.Add(item.Amount)
		}
	}
	return total
}

// TaxableIncome is gross minus additive components flagged as not
// affecting taxable income. The base amount is always taxable.
func TaxableIncome(gross Money, items []ComponentResult) Money {
	taxable := gross
	for _, item := range items {
		if item.Kind.IsAdditive() && !item.AffectsTaxableIncome {
			taxable = taxable.Sub(item.Amount)
		}
	}
	return taxable
}

// PensionBasis is base plus additive components flagged as counting
// toward the pension basis.
func PensionBasis(base Money, items []ComponentResult) Money {
	basis := base
	for _, item := range items {
		if item.Kind.IsAdditive() && item.AffectsPensionBasis {
			basis = basis.Add(item.Amount)
		}
	}
	return basis
}
