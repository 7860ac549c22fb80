/*
tax.go - Jurisdiction withholding and contribution calculation

PURPOSE:
  Applies a jurisdiction's contribution schedule to the evaluator's
  output: income tax withholding, employee/employer social contributions,
  and pension contributions, each computed against its own basis and
  rounded independently.

BASES:
  income tax, social:  taxable income (gross minus additive components
                       flagged as not affecting taxable income)
  pension:             pension basis (base plus additive components
                       flagged as counting toward pension)
  capped rates:        rate applied to min(basis, cap)

ROUNDING:
  Each named contribution line is rounded half-up to the minor unit,
  once, at production. Sub-totals are integer sums of the lines, never
  re-rounded, so a report can reconcile at any granularity.

RESULT SHAPE:
  Every sub-total is retained in TaxResult, not only the final net
  figure. The period record persists all of them.

SEE ALSO:
  - evaluate.go: TaxableIncome / PensionBasis helpers
  - lifecycle.go: Runs the conservation check before persisting
*/
package payroll

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// JURISDICTION TAX CONFIG
// =============================================================================

// ContributionCategory classifies a rate for sub-total bucketing.
type ContributionCategory string

const (
	CategoryIncomeTax ContributionCategory = "income_tax"
	CategorySocial    ContributionCategory = "social"
	CategoryPension   ContributionCategory = "pension"
)

// Bearer identifies who carries a contribution's cost.
type Bearer string

const (
	BearerSubject  Bearer = "subject"
	BearerEmployer Bearer = "employer"
)

// ContributionRate is one named rate in a jurisdiction's schedule.
type ContributionRate struct {
	Label    string
	Category ContributionCategory
	Bearer   Bearer
	Rate     decimal.Decimal

	// Cap, when non-nil, caps the basis the rate applies to.
	Cap *Money
}

// JurisdictionTaxConfig is the rule set for one jurisdiction over an
// effective date range. Supplied as data; the engine interprets nothing.
type JurisdictionTaxConfig struct {
	JurisdictionID JurisdictionID
	Name           string
	Currency       string
	Effective      DateRange
	Rates          []ContributionRate
}

// =============================================================================
// TAX RESULT - Every named figure retained
// =============================================================================

// TaxLine is one computed contribution, with the exact basis and rate
// used so the figure can be audited without re-derivation.
type TaxLine struct {
	Label    string
	Category ContributionCategory
	Bearer   Bearer
	Basis    Money
	Rate     decimal.Decimal
	Amount   Money
}

type TaxResult struct {
	TaxableIncome Money
	PensionBasis  Money

	Lines []TaxLine

	IncomeTax       Money // subject-borne, income-tax-labeled rates
	EmployeeSocial  Money // subject-borne social contributions
	EmployerSocial  Money // employer-borne social contributions
	EmployeePension Money
	EmployerPension Money

	// DeductionComponents: net-of-tax component deductions from the
	// evaluator, carried here so TotalDeductions is self-contained.
	DeductionComponents Money

	TotalDeductions   Money // income tax + employee social + employee pension + deduction components
	Net               Money // gross - total deductions
	TotalEmployerCost Money // gross + employer social + employer pension
}

// =============================================================================
// COMPUTATION
// =============================================================================

// ComputeTax applies the jurisdiction schedule to an evaluated period.
// gross and items come from the evaluator; base is the structure's base
// amount (needed for the pension basis).
func ComputeTax(gross, base Money, items []ComponentResult, config *JurisdictionTaxConfig) TaxResult {
	result := TaxResult{
		TaxableIncome:       TaxableIncome(gross, items),
		PensionBasis:        PensionBasis(base, items),
		DeductionComponents: DeductionComponents(items),
	}

	for _, rate := range config.Rates {
		basis := result.TaxableIncome
		if rate.Category == CategoryPension {
			basis = result.PensionBasis
		}
		if rate.Cap != nil {
			basis = basis.Min(*rate.Cap)
		}

		// One rounding per named contribution.
		amount := RoundHalfUp(basis.Decimal().Mul(rate.Rate))

		result.Lines = append(result.Lines, TaxLine{
			Label:    rate.Label,
			Category: rate.Category,
			Bearer:   rate.Bearer,
			Basis:    basis,
			Rate:     rate.Rate,
			Amount:   amount,
		})

		switch {
		case rate.Category == CategoryIncomeTax && rate.Bearer == BearerSubject:
			result.IncomeTax = result.IncomeTax.Add(amount)
		case rate.Category == CategorySocial && rate.Bearer == BearerSubject:
			result.EmployeeSocial = result.EmployeeSocial.Add(amount)
		case rate.Category == CategorySocial && rate.Bearer == BearerEmployer:
			result.EmployerSocial = result.EmployerSocial.Add(amount)
		case rate.Category == CategoryPension && rate.Bearer == BearerSubject:
			result.EmployeePension = result.EmployeePension.Add(amount)
		case rate.Category == CategoryPension && rate.Bearer == BearerEmployer:
			result.EmployerPension = result.EmployerPension.Add(amount)
		}
	}

	result.TotalDeductions = result.IncomeTax.
		Add(result.EmployeeSocial).
		Add(result.EmployeePension).
		Add(result.DeductionComponents)
	result.Net = gross.Sub(result.TotalDeductions)
	result.TotalEmployerCost = gross.Add(result.EmployerSocial).Add(result.EmployerPension)

	return result
}

// =============================================================================
// CONSERVATION CHECK
// =============================================================================

// VerifyConservation re-sums a period's itemized figures and compares
// them against the persisted totals. A mismatch is a defect in the
// evaluator or tax calculator, never user input; the calculation must
// abort instead of persisting the period.
func VerifyConservation(p *PayrollPeriod, base Money) error {
	if got := GrossAmount(base, p.Items); got != p.GrossAmount {
		return &RoundingInvariantError{PeriodID: p.ID, Figure: "gross", Itemized: got, Total: p.GrossAmount}
	}

	itemizedDeductions := p.Tax.IncomeTax.
		Add(p.Tax.EmployeeSocial).
		Add(p.Tax.EmployeePension).
		Add(DeductionComponents(p.Items))
	if itemizedDeductions != p.TotalDeductions {
		return &RoundingInvariantError{PeriodID: p.ID, Figure: "total_deductions", Itemized: itemizedDeductions, Total: p.TotalDeductions}
	}

	if net := p.GrossAmount.Sub(p.TotalDeductions); net != p.NetAmount {
		return &RoundingInvariantError{PeriodID: p.ID, Figure: "net", Itemized: net, Total: p.NetAmount}
	}

	employerCost := p.GrossAmount.Add(p.Tax.EmployerSocial).Add(p.Tax.EmployerPension)
	if employerCost != p.TotalEmployerCost {
		return &RoundingInvariantError{PeriodID: p.ID, Figure: "total_employer_cost", Itemized: employerCost, Total: p.TotalEmployerCost}
	}

	return nil
}
