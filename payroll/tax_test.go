/*
tax_test.go - Jurisdiction withholding and contribution tests

ORGANIZATION:
  1. Flat employer fee - The simplest real schedule
  2. Full schedule - Withholding, social, capped pension
  3. Per-line rounding and sub-total integrity
  4. Conservation check
*/
package payroll_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
)

func jan2025() time.Time {
	return time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// FLAT EMPLOYER FEE
// =============================================================================

func TestComputeTax_FlatEmployerFee(t *testing.T) {
	// GIVEN: Base 3,000,000 with no components and a 31.42% employer fee
	// WHEN: Computing tax
	// THEN: Employer social is 942,600, total employer cost 3,942,600,
	//       and net equals gross (nothing is withheld)

	config := factory.FlatEmployerFeeJurisdiction("se", "Sweden", "SEK", "0.3142", jan2025())
	gross := payroll.Money(3_000_000)

	result := payroll.ComputeTax(gross, gross, nil, config)

	assert.Equal(t, payroll.Money(942_600), result.EmployerSocial)
	assert.Equal(t, payroll.Money(3_942_600), result.TotalEmployerCost)
	assert.Equal(t, payroll.Money(0), result.TotalDeductions)
	assert.Equal(t, gross, result.Net)
	require.Len(t, result.Lines, 1)
	assert.Equal(t, payroll.BearerEmployer, result.Lines[0].Bearer)
}

// =============================================================================
// FULL SCHEDULE
// =============================================================================

func TestComputeTax_FullSchedule(t *testing.T) {
	// GIVEN: The standard schedule (30% income tax, 7% employee social,
	//        31.42% employer social, 4.5% employer pension capped at 1,000,000)
	// WHEN: Computing tax on 3,000,000 gross with no components
	// THEN: Every sub-total is the integer sum of its rounded lines

	config := factory.StandardJurisdiction("se", "Sweden", "SEK", jan2025(), 1_000_000)
	gross := payroll.Money(3_000_000)

	result := payroll.ComputeTax(gross, gross, nil, config)

	assert.Equal(t, payroll.Money(900_000), result.IncomeTax)
	assert.Equal(t, payroll.Money(210_000), result.EmployeeSocial)
	assert.Equal(t, payroll.Money(942_600), result.EmployerSocial)
	// Pension basis capped at 1,000,000 before the rate applies.
	assert.Equal(t, payroll.Money(45_000), result.EmployerPension)

	assert.Equal(t, payroll.Money(1_110_000), result.TotalDeductions)
	assert.Equal(t, payroll.Money(1_890_000), result.Net)
	assert.Equal(t, payroll.Money(3_987_600), result.TotalEmployerCost)
}

func TestComputeTax_CapAppliesToBasisNotAmount(t *testing.T) {
	// GIVEN: A capped pension rate
	// WHEN: The basis is below the cap
	// THEN: The cap has no effect

	config := factory.StandardJurisdiction("se", "Sweden", "SEK", jan2025(), 1_000_000)
	gross := payroll.Money(800_000)

	result := payroll.ComputeTax(gross, gross, nil, config)
	assert.Equal(t, payroll.RoundHalfUp(gross.Decimal().Mul(dec("0.045"))), result.EmployerPension)
}

func TestComputeTax_PensionUsesPensionBasis(t *testing.T) {
	// GIVEN: A non-pensionable bonus on top of base
	// WHEN: Computing with a pension rate
	// THEN: Social/income rates see taxable income (base + bonus) while
	//       the pension rate sees only the base

	config := factory.StandardJurisdiction("se", "Sweden", "SEK", jan2025(), 100_000_000)
	base := payroll.Money(2_000_000)
	items := []payroll.ComponentResult{
		{Name: "bonus", Kind: payroll.KindBonus, Amount: 500_000, AffectsTaxableIncome: true},
	}
	gross := payroll.GrossAmount(base, items)

	result := payroll.ComputeTax(gross, base, items, config)

	assert.Equal(t, payroll.Money(2_500_000), result.TaxableIncome)
	assert.Equal(t, payroll.Money(2_000_000), result.PensionBasis)
	assert.Equal(t, payroll.Money(750_000), result.IncomeTax)
	assert.Equal(t, payroll.Money(90_000), result.EmployerPension)
}

func TestComputeTax_DeductionComponentsInTotal(t *testing.T) {
	// GIVEN: A union-fee deduction component
	// WHEN: Computing tax
	// THEN: The fee is part of total deductions but never of taxable income

	config := factory.FlatEmployerFeeJurisdiction("se", "Sweden", "SEK", "0.3142", jan2025())
	base := payroll.Money(3_000_000)
	items := []payroll.ComponentResult{
		{Name: "union fee", Kind: payroll.KindDeduction, Amount: 40_000},
	}
	gross := payroll.GrossAmount(base, items)
	require.Equal(t, base, gross, "deductions do not reduce gross")

	result := payroll.ComputeTax(gross, base, items, config)
	assert.Equal(t, payroll.Money(3_000_000), result.TaxableIncome)
	assert.Equal(t, payroll.Money(40_000), result.TotalDeductions)
	assert.Equal(t, payroll.Money(2_960_000), result.Net)
}

func TestComputeTax_EachLineRoundedIndependently(t *testing.T) {
	// GIVEN: Two rates whose products both carry fractions
	// WHEN: Computing on a basis that does not divide evenly
	// THEN: Each line is rounded half-up on its own; the sub-total is the
	//       integer sum of the rounded lines, never a re-rounded product

	config := &payroll.JurisdictionTaxConfig{
		JurisdictionID: "xx",
		Currency:       "EUR",
		Effective:      payroll.DateRange{Start: jan2025()},
		Rates: []payroll.ContributionRate{
			{Label: "tax a", Category: payroll.CategoryIncomeTax, Bearer: payroll.BearerSubject, Rate: dec("0.125")},
			{Label: "tax b", Category: payroll.CategoryIncomeTax, Bearer: payroll.BearerSubject, Rate: dec("0.175")},
		},
	}
	gross := payroll.Money(1_001)

	result := payroll.ComputeTax(gross, gross, nil, config)

	// 1001*0.125 = 125.125 -> 125; 1001*0.175 = 175.175 -> 175
	require.Len(t, result.Lines, 2)
	assert.Equal(t, payroll.Money(125), result.Lines[0].Amount)
	assert.Equal(t, payroll.Money(175), result.Lines[1].Amount)
	assert.Equal(t, payroll.Money(300), result.IncomeTax)
}

// =============================================================================
// CONSERVATION
// =============================================================================

func TestVerifyConservation_HoldsForComputedPeriod(t *testing.T) {
	// GIVEN: A period assembled from ComputeTax output
	// WHEN: Verifying conservation
	// THEN: gross == base + sum(additive items) and net == gross - total
	//       deductions, to the minor unit

	config := factory.StandardJurisdiction("se", "Sweden", "SEK", jan2025(), 1_000_000)
	base := payroll.Money(3_000_000)
	items := []payroll.ComponentResult{
		{Name: "overtime", Kind: payroll.KindBonus, Amount: 3_750, AffectsTaxableIncome: true},
	}
	gross := payroll.GrossAmount(base, items)
	tax := payroll.ComputeTax(gross, base, items, config)

	p := &payroll.PayrollPeriod{
		ID:                "p-1",
		Items:             items,
		Tax:               tax,
		GrossAmount:       gross,
		TotalDeductions:   tax.TotalDeductions,
		NetAmount:         tax.Net,
		TotalEmployerCost: tax.TotalEmployerCost,
	}

	assert.NoError(t, payroll.VerifyConservation(p, base))
}

func TestVerifyConservation_DetectsTamperedTotal(t *testing.T) {
	// GIVEN: A period whose persisted net disagrees with its itemization
	// WHEN: Verifying conservation
	// THEN: The check fails with a fatal RoundingInvariantError naming the
	//       figure

	config := factory.FlatEmployerFeeJurisdiction("se", "Sweden", "SEK", "0.3142", jan2025())
	base := payroll.Money(3_000_000)
	tax := payroll.ComputeTax(base, base, nil, config)

	p := &payroll.PayrollPeriod{
		ID:                "p-1",
		Tax:               tax,
		GrossAmount:       base,
		TotalDeductions:   tax.TotalDeductions,
		NetAmount:         tax.Net + 1, // off by one minor unit
		TotalEmployerCost: tax.TotalEmployerCost,
	}

	err := payroll.VerifyConservation(p, base)
	require.Error(t, err)
	assert.True(t, payroll.IsFatal(err))

	var inv *payroll.RoundingInvariantError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, "net", inv.Figure)
}
