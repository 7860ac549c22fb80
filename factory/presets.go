/*
presets.go - Go-based preset configurations

PURPOSE:
  Ready-made jurisdiction schedules and compensation structures for
  common setups. These are the programmatic counterpart to the JSON
  factory: demos, tests, and simple deployments use presets; anything
  bespoke goes through JSON.
*/
package factory

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// JURISDICTION PRESETS
// =============================================================================

// FlatEmployerFeeJurisdiction has a single employer-borne social fee and
// no withholding. Matches the simplest real-world setup: the employer
// pays a flat percentage on top of gross.
func FlatEmployerFeeJurisdiction(id, name, currency string, rate string, from time.Time) *payroll.JurisdictionTaxConfig {
	return &payroll.JurisdictionTaxConfig{
		JurisdictionID: payroll.JurisdictionID(id),
		Name:           name,
		Currency:       currency,
		Effective:      payroll.DateRange{Start: from},
		Rates: []payroll.ContributionRate{
			{
				Label:    "employer social fee",
				Category: payroll.CategorySocial,
				Bearer:   payroll.BearerEmployer,
				Rate:     mustDecimal(rate),
			},
		},
	}
}

// StandardJurisdiction has flat income tax withholding, employer and
// employee social contributions, and a capped employer pension rate.
func StandardJurisdiction(id, name, currency string, from time.Time, pensionCap payroll.Money) *payroll.JurisdictionTaxConfig {
	return &payroll.JurisdictionTaxConfig{
		JurisdictionID: payroll.JurisdictionID(id),
		Name:           name,
		Currency:       currency,
		Effective:      payroll.DateRange{Start: from},
		Rates: []payroll.ContributionRate{
			{
				Label:    "income tax",
				Category: payroll.CategoryIncomeTax,
				Bearer:   payroll.BearerSubject,
				Rate:     mustDecimal("0.30"),
			},
			{
				Label:    "employee social contribution",
				Category: payroll.CategorySocial,
				Bearer:   payroll.BearerSubject,
				Rate:     mustDecimal("0.07"),
			},
			{
				Label:    "employer social contribution",
				Category: payroll.CategorySocial,
				Bearer:   payroll.BearerEmployer,
				Rate:     mustDecimal("0.3142"),
			},
			{
				Label:    "employer pension",
				Category: payroll.CategoryPension,
				Bearer:   payroll.BearerEmployer,
				Rate:     mustDecimal("0.045"),
				Cap:      &pensionCap,
			},
		},
	}
}

// =============================================================================
// STRUCTURE PRESETS
// =============================================================================

// MonthlySalaried is a fixed monthly salary with no components.
func MonthlySalaried(id, subject string, base payroll.Money, currency string, from time.Time) *payroll.CompensationStructure {
	return &payroll.CompensationStructure{
		ID:         payroll.StructureID(id),
		SubjectID:  payroll.SubjectID(subject),
		Kind:       payroll.StructureFixedSalary,
		BaseAmount: base,
		Currency:   currency,
		Cadence:    payroll.CadenceMonthly,
		Effective:  payroll.DateRange{Start: from},
		IsActive:   true,
		Version:    1,
	}
}

// SalariedWithOvertime adds an overtime bonus paid per overtime hour.
func SalariedWithOvertime(id, subject string, base, hourlyRate payroll.Money, currency string, from time.Time) *payroll.CompensationStructure {
	s := MonthlySalaried(id, subject, base, currency, from)
	s.Kind = payroll.StructureMixed
	s.Components = []payroll.SalaryComponent{
		{
			Name: "overtime",
			Kind: payroll.KindBonus,
			Calculation: payroll.Calculation{
				Method:        payroll.MethodRatePerHour,
				Amount:        hourlyRate,
				OvertimeHours: true,
			},
			Conditions: []payroll.ComponentCondition{
				{
					Kind:      payroll.ConditionThreshold,
					Metric:    payroll.MetricOvertimeHours,
					Op:        payroll.OpGreaterThan,
					Threshold: decimal.Zero,
				},
			},
			Frequency:            payroll.FrequencyPeriodic,
			AffectsTaxableIncome: true,
		},
	}
	return s
}

// Commissioned pays a base plus a revenue percentage when revenue is
// positive.
func Commissioned(id, subject string, base payroll.Money, commissionRate string, currency string, from time.Time) *payroll.CompensationStructure {
	s := MonthlySalaried(id, subject, base, currency, from)
	s.Kind = payroll.StructureCommission
	s.Components = []payroll.SalaryComponent{
		{
			Name: "sales commission",
			Kind: payroll.KindCommission,
			Calculation: payroll.Calculation{
				Method: payroll.MethodPercentOfRevenue,
				Rate:   mustDecimal(commissionRate),
			},
			Conditions: []payroll.ComponentCondition{
				{
					Kind:      payroll.ConditionThreshold,
					Metric:    payroll.MetricRevenue,
					Op:        payroll.OpGreaterThan,
					Threshold: decimal.Zero,
				},
			},
			Frequency:            payroll.FrequencyPeriodic,
			AffectsTaxableIncome: true,
		},
	}
	return s
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic("factory: bad preset rate " + s)
	}
	return d
}
