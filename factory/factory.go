/*
Package factory provides JSON to Go payroll configuration conversion.

PURPOSE:
  Converts JSON definitions into JurisdictionTaxConfig and
  CompensationStructure values. Jurisdiction rules are supplied as data,
  not code: a payroll administrator can define a contribution schedule
  in JSON and the factory produces the proper Go structs.

JSON SCHEMA (tax config):
  {
    "jurisdiction": "se",
    "name": "Sweden 2025",
    "currency": "SEK",
    "effective_start": "2025-01-01",
    "rates": [
      {"label": "employer social fee", "category": "social",
       "bearer": "employer", "rate": "0.3142"},
      {"label": "municipal income tax", "category": "income_tax",
       "bearer": "subject", "rate": "0.32"}
    ]
  }

JSON SCHEMA (structure):
  {
    "id": "emp-42-2025",
    "subject": "emp-42",
    "kind": "fixed_salary",
    "base_amount": 3000000,
    "currency": "SEK",
    "cadence": "monthly",
    "effective_start": "2025-01-01",
    "components": [
      {"name": "overtime", "kind": "bonus",
       "method": "rate_per_hour", "amount": 750, "overtime_hours": true,
       "affects_taxable_income": true}
    ]
  }

KEY FEATURES:
  - Validates rates and dates at parse time
  - Sets sensible defaults (periodic frequency, taxable income)
  - Rate fields are decimal strings, never floats

SEE ALSO:
  - payroll/tax.go: JurisdictionTaxConfig definition
  - factory/presets.go: Go-based preset configurations
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// TAX CONFIG PARSING
// =============================================================================

type taxConfigJSON struct {
	Jurisdiction   string     `json:"jurisdiction"`
	Name           string     `json:"name"`
	Currency       string     `json:"currency"`
	EffectiveStart string     `json:"effective_start"`
	EffectiveEnd   string     `json:"effective_end"`
	Rates          []rateJSON `json:"rates"`
}

type rateJSON struct {
	Label    string `json:"label"`
	Category string `json:"category"`
	Bearer   string `json:"bearer"`
	Rate     string `json:"rate"`
	Cap      *int64 `json:"cap"`
}

// ParseTaxConfig converts a JSON jurisdiction definition into a
// JurisdictionTaxConfig.
func ParseTaxConfig(data []byte) (*payroll.JurisdictionTaxConfig, error) {
	var raw taxConfigJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid tax config JSON: %w", err)
	}
	if raw.Jurisdiction == "" {
		return nil, fmt.Errorf("tax config: jurisdiction is required")
	}

	effective, err := parseRange(raw.EffectiveStart, raw.EffectiveEnd)
	if err != nil {
		return nil, fmt.Errorf("tax config %q: %w", raw.Jurisdiction, err)
	}

	config := &payroll.JurisdictionTaxConfig{
		JurisdictionID: payroll.JurisdictionID(raw.Jurisdiction),
		Name:           raw.Name,
		Currency:       raw.Currency,
		Effective:      effective,
	}

	for _, r := range raw.Rates {
		rate, err := decimal.NewFromString(r.Rate)
		if err != nil {
			return nil, fmt.Errorf("rate %q: invalid rate %q", r.Label, r.Rate)
		}

		category := payroll.ContributionCategory(r.Category)
		switch category {
		case payroll.CategoryIncomeTax, payroll.CategorySocial, payroll.CategoryPension:
		default:
			return nil, fmt.Errorf("rate %q: unknown category %q", r.Label, r.Category)
		}

		bearer := payroll.Bearer(r.Bearer)
		switch bearer {
		case payroll.BearerSubject, payroll.BearerEmployer:
		default:
			return nil, fmt.Errorf("rate %q: unknown bearer %q", r.Label, r.Bearer)
		}

		cr := payroll.ContributionRate{
			Label:    r.Label,
			Category: category,
			Bearer:   bearer,
			Rate:     rate,
		}
		if r.Cap != nil {
			capped := payroll.Money(*r.Cap)
			cr.Cap = &capped
		}
		config.Rates = append(config.Rates, cr)
	}

	return config, nil
}

// =============================================================================
// STRUCTURE PARSING
// =============================================================================

type structureJSON struct {
	ID             string          `json:"id"`
	Subject        string          `json:"subject"`
	Kind           string          `json:"kind"`
	BaseAmount     int64           `json:"base_amount"`
	Currency       string          `json:"currency"`
	Cadence        string          `json:"cadence"`
	EffectiveStart string          `json:"effective_start"`
	EffectiveEnd   string          `json:"effective_end"`
	Version        int             `json:"version"`
	Components     []componentJSON `json:"components"`
}

type componentJSON struct {
	Name                 string          `json:"name"`
	Kind                 string          `json:"kind"`
	Method               string          `json:"method"`
	Amount               int64           `json:"amount"`
	Rate                 string          `json:"rate"`
	OvertimeHours        bool            `json:"overtime_hours"`
	Frequency            string          `json:"frequency"`
	AffectsTaxableIncome *bool           `json:"affects_taxable_income"`
	AffectsPensionBasis  bool            `json:"affects_pension_basis"`
	Conditions           []conditionJSON `json:"conditions"`
}

type conditionJSON struct {
	Kind        string `json:"kind"`
	Metric      string `json:"metric"`
	Op          string `json:"op"`
	Threshold   string `json:"threshold"`
	Min         string `json:"min"`
	Max         string `json:"max"`
	WindowStart string `json:"window_start"`
	WindowEnd   string `json:"window_end"`
}

// ParseStructure converts a JSON compensation definition into a
// CompensationStructure. The result still goes through Registry.Register
// for the overlap invariant; parsing only checks shape.
func ParseStructure(data []byte) (*payroll.CompensationStructure, error) {
	var raw structureJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid structure JSON: %w", err)
	}

	effective, err := parseRange(raw.EffectiveStart, raw.EffectiveEnd)
	if err != nil {
		return nil, fmt.Errorf("structure %q: %w", raw.ID, err)
	}

	version := raw.Version
	if version == 0 {
		version = 1
	}

	s := &payroll.CompensationStructure{
		ID:         payroll.StructureID(raw.ID),
		SubjectID:  payroll.SubjectID(raw.Subject),
		Kind:       payroll.StructureKind(raw.Kind),
		BaseAmount: payroll.Money(raw.BaseAmount),
		Currency:   raw.Currency,
		Cadence:    payroll.PaymentCadence(raw.Cadence),
		Effective:  effective,
		IsActive:   true,
		Version:    version,
	}

	for _, c := range raw.Components {
		comp, err := parseComponent(c)
		if err != nil {
			return nil, fmt.Errorf("structure %q: %w", raw.ID, err)
		}
		s.Components = append(s.Components, comp)
	}

	return s, nil
}

func parseComponent(c componentJSON) (payroll.SalaryComponent, error) {
	comp := payroll.SalaryComponent{
		Name:                c.Name,
		Kind:                payroll.ComponentKind(c.Kind),
		Frequency:           payroll.FrequencyPeriodic,
		AffectsPensionBasis: c.AffectsPensionBasis,
		// Components are taxable unless the definition says otherwise.
		AffectsTaxableIncome: true,
	}
	if c.Frequency != "" {
		comp.Frequency = payroll.ComponentFrequency(c.Frequency)
	}
	if c.AffectsTaxableIncome != nil {
		comp.AffectsTaxableIncome = *c.AffectsTaxableIncome
	}

	comp.Calculation = payroll.Calculation{
		Method:        payroll.CalculationMethod(c.Method),
		Amount:        payroll.Money(c.Amount),
		OvertimeHours: c.OvertimeHours,
	}
	if c.Rate != "" {
		rate, err := decimal.NewFromString(c.Rate)
		if err != nil {
			return comp, fmt.Errorf("component %q: invalid rate %q", c.Name, c.Rate)
		}
		comp.Calculation.Rate = rate
	}

	for _, cond := range c.Conditions {
		parsed, err := parseCondition(c.Name, cond)
		if err != nil {
			return comp, err
		}
		comp.Conditions = append(comp.Conditions, parsed)
	}

	return comp, nil
}

func parseCondition(component string, c conditionJSON) (payroll.ComponentCondition, error) {
	cond := payroll.ComponentCondition{
		Kind:   payroll.ConditionKind(c.Kind),
		Metric: payroll.ConditionMetric(c.Metric),
		Op:     payroll.ConditionOperator(c.Op),
	}

	var err error
	parse := func(s string) decimal.Decimal {
		if s == "" || err != nil {
			return decimal.Zero
		}
		var d decimal.Decimal
		d, err = decimal.NewFromString(s)
		return d
	}

	cond.Threshold = parse(c.Threshold)
	cond.Min = parse(c.Min)
	cond.Max = parse(c.Max)
	if err != nil {
		return cond, fmt.Errorf("component %q: invalid condition bound", component)
	}

	if c.Kind == string(payroll.ConditionDateWindow) {
		cond.Window, err = parseRange(c.WindowStart, c.WindowEnd)
		if err != nil {
			return cond, fmt.Errorf("component %q: %w", component, err)
		}
	}

	return cond, nil
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

func parseRange(start, end string) (payroll.DateRange, error) {
	if start == "" {
		return payroll.DateRange{}, fmt.Errorf("effective_start is required")
	}
	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		return payroll.DateRange{}, fmt.Errorf("invalid start date %q", start)
	}
	r := payroll.DateRange{Start: s}
	if end != "" {
		e, err := time.Parse("2006-01-02", end)
		if err != nil {
			return payroll.DateRange{}, fmt.Errorf("invalid end date %q", end)
		}
		r.End = e
	}
	return r, nil
}
