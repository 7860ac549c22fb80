/*
report.go - Compliance report aggregation

PURPOSE:
  Rolls finalized periods up into monthly or annual compliance reports.
  The one rule that matters: totals are LITERAL SUMS of the constituent
  periods' persisted figures. The aggregator never re-invokes the
  evaluator or the tax calculator, so report-to-period reconciliation
  holds by construction, to the minor unit.

PRECONDITION:
  Reports must not mix provisional and final figures. Any in-window
  period for an in-scope subject that has not reached Paid fails the
  aggregation with IncompletePeriodSetError. Cancelled periods carry no
  payable figures and are excluded without blocking.

SEE ALSO:
  - period.go: Window helpers (MonthWindow, YearWindow)
  - store.go: PeriodStore.PeriodsInWindow
*/
package payroll

import (
	"context"
	"sort"
	"time"
)

// =============================================================================
// COMPLIANCE REPORT - Read-only value object
// =============================================================================

// ReportLine is the per-subject roll-up inside a report.
type ReportLine struct {
	SubjectID         SubjectID
	PeriodIDs         []PeriodID
	Gross             Money
	IncomeTax         Money
	EmployeeSocial    Money
	EmployerSocial    Money
	EmployeePension   Money
	EmployerPension   Money
	TotalDeductions   Money
	Net               Money
	TotalEmployerCost Money
}

// ComplianceReport is a read-only aggregation of Paid periods for a
// reporting window. It references its constituent periods; its totals
// are cached sums of their persisted figures, never derived any other
// way.
type ComplianceReport struct {
	JurisdictionID JurisdictionID
	TaxYear        int
	Window         Window
	GeneratedAt    time.Time

	Lines []ReportLine

	PeriodIDs         []PeriodID
	Gross             Money
	IncomeTax         Money
	EmployeeSocial    Money
	EmployerSocial    Money
	EmployeePension   Money
	EmployerPension   Money
	TotalDeductions   Money
	Net               Money
	TotalEmployerCost Money
}

// =============================================================================
// AGGREGATOR
// =============================================================================

type Aggregator struct {
	periods PeriodStore
	now     func() time.Time
}

func NewAggregator(periods PeriodStore) *Aggregator {
	return &Aggregator{periods: periods, now: time.Now}
}

// Aggregate builds a compliance report over the subjects' Paid periods
// in the window. Fails with IncompletePeriodSetError if any in-window
// period has not reached Paid (Cancelled periods are skipped).
func (a *Aggregator) Aggregate(
	ctx context.Context,
	jurisdiction JurisdictionID,
	subjects []SubjectID,
	window Window,
) (*ComplianceReport, error) {
	all, err := a.periods.PeriodsInWindow(ctx, subjects, window)
	if err != nil {
		return nil, err
	}

	var blocking []PeriodID
	var paid []*PayrollPeriod
	for _, p := range all {
		if p.JurisdictionID != jurisdiction {
			continue
		}
		switch p.Status {
		case StatusPaid:
			paid = append(paid, p)
		case StatusCancelled:
			// No payable figures; excluded, not blocking.
		default:
			blocking = append(blocking, p.ID)
		}
	}
	if len(blocking) > 0 {
		return nil, &IncompletePeriodSetError{Blocking: blocking}
	}

	report := &ComplianceReport{
		JurisdictionID: jurisdiction,
		TaxYear:        window.Start.Year(),
		Window:         window,
		GeneratedAt:    a.now(),
	}

	bySubject := make(map[SubjectID]*ReportLine)
	for _, p := range paid {
		line, ok := bySubject[p.SubjectID]
		if !ok {
			line = &ReportLine{SubjectID: p.SubjectID}
			bySubject[p.SubjectID] = line
		}

		// Literal summation over persisted fields. Nothing recomputed.
		line.PeriodIDs = append(line.PeriodIDs, p.ID)
		line.Gross = line.Gross.Add(p.GrossAmount)
		line.IncomeTax = line.IncomeTax.Add(p.Tax.IncomeTax)
		line.EmployeeSocial = line.EmployeeSocial.Add(p.Tax.EmployeeSocial)
		line.EmployerSocial = line.EmployerSocial.Add(p.Tax.EmployerSocial)
		line.EmployeePension = line.EmployeePension.Add(p.Tax.EmployeePension)
		line.EmployerPension = line.EmployerPension.Add(p.Tax.EmployerPension)
		line.TotalDeductions = line.TotalDeductions.Add(p.TotalDeductions)
		line.Net = line.Net.Add(p.NetAmount)
		line.TotalEmployerCost = line.TotalEmployerCost.Add(p.TotalEmployerCost)
	}

	subjectIDs := make([]SubjectID, 0, len(bySubject))
	for id := range bySubject {
		subjectIDs = append(subjectIDs, id)
	}
	sort.Slice(subjectIDs, func(i, j int) bool { return subjectIDs[i] < subjectIDs[j] })

	for _, id := range subjectIDs {
		line := bySubject[id]
		report.Lines = append(report.Lines, *line)
		report.PeriodIDs = append(report.PeriodIDs, line.PeriodIDs...)
		report.Gross = report.Gross.Add(line.Gross)
		report.IncomeTax = report.IncomeTax.Add(line.IncomeTax)
		report.EmployeeSocial = report.EmployeeSocial.Add(line.EmployeeSocial)
		report.EmployerSocial = report.EmployerSocial.Add(line.EmployerSocial)
		report.EmployeePension = report.EmployeePension.Add(line.EmployeePension)
		report.EmployerPension = report.EmployerPension.Add(line.EmployerPension)
		report.TotalDeductions = report.TotalDeductions.Add(line.TotalDeductions)
		report.Net = report.Net.Add(line.Net)
		report.TotalEmployerCost = report.TotalEmployerCost.Add(line.TotalEmployerCost)
	}

	return report, nil
}
