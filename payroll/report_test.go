/*
report_test.go - Compliance report aggregation tests

ORGANIZATION:
  1. Reconciliation - Report totals are literal sums of Paid periods
  2. Completeness precondition - Provisional periods block the report
  3. Scoping - Jurisdiction filter, cancelled exclusion, reversals
*/
package payroll_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// RECONCILIATION
// =============================================================================

func TestAggregate_TotalsAreLiteralSums(t *testing.T) {
	// GIVEN: Two subjects with Paid March periods
	// WHEN: Aggregating the March window
	// THEN: Every report total equals the integer sum of the periods'
	//       persisted figures, per subject and grand total

	e := newEngine(t)
	e.seedSalaried(t, "emp-1")
	require.NoError(t, e.registry.Register(context.Background(),
		structureForAmount("s-emp-2", "emp-2", 2_500_000)))

	p1 := e.newDraft(t, "emp-1", time.March)
	p2 := e.newDraft(t, "emp-2", time.March)
	paid1 := payThrough(t, e, p1.ID, "pay-001")
	paid2 := payThrough(t, e, p2.ID, "pay-002")

	aggregator := payroll.NewAggregator(e.store)
	report, err := aggregator.Aggregate(context.Background(), "se",
		[]payroll.SubjectID{"emp-1", "emp-2"}, payroll.MonthWindow(2025, time.March))
	require.NoError(t, err)

	require.Len(t, report.Lines, 2)
	assert.Equal(t, payroll.SubjectID("emp-1"), report.Lines[0].SubjectID, "lines sorted by subject")
	assert.Equal(t, paid1.GrossAmount, report.Lines[0].Gross)
	assert.Equal(t, paid2.GrossAmount, report.Lines[1].Gross)

	assert.Equal(t, paid1.GrossAmount.Add(paid2.GrossAmount), report.Gross)
	assert.Equal(t, paid1.NetAmount.Add(paid2.NetAmount), report.Net)
	assert.Equal(t, paid1.Tax.EmployerSocial.Add(paid2.Tax.EmployerSocial), report.EmployerSocial)
	assert.Equal(t, paid1.TotalEmployerCost.Add(paid2.TotalEmployerCost), report.TotalEmployerCost)
	assert.Equal(t, 2025, report.TaxYear)
	assert.Len(t, report.PeriodIDs, 2)
}

func structureForAmount(id, subject string, base payroll.Money) *payroll.CompensationStructure {
	return &payroll.CompensationStructure{
		ID:         payroll.StructureID(id),
		SubjectID:  payroll.SubjectID(subject),
		Kind:       payroll.StructureFixedSalary,
		BaseAmount: base,
		Currency:   "SEK",
		Cadence:    payroll.CadenceMonthly,
		Effective:  payroll.DateRange{Start: jan2025()},
		IsActive:   true,
		Version:    1,
	}
}

func TestAggregate_AnnualWindowSpansMonths(t *testing.T) {
	// GIVEN: Paid periods for March and April
	// WHEN: Aggregating the full year
	// THEN: One line carries both periods' sums

	e := newEngine(t)
	e.seedSalaried(t, "emp-1")

	march := e.newDraft(t, "emp-1", time.March)
	april := e.newDraft(t, "emp-1", time.April)
	payThrough(t, e, march.ID, "pay-001")
	payThrough(t, e, april.ID, "pay-002")

	aggregator := payroll.NewAggregator(e.store)
	report, err := aggregator.Aggregate(context.Background(), "se",
		[]payroll.SubjectID{"emp-1"}, payroll.YearWindow(2025))
	require.NoError(t, err)

	require.Len(t, report.Lines, 1)
	assert.Len(t, report.Lines[0].PeriodIDs, 2)
	assert.Equal(t, payroll.Money(6_000_000), report.Gross)
}

// =============================================================================
// COMPLETENESS PRECONDITION
// =============================================================================

func TestAggregate_CalculatedPeriodBlocks(t *testing.T) {
	// GIVEN: One Paid and one still-Calculated period in the window
	// WHEN: Aggregating
	// THEN: Fails with IncompletePeriodSetError naming the blocker

	e := newEngine(t)
	e.seedSalaried(t, "emp-1")
	require.NoError(t, e.registry.Register(context.Background(),
		structureForAmount("s-emp-2", "emp-2", 2_500_000)))

	p1 := e.newDraft(t, "emp-1", time.March)
	p2 := e.newDraft(t, "emp-2", time.March)
	payThrough(t, e, p1.ID, "pay-001")
	_, err := e.lifecycle.Calculate(context.Background(), p2.ID)
	require.NoError(t, err)

	aggregator := payroll.NewAggregator(e.store)
	_, err = aggregator.Aggregate(context.Background(), "se",
		[]payroll.SubjectID{"emp-1", "emp-2"}, payroll.MonthWindow(2025, time.March))
	require.Error(t, err)

	var incomplete *payroll.IncompletePeriodSetError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, []payroll.PeriodID{p2.ID}, incomplete.Blocking)
}

func TestAggregate_DraftPeriodBlocks(t *testing.T) {
	e := newEngine(t)
	e.seedSalaried(t, "emp-1")
	e.newDraft(t, "emp-1", time.March)

	aggregator := payroll.NewAggregator(e.store)
	_, err := aggregator.Aggregate(context.Background(), "se",
		[]payroll.SubjectID{"emp-1"}, payroll.MonthWindow(2025, time.March))
	assert.ErrorIs(t, err, payroll.ErrIncompletePeriodSet)
}

func TestAggregate_CancelledPeriodExcludedNotBlocking(t *testing.T) {
	// GIVEN: A Paid period and a Cancelled one in the same window
	// WHEN: Aggregating
	// THEN: The report succeeds and counts only the Paid period

	e := newEngine(t)
	e.seedSalaried(t, "emp-1")
	require.NoError(t, e.registry.Register(context.Background(),
		structureForAmount("s-emp-2", "emp-2", 2_500_000)))

	p1 := e.newDraft(t, "emp-1", time.March)
	p2 := e.newDraft(t, "emp-2", time.March)
	paid := payThrough(t, e, p1.ID, "pay-001")
	_, err := e.lifecycle.Cancel(context.Background(), p2.ID)
	require.NoError(t, err)

	aggregator := payroll.NewAggregator(e.store)
	report, err := aggregator.Aggregate(context.Background(), "se",
		[]payroll.SubjectID{"emp-1", "emp-2"}, payroll.MonthWindow(2025, time.March))
	require.NoError(t, err)

	require.Len(t, report.Lines, 1)
	assert.Equal(t, paid.GrossAmount, report.Gross)
}

// =============================================================================
// SCOPING
// =============================================================================

func TestAggregate_OtherJurisdictionIgnored(t *testing.T) {
	// GIVEN: A Paid period under jurisdiction "se"
	// WHEN: Aggregating jurisdiction "no" for the same subject and window
	// THEN: The period neither counts nor blocks

	e := newEngine(t)
	e.seedSalaried(t, "emp-1")
	p := e.newDraft(t, "emp-1", time.March)
	payThrough(t, e, p.ID, "pay-001")

	aggregator := payroll.NewAggregator(e.store)
	report, err := aggregator.Aggregate(context.Background(), "no",
		[]payroll.SubjectID{"emp-1"}, payroll.MonthWindow(2025, time.March))
	require.NoError(t, err)
	assert.Empty(t, report.Lines)
	assert.Equal(t, payroll.Money(0), report.Gross)
}

func TestAggregate_PaidReversalCancelsOriginal(t *testing.T) {
	// GIVEN: A Paid period and its Paid reversal inside the window
	// WHEN: Aggregating
	// THEN: The subject's line sums to zero, to the minor unit

	e := newEngine(t)
	e.seedSalaried(t, "emp-1")
	p := e.newDraft(t, "emp-1", time.March)
	payThrough(t, e, p.ID, "pay-001")
	ctx := context.Background()

	reversal, err := e.lifecycle.CreateReversal(ctx, p.ID)
	require.NoError(t, err)
	_, err = e.lifecycle.Approve(ctx, reversal.ID, "manager-1")
	require.NoError(t, err)
	_, err = e.lifecycle.MarkPaid(ctx, reversal.ID, "pay-001-reversal")
	require.NoError(t, err)

	aggregator := payroll.NewAggregator(e.store)
	report, err := aggregator.Aggregate(ctx, "se",
		[]payroll.SubjectID{"emp-1"}, payroll.MonthWindow(2025, time.March))
	require.NoError(t, err)

	assert.Equal(t, payroll.Money(0), report.Gross)
	assert.Equal(t, payroll.Money(0), report.Net)
	assert.Equal(t, payroll.Money(0), report.TotalEmployerCost)
	require.Len(t, report.Lines, 1)
	assert.Len(t, report.Lines[0].PeriodIDs, 2)
}
