/*
lifecycle.go - Payroll period lifecycle manager

PURPOSE:
  Orchestrates the registry, evaluator, and tax calculator for one
  (subject, period), persists the itemized result, and drives the period
  through its state machine.

STATE MACHINE (see period.go):
  Draft -> Calculated -> Approved -> Paid, Cancelled from Draft or
  Calculated only. Approved and Paid periods are corrected by
  compensating reversal periods, never by cancellation.

CONCURRENCY DISCIPLINE:
  At most one in-flight Calculate per period. A per-period mutex
  serializes concurrent Calculate calls; Calculate overwrites prior
  itemized results non-atomically at the field level, so without
  serialization a lost-update race is possible. Different periods share
  no state and run fully in parallel (see batch.go).

  State transitions themselves are compare-and-swap at the store layer:
  the status precondition check and the write happen as one indivisible
  operation.

PAYMENT EVENT:
  MarkPaid is the sole trigger for the ledger-impact event. The sink
  deduplicates on payment reference, so a retry after a failed emission
  delivers at most once.

SEE ALSO:
  - registry.go: Structure resolution
  - evaluate.go, tax.go: The pure computation Calculate runs
  - batch.go: Parallel batch runs over many subjects
*/
package payroll

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// =============================================================================
// LIFECYCLE MANAGER
// =============================================================================

type Lifecycle struct {
	registry *Registry
	configs  ConfigStore
	periods  PeriodStore
	events   LedgerEventSink
	log      zerolog.Logger

	// locks holds one mutex per period, keyed by id (ids are unique per
	// (subject, start, end) triple). Entries are never removed; the map
	// grows with the number of periods ever calculated in-process.
	locks   map[PeriodID]*sync.Mutex
	locksMu sync.Mutex

	// now is swappable for tests.
	now func() time.Time
}

func NewLifecycle(registry *Registry, configs ConfigStore, periods PeriodStore, events LedgerEventSink, log zerolog.Logger) *Lifecycle {
	return &Lifecycle{
		registry: registry,
		configs:  configs,
		periods:  periods,
		events:   events,
		log:      log,
		locks:    make(map[PeriodID]*sync.Mutex),
		now:      time.Now,
	}
}

func (l *Lifecycle) lockFor(id PeriodID) *sync.Mutex {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()
	mu, ok := l.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		l.locks[id] = mu
	}
	return mu
}

// =============================================================================
// PERIOD CREATION
// =============================================================================

// CreatePeriod opens a new Draft period with a frozen context snapshot.
// The snapshot is the only time worked-hours and revenue enter the
// engine; recalculation re-reads structure and config, never the context.
func (l *Lifecycle) CreatePeriod(
	ctx context.Context,
	subject SubjectID,
	jurisdiction JurisdictionID,
	start, end, paymentDate time.Time,
	snapshot ComputationContext,
) (*PayrollPeriod, error) {
	if Day(end).Before(Day(start)) {
		return nil, fmt.Errorf("period end %s before start %s", end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	snapshot.PeriodStart = Day(start)
	snapshot.PeriodEnd = Day(end)
	snapshot.PaymentDate = Day(paymentDate)

	now := l.now()
	p := &PayrollPeriod{
		ID:             PeriodID(uuid.NewString()),
		SubjectID:      subject,
		JurisdictionID: jurisdiction,
		Start:          Day(start),
		End:            Day(end),
		PaymentDate:    Day(paymentDate),
		Context:        snapshot,
		Status:         StatusDraft,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := l.periods.CreatePeriod(ctx, p); err != nil {
		return nil, err
	}

	l.log.Info().
		Str("period", string(p.ID)).
		Str("subject", string(subject)).
		Str("start", p.Start.Format("2006-01-02")).
		Str("end", p.End.Format("2006-01-02")).
		Msg("period created")

	return p, nil
}

// Period returns the stored period record.
func (l *Lifecycle) Period(ctx context.Context, id PeriodID) (*PayrollPeriod, error) {
	return l.periods.Period(ctx, id)
}

// =============================================================================
// CALCULATE
// =============================================================================

// Calculate runs the full computation for a period in Draft or
// Calculated state and persists the itemized result. Re-running in
// Calculated state overwrites prior results and bumps
// CalculationVersion - unless nothing changed upstream, in which case
// the stored result is already byte-identical and no bump happens.
func (l *Lifecycle) Calculate(ctx context.Context, id PeriodID) (*PayrollPeriod, error) {
	mu := l.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	p, err := l.periods.Period(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Status.IsMutable() {
		return nil, &TransitionError{PeriodID: id, From: p.Status, Requested: StatusCalculated}
	}

	structure, err := l.registry.ActiveStructureFor(ctx, p.SubjectID, p.PaymentDate)
	if err != nil {
		// NotFound here means the subject has no active structure for
		// the payment date; the period stays where it is.
		return nil, err
	}

	config, err := l.configs.ConfigFor(ctx, p.JurisdictionID, p.PaymentDate)
	if err != nil {
		return nil, err
	}

	items, err := Evaluate(structure, p.Context)
	if err != nil {
		return nil, err
	}

	gross := GrossAmount(structure.BaseAmount, items)
	tax := ComputeTax(gross, structure.BaseAmount, items, config)

	candidate := *p
	candidate.StructureID = structure.ID
	candidate.StructureVersion = structure.Version
	candidate.Items = items
	candidate.Tax = tax
	candidate.Currency = structure.Currency
	candidate.GrossAmount = gross
	candidate.TotalDeductions = tax.TotalDeductions
	candidate.NetAmount = tax.Net
	candidate.TotalEmployerCost = tax.TotalEmployerCost

	// Conservation check before anything is persisted. A violation is a
	// defect in the evaluator or tax calculator and is fatal for this
	// period; the inconsistent result must never be written.
	if err := VerifyConservation(&candidate, structure.BaseAmount); err != nil {
		l.log.Error().Err(err).Str("period", string(id)).Msg("conservation check failed")
		return nil, err
	}

	if p.Status == StatusCalculated && calculationEqual(p, &candidate) {
		// Deterministic re-run with unchanged inputs: stored result is
		// already identical, no version bump.
		return p, nil
	}

	version := p.CalculationVersion + 1
	updated, err := l.periods.Transition(ctx, id,
		[]PeriodStatus{StatusDraft, StatusCalculated}, StatusCalculated,
		func(cur *PayrollPeriod) error {
			cur.StructureID = candidate.StructureID
			cur.StructureVersion = candidate.StructureVersion
			cur.Items = candidate.Items
			cur.Tax = candidate.Tax
			cur.Currency = candidate.Currency
			cur.GrossAmount = candidate.GrossAmount
			cur.TotalDeductions = candidate.TotalDeductions
			cur.NetAmount = candidate.NetAmount
			cur.TotalEmployerCost = candidate.TotalEmployerCost
			cur.CalculationVersion = version
			cur.UpdatedAt = l.now()
			return nil
		})
	if err != nil {
		return nil, err
	}

	l.log.Info().
		Str("period", string(id)).
		Int("version", updated.CalculationVersion).
		Int64("gross", int64(updated.GrossAmount)).
		Int64("net", int64(updated.NetAmount)).
		Msg("period calculated")

	return updated, nil
}

// calculationEqual reports whether a re-run produced the same result as
// the stored one: same structure version, same items, same totals.
func calculationEqual(a, b *PayrollPeriod) bool {
	if a.StructureID != b.StructureID || a.StructureVersion != b.StructureVersion {
		return false
	}
	if a.GrossAmount != b.GrossAmount || a.TotalDeductions != b.TotalDeductions ||
		a.NetAmount != b.NetAmount || a.TotalEmployerCost != b.TotalEmployerCost {
		return false
	}
	if len(a.Items) != len(b.Items) {
		return false
	}
	for i := range a.Items {
		if a.Items[i] != b.Items[i] {
			return false
		}
	}
	if len(a.Tax.Lines) != len(b.Tax.Lines) {
		return false
	}
	for i := range a.Tax.Lines {
		x, y := a.Tax.Lines[i], b.Tax.Lines[i]
		if x.Label != y.Label || x.Basis != y.Basis || x.Amount != y.Amount || !x.Rate.Equal(y.Rate) {
			return false
		}
	}
	return true
}

// =============================================================================
// APPROVE / MARK PAID / CANCEL
// =============================================================================

// Approve freezes a Calculated period. After this, every field except
// status and paid-at is immutable.
func (l *Lifecycle) Approve(ctx context.Context, id PeriodID, approver string) (*PayrollPeriod, error) {
	updated, err := l.periods.Transition(ctx, id,
		[]PeriodStatus{StatusCalculated}, StatusApproved,
		func(cur *PayrollPeriod) error {
			now := l.now()
			cur.ApprovedBy = approver
			cur.ApprovedAt = &now
			cur.UpdatedAt = now
			return nil
		})
	if err != nil {
		return nil, err
	}

	l.log.Info().Str("period", string(id)).Str("approver", approver).Msg("period approved")
	return updated, nil
}

// MarkPaid records payment of an Approved period and emits the
// ledger-impact event. Payment execution itself belongs to an external
// collaborator; the engine only records the fact.
//
// Retry contract: if a previous MarkPaid transitioned the period but the
// event emission failed, calling again with the SAME payment reference
// re-emits idempotently and succeeds.
func (l *Lifecycle) MarkPaid(ctx context.Context, id PeriodID, paymentRef string) (*PayrollPeriod, error) {
	if paymentRef == "" {
		return nil, fmt.Errorf("payment reference is required")
	}

	p, err := l.periods.Period(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Status == StatusPaid {
		if p.PaymentReference != paymentRef {
			return nil, &TransitionError{PeriodID: id, From: p.Status, Requested: StatusPaid}
		}
		// Retry after a failed emission: re-emit, sink dedupes.
		if err := l.emitPaid(ctx, p); err != nil {
			return nil, err
		}
		return p, nil
	}

	updated, err := l.periods.Transition(ctx, id,
		[]PeriodStatus{StatusApproved}, StatusPaid,
		func(cur *PayrollPeriod) error {
			now := l.now()
			cur.PaidAt = &now
			cur.PaymentReference = paymentRef
			cur.UpdatedAt = now
			return nil
		})
	if err != nil {
		return nil, err
	}

	if err := l.emitPaid(ctx, updated); err != nil {
		// Period is Paid but the event did not go out; the caller must
		// retry with the same reference.
		return nil, err
	}

	l.log.Info().Str("period", string(id)).Str("payment_ref", paymentRef).Msg("period paid")
	return updated, nil
}

func (l *Lifecycle) emitPaid(ctx context.Context, p *PayrollPeriod) error {
	return l.events.Emit(ctx, LedgerEvent{
		ID:                uuid.NewString(),
		PeriodID:          p.ID,
		SubjectID:         p.SubjectID,
		Currency:          p.Currency,
		TotalEmployerCost: p.TotalEmployerCost,
		PaymentDate:       p.PaymentDate,
		PaymentReference:  p.PaymentReference,
		EmittedAt:         l.now(),
	})
}

// Cancel abandons a Draft or Calculated period. Approved and Paid
// periods cannot be cancelled; use CreateReversal instead so the audit
// history survives.
func (l *Lifecycle) Cancel(ctx context.Context, id PeriodID) (*PayrollPeriod, error) {
	updated, err := l.periods.Transition(ctx, id,
		[]PeriodStatus{StatusDraft, StatusCalculated}, StatusCancelled,
		func(cur *PayrollPeriod) error {
			cur.UpdatedAt = l.now()
			return nil
		})
	if err != nil {
		return nil, err
	}

	l.log.Info().Str("period", string(id)).Msg("period cancelled")
	return updated, nil
}

// =============================================================================
// REVERSAL - Correcting a Paid period
// =============================================================================

// CreateReversal opens a compensating period that exactly negates a Paid
// period's figures. The reversal is created directly in Calculated state
// with the negated itemization - it is a compensating entry, not a
// recomputation, so its figures are the original's by construction.
func (l *Lifecycle) CreateReversal(ctx context.Context, original PeriodID) (*PayrollPeriod, error) {
	orig, err := l.periods.Period(ctx, original)
	if err != nil {
		return nil, err
	}
	if orig.Status != StatusPaid {
		return nil, &TransitionError{PeriodID: original, From: orig.Status, Requested: StatusCancelled}
	}

	items := make([]ComponentResult, len(orig.Items))
	for i, item := range orig.Items {
		item.Amount = item.Amount.Neg()
		items[i] = item
	}

	tax := orig.Tax
	tax.Lines = make([]TaxLine, len(orig.Tax.Lines))
	for i, line := range orig.Tax.Lines {
		line.Amount = line.Amount.Neg()
		line.Basis = line.Basis.Neg()
		tax.Lines[i] = line
	}
	tax.TaxableIncome = orig.Tax.TaxableIncome.Neg()
	tax.PensionBasis = orig.Tax.PensionBasis.Neg()
	tax.IncomeTax = orig.Tax.IncomeTax.Neg()
	tax.EmployeeSocial = orig.Tax.EmployeeSocial.Neg()
	tax.EmployerSocial = orig.Tax.EmployerSocial.Neg()
	tax.EmployeePension = orig.Tax.EmployeePension.Neg()
	tax.EmployerPension = orig.Tax.EmployerPension.Neg()
	tax.DeductionComponents = orig.Tax.DeductionComponents.Neg()
	tax.TotalDeductions = orig.Tax.TotalDeductions.Neg()
	tax.Net = orig.Tax.Net.Neg()
	tax.TotalEmployerCost = orig.Tax.TotalEmployerCost.Neg()

	now := l.now()
	reversal := &PayrollPeriod{
		ID:                 PeriodID(uuid.NewString()),
		SubjectID:          orig.SubjectID,
		StructureID:        orig.StructureID,
		StructureVersion:   orig.StructureVersion,
		JurisdictionID:     orig.JurisdictionID,
		Start:              orig.Start,
		End:                orig.End,
		PaymentDate:        Day(now),
		Context:            orig.Context,
		Status:             StatusCalculated,
		CalculationVersion: 1,
		Items:              items,
		Tax:                tax,
		Currency:           orig.Currency,
		GrossAmount:        orig.GrossAmount.Neg(),
		TotalDeductions:    orig.TotalDeductions.Neg(),
		NetAmount:          orig.NetAmount.Neg(),
		TotalEmployerCost:  orig.TotalEmployerCost.Neg(),
		ReversalOf:         orig.ID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := l.periods.CreatePeriod(ctx, reversal); err != nil {
		return nil, err
	}

	l.log.Info().
		Str("period", string(reversal.ID)).
		Str("reverses", string(orig.ID)).
		Msg("reversal period created")

	return reversal, nil
}
