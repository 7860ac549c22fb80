// Package store provides in-memory implementations of the payroll
// persistence interfaces, for tests and development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// MEMORY STORE - Implements all persistence interfaces
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	structures map[payroll.SubjectID][]*payroll.CompensationStructure
	configs    map[payroll.JurisdictionID][]*payroll.JurisdictionTaxConfig
	periods    map[payroll.PeriodID]*payroll.PayrollPeriod
	events     []payroll.LedgerEvent
	eventRefs  map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		structures: make(map[payroll.SubjectID][]*payroll.CompensationStructure),
		configs:    make(map[payroll.JurisdictionID][]*payroll.JurisdictionTaxConfig),
		periods:    make(map[payroll.PeriodID]*payroll.PayrollPeriod),
		eventRefs:  make(map[string]bool),
	}
}

// Compile-time interface checks.
var (
	_ payroll.StructureStore  = (*Memory)(nil)
	_ payroll.ConfigStore     = (*Memory)(nil)
	_ payroll.PeriodStore     = (*Memory)(nil)
	_ payroll.LedgerEventSink = (*Memory)(nil)
)

// =============================================================================
// STRUCTURE STORE
// =============================================================================

func (m *Memory) SaveStructure(_ context.Context, s *payroll.CompensationStructure) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := cloneStructure(s)
	list := m.structures[s.SubjectID]
	for i, existing := range list {
		if existing.ID == s.ID {
			list[i] = clone
			return nil
		}
	}
	m.structures[s.SubjectID] = append(list, clone)
	return nil
}

func (m *Memory) Structure(_ context.Context, id payroll.StructureID) (*payroll.CompensationStructure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, list := range m.structures {
		for _, s := range list {
			if s.ID == id {
				return cloneStructure(s), nil
			}
		}
	}
	return nil, payroll.ErrStructureNotFound
}

func (m *Memory) StructuresBySubject(_ context.Context, subject payroll.SubjectID) ([]*payroll.CompensationStructure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.structures[subject]
	result := make([]*payroll.CompensationStructure, len(list))
	for i, s := range list {
		result[i] = cloneStructure(s)
	}
	return result, nil
}

func cloneStructure(s *payroll.CompensationStructure) *payroll.CompensationStructure {
	clone := *s
	clone.Components = append([]payroll.SalaryComponent(nil), s.Components...)
	for i := range clone.Components {
		clone.Components[i].Conditions = append([]payroll.ComponentCondition(nil), s.Components[i].Conditions...)
	}
	return &clone
}

// =============================================================================
// CONFIG STORE
// =============================================================================

func (m *Memory) SaveConfig(_ context.Context, c *payroll.JurisdictionTaxConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := cloneConfig(c)
	m.configs[c.JurisdictionID] = append(m.configs[c.JurisdictionID], clone)
	return nil
}

func (m *Memory) ConfigFor(_ context.Context, jurisdiction payroll.JurisdictionID, date time.Time) (*payroll.JurisdictionTaxConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Latest-registered config covering the date wins.
	list := m.configs[jurisdiction]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Effective.Contains(date) {
			return cloneConfig(list[i]), nil
		}
	}
	return nil, payroll.ErrConfigNotFound
}

func cloneConfig(c *payroll.JurisdictionTaxConfig) *payroll.JurisdictionTaxConfig {
	clone := *c
	clone.Rates = append([]payroll.ContributionRate(nil), c.Rates...)
	for i, rate := range c.Rates {
		if rate.Cap != nil {
			capped := *rate.Cap
			clone.Rates[i].Cap = &capped
		}
	}
	return &clone
}

// =============================================================================
// PERIOD STORE
// =============================================================================

func (m *Memory) CreatePeriod(_ context.Context, p *payroll.PayrollPeriod) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.periods {
		if existing.SubjectID != p.SubjectID {
			continue
		}
		// Reversal periods share the original's range; uniqueness is one
		// reversal per original, ordinary periods unique on the triple.
		if p.ReversalOf != "" {
			if existing.ReversalOf == p.ReversalOf {
				return payroll.ErrDuplicatePeriod
			}
			continue
		}
		if existing.ReversalOf == "" &&
			existing.Start.Equal(p.Start) && existing.End.Equal(p.End) {
			return payroll.ErrDuplicatePeriod
		}
	}

	m.periods[p.ID] = clonePeriod(p)
	return nil
}

func (m *Memory) Period(_ context.Context, id payroll.PeriodID) (*payroll.PayrollPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.periods[id]
	if !ok {
		return nil, payroll.ErrPeriodNotFound
	}
	return clonePeriod(p), nil
}

func (m *Memory) PeriodsBySubject(_ context.Context, subject payroll.SubjectID) ([]*payroll.PayrollPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*payroll.PayrollPeriod
	for _, p := range m.periods {
		if p.SubjectID == subject {
			result = append(result, clonePeriod(p))
		}
	}
	sortPeriods(result)
	return result, nil
}

func (m *Memory) PeriodsInWindow(_ context.Context, subjects []payroll.SubjectID, w payroll.Window) ([]*payroll.PayrollPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inScope := make(map[payroll.SubjectID]bool, len(subjects))
	for _, s := range subjects {
		inScope[s] = true
	}

	var result []*payroll.PayrollPeriod
	for _, p := range m.periods {
		if inScope[p.SubjectID] && w.Contains(p) {
			result = append(result, clonePeriod(p))
		}
	}
	sortPeriods(result)
	return result, nil
}

func (m *Memory) Transition(
	_ context.Context,
	id payroll.PeriodID,
	from []payroll.PeriodStatus,
	to payroll.PeriodStatus,
	mutate func(*payroll.PayrollPeriod) error,
) (*payroll.PayrollPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.periods[id]
	if !ok {
		return nil, payroll.ErrPeriodNotFound
	}

	allowed := false
	for _, status := range from {
		if p.Status == status {
			allowed = true
			break
		}
	}
	if !allowed || !payroll.CanTransition(p.Status, to) {
		return nil, &payroll.TransitionError{PeriodID: id, From: p.Status, Requested: to}
	}

	// Mutate a copy; only swap in on success so a failed mutate leaves
	// the stored record untouched.
	updated := clonePeriod(p)
	if err := mutate(updated); err != nil {
		return nil, err
	}
	updated.Status = to

	m.periods[id] = updated
	return clonePeriod(updated), nil
}

func clonePeriod(p *payroll.PayrollPeriod) *payroll.PayrollPeriod {
	clone := *p
	clone.Items = append([]payroll.ComponentResult(nil), p.Items...)
	clone.Tax.Lines = append([]payroll.TaxLine(nil), p.Tax.Lines...)
	if p.ApprovedAt != nil {
		t := *p.ApprovedAt
		clone.ApprovedAt = &t
	}
	if p.PaidAt != nil {
		t := *p.PaidAt
		clone.PaidAt = &t
	}
	if p.Context.PerformanceScore != nil {
		score := *p.Context.PerformanceScore
		clone.Context.PerformanceScore = &score
	}
	return &clone
}

func sortPeriods(periods []*payroll.PayrollPeriod) {
	sort.Slice(periods, func(i, j int) bool {
		a, b := periods[i], periods[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if a.SubjectID != b.SubjectID {
			return a.SubjectID < b.SubjectID
		}
		return a.ID < b.ID
	})
}

// =============================================================================
// LEDGER EVENT SINK
// =============================================================================

func (m *Memory) Emit(_ context.Context, event payroll.LedgerEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.eventRefs[event.PaymentReference] {
		return nil // idempotent re-delivery
	}
	m.eventRefs[event.PaymentReference] = true
	m.events = append(m.events, event)
	return nil
}

func (m *Memory) Events(_ context.Context) ([]payroll.LedgerEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]payroll.LedgerEvent(nil), m.events...), nil
}
