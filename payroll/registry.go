/*
registry.go - Compensation structure registry

PURPOSE:
  Write-time guardian of the one-active-structure invariant, and the
  read path every calculation uses to resolve which pay configuration
  applies on a date.

THE INVARIANT:
  At most one active structure per subject covers any given date.
  Register enforces it by rejecting overlapping effective ranges.
  ActiveStructureFor still checks for multiple matches and surfaces
  ErrAmbiguousStructure - an invariant violated out-of-band (e.g., by a
  direct store write) is reported lazily rather than assumed away.

SEE ALSO:
  - store.go: StructureStore, the record holder underneath
  - lifecycle.go: Calls ActiveStructureFor during Calculate
*/
package payroll

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Registry validates and resolves compensation structures on top of a
// StructureStore.
type Registry struct {
	store StructureStore

	// mu serializes Register calls so two concurrent registrations for
	// the same subject cannot both pass the overlap check.
	mu sync.Mutex
}

func NewRegistry(store StructureStore) *Registry {
	return &Registry{store: store}
}

// =============================================================================
// REGISTRATION
// =============================================================================

// Register validates the structure and persists it. Fails with
// ErrOverlappingRange if an existing active structure for the subject
// covers any date in the new structure's effective range.
func (r *Registry) Register(ctx context.Context, s *CompensationStructure) error {
	if err := validateStructure(s); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s.IsActive {
		existing, err := r.store.StructuresBySubject(ctx, s.SubjectID)
		if err != nil {
			return err
		}
		for _, other := range existing {
			if !other.IsActive || other.ID == s.ID {
				continue
			}
			if other.Effective.Overlaps(s.Effective) {
				return &OverlappingRangeError{
					SubjectID: s.SubjectID,
					New:       s.Effective,
					Existing:  other.ID,
				}
			}
		}
	}

	return r.store.SaveStructure(ctx, s)
}

func validateStructure(s *CompensationStructure) error {
	if s.SubjectID == "" {
		return fmt.Errorf("%w: missing subject", ErrInvalidStructure)
	}
	if len(s.Currency) != 3 {
		return fmt.Errorf("%w: currency must be a 3-letter code, got %q", ErrInvalidStructure, s.Currency)
	}
	if s.BaseAmount.IsNegative() {
		return fmt.Errorf("%w: negative base amount", ErrInvalidStructure)
	}
	if s.Effective.Start.IsZero() {
		return fmt.Errorf("%w: missing effective start date", ErrInvalidStructure)
	}
	if !s.Effective.End.IsZero() && Day(s.Effective.End).Before(Day(s.Effective.Start)) {
		return fmt.Errorf("%w: effective end before start", ErrInvalidStructure)
	}

	for _, comp := range s.Components {
		if err := validateComponent(comp); err != nil {
			return err
		}
	}
	return nil
}

// validateComponent checks method/payload agreement so a malformed
// component is rejected at write time, not discovered mid-calculation.
func validateComponent(c SalaryComponent) error {
	switch c.Calculation.Method {
	case MethodFixedAmount, MethodRatePerHour:
		if c.Calculation.Amount.IsNegative() {
			return fmt.Errorf("%w: component %q has negative amount", ErrInvalidStructure, c.Name)
		}
	case MethodPercentOfBase, MethodPercentOfRevenue, MethodPerformanceScaled:
		if c.Calculation.Rate.IsNegative() {
			return fmt.Errorf("%w: component %q has negative rate", ErrInvalidStructure, c.Name)
		}
	default:
		return fmt.Errorf("%w: component %q has unknown method %q", ErrInvalidStructure, c.Name, c.Calculation.Method)
	}

	for _, cond := range c.Conditions {
		switch cond.Kind {
		case ConditionThreshold, ConditionRange, ConditionDateWindow:
		default:
			return fmt.Errorf("%w: component %q has unknown condition kind %q", ErrInvalidStructure, c.Name, cond.Kind)
		}
	}
	return nil
}

// =============================================================================
// RESOLUTION
// =============================================================================

// ActiveStructureFor returns the single active structure covering the
// date. ErrStructureNotFound when none matches; AmbiguousStructureError
// when more than one does.
func (r *Registry) ActiveStructureFor(ctx context.Context, subject SubjectID, date time.Time) (*CompensationStructure, error) {
	structures, err := r.store.StructuresBySubject(ctx, subject)
	if err != nil {
		return nil, err
	}

	var matches []*CompensationStructure
	for _, s := range structures {
		if s.IsActive && s.Effective.Contains(date) {
			matches = append(matches, s)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("subject %s on %s: %w", subject, Day(date).Format("2006-01-02"), ErrStructureNotFound)
	case 1:
		return matches[0], nil
	default:
		ids := make([]StructureID, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}
		return nil, &AmbiguousStructureError{SubjectID: subject, Date: Day(date), Matches: ids}
	}
}
