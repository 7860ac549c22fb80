/*
registry_test.go - Compensation structure registry tests

ORGANIZATION:
  1. Validation - Malformed structures rejected at write time
  2. Overlap invariant - One active structure per subject per date
  3. Resolution - Not found, exact match, ambiguity surfaced lazily
*/
package payroll_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/store"
)

func newRegistry() (*payroll.Registry, *store.Memory) {
	mem := store.NewMemory()
	return payroll.NewRegistry(mem), mem
}

func structureFor(id, subject string, from, to time.Time) *payroll.CompensationStructure {
	return &payroll.CompensationStructure{
		ID:         payroll.StructureID(id),
		SubjectID:  payroll.SubjectID(subject),
		Kind:       payroll.StructureFixedSalary,
		BaseAmount: 3_000_000,
		Currency:   "SEK",
		Cadence:    payroll.CadenceMonthly,
		Effective:  payroll.DateRange{Start: from, End: to},
		IsActive:   true,
		Version:    1,
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestRegister_RejectsMalformedStructures(t *testing.T) {
	registry, _ := newRegistry()
	ctx := context.Background()
	from := jan2025()

	cases := map[string]func(*payroll.CompensationStructure){
		"missing subject":    func(s *payroll.CompensationStructure) { s.SubjectID = "" },
		"bad currency":       func(s *payroll.CompensationStructure) { s.Currency = "kronor" },
		"negative base":      func(s *payroll.CompensationStructure) { s.BaseAmount = -1 },
		"missing start date": func(s *payroll.CompensationStructure) { s.Effective.Start = time.Time{} },
		"end before start":   func(s *payroll.CompensationStructure) { s.Effective.End = from.AddDate(0, 0, -1) },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := structureFor("s-1", "emp-1", from, time.Time{})
			mutate(s)
			err := registry.Register(ctx, s)
			require.Error(t, err)
			assert.ErrorIs(t, err, payroll.ErrInvalidStructure)
		})
	}
}

func TestRegister_RejectsUnknownMethod(t *testing.T) {
	// GIVEN: A component with an unrecognized calculation method
	// WHEN: Registering
	// THEN: Rejected at write time, not discovered mid-calculation

	registry, _ := newRegistry()
	s := structureFor("s-1", "emp-1", jan2025(), time.Time{})
	s.Components = []payroll.SalaryComponent{
		{Name: "mystery", Calculation: payroll.Calculation{Method: "percent_of_moon_phase"}},
	}

	err := registry.Register(context.Background(), s)
	assert.ErrorIs(t, err, payroll.ErrInvalidStructure)
}

// =============================================================================
// OVERLAP INVARIANT
// =============================================================================

func TestRegister_OverlappingActiveRange_Rejected(t *testing.T) {
	// GIVEN: An active structure effective Jan-Jun 2025
	// WHEN: Registering a second active structure starting in March
	// THEN: Rejected with OverlappingRangeError naming the collision

	registry, _ := newRegistry()
	ctx := context.Background()

	first := structureFor("s-1", "emp-1",
		jan2025(), time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, registry.Register(ctx, first))

	second := structureFor("s-2", "emp-1",
		time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), time.Time{})
	err := registry.Register(ctx, second)

	require.Error(t, err)
	var overlap *payroll.OverlappingRangeError
	require.ErrorAs(t, err, &overlap)
	assert.Equal(t, payroll.StructureID("s-1"), overlap.Existing)
}

func TestRegister_AdjacentRanges_Allowed(t *testing.T) {
	// GIVEN: A structure ending June 30
	// WHEN: Registering a successor starting July 1
	// THEN: Both registrations succeed; the ranges share no day

	registry, _ := newRegistry()
	ctx := context.Background()

	require.NoError(t, registry.Register(ctx, structureFor("s-1", "emp-1",
		jan2025(), time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC))))
	require.NoError(t, registry.Register(ctx, structureFor("s-2", "emp-1",
		time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC), time.Time{})))
}

func TestRegister_InactiveStructure_IgnoresOverlap(t *testing.T) {
	// GIVEN: An active open-ended structure
	// WHEN: Registering an inactive historical copy over the same range
	// THEN: Allowed; the invariant binds active structures only

	registry, _ := newRegistry()
	ctx := context.Background()

	require.NoError(t, registry.Register(ctx, structureFor("s-1", "emp-1", jan2025(), time.Time{})))

	old := structureFor("s-0", "emp-1", jan2025(), time.Time{})
	old.IsActive = false
	require.NoError(t, registry.Register(ctx, old))
}

func TestRegister_SameID_Reregisters(t *testing.T) {
	// GIVEN: A registered structure
	// WHEN: Registering an updated version under the same ID
	// THEN: The overlap check skips itself and the update lands

	registry, _ := newRegistry()
	ctx := context.Background()

	s := structureFor("s-1", "emp-1", jan2025(), time.Time{})
	require.NoError(t, registry.Register(ctx, s))

	updated := structureFor("s-1", "emp-1", jan2025(), time.Time{})
	updated.BaseAmount = 3_200_000
	updated.Version = 2
	require.NoError(t, registry.Register(ctx, updated))

	got, err := registry.ActiveStructureFor(ctx, "emp-1", jan2025())
	require.NoError(t, err)
	assert.Equal(t, payroll.Money(3_200_000), got.BaseAmount)
	assert.Equal(t, 2, got.Version)
}

// =============================================================================
// RESOLUTION
// =============================================================================

func TestActiveStructureFor_NoMatch_NotFound(t *testing.T) {
	registry, _ := newRegistry()
	_, err := registry.ActiveStructureFor(context.Background(), "emp-1", jan2025())
	assert.ErrorIs(t, err, payroll.ErrStructureNotFound)
	assert.True(t, payroll.IsNotFound(err))
}

func TestActiveStructureFor_DateOutsideRange_NotFound(t *testing.T) {
	// GIVEN: A structure effective only during 2025
	// WHEN: Resolving a 2026 date
	// THEN: Not found

	registry, _ := newRegistry()
	ctx := context.Background()
	require.NoError(t, registry.Register(ctx, structureFor("s-1", "emp-1",
		jan2025(), time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC))))

	_, err := registry.ActiveStructureFor(ctx, "emp-1", time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, payroll.ErrStructureNotFound)
}

func TestActiveStructureFor_OutOfBandOverlap_Ambiguous(t *testing.T) {
	// GIVEN: Two overlapping active structures written directly to the
	//        store, bypassing Register's guard
	// WHEN: Resolving a date both cover
	// THEN: AmbiguousStructureError surfaces the violation lazily

	registry, mem := newRegistry()
	ctx := context.Background()

	require.NoError(t, mem.SaveStructure(ctx, structureFor("s-1", "emp-1", jan2025(), time.Time{})))
	require.NoError(t, mem.SaveStructure(ctx, structureFor("s-2", "emp-1", jan2025(), time.Time{})))

	_, err := registry.ActiveStructureFor(ctx, "emp-1", time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)

	var ambiguous *payroll.AmbiguousStructureError
	require.ErrorAs(t, err, &ambiguous)
	assert.Len(t, ambiguous.Matches, 2)
}
