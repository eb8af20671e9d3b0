package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/repository"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := NewStore(zap.NewNop())
	s.ReplaceAll(
		[]*repository.Product{{ID: "wheelchair-a", Name: "Wheelchair A"}},
		[]*repository.Unit{
			{ID: "WC-007", ProductID: "wheelchair-a", Status: repository.UnitAvailable, Location: "warehouse"},
			{ID: "WC-008", ProductID: "wheelchair-a", Status: repository.UnitCleaning, Location: "wash bay"},
		},
		[]*repository.Order{{
			ID:     "order-1",
			Status: repository.OrderApproved,
			Lines: []*repository.OrderLine{{
				ID: "line-1", OrderID: "order-1", ProductID: "wheelchair-a",
				ApprovalStatus: repository.ApprovalNotRequired, ProcessingStatus: repository.ProcessingWaiting,
			}},
		}},
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	)
	return s
}

func assignPlan(status repository.UnitStatus) func(v *View) (*Change, error) {
	return func(v *View) (*Change, error) {
		unit, ok := v.Unit("WC-007")
		if !ok {
			return nil, errors.New("unit missing")
		}
		order, _ := v.OrderForLine("line-1")
		unit.Status = status
		order.Line("line-1").AssignedUnitID = repository.StringPtr(unit.ID)
		order.Line("line-1").ProcessingStatus = repository.ProcessingReady
		return &Change{Orders: []*repository.Order{order}, Units: []*repository.Unit{unit}}, nil
	}
}

func TestMutate_AppliesBeforePersistCompletes(t *testing.T) {
	s := seeded(t)

	err := s.Mutate(context.Background(), assignPlan(repository.UnitReadyForDelivery),
		func(_ context.Context, c *Change) error {
			unit, _ := s.Unit("WC-007")
			assert.Equal(t, repository.UnitReadyForDelivery, unit.Status)
			return nil
		})
	require.NoError(t, err)

	unit, _ := s.Unit("WC-007")
	assert.Equal(t, repository.UnitReadyForDelivery, unit.Status)
	order, _ := s.Order("order-1")
	assert.Equal(t, "WC-007", order.Line("line-1").AssignedUnit())
}

func TestMutate_RollsBackOnFailure(t *testing.T) {
	s := seeded(t)
	persistErr := errors.New("network down")

	err := s.Mutate(context.Background(), assignPlan(repository.UnitReadyForDelivery),
		func(context.Context, *Change) error { return persistErr })
	assert.ErrorIs(t, err, persistErr)

	unit, _ := s.Unit("WC-007")
	assert.Equal(t, repository.UnitAvailable, unit.Status)
	assert.Equal(t, "warehouse", unit.Location)
	order, _ := s.Order("order-1")
	assert.Empty(t, order.Line("line-1").AssignedUnit())
	assert.Equal(t, repository.ProcessingWaiting, order.Line("line-1").ProcessingStatus)
}

func TestMutate_PlanErrorLeavesCacheUntouched(t *testing.T) {
	s := seeded(t)
	before := s.Revision()
	planErr := errors.New("invalid")

	err := s.Mutate(context.Background(),
		func(*View) (*Change, error) { return nil, planErr },
		func(context.Context, *Change) error {
			t.Fatal("persist must not run")
			return nil
		})
	assert.ErrorIs(t, err, planErr)
	assert.Equal(t, before, s.Revision())
}

func TestMutate_StaleFailureDoesNotClobberNewerValue(t *testing.T) {
	s := seeded(t)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- s.Mutate(context.Background(), assignPlan(repository.UnitReadyForDelivery),
			func(context.Context, *Change) error {
				close(started)
				<-release
				return errors.New("timeout")
			})
	}()

	<-started
	// A remote update for the same unit lands while the write is in flight.
	s.MergeUnits([]*repository.Unit{{
		ID: "WC-007", ProductID: "wheelchair-a", Status: repository.UnitOutOfOrder, Location: "workshop",
	}})
	close(release)
	require.Error(t, <-done)

	unit, _ := s.Unit("WC-007")
	assert.Equal(t, repository.UnitOutOfOrder, unit.Status, "newer remote value must survive the rollback")

	// The order was not touched by anything newer, so it is restored.
	order, _ := s.Order("order-1")
	assert.Empty(t, order.Line("line-1").AssignedUnit())
}

func TestMutate_NewOrdersRemovedOnFailure(t *testing.T) {
	s := seeded(t)

	err := s.Mutate(context.Background(),
		func(*View) (*Change, error) {
			return &Change{Orders: []*repository.Order{{
				ID: "order-2", Status: repository.OrderPending,
				Lines: []*repository.OrderLine{{ID: "line-9", OrderID: "order-2"}},
			}}}, nil
		},
		func(context.Context, *Change) error { return errors.New("insert failed") })
	require.Error(t, err)

	_, ok := s.Order("order-2")
	assert.False(t, ok)
	_, ok = s.OrderForLine("line-9")
	assert.False(t, ok)
}

func TestStore_ReadsReturnCopies(t *testing.T) {
	s := seeded(t)

	unit, _ := s.Unit("WC-007")
	unit.Status = repository.UnitRented

	again, _ := s.Unit("WC-007")
	assert.Equal(t, repository.UnitAvailable, again.Status)

	units, orders := s.Snapshot()
	require.Len(t, units, 2)
	require.Len(t, orders, 1)
	orders[0].Lines[0].ProcessingStatus = repository.ProcessingCancelled

	order, _ := s.Order("order-1")
	assert.Equal(t, repository.ProcessingWaiting, order.Lines[0].ProcessingStatus)
}

func TestStore_SyncHelpers(t *testing.T) {
	s := seeded(t)

	s.MergeUnits([]*repository.Unit{
		{ID: "WC-007", ProductID: "wheelchair-a", Status: repository.UnitReserved},
		{ID: "WC-009", ProductID: "wheelchair-a", Status: repository.UnitAvailable},
	})
	units, _ := s.Snapshot()
	require.Len(t, units, 3)
	assert.Equal(t, repository.UnitReserved, units[0].Status)

	s.RemoveUnit("WC-008")
	_, ok := s.Unit("WC-008")
	assert.False(t, ok)

	s.MergeOrders([]*repository.Order{{ID: "order-2", Lines: []*repository.OrderLine{{ID: "line-2", OrderID: "order-2"}}}})
	o, ok := s.OrderForLine("line-2")
	require.True(t, ok)
	assert.Equal(t, "order-2", o.ID)

	s.ReplaceOrders(nil)
	_, ok = s.OrderForLine("line-1")
	assert.False(t, ok)

	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s.MarkSynced(at)
	assert.Equal(t, at, s.LastSync())
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), s.LastFullSync())
}
