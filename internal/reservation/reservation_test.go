package reservation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/repository"
)

const wheelchair = "wheelchair-a"

func units(productID string, statuses ...repository.UnitStatus) []*repository.Unit {
	out := make([]*repository.Unit, len(statuses))
	for i, s := range statuses {
		out[i] = &repository.Unit{ID: productID + "-" + string(rune('a'+i)), ProductID: productID, Status: s}
	}
	return out
}

func line(id string, approval repository.ApprovalStatus, processing repository.ProcessingStatus, unit string) *repository.OrderLine {
	return &repository.OrderLine{
		ID:               id,
		ProductID:        wheelchair,
		ApprovalStatus:   approval,
		ProcessingStatus: processing,
		AssignedUnitID:   repository.StringPtr(unit),
	}
}

func TestCompute_AllAvailableNoDemand(t *testing.T) {
	stock := units(wheelchair, repository.UnitAvailable, repository.UnitAvailable, repository.UnitAvailable)

	a := Compute(nil, stock, wheelchair)

	assert.Equal(t, 3, a.EffectiveAvailable)
	assert.True(t, a.CanFulfill(2))
	assert.True(t, CanFulfill(nil, stock, wheelchair, 3))
	assert.False(t, CanFulfill(nil, stock, wheelchair, 4))
}

func TestReservedCount(t *testing.T) {
	tests := []struct {
		name  string
		order *repository.Order
		want  int
	}{
		{
			name: "approved order waiting lines reserve",
			order: &repository.Order{Status: repository.OrderApproved, Lines: []*repository.OrderLine{
				line("l1", repository.ApprovalNotRequired, repository.ProcessingWaiting, ""),
				line("l2", repository.ApprovalApproved, repository.ProcessingWaiting, ""),
			}},
			want: 2,
		},
		{
			name: "assigned lines no longer reserve",
			order: &repository.Order{Status: repository.OrderApproved, Lines: []*repository.OrderLine{
				line("l1", repository.ApprovalNotRequired, repository.ProcessingReady, "u1"),
				line("l2", repository.ApprovalNotRequired, repository.ProcessingWaiting, "u2"),
			}},
			want: 0,
		},
		{
			name: "pending lines of a pending order do not reserve",
			order: &repository.Order{Status: repository.OrderPending, Lines: []*repository.OrderLine{
				line("l1", repository.ApprovalPending, repository.ProcessingWaiting, ""),
			}},
			want: 0,
		},
		{
			name: "not_required line reserves whatever the order status",
			order: &repository.Order{Status: repository.OrderPartialApproved, Lines: []*repository.OrderLine{
				line("l1", repository.ApprovalNotRequired, repository.ProcessingWaiting, ""),
				line("l2", repository.ApprovalPending, repository.ProcessingWaiting, ""),
			}},
			want: 1,
		},
		{
			name: "cancelled order excluded",
			order: &repository.Order{Status: repository.OrderCancelled, Lines: []*repository.OrderLine{
				line("l1", repository.ApprovalNotRequired, repository.ProcessingWaiting, ""),
			}},
			want: 0,
		},
		{
			name: "cancelled and rejected lines excluded",
			order: &repository.Order{Status: repository.OrderApproved, Lines: []*repository.OrderLine{
				line("l1", repository.ApprovalNotRequired, repository.ProcessingCancelled, ""),
				line("l2", repository.ApprovalRejected, repository.ProcessingWaiting, ""),
			}},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReservedCount([]*repository.Order{tt.order}, wheelchair))
		})
	}
}

func TestEffectiveAvailable_NeverNegative(t *testing.T) {
	orders := []*repository.Order{{Status: repository.OrderApproved, Lines: []*repository.OrderLine{
		line("l1", repository.ApprovalNotRequired, repository.ProcessingWaiting, ""),
		line("l2", repository.ApprovalNotRequired, repository.ProcessingWaiting, ""),
		line("l3", repository.ApprovalNotRequired, repository.ProcessingWaiting, ""),
	}}}
	stock := units(wheelchair, repository.UnitAvailable)

	assert.Equal(t, 0, EffectiveAvailable(orders, stock, wheelchair))
	assert.Equal(t, 0, EffectiveAvailable(orders, nil, wheelchair))
}

func TestProcessingStock(t *testing.T) {
	stock := units(wheelchair,
		repository.UnitCleaning,
		repository.UnitCleaning,
		repository.UnitMaintenance,
		repository.UnitOutOfOrder,
		repository.UnitDemoCancelled,
		repository.UnitAvailable,
	)

	t.Run("whitelist only", func(t *testing.T) {
		assert.Equal(t, 3, ProcessingStock(nil, stock, wheelchair))
	})

	t.Run("pending claims subtract", func(t *testing.T) {
		orders := []*repository.Order{{Status: repository.OrderPending, Lines: []*repository.OrderLine{
			line("l1", repository.ApprovalPending, repository.ProcessingWaiting, ""),
			line("l2", repository.ApprovalPending, repository.ProcessingWaiting, ""),
		}}}
		assert.Equal(t, 1, ProcessingStock(orders, stock, wheelchair))
	})

	t.Run("claims beyond stock clamp at zero", func(t *testing.T) {
		var lines []*repository.OrderLine
		for i := 0; i < 5; i++ {
			lines = append(lines, line("l", repository.ApprovalPending, repository.ProcessingWaiting, ""))
		}
		orders := []*repository.Order{{Status: repository.OrderPending, Lines: lines}}
		assert.Equal(t, 0, ProcessingStock(orders, stock, wheelchair))
	})
}

func TestReservations(t *testing.T) {
	early := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	orders := []*repository.Order{
		{ID: "o2", CustomerName: "Ito", Status: repository.OrderApproved, CreatedAt: early.Add(time.Hour), Lines: []*repository.OrderLine{
			line("l3", repository.ApprovalNotRequired, repository.ProcessingWaiting, ""),
		}},
		{ID: "o1", CustomerName: "Tanaka", Status: repository.OrderApproved, CreatedAt: early, Lines: []*repository.OrderLine{
			line("l1", repository.ApprovalNotRequired, repository.ProcessingWaiting, ""),
			line("l2", repository.ApprovalNotRequired, repository.ProcessingWaiting, ""),
		}},
	}

	got := Reservations(orders)

	require.Contains(t, got, wheelchair)
	r := got[wheelchair]
	assert.Equal(t, 3, r.TotalReserved)
	require.Len(t, r.Orders, 2)
	assert.Equal(t, "o1", r.Orders[0].OrderID)
	assert.Equal(t, 2, r.Orders[0].Quantity)
	assert.Equal(t, "Ito", r.Orders[1].CustomerName)
}

func TestSummarize(t *testing.T) {
	products := []*repository.Product{{ID: wheelchair, Name: "Wheelchair A"}, {ID: "walker", Name: "Walker"}}
	stock := units(wheelchair,
		repository.UnitAvailable,
		repository.UnitAvailable,
		repository.UnitRented,
		repository.UnitMaintenance,
	)
	orders := []*repository.Order{{Status: repository.OrderApproved, Lines: []*repository.OrderLine{
		line("l1", repository.ApprovalNotRequired, repository.ProcessingWaiting, ""),
	}}}

	got := Summarize(products, stock, orders)

	require.Len(t, got, 2)
	assert.Equal(t, Summary{
		ProductID:          wheelchair,
		ProductName:        "Wheelchair A",
		PhysicalAvailable:  2,
		Reserved:           1,
		EffectiveAvailable: 1,
		ProcessingStock:    1,
		Rented:             1,
		Maintenance:        1,
	}, got[0])
	assert.Equal(t, Summary{ProductID: "walker", ProductName: "Walker"}, got[1])
}
