// Package reservation derives stock figures from a snapshot of orders and
// units. Nothing here is cached: callers recompute after every change.
package reservation

import (
	"sort"
	"time"

	"gitlab.ozon.dev/pupkingeorgij/rentaldesk/internal/repository"
)

// processingStatuses are unit states that can still satisfy demand once an
// approver accepts the wait.
var processingStatuses = map[repository.UnitStatus]bool{
	repository.UnitReturned:    true,
	repository.UnitCleaning:    true,
	repository.UnitMaintenance: true,
}

// IsProcessing reports whether a unit in status s counts as processing stock.
func IsProcessing(s repository.UnitStatus) bool {
	return processingStatuses[s]
}

type Availability struct {
	ProductID          string `json:"product_id"`
	PhysicalAvailable  int    `json:"physical_available"`
	Reserved           int    `json:"reserved"`
	EffectiveAvailable int    `json:"effective_available"`
	ProcessingStock    int    `json:"processing_stock"`
}

// CanFulfill reports whether qty units can be drawn from verified stock.
func (a Availability) CanFulfill(qty int) bool {
	return a.EffectiveAvailable >= qty
}

// Fulfillable is the most a submission may request, counting stock that
// needs approval.
func (a Availability) Fulfillable() int {
	return a.EffectiveAvailable + a.ProcessingStock
}

type ReservingOrder struct {
	OrderID      string    `json:"order_id"`
	CustomerName string    `json:"customer_name"`
	Quantity     int       `json:"quantity"`
	OrderDate    time.Time `json:"order_date"`
}

type Reservation struct {
	ProductID     string           `json:"product_id"`
	TotalReserved int              `json:"total_reserved"`
	Orders        []ReservingOrder `json:"orders"`
}

type Summary struct {
	ProductID          string `json:"product_id"`
	ProductName        string `json:"product_name"`
	PhysicalAvailable  int    `json:"physical_available"`
	Reserved           int    `json:"reserved"`
	EffectiveAvailable int    `json:"effective_available"`
	ProcessingStock    int    `json:"processing_stock"`
	Rented             int    `json:"rented"`
	Maintenance        int    `json:"maintenance"`
}

func orderOpen(o *repository.Order) bool {
	return o.Status != repository.OrderCancelled && o.Status != repository.OrderDelivered
}

func unclaimed(l *repository.OrderLine) bool {
	return l.Active() && l.ProcessingStatus == repository.ProcessingWaiting && l.AssignedUnit() == ""
}

// Reserves reports whether the line implicitly holds one available unit.
func Reserves(o *repository.Order, l *repository.OrderLine) bool {
	if !orderOpen(o) || !unclaimed(l) {
		return false
	}
	return o.Status == repository.OrderApproved || l.ApprovalStatus == repository.ApprovalNotRequired
}

// claimsProcessing reports whether the line waits on processing stock: it is
// unbound demand that does not already reserve available stock.
func claimsProcessing(o *repository.Order, l *repository.OrderLine) bool {
	return orderOpen(o) && unclaimed(l) && !Reserves(o, l)
}

func ReservedCount(orders []*repository.Order, productID string) int {
	n := 0
	for _, o := range orders {
		for _, l := range o.Lines {
			if l.ProductID == productID && Reserves(o, l) {
				n++
			}
		}
	}
	return n
}

func PhysicalAvailable(units []*repository.Unit, productID string) int {
	return countUnits(units, productID, func(s repository.UnitStatus) bool {
		return s == repository.UnitAvailable
	})
}

// ProcessingStock is the processing-state units of the product not already
// spoken for by unbound lines waiting on them. Never negative.
func ProcessingStock(orders []*repository.Order, units []*repository.Unit, productID string) int {
	claims := 0
	for _, o := range orders {
		for _, l := range o.Lines {
			if l.ProductID == productID && claimsProcessing(o, l) {
				claims++
			}
		}
	}
	return max(0, countUnits(units, productID, IsProcessing)-claims)
}

func EffectiveAvailable(orders []*repository.Order, units []*repository.Unit, productID string) int {
	return max(0, PhysicalAvailable(units, productID)-ReservedCount(orders, productID))
}

func CanFulfill(orders []*repository.Order, units []*repository.Unit, productID string, qty int) bool {
	return EffectiveAvailable(orders, units, productID) >= qty
}

func Compute(orders []*repository.Order, units []*repository.Unit, productID string) Availability {
	physical := PhysicalAvailable(units, productID)
	reserved := ReservedCount(orders, productID)
	return Availability{
		ProductID:          productID,
		PhysicalAvailable:  physical,
		Reserved:           reserved,
		EffectiveAvailable: max(0, physical-reserved),
		ProcessingStock:    ProcessingStock(orders, units, productID),
	}
}

// Reservations groups reserving lines per product, one entry per order.
func Reservations(orders []*repository.Order) map[string]Reservation {
	out := make(map[string]Reservation)
	for _, o := range orders {
		perProduct := make(map[string]int)
		for _, l := range o.Lines {
			if Reserves(o, l) {
				perProduct[l.ProductID]++
			}
		}
		for productID, qty := range perProduct {
			r := out[productID]
			r.ProductID = productID
			r.TotalReserved += qty
			r.Orders = append(r.Orders, ReservingOrder{
				OrderID:      o.ID,
				CustomerName: o.CustomerName,
				Quantity:     qty,
				OrderDate:    o.CreatedAt,
			})
			out[productID] = r
		}
	}
	for productID, r := range out {
		sort.SliceStable(r.Orders, func(i, j int) bool {
			return r.Orders[i].OrderDate.Before(r.Orders[j].OrderDate)
		})
		out[productID] = r
	}
	return out
}

// Summarize returns one row per product, in catalog order.
func Summarize(products []*repository.Product, units []*repository.Unit, orders []*repository.Order) []Summary {
	counts := make(map[string]map[repository.UnitStatus]int, len(products))
	for _, u := range units {
		if counts[u.ProductID] == nil {
			counts[u.ProductID] = make(map[repository.UnitStatus]int)
		}
		counts[u.ProductID][u.Status]++
	}

	out := make([]Summary, 0, len(products))
	for _, p := range products {
		a := Compute(orders, units, p.ID)
		c := counts[p.ID]
		out = append(out, Summary{
			ProductID:          p.ID,
			ProductName:        p.Name,
			PhysicalAvailable:  a.PhysicalAvailable,
			Reserved:           a.Reserved,
			EffectiveAvailable: a.EffectiveAvailable,
			ProcessingStock:    a.ProcessingStock,
			Rented:             c[repository.UnitRented],
			Maintenance:        c[repository.UnitMaintenance],
		})
	}
	return out
}

func countUnits(units []*repository.Unit, productID string, match func(repository.UnitStatus) bool) int {
	n := 0
	for _, u := range units {
		if u.ProductID == productID && match(u.Status) {
			n++
		}
	}
	return n
}
