package allocation

import "time"

// Allocation links supply on a purchase-order line to demand on a sales-order
// line. Quantities are soft: allocation never moves stock.
type Allocation struct {
	ID               int64
	CompanyID        int64
	POLineID         int64
	SalesOrderLineID int64
	Qty              float64
	UpdatedAt        time.Time
}

// AllocateInput describes one allocation request.
type AllocateInput struct {
	CompanyID        int64
	POLineID         int64
	SalesOrderLineID int64
	Qty              float64
	ActorID          int64
}

// LineView is the locked snapshot of a demand or supply line used for cap
// checks: the line's ordered quantity and how much of it is already allocated.
type LineView struct {
	ID           int64
	Qty          float64
	AllocatedQty float64
	Status       string
}

// Free returns the unallocated remainder on the line.
func (v LineView) Free() float64 {
	free := v.Qty - v.AllocatedQty
	if free < 0 {
		return 0
	}
	return free
}
