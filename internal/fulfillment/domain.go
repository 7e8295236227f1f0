package fulfillment

import "time"

// DemandLine is one unit of demand to fulfil: a sales-order line asking for a
// quantity of a SKU, net of what was already delivered.
type DemandLine struct {
	ID           int64
	SKUID        int64
	Qty          float64
	DeliveredQty float64
}

// Remaining returns the still-undelivered quantity, floored at zero.
func (d DemandLine) Remaining() float64 {
	remaining := d.Qty - d.DeliveredQty
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AvailabilityLine reports requirement versus availability for one raw SKU.
type AvailabilityLine struct {
	SKUID       int64
	RequiredQty float64
	OnHandQty   float64
	ReservedQty float64
	// AvailableQty is on-hand minus reservations: the available-to-promise pool.
	AvailableQty float64
	ShortageQty  float64
}

// AvailabilityReport aggregates raw-material requirements for one demand
// batch, netted against unreserved on-hand in the raw-material zone.
type AvailabilityReport struct {
	CompanyID int64
	ZoneID    int64
	Lines     []AvailabilityLine
}

// TotalShortage sums shortage across all report lines.
func (r AvailabilityReport) TotalShortage() float64 {
	var total float64
	for _, line := range r.Lines {
		total += line.ShortageQty
	}
	return total
}

// Short reports whether any raw SKU is short.
func (r AvailabilityReport) Short() bool {
	for _, line := range r.Lines {
		if line.ShortageQty > 0 {
			return true
		}
	}
	return false
}

// Reservation is a soft hold on raw material for a sales order. It reduces
// available-to-promise without a ledger movement.
type Reservation struct {
	ID           int64
	CompanyID    int64
	SalesOrderID int64
	SKUID        int64
	Qty          float64
	UpdatedAt    time.Time
}
