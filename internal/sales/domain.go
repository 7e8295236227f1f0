package sales

import "time"

// SOStatus is the sales order lifecycle state.
type SOStatus string

const (
	// SOStatusQuote is the initial state; nothing is reserved yet.
	SOStatusQuote SOStatus = "QUOTE"
	// SOStatusConfirmed means raw material is reserved for the order.
	SOStatusConfirmed SOStatus = "CONFIRMED"
	// SOStatusProduction means manufacturing has started.
	SOStatusProduction SOStatus = "PRODUCTION"
	// SOStatusDispatch means goods are staged for delivery.
	SOStatusDispatch SOStatus = "DISPATCH"
	// SOStatusDelivered means every line is fully delivered.
	SOStatusDelivered SOStatus = "DELIVERED"
	// SOStatusCancelled is terminal; reservations are released.
	SOStatusCancelled SOStatus = "CANCELLED"
)

// SalesOrder is a customer order for finished goods.
type SalesOrder struct {
	ID           int64
	CompanyID    int64
	Number       string
	CustomerName string
	Status       SOStatus
	CreatedAt    time.Time
	Lines        []SOLine
}

// SOLine is one SKU on a sales order.
// Invariants: AllocatedQty <= Qty, DeliveredQty <= Qty.
type SOLine struct {
	ID           int64
	SalesOrderID int64
	SKUID        int64
	Qty          float64
	AllocatedQty float64
	DeliveredQty float64
}

// Remaining returns the undelivered quantity on the line.
func (l SOLine) Remaining() float64 {
	remaining := l.Qty - l.DeliveredQty
	if remaining < 0 {
		return 0
	}
	return remaining
}

// FullyDelivered reports whether the line has no undelivered remainder.
func (l SOLine) FullyDelivered() bool {
	return l.Remaining() == 0
}

// CreateOrderInput describes a new quote.
type CreateOrderInput struct {
	CompanyID    int64
	Number       string
	CustomerName string
	Lines        []CreateLineInput
	ActorID      int64
}

// CreateLineInput is one requested line on a new quote.
type CreateLineInput struct {
	SKUID int64
	Qty   float64
}

// DeliveryLine is one delivered quantity against a sales order line.
type DeliveryLine struct {
	SOLineID int64
	Qty      float64
}

// DeliveryInput describes one delivery event against an order.
type DeliveryInput struct {
	CompanyID int64
	OrderID   int64
	Lines     []DeliveryLine
	Note      string
	ActorID   int64
}

// Delivery is a persisted delivery record. Every DELIVERED order has at least
// one of these per line.
type Delivery struct {
	ID        int64
	CompanyID int64
	OrderID   int64
	SOLineID  int64
	Qty       float64
	Note      string
	CreatedAt time.Time
}
