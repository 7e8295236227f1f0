package procurement

import "time"

// Purchase order lifecycle statuses.
type POStatus string

const (
	// POStatusDraft marks an auto-drafted or manually created PO awaiting review.
	POStatusDraft POStatus = "DRAFT"
	// POStatusApproved marks a PO confirmed with the vendor.
	POStatusApproved POStatus = "APPROVED"
	// POStatusReceiving marks a PO with partial receipts.
	POStatusReceiving POStatus = "RECEIVING"
	// POStatusClosed marks a PO fully received or short closed.
	POStatusClosed POStatus = "CLOSED"
	// POStatusCancelled marks an abandoned PO.
	POStatusCancelled POStatus = "CANCELLED"
)

// PurchaseOrder is a supply commitment. VendorID zero means the draft still
// needs a vendor assigned before it can be approved.
type PurchaseOrder struct {
	ID              int64
	CompanyID       int64
	Number          string
	VendorID        int64
	Status          POStatus
	RefSalesOrderID int64
	Note            string
	CreatedAt       time.Time
	Lines           []POLine
}

// POLine is one SKU on a purchase order.
// Invariant: ReceivedQty + ShortClosedQty <= Qty.
type POLine struct {
	ID             int64
	POID           int64
	SKUID          int64
	Qty            float64
	ReceivedQty    float64
	ShortClosedQty float64
}

// Outstanding returns the quantity still expected to arrive.
func (l POLine) Outstanding() float64 {
	remaining := l.Qty - l.ReceivedQty - l.ShortClosedQty
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ReceiptInput describes a goods receipt against one PO line.
type ReceiptInput struct {
	CompanyID int64
	POLineID  int64
	Qty       float64
	UnitCost  float64
	Note      string
	ActorID   int64
}
