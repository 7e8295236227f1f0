package inventory

import "time"

// Direction marks which way a movement changes on-hand quantity.
type Direction string

const (
	// DirectionIn represents an inbound movement.
	DirectionIn Direction = "IN"
	// DirectionOut represents an outbound movement.
	DirectionOut Direction = "OUT"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementTypeReceipt represents goods received from a vendor.
	MovementTypeReceipt MovementType = "RECEIPT"
	// MovementTypeIssue represents stock issued to production or delivery.
	MovementTypeIssue MovementType = "ISSUE"
	// MovementTypeTransfer is used for the two legs of a zone transfer.
	MovementTypeTransfer MovementType = "TRANSFER"
	// MovementTypeAdjustment indicates manual adjustments.
	MovementTypeAdjustment MovementType = "ADJUSTMENT"
	// MovementTypeProduce represents finished goods produced from raw material.
	MovementTypeProduce MovementType = "PRODUCE"
)

// Movement is one immutable ledger entry. Never updated or deleted; the sole
// mechanism for changing stock.
type Movement struct {
	ID         int64
	CompanyID  int64
	SKUID      int64
	ZoneID     int64
	Qty        float64
	Direction  Direction
	Type       MovementType
	UnitCost   float64
	BalanceQty float64
	RefModule  string
	RefID      string
	Note       string
	ActorID    int64
	PostedAt   time.Time
}

// SignedQty returns the quantity with the direction applied.
func (m Movement) SignedQty() float64 {
	if m.Direction == DirectionOut {
		return -m.Qty
	}
	return m.Qty
}

// Balance is the materialized aggregate per (company, SKU, zone). Derived
// state: it must always equal the signed sum of ledger entries for its key.
type Balance struct {
	CompanyID int64
	SKUID     int64
	ZoneID    int64
	OnHand    float64
	AvgCost   float64
	UpdatedAt time.Time
}

// MovementInput describes a request to record one movement.
type MovementInput struct {
	CompanyID int64
	SKUID     int64
	ZoneID    int64
	Qty       float64
	Direction Direction
	Type      MovementType
	UnitCost  float64
	RefModule string
	RefID     string
	Note      string
	ActorID   int64
}

// TransferInput describes a transfer request between zones.
type TransferInput struct {
	CompanyID int64
	SKUID     int64
	FromZone  int64
	ToZone    int64
	Qty       float64
	RefModule string
	RefID     string
	Note      string
	ActorID   int64
}

// LedgerFilter filters ledger entries for the stock card read.
type LedgerFilter struct {
	CompanyID int64
	SKUID     int64
	ZoneID    int64
	From      time.Time
	To        time.Time
	Limit     int
}
