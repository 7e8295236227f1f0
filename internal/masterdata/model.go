package masterdata

// SKUType distinguishes raw materials from finished goods.
type SKUType string

const (
	// SKUTypeRaw marks a purchasable raw material.
	SKUTypeRaw SKUType = "RAW"
	// SKUTypeFinished marks a producible finished good.
	SKUTypeFinished SKUType = "FINISHED"
)

// ZoneType classifies storage zones. Exactly one zone of each operational
// type is expected per company for automated flows.
type ZoneType string

const (
	ZoneTypeRawMaterial   ZoneType = "RAW_MATERIAL"
	ZoneTypeInTransit     ZoneType = "IN_TRANSIT"
	ZoneTypeFinishedGoods ZoneType = "FINISHED_GOODS"
)

// SKU identifies a raw material or finished good. Type is immutable after
// creation; ScrapPct applies to RAW SKUs only.
type SKU struct {
	ID                int64
	CompanyID         int64
	Code              string
	Name              string
	Type              SKUType
	UOM               string
	ScrapPct          float64
	PreferredVendorID int64
}

// Zone is a physical or logical storage location within a warehouse.
type Zone struct {
	ID        int64
	CompanyID int64
	Code      string
	Name      string
	Type      ZoneType
}

// BOMLine maps a finished SKU to one raw-material requirement.
type BOMLine struct {
	ID             int64
	FinishedSKUID  int64
	ComponentSKUID int64
	QtyPerUnit     float64
}

// Vendor is a supplier of raw material.
type Vendor struct {
	ID        int64
	CompanyID int64
	Code      string
	Name      string
}
