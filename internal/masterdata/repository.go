package masterdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forgeline/forgeline/internal/shared"
)

// Directory provides read-only lookups over SKU, zone, BOM and vendor master
// data. The engine never mutates these entities; CRUD lives upstream.
type Directory struct {
	pool *pgxpool.Pool
}

// NewDirectory constructs Directory.
func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

// GetSKU resolves one SKU within company scope.
func (d *Directory) GetSKU(ctx context.Context, companyID, skuID int64) (SKU, error) {
	row := d.pool.QueryRow(ctx, `SELECT id, company_id, code, name, sku_type, uom, scrap_pct, COALESCE(preferred_vendor_id, 0)
FROM skus WHERE id=$1 AND company_id=$2`, skuID, companyID)
	var sku SKU
	if err := row.Scan(&sku.ID, &sku.CompanyID, &sku.Code, &sku.Name, &sku.Type, &sku.UOM, &sku.ScrapPct, &sku.PreferredVendorID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SKU{}, fmt.Errorf("masterdata: sku %d: %w", skuID, shared.ErrNotFound)
		}
		return SKU{}, err
	}
	return sku, nil
}

// GetBOMLines lists the component requirements of a finished SKU. An empty
// result means the SKU is a raw-material leaf.
func (d *Directory) GetBOMLines(ctx context.Context, companyID, finishedSKUID int64) ([]BOMLine, error) {
	rows, err := d.pool.Query(ctx, `SELECT b.id, b.finished_sku_id, b.component_sku_id, b.qty_per_unit
FROM bom_lines b JOIN skus s ON s.id = b.finished_sku_id
WHERE b.finished_sku_id=$1 AND s.company_id=$2
ORDER BY b.id`, finishedSKUID, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []BOMLine
	for rows.Next() {
		var line BOMLine
		if err := rows.Scan(&line.ID, &line.FinishedSKUID, &line.ComponentSKUID, &line.QtyPerUnit); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// GetPreferredVendor resolves the preferred vendor of a SKU. Returns zero
// Vendor without error when none is assigned.
func (d *Directory) GetPreferredVendor(ctx context.Context, companyID, skuID int64) (Vendor, error) {
	row := d.pool.QueryRow(ctx, `SELECT v.id, v.company_id, v.code, v.name
FROM skus s JOIN vendors v ON v.id = s.preferred_vendor_id
WHERE s.id=$1 AND s.company_id=$2`, skuID, companyID)
	var vendor Vendor
	if err := row.Scan(&vendor.ID, &vendor.CompanyID, &vendor.Code, &vendor.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Vendor{}, nil
		}
		return Vendor{}, err
	}
	return vendor, nil
}

// ZoneByType resolves the designated zone for an operational type. A missing
// typed zone is a configuration fault, not a lookup miss.
func (d *Directory) ZoneByType(ctx context.Context, companyID int64, zoneType ZoneType) (Zone, error) {
	row := d.pool.QueryRow(ctx, `SELECT id, company_id, code, name, zone_type
FROM zones WHERE company_id=$1 AND zone_type=$2
ORDER BY id LIMIT 1`, companyID, zoneType)
	var zone Zone
	if err := row.Scan(&zone.ID, &zone.CompanyID, &zone.Code, &zone.Name, &zone.Type); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Zone{}, fmt.Errorf("masterdata: no %s zone for company %d: %w", zoneType, companyID, shared.ErrConfiguration)
		}
		return Zone{}, err
	}
	return zone, nil
}

// GetZone resolves one zone within company scope.
func (d *Directory) GetZone(ctx context.Context, companyID, zoneID int64) (Zone, error) {
	row := d.pool.QueryRow(ctx, `SELECT id, company_id, code, name, zone_type
FROM zones WHERE id=$1 AND company_id=$2`, zoneID, companyID)
	var zone Zone
	if err := row.Scan(&zone.ID, &zone.CompanyID, &zone.Code, &zone.Name, &zone.Type); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Zone{}, fmt.Errorf("masterdata: zone %d: %w", zoneID, shared.ErrNotFound)
		}
		return Zone{}, err
	}
	return zone, nil
}
