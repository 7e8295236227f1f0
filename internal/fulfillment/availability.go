package fulfillment

import (
	"context"
	"fmt"
	"sort"

	"github.com/forgeline/forgeline/internal/masterdata"
	"github.com/forgeline/forgeline/internal/shared"
)

// DirectoryPort exposes the read-only master-data lookups the calculator needs.
type DirectoryPort interface {
	GetSKU(ctx context.Context, companyID, skuID int64) (masterdata.SKU, error)
	GetBOMLines(ctx context.Context, companyID, finishedSKUID int64) ([]masterdata.BOMLine, error)
	ZoneByType(ctx context.Context, companyID int64, zoneType masterdata.ZoneType) (masterdata.Zone, error)
}

// stockReader reads on-hand and reserved quantities. The plain repository
// satisfies it for display reads; the transactional repository satisfies it
// with FOR UPDATE semantics so check and reserve share one lock scope.
type stockReader interface {
	OnHand(ctx context.Context, companyID, skuID, zoneID int64) (float64, error)
	ReservedQty(ctx context.Context, companyID, skuID int64, excludeOrderIDs []int64) (float64, error)
}

// computeAvailability explodes the demand batch to raw-material leaves,
// aggregates requirements once across all lines, and nets them against the
// unreserved on-hand of the designated raw-material zone.
func (s *Service) computeAvailability(ctx context.Context, reader stockReader, companyID int64, demand []DemandLine, excludeOrderIDs []int64) (AvailabilityReport, error) {
	if companyID == 0 {
		return AvailabilityReport{}, fmt.Errorf("fulfillment: company required: %w", shared.ErrValidation)
	}
	rawZone, err := s.directory.ZoneByType(ctx, companyID, masterdata.ZoneTypeRawMaterial)
	if err != nil {
		return AvailabilityReport{}, err
	}

	// Shared raw SKUs must be netted once per batch, not per line.
	required := make(map[int64]float64)
	for _, line := range demand {
		remaining := line.Remaining()
		if remaining <= 0 {
			continue
		}
		if line.SKUID == 0 || line.Qty <= 0 {
			return AvailabilityReport{}, fmt.Errorf("fulfillment: demand line %d invalid: %w", line.ID, shared.ErrValidation)
		}
		path := make(map[int64]bool)
		if err := s.explode(ctx, companyID, line.SKUID, remaining, path, required); err != nil {
			return AvailabilityReport{}, err
		}
	}

	report := AvailabilityReport{CompanyID: companyID, ZoneID: rawZone.ID}
	skuIDs := make([]int64, 0, len(required))
	for skuID := range required {
		skuIDs = append(skuIDs, skuID)
	}
	sort.Slice(skuIDs, func(i, j int) bool { return skuIDs[i] < skuIDs[j] })

	for _, skuID := range skuIDs {
		onHand, err := reader.OnHand(ctx, companyID, skuID, rawZone.ID)
		if err != nil {
			return AvailabilityReport{}, err
		}
		reserved, err := reader.ReservedQty(ctx, companyID, skuID, excludeOrderIDs)
		if err != nil {
			return AvailabilityReport{}, err
		}
		available := onHand - reserved
		if available < 0 {
			available = 0
		}
		shortage := required[skuID] - available
		if shortage < 0 {
			shortage = 0
		}
		report.Lines = append(report.Lines, AvailabilityLine{
			SKUID:        skuID,
			RequiredQty:  required[skuID],
			OnHandQty:    onHand,
			ReservedQty:  reserved,
			AvailableQty: available,
			ShortageQty:  shortage,
		})
	}
	return report, nil
}

// explode walks the BOM adjacency down to raw-material leaves. A SKU with no
// BOM lines is a leaf; its requirement is inflated by the scrap percentage.
// Cycles are rejected rather than looped.
func (s *Service) explode(ctx context.Context, companyID, skuID int64, qty float64, path map[int64]bool, required map[int64]float64) error {
	if path[skuID] {
		return fmt.Errorf("fulfillment: BOM cycle at sku %d: %w", skuID, shared.ErrValidation)
	}
	lines, err := s.directory.GetBOMLines(ctx, companyID, skuID)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		sku, err := s.directory.GetSKU(ctx, companyID, skuID)
		if err != nil {
			return err
		}
		factor := 1.0
		if sku.Type == masterdata.SKUTypeRaw && sku.ScrapPct > 0 {
			factor += sku.ScrapPct / 100
		}
		required[skuID] += qty * factor
		return nil
	}
	path[skuID] = true
	for _, line := range lines {
		if line.QtyPerUnit <= 0 {
			return fmt.Errorf("fulfillment: bom line %d has non-positive qty per unit: %w", line.ID, shared.ErrValidation)
		}
		if err := s.explode(ctx, companyID, line.ComponentSKUID, qty*line.QtyPerUnit, path, required); err != nil {
			return err
		}
	}
	delete(path, skuID)
	return nil
}
