package fulfillment

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/forgeline/forgeline/internal/masterdata"
	"github.com/forgeline/forgeline/internal/shared"
)

type memoryDirectory struct {
	skus  map[int64]masterdata.SKU
	boms  map[int64][]masterdata.BOMLine
	zones map[masterdata.ZoneType]masterdata.Zone
}

func newMemoryDirectory() *memoryDirectory {
	return &memoryDirectory{
		skus: make(map[int64]masterdata.SKU),
		boms: make(map[int64][]masterdata.BOMLine),
		zones: map[masterdata.ZoneType]masterdata.Zone{
			masterdata.ZoneTypeRawMaterial: {ID: 10, CompanyID: 1, Code: "RAW", Type: masterdata.ZoneTypeRawMaterial},
		},
	}
}

func (d *memoryDirectory) GetSKU(ctx context.Context, companyID, skuID int64) (masterdata.SKU, error) {
	sku, ok := d.skus[skuID]
	if !ok {
		return masterdata.SKU{}, fmt.Errorf("sku %d: %w", skuID, shared.ErrNotFound)
	}
	return sku, nil
}

func (d *memoryDirectory) GetBOMLines(ctx context.Context, companyID, finishedSKUID int64) ([]masterdata.BOMLine, error) {
	return d.boms[finishedSKUID], nil
}

func (d *memoryDirectory) ZoneByType(ctx context.Context, companyID int64, zoneType masterdata.ZoneType) (masterdata.Zone, error) {
	zone, ok := d.zones[zoneType]
	if !ok {
		return masterdata.Zone{}, fmt.Errorf("no %s zone: %w", zoneType, shared.ErrConfiguration)
	}
	return zone, nil
}

type memoryStockRepo struct {
	onHand       map[string]float64
	reservations map[string]float64
	nextID       int64
}

func newMemoryStockRepo() *memoryStockRepo {
	return &memoryStockRepo{onHand: make(map[string]float64), reservations: make(map[string]float64)}
}

func stockKey(companyID, skuID, zoneID int64) string {
	return fmt.Sprintf("%d:%d:%d", companyID, skuID, zoneID)
}

func reservationKey(companyID, orderID, skuID int64) string {
	return fmt.Sprintf("%d:%d:%d", companyID, orderID, skuID)
}

type memoryStockTx struct {
	repo *memoryStockRepo
}

func (r *memoryStockRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[string]float64, len(r.reservations))
	for k, v := range r.reservations {
		snapshot[k] = v
	}
	if err := fn(ctx, &memoryStockTx{repo: r}); err != nil {
		r.reservations = snapshot
		return err
	}
	return nil
}

func (r *memoryStockRepo) OnHand(ctx context.Context, companyID, skuID, zoneID int64) (float64, error) {
	return r.onHand[stockKey(companyID, skuID, zoneID)], nil
}

func (r *memoryStockRepo) ReservedQty(ctx context.Context, companyID, skuID int64, excludeOrderIDs []int64) (float64, error) {
	excluded := make(map[int64]bool, len(excludeOrderIDs))
	for _, id := range excludeOrderIDs {
		excluded[id] = true
	}
	var total float64
	for key, qty := range r.reservations {
		var c, o, s int64
		fmt.Sscanf(key, "%d:%d:%d", &c, &o, &s)
		if c == companyID && s == skuID && !excluded[o] {
			total += qty
		}
	}
	return total, nil
}

func (r *memoryStockRepo) ListReservations(ctx context.Context, companyID, salesOrderID int64) ([]Reservation, error) {
	var out []Reservation
	for key, qty := range r.reservations {
		var c, o, s int64
		fmt.Sscanf(key, "%d:%d:%d", &c, &o, &s)
		if c == companyID && o == salesOrderID {
			r.nextID++
			out = append(out, Reservation{ID: r.nextID, CompanyID: c, SalesOrderID: o, SKUID: s, Qty: qty, UpdatedAt: time.Now()})
		}
	}
	return out, nil
}

func (tx *memoryStockTx) OnHand(ctx context.Context, companyID, skuID, zoneID int64) (float64, error) {
	return tx.repo.OnHand(ctx, companyID, skuID, zoneID)
}

func (tx *memoryStockTx) ReservedQty(ctx context.Context, companyID, skuID int64, excludeOrderIDs []int64) (float64, error) {
	return tx.repo.ReservedQty(ctx, companyID, skuID, excludeOrderIDs)
}

func (tx *memoryStockTx) AddReservation(ctx context.Context, companyID, salesOrderID, skuID int64, qty float64) error {
	tx.repo.reservations[reservationKey(companyID, salesOrderID, skuID)] += qty
	return nil
}

func (tx *memoryStockTx) ReleaseOrder(ctx context.Context, companyID, salesOrderID int64) (int64, error) {
	var removed int64
	for key := range tx.repo.reservations {
		var c, o, s int64
		fmt.Sscanf(key, "%d:%d:%d", &c, &o, &s)
		if c == companyID && o == salesOrderID {
			delete(tx.repo.reservations, key)
			removed++
		}
	}
	return removed, nil
}

func (tx *memoryStockTx) DecrementReservation(ctx context.Context, companyID, salesOrderID, skuID int64, qty float64) error {
	key := reservationKey(companyID, salesOrderID, skuID)
	remaining := tx.repo.reservations[key] - qty
	if remaining <= 0 {
		delete(tx.repo.reservations, key)
		return nil
	}
	tx.repo.reservations[key] = remaining
	return nil
}

// Finished SKU 100 requires 2x raw SKU 1 per unit.
func fixtureService() (*Service, *memoryStockRepo, *memoryDirectory) {
	dir := newMemoryDirectory()
	dir.skus[1] = masterdata.SKU{ID: 1, CompanyID: 1, Code: "RM-001", Type: masterdata.SKUTypeRaw, UOM: "kg"}
	dir.skus[100] = masterdata.SKU{ID: 100, CompanyID: 1, Code: "FG-100", Type: masterdata.SKUTypeFinished, UOM: "pc"}
	dir.boms[100] = []masterdata.BOMLine{{ID: 1, FinishedSKUID: 100, ComponentSKUID: 1, QtyPerUnit: 2}}
	repo := newMemoryStockRepo()
	repo.onHand[stockKey(1, 1, 10)] = 100
	return NewService(repo, dir, nil, nil), repo, dir
}

func TestAvailabilityWithinStock(t *testing.T) {
	svc, _, _ := fixtureService()
	ctx := context.Background()

	report, err := svc.ComputeAvailability(ctx, 1, []DemandLine{{ID: 1, SKUID: 100, Qty: 40}}, nil)
	require.NoError(t, err)
	require.Len(t, report.Lines, 1)
	require.InDelta(t, 80.0, report.Lines[0].RequiredQty, 0.0001)
	require.InDelta(t, 0.0, report.Lines[0].ShortageQty, 0.0001)
	require.False(t, report.Short())

	_, err = svc.Reserve(ctx, 1, 500, []DemandLine{{ID: 1, SKUID: 100, Qty: 40}})
	require.NoError(t, err)

	// Available to promise drops to 20 for everyone else.
	report, err = svc.ComputeAvailability(ctx, 1, []DemandLine{{ID: 2, SKUID: 100, Qty: 1}}, nil)
	require.NoError(t, err)
	require.InDelta(t, 20.0, report.Lines[0].AvailableQty, 0.0001)
}

func TestAvailabilityShortage(t *testing.T) {
	svc, _, _ := fixtureService()
	ctx := context.Background()

	report, err := svc.ComputeAvailability(ctx, 1, []DemandLine{{ID: 1, SKUID: 100, Qty: 60}}, nil)
	require.NoError(t, err)
	require.InDelta(t, 120.0, report.Lines[0].RequiredQty, 0.0001)
	require.InDelta(t, 20.0, report.Lines[0].ShortageQty, 0.0001)
	require.True(t, report.Short())

	_, err = svc.Reserve(ctx, 1, 500, []DemandLine{{ID: 1, SKUID: 100, Qty: 60}})
	require.ErrorIs(t, err, shared.ErrShortage)
}

func TestReserveSecondOrderBlockedByFirst(t *testing.T) {
	svc, _, _ := fixtureService()
	ctx := context.Background()

	_, err := svc.Reserve(ctx, 1, 500, []DemandLine{{ID: 1, SKUID: 100, Qty: 40}})
	require.NoError(t, err)

	// 30x finished needs 60 raw but only 20 remain unreserved.
	_, err = svc.Reserve(ctx, 1, 501, []DemandLine{{ID: 2, SKUID: 100, Qty: 30}})
	require.ErrorIs(t, err, shared.ErrShortage)
}

func TestReserveExcludesOwnHold(t *testing.T) {
	svc, repo, _ := fixtureService()
	ctx := context.Background()

	_, err := svc.Reserve(ctx, 1, 500, []DemandLine{{ID: 1, SKUID: 100, Qty: 40}})
	require.NoError(t, err)

	// Re-confirming the same order must not double-count its own hold, and
	// must replace it rather than stack.
	_, err = svc.Reserve(ctx, 1, 500, []DemandLine{{ID: 1, SKUID: 100, Qty: 50}})
	require.NoError(t, err)
	require.InDelta(t, 100.0, repo.reservations[reservationKey(1, 500, 1)], 0.0001)
}

func TestComputeAvailabilityIdempotent(t *testing.T) {
	svc, _, _ := fixtureService()
	ctx := context.Background()
	demand := []DemandLine{{ID: 1, SKUID: 100, Qty: 25, DeliveredQty: 5}}

	first, err := svc.ComputeAvailability(ctx, 1, demand, nil)
	require.NoError(t, err)
	second, err := svc.ComputeAvailability(ctx, 1, demand, nil)
	require.NoError(t, err)
	require.Equal(t, first, second)
	// Remaining 20 units at 2 per unit.
	require.InDelta(t, 40.0, first.Lines[0].RequiredQty, 0.0001)
}

func TestScrapPercentageInflatesRequirement(t *testing.T) {
	svc, _, dir := fixtureService()
	dir.skus[1] = masterdata.SKU{ID: 1, CompanyID: 1, Code: "RM-001", Type: masterdata.SKUTypeRaw, UOM: "kg", ScrapPct: 10}

	report, err := svc.ComputeAvailability(context.Background(), 1, []DemandLine{{ID: 1, SKUID: 100, Qty: 10}}, nil)
	require.NoError(t, err)
	require.InDelta(t, 22.0, report.Lines[0].RequiredQty, 0.0001)
}

func TestMultiLevelExplosionAggregatesSharedRaw(t *testing.T) {
	svc, _, dir := fixtureService()
	// Finished 200 is built from one 100 sub-assembly plus 3x raw 1 directly.
	dir.skus[200] = masterdata.SKU{ID: 200, CompanyID: 1, Code: "FG-200", Type: masterdata.SKUTypeFinished, UOM: "pc"}
	dir.boms[200] = []masterdata.BOMLine{
		{ID: 2, FinishedSKUID: 200, ComponentSKUID: 100, QtyPerUnit: 1},
		{ID: 3, FinishedSKUID: 200, ComponentSKUID: 1, QtyPerUnit: 3},
	}

	report, err := svc.ComputeAvailability(context.Background(), 1, []DemandLine{
		{ID: 1, SKUID: 200, Qty: 4},
		{ID: 2, SKUID: 100, Qty: 5},
	}, nil)
	require.NoError(t, err)
	require.Len(t, report.Lines, 1)
	// 4x200 -> 4x100 -> 8 raw, plus 12 direct raw, plus 5x100 -> 10 raw.
	require.InDelta(t, 30.0, report.Lines[0].RequiredQty, 0.0001)
}

func TestBOMCycleRejected(t *testing.T) {
	svc, _, dir := fixtureService()
	dir.boms[100] = []masterdata.BOMLine{{ID: 1, FinishedSKUID: 100, ComponentSKUID: 100, QtyPerUnit: 1}}

	_, err := svc.ComputeAvailability(context.Background(), 1, []DemandLine{{ID: 1, SKUID: 100, Qty: 1}}, nil)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestMissingRawZoneIsConfigurationError(t *testing.T) {
	svc, _, dir := fixtureService()
	delete(dir.zones, masterdata.ZoneTypeRawMaterial)

	_, err := svc.ComputeAvailability(context.Background(), 1, []DemandLine{{ID: 1, SKUID: 100, Qty: 1}}, nil)
	require.ErrorIs(t, err, shared.ErrConfiguration)
}

func TestReleaseAndConsume(t *testing.T) {
	svc, repo, _ := fixtureService()
	ctx := context.Background()

	_, err := svc.Reserve(ctx, 1, 500, []DemandLine{{ID: 1, SKUID: 100, Qty: 40}})
	require.NoError(t, err)
	require.InDelta(t, 80.0, repo.reservations[reservationKey(1, 500, 1)], 0.0001)

	require.NoError(t, svc.ConsumeForIssue(ctx, 1, 500, 1, 30))
	require.InDelta(t, 50.0, repo.reservations[reservationKey(1, 500, 1)], 0.0001)

	require.NoError(t, svc.Release(ctx, 1, 500))
	require.Empty(t, repo.reservations)
}
