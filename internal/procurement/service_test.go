package procurement

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forgeline/forgeline/internal/fulfillment"
	"github.com/forgeline/forgeline/internal/inventory"
	"github.com/forgeline/forgeline/internal/masterdata"
	"github.com/forgeline/forgeline/internal/shared"
)

type memoryPORepo struct {
	nextPOID   int64
	nextLineID int64
	pos        map[int64]*PurchaseOrder
	lines      map[int64]*POLine
}

func newMemoryPORepo() *memoryPORepo {
	return &memoryPORepo{pos: map[int64]*PurchaseOrder{}, lines: map[int64]*POLine{}}
}

func (m *memoryPORepo) snapshot() (map[int64]PurchaseOrder, map[int64]POLine) {
	pos := make(map[int64]PurchaseOrder, len(m.pos))
	for id, po := range m.pos {
		pos[id] = *po
	}
	lines := make(map[int64]POLine, len(m.lines))
	for id, line := range m.lines {
		lines[id] = *line
	}
	return pos, lines
}

func (m *memoryPORepo) restore(pos map[int64]PurchaseOrder, lines map[int64]POLine) {
	m.pos = make(map[int64]*PurchaseOrder, len(pos))
	for id, po := range pos {
		cp := po
		m.pos[id] = &cp
	}
	m.lines = make(map[int64]*POLine, len(lines))
	for id, line := range lines {
		cp := line
		m.lines[id] = &cp
	}
}

func (m *memoryPORepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	pos, lines := m.snapshot()
	if err := fn(ctx, m); err != nil {
		m.restore(pos, lines)
		return err
	}
	return nil
}

func (m *memoryPORepo) linesFor(poID int64) []POLine {
	out := []POLine{}
	for _, line := range m.lines {
		if line.POID == poID {
			out = append(out, *line)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memoryPORepo) GetPO(ctx context.Context, companyID, poID int64) (PurchaseOrder, error) {
	po, ok := m.pos[poID]
	if !ok || po.CompanyID != companyID {
		return PurchaseOrder{}, shared.ErrNotFound
	}
	out := *po
	out.Lines = m.linesFor(poID)
	return out, nil
}

func (m *memoryPORepo) ListForSalesOrder(ctx context.Context, companyID, salesOrderID int64) ([]PurchaseOrder, error) {
	out := []PurchaseOrder{}
	for _, po := range m.pos {
		if po.CompanyID == companyID && po.RefSalesOrderID == salesOrderID {
			cp := *po
			cp.Lines = m.linesFor(po.ID)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryPORepo) OpenDraftQtyBySKU(ctx context.Context, companyID, salesOrderID int64) (map[int64]float64, error) {
	open := map[int64]float64{}
	for _, po := range m.pos {
		if po.CompanyID != companyID || po.RefSalesOrderID != salesOrderID || po.Status != POStatusDraft {
			continue
		}
		for _, line := range m.linesFor(po.ID) {
			if line.Outstanding() > 0 {
				open[line.SKUID] += line.Outstanding()
			}
		}
	}
	return open, nil
}

func (m *memoryPORepo) CreatePO(ctx context.Context, po PurchaseOrder) (int64, error) {
	m.nextPOID++
	po.ID = m.nextPOID
	po.Lines = nil
	m.pos[po.ID] = &po
	return po.ID, nil
}

func (m *memoryPORepo) InsertPOLine(ctx context.Context, line POLine) (int64, error) {
	m.nextLineID++
	line.ID = m.nextLineID
	m.lines[line.ID] = &line
	return line.ID, nil
}

func (m *memoryPORepo) GetPOLineForUpdate(ctx context.Context, companyID, poLineID int64) (POLine, PurchaseOrder, error) {
	line, ok := m.lines[poLineID]
	if !ok {
		return POLine{}, PurchaseOrder{}, shared.ErrNotFound
	}
	po, ok := m.pos[line.POID]
	if !ok || po.CompanyID != companyID {
		return POLine{}, PurchaseOrder{}, shared.ErrNotFound
	}
	out := *po
	out.Lines = m.linesFor(po.ID)
	return *line, out, nil
}

func (m *memoryPORepo) UpdatePOLineProgress(ctx context.Context, poLineID int64, receivedQty, shortClosedQty float64) error {
	line, ok := m.lines[poLineID]
	if !ok {
		return shared.ErrNotFound
	}
	line.ReceivedQty = receivedQty
	line.ShortClosedQty = shortClosedQty
	return nil
}

func (m *memoryPORepo) UpdatePOStatus(ctx context.Context, poID int64, status POStatus) error {
	po, ok := m.pos[poID]
	if !ok {
		return shared.ErrNotFound
	}
	po.Status = status
	return nil
}

type stubAvailability struct {
	report fulfillment.AvailabilityReport
	err    error
}

func (s *stubAvailability) ComputeAvailability(ctx context.Context, companyID int64, demand []fulfillment.DemandLine, excludeOrderIDs []int64) (fulfillment.AvailabilityReport, error) {
	return s.report, s.err
}

type stubDirectory struct {
	vendors map[int64]masterdata.Vendor // keyed by SKU ID
	rawZone masterdata.Zone
}

func (s *stubDirectory) GetPreferredVendor(ctx context.Context, companyID, skuID int64) (masterdata.Vendor, error) {
	return s.vendors[skuID], nil
}

func (s *stubDirectory) ZoneByType(ctx context.Context, companyID int64, zoneType masterdata.ZoneType) (masterdata.Zone, error) {
	if s.rawZone.ID == 0 {
		return masterdata.Zone{}, shared.ErrConfiguration
	}
	return s.rawZone, nil
}

type stubInventory struct {
	movements []inventory.MovementInput
	err       error
}

func (s *stubInventory) RecordMovement(ctx context.Context, input inventory.MovementInput) (inventory.Movement, error) {
	if s.err != nil {
		return inventory.Movement{}, s.err
	}
	s.movements = append(s.movements, input)
	return inventory.Movement{ID: int64(len(s.movements))}, nil
}

func fixtureService(report fulfillment.AvailabilityReport, cfg PlannerConfig) (*Service, *memoryPORepo, *stubInventory) {
	repo := newMemoryPORepo()
	inv := &stubInventory{}
	dir := &stubDirectory{
		vendors: map[int64]masterdata.Vendor{
			1: {ID: 7, Name: "Apex Metals"},
			2: {ID: 7, Name: "Apex Metals"},
			3: {ID: 9, Name: "Deltaflow"},
		},
		rawZone: masterdata.Zone{ID: 10, Type: masterdata.ZoneTypeRawMaterial},
	}
	svc := NewService(repo, &stubAvailability{report: report}, dir, inv, nil, nil, cfg)
	return svc, repo, inv
}

func TestAutoDraftCoversShortage(t *testing.T) {
	report := fulfillment.AvailabilityReport{CompanyID: 1, ZoneID: 10, Lines: []fulfillment.AvailabilityLine{
		{SKUID: 1, RequiredQty: 120, OnHandQty: 100, AvailableQty: 100, ShortageQty: 20},
	}}
	svc, repo, _ := fixtureService(report, PlannerConfig{})

	drafts, err := svc.AutoDraftPurchaseOrders(context.Background(), 1, 55, "SO-1001", []fulfillment.DemandLine{{ID: 1, SKUID: 100, Qty: 60}})
	require.NoError(t, err)
	require.Len(t, drafts, 1)

	po := drafts[0]
	require.Equal(t, POStatusDraft, po.Status)
	require.Equal(t, int64(7), po.VendorID)
	require.Equal(t, int64(55), po.RefSalesOrderID)
	require.Len(t, po.Lines, 1)
	require.Equal(t, int64(1), po.Lines[0].SKUID)
	require.InDelta(t, 20, po.Lines[0].Qty, 1e-9)

	stored, err := repo.GetPO(context.Background(), 1, po.ID)
	require.NoError(t, err)
	require.Equal(t, POStatusDraft, stored.Status)
}

func TestAutoDraftGroupsByVendor(t *testing.T) {
	report := fulfillment.AvailabilityReport{CompanyID: 1, ZoneID: 10, Lines: []fulfillment.AvailabilityLine{
		{SKUID: 1, RequiredQty: 50, ShortageQty: 10},
		{SKUID: 2, RequiredQty: 40, ShortageQty: 5},
		{SKUID: 3, RequiredQty: 30, ShortageQty: 8},
	}}
	svc, _, _ := fixtureService(report, PlannerConfig{})

	drafts, err := svc.AutoDraftPurchaseOrders(context.Background(), 1, 55, "SO-1001", nil)
	require.NoError(t, err)
	require.Len(t, drafts, 2)

	byVendor := map[int64]PurchaseOrder{}
	for _, po := range drafts {
		byVendor[po.VendorID] = po
	}
	require.Len(t, byVendor[7].Lines, 2)
	require.Len(t, byVendor[9].Lines, 1)
}

func TestAutoDraftUnassignedVendorGroup(t *testing.T) {
	report := fulfillment.AvailabilityReport{Lines: []fulfillment.AvailabilityLine{
		{SKUID: 42, RequiredQty: 10, ShortageQty: 10},
	}}
	svc, _, _ := fixtureService(report, PlannerConfig{})

	drafts, err := svc.AutoDraftPurchaseOrders(context.Background(), 1, 55, "SO-1001", nil)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	require.Zero(t, drafts[0].VendorID)
}

func TestAutoDraftNoShortageNoDraft(t *testing.T) {
	report := fulfillment.AvailabilityReport{Lines: []fulfillment.AvailabilityLine{
		{SKUID: 1, RequiredQty: 50, AvailableQty: 80, ShortageQty: 0},
	}}
	svc, repo, _ := fixtureService(report, PlannerConfig{})

	drafts, err := svc.AutoDraftPurchaseOrders(context.Background(), 1, 55, "SO-1001", nil)
	require.NoError(t, err)
	require.Empty(t, drafts)
	require.Empty(t, repo.pos)
}

func TestAutoDraftOffsetsOpenDrafts(t *testing.T) {
	report := fulfillment.AvailabilityReport{Lines: []fulfillment.AvailabilityLine{
		{SKUID: 1, RequiredQty: 120, ShortageQty: 20},
	}}
	svc, repo, _ := fixtureService(report, PlannerConfig{OffsetOpenDrafts: true})

	first, err := svc.AutoDraftPurchaseOrders(context.Background(), 1, 55, "SO-1001", nil)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Same shortage again: already fully covered by the open draft.
	second, err := svc.AutoDraftPurchaseOrders(context.Background(), 1, 55, "SO-1001", nil)
	require.NoError(t, err)
	require.Empty(t, second)
	require.Len(t, repo.pos, 1)
}

func TestAutoDraftWithoutOffsetDraftsAgain(t *testing.T) {
	report := fulfillment.AvailabilityReport{Lines: []fulfillment.AvailabilityLine{
		{SKUID: 1, RequiredQty: 120, ShortageQty: 20},
	}}
	svc, repo, _ := fixtureService(report, PlannerConfig{OffsetOpenDrafts: false})

	_, err := svc.AutoDraftPurchaseOrders(context.Background(), 1, 55, "SO-1001", nil)
	require.NoError(t, err)
	_, err = svc.AutoDraftPurchaseOrders(context.Background(), 1, 55, "SO-1001", nil)
	require.NoError(t, err)
	require.Len(t, repo.pos, 2)
}

func draftLine(t *testing.T, repo *memoryPORepo, qty float64) POLine {
	t.Helper()
	ctx := context.Background()
	poID, err := repo.CreatePO(ctx, PurchaseOrder{CompanyID: 1, Number: "PO-1", VendorID: 7, Status: POStatusApproved})
	require.NoError(t, err)
	lineID, err := repo.InsertPOLine(ctx, POLine{POID: poID, SKUID: 1, Qty: qty})
	require.NoError(t, err)
	return *repo.lines[lineID]
}

func TestReceiveGoodsPostsReceipt(t *testing.T) {
	svc, repo, inv := fixtureService(fulfillment.AvailabilityReport{}, PlannerConfig{})
	line := draftLine(t, repo, 20)

	err := svc.ReceiveGoods(context.Background(), ReceiptInput{CompanyID: 1, POLineID: line.ID, Qty: 12, UnitCost: 3.5})
	require.NoError(t, err)

	require.InDelta(t, 12, repo.lines[line.ID].ReceivedQty, 1e-9)
	require.Equal(t, POStatusReceiving, repo.pos[line.POID].Status)

	require.Len(t, inv.movements, 1)
	mv := inv.movements[0]
	require.Equal(t, inventory.DirectionIn, mv.Direction)
	require.Equal(t, inventory.MovementTypeReceipt, mv.Type)
	require.Equal(t, int64(10), mv.ZoneID)
	require.Equal(t, int64(1), mv.SKUID)
	require.InDelta(t, 12, mv.Qty, 1e-9)
	require.InDelta(t, 3.5, mv.UnitCost, 1e-9)
	require.Equal(t, "PROCUREMENT", mv.RefModule)
}

func TestReceiveGoodsOverReceiptRejected(t *testing.T) {
	svc, repo, inv := fixtureService(fulfillment.AvailabilityReport{}, PlannerConfig{})
	line := draftLine(t, repo, 20)

	err := svc.ReceiveGoods(context.Background(), ReceiptInput{CompanyID: 1, POLineID: line.ID, Qty: 25})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Zero(t, repo.lines[line.ID].ReceivedQty)
	require.Empty(t, inv.movements)
}

func TestReceiveGoodsMovementFailureRollsBackProgress(t *testing.T) {
	svc, repo, inv := fixtureService(fulfillment.AvailabilityReport{}, PlannerConfig{})
	line := draftLine(t, repo, 20)
	inv.err = errors.New("ledger unavailable")

	err := svc.ReceiveGoods(context.Background(), ReceiptInput{CompanyID: 1, POLineID: line.ID, Qty: 20, UnitCost: 3.5})
	require.Error(t, err)
	require.Zero(t, repo.lines[line.ID].ReceivedQty)
	require.Equal(t, POStatusApproved, repo.pos[line.POID].Status)

	// The receipt stays retryable: same input succeeds once the ledger is back.
	inv.err = nil
	require.NoError(t, svc.ReceiveGoods(context.Background(), ReceiptInput{CompanyID: 1, POLineID: line.ID, Qty: 20, UnitCost: 3.5}))
	require.InDelta(t, 20, repo.lines[line.ID].ReceivedQty, 1e-9)
	require.Equal(t, POStatusClosed, repo.pos[line.POID].Status)
	require.Len(t, inv.movements, 1)
}

func TestReceiveFinalClosesPO(t *testing.T) {
	svc, repo, _ := fixtureService(fulfillment.AvailabilityReport{}, PlannerConfig{})
	line := draftLine(t, repo, 20)

	require.NoError(t, svc.ReceiveGoods(context.Background(), ReceiptInput{CompanyID: 1, POLineID: line.ID, Qty: 15}))
	require.Equal(t, POStatusReceiving, repo.pos[line.POID].Status)

	require.NoError(t, svc.ReceiveGoods(context.Background(), ReceiptInput{CompanyID: 1, POLineID: line.ID, Qty: 5}))
	require.Equal(t, POStatusClosed, repo.pos[line.POID].Status)
}

func TestReceiveOnClosedPORejected(t *testing.T) {
	svc, repo, inv := fixtureService(fulfillment.AvailabilityReport{}, PlannerConfig{})
	line := draftLine(t, repo, 20)
	repo.pos[line.POID].Status = POStatusClosed

	err := svc.ReceiveGoods(context.Background(), ReceiptInput{CompanyID: 1, POLineID: line.ID, Qty: 5})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, inv.movements)
}

func TestShortCloseBoundedByOutstanding(t *testing.T) {
	svc, repo, _ := fixtureService(fulfillment.AvailabilityReport{}, PlannerConfig{})
	line := draftLine(t, repo, 20)

	require.NoError(t, svc.ReceiveGoods(context.Background(), ReceiptInput{CompanyID: 1, POLineID: line.ID, Qty: 12}))

	err := svc.ShortClose(context.Background(), 1, line.ID, 10)
	require.ErrorIs(t, err, shared.ErrValidation)

	require.NoError(t, svc.ShortClose(context.Background(), 1, line.ID, 8))
	require.Zero(t, repo.lines[line.ID].Outstanding())
	require.Equal(t, POStatusClosed, repo.pos[line.POID].Status)
}
