package allocation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/forgeline/forgeline/internal/shared"
)

type memoryLine struct {
	companyID int64
	qty       float64
}

type allocKey struct {
	poLineID int64
	soLineID int64
}

type memoryAllocRepo struct {
	soLines         map[int64]memoryLine
	poLines         map[int64]memoryLine
	allocations     map[allocKey]float64
	soLineAllocated map[int64]float64
}

func newMemoryAllocRepo() *memoryAllocRepo {
	return &memoryAllocRepo{
		soLines:         map[int64]memoryLine{},
		poLines:         map[int64]memoryLine{},
		allocations:     map[allocKey]float64{},
		soLineAllocated: map[int64]float64{},
	}
}

func (m *memoryAllocRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[allocKey]float64, len(m.allocations))
	for k, v := range m.allocations {
		snapshot[k] = v
	}
	if err := fn(ctx, m); err != nil {
		m.allocations = snapshot
		return err
	}
	return nil
}

func (m *memoryAllocRepo) ListForSalesOrderLine(ctx context.Context, companyID, soLineID int64) ([]Allocation, error) {
	out := []Allocation{}
	for k, qty := range m.allocations {
		if k.soLineID == soLineID {
			out = append(out, Allocation{CompanyID: companyID, POLineID: k.poLineID, SalesOrderLineID: k.soLineID, Qty: qty, UpdatedAt: time.Now()})
		}
	}
	return out, nil
}

func (m *memoryAllocRepo) ListForPOLine(ctx context.Context, companyID, poLineID int64) ([]Allocation, error) {
	out := []Allocation{}
	for k, qty := range m.allocations {
		if k.poLineID == poLineID {
			out = append(out, Allocation{CompanyID: companyID, POLineID: k.poLineID, SalesOrderLineID: k.soLineID, Qty: qty, UpdatedAt: time.Now()})
		}
	}
	return out, nil
}

func (m *memoryAllocRepo) GetSOLineForUpdate(ctx context.Context, companyID, soLineID int64) (LineView, error) {
	line, ok := m.soLines[soLineID]
	if !ok || line.companyID != companyID {
		return LineView{}, shared.ErrNotFound
	}
	var allocated float64
	for k, qty := range m.allocations {
		if k.soLineID == soLineID {
			allocated += qty
		}
	}
	return LineView{ID: soLineID, Qty: line.qty, AllocatedQty: allocated}, nil
}

func (m *memoryAllocRepo) GetPOLineForUpdate(ctx context.Context, companyID, poLineID int64) (LineView, error) {
	line, ok := m.poLines[poLineID]
	if !ok || line.companyID != companyID {
		return LineView{}, shared.ErrNotFound
	}
	var allocated float64
	for k, qty := range m.allocations {
		if k.poLineID == poLineID {
			allocated += qty
		}
	}
	return LineView{ID: poLineID, Qty: line.qty, AllocatedQty: allocated}, nil
}

func (m *memoryAllocRepo) AddAllocation(ctx context.Context, companyID, poLineID, soLineID int64, qty float64) error {
	m.allocations[allocKey{poLineID, soLineID}] += qty
	m.syncLineAllocated(soLineID)
	return nil
}

func (m *memoryAllocRepo) DecrementAllocation(ctx context.Context, companyID, poLineID, soLineID int64, qty float64) error {
	key := allocKey{poLineID, soLineID}
	remaining := m.allocations[key] - qty
	if remaining <= 0 {
		delete(m.allocations, key)
	} else {
		m.allocations[key] = remaining
	}
	m.syncLineAllocated(soLineID)
	return nil
}

func (m *memoryAllocRepo) syncLineAllocated(soLineID int64) {
	var sum float64
	for k, qty := range m.allocations {
		if k.soLineID == soLineID {
			sum += qty
		}
	}
	m.soLineAllocated[soLineID] = sum
}

func fixtureAllocRepo() *memoryAllocRepo {
	repo := newMemoryAllocRepo()
	repo.soLines[1] = memoryLine{companyID: 1, qty: 30}
	repo.soLines[2] = memoryLine{companyID: 1, qty: 50}
	repo.poLines[10] = memoryLine{companyID: 1, qty: 40}
	return repo
}

func TestAllocateWithinBothCaps(t *testing.T) {
	repo := fixtureAllocRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	err := svc.Allocate(ctx, AllocateInput{CompanyID: 1, POLineID: 10, SalesOrderLineID: 1, Qty: 25})
	require.NoError(t, err)
	require.InDelta(t, 25, repo.allocations[allocKey{10, 1}], 1e-9)
}

func TestAllocateCappedBySalesOrderLine(t *testing.T) {
	repo := fixtureAllocRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	require.NoError(t, svc.Allocate(ctx, AllocateInput{CompanyID: 1, POLineID: 10, SalesOrderLineID: 1, Qty: 25}))

	// SO line 1 orders 30; only 5 remain unallocated.
	err := svc.Allocate(ctx, AllocateInput{CompanyID: 1, POLineID: 10, SalesOrderLineID: 1, Qty: 10})
	require.ErrorIs(t, err, shared.ErrOverAllocation)
	require.InDelta(t, 25, repo.allocations[allocKey{10, 1}], 1e-9)
}

func TestAllocateCappedByPOLine(t *testing.T) {
	repo := fixtureAllocRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	require.NoError(t, svc.Allocate(ctx, AllocateInput{CompanyID: 1, POLineID: 10, SalesOrderLineID: 1, Qty: 25}))

	// PO line 10 purchases 40; only 15 remain after the first allocation.
	err := svc.Allocate(ctx, AllocateInput{CompanyID: 1, POLineID: 10, SalesOrderLineID: 2, Qty: 20})
	require.ErrorIs(t, err, shared.ErrOverAllocation)

	require.NoError(t, svc.Allocate(ctx, AllocateInput{CompanyID: 1, POLineID: 10, SalesOrderLineID: 2, Qty: 15}))
}

func TestAllocateCrossTenantReadsAsMissing(t *testing.T) {
	repo := fixtureAllocRepo()
	svc := NewService(repo, nil)

	err := svc.Allocate(context.Background(), AllocateInput{CompanyID: 2, POLineID: 10, SalesOrderLineID: 1, Qty: 5})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, repo.allocations)
}

func TestAllocateRejectsNonPositiveQty(t *testing.T) {
	svc := NewService(fixtureAllocRepo(), nil)

	err := svc.Allocate(context.Background(), AllocateInput{CompanyID: 1, POLineID: 10, SalesOrderLineID: 1, Qty: 0})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAllocateMaintainsLineCounter(t *testing.T) {
	repo := fixtureAllocRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	require.NoError(t, svc.Allocate(ctx, AllocateInput{CompanyID: 1, POLineID: 10, SalesOrderLineID: 1, Qty: 20}))
	require.InDelta(t, 20, repo.soLineAllocated[1], 1e-9)

	require.NoError(t, svc.Deallocate(ctx, 1, 10, 1, 8))
	require.InDelta(t, 12, repo.soLineAllocated[1], 1e-9)

	require.NoError(t, svc.Deallocate(ctx, 1, 10, 1, 50))
	require.Zero(t, repo.soLineAllocated[1])
}

func TestDeallocateFlooredAtZero(t *testing.T) {
	repo := fixtureAllocRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	require.NoError(t, svc.Allocate(ctx, AllocateInput{CompanyID: 1, POLineID: 10, SalesOrderLineID: 1, Qty: 20}))
	require.NoError(t, svc.Deallocate(ctx, 1, 10, 1, 50))

	_, ok := repo.allocations[allocKey{10, 1}]
	require.False(t, ok)

	// Freed capacity can be allocated again.
	require.NoError(t, svc.Allocate(ctx, AllocateInput{CompanyID: 1, POLineID: 10, SalesOrderLineID: 1, Qty: 30}))
}
