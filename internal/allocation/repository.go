package allocation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forgeline/forgeline/internal/platform/db"
	"github.com/forgeline/forgeline/internal/shared"
)

// Repository persists PO-to-SO allocations in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("allocation repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// ListForSalesOrderLine lists allocations feeding a sales-order line.
func (r *Repository) ListForSalesOrderLine(ctx context.Context, companyID, soLineID int64) ([]Allocation, error) {
	return r.list(ctx, `SELECT id, company_id, po_line_id, so_line_id, qty, updated_at
FROM po_allocations WHERE company_id=$1 AND so_line_id=$2 ORDER BY id`, companyID, soLineID)
}

// ListForPOLine lists allocations drawn from a PO line.
func (r *Repository) ListForPOLine(ctx context.Context, companyID, poLineID int64) ([]Allocation, error) {
	return r.list(ctx, `SELECT id, company_id, po_line_id, so_line_id, qty, updated_at
FROM po_allocations WHERE company_id=$1 AND po_line_id=$2 ORDER BY id`, companyID, poLineID)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Allocation, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	allocations := []Allocation{}
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.POLineID, &a.SalesOrderLineID, &a.Qty, &a.UpdatedAt); err != nil {
			return nil, err
		}
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}

// GetSOLineForUpdate locks the sales-order line and reports its ordered and
// already-allocated quantities. Scoped to the company; cross-tenant IDs read
// as missing.
func (r *txRepository) GetSOLineForUpdate(ctx context.Context, companyID, soLineID int64) (LineView, error) {
	row := r.tx.QueryRow(ctx, `SELECT l.id, l.qty, o.status,
  COALESCE((SELECT SUM(a.qty) FROM po_allocations a WHERE a.so_line_id = l.id), 0)
FROM sales_order_lines l
JOIN sales_orders o ON o.id = l.sales_order_id
WHERE o.company_id=$1 AND l.id=$2
FOR UPDATE OF l`, companyID, soLineID)
	return scanLineView(row, "sales order line", soLineID)
}

// GetPOLineForUpdate locks the purchase-order line and reports its purchased
// and already-allocated quantities.
func (r *txRepository) GetPOLineForUpdate(ctx context.Context, companyID, poLineID int64) (LineView, error) {
	row := r.tx.QueryRow(ctx, `SELECT l.id, l.qty, p.status,
  COALESCE((SELECT SUM(a.qty) FROM po_allocations a WHERE a.po_line_id = l.id), 0)
FROM purchase_order_lines l
JOIN purchase_orders p ON p.id = l.po_id
WHERE p.company_id=$1 AND l.id=$2
FOR UPDATE OF l`, companyID, poLineID)
	return scanLineView(row, "purchase order line", poLineID)
}

func (r *txRepository) AddAllocation(ctx context.Context, companyID, poLineID, soLineID int64, qty float64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO po_allocations (company_id, po_line_id, so_line_id, qty, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (po_line_id, so_line_id)
DO UPDATE SET qty = po_allocations.qty + EXCLUDED.qty, updated_at = NOW()`,
		companyID, poLineID, soLineID, qty)
	if err != nil {
		return err
	}
	return r.syncLineAllocated(ctx, soLineID)
}

func (r *txRepository) DecrementAllocation(ctx context.Context, companyID, poLineID, soLineID int64, qty float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE po_allocations
SET qty = GREATEST(qty - $4, 0), updated_at = NOW()
WHERE company_id=$1 AND po_line_id=$2 AND so_line_id=$3`, companyID, poLineID, soLineID, qty)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, `DELETE FROM po_allocations
WHERE company_id=$1 AND po_line_id=$2 AND so_line_id=$3 AND qty <= 0`, companyID, poLineID, soLineID)
	if err != nil {
		return err
	}
	return r.syncLineAllocated(ctx, soLineID)
}

// syncLineAllocated keeps the denormalised counter on the sales-order line in
// step with the allocation rows it summarises.
func (r *txRepository) syncLineAllocated(ctx context.Context, soLineID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE sales_order_lines
SET allocated_qty = (SELECT COALESCE(SUM(qty), 0) FROM po_allocations WHERE so_line_id = $1)
WHERE id = $1`, soLineID)
	return err
}

func scanLineView(row pgx.Row, kind string, id int64) (LineView, error) {
	var v LineView
	if err := row.Scan(&v.ID, &v.Qty, &v.Status, &v.AllocatedQty); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LineView{}, fmt.Errorf("allocation: %s %d: %w", kind, id, shared.ErrNotFound)
		}
		return LineView{}, err
	}
	return v, nil
}
