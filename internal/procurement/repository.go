package procurement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forgeline/forgeline/internal/platform/db"
	"github.com/forgeline/forgeline/internal/shared"
)

// Repository persists purchase orders in PostgreSQL.
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
		return errors.New("procurement repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetPO loads a purchase order with its lines.
func (r *Repository) GetPO(ctx context.Context, companyID, poID int64) (PurchaseOrder, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, company_id, po_number, COALESCE(vendor_id, 0), status, COALESCE(ref_sales_order_id, 0), note, created_at
FROM purchase_orders WHERE company_id=$1 AND id=$2`, companyID, poID)
	po, err := scanPO(row)
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Lines, err = r.linesFor(ctx, r.pool, poID)
	return po, err
}

// ListForSalesOrder lists purchase orders drafted against a sales order.
func (r *Repository) ListForSalesOrder(ctx context.Context, companyID, salesOrderID int64) ([]PurchaseOrder, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, po_number, COALESCE(vendor_id, 0), status, COALESCE(ref_sales_order_id, 0), note, created_at
FROM purchase_orders WHERE company_id=$1 AND ref_sales_order_id=$2 ORDER BY id`, companyID, salesOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	orders := []PurchaseOrder{}
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, po)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Lines, err = r.linesFor(ctx, r.pool, orders[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// OpenDraftQtyBySKU sums unreceived DRAFT line quantities referencing the
// sales order, per SKU.
func (r *Repository) OpenDraftQtyBySKU(ctx context.Context, companyID, salesOrderID int64) (map[int64]float64, error) {
	rows, err := r.pool.Query(ctx, `SELECT l.sku_id, SUM(l.qty - l.received_qty - l.short_closed_qty)
FROM purchase_order_lines l
JOIN purchase_orders p ON p.id = l.po_id
WHERE p.company_id=$1 AND p.ref_sales_order_id=$2 AND p.status='DRAFT'
GROUP BY l.sku_id`, companyID, salesOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	open := make(map[int64]float64)
	for rows.Next() {
		var skuID int64
		var qty float64
		if err := rows.Scan(&skuID, &qty); err != nil {
			return nil, err
		}
		if qty > 0 {
			open[skuID] = qty
		}
	}
	return open, rows.Err()
}

func (r *txRepository) CreatePO(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_orders (company_id, po_number, vendor_id, status, ref_sales_order_id, note, created_at)
VALUES ($1, $2, NULLIF($3, 0), $4, NULLIF($5, 0), $6, NOW())
RETURNING id`,
		po.CompanyID, po.Number, po.VendorID, string(po.Status), po.RefSalesOrderID, po.Note).Scan(&id)
	return id, err
}

func (r *txRepository) InsertPOLine(ctx context.Context, line POLine) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_order_lines (po_id, sku_id, qty, received_qty, short_closed_qty)
VALUES ($1, $2, $3, 0, 0)
RETURNING id`, line.POID, line.SKUID, line.Qty).Scan(&id)
	return id, err
}

func (r *txRepository) GetPOLineForUpdate(ctx context.Context, companyID, poLineID int64) (POLine, PurchaseOrder, error) {
	row := r.tx.QueryRow(ctx, `SELECT l.id, l.po_id, l.sku_id, l.qty, l.received_qty, l.short_closed_qty
FROM purchase_order_lines l
JOIN purchase_orders p ON p.id = l.po_id
WHERE p.company_id=$1 AND l.id=$2
FOR UPDATE OF l`, companyID, poLineID)
	var line POLine
	if err := row.Scan(&line.ID, &line.POID, &line.SKUID, &line.Qty, &line.ReceivedQty, &line.ShortClosedQty); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return POLine{}, PurchaseOrder{}, fmt.Errorf("procurement: po line %d: %w", poLineID, shared.ErrNotFound)
		}
		return POLine{}, PurchaseOrder{}, err
	}
	poRow := r.tx.QueryRow(ctx, `SELECT id, company_id, po_number, COALESCE(vendor_id, 0), status, COALESCE(ref_sales_order_id, 0), note, created_at
FROM purchase_orders WHERE id=$1 FOR UPDATE`, line.POID)
	po, err := scanPO(poRow)
	if err != nil {
		return POLine{}, PurchaseOrder{}, err
	}
	po.Lines, err = linesForTx(ctx, r.tx, po.ID)
	return line, po, err
}

func (r *txRepository) UpdatePOLineProgress(ctx context.Context, poLineID int64, receivedQty, shortClosedQty float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_order_lines SET received_qty=$2, short_closed_qty=$3 WHERE id=$1`,
		poLineID, receivedQty, shortClosedQty)
	return err
}

func (r *txRepository) UpdatePOStatus(ctx context.Context, poID int64, status POStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET status=$2 WHERE id=$1`, poID, string(status))
	return err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *Repository) linesFor(ctx context.Context, q querier, poID int64) ([]POLine, error) {
	return linesForTx(ctx, q, poID)
}

func linesForTx(ctx context.Context, q querier, poID int64) ([]POLine, error) {
	rows, err := q.Query(ctx, `SELECT id, po_id, sku_id, qty, received_qty, short_closed_qty
FROM purchase_order_lines WHERE po_id=$1 ORDER BY id`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []POLine{}
	for rows.Next() {
		var l POLine
		if err := rows.Scan(&l.ID, &l.POID, &l.SKUID, &l.Qty, &l.ReceivedQty, &l.ShortClosedQty); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	var status string
	if err := row.Scan(&po.ID, &po.CompanyID, &po.Number, &po.VendorID, &status, &po.RefSalesOrderID, &po.Note, &po.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, fmt.Errorf("procurement: purchase order: %w", shared.ErrNotFound)
		}
		return PurchaseOrder{}, err
	}
	po.Status = POStatus(status)
	return po, nil
}
