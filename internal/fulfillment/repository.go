package fulfillment

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forgeline/forgeline/internal/platform/db"
)

// Repository persists reservations and reads balances in PostgreSQL.
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
		return errors.New("fulfillment repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const onHandQuery = `SELECT COALESCE(on_hand, 0) FROM stock_balances WHERE company_id=$1 AND sku_id=$2 AND zone_id=$3`

// reservedQuery sums holds on a SKU, skipping orders whose own demand is
// being re-checked.
const reservedQuery = `SELECT COALESCE(SUM(qty), 0) FROM stock_reservations
WHERE company_id=$1 AND sku_id=$2 AND NOT (sales_order_id = ANY($3::bigint[]))`

// OnHand reads the raw-zone balance outside a transaction.
func (r *Repository) OnHand(ctx context.Context, companyID, skuID, zoneID int64) (float64, error) {
	return scanOnHand(r.pool.QueryRow(ctx, onHandQuery, companyID, skuID, zoneID))
}

// ReservedQty sums reservations outside a transaction.
func (r *Repository) ReservedQty(ctx context.Context, companyID, skuID int64, excludeOrderIDs []int64) (float64, error) {
	var total float64
	err := r.pool.QueryRow(ctx, reservedQuery, companyID, skuID, int64Array(excludeOrderIDs)).Scan(&total)
	return total, err
}

// ListReservations lists the order's reservations.
func (r *Repository) ListReservations(ctx context.Context, companyID, salesOrderID int64) ([]Reservation, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, sales_order_id, sku_id, qty, updated_at
FROM stock_reservations WHERE company_id=$1 AND sales_order_id=$2 ORDER BY sku_id`, companyID, salesOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var reservations []Reservation
	for rows.Next() {
		var res Reservation
		if err := rows.Scan(&res.ID, &res.CompanyID, &res.SalesOrderID, &res.SKUID, &res.Qty, &res.UpdatedAt); err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}
	return reservations, rows.Err()
}

// OnHand inside the transaction locks the balance row so the availability
// check and the reservation write share one lock scope.
func (r *txRepository) OnHand(ctx context.Context, companyID, skuID, zoneID int64) (float64, error) {
	return scanOnHand(r.tx.QueryRow(ctx, onHandQuery+` FOR UPDATE`, companyID, skuID, zoneID))
}

func (r *txRepository) ReservedQty(ctx context.Context, companyID, skuID int64, excludeOrderIDs []int64) (float64, error) {
	var total float64
	err := r.tx.QueryRow(ctx, reservedQuery, companyID, skuID, int64Array(excludeOrderIDs)).Scan(&total)
	return total, err
}

func (r *txRepository) AddReservation(ctx context.Context, companyID, salesOrderID, skuID int64, qty float64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_reservations (company_id, sales_order_id, sku_id, qty, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (company_id, sales_order_id, sku_id)
DO UPDATE SET qty = stock_reservations.qty + EXCLUDED.qty, updated_at = NOW()`,
		companyID, salesOrderID, skuID, qty)
	return err
}

func (r *txRepository) ReleaseOrder(ctx context.Context, companyID, salesOrderID int64) (int64, error) {
	tag, err := r.tx.Exec(ctx, `DELETE FROM stock_reservations WHERE company_id=$1 AND sales_order_id=$2`, companyID, salesOrderID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *txRepository) DecrementReservation(ctx context.Context, companyID, salesOrderID, skuID int64, qty float64) error {
	// Floored at zero to tolerate prior drift; fully consumed rows go away.
	if _, err := r.tx.Exec(ctx, `UPDATE stock_reservations SET qty = GREATEST(qty - $4, 0), updated_at = NOW()
WHERE company_id=$1 AND sales_order_id=$2 AND sku_id=$3`, companyID, salesOrderID, skuID, qty); err != nil {
		return err
	}
	_, err := r.tx.Exec(ctx, `DELETE FROM stock_reservations WHERE company_id=$1 AND sales_order_id=$2 AND sku_id=$3 AND qty <= 0`,
		companyID, salesOrderID, skuID)
	return err
}

// SweepCancelledOrders deletes reservations still held by cancelled or
// delivered orders. Drift repair for holds that escaped the release path;
// invoked from the scheduled sweep job.
func (r *Repository) SweepCancelledOrders(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM stock_reservations res
USING sales_orders so
WHERE so.id = res.sales_order_id AND so.status IN ('CANCELLED', 'DELIVERED')`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanOnHand(row pgx.Row) (float64, error) {
	var onHand float64
	if err := row.Scan(&onHand); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return onHand, nil
}

func int64Array(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
