package sales

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forgeline/forgeline/internal/platform/db"
	"github.com/forgeline/forgeline/internal/shared"
)

// Repository persists sales orders in PostgreSQL.
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
		return errors.New("sales repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetOrder loads one order with lines.
func (r *Repository) GetOrder(ctx context.Context, companyID, orderID int64) (SalesOrder, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, company_id, so_number, customer_name, status, created_at
FROM sales_orders WHERE company_id=$1 AND id=$2`, companyID, orderID)
	order, err := scanOrder(row)
	if err != nil {
		return SalesOrder{}, err
	}
	order.Lines, err = linesFor(ctx, r.pool, orderID)
	return order, err
}

// ListOrders lists orders, newest first, optionally filtered by status.
func (r *Repository) ListOrders(ctx context.Context, companyID int64, status SOStatus, limit int) ([]SalesOrder, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, so_number, customer_name, status, created_at
FROM sales_orders
WHERE company_id=$1 AND ($2 = '' OR status=$2)
ORDER BY id DESC LIMIT $3`, companyID, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	orders := []SalesOrder{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (r *txRepository) InsertOrder(ctx context.Context, order SalesOrder) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO sales_orders (company_id, so_number, customer_name, status, created_at)
VALUES ($1, $2, $3, $4, NOW())
RETURNING id`, order.CompanyID, order.Number, order.CustomerName, string(order.Status)).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLine(ctx context.Context, line SOLine) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO sales_order_lines (sales_order_id, sku_id, qty, allocated_qty, delivered_qty)
VALUES ($1, $2, $3, 0, 0)
RETURNING id`, line.SalesOrderID, line.SKUID, line.Qty).Scan(&id)
	return id, err
}

func (r *txRepository) GetOrderForUpdate(ctx context.Context, companyID, orderID int64) (SalesOrder, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, company_id, so_number, customer_name, status, created_at
FROM sales_orders WHERE company_id=$1 AND id=$2 FOR UPDATE`, companyID, orderID)
	order, err := scanOrder(row)
	if err != nil {
		return SalesOrder{}, err
	}
	order.Lines, err = linesFor(ctx, r.tx, orderID)
	return order, err
}

func (r *txRepository) UpdateStatus(ctx context.Context, orderID int64, status SOStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE sales_orders SET status=$2 WHERE id=$1`, orderID, string(status))
	return err
}

func (r *txRepository) UpdateLineDelivered(ctx context.Context, lineID int64, deliveredQty float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE sales_order_lines SET delivered_qty=$2 WHERE id=$1`, lineID, deliveredQty)
	return err
}

func (r *txRepository) InsertDelivery(ctx context.Context, d Delivery) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO deliveries (company_id, sales_order_id, so_line_id, qty, note, created_at)
VALUES ($1, $2, $3, $4, $5, NOW())
RETURNING id`, d.CompanyID, d.OrderID, d.SOLineID, d.Qty, d.Note).Scan(&id)
	return id, err
}

func (r *txRepository) DeleteDelivery(ctx context.Context, deliveryID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM deliveries WHERE id=$1`, deliveryID)
	return err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func linesFor(ctx context.Context, q querier, orderID int64) ([]SOLine, error) {
	rows, err := q.Query(ctx, `SELECT id, sales_order_id, sku_id, qty, allocated_qty, delivered_qty
FROM sales_order_lines WHERE sales_order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []SOLine{}
	for rows.Next() {
		var l SOLine
		if err := rows.Scan(&l.ID, &l.SalesOrderID, &l.SKUID, &l.Qty, &l.AllocatedQty, &l.DeliveredQty); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func scanOrder(row pgx.Row) (SalesOrder, error) {
	var order SalesOrder
	var status string
	if err := row.Scan(&order.ID, &order.CompanyID, &order.Number, &order.CustomerName, &status, &order.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SalesOrder{}, fmt.Errorf("sales: order: %w", shared.ErrNotFound)
		}
		return SalesOrder{}, err
	}
	order.Status = SOStatus(status)
	return order, nil
}
