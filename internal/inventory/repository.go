package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forgeline/forgeline/internal/platform/db"
)

// Repository persists ledger and balance data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetBalanceForUpdate(ctx context.Context, companyID, skuID, zoneID int64) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	InsertMovement(ctx context.Context, movement Movement) (int64, error)
}

type txRepository struct {
	tx pgx.Tx
}

// ErrBalanceNotFound indicates missing balance row.
var ErrBalanceNotFound = errors.New("inventory balance not found")

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetBalance reads the balance row outside a transaction.
func (r *Repository) GetBalance(ctx context.Context, companyID, skuID, zoneID int64) (Balance, error) {
	row := r.pool.QueryRow(ctx, `SELECT company_id, sku_id, zone_id, on_hand, avg_cost, updated_at
FROM stock_balances WHERE company_id=$1 AND sku_id=$2 AND zone_id=$3`, companyID, skuID, zoneID)
	return scanBalance(row)
}

// ListMovements lists ledger entries ordered by posting time.
func (r *Repository) ListMovements(ctx context.Context, filter LedgerFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, sku_id, zone_id, qty, direction, movement_type, unit_cost, balance_qty, ref_module, COALESCE(ref_id::text, ''), note, actor_id, posted_at
FROM stock_movements
WHERE company_id=$1 AND sku_id=$2 AND ($3::bigint = 0 OR zone_id=$3)
  AND posted_at BETWEEN COALESCE(NULLIF($4, '0001-01-01'::timestamptz), '-infinity') AND COALESCE(NULLIF($5, '0001-01-01'::timestamptz), 'infinity')
ORDER BY posted_at ASC, id ASC
LIMIT $6`, filter.CompanyID, filter.SKUID, filter.ZoneID, filter.From, filter.To, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.CompanyID, &m.SKUID, &m.ZoneID, &m.Qty, &m.Direction, &m.Type, &m.UnitCost, &m.BalanceQty, &m.RefModule, &m.RefID, &m.Note, &m.ActorID, &m.PostedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *txRepository) GetBalanceForUpdate(ctx context.Context, companyID, skuID, zoneID int64) (Balance, error) {
	row := r.tx.QueryRow(ctx, `SELECT company_id, sku_id, zone_id, on_hand, avg_cost, updated_at
FROM stock_balances WHERE company_id=$1 AND sku_id=$2 AND zone_id=$3 FOR UPDATE`, companyID, skuID, zoneID)
	return scanBalance(row)
}

func (r *txRepository) UpsertBalance(ctx context.Context, balance Balance) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_balances (company_id, sku_id, zone_id, on_hand, avg_cost, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (company_id, sku_id, zone_id)
DO UPDATE SET on_hand=EXCLUDED.on_hand, avg_cost=EXCLUDED.avg_cost, updated_at=NOW()`,
		balance.CompanyID, balance.SKUID, balance.ZoneID, balance.OnHand, balance.AvgCost)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (company_id, sku_id, zone_id, qty, direction, movement_type, unit_cost, balance_qty, ref_module, ref_id, note, actor_id, posted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, '')::uuid, $11, $12, $13)
RETURNING id`,
		m.CompanyID, m.SKUID, m.ZoneID, m.Qty, string(m.Direction), string(m.Type), m.UnitCost, m.BalanceQty, m.RefModule, m.RefID, m.Note, m.ActorID, m.PostedAt).Scan(&id)
	return id, err
}

func scanBalance(row pgx.Row) (Balance, error) {
	var b Balance
	if err := row.Scan(&b.CompanyID, &b.SKUID, &b.ZoneID, &b.OnHand, &b.AvgCost, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return b, nil
}
