package inventory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/forgeline/forgeline/internal/shared"
)

const qtyEpsilon = 1e-9

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBalance(ctx context.Context, companyID, skuID, zoneID int64) (Balance, error)
	ListMovements(ctx context.Context, filter LedgerFilter) ([]Movement, error)
}

// ActivityPort abstracts the external activity-log writer.
type ActivityPort interface {
	Record(ctx context.Context, evt shared.ActivityEvent) error
}

// MetricsPort counts recorded movements per type.
type MetricsPort interface {
	MovementRecorded(movementType string)
}

// Service is the only writer of ledger and balance rows.
type Service struct {
	repo        RepositoryPort
	activity    ActivityPort
	idempotency *shared.IdempotencyStore
	metrics     MetricsPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, activity ActivityPort, idem *shared.IdempotencyStore, metrics MetricsPort) *Service {
	return &Service{repo: repo, activity: activity, idempotency: idem, metrics: metrics}
}

// RecordMovement appends one ledger entry and updates the balance for
// (sku, zone) in the same transaction.
func (s *Service) RecordMovement(ctx context.Context, input MovementInput) (Movement, error) {
	if err := validateMovement(input); err != nil {
		return Movement{}, err
	}
	key, inserted, err := s.claimIdempotency(ctx, input)
	if err != nil {
		return Movement{}, err
	}
	var movement Movement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		movement, err = s.applyMovement(ctx, tx, input)
		return err
	})
	if err != nil {
		if inserted {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Movement{}, err
	}
	s.afterMovement(ctx, movement)
	return movement, nil
}

// Transfer moves stock between zones as two coupled movements inside a single
// transaction; either both legs commit or neither does.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (Movement, Movement, error) {
	if input.CompanyID == 0 || input.SKUID == 0 || input.FromZone == 0 || input.ToZone == 0 {
		return Movement{}, Movement{}, fmt.Errorf("inventory: company, sku and zones required: %w", shared.ErrValidation)
	}
	if input.FromZone == input.ToZone {
		return Movement{}, Movement{}, fmt.Errorf("inventory: transfer within zone %d: %w", input.FromZone, shared.ErrSameZone)
	}
	if input.Qty <= 0 {
		return Movement{}, Movement{}, fmt.Errorf("inventory: quantity must be positive: %w", shared.ErrValidation)
	}
	var out, in Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = s.applyMovement(ctx, tx, MovementInput{
			CompanyID: input.CompanyID,
			SKUID:     input.SKUID,
			ZoneID:    input.FromZone,
			Qty:       input.Qty,
			Direction: DirectionOut,
			Type:      MovementTypeTransfer,
			RefModule: input.RefModule,
			RefID:     input.RefID,
			Note:      fmt.Sprintf("Transfer to zone %d: %s", input.ToZone, input.Note),
			ActorID:   input.ActorID,
		})
		if err != nil {
			return err
		}
		// The IN leg carries the cost the OUT leg was issued at so a
		// round-trip transfer restores both balances exactly.
		in, err = s.applyMovement(ctx, tx, MovementInput{
			CompanyID: input.CompanyID,
			SKUID:     input.SKUID,
			ZoneID:    input.ToZone,
			Qty:       input.Qty,
			Direction: DirectionIn,
			Type:      MovementTypeTransfer,
			UnitCost:  out.UnitCost,
			RefModule: input.RefModule,
			RefID:     input.RefID,
			Note:      fmt.Sprintf("Transfer from zone %d: %s", input.FromZone, input.Note),
			ActorID:   input.ActorID,
		})
		return err
	})
	if err != nil {
		return Movement{}, Movement{}, err
	}
	s.afterMovement(ctx, out)
	s.afterMovement(ctx, in)
	return out, in, nil
}

// GetBalance returns the current balance for (sku, zone).
func (s *Service) GetBalance(ctx context.Context, companyID, skuID, zoneID int64) (Balance, error) {
	if companyID == 0 || skuID == 0 || zoneID == 0 {
		return Balance{}, fmt.Errorf("inventory: company, sku and zone required: %w", shared.ErrValidation)
	}
	balance, err := s.repo.GetBalance(ctx, companyID, skuID, zoneID)
	if errors.Is(err, ErrBalanceNotFound) {
		return Balance{CompanyID: companyID, SKUID: skuID, ZoneID: zoneID}, nil
	}
	return balance, err
}

// ListMovements lists ledger entries.
func (s *Service) ListMovements(ctx context.Context, filter LedgerFilter) ([]Movement, error) {
	if filter.CompanyID == 0 || filter.SKUID == 0 {
		return nil, fmt.Errorf("inventory: company and sku required: %w", shared.ErrValidation)
	}
	return s.repo.ListMovements(ctx, filter)
}

// applyMovement performs the ledger append and balance upsert on an open
// transaction. Callers compose it to keep multi-leg operations atomic.
func (s *Service) applyMovement(ctx context.Context, tx TxRepository, input MovementInput) (Movement, error) {
	if err := validateMovement(input); err != nil {
		return Movement{}, err
	}
	balance, err := tx.GetBalanceForUpdate(ctx, input.CompanyID, input.SKUID, input.ZoneID)
	if err != nil && !errors.Is(err, ErrBalanceNotFound) {
		return Movement{}, err
	}
	if errors.Is(err, ErrBalanceNotFound) {
		balance = Balance{CompanyID: input.CompanyID, SKUID: input.SKUID, ZoneID: input.ZoneID}
	}

	var newQty, newAvg, unitCost float64
	if input.Direction == DirectionIn {
		unitCost = input.UnitCost
		newQty = balance.OnHand + input.Qty
		totalCost := balance.OnHand*balance.AvgCost + input.Qty*unitCost
		if newQty > qtyEpsilon {
			newAvg = totalCost / newQty
		}
	} else {
		unitCost = balance.AvgCost
		newQty = balance.OnHand - input.Qty
		if math.Abs(newQty) < qtyEpsilon {
			newQty = 0
		}
		// No negative on-hand is ever permitted, adjustments included.
		if newQty < 0 {
			return Movement{}, fmt.Errorf("inventory: sku %d zone %d has %.4f on hand, need %.4f: %w",
				input.SKUID, input.ZoneID, balance.OnHand, input.Qty, shared.ErrInsufficientStock)
		}
		if newQty == 0 {
			newAvg = 0
		} else {
			newAvg = balance.AvgCost
		}
	}

	movement := Movement{
		CompanyID:  input.CompanyID,
		SKUID:      input.SKUID,
		ZoneID:     input.ZoneID,
		Qty:        input.Qty,
		Direction:  input.Direction,
		Type:       input.Type,
		UnitCost:   unitCost,
		BalanceQty: newQty,
		RefModule:  input.RefModule,
		RefID:      input.RefID,
		Note:       input.Note,
		ActorID:    input.ActorID,
		PostedAt:   time.Now().UTC(),
	}
	id, err := tx.InsertMovement(ctx, movement)
	if err != nil {
		return Movement{}, err
	}
	movement.ID = id

	balance.OnHand = newQty
	balance.AvgCost = newAvg
	if err := tx.UpsertBalance(ctx, balance); err != nil {
		return Movement{}, err
	}
	return movement, nil
}

func (s *Service) claimIdempotency(ctx context.Context, input MovementInput) (string, bool, error) {
	if s.idempotency == nil || input.RefID == "" {
		return "", false, nil
	}
	key := fmt.Sprintf("%s:%s:%s:%d:%d", input.Type, input.RefModule, input.RefID, input.SKUID, input.ZoneID)
	if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
		return "", false, err
	}
	return key, true, nil
}

func (s *Service) afterMovement(ctx context.Context, movement Movement) {
	if s.metrics != nil {
		s.metrics.MovementRecorded(string(movement.Type))
	}
	if s.activity != nil {
		_ = s.activity.Record(ctx, shared.ActivityEvent{
			CompanyID: movement.CompanyID,
			ActorID:   movement.ActorID,
			Action:    fmt.Sprintf("inventory:%s:%s", movement.Type, movement.Direction),
			Entity:    "stock_movement",
			EntityID:  fmt.Sprintf("%d", movement.ID),
			Meta: map[string]any{
				"sku_id":  movement.SKUID,
				"zone_id": movement.ZoneID,
				"qty":     movement.SignedQty(),
				"note":    movement.Note,
			},
		})
	}
}

func validateMovement(input MovementInput) error {
	if input.CompanyID == 0 || input.SKUID == 0 || input.ZoneID == 0 {
		return fmt.Errorf("inventory: company, sku and zone required: %w", shared.ErrValidation)
	}
	if input.Qty <= 0 {
		return fmt.Errorf("inventory: quantity must be positive: %w", shared.ErrValidation)
	}
	if input.Direction != DirectionIn && input.Direction != DirectionOut {
		return fmt.Errorf("inventory: unknown direction %q: %w", input.Direction, shared.ErrValidation)
	}
	if input.UnitCost < 0 {
		return fmt.Errorf("inventory: unit cost must be >= 0: %w", shared.ErrValidation)
	}
	if input.RefID != "" {
		if _, err := uuid.Parse(input.RefID); err != nil {
			return fmt.Errorf("inventory: invalid ref id: %w", shared.ErrValidation)
		}
	}
	return nil
}
