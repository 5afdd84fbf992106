package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-ledger-service/internal/apperr"
	"github.com/fekuna/omnipos-ledger-service/internal/audit"
	"github.com/fekuna/omnipos-ledger-service/internal/catalog"
	"github.com/fekuna/omnipos-ledger-service/internal/inventory"
	"github.com/fekuna/omnipos-ledger-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-ledger-service/internal/model"
	"github.com/fekuna/omnipos-ledger-service/pkg/cache"
	"github.com/fekuna/omnipos-ledger-service/pkg/logger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/fekuna/omnipos-ledger-service/internal/inventory")

type Options struct {
	DefaultMinStock int
	LockTTL         time.Duration
}

type inventoryUseCase struct {
	repo     inventory.Repository
	products catalog.ProductReader
	locker   cache.Locker
	audit    audit.Recorder
	validate *validator.Validate
	opts     Options
	logger   logger.ZapLogger
}

func NewInventoryUseCase(
	repo inventory.Repository,
	products catalog.ProductReader,
	locker cache.Locker,
	recorder audit.Recorder,
	opts Options,
	log logger.ZapLogger,
) inventory.UseCase {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 5 * time.Second
	}
	return &inventoryUseCase{
		repo:     repo,
		products: products,
		locker:   locker,
		audit:    recorder,
		validate: validator.New(),
		opts:     opts,
		logger:   log,
	}
}

func (uc *inventoryUseCase) GetOrCreate(ctx context.Context, ownerID, productID string) (*model.Inventory, error) {
	if err := uc.requireProduct(ctx, ownerID, productID); err != nil {
		return nil, err
	}

	inv, err := uc.repo.GetByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if inv != nil {
		return inv, nil
	}

	err = uc.repo.WithTx(ctx, func(tx inventory.TxRepository) error {
		now := time.Now()
		fresh := &model.Inventory{
			BaseModel:      model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
			OwnerID:        ownerID,
			ProductID:      productID,
			MinStock:       uc.opts.DefaultMinStock,
			LastStockCheck: now,
		}
		fresh.Recompute()
		// A concurrent caller may have created the record first; Create is a
		// no-op then and the lock below reads the winner's row.
		if err := tx.Create(ctx, fresh); err != nil {
			return err
		}
		inv, err = tx.LockByProduct(ctx, productID)
		if err != nil {
			return err
		}
		if inv == nil {
			return fmt.Errorf("inventory for product %s vanished after create", productID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("created inventory for product",
		zap.String("owner_id", ownerID),
		zap.String("product_id", productID),
		zap.Int("min_stock", inv.MinStock),
	)
	return inv, nil
}

func (uc *inventoryUseCase) Adjust(ctx context.Context, input *dto.AdjustInventoryInput) (*model.Inventory, error) {
	ctx, span := tracer.Start(ctx, "inventory.adjust")
	defer span.End()
	span.SetAttributes(
		attribute.String("inventory.product_id", input.ProductID),
		attribute.String("inventory.movement_type", string(input.Type)),
		attribute.Int("inventory.quantity", input.Quantity),
	)

	if err := uc.validate.Struct(input); err != nil {
		return nil, apperr.FromValidation(err)
	}
	if err := uc.requireProduct(ctx, input.OwnerID, input.ProductID); err != nil {
		return nil, err
	}

	var (
		inv      *model.Inventory
		movement *model.InventoryMovement
	)
	err := uc.withProductLock(ctx, input.OwnerID, input.ProductID, func() error {
		return uc.repo.WithTx(ctx, func(tx inventory.TxRepository) error {
			var err error
			inv, movement, err = uc.AdjustTx(ctx, tx, input)
			return err
		})
	})
	if err != nil {
		markFailed(span, err)
		return nil, err
	}

	uc.logger.Info("stock adjusted",
		zap.String("product_id", inv.ProductID),
		zap.String("type", string(movement.MovementType)),
		zap.Int("quantity", movement.Quantity),
		zap.Int("before", movement.QuantityBefore),
		zap.Int("after", movement.QuantityAfter),
	)
	uc.audit.Record(input.ActorID, audit.ActionStockAdjusted, "Inventory", inv.ID,
		fmt.Sprintf("%s %d (%d -> %d): %s", movement.MovementType, movement.Quantity, movement.QuantityBefore, movement.QuantityAfter, movement.Reason))

	return inv, nil
}

func (uc *inventoryUseCase) LockTx(ctx context.Context, tx inventory.TxRepository, productID string) (*model.Inventory, error) {
	inv, err := tx.LockByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, apperr.NotFound("inventory for product", productID)
	}
	return inv, nil
}

// AdjustTx applies one stock movement inside the caller's transaction. OUT
// movements clamp stock at zero instead of failing; the movement row still
// records the requested quantity alongside the effective before/after values.
func (uc *inventoryUseCase) AdjustTx(ctx context.Context, tx inventory.TxRepository, input *dto.AdjustInventoryInput) (*model.Inventory, *model.InventoryMovement, error) {
	if err := uc.validate.Struct(input); err != nil {
		return nil, nil, apperr.FromValidation(err)
	}

	inv, err := uc.LockTx(ctx, tx, input.ProductID)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	before := inv.CurrentStock
	switch input.Type {
	case model.MovementIn:
		inv.CurrentStock += input.Quantity
	case model.MovementOut:
		inv.CurrentStock = max(0, inv.CurrentStock-input.Quantity)
	}
	inv.Recompute()
	inv.LastStockCheck = now
	inv.UpdatedAt = now

	if err := tx.Update(ctx, inv); err != nil {
		return nil, nil, err
	}

	movement := &model.InventoryMovement{
		ID:             uuid.New().String(),
		InventoryID:    inv.ID,
		OwnerID:        inv.OwnerID,
		ProductID:      inv.ProductID,
		MovementType:   input.Type,
		Quantity:       input.Quantity,
		QuantityBefore: before,
		QuantityAfter:  inv.CurrentStock,
		Reason:         input.Reason,
		Notes:          input.Notes,
		ReferenceType:  optional(input.ReferenceType),
		ReferenceID:    optional(input.ReferenceID),
		CreatedBy:      input.ActorID,
		CreatedAt:      now,
	}
	if err := tx.LogMovement(ctx, movement); err != nil {
		return nil, nil, err
	}

	if input.Type == model.MovementOut && before < input.Quantity {
		uc.logger.Warn("OUT adjustment clamped at zero",
			zap.String("product_id", inv.ProductID),
			zap.Int("requested", input.Quantity),
			zap.Int("before", before),
		)
	}
	return inv, movement, nil
}

func (uc *inventoryUseCase) Reserve(ctx context.Context, input *dto.ReserveStockInput) (*model.Inventory, error) {
	if err := uc.validate.Struct(input); err != nil {
		return nil, apperr.FromValidation(err)
	}
	if err := uc.requireProduct(ctx, input.OwnerID, input.ProductID); err != nil {
		return nil, err
	}

	inv, err := uc.mutate(ctx, input.OwnerID, input.ProductID, func(inv *model.Inventory) error {
		if !inv.HasAvailable(input.Quantity) {
			return &apperr.InsufficientStockError{
				ProductID: inv.ProductID,
				Available: inv.AvailableStock,
				Requested: input.Quantity,
			}
		}
		inv.ReservedStock += input.Quantity
		return nil
	})
	if err != nil {
		if errors.Is(err, apperr.ErrInsufficientStock) {
			uc.logger.Warn("reservation rejected", zap.String("product_id", input.ProductID), zap.Error(err))
		}
		return nil, err
	}

	uc.logger.Info("stock reserved",
		zap.String("product_id", inv.ProductID),
		zap.Int("quantity", input.Quantity),
		zap.Int("reserved", inv.ReservedStock),
	)
	uc.audit.Record(actorOr(input.ActorID, input.OwnerID), audit.ActionStockReserved, "Inventory", inv.ID,
		fmt.Sprintf("reserved %d, total reserved %d", input.Quantity, inv.ReservedStock))
	return inv, nil
}

func (uc *inventoryUseCase) Release(ctx context.Context, input *dto.ReserveStockInput) (*model.Inventory, error) {
	if err := uc.validate.Struct(input); err != nil {
		return nil, apperr.FromValidation(err)
	}
	if err := uc.requireProduct(ctx, input.OwnerID, input.ProductID); err != nil {
		return nil, err
	}

	inv, err := uc.mutate(ctx, input.OwnerID, input.ProductID, func(inv *model.Inventory) error {
		inv.ReservedStock = max(0, inv.ReservedStock-input.Quantity)
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("stock released",
		zap.String("product_id", inv.ProductID),
		zap.Int("quantity", input.Quantity),
		zap.Int("reserved", inv.ReservedStock),
	)
	uc.audit.Record(actorOr(input.ActorID, input.OwnerID), audit.ActionStockReleased, "Inventory", inv.ID,
		fmt.Sprintf("released %d, total reserved %d", input.Quantity, inv.ReservedStock))
	return inv, nil
}

func (uc *inventoryUseCase) SetMinStock(ctx context.Context, input *dto.SetMinStockInput) (*model.Inventory, error) {
	if err := uc.validate.Struct(input); err != nil {
		return nil, apperr.FromValidation(err)
	}
	if err := uc.requireProduct(ctx, input.OwnerID, input.ProductID); err != nil {
		return nil, err
	}

	inv, err := uc.mutate(ctx, input.OwnerID, input.ProductID, func(inv *model.Inventory) error {
		inv.MinStock = input.MinStock
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("min stock updated", zap.String("product_id", inv.ProductID), zap.Int("min_stock", inv.MinStock))
	uc.audit.Record(actorOr(input.ActorID, input.OwnerID), audit.ActionMinStockUpdated, "Inventory", inv.ID,
		fmt.Sprintf("min stock %d, status %s", inv.MinStock, inv.StockStatus))
	return inv, nil
}

func (uc *inventoryUseCase) QueryAvailable(ctx context.Context, ownerID, productID string) (int, error) {
	if err := uc.requireProduct(ctx, ownerID, productID); err != nil {
		return 0, err
	}
	inv, err := uc.repo.GetByProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	if inv == nil {
		return 0, nil
	}
	return inv.AvailableStock, nil
}

func (uc *inventoryUseCase) HasAvailable(ctx context.Context, ownerID, productID string, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, apperr.Invalid("quantity must be positive, got %d", quantity)
	}
	available, err := uc.QueryAvailable(ctx, ownerID, productID)
	if err != nil {
		return false, err
	}
	return available >= quantity, nil
}

func (uc *inventoryUseCase) ListByOwner(ctx context.Context, ownerID string, page, pageSize int) ([]model.Inventory, int, error) {
	return uc.repo.FindAll(ctx, &dto.InventoryFilters{
		OwnerID:  ownerID,
		Page:     page,
		PageSize: pageSize,
	})
}

func (uc *inventoryUseCase) ListLowStock(ctx context.Context, ownerID string, page, pageSize int) ([]model.Inventory, int, error) {
	return uc.repo.FindAll(ctx, &dto.InventoryFilters{
		OwnerID:  ownerID,
		Statuses: []model.StockStatus{model.StockStatusLowStock, model.StockStatusOutOfStock},
		Page:     page,
		PageSize: pageSize,
	})
}

func (uc *inventoryUseCase) CountByStatus(ctx context.Context, ownerID string, status model.StockStatus) (int, error) {
	switch status {
	case model.StockStatusInStock, model.StockStatusLowStock, model.StockStatusOutOfStock:
	default:
		return 0, apperr.Invalid("unknown stock status %q", status)
	}
	return uc.repo.CountByStatus(ctx, ownerID, status)
}

func (uc *inventoryUseCase) MovementHistory(ctx context.Context, ownerID, productID string, page, pageSize int) ([]model.InventoryMovement, int, error) {
	if err := uc.requireProduct(ctx, ownerID, productID); err != nil {
		return nil, 0, err
	}
	return uc.repo.ListMovements(ctx, &dto.MovementFilters{
		OwnerID:   ownerID,
		ProductID: productID,
		Page:      page,
		PageSize:  pageSize,
	})
}

// mutate runs a read-modify-write on one stock record under the product lock
// and a row lock, recomputing derived fields before the update.
func (uc *inventoryUseCase) mutate(ctx context.Context, ownerID, productID string, fn func(inv *model.Inventory) error) (*model.Inventory, error) {
	var inv *model.Inventory
	err := uc.withProductLock(ctx, ownerID, productID, func() error {
		return uc.repo.WithTx(ctx, func(tx inventory.TxRepository) error {
			var err error
			inv, err = uc.LockTx(ctx, tx, productID)
			if err != nil {
				return err
			}
			if err := fn(inv); err != nil {
				return err
			}
			now := time.Now()
			inv.Recompute()
			inv.LastStockCheck = now
			inv.UpdatedAt = now
			return tx.Update(ctx, inv)
		})
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (uc *inventoryUseCase) withProductLock(ctx context.Context, ownerID, productID string, fn func() error) error {
	lock, err := uc.locker.Obtain(ctx, inventory.LockKey(ownerID, productID), uc.opts.LockTTL)
	if err != nil {
		if errors.Is(err, cache.ErrLockNotObtained) {
			uc.logger.Warn("inventory lock busy", zap.String("product_id", productID))
			return fmt.Errorf("product %s: %w", productID, apperr.ErrBusy)
		}
		uc.logger.Error("failed to acquire inventory lock", zap.String("product_id", productID), zap.Error(err))
		return err
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			uc.logger.Warn("failed to release inventory lock", zap.String("product_id", productID), zap.Error(err))
		}
	}()
	return fn()
}

func (uc *inventoryUseCase) requireProduct(ctx context.Context, ownerID, productID string) error {
	p, err := uc.products.FindByID(ctx, productID, ownerID)
	if err != nil {
		return err
	}
	if p == nil {
		return apperr.NotFound("product", productID)
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func actorOr(actorID, ownerID string) string {
	if actorID != "" {
		return actorID
	}
	return ownerID
}

func markFailed(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
