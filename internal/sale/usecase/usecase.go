package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fekuna/omnipos-ledger-service/internal/apperr"
	"github.com/fekuna/omnipos-ledger-service/internal/audit"
	"github.com/fekuna/omnipos-ledger-service/internal/catalog"
	"github.com/fekuna/omnipos-ledger-service/internal/inventory"
	invdto "github.com/fekuna/omnipos-ledger-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-ledger-service/internal/model"
	"github.com/fekuna/omnipos-ledger-service/internal/sale"
	"github.com/fekuna/omnipos-ledger-service/internal/sale/dto"
	"github.com/fekuna/omnipos-ledger-service/pkg/cache"
	"github.com/fekuna/omnipos-ledger-service/pkg/database"
	"github.com/fekuna/omnipos-ledger-service/pkg/logger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/fekuna/omnipos-ledger-service/internal/sale")

var requestNamespace = uuid.MustParse("6f1c2a7e-3d4b-5e8f-9a0b-1c2d3e4f5a6b")

// SaleIDForRequest derives the sale id recorded for an idempotent request.
func SaleIDForRequest(ownerID, requestID string) string {
	return uuid.NewSHA1(requestNamespace, []byte(ownerID+"/"+requestID)).String()
}

type Options struct {
	LockTTL time.Duration
}

type Deps struct {
	Repo      sale.Repository
	Inventory inventory.UseCase
	Products  catalog.ProductReader
	Freight   catalog.FreightReader
	Customers catalog.CustomerRepository
	Locker    cache.Locker
	Audit     audit.Recorder
}

type saleUseCase struct {
	repo      sale.Repository
	inventory inventory.UseCase
	products  catalog.ProductReader
	freight   catalog.FreightReader
	customers catalog.CustomerRepository
	locker    cache.Locker
	audit     audit.Recorder
	validate  *validator.Validate
	opts      Options
	logger    logger.ZapLogger
}

func NewSaleUseCase(deps Deps, opts Options, log logger.ZapLogger) sale.UseCase {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 5 * time.Second
	}
	return &saleUseCase{
		repo:      deps.Repo,
		inventory: deps.Inventory,
		products:  deps.Products,
		freight:   deps.Freight,
		customers: deps.Customers,
		locker:    deps.Locker,
		audit:     deps.Audit,
		validate:  validator.New(),
		opts:      opts,
		logger:    log,
	}
}

// RecordSale commits a multi-line sale against stock as one unit of work.
// The products of all lines are locked in product id order, availability is
// checked against the locked rows, and the sale, its items and one OUT
// movement per line are written in a single transaction. Either everything is
// committed or nothing is.
func (uc *saleUseCase) RecordSale(ctx context.Context, input *dto.RecordSaleInput) (*model.Sale, error) {
	ctx, span := tracer.Start(ctx, "sale.record")
	defer span.End()

	sl, err := uc.recordSale(ctx, input)
	if err != nil {
		markFailed(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("sale.id", sl.ID),
		attribute.Int("sale.lines", len(sl.Items)),
		attribute.String("sale.total_amount", sl.TotalAmount.String()),
	)
	return sl, nil
}

func (uc *saleUseCase) recordSale(ctx context.Context, input *dto.RecordSaleInput) (*model.Sale, error) {
	if err := uc.validate.Struct(input); err != nil {
		return nil, apperr.FromValidation(err)
	}
	for i, line := range input.Items {
		if line.UnitPrice.IsNegative() {
			return nil, apperr.Invalid("items[%d].unit_price must not be negative", i)
		}
	}

	customer, err := uc.customers.FindOrCreate(ctx, input.OwnerID, input.CustomerPhone)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve customer: %w", err)
	}

	demand := map[string]int{}
	for _, line := range input.Items {
		demand[line.ProductID] += line.Quantity
	}
	productIDs := make([]string, 0, len(demand))
	for id := range demand {
		productIDs = append(productIDs, id)
	}
	sort.Strings(productIDs)

	unitCosts, err := uc.snapshotCosts(ctx, input.OwnerID, productIDs)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	saleDate := input.SaleDate
	if saleDate.IsZero() {
		saleDate = now
	}
	saleID := uuid.New().String()
	if input.RequestID != "" {
		saleID = SaleIDForRequest(input.OwnerID, input.RequestID)
	}
	sl := &model.Sale{
		ID:             saleID,
		OwnerID:        input.OwnerID,
		CustomerID:     customer.ID,
		TotalAmount:    decimal.Zero,
		TotalNetProfit: decimal.Zero,
		SaleDate:       saleDate,
		CreatedAt:      now,
	}
	for _, line := range input.Items {
		item := model.NewSaleItem(uuid.New().String(), sl.ID, line.ProductID, line.Quantity, line.UnitPrice, unitCosts[line.ProductID])
		sl.TotalAmount = sl.TotalAmount.Add(item.LineTotal())
		sl.TotalNetProfit = sl.TotalNetProfit.Add(item.NetProfit)
		sl.Items = append(sl.Items, item)
	}

	keys := make([]string, len(productIDs))
	for i, id := range productIDs {
		keys[i] = inventory.LockKey(input.OwnerID, id)
	}
	release, err := cache.ObtainAll(ctx, uc.locker, keys, uc.opts.LockTTL)
	if err != nil {
		if errors.Is(err, cache.ErrLockNotObtained) {
			uc.logger.Warn("sale products are locked by another operation", zap.Strings("product_ids", productIDs))
			return nil, fmt.Errorf("sale: %w", apperr.ErrBusy)
		}
		return nil, err
	}
	defer release(context.WithoutCancel(ctx))

	// Repeats of one request lock the same products, so this check is
	// serialized with the first attempt.
	if input.RequestID != "" {
		existing, err := uc.repo.FindByID(ctx, sl.OwnerID, sl.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up sale for request: %w", err)
		}
		if existing != nil {
			uc.logger.Info("sale already recorded for request",
				zap.String("sale_id", existing.ID),
				zap.String("request_id", input.RequestID),
			)
			return existing, nil
		}
	}

	saleWritten := false
	err = uc.repo.WithTx(ctx, func(tx sale.Tx) error {
		for _, id := range productIDs {
			inv, err := uc.inventory.LockTx(ctx, tx.Inventory(), id)
			if err != nil {
				return err
			}
			if !inv.HasAvailable(demand[id]) {
				return &apperr.InsufficientStockError{
					ProductID: id,
					Available: inv.AvailableStock,
					Requested: demand[id],
				}
			}
		}

		if err := tx.CreateSale(ctx, sl); err != nil {
			return err
		}
		saleWritten = true

		for _, item := range sl.Items {
			_, _, err := uc.inventory.AdjustTx(ctx, tx.Inventory(), &invdto.AdjustInventoryInput{
				OwnerID:       sl.OwnerID,
				ProductID:     item.ProductID,
				Type:          model.MovementOut,
				Quantity:      item.Quantity,
				Reason:        "sale:" + sl.ID,
				ReferenceType: "sale",
				ReferenceID:   sl.ID,
				ActorID:       sl.OwnerID,
			})
			if err != nil {
				return fmt.Errorf("stock commit for product %s: %w", item.ProductID, err)
			}
		}
		return nil
	})
	if err != nil {
		if saleWritten && (errors.Is(err, database.ErrCommit) || errors.Is(err, database.ErrRollback)) {
			uc.logger.Error("sale outcome unknown, needs reconciliation",
				zap.String("sale_id", sl.ID),
				zap.String("owner_id", sl.OwnerID),
				zap.Error(err),
			)
			return nil, &apperr.PartialCommitError{SaleID: sl.ID, Err: err}
		}
		if errors.Is(err, apperr.ErrInsufficientStock) {
			uc.logger.Warn("sale rejected", zap.String("owner_id", sl.OwnerID), zap.Error(err))
		} else {
			uc.logger.Error("failed to record sale", zap.String("owner_id", sl.OwnerID), zap.Error(err))
		}
		return nil, err
	}

	uc.logger.Info("sale recorded",
		zap.String("sale_id", sl.ID),
		zap.String("owner_id", sl.OwnerID),
		zap.Int("lines", len(sl.Items)),
		zap.String("total_amount", sl.TotalAmount.String()),
		zap.String("total_net_profit", sl.TotalNetProfit.String()),
	)
	uc.audit.Record(sl.OwnerID, audit.ActionSaleRecorded, "Sale", sl.ID,
		fmt.Sprintf("%d lines, total %s, net profit %s", len(sl.Items), sl.TotalAmount, sl.TotalNetProfit))

	return sl, nil
}

// snapshotCosts captures the current direct unit cost of every product.
func (uc *saleUseCase) snapshotCosts(ctx context.Context, ownerID string, productIDs []string) (map[string]decimal.Decimal, error) {
	costs := make(map[string]decimal.Decimal, len(productIDs))
	for _, id := range productIDs {
		p, err := uc.products.FindByID(ctx, id, ownerID)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, apperr.NotFound("product", id)
		}
		batch, err := uc.freight.LatestFreightBatch(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load freight for product %s: %w", id, err)
		}
		costs[id] = model.UnitCost(p, batch)
	}
	return costs, nil
}

func (uc *saleUseCase) GetSale(ctx context.Context, ownerID, saleID string) (*model.Sale, error) {
	sl, err := uc.repo.FindByID(ctx, ownerID, saleID)
	if err != nil {
		return nil, err
	}
	if sl == nil {
		return nil, apperr.NotFound("sale", saleID)
	}
	return sl, nil
}

func (uc *saleUseCase) ListSales(ctx context.Context, ownerID string, page, pageSize int) ([]model.Sale, int, error) {
	return uc.repo.FindAll(ctx, &dto.SaleFilters{
		OwnerID:  ownerID,
		Page:     page,
		PageSize: pageSize,
	})
}

func markFailed(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
