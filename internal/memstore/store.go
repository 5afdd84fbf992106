// Package memstore is an in-memory stand-in for the Postgres repositories.
// Units of work are serialized, see a private copy of the committed state and
// publish it on commit. Failures can be injected at the movement, sale,
// commit and rollback steps.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fekuna/omnipos-ledger-service/internal/catalog"
	"github.com/fekuna/omnipos-ledger-service/internal/inventory"
	invdto "github.com/fekuna/omnipos-ledger-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-ledger-service/internal/model"
	"github.com/fekuna/omnipos-ledger-service/internal/sale"
	saledto "github.com/fekuna/omnipos-ledger-service/internal/sale/dto"
	"github.com/fekuna/omnipos-ledger-service/pkg/database"
	"github.com/google/uuid"
)

var (
	_ inventory.Repository       = (*InventoryRepository)(nil)
	_ sale.Repository            = (*SaleRepository)(nil)
	_ catalog.ProductReader      = (*Store)(nil)
	_ catalog.FreightReader      = (*Store)(nil)
	_ catalog.CustomerRepository = (*Store)(nil)
	_ inventory.TxRepository     = (*tx)(nil)
	_ sale.Tx                    = (*tx)(nil)
)

type state struct {
	inventory map[string]model.Inventory // by product id
	movements []model.InventoryMovement
	sales     []model.Sale
}

func (s state) clone() state {
	c := state{
		inventory: make(map[string]model.Inventory, len(s.inventory)),
		movements: append([]model.InventoryMovement(nil), s.movements...),
		sales:     append([]model.Sale(nil), s.sales...),
	}
	for k, v := range s.inventory {
		c.inventory[k] = v
	}
	return c
}

type Store struct {
	txMu sync.Mutex // one unit of work at a time

	mu        sync.RWMutex
	committed state
	products  map[string]model.Product
	freight   map[string][]model.FreightBatch
	customers map[string]model.Customer // by owner + phone

	failMu         sync.Mutex
	failMovement   map[string]error
	failCreateSale error
	failCommit     error
	failRollback   error
	commits        int
	rollbacks      int
}

func New() *Store {
	return &Store{
		committed:    state{inventory: map[string]model.Inventory{}},
		products:     map[string]model.Product{},
		freight:      map[string][]model.FreightBatch{},
		customers:    map[string]model.Customer{},
		failMovement: map[string]error{},
	}
}

func (s *Store) InventoryRepository() *InventoryRepository { return &InventoryRepository{s: s} }

func (s *Store) SaleRepository() *SaleRepository { return &SaleRepository{s: s} }

// Seeding and inspection.

func (s *Store) PutProduct(p model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *Store) AddFreightBatch(b model.FreightBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freight[b.ProductID] = append(s.freight[b.ProductID], b)
}

// PutInventory stores the record as given, after recomputing derived fields.
func (s *Store) PutInventory(inv model.Inventory) model.Inventory {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	inv.Recompute()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed.inventory[inv.ProductID] = inv
	return inv
}

func (s *Store) Stock(productID string) (model.Inventory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.committed.inventory[productID]
	return inv, ok
}

func (s *Store) Movements() []model.InventoryMovement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.InventoryMovement(nil), s.committed.movements...)
}

func (s *Store) Sales() []model.Sale {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Sale(nil), s.committed.sales...)
}

func (s *Store) Customers() []model.Customer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		out = append(out, c)
	}
	return out
}

// Commits and Rollbacks count finished units of work.
func (s *Store) Commits() int {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	return s.commits
}

func (s *Store) Rollbacks() int {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	return s.rollbacks
}

// Failure injection.

// FailMovementFor makes every movement insert for the product fail with err.
// A nil err clears it.
func (s *Store) FailMovementFor(productID string, err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	if err == nil {
		delete(s.failMovement, productID)
		return
	}
	s.failMovement[productID] = err
}

func (s *Store) FailCreateSale(err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.failCreateSale = err
}

// FailNextCommit makes the next commit fail with err and discard the work.
func (s *Store) FailNextCommit(err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.failCommit = err
}

// FailNextRollback makes the next rollback report err.
func (s *Store) FailNextRollback(err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.failRollback = err
}

func (s *Store) run(ctx context.Context, fn func(t *tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	t := &tx{s: s, st: s.committed.clone()}
	s.mu.RUnlock()

	if err := fn(t); err != nil {
		s.failMu.Lock()
		s.rollbacks++
		rerr := s.failRollback
		s.failRollback = nil
		s.failMu.Unlock()
		if rerr != nil {
			return errors.Join(err, fmt.Errorf("%w: %w", database.ErrRollback, rerr))
		}
		return err
	}

	s.failMu.Lock()
	cerr := s.failCommit
	s.failCommit = nil
	if cerr == nil {
		s.commits++
	}
	s.failMu.Unlock()
	if cerr != nil {
		return fmt.Errorf("%w: %w", database.ErrCommit, cerr)
	}

	s.mu.Lock()
	s.committed = t.st
	s.mu.Unlock()
	return nil
}

// Catalog collaborators.

func (s *Store) FindByID(_ context.Context, id, ownerID string) (*model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok || p.OwnerID != ownerID {
		return nil, nil
	}
	return &p, nil
}

func (s *Store) LatestFreightBatch(_ context.Context, productID string) (*model.FreightBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batches := s.freight[productID]
	if len(batches) == 0 {
		return nil, nil
	}
	latest := batches[0]
	for _, b := range batches[1:] {
		if !b.CreatedAt.Before(latest.CreatedAt) {
			latest = b
		}
	}
	return &latest, nil
}

func (s *Store) FindOrCreate(_ context.Context, ownerID, phone string) (*model.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ownerID + "|" + phone
	if c, ok := s.customers[key]; ok {
		return &c, nil
	}
	now := time.Now()
	c := model.Customer{
		BaseModel:   model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		OwnerID:     ownerID,
		PhoneNumber: phone,
		Name:        "Customer - " + phone,
	}
	s.customers[key] = c
	return &c, nil
}

type tx struct {
	s  *Store
	st state
}

func (t *tx) Inventory() inventory.TxRepository { return t }

func (t *tx) LockByProduct(_ context.Context, productID string) (*model.Inventory, error) {
	inv, ok := t.st.inventory[productID]
	if !ok {
		return nil, nil
	}
	return &inv, nil
}

func (t *tx) Create(_ context.Context, inv *model.Inventory) error {
	if _, ok := t.st.inventory[inv.ProductID]; ok {
		return nil
	}
	t.st.inventory[inv.ProductID] = *inv
	return nil
}

func (t *tx) Update(_ context.Context, inv *model.Inventory) error {
	cur, ok := t.st.inventory[inv.ProductID]
	if !ok || cur.ID != inv.ID {
		return fmt.Errorf("failed to update inventory %s: no rows affected", inv.ID)
	}
	t.st.inventory[inv.ProductID] = *inv
	return nil
}

func (t *tx) LogMovement(_ context.Context, m *model.InventoryMovement) error {
	t.s.failMu.Lock()
	err := t.s.failMovement[m.ProductID]
	t.s.failMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to log movement: %w", err)
	}
	t.st.movements = append(t.st.movements, *m)
	return nil
}

func (t *tx) CreateSale(_ context.Context, sl *model.Sale) error {
	t.s.failMu.Lock()
	err := t.s.failCreateSale
	t.s.failMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to create sale: %w", err)
	}
	for _, existing := range t.st.sales {
		if existing.ID == sl.ID {
			return fmt.Errorf("failed to create sale: duplicate id %s", sl.ID)
		}
	}
	c := *sl
	c.Items = append([]model.SaleItem(nil), sl.Items...)
	t.st.sales = append(t.st.sales, c)
	return nil
}

type InventoryRepository struct {
	s *Store
}

func (r *InventoryRepository) WithTx(ctx context.Context, fn func(tx inventory.TxRepository) error) error {
	return r.s.run(ctx, func(t *tx) error { return fn(t) })
}

func (r *InventoryRepository) GetByProduct(_ context.Context, productID string) (*model.Inventory, error) {
	inv, ok := r.s.Stock(productID)
	if !ok {
		return nil, nil
	}
	return &inv, nil
}

func (r *InventoryRepository) FindAll(_ context.Context, f *invdto.InventoryFilters) ([]model.Inventory, int, error) {
	r.s.mu.RLock()
	var items []model.Inventory
	for _, inv := range r.s.committed.inventory {
		if f.OwnerID != "" && inv.OwnerID != f.OwnerID {
			continue
		}
		if len(f.Statuses) > 0 && !hasStatus(f.Statuses, inv.StockStatus) {
			continue
		}
		items = append(items, inv)
	}
	r.s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return items[i].ProductID < items[j].ProductID
	})
	return paginate(items, f.Page, f.PageSize), len(items), nil
}

func (r *InventoryRepository) CountByOwner(_ context.Context, ownerID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, inv := range r.s.committed.inventory {
		if inv.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

func (r *InventoryRepository) CountByStatus(_ context.Context, ownerID string, status model.StockStatus) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, inv := range r.s.committed.inventory {
		if inv.OwnerID == ownerID && inv.StockStatus == status {
			n++
		}
	}
	return n, nil
}

func (r *InventoryRepository) ListMovements(_ context.Context, f *invdto.MovementFilters) ([]model.InventoryMovement, int, error) {
	all := r.s.Movements()
	var items []model.InventoryMovement
	// Newest first; insertion order breaks timestamp ties.
	for i := len(all) - 1; i >= 0; i-- {
		m := all[i]
		if f.OwnerID != "" && m.OwnerID != f.OwnerID {
			continue
		}
		if f.ProductID != "" && m.ProductID != f.ProductID {
			continue
		}
		if f.MovementType != "" && m.MovementType != f.MovementType {
			continue
		}
		items = append(items, m)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return paginate(items, f.Page, f.PageSize), len(items), nil
}

type SaleRepository struct {
	s *Store
}

func (r *SaleRepository) WithTx(ctx context.Context, fn func(tx sale.Tx) error) error {
	return r.s.run(ctx, func(t *tx) error { return fn(t) })
}

func (r *SaleRepository) FindByID(_ context.Context, ownerID, id string) (*model.Sale, error) {
	for _, sl := range r.s.Sales() {
		if sl.ID == id && sl.OwnerID == ownerID {
			return &sl, nil
		}
	}
	return nil, nil
}

func (r *SaleRepository) FindAll(_ context.Context, f *saledto.SaleFilters) ([]model.Sale, int, error) {
	all := r.s.Sales()
	var items []model.Sale
	for i := len(all) - 1; i >= 0; i-- {
		sl := all[i]
		if f.OwnerID != "" && sl.OwnerID != f.OwnerID {
			continue
		}
		if f.CustomerID != "" && sl.CustomerID != f.CustomerID {
			continue
		}
		sl.Items = nil
		items = append(items, sl)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].SaleDate.After(items[j].SaleDate)
	})
	return paginate(items, f.Page, f.PageSize), len(items), nil
}

func hasStatus(statuses []model.StockStatus, s model.StockStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, page, pageSize int) []T {
	if pageSize <= 0 {
		return items
	}
	offset := (max(page, 1) - 1) * pageSize
	if offset >= len(items) {
		return nil
	}
	end := min(offset+pageSize, len(items))
	return items[offset:end]
}
