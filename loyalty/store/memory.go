// Package store provides the in-memory Store implementation.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/revinosolutions/dealer-loyality-sub003/loyalty"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements loyalty.Store with plain maps. A unit of work holds
// the write lock for its whole duration, so per-aggregate mutations
// serialize trivially; rollback restores a snapshot taken at entry.
type Memory struct {
	mu    sync.RWMutex
	state *state
}

func NewMemory() *Memory {
	return &Memory{state: newState()}
}

func (m *Memory) Products() loyalty.ProductRepository { return productsRepo{src: m, mu: &m.mu} }
func (m *Memory) Inventory() loyalty.InventoryRepository { return inventoryRepo{src: m, mu: &m.mu} }
func (m *Memory) Requests() loyalty.RequestRepository { return requestsRepo{src: m, mu: &m.mu} }
func (m *Memory) Points() loyalty.PointsRepository { return pointsRepo{src: m, mu: &m.mu} }
func (m *Memory) Rewards() loyalty.RewardRepository { return rewardsRepo{src: m, mu: &m.mu} }
func (m *Memory) Orders() loyalty.OrderRepository { return ordersRepo{src: m, mu: &m.mu} }

// WithUnitOfWork simulates a transaction with snapshot + rollback. The
// write lock is held across fn, which is what serializes concurrent
// engine operations.
func (m *Memory) WithUnitOfWork(ctx context.Context, fn func(loyalty.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	view := &memView{state: m.state}

	if err := fn(view); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

// Reset drops all data. Demo scenarios only.
func (m *Memory) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = newState()
	return nil
}

func (m *Memory) st() *state { return m.state }

// memView is the transactional view handed to WithUnitOfWork callbacks.
// The parent holds the lock, so view repos skip locking entirely.
type memView struct {
	state *state
}

func (v *memView) st() *state { return v.state }

func (v *memView) Products() loyalty.ProductRepository { return productsRepo{src: v, mu: noLock{}} }
func (v *memView) Inventory() loyalty.InventoryRepository { return inventoryRepo{src: v, mu: noLock{}} }
func (v *memView) Requests() loyalty.RequestRepository { return requestsRepo{src: v, mu: noLock{}} }
func (v *memView) Points() loyalty.PointsRepository { return pointsRepo{src: v, mu: noLock{}} }
func (v *memView) Rewards() loyalty.RewardRepository { return rewardsRepo{src: v, mu: noLock{}} }
func (v *memView) Orders() loyalty.OrderRepository { return ordersRepo{src: v, mu: noLock{}} }

// WithUnitOfWork inside a unit of work joins the current one.
func (v *memView) WithUnitOfWork(ctx context.Context, fn func(loyalty.Store) error) error {
	return fn(v)
}

// source yields the current state; repos resolve it after locking so a
// rollback's state swap is never observed mid-operation.
type source interface {
	st() *state
}

// locker lets one repo implementation serve both the locking outer
// store and the already-locked transactional view.
type locker interface {
	Lock()
	Unlock()
	RLock()
	RUnlock()
}

type noLock struct{}

func (noLock) Lock()    {}
func (noLock) Unlock()  {}
func (noLock) RLock()   {}
func (noLock) RUnlock() {}

// =============================================================================
// STATE - All aggregates plus snapshot/restore
// =============================================================================

type invKey struct {
	ClientID   string
	ProductKey string
}

type state struct {
	products  map[string]loyalty.Product
	inventory map[invKey]loyalty.ClientInventory
	requests  map[string]loyalty.PurchaseRequest
	accounts  map[string]loyalty.PointsAccount
	rewards   map[string]loyalty.Reward
	orders    map[string]loyalty.Order
}

func newState() *state {
	return &state{
		products:  make(map[string]loyalty.Product),
		inventory: make(map[invKey]loyalty.ClientInventory),
		requests:  make(map[string]loyalty.PurchaseRequest),
		accounts:  make(map[string]loyalty.PointsAccount),
		rewards:   make(map[string]loyalty.Reward),
		orders:    make(map[string]loyalty.Order),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.inventory {
		c.inventory[k] = v
	}
	for k, v := range s.requests {
		c.requests[k] = v
	}
	for k, v := range s.accounts {
		v.History = append([]loyalty.PointsEntry(nil), v.History...)
		c.accounts[k] = v
	}
	for k, v := range s.rewards {
		v.Redemptions = append([]loyalty.Redemption(nil), v.Redemptions...)
		c.rewards[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	return c
}

// =============================================================================
// PRODUCTS
// =============================================================================

type productsRepo struct {
	src source
	mu  locker
}

func (r productsRepo) Get(_ context.Context, id string) (*loyalty.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.src.st().products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r productsRepo) Save(_ context.Context, p *loyalty.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.src.st().products[p.ID] = *p
	return nil
}

func (r productsRepo) UpdateStock(_ context.Context, id string, expected, next int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.src.st()
	p, ok := s.products[id]
	if !ok || p.Stock != expected {
		return false, nil
	}
	p.Stock = next
	p.UpdatedAt = time.Now()
	s.products[id] = p
	return true, nil
}

func (r productsRepo) List(_ context.Context) ([]loyalty.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.src.st()
	out := make([]loyalty.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// =============================================================================
// CLIENT INVENTORY
// =============================================================================

type inventoryRepo struct {
	src source
	mu  locker
}

func (r inventoryRepo) Get(_ context.Context, clientID, productKey string) (*loyalty.ClientInventory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.src.st().inventory[invKey{ClientID: clientID, ProductKey: productKey}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r inventoryRepo) Merge(_ context.Context, rec loyalty.ClientInventory) (*loyalty.ClientInventory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.src.st()
	k := invKey{ClientID: rec.ClientID, ProductKey: rec.ProductKey}

	existing, ok := s.inventory[k]
	if !ok {
		s.inventory[k] = rec
		return &rec, nil
	}

	existing.CurrentStock += rec.CurrentStock
	existing.ProductName = rec.ProductName
	existing.SKU = rec.SKU
	if rec.LastUpdated.After(existing.LastUpdated) {
		existing.LastUpdated = rec.LastUpdated
	}
	s.inventory[k] = existing
	return &existing, nil
}

func (r inventoryRepo) ListByClient(_ context.Context, clientID string) ([]loyalty.ClientInventory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []loyalty.ClientInventory
	for k, rec := range r.src.st().inventory {
		if k.ClientID == clientID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductName < out[j].ProductName })
	return out, nil
}

// =============================================================================
// PURCHASE REQUESTS
// =============================================================================

type requestsRepo struct {
	src source
	mu  locker
}

func (r requestsRepo) Get(_ context.Context, id string) (*loyalty.PurchaseRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.src.st().requests[id]
	if !ok {
		return nil, nil
	}
	return &req, nil
}

func (r requestsRepo) Create(_ context.Context, req *loyalty.PurchaseRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.src.st()
	if _, exists := s.requests[req.ID]; exists {
		return fmt.Errorf("request %s already exists", req.ID)
	}
	s.requests[req.ID] = *req
	return nil
}

func (r requestsRepo) Finalize(_ context.Context, req *loyalty.PurchaseRequest) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.src.st()
	stored, ok := s.requests[req.ID]
	if !ok || stored.Status != loyalty.RequestPending {
		return false, nil
	}
	stored.Status = req.Status
	stored.AdminID = req.AdminID
	stored.Reason = req.Reason
	stored.OrderID = req.OrderID
	stored.UpdatedAt = req.UpdatedAt
	s.requests[req.ID] = stored
	return true, nil
}

func (r requestsRepo) ListByClient(_ context.Context, clientID string) ([]loyalty.PurchaseRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []loyalty.PurchaseRequest
	for _, req := range r.src.st().requests {
		if req.ClientID == clientID {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r requestsRepo) ListPending(_ context.Context) ([]loyalty.PurchaseRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []loyalty.PurchaseRequest
	for _, req := range r.src.st().requests {
		if req.Status == loyalty.RequestPending {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// =============================================================================
// POINTS
// =============================================================================

type pointsRepo struct {
	src source
	mu  locker
}

func (r pointsRepo) Account(_ context.Context, userID string) (*loyalty.PointsAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.src.st().accounts[userID]
	if !ok {
		return &loyalty.PointsAccount{UserID: userID}, nil
	}
	a.History = append([]loyalty.PointsEntry(nil), a.History...)
	return &a, nil
}

func (r pointsRepo) Append(_ context.Context, userID string, entry loyalty.PointsEntry, newBalance int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.src.st()
	a, ok := s.accounts[userID]
	if !ok {
		a = loyalty.PointsAccount{UserID: userID}
	}
	a.History = append(a.History, entry)
	a.Balance = newBalance
	s.accounts[userID] = a
	return nil
}

// =============================================================================
// REWARDS
// =============================================================================

type rewardsRepo struct {
	src source
	mu  locker
}

func (r rewardsRepo) Get(_ context.Context, id string) (*loyalty.Reward, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rew, ok := r.src.st().rewards[id]
	if !ok {
		return nil, nil
	}
	rew.Redemptions = append([]loyalty.Redemption(nil), rew.Redemptions...)
	return &rew, nil
}

func (r rewardsRepo) Save(_ context.Context, reward *loyalty.Reward) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.src.st()
	saved := *reward
	if existing, ok := s.rewards[reward.ID]; ok {
		// Redemptions only move through AppendRedemption/UpdateRedemption.
		saved.Redemptions = existing.Redemptions
	} else {
		saved.Redemptions = nil
	}
	s.rewards[reward.ID] = saved
	return nil
}

func (r rewardsRepo) List(_ context.Context) ([]loyalty.Reward, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.src.st()
	out := make([]loyalty.Reward, 0, len(s.rewards))
	for _, rew := range s.rewards {
		rew.Redemptions = nil
		out = append(out, rew)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r rewardsRepo) DecrementQuantity(_ context.Context, id string) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.src.st()
	rew, ok := s.rewards[id]
	if !ok || rew.Quantity <= 0 {
		return 0, false, nil
	}
	rew.Quantity--
	rew.UpdatedAt = time.Now()
	s.rewards[id] = rew
	return rew.Quantity, true, nil
}

func (r rewardsRepo) AppendRedemption(_ context.Context, red loyalty.Redemption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.src.st()
	rew, ok := s.rewards[red.RewardID]
	if !ok {
		return fmt.Errorf("reward %s not found", red.RewardID)
	}
	rew.Redemptions = append(rew.Redemptions, red)
	s.rewards[red.RewardID] = rew
	return nil
}

func (r rewardsRepo) UpdateRedemption(_ context.Context, red loyalty.Redemption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.src.st()
	rew, ok := s.rewards[red.RewardID]
	if !ok {
		return fmt.Errorf("reward %s not found", red.RewardID)
	}
	reds := append([]loyalty.Redemption(nil), rew.Redemptions...)
	for i := range reds {
		if reds[i].ID == red.ID {
			reds[i].Status = red.Status
			reds[i].Notes = red.Notes
			reds[i].UpdatedAt = red.UpdatedAt
			rew.Redemptions = reds
			s.rewards[red.RewardID] = rew
			return nil
		}
	}
	return fmt.Errorf("redemption %s not found on reward %s", red.ID, red.RewardID)
}

// =============================================================================
// ORDERS
// =============================================================================

type ordersRepo struct {
	src source
	mu  locker
}

func (r ordersRepo) Create(_ context.Context, o *loyalty.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.src.st().orders[o.ID] = *o
	return nil
}

func (r ordersRepo) ListByClient(_ context.Context, clientID string) ([]loyalty.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []loyalty.Order
	for _, o := range r.src.st().orders {
		if o.ClientID == clientID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
