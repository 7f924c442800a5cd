/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements loyalty.Store using SQLite. In production the same patterns
  apply to PostgreSQL - only minor SQL dialect differences (see
  store/postgres for that backend).

KEY TABLES:
  products:          Pool stock, one row per product
  client_inventory:  Client-held stock, one row per (client, product)
  purchase_requests: Approval workflow records
  points_accounts:   Stored balance per user
  points_entries:    Append-only points history
  rewards:           Redeemable catalog
  redemptions:       Per-reward redemption records
  orders:            Audit rows written after approvals

CONDITIONAL WRITES:
  Stock movements and request finalization never trust an earlier read.
  They re-state the expectation in the WHERE clause and report whether a
  row changed:
  - UPDATE products SET stock=? WHERE id=? AND stock=?      (compare-and-swap)
  - UPDATE purchase_requests ... WHERE status='pending'     (finalize once)
  - UPDATE rewards SET quantity=quantity-1 WHERE quantity>0 (never below zero)

CONCURRENCY:
  A unit of work runs inside BEGIN..COMMIT while holding the store's
  write lock, so units serialize like the in-memory backend. Plain
  repository calls outside a unit lock around single statements.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/loyalty.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). The PostgreSQL backend uses goose
  with versioned migrations instead; SQLite keeps the self-contained
  form for dev and tests.

SEE ALSO:
  - loyalty/store.go: Interface definitions and write contracts
  - loyalty/store/memory.go: In-memory implementation for testing
  - store/postgres: Production backend
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/revinosolutions/dealer-loyality-sub003/loyalty"
)

// Store implements loyalty.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: SQLite has a single writer anyway, and ":memory:"
	// databases exist per connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Pool stock
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		sku TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		price TEXT NOT NULL,
		stock INTEGER NOT NULL DEFAULT 0,
		reorder_level INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Client-held stock; one row per (client, product), accumulated in place
	CREATE TABLE IF NOT EXISTS client_inventory (
		client_id TEXT NOT NULL,
		product_key TEXT NOT NULL,
		product_name TEXT NOT NULL,
		sku TEXT NOT NULL DEFAULT '',
		initial_stock INTEGER NOT NULL,
		current_stock INTEGER NOT NULL,
		reorder_level INTEGER NOT NULL,
		last_updated TEXT NOT NULL,
		PRIMARY KEY (client_id, product_key)
	);

	CREATE INDEX IF NOT EXISTS idx_inventory_client
		ON client_inventory(client_id);

	-- Purchase requests (approval workflow)
	CREATE TABLE IF NOT EXISTS purchase_requests (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL,
		client_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price TEXT NOT NULL,
		notes TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		admin_id TEXT,
		reason TEXT,
		order_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_client
		ON purchase_requests(client_id);
	CREATE INDEX IF NOT EXISTS idx_requests_status
		ON purchase_requests(status);

	-- Points: stored balance plus append-only entry history
	CREATE TABLE IF NOT EXISTS points_accounts (
		user_id TEXT PRIMARY KEY,
		balance INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS points_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		amount INTEGER NOT NULL,
		entry_type TEXT NOT NULL,
		source TEXT NOT NULL,
		source_id TEXT,
		description TEXT,
		created_at TEXT NOT NULL
	);

	-- Balance verification reads the whole history in order (hot path)
	CREATE INDEX IF NOT EXISTS idx_points_entries_user
		ON points_entries(user_id, created_at);

	-- Reward catalog
	CREATE TABLE IF NOT EXISTS rewards (
		id TEXT PRIMARY KEY,
		client_id TEXT,
		name TEXT NOT NULL,
		description TEXT,
		points_cost INTEGER NOT NULL,
		quantity INTEGER NOT NULL DEFAULT -1,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		expiry_date TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS redemptions (
		id TEXT PRIMARY KEY,
		reward_id TEXT NOT NULL REFERENCES rewards(id),
		user_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		notes TEXT,
		redeemed_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_redemptions_reward
		ON redemptions(reward_id);
	CREATE INDEX IF NOT EXISTS idx_redemptions_user
		ON redemptions(user_id);

	-- Audit orders linked from approved requests
	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL,
		client_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		total TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_orders_client
		ON orders(client_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// locker lets one repo implementation serve both the locking direct
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

func (s *Store) Products() loyalty.ProductRepository {
	return productsRepo{q: s.db, mu: &s.mu}
}

func (s *Store) Inventory() loyalty.InventoryRepository {
	return inventoryRepo{q: s.db, mu: &s.mu}
}

func (s *Store) Requests() loyalty.RequestRepository {
	return requestsRepo{q: s.db, mu: &s.mu}
}

func (s *Store) Points() loyalty.PointsRepository {
	return pointsRepo{q: s.db, mu: &s.mu}
}

func (s *Store) Rewards() loyalty.RewardRepository {
	return rewardsRepo{q: s.db, mu: &s.mu}
}

func (s *Store) Orders() loyalty.OrderRepository {
	return ordersRepo{q: s.db, mu: &s.mu}
}

// WithUnitOfWork executes fn inside one database transaction. The write
// lock is held across the transaction, serializing units of work the
// same way the in-memory backend does.
func (s *Store) WithUnitOfWork(ctx context.Context, fn func(loyalty.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	view := &txView{tx: tx}
	if err := fn(view); err != nil {
		return err
	}
	return tx.Commit()
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"orders", "redemptions", "rewards", "points_entries",
		"points_accounts", "purchase_requests", "client_inventory", "products",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// txView is the transactional view handed to WithUnitOfWork callbacks.
// The parent holds the lock, so view repos skip locking entirely.
type txView struct {
	tx *sql.Tx
}

func (v *txView) Products() loyalty.ProductRepository {
	return productsRepo{q: v.tx, mu: noLock{}}
}

func (v *txView) Inventory() loyalty.InventoryRepository {
	return inventoryRepo{q: v.tx, mu: noLock{}}
}

func (v *txView) Requests() loyalty.RequestRepository {
	return requestsRepo{q: v.tx, mu: noLock{}}
}

func (v *txView) Points() loyalty.PointsRepository {
	return pointsRepo{q: v.tx, mu: noLock{}}
}

func (v *txView) Rewards() loyalty.RewardRepository {
	return rewardsRepo{q: v.tx, mu: noLock{}}
}

func (v *txView) Orders() loyalty.OrderRepository {
	return ordersRepo{q: v.tx, mu: noLock{}}
}

// WithUnitOfWork inside a unit of work joins the current one.
func (v *txView) WithUnitOfWork(ctx context.Context, fn func(loyalty.Store) error) error {
	return fn(v)
}

// =============================================================================
// PRODUCTS
// =============================================================================

type productsRepo struct {
	q  queryer
	mu locker
}

func (r productsRepo) Get(ctx context.Context, id string) (*loyalty.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `
		SELECT id, sku, name, price, stock, reorder_level, created_at, updated_at
		FROM products
		WHERE id = ?
	`
	var (
		p                    loyalty.Product
		price                string
		createdAt, updatedAt string
	)
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.SKU, &p.Name, &price, &p.Stock, &p.ReorderLevel,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	p.Price = parseDecimal(price)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func (r productsRepo) Save(ctx context.Context, p *loyalty.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `
		INSERT INTO products (id, sku, name, price, stock, reorder_level, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			sku = excluded.sku,
			name = excluded.name,
			price = excluded.price,
			stock = excluded.stock,
			reorder_level = excluded.reorder_level,
			updated_at = excluded.updated_at
	`
	now := time.Now().UTC()
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err := r.q.ExecContext(ctx, query,
		p.ID, p.SKU, p.Name, p.Price.String(), p.Stock, p.ReorderLevel,
		createdAt.UTC().Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}
	return nil
}

func (r productsRepo) UpdateStock(ctx context.Context, id string, expected, next int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `
		UPDATE products
		SET stock = ?, updated_at = ?
		WHERE id = ? AND stock = ?
	`
	res, err := r.q.ExecContext(ctx, query, next, time.Now().UTC().Format(time.RFC3339), id, expected)
	if err != nil {
		return false, fmt.Errorf("failed to update stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r productsRepo) List(ctx context.Context) ([]loyalty.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `
		SELECT id, sku, name, price, stock, reorder_level, created_at, updated_at
		FROM products
		ORDER BY name
	`
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var out []loyalty.Product
	for rows.Next() {
		var (
			p                    loyalty.Product
			price                string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &price, &p.Stock, &p.ReorderLevel, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		p.Price = parseDecimal(price)
		p.CreatedAt = parseTime(createdAt)
		p.UpdatedAt = parseTime(updatedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// CLIENT INVENTORY
// =============================================================================

type inventoryRepo struct {
	q  queryer
	mu locker
}

func (r inventoryRepo) Get(ctx context.Context, clientID, productKey string) (*loyalty.ClientInventory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `
		SELECT client_id, product_key, product_name, sku,
		       initial_stock, current_stock, reorder_level, last_updated
		FROM client_inventory
		WHERE client_id = ? AND product_key = ?
	`
	return scanInventoryRow(r.q.QueryRowContext(ctx, query, clientID, productKey))
}

// Merge inserts the record or accumulates onto the existing row. The
// insert keeps initial_stock and reorder_level; later merges only add
// stock, refresh the product naming and keep the newest timestamp.
func (r inventoryRepo) Merge(ctx context.Context, rec loyalty.ClientInventory) (*loyalty.ClientInventory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `
		INSERT INTO client_inventory
			(client_id, product_key, product_name, sku, initial_stock, current_stock, reorder_level, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id, product_key) DO UPDATE SET
			current_stock = current_stock + excluded.current_stock,
			product_name = excluded.product_name,
			sku = excluded.sku,
			last_updated = MAX(last_updated, excluded.last_updated)
	`
	_, err := r.q.ExecContext(ctx, query,
		rec.ClientID, rec.ProductKey, rec.ProductName, rec.SKU,
		rec.InitialStock, rec.CurrentStock, rec.ReorderLevel,
		rec.LastUpdated.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to merge inventory: %w", err)
	}

	sel := `
		SELECT client_id, product_key, product_name, sku,
		       initial_stock, current_stock, reorder_level, last_updated
		FROM client_inventory
		WHERE client_id = ? AND product_key = ?
	`
	return scanInventoryRow(r.q.QueryRowContext(ctx, sel, rec.ClientID, rec.ProductKey))
}

func (r inventoryRepo) ListByClient(ctx context.Context, clientID string) ([]loyalty.ClientInventory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `
		SELECT client_id, product_key, product_name, sku,
		       initial_stock, current_stock, reorder_level, last_updated
		FROM client_inventory
		WHERE client_id = ?
		ORDER BY product_name
	`
	rows, err := r.q.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list inventory: %w", err)
	}
	defer rows.Close()

	var out []loyalty.ClientInventory
	for rows.Next() {
		var (
			rec         loyalty.ClientInventory
			lastUpdated string
		)
		if err := rows.Scan(&rec.ClientID, &rec.ProductKey, &rec.ProductName, &rec.SKU,
			&rec.InitialStock, &rec.CurrentStock, &rec.ReorderLevel, &lastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan inventory: %w", err)
		}
		rec.LastUpdated = parseTime(lastUpdated)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanInventoryRow(row *sql.Row) (*loyalty.ClientInventory, error) {
	var (
		rec         loyalty.ClientInventory
		lastUpdated string
	)
	err := row.Scan(&rec.ClientID, &rec.ProductKey, &rec.ProductName, &rec.SKU,
		&rec.InitialStock, &rec.CurrentStock, &rec.ReorderLevel, &lastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan inventory: %w", err)
	}
	rec.LastUpdated = parseTime(lastUpdated)
	return &rec, nil
}

// =============================================================================
// PURCHASE REQUESTS
// =============================================================================

type requestsRepo struct {
	q  queryer
	mu locker
}

const requestColumns = `id, product_id, client_id, quantity, price, notes,
	status, admin_id, reason, order_id, created_at, updated_at`

func (r requestsRepo) Get(ctx context.Context, id string) (*loyalty.PurchaseRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `SELECT ` + requestColumns + ` FROM purchase_requests WHERE id = ?`
	req, err := scanRequest(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r requestsRepo) Create(ctx context.Context, req *loyalty.PurchaseRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `
		INSERT INTO purchase_requests
			(id, product_id, client_id, quantity, price, notes, status, admin_id, reason, order_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.q.ExecContext(ctx, query,
		req.ID, req.ProductID, req.ClientID, req.Quantity, req.Price.String(),
		nullString(req.Notes), string(req.Status), nullString(req.AdminID),
		nullString(req.Reason), nullString(req.OrderID),
		req.CreatedAt.UTC().Format(time.RFC3339), req.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("request %s already exists", req.ID)
		}
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

// Finalize writes the terminal fields only if the stored row is still
// pending. The WHERE clause is the exactly-once guard.
func (r requestsRepo) Finalize(ctx context.Context, req *loyalty.PurchaseRequest) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `
		UPDATE purchase_requests
		SET status = ?, admin_id = ?, reason = ?, order_id = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'
	`
	res, err := r.q.ExecContext(ctx, query,
		string(req.Status), nullString(req.AdminID), nullString(req.Reason),
		nullString(req.OrderID), req.UpdatedAt.UTC().Format(time.RFC3339), req.ID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to finalize request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r requestsRepo) ListByClient(ctx context.Context, clientID string) ([]loyalty.PurchaseRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `SELECT ` + requestColumns + `
		FROM purchase_requests
		WHERE client_id = ?
		ORDER BY created_at DESC`
	return r.queryRequests(ctx, query, clientID)
}

func (r requestsRepo) ListPending(ctx context.Context) ([]loyalty.PurchaseRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `SELECT ` + requestColumns + `
		FROM purchase_requests
		WHERE status = 'pending'
		ORDER BY created_at ASC`
	return r.queryRequests(ctx, query)
}

func (r requestsRepo) queryRequests(ctx context.Context, query string, args ...any) ([]loyalty.PurchaseRequest, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var out []loyalty.PurchaseRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*loyalty.PurchaseRequest, error) {
	var (
		req                           loyalty.PurchaseRequest
		price, status                 string
		notes, adminID, reason, order sql.NullString
		createdAt, updatedAt          string
	)
	err := row.Scan(
		&req.ID, &req.ProductID, &req.ClientID, &req.Quantity, &price, &notes,
		&status, &adminID, &reason, &order, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan request: %w", err)
	}
	req.Price = parseDecimal(price)
	req.Notes = notes.String
	req.Status = loyalty.RequestStatus(status)
	req.AdminID = adminID.String
	req.Reason = reason.String
	req.OrderID = order.String
	req.CreatedAt = parseTime(createdAt)
	req.UpdatedAt = parseTime(updatedAt)
	return &req, nil
}

// =============================================================================
// POINTS
// =============================================================================

type pointsRepo struct {
	q  queryer
	mu locker
}

func (r pointsRepo) Account(ctx context.Context, userID string) (*loyalty.PointsAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account := &loyalty.PointsAccount{UserID: userID}
	err := r.q.QueryRowContext(ctx,
		`SELECT balance FROM points_accounts WHERE user_id = ?`, userID,
	).Scan(&account.Balance)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	query := `
		SELECT id, amount, entry_type, source, source_id, description, created_at
		FROM points_entries
		WHERE user_id = ?
		ORDER BY created_at ASC, rowid ASC
	`
	rows, err := r.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e                     loyalty.PointsEntry
			entryType             string
			sourceID, description sql.NullString
			createdAt             string
		)
		if err := rows.Scan(&e.ID, &e.Amount, &entryType, &e.Source, &sourceID, &description, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.Type = loyalty.EntryType(entryType)
		e.SourceID = sourceID.String
		e.Description = description.String
		e.CreatedAt = parseTime(createdAt)
		account.History = append(account.History, e)
	}
	return account, rows.Err()
}

func (r pointsRepo) Append(ctx context.Context, userID string, entry loyalty.PointsEntry, newBalance int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	balanceQuery := `
		INSERT INTO points_accounts (user_id, balance)
		VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET balance = excluded.balance
	`
	if _, err := r.q.ExecContext(ctx, balanceQuery, userID, newBalance); err != nil {
		return fmt.Errorf("failed to write balance: %w", err)
	}

	entryQuery := `
		INSERT INTO points_entries (id, user_id, amount, entry_type, source, source_id, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.q.ExecContext(ctx, entryQuery,
		entry.ID, userID, entry.Amount, string(entry.Type), entry.Source,
		nullString(entry.SourceID), nullString(entry.Description),
		entry.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

// =============================================================================
// REWARDS
// =============================================================================

type rewardsRepo struct {
	q  queryer
	mu locker
}

func (r rewardsRepo) Get(ctx context.Context, id string) (*loyalty.Reward, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `
		SELECT id, client_id, name, description, points_cost, quantity, is_active, expiry_date, created_at, updated_at
		FROM rewards
		WHERE id = ?
	`
	rew, err := scanReward(r.q.QueryRowContext(ctx, query, id))
	if err != nil || rew == nil {
		return nil, err
	}

	redQuery := `
		SELECT id, reward_id, user_id, status, notes, redeemed_at, updated_at
		FROM redemptions
		WHERE reward_id = ?
		ORDER BY redeemed_at ASC, rowid ASC
	`
	rows, err := r.q.QueryContext(ctx, redQuery, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query redemptions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			red                   loyalty.Redemption
			status                string
			notes                 sql.NullString
			redeemedAt, updatedAt string
		)
		if err := rows.Scan(&red.ID, &red.RewardID, &red.UserID, &status, &notes, &redeemedAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan redemption: %w", err)
		}
		red.Status = loyalty.RedemptionStatus(status)
		red.Notes = notes.String
		red.RedeemedAt = parseTime(redeemedAt)
		red.UpdatedAt = parseTime(updatedAt)
		rew.Redemptions = append(rew.Redemptions, red)
	}
	return rew, rows.Err()
}

// Save writes catalog fields. Redemptions live in their own table and
// only move through AppendRedemption/UpdateRedemption.
func (r rewardsRepo) Save(ctx context.Context, reward *loyalty.Reward) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `
		INSERT INTO rewards (id, client_id, name, description, points_cost, quantity, is_active, expiry_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			client_id = excluded.client_id,
			name = excluded.name,
			description = excluded.description,
			points_cost = excluded.points_cost,
			quantity = excluded.quantity,
			is_active = excluded.is_active,
			expiry_date = excluded.expiry_date,
			updated_at = excluded.updated_at
	`
	now := time.Now().UTC()
	createdAt := reward.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err := r.q.ExecContext(ctx, query,
		reward.ID, nullString(reward.ClientID), reward.Name, nullString(reward.Description),
		reward.PointsCost, reward.Quantity, reward.IsActive, nullTime(reward.ExpiryDate),
		createdAt.UTC().Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save reward: %w", err)
	}
	return nil
}

func (r rewardsRepo) List(ctx context.Context) ([]loyalty.Reward, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `
		SELECT id, client_id, name, description, points_cost, quantity, is_active, expiry_date, created_at, updated_at
		FROM rewards
		ORDER BY name
	`
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rewards: %w", err)
	}
	defer rows.Close()

	var out []loyalty.Reward
	for rows.Next() {
		rew, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rew)
	}
	return out, rows.Err()
}

// DecrementQuantity takes one unit while any remain. The WHERE clause
// keeps the count from ever going below zero.
func (r rewardsRepo) DecrementQuantity(ctx context.Context, id string) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `
		UPDATE rewards
		SET quantity = quantity - 1, updated_at = ?
		WHERE id = ? AND quantity > 0
		RETURNING quantity
	`
	var remaining int
	err := r.q.QueryRowContext(ctx, query, time.Now().UTC().Format(time.RFC3339), id).Scan(&remaining)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to decrement quantity: %w", err)
	}
	return remaining, true, nil
}

func (r rewardsRepo) AppendRedemption(ctx context.Context, red loyalty.Redemption) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `
		INSERT INTO redemptions (id, reward_id, user_id, status, notes, redeemed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.q.ExecContext(ctx, query,
		red.ID, red.RewardID, red.UserID, string(red.Status), nullString(red.Notes),
		red.RedeemedAt.UTC().Format(time.RFC3339), red.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append redemption: %w", err)
	}
	return nil
}

func (r rewardsRepo) UpdateRedemption(ctx context.Context, red loyalty.Redemption) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `
		UPDATE redemptions
		SET status = ?, notes = ?, updated_at = ?
		WHERE id = ? AND reward_id = ?
	`
	res, err := r.q.ExecContext(ctx, query,
		string(red.Status), nullString(red.Notes),
		red.UpdatedAt.UTC().Format(time.RFC3339), red.ID, red.RewardID,
	)
	if err != nil {
		return fmt.Errorf("failed to update redemption: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("redemption %s not found on reward %s", red.ID, red.RewardID)
	}
	return nil
}

func scanReward(row rowScanner) (*loyalty.Reward, error) {
	var (
		rew                  loyalty.Reward
		clientID, desc       sql.NullString
		expiry               sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&rew.ID, &clientID, &rew.Name, &desc, &rew.PointsCost,
		&rew.Quantity, &rew.IsActive, &expiry, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan reward: %w", err)
	}
	rew.ClientID = clientID.String
	rew.Description = desc.String
	if expiry.Valid && expiry.String != "" {
		t := parseTime(expiry.String)
		rew.ExpiryDate = &t
	}
	rew.CreatedAt = parseTime(createdAt)
	rew.UpdatedAt = parseTime(updatedAt)
	return &rew, nil
}

// =============================================================================
// ORDERS
// =============================================================================

type ordersRepo struct {
	q  queryer
	mu locker
}

func (r ordersRepo) Create(ctx context.Context, o *loyalty.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `
		INSERT INTO orders (id, request_id, client_id, product_id, quantity, total, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.q.ExecContext(ctx, query,
		o.ID, o.RequestID, o.ClientID, o.ProductID, o.Quantity,
		o.Total.String(), o.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (r ordersRepo) ListByClient(ctx context.Context, clientID string) ([]loyalty.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `
		SELECT id, request_id, client_id, product_id, quantity, total, created_at
		FROM orders
		WHERE client_id = ?
		ORDER BY created_at DESC
	`
	rows, err := r.q.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var out []loyalty.Order
	for rows.Next() {
		var (
			o                loyalty.Order
			total, createdAt string
		)
		if err := rows.Scan(&o.ID, &o.RequestID, &o.ClientID, &o.ProductID, &o.Quantity, &total, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.Total = parseDecimal(total)
		o.CreatedAt = parseTime(createdAt)
		out = append(out, o)
	}
	return out, rows.Err()
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
