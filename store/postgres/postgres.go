/*
Package postgres provides the PostgreSQL-backed implementation of the
storage interfaces.

PURPOSE:
  Production backend for loyalty.Store. Unlike the SQLite backend there
  is no process-level lock: PostgreSQL's own concurrency control does
  the serializing.

HOW SERIALIZATION WORKS HERE:
  - Units of work run in BEGIN..COMMIT under READ COMMITTED.
  - Points accounts are locked per row: inside a unit of work, Account
    ensures the row exists and reads it with SELECT ... FOR UPDATE, so
    concurrent balance check+append pairs on one user queue up.
  - Stock, request finalization and reward quantity rely on conditional
    UPDATEs whose WHERE clause re-evaluates against the committed row
    after any blocking writer finishes. A lost condition reports
    "no rows changed" and the engine decides what that means.

SCHEMA:
  Managed by goose migrations embedded in this package (migrations/).
  Migrate() applies them; cmd/migrate does the same from the command
  line for operational control.

USAGE:
  store, err := postgres.New(cfg.DatabaseURL)
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
  if err := store.Migrate(ctx); err != nil {
      log.Fatal(err)
  }

SEE ALSO:
  - loyalty/store.go: Interface definitions and write contracts
  - store/sqlite: Self-contained backend for dev and tests
*/
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/revinosolutions/dealer-loyality-sub003/loyalty"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store implements loyalty.Store on PostgreSQL.
type Store struct {
	db *sqlx.DB
}

// New connects to PostgreSQL and configures the pool.
func New(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Store{db: db}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded goose migrations.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, s.db.DB, "migrations")
}

// RunMigration runs an arbitrary goose command ("up", "down", "status",
// ...) against the embedded migrations. Used by cmd/migrate.
func (s *Store) RunMigration(command string, args ...string) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Run(command, s.db.DB, "migrations", args...)
}

func (s *Store) Products() loyalty.ProductRepository   { return productsRepo{q: s.db} }
func (s *Store) Inventory() loyalty.InventoryRepository { return inventoryRepo{q: s.db} }
func (s *Store) Requests() loyalty.RequestRepository   { return requestsRepo{q: s.db} }
func (s *Store) Points() loyalty.PointsRepository      { return pointsRepo{q: s.db} }
func (s *Store) Rewards() loyalty.RewardRepository     { return rewardsRepo{q: s.db} }
func (s *Store) Orders() loyalty.OrderRepository       { return ordersRepo{q: s.db} }

// WithUnitOfWork executes fn inside one database transaction.
func (s *Store) WithUnitOfWork(ctx context.Context, fn func(loyalty.Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txView{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		TRUNCATE orders, redemptions, rewards, points_entries,
		         points_accounts, purchase_requests, client_inventory, products
	`)
	return err
}

// txView is the transactional view handed to WithUnitOfWork callbacks.
// Its points repo takes row locks; everything else relies on the
// conditional writes.
type txView struct {
	tx *sqlx.Tx
}

func (v *txView) Products() loyalty.ProductRepository   { return productsRepo{q: v.tx} }
func (v *txView) Inventory() loyalty.InventoryRepository { return inventoryRepo{q: v.tx} }
func (v *txView) Requests() loyalty.RequestRepository   { return requestsRepo{q: v.tx} }
func (v *txView) Points() loyalty.PointsRepository      { return pointsRepo{q: v.tx, locking: true} }
func (v *txView) Rewards() loyalty.RewardRepository     { return rewardsRepo{q: v.tx} }
func (v *txView) Orders() loyalty.OrderRepository       { return ordersRepo{q: v.tx} }

// WithUnitOfWork inside a unit of work joins the current one.
func (v *txView) WithUnitOfWork(ctx context.Context, fn func(loyalty.Store) error) error {
	return fn(v)
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// =============================================================================
// ROW TYPES - db-tagged carriers between SQL and the domain structs
// =============================================================================

type productRow struct {
	ID           string          `db:"id"`
	SKU          string          `db:"sku"`
	Name         string          `db:"name"`
	Price        decimal.Decimal `db:"price"`
	Stock        int             `db:"stock"`
	ReorderLevel int             `db:"reorder_level"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

func (r productRow) toDomain() loyalty.Product {
	return loyalty.Product{
		ID: r.ID, SKU: r.SKU, Name: r.Name, Price: r.Price,
		Stock: r.Stock, ReorderLevel: r.ReorderLevel,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

type inventoryRow struct {
	ClientID     string    `db:"client_id"`
	ProductKey   string    `db:"product_key"`
	ProductName  string    `db:"product_name"`
	SKU          string    `db:"sku"`
	InitialStock int       `db:"initial_stock"`
	CurrentStock int       `db:"current_stock"`
	ReorderLevel int       `db:"reorder_level"`
	LastUpdated  time.Time `db:"last_updated"`
}

func (r inventoryRow) toDomain() loyalty.ClientInventory {
	return loyalty.ClientInventory{
		ClientID: r.ClientID, ProductKey: r.ProductKey,
		ProductName: r.ProductName, SKU: r.SKU,
		InitialStock: r.InitialStock, CurrentStock: r.CurrentStock,
		ReorderLevel: r.ReorderLevel, LastUpdated: r.LastUpdated,
	}
}

type requestRow struct {
	ID        string          `db:"id"`
	ProductID string          `db:"product_id"`
	ClientID  string          `db:"client_id"`
	Quantity  int             `db:"quantity"`
	Price     decimal.Decimal `db:"price"`
	Notes     sql.NullString  `db:"notes"`
	Status    string          `db:"status"`
	AdminID   sql.NullString  `db:"admin_id"`
	Reason    sql.NullString  `db:"reason"`
	OrderID   sql.NullString  `db:"order_id"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

func (r requestRow) toDomain() loyalty.PurchaseRequest {
	return loyalty.PurchaseRequest{
		ID: r.ID, ProductID: r.ProductID, ClientID: r.ClientID,
		Quantity: r.Quantity, Price: r.Price, Notes: r.Notes.String,
		Status: loyalty.RequestStatus(r.Status), AdminID: r.AdminID.String,
		Reason: r.Reason.String, OrderID: r.OrderID.String,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

type entryRow struct {
	ID          string         `db:"id"`
	UserID      string         `db:"user_id"`
	Amount      int            `db:"amount"`
	EntryType   string         `db:"entry_type"`
	Source      string         `db:"source"`
	SourceID    sql.NullString `db:"source_id"`
	Description sql.NullString `db:"description"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r entryRow) toDomain() loyalty.PointsEntry {
	return loyalty.PointsEntry{
		ID: r.ID, Amount: r.Amount, Type: loyalty.EntryType(r.EntryType),
		Source: r.Source, SourceID: r.SourceID.String,
		Description: r.Description.String, CreatedAt: r.CreatedAt,
	}
}

type rewardRow struct {
	ID          string         `db:"id"`
	ClientID    sql.NullString `db:"client_id"`
	Name        string         `db:"name"`
	Description sql.NullString `db:"description"`
	PointsCost  int            `db:"points_cost"`
	Quantity    int            `db:"quantity"`
	IsActive    bool           `db:"is_active"`
	ExpiryDate  *time.Time     `db:"expiry_date"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r rewardRow) toDomain() loyalty.Reward {
	return loyalty.Reward{
		ID: r.ID, ClientID: r.ClientID.String, Name: r.Name,
		Description: r.Description.String, PointsCost: r.PointsCost,
		Quantity: r.Quantity, IsActive: r.IsActive, ExpiryDate: r.ExpiryDate,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

type redemptionRow struct {
	ID         string         `db:"id"`
	RewardID   string         `db:"reward_id"`
	UserID     string         `db:"user_id"`
	Status     string         `db:"status"`
	Notes      sql.NullString `db:"notes"`
	RedeemedAt time.Time      `db:"redeemed_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

func (r redemptionRow) toDomain() loyalty.Redemption {
	return loyalty.Redemption{
		ID: r.ID, RewardID: r.RewardID, UserID: r.UserID,
		Status: loyalty.RedemptionStatus(r.Status), Notes: r.Notes.String,
		RedeemedAt: r.RedeemedAt, UpdatedAt: r.UpdatedAt,
	}
}

type orderRow struct {
	ID        string          `db:"id"`
	RequestID string          `db:"request_id"`
	ClientID  string          `db:"client_id"`
	ProductID string          `db:"product_id"`
	Quantity  int             `db:"quantity"`
	Total     decimal.Decimal `db:"total"`
	CreatedAt time.Time       `db:"created_at"`
}

func (r orderRow) toDomain() loyalty.Order {
	return loyalty.Order{
		ID: r.ID, RequestID: r.RequestID, ClientID: r.ClientID,
		ProductID: r.ProductID, Quantity: r.Quantity, Total: r.Total,
		CreatedAt: r.CreatedAt,
	}
}

// =============================================================================
// PRODUCTS
// =============================================================================

type productsRepo struct {
	q queryer
}

func (r productsRepo) Get(ctx context.Context, id string) (*loyalty.Product, error) {
	var row productRow
	err := r.q.GetContext(ctx, &row, `
		SELECT id, sku, name, price, stock, reorder_level, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	p := row.toDomain()
	return &p, nil
}

func (r productsRepo) Save(ctx context.Context, p *loyalty.Product) error {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, price, stock, reorder_level, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			sku = EXCLUDED.sku,
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			stock = EXCLUDED.stock,
			reorder_level = EXCLUDED.reorder_level,
			updated_at = NOW()
	`, p.ID, p.SKU, p.Name, p.Price, p.Stock, p.ReorderLevel, createdAt)
	if err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}
	return nil
}

func (r productsRepo) UpdateStock(ctx context.Context, id string, expected, next int) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE products
		SET stock = $1, updated_at = NOW()
		WHERE id = $2 AND stock = $3
	`, next, id, expected)
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
	var rows []productRow
	err := r.q.SelectContext(ctx, &rows, `
		SELECT id, sku, name, price, stock, reorder_level, created_at, updated_at
		FROM products
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	out := make([]loyalty.Product, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// =============================================================================
// CLIENT INVENTORY
// =============================================================================

type inventoryRepo struct {
	q queryer
}

func (r inventoryRepo) Get(ctx context.Context, clientID, productKey string) (*loyalty.ClientInventory, error) {
	var row inventoryRow
	err := r.q.GetContext(ctx, &row, `
		SELECT client_id, product_key, product_name, sku,
		       initial_stock, current_stock, reorder_level, last_updated
		FROM client_inventory
		WHERE client_id = $1 AND product_key = $2
	`, clientID, productKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory: %w", err)
	}
	rec := row.toDomain()
	return &rec, nil
}

// Merge upserts in a single statement, so two racing first transfers
// cannot both insert: one inserts, the other lands on the conflict arm
// and accumulates.
func (r inventoryRepo) Merge(ctx context.Context, rec loyalty.ClientInventory) (*loyalty.ClientInventory, error) {
	var row inventoryRow
	err := r.q.GetContext(ctx, &row, `
		INSERT INTO client_inventory
			(client_id, product_key, product_name, sku, initial_stock, current_stock, reorder_level, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (client_id, product_key) DO UPDATE SET
			current_stock = client_inventory.current_stock + EXCLUDED.current_stock,
			product_name = EXCLUDED.product_name,
			sku = EXCLUDED.sku,
			last_updated = GREATEST(client_inventory.last_updated, EXCLUDED.last_updated)
		RETURNING client_id, product_key, product_name, sku,
		          initial_stock, current_stock, reorder_level, last_updated
	`, rec.ClientID, rec.ProductKey, rec.ProductName, rec.SKU,
		rec.InitialStock, rec.CurrentStock, rec.ReorderLevel, rec.LastUpdated)
	if err != nil {
		return nil, fmt.Errorf("failed to merge inventory: %w", err)
	}
	merged := row.toDomain()
	return &merged, nil
}

func (r inventoryRepo) ListByClient(ctx context.Context, clientID string) ([]loyalty.ClientInventory, error) {
	var rows []inventoryRow
	err := r.q.SelectContext(ctx, &rows, `
		SELECT client_id, product_key, product_name, sku,
		       initial_stock, current_stock, reorder_level, last_updated
		FROM client_inventory
		WHERE client_id = $1
		ORDER BY product_name
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list inventory: %w", err)
	}
	out := make([]loyalty.ClientInventory, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// =============================================================================
// PURCHASE REQUESTS
// =============================================================================

type requestsRepo struct {
	q queryer
}

func (r requestsRepo) Get(ctx context.Context, id string) (*loyalty.PurchaseRequest, error) {
	var row requestRow
	err := r.q.GetContext(ctx, &row, `
		SELECT id, product_id, client_id, quantity, price, notes,
		       status, admin_id, reason, order_id, created_at, updated_at
		FROM purchase_requests
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	req := row.toDomain()
	return &req, nil
}

func (r requestsRepo) Create(ctx context.Context, req *loyalty.PurchaseRequest) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO purchase_requests
			(id, product_id, client_id, quantity, price, notes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, req.ID, req.ProductID, req.ClientID, req.Quantity, req.Price,
		nullString(req.Notes), string(req.Status), req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

// Finalize writes the terminal fields only if the stored row is still
// pending. Under READ COMMITTED a blocked second caller re-evaluates
// the WHERE clause after the winner commits and changes nothing.
func (r requestsRepo) Finalize(ctx context.Context, req *loyalty.PurchaseRequest) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE purchase_requests
		SET status = $1, admin_id = $2, reason = $3, order_id = $4, updated_at = $5
		WHERE id = $6 AND status = 'pending'
	`, string(req.Status), nullString(req.AdminID), nullString(req.Reason),
		nullString(req.OrderID), req.UpdatedAt, req.ID)
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
	var rows []requestRow
	err := r.q.SelectContext(ctx, &rows, `
		SELECT id, product_id, client_id, quantity, price, notes,
		       status, admin_id, reason, order_id, created_at, updated_at
		FROM purchase_requests
		WHERE client_id = $1
		ORDER BY created_at DESC
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	out := make([]loyalty.PurchaseRequest, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r requestsRepo) ListPending(ctx context.Context) ([]loyalty.PurchaseRequest, error) {
	var rows []requestRow
	err := r.q.SelectContext(ctx, &rows, `
		SELECT id, product_id, client_id, quantity, price, notes,
		       status, admin_id, reason, order_id, created_at, updated_at
		FROM purchase_requests
		WHERE status = 'pending'
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	out := make([]loyalty.PurchaseRequest, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// =============================================================================
// POINTS
// =============================================================================

type pointsRepo struct {
	q       queryer
	locking bool
}

// Account reads balance and history. Inside a unit of work the balance
// row is created if missing and locked with FOR UPDATE, which is what
// serializes concurrent check+append pairs on one user.
func (r pointsRepo) Account(ctx context.Context, userID string) (*loyalty.PointsAccount, error) {
	account := &loyalty.PointsAccount{UserID: userID}

	if r.locking {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO points_accounts (user_id, balance)
			VALUES ($1, 0)
			ON CONFLICT (user_id) DO NOTHING
		`, userID); err != nil {
			return nil, fmt.Errorf("failed to ensure account: %w", err)
		}
		err := r.q.GetContext(ctx, &account.Balance, `
			SELECT balance FROM points_accounts WHERE user_id = $1 FOR UPDATE
		`, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to lock account: %w", err)
		}
	} else {
		err := r.q.GetContext(ctx, &account.Balance, `
			SELECT balance FROM points_accounts WHERE user_id = $1
		`, userID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to get account: %w", err)
		}
	}

	var rows []entryRow
	err := r.q.SelectContext(ctx, &rows, `
		SELECT id, user_id, amount, entry_type, source, source_id, description, created_at
		FROM points_entries
		WHERE user_id = $1
		ORDER BY created_at ASC, seq ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	for _, row := range rows {
		account.History = append(account.History, row.toDomain())
	}
	return account, nil
}

func (r pointsRepo) Append(ctx context.Context, userID string, entry loyalty.PointsEntry, newBalance int) error {
	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO points_accounts (user_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET balance = EXCLUDED.balance
	`, userID, newBalance); err != nil {
		return fmt.Errorf("failed to write balance: %w", err)
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO points_entries (id, user_id, amount, entry_type, source, source_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, userID, entry.Amount, string(entry.Type), entry.Source,
		nullString(entry.SourceID), nullString(entry.Description), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

// =============================================================================
// REWARDS
// =============================================================================

type rewardsRepo struct {
	q queryer
}

func (r rewardsRepo) Get(ctx context.Context, id string) (*loyalty.Reward, error) {
	var row rewardRow
	err := r.q.GetContext(ctx, &row, `
		SELECT id, client_id, name, description, points_cost, quantity,
		       is_active, expiry_date, created_at, updated_at
		FROM rewards
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reward: %w", err)
	}
	reward := row.toDomain()

	var redRows []redemptionRow
	err = r.q.SelectContext(ctx, &redRows, `
		SELECT id, reward_id, user_id, status, notes, redeemed_at, updated_at
		FROM redemptions
		WHERE reward_id = $1
		ORDER BY redeemed_at ASC, id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list redemptions: %w", err)
	}
	for _, rr := range redRows {
		reward.Redemptions = append(reward.Redemptions, rr.toDomain())
	}
	return &reward, nil
}

func (r rewardsRepo) Save(ctx context.Context, reward *loyalty.Reward) error {
	createdAt := reward.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO rewards (id, client_id, name, description, points_cost, quantity, is_active, expiry_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (id) DO UPDATE SET
			client_id = EXCLUDED.client_id,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			points_cost = EXCLUDED.points_cost,
			quantity = EXCLUDED.quantity,
			is_active = EXCLUDED.is_active,
			expiry_date = EXCLUDED.expiry_date,
			updated_at = NOW()
	`, reward.ID, nullString(reward.ClientID), reward.Name, nullString(reward.Description),
		reward.PointsCost, reward.Quantity, reward.IsActive, reward.ExpiryDate, createdAt)
	if err != nil {
		return fmt.Errorf("failed to save reward: %w", err)
	}
	return nil
}

func (r rewardsRepo) List(ctx context.Context) ([]loyalty.Reward, error) {
	var rows []rewardRow
	err := r.q.SelectContext(ctx, &rows, `
		SELECT id, client_id, name, description, points_cost, quantity,
		       is_active, expiry_date, created_at, updated_at
		FROM rewards
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rewards: %w", err)
	}
	out := make([]loyalty.Reward, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r rewardsRepo) DecrementQuantity(ctx context.Context, id string) (int, bool, error) {
	var remaining int
	err := r.q.GetContext(ctx, &remaining, `
		UPDATE rewards
		SET quantity = quantity - 1, updated_at = NOW()
		WHERE id = $1 AND quantity > 0
		RETURNING quantity
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to decrement quantity: %w", err)
	}
	return remaining, true, nil
}

func (r rewardsRepo) AppendRedemption(ctx context.Context, red loyalty.Redemption) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO redemptions (id, reward_id, user_id, status, notes, redeemed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, red.ID, red.RewardID, red.UserID, string(red.Status), nullString(red.Notes),
		red.RedeemedAt, red.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to append redemption: %w", err)
	}
	return nil
}

func (r rewardsRepo) UpdateRedemption(ctx context.Context, red loyalty.Redemption) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE redemptions
		SET status = $1, notes = $2, updated_at = $3
		WHERE id = $4 AND reward_id = $5
	`, string(red.Status), nullString(red.Notes), red.UpdatedAt, red.ID, red.RewardID)
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

// =============================================================================
// ORDERS
// =============================================================================

type ordersRepo struct {
	q queryer
}

func (r ordersRepo) Create(ctx context.Context, o *loyalty.Order) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO orders (id, request_id, client_id, product_id, quantity, total, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, o.ID, o.RequestID, o.ClientID, o.ProductID, o.Quantity, o.Total, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (r ordersRepo) ListByClient(ctx context.Context, clientID string) ([]loyalty.Order, error) {
	var rows []orderRow
	err := r.q.SelectContext(ctx, &rows, `
		SELECT id, request_id, client_id, product_id, quantity, total, created_at
		FROM orders
		WHERE client_id = $1
		ORDER BY created_at DESC
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	out := make([]loyalty.Order, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
