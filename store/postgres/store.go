package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/paywall"
	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/id"
	paywallstore "github.com/xraph/paywall/store"
)

// compile-time interface check
var _ paywallstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
//
// Orders live in their own table keyed by (account_id, order_id). The
// processed transaction set is read back from the successful orders, so a
// credit is recorded exactly once by the primary key alone.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("paywall/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("paywall/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Account Store ====================

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)
	res, err := s.pg.NewInsert(m).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return paywall.ErrAccountExists
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	m := new(accountModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", accountID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, paywall.ErrAccountNotFound
		}
		return nil, err
	}

	var orders []orderModel
	err = s.pg.NewSelect(&orders).
		Where("account_id = $1", accountID.String()).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return fromAccountModel(m, orders)
}

// applyCreditSQL inserts the order row and bumps the account in one
// statement. The UPDATE only sees a row when the INSERT did, so a duplicate
// external id leaves the account untouched and returns nothing.
const applyCreditSQL = `
WITH ins AS (
    INSERT INTO paywall_orders (account_id, order_id, id, gateway, product, amount, currency, status, created_at)
    SELECT a.id, $2, $3, $4, $5, $6, $7, $8, $9
    FROM paywall_accounts a
    WHERE a.id = $1
    ON CONFLICT (account_id, order_id) DO NOTHING
    RETURNING account_id
)
UPDATE paywall_accounts
SET post_quota_total = post_quota_total + $10,
    has_pro_access   = has_pro_access OR $11,
    version          = version + 1,
    updated_at       = $9
WHERE id = (SELECT account_id FROM ins)
RETURNING version`

func (s *Store) ApplyCredit(ctx context.Context, accountID id.AccountID, c *account.Credit) (*account.Account, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	o := c.Order
	var version int64
	err := s.pg.NewRaw(applyCreditSQL,
		accountID.String(),
		o.OrderID,
		o.ID.String(),
		string(o.Gateway),
		o.Product,
		o.Amount.Amount,
		o.Amount.Currency,
		string(o.Status),
		o.Timestamp.UTC(),
		c.Delta.Quota,
		c.Delta.ProAccess,
	).Scan(ctx, &version)
	if err != nil && !isNoRows(err) {
		return nil, err
	}
	if err != nil || version == 0 {
		return nil, s.missOrDuplicate(ctx, accountID)
	}
	return s.GetAccount(ctx, accountID)
}

func (s *Store) ConsumeQuota(ctx context.Context, accountID id.AccountID, n int64) (*account.Account, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: quota to consume must be positive", paywall.ErrInvalidInput)
	}

	res, err := s.pg.NewUpdate((*accountModel)(nil)).
		Set("post_quota_used = post_quota_used + $1", n).
		Set("updated_at = $2", now()).
		Set("version = version + 1").
		Where("id = $3", accountID.String()).
		Where("post_quota_used + $4 <= post_quota_total", n).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		if _, err := s.GetAccount(ctx, accountID); err != nil {
			return nil, err
		}
		return nil, paywall.ErrQuotaExceeded
	}
	return s.GetAccount(ctx, accountID)
}

func (s *Store) ListOrders(ctx context.Context, accountID id.AccountID, opts account.ListOpts) ([]*account.OrderRecord, error) {
	var models []orderModel
	q := s.pg.NewSelect(&models).Where("account_id = $1", accountID.String())

	if opts.Gateway != "" {
		q = q.Where("gateway = $2", string(opts.Gateway))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*account.OrderRecord, len(models))
	for i := range models {
		o, err := fromOrderModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = o
	}
	return result, nil
}

// ==================== Helpers ====================

// missOrDuplicate explains why a credit wrote nothing.
func (s *Store) missOrDuplicate(ctx context.Context, accountID id.AccountID) error {
	var n int64
	err := s.pg.NewRaw(`SELECT COUNT(*) FROM paywall_accounts WHERE id = $1`, accountID.String()).
		Scan(ctx, &n)
	if err != nil {
		return err
	}
	if n == 0 {
		return paywall.ErrAccountNotFound
	}
	return paywall.ErrAlreadyProcessed
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
