package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/paywall"
	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/id"
	paywallstore "github.com/xraph/paywall/store"
)

// compile-time interface check
var _ paywallstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables, indexes and triggers using the grove
// orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("paywall/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("paywall/sqlite: migration failed: %w", err)
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
	res, err := s.sdb.NewInsert(toAccountModel(a)).
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
	err := s.sdb.NewSelect(m).
		Where("id = ?", accountID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, paywall.ErrAccountNotFound
		}
		return nil, err
	}

	var orders []orderModel
	err = s.sdb.NewSelect(&orders).
		Where("account_id = ?", accountID.String()).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return fromAccountModel(m, orders)
}

// applyCreditSQL only inserts when the account exists. The credit trigger
// applies the delta as part of the same statement.
const applyCreditSQL = `
INSERT INTO paywall_orders (account_id, order_id, id, gateway, product, amount, currency, status, quota_delta, pro_access, created_at)
SELECT a.id, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
FROM paywall_accounts a
WHERE a.id = ?
ON CONFLICT (account_id, order_id) DO NOTHING
RETURNING account_id`

func (s *Store) ApplyCredit(ctx context.Context, accountID id.AccountID, c *account.Credit) (*account.Account, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	o := c.Order
	var inserted string
	err := s.sdb.NewRaw(applyCreditSQL,
		o.OrderID,
		o.ID.String(),
		string(o.Gateway),
		o.Product,
		o.Amount.Amount,
		o.Amount.Currency,
		string(o.Status),
		c.Delta.Quota,
		c.Delta.ProAccess,
		o.Timestamp.UTC(),
		accountID.String(),
	).Scan(ctx, &inserted)
	if err != nil && !isNoRows(err) {
		return nil, err
	}
	if err != nil || inserted == "" {
		return nil, s.missOrDuplicate(ctx, accountID)
	}
	return s.GetAccount(ctx, accountID)
}

func (s *Store) ConsumeQuota(ctx context.Context, accountID id.AccountID, n int64) (*account.Account, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: quota to consume must be positive", paywall.ErrInvalidInput)
	}

	res, err := s.sdb.NewUpdate((*accountModel)(nil)).
		Set("post_quota_used = post_quota_used + ?", n).
		Set("updated_at = ?", now()).
		Set("version = version + 1").
		Where("id = ?", accountID.String()).
		Where("post_quota_used + ? <= post_quota_total", n).
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
	q := s.sdb.NewSelect(&models).Where("account_id = ?", accountID.String())

	if opts.Gateway != "" {
		q = q.Where("gateway = ?", string(opts.Gateway))
	}
	switch {
	case opts.Limit > 0:
		q = q.Limit(opts.Limit)
	case opts.Offset > 0:
		// SQLite only accepts OFFSET after a LIMIT.
		q = q.Limit(math.MaxInt32)
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

func (s *Store) missOrDuplicate(ctx context.Context, accountID id.AccountID) error {
	var n int64
	err := s.sdb.NewRaw(`SELECT COUNT(*) FROM paywall_accounts WHERE id = ?`, accountID.String()).
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
