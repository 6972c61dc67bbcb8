package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/paywall"
	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/id"
	paywallstore "github.com/xraph/paywall/store"
)

// Collection name constants.
const (
	colAccounts = "paywall_accounts"
)

// compile-time interface check
var _ paywallstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all paywall collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("paywall/mongo: migrate %s indexes: %w", col, err)
		}
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
	_, err := s.mdb.NewInsert(toAccountModel(a)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return paywall.ErrAccountExists
		}
		return fmt.Errorf("paywall/mongo: create account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": accountID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, paywall.ErrAccountNotFound
		}
		return nil, fmt.Errorf("paywall/mongo: get account: %w", err)
	}
	return fromAccountModel(&m)
}

// ApplyCredit is one findOneAndUpdate whose filter excludes documents that
// already hold the external id. Document-level atomicity covers the quota,
// the processed set and the order history together.
func (s *Store) ApplyCredit(ctx context.Context, accountID id.AccountID, c *account.Credit) (*account.Account, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	filter := bson.M{
		"_id":                       accountID.String(),
		"processed_transaction_ids": bson.M{"$ne": c.ExternalID()},
	}
	set := bson.M{"updated_at": now()}
	if c.Delta.ProAccess {
		set["has_pro_access"] = true
	}
	update := bson.M{
		"$inc":  bson.M{"post_quota_total": c.Delta.Quota, "version": int64(1)},
		"$push": bson.M{"processed_transaction_ids": c.ExternalID(), "order_history": toOrderModel(&c.Order)},
		"$set":  set,
	}

	var m accountModel
	err := s.mdb.Collection(colAccounts).
		FindOneAndUpdate(ctx, filter, update, options.FindOneAndUpdate().SetReturnDocument(options.After)).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, s.missOrDuplicate(ctx, accountID)
		}
		return nil, fmt.Errorf("paywall/mongo: apply credit: %w", err)
	}
	return fromAccountModel(&m)
}

func (s *Store) ConsumeQuota(ctx context.Context, accountID id.AccountID, n int64) (*account.Account, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: quota to consume must be positive", paywall.ErrInvalidInput)
	}

	filter := bson.M{
		"_id": accountID.String(),
		"$expr": bson.M{"$lte": bson.A{
			bson.M{"$add": bson.A{"$post_quota_used", n}},
			"$post_quota_total",
		}},
	}
	update := bson.M{
		"$inc": bson.M{"post_quota_used": n, "version": int64(1)},
		"$set": bson.M{"updated_at": now()},
	}

	var m accountModel
	err := s.mdb.Collection(colAccounts).
		FindOneAndUpdate(ctx, filter, update, options.FindOneAndUpdate().SetReturnDocument(options.After)).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			if _, err := s.GetAccount(ctx, accountID); err != nil {
				return nil, err
			}
			return nil, paywall.ErrQuotaExceeded
		}
		return nil, fmt.Errorf("paywall/mongo: consume quota: %w", err)
	}
	return fromAccountModel(&m)
}

// ListOrders reads the embedded history. It is bounded by the account's own
// order count, so slicing in memory is fine.
func (s *Store) ListOrders(ctx context.Context, accountID id.AccountID, opts account.ListOpts) ([]*account.OrderRecord, error) {
	a, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	result := make([]*account.OrderRecord, 0, len(a.OrderHistory))
	for i := len(a.OrderHistory) - 1; i >= 0; i-- {
		o := a.OrderHistory[i]
		if opts.Gateway != "" && o.Gateway != opts.Gateway {
			continue
		}
		result = append(result, &o)
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return []*account.OrderRecord{}, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(result) {
		result = result[:opts.Limit]
	}
	return result, nil
}

// ==================== Helpers ====================

func (s *Store) missOrDuplicate(ctx context.Context, accountID id.AccountID) error {
	n, err := s.mdb.Collection(colAccounts).CountDocuments(ctx, bson.M{"_id": accountID.String()})
	if err != nil {
		return fmt.Errorf("paywall/mongo: count account: %w", err)
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

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all paywall collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colAccounts: {
			{Keys: bson.D{{Key: "processed_transaction_ids", Value: 1}}},
			{Keys: bson.D{{Key: "order_history.gateway", Value: 1}}},
			{Keys: bson.D{{Key: "role", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}
}
