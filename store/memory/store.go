// Package memory provides an in-process Store for tests and single-node
// development. Each account has its own lock, so credits to different
// accounts never contend.
package memory

import (
	"context"
	"sync"

	"github.com/xraph/paywall"
	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/id"
	"github.com/xraph/paywall/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

type entry struct {
	mu sync.Mutex
	a  *account.Account
}

// Store implements store.Store in memory.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*entry
	closed   bool
}

// New creates an empty memory store.
func New() *Store {
	return &Store{
		accounts: make(map[string]*entry),
	}
}

func (s *Store) lookup(accountID id.AccountID) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, paywall.ErrStoreClosed
	}
	e, ok := s.accounts[accountID.String()]
	if !ok {
		return nil, paywall.ErrAccountNotFound
	}
	return e, nil
}

// Account Store implementation

func (s *Store) CreateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return paywall.ErrStoreClosed
	}
	if _, exists := s.accounts[a.ID.String()]; exists {
		return paywall.ErrAccountExists
	}
	s.accounts[a.ID.String()] = &entry{a: a.Clone()}
	return nil
}

func (s *Store) GetAccount(_ context.Context, accountID id.AccountID) (*account.Account, error) {
	e, err := s.lookup(accountID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.a.Clone(), nil
}

func (s *Store) ApplyCredit(_ context.Context, accountID id.AccountID, c *account.Credit) (*account.Account, error) {
	e, err := s.lookup(accountID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Apply to a copy so a validation failure leaves the stored account as is.
	next := e.a.Clone()
	applied, err := next.Apply(c)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, paywall.ErrAlreadyProcessed
	}
	e.a = next
	return next.Clone(), nil
}

func (s *Store) ConsumeQuota(_ context.Context, accountID id.AccountID, n int64) (*account.Account, error) {
	if n <= 0 {
		return nil, paywall.ErrInvalidInput
	}
	e, err := s.lookup(accountID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.a.PostQuotaUsed+n > e.a.PostQuotaTotal {
		return nil, paywall.ErrQuotaExceeded
	}
	e.a.PostQuotaUsed += n
	e.a.Version++
	e.a.Touch()
	return e.a.Clone(), nil
}

func (s *Store) ListOrders(_ context.Context, accountID id.AccountID, opts account.ListOpts) ([]*account.OrderRecord, error) {
	e, err := s.lookup(accountID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var result []*account.OrderRecord
	for i := len(e.a.OrderHistory) - 1; i >= 0; i-- {
		o := e.a.OrderHistory[i]
		if opts.Gateway != "" && o.Gateway != opts.Gateway {
			continue
		}
		result = append(result, &o)
	}
	return paginate(result, opts.Offset, opts.Limit), nil
}

// Core methods

func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return paywall.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	if items == nil {
		return []T{}
	}
	return items
}
