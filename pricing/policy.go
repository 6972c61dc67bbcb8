// Package pricing maps (role, product) pairs to a price and an entitlement
// delta. A Policy is frozen at construction: checkout quoting and payment
// validation read the same table and always agree.
package pricing

import (
	"errors"
	"fmt"
	"sort"

	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/types"
)

// ErrUnknownProduct is returned when no entry exists for a (role, product) key.
var ErrUnknownProduct = errors.New("pricing: unknown product")

// Product identifies something an account can buy.
type Product string

const (
	// ProductPostPack adds posting quota for editors and admins.
	ProductPostPack Product = "post_pack"
	// ProductProAccess unlocks pro content for readers.
	ProductProAccess Product = "pro_access"
)

// DefaultVersion is the version string of DefaultPolicy.
const DefaultVersion = "2024-01"

// Entry is one row of the pricing table.
type Entry struct {
	Role    account.Role  `json:"role" yaml:"role"`
	Product Product       `json:"product" yaml:"product"`
	Amount  types.Money   `json:"amount" yaml:"amount"`
	Delta   account.Delta `json:"delta" yaml:"delta"`
}

// Quote is the price an account pays for a product. Quotes are derived on
// every request and never stored.
type Quote struct {
	Role          account.Role  `json:"role"`
	Product       Product       `json:"product"`
	Amount        types.Money   `json:"amount"`
	Delta         account.Delta `json:"delta"`
	PolicyVersion string        `json:"policy_version"`
}

type key struct {
	role    account.Role
	product Product
}

// Policy is an immutable pricing table.
type Policy struct {
	version string
	entries map[key]Entry
}

// NewPolicy validates entries and freezes them into a Policy.
func NewPolicy(version string, entries ...Entry) (*Policy, error) {
	if version == "" {
		return nil, errors.New("pricing: empty policy version")
	}

	p := &Policy{
		version: version,
		entries: make(map[key]Entry, len(entries)),
	}
	for _, e := range entries {
		if !e.Role.Valid() {
			return nil, fmt.Errorf("pricing: unknown role %q", e.Role)
		}
		if e.Product == "" {
			return nil, errors.New("pricing: empty product")
		}
		e.Amount = types.New(e.Amount.Amount, e.Amount.Currency)
		if err := e.Amount.Validate(); err != nil {
			return nil, fmt.Errorf("pricing: %s/%s: %w", e.Role, e.Product, err)
		}
		if err := e.Delta.Validate(); err != nil {
			return nil, fmt.Errorf("pricing: %s/%s: %w", e.Role, e.Product, err)
		}
		if e.Delta.IsZero() {
			return nil, fmt.Errorf("pricing: %s/%s grants nothing", e.Role, e.Product)
		}

		k := key{e.Role, e.Product}
		if _, dup := p.entries[k]; dup {
			return nil, fmt.Errorf("pricing: duplicate entry %s/%s", e.Role, e.Product)
		}
		p.entries[k] = e
	}

	return p, nil
}

// MustPolicy is like NewPolicy but panics on error.
func MustPolicy(version string, entries ...Entry) *Policy {
	p, err := NewPolicy(version, entries...)
	if err != nil {
		panic(err)
	}
	return p
}

// DefaultEntries returns the platform's standard price list: a 100-post pack
// for editors and admins at $1.00 per post, and pro access for readers.
func DefaultEntries() []Entry {
	postPack := account.Delta{Quota: 100}
	return []Entry{
		{Role: account.RoleEditor, Product: ProductPostPack, Amount: types.USD(100).Multiply(100), Delta: postPack},
		{Role: account.RoleAdmin, Product: ProductPostPack, Amount: types.USD(100).Multiply(100), Delta: postPack},
		{Role: account.RoleReader, Product: ProductProAccess, Amount: types.USD(500), Delta: account.Delta{ProAccess: true}},
	}
}

// DefaultPolicy returns the standard price list.
func DefaultPolicy() *Policy {
	return MustPolicy(DefaultVersion, DefaultEntries()...)
}

// Version identifies the table. Quotes carry it so a confirmation can be
// traced back to the prices it was issued under.
func (p *Policy) Version() string { return p.version }

// Quote looks up the price of product for role.
func (p *Policy) Quote(role account.Role, product Product) (Quote, error) {
	e, ok := p.entries[key{role, product}]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s for %s", ErrUnknownProduct, product, role)
	}
	return Quote{
		Role:          e.Role,
		Product:       e.Product,
		Amount:        e.Amount,
		Delta:         e.Delta,
		PolicyVersion: p.version,
	}, nil
}

// Entries returns a copy of the table sorted by role then product.
func (p *Policy) Entries() []Entry {
	out := make([]Entry, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Role != out[j].Role {
			return out[i].Role < out[j].Role
		}
		return out[i].Product < out[j].Product
	})
	return out
}
