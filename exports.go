package paywall

import (
	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/pricing"
	"github.com/xraph/paywall/types"
)

// Re-export common types for convenience so users don't have to import the
// leaf packages for everyday calls.

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// Role is re-exported from account package.
type Role = account.Role

// Gateway is re-exported from account package.
type Gateway = account.Gateway

// Product is re-exported from pricing package.
type Product = pricing.Product

// Roles, gateways and products.
const (
	RoleReader = account.RoleReader
	RoleEditor = account.RoleEditor
	RoleAdmin  = account.RoleAdmin

	GatewayCard   = account.GatewayCard
	GatewaySigned = account.GatewaySigned
	GatewayWallet = account.GatewayWallet

	ProductPostPack  = pricing.ProductPostPack
	ProductProAccess = pricing.ProductProAccess
)

// Re-export Money constructors
var (
	USD  = types.USD
	EUR  = types.EUR
	INR  = types.INR
	BDT  = types.BDT
	JPY  = types.JPY
	Zero = types.Zero
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
