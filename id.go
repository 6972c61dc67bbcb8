package paywall

import "github.com/xraph/paywall/id"

// ID is the primary identifier type for all paywall entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix

// AccountID identifies an account.
type AccountID = id.AccountID

// ParseAccountID parses an "acct_" TypeID.
var ParseAccountID = id.ParseAccountID
