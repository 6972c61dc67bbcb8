package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the paywall store.
var Migrations = migrate.NewGroup("paywall")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_paywall_accounts",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS paywall_accounts (
    id               TEXT PRIMARY KEY,
    role             TEXT NOT NULL,
    post_quota_total BIGINT NOT NULL DEFAULT 5 CHECK (post_quota_total >= 0),
    post_quota_used  BIGINT NOT NULL DEFAULT 0 CHECK (post_quota_used >= 0),
    has_pro_access   BOOLEAN NOT NULL DEFAULT FALSE,
    version          BIGINT NOT NULL DEFAULT 0,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS paywall_accounts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_paywall_orders",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS paywall_orders (
    account_id TEXT NOT NULL REFERENCES paywall_accounts (id) ON DELETE CASCADE,
    order_id   TEXT NOT NULL,
    id         TEXT NOT NULL UNIQUE,
    gateway    TEXT NOT NULL,
    product    TEXT NOT NULL DEFAULT '',
    amount     BIGINT NOT NULL CHECK (amount >= 0),
    currency   TEXT NOT NULL,
    status     TEXT NOT NULL DEFAULT 'success',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (account_id, order_id)
);

CREATE INDEX IF NOT EXISTS idx_paywall_orders_history ON paywall_orders (account_id, created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_paywall_orders_gateway ON paywall_orders (account_id, gateway);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS paywall_orders`)
				return err
			},
		},
	)
}
