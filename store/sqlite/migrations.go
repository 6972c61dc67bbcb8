package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the paywall store (SQLite).
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
    post_quota_total INTEGER NOT NULL DEFAULT 5 CHECK (post_quota_total >= 0),
    post_quota_used  INTEGER NOT NULL DEFAULT 0 CHECK (post_quota_used >= 0),
    has_pro_access   INTEGER NOT NULL DEFAULT 0,
    version          INTEGER NOT NULL DEFAULT 0,
    created_at       TIMESTAMP NOT NULL DEFAULT (datetime('now')),
    updated_at       TIMESTAMP NOT NULL DEFAULT (datetime('now'))
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
    account_id  TEXT NOT NULL REFERENCES paywall_accounts (id) ON DELETE CASCADE,
    order_id    TEXT NOT NULL,
    id          TEXT NOT NULL UNIQUE,
    gateway     TEXT NOT NULL,
    product     TEXT NOT NULL DEFAULT '',
    amount      INTEGER NOT NULL CHECK (amount >= 0),
    currency    TEXT NOT NULL,
    status      TEXT NOT NULL DEFAULT 'success',
    quota_delta INTEGER NOT NULL DEFAULT 0 CHECK (quota_delta >= 0),
    pro_access  INTEGER NOT NULL DEFAULT 0,
    created_at  TIMESTAMP NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (account_id, order_id)
);

CREATE INDEX IF NOT EXISTS idx_paywall_orders_history ON paywall_orders (account_id, created_at DESC, id DESC);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS paywall_orders`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_paywall_credit_trigger",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				// The trigger runs inside the inserting statement, so an order
				// row and its grant commit together or not at all.
				_, err := exec.Exec(ctx, `
CREATE TRIGGER IF NOT EXISTS trg_paywall_orders_credit
AFTER INSERT ON paywall_orders
WHEN NEW.status = 'success'
BEGIN
    UPDATE paywall_accounts
    SET post_quota_total = post_quota_total + NEW.quota_delta,
        has_pro_access   = (has_pro_access OR NEW.pro_access),
        version          = version + 1,
        updated_at       = NEW.created_at
    WHERE id = NEW.account_id;
END;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TRIGGER IF EXISTS trg_paywall_orders_credit`)
				return err
			},
		},
	)
}
