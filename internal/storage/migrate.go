package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate creates the schema if it does not exist. Safe to run on every
// start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS leads (
			id BIGSERIAL PRIMARY KEY,
			lead_id TEXT,
			offer_id TEXT,
			campaign TEXT,
			adset TEXT,
			ad TEXT,
			sub1 TEXT, sub2 TEXT, sub3 TEXT, sub4 TEXT,
			sub5 TEXT, sub6 TEXT, sub7 TEXT, sub8 TEXT,
			status TEXT,
			payout DOUBLE PRECISION,
			category TEXT,
			notification_type TEXT NOT NULL,
			utm_source TEXT,
			utm_medium TEXT,
			date TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_leads_lead_id ON leads (lead_id)`,
		`CREATE INDEX IF NOT EXISTS idx_leads_offer_id ON leads (offer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_leads_date ON leads (date)`,
		`CREATE INDEX IF NOT EXISTS idx_leads_hierarchy ON leads (campaign, adset, ad)`,
		`CREATE TABLE IF NOT EXISTS products (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			offer_id TEXT NOT NULL,
			account_name TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_products_offer_id ON products (offer_id)`,
		`CREATE TABLE IF NOT EXISTS campaign_stats (
			campaign TEXT NOT NULL,
			campaign_id TEXT,
			adset TEXT NOT NULL,
			adset_id TEXT,
			ad TEXT NOT NULL,
			ad_id TEXT,
			placement TEXT,
			site_source TEXT,
			leads BIGINT NOT NULL DEFAULT 0,
			conversoes BIGINT NOT NULL DEFAULT 0,
			trash BIGINT NOT NULL DEFAULT 0,
			cancel BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (campaign, adset, ad)
		)`,
		`CREATE TABLE IF NOT EXISTS page_visits (
			url TEXT NOT NULL,
			sub2 TEXT NOT NULL,
			sessions BIGINT NOT NULL DEFAULT 0,
			unique_users BIGINT NOT NULL DEFAULT 0,
			date TEXT NOT NULL,
			UNIQUE (url, date)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}
