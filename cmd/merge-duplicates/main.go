package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/radiusdt/leadtrack/internal/config"
)

// conversionRow is the subset of a lead row the merge needs.
type conversionRow struct {
	ID       int64
	LeadID   *string
	OfferID  *string
	Sub1     *string
	Campaign *string
	Adset    *string
	Ad       *string
	Status   *string
	Payout   *float64
}

// Folds conversion rows that arrived as standalone records into the
// original lead row they belong to, then deletes the duplicate. The
// surviving row keeps its own date and created_at.
func main() {
	dsn := flag.String("dsn", "", "database connection string (defaults to env config)")
	dryRun := flag.Bool("dry-run", false, "report merges without writing")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if *dsn == "" {
		*dsn = cfg.Database.DSN()
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, *dsn)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, `
		SELECT id, lead_id, offer_id, sub1, campaign, adset, ad, status, payout
		FROM leads
		WHERE notification_type = 'conversao'
		ORDER BY created_at ASC, id ASC`)
	if err != nil {
		logger.Fatal("failed to list conversions", zap.Error(err))
	}

	var conversions []conversionRow
	for rows.Next() {
		var c conversionRow
		if err := rows.Scan(&c.ID, &c.LeadID, &c.OfferID, &c.Sub1, &c.Campaign, &c.Adset, &c.Ad, &c.Status, &c.Payout); err != nil {
			rows.Close()
			logger.Fatal("failed to scan conversion", zap.Error(err))
		}
		conversions = append(conversions, c)
	}
	rows.Close()
	if rows.Err() != nil {
		logger.Fatal("failed to read conversions", zap.Error(rows.Err()))
	}

	logger.Info("scanning for duplicates", zap.Int("conversions", len(conversions)))

	merged := 0
	for _, c := range conversions {
		survivorID, err := findSurvivor(ctx, pool, c)
		if err != nil {
			logger.Error("failed to match conversion", zap.Int64("id", c.ID), zap.Error(err))
			continue
		}
		if survivorID == 0 {
			continue
		}

		if *dryRun {
			logger.Info("would merge", zap.Int64("duplicate", c.ID), zap.Int64("into", survivorID))
			merged++
			continue
		}

		if err := merge(ctx, pool, c, survivorID); err != nil {
			logger.Error("failed to merge", zap.Int64("duplicate", c.ID), zap.Int64("into", survivorID), zap.Error(err))
			continue
		}
		merged++
	}

	logger.Info("merge complete", zap.Int("merged", merged), zap.Bool("dry_run", *dryRun))
}

// findSurvivor looks for an older lead row this conversion duplicates:
// by leadId first, then offerId plus hierarchy, then hierarchy alone.
func findSurvivor(ctx context.Context, pool *pgxpool.Pool, c conversionRow) (int64, error) {
	queries := []struct {
		where string
		args  []interface{}
	}{}

	if c.LeadID != nil && *c.LeadID != "" {
		queries = append(queries, struct {
			where string
			args  []interface{}
		}{"lead_id = $1", []interface{}{*c.LeadID}})
	}
	if c.OfferID != nil && *c.OfferID != "" {
		queries = append(queries, struct {
			where string
			args  []interface{}
		}{
			"offer_id = $1 AND COALESCE(campaign,'') = $2 AND COALESCE(adset,'') = $3 AND COALESCE(ad,'') = $4",
			[]interface{}{*c.OfferID, strVal(c.Campaign), strVal(c.Adset), strVal(c.Ad)},
		})
	}
	queries = append(queries, struct {
		where string
		args  []interface{}
	}{
		"COALESCE(sub1,'') = $1 AND COALESCE(campaign,'') = $2 AND COALESCE(adset,'') = $3 AND COALESCE(ad,'') = $4",
		[]interface{}{strVal(c.Sub1), strVal(c.Campaign), strVal(c.Adset), strVal(c.Ad)},
	})

	for _, q := range queries {
		sql := fmt.Sprintf(`
			SELECT id FROM leads
			WHERE notification_type = 'lead'
			  AND id <> %d
			  AND created_at <= (SELECT created_at FROM leads WHERE id = %d)
			  AND %s
			ORDER BY created_at ASC, id ASC
			LIMIT 1`, c.ID, c.ID, q.where)

		var id int64
		err := pool.QueryRow(ctx, sql, q.args...).Scan(&id)
		if err == pgx.ErrNoRows {
			continue
		}
		if err != nil {
			return 0, err
		}
		return id, nil
	}
	return 0, nil
}

func merge(ctx context.Context, pool *pgxpool.Pool, c conversionRow, survivorID int64) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE leads SET
			notification_type = 'conversao',
			status = COALESCE($2, status),
			payout = COALESCE($3, payout),
			lead_id = COALESCE(lead_id, $4),
			offer_id = COALESCE(offer_id, $5)
		WHERE id = $1`,
		survivorID, c.Status, c.Payout, c.LeadID, c.OfferID)
	if err != nil {
		return fmt.Errorf("failed to update survivor: %w", err)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM leads WHERE id = $1", c.ID); err != nil {
		return fmt.Errorf("failed to delete duplicate: %w", err)
	}

	return tx.Commit(ctx)
}

func strVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
