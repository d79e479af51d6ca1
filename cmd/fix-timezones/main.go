package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/radiusdt/leadtrack/internal/config"
)

// Recomputes the attribution date for rows whose stored date disagrees
// with created_at's local calendar day. One-shot, idempotent.
func main() {
	dsn := flag.String("dsn", "", "database connection string (defaults to env config)")
	dryRun := flag.Bool("dry-run", false, "report mismatches without writing")
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

	tz := cfg.Tracking.Timezone
	localDay := fmt.Sprintf("to_char(created_at AT TIME ZONE '%s', 'YYYY-MM-DD')", tz)

	var mismatched int64
	row := pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM leads WHERE date IS NOT NULL AND date <> "+localDay)
	if err := row.Scan(&mismatched); err != nil {
		logger.Fatal("failed to count mismatches", zap.Error(err))
	}
	logger.Info("scanned leads", zap.Int64("mismatched", mismatched), zap.String("timezone", tz))

	if *dryRun || mismatched == 0 {
		return
	}

	tag, err := pool.Exec(ctx,
		"UPDATE leads SET date = "+localDay+" WHERE date IS NOT NULL AND date <> "+localDay)
	if err != nil {
		logger.Fatal("failed to update dates", zap.Error(err))
	}
	logger.Info("dates repaired", zap.Int64("updated", tag.RowsAffected()))
}
