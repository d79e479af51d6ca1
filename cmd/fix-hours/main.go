package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/radiusdt/leadtrack/internal/config"
)

// Normalizes legacy date values that still carry a time portion with
// out-of-range components ("2024-05-01 24:00:00" style). Hour 24 rolls
// to the next day, minutes and seconds over 59 carry upward. The
// repaired value is the bare calendar date.
func main() {
	dsn := flag.String("dsn", "", "database connection string (defaults to env config)")
	dryRun := flag.Bool("dry-run", false, "report repairs without writing")
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

	rows, err := pool.Query(ctx,
		"SELECT id, date FROM leads WHERE date IS NOT NULL AND length(date) > 10")
	if err != nil {
		logger.Fatal("failed to list rows", zap.Error(err))
	}

	type pending struct {
		id   int64
		date string
	}
	var repairs []pending
	scanned := 0
	for rows.Next() {
		var id int64
		var raw string
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			logger.Fatal("failed to scan row", zap.Error(err))
		}
		scanned++
		fixed, ok := normalizeDate(raw)
		if !ok {
			logger.Warn("unparseable date left untouched", zap.Int64("id", id), zap.String("date", raw))
			continue
		}
		repairs = append(repairs, pending{id: id, date: fixed})
	}
	rows.Close()
	if rows.Err() != nil {
		logger.Fatal("failed to read rows", zap.Error(rows.Err()))
	}

	logger.Info("scanned legacy dates", zap.Int("scanned", scanned), zap.Int("repairable", len(repairs)))
	if *dryRun {
		return
	}

	updated := 0
	for _, p := range repairs {
		if _, err := pool.Exec(ctx, "UPDATE leads SET date = $2 WHERE id = $1", p.id, p.date); err != nil {
			logger.Error("failed to update row", zap.Int64("id", p.id), zap.Error(err))
			continue
		}
		updated++
	}
	logger.Info("dates repaired", zap.Int("updated", updated))
}

// normalizeDate parses "YYYY-MM-DD HH:MM:SS" with possibly out-of-range
// time components and returns the corrected calendar date.
func normalizeDate(raw string) (string, bool) {
	var year, month, day, hour, min, sec int
	n, err := fmt.Sscanf(raw, "%d-%d-%d %d:%d:%d", &year, &month, &day, &hour, &min, &sec)
	if err != nil && n < 3 {
		// Try the ISO separator variant.
		n, err = fmt.Sscanf(raw, "%d-%d-%dT%d:%d:%d", &year, &month, &day, &hour, &min, &sec)
		if err != nil && n < 3 {
			return "", false
		}
	}

	if sec >= 60 {
		min += sec / 60
		sec %= 60
	}
	if min >= 60 {
		hour += min / 60
		min %= 60
	}
	extraDays := 0
	if hour >= 24 {
		extraDays = hour / 24
		hour %= 24
	}

	// time.Date normalizes month/day overflow.
	t := time.Date(year, time.Month(month), day+extraDays, hour, min, sec, 0, time.UTC)
	return t.Format("2006-01-02"), true
}
