package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metagame/metagame/go/internal/dbconfig"
)

func main() {
	names := flag.String("names", "metagame", "comma-separated timer names")
	budget := flag.Duration("budget", 10*time.Hour, "starting time for each team")
	flag.Parse()

	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(context.Background(), cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	list := splitNames(*names)
	inserted, skipped, err := seed(context.Background(), pool, list, budget.Milliseconds(), time.Now().UTC())
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf(
		"Timers seed complete: %d total, %d inserted, %d skipped\n",
		len(list), inserted, skipped,
	)
}

// seed inserts paused timers in one batch; existing names are left untouched.
// Seeded rows skip the outbox since nobody can be watching a timer that did
// not exist yet.
func seed(ctx context.Context, pool *pgxpool.Pool, names []string, budgetMs int64, now time.Time) (inserted, skipped int, err error) {
	batch := &pgx.Batch{}
	for _, name := range names {
		batch.Queue(`
            INSERT INTO timers (
              id, name, orange_time_ms, purple_time_ms, active_team,
              is_paused, last_update_time, version, created_at, updated_at
            ) VALUES (
              $1, $2, $3, $3, NULL, TRUE, $4, 1, $4, $4
            )
            ON CONFLICT (name) DO NOTHING
        `, uuid.New(), name, budgetMs, now)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()

	for _, name := range names {
		tag, err := results.Exec()
		if err != nil {
			return inserted, skipped, fmt.Errorf("insert timer %s: %w", name, err)
		}
		if tag.RowsAffected() == 1 {
			inserted++
		} else {
			skipped++
		}
	}
	return inserted, skipped, nil
}

func splitNames(s string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}
