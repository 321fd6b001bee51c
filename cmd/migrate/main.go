package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/pcshop/internal/storage/postgres"
)

type options struct {
	direction string
	steps     int
	dsn       string
	timeout   time.Duration
}

func parseOptions() (options, error) {
	var opts options

	flag.StringVar(&opts.direction, "direction", "up", "migration direction: up|down|status")
	flag.IntVar(&opts.steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	flag.StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (fallback: PCSHOP_POSTGRES_DSN)")
	flag.DurationVar(&opts.timeout, "timeout", 30*time.Second, "total time budget for the run")
	flag.Parse()

	if strings.TrimSpace(opts.dsn) == "" {
		opts.dsn = strings.TrimSpace(os.Getenv("PCSHOP_POSTGRES_DSN"))
	}
	if opts.dsn == "" {
		return options{}, fmt.Errorf("PCSHOP_POSTGRES_DSN (or -dsn) is required")
	}

	opts.direction = strings.ToLower(strings.TrimSpace(opts.direction))
	return opts, nil
}

func main() {
	opts, err := parseOptions()
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	store, err := postgres.Open(ctx, opts.dsn)
	if err != nil {
		fail("open postgres store: %v", err)
	}
	defer store.Close()

	if err := runMigrate(ctx, store, opts); err != nil {
		fail("%v", err)
	}
}

func runMigrate(ctx context.Context, store *postgres.Store, opts options) error {
	switch opts.direction {
	case "up":
		if err := store.MigrateUp(ctx, opts.steps); err != nil {
			return fmt.Errorf("migrate up failed: %w", err)
		}
		return report(ctx, store, "migrate up ok")
	case "down":
		steps := opts.steps
		if steps <= 0 {
			steps = 1
		}
		if err := store.MigrateDown(ctx, steps); err != nil {
			return fmt.Errorf("migrate down failed: %w", err)
		}
		return report(ctx, store, "migrate down ok")
	case "status":
		return report(ctx, store, "migration status")
	default:
		return fmt.Errorf("unsupported direction: %s (use up|down|status)", opts.direction)
	}
}

func report(ctx context.Context, store *postgres.Store, prefix string) error {
	version, count, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	fmt.Printf("%s: version=%d applied=%d\n", prefix, version, count)
	return nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
