// Command cleanup runs one pass of the withdrawn-member cleanup, including the
// sweep of deleted posts, and exits.
// Use it from cron when the in-process scheduler is disabled.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"community/internal/cache"
	"community/internal/cascade"
	"community/internal/config"
	"community/internal/database"
	"community/internal/repository"
	"community/internal/scheduler"
)

func main() {
	batch := flag.Int("batch", 0, "Members processed per batch (0 keeps the default)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	cache.InitRedis(cfg.RedisURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := repository.NewStore(db)
	opts := []scheduler.Option{scheduler.WithSweeper(cascade.NewOrchestrator(store))}
	if *batch > 0 {
		opts = append(opts, scheduler.WithBatchSize(*batch))
	}
	report, err := scheduler.NewCleanup(store.Members, opts...).RunDailyCleanup(ctx)
	if err != nil {
		log.Fatalf("Cleanup failed: %v", err)
	}
	log.Printf("Cleanup finished: scanned=%d anonymized=%d skipped=%d failed=%d swept_posts=%d sweep_failed=%d",
		report.Scanned, report.Anonymized, report.Skipped, report.Failed, report.Sweep.Posts, report.Sweep.Failed)
}
