// Package scheduler runs the daily job that anonymizes members whose
// withdrawal grace window has elapsed and sweeps leftovers of deleted posts.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"community/internal/cache"
	"community/internal/cascade"
	"community/internal/middleware"
	"community/internal/observability"
	"community/internal/repository"
	"community/internal/tombstone"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// DefaultHour is the local hour the cleanup fires at.
	DefaultHour = 3
	// DefaultBatchSize bounds how many members are read per page.
	DefaultBatchSize = 100

	leaseTTL = 23 * time.Hour
)

// Report summarizes one cleanup pass.
type Report struct {
	Scanned    int `json:"scanned"`
	Anonymized int `json:"anonymized"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
	// Sweep is empty unless a Sweeper is configured.
	Sweep cascade.SweepReport `json:"sweep"`
}

// Sweeper tombstones live dependents left behind by post deletions.
type Sweeper interface {
	SweepDeletedPosts(ctx context.Context, now time.Time, batchSize int) (cascade.SweepReport, error)
}

// Cleanup anonymizes expired withdrawals.
type Cleanup struct {
	members   repository.MemberRepository
	now       func() time.Time
	hour      int
	batchSize int
	owner     string
	logger    *slog.Logger
	suffix    func() string
	sweeper   Sweeper
}

// Option configures a Cleanup.
type Option func(*Cleanup)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cleanup) { c.now = now }
}

// WithHour sets the hour of day the background loop fires at.
func WithHour(hour int) Option {
	return func(c *Cleanup) { c.hour = hour }
}

// WithBatchSize sets the page size used when scanning members.
func WithBatchSize(n int) Option {
	return func(c *Cleanup) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithSweeper also sweeps deleted posts after the members are processed.
func WithSweeper(s Sweeper) Option {
	return func(c *Cleanup) { c.sweeper = s }
}

// NewCleanup creates a Cleanup over members.
func NewCleanup(members repository.MemberRepository, opts ...Option) *Cleanup {
	host, _ := os.Hostname()
	c := &Cleanup{
		members:   members,
		now:       time.Now,
		hour:      DefaultHour,
		batchSize: DefaultBatchSize,
		owner:     host + ":" + uuid.NewString(),
		logger:    middleware.Logger,
		suffix:    func() string { return uuid.NewString()[:6] },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunDailyCleanup anonymizes every member withdrawn longer than the grace
// window. A failure on one member is logged and counted; the pass goes on.
// Running it twice in a row changes nothing the second time.
func (c *Cleanup) RunDailyCleanup(ctx context.Context) (Report, error) {
	span, ctx := observability.NewSpan(ctx, "scheduler.RunDailyCleanup")
	defer span.End()

	now := c.now()
	threshold := tombstone.GraceThreshold(now)

	var (
		report Report
		after  uint
	)
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		batch, err := c.members.ListExpiredDeleted(ctx, threshold, after, c.batchSize)
		if err != nil {
			span.SetError(err)
			observability.CleanupRuns.WithLabelValues(observability.OutcomeError).Inc()
			return report, err
		}
		if len(batch) == 0 {
			break
		}

		for _, m := range batch {
			after = m.ID
			report.Scanned++

			changed, err := tombstone.Anonymize(m, now, c.suffix())
			if err != nil || !changed {
				report.Skipped++
				continue
			}

			err = c.members.CompareAndAnonymize(ctx, m, threshold)
			switch {
			case errors.Is(err, repository.ErrStaleWrite):
				// Restored or anonymized by someone else since the read.
				report.Skipped++
			case err != nil:
				report.Failed++
				c.logger.ErrorContext(ctx, "failed to anonymize member",
					slog.Uint64("member_id", uint64(m.ID)),
					slog.String("error", err.Error()),
				)
			default:
				report.Anonymized++
				observability.MemberAnonymized.Inc()
			}
		}

		if len(batch) < c.batchSize {
			break
		}
	}

	if c.sweeper != nil {
		sweep, err := c.sweeper.SweepDeletedPosts(ctx, now, c.batchSize)
		report.Sweep = sweep
		if err != nil {
			// Members are already done; the next pass retries the sweep.
			c.logger.ErrorContext(ctx, "deleted post sweep failed", slog.String("error", err.Error()))
		}
	}

	span.AddAttributes(
		attribute.Int("cleanup.scanned", report.Scanned),
		attribute.Int("cleanup.anonymized", report.Anonymized),
		attribute.Int("cleanup.failed", report.Failed),
		attribute.Int("cleanup.swept_posts", report.Sweep.Posts),
	)
	observability.CleanupRuns.WithLabelValues(observability.OutcomeSuccess).Inc()
	c.logger.InfoContext(ctx, "member cleanup finished",
		slog.Int("scanned", report.Scanned),
		slog.Int("anonymized", report.Anonymized),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
		slog.Int("swept_posts", report.Sweep.Posts),
	)
	return report, nil
}

// Start runs the cleanup once a day at the configured hour until ctx is
// cancelled. When Redis is configured only one replica runs per day.
func (c *Cleanup) Start(ctx context.Context) {
	for {
		wait := time.Until(nextRun(c.now(), c.hour))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		c.runOnce(ctx)
	}
}

func (c *Cleanup) runOnce(ctx context.Context) {
	day := c.now().Format("2006-01-02")
	ok, err := cache.AcquireLease(ctx, "cleanup:"+day, c.owner, leaseTTL)
	if err != nil {
		// Without a working lease every replica may run; the job is idempotent.
		c.logger.WarnContext(ctx, "cleanup lease unavailable", slog.String("error", err.Error()))
	} else if !ok {
		c.logger.InfoContext(ctx, "cleanup already claimed by another replica", slog.String("day", day))
		return
	}

	if _, err := c.RunDailyCleanup(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.ErrorContext(ctx, "member cleanup failed", slog.String("error", err.Error()))
	}
}

// nextRun returns the first time strictly after now at hour:00 in now's
// location.
func nextRun(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
