// Package cascade propagates a post deletion to the post's comments, images
// and likes inside one transaction.
package cascade

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"community/internal/cache"
	"community/internal/middleware"
	"community/internal/models"
	"community/internal/observability"
	"community/internal/repository"
	"community/internal/tombstone"

	"go.opentelemetry.io/otel/attribute"
)

// Result counts the dependent rows a cascade actually tombstoned.
type Result struct {
	Comments int `json:"comments"`
	Images   int `json:"images"`
	Likes    int `json:"likes"`
}

// Orchestrator runs post deletion cascades against a store.
type Orchestrator struct {
	store  *repository.Store
	logger *slog.Logger
}

// NewOrchestrator creates an Orchestrator over store.
func NewOrchestrator(store *repository.Store) *Orchestrator {
	return &Orchestrator{store: store, logger: middleware.Logger}
}

// DeletePost tombstones the post and all of its live dependents atomically.
// A missing or already deleted post yields NOT_FOUND; store failures yield
// INTERNAL_ERROR and leave every row untouched.
func (o *Orchestrator) DeletePost(ctx context.Context, postID uint, now time.Time) (Result, error) {
	span, ctx := observability.NewSpan(ctx, "cascade.DeletePost", attribute.Int64("post.id", int64(postID)))
	defer span.End()
	defer observability.TrackCascade()()

	var result Result
	err := o.store.Transaction(ctx, func(tx *repository.Store) error {
		post, err := tx.Posts.GetByIDForUpdate(ctx, postID)
		if err != nil {
			if repository.IsNotFound(err) {
				return models.NewNotFoundError("Post", postID)
			}
			return models.NewInternalError(fmt.Errorf("load post %d: %w", postID, err))
		}
		if post.IsDeleted() {
			return models.NewNotFoundError("Post", postID)
		}

		result, err = tombstoneDependents(ctx, tx, postID, now)
		if err != nil {
			return err
		}

		tombstone.SoftDelete(&post.SoftDelete, now)
		post.CommentCount = 0
		if err := tx.Posts.Save(ctx, post); err != nil {
			return models.NewInternalError(fmt.Errorf("save post %d: %w", postID, err))
		}
		return nil
	})
	if err != nil {
		span.SetError(err)
		outcome := observability.OutcomeError
		if models.ErrorCode(err) == models.CodeNotFound {
			outcome = observability.OutcomeRejected
		}
		observability.CascadeRuns.WithLabelValues(outcome).Inc()
		return Result{}, err
	}

	cache.InvalidatePost(ctx, postID)
	record(result)
	span.AddAttributes(
		attribute.Int("cascade.comments", result.Comments),
		attribute.Int("cascade.images", result.Images),
		attribute.Int("cascade.likes", result.Likes),
	)
	observability.CascadeRuns.WithLabelValues(observability.OutcomeSuccess).Inc()
	o.logger.InfoContext(ctx, "post deleted",
		slog.Uint64("post_id", uint64(postID)),
		slog.Int("comments", result.Comments),
		slog.Int("images", result.Images),
		slog.Int("likes", result.Likes),
	)
	return result, nil
}

// TombstoneDependents tombstones the live dependents of a post without
// touching the post row. It is safe to re-run: rows already tombstoned are
// skipped and keep their original deletion time. Use it to finish a cascade
// that failed part way or to sweep rows written after the cascade read.
func (o *Orchestrator) TombstoneDependents(ctx context.Context, postID uint, now time.Time) (Result, error) {
	var result Result
	err := o.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		result, err = tombstoneDependents(ctx, tx, postID, now)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	if result != (Result{}) {
		cache.InvalidatePost(ctx, postID)
		record(result)
	}
	return result, nil
}

// DefaultSweepBatch bounds how many deleted posts a sweep reads per page.
const DefaultSweepBatch = 100

// SweepReport summarizes a pass over deleted posts that still had live
// dependents.
type SweepReport struct {
	Posts  int `json:"posts"`
	Failed int `json:"failed"`
	Result
}

// SweepDeletedPosts runs TombstoneDependents on every deleted post that still
// has a live comment, image or like. A failing post is logged and counted and
// the sweep moves on.
func (o *Orchestrator) SweepDeletedPosts(ctx context.Context, now time.Time, batchSize int) (SweepReport, error) {
	if batchSize <= 0 {
		batchSize = DefaultSweepBatch
	}

	var (
		report SweepReport
		after  uint
	)
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		ids, err := o.store.Posts.ListDeletedWithLiveDependents(ctx, after, batchSize)
		if err != nil {
			return report, models.NewInternalError(fmt.Errorf("list deleted posts: %w", err))
		}

		for _, id := range ids {
			after = id
			result, err := o.TombstoneDependents(ctx, id, now)
			if err != nil {
				report.Failed++
				o.logger.ErrorContext(ctx, "failed to sweep deleted post",
					slog.Uint64("post_id", uint64(id)),
					slog.String("error", err.Error()),
				)
				continue
			}
			report.Posts++
			report.Comments += result.Comments
			report.Images += result.Images
			report.Likes += result.Likes
		}

		if len(ids) < batchSize {
			break
		}
	}

	if report.Posts > 0 || report.Failed > 0 {
		o.logger.WarnContext(ctx, "swept dependents of deleted posts",
			slog.Int("posts", report.Posts),
			slog.Int("failed", report.Failed),
			slog.Int("comments", report.Comments),
			slog.Int("images", report.Images),
			slog.Int("likes", report.Likes),
		)
	}
	return report, nil
}

func tombstoneDependents(ctx context.Context, tx *repository.Store, postID uint, now time.Time) (Result, error) {
	var result Result
	comments, err := tx.Comments.ListLiveByPost(ctx, postID)
	if err != nil {
		return result, models.NewInternalError(fmt.Errorf("list comments of post %d: %w", postID, err))
	}
	images, err := tx.Images.ListLiveByPost(ctx, postID)
	if err != nil {
		return result, models.NewInternalError(fmt.Errorf("list images of post %d: %w", postID, err))
	}
	likes, err := tx.Likes.ListLiveByPost(ctx, postID)
	if err != nil {
		return result, models.NewInternalError(fmt.Errorf("list likes of post %d: %w", postID, err))
	}

	changedComments := make([]*models.Comment, 0, len(comments))
	for _, c := range comments {
		if tombstone.SoftDelete(&c.SoftDelete, now) {
			changedComments = append(changedComments, c)
		}
	}
	changedImages := make([]*models.Image, 0, len(images))
	for _, img := range images {
		if tombstone.SoftDelete(&img.SoftDelete, now) {
			changedImages = append(changedImages, img)
		}
	}
	changedLikes := make([]*models.Like, 0, len(likes))
	for _, l := range likes {
		if tombstone.SoftDeleteLike(l, models.LikeDeletionPostDeletion, now) {
			changedLikes = append(changedLikes, l)
		}
	}

	if err := tx.Comments.SaveAll(ctx, changedComments); err != nil {
		return result, models.NewInternalError(fmt.Errorf("save comments of post %d: %w", postID, err))
	}
	if err := tx.Images.SaveAll(ctx, changedImages); err != nil {
		return result, models.NewInternalError(fmt.Errorf("save images of post %d: %w", postID, err))
	}
	if err := tx.Likes.SaveAll(ctx, changedLikes); err != nil {
		return result, models.NewInternalError(fmt.Errorf("save likes of post %d: %w", postID, err))
	}
	if len(changedComments) > 0 {
		if _, err := RecountComments(ctx, tx, postID); err != nil {
			return result, err
		}
	}

	return Result{
		Comments: len(changedComments),
		Images:   len(changedImages),
		Likes:    len(changedLikes),
	}, nil
}

// RecountComments recomputes the post's comment count from its live
// comments and returns it. Comment counts are never adjusted incrementally.
func RecountComments(ctx context.Context, store *repository.Store, postID uint) (int, error) {
	count, err := store.Posts.RefreshCommentCount(ctx, postID)
	if err != nil {
		return 0, models.NewInternalError(fmt.Errorf("recount comments of post %d: %w", postID, err))
	}
	return count, nil
}

func record(r Result) {
	observability.CascadeRows.WithLabelValues("comments").Add(float64(r.Comments))
	observability.CascadeRows.WithLabelValues("images").Add(float64(r.Images))
	observability.CascadeRows.WithLabelValues("likes").Add(float64(r.Likes))
}
