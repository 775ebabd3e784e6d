package service

import (
	"context"
	"errors"
	"time"

	"community/internal/models"
	"community/internal/repository"
	"community/internal/tombstone"
)

type LikeService struct {
	store *repository.Store
	now   func() time.Time
}

// LikeState is a member's like on a post after a toggle.
type LikeState struct {
	PostID    uint `json:"post_id"`
	Liked     bool `json:"liked"`
	LikeCount int  `json:"like_count"`
}

func NewLikeService(store *repository.Store, now func() time.Time) *LikeService {
	if now == nil {
		now = time.Now
	}
	return &LikeService{store: store, now: now}
}

// ToggleLike likes the post, or withdraws the member's live like. A like
// withdrawn by the member comes back on the next toggle; one removed with
// its post never does.
func (s *LikeService) ToggleLike(ctx context.Context, memberID, postID uint) (*LikeState, error) {
	now := s.now()
	state := &LikeState{PostID: postID}
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		if _, err := livePostForUpdate(ctx, tx, postID); err != nil {
			return err
		}

		like, err := tx.Likes.FindByPostAndMember(ctx, postID, memberID)
		switch {
		case repository.IsNotFound(err):
			like = &models.Like{PostID: postID, MemberID: memberID, DeletionReason: models.LikeDeletionNone}
			if err := tx.Likes.Create(ctx, like); err != nil {
				if repository.IsUniqueViolation(err) {
					return models.NewConflictError("Like changed concurrently", err)
				}
				return models.NewInternalError(err)
			}
			state.Liked = true
		case err != nil:
			return models.NewInternalError(err)
		case !like.IsDeleted():
			tombstone.SoftDeleteLike(like, models.LikeDeletionMemberAction, now)
			if err := tx.Likes.Save(ctx, like); err != nil {
				return models.NewInternalError(err)
			}
		default:
			if err := tombstone.RestoreLike(like); err != nil {
				if errors.Is(err, tombstone.ErrNotRestorable) {
					return models.NewNotRestorableError("Like was removed with its post")
				}
				return models.NewInternalError(err)
			}
			if err := tx.Likes.Save(ctx, like); err != nil {
				return models.NewInternalError(err)
			}
			state.Liked = true
		}

		count, err := tx.Likes.CountLive(ctx, postID)
		if err != nil {
			return models.NewInternalError(err)
		}
		state.LikeCount = int(count)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// CountLikes returns the live like count of a live post.
func (s *LikeService) CountLikes(ctx context.Context, postID uint) (int, error) {
	if _, err := s.store.Posts.GetByID(ctx, postID); err != nil {
		if repository.IsNotFound(err) {
			return 0, models.NewNotFoundError("Post", postID)
		}
		return 0, models.NewInternalError(err)
	}
	count, err := s.store.Likes.CountLive(ctx, postID)
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return int(count), nil
}
