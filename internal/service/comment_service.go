package service

import (
	"context"
	"log/slog"
	"time"

	"community/internal/cache"
	"community/internal/cascade"
	"community/internal/commenttree"
	"community/internal/middleware"
	"community/internal/models"
	"community/internal/repository"
	"community/internal/tombstone"
)

const maxCommentLen = 10000

type CommentService struct {
	store  *repository.Store
	now    func() time.Time
	logger *slog.Logger
}

// CreateCommentInput adds a comment, or a reply when ParentID is set.
type CreateCommentInput struct {
	MemberID uint
	PostID   uint
	ParentID *uint
	Content  string
}

type UpdateCommentInput struct {
	MemberID  uint
	CommentID uint
	Content   string
}

type DeleteCommentInput struct {
	MemberID  uint
	CommentID uint
}

func NewCommentService(store *repository.Store, now func() time.Time) *CommentService {
	if now == nil {
		now = time.Now
	}
	return &CommentService{store: store, now: now, logger: middleware.Logger}
}

func (s *CommentService) CreateComment(ctx context.Context, in CreateCommentInput) (*models.Comment, error) {
	if err := validateContent(in.Content, maxCommentLen); err != nil {
		return nil, err
	}

	comment := &models.Comment{
		PostID:          in.PostID,
		MemberID:        &in.MemberID,
		ParentCommentID: in.ParentID,
		Content:         in.Content,
	}
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		if _, err := livePostForUpdate(ctx, tx, in.PostID); err != nil {
			return err
		}
		if in.ParentID != nil {
			if err := checkParent(ctx, tx, in.PostID, *in.ParentID); err != nil {
				return err
			}
		}
		if err := tx.Comments.Create(ctx, comment); err != nil {
			return models.NewInternalError(err)
		}
		_, err := cascade.RecountComments(ctx, tx, in.PostID)
		return err
	})
	if err != nil {
		return nil, err
	}
	cache.InvalidatePost(ctx, in.PostID)
	return comment, nil
}

// checkParent accepts a live parent on the same post.
func checkParent(ctx context.Context, tx *repository.Store, postID, parentID uint) error {
	parent, err := tx.Comments.GetByIDIncludingDeleted(ctx, parentID)
	if err != nil {
		if repository.IsNotFound(err) {
			return models.NewValidationError("Parent comment does not exist")
		}
		return models.NewInternalError(err)
	}
	if parent.PostID != postID {
		return models.NewValidationError("Parent comment belongs to another post")
	}
	if parent.IsDeleted() {
		return models.NewValidationError("Cannot reply to a deleted comment")
	}
	return nil
}

// ListComments returns the comment tree of a live post.
func (s *CommentService) ListComments(ctx context.Context, postID uint) ([]*commenttree.Node, error) {
	if _, err := s.store.Posts.GetByID(ctx, postID); err != nil {
		if repository.IsNotFound(err) {
			return nil, models.NewNotFoundError("Post", postID)
		}
		return nil, models.NewInternalError(err)
	}
	return commentTree(ctx, s.store, postID, s.logger)
}

func (s *CommentService) UpdateComment(ctx context.Context, in UpdateCommentInput) (*models.Comment, error) {
	if err := validateContent(in.Content, maxCommentLen); err != nil {
		return nil, err
	}

	var comment *models.Comment
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		comment, err = ownedComment(ctx, tx, in.CommentID, in.MemberID)
		if err != nil {
			return err
		}
		if comment.IsDeleted() {
			return models.NewNotFoundError("Comment", in.CommentID)
		}
		if _, err := livePostForUpdate(ctx, tx, comment.PostID); err != nil {
			return err
		}
		comment.Content = in.Content
		if err := tx.Comments.Save(ctx, comment); err != nil {
			return models.NewInternalError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	cache.InvalidateComments(ctx, comment.PostID)
	return comment, nil
}

// DeleteComment tombstones the comment and overwrites its stored body with
// the redaction text. Replies keep pointing at it.
func (s *CommentService) DeleteComment(ctx context.Context, in DeleteCommentInput) (*models.Comment, error) {
	now := s.now()
	var comment *models.Comment
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		comment, err = ownedComment(ctx, tx, in.CommentID, in.MemberID)
		if err != nil {
			return err
		}
		if !tombstone.SoftDelete(&comment.SoftDelete, now) {
			return models.NewAlreadyDeletedError("Comment", in.CommentID)
		}
		comment.Content = tombstone.RedactedBody
		if err := tx.Comments.Save(ctx, comment); err != nil {
			return models.NewInternalError(err)
		}
		_, err = cascade.RecountComments(ctx, tx, comment.PostID)
		return err
	})
	if err != nil {
		return nil, err
	}
	cache.InvalidatePost(ctx, comment.PostID)
	return comment, nil
}

func ownedComment(ctx context.Context, tx *repository.Store, commentID, memberID uint) (*models.Comment, error) {
	comment, err := tx.Comments.GetByIDIncludingDeleted(ctx, commentID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, models.NewNotFoundError("Comment", commentID)
		}
		return nil, models.NewInternalError(err)
	}
	if !isOwner(comment.MemberID, memberID) {
		return nil, models.NewForbiddenError("You can only modify your own comments")
	}
	return comment, nil
}

// commentTree loads every comment of the post, deleted ones included, and
// rebuilds the displayed tree. The result is cached per post.
func commentTree(ctx context.Context, store *repository.Store, postID uint, logger *slog.Logger) ([]*commenttree.Node, error) {
	var roots []*commenttree.Node
	err := cache.Aside(ctx, cache.PostCommentsKey(postID), &roots, cache.PostCommentsTTL, func() error {
		comments, err := store.Comments.ListByPostIncludingDeleted(ctx, postID)
		if err != nil {
			return err
		}
		inputs := treeInputs(comments)
		warnForeignParents(ctx, logger, postID, inputs)
		roots = commenttree.Build(inputs)
		return nil
	})
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if roots == nil {
		roots = []*commenttree.Node{}
	}
	return roots, nil
}

func treeInputs(comments []*models.Comment) []commenttree.Input {
	inputs := make([]commenttree.Input, 0, len(comments))
	for _, c := range comments {
		in := commenttree.Input{
			ID:             c.ID,
			ParentID:       c.ParentCommentID,
			Deleted:        c.IsDeleted(),
			AuthorNickname: tombstone.DisplayName(c.Member),
			AuthorImageURL: tombstone.DisplayImage(c.Member),
			Content:        c.Content,
			CreatedAt:      c.CreatedAt,
			UpdatedAt:      c.UpdatedAt,
		}
		if c.Member != nil && !c.Member.IsDeleted() && !c.Member.Anonymized {
			in.AuthorID = c.MemberID
		}
		inputs = append(inputs, in)
	}
	return inputs
}

// warnForeignParents logs replies whose parent is not among the post's
// comments. They are shown under a placeholder.
func warnForeignParents(ctx context.Context, logger *slog.Logger, postID uint, inputs []commenttree.Input) {
	ids := make(map[uint]struct{}, len(inputs))
	for _, in := range inputs {
		ids[in.ID] = struct{}{}
	}
	for _, in := range inputs {
		if in.ParentID == nil {
			continue
		}
		if _, ok := ids[*in.ParentID]; !ok {
			logger.WarnContext(ctx, "comment parent missing from post",
				slog.Uint64("post_id", uint64(postID)),
				slog.Uint64("comment_id", uint64(in.ID)),
				slog.Uint64("parent_id", uint64(*in.ParentID)),
			)
		}
	}
}
