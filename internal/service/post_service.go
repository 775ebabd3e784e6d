package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"community/internal/cache"
	"community/internal/cascade"
	"community/internal/commenttree"
	"community/internal/middleware"
	"community/internal/models"
	"community/internal/repository"
	"community/internal/tombstone"
	"community/internal/validation"
)

const (
	maxPostContentLen = 20000
	defaultPageSize   = 20
	maxPageSize       = 100
)

type PostService struct {
	store   *repository.Store
	cascade *cascade.Orchestrator
	now     func() time.Time
	logger  *slog.Logger
}

type CreatePostInput struct {
	MemberID uint
	Title    string
	Content  string
}

// UpdatePostInput edits a post. KeepImageIDs lists the images that survive
// the edit; nil keeps every image, an empty slice drops them all.
type UpdatePostInput struct {
	MemberID     uint
	PostID       uint
	Title        string
	Content      string
	KeepImageIDs []uint
}

// PostSummary is a post as shown in listings.
type PostSummary struct {
	*models.Post
	AuthorNickname string `json:"author_nickname"`
	AuthorImageURL string `json:"author_image_url,omitempty"`
}

// PostDetail is a post with everything its page shows.
type PostDetail struct {
	PostSummary
	Images   []*models.Image     `json:"images"`
	Comments []*commenttree.Node `json:"comments"`
}

func NewPostService(store *repository.Store, orchestrator *cascade.Orchestrator, now func() time.Time) *PostService {
	if now == nil {
		now = time.Now
	}
	return &PostService{
		store:   store,
		cascade: orchestrator,
		now:     now,
		logger:  middleware.Logger,
	}
}

func summarize(post *models.Post) PostSummary {
	return PostSummary{
		Post:           post,
		AuthorNickname: tombstone.DisplayName(post.Member),
		AuthorImageURL: tombstone.DisplayImage(post.Member),
	}
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	title := strings.TrimSpace(in.Title)
	if err := validation.ValidateTitle(title); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validateContent(in.Content, maxPostContentLen); err != nil {
		return nil, err
	}

	post := &models.Post{
		MemberID: &in.MemberID,
		Title:    title,
		Content:  in.Content,
	}
	if err := s.store.Posts.Create(ctx, post); err != nil {
		return nil, models.NewInternalError(err)
	}
	return post, nil
}

// GetPostDetail counts a view and returns the post page. The post body and
// images come from the cache when present; counters and the comment tree are
// read fresh or from their own cache entry.
func (s *PostService) GetPostDetail(ctx context.Context, postID uint) (*PostDetail, error) {
	views, err := s.store.Posts.IncrementViewCount(ctx, postID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, models.NewNotFoundError("Post", postID)
		}
		return nil, models.NewInternalError(err)
	}

	var detail PostDetail
	err = cache.Aside(ctx, cache.PostKey(postID), &detail, cache.PostTTL, func() error {
		post, err := s.store.Posts.GetByID(ctx, postID)
		if err != nil {
			return err
		}
		images, err := s.store.Images.ListLiveByPost(ctx, postID)
		if err != nil {
			return err
		}
		detail = PostDetail{PostSummary: summarize(post), Images: images}
		return nil
	})
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, models.NewNotFoundError("Post", postID)
		}
		return nil, models.NewInternalError(err)
	}

	likes, err := s.store.Likes.CountLive(ctx, postID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	tree, err := commentTree(ctx, s.store, postID, s.logger)
	if err != nil {
		return nil, err
	}

	detail.ViewCount = views
	detail.LikeCount = int(likes)
	detail.Comments = tree
	if detail.Images == nil {
		detail.Images = []*models.Image{}
	}
	return &detail, nil
}

// ListPosts returns a page of live posts, newest first. page starts at 1.
func (s *PostService) ListPosts(ctx context.Context, page, size int) ([]PostSummary, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	posts, err := s.store.Posts.List(ctx, size, (page-1)*size)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	ids := make([]uint, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	likes, err := s.store.Likes.CountLiveByPosts(ctx, ids)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	out := make([]PostSummary, len(posts))
	for i, p := range posts {
		p.LikeCount = int(likes[p.ID])
		out[i] = summarize(p)
	}
	return out, nil
}

func (s *PostService) UpdatePost(ctx context.Context, in UpdatePostInput) (*models.Post, error) {
	title := strings.TrimSpace(in.Title)
	if err := validation.ValidateTitle(title); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validateContent(in.Content, maxPostContentLen); err != nil {
		return nil, err
	}

	now := s.now()
	var updated *models.Post
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		post, err := ownedPostForUpdate(ctx, tx, in.PostID, in.MemberID)
		if err != nil {
			return err
		}
		post.Title = title
		post.Content = in.Content
		if err := tx.Posts.Save(ctx, post); err != nil {
			return models.NewInternalError(err)
		}

		if in.KeepImageIDs != nil {
			if err := dropImagesExcept(ctx, tx, post.ID, in.KeepImageIDs, now); err != nil {
				return err
			}
		}
		updated = post
		return nil
	})
	if err != nil {
		return nil, err
	}
	cache.InvalidatePost(ctx, in.PostID)
	return updated, nil
}

func dropImagesExcept(ctx context.Context, tx *repository.Store, postID uint, keep []uint, now time.Time) error {
	images, err := tx.Images.ListLiveByPost(ctx, postID)
	if err != nil {
		return models.NewInternalError(err)
	}
	kept := make(map[uint]struct{}, len(keep))
	for _, id := range keep {
		kept[id] = struct{}{}
	}
	var dropped []*models.Image
	for _, img := range images {
		if _, ok := kept[img.ID]; ok {
			continue
		}
		if tombstone.SoftDelete(&img.SoftDelete, now) {
			dropped = append(dropped, img)
		}
	}
	if err := tx.Images.SaveAll(ctx, dropped); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// DeletePost lets the author delete a post together with its comments,
// images and likes.
func (s *PostService) DeletePost(ctx context.Context, memberID, postID uint) (cascade.Result, error) {
	post, err := s.store.Posts.GetByID(ctx, postID)
	if err != nil {
		if repository.IsNotFound(err) {
			return cascade.Result{}, models.NewNotFoundError("Post", postID)
		}
		return cascade.Result{}, models.NewInternalError(err)
	}
	if !isOwner(post.MemberID, memberID) {
		return cascade.Result{}, models.NewForbiddenError("You can only delete your own posts")
	}
	return s.cascade.DeletePost(ctx, postID, s.now())
}

// ownedPostForUpdate locks a live post inside tx and checks its author.
func ownedPostForUpdate(ctx context.Context, tx *repository.Store, postID, memberID uint) (*models.Post, error) {
	post, err := livePostForUpdate(ctx, tx, postID)
	if err != nil {
		return nil, err
	}
	if !isOwner(post.MemberID, memberID) {
		return nil, models.NewForbiddenError("You can only modify your own posts")
	}
	return post, nil
}

// livePostForUpdate locks the post inside tx so a concurrent cascade either
// runs before this write or sees its result.
func livePostForUpdate(ctx context.Context, tx *repository.Store, postID uint) (*models.Post, error) {
	post, err := tx.Posts.GetByIDForUpdate(ctx, postID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, models.NewNotFoundError("Post", postID)
		}
		return nil, models.NewInternalError(err)
	}
	if post.IsDeleted() {
		return nil, models.NewNotFoundError("Post", postID)
	}
	return post, nil
}

func isOwner(authorID *uint, memberID uint) bool {
	return authorID != nil && *authorID == memberID
}

func validateContent(content string, max int) error {
	if strings.TrimSpace(content) == "" {
		return models.NewValidationError("Content is required")
	}
	if len([]rune(content)) > max {
		return models.NewValidationError("Content is too long")
	}
	return nil
}
