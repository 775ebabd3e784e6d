package repository

import (
	"context"

	"community/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	GetByIDIncludingDeleted(ctx context.Context, id uint) (*models.Post, error)
	GetByIDForUpdate(ctx context.Context, id uint) (*models.Post, error)
	List(ctx context.Context, limit, offset int) ([]*models.Post, error)
	ListIDsByMember(ctx context.Context, memberID uint) ([]uint, error)
	ListDeletedWithLiveDependents(ctx context.Context, afterID uint, limit int) ([]uint, error)
	Save(ctx context.Context, post *models.Post) error
	IncrementViewCount(ctx context.Context, id uint) (int, error)
	RefreshCommentCount(ctx context.Context, id uint) (int, error)
}

// postRepository implements PostRepository
type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(post).Error
}

// GetByID returns a live post with its author.
func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	err := r.db.WithContext(ctx).
		Preload("Member").
		Where("deleted = ?", false).
		First(&post, id).Error
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) GetByIDIncludingDeleted(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).Preload("Member").First(&post, id).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

// GetByIDForUpdate reads a post, deleted or not, holding a row lock for the
// rest of the transaction on databases that support one.
func (r *postRepository) GetByIDForUpdate(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	q := r.db.WithContext(ctx)
	if isPostgres(r.db) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.First(&post, id).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) List(ctx context.Context, limit, offset int) ([]*models.Post, error) {
	var posts []*models.Post
	err := r.db.WithContext(ctx).
		Preload("Member").
		Where("deleted = ?", false).
		Order("created_at desc").
		Order("id desc").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	return posts, err
}

func (r *postRepository) Save(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(post).Error
}

// IncrementViewCount bumps the view counter of a live post and returns the
// new value. A missing or deleted post yields gorm.ErrRecordNotFound.
func (r *postRepository) IncrementViewCount(ctx context.Context, id uint) (int, error) {
	db := r.db.WithContext(ctx)
	res := db.Model(&models.Post{}).
		Where("id = ? AND deleted = ?", id, false).
		UpdateColumn("view_count", gorm.Expr("view_count + ?", 1))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	var views int
	err := db.Model(&models.Post{}).Where("id = ?", id).Select("view_count").Scan(&views).Error
	return views, err
}

// RefreshCommentCount recomputes comment_count from the live comments of the
// post and returns the stored value.
func (r *postRepository) RefreshCommentCount(ctx context.Context, id uint) (int, error) {
	db := r.db.WithContext(ctx)
	err := db.Exec(
		"UPDATE posts SET comment_count = (SELECT COUNT(*) FROM comments WHERE comments.post_id = ? AND comments.deleted = ?) WHERE id = ?",
		id, false, id,
	).Error
	if err != nil {
		return 0, err
	}
	var count int
	err = db.Model(&models.Post{}).Where("id = ?", id).Select("comment_count").Scan(&count).Error
	return count, err
}

// ListIDsByMember returns the ids of the live posts written by the member.
func (r *postRepository) ListIDsByMember(ctx context.Context, memberID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("member_id = ? AND deleted = ?", memberID, false).
		Pluck("id", &ids).Error
	return ids, err
}

// ListDeletedWithLiveDependents returns, in id order, the ids of deleted posts
// that still have a live comment, image or like.
func (r *postRepository) ListDeletedWithLiveDependents(ctx context.Context, afterID uint, limit int) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("posts.deleted = ? AND posts.id > ?", true, afterID).
		Where(
			"EXISTS (SELECT 1 FROM comments WHERE comments.post_id = posts.id AND comments.deleted = ?)"+
				" OR EXISTS (SELECT 1 FROM images WHERE images.post_id = posts.id AND images.deleted = ?)"+
				" OR EXISTS (SELECT 1 FROM likes WHERE likes.post_id = posts.id AND likes.deleted = ?)",
			false, false, false,
		).
		Order("posts.id").
		Limit(limit).
		Pluck("posts.id", &ids).Error
	return ids, err
}
