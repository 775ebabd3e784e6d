package repository

import (
	"context"

	"community/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CommentRepository defines interface for comment operations
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id uint) (*models.Comment, error)
	GetByIDIncludingDeleted(ctx context.Context, id uint) (*models.Comment, error)
	ListByPostIncludingDeleted(ctx context.Context, postID uint) ([]*models.Comment, error)
	ListLiveByPost(ctx context.Context, postID uint) ([]*models.Comment, error)
	CountLive(ctx context.Context, postID uint) (int64, error)
	ListPostIDsByMember(ctx context.Context, memberID uint) ([]uint, error)
	Save(ctx context.Context, comment *models.Comment) error
	SaveAll(ctx context.Context, comments []*models.Comment) error
}

type commentRepository struct {
	db *gorm.DB
}

// NewCommentRepository creates a new CommentRepository
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(comment).Error
}

func (r *commentRepository) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).Preload("Member").Where("deleted = ?", false).First(&comment, id).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}

func (r *commentRepository) GetByIDIncludingDeleted(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).Preload("Member").First(&comment, id).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}

// ListByPostIncludingDeleted returns every comment of the post, tombstoned
// ones included, oldest first.
func (r *commentRepository) ListByPostIncludingDeleted(ctx context.Context, postID uint) ([]*models.Comment, error) {
	var comments []*models.Comment
	err := r.db.WithContext(ctx).
		Preload("Member").
		Where("post_id = ?", postID).
		Order("created_at asc").
		Order("id asc").
		Find(&comments).Error
	return comments, err
}

func (r *commentRepository) ListLiveByPost(ctx context.Context, postID uint) ([]*models.Comment, error) {
	var comments []*models.Comment
	err := r.db.WithContext(ctx).
		Where("post_id = ? AND deleted = ?", postID, false).
		Order("id asc").
		Find(&comments).Error
	return comments, err
}

func (r *commentRepository) CountLive(ctx context.Context, postID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Comment{}).
		Where("post_id = ? AND deleted = ?", postID, false).
		Count(&count).Error
	return count, err
}

func (r *commentRepository) Save(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(comment).Error
}

func (r *commentRepository) SaveAll(ctx context.Context, comments []*models.Comment) error {
	if len(comments) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(&comments).Error
}

// ListPostIDsByMember returns the posts the member commented on.
func (r *commentRepository) ListPostIDsByMember(ctx context.Context, memberID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Comment{}).
		Where("member_id = ?", memberID).
		Distinct().
		Pluck("post_id", &ids).Error
	return ids, err
}
