package repository

import (
	"context"

	"community/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LikeRepository defines the like data operations.
type LikeRepository interface {
	Create(ctx context.Context, like *models.Like) error
	FindByPostAndMember(ctx context.Context, postID, memberID uint) (*models.Like, error)
	ListLiveByPost(ctx context.Context, postID uint) ([]*models.Like, error)
	CountLive(ctx context.Context, postID uint) (int64, error)
	CountLiveByPosts(ctx context.Context, postIDs []uint) (map[uint]int64, error)
	Save(ctx context.Context, like *models.Like) error
	SaveAll(ctx context.Context, likes []*models.Like) error
}

type likeRepository struct {
	db *gorm.DB
}

// NewLikeRepository creates a new LikeRepository
func NewLikeRepository(db *gorm.DB) LikeRepository {
	return &likeRepository{db: db}
}

func (r *likeRepository) Create(ctx context.Context, like *models.Like) error {
	return r.db.WithContext(ctx).Create(like).Error
}

// FindByPostAndMember returns the like row for the pair whatever its state.
func (r *likeRepository) FindByPostAndMember(ctx context.Context, postID, memberID uint) (*models.Like, error) {
	var like models.Like
	err := r.db.WithContext(ctx).
		Where("post_id = ? AND member_id = ?", postID, memberID).
		First(&like).Error
	if err != nil {
		return nil, err
	}
	return &like, nil
}

func (r *likeRepository) ListLiveByPost(ctx context.Context, postID uint) ([]*models.Like, error) {
	var likes []*models.Like
	err := r.db.WithContext(ctx).
		Where("post_id = ? AND deleted = ?", postID, false).
		Order("id asc").
		Find(&likes).Error
	return likes, err
}

func (r *likeRepository) CountLive(ctx context.Context, postID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Like{}).
		Where("post_id = ? AND deleted = ?", postID, false).
		Count(&count).Error
	return count, err
}

func (r *likeRepository) Save(ctx context.Context, like *models.Like) error {
	return r.db.WithContext(ctx).Save(like).Error
}

func (r *likeRepository) SaveAll(ctx context.Context, likes []*models.Like) error {
	if len(likes) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(&likes).Error
}

// CountLiveByPosts returns the live like count of each post in postIDs.
// Posts without likes are absent from the map.
func (r *likeRepository) CountLiveByPosts(ctx context.Context, postIDs []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(postIDs))
	if len(postIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		PostID uint
		Total  int64
	}
	err := r.db.WithContext(ctx).Model(&models.Like{}).
		Select("post_id, COUNT(*) AS total").
		Where("post_id IN ? AND deleted = ?", postIDs, false).
		Group("post_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.PostID] = row.Total
	}
	return counts, nil
}
