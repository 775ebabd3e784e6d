package repository

import (
	"context"

	"community/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ImageRepository defines the image data operations.
type ImageRepository interface {
	Create(ctx context.Context, image *models.Image) error
	GetByID(ctx context.Context, id uint) (*models.Image, error)
	ListLiveByPost(ctx context.Context, postID uint) ([]*models.Image, error)
	MaxOrderIndex(ctx context.Context, postID uint) (int, error)
	Save(ctx context.Context, image *models.Image) error
	SaveAll(ctx context.Context, images []*models.Image) error
}

type imageRepository struct {
	db *gorm.DB
}

// NewImageRepository creates a new ImageRepository
func NewImageRepository(db *gorm.DB) ImageRepository {
	return &imageRepository{db: db}
}

func (r *imageRepository) Create(ctx context.Context, image *models.Image) error {
	return r.db.WithContext(ctx).Create(image).Error
}

func (r *imageRepository) GetByID(ctx context.Context, id uint) (*models.Image, error) {
	var image models.Image
	if err := r.db.WithContext(ctx).Where("deleted = ?", false).First(&image, id).Error; err != nil {
		return nil, err
	}
	return &image, nil
}

// ListLiveByPost returns the live images of a post in display order.
func (r *imageRepository) ListLiveByPost(ctx context.Context, postID uint) ([]*models.Image, error) {
	var images []*models.Image
	err := r.db.WithContext(ctx).
		Where("post_id = ? AND deleted = ?", postID, false).
		Order("order_index asc").
		Order("id asc").
		Find(&images).Error
	return images, err
}

// MaxOrderIndex returns the highest order index among live images, or -1.
func (r *imageRepository) MaxOrderIndex(ctx context.Context, postID uint) (int, error) {
	var max *int
	err := r.db.WithContext(ctx).Model(&models.Image{}).
		Where("post_id = ? AND deleted = ?", postID, false).
		Select("MAX(order_index)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return -1, nil
	}
	return *max, nil
}

func (r *imageRepository) Save(ctx context.Context, image *models.Image) error {
	return r.db.WithContext(ctx).Save(image).Error
}

func (r *imageRepository) SaveAll(ctx context.Context, images []*models.Image) error {
	if len(images) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(&images).Error
}
