package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"community/internal/blobstore"
	"community/internal/cache"
	"community/internal/config"
	"community/internal/middleware"
	"community/internal/models"
	"community/internal/repository"
	"community/internal/tombstone"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const DefaultImageMaxUploadSizeMB = 10

// UploadImageInput attaches an image to a post. OrderIndex nil appends the
// image after the existing ones.
type UploadImageInput struct {
	MemberID    uint
	PostID      uint
	ContentType string
	Content     []byte
	OrderIndex  *int
}

type ImageService struct {
	store              *repository.Store
	blobs              blobstore.Store
	maxUploadSizeBytes int64
	now                func() time.Time
	logger             *slog.Logger
}

func NewImageService(store *repository.Store, blobs blobstore.Store, cfg *config.Config, now func() time.Time) *ImageService {
	maxUploadSizeMB := DefaultImageMaxUploadSizeMB
	if cfg != nil && cfg.ImageMaxUploadSizeMB > 0 {
		maxUploadSizeMB = cfg.ImageMaxUploadSizeMB
	}
	if now == nil {
		now = time.Now
	}
	return &ImageService{
		store:              store,
		blobs:              blobs,
		maxUploadSizeBytes: int64(maxUploadSizeMB) * 1024 * 1024,
		now:                now,
		logger:             middleware.Logger,
	}
}

// Upload validates the bytes, writes them to the blob store and records the
// image on the post. The blob is removed again when the row cannot be saved.
func (s *ImageService) Upload(ctx context.Context, in UploadImageInput) (*models.Image, error) {
	if in.OrderIndex != nil && *in.OrderIndex < 0 {
		return nil, models.NewValidationError("Order index must not be negative")
	}
	mimeType, err := s.validate(in.Content, in.ContentType)
	if err != nil {
		return nil, err
	}

	// Checked again under the post lock below.
	post, err := s.store.Posts.GetByID(ctx, in.PostID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, models.NewNotFoundError("Post", in.PostID)
		}
		return nil, models.NewInternalError(err)
	}
	if !isOwner(post.MemberID, in.MemberID) {
		return nil, models.NewForbiddenError("You can only modify your own posts")
	}

	key := fmt.Sprintf("posts/%d/%s%s", in.PostID, uuid.NewString(), extensionFor(mimeType))
	url, err := s.blobs.Put(ctx, key, mimeType, in.Content)
	if err != nil {
		return nil, models.NewInternalError(fmt.Errorf("store image: %w", err))
	}

	img := &models.Image{
		PostID:    in.PostID,
		MemberID:  &in.MemberID,
		URL:       url,
		ObjectKey: key,
	}
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		if _, err := ownedPostForUpdate(ctx, tx, in.PostID, in.MemberID); err != nil {
			return err
		}
		idx, err := nextOrderIndex(ctx, tx, in.PostID, in.OrderIndex)
		if err != nil {
			return err
		}
		img.OrderIndex = idx
		if err := tx.Images.Create(ctx, img); err != nil {
			return models.NewInternalError(err)
		}
		return nil
	})
	if err != nil {
		if rmErr := s.blobs.Remove(ctx, key); rmErr != nil {
			s.logger.WarnContext(ctx, "orphan blob left behind",
				slog.String("key", key),
				slog.String("error", rmErr.Error()),
			)
		}
		return nil, err
	}

	cache.InvalidatePost(ctx, in.PostID)
	return img, nil
}

// UploadProfileImage stores a profile picture and returns its URL.
func (s *ImageService) UploadProfileImage(ctx context.Context, content []byte, contentType string) (string, error) {
	mimeType, err := s.validate(content, contentType)
	if err != nil {
		return "", err
	}
	key := "profiles/" + uuid.NewString() + extensionFor(mimeType)
	url, err := s.blobs.Put(ctx, key, mimeType, content)
	if err != nil {
		return "", models.NewInternalError(fmt.Errorf("store profile image: %w", err))
	}
	return url, nil
}

// validate checks size and that content really is a supported image, and
// returns its MIME type.
func (s *ImageService) validate(content []byte, contentType string) (string, error) {
	if len(content) == 0 {
		return "", models.NewValidationError("No file uploaded")
	}
	if int64(len(content)) > s.maxUploadSizeBytes {
		return "", models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", s.maxUploadSizeBytes/(1024*1024)))
	}
	if !isAllowedImageMIME(http.DetectContentType(content)) {
		return "", models.NewValidationError("Invalid image type")
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		return "", models.NewValidationError("Invalid image file")
	}
	mimeType := decodedFormatToMime(format)
	if mimeType == "" {
		return "", models.NewValidationError("Unsupported image format")
	}
	if provided := normalizeContentType(contentType); strings.HasPrefix(provided, "image/") && !isMatchingContentType(provided, mimeType) {
		return "", models.NewValidationError("Image content type mismatch")
	}
	return mimeType, nil
}

// nextOrderIndex returns requested when no live image of the post uses it,
// or the index after the last live image when requested is nil.
func nextOrderIndex(ctx context.Context, tx *repository.Store, postID uint, requested *int) (int, error) {
	if requested == nil {
		last, err := tx.Images.MaxOrderIndex(ctx, postID)
		if err != nil {
			return 0, models.NewInternalError(err)
		}
		return last + 1, nil
	}
	images, err := tx.Images.ListLiveByPost(ctx, postID)
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	for _, img := range images {
		if img.OrderIndex == *requested {
			return 0, models.NewConflictError(fmt.Sprintf("Order index %d is already used", *requested), nil)
		}
	}
	return *requested, nil
}

// ListImages returns the live images of a live post in display order.
func (s *ImageService) ListImages(ctx context.Context, postID uint) ([]*models.Image, error) {
	if _, err := s.store.Posts.GetByID(ctx, postID); err != nil {
		if repository.IsNotFound(err) {
			return nil, models.NewNotFoundError("Post", postID)
		}
		return nil, models.NewInternalError(err)
	}
	images, err := s.store.Images.ListLiveByPost(ctx, postID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return images, nil
}

// Reorder assigns order indexes 0..n-1 following imageIDs, which must list
// every live image of the post exactly once.
func (s *ImageService) Reorder(ctx context.Context, memberID, postID uint, imageIDs []uint) ([]*models.Image, error) {
	var ordered []*models.Image
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		if _, err := ownedPostForUpdate(ctx, tx, postID, memberID); err != nil {
			return err
		}
		images, err := tx.Images.ListLiveByPost(ctx, postID)
		if err != nil {
			return models.NewInternalError(err)
		}
		if len(imageIDs) != len(images) {
			return models.NewValidationError("Image order must list every image of the post once")
		}
		byID := make(map[uint]*models.Image, len(images))
		for _, img := range images {
			byID[img.ID] = img
		}
		ordered = make([]*models.Image, 0, len(imageIDs))
		for i, id := range imageIDs {
			img, ok := byID[id]
			if !ok {
				return models.NewValidationError("Image order must list every image of the post once")
			}
			delete(byID, id)
			img.OrderIndex = i
			ordered = append(ordered, img)
		}
		if err := tx.Images.SaveAll(ctx, ordered); err != nil {
			return models.NewInternalError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	cache.InvalidatePost(ctx, postID)
	return ordered, nil
}

// DeleteImage tombstones one image of the member's post. The blob is kept
// with the row.
func (s *ImageService) DeleteImage(ctx context.Context, memberID, postID, imageID uint) error {
	now := s.now()
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		if _, err := ownedPostForUpdate(ctx, tx, postID, memberID); err != nil {
			return err
		}
		img, err := tx.Images.GetByID(ctx, imageID)
		if err != nil {
			if repository.IsNotFound(err) {
				return models.NewNotFoundError("Image", imageID)
			}
			return models.NewInternalError(err)
		}
		if img.PostID != postID {
			return models.NewNotFoundError("Image", imageID)
		}
		tombstone.SoftDelete(&img.SoftDelete, now)
		if err := tx.Images.Save(ctx, img); err != nil {
			return models.NewInternalError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	cache.InvalidatePost(ctx, postID)
	return nil
}

func isAllowedImageMIME(contentType string) bool {
	switch normalizeContentType(contentType) {
	case "image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

func normalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func isMatchingContentType(provided, detected string) bool {
	p := normalizeContentType(provided)
	d := normalizeContentType(detected)
	if p == d {
		return true
	}
	return (p == "image/jpg" && d == "image/jpeg") || (p == "image/jpeg" && d == "image/jpg")
}

func decodedFormatToMime(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return ""
	}
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}
