package repository

import (
	"context"
	"time"

	"community/internal/models"
	"community/internal/tombstone"

	"gorm.io/gorm"
)

// MemberRepository defines the member data operations.
type MemberRepository interface {
	Create(ctx context.Context, member *models.Member) error
	GetByID(ctx context.Context, id uint) (*models.Member, error)
	GetByIDIncludingDeleted(ctx context.Context, id uint) (*models.Member, error)
	FindLoginCandidates(ctx context.Context, email string) ([]*models.Member, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByNickname(ctx context.Context, nickname string) (bool, error)
	IdentityTaken(ctx context.Context, identity tombstone.Identity, excludeID uint) (bool, error)
	ListExpiredDeleted(ctx context.Context, threshold time.Time, afterID uint, limit int) ([]*models.Member, error)
	Update(ctx context.Context, member *models.Member) error
	SoftDelete(ctx context.Context, member *models.Member) error
	CompareAndRestore(ctx context.Context, member *models.Member, threshold time.Time) error
	CompareAndAnonymize(ctx context.Context, member *models.Member, threshold time.Time) error
}

type memberRepository struct {
	db *gorm.DB
}

// NewMemberRepository creates a new MemberRepository
func NewMemberRepository(db *gorm.DB) MemberRepository {
	return &memberRepository{db: db}
}

func (r *memberRepository) Create(ctx context.Context, member *models.Member) error {
	return r.db.WithContext(ctx).Create(member).Error
}

func (r *memberRepository) GetByID(ctx context.Context, id uint) (*models.Member, error) {
	var member models.Member
	if err := r.db.WithContext(ctx).Where("deleted = ?", false).First(&member, id).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *memberRepository) GetByIDIncludingDeleted(ctx context.Context, id uint) (*models.Member, error) {
	var member models.Member
	if err := r.db.WithContext(ctx).First(&member, id).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

// FindLoginCandidates returns the rows a login with email may refer to: the
// live holder of the address and any withdrawn member that used it, most
// recently withdrawn first.
func (r *memberRepository) FindLoginCandidates(ctx context.Context, email string) ([]*models.Member, error) {
	var members []*models.Member
	pattern := escapeLike(tombstone.Tag+email+"_") + "%"
	err := r.db.WithContext(ctx).
		Where("email = ? OR original_email = ? OR email LIKE ? ESCAPE '\\'", email, email, pattern).
		Order("deleted asc").
		Order("deleted_at desc").
		Order("id desc").
		Find(&members).Error
	return members, err
}

func (r *memberRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Member{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}

func (r *memberRepository) ExistsByNickname(ctx context.Context, nickname string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Member{}).Where("nickname = ?", nickname).Count(&count).Error
	return count > 0, err
}

// IdentityTaken reports whether a member other than excludeID currently
// holds identity's email or nickname.
func (r *memberRepository) IdentityTaken(ctx context.Context, identity tombstone.Identity, excludeID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Member{}).
		Where("id <> ?", excludeID).
		Where("email = ? OR nickname = ?", identity.Email, identity.Nickname).
		Count(&count).Error
	return count > 0, err
}

// ListExpiredDeleted pages through withdrawn, not yet anonymized members
// deleted before threshold, ordered by id.
func (r *memberRepository) ListExpiredDeleted(ctx context.Context, threshold time.Time, afterID uint, limit int) ([]*models.Member, error) {
	var members []*models.Member
	err := r.db.WithContext(ctx).
		Where("deleted = ? AND anonymized = ? AND deleted_at < ?", true, false, threshold).
		Where("id > ?", afterID).
		Order("id asc").
		Limit(limit).
		Find(&members).Error
	return members, err
}

func (r *memberRepository) Update(ctx context.Context, member *models.Member) error {
	return r.db.WithContext(ctx).Save(member).Error
}

// SoftDelete persists a withdrawal only if the row is still live.
func (r *memberRepository) SoftDelete(ctx context.Context, member *models.Member) error {
	res := r.db.WithContext(ctx).Model(&models.Member{}).
		Where("id = ? AND deleted = ?", member.ID, false).
		Updates(map[string]interface{}{
			"deleted":           member.Deleted,
			"deleted_at":        member.DeletedAt,
			"active":            member.Active,
			"original_email":    member.OriginalEmail,
			"original_nickname": member.OriginalNickname,
		})
	return staleIfUnchanged(res)
}

// CompareAndRestore persists a restoration only while the row is still
// withdrawn, not anonymized, and deleted after threshold.
func (r *memberRepository) CompareAndRestore(ctx context.Context, member *models.Member, threshold time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Member{}).
		Where("id = ? AND deleted = ? AND anonymized = ? AND deleted_at > ?", member.ID, true, false, threshold).
		Updates(map[string]interface{}{
			"deleted":           false,
			"deleted_at":        nil,
			"active":            true,
			"email":             member.Email,
			"nickname":          member.Nickname,
			"original_email":    "",
			"original_nickname": "",
		})
	return staleIfUnchanged(res)
}

// CompareAndAnonymize persists an anonymization only while the row is still
// withdrawn, not anonymized, and deleted before threshold.
func (r *memberRepository) CompareAndAnonymize(ctx context.Context, member *models.Member, threshold time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Member{}).
		Where("id = ? AND deleted = ? AND anonymized = ? AND deleted_at < ?", member.ID, true, false, threshold).
		Updates(map[string]interface{}{
			"email":             member.Email,
			"nickname":          member.Nickname,
			"anonymized":        true,
			"active":            false,
			"original_email":    "",
			"original_nickname": "",
		})
	return staleIfUnchanged(res)
}

func staleIfUnchanged(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleWrite
	}
	return nil
}
