package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"community/internal/cache"
	"community/internal/middleware"
	"community/internal/models"
	"community/internal/observability"
	"community/internal/repository"
	"community/internal/tombstone"
	"community/internal/validation"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"
)

const invalidCredentials = "Invalid email or password"

type MemberService struct {
	store    *repository.Store
	now      func() time.Time
	hashCost int
	logger   *slog.Logger
}

type SignupInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	Nickname        string
	ProfileImageURL string
}

type LoginInput struct {
	Email    string
	Password string
}

type UpdatePasswordInput struct {
	MemberID        uint
	Password        string
	ConfirmPassword string
}

func NewMemberService(store *repository.Store, now func() time.Time) *MemberService {
	if now == nil {
		now = time.Now
	}
	return &MemberService{
		store:    store,
		now:      now,
		hashCost: bcrypt.DefaultCost,
		logger:   middleware.Logger,
	}
}

func (s *MemberService) Signup(ctx context.Context, in SignupInput) (*models.Member, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Nickname = strings.TrimSpace(in.Nickname)

	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if in.Password != in.ConfirmPassword {
		return nil, models.NewValidationError("Passwords do not match")
	}
	if err := validation.ValidateNickname(in.Nickname); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if tombstone.IsTagged(in.Email) || tombstone.IsTagged(in.Nickname) {
		return nil, models.NewValidationError(fmt.Sprintf("Email and nickname may not start with %q", tombstone.Tag))
	}

	if err := s.ensureIdentityFree(ctx, in.Email, in.Nickname); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	member := &models.Member{
		Email:           in.Email,
		Nickname:        in.Nickname,
		PasswordHash:    string(hash),
		ProfileImageURL: in.ProfileImageURL,
		Active:          true,
	}
	if err := s.store.Members.Create(ctx, member); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, models.NewConflictError("Email or nickname already in use", err)
		}
		return nil, models.NewInternalError(err)
	}
	return member, nil
}

// ensureIdentityFree rejects an email or nickname that is held by any row,
// including withdrawn members still inside their grace window.
func (s *MemberService) ensureIdentityFree(ctx context.Context, email, nickname string) error {
	exists, err := s.store.Members.ExistsByEmail(ctx, email)
	if err != nil {
		return models.NewInternalError(err)
	}
	if exists {
		return models.NewConflictError("Email already in use", nil)
	}
	exists, err = s.store.Members.ExistsByNickname(ctx, nickname)
	if err != nil {
		return models.NewInternalError(err)
	}
	if exists {
		return models.NewConflictError("Nickname already in use", nil)
	}
	return nil
}

// Login verifies credentials. A withdrawn member whose password matches is
// restored when still inside the grace window. Anonymized rows are skipped, so
// a released address gets the same answer as one never registered.
func (s *MemberService) Login(ctx context.Context, in LoginInput) (*models.Member, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" {
		return nil, models.NewValidationError("Email and password are required")
	}

	candidates, err := s.store.Members.FindLoginCandidates(ctx, email)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	for _, m := range candidates {
		if m.Anonymized {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(in.Password)) != nil {
			continue
		}
		if !m.IsDeleted() {
			return m, nil
		}
		return s.restore(ctx, m.ID)
	}
	return nil, models.NewUnauthorizedError(invalidCredentials)
}

func (s *MemberService) restore(ctx context.Context, memberID uint) (*models.Member, error) {
	span, ctx := observability.NewSpan(ctx, "member.Restore", attribute.Int64("member.id", int64(memberID)))
	defer span.End()

	now := s.now()
	var restored *models.Member
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		m, err := tx.Members.GetByIDIncludingDeleted(ctx, memberID)
		if err != nil {
			return err
		}
		original := tombstone.OriginalIdentity(m)
		taken, err := tx.Members.IdentityTaken(ctx, original, m.ID)
		if err != nil {
			return err
		}
		if err := tombstone.RestoreMember(m, now, original, taken); err != nil {
			return err
		}
		if err := tx.Members.CompareAndRestore(ctx, m, tombstone.GraceThreshold(now)); err != nil {
			return err
		}
		restored = m
		return nil
	})

	outcome := observability.OutcomeSuccess
	switch {
	case err == nil:
	case errors.Is(err, tombstone.ErrNotRestorable), errors.Is(err, repository.ErrStaleWrite):
		outcome = observability.OutcomeRejected
		err = models.NewNotRestorableError("Account can no longer be restored")
	case errors.Is(err, tombstone.ErrConflict), repository.IsUniqueViolation(err):
		outcome = observability.OutcomeConflict
		err = models.NewConflictError("Email or nickname is now used by another account", err)
	default:
		outcome = observability.OutcomeError
		err = models.NewInternalError(err)
	}
	observability.MemberRestore.WithLabelValues(outcome).Inc()
	if err != nil {
		span.SetError(err)
		s.logger.WarnContext(ctx, "member restore refused",
			slog.Uint64("member_id", uint64(memberID)),
			slog.String("outcome", outcome),
		)
		return nil, err
	}
	s.logger.InfoContext(ctx, "member restored", slog.Uint64("member_id", uint64(memberID)))
	s.invalidateFootprint(ctx, memberID)
	return restored, nil
}

// Withdraw soft deletes the member. Their content stays and is shown under
// the unknown display name.
func (s *MemberService) Withdraw(ctx context.Context, memberID uint) error {
	m, err := s.store.Members.GetByIDIncludingDeleted(ctx, memberID)
	if err != nil {
		if repository.IsNotFound(err) {
			return models.NewNotFoundError("Member", memberID)
		}
		return models.NewInternalError(err)
	}
	if err := tombstone.SoftDeleteMember(m, s.now()); err != nil {
		return models.NewAlreadyDeletedError("Member", memberID)
	}
	if err := s.store.Members.SoftDelete(ctx, m); err != nil {
		if errors.Is(err, repository.ErrStaleWrite) {
			return models.NewAlreadyDeletedError("Member", memberID)
		}
		return models.NewInternalError(err)
	}
	s.logger.InfoContext(ctx, "member withdrew", slog.Uint64("member_id", uint64(memberID)))
	s.invalidateFootprint(ctx, memberID)
	return nil
}

// invalidateFootprint drops cached pages that show the member's display
// name. Failures only leave a stale name until the entries expire.
func (s *MemberService) invalidateFootprint(ctx context.Context, memberID uint) {
	if cache.GetClient() == nil {
		return
	}
	posts, err := s.store.Posts.ListIDsByMember(ctx, memberID)
	if err != nil {
		s.logger.WarnContext(ctx, "list member posts failed", slog.String("error", err.Error()))
		return
	}
	commented, err := s.store.Comments.ListPostIDsByMember(ctx, memberID)
	if err != nil {
		s.logger.WarnContext(ctx, "list member comments failed", slog.String("error", err.Error()))
		return
	}
	for _, id := range append(posts, commented...) {
		cache.InvalidatePost(ctx, id)
	}
}

func (s *MemberService) GetMe(ctx context.Context, memberID uint) (*models.Member, error) {
	m, err := s.store.Members.GetByID(ctx, memberID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, models.NewNotFoundError("Member", memberID)
		}
		return nil, models.NewInternalError(err)
	}
	return m, nil
}

// UpdateProfile changes the live member's nickname, and the profile image
// when imageURL is not empty.
func (s *MemberService) UpdateProfile(ctx context.Context, memberID uint, nickname, imageURL string) (*models.Member, error) {
	nickname = strings.TrimSpace(nickname)
	if err := validation.ValidateNickname(nickname); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if tombstone.IsTagged(nickname) {
		return nil, models.NewValidationError(fmt.Sprintf("Nickname may not start with %q", tombstone.Tag))
	}

	m, err := s.GetMe(ctx, memberID)
	if err != nil {
		return nil, err
	}
	changed := imageURL != "" && imageURL != m.ProfileImageURL
	if nickname != m.Nickname {
		changed = true
		exists, err := s.store.Members.ExistsByNickname(ctx, nickname)
		if err != nil {
			return nil, models.NewInternalError(err)
		}
		if exists {
			return nil, models.NewConflictError("Nickname already in use", nil)
		}
		m.Nickname = nickname
	}
	if imageURL != "" {
		m.ProfileImageURL = imageURL
	}
	if err := s.store.Members.Update(ctx, m); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, models.NewConflictError("Nickname already in use", err)
		}
		return nil, models.NewInternalError(err)
	}
	if changed {
		s.invalidateFootprint(ctx, memberID)
	}
	return m, nil
}

func (s *MemberService) UpdatePassword(ctx context.Context, in UpdatePasswordInput) error {
	if err := validation.ValidatePassword(in.Password); err != nil {
		return models.NewValidationError(err.Error())
	}
	if in.Password != in.ConfirmPassword {
		return models.NewValidationError("Passwords do not match")
	}
	m, err := s.GetMe(ctx, in.MemberID)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return models.NewInternalError(err)
	}
	m.PasswordHash = string(hash)
	if err := s.store.Members.Update(ctx, m); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
