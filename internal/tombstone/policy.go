// Package tombstone decides the lifecycle transitions of soft-deletable rows:
// member withdrawal, restoration inside the grace window, anonymization after
// it, and the content and like transitions used by the cascade.
//
// Every function here is pure. Callers load rows, apply a transition and
// persist the result.
package tombstone

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"community/internal/models"
)

const (
	// GraceWindow is how long a withdrawn member may still be restored.
	GraceWindow = 30 * 24 * time.Hour
	// Tag prefixes anonymized identities.
	Tag = "deleted_"
	// Unknown is the display name used for absent or withdrawn members.
	Unknown = "(unknown)"
	// RedactedBody replaces the content of deleted comments on display.
	RedactedBody = "This comment has been deleted."

	// NicknameColumnSize mirrors the nickname column width.
	NicknameColumnSize = 64
	// EmailColumnSize mirrors the email column width.
	EmailColumnSize = 255
)

var (
	ErrAlreadyDeleted = errors.New("already deleted")
	ErrNotRestorable  = errors.New("not restorable")
	ErrConflict       = errors.New("identity already in use")
	ErrNotExpired     = errors.New("grace window has not elapsed")
)

// Identity is a member's email and nickname pair.
type Identity struct {
	Email    string
	Nickname string
}

// SoftDeleteMember withdraws m at now. The current identity is kept in the
// side-fields so a later restore does not depend on string parsing.
func SoftDeleteMember(m *models.Member, now time.Time) error {
	if m.IsDeleted() {
		return ErrAlreadyDeleted
	}
	m.SetState(models.DeletedState(now))
	m.Active = false
	m.OriginalEmail = m.Email
	m.OriginalNickname = m.Nickname
	return nil
}

// IsRestorable reports whether m is withdrawn, not anonymized, and still
// inside the grace window at now.
func IsRestorable(m *models.Member, now time.Time) bool {
	if m == nil || m.Anonymized {
		return false
	}
	at, ok := m.State().DeletedAt()
	if !ok {
		return false
	}
	return at.Add(GraceWindow).After(now)
}

// GraceThreshold returns the deletion time before which members are past the
// grace window at now.
func GraceThreshold(now time.Time) time.Time {
	return now.Add(-GraceWindow)
}

// OriginalIdentity returns the identity m should be restored to.
func OriginalIdentity(m *models.Member) Identity {
	id := Identity{Email: m.OriginalEmail, Nickname: m.OriginalNickname}
	if id.Email == "" {
		if orig, ok := ExtractOriginal(m.Email); ok {
			id.Email = orig
		} else {
			id.Email = m.Email
		}
	}
	if id.Nickname == "" {
		if orig, ok := ExtractOriginal(m.Nickname); ok {
			id.Nickname = orig
		} else {
			id.Nickname = m.Nickname
		}
	}
	return id
}

// RestoreMember brings m back to Active under original. taken reports whether
// another member currently holds original's email or nickname.
func RestoreMember(m *models.Member, now time.Time, original Identity, taken bool) error {
	if !IsRestorable(m, now) {
		return ErrNotRestorable
	}
	if taken {
		return ErrConflict
	}
	m.SetState(models.ActiveState())
	m.Active = true
	m.Email = original.Email
	m.Nickname = original.Nickname
	m.OriginalEmail = ""
	m.OriginalNickname = ""
	return nil
}

// Anonymize rewrites the identity of a member whose grace window elapsed.
// It reports whether m changed. Live and already anonymized members are left
// alone; a member still inside the window yields ErrNotExpired.
func Anonymize(m *models.Member, now time.Time, suffix string) (bool, error) {
	if !m.IsDeleted() || m.Anonymized {
		return false, nil
	}
	if IsRestorable(m, now) {
		return false, ErrNotExpired
	}
	// Rows withdrawn before side-fields existed were tagged at deletion time.
	if m.OriginalEmail != "" || !IsTagged(m.Email) {
		m.Email = truncate(TagIdentity(m.Email, suffix), EmailColumnSize, suffix)
	}
	if m.OriginalNickname != "" || !IsTagged(m.Nickname) {
		m.Nickname = truncate(TagIdentity(m.Nickname, suffix), NicknameColumnSize, suffix)
	}
	m.Anonymized = true
	m.Active = false
	m.OriginalEmail = ""
	m.OriginalNickname = ""
	return true, nil
}

// TagIdentity returns deleted_<value>_<suffix>.
func TagIdentity(value, suffix string) string {
	return Tag + value + "_" + suffix
}

// IsTagged reports whether value carries the anonymization tag.
func IsTagged(value string) bool {
	_, ok := ExtractOriginal(value)
	return ok
}

// ExtractOriginal strips the tag and the trailing suffix from a tagged value.
func ExtractOriginal(tagged string) (string, bool) {
	if !strings.HasPrefix(tagged, Tag) {
		return "", false
	}
	rest := tagged[len(Tag):]
	i := strings.LastIndex(rest, "_")
	if i <= 0 || i == len(rest)-1 {
		return "", false
	}
	return rest[:i], true
}

// truncate shortens the original part of a tagged value so the whole fits in
// max bytes while keeping the prefix and suffix intact.
func truncate(tagged string, max int, suffix string) string {
	if len(tagged) <= max {
		return tagged
	}
	keep := max - len(Tag) - len(suffix) - 1
	if keep < 0 {
		keep = 0
	}
	orig := tagged[len(Tag) : len(tagged)-len(suffix)-1]
	for len(orig) > keep {
		_, size := utf8.DecodeLastRuneInString(orig)
		orig = orig[:len(orig)-size]
	}
	return TagIdentity(orig, suffix)
}

// SoftDelete tombstones a content row at now. It returns false and leaves the
// original timestamp alone when the row is already tombstoned.
func SoftDelete(sd *models.SoftDelete, now time.Time) bool {
	if sd.IsDeleted() {
		return false
	}
	sd.SetState(models.DeletedState(now))
	return true
}

// SoftDeleteLike tombstones l with reason at now.
func SoftDeleteLike(l *models.Like, reason models.LikeDeletionReason, now time.Time) bool {
	if !SoftDelete(&l.SoftDelete, now) {
		return false
	}
	l.DeletionReason = reason
	return true
}

// CanRestoreLike reports whether l was withdrawn by its member.
func CanRestoreLike(l *models.Like) bool {
	return l.IsDeleted() && l.DeletionReason == models.LikeDeletionMemberAction
}

// RestoreLike reactivates a like the member withdrew. Likes removed with
// their post stay deleted.
func RestoreLike(l *models.Like) error {
	if !CanRestoreLike(l) {
		return ErrNotRestorable
	}
	l.SetState(models.ActiveState())
	l.DeletionReason = models.LikeDeletionNone
	return nil
}

// DisplayName returns the nickname shown for m.
func DisplayName(m *models.Member) string {
	if m == nil || m.IsDeleted() || m.Anonymized {
		return Unknown
	}
	return m.Nickname
}

// DisplayImage returns the profile image shown for m.
func DisplayImage(m *models.Member) string {
	if m == nil || m.IsDeleted() || m.Anonymized {
		return ""
	}
	return m.ProfileImageURL
}
