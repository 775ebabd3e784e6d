package tombstone

import (
	"strings"
	"testing"
	"time"

	"community/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func liveMember() *models.Member {
	return &models.Member{ID: 7, Email: "ann@example.com", Nickname: "ann", Active: true}
}

func withdrawn(t *testing.T) *models.Member {
	t.Helper()
	m := liveMember()
	require.NoError(t, SoftDeleteMember(m, t0))
	return m
}

func TestSoftDeleteMember(t *testing.T) {
	t.Parallel()

	m := withdrawn(t)
	assert.True(t, m.Deleted)
	require.NotNil(t, m.DeletedAt)
	assert.Equal(t, t0, *m.DeletedAt)
	assert.False(t, m.Active)
	assert.Equal(t, "ann@example.com", m.OriginalEmail)
	assert.Equal(t, "ann", m.OriginalNickname)

	err := SoftDeleteMember(m, t0.Add(time.Hour))
	assert.ErrorIs(t, err, ErrAlreadyDeleted)
	assert.Equal(t, t0, *m.DeletedAt)
}

func TestIsRestorable(t *testing.T) {
	t.Parallel()

	assert.False(t, IsRestorable(liveMember(), t0))
	assert.False(t, IsRestorable(nil, t0))

	m := withdrawn(t)
	assert.True(t, IsRestorable(m, t0.Add(29*24*time.Hour)))
	assert.False(t, IsRestorable(m, t0.Add(GraceWindow)))
	assert.False(t, IsRestorable(m, t0.Add(31*24*time.Hour)))

	m.Anonymized = true
	assert.False(t, IsRestorable(m, t0.Add(time.Hour)))
}

func TestRestoreMember(t *testing.T) {
	t.Parallel()

	t.Run("day 29 restores", func(t *testing.T) {
		t.Parallel()
		m := withdrawn(t)
		now := t0.Add(29 * 24 * time.Hour)
		err := RestoreMember(m, now, OriginalIdentity(m), false)
		require.NoError(t, err)
		assert.False(t, m.IsDeleted())
		assert.Nil(t, m.DeletedAt)
		assert.True(t, m.Active)
		assert.Equal(t, "ann@example.com", m.Email)
		assert.Equal(t, "ann", m.Nickname)
		assert.Empty(t, m.OriginalEmail)
	})

	t.Run("identity taken", func(t *testing.T) {
		t.Parallel()
		m := withdrawn(t)
		err := RestoreMember(m, t0.Add(time.Hour), OriginalIdentity(m), true)
		assert.ErrorIs(t, err, ErrConflict)
		assert.True(t, m.IsDeleted())
	})

	t.Run("day 31 rejects", func(t *testing.T) {
		t.Parallel()
		m := withdrawn(t)
		err := RestoreMember(m, t0.Add(31*24*time.Hour), OriginalIdentity(m), false)
		assert.ErrorIs(t, err, ErrNotRestorable)
		assert.True(t, m.IsDeleted())
	})

	t.Run("live member rejects", func(t *testing.T) {
		t.Parallel()
		m := liveMember()
		assert.ErrorIs(t, RestoreMember(m, t0, OriginalIdentity(m), false), ErrNotRestorable)
	})
}

func TestAnonymize(t *testing.T) {
	t.Parallel()

	t.Run("rewrites identity after window", func(t *testing.T) {
		t.Parallel()
		m := withdrawn(t)
		changed, err := Anonymize(m, t0.Add(31*24*time.Hour), "a1b2c3")
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, "deleted_ann@example.com_a1b2c3", m.Email)
		assert.Equal(t, "deleted_ann_a1b2c3", m.Nickname)
		assert.True(t, m.Anonymized)
		assert.Empty(t, m.OriginalEmail)
		assert.Empty(t, m.OriginalNickname)
		assert.True(t, m.IsDeleted())

		changed, err = Anonymize(m, t0.Add(40*24*time.Hour), "zzzzzz")
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, "deleted_ann@example.com_a1b2c3", m.Email)

		assert.ErrorIs(t, RestoreMember(m, t0.Add(40*24*time.Hour), OriginalIdentity(m), false), ErrNotRestorable)
	})

	t.Run("inside window", func(t *testing.T) {
		t.Parallel()
		m := withdrawn(t)
		changed, err := Anonymize(m, t0.Add(29*24*time.Hour), "a1b2c3")
		assert.ErrorIs(t, err, ErrNotExpired)
		assert.False(t, changed)
		assert.Equal(t, "ann", m.Nickname)
	})

	t.Run("live member untouched", func(t *testing.T) {
		t.Parallel()
		m := liveMember()
		changed, err := Anonymize(m, t0, "a1b2c3")
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, "ann", m.Nickname)
	})

	t.Run("nickname that looks tagged is still tagged", func(t *testing.T) {
		t.Parallel()
		m := &models.Member{Email: "x@example.com", Nickname: "deleted_x_y"}
		require.NoError(t, SoftDeleteMember(m, t0))
		_, err := Anonymize(m, t0.Add(31*24*time.Hour), "abcdef")
		require.NoError(t, err)
		assert.Equal(t, "deleted_deleted_x_y_abcdef", m.Nickname)
	})

	t.Run("long nickname fits the column", func(t *testing.T) {
		t.Parallel()
		m := &models.Member{Email: "long@example.com", Nickname: strings.Repeat("가", 30)}
		require.NoError(t, SoftDeleteMember(m, t0))
		_, err := Anonymize(m, t0.Add(31*24*time.Hour), "abcdef")
		require.NoError(t, err)
		assert.LessOrEqual(t, len(m.Nickname), NicknameColumnSize)
		assert.True(t, strings.HasPrefix(m.Nickname, Tag))
		assert.True(t, strings.HasSuffix(m.Nickname, "_abcdef"))
	})
}

func TestOriginalIdentityFallsBackToTag(t *testing.T) {
	t.Parallel()

	m := &models.Member{Email: "deleted_bob@example.com_abc123", Nickname: "deleted_bob_abc123"}
	id := OriginalIdentity(m)
	assert.Equal(t, "bob@example.com", id.Email)
	assert.Equal(t, "bob", id.Nickname)

	m = &models.Member{Email: "deleted_bob@example.com_abc123", OriginalEmail: "real@example.com", Nickname: "plain"}
	id = OriginalIdentity(m)
	assert.Equal(t, "real@example.com", id.Email)
	assert.Equal(t, "plain", id.Nickname)
}

func TestExtractOriginal(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"deleted_ann_abc123", "ann", true},
		{"deleted_a_b_c_abc123", "a_b_c", true},
		{"deleted_ann", "", false},
		{"deleted__abc", "", false},
		{"deleted_ann_", "", false},
		{"ann", "", false},
	}
	for _, tc := range cases {
		got, ok := ExtractOriginal(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestContentSoftDelete(t *testing.T) {
	t.Parallel()

	var c models.Comment
	assert.True(t, SoftDelete(&c.SoftDelete, t0))
	assert.False(t, SoftDelete(&c.SoftDelete, t0.Add(time.Hour)))
	assert.Equal(t, t0, *c.DeletedAt)
}

func TestLikeTransitions(t *testing.T) {
	t.Parallel()

	t.Run("member action round trip", func(t *testing.T) {
		t.Parallel()
		l := &models.Like{PostID: 1, MemberID: 2, DeletionReason: models.LikeDeletionNone}
		require.True(t, SoftDeleteLike(l, models.LikeDeletionMemberAction, t0))
		assert.True(t, CanRestoreLike(l))
		require.NoError(t, RestoreLike(l))
		assert.False(t, l.IsDeleted())
		assert.Equal(t, models.LikeDeletionNone, l.DeletionReason)
	})

	t.Run("post deletion is terminal", func(t *testing.T) {
		t.Parallel()
		l := &models.Like{PostID: 1, MemberID: 2, DeletionReason: models.LikeDeletionNone}
		require.True(t, SoftDeleteLike(l, models.LikeDeletionPostDeletion, t0))
		assert.False(t, CanRestoreLike(l))
		assert.ErrorIs(t, RestoreLike(l), ErrNotRestorable)
		assert.True(t, l.IsDeleted())
	})

	t.Run("second delete keeps first reason", func(t *testing.T) {
		t.Parallel()
		l := &models.Like{}
		require.True(t, SoftDeleteLike(l, models.LikeDeletionMemberAction, t0))
		assert.False(t, SoftDeleteLike(l, models.LikeDeletionPostDeletion, t0))
		assert.Equal(t, models.LikeDeletionMemberAction, l.DeletionReason)
	})
}

func TestDisplayName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Unknown, DisplayName(nil))
	assert.Equal(t, "ann", DisplayName(liveMember()))
	assert.Equal(t, Unknown, DisplayName(withdrawn(t)))
}
