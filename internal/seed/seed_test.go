package seed

import (
	"context"
	"testing"

	"community/internal/models"
	"community/internal/repository"
	"community/internal/testutil"
	"community/internal/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_Run(t *testing.T) {
	db := testutil.NewDB(t)
	store := repository.NewStore(db)
	opts := Options{Members: 6, Posts: 8, MaxComments: 3, Withdrawn: 1, DeletedPosts: 2, Seed: 42, SkipBcrypt: true}

	f, err := NewFactory(store, opts)
	require.NoError(t, err)
	sum, err := f.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, sum.Members)
	assert.Equal(t, 8, sum.Posts)
	assert.Equal(t, 1, sum.Withdrawn)
	assert.Equal(t, 2, sum.DeletedPosts)

	var members []models.Member
	require.NoError(t, db.Find(&members).Error)
	require.Len(t, members, 6)
	withdrawn := 0
	for _, m := range members {
		if m.IsDeleted() {
			withdrawn++
			assert.NotEmpty(t, m.OriginalNickname)
			continue
		}
		assert.NoError(t, validation.ValidateNickname(m.Nickname))
		assert.NoError(t, validation.ValidateEmail(m.Email))
	}
	assert.Equal(t, 1, withdrawn)

	var posts []models.Post
	require.NoError(t, db.Find(&posts).Error)
	deleted := 0
	for _, p := range posts {
		assert.NoError(t, validation.ValidateTitle(p.Title))
		if p.IsDeleted() {
			deleted++
			assert.Zero(t, p.CommentCount)
			continue
		}
		var live int64
		require.NoError(t, db.Model(&models.Comment{}).Where("post_id = ? AND deleted = ?", p.ID, false).Count(&live).Error)
		assert.EqualValues(t, live, p.CommentCount)
	}
	assert.Equal(t, 2, deleted)

	var liveOnDeleted int64
	require.NoError(t, db.Model(&models.Like{}).
		Joins("JOIN posts ON posts.id = likes.post_id").
		Where("posts.deleted = ? AND likes.deleted = ?", true, false).
		Count(&liveOnDeleted).Error)
	assert.Zero(t, liveOnDeleted)
}

func TestFactory_Nickname(t *testing.T) {
	f, err := NewFactory(repository.NewStore(testutil.NewDB(t)), Options{Seed: 7, SkipBcrypt: true})
	require.NoError(t, err)

	for _, i := range []int{0, 9, 123, 99999} {
		nick := f.nickname(i)
		assert.NoError(t, validation.ValidateNickname(nick), nick)
	}
}
