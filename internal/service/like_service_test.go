package service

import (
	"context"
	"testing"

	"community/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLikeService_Toggle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ann := env.member(t, "ann@example.com", "ann")
	bob := env.member(t, "bob@example.com", "bob")
	post := env.post(t, ann)
	svc := env.likes()

	state, err := svc.ToggleLike(ctx, bob.ID, post.ID)
	require.NoError(t, err)
	assert.Equal(t, LikeState{PostID: post.ID, Liked: true, LikeCount: 1}, *state)

	state, err = svc.ToggleLike(ctx, bob.ID, post.ID)
	require.NoError(t, err)
	assert.Equal(t, LikeState{PostID: post.ID, Liked: false, LikeCount: 0}, *state)

	like, err := env.store.Likes.FindByPostAndMember(ctx, post.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, like.IsDeleted())
	assert.Equal(t, models.LikeDeletionMemberAction, like.DeletionReason)

	state, err = svc.ToggleLike(ctx, bob.ID, post.ID)
	require.NoError(t, err)
	assert.True(t, state.Liked)
	assert.Equal(t, 1, state.LikeCount)

	restored, err := env.store.Likes.FindByPostAndMember(ctx, post.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, like.ID, restored.ID, "toggling reuses the row")
	assert.Equal(t, models.LikeDeletionNone, restored.DeletionReason)

	count, err := svc.CountLikes(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestLikeService_PostDeletionIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ann := env.member(t, "ann@example.com", "ann")
	bob := env.member(t, "bob@example.com", "bob")
	post := env.post(t, ann)

	_, err := env.likes().ToggleLike(ctx, bob.ID, post.ID)
	require.NoError(t, err)
	_, err = env.posts().DeletePost(ctx, ann.ID, post.ID)
	require.NoError(t, err)

	like, err := env.store.Likes.FindByPostAndMember(ctx, post.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LikeDeletionPostDeletion, like.DeletionReason)

	_, err = env.likes().ToggleLike(ctx, bob.ID, post.ID)
	assertCode(t, err, models.CodeNotFound)
	_, err = env.likes().CountLikes(ctx, post.ID)
	assertCode(t, err, models.CodeNotFound)

	still, err := env.store.Likes.FindByPostAndMember(ctx, post.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, still.IsDeleted())
}

func TestLikeService_PostDeletionLikeNotRestorable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ann := env.member(t, "ann@example.com", "ann")
	bob := env.member(t, "bob@example.com", "bob")
	post := env.post(t, ann)

	// A like swept by a cascade on a post that is still readable, as left
	// behind by an interrupted cascade.
	like := &models.Like{PostID: post.ID, MemberID: bob.ID, DeletionReason: models.LikeDeletionPostDeletion}
	like.SetState(models.DeletedState(env.clock.Now()))
	require.NoError(t, env.store.Likes.Create(ctx, like))

	_, err := env.likes().ToggleLike(ctx, bob.ID, post.ID)
	assertCode(t, err, models.CodeNotRestorable)
}
