package cascade

import (
	"context"
	"testing"
	"time"

	"community/internal/models"
	"community/internal/repository"
	"community/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	store  *repository.Store
	post   *models.Post
	author *models.Member
}

func newFixture(t *testing.T, comments, images, likes int) *fixture {
	t.Helper()
	db := testutil.NewDB(t)

	author := &models.Member{Email: "ann@example.com", Nickname: "ann", PasswordHash: "x", Active: true}
	testutil.MustCreate(t, db, author)
	post := &models.Post{MemberID: &author.ID, Title: "title", Content: "body"}
	testutil.MustCreate(t, db, post)

	for i := 0; i < comments; i++ {
		testutil.MustCreate(t, db, &models.Comment{PostID: post.ID, MemberID: &author.ID, Content: "c"})
	}
	for i := 0; i < images; i++ {
		testutil.MustCreate(t, db, &models.Image{PostID: post.ID, URL: "u", OrderIndex: i})
	}
	for i := 0; i < likes; i++ {
		liker := &models.Member{
			Email:        "liker" + string(rune('a'+i)) + "@example.com",
			Nickname:     "liker" + string(rune('a'+i)),
			PasswordHash: "x",
			Active:       true,
		}
		testutil.MustCreate(t, db, liker)
		testutil.MustCreate(t, db, &models.Like{PostID: post.ID, MemberID: liker.ID, DeletionReason: models.LikeDeletionNone})
	}

	store := repository.NewStore(db)
	_, err := store.Posts.RefreshCommentCount(context.Background(), post.ID)
	require.NoError(t, err)

	return &fixture{db: db, store: store, post: post, author: author}
}

func countLive(t *testing.T, db *gorm.DB, model interface{}, postID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Where("post_id = ? AND deleted = ?", postID, false).Count(&n).Error)
	return n
}

func TestDeletePost_TombstonesEveryDependent(t *testing.T) {
	f := newFixture(t, 3, 2, 4)
	o := NewOrchestrator(f.store)
	ctx := context.Background()
	now := testutil.Date(2024, time.April, 10)

	result, err := o.DeletePost(ctx, f.post.ID, now)
	require.NoError(t, err)
	assert.Equal(t, Result{Comments: 3, Images: 2, Likes: 4}, result)

	assert.Zero(t, countLive(t, f.db, &models.Comment{}, f.post.ID))
	assert.Zero(t, countLive(t, f.db, &models.Image{}, f.post.ID))
	assert.Zero(t, countLive(t, f.db, &models.Like{}, f.post.ID))

	post, err := f.store.Posts.GetByIDIncludingDeleted(ctx, f.post.ID)
	require.NoError(t, err)
	assert.True(t, post.IsDeleted())
	assert.Equal(t, 0, post.CommentCount)
	at, ok := post.State().DeletedAt()
	require.True(t, ok)
	assert.True(t, at.Equal(now))

	var likes []models.Like
	require.NoError(t, f.db.Where("post_id = ?", f.post.ID).Find(&likes).Error)
	for _, l := range likes {
		assert.Equal(t, models.LikeDeletionPostDeletion, l.DeletionReason)
	}

	_, err = o.DeletePost(ctx, f.post.ID, now.Add(time.Hour))
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))

	again, err := o.TombstoneDependents(ctx, f.post.ID, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, Result{}, again)

	var comment models.Comment
	require.NoError(t, f.db.Where("post_id = ?", f.post.ID).First(&comment).Error)
	assert.True(t, comment.DeletedAt.Equal(now))
}

func TestDeletePost_SkipsAlreadyDeletedDependents(t *testing.T) {
	f := newFixture(t, 2, 0, 0)
	ctx := context.Background()
	earlier := testutil.Date(2024, time.April, 1)
	now := testutil.Date(2024, time.April, 10)

	var first models.Comment
	require.NoError(t, f.db.Where("post_id = ?", f.post.ID).Order("id").First(&first).Error)
	first.SetState(models.DeletedState(earlier))
	require.NoError(t, f.db.Save(&first).Error)

	result, err := NewOrchestrator(f.store).DeletePost(ctx, f.post.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Comments)

	var reloaded models.Comment
	require.NoError(t, f.db.First(&reloaded, first.ID).Error)
	assert.True(t, reloaded.DeletedAt.Equal(earlier))
}

func TestDeletePost_MissingPost(t *testing.T) {
	db := testutil.NewDB(t)
	_, err := NewOrchestrator(repository.NewStore(db)).DeletePost(context.Background(), 404, time.Now())
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))
}

func TestDeletePost_StoreFailureRollsBack(t *testing.T) {
	f := newFixture(t, 2, 1, 0)
	ctx := context.Background()

	// Fails after the dependents have been written.
	require.NoError(t, f.db.Exec(
		"CREATE TRIGGER fail_post_update BEFORE UPDATE ON posts BEGIN SELECT RAISE(ABORT, 'boom'); END",
	).Error)

	_, err := NewOrchestrator(f.store).DeletePost(ctx, f.post.ID, time.Now())
	assert.Equal(t, models.CodeInternal, models.ErrorCode(err))

	assert.EqualValues(t, 2, countLive(t, f.db, &models.Comment{}, f.post.ID))
	assert.EqualValues(t, 1, countLive(t, f.db, &models.Image{}, f.post.ID))
	post, err := f.store.Posts.GetByID(ctx, f.post.ID)
	require.NoError(t, err)
	assert.False(t, post.IsDeleted())
}

func TestTombstoneDependents_SweepsLateRows(t *testing.T) {
	f := newFixture(t, 1, 0, 0)
	ctx := context.Background()
	now := testutil.Date(2024, time.April, 10)
	o := NewOrchestrator(f.store)

	_, err := o.DeletePost(ctx, f.post.ID, now)
	require.NoError(t, err)

	testutil.MustCreate(t, f.db, &models.Comment{PostID: f.post.ID, Content: "late"})

	result, err := o.TombstoneDependents(ctx, f.post.ID, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Comments)
	assert.Zero(t, countLive(t, f.db, &models.Comment{}, f.post.ID))
}

func TestSweepDeletedPosts(t *testing.T) {
	f := newFixture(t, 2, 1, 1)
	ctx := context.Background()
	now := testutil.Date(2024, time.April, 10)
	o := NewOrchestrator(f.store)

	_, err := o.DeletePost(ctx, f.post.ID, now)
	require.NoError(t, err)

	other := &models.Post{MemberID: &f.author.ID, Title: "live", Content: "body"}
	testutil.MustCreate(t, f.db, other)
	testutil.MustCreate(t, f.db, &models.Comment{PostID: other.ID, Content: "stays"})

	testutil.MustCreate(t, f.db, &models.Comment{PostID: f.post.ID, Content: "late"})
	testutil.MustCreate(t, f.db, &models.Image{PostID: f.post.ID, URL: "late", OrderIndex: 5})

	report, err := o.SweepDeletedPosts(ctx, now.Add(time.Hour), 1)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Posts: 1, Result: Result{Comments: 1, Images: 1}}, report)
	assert.Zero(t, countLive(t, f.db, &models.Comment{}, f.post.ID))
	assert.Zero(t, countLive(t, f.db, &models.Image{}, f.post.ID))
	assert.Equal(t, int64(1), countLive(t, f.db, &models.Comment{}, other.ID))

	post, err := f.store.Posts.GetByIDIncludingDeleted(ctx, f.post.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, post.CommentCount)

	again, err := o.SweepDeletedPosts(ctx, now.Add(2*time.Hour), 1)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, again)
}

func TestRecountComments(t *testing.T) {
	f := newFixture(t, 3, 0, 0)
	count, err := RecountComments(context.Background(), f.store, f.post.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
