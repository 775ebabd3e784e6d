package service

import (
	"context"
	"testing"
	"time"

	"community/internal/cache"
	"community/internal/models"
	"community/internal/testutil"
	"community/internal/tombstone"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "Secret1!"

func signupInput(email, nickname string) SignupInput {
	return SignupInput{
		Email:           email,
		Password:        testPassword,
		ConfirmPassword: testPassword,
		Nickname:        nickname,
	}
}

func TestMemberService_Signup_Validation(t *testing.T) {
	env := newTestEnv(t)
	svc := env.members()
	ctx := context.Background()

	tests := []struct {
		name string
		in   SignupInput
	}{
		{"bad email", signupInput("nope", "ann")},
		{"weak password", SignupInput{Email: "a@example.com", Password: "password", ConfirmPassword: "password", Nickname: "ann"}},
		{"confirm mismatch", SignupInput{Email: "a@example.com", Password: testPassword, ConfirmPassword: "Secret2!", Nickname: "ann"}},
		{"nickname with space", signupInput("a@example.com", "an n")},
		{"nickname too long", signupInput("a@example.com", "abcdefghijk")},
		{"tagged email", signupInput("deleted_a@example.com", "ann")},
		{"tagged nickname", signupInput("a@example.com", "deleted_an")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Signup(ctx, tt.in)
			assertValidationError(t, err)
		})
	}
}

func TestMemberService_SignupAndLogin(t *testing.T) {
	env := newTestEnv(t)
	svc := env.members()
	ctx := context.Background()

	m, err := svc.Signup(ctx, signupInput(" ann@example.com ", "ann"))
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", m.Email)
	assert.True(t, m.Active)
	assert.NotEqual(t, testPassword, m.PasswordHash)

	_, err = svc.Signup(ctx, signupInput("ann@example.com", "other"))
	assertCode(t, err, models.CodeConflict)
	_, err = svc.Signup(ctx, signupInput("other@example.com", "ann"))
	assertCode(t, err, models.CodeConflict)

	got, err := svc.Login(ctx, LoginInput{Email: "ann@example.com", Password: testPassword})
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)

	_, err = svc.Login(ctx, LoginInput{Email: "ann@example.com", Password: "Wrong1!x"})
	assertCode(t, err, models.CodeUnauthorized)
	_, err = svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: testPassword})
	assertCode(t, err, models.CodeUnauthorized)
	_, err = svc.Login(ctx, LoginInput{Email: "ann@example.com"})
	assertValidationError(t, err)
}

func TestMemberService_WithdrawThenRestoreOnLogin(t *testing.T) {
	env := newTestEnv(t)
	svc := env.members()
	ctx := context.Background()

	m, err := svc.Signup(ctx, signupInput("ann@example.com", "ann"))
	require.NoError(t, err)

	require.NoError(t, svc.Withdraw(ctx, m.ID))
	assertCode(t, svc.Withdraw(ctx, m.ID), models.CodeAlreadyDeleted)

	_, err = svc.GetMe(ctx, m.ID)
	assertCode(t, err, models.CodeNotFound)

	// The withdrawn identity stays reserved during the grace window.
	_, err = svc.Signup(ctx, signupInput("ann@example.com", "bob"))
	assertCode(t, err, models.CodeConflict)

	env.clock.Advance(29 * 24 * time.Hour)
	restored, err := svc.Login(ctx, LoginInput{Email: "ann@example.com", Password: testPassword})
	require.NoError(t, err)
	assert.Equal(t, m.ID, restored.ID)
	assert.False(t, restored.IsDeleted())
	assert.True(t, restored.Active)
	assert.Equal(t, "ann@example.com", restored.Email)
	assert.Equal(t, "ann", restored.Nickname)

	me, err := svc.GetMe(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, me.OriginalEmail)
	assert.Empty(t, me.OriginalNickname)
}

func TestMemberService_LoginAfterGraceWindow(t *testing.T) {
	env := newTestEnv(t)
	svc := env.members()
	ctx := context.Background()

	m, err := svc.Signup(ctx, signupInput("ann@example.com", "ann"))
	require.NoError(t, err)
	require.NoError(t, svc.Withdraw(ctx, m.ID))

	env.clock.Advance(31 * 24 * time.Hour)
	_, err = svc.Login(ctx, LoginInput{Email: "ann@example.com", Password: testPassword})
	assertCode(t, err, models.CodeNotRestorable)

	stored, err := env.store.Members.GetByIDIncludingDeleted(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted())
}

func TestMemberService_RestoreConflict(t *testing.T) {
	env := newTestEnv(t)
	svc := env.members()
	ctx := context.Background()

	// A row withdrawn before side-fields existed carries its tagged identity.
	legacy, err := svc.Signup(ctx, signupInput("ann@example.com", "ann"))
	require.NoError(t, err)
	legacy.Email = "deleted_ann@example.com_a1b2c3"
	legacy.Nickname = "deleted_ann_a1b2c3"
	legacy.Active = false
	legacy.SetState(models.DeletedState(env.clock.Now().Add(-5 * 24 * time.Hour)))
	require.NoError(t, env.store.Members.Update(ctx, legacy))

	env.member(t, "someone@example.com", "ann")

	_, err = svc.Login(ctx, LoginInput{Email: "ann@example.com", Password: testPassword})
	assertCode(t, err, models.CodeConflict)

	stored, err := env.store.Members.GetByIDIncludingDeleted(ctx, legacy.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted())
	assert.Equal(t, "deleted_ann_a1b2c3", stored.Nickname)
}

func TestMemberService_WithdrawMissing(t *testing.T) {
	env := newTestEnv(t)
	assertCode(t, env.members().Withdraw(context.Background(), 42), models.CodeNotFound)
}

func TestMemberService_UpdateProfileAndPassword(t *testing.T) {
	env := newTestEnv(t)
	svc := env.members()
	ctx := context.Background()

	m, err := svc.Signup(ctx, signupInput("ann@example.com", "ann"))
	require.NoError(t, err)
	env.member(t, "bob@example.com", "bob")

	_, err = svc.UpdateProfile(ctx, m.ID, "bob", "")
	assertCode(t, err, models.CodeConflict)
	_, err = svc.UpdateProfile(ctx, m.ID, "a n", "")
	assertValidationError(t, err)

	updated, err := svc.UpdateProfile(ctx, m.ID, "annie", "/uploads/profiles/x.png")
	require.NoError(t, err)
	assert.Equal(t, "annie", updated.Nickname)
	assert.Equal(t, "/uploads/profiles/x.png", updated.ProfileImageURL)

	err = svc.UpdatePassword(ctx, UpdatePasswordInput{MemberID: m.ID, Password: "Newpass1!", ConfirmPassword: "Other1!x"})
	assertValidationError(t, err)
	require.NoError(t, svc.UpdatePassword(ctx, UpdatePasswordInput{MemberID: m.ID, Password: "Newpass1!", ConfirmPassword: "Newpass1!"}))

	_, err = svc.Login(ctx, LoginInput{Email: "ann@example.com", Password: testPassword})
	assertCode(t, err, models.CodeUnauthorized)
	_, err = svc.Login(ctx, LoginInput{Email: "ann@example.com", Password: "Newpass1!"})
	require.NoError(t, err)
}

func TestMemberService_LoginWithdrawnWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	w := testutil.WithdrawnMember("old@example.com", "old", env.clock.Now().Add(-40*24*time.Hour))
	testutil.MustCreate(t, env.store.DB(), w)

	_, err := env.members().Login(ctx, LoginInput{Email: "old@example.com", Password: testPassword})
	assertCode(t, err, models.CodeUnauthorized)
}

func TestMemberService_LoginAnonymizedIsUnauthorized(t *testing.T) {
	env := newTestEnv(t)
	svc := env.members()
	ctx := context.Background()

	m, err := svc.Signup(ctx, signupInput("ann@example.com", "ann"))
	require.NoError(t, err)
	require.NoError(t, svc.Withdraw(ctx, m.ID))

	env.clock.Advance(31 * 24 * time.Hour)
	stored, err := env.store.Members.GetByIDIncludingDeleted(ctx, m.ID)
	require.NoError(t, err)
	changed, err := tombstone.Anonymize(stored, env.clock.Now(), "abc123")
	require.NoError(t, err)
	require.True(t, changed)
	require.NoError(t, env.store.Members.Update(ctx, stored))

	_, err = svc.Login(ctx, LoginInput{Email: "ann@example.com", Password: testPassword})
	assertCode(t, err, models.CodeUnauthorized)
}

func TestMemberService_UpdateProfileInvalidatesCachedPages(t *testing.T) {
	mr := miniredis.RunT(t)
	cache.SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { cache.SetClient(nil) })

	env := newTestEnv(t)
	svc := env.members()
	ctx := context.Background()

	m, err := svc.Signup(ctx, signupInput("ann@example.com", "ann"))
	require.NoError(t, err)
	own := env.post(t, m)
	other := env.post(t, env.member(t, "bob@example.com", "bob"))
	testutil.MustCreate(t, env.store.DB(), &models.Comment{PostID: other.ID, MemberID: &m.ID, Content: "hi"})

	warm := func() {
		for _, key := range []string{cache.PostKey(own.ID), cache.PostCommentsKey(own.ID), cache.PostKey(other.ID)} {
			require.NoError(t, mr.Set(key, "{}"))
		}
	}

	warm()
	_, err = svc.UpdateProfile(ctx, m.ID, "annie", "")
	require.NoError(t, err)
	assert.False(t, mr.Exists(cache.PostKey(own.ID)))
	assert.False(t, mr.Exists(cache.PostCommentsKey(own.ID)))
	assert.False(t, mr.Exists(cache.PostKey(other.ID)))

	warm()
	_, err = svc.UpdateProfile(ctx, m.ID, "annie", "")
	require.NoError(t, err)
	assert.True(t, mr.Exists(cache.PostKey(own.ID)), "unchanged profile keeps cached pages")

	_, err = svc.UpdateProfile(ctx, m.ID, "annie", "/uploads/profiles/new.png")
	require.NoError(t, err)
	assert.False(t, mr.Exists(cache.PostKey(other.ID)))
}
