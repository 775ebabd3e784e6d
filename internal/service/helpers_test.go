package service

import (
	"errors"
	"testing"
	"time"

	"community/internal/models"
	"community/internal/repository"
	"community/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// testClock is a settable time source shared by the services under test.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type testEnv struct {
	store *repository.Store
	clock *testClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return &testEnv{
		store: repository.NewStore(testutil.NewDB(t)),
		clock: &testClock{now: testutil.Date(2024, time.June, 1)},
	}
}

func (e *testEnv) members() *MemberService {
	svc := NewMemberService(e.store, e.clock.Now)
	svc.hashCost = bcrypt.MinCost
	return svc
}

func (e *testEnv) member(t *testing.T, email, nickname string) *models.Member {
	t.Helper()
	m := &models.Member{Email: email, Nickname: nickname, PasswordHash: "x", Active: true}
	testutil.MustCreate(t, e.store.DB(), m)
	return m
}

func (e *testEnv) post(t *testing.T, author *models.Member) *models.Post {
	t.Helper()
	p := &models.Post{MemberID: &author.ID, Title: "title", Content: "content"}
	testutil.MustCreate(t, e.store.DB(), p)
	return p
}

// assertCode asserts that err is an AppError carrying code.
func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
}

func assertValidationError(t *testing.T, err error) {
	t.Helper()
	assertCode(t, err, models.CodeValidation)
}
