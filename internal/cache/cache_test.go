package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { SetClient(nil) })
	return mr
}

type payload struct {
	Name string `json:"name"`
}

func TestAside(t *testing.T) {
	mr := setupMiniredis(t)
	ctx := context.Background()

	calls := 0
	fetch := func(dest *payload) func() error {
		return func() error {
			calls++
			dest.Name = "fresh"
			return nil
		}
	}

	var first payload
	require.NoError(t, Aside(ctx, PostKey(1), &first, time.Minute, fetch(&first)))
	assert.Equal(t, "fresh", first.Name)
	assert.True(t, mr.Exists(PostKey(1)))

	var second payload
	require.NoError(t, Aside(ctx, PostKey(1), &second, time.Minute, fetch(&second)))
	assert.Equal(t, "fresh", second.Name)
	assert.Equal(t, 1, calls)

	InvalidatePost(ctx, 1)
	assert.False(t, mr.Exists(PostKey(1)))
}

func TestAsidePropagatesFetchError(t *testing.T) {
	mr := setupMiniredis(t)
	boom := errors.New("boom")

	var dest payload
	err := Aside(context.Background(), PostCommentsKey(2), &dest, time.Minute, func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(PostCommentsKey(2)))
}

func TestAsideWithoutRedis(t *testing.T) {
	SetClient(nil)

	var dest payload
	err := Aside(context.Background(), PostKey(3), &dest, time.Minute, func() error {
		dest.Name = "db"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "db", dest.Name)

	ok, err := AcquireLease(context.Background(), "cleanup", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAcquireLease(t *testing.T) {
	mr := setupMiniredis(t)
	ctx := context.Background()

	ok, err := AcquireLease(ctx, "cleanup:2024-01-01", "replica-a", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = AcquireLease(ctx, "cleanup:2024-01-01", "replica-b", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(2 * time.Hour)
	ok, err = AcquireLease(ctx, "cleanup:2024-01-01", "replica-b", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClientOptions(t *testing.T) {
	tests := []struct {
		in       string
		wantAddr string
		wantPass string
		wantDB   int
		wantTLS  bool
	}{
		{"redis://:mypassword@redis:6379/1", "redis:6379", "mypassword", 1, false},
		{"rediss://:s3cret@redis.example.com:6380/2", "redis.example.com:6380", "s3cret", 2, true},
		{"redis:6379", "redis:6379", "", 0, false},
		{"", "localhost:6379", "", 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			opts, err := clientOptions(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.wantAddr, opts.Addr)
			assert.Equal(t, tc.wantPass, opts.Password)
			assert.Equal(t, tc.wantDB, opts.DB)
			assert.Equal(t, tc.wantTLS, opts.TLSConfig != nil)
			require.NotNil(t, opts.MaintNotificationsConfig)
		})
	}

	_, err := clientOptions("redis://host:6379/notadb")
	assert.Error(t, err)
}

func TestInitRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Cleanup(func() { SetClient(nil) })

	InitRedis(mr.Addr())
	require.NotNil(t, GetClient())

	mr.Close()
	InitRedis(mr.Addr())
	assert.Nil(t, GetClient())
}
