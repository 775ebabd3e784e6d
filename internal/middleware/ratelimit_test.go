package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limitedApp(rdb *redis.Client, policy FailPolicy) *fiber.App {
	app := fiber.New()
	app.Post("/login", RateLimitWithPolicy(rdb, 2, time.Minute, policy, "login"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func statusOf(t *testing.T, app *fiber.App) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/login", nil))
	require.NoError(t, err)
	return resp.StatusCode
}

func TestRateLimit_BlocksAfterLimit(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	mr := miniredis.RunT(t)
	app := limitedApp(redis.NewClient(&redis.Options{Addr: mr.Addr()}), FailOpen)

	assert.Equal(t, http.StatusOK, statusOf(t, app))
	assert.Equal(t, http.StatusOK, statusOf(t, app))
	assert.Equal(t, http.StatusTooManyRequests, statusOf(t, app))

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], "rl:login:ip:")
	assert.True(t, mr.TTL(keys[0]) > 0)

	mr.FastForward(2 * time.Minute)
	assert.Equal(t, http.StatusOK, statusOf(t, app))
}

func TestRateLimit_DisabledOutsideProduction(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	app := limitedApp(nil, FailClosed)

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, statusOf(t, app))
	}
}

func TestRateLimit_FailPolicies(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	assert.Equal(t, http.StatusOK, statusOf(t, limitedApp(nil, FailOpen)))
	assert.Equal(t, http.StatusServiceUnavailable, statusOf(t, limitedApp(nil, FailClosed)))
}
