package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ollync/backend-payments/internal/common"
)

func newLimiter(t *testing.T) (Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return Limiter{Client: client, Prefix: "payments:rl:"}, mr
}

func TestLimiterAllowsWithinLimit(t *testing.T) {
	limiter, _ := newLimiter(t)

	for i := 0; i < 3; i++ {
		allowed, _, _, err := limiter.Allow(context.Background(), "checkout:user-1", time.Minute, 3)
		require.NoError(t, err)
		require.True(t, allowed)
	}

	allowed, remaining, _, err := limiter.Allow(context.Background(), "checkout:user-1", time.Minute, 3)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, 0, remaining)
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	limiter, _ := newLimiter(t)

	for i := 0; i < 3; i++ {
		_, _, _, err := limiter.Allow(context.Background(), "checkout:user-1", time.Minute, 3)
		require.NoError(t, err)
	}

	allowed, _, _, err := limiter.Allow(context.Background(), "checkout:user-2", time.Minute, 3)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestLimiterDisabledWithoutClient(t *testing.T) {
	limiter := Limiter{}
	allowed, _, _, err := limiter.Allow(context.Background(), "anything", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestMiddlewareReturns429WithHeaders(t *testing.T) {
	limiter, _ := newLimiter(t)
	handler := Handler{
		Limiter: limiter,
		Config: Config{
			Key:    UserOrIPKey,
			Window: time.Minute,
			Max:    1,
		},
	}
	wrapped := handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/session", nil)
		return req.WithContext(common.WithUserID(req.Context(), "user-1"))
	}

	first := httptest.NewRecorder()
	wrapped.ServeHTTP(first, newReq())
	require.Equal(t, http.StatusNoContent, first.Code)

	second := httptest.NewRecorder()
	wrapped.ServeHTTP(second, newReq())
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	require.Contains(t, second.Body.String(), "RATE_LIMITED")
	require.Equal(t, "1", second.Header().Get("X-RateLimit-Limit"))
	require.NotEmpty(t, second.Header().Get("Retry-After"))
}

func TestMiddlewareFailsOpenOnRedisError(t *testing.T) {
	limiter, mr := newLimiter(t)
	mr.Close()

	var sawErr error
	handler := Handler{
		Limiter: limiter,
		Config:  Config{Key: UserOrIPKey, Window: time.Minute, Max: 1},
		OnError: func(err error) { sawErr = err },
	}
	wrapped := handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Error(t, sawErr)
}
