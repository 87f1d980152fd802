package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/bazarhub/auth-service/internal/infra/config"
	"github.com/bazarhub/auth-service/internal/usecase"
)

type fakeCounterCache struct {
	mu     sync.Mutex
	counts map[string]int
	flags  map[string]bool
	err    error
}

func newFakeCounterCache() *fakeCounterCache {
	return &fakeCounterCache{
		counts: make(map[string]int),
		flags:  make(map[string]bool),
	}
}

func (f *fakeCounterCache) GetCount(_ context.Context, key string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.counts[key], nil
}

func (f *fakeCounterCache) SetCount(_ context.Context, key string, value int, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.counts[key] = value
	return nil
}

func (f *fakeCounterCache) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.counts, key)
	delete(f.flags, key)
	return nil
}

func (f *fakeCounterCache) SetFlag(_ context.Context, key string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.flags[key] = true
	return nil
}

func (f *fakeCounterCache) HasFlag(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	return f.flags[key], nil
}

func throttledRouter(t *testing.T, cache *fakeCounterCache, action usecase.RateLimitAction) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	limiter := usecase.NewRateLimitService(cache, zaptest.NewLogger(t))

	r := gin.New()
	r.Use(EnrichContext())
	r.POST("/probe", Throttle(limiter, nil, action, zaptest.NewLogger(t)), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func performRequest(r *gin.Engine) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/probe", nil)
	req.RemoteAddr = "203.0.113.7:51000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestThrottleCountsAndDenies(t *testing.T) {
	cache := newFakeCounterCache()
	r := throttledRouter(t, cache, usecase.ActionPasswordReset)

	for i := 0; i < 3; i++ {
		if w := performRequest(r); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
		}
	}

	w := performRequest(r)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header on denial")
	}

	var problem ProblemDetails
	if err := json.Unmarshal(w.Body.Bytes(), &problem); err != nil {
		t.Fatalf("unmarshal problem payload: %v", err)
	}
	if problem.Status != http.StatusTooManyRequests {
		t.Fatalf("expected problem status 429, got %d", problem.Status)
	}
	if problem.RetryAfter <= 0 {
		t.Fatalf("expected positive retry_after, got %d", problem.RetryAfter)
	}
}

func TestThrottleDenialDoesNotAdvanceCounter(t *testing.T) {
	cache := newFakeCounterCache()
	r := throttledRouter(t, cache, usecase.ActionPasswordReset)

	for i := 0; i < 6; i++ {
		performRequest(r)
	}

	key := "rate_limit:password_reset:203.0.113.7"
	if got := cache.counts[key]; got != 3 {
		t.Fatalf("expected counter to stay at the limit of 3, got %d", got)
	}
}

func TestThrottleFailsOpenOnCacheError(t *testing.T) {
	cache := newFakeCounterCache()
	cache.err = context.DeadlineExceeded
	r := throttledRouter(t, cache, usecase.ActionLogin)

	for i := 0; i < 10; i++ {
		if w := performRequest(r); w.Code != http.StatusOK {
			t.Fatalf("expected fail-open 200, got %d", w.Code)
		}
	}
}

func TestIPBlockGateRejectsBlockedAddress(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cache := newFakeCounterCache()
	security := usecase.NewSecurityService(config.SecuritySettings{}, nil, nil, cache, nil, nil, zaptest.NewLogger(t))

	r := gin.New()
	r.Use(EnrichContext())
	r.GET("/probe", IPBlockGate(security, zaptest.NewLogger(t)), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.RemoteAddr = "203.0.113.7:51000"

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 before block, got %d", w.Code)
	}

	cache.flags["blocked_ip:203.0.113.7"] = true

	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for blocked ip, got %d", w.Code)
	}
}
