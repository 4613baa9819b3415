package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GoPolymarket/burngate/internal/config"
	"github.com/GoPolymarket/burngate/internal/pkg/apperrors"
	"github.com/GoPolymarket/burngate/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Auth.AdminKey = "admin-key"
	cfg.Actors = []config.ActorConfig{
		{Name: "keeper", Address: "0x00000000000000000000000000000000000000a2", APIKey: "sk-keeper"},
		{Name: "slow", Address: "0x00000000000000000000000000000000000000a3", APIKey: "sk-slow", QPS: 0.001, Burst: 1},
	}
	return cfg
}

func newRouter(cfg *config.Config, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	registry := service.NewActorRegistry(cfg)
	r := gin.New()
	r.Use(ErrorHandler())
	r.Use(AuthMiddleware(cfg, registry))
	r.Use(RateLimitMiddleware(registry))
	r.Use(extra...)
	return r
}

func do(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(`{}`))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthResolvesActor(t *testing.T) {
	r := newRouter(testConfig())
	r.GET("/whoami", func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"name": actor.Name})
	})

	w := do(r, http.MethodGet, "/whoami", map[string]string{HeaderAPIKey: "sk-keeper"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"name":"keeper"}`, w.Body.String())

	w = do(r, http.MethodGet, "/whoami", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), string(apperrors.CodeInvalidAPIKey))

	w = do(r, http.MethodGet, "/whoami", map[string]string{HeaderAPIKey: "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthFallsBackToDefaultActor(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.RequireAPIKey = false
	r := newRouter(cfg)
	r.GET("/whoami", func(c *gin.Context) {
		actor, _ := ActorFrom(c)
		c.String(http.StatusOK, actor.Name)
	})
	w := do(r, http.MethodGet, "/whoami", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "keeper", w.Body.String())
}

func TestRateLimitPerActor(t *testing.T) {
	r := newRouter(testConfig())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	headers := map[string]string{HeaderAPIKey: "sk-slow"}
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodGet, "/ping", headers).Code)
	w := do(r, http.MethodGet, "/ping", headers)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	// 其他调用方不受影响
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodGet, "/ping", map[string]string{HeaderAPIKey: "sk-keeper"}).Code)
}

func TestErrorHandlerMapsAppErrors(t *testing.T) {
	r := newRouter(testConfig())
	r.POST("/cooldown", func(c *gin.Context) {
		c.Error(apperrors.NotYet(apperrors.CodeCooldownActive, "cooldown active").WithRetryAfter(90*time.Second + time.Millisecond))
	})
	r.POST("/boom", func(c *gin.Context) {
		c.Error(assert.AnError)
	})
	headers := map[string]string{HeaderAPIKey: "sk-keeper"}

	w := do(r, http.MethodPost, "/cooldown", headers)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "91", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), `"code":"COOLDOWN_ACTIVE"`)
	assert.Contains(t, w.Body.String(), `"type":"TEMPORAL"`)

	w = do(r, http.MethodPost, "/boom", headers)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"INTERNAL"`)
}

func TestIdempotencyReplaysResponse(t *testing.T) {
	var calls int32
	r := newRouter(testConfig(), IdempotencyMiddleware(NewInMemIdempotencyStore()))
	r.POST("/execute", func(c *gin.Context) {
		n := atomic.AddInt32(&calls, 1)
		c.JSON(http.StatusOK, gin.H{"call": n})
	})

	headers := map[string]string{HeaderAPIKey: "sk-keeper", HeaderIdempotencyKey: "abc"}
	first := do(r, http.MethodPost, "/execute", headers)
	second := do(r, http.MethodPost, "/execute", headers)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("X-Idempotent-Replay"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// 同一个 key，不同调用方互不影响
	do(r, http.MethodPost, "/execute", map[string]string{HeaderAPIKey: "sk-slow", HeaderIdempotencyKey: "abc"})
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIdempotencyUnlocksOnServerError(t *testing.T) {
	var calls int32
	r := newRouter(testConfig(), IdempotencyMiddleware(NewInMemIdempotencyStore()))
	r.POST("/flaky", func(c *gin.Context) {
		if atomic.AddInt32(&calls, 1) == 1 {
			c.JSON(http.StatusBadGateway, gin.H{"error": "venue down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	headers := map[string]string{HeaderAPIKey: "sk-keeper", HeaderIdempotencyKey: "retry-me"}
	assert.Equal(t, http.StatusBadGateway, do(r, http.MethodPost, "/flaky", headers).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/flaky", headers).Code)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

type downIdempotencyStore struct{}

func (downIdempotencyStore) GetOrLock(context.Context, string) (*IdempotencyRecord, bool) {
	return &IdempotencyRecord{Unavailable: true}, true
}
func (downIdempotencyStore) Save(context.Context, string, int, []byte) {}
func (downIdempotencyStore) Unlock(context.Context, string)            {}

func TestIdempotencyRejectsWhenStoreDown(t *testing.T) {
	var calls int32
	r := newRouter(testConfig(), IdempotencyMiddleware(downIdempotencyStore{}))
	r.POST("/execute", func(c *gin.Context) {
		atomic.AddInt32(&calls, 1)
		c.Status(http.StatusOK)
	})

	w := do(r, http.MethodPost, "/execute", map[string]string{HeaderAPIKey: "sk-keeper", HeaderIdempotencyKey: "abc"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"STORE_UNAVAILABLE"`)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))

	// 没带幂等键的请求不受影响
	w = do(r, http.MethodPost, "/execute", map[string]string{HeaderAPIKey: "sk-keeper"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadOnlyBlocksWrites(t *testing.T) {
	r := newRouter(testConfig(), ReadOnlyMiddleware(true))
	r.GET("/stats", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/execute", func(c *gin.Context) { c.Status(http.StatusOK) })
	headers := map[string]string{HeaderAPIKey: "sk-keeper"}

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/stats", headers).Code)
	w := do(r, http.MethodPost, "/execute", headers)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"READ_ONLY"`)
}

func TestAdminMiddleware(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.AdminSecretKey = "admin-secret"
	r := newRouter(cfg, AdminMiddleware(cfg))
	r.GET("/admin", func(c *gin.Context) { c.Status(http.StatusOK) })

	base := map[string]string{HeaderAPIKey: "sk-keeper"}
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/admin", base).Code)

	withKey := map[string]string{HeaderAPIKey: "sk-keeper", HeaderAdminKey: "admin-key"}
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/admin", withKey).Code)

	withKey[HeaderAdminSecretKey] = "admin-secret"
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/admin", withKey).Code)

	unset := testConfig()
	unset.Auth.AdminKey = ""
	r2 := newRouter(unset, AdminMiddleware(unset))
	r2.GET("/admin", func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusForbidden, do(r2, http.MethodGet, "/admin", withKey).Code)
}
