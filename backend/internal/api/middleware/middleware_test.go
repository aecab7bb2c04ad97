package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"routine-scheduler/backend/config"
	"routine-scheduler/backend/pkg/jwt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "middleware-test-secret-0123456789"

func signAccess(t *testing.T, role, tokenType string) string {
	t.Helper()
	claims := jwt.Claims{
		UserID:    "user-1",
		Role:      role,
		TokenType: tokenType,
		RegisteredClaims: jwtv5.RegisteredClaims{
			ExpiresAt: jwtv5.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func protectedRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers := append(mw, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("user_id")})
	})
	r.POST("/routines/slots", handlers...)
	return r
}

func TestJWTAuthAndRoleAuth(t *testing.T) {
	mgr := jwt.NewManager(&config.AuthConfig{JWTSecret: testSecret})
	r := protectedRouter(JWTAuth(mgr), RoleAuth(RoleAdmin, RoleCoordinator))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"缺少认证头", "", http.StatusUnauthorized},
		{"格式错误", "Token abc", http.StatusUnauthorized},
		{"签名无效", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"refresh token", "Bearer " + signAccess(t, RoleAdmin, "refresh"), http.StatusUnauthorized},
		{"角色不足", "Bearer " + signAccess(t, "teacher", "access"), http.StatusForbidden},
		{"协调员", "Bearer " + signAccess(t, RoleCoordinator, "access"), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/routines/slots", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

type fakeLimiter struct {
	allowed bool
	err     error
	keys    []string
}

func (f *fakeLimiter) CheckRateLimit(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allowed, f.err
}

func TestRateLimit(t *testing.T) {
	logger := zap.NewNop()
	setUser := func(c *gin.Context) { c.Set("user_id", "user-1"); c.Next() }

	t.Run("超限返回 429", func(t *testing.T) {
		limiter := &fakeLimiter{allowed: false}
		r := protectedRouter(setUser, RateLimit(limiter, 10, time.Minute, logger))

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/routines/slots", nil))

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		require.Len(t, limiter.keys, 1)
		assert.Equal(t, "user-1:/routines/slots", limiter.keys[0])
	})

	t.Run("Redis 出错降级放行", func(t *testing.T) {
		r := protectedRouter(setUser, RateLimit(&fakeLimiter{err: errors.New("redis down")}, 10, time.Minute, logger))

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/routines/slots", nil))

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("未配置限流器放行", func(t *testing.T) {
		r := protectedRouter(RateLimit(nil, 10, time.Minute, logger))

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/routines/slots", nil))

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "req-123", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Len(t, w.Header().Get("X-Request-ID"), 36)
}
