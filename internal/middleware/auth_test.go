package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"marketplace_chat/internal/config"
	"marketplace_chat/internal/domain"
	"marketplace_chat/internal/repository/memory"
	"marketplace_chat/internal/service"
	"marketplace_chat/pkg/logger"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func signToken(t *testing.T, uid string, expiresIn time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, JWTClaims{
		UserID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func newAuthRouter(secret string) *gin.Engine {
	auth := NewAuthMiddleware(config.JWTConfig{Secret: secret}, logger.Nop())
	router := gin.New()
	router.GET("/ws", auth.Identify(), auth.RequireQueryUser("userUid"), func(c *gin.Context) {
		uid, _ := UserID(c)
		c.String(http.StatusOK, uid)
	})
	return router
}

func TestAuthMiddleware(t *testing.T) {
	valid := signToken(t, "u1", time.Hour)
	expired := signToken(t, "u1", -time.Hour)

	tests := []struct {
		name   string
		secret string
		target string
		header string
		status int
	}{
		{"disabled passes through", "", "/ws?userUid=u1", "", http.StatusOK},
		{"missing token", testSecret, "/ws?userUid=u1", "", http.StatusUnauthorized},
		{"bad header format", testSecret, "/ws?userUid=u1", "Token " + valid, http.StatusUnauthorized},
		{"bearer header", testSecret, "/ws?userUid=u1", "Bearer " + valid, http.StatusOK},
		{"query token", testSecret, "/ws?userUid=u1&token=" + valid, "", http.StatusOK},
		{"expired token", testSecret, "/ws?userUid=u1", "Bearer " + expired, http.StatusUnauthorized},
		{"identity mismatch", testSecret, "/ws?userUid=u2", "Bearer " + valid, http.StatusForbidden},
		{"wrong secret", "other", "/ws?userUid=u1", "Bearer " + valid, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			newAuthRouter(tt.secret).ServeHTTP(w, req)
			require.Equal(t, tt.status, w.Code)
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	req := require.New(t)
	limiter := service.NewRateLimitService(memory.NewRateLimitRepository(), logger.Nop())
	router := gin.New()
	router.POST("/resolve", NewRateLimitMiddleware(limiter, logger.Nop()).Limit(domain.RateLimitRule{Scope: domain.RateLimitScopeResolve, Limit: 2, Window: time.Minute}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/resolve", nil))
		codes = append(codes, w.Code)
	}
	req.Equal([]int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestCORSAndRequestID(t *testing.T) {
	req := require.New(t)
	router := gin.New()
	router.Use(RequestID(), CORS([]string{"https://app.example"}))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.Header.Set("Origin", "https://app.example")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	req.Equal("https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
	req.NotEmpty(w.Header().Get("X-Request-ID"))

	r = httptest.NewRequest(http.MethodOptions, "/x", nil)
	r.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, r)
	req.Equal(http.StatusNoContent, w.Code)
	req.Empty(w.Header().Get("Access-Control-Allow-Origin"))
}
