package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"marketplace_chat/internal/config"
	apperrors "marketplace_chat/pkg/errors"
	"marketplace_chat/pkg/logger"
)

const userIDKey = "user_id"

// JWTClaims - claims токена провайдера личности
type JWTClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// AuthMiddleware проверяет HS256 токены. С пустым секретом проверка
// отключена и запросы проходят как есть.
type AuthMiddleware struct {
	secret []byte
	issuer string
	log    logger.Logger
}

func NewAuthMiddleware(cfg config.JWTConfig, log logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		log:    log,
	}
}

func (m *AuthMiddleware) Enabled() bool {
	return len(m.secret) > 0
}

// Identify извлекает личность из Authorization: Bearer или параметра token
// (браузерный websocket не умеет ставить заголовки)
func (m *AuthMiddleware) Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.Enabled() {
			c.Next()
			return
		}

		tokenString, err := tokenFromRequest(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		claims, err := m.parseToken(tokenString)
		if err != nil {
			m.log.Debug("Token rejected", "error", err, "path", c.Request.URL.Path)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

// RequireQueryUser требует, чтобы параметр запроса param совпадал с личностью токена
func (m *AuthMiddleware) RequireQueryUser(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.Enabled() {
			c.Next()
			return
		}
		if uid, ok := UserID(c); !ok || uid != strings.TrimSpace(c.Query(param)) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Identity does not match " + param})
			c.Abort()
			return
		}
		c.Next()
	}
}

// UserID возвращает личность, установленную Identify
func UserID(c *gin.Context) (string, bool) {
	uid := c.GetString(userIDKey)
	return uid, uid != ""
}

func tokenFromRequest(c *gin.Context) (string, error) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return "", errors.New("invalid authorization header format")
		}
		return parts[1], nil
	}
	if token := c.Query("token"); token != "" {
		return token, nil
	}
	return "", errors.New("authorization header required")
}

func (m *AuthMiddleware) parseToken(tokenString string) (*JWTClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || strings.TrimSpace(claims.UserID) == "" {
		return nil, apperrors.ErrInvalidToken
	}
	return claims, nil
}
