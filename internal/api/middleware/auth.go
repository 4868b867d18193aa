package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/mlm_go_server/internal/pkg/jwt"
	"github.com/qs3c/mlm_go_server/internal/pkg/response"
)

const (
	UserIDKey  = "userID"
	AdminIDKey = "adminID"
)

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		return "", false
	}
	return tokenString, true
}

// authenticate 校验 token 与作用域，失败时直接写入认证错误
func authenticate(c *gin.Context, secret, scope string) (int64, bool) {
	if c.GetHeader("Authorization") == "" {
		response.AuthError(c, "请提供认证信息")
		c.Abort()
		return 0, false
	}

	tokenString, ok := bearerToken(c)
	if !ok {
		response.AuthError(c, "认证格式错误")
		c.Abort()
		return 0, false
	}

	claims, err := jwt.ParseScopedToken(tokenString, secret, scope)
	if err != nil {
		response.AuthError(c, "认证失败或已过期")
		c.Abort()
		return 0, false
	}
	return claims.UserID, true
}

// Auth 会员 JWT 认证中间件
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := authenticate(c, jwtSecret, jwt.ScopeMember)
		if !ok {
			return
		}
		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// AdminAuth 管理员认证中间件，使用独立的密钥和 admin 作用域
func AdminAuth(adminSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		adminID, ok := authenticate(c, adminSecret, jwt.ScopeAdmin)
		if !ok {
			return
		}
		c.Set(AdminIDKey, adminID)
		c.Next()
	}
}

// OptionalAuth 可选认证中间件（不强制要求登录）
func OptionalAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}

		claims, err := jwt.ParseScopedToken(tokenString, jwtSecret, jwt.ScopeMember)
		if err == nil {
			c.Set(UserIDKey, claims.UserID)
		}

		c.Next()
	}
}

// GetUserID 从上下文获取会员 ID
func GetUserID(c *gin.Context) (int64, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := userID.(int64)
	return id, ok
}

// GetAdminID 从上下文获取管理员 ID
func GetAdminID(c *gin.Context) (int64, bool) {
	adminID, exists := c.Get(AdminIDKey)
	if !exists {
		return 0, false
	}
	id, ok := adminID.(int64)
	return id, ok
}
