package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token 作用域，会员与管理员使用不同的密钥和作用域
const (
	ScopeMember = "member"
	ScopeAdmin  = "admin"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrScopeMismatch = errors.New("token scope mismatch")
)

type Claims struct {
	UserID int64  `json:"user_id"`
	Scope  string `json:"scope"`
	jwt.RegisteredClaims
}

// GenerateToken 生成会员 token
func GenerateToken(userID int64, secret string, expireHours int) (string, error) {
	return GenerateScopedToken(userID, ScopeMember, secret, expireHours)
}

// GenerateScopedToken 生成指定作用域的 token
func GenerateScopedToken(userID int64, scope, secret string, expireHours int) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Scope:  scope,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken 解析并校验 token
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseScopedToken 解析 token 并要求作用域匹配
// 旧 token 没有 scope 字段时按会员处理
func ParseScopedToken(tokenString, secret, scope string) (*Claims, error) {
	claims, err := ParseToken(tokenString, secret)
	if err != nil {
		return nil, err
	}

	got := claims.Scope
	if got == "" {
		got = ScopeMember
	}
	if got != scope {
		return nil, ErrScopeMismatch
	}
	return claims, nil
}
