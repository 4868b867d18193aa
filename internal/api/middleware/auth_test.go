package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/mlm_go_server/internal/pkg/jwt"
	"github.com/qs3c/mlm_go_server/internal/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	testJWTSecret   = "test-secret-key-for-middleware"
	testAdminSecret = "test-admin-secret-for-middleware"
)

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func serve(router *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/test", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func memberRouter() *gin.Engine {
	router := gin.New()
	router.Use(Auth(testJWTSecret))
	router.GET("/test", func(c *gin.Context) {
		userID, _ := GetUserID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})
	return router
}

func TestAuth_Success(t *testing.T) {
	token, err := jwt.GenerateToken(123, testJWTSecret, 24)
	require.NoError(t, err)

	w := serve(memberRouter(), "Bearer "+token)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, float64(123), result["user_id"])
}

func TestAuth_Rejections(t *testing.T) {
	wrongSecret, err := jwt.GenerateToken(123, "different-secret", 24)
	require.NoError(t, err)
	expired, err := jwt.GenerateToken(123, testJWTSecret, 0)
	require.NoError(t, err)
	adminToken, err := jwt.GenerateScopedToken(1, jwt.ScopeAdmin, testJWTSecret, 24)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"no bearer prefix", "some-token-without-bearer"},
		{"invalid token", "Bearer invalid-token"},
		{"wrong secret", "Bearer " + wrongSecret},
		{"expired", "Bearer " + expired},
		{"admin scope", "Bearer " + adminToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(memberRouter(), tt.header)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, response.CodeAuthFailed, parseResponse(t, w).Code)
		})
	}
}

func TestAdminAuth(t *testing.T) {
	router := gin.New()
	router.Use(AdminAuth(testAdminSecret))
	router.GET("/test", func(c *gin.Context) {
		adminID, ok := GetAdminID(c)
		assert.True(t, ok)
		_, isMember := GetUserID(c)
		assert.False(t, isMember)
		response.Success(c, gin.H{"admin_id": adminID})
	})

	adminToken, err := jwt.GenerateScopedToken(7, jwt.ScopeAdmin, testAdminSecret, 8)
	require.NoError(t, err)
	w := serve(router, "Bearer "+adminToken)
	assert.Equal(t, response.CodeSuccess, parseResponse(t, w).Code)

	// 会员 token 即使用同一密钥签发也不能访问后台
	memberToken, err := jwt.GenerateToken(7, testAdminSecret, 8)
	require.NoError(t, err)
	w = serve(router, "Bearer "+memberToken)
	assert.Equal(t, response.CodeAuthFailed, parseResponse(t, w).Code)

	// 会员密钥签发的 admin token 同样无效
	forged, err := jwt.GenerateScopedToken(7, jwt.ScopeAdmin, testJWTSecret, 8)
	require.NoError(t, err)
	w = serve(router, "Bearer "+forged)
	assert.Equal(t, response.CodeAuthFailed, parseResponse(t, w).Code)
}

func TestOptionalAuth(t *testing.T) {
	router := gin.New()
	router.Use(OptionalAuth(testJWTSecret))
	router.GET("/test", func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if ok {
			c.JSON(http.StatusOK, gin.H{"user_id": userID, "authenticated": true})
		} else {
			c.JSON(http.StatusOK, gin.H{"authenticated": false})
		}
	})

	token, err := jwt.GenerateToken(456, testJWTSecret, 24)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		authed bool
	}{
		{"valid token", "Bearer " + token, true},
		{"no token", "", false},
		{"invalid token", "Bearer invalid-token", false},
		{"invalid format", "no-bearer-prefix", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, tt.header)
			assert.Equal(t, http.StatusOK, w.Code)

			var result map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
			assert.Equal(t, tt.authed, result["authenticated"].(bool))
			if tt.authed {
				assert.Equal(t, float64(456), result["user_id"])
			}
		})
	}
}

func TestGetUserID(t *testing.T) {
	router := gin.New()
	router.GET("/test", func(c *gin.Context) {
		userID, ok := GetUserID(c)
		assert.False(t, ok)
		assert.Equal(t, int64(0), userID)

		c.Set(UserIDKey, "not-an-int64")
		_, ok = GetUserID(c)
		assert.False(t, ok)

		c.Set(UserIDKey, int64(789))
		userID, ok = GetUserID(c)
		assert.True(t, ok)
		assert.Equal(t, int64(789), userID)
		c.JSON(http.StatusOK, gin.H{})
	})

	w := serve(router, "")
	assert.Equal(t, http.StatusOK, w.Code)
}
