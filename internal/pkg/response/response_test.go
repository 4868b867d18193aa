package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	var resp Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func serve(t *testing.T, h gin.HandlerFunc) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	router := gin.New()
	router.GET("/test", h)

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w, parseResponse(t, w)
}

func TestSuccess(t *testing.T) {
	w, resp := serve(t, func(c *gin.Context) {
		Success(c, gin.H{"key": "value"})
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, CodeSuccess, resp.Code)
	assert.Equal(t, "success", resp.Message)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "value", data["key"])
}

func TestSuccess_NilData(t *testing.T) {
	_, resp := serve(t, func(c *gin.Context) {
		Success(c, nil)
	})

	assert.Equal(t, CodeSuccess, resp.Code)
	assert.Nil(t, resp.Data)
}

func TestSuccessWithMessage(t *testing.T) {
	_, resp := serve(t, func(c *gin.Context) {
		SuccessWithMessage(c, "操作成功", gin.H{"result": true})
	})

	assert.Equal(t, CodeSuccess, resp.Code)
	assert.Equal(t, "操作成功", resp.Message)
}

func TestSuccessPage(t *testing.T) {
	_, resp := serve(t, func(c *gin.Context) {
		SuccessPage(c, 101, 1, 10, []string{"a", "b", "c"})
	})

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(101), data["total"])
	assert.Equal(t, float64(11), data["total_pages"])
	assert.Equal(t, float64(1), data["page"])
	assert.Equal(t, float64(10), data["page_size"])

	items, ok := data["items"].([]interface{})
	require.True(t, ok)
	assert.Len(t, items, 3)
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 0, TotalPages(0, 20))
	assert.Equal(t, 1, TotalPages(1, 20))
	assert.Equal(t, 1, TotalPages(20, 20))
	assert.Equal(t, 2, TotalPages(21, 20))
	assert.Equal(t, 0, TotalPages(5, 0))
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name        string
		fn          func(*gin.Context, string)
		code        int
		defaultText string
	}{
		{"param", ParamError, CodeParamError, "参数错误"},
		{"auth", AuthError, CodeAuthFailed, "认证失败"},
		{"permission", PermissionError, CodePermissionDenied, "权限不足"},
		{"not found", NotFoundError, CodeResourceNotFound, "资源不存在"},
		{"duplicate", DuplicateError, CodeDuplicateAction, "重复操作"},
		{"held", HeldError, CodeEarningsHeld, "收益待 KYC 认证后发放"},
		{"state", StateError, CodeInvalidState, "当前状态不允许该操作"},
		{"rate limit", RateLimitError, CodeRateLimited, "请求过于频繁"},
		{"server", ServerError, CodeServerError, "服务器内部错误"},
	}

	for _, tt := range tests {
		t.Run(tt.name+" default message", func(t *testing.T) {
			w, resp := serve(t, func(c *gin.Context) { tt.fn(c, "") })
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, tt.defaultText, resp.Message)
			assert.Nil(t, resp.Data)
		})

		t.Run(tt.name+" custom message", func(t *testing.T) {
			_, resp := serve(t, func(c *gin.Context) { tt.fn(c, "自定义消息") })
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, "自定义消息", resp.Message)
		})
	}
}

func TestError_UnknownCode(t *testing.T) {
	_, resp := serve(t, func(c *gin.Context) {
		Error(c, 9999, "")
	})

	assert.Equal(t, 9999, resp.Code)
	assert.Empty(t, resp.Message)
}
