package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/mlm_go_server/internal/model/dto"
	"github.com/qs3c/mlm_go_server/internal/pkg/response"
	"github.com/qs3c/mlm_go_server/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// Register 会员注册
// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "注册成功", resp)
}

// Login 会员登录
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.authService.Login(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "登录成功", resp)
}

// AdminLogin 管理员登录
// POST /admin/auth/login
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	var req dto.AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.authService.AdminLogin(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "登录成功", resp)
}
