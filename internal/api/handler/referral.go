package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/mlm_go_server/internal/pkg/response"
	"github.com/qs3c/mlm_go_server/internal/service"
)

type ReferralHandler struct {
	referralService *service.ReferralService
}

func NewReferralHandler(referralService *service.ReferralService) *ReferralHandler {
	return &ReferralHandler{
		referralService: referralService,
	}
}

// Capture 推荐落地页记录推荐码，返回注册时使用的一次性 token
// GET /api/referrals/capture/:code
func (h *ReferralHandler) Capture(c *gin.Context) {
	code := c.Param("code")
	if code == "" {
		response.ParamError(c, "推荐码不能为空")
		return
	}

	resp, err := h.referralService.Capture(c.Request.Context(), code)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, resp)
}
