package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/mlm_go_server/internal/model/dto"
	"github.com/qs3c/mlm_go_server/internal/pkg/response"
	"github.com/qs3c/mlm_go_server/internal/service"
)

type TierHandler struct {
	tierService *service.TierService
}

func NewTierHandler(tierService *service.TierService) *TierHandler {
	return &TierHandler{
		tierService: tierService,
	}
}

// Catalog 已开放的会员等级价格与佣金比例
// GET /api/membership/tiers
func (h *TierHandler) Catalog(c *gin.Context) {
	catalog, err := h.tierService.Catalog()
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, catalog)
}

// AdminList 全部会员等级（含未开放）
// GET /admin/tiers
func (h *TierHandler) AdminList(c *gin.Context) {
	tiers, err := h.tierService.List(true)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"tiers": tiers})
}

// AdminUpdate 修改会员等级
// PUT /admin/tiers/:name
func (h *TierHandler) AdminUpdate(c *gin.Context) {
	var req dto.UpdateTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	tier, err := h.tierService.Update(c.Param("name"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "更新成功", tier)
}
