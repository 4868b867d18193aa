package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/mlm_go_server/internal/model/dto"
	"github.com/qs3c/mlm_go_server/internal/pkg/response"
	"github.com/qs3c/mlm_go_server/internal/service"
)

type EarningsHandler struct {
	earningsService *service.EarningsService
}

func NewEarningsHandler(earningsService *service.EarningsService) *EarningsHandler {
	return &EarningsHandler{
		earningsService: earningsService,
	}
}

// List 收益明细
// GET /api/users/earnings?status_filter=&date_from=&date_to=&page=&limit=
func (h *EarningsHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req dto.EarningsListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.earningsService.List(userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, resp)
}

// Summary 收益概览
// GET /api/users/earnings/summary
func (h *EarningsHandler) Summary(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	resp, err := h.earningsService.Summary(userID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, resp)
}

// Export 导出收益 CSV
// GET /api/users/earnings/export
func (h *EarningsHandler) Export(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req dto.EarningsListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	var buf bytes.Buffer
	if err := h.earningsService.ExportCSV(userID, &req, &buf); err != nil {
		respondError(c, err)
		return
	}

	filename := fmt.Sprintf("earnings-%s.csv", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// ExportLink 将收益 CSV 上传到对象存储并返回临时链接，筛选条件与 Export 相同，走 query 参数
// POST /api/users/earnings/export-link?status_filter=&date_from=&date_to=
func (h *EarningsHandler) ExportLink(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req dto.EarningsListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.earningsService.ExportToStorage(userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, resp)
}
