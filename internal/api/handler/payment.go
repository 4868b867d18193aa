package handler

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/mlm_go_server/internal/model/dto"
	"github.com/qs3c/mlm_go_server/internal/pkg/response"
	"github.com/qs3c/mlm_go_server/internal/service"
)

type PaymentHandler struct {
	paymentService *service.PaymentService
}

func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// Create 创建等级购买订单
// POST /api/payments/create
func (h *PaymentHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req dto.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.paymentService.Create(userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, resp)
}

// Get 查询订单
// GET /api/payments/:id
func (h *PaymentHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	payment, err := h.paymentService.Get(userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, payment)
}

// List 当前会员的订单
// GET /api/payments
func (h *PaymentHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req dto.PaymentListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	page, pageSize := service.NormalizePage(req.Page, req.PageSize)
	items, total, err := h.paymentService.ListForMember(userID, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}

// Webhook 支付网关回调，签名基于原始请求体
// POST /api/payments/webhook
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		response.ParamError(c, "读取请求体失败")
		return
	}

	if err := h.paymentService.VerifySignature(body, c.GetHeader(service.SignatureHeader)); err != nil {
		respondError(c, err)
		return
	}

	var req dto.PaymentWebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		response.ParamError(c, err.Error())
		return
	}
	if req.PaymentID == "" || req.Status == "" {
		response.ParamError(c, "payment_id 和 status 不能为空")
		return
	}

	if err := h.paymentService.HandleWebhook(c.Request.Context(), &req); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"received": true})
}
