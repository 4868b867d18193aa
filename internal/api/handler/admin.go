package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/mlm_go_server/internal/model/dto"
	"github.com/qs3c/mlm_go_server/internal/pkg/response"
	"github.com/qs3c/mlm_go_server/internal/service"
)

type AdminHandler struct {
	memberService    *service.MemberService
	referralService  *service.ReferralService
	kycService       *service.KYCService
	earningsService  *service.EarningsService
	milestoneService *service.MilestoneService
	paymentService   *service.PaymentService
}

func NewAdminHandler(
	memberService *service.MemberService,
	referralService *service.ReferralService,
	kycService *service.KYCService,
	earningsService *service.EarningsService,
	milestoneService *service.MilestoneService,
	paymentService *service.PaymentService,
) *AdminHandler {
	return &AdminHandler{
		memberService:    memberService,
		referralService:  referralService,
		kycService:       kycService,
		earningsService:  earningsService,
		milestoneService: milestoneService,
		paymentService:   paymentService,
	}
}

// ListMembers 会员列表
// GET /admin/members?search=&tier=&suspended=&kyc_status=
func (h *AdminHandler) ListMembers(c *gin.Context) {
	var req dto.AdminMemberListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	items, total, err := h.memberService.AdminList(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	page, pageSize := service.NormalizePage(req.Page, req.PageSize)
	response.SuccessPage(c, total, page, pageSize, items)
}

// UpdateMember 修改会员资料
// PUT /admin/members/:id
func (h *AdminHandler) UpdateMember(c *gin.Context) {
	memberID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.AdminUpdateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	info, err := h.memberService.AdminUpdate(memberID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "更新成功", info)
}

// SuspendMember 封禁或解封会员
// PUT /admin/members/:id/suspend
func (h *AdminHandler) SuspendMember(c *gin.Context) {
	memberID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.SuspendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	info, err := h.memberService.SetSuspended(memberID, *req.Suspended)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, info)
}

// AssignSponsor 为没有推荐人的会员指定推荐人
// PUT /admin/members/:id/sponsor
func (h *AdminHandler) AssignSponsor(c *gin.Context) {
	memberID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.AssignSponsorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	if _, err := h.referralService.AssignSponsor(c.Request.Context(), memberID, req.SponsorID); err != nil {
		respondError(c, err)
		return
	}

	info, err := h.memberService.GetProfile(memberID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "推荐人已设置", info)
}

// ReviewKYC 审核 KYC
// PUT /admin/kyc/:user_id/review
func (h *AdminHandler) ReviewKYC(c *gin.Context) {
	memberID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	var req dto.KYCReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	member, err := h.kycService.Review(c.Request.Context(), memberID, *req.Approved, req.RejectionReason)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id":              member.ID,
		"kyc_status":           member.KYCStatus,
		"kyc_rejection_reason": member.KYCRejectionReason,
	})
}

// ListCommissions 佣金列表
// GET /admin/commissions?status=&recipient_id=&payment_id=
func (h *AdminHandler) ListCommissions(c *gin.Context) {
	var req dto.AdminCommissionListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	items, total, err := h.earningsService.AdminList(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	page, pageSize := service.NormalizePage(req.Page, req.PageSize)
	response.SuccessPage(c, total, page, pageSize, items)
}

// UpdateCommissionStatus 推进佣金状态
// PUT /admin/commissions/:id/status
func (h *AdminHandler) UpdateCommissionStatus(c *gin.Context) {
	commissionID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.UpdateCommissionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	commission, err := h.earningsService.UpdateStatus(c.Request.Context(), commissionID, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, commission)
}

// ListMilestones 里程碑奖励列表
// GET /admin/milestones?status=&user_id=
func (h *AdminHandler) ListMilestones(c *gin.Context) {
	var req dto.MilestoneListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.milestoneService.List(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, resp)
}

// MarkMilestonePaid 标记里程碑奖励已发放
// PUT /admin/milestones/:id/mark-paid
func (h *AdminHandler) MarkMilestonePaid(c *gin.Context) {
	awardID, ok := pathID(c, "id")
	if !ok {
		return
	}

	award, err := h.milestoneService.MarkAsPaid(awardID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "已标记为发放", award)
}

// ListPayments 订单列表
// GET /admin/payments?status=&user_id=
func (h *AdminHandler) ListPayments(c *gin.Context) {
	var req dto.PaymentListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	items, total, err := h.paymentService.List(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	page, pageSize := service.NormalizePage(req.Page, req.PageSize)
	response.SuccessPage(c, total, page, pageSize, items)
}
