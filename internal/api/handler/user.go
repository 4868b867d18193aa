package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/mlm_go_server/internal/model/dto"
	"github.com/qs3c/mlm_go_server/internal/pkg/response"
	"github.com/qs3c/mlm_go_server/internal/service"
)

type UserHandler struct {
	memberService    *service.MemberService
	referralService  *service.ReferralService
	milestoneService *service.MilestoneService
	kycService       *service.KYCService
}

func NewUserHandler(
	memberService *service.MemberService,
	referralService *service.ReferralService,
	milestoneService *service.MilestoneService,
	kycService *service.KYCService,
) *UserHandler {
	return &UserHandler{
		memberService:    memberService,
		referralService:  referralService,
		milestoneService: milestoneService,
		kycService:       kycService,
	}
}

// GetProfile 获取当前会员信息
// GET /api/users/profile
func (h *UserHandler) GetProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	profile, err := h.memberService.GetProfile(userID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, profile)
}

// WalletChallenge 获取绑定钱包需要签名的消息
// GET /api/users/wallet/challenge?address=0x...
func (h *UserHandler) WalletChallenge(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	message, err := h.memberService.WalletChallenge(userID, c.Query("address"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"message": message})
}

// LinkWallet 绑定钱包
// PUT /api/users/wallet
func (h *UserHandler) LinkWallet(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req dto.LinkWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	profile, err := h.memberService.LinkWallet(userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "钱包绑定成功", profile)
}

// NetworkTree 获取推荐树
// GET /api/users/network-tree?depth=3
func (h *UserHandler) NetworkTree(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	depth := 0
	if raw := c.Query("depth"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil {
			response.ParamError(c, "depth 必须为整数")
			return
		}
		depth = d
	}

	tree, err := h.referralService.NetworkTree(userID, depth)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, tree)
}

// Referrals 直推会员列表
// GET /api/users/referrals
func (h *UserHandler) Referrals(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req dto.ReferralListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	page, pageSize := service.NormalizePage(req.Page, req.PageSize)
	items, total, err := h.referralService.DirectReferrals(userID, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}

// Milestones 当前会员的里程碑奖励
// GET /api/users/milestones
func (h *UserHandler) Milestones(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	items, err := h.milestoneService.ListForMember(userID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"milestones": items})
}

// SubmitKYC 提交 KYC 认证
// POST /api/users/kyc/submit
func (h *UserHandler) SubmitKYC(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	member, err := h.kycService.Submit(userID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "KYC 资料已提交，请等待审核", gin.H{"kyc_status": member.KYCStatus})
}
