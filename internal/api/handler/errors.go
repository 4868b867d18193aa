package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/mlm_go_server/internal/api/middleware"
	"github.com/qs3c/mlm_go_server/internal/pkg/refsession"
	"github.com/qs3c/mlm_go_server/internal/pkg/response"
	"github.com/qs3c/mlm_go_server/internal/pkg/wallet"
	"github.com/qs3c/mlm_go_server/internal/service"
)

// errorCodes 业务错误到响应码的映射，按顺序匹配
var errorCodes = []struct {
	err  error
	code int
}{
	{service.ErrInvalidCredentials, response.CodeAuthFailed},
	{service.ErrTOTPRequired, response.CodeAuthFailed},
	{service.ErrInvalidTOTP, response.CodeAuthFailed},
	{service.ErrInvalidWebhookSignature, response.CodeAuthFailed},

	{service.ErrMemberSuspended, response.CodePermissionDenied},

	{service.ErrMemberNotFound, response.CodeResourceNotFound},
	{service.ErrSponsorNotFound, response.CodeResourceNotFound},
	{service.ErrTierNotFound, response.CodeResourceNotFound},
	{service.ErrPaymentNotFound, response.CodeResourceNotFound},
	{service.ErrCommissionNotFound, response.CodeResourceNotFound},
	{service.ErrMilestoneNotFound, response.CodeResourceNotFound},
	{service.ErrReferralCodeNotFound, response.CodeResourceNotFound},

	{service.ErrEmailExists, response.CodeDuplicateAction},
	{service.ErrUsernameExists, response.CodeDuplicateAction},
	{service.ErrWalletExists, response.CodeDuplicateAction},
	{service.ErrSponsorAlreadySet, response.CodeDuplicateAction},
	{service.ErrMilestoneAlreadyPaid, response.CodeDuplicateAction},

	{service.ErrEarningsHeld, response.CodeEarningsHeld},

	{service.ErrInvalidStatusTransition, response.CodeInvalidState},
	{service.ErrKYCInvalidState, response.CodeInvalidState},
	{service.ErrReferralCycle, response.CodeInvalidState},
	{service.ErrPaymentNotConfirmed, response.CodeInvalidState},

	{service.ErrSelfSponsor, response.CodeParamError},
	{service.ErrSponsorSuspended, response.CodeParamError},
	{service.ErrTierDisabled, response.CodeParamError},
	{service.ErrTierNotPurchasable, response.CodeParamError},
	{service.ErrInvalidTierName, response.CodeParamError},
	{service.ErrInvalidCommissionRate, response.CodeParamError},
	{service.ErrInvalidTierPrice, response.CodeParamError},
	{service.ErrInvalidMemberTier, response.CodeParamError},
	{service.ErrUnsupportedCurrency, response.CodeParamError},
	{service.ErrUnknownPaymentStatus, response.CodeParamError},
	{service.ErrInvalidPaymentFilter, response.CodeParamError},
	{service.ErrInvalidStatusFilter, response.CodeParamError},
	{service.ErrInvalidDateRange, response.CodeParamError},
	{service.ErrKYCReasonRequired, response.CodeParamError},
	{refsession.ErrInvalidToken, response.CodeParamError},
	{wallet.ErrInvalidAddress, response.CodeParamError},
	{wallet.ErrInvalidSignature, response.CodeParamError},

	{service.ErrStorageUnavailable, response.CodeServerError},
	{service.ErrReferralCaptureUnavailable, response.CodeServerError},
}

// respondError 将业务错误写入统一响应，未知错误记录到 gin 上下文并返回通用错误
func respondError(c *gin.Context, err error) {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			response.Error(c, e.code, e.err.Error())
			return
		}
	}
	_ = c.Error(err)
	response.ServerError(c, "")
}

// currentUserID 未登录时直接写入认证错误
func currentUserID(c *gin.Context) (int64, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
	}
	return userID, ok
}

// pathID 解析路径中的数字 ID
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "无效的ID")
		return 0, false
	}
	return id, true
}
