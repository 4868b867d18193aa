package handler

import (
	"fmt"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/mlm_go_server/internal/model"
	"github.com/qs3c/mlm_go_server/internal/pkg/response"
	"github.com/qs3c/mlm_go_server/internal/testutil"
)

func adminRouter(ctx *testContext) *gin.Engine {
	router := gin.New()
	router.GET("/members", ctx.Admin.ListMembers)
	router.PUT("/members/:id", ctx.Admin.UpdateMember)
	router.PUT("/members/:id/suspend", ctx.Admin.SuspendMember)
	router.PUT("/members/:id/sponsor", ctx.Admin.AssignSponsor)
	router.PUT("/kyc/:user_id/review", ctx.Admin.ReviewKYC)
	router.GET("/commissions", ctx.Admin.ListCommissions)
	router.PUT("/commissions/:id/status", ctx.Admin.UpdateCommissionStatus)
	router.GET("/milestones", ctx.Admin.ListMilestones)
	router.PUT("/milestones/:id/mark-paid", ctx.Admin.MarkMilestonePaid)
	router.GET("/payments", ctx.Admin.ListPayments)
	return router
}

func TestAdminHandler_ListMembers(t *testing.T) {
	ctx, cleanup := setupHandlers(t)
	defer cleanup()

	testutil.TestMember(t, ctx.DB, testutil.WithUsername("goldie"), testutil.WithTier(model.TierGold))
	testutil.TestMember(t, ctx.DB, testutil.WithUsername("plain"))
	testutil.TestMember(t, ctx.DB, testutil.WithUsername("banned"), testutil.WithSuspended())
	router := adminRouter(ctx)

	w := doJSON(router, "GET", "/members", nil)
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, float64(3), dataMap(t, resp)["total"])

	w = doJSON(router, "GET", "/members?tier=gold", nil)
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, float64(1), dataMap(t, resp)["total"])

	w = doJSON(router, "GET", "/members?suspended=true", nil)
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, float64(1), dataMap(t, resp)["total"])
}

func TestAdminHandler_UpdateAndSuspendMember(t *testing.T) {
	ctx, cleanup := setupHandlers(t)
	defer cleanup()

	member := testutil.TestMember(t, ctx.DB)
	router := adminRouter(ctx)
	path := fmt.Sprintf("/members/%d", member.ID)

	w := doJSON(router, "PUT", path, map[string]interface{}{"membership_tier": model.TierBronze})
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, model.TierBronze, dataMap(t, resp)["membership_tier"])

	w = doJSON(router, "PUT", path, map[string]interface{}{"membership_tier": "platinum"})
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)

	w = doJSON(router, "PUT", path+"/suspend", map[string]interface{}{"suspended": true})
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, true, dataMap(t, resp)["suspended"])

	w = doJSON(router, "PUT", path+"/suspend", map[string]interface{}{})
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)

	w = doJSON(router, "PUT", "/members/abc/suspend", map[string]interface{}{"suspended": true})
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)
}

func TestAdminHandler_AssignSponsor(t *testing.T) {
	ctx, cleanup := setupHandlers(t)
	defer cleanup()

	sponsor := testutil.TestMember(t, ctx.DB)
	orphan := testutil.TestMember(t, ctx.DB)
	router := adminRouter(ctx)
	path := fmt.Sprintf("/members/%d/sponsor", orphan.ID)

	w := doJSON(router, "PUT", path, map[string]interface{}{"sponsor_id": sponsor.ID})
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, float64(sponsor.ID), dataMap(t, resp)["sponsor_id"])

	var stored model.Member
	require.NoError(t, ctx.DB.First(&stored, sponsor.ID).Error)
	assert.Equal(t, 1, stored.DirectReferrals)

	w = doJSON(router, "PUT", path, map[string]interface{}{"sponsor_id": sponsor.ID})
	assert.Equal(t, response.CodeDuplicateAction, parseResponse(t, w).Code)

	w = doJSON(router, "PUT", fmt.Sprintf("/members/%d/sponsor", sponsor.ID), map[string]interface{}{"sponsor_id": sponsor.ID})
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)
}

func TestAdminHandler_ReviewKYC(t *testing.T) {
	ctx, cleanup := setupHandlers(t)
	defer cleanup()

	pending := testutil.TestMember(t, ctx.DB, testutil.WithKYC(model.KYCPending))
	unverified := testutil.TestMember(t, ctx.DB)
	router := adminRouter(ctx)

	w := doJSON(router, "PUT", fmt.Sprintf("/kyc/%d/review", pending.ID), map[string]interface{}{"approved": false})
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)

	w = doJSON(router, "PUT", fmt.Sprintf("/kyc/%d/review", pending.ID), map[string]interface{}{
		"approved":         false,
		"rejection_reason": "document unreadable",
	})
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	data := dataMap(t, resp)
	assert.Equal(t, model.KYCRejected, data["kyc_status"])
	assert.Equal(t, "document unreadable", data["kyc_rejection_reason"])

	w = doJSON(router, "PUT", fmt.Sprintf("/kyc/%d/review", unverified.ID), map[string]interface{}{"approved": true})
	assert.Equal(t, response.CodeInvalidState, parseResponse(t, w).Code)

	w = doJSON(router, "PUT", "/kyc/9999/review", map[string]interface{}{"approved": true})
	assert.Equal(t, response.CodeResourceNotFound, parseResponse(t, w).Code)
}

func TestAdminHandler_UpdateCommissionStatus(t *testing.T) {
	ctx, cleanup := setupHandlers(t)
	defer cleanup()

	recipient := testutil.TestMember(t, ctx.DB)
	buyer := testutil.TestMember(t, ctx.DB, testutil.WithSponsor(recipient.ID))
	testutil.TestCommission(t, ctx.DB, recipient.ID, buyer.ID, 1, "40.00", model.CommissionCompleted)
	small := testutil.TestCommission(t, ctx.DB, recipient.ID, buyer.ID, 1, "10.00", model.CommissionPending)
	large := testutil.TestCommission(t, ctx.DB, recipient.ID, buyer.ID, 1, "30.00", model.CommissionPending)
	router := adminRouter(ctx)

	statusPath := func(id int64) string { return fmt.Sprintf("/commissions/%d/status", id) }

	// 40 + 30 超出未认证额度 50
	w := doJSON(router, "PUT", statusPath(large.ID), map[string]interface{}{"status": model.CommissionProcessing})
	assert.Equal(t, response.CodeEarningsHeld, parseResponse(t, w).Code)

	w = doJSON(router, "PUT", statusPath(small.ID), map[string]interface{}{"status": model.CommissionProcessing})
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, model.CommissionProcessing, dataMap(t, resp)["status"])

	w = doJSON(router, "PUT", statusPath(small.ID), map[string]interface{}{"status": model.CommissionPending})
	assert.Equal(t, response.CodeInvalidState, parseResponse(t, w).Code)

	w = doJSON(router, "PUT", statusPath(large.ID), map[string]interface{}{"status": "paid"})
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)

	w = doJSON(router, "PUT", statusPath(9999), map[string]interface{}{"status": model.CommissionFailed})
	assert.Equal(t, response.CodeResourceNotFound, parseResponse(t, w).Code)

	w = doJSON(router, "GET", fmt.Sprintf("/commissions?status=pending&recipient_id=%d", recipient.ID), nil)
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, float64(1), dataMap(t, resp)["total"])
}

func TestAdminHandler_Milestones(t *testing.T) {
	ctx, cleanup := setupHandlers(t)
	defer cleanup()

	member := testutil.TestMember(t, ctx.DB)
	award := testutil.TestMilestone(t, ctx.DB, member.ID, 25, "25.00", model.MilestonePending)
	router := adminRouter(ctx)

	w := doJSON(router, "GET", "/milestones?status=pending", nil)
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, float64(1), dataMap(t, resp)["total"])

	path := fmt.Sprintf("/milestones/%d/mark-paid", award.ID)
	w = doJSON(router, "PUT", path, nil)
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, model.MilestonePaid, dataMap(t, resp)["status"])

	w = doJSON(router, "PUT", path, nil)
	assert.Equal(t, response.CodeDuplicateAction, parseResponse(t, w).Code)

	w = doJSON(router, "PUT", "/milestones/9999/mark-paid", nil)
	assert.Equal(t, response.CodeResourceNotFound, parseResponse(t, w).Code)
}

func TestAdminHandler_ListPayments(t *testing.T) {
	ctx, cleanup := setupHandlers(t)
	defer cleanup()

	member := testutil.TestMember(t, ctx.DB)
	testutil.TestPayment(t, ctx.DB, member.ID, model.TierGold, "100.00", model.PaymentWaiting)
	testutil.TestPayment(t, ctx.DB, member.ID, model.TierGold, "100.00", model.PaymentConfirmed)
	router := adminRouter(ctx)

	w := doJSON(router, "GET", "/payments?status=confirmed", nil)
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, float64(1), dataMap(t, resp)["total"])

	w = doJSON(router, "GET", "/payments?status=bogus", nil)
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)
}
