package repository

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/mlm_go_server/internal/model"
	"github.com/qs3c/mlm_go_server/internal/testutil"
)

func records(paymentID string, recipients []int64, newMemberID int64) []*model.Commission {
	out := make([]*model.Commission, len(recipients))
	for i, id := range recipients {
		out[i] = &model.Commission{
			PaymentID:   paymentID,
			Level:       i + 1,
			RecipientID: id,
			NewMemberID: newMemberID,
			Tier:        model.TierGold,
			Rate:        decimal.RequireFromString("0.1"),
			Amount:      decimal.RequireFromString("10"),
			Status:      model.CommissionPending,
		}
	}
	return out
}

func TestCommissionRepository_CreateBatch_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewCommissionRepository(db)
	chain := testutil.TestChain(t, db, 3)
	payer := chain[2]
	payment := testutil.TestPayment(t, db, payer.ID, model.TierGold, "100", model.PaymentConfirmed)

	created, err := repo.CreateBatch(records(payment.ID, []int64{chain[1].ID, chain[0].ID}, payer.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(2), created)

	// 重复写入被唯一索引吸收
	created, err = repo.CreateBatch(records(payment.ID, []int64{chain[1].ID, chain[0].ID}, payer.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(0), created)

	list, err := repo.ListByPayment(payment.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].Level)
	assert.Equal(t, chain[1].ID, list[0].RecipientID)

	created, err = repo.CreateBatch(nil)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestCommissionRepository_SumByStatus(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewCommissionRepository(db)
	recipient := testutil.TestMember(t, db)
	payer := testutil.TestMember(t, db)

	testutil.TestCommission(t, db, recipient.ID, payer.ID, 1, "0.10", model.CommissionCompleted)
	testutil.TestCommission(t, db, recipient.ID, payer.ID, 1, "0.20", model.CommissionCompleted)
	testutil.TestCommission(t, db, recipient.ID, payer.ID, 1, "15.50", model.CommissionPending)
	testutil.TestCommission(t, db, payer.ID, recipient.ID, 1, "99", model.CommissionCompleted)

	sums, err := repo.SumByStatus(recipient.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.30", sums[model.CommissionCompleted].StringFixed(2))
	assert.Equal(t, "15.50", sums[model.CommissionPending].StringFixed(2))
	_, hasFailed := sums[model.CommissionFailed]
	assert.False(t, hasFailed)
}

func TestCommissionRepository_ListWithFilter(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewCommissionRepository(db)
	recipient := testutil.TestMember(t, db)
	payer := testutil.TestMember(t, db, testutil.WithUsername("newbie"))

	old := time.Now().AddDate(0, -2, 0)
	testutil.TestCommission(t, db, recipient.ID, payer.ID, 1, "10", model.CommissionPending, testutil.WithCreatedAt(old))
	testutil.TestCommission(t, db, recipient.ID, payer.ID, 2, "5", model.CommissionCompleted)
	testutil.TestCommission(t, db, recipient.ID, payer.ID, 1, "7", model.CommissionPending)

	all, total, err := repo.List(CommissionFilter{RecipientID: recipient.ID}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.NotNil(t, all[0].NewMember)
	assert.Equal(t, "newbie", all[0].NewMember.Username)

	_, total, err = repo.List(CommissionFilter{RecipientID: recipient.ID, Status: model.CommissionPending}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	from := time.Now().AddDate(0, -1, 0)
	recent, total, err := repo.List(CommissionFilter{RecipientID: recipient.ID, DateFrom: &from}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, recent, 2)

	to := time.Now().AddDate(0, -1, 0)
	_, total, err = repo.List(CommissionFilter{RecipientID: recipient.ID, DateTo: &to}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	exported, err := repo.ListAll(CommissionFilter{RecipientID: recipient.ID})
	require.NoError(t, err)
	assert.Len(t, exported, 3)
}

func TestCommissionRepository_UpdateStatusFrom(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewCommissionRepository(db)
	recipient := testutil.TestMember(t, db)
	c := testutil.TestCommission(t, db, recipient.ID, recipient.ID, 1, "10", model.CommissionPending)

	updated, err := repo.UpdateStatusFrom(c.ID, model.CommissionPending, model.CommissionProcessing)
	require.NoError(t, err)
	assert.True(t, updated)

	updated, err = repo.UpdateStatusFrom(c.ID, model.CommissionPending, model.CommissionFailed)
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestCommissionRepository_FailPendingByPayment(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewCommissionRepository(db)
	recipient := testutil.TestMember(t, db)
	paymentID := "refunded-payment"

	testutil.TestCommission(t, db, recipient.ID, recipient.ID, 1, "10", model.CommissionPending, testutil.WithPaymentID(paymentID))
	testutil.TestCommission(t, db, recipient.ID, recipient.ID, 2, "5", model.CommissionCompleted, testutil.WithPaymentID(paymentID))

	failed, err := repo.FailPendingByPayment(paymentID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)

	list, err := repo.ListByPayment(paymentID)
	require.NoError(t, err)
	assert.Equal(t, model.CommissionFailed, list[0].Status)
	assert.Equal(t, model.CommissionCompleted, list[1].Status)
}
