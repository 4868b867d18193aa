package service

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/mlm_go_server/internal/model"
	"github.com/qs3c/mlm_go_server/internal/model/dto"
	"github.com/qs3c/mlm_go_server/internal/pkg/wallet"
	"github.com/qs3c/mlm_go_server/internal/testutil"
)

// signLinkMessage 模拟钱包 personal_sign，V 为 27/28
func signLinkMessage(t *testing.T, memberID int64) (string, string) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	sig, err := crypto.Sign(accounts.TextHash([]byte(wallet.LinkMessage(address, memberID))), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return address, hexutil.Encode(sig)
}

func TestMemberService_LinkWallet(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()

	member := testutil.TestMember(t, env.db)
	address, signature := signLinkMessage(t, member.ID)

	challenge, err := env.members.WalletChallenge(member.ID, address)
	require.NoError(t, err)
	assert.Equal(t, wallet.LinkMessage(address, member.ID), challenge)

	info, err := env.members.LinkWallet(member.ID, &dto.LinkWalletRequest{WalletAddress: address, Signature: signature})
	require.NoError(t, err)
	assert.Equal(t, address, info.WalletAddress)

	profile, err := env.members.GetProfile(member.ID)
	require.NoError(t, err)
	assert.Equal(t, address, profile.WalletAddress)
}

func TestMemberService_LinkWallet_Rejections(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()

	alice := testutil.TestMember(t, env.db)
	bob := testutil.TestMember(t, env.db)
	address, signature := signLinkMessage(t, alice.ID)

	_, err := env.members.LinkWallet(alice.ID, &dto.LinkWalletRequest{WalletAddress: "0x1234", Signature: signature})
	assert.ErrorIs(t, err, wallet.ErrInvalidAddress)

	_, err = env.members.LinkWallet(alice.ID, &dto.LinkWalletRequest{WalletAddress: address, Signature: "0xdeadbeef"})
	assert.ErrorIs(t, err, wallet.ErrInvalidSignature)

	// 签名绑定的是 alice 的 ID
	_, err = env.members.LinkWallet(bob.ID, &dto.LinkWalletRequest{WalletAddress: address, Signature: signature})
	assert.ErrorIs(t, err, wallet.ErrInvalidSignature)

	// bob 已占用该地址时 alice 无法绑定
	require.NoError(t, env.memberRepo.UpdateFields(bob.ID, map[string]interface{}{"wallet_address": address}))
	_, err = env.members.LinkWallet(alice.ID, &dto.LinkWalletRequest{WalletAddress: address, Signature: signature})
	assert.ErrorIs(t, err, ErrWalletExists)
}

func TestMemberService_AdminUpdate(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()

	member := testutil.TestMember(t, env.db)
	taken := testutil.TestMember(t, env.db)

	tier := model.TierSilver
	expires := time.Now().AddDate(0, 1, 0)
	info, err := env.members.AdminUpdate(member.ID, &dto.AdminUpdateMemberRequest{MembershipTier: &tier, SubscriptionExpiresAt: &expires})
	require.NoError(t, err)
	assert.Equal(t, model.TierSilver, info.MembershipTier)
	require.NotNil(t, info.SubscriptionExpiresAt)
	assert.WithinDuration(t, expires, *info.SubscriptionExpiresAt, time.Second)

	_, err = env.members.AdminUpdate(member.ID, &dto.AdminUpdateMemberRequest{Email: &taken.Email})
	assert.ErrorIs(t, err, ErrEmailExists)

	bogus := "platinum"
	_, err = env.members.AdminUpdate(member.ID, &dto.AdminUpdateMemberRequest{MembershipTier: &bogus})
	assert.ErrorIs(t, err, ErrInvalidMemberTier)

	_, err = env.members.AdminUpdate(99999, &dto.AdminUpdateMemberRequest{})
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestMemberService_SetSuspendedAndList(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()

	member := testutil.TestMember(t, env.db)
	testutil.TestMember(t, env.db)

	info, err := env.members.SetSuspended(member.ID, true)
	require.NoError(t, err)
	assert.True(t, info.Suspended)

	suspended := true
	items, total, err := env.members.AdminList(&dto.AdminMemberListRequest{Suspended: &suspended})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	assert.Equal(t, member.ID, items[0].ID)

	info, err = env.members.SetSuspended(member.ID, false)
	require.NoError(t, err)
	assert.False(t, info.Suspended)
}

func TestMemberService_DowngradeExpired(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()

	expired := testutil.TestMember(t, env.db, testutil.WithTier(model.TierGold), testutil.WithSubscriptionExpiry(time.Now().Add(-time.Hour)))
	active := testutil.TestMember(t, env.db, testutil.WithTier(model.TierGold), testutil.WithSubscriptionExpiry(time.Now().Add(time.Hour)))

	n, err := env.members.DowngradeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	reloaded, err := env.memberRepo.GetByID(expired.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TierAffiliate, reloaded.MembershipTier)

	reloaded, err = env.memberRepo.GetByID(active.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TierGold, reloaded.MembershipTier)
}
