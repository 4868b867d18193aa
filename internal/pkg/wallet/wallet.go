package wallet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidAddress   = errors.New("钱包地址格式错误")
	ErrInvalidSignature = errors.New("钱包签名无效")
)

// Normalize 校验 0x 开头的 42 位地址并返回 EIP-55 校验和格式
func Normalize(address string) (string, error) {
	if len(address) != 42 || !strings.HasPrefix(address, "0x") || !common.IsHexAddress(address) {
		return "", ErrInvalidAddress
	}
	return common.HexToAddress(address).Hex(), nil
}

// LinkMessage 绑定钱包时需要用户签名的消息
func LinkMessage(address string, memberID int64) string {
	return fmt.Sprintf("Link wallet %s to account %d", strings.ToLower(address), memberID)
}

// VerifySignature 校验 personal_sign (EIP-191) 签名是否出自该地址
func VerifySignature(address, message, signature string) error {
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return ErrInvalidSignature
	}
	// 钱包返回的 V 为 27/28
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return ErrInvalidSignature
	}
	if crypto.PubkeyToAddress(*pub) != common.HexToAddress(address) {
		return ErrInvalidSignature
	}
	return nil
}
