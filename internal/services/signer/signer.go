package signer

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"balance-attestor/internal/domain/apperr"
	"balance-attestor/internal/domain/model"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Signer 持有进程级签名私钥。
//
// 启动时加载一次，之后只读；签名地址在构造时推导并缓存。
// 并发调用 Sign 是安全的。
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// Load 解析 32 字节 secp256k1 私钥的十六进制文本（可带 0x 前缀）。
// 失败返回 KindKeyParse，调用方应拒绝启动。
func Load(hexKey string) (*Signer, error) {
	hexKey = strings.TrimSpace(hexKey)
	hexKey = strings.TrimPrefix(strings.TrimPrefix(hexKey, "0x"), "0X")
	if hexKey == "" {
		return nil, apperr.New(apperr.KindKeyParse, "signing key is empty")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindKeyParse, "parse signing key", err)
	}
	return New(key)
}

func New(key *ecdsa.PrivateKey) (*Signer, error) {
	if key == nil {
		return nil, apperr.New(apperr.KindKeyParse, "signing key is nil")
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Address 返回签名者地址。
func (s *Signer) Address() common.Address {
	return s.address
}

// Sign 对一次查询结果生成证明：编码 -> Keccak-256 -> 签名 -> 组装记录。
func (s *Signer) Sign(chain model.ChainID, token, owner common.Address, balance *uint256.Int, block uint64) (*model.AttestationRecord, error) {
	if balance == nil {
		return nil, apperr.New(apperr.KindSigning, "balance is nil")
	}
	msg := EncodeMessage(token, owner, balance, block)
	hash := msg.Hash()

	sig, err := s.SignHash(hash)
	if err != nil {
		return nil, err
	}

	return &model.AttestationRecord{
		ChainID:       chain,
		Message:       msg.Bytes(),
		MessageHash:   hash,
		Signature:     sig,
		SignerAddress: s.address,
		Token:         token,
		Owner:         owner,
		Balance:       new(uint256.Int).Set(balance),
		Block:         block,
	}, nil
}

// SignHash 按 EIP-191 personal message 规则对 32 字节摘要签名：
// keccak256("\x19Ethereum Signed Message:\n32" || hash)，返回 r|s|v（v=27/28）。
// 链上 ECDSA.recover(toEthSignedMessageHash(hash), sig) 可直接恢复出签名地址。
func (s *Signer) SignHash(hash common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(hash[:]), s.key)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindSigning, "sign message hash", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverSigner 从摘要与签名恢复签名者地址。v 接受 0/1 或 27/28。
func RecoverSigner(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(sig))
	}
	s := make([]byte, crypto.SignatureLength)
	copy(s, sig)
	if s[crypto.RecoveryIDOffset] >= 27 {
		s[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(hash[:]), s)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// ErrRecordMismatch 表示证明记录的字段、消息、摘要或签名之间不一致。
var ErrRecordMismatch = errors.New("attestation record mismatch")

// VerifyRecord 复核一条证明记录：
// 1) 用记录字段重新编码，必须与 message 字节一致
// 2) message 的 Keccak-256 必须与 message_hash 一致
// 3) 从签名恢复的地址必须等于 signer_address
func VerifyRecord(rec *model.AttestationRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: record is nil", ErrRecordMismatch)
	}
	msg := EncodeMessage(rec.Token, rec.Owner, rec.Balance, rec.Block)
	if !bytes.Equal(msg[:], rec.Message) {
		return fmt.Errorf("%w: message does not match fields", ErrRecordMismatch)
	}
	hash := msg.Hash()
	if rec.MessageHash != (common.Hash{}) && rec.MessageHash != hash {
		return fmt.Errorf("%w: message_hash=%s want %s", ErrRecordMismatch, rec.MessageHash.Hex(), hash.Hex())
	}
	recovered, err := RecoverSigner(hash, rec.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRecordMismatch, err)
	}
	if recovered != rec.SignerAddress {
		return fmt.Errorf("%w: recovered %s, record claims %s", ErrRecordMismatch, recovered.Hex(), rec.SignerAddress.Hex())
	}
	return nil
}
