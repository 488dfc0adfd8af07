package model

import (
	"fmt"
	"strconv"
	"strings"

	"balance-attestor/internal/platform/hash"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// AttestationLog 是证明日志（attestation_logs 表）的一条记录。
//
// 日志只追加、不作为缓存：服务请求时从不读取它。
// ChainHash = hash.Text(prev, chain_id, token, owner, balance, block, message_hash, signature, signer, occurred_at)。
type AttestationLog struct {
	Seq           int64  `json:"seq"`
	EventID       string `json:"event_id"`
	ChainID       uint64 `json:"chain_id"`
	Token         string `json:"token"`
	Owner         string `json:"owner"`
	Balance       string `json:"balance"`
	Block         uint64 `json:"block"`
	Message       string `json:"message"`
	MessageHash   string `json:"message_hash"`
	Signature     string `json:"signature"`
	Signer        string `json:"signer"`
	OccurredAt    int64  `json:"occurred_at"`
	ChainPrevHash string `json:"chain_prev_hash,omitempty"`
	ChainHash     string `json:"chain_hash"`
}

// ComputeChainHash 按固定字段顺序计算链式 hash。写入与校验必须使用同一公式。
func (l AttestationLog) ComputeChainHash(prev string) string {
	return hash.Text(
		prev,
		strconv.FormatUint(l.ChainID, 10),
		strings.ToLower(l.Token),
		strings.ToLower(l.Owner),
		l.Balance,
		strconv.FormatUint(l.Block, 10),
		strings.ToLower(l.MessageHash),
		strings.ToLower(l.Signature),
		strings.ToLower(l.Signer),
		strconv.FormatInt(l.OccurredAt, 10),
	)
}

// NewAttestationLog 把证明记录转为日志行（不含 seq/event_id/链式 hash）。
func NewAttestationLog(rec *AttestationRecord, occurredAt int64) AttestationLog {
	balance := "0"
	if rec.Balance != nil {
		balance = rec.Balance.Dec()
	}
	return AttestationLog{
		ChainID:     uint64(rec.ChainID),
		Token:       strings.ToLower(rec.Token.Hex()),
		Owner:       strings.ToLower(rec.Owner.Hex()),
		Balance:     balance,
		Block:       rec.Block,
		Message:     hexutil.Encode(rec.Message),
		MessageHash: rec.MessageHash.Hex(),
		Signature:   hexutil.Encode(rec.Signature),
		Signer:      strings.ToLower(rec.SignerAddress.Hex()),
		OccurredAt:  occurredAt,
	}
}

// Record 还原为证明记录，用于离线复核签名。
func (l AttestationLog) Record() (*AttestationRecord, error) {
	msg, err := hexutil.Decode(l.Message)
	if err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	sig, err := hexutil.Decode(l.Signature)
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	balance, err := uint256.FromDecimal(l.Balance)
	if err != nil {
		return nil, fmt.Errorf("decode balance: %w", err)
	}
	return &AttestationRecord{
		ChainID:       ChainID(l.ChainID),
		Message:       msg,
		MessageHash:   common.HexToHash(l.MessageHash),
		Signature:     sig,
		SignerAddress: common.HexToAddress(l.Signer),
		Token:         common.HexToAddress(l.Token),
		Owner:         common.HexToAddress(l.Owner),
		Balance:       balance,
		Block:         l.Block,
	}, nil
}
