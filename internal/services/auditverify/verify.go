package auditverify

import (
	"strings"

	"balance-attestor/internal/domain/model"
	"balance-attestor/internal/services/signer"
)

// FailureItem 表示一条证明日志校验失败的明细项（用于 API/CLI 展示）。
type FailureItem struct {
	Index int `json:"index"`

	EventID    string `json:"event_id"`
	OccurredAt int64  `json:"occurred_at"`
	ChainID    uint64 `json:"chain_id"`
	Token      string `json:"token"`
	Owner      string `json:"owner"`

	// PrevHashMismatch 表示当前记录的 chain_prev_hash 与上一条记录 chain_hash 不一致。
	PrevHashMismatch bool   `json:"prev_hash_mismatch"`
	ExpectedPrevHash string `json:"expected_prev_hash,omitempty"`
	ActualPrevHash   string `json:"actual_prev_hash,omitempty"`

	// ChainHashMismatch 表示当前记录 chain_hash 与按公式重算的值不一致。
	ChainHashMismatch bool   `json:"chain_hash_mismatch"`
	ExpectedChainHash string `json:"expected_chain_hash,omitempty"`
	ActualChainHash   string `json:"actual_chain_hash,omitempty"`

	// SignatureInvalid 表示消息/摘要/签名与记录字段对不上。
	SignatureInvalid bool `json:"signature_invalid"`

	Message string `json:"message,omitempty"`
}

// Result 是证明日志强校验结果。
type Result struct {
	OK bool `json:"ok"`

	Total int `json:"total"`

	Failed          int `json:"failed"`
	PrevHashFailed  int `json:"prev_hash_failed"`
	ChainHashFailed int `json:"chain_hash_failed"`
	SignatureFailed int `json:"signature_failed"`

	LastChainHash string `json:"last_chain_hash,omitempty"`

	Failures []FailureItem `json:"failures,omitempty"`
}

// VerifyAttestationLogs 对 attestation_logs 做强校验：
// 1) chain_prev_hash 连续性
// 2) 重算 chain_hash 并与存量字段对比
// 3) 还原证明记录，复核消息编码与签名
//
// logs 必须按 seq 升序且从第一条开始。
func VerifyAttestationLogs(logs []model.AttestationLog) Result {
	res := Result{
		OK:       true,
		Total:    len(logs),
		Failures: []FailureItem{},
	}

	prev := ""
	for i, it := range logs {
		expectedPrev := prev
		actualPrev := strings.TrimSpace(it.ChainPrevHash)
		expectedChain := it.ComputeChainHash(expectedPrev)
		actualChain := strings.TrimSpace(it.ChainHash)

		prevMismatch := actualPrev != expectedPrev
		chainMismatch := actualChain != expectedChain

		sigMsg := ""
		rec, err := it.Record()
		if err == nil {
			err = signer.VerifyRecord(rec)
		}
		if err != nil {
			sigMsg = err.Error()
		}
		sigInvalid := err != nil

		if prevMismatch || chainMismatch || sigInvalid {
			res.OK = false
			res.Failed++
			if prevMismatch {
				res.PrevHashFailed++
			}
			if chainMismatch {
				res.ChainHashFailed++
			}
			if sigInvalid {
				res.SignatureFailed++
			}

			var parts []string
			if prevMismatch {
				parts = append(parts, "chain_prev_hash mismatch")
			}
			if chainMismatch {
				parts = append(parts, "chain_hash mismatch")
			}
			if sigInvalid {
				parts = append(parts, sigMsg)
			}

			res.Failures = append(res.Failures, FailureItem{
				Index:      i,
				EventID:    it.EventID,
				OccurredAt: it.OccurredAt,
				ChainID:    it.ChainID,
				Token:      it.Token,
				Owner:      it.Owner,

				PrevHashMismatch: prevMismatch,
				ExpectedPrevHash: expectedPrev,
				ActualPrevHash:   actualPrev,

				ChainHashMismatch: chainMismatch,
				ExpectedChainHash: expectedChain,
				ActualChainHash:   actualChain,

				SignatureInvalid: sigInvalid,

				Message: strings.Join(parts, "; "),
			})
		}

		// 链推进以存量 chain_hash 为准，这样篡改点之后的记录仍能继续校验。
		prev = actualChain
		res.LastChainHash = actualChain
	}

	return res
}
