package model

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// ChainID 标识一条区块链网络（例如 1=Ethereum 主网）。
type ChainID uint64

func (c ChainID) String() string {
	return strconv.FormatUint(uint64(c), 10)
}

// ParseChainID 解析十进制链 ID 文本（来自 URL 路径或 CLI 参数）。
func ParseChainID(s string) (ChainID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chain id %q: %w", s, err)
	}
	return ChainID(n), nil
}

// EndpointConfig 是某条链的 RPC 连接参数。启动时加载，运行期只读。
type EndpointConfig struct {
	ChainID ChainID `json:"chain_id"`
	Name    string  `json:"name"`
	RPCURL  string  `json:"rpc_url"`
}

// AttestationRecord 是一次余额证明的完整产物。
//
// 构造后不再修改；每个请求都重新查询、重新签名，不做复用。
type AttestationRecord struct {
	ChainID ChainID

	// Message 固定 80 字节：token(20) | owner(20) | balance(32, BE) | block(8, BE)。
	Message     []byte
	MessageHash common.Hash

	// Signature 为 65 字节可恢复签名 r|s|v，v 取 27/28。
	Signature     []byte
	SignerAddress common.Address

	Token   common.Address
	Owner   common.Address
	Balance *uint256.Int
	Block   uint64
}

// attestationRecordJSON 是对外 JSON 形态：
// 字节序列统一 0x 十六进制；balance 可能超出 64 位，用十进制字符串。
type attestationRecordJSON struct {
	ChainID       ChainID        `json:"chain_id"`
	Message       hexutil.Bytes  `json:"message"`
	MessageHash   common.Hash    `json:"message_hash"`
	Signature     hexutil.Bytes  `json:"signature"`
	SignerAddress common.Address `json:"signer_address"`
	Token         common.Address `json:"token"`
	Owner         common.Address `json:"owner"`
	Balance       string         `json:"balance"`
	Block         uint64         `json:"block"`
}

func (r AttestationRecord) MarshalJSON() ([]byte, error) {
	balance := "0"
	if r.Balance != nil {
		balance = r.Balance.Dec()
	}
	return json.Marshal(attestationRecordJSON{
		ChainID:       r.ChainID,
		Message:       r.Message,
		MessageHash:   r.MessageHash,
		Signature:     r.Signature,
		SignerAddress: r.SignerAddress,
		Token:         r.Token,
		Owner:         r.Owner,
		Balance:       balance,
		Block:         r.Block,
	})
}

func (r *AttestationRecord) UnmarshalJSON(data []byte) error {
	var aux attestationRecordJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	balance := uint256.NewInt(0)
	if aux.Balance != "" {
		b, err := uint256.FromDecimal(aux.Balance)
		if err != nil {
			return fmt.Errorf("invalid balance %q: %w", aux.Balance, err)
		}
		balance = b
	}
	*r = AttestationRecord{
		ChainID:       aux.ChainID,
		Message:       aux.Message,
		MessageHash:   aux.MessageHash,
		Signature:     aux.Signature,
		SignerAddress: aux.SignerAddress,
		Token:         aux.Token,
		Owner:         aux.Owner,
		Balance:       balance,
		Block:         aux.Block,
	}
	return nil
}
