package signer

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// MessageLen 是证明消息的固定长度：20 + 20 + 32 + 8。
const MessageLen = 80

const (
	tokenOffset   = 0
	ownerOffset   = tokenOffset + common.AddressLength
	balanceOffset = ownerOffset + common.AddressLength
	blockOffset   = balanceOffset + 32
)

// Message 是定长证明消息：
//
//	token(20) | owner(20) | balance(32, big-endian) | block(8, big-endian)
//
// 无长度前缀、无分隔符、无额外填充。布局变更会破坏所有验证方的兼容性。
type Message [MessageLen]byte

// EncodeMessage 按固定布局序列化查询结果。相同输入总是得到相同字节。
// balance 为 nil 时按 0 编码。
func EncodeMessage(token, owner common.Address, balance *uint256.Int, block uint64) Message {
	var m Message
	copy(m[tokenOffset:ownerOffset], token[:])
	copy(m[ownerOffset:balanceOffset], owner[:])
	if balance != nil {
		b := balance.Bytes32()
		copy(m[balanceOffset:blockOffset], b[:])
	}
	binary.BigEndian.PutUint64(m[blockOffset:], block)
	return m
}

// Hash 返回消息的 Keccak-256 摘要。
func (m Message) Hash() common.Hash {
	return crypto.Keccak256Hash(m[:])
}

// Bytes 返回消息字节的副本。
func (m Message) Bytes() []byte {
	out := make([]byte, MessageLen)
	copy(out, m[:])
	return out
}
