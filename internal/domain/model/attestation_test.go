package model

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestAttestationRecord_JSONBalanceBeyond64Bit(t *testing.T) {
	// 2^200，远超 uint64，必须以十进制字符串输出。
	bal := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
	rec := AttestationRecord{
		ChainID:   1,
		Message:   []byte{0x01, 0x02},
		Signature: []byte{0xaa},
		Token:     common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"),
		Owner:     common.HexToAddress("0x000000000000000000000000000000000000dEaD"),
		Balance:   bal,
		Block:     123456,
	}

	raw, err := json.Marshal(&rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("decode map: %v", err)
	}
	if m["balance"] != bal.Dec() {
		t.Fatalf("balance=%v want %s", m["balance"], bal.Dec())
	}
	if m["message"] != "0x0102" {
		t.Fatalf("message=%v", m["message"])
	}
	if m["block"] != float64(123456) {
		t.Fatalf("block=%v", m["block"])
	}
	if !strings.EqualFold(m["owner"].(string), "0x000000000000000000000000000000000000dead") {
		t.Fatalf("owner=%v", m["owner"])
	}

	var back AttestationRecord
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Balance.Eq(bal) {
		t.Fatalf("balance round trip: %s", back.Balance.Dec())
	}
}

func TestAttestationRecord_UnmarshalRejectsBadBalance(t *testing.T) {
	var rec AttestationRecord
	err := json.Unmarshal([]byte(`{"balance":"12abc"}`), &rec)
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseChainID(t *testing.T) {
	id, err := ParseChainID("11155111")
	if err != nil {
		t.Fatalf("ParseChainID: %v", err)
	}
	if id != 11155111 {
		t.Fatalf("id=%d", id)
	}
	if _, err := ParseChainID("-1"); err == nil {
		t.Fatalf("expected error for negative id")
	}
}
