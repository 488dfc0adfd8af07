package signer

import (
	"bytes"
	"errors"
	"testing"

	"balance-attestor/internal/domain/apperr"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// 仅用于测试的私钥。
const testKeyHex = "380eb0f3d505f087e438eca80bc4df9a7faa24f868e69fc0440261a0fc0567dc"

func mustSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := Load(testKeyHex)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func TestLoad_DerivesAddress(t *testing.T) {
	s := mustSigner(t)
	key, err := crypto.HexToECDSA(testKeyHex)
	if err != nil {
		t.Fatalf("HexToECDSA: %v", err)
	}
	if s.Address() != crypto.PubkeyToAddress(key.PublicKey) {
		t.Fatalf("address=%s", s.Address().Hex())
	}

	s2, err := Load("0x" + testKeyHex)
	if err != nil {
		t.Fatalf("Load with 0x prefix: %v", err)
	}
	if s2.Address() != s.Address() {
		t.Fatalf("0x prefix changed address")
	}
}

func TestLoad_MalformedKey(t *testing.T) {
	for _, in := range []string{"", "   ", "zz", "0x1234", testKeyHex + "00"} {
		_, err := Load(in)
		if err == nil {
			t.Fatalf("Load(%q): expected error", in)
		}
		if !apperr.IsKind(err, apperr.KindKeyParse) {
			t.Fatalf("Load(%q): kind=%q", in, apperr.KindOf(err))
		}
	}
}

func TestSign_RecoversSignerAddress(t *testing.T) {
	s := mustSigner(t)
	rec, err := s.Sign(1, repeatAddr(0xAA), repeatAddr(0xBB), uint256.NewInt(1000), 123456)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(rec.Signature) != 65 {
		t.Fatalf("signature len=%d", len(rec.Signature))
	}
	if v := rec.Signature[64]; v != 27 && v != 28 {
		t.Fatalf("v=%d", v)
	}
	if len(rec.Message) != MessageLen {
		t.Fatalf("message len=%d", len(rec.Message))
	}

	got, err := RecoverSigner(rec.MessageHash, rec.Signature)
	if err != nil {
		t.Fatalf("RecoverSigner: %v", err)
	}
	if got != s.Address() || rec.SignerAddress != s.Address() {
		t.Fatalf("recovered=%s signer=%s record=%s", got.Hex(), s.Address().Hex(), rec.SignerAddress.Hex())
	}
	if err := VerifyRecord(rec); err != nil {
		t.Fatalf("VerifyRecord: %v", err)
	}
}

func TestSign_DeterministicForSameInputs(t *testing.T) {
	s := mustSigner(t)
	a, err := s.Sign(1, repeatAddr(0xAA), repeatAddr(0xBB), uint256.NewInt(1000), 123456)
	if err != nil {
		t.Fatalf("Sign a: %v", err)
	}
	b, err := s.Sign(1, repeatAddr(0xAA), repeatAddr(0xBB), uint256.NewInt(1000), 123456)
	if err != nil {
		t.Fatalf("Sign b: %v", err)
	}
	if !bytes.Equal(a.Message, b.Message) || a.MessageHash != b.MessageHash {
		t.Fatalf("message not deterministic")
	}
	// RFC 6979 确定性 nonce：签名也应一致。
	if !bytes.Equal(a.Signature, b.Signature) {
		t.Fatalf("signature not deterministic:\n%x\n%x", a.Signature, b.Signature)
	}
}

func TestSign_DifferentBlockDifferentMessageSameSigner(t *testing.T) {
	s := mustSigner(t)
	a, err := s.Sign(1, repeatAddr(0xAA), repeatAddr(0xBB), uint256.NewInt(1000), 123456)
	if err != nil {
		t.Fatalf("Sign a: %v", err)
	}
	b, err := s.Sign(1, repeatAddr(0xAA), repeatAddr(0xBB), uint256.NewInt(1000), 123457)
	if err != nil {
		t.Fatalf("Sign b: %v", err)
	}
	if bytes.Equal(a.Message, b.Message) {
		t.Fatalf("messages should differ")
	}
	if bytes.Equal(a.Signature, b.Signature) {
		t.Fatalf("signatures should differ")
	}
	if a.SignerAddress != b.SignerAddress {
		t.Fatalf("signer changed: %s vs %s", a.SignerAddress.Hex(), b.SignerAddress.Hex())
	}
}

func TestSign_RecordDoesNotAliasBalance(t *testing.T) {
	s := mustSigner(t)
	bal := uint256.NewInt(5)
	rec, err := s.Sign(1, repeatAddr(0x01), repeatAddr(0x02), bal, 1)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	bal.SetUint64(99)
	if rec.Balance.Uint64() != 5 {
		t.Fatalf("record balance mutated: %s", rec.Balance.Dec())
	}
}

func TestVerifyRecord_DetectsTampering(t *testing.T) {
	s := mustSigner(t)
	base, err := s.Sign(1, repeatAddr(0xAA), repeatAddr(0xBB), uint256.NewInt(1000), 123456)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	tamperBalance := *base
	tamperBalance.Balance = uint256.NewInt(1001)
	if err := VerifyRecord(&tamperBalance); !errors.Is(err, ErrRecordMismatch) {
		t.Fatalf("balance tamper: err=%v", err)
	}

	other, err := Load("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	if err != nil {
		t.Fatalf("Load other: %v", err)
	}
	tamperSigner := *base
	tamperSigner.SignerAddress = other.Address()
	if err := VerifyRecord(&tamperSigner); !errors.Is(err, ErrRecordMismatch) {
		t.Fatalf("signer tamper: err=%v", err)
	}

	tamperSig := *base
	tamperSig.Signature = append([]byte(nil), base.Signature[:64]...)
	if err := VerifyRecord(&tamperSig); !errors.Is(err, ErrRecordMismatch) {
		t.Fatalf("short signature: err=%v", err)
	}
}
