package privacy

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestMaskURL(t *testing.T) {
	got := MaskURL("https://mainnet.infura.io/v3/secret-key?x=1")
	if got != "mainnet.infura.io" {
		t.Fatalf("got=%q want=%q", got, "mainnet.infura.io")
	}
	got = MaskURL("eth.llamarpc.com/path")
	if got != "eth.llamarpc.com" {
		t.Fatalf("got=%q want=%q", got, "eth.llamarpc.com")
	}
	if got := MaskURL("https://"); got != "<masked_url>" {
		t.Fatalf("got=%q", got)
	}
}

func TestMaskAddress(t *testing.T) {
	evm := "0x000000000000000000000000000000000000dEaD"
	got := MaskAddress(evm)
	if got == evm {
		t.Fatalf("address not masked")
	}
	if !strings.Contains(got, "...") {
		t.Fatalf("masked should contain ellipsis: %q", got)
	}
	if !strings.HasPrefix(got, "0x0000") || !strings.HasSuffix(got, "dEaD") {
		t.Fatalf("masked should keep head and tail: %q", got)
	}
	if got := MaskAddress("hello"); got != "<masked>" {
		t.Fatalf("non-address: %q", got)
	}
	if got := MaskAddress(""); got != "" {
		t.Fatalf("empty: %q", got)
	}
}

func TestMasker(t *testing.T) {
	a := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	if got := (Masker{}).Address(a); got != a.Hex() {
		t.Fatalf("disabled masker changed address: %q", got)
	}
	if got := (Masker{}).URL("https://x.io/key"); got != "https://x.io/key" {
		t.Fatalf("disabled masker changed url: %q", got)
	}
	m := Masker{Enabled: true}
	if got := m.Address(a); got != "0x0000...dEaD" {
		t.Fatalf("masked address: %q", got)
	}
	if got := m.URL("https://x.io/key"); got != "x.io" {
		t.Fatalf("masked url: %q", got)
	}
}
