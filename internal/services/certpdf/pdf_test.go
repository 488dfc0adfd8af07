package certpdf

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"balance-attestor/internal/platform/hash"
	"balance-attestor/internal/services/signer"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestGenerate_WritesPDFAndHash(t *testing.T) {
	// 固定用核心字体，避免依赖宿主机字体。
	t.Setenv(EnvPDFFont, "")

	s, err := signer.Load("380eb0f3d505f087e438eca80bc4df9a7faa24f868e69fc0440261a0fc0567dc")
	if err != nil {
		t.Fatalf("signer.Load: %v", err)
	}
	rec, err := s.Sign(1,
		common.HexToAddress("0x00000000000000000000000000000000000000Aa"),
		common.HexToAddress("0x00000000000000000000000000000000000000Bb"),
		uint256.NewInt(1000), 123456)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	dir := t.TempDir()
	res, err := Generate(rec, Options{OutDir: filepath.Join(dir, "out"), Operator: "tester", Note: "unit test"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasSuffix(res.PDFPath, ".pdf") || !strings.Contains(filepath.Base(res.PDFPath), "attestation_1_123456_") {
		t.Fatalf("pdf path=%q", res.PDFPath)
	}
	raw, err := os.ReadFile(res.PDFPath)
	if err != nil {
		t.Fatalf("read pdf: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte("%PDF-")) {
		t.Fatalf("not a pdf")
	}
	sum, _, err := hash.File(res.PDFPath)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if sum != res.PDFSHA256 {
		t.Fatalf("sha256 mismatch: %s vs %s", sum, res.PDFSHA256)
	}
}

func TestGenerate_RejectsTamperedRecord(t *testing.T) {
	s, err := signer.Load("380eb0f3d505f087e438eca80bc4df9a7faa24f868e69fc0440261a0fc0567dc")
	if err != nil {
		t.Fatalf("signer.Load: %v", err)
	}
	rec, err := s.Sign(1, common.Address{1}, common.Address{2}, uint256.NewInt(5), 1)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	rec.Balance = uint256.NewInt(6)

	out := filepath.Join(t.TempDir(), "x.pdf")
	if _, err := Generate(rec, Options{OutPath: out}); err == nil {
		t.Fatalf("expected error for tampered record")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("pdf should not be written")
	}
	if _, err := Generate(nil, Options{OutPath: out}); err == nil {
		t.Fatalf("expected error for nil record")
	}
}
