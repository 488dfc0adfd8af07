package certpdf

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"balance-attestor/internal/domain/model"
	"balance-attestor/internal/platform/hash"
	"balance-attestor/internal/services/signer"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/phpdave11/gofpdf"
)

// 证明证书 PDF（attestation certificate）
//
// 把一条证明记录渲染为单页 PDF，便于归档或线下交付。
// PDF 只是展示层：真正可校验的是记录中的 message/signature，证书上原样打印出来。

type Options struct {
	// OutPath 为空时写到 OutDir（默认当前目录）下的 attestation_<chain>_<block>_<ts>.pdf。
	OutPath  string
	OutDir   string
	Operator string
	Note     string
	// EventID 是证明日志中的事件编号（可选）。
	EventID string
}

type Result struct {
	PDFPath     string   `json:"pdf_path"`
	PDFSHA256   string   `json:"pdf_sha256"`
	Warnings    []string `json:"warnings,omitempty"`
	GeneratedAt int64    `json:"generated_at"`
}

const pdfGeneratorVer = "certpdf-0.1.0"

// EnvPDFFont 指定 UTF-8 TrueType 字体路径。
const EnvPDFFont = "ATTESTOR_PDF_FONT"

// Generate 校验记录后生成证书 PDF，并返回文件 sha256。签名不自洽的记录直接拒绝。
func Generate(rec *model.AttestationRecord, opts Options) (*Result, error) {
	if rec == nil {
		return nil, fmt.Errorf("attestation record is required")
	}
	if err := signer.VerifyRecord(rec); err != nil {
		return nil, fmt.Errorf("refuse to render: %w", err)
	}
	operator := strings.TrimSpace(opts.Operator)
	if operator == "" {
		operator = "system"
	}

	now := time.Now().Unix()
	pdfPath := strings.TrimSpace(opts.OutPath)
	if pdfPath == "" {
		dir := strings.TrimSpace(opts.OutDir)
		if dir == "" {
			dir = "."
		}
		pdfPath = filepath.Join(dir, fmt.Sprintf("attestation_%d_%d_%d.pdf", rec.ChainID, rec.Block, now))
	}
	if err := os.MkdirAll(filepath.Dir(pdfPath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir output: %w", err)
	}

	warnings := []string{}
	pdf, utf8OK := buildPDF(rec, operator, opts.Note, opts.EventID, now)
	if !utf8OK {
		warnings = append(warnings, "pdf utf8 font not available; non-ascii text may be replaced with '?'")
	}
	if err := pdf.OutputFileAndClose(pdfPath); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}

	sum, _, err := hash.File(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("sha256 pdf: %w", err)
	}

	return &Result{
		PDFPath:     pdfPath,
		PDFSHA256:   sum,
		Warnings:    warnings,
		GeneratedAt: now,
	}, nil
}

func buildPDF(rec *model.AttestationRecord, operator, note, eventID string, generatedAt int64) (*gofpdf.Fpdf, bool) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(14, 14, 14)
	pdf.SetAutoPageBreak(true, 14)
	pdf.SetTitle("ERC-20 Balance Attestation", false)
	pdf.SetCreator(pdfGeneratorVer, false)

	fontFamily, utf8OK := initPDFUnicodeFont(pdf)

	pdf.AddPage()

	pdf.SetFont(fontFamily, "B", 16)
	pdf.CellFormat(0, 9, "ERC-20 Balance Attestation Certificate", "", 1, "L", false, 0, "")

	pdf.SetFont(fontFamily, "", 10)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated at: %s", fmtTime(generatedAt)), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Operator: %s", safeText(operator, utf8OK)), "", 1, "L", false, 0, "")
	if strings.TrimSpace(note) != "" {
		pdf.MultiCell(0, 5, fmt.Sprintf("Note: %s", safeText(note, utf8OK)), "", "L", false)
	}
	pdf.Ln(2)

	sectionTitle(pdf, fontFamily, "1. Attested Facts")
	kv(pdf, fontFamily, utf8OK, "Chain ID", rec.ChainID.String())
	kv(pdf, fontFamily, utf8OK, "Token", rec.Token.Hex())
	kv(pdf, fontFamily, utf8OK, "Owner", rec.Owner.Hex())
	kv(pdf, fontFamily, utf8OK, "Balance", rec.Balance.Dec())
	kv(pdf, fontFamily, utf8OK, "Block", fmt.Sprintf("%d", rec.Block))
	if strings.TrimSpace(eventID) != "" {
		kv(pdf, fontFamily, utf8OK, "Journal Event", eventID)
	}
	pdf.Ln(2)

	sectionTitle(pdf, fontFamily, "2. Signature")
	kv(pdf, fontFamily, utf8OK, "Signer", rec.SignerAddress.Hex())
	kv(pdf, fontFamily, utf8OK, "Message Hash", rec.MessageHash.Hex())
	kv(pdf, fontFamily, utf8OK, "Signature", hexutil.Encode(rec.Signature))
	kv(pdf, fontFamily, utf8OK, "Message", hexutil.Encode(rec.Message))
	kv(pdf, fontFamily, utf8OK, "Check", "signature recovers signer (verified at render time)")
	pdf.Ln(2)

	pdf.SetFont(fontFamily, "", 9)
	pdf.SetTextColor(90, 90, 90)
	pdf.MultiCell(0, 4.5, "Message layout: token(20) | owner(20) | balance(uint256, 32, big-endian) | block(uint64, 8, big-endian). "+
		"Signature: secp256k1 over keccak256(\"\\x19Ethereum Signed Message:\\n32\" || keccak256(message)), r|s|v with v in {27,28}. "+
		"The balance and block are read in two RPC calls and are not guaranteed to be an atomic snapshot.", "", "L", false)

	return pdf, utf8OK
}

func sectionTitle(pdf *gofpdf.Fpdf, fontFamily string, title string) {
	pdf.SetFont(fontFamily, "B", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 7, title, "", 1, "L", false, 0, "")
	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(pdf.GetX(), pdf.GetY(), 196, pdf.GetY())
	pdf.Ln(2)
}

func kv(pdf *gofpdf.Fpdf, fontFamily string, utf8OK bool, key string, value string) {
	if strings.TrimSpace(value) == "" {
		value = "-"
	}
	pdf.SetFont(fontFamily, "B", 10)
	pdf.SetTextColor(30, 30, 30)
	pdf.CellFormat(32, 5.2, key+":", "", 0, "L", false, 0, "")
	pdf.SetFont(fontFamily, "", 10)
	pdf.SetTextColor(20, 20, 20)
	pdf.MultiCell(0, 5.2, safeText(value, utf8OK), "", "L", false)
}

func fmtTime(ts int64) string {
	if ts <= 0 {
		return "-"
	}
	return time.Unix(ts, 0).Format("2006-01-02 15:04:05")
}

// safeText 在没有 UTF-8 字体时把非 ASCII 字符替换为 '?'，保证 PDF 一定能生成。
func safeText(s string, utf8OK bool) string {
	s = strings.NewReplacer("\r", " ", "\n", " ", "\t", " ").Replace(s)
	s = strings.TrimSpace(s)
	if utf8OK {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 32 && r <= 126 {
			b.WriteRune(r)
		} else {
			b.WriteRune('?')
		}
	}
	return b.String()
}

// initPDFUnicodeFont 尝试加载 UTF-8 字体：先看 ATTESTOR_PDF_FONT，再探测常见系统字体；
// 都失败时回退到 Helvetica。
func initPDFUnicodeFont(pdf *gofpdf.Fpdf) (family string, utf8OK bool) {
	const familyName = "unicode"
	candidates := []string{}

	if v := strings.TrimSpace(os.Getenv(EnvPDFFont)); v != "" {
		candidates = append(candidates, v)
	}

	switch runtime.GOOS {
	case "darwin":
		candidates = append(candidates,
			"/System/Library/Fonts/Supplemental/Arial Unicode.ttf",
			"/System/Library/Fonts/PingFang.ttc",
		)
	case "windows":
		candidates = append(candidates,
			`C:\Windows\Fonts\arialuni.ttf`,
			`C:\Windows\Fonts\msyh.ttc`,
		)
	default:
		candidates = append(candidates,
			"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
			"/usr/share/fonts/truetype/noto/NotoSansCJK-Regular.ttc",
		)
	}

	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		// 同一文件注册 B 样式，避免 SetFont(...,"B",...) 报错。
		pdf.AddUTF8Font(familyName, "", p)
		if pdf.Err() {
			pdf.ClearError()
			continue
		}
		pdf.AddUTF8Font(familyName, "B", p)
		if pdf.Err() {
			pdf.ClearError()
		}
		return familyName, true
	}

	return "Helvetica", false
}
