package journalexport

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"balance-attestor/internal/app"
	"balance-attestor/internal/domain/model"
	"balance-attestor/internal/platform/hash"
	"balance-attestor/internal/services/auditverify"
)

// 证明日志导出包（ZIP）
//
// 内容（v1）：
// - manifest.json：应用版本、日志全集、导出时的强校验结果、文件清单
// - chains/<file>：生成这些证明时使用的链表文件（可选）
// - hashes.sha256：ZIP 内各文件（除自身）sha256 列表（sha256sum 兼容格式）

// LogLister 读取证明日志（sqlite.Store 实现）。
type LogLister interface {
	ListAttestationLogs(ctx context.Context, limit int) ([]model.AttestationLog, error)
}

type ZipOptions struct {
	// ExportDir 为导出目录，默认 data/exports。
	ExportDir string
	// ChainsPath 可选：把链表文件一并打包。
	ChainsPath string
	// Limit 为导出的最大日志条数，默认 5000。
	Limit int
	Note  string
}

type FileHashEntry struct {
	Path      string `json:"path"`
	SHA256    string `json:"sha256"`
	SizeBytes int64  `json:"size_bytes"`
	Kind      string `json:"kind"` // chains|manifest
}

type ZipManifest struct {
	Schema      string `json:"schema"`
	GeneratedAt int64  `json:"generated_at"`

	App struct {
		Version   string `json:"version"`
		Commit    string `json:"commit"`
		BuildTime string `json:"build_time"`
	} `json:"app"`

	Logs     []model.AttestationLog `json:"logs"`
	Verify   auditverify.Result     `json:"verify"`
	Files    []FileHashEntry        `json:"files"`
	Warnings []string               `json:"warnings,omitempty"`
	Note     string                 `json:"note,omitempty"`
}

type ZipResult struct {
	ZipPath       string   `json:"zip_path"`
	ZipSHA256     string   `json:"zip_sha256"`
	Entries       int      `json:"entries"`
	LastChainHash string   `json:"last_chain_hash,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

const manifestSchemaV1 = "balance_attestor.journal_export_manifest.v1"

// GenerateJournalZip 导出证明日志。日志本身校验不通过时仍然导出，结果写进 manifest.verify。
func GenerateJournalZip(ctx context.Context, store LogLister, opts ZipOptions) (*ZipResult, error) {
	exportDir := strings.TrimSpace(opts.ExportDir)
	if exportDir == "" {
		exportDir = filepath.Join("data", "exports")
	}
	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 5000
	}

	logs, err := store.ListAttestationLogs(ctx, limit)
	if err != nil {
		return nil, err
	}
	verify := auditverify.VerifyAttestationLogs(logs)

	var warnings []string
	if !verify.OK {
		warnings = append(warnings, fmt.Sprintf("journal verification failed: %d of %d entries", verify.Failed, verify.Total))
	}

	zipPath := filepath.Join(exportDir, fmt.Sprintf("attestation_journal_%d.zip", time.Now().Unix()))
	f, err := os.Create(zipPath)
	if err != nil {
		return nil, fmt.Errorf("create zip: %w", err)
	}
	defer func() { _ = f.Close() }()

	zw := zip.NewWriter(f)
	defer func() { _ = zw.Close() }()

	var fileHashes []FileHashEntry

	if chainsPath := strings.TrimSpace(opts.ChainsPath); chainsPath != "" {
		zp := "chains/" + filepath.Base(chainsPath)
		sum, size, err := writeZipFileFromDisk(zw, chainsPath, zp)
		if err != nil {
			// 缺失链表不阻断导出，但必须在 manifest 里留下痕迹。
			warnings = append(warnings, fmt.Sprintf("skip chain table %s: %v", chainsPath, err))
		} else {
			fileHashes = append(fileHashes, FileHashEntry{Path: zp, SHA256: sum, SizeBytes: size, Kind: "chains"})
		}
	}

	manifest := ZipManifest{
		Schema:      manifestSchemaV1,
		GeneratedAt: time.Now().Unix(),
		Logs:        logs,
		Verify:      verify,
		Files:       append([]FileHashEntry(nil), fileHashes...),
		Warnings:    warnings,
		Note:        strings.TrimSpace(opts.Note),
	}
	manifest.App.Version = app.Version
	manifest.App.Commit = app.Commit
	manifest.App.BuildTime = app.BuildTime

	manifestRaw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	manifestSum, manifestSize, err := writeZipFileFromBytes(zw, "manifest.json", manifestRaw)
	if err != nil {
		return nil, fmt.Errorf("write manifest to zip: %w", err)
	}
	fileHashes = append(fileHashes, FileHashEntry{Path: "manifest.json", SHA256: manifestSum, SizeBytes: manifestSize, Kind: "manifest"})

	sort.Slice(fileHashes, func(i, j int) bool { return fileHashes[i].Path < fileHashes[j].Path })
	hashLines := []string{
		"# balance-attestor journal export hash list",
		fmt.Sprintf("# generated_at=%d", time.Now().Unix()),
		"# format: <sha256><two spaces><path>",
	}
	for _, fh := range fileHashes {
		hashLines = append(hashLines, fmt.Sprintf("%s  %s", fh.SHA256, fh.Path))
	}
	hashLines = append(hashLines, "")
	if _, _, err := writeZipFileFromBytes(zw, "hashes.sha256", []byte(strings.Join(hashLines, "\n"))); err != nil {
		return nil, fmt.Errorf("write hashes.sha256 to zip: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip writer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close zip file: %w", err)
	}

	zipSum, _, err := hash.File(zipPath)
	if err != nil {
		return nil, fmt.Errorf("hash zip: %w", err)
	}

	return &ZipResult{
		ZipPath:       zipPath,
		ZipSHA256:     zipSum,
		Entries:       len(logs),
		LastChainHash: verify.LastChainHash,
		Warnings:      warnings,
	}, nil
}

func writeZipFileFromDisk(zw *zip.Writer, srcPath, zipPath string) (sum string, size int64, err error) {
	fi, err := os.Stat(srcPath)
	if err != nil {
		return "", 0, err
	}
	if fi.IsDir() {
		return "", 0, fmt.Errorf("is a directory")
	}

	hdr, err := zip.FileInfoHeader(fi)
	if err != nil {
		return "", 0, err
	}
	hdr.Name = zipPath
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return "", 0, err
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return "", 0, err
	}
	defer src.Close()

	return hash.Reader(io.TeeReader(src, w))
}

func writeZipFileFromBytes(zw *zip.Writer, zipPath string, b []byte) (sum string, size int64, err error) {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     zipPath,
		Method:   zip.Deflate,
		Modified: time.Now(),
	})
	if err != nil {
		return "", 0, err
	}
	return hash.Reader(io.TeeReader(bytes.NewReader(b), w))
}
