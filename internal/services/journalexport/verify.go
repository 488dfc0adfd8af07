package journalexport

import (
	"archive/zip"
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"balance-attestor/internal/platform/hash"
	"balance-attestor/internal/services/auditverify"
)

// FileCheck 是 hashes.sha256 中一行的复核结果。
type FileCheck struct {
	Path     string `json:"path"`
	Expected string `json:"expected"`
	Actual   string `json:"actual,omitempty"`
	Status   string `json:"status"` // ok|missing|mismatch|error
	Error    string `json:"error,omitempty"`
}

// ZipVerifyResult 汇总文件哈希复核与日志强校验。
type ZipVerifyResult struct {
	OK      bool                `json:"ok"`
	Total   int                 `json:"total"`
	Passed  int                 `json:"passed"`
	Failed  int                 `json:"failed"`
	Files   []FileCheck         `json:"files"`
	Journal *auditverify.Result `json:"journal,omitempty"`
}

// VerifyJournalZip 复核导出包：
// 1) hashes.sha256 列出的每个文件重新计算 sha256
// 2) 对 manifest.json 中的日志重新做链式 hash 与签名校验
func VerifyJournalZip(path string) (*ZipVerifyResult, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	files := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		files[f.Name] = f
	}

	hashList, ok := files["hashes.sha256"]
	if !ok {
		return nil, fmt.Errorf("hashes.sha256 not found in zip")
	}
	raw, err := readZipFileAll(hashList)
	if err != nil {
		return nil, fmt.Errorf("read hashes.sha256: %w", err)
	}

	res := &ZipVerifyResult{OK: true, Files: []FileCheck{}}
	sc := bufio.NewScanner(strings.NewReader(string(raw)))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 || len(parts[0]) != 64 {
			continue
		}
		check := FileCheck{Path: strings.Join(parts[1:], " "), Expected: parts[0]}
		res.Total++

		f, ok := files[check.Path]
		switch {
		case !ok:
			check.Status = "missing"
		default:
			sum, err := sha256OfZipFile(f)
			switch {
			case err != nil:
				check.Status = "error"
				check.Error = err.Error()
			case strings.EqualFold(sum, check.Expected):
				check.Actual = sum
				check.Status = "ok"
			default:
				check.Actual = sum
				check.Status = "mismatch"
			}
		}
		if check.Status == "ok" {
			res.Passed++
		} else {
			res.Failed++
			res.OK = false
		}
		res.Files = append(res.Files, check)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan hashes.sha256: %w", err)
	}

	mf, ok := files["manifest.json"]
	if !ok {
		return nil, fmt.Errorf("manifest.json not found in zip")
	}
	data, err := readZipFileAll(mf)
	if err != nil {
		return nil, fmt.Errorf("read manifest.json: %w", err)
	}
	var manifest ZipManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest.json: %w", err)
	}
	jr := auditverify.VerifyAttestationLogs(manifest.Logs)
	res.Journal = &jr
	if !jr.OK {
		res.OK = false
	}
	return res, nil
}

func readZipFileAll(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func sha256OfZipFile(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	sum, _, err := hash.Reader(rc)
	return sum, err
}
