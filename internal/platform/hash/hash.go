// Package hash 提供证明日志与导出物使用的 SHA-256 摘要（小写 hex）。
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// Text 计算证明日志 chain_hash 的输入摘要：各字段去掉首尾空白后以 "\n" 连接。
// 字段顺序是格式的一部分，改动后已有日志将无法复核。
func Text(parts ...string) string {
	trimmed := make([]string, len(parts))
	for i, p := range parts {
		trimmed[i] = strings.TrimSpace(p)
	}
	return Bytes([]byte(strings.Join(trimmed, "\n")))
}

// Bytes 返回 b 的 SHA-256。
func Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Reader 读完 r 并返回 SHA-256 与读取的字节数。
func Reader(r io.Reader) (sum string, n int64, err error) {
	h := sha256.New()
	n, err = io.Copy(h, r)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// File 计算文件的 SHA-256（证书 PDF、导出 ZIP）。
func File(path string) (sum string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Reader(f)
}
