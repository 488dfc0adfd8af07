package privacy

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	reEVMAddress  = regexp.MustCompile(`(?i)^0x[0-9a-f]{40}$`)
	reURLSchemeRE = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)
)

// Masker 按隐私模式决定日志中的地址/URL 是否脱敏。零值不脱敏。
type Masker struct {
	Enabled bool
}

// Address 返回日志中使用的地址文本。
func (m Masker) Address(a common.Address) string {
	if !m.Enabled {
		return a.Hex()
	}
	return MaskAddress(a.Hex())
}

// URL 返回日志中使用的 RPC URL 文本。RPC URL 常带 API key，脱敏后只保留域名。
func (m Masker) URL(raw string) string {
	if !m.Enabled {
		return raw
	}
	return MaskURL(raw)
}

// MaskAddress 对 0x 地址保留头尾、隐藏中间；非地址直接返回 "<masked>"。
func MaskAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	if !reEVMAddress.MatchString(addr) {
		return "<masked>"
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

// MaskURL 把 URL 降级为“仅保留域名”的形式，避免泄露路径/参数。
// 输入不是合法 URL 时，返回 "<masked_url>"。
func MaskURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	// 对于不带 scheme 的，补一个 https:// 便于 url.Parse。
	if !reURLSchemeRE.MatchString(raw) {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "<masked_url>"
	}
	host := strings.TrimSpace(u.Hostname())
	if host == "" {
		return "<masked_url>"
	}
	return host
}
