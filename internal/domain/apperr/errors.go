// Package apperr 定义证明流水线的错误分类。
//
// 调用方应通过 Kind 分支处理（errors.As / IsKind），不要匹配错误字符串。
package apperr

import "errors"

// Kind 是稳定的错误类别。
type Kind string

const (
	// KindUnsupportedChain 链 ID 不在静态链表中。
	KindUnsupportedChain Kind = "unsupported_chain"
	// KindAddressParse 地址文本不是合法的 20 字节十六进制地址。
	KindAddressParse Kind = "address_parse"
	// KindConnection RPC 节点不可达（拨号失败、网络错误、HTTP 非 2xx）。
	KindConnection Kind = "connection"
	// KindCall 合约调用 revert、RPC 返回错误或返回数据无法解码。
	KindCall Kind = "call"
	// KindKeyParse 签名私钥配置非法，属于启动期致命错误。
	KindKeyParse Kind = "key_parse"
	// KindSigning 签名原语本身失败。
	KindSigning Kind = "signing"
)

// Error 是带类别的结构化错误。Message 给人看，可能随版本变化。
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, msg string, cause error) error {
	if cause == nil {
		return New(kind, msg)
	}
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// IsKind 判断 err（或其包装链）是否为指定类别的 *Error。
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// KindOf 返回 err 的类别；非结构化错误返回空字符串。
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}
