package chainresolve

import (
	"fmt"
	"sort"
	"strings"

	"balance-attestor/internal/domain/apperr"
	"balance-attestor/internal/domain/model"
)

// DefaultMainnetRPC 是内置链表中主网的公共 RPC（不保证长期可用）。
// 正式部署建议通过 chains.yaml 或 ATTESTOR_RPC_URL_1 配置私有节点。
const DefaultMainnetRPC = "https://eth.llamarpc.com"

// DefaultEndpoints 返回未配置链表文件时使用的内置表。
func DefaultEndpoints() []model.EndpointConfig {
	return []model.EndpointConfig{
		{ChainID: 1, Name: "ethereum", RPCURL: DefaultMainnetRPC},
	}
}

// Resolver 把链 ID 映射为 RPC 连接参数。
//
// 表在构造时复制一份，之后只读，可被并发请求无锁访问。
type Resolver struct {
	table map[model.ChainID]model.EndpointConfig
}

// NewResolver 用给定链表构造解析器；重复链 ID 或空 RPC 地址视为配置错误。
func NewResolver(endpoints []model.EndpointConfig) (*Resolver, error) {
	table := make(map[model.ChainID]model.EndpointConfig, len(endpoints))
	for _, ep := range endpoints {
		if strings.TrimSpace(ep.RPCURL) == "" {
			return nil, fmt.Errorf("chain %d: rpc_url is required", ep.ChainID)
		}
		if _, ok := table[ep.ChainID]; ok {
			return nil, fmt.Errorf("duplicate chain id: %d", ep.ChainID)
		}
		ep.RPCURL = strings.TrimSpace(ep.RPCURL)
		table[ep.ChainID] = ep
	}
	return &Resolver{table: table}, nil
}

// Resolve 纯查表；未知链 ID 返回 KindUnsupportedChain，不回退到任何默认链。
func (r *Resolver) Resolve(chain model.ChainID) (model.EndpointConfig, error) {
	ep, ok := r.table[chain]
	if !ok {
		return model.EndpointConfig{}, apperr.New(apperr.KindUnsupportedChain, fmt.Sprintf("unsupported chain: %d", chain))
	}
	return ep, nil
}

// Chains 按链 ID 升序返回全部已知链。
func (r *Resolver) Chains() []model.EndpointConfig {
	out := make([]model.EndpointConfig, 0, len(r.table))
	for _, ep := range r.table {
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ChainID < out[j].ChainID
	})
	return out
}
