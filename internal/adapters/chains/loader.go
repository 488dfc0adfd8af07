package chains

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"balance-attestor/internal/domain/model"
	"balance-attestor/internal/platform/hash"

	"gopkg.in/yaml.v3"
)

// EnvRPCURLPrefix 按链覆盖 rpc_url，例如 ATTESTOR_RPC_URL_1=https://...。
// RPC 地址常带 API key，不适合写进仓库里的 chains.yaml。
const EnvRPCURLPrefix = "ATTESTOR_RPC_URL_"

// Loader 负责从磁盘读取并校验链表文件。
type Loader struct {
	File string

	// LookupEnv 默认为 os.LookupEnv，测试可替换。
	LookupEnv func(key string) (string, bool)
}

// Loaded 是加载后的链表与文件哈希，用于 /api/meta 展示与版本确认。
type Loaded struct {
	Bundle    model.ChainBundle
	SHA256    string
	Endpoints []model.EndpointConfig
}

func NewLoader(file string) *Loader {
	return &Loader{File: file}
}

// Load 读取 YAML、执行结构校验、应用环境变量覆盖，返回启用的链。
func (l *Loader) Load(ctx context.Context) (*Loaded, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(l.File)
	if err != nil {
		return nil, fmt.Errorf("read chain table: %w", err)
	}

	var bundle model.ChainBundle
	if err := yaml.Unmarshal(raw, &bundle); err != nil {
		return nil, fmt.Errorf("parse chain table: %w", err)
	}
	if err := validateBundle(bundle); err != nil {
		return nil, err
	}

	endpoints := make([]model.EndpointConfig, 0, len(bundle.Chains))
	for _, c := range bundle.Chains {
		if c.Enabled {
			endpoints = append(endpoints, c.Endpoint())
		}
	}
	endpoints = ApplyEnvOverrides(endpoints, l.LookupEnv)
	if len(endpoints) == 0 {
		return nil, errors.New("chain table: no enabled chains")
	}

	return &Loaded{
		Bundle:    bundle,
		SHA256:    hash.Bytes(raw),
		Endpoints: endpoints,
	}, nil
}

// ApplyEnvOverrides 用 ATTESTOR_RPC_URL_<chain_id> 替换对应链的 rpc_url。
// 内置链表同样适用。lookup 为 nil 时使用 os.LookupEnv。
func ApplyEnvOverrides(endpoints []model.EndpointConfig, lookup func(string) (string, bool)) []model.EndpointConfig {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	out := make([]model.EndpointConfig, len(endpoints))
	for i, ep := range endpoints {
		if v, ok := lookup(EnvRPCURLPrefix + ep.ChainID.String()); ok && strings.TrimSpace(v) != "" {
			ep.RPCURL = strings.TrimSpace(v)
		}
		out[i] = ep
	}
	return out
}

// validateBundle 检查链表的完整性与唯一性。
func validateBundle(bundle model.ChainBundle) error {
	if strings.TrimSpace(bundle.Version) == "" {
		return errors.New("chain table: version is required")
	}
	if len(bundle.Chains) == 0 {
		return errors.New("chain table: chains is empty")
	}

	seen := make(map[model.ChainID]struct{}, len(bundle.Chains))
	for _, c := range bundle.Chains {
		if c.ChainID == 0 {
			return errors.New("chain table: chain_id is required")
		}
		if _, ok := seen[c.ChainID]; ok {
			return fmt.Errorf("chain table: duplicate chain_id: %d", c.ChainID)
		}
		seen[c.ChainID] = struct{}{}

		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("chain table: name is required: %d", c.ChainID)
		}
		if strings.TrimSpace(c.RPCURL) == "" {
			return fmt.Errorf("chain table: rpc_url is required: %d", c.ChainID)
		}
	}
	return nil
}
