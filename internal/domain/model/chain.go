package model

// ChainBundle 是链表配置文件（chains.yaml）的顶层结构。
type ChainBundle struct {
	Version     string      `yaml:"version"`
	Description string      `yaml:"description"`
	Chains      []ChainSpec `yaml:"chains"`
}

// ChainSpec 定义一条链的 RPC 入口。
// Enabled=false 的条目保留在文件中但不会进入解析表。
type ChainSpec struct {
	ChainID ChainID `yaml:"chain_id"`
	Name    string  `yaml:"name"`
	RPCURL  string  `yaml:"rpc_url"`
	Enabled bool    `yaml:"enabled"`
}

// Endpoint 转换为运行期使用的连接参数。
func (c ChainSpec) Endpoint() EndpointConfig {
	return EndpointConfig{ChainID: c.ChainID, Name: c.Name, RPCURL: c.RPCURL}
}
