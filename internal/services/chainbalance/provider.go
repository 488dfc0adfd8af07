package chainbalance

import (
	"context"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client 是余额查询所需的最小 RPC 能力（*ethclient.Client 满足该接口）。
//
// 连接管理交给 go-ethereum 的 rpc 客户端；这里只约定两次调用：
// - CallContract：执行 balanceOf
// - BlockNumber：读取当前区块高度
type Client interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Close()
}

// Dialer 按 RPC 地址建立 Client。测试中可替换为桩实现。
type Dialer func(ctx context.Context, rpcURL string) (Client, error)

const defaultHTTPTimeout = 12 * time.Second

// DialEthClient 是默认 Dialer：go-ethereum rpc + ethclient。
// HTTP 端点的拨号是惰性的，真正的网络错误会在第一次调用时出现。
func DialEthClient(ctx context.Context, rpcURL string) (Client, error) {
	c, err := rpc.DialOptions(ctx, rpcURL, rpc.WithHTTPClient(&http.Client{Timeout: defaultHTTPTimeout}))
	if err != nil {
		return nil, err
	}
	return ethclient.NewClient(c), nil
}
