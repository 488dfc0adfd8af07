package chainbalance

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"strings"

	"balance-attestor/internal/domain/apperr"
	"balance-attestor/internal/domain/model"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
)

// 只覆盖 balanceOf(address)->uint256，不做 ABI 泛化。
const erc20BalanceOfABI = `[{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

var erc20ABI = mustParseABI(erc20BalanceOfABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse erc20 abi: %v", err))
	}
	return parsed
}

// ERC20Provider 通过 eth_call 查询 ERC20 余额，并在其后读取区块高度。
//
// 说明：
// - 不校验 token 是否真的是 ERC20 合约；非合约地址会以 KindCall 失败（返回数据为空）。
// - 余额与区块高度是两次独立调用，不保证属于同一区块：区块高度只是余额观测点的下界。
// - 不重试；任何失败都直接终止本次请求。
type ERC20Provider struct {
	Dial Dialer
}

func NewERC20Provider() *ERC20Provider {
	return &ERC20Provider{Dial: DialEthClient}
}

// QueryBalance 返回 owner 在 token 合约中的余额，以及余额调用成功后读取到的区块高度。
func (p *ERC20Provider) QueryBalance(ctx context.Context, ep model.EndpointConfig, token, owner common.Address) (*uint256.Int, uint64, error) {
	rpcURL := strings.TrimSpace(ep.RPCURL)
	if rpcURL == "" {
		return nil, 0, apperr.New(apperr.KindConnection, fmt.Sprintf("chain %d: rpc_url is required", ep.ChainID))
	}

	dial := p.Dial
	if dial == nil {
		dial = DialEthClient
	}
	c, err := dial(ctx, rpcURL)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.KindConnection, "dial rpc", err)
	}
	defer c.Close()

	balance, err := erc20BalanceOf(ctx, c, token, owner)
	if err != nil {
		return nil, 0, err
	}

	// 顺序不可调换：先拿到余额，再取区块高度，避免引用一个尚未产生该状态的区块。
	block, err := c.BlockNumber(ctx)
	if err != nil {
		return nil, 0, classifyRPCError("query block number", err)
	}
	return balance, block, nil
}

func erc20BalanceOf(ctx context.Context, c Client, token, owner common.Address) (*uint256.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindCall, "encode balanceOf", err)
	}

	out, err := c.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, classifyRPCError("call balanceOf", err)
	}

	vals, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindCall, "decode balanceOf", err)
	}
	if len(vals) != 1 {
		return nil, apperr.New(apperr.KindCall, fmt.Sprintf("decode balanceOf: %d return values", len(vals)))
	}
	n, ok := vals[0].(*big.Int)
	if !ok || n == nil {
		return nil, apperr.New(apperr.KindCall, fmt.Sprintf("decode balanceOf: unexpected type %T", vals[0]))
	}
	bal, overflow := uint256.FromBig(n)
	if overflow {
		return nil, apperr.New(apperr.KindCall, "decode balanceOf: value overflows uint256")
	}
	return bal, nil
}

// classifyRPCError 区分“节点不可达”和“调用本身失败”：
// 网络错误、HTTP 非 2xx、上下文取消/超时 -> KindConnection；JSON-RPC 错误（含 revert）-> KindCall。
func classifyRPCError(op string, err error) error {
	var netErr net.Error
	var httpErr rpc.HTTPError
	switch {
	case errors.As(err, &netErr),
		errors.As(err, &httpErr),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.KindConnection, op, err)
	default:
		return apperr.Wrap(apperr.KindCall, op, err)
	}
}
