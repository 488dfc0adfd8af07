package attestation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"balance-attestor/internal/adapters/chains"
	"balance-attestor/internal/adapters/store/sqlite"
	"balance-attestor/internal/app"
	"balance-attestor/internal/domain/apperr"
	"balance-attestor/internal/domain/model"
	"balance-attestor/internal/services/chainbalance"
	"balance-attestor/internal/services/chainresolve"
	"balance-attestor/internal/services/privacy"
	"balance-attestor/internal/services/signer"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// BalanceQuerier 查询某个 owner 在某个 token 合约上的余额及观测区块。
type BalanceQuerier interface {
	QueryBalance(ctx context.Context, ep model.EndpointConfig, token, owner common.Address) (*uint256.Int, uint64, error)
}

// Journal 是证明日志的追加/读取接口（sqlite.Store 实现）。
type Journal interface {
	AppendAttestation(ctx context.Context, rec *model.AttestationRecord) (string, error)
	ListAttestationLogs(ctx context.Context, limit int) ([]model.AttestationLog, error)
}

// ErrJournalDisabled 表示未配置 db_path。
var ErrJournalDisabled = errors.New("attestation journal is disabled")

// Request 是一次证明请求：地址仍为原始文本，由 Attest 负责解析。
type Request struct {
	Chain model.ChainID
	Token string
	Owner string
}

// Options 用于直接组装 Service（测试或嵌入场景）。Journal/Logger 可为空。
type Options struct {
	Resolver *chainresolve.Resolver
	Querier  BalanceQuerier
	Signer   *signer.Signer
	Journal  Journal
	Logger   *slog.Logger
	Masker   privacy.Masker
}

// Service 串联 解析链 -> 查询余额 -> 签名 -> 记录日志。
//
// 构造后所有字段只读，可被并发请求共享。
type Service struct {
	resolver *chainresolve.Resolver
	querier  BalanceQuerier
	signer   *signer.Signer
	journal  Journal
	logger   *slog.Logger
	mask     privacy.Masker

	chainsSHA256 string
	db           *sql.DB
}

func New(opts Options) (*Service, error) {
	if opts.Resolver == nil {
		return nil, errors.New("attestation: resolver is required")
	}
	if opts.Querier == nil {
		return nil, errors.New("attestation: querier is required")
	}
	if opts.Signer == nil {
		return nil, errors.New("attestation: signer is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		resolver: opts.Resolver,
		querier:  opts.Querier,
		signer:   opts.Signer,
		journal:  opts.Journal,
		logger:   logger,
		mask:     opts.Masker,
	}, nil
}

// Open 按配置组装完整服务。私钥缺失或无法解析时返回 KindKeyParse，调用方应拒绝启动。
func Open(ctx context.Context, cfg app.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	keyHex, err := cfg.SigningKey()
	if err != nil {
		return nil, err
	}
	sg, err := signer.Load(keyHex)
	if err != nil {
		return nil, err
	}

	var (
		endpoints []model.EndpointConfig
		chainsSHA string
	)
	if strings.TrimSpace(cfg.ChainsPath) != "" {
		loaded, err := chains.NewLoader(cfg.ChainsPath).Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load chain table: %w", err)
		}
		endpoints = loaded.Endpoints
		chainsSHA = loaded.SHA256
	} else {
		endpoints = chains.ApplyEnvOverrides(chainresolve.DefaultEndpoints(), nil)
	}
	resolver, err := chainresolve.NewResolver(endpoints)
	if err != nil {
		return nil, fmt.Errorf("build chain resolver: %w", err)
	}

	opts := Options{
		Resolver: resolver,
		Querier:  chainbalance.NewERC20Provider(),
		Signer:   sg,
		Logger:   logger,
		Masker:   privacy.Masker{Enabled: cfg.Masked()},
	}

	var db *sql.DB
	if strings.TrimSpace(cfg.DBPath) != "" {
		db, err = sqlite.Open(ctx, cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		opts.Journal = sqlite.NewStore(db)
	}

	svc, err := New(opts)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, err
	}
	svc.chainsSHA256 = chainsSHA
	svc.db = db

	logger.Info("attestation service ready",
		"signer", svc.signer.Address().Hex(),
		"chains", len(endpoints),
		"journal", db != nil,
		"privacy_mode", cfg.PrivacyMode,
	)
	return svc, nil
}

// Close 释放日志数据库连接。
func (s *Service) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ParseAddress 解析 0x 前缀的 40 位十六进制地址（大小写不限，不校验 EIP-55 校验和）。
func ParseAddress(field, text string) (common.Address, error) {
	if len(text) != 2+2*common.AddressLength || !(strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X")) || !common.IsHexAddress(text) {
		return common.Address{}, apperr.New(apperr.KindAddressParse, fmt.Sprintf("invalid %s address: %q", field, text))
	}
	return common.HexToAddress(text), nil
}

// Issued 是一次证明的产出：签名记录，以及写入证明日志后的事件编号。
// 日志未启用或写入失败时 EventID 为空。
type Issued struct {
	Record  *model.AttestationRecord
	EventID string
}

// Attest 执行一次完整的证明流程，只返回签名记录。
func (s *Service) Attest(ctx context.Context, req Request) (*model.AttestationRecord, error) {
	out, err := s.Issue(ctx, req)
	if err != nil {
		return nil, err
	}
	return out.Record, nil
}

// Issue 与 Attest 相同，额外带回证明日志事件编号（用于证书 PDF 等）。
//
// 地址在任何网络调用之前解析；余额与区块高度不是同一原子快照（见 ERC20Provider）。
// 日志写入失败只记录告警，不影响已生成的证明。
func (s *Service) Issue(ctx context.Context, req Request) (*Issued, error) {
	token, err := ParseAddress("token", req.Token)
	if err != nil {
		return nil, err
	}
	owner, err := ParseAddress("owner", req.Owner)
	if err != nil {
		return nil, err
	}

	ep, err := s.resolver.Resolve(req.Chain)
	if err != nil {
		return nil, err
	}

	balance, block, err := s.querier.QueryBalance(ctx, ep, token, owner)
	if err != nil {
		s.logger.Warn("balance query failed",
			"chain", req.Chain,
			"rpc", s.mask.URL(ep.RPCURL),
			"token", s.mask.Address(token),
			"owner", s.mask.Address(owner),
			"kind", apperr.KindOf(err),
			"err", err,
		)
		return nil, err
	}

	rec, err := s.signer.Sign(req.Chain, token, owner, balance, block)
	if err != nil {
		return nil, err
	}

	eventID := ""
	if s.journal != nil {
		if eventID, err = s.journal.AppendAttestation(ctx, rec); err != nil {
			s.logger.Warn("append attestation journal failed", "err", err)
			eventID = ""
		}
	}

	s.logger.Info("attestation issued",
		"chain", req.Chain,
		"token", s.mask.Address(token),
		"owner", s.mask.Address(owner),
		"block", block,
		"message_hash", rec.MessageHash.Hex(),
		"event_id", eventID,
	)
	return &Issued{Record: rec, EventID: eventID}, nil
}

// SignerAddress 返回签名者地址。
func (s *Service) SignerAddress() common.Address {
	return s.signer.Address()
}

// Chains 返回已配置的链（RPC URL 按隐私模式脱敏）。
func (s *Service) Chains() []model.EndpointConfig {
	out := s.resolver.Chains()
	for i := range out {
		out[i].RPCURL = s.mask.URL(out[i].RPCURL)
	}
	return out
}

// ChainTableSHA256 返回链表文件的 sha256；使用内置表时为空。
func (s *Service) ChainTableSHA256() string {
	return s.chainsSHA256
}

// JournalEnabled 表示是否配置了证明日志。
func (s *Service) JournalEnabled() bool {
	return s.journal != nil
}

// JournalLogs 按写入顺序读取证明日志。
func (s *Service) JournalLogs(ctx context.Context, limit int) ([]model.AttestationLog, error) {
	if s.journal == nil {
		return nil, ErrJournalDisabled
	}
	return s.journal.ListAttestationLogs(ctx, limit)
}
