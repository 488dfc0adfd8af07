package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"balance-attestor/internal/adapters/chains"
	sqliteadapter "balance-attestor/internal/adapters/store/sqlite"
	"balance-attestor/internal/app"
	"balance-attestor/internal/domain/model"
	"balance-attestor/internal/services/attestation"
	"balance-attestor/internal/services/certpdf"
	"balance-attestor/internal/services/chainresolve"
	"balance-attestor/internal/services/journalexport"
	"balance-attestor/internal/services/privacy"
	"balance-attestor/internal/services/signer"
	"balance-attestor/internal/services/webapp"
)

// CLI 入口。所有子命令错误都统一输出到 stderr 并返回非 0 状态码。
func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run 是一级命令路由。
func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printUsage()
		return nil
	}

	switch args[0] {
	case "serve":
		return runServe(ctx, args[1:])
	case "attest":
		return runAttest(ctx, args[1:])
	case "verify":
		return runVerify(ctx, args[1:])
	case "chains":
		return runChains(ctx, args[1:])
	case "migrate":
		return runMigrate(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "signer":
		return runSigner(ctx, args[1:])
	case "version":
		fmt.Printf("version=%s commit=%s build_time=%s\n", app.Version, app.Commit, app.BuildTime)
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// configFlag 注册通用的 --config 参数；默认取 ATTESTOR_CONFIG。
func configFlag(fs *flag.FlagSet) *string {
	return fs.String("config", os.Getenv("ATTESTOR_CONFIG"), "config yaml path (optional)")
}

// runServe 启动 HTTP API，Ctrl+C / SIGTERM 优雅退出。
func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := configFlag(fs)
	listen := fs.String("listen", "", "listen address (overrides config)")
	legacyChain := fs.Uint64("legacy-chain", 1, "chain used by GET /{token}/{owner}; 0 disables the route")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := app.Load(*configPath)
	if err != nil {
		return err
	}
	if strings.TrimSpace(*listen) != "" {
		cfg.ListenAddr = strings.TrimSpace(*listen)
	}
	logger := app.NewLogger(cfg.LogLevel, os.Stderr)

	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc, err := attestation.Open(sigCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	return webapp.Run(sigCtx, webapp.Options{
		ListenAddr:  cfg.ListenAddr,
		Service:     svc,
		Logger:      logger,
		LegacyChain: *legacyChain,
	})
}

// runAttest 在命令行上执行一次证明，输出 JSON 记录；可选同时生成证书 PDF。
func runAttest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("attest", flag.ContinueOnError)
	configPath := configFlag(fs)
	chain := fs.Uint64("chain", 1, "chain id")
	token := fs.String("token", "", "ERC-20 token contract address (required)")
	owner := fs.String("owner", "", "owner address (required)")
	pdfOut := fs.String("pdf", "", "also write a certificate pdf to this path")
	pdfDir := fs.String("pdf-dir", "", "also write a certificate pdf into this dir (default file name)")
	operator := fs.String("operator", "system", "operator id or name (pdf only)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*token) == "" || strings.TrimSpace(*owner) == "" {
		return fmt.Errorf("--token and --owner are required")
	}

	cfg, err := app.Load(*configPath)
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg.LogLevel, os.Stderr)

	svc, err := attestation.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	issued, err := svc.Issue(ctx, attestation.Request{
		Chain: model.ChainID(*chain),
		Token: strings.TrimSpace(*token),
		Owner: strings.TrimSpace(*owner),
	})
	if err != nil {
		return err
	}
	if err := printJSON(issued.Record); err != nil {
		return err
	}
	if issued.EventID != "" {
		fmt.Fprintf(os.Stderr, "event_id=%s\n", issued.EventID)
	}

	if strings.TrimSpace(*pdfOut) != "" || strings.TrimSpace(*pdfDir) != "" {
		res, err := certpdf.Generate(issued.Record, certpdf.Options{
			OutPath:  *pdfOut,
			OutDir:   *pdfDir,
			Operator: *operator,
			EventID:  issued.EventID,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "pdf=%s sha256=%s\n", res.PDFPath, res.PDFSHA256)
	}
	return nil
}

// runChains 是 chains 子命令路由：list / validate。
func runChains(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printChainsUsage()
		return nil
	}

	switch args[0] {
	case "list":
		return runChainsList(ctx, args[1:])
	case "validate":
		return runChainsValidate(ctx, args[1:])
	default:
		printChainsUsage()
		return fmt.Errorf("unknown chains command: %s", args[0])
	}
}

// runChainsList 输出当前生效的链表（chains_path 为空时为内置表）。
func runChainsList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chains list", flag.ContinueOnError)
	configPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := app.Load(*configPath)
	if err != nil {
		return err
	}

	endpoints := chains.ApplyEnvOverrides(chainresolve.DefaultEndpoints(), nil)
	source := "builtin"
	if strings.TrimSpace(cfg.ChainsPath) != "" {
		loaded, err := chains.NewLoader(cfg.ChainsPath).Load(ctx)
		if err != nil {
			return err
		}
		endpoints = loaded.Endpoints
		source = cfg.ChainsPath
	}
	r, err := chainresolve.NewResolver(endpoints)
	if err != nil {
		return err
	}

	fmt.Printf("source=%s\n", source)
	for _, ep := range r.Chains() {
		rpc := ep.RPCURL
		if cfg.Masked() {
			rpc = privacy.MaskURL(rpc)
		}
		fmt.Printf("chain_id=%d name=%s rpc=%s\n", ep.ChainID, ep.Name, rpc)
	}
	return nil
}

// runChainsValidate 检查链表文件，输出版本与哈希摘要。
func runChainsValidate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chains validate", flag.ContinueOnError)
	file := fs.String("file", "configs/chains.yaml", "chain table yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}

	loaded, err := chains.NewLoader(*file).Load(ctx)
	if err != nil {
		return err
	}
	if _, err := chainresolve.NewResolver(loaded.Endpoints); err != nil {
		return err
	}

	fmt.Println("chain table validation passed")
	fmt.Printf("version=%s total=%d enabled=%d sha256=%s\n",
		loaded.Bundle.Version,
		len(loaded.Bundle.Chains),
		len(loaded.Endpoints),
		loaded.SHA256,
	)
	return nil
}

// runMigrate 执行 SQLite 迁移，确保证明日志表结构完整。
func runMigrate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dbPath := fs.String("db", "data/attestor.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := sqliteadapter.Open(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	v, err := sqliteadapter.NewStore(db).GetSchemaMetaValue(ctx, "schema_version")
	if err != nil {
		return err
	}
	fmt.Printf("migrations applied successfully: db=%s schema_version=%s\n", *dbPath, v)
	return nil
}

// runExport 是 export 子命令路由：pdf / journal。
func runExport(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printExportUsage()
		return nil
	}

	switch args[0] {
	case "pdf":
		return runExportPDF(ctx, args[1:])
	case "journal":
		return runExportJournal(ctx, args[1:])
	default:
		printExportUsage()
		return fmt.Errorf("unknown export command: %s", args[0])
	}
}

func runExportPDF(ctx context.Context, args []string) error {
	_ = ctx

	fs := flag.NewFlagSet("export pdf", flag.ContinueOnError)
	file := fs.String("file", "", "attestation record json (required, - for stdin)")
	out := fs.String("out", "", "output pdf path (default: <out-dir>/attestation_<chain>_<block>_<ts>.pdf)")
	outDir := fs.String("out-dir", "", "output dir when --out is empty (default: .)")
	operator := fs.String("operator", "system", "operator id or name")
	note := fs.String("note", "", "free text note")
	eventID := fs.String("event-id", "", "journal event id printed on the certificate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rec, err := readRecord(*file)
	if err != nil {
		return err
	}
	res, err := certpdf.Generate(rec, certpdf.Options{
		OutPath:  *out,
		OutDir:   *outDir,
		Operator: *operator,
		Note:     *note,
		EventID:  strings.TrimSpace(*eventID),
	})
	if err != nil {
		return err
	}
	fmt.Println("attestation pdf generated")
	fmt.Printf("pdf=%s\n", res.PDFPath)
	fmt.Printf("pdf_sha256=%s\n", res.PDFSHA256)
	if len(res.Warnings) > 0 {
		fmt.Printf("warnings=%s\n", strings.Join(res.Warnings, " | "))
	}
	return nil
}

// runExportJournal 把证明日志打包为 ZIP（manifest.json + hashes.sha256）。
func runExportJournal(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export journal", flag.ContinueOnError)
	dbPath := fs.String("db", "data/attestor.db", "sqlite database path")
	outDir := fs.String("out-dir", "data/exports", "export directory")
	chainsPath := fs.String("chains", "", "chain table file to include (optional)")
	limit := fs.Int("limit", 5000, "max journal entries to export")
	note := fs.String("note", "", "free text note")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := os.Stat(*dbPath); err != nil {
		return fmt.Errorf("journal db: %w", err)
	}

	db, err := sqliteadapter.Open(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	res, err := journalexport.GenerateJournalZip(ctx, sqliteadapter.NewStore(db), journalexport.ZipOptions{
		ExportDir:  *outDir,
		ChainsPath: *chainsPath,
		Limit:      *limit,
		Note:       *note,
	})
	if err != nil {
		return err
	}
	fmt.Println("attestation journal exported")
	fmt.Printf("zip=%s\n", res.ZipPath)
	fmt.Printf("zip_sha256=%s entries=%d last_hash=%s\n", res.ZipSHA256, res.Entries, res.LastChainHash)
	if len(res.Warnings) > 0 {
		fmt.Printf("warnings=%s\n", strings.Join(res.Warnings, " | "))
	}
	return nil
}

// runSigner 输出当前配置私钥对应的签名地址，便于登记到验证合约。
func runSigner(ctx context.Context, args []string) error {
	_ = ctx
	if len(args) == 0 || args[0] != "address" {
		fmt.Println("Usage:")
		fmt.Println("  attestor-cli signer address [--config path]")
		if len(args) == 0 {
			return nil
		}
		return fmt.Errorf("unknown signer command: %s", args[0])
	}

	fs := flag.NewFlagSet("signer address", flag.ContinueOnError)
	configPath := configFlag(fs)
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	cfg, err := app.Load(*configPath)
	if err != nil {
		return err
	}
	key, err := cfg.SigningKey()
	if err != nil {
		return err
	}
	s, err := signer.Load(key)
	if err != nil {
		return err
	}
	fmt.Printf("signer_address=%s\n", s.Address().Hex())
	return nil
}

// printUsage 输出一级命令帮助。
func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  attestor-cli serve [--config configs/attestor.yaml] [--listen 127.0.0.1:8080] [--legacy-chain 1]")
	fmt.Println("  attestor-cli attest --token ADDR --owner ADDR [--chain 1] [--config path] [--pdf out.pdf]")
	fmt.Println("  attestor-cli verify record --file record.json")
	fmt.Println("  attestor-cli verify journal [--db data/attestor.db] [--limit 5000]")
	fmt.Println("  attestor-cli chains list [--config path]")
	fmt.Println("  attestor-cli chains validate [--file configs/chains.yaml]")
	fmt.Println("  attestor-cli migrate [--db data/attestor.db]")
	fmt.Println("  attestor-cli export pdf --file record.json [--out path] [--operator name] [--note text]")
	fmt.Println("  attestor-cli export journal [--db data/attestor.db] [--out-dir data/exports] [--chains configs/chains.yaml]")
	fmt.Println("  attestor-cli verify journal-zip --zip PATH_TO_ZIP")
	fmt.Println("  attestor-cli signer address [--config path]")
	fmt.Println("  attestor-cli version")
}

func printChainsUsage() {
	fmt.Println("Usage:")
	fmt.Println("  attestor-cli chains list [--config path]")
	fmt.Println("  attestor-cli chains validate [--file path]")
}

func printExportUsage() {
	fmt.Println("Usage:")
	fmt.Println("  attestor-cli export pdf --file record.json [--out path] [--operator name] [--note text]")
	fmt.Println("  attestor-cli export journal [--db path] [--out-dir path] [--chains path] [--limit 5000] [--note text]")
}

func printJSON(v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}
