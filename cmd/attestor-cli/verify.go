package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	sqliteadapter "balance-attestor/internal/adapters/store/sqlite"
	"balance-attestor/internal/domain/model"
	"balance-attestor/internal/services/auditverify"
	"balance-attestor/internal/services/journalexport"
	"balance-attestor/internal/services/signer"
)

// runVerify 是 verify 子命令路由：
// - verify record：离线复核一条证明记录（消息编码、摘要、签名恢复）
// - verify journal：对证明日志做链式 hash 与签名强校验
// - verify journal-zip：复核导出包内 hashes.sha256 与日志
func runVerify(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printVerifyUsage()
		return nil
	}

	switch args[0] {
	case "record":
		return runVerifyRecord(ctx, args[1:])
	case "journal":
		return runVerifyJournal(ctx, args[1:])
	case "journal-zip":
		return runVerifyJournalZip(ctx, args[1:])
	default:
		printVerifyUsage()
		return fmt.Errorf("unknown verify command: %s", args[0])
	}
}

func printVerifyUsage() {
	fmt.Println("Usage:")
	fmt.Println("  attestor-cli verify record --file record.json [--signer 0x...]")
	fmt.Println("  attestor-cli verify journal [--db data/attestor.db] [--limit 5000]")
	fmt.Println("  attestor-cli verify journal-zip --zip PATH_TO_ZIP")
}

func runVerifyRecord(ctx context.Context, args []string) error {
	_ = ctx

	fs := flag.NewFlagSet("verify record", flag.ContinueOnError)
	file := fs.String("file", "", "attestation record json (required, - for stdin)")
	expectSigner := fs.String("signer", "", "expected signer address (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rec, err := readRecord(*file)
	if err != nil {
		return err
	}
	if err := signer.VerifyRecord(rec); err != nil {
		fmt.Println("attestation record verify failed")
		return err
	}
	if want := strings.TrimSpace(*expectSigner); want != "" && !strings.EqualFold(want, rec.SignerAddress.Hex()) {
		return fmt.Errorf("signer mismatch: record=%s expected=%s", rec.SignerAddress.Hex(), want)
	}

	fmt.Println("attestation record verify passed")
	fmt.Printf("chain_id=%d token=%s owner=%s balance=%s block=%d\n",
		rec.ChainID, rec.Token.Hex(), rec.Owner.Hex(), rec.Balance.Dec(), rec.Block)
	fmt.Printf("message_hash=%s signer=%s\n", rec.MessageHash.Hex(), rec.SignerAddress.Hex())
	return nil
}

func runVerifyJournal(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("verify journal", flag.ContinueOnError)
	dbPath := fs.String("db", "data/attestor.db", "sqlite database path")
	limit := fs.Int("limit", 5000, "max journal entries to verify (default 5000)")
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

	logs, err := sqliteadapter.NewStore(db).ListAttestationLogs(ctx, *limit)
	if err != nil {
		return err
	}

	res := auditverify.VerifyAttestationLogs(logs)
	fmt.Println("attestation journal verify completed")
	fmt.Printf("total=%d failed=%d prev_hash_failed=%d chain_hash_failed=%d signature_failed=%d last_hash=%s\n",
		res.Total, res.Failed, res.PrevHashFailed, res.ChainHashFailed, res.SignatureFailed, res.LastChainHash)
	if !res.OK {
		for _, f := range res.Failures {
			fmt.Printf("FAIL index=%d event_id=%s message=%s expected_prev=%s actual_prev=%s expected_hash=%s actual_hash=%s\n",
				f.Index, f.EventID, f.Message, f.ExpectedPrevHash, f.ActualPrevHash, f.ExpectedChainHash, f.ActualChainHash,
			)
		}
		return fmt.Errorf("attestation journal verify failed")
	}
	return nil
}

func runVerifyJournalZip(ctx context.Context, args []string) error {
	_ = ctx

	fs := flag.NewFlagSet("verify journal-zip", flag.ContinueOnError)
	zipPath := fs.String("zip", "", "path to journal export zip (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*zipPath) == "" {
		return fmt.Errorf("--zip is required")
	}

	res, err := journalexport.VerifyJournalZip(*zipPath)
	if err != nil {
		return err
	}
	fmt.Println("journal zip verify completed")
	fmt.Printf("files_total=%d ok=%d failed=%d\n", res.Total, res.Passed, res.Failed)
	for _, f := range res.Files {
		if f.Status != "ok" {
			fmt.Printf("FAIL path=%s status=%s expected=%s actual=%s %s\n", f.Path, f.Status, f.Expected, f.Actual, f.Error)
		}
	}
	if res.Journal != nil {
		fmt.Printf("journal_total=%d journal_failed=%d last_hash=%s\n", res.Journal.Total, res.Journal.Failed, res.Journal.LastChainHash)
	}
	if !res.OK {
		return fmt.Errorf("journal zip verify failed")
	}
	return nil
}

// readRecord 从文件（或 "-" 表示 stdin）读取 JSON 证明记录。
func readRecord(path string) (*model.AttestationRecord, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("--file is required")
	}
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	var rec model.AttestationRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("parse record: %w", err)
	}
	return &rec, nil
}
