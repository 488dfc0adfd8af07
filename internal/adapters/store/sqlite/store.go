package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"balance-attestor/internal/domain/model"
	"balance-attestor/internal/platform/id"
)

// Store 封装证明日志的 SQLite 读写。
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// GetSchemaMetaValue 查询 schema_meta 表指定 key 的 value。
func (s *Store) GetSchemaMetaValue(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `
		SELECT value
		FROM schema_meta
		WHERE key = ?
		LIMIT 1
	`, key).Scan(&v)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("query schema_meta %s: %w", key, err)
	}
	return v, nil
}

// AppendAttestation 追加一条证明日志，并生成链式 hash 以便后续校验完整性。
//
// 读取上一条 chain_hash 与插入在同一事务内完成；连接池为单连接，
// 并发请求在这里自然串行。
func (s *Store) AppendAttestation(ctx context.Context, rec *model.AttestationRecord) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("append attestation: record is nil")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx append attestation: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	prev := ""
	err = tx.QueryRowContext(ctx, `
		SELECT chain_hash
		FROM attestation_logs
		ORDER BY seq DESC
		LIMIT 1
	`).Scan(&prev)
	if err != nil && err != sql.ErrNoRows {
		return "", fmt.Errorf("query previous chain hash: %w", err)
	}
	err = nil

	entry := model.NewAttestationLog(rec, s.now().Unix())
	entry.EventID = id.New("att")
	entry.ChainPrevHash = prev
	entry.ChainHash = entry.ComputeChainHash(prev)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attestation_logs(
			event_id, chain_id, token, owner, balance, block,
			message, message_hash, signature, signer, occurred_at,
			chain_prev_hash, chain_hash
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.EventID,
		int64(entry.ChainID),
		entry.Token,
		entry.Owner,
		entry.Balance,
		int64(entry.Block),
		entry.Message,
		entry.MessageHash,
		entry.Signature,
		entry.Signer,
		entry.OccurredAt,
		nullIfEmpty(prev),
		entry.ChainHash,
	)
	if err != nil {
		return "", fmt.Errorf("insert attestation log: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("commit attestation log: %w", err)
	}
	return entry.EventID, nil
}

// ListAttestationLogs 按写入顺序返回证明日志（最多 limit 条，从最早开始）。
func (s *Store) ListAttestationLogs(ctx context.Context, limit int) ([]model.AttestationLog, error) {
	if limit <= 0 {
		limit = 500
	}
	if limit > 5000 {
		limit = 5000
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			seq,
			event_id,
			chain_id,
			token,
			owner,
			balance,
			block,
			message,
			message_hash,
			signature,
			signer,
			occurred_at,
			COALESCE(chain_prev_hash, ''),
			chain_hash
		FROM attestation_logs
		ORDER BY seq ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query attestation logs: %w", err)
	}
	defer rows.Close()

	var out []model.AttestationLog
	for rows.Next() {
		var item model.AttestationLog
		var chainID, block int64
		if err := rows.Scan(
			&item.Seq,
			&item.EventID,
			&chainID,
			&item.Token,
			&item.Owner,
			&item.Balance,
			&block,
			&item.Message,
			&item.MessageHash,
			&item.Signature,
			&item.Signer,
			&item.OccurredAt,
			&item.ChainPrevHash,
			&item.ChainHash,
		); err != nil {
			return nil, fmt.Errorf("scan attestation log: %w", err)
		}
		item.ChainID = uint64(chainID)
		item.Block = uint64(block)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attestation logs: %w", err)
	}
	if out == nil {
		out = []model.AttestationLog{}
	}
	return out, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
