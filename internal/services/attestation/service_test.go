package attestation

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"balance-attestor/internal/adapters/store/sqlite"
	"balance-attestor/internal/app"
	"balance-attestor/internal/domain/apperr"
	"balance-attestor/internal/domain/model"
	"balance-attestor/internal/services/auditverify"
	"balance-attestor/internal/services/chainresolve"
	"balance-attestor/internal/services/signer"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const testKeyHex = "380eb0f3d505f087e438eca80bc4df9a7faa24f868e69fc0440261a0fc0567dc"

const (
	tokenText = "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	ownerText = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

type mockQuerier struct {
	mu      sync.Mutex
	calls   int
	balance *uint256.Int
	block   uint64
	err     error
}

func (m *mockQuerier) QueryBalance(_ context.Context, _ model.EndpointConfig, _, _ common.Address) (*uint256.Int, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, 0, m.err
	}
	return m.balance, m.block, nil
}

func (m *mockQuerier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type failingJournal struct{}

func (failingJournal) AppendAttestation(context.Context, *model.AttestationRecord) (string, error) {
	return "", errors.New("disk full")
}

func (failingJournal) ListAttestationLogs(context.Context, int) ([]model.AttestationLog, error) {
	return nil, errors.New("disk full")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, q BalanceQuerier, j Journal) *Service {
	t.Helper()
	r, err := chainresolve.NewResolver(chainresolve.DefaultEndpoints())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	sg, err := signer.Load(testKeyHex)
	if err != nil {
		t.Fatalf("signer.Load: %v", err)
	}
	svc, err := New(Options{Resolver: r, Querier: q, Signer: sg, Journal: j, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func TestAttest_EndToEndMessageLayout(t *testing.T) {
	q := &mockQuerier{balance: uint256.NewInt(1000), block: 123456}
	svc := newTestService(t, q, nil)

	rec, err := svc.Attest(context.Background(), Request{Chain: 1, Token: tokenText, Owner: ownerText})
	if err != nil {
		t.Fatalf("Attest: %v", err)
	}

	want := bytes.Repeat([]byte{0xAA}, 20)
	want = append(want, bytes.Repeat([]byte{0xBB}, 20)...)
	want = append(want, make([]byte, 30)...)
	want = append(want, 0x03, 0xE8)
	want = append(want, 0, 0, 0, 0, 0, 0x01, 0xE2, 0x40)
	if !bytes.Equal(rec.Message, want) {
		t.Fatalf("message mismatch:\n got %s\nwant %s", hex.EncodeToString(rec.Message), hex.EncodeToString(want))
	}

	got, err := signer.RecoverSigner(rec.MessageHash, rec.Signature)
	if err != nil {
		t.Fatalf("RecoverSigner: %v", err)
	}
	if got != svc.SignerAddress() || rec.SignerAddress != got {
		t.Fatalf("recovered=%s want %s", got.Hex(), svc.SignerAddress().Hex())
	}
	if rec.ChainID != 1 || rec.Block != 123456 || rec.Balance.Uint64() != 1000 {
		t.Fatalf("record fields: %+v", rec)
	}
}

func TestAttest_MalformedAddressBeforeAnyRPC(t *testing.T) {
	q := &mockQuerier{balance: uint256.NewInt(1), block: 1}
	svc := newTestService(t, q, nil)

	cases := []Request{
		{Chain: 1, Token: tokenText, Owner: "0x1234"},
		{Chain: 1, Token: tokenText, Owner: "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"},
		{Chain: 1, Token: tokenText, Owner: "0xzzbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"},
		{Chain: 1, Token: "token", Owner: ownerText},
		// 地址错误优先于链不支持。
		{Chain: 999999, Token: tokenText, Owner: "nope"},
	}
	for _, req := range cases {
		_, err := svc.Attest(context.Background(), req)
		if !apperr.IsKind(err, apperr.KindAddressParse) {
			t.Fatalf("%+v: kind=%q err=%v", req, apperr.KindOf(err), err)
		}
	}
	if n := q.count(); n != 0 {
		t.Fatalf("expected no RPC calls, got %d", n)
	}
}

func TestAttest_UnsupportedChainNoRPC(t *testing.T) {
	q := &mockQuerier{balance: uint256.NewInt(1), block: 1}
	svc := newTestService(t, q, nil)

	_, err := svc.Attest(context.Background(), Request{Chain: 999999, Token: tokenText, Owner: ownerText})
	if !apperr.IsKind(err, apperr.KindUnsupportedChain) {
		t.Fatalf("kind=%q err=%v", apperr.KindOf(err), err)
	}
	if n := q.count(); n != 0 {
		t.Fatalf("expected no RPC calls, got %d", n)
	}
}

func TestAttest_QueryFailurePropagates(t *testing.T) {
	q := &mockQuerier{err: apperr.New(apperr.KindConnection, "dial refused")}
	svc := newTestService(t, q, nil)

	rec, err := svc.Attest(context.Background(), Request{Chain: 1, Token: tokenText, Owner: ownerText})
	if rec != nil {
		t.Fatalf("expected no record")
	}
	if !apperr.IsKind(err, apperr.KindConnection) {
		t.Fatalf("kind=%q err=%v", apperr.KindOf(err), err)
	}
}

func TestAttest_DifferentBlocksSameSigner(t *testing.T) {
	q := &mockQuerier{balance: uint256.NewInt(1000), block: 100}
	svc := newTestService(t, q, nil)
	req := Request{Chain: 1, Token: tokenText, Owner: ownerText}

	a, err := svc.Attest(context.Background(), req)
	if err != nil {
		t.Fatalf("Attest a: %v", err)
	}
	q.mu.Lock()
	q.block = 101
	q.mu.Unlock()
	b, err := svc.Attest(context.Background(), req)
	if err != nil {
		t.Fatalf("Attest b: %v", err)
	}
	if bytes.Equal(a.Message, b.Message) || bytes.Equal(a.Signature, b.Signature) {
		t.Fatalf("expected different message and signature")
	}
	if a.SignerAddress != b.SignerAddress {
		t.Fatalf("signer changed")
	}
}

func TestAttest_ConcurrentRequests(t *testing.T) {
	q := &mockQuerier{balance: uint256.NewInt(7), block: 9}
	svc := newTestService(t, q, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := svc.Attest(context.Background(), Request{Chain: 1, Token: tokenText, Owner: ownerText})
			if err == nil {
				err = signer.VerifyRecord(rec)
			}
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent attest: %v", err)
	}
}

func TestAttest_JournalFailureDoesNotFailRequest(t *testing.T) {
	q := &mockQuerier{balance: uint256.NewInt(1), block: 1}
	svc := newTestService(t, q, failingJournal{})

	out, err := svc.Issue(context.Background(), Request{Chain: 1, Token: tokenText, Owner: ownerText})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if out.Record == nil || out.EventID != "" {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestIssue_ReturnsJournalEventID(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "attestor.db"))
	if err != nil {
		t.Fatalf("sqlite.Open: %v", err)
	}
	defer db.Close()

	svc := newTestService(t, &mockQuerier{balance: uint256.NewInt(7), block: 9}, sqlite.NewStore(db))
	out, err := svc.Issue(ctx, Request{Chain: 1, Token: tokenText, Owner: ownerText})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	logs, err := svc.JournalLogs(ctx, 0)
	if err != nil {
		t.Fatalf("JournalLogs: %v", err)
	}
	if len(logs) != 1 || logs[0].EventID != out.EventID || !strings.HasPrefix(out.EventID, "att_") {
		t.Fatalf("event id=%q logs=%+v", out.EventID, logs)
	}

	noJournal := newTestService(t, &mockQuerier{balance: uint256.NewInt(7), block: 9}, nil)
	out, err = noJournal.Issue(ctx, Request{Chain: 1, Token: tokenText, Owner: ownerText})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if out.EventID != "" {
		t.Fatalf("event id without journal=%q", out.EventID)
	}
}

func TestAttest_JournalAppendsVerifiableEntries(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "attestor.db"))
	if err != nil {
		t.Fatalf("sqlite.Open: %v", err)
	}
	defer db.Close()

	q := &mockQuerier{balance: uint256.NewInt(1000), block: 123456}
	svc := newTestService(t, q, sqlite.NewStore(db))
	for i := 0; i < 3; i++ {
		if _, err := svc.Attest(ctx, Request{Chain: 1, Token: tokenText, Owner: ownerText}); err != nil {
			t.Fatalf("Attest: %v", err)
		}
	}

	logs, err := svc.JournalLogs(ctx, 0)
	if err != nil {
		t.Fatalf("JournalLogs: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("len=%d", len(logs))
	}
	if res := auditverify.VerifyAttestationLogs(logs); !res.OK {
		t.Fatalf("journal verification failed: %+v", res)
	}
}

func TestJournalLogs_Disabled(t *testing.T) {
	svc := newTestService(t, &mockQuerier{}, nil)
	if _, err := svc.JournalLogs(context.Background(), 10); !errors.Is(err, ErrJournalDisabled) {
		t.Fatalf("err=%v", err)
	}
	if svc.JournalEnabled() {
		t.Fatalf("journal should be disabled")
	}
}

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress("owner", "0X000000000000000000000000000000000000dead")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if a != common.HexToAddress("0x000000000000000000000000000000000000dEaD") {
		t.Fatalf("addr=%s", a.Hex())
	}
	for _, in := range []string{"", " 0x000000000000000000000000000000000000dead", "0x000000000000000000000000000000000000dead00"} {
		if _, err := ParseAddress("owner", in); !apperr.IsKind(err, apperr.KindAddressParse) {
			t.Fatalf("ParseAddress(%q): err=%v", in, err)
		}
	}
}

func TestOpen_RequiresSigningKey(t *testing.T) {
	cfg := app.DefaultConfig()
	if _, err := Open(context.Background(), cfg, quietLogger()); !apperr.IsKind(err, apperr.KindKeyParse) {
		t.Fatalf("missing key: err=%v", err)
	}

	cfg.SignerKey = "not-hex"
	if _, err := Open(context.Background(), cfg, quietLogger()); !apperr.IsKind(err, apperr.KindKeyParse) {
		t.Fatalf("bad key: err=%v", err)
	}
}

func TestOpen_ChainTableAndJournal(t *testing.T) {
	dir := t.TempDir()
	chainsPath := filepath.Join(dir, "chains.yaml")
	body := "version: \"1\"\nchains:\n  - {chain_id: 1, name: ethereum, rpc_url: \"https://rpc.example/key\", enabled: true}\n  - {chain_id: 137, name: polygon, rpc_url: \"https://polygon.example\", enabled: true}\n"
	if err := os.WriteFile(chainsPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write chains: %v", err)
	}
	t.Setenv("ATTESTOR_RPC_URL_1", "")
	t.Setenv("ATTESTOR_RPC_URL_137", "")

	cfg := app.DefaultConfig()
	cfg.SignerKey = testKeyHex
	cfg.ChainsPath = chainsPath
	cfg.DBPath = filepath.Join(dir, "data", "attestor.db")
	cfg.PrivacyMode = app.PrivacyMasked

	svc, err := Open(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer svc.Close()

	if !svc.JournalEnabled() || svc.ChainTableSHA256() == "" {
		t.Fatalf("expected journal and chain table hash")
	}
	cs := svc.Chains()
	if len(cs) != 2 || cs[0].ChainID != 1 || cs[1].ChainID != 137 {
		t.Fatalf("chains=%+v", cs)
	}
	if cs[0].RPCURL != "rpc.example" {
		t.Fatalf("rpc url should be masked: %q", cs[0].RPCURL)
	}
}
