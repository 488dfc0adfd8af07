package webapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"balance-attestor/internal/app"
	"balance-attestor/internal/domain/apperr"
	"balance-attestor/internal/domain/model"
	"balance-attestor/internal/services/attestation"
	"balance-attestor/internal/services/auditverify"
	"balance-attestor/internal/services/signer"
)

// 请求体上限：一条证明记录的 JSON 远小于 64KB。
const maxBodyBytes = 64 << 10

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"service": "attestor",
		"time":    time.Now().Unix(),
	})
}

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": time.Now().Unix(),
		"app": map[string]any{
			"version":    app.Version,
			"commit":     app.Commit,
			"build_time": app.BuildTime,
		},
		"signer_address": s.svc.SignerAddress().Hex(),
		"chains": map[string]any{
			"items":  s.svc.Chains(),
			"sha256": s.svc.ChainTableSHA256(),
		},
		"journal": map[string]any{
			"enabled": s.svc.JournalEnabled(),
		},
	})
}

// handleAttestationRoutes 处理 GET /api/attestations/{chain}/{token}/{owner}。
func (s *Server) handleAttestationRoutes(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/api/attestations/"))
	if len(parts) != 3 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.handleAttest(w, r, parts[0], parts[1], parts[2])
}

func (s *Server) handleAttest(w http.ResponseWriter, r *http.Request, chainText, token, owner string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	chain, err := model.ParseChainID(chainText)
	if err != nil {
		s.writeError(w, r, apperr.Wrap(apperr.KindUnsupportedChain, "invalid chain id", err))
		return
	}

	rec, err := s.svc.Attest(r.Context(), attestation.Request{Chain: chain, Token: token, Owner: owner})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleVerify 复核客户端提交的证明记录，并告知是否由本服务的签名者签发。
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var rec model.AttestationRecord
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&rec); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("invalid json: %v", err)})
		return
	}

	out := map[string]any{
		"ok":                 true,
		"signer_address":     rec.SignerAddress.Hex(),
		"issued_by_this_key": rec.SignerAddress == s.svc.SignerAddress(),
	}
	if err := signer.VerifyRecord(&rec); err != nil {
		out["ok"] = false
		out["error"] = err.Error()
		out["issued_by_this_key"] = false
	}
	writeJSON(w, http.StatusOK, out)
}

// handleJournal 返回证明日志；verify=1 时同时做链式与签名强校验。
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), 500)
	logs, err := s.svc.JournalLogs(r.Context(), limit)
	if err != nil {
		if errors.Is(err, attestation.ErrJournalDisabled) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
			return
		}
		s.logger.Error("list journal failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	out := map[string]any{"logs": logs}
	if parseBool(r.URL.Query().Get("verify"), false) {
		out["verify"] = auditverify.VerifyAttestationLogs(logs)
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// writeError 按错误类别映射 HTTP 状态码，响应体带 kind 便于客户端分支。
// 5xx 记一条日志；4xx 是调用方输入问题，不记录。
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	body := map[string]any{"error": err.Error()}
	if k := apperr.KindOf(err); k != "" {
		body["kind"] = string(k)
	}
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed",
			"path", r.URL.Path,
			"status", status,
			"kind", string(apperr.KindOf(err)),
			"err", err,
		)
	}
	writeJSON(w, status, body)
}

// statusForError 先判断超时：RPC 超时同时带有 connection 类别，但应返回 504。
func statusForError(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch apperr.KindOf(err) {
	case apperr.KindUnsupportedChain, apperr.KindAddressParse:
		return http.StatusBadRequest
	case apperr.KindConnection, apperr.KindCall:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func parseInt(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func parseBool(s string, def bool) bool {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}
