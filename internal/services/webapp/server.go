package webapp

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"balance-attestor/internal/services/attestation"
)

// Server 是 HTTP API 的运行时对象。
type Server struct {
	opts   Options
	svc    *attestation.Service
	logger *slog.Logger
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/meta", s.handleMeta)
	mux.HandleFunc("/api/attestations/", s.handleAttestationRoutes)
	mux.HandleFunc("/api/verify", s.handleVerify)
	mux.HandleFunc("/api/journal", s.handleJournal)

	// 兼容旧客户端：GET /{token}/{owner}，固定使用 LegacyChain。
	mux.HandleFunc("/", s.handleLegacy)
}

func (s *Server) handleLegacy(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") || s.opts.LegacyChain == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := splitPath(r.URL.Path)
	if len(parts) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.handleAttest(w, r, strconv.FormatUint(s.opts.LegacyChain, 10), parts[0], parts[1])
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
