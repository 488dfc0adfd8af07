package webapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"balance-attestor/internal/services/attestation"
)

// Options 定义 HTTP 服务启动参数。
type Options struct {
	ListenAddr string
	Service    *attestation.Service
	Logger     *slog.Logger

	// LegacyChain 是兼容路由 GET /{token}/{owner} 使用的链，0 表示关闭该路由。
	LegacyChain uint64
}

// Run 启动 HTTP API，ctx 取消后优雅退出。
func Run(ctx context.Context, opts Options) error {
	if opts.Service == nil {
		return errors.New("webapp: attestation service is required")
	}
	if opts.ListenAddr == "" {
		opts.ListenAddr = "127.0.0.1:8080"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	httpServer := &http.Server{
		Addr:              opts.ListenAddr,
		Handler:           newHandler(opts),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	opts.Logger.Info("webapp listening", "addr", fmt.Sprintf("http://%s", opts.ListenAddr))
	err := httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newHandler(opts Options) http.Handler {
	s := &Server{opts: opts, svc: opts.Service, logger: opts.Logger}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return withCORS(mux)
}

// withCORS 允许任意来源访问（证明本身是公开可验证的数据）。
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
