package metrics

import (
	"context"
	"errors"
	"expvar"
	"net"
	"net/http"
	"net/http/pprof"
	"time"
)

const shutdownGrace = 2 * time.Second

// debugMux 组装 expvar 与 pprof 端点。pprof 处理器显式挂到本地 mux，
// 不经过 DefaultServeMux，避免全局副作用。
func debugMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/debug/vars", expvar.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// StartAsync 在 listenAddr 上非阻塞启动 debug 服务（/debug/vars 与
// /debug/pprof），ctx 取消时优雅关闭。监听失败立即返回错误，调用方
// 可据此在启动阶段报错而不是事后发现端口被占。
// 该端口暴露运行时内部状态，只应监听 localhost 或内网地址。
func StartAsync(ctx context.Context, listenAddr string) (*http.Server, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           debugMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = err // 端口已验证可监听，Serve 错误只剩关闭路径
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return srv, nil
}
