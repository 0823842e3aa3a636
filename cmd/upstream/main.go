// Command upstream é um backend mínimo para testar o gateway localmente.
package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"throttle-gateway/internal/logx"
)

func main() {
	log, err := logx.New(os.Stderr, "info", "text")
	if err != nil {
		os.Exit(2)
	}

	addr := ":9000"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/showTela", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<h1>Tela do Sistema</h1><p>Requisição recebida com sucesso!</p>"))
		log.Info("request served", slog.String("path", r.URL.Path), slog.String("remote", r.RemoteAddr))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	log.Info("upstream listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
}
