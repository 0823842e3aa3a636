package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"throttle-gateway/internal/logx"
	"throttle-gateway/middleware/throttle"
	"throttle-gateway/middleware/throttle/domain"
	"throttle-gateway/middleware/throttle/infra"
)

func main() {
	log, err := logx.New(os.Stderr, getenvDefault("LOG_LEVEL", "info"), getenvDefault("LOG_FORMAT", "text"))
	if err != nil {
		slog.Error("logger", slog.Any("error", err))
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stats := infra.NewMemoryStatsStore(infra.WithTrackKeys(true))
	h, err := newServer(ctx, log, stats)
	if err != nil {
		log.Error("setup", slog.Any("error", err))
		os.Exit(1)
	}

	addr := getenvDefault("LISTEN_ADDR", ":8081")
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("example server listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
}

// newServer injeta o throttling direto no webserver, sem proxy:
//   - pipeline: 10 req/s por X-Api-Key (ou IP) em todas as rotas;
//   - decorator: /reports tem quota própria, 3 req/min, com Retry-After em data HTTP.
func newServer(ctx context.Context, log *slog.Logger, stats *infra.MemoryStatsStore) (http.Handler, error) {
	global, err := throttle.New(throttle.Options{
		ContextResolver:     throttle.DefaultResolver("X-Api-Key", true),
		Quota:               domain.MustQuota(10, time.Second),
		UseRetryAfterHeader: true,
		Stats:               stats,
		Logger:              log,
	})
	if err != nil {
		return nil, err
	}
	global.StartJanitor(ctx, time.Minute)

	reports, err := throttle.New(throttle.Options{
		ContextResolver:     throttle.DefaultResolver("X-Api-Key", true),
		Quota:               domain.MustQuota(3, time.Minute),
		UseRetryAfterHeader: true,
		RetryAfterStyle:     domain.RetryAfterHTTPDate,
		Stats:               stats,
		Logger:              log,
	})
	if err != nil {
		return nil, err
	}
	reports.StartJanitor(ctx, time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/reports", reports.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("report\n"))
	}))
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"total":    stats.Total(),
			"by_route": stats.ByRoute(),
			"by_key":   stats.ByKey(),
		})
	})

	h := http.Handler(mux)
	h = throttle.ConcurrencyMiddleware(throttle.ConcurrencyOptions{Max: 50, Logger: log})(h)
	h = global.Middleware(h)
	return h, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
