package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"throttle-gateway/internal/config"
	"throttle-gateway/internal/logx"
	"throttle-gateway/middleware/throttle"
	"throttle-gateway/middleware/throttle/domain"
	"throttle-gateway/middleware/throttle/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	configFile := flag.String("config", os.Getenv("CONFIG_FILE"), "arquivo de configuração YAML ou JSON (opcional)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}

	log, err := logx.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(2)
	}
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("gateway stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	var stats domain.StatsStore
	if cfg.Throttle.Enabled && cfg.Stats.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Stats.RedisAddr,
			Password: cfg.Stats.RedisPassword,
			DB:       cfg.Stats.RedisDB,
			// sem isso o prazo do ctx não vale para leituras
			ContextTimeoutEnabled: true,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis stats ping: %w", err)
		}

		stats = infra.NewRedisStatsStore(rdb,
			infra.WithStatsPrefix(cfg.Stats.Prefix),
			infra.WithStatsTTL(cfg.Stats.TTL),
			infra.WithStatsBucket(cfg.Stats.Bucket),
			infra.WithStatsTrackKeys(cfg.Stats.TrackKeys),
			infra.WithStatsTimeout(cfg.Stats.Timeout),
		)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	h, err := newHandler(ctx, cfg, log, reg, stats)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("gateway listening",
		slog.String("addr", cfg.ListenAddr),
		slog.String("upstream", cfg.UpstreamURL),
		slog.Bool("throttle", cfg.Throttle.Enabled),
		slog.Int("limit", cfg.Throttle.Limit),
		slog.Duration("window", cfg.Throttle.Window),
		slog.String("key_header", cfg.Throttle.KeyHeader),
		slog.Bool("trust_xff", cfg.Throttle.TrustXFF),
		slog.Int("max_keys", cfg.Throttle.MaxKeys),
		slog.Bool("stats", stats != nil),
		slog.Int("concurrency_max", cfg.Concurrency.Max),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newHandler monta metrics + concurrency + throttle + proxy. O janitor do
// tracker store vive até ctx terminar.
func newHandler(ctx context.Context, cfg config.Config, log *slog.Logger, reg *prometheus.Registry, stats domain.StatsStore) (http.Handler, error) {
	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url: %w", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn("proxy error", slog.String("path", r.URL.Path), slog.Any("error", err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	metrics := throttle.NewMetrics(reg)

	h := http.Handler(proxy)
	h = throttle.ConcurrencyMiddleware(throttle.ConcurrencyOptions{
		Max:            cfg.Concurrency.Max,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.Concurrency.Timeout,
		Metrics:        metrics,
		Logger:         log,
	})(h)

	if cfg.Throttle.Enabled {
		t, err := newThrottler(cfg.Throttle, log, metrics, stats)
		if err != nil {
			return nil, err
		}
		t.StartJanitor(ctx, cfg.Throttle.CleanupEvery)
		h = t.Middleware(h)
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/", h)
	return mux, nil
}

func newThrottler(tc config.ThrottleConfig, log *slog.Logger, metrics *throttle.Metrics, stats domain.StatsStore) (*throttle.Throttler, error) {
	quota, err := tc.Quota()
	if err != nil {
		return nil, err
	}
	style, err := tc.Style()
	if err != nil {
		return nil, err
	}

	var store domain.TrackerStore
	if tc.MaxKeys > 0 {
		lru, err := infra.NewLRUTrackerStore(tc.MaxKeys)
		if err != nil {
			return nil, err
		}
		store = lru
	} else {
		store = infra.NewMemoryTrackerStore(infra.WithIdleTTL(tc.IdleTTL))
	}

	return throttle.New(throttle.Options{
		ContextResolver:              throttle.DefaultResolver(tc.KeyHeader, tc.TrustXFF),
		Quota:                        quota,
		RateLimitHeaderName:          tc.LimitHeader,
		RateLimitRemainingHeaderName: tc.RemainingHeader,
		RateLimitResetHeaderName:     tc.ResetHeader,
		UseRetryAfterHeader:          tc.RetryAfter,
		RetryAfterStyle:              style,
		RejectionBody:                []byte(tc.RejectionBody),
		Store:                        store,
		Stats:                        stats,
		Metrics:                      metrics,
		Logger:                       log,
	})
}
