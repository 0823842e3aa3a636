// Package config carrega a configuração do gateway: valores padrão, depois
// arquivo opcional (YAML ou JSON) e por último variáveis de ambiente.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"throttle-gateway/internal/logx"
	"throttle-gateway/middleware/throttle/domain"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

var (
	ErrUnsupportedFormat = errors.New("config: unsupported file format")
	ErrInvalid           = errors.New("config: invalid configuration")
)

type Config struct {
	ListenAddr  string `koanf:"listen_addr"`
	UpstreamURL string `koanf:"upstream_url"`
	MetricsPath string `koanf:"metrics_path"`

	Throttle    ThrottleConfig    `koanf:"throttle"`
	Concurrency ConcurrencyConfig `koanf:"concurrency"`
	Stats       StatsConfig       `koanf:"stats"`
	Log         LogConfig         `koanf:"log"`
}

type ThrottleConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Limit     int           `koanf:"limit"`
	Window    time.Duration `koanf:"window"`
	KeyHeader string        `koanf:"key_header"`
	TrustXFF  bool          `koanf:"trust_xff"`

	LimitHeader     string `koanf:"limit_header"`
	RemainingHeader string `koanf:"remaining_header"`
	ResetHeader     string `koanf:"reset_header"`

	RetryAfter      bool   `koanf:"retry_after"`
	RetryAfterStyle string `koanf:"retry_after_style"`
	RejectionBody   string `koanf:"rejection_body"`

	// MaxKeys > 0 usa o store LRU; 0 usa o map com janitor.
	MaxKeys      int           `koanf:"max_keys"`
	IdleTTL      time.Duration `koanf:"idle_ttl"`
	CleanupEvery time.Duration `koanf:"cleanup_every"`
}

type ConcurrencyConfig struct {
	Max     int           `koanf:"max"`
	Timeout time.Duration `koanf:"timeout"`
}

type StatsConfig struct {
	Enabled       bool          `koanf:"enabled"`
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
	Prefix        string        `koanf:"prefix"`
	TTL           time.Duration `koanf:"ttl"`
	Bucket        string        `koanf:"bucket"`
	TrackKeys     bool          `koanf:"track_keys"`
	// Timeout limita cada gravação no Redis dentro da requisição.
	Timeout time.Duration `koanf:"timeout"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func Defaults() Config {
	return Config{
		ListenAddr:  ":8080",
		MetricsPath: "/metrics",
		Throttle: ThrottleConfig{
			Enabled:         true,
			Limit:           100,
			Window:          time.Minute,
			RetryAfter:      true,
			RetryAfterStyle: "delta",
			IdleTTL:         15 * time.Minute,
			CleanupEvery:    2 * time.Minute,
		},
		Concurrency: ConcurrencyConfig{Max: 100},
		Stats: StatsConfig{
			Prefix:  "throttle:stats",
			TTL:     24 * time.Hour,
			Bucket:  "minute",
			Timeout: 250 * time.Millisecond,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load lê o arquivo em path (se não vazio), aplica as variáveis de ambiente
// do processo e valida.
func Load(path string) (Config, error) {
	return LoadWith(path, os.LookupEnv)
}

// LoadWith é Load com a fonte de variáveis de ambiente injetada.
func LoadWith(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Defaults()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	return nil
}

// Validate junta todos os problemas encontrados num único erro.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if strings.TrimSpace(c.UpstreamURL) == "" {
		add("upstream_url is required")
	} else if u, err := url.Parse(c.UpstreamURL); err != nil || u.Scheme == "" || u.Host == "" {
		add("upstream_url %q is not an absolute URL", c.UpstreamURL)
	}

	if c.Throttle.Enabled {
		if _, err := c.Throttle.Quota(); err != nil {
			add("throttle: %v", err)
		}
	}
	if _, err := c.Throttle.Style(); err != nil {
		add("throttle: %v", err)
	}
	if c.Throttle.MaxKeys < 0 {
		add("throttle.max_keys must be >= 0")
	}
	if c.Throttle.IdleTTL < 0 {
		add("throttle.idle_ttl must be >= 0, got %s", c.Throttle.IdleTTL)
	}
	if c.Throttle.CleanupEvery <= 0 {
		add("throttle.cleanup_every must be > 0, got %s", c.Throttle.CleanupEvery)
	}
	if c.Concurrency.Max < 0 {
		add("concurrency.max must be >= 0")
	}
	if c.Concurrency.Timeout < 0 {
		add("concurrency.timeout must be >= 0, got %s", c.Concurrency.Timeout)
	}
	if c.Stats.Enabled && strings.TrimSpace(c.Stats.RedisAddr) == "" {
		add("stats.redis_addr is required when stats are enabled")
	}
	if c.Stats.TTL < 0 {
		add("stats.ttl must be >= 0, got %s", c.Stats.TTL)
	}
	if c.Stats.Timeout < 0 {
		add("stats.timeout must be >= 0, got %s", c.Stats.Timeout)
	}
	switch strings.ToLower(strings.TrimSpace(c.Stats.Bucket)) {
	case "minute", "none":
	default:
		add("stats.bucket must be minute or none, got %q", c.Stats.Bucket)
	}
	if _, err := logx.ParseLevel(c.Log.Level); err != nil {
		add("log: %v", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		add("log.format must be json or text, got %q", c.Log.Format)
	}

	return errors.Join(errs...)
}

func (t ThrottleConfig) Quota() (domain.Quota, error) {
	return domain.NewQuota(t.Limit, t.Window)
}

func (t ThrottleConfig) Style() (domain.RetryAfterStyle, error) {
	return domain.ParseRetryAfterStyle(t.RetryAfterStyle)
}
