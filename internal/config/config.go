package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Backend names accepted by QUOTA_BACKEND and RATELIMIT_BACKEND.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	NATS      NATSConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Quota     QuotaConfig
	RateLimit RateLimitConfig
	Fetch     FetchConfig
	Delivery  DeliveryConfig
	History   HistoryConfig
	CORS      CORSConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxConns       int32
	MigrationsPath string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL string
}

// QueueConfig bounds the in-memory job queue. Capacity 0 means unbounded.
type QueueConfig struct {
	Capacity int
}

type WorkerConfig struct {
	Count           int
	Cooldown        time.Duration
	ShutdownTimeout time.Duration
	AbortGrace      time.Duration
}

type QuotaConfig struct {
	Backend    string
	DailyLimit int
	SQLitePath string
	TimeZone   string
	Location   *time.Location
}

type RateLimitConfig struct {
	Backend string
	Rate    float64
	Burst   int
	Period  time.Duration
	// IPBurst enables a per-client-IP limiter on the HTTP submission endpoint
	// when positive. It shares Rate and Period with the per-user limiter.
	IPBurst int
}

type FetchConfig struct {
	Command string
	Args    []string
	WorkDir string
	Timeout time.Duration
}

type DeliveryConfig struct {
	MaxBytes int64
}

type HistoryConfig struct {
	Enabled bool
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	return fromKoanf(k)
}

func fromKoanf(k *koanf.Koanf) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Host:           k.String("db.host"),
			Port:           k.Int("db.port"),
			User:           k.String("db.user"),
			Password:       k.String("db.password"),
			Name:           k.String("db.name"),
			SSLMode:        k.String("db.sslmode"),
			MaxConns:       int32(k.Int("db.max.conns")),
			MigrationsPath: k.String("db.migrations.path"),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		Queue: QueueConfig{
			Capacity: k.Int("queue.capacity"),
		},
		Worker: WorkerConfig{
			Count: k.Int("worker.count"),
		},
		Quota: QuotaConfig{
			Backend:    strings.ToLower(k.String("quota.backend")),
			DailyLimit: k.Int("quota.daily.limit"),
			SQLitePath: k.String("quota.sqlite.path"),
			TimeZone:   k.String("quota.timezone"),
		},
		RateLimit: RateLimitConfig{
			Backend: strings.ToLower(k.String("ratelimit.backend")),
			Rate:    k.Float64("ratelimit.rate"),
			Burst:   k.Int("ratelimit.burst"),
			IPBurst: k.Int("ratelimit.ip.burst"),
		},
		Fetch: FetchConfig{
			Command: k.String("fetch.command"),
			Args:    strings.Fields(k.String("fetch.args")),
			WorkDir: k.String("fetch.workdir"),
		},
		Delivery: DeliveryConfig{
			MaxBytes: k.Int64("delivery.max.bytes"),
		},
		History: HistoryConfig{
			Enabled: k.Bool("history.enabled"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	if origins := k.String("cors.allowed.origins"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORS.AllowedOrigins = append(cfg.CORS.AllowedOrigins, o)
			}
		}
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "tunequeue"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "tunequeue"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 10
	}
	if cfg.DB.MigrationsPath == "" {
		cfg.DB.MigrationsPath = "migrations"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	// Zero is meaningful for capacity, limit and rate, so only absent keys get defaults.
	if !k.Exists("queue.capacity") {
		cfg.Queue.Capacity = 100
	}
	if cfg.Worker.Count == 0 {
		cfg.Worker.Count = 1
	}
	if cfg.Quota.Backend == "" {
		cfg.Quota.Backend = BackendSQLite
	}
	if !k.Exists("quota.daily.limit") {
		cfg.Quota.DailyLimit = 5
	}
	if cfg.Quota.SQLitePath == "" {
		cfg.Quota.SQLitePath = "tunequeue.db"
	}
	if cfg.Quota.TimeZone == "" {
		cfg.Quota.TimeZone = "UTC"
	}
	if cfg.RateLimit.Backend == "" {
		cfg.RateLimit.Backend = BackendMemory
	}
	if !k.Exists("ratelimit.rate") {
		cfg.RateLimit.Rate = 0.7
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 3
	}
	if cfg.Fetch.Command == "" {
		cfg.Fetch.Command = "yt-dlp"
	}
	if len(cfg.Fetch.Args) == 0 {
		cfg.Fetch.Args = []string{"-f", "bestaudio", "-x", "--audio-format", "mp3", "--no-playlist"}
	}
	if cfg.Delivery.MaxBytes == 0 {
		cfg.Delivery.MaxBytes = 50 << 20
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	var err error
	cfg.Quota.Location, err = time.LoadLocation(cfg.Quota.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("loading quota time zone: %w", err)
	}

	// Parse durations
	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"ratelimit.period", "10s", &cfg.RateLimit.Period},
		{"worker.cooldown", "5s", &cfg.Worker.Cooldown},
		{"worker.shutdown.timeout", "30s", &cfg.Worker.ShutdownTimeout},
		{"worker.abort.grace", "5s", &cfg.Worker.AbortGrace},
		{"fetch.timeout", "10m", &cfg.Fetch.Timeout},
	}
	for _, d := range durations {
		s := k.String(d.key)
		if s == "" {
			s = d.def
		}
		*d.dst, err = time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", d.key, err)
		}
	}

	return cfg, nil
}

// NeedsPostgres reports whether any configured component stores data in PostgreSQL.
func (c *Config) NeedsPostgres() bool {
	return c.Quota.Backend == BackendPostgres || c.History.Enabled
}

// NeedsRedis reports whether any configured component stores data in Redis.
func (c *Config) NeedsRedis() bool {
	return c.Quota.Backend == BackendRedis || c.RateLimit.Backend == BackendRedis
}
