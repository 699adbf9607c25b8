package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all weaverd configuration.
type Config struct {
	// Server
	Port int
	Host string

	// Event Log durable backend (both empty = in-memory MemLog, no
	// restart durability)
	MongoURI string
	RedisURL string

	// Bar Repository (Postgres). Required for any backtest run.
	PostgresDSN string

	// Run/Order repositories (GORM over MySQL). Empty = in-memory,
	// which makes restart recovery moot.
	MySQLDSN string

	NodeID string

	// Live/paper trading
	ExchangeAdapter string // "mock" or "live"
	ExchangeSeed    int64
	LiveBaseURL     string
	LiveAPIKey      string
	LiveAPISecret   string

	// Strategy/exchange plugin discovery directories (syntactic scan
	// only — factories still must be registered at startup)
	StrategyPluginDir string
	ExchangePluginDir string

	// SSE Broadcaster
	SSEHeartbeatInterval time.Duration
	SSEClientBufferSize  int

	// S3 archival of Event Log envelopes (opt-in: only active when
	// S3Bucket is set)
	S3Bucket             string
	S3Region             string
	S3Prefix             string
	ArchiveIntervalHours int
	ArchiveAfterHours    int

	// Local archive staging directory and retention cap, used whether
	// or not S3 upload is enabled
	ArchiveDir   string
	ArchiveMaxGB int

	// Terminal order retention: how long filled/cancelled/rejected/
	// expired orders stay in the projection before being pruned. 0
	// disables pruning.
	OrderRetentionDays int
}

func Load() *Config {
	// godotenv.Load is a no-op (returns an error we ignore) when no
	// .env file is present, matching how the rest of the pack treats
	// local env files as optional developer convenience.
	_ = godotenv.Load()

	c := &Config{}

	flag.IntVar(&c.Port, "port", envInt("WEAVER_PORT", 8100), "HTTP API port")
	flag.StringVar(&c.Host, "host", envStr("WEAVER_HOST", "0.0.0.0"), "Listen host")

	flag.StringVar(&c.MongoURI, "mongo-uri", envStr("MONGO_URI", ""), "MongoDB URI for the durable Event Log (empty = in-memory)")
	flag.StringVar(&c.RedisURL, "redis-url", envStr("REDIS_URL", ""), "Redis URL for Event Log cross-process notify and Domain Router dedup")

	flag.StringVar(&c.PostgresDSN, "postgres-dsn", envStr("POSTGRES_DSN", ""), "Postgres DSN for the Bar Repository")
	flag.StringVar(&c.MySQLDSN, "mysql-dsn", envStr("MYSQL_DSN", ""), "MySQL DSN for the Run/Order repositories (empty = in-memory)")

	flag.StringVar(&c.NodeID, "node-id", envStr("NODE_ID", "weaverd-1"), "Identifies this process in envelopes and notify channels")

	flag.StringVar(&c.ExchangeAdapter, "exchange-adapter", envStr("EXCHANGE_ADAPTER", "mock"), "Shared live/paper exchange adapter id: mock or live")
	flag.Int64Var(&c.ExchangeSeed, "exchange-seed", envInt64("EXCHANGE_SEED", 0), "PRNG seed for the mock adapter (0 = random)")
	flag.StringVar(&c.LiveBaseURL, "live-base-url", envStr("LIVE_BASE_URL", ""), "Base URL for the live adapter")
	flag.StringVar(&c.LiveAPIKey, "live-api-key", envStr("LIVE_API_KEY", ""), "API key for the live adapter")
	flag.StringVar(&c.LiveAPISecret, "live-api-secret", envStr("LIVE_API_SECRET", ""), "API secret for the live adapter")

	flag.StringVar(&c.StrategyPluginDir, "strategy-plugin-dir", envStr("STRATEGY_PLUGIN_DIR", "plugins/strategies"), "Directory scanned for strategy plugin metadata")
	flag.StringVar(&c.ExchangePluginDir, "exchange-plugin-dir", envStr("EXCHANGE_PLUGIN_DIR", "plugins/exchanges"), "Directory scanned for exchange adapter plugin metadata")

	flag.DurationVar(&c.SSEHeartbeatInterval, "sse-heartbeat", envDuration("SSE_HEARTBEAT", 30*time.Second), "SSE heartbeat interval")
	flag.IntVar(&c.SSEClientBufferSize, "sse-buffer", envInt("SSE_CLIENT_BUFFER", 64), "Per-client SSE channel buffer size")

	flag.StringVar(&c.S3Bucket, "s3-bucket", envStr("S3_BUCKET", ""), "S3 bucket for Event Log archival (empty = disabled)")
	flag.StringVar(&c.S3Region, "s3-region", envStr("S3_REGION", "us-east-1"), "AWS region for S3")
	flag.StringVar(&c.S3Prefix, "s3-prefix", envStr("S3_PREFIX", "weaver"), "S3 key prefix for archived envelopes")
	flag.IntVar(&c.ArchiveIntervalHours, "archive-interval", envInt("ARCHIVE_INTERVAL_HOURS", 6), "Hours between archive runs")
	flag.IntVar(&c.ArchiveAfterHours, "archive-after", envInt("ARCHIVE_AFTER_HOURS", 24), "Archive envelopes older than this many hours")
	flag.StringVar(&c.ArchiveDir, "archive-dir", envStr("ARCHIVE_DIR", ""), "Local staging directory for archived envelopes (empty = archiver disabled)")
	flag.IntVar(&c.ArchiveMaxGB, "archive-max-gb", envInt("ARCHIVE_MAX_GB", 10), "Max local archive directory size before pruning oldest files")

	flag.IntVar(&c.OrderRetentionDays, "order-retention-days", envInt("ORDER_RETENTION_DAYS", 90), "Days to keep terminal orders before pruning (0 disables)")

	flag.Parse()

	return c
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
