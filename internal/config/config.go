package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	commoncfg "wisefido-ledger/internal/common/config"
)

// Config wisefido-ledger（事件账本 HTTP API）配置
type Config struct {
	HTTP struct {
		Addr string
	}
	DBEnabled bool
	Database  commoncfg.DatabaseConfig

	RedisEnabled bool
	Redis        commoncfg.RedisConfig

	MQTTEnabled bool
	MQTT        commoncfg.MQTTConfig

	Ledger   LedgerConfig
	Snapshot SnapshotConfig

	Log struct {
		Level  string
		Format string
	}
}

// LedgerConfig 账本业务配置
type LedgerConfig struct {
	Timezone        string        // 时间标签使用的时区（IANA 名称或 Local）
	RecentWindow    int           // 状态重建使用的最近事件数
	FaultRate       float64       // 模拟网关故障概率，0 关闭
	FaultDelay      time.Duration // 模拟故障报告前的延迟
	SeedEnabled     bool          // 是否开放 /test/seed
	EventStream     string        // 已提交事件的 Redis Stream
	EventStreamMax  int64         // Stream 近似最大长度
	MQTTTopicPrefix string        // MQTT topic 前缀
}

// SnapshotConfig 状态快照轮询配置（依赖 Redis）
type SnapshotConfig struct {
	Enabled      bool
	Interval     time.Duration
	TTL          time.Duration
	Participants []string // 为空时跟踪最近创建的参与者
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	// 默认启用数据库；连接失败时服务退出。false 时使用内存存储（本地开发）
	cfg.DBEnabled = parseBool(getEnv("DB_ENABLED", "true"), true)
	cfg.Database = commoncfg.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "owlrd",
		SSLMode:  "disable",
		MaxConns: 20,
		MaxIdle:  5,
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.RedisEnabled = parseBool(getEnv("REDIS_ENABLED", "false"), false)
	cfg.Redis = commoncfg.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTTEnabled = parseBool(getEnv("MQTT_ENABLED", "false"), false)
	cfg.MQTT = commoncfg.MQTTConfig{
		Broker:   "tcp://localhost:1883",
		ClientID: "wisefido-ledger",
		QoS:      1,
	}
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Ledger.Timezone = getEnv("LEDGER_TIMEZONE", "Local")
	cfg.Ledger.RecentWindow = parseInt(getEnv("LEDGER_RECENT_WINDOW", "20"), 20)
	if cfg.Ledger.RecentWindow <= 0 {
		cfg.Ledger.RecentWindow = 20
	}
	cfg.Ledger.FaultRate = parseRate(getEnv("ADMISSION_FAULT_RATE", "0.2"), 0.2)
	cfg.Ledger.FaultDelay = parseDuration(getEnv("ADMISSION_FAULT_DELAY", "3s"), 3*time.Second)
	cfg.Ledger.SeedEnabled = parseBool(getEnv("LEDGER_SEED_ENABLED", "false"), false)
	cfg.Ledger.EventStream = getEnv("LEDGER_EVENT_STREAM", "ledger:events")
	cfg.Ledger.EventStreamMax = int64(parseInt(getEnv("LEDGER_EVENT_STREAM_MAXLEN", "10000"), 10000))
	cfg.Ledger.MQTTTopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "ledger")

	cfg.Snapshot.Enabled = parseBool(getEnv("SNAPSHOT_ENABLED", "false"), false)
	cfg.Snapshot.Interval = parseDuration(getEnv("SNAPSHOT_INTERVAL", "5s"), 5*time.Second)
	cfg.Snapshot.TTL = parseDuration(getEnv("SNAPSHOT_TTL", "30s"), 30*time.Second)
	cfg.Snapshot.Participants = parseList(getEnv("SNAPSHOT_PARTICIPANTS", ""))

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg
}

// Location 解析配置的时区；无效时回退到 time.Local
func (c *LedgerConfig) Location() *time.Location {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseBool(s string, def bool) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}

// parseRate 概率取值 [0, 1]
func parseRate(s string, def float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f > 1 {
		return def
	}
	return f
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
