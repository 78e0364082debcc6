package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
	// ConnMaxLifetime 连接最长存活时间（0 表示不限制）
	ConnMaxLifetime time.Duration
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// GetDSN 获取数据库连接字符串（lib/pq key=value 格式）
func (c *DatabaseConfig) GetDSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// LoadFromEnv 从环境变量加载配置，prefix 如 "DB"
func (c *DatabaseConfig) LoadFromEnv(prefix string) {
	if v := os.Getenv(prefix + "_HOST"); v != "" {
		c.Host = v
	}
	c.Port = envInt(prefix+"_PORT", c.Port)
	if v := os.Getenv(prefix + "_USER"); v != "" {
		c.User = v
	}
	if v := os.Getenv(prefix + "_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv(prefix + "_NAME"); v != "" {
		c.Database = v
	}
	if v := os.Getenv(prefix + "_SSLMODE"); v != "" {
		c.SSLMode = v
	}
	c.MaxConns = envInt(prefix+"_MAX_CONNS", c.MaxConns)
	c.MaxIdle = envInt(prefix+"_MAX_IDLE", c.MaxIdle)
}

// LoadFromEnv 从环境变量加载Redis配置
func (c *RedisConfig) LoadFromEnv(prefix string) {
	if v := os.Getenv(prefix + "_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv(prefix + "_PASSWORD"); v != "" {
		c.Password = v
	}
	c.DB = envInt(prefix+"_DB", c.DB)
}

// LoadFromEnv 从环境变量加载MQTT配置
func (c *MQTTConfig) LoadFromEnv(prefix string) {
	if v := os.Getenv(prefix + "_BROKER"); v != "" {
		c.Broker = v
	}
	if v := os.Getenv(prefix + "_CLIENT_ID"); v != "" {
		c.ClientID = v
	}
	if v := os.Getenv(prefix + "_USERNAME"); v != "" {
		c.Username = v
	}
	if v := os.Getenv(prefix + "_PASSWORD"); v != "" {
		c.Password = v
	}
	if qos := envInt(prefix+"_QOS", int(c.QoS)); qos >= 0 && qos <= 2 {
		c.QoS = byte(qos)
	}
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
