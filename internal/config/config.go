// Package config 載入服務設定
//
// 優先順序 (後者覆蓋前者): YAML 檔 -> .env -> LEDGER_* 環境變數 -> 預設值補空欄位
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/JoeShih716/go-sls-ledger/pkg/database"
	"github.com/JoeShih716/go-sls-ledger/pkg/logger"
)

// EnvPrefix 環境變數前綴，例如 LEDGER_STORE_DRIVER
const EnvPrefix = "LEDGER"

// Store driver
const (
	StoreMemory    = "memory"    // 單一 mutex 的記憶體 store
	StoreSequenced = "sequenced" // 單一寫入 goroutine 的記憶體 store
	StoreMySQL     = database.DriverMySQL
	StorePostgres  = database.DriverPostgres
)

type Config struct {
	Log      logger.Config   `yaml:"log"`
	Store    StoreConfig     `yaml:"store"`
	Database database.Config `yaml:"database"`
	Engine   EngineConfig    `yaml:"engine"`
	GRPC     GRPCConfig      `yaml:"grpc"`
	HTTP     HTTPConfig      `yaml:"http"`
	Kafka    KafkaConfig     `yaml:"kafka"`
	Redis    RedisConfig     `yaml:"redis"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
	// WALPath: 記憶體 store 的 WAL 檔案路徑，空字串表示不落地
	WALPath         string `yaml:"wal_path" split_words:"true"`
	SequencerBuffer int    `yaml:"sequencer_buffer" split_words:"true"`
	// AutoMigrate: SQL store 啟動時建立資料表
	AutoMigrate bool `yaml:"auto_migrate" split_words:"true"`
}

type EngineConfig struct {
	OpTimeout      time.Duration `yaml:"op_timeout" split_words:"true"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl" split_words:"true"`
}

type GRPCConfig struct {
	Addr string `yaml:"addr"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	RateLimitMax    int           `yaml:"rate_limit_max" split_words:"true"`
	RateLimitWindow time.Duration `yaml:"rate_limit_window" split_words:"true"`
}

// KafkaConfig Brokers 為空時不發佈事件
type KafkaConfig struct {
	Brokers     []string `yaml:"brokers"`
	TopicPrefix string   `yaml:"topic_prefix" split_words:"true"`
}

// RedisConfig Addr 為空時不啟用重播快取
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix" split_words:"true"`
}

// Load 依序讀取 YAML、.env 與環境變數
//
// 參數:
//
//	path: YAML 檔路徑，檔案不存在時略過
//	envFiles: .env 檔案，未指定時讀取工作目錄下的 .env (不存在時略過)
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults 補全沒有設定的欄位
func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = StoreMemory
	}
	if c.Store.SequencerBuffer == 0 {
		c.Store.SequencerBuffer = 1024
	}
	if c.Store.Driver == StoreMySQL || c.Store.Driver == StorePostgres {
		c.Database.Driver = c.Store.Driver
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 100
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 10
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if c.Engine.OpTimeout == 0 {
		c.Engine.OpTimeout = 3 * time.Second
	}
	if c.Engine.IdempotencyTTL == 0 {
		c.Engine.IdempotencyTTL = 24 * time.Hour
	}
	if c.GRPC.Addr == "" {
		c.GRPC.Addr = ":50051"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.RateLimitWindow == 0 {
		c.HTTP.RateLimitWindow = time.Second
	}
	if c.Kafka.TopicPrefix == "" {
		c.Kafka.TopicPrefix = "ledger"
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "ledger:idem:"
	}
}

// Validate 檢查設定組合是否可用
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory, StoreSequenced:
	case StoreMySQL, StorePostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("config: store driver %s requires database.host", c.Store.Driver)
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Engine.OpTimeout < 0 {
		return fmt.Errorf("config: engine.op_timeout must be positive")
	}
	return nil
}
