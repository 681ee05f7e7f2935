package database

import (
	"fmt"
	"net"
	"strconv"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// 支援的資料庫驅動
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// MySQLCollation 連線與資料表使用的定序，主鍵與幣別比較必須逐位元組相等
const MySQLCollation = "utf8mb4_bin"

// Config 定義資料庫連線與連線池的配置
type Config struct {
	Driver   string `yaml:"driver"`   // "mysql" 或 "postgres"
	Host     string `yaml:"host"`     // 資料庫主機地址
	Port     int    `yaml:"port"`     // 資料庫埠號 (0 時依驅動使用預設值)
	User     string `yaml:"user"`     // 使用者名稱
	Password string `yaml:"password"` // 密碼
	DBName   string `yaml:"dbname"`   // 資料庫名稱

	// 連線池設定 (Connection Pool)
	// 參考: https://github.com/go-sql-driver/mysql#important-settings
	MaxOpenConns    int           `yaml:"max_open_conns" split_words:"true"`
	MaxIdleConns    int           `yaml:"max_idle_conns" split_words:"true"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" split_words:"true"`

	// GORM 設定
	LogLevel string `yaml:"log_level" split_words:"true"` // "silent", "error", "warn", "info"
}

func (c *Config) port() int {
	if c.Port != 0 {
		return c.Port
	}
	if c.Driver == DriverPostgres {
		return 5432
	}
	return 3306
}

// DSN (Data Source Name) 產生連線字串
//
// MySQL 開啟 clientFoundRows，讓條件更新的 RowsAffected 代表「符合條件的筆數」
// 而不是「實際變更的筆數」，條件是否成立只看這個值。
// 連線使用 MySQLCollation，字串比較區分大小寫。
func (c *Config) DSN() string {
	if c.Driver == DriverPostgres {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			c.Host, c.port(), c.User, c.Password, c.DBName)
	}

	mc := mysqldriver.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.port()))
	mc.DBName = c.DBName
	mc.ParseTime = true
	mc.ClientFoundRows = true
	mc.Collation = MySQLCollation
	return mc.FormatDSN()
}

// Dialector 依驅動回傳 GORM dialector
func (c *Config) Dialector() (gorm.Dialector, error) {
	switch c.Driver {
	case DriverMySQL, "":
		return mysql.Open(c.DSN()), nil
	case DriverPostgres:
		return postgres.Open(c.DSN()), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", c.Driver)
	}
}
