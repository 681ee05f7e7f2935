// Package logger 以 charmbracelet/log 作為 slog 的 handler
package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// Config 日誌設定
type Config struct {
	Level        string `yaml:"level"`                            // debug, info, warn, error
	Format       string `yaml:"format"`                           // text, json, logfmt
	Prefix       string `yaml:"prefix"`                           // 每行前綴，例如服務名稱
	ReportCaller bool   `yaml:"report_caller" split_words:"true"` // 是否附上呼叫位置
}

var formatters = map[string]log.Formatter{
	"text":   log.TextFormatter,
	"json":   log.JSONFormatter,
	"logfmt": log.LogfmtFormatter,
}

// New 建立 *slog.Logger，w 為 nil 時寫到 stdout
// 無法解析的 level 退回 info，未知的 format 退回 text
func New(cfg Config, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	formatter, ok := formatters[cfg.Format]
	if !ok {
		formatter = log.TextFormatter
	}

	handler := log.NewWithOptions(w, log.Options{
		Level:           level,
		Prefix:          cfg.Prefix,
		Formatter:       formatter,
		ReportTimestamp: true,
		ReportCaller:    cfg.ReportCaller,
		TimeFormat:      time.RFC3339Nano,
	})
	return slog.New(handler)
}
