package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LogConfig 日志配置
type LogConfig struct {
	Level        string `mapstructure:"level" json:"level" yaml:"level"`                         // 日志级别 (debug, info, warn, error)
	Format       string `mapstructure:"format" json:"format" yaml:"format"`                      // 日志格式 (json, text)
	Output       string `mapstructure:"output" json:"output" yaml:"output"`                      // 输出路径 (stdout, stderr, file path)
	ReportCaller bool   `mapstructure:"report_caller" json:"report_caller" yaml:"report_caller"` // 是否输出调用位置
}

// DefaultLogConfig 默认日志配置
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:  "info",
		Format: "text",
		Output: "stderr",
	}
}

// NewLogger 根据配置创建logrus日志器
func NewLogger(config *LogConfig) (*logrus.Logger, error) {
	if config == nil {
		config = DefaultLogConfig()
	}

	level, err := parseLogLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("无效的日志级别 '%s': %w", config.Level, err)
	}

	writer, err := getLogWriter(config)
	if err != nil {
		return nil, fmt.Errorf("创建日志输出失败: %w", err)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(writer)
	logger.SetReportCaller(config.ReportCaller)

	switch config.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: shortCaller,
		})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  "2006-01-02 15:04:05",
			CallerPrettyfier: shortCaller,
		})
	default:
		return nil, fmt.Errorf("不支持的日志格式: %s", config.Format)
	}

	return logger, nil
}

// parseLogLevel 解析日志级别
func parseLogLevel(levelStr string) (logrus.Level, error) {
	if levelStr == "" {
		return logrus.InfoLevel, nil
	}
	return logrus.ParseLevel(strings.ToLower(levelStr))
}

// getLogWriter 获取日志输出
func getLogWriter(config *LogConfig) (io.Writer, error) {
	switch config.Output {
	case "stdout":
		return os.Stdout, nil
	case "stderr", "":
		return os.Stderr, nil
	default:
		dir := filepath.Dir(config.Output)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建日志目录失败: %w", err)
		}

		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("打开日志文件失败: %w", err)
		}
		return file, nil
	}
}

// shortCaller 只保留文件名和行号
func shortCaller(frame *runtime.Frame) (string, string) {
	return "", fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
}

// NewTxLogger 单笔交易解析专用日志
func NewTxLogger(base *logrus.Logger, txHash string) *logrus.Entry {
	return base.WithFields(logrus.Fields{
		"component": "resolver",
		"tx_hash":   txHash,
	})
}

// NewBlockLogger 区块相关日志
func NewBlockLogger(base *logrus.Logger, blockNumber uint64) *logrus.Entry {
	return base.WithFields(logrus.Fields{
		"component":    "enrichment",
		"block_number": blockNumber,
	})
}

// NewAccountLogger 账户批量解析专用日志
func NewAccountLogger(base *logrus.Logger, address string, page int) *logrus.Entry {
	return base.WithFields(logrus.Fields{
		"component": "account",
		"address":   address,
		"page":      page,
	})
}

// NewSourceLogger 数据源调用专用日志
func NewSourceLogger(base *logrus.Logger, source, endpoint string) *logrus.Entry {
	return base.WithFields(logrus.Fields{
		"component": "source",
		"source":    source,
		"endpoint":  endpoint,
	})
}
