package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"txlens/internal/config"
	"txlens/pkg/models"

	"github.com/sirupsen/logrus"
)

// Output 解析结果输出接口
type Output interface {
	WriteTransaction(record *models.TransactionRecord) error
	WriteAccount(overview *models.AccountOverview) error
	Close() error
}

// NewOutput 根据配置创建输出器
func NewOutput(cfg *config.OutputConfig, logger *logrus.Logger) (Output, error) {
	switch cfg.Format {
	case "kafka":
		if cfg.Kafka == nil || len(cfg.Kafka.Brokers) == 0 {
			return nil, fmt.Errorf("Kafka输出缺少 brokers 配置")
		}
		return NewKafkaOutput(cfg.Kafka.Brokers, cfg.Kafka.Topics, logger)
	case "", "json":
		return NewFileOutput(cfg.Path, cfg.Pretty)
	default:
		return nil, fmt.Errorf("不支持的输出格式: %s", cfg.Format)
	}
}

// JSONOutput 每条结果一行 JSON（pretty 时为缩进格式）
type JSONOutput struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	pretty bool
}

// NewJSONOutput 输出到任意 writer
func NewJSONOutput(w io.Writer, pretty bool) *JSONOutput {
	return &JSONOutput{w: w, pretty: pretty}
}

// NewFileOutput 输出到文件，路径为空或 "-" 时输出到标准输出
func NewFileOutput(path string, pretty bool) (*JSONOutput, error) {
	if path == "" || path == "-" {
		return NewJSONOutput(os.Stdout, pretty), nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("打开输出文件失败: %w", err)
	}

	out := NewJSONOutput(file, pretty)
	out.closer = file
	return out, nil
}

// WriteTransaction 写入交易记录
func (o *JSONOutput) WriteTransaction(record *models.TransactionRecord) error {
	if record == nil {
		return nil
	}
	return o.write(record)
}

// WriteAccount 写入账户概览
func (o *JSONOutput) WriteAccount(overview *models.AccountOverview) error {
	if overview == nil {
		return nil
	}
	return o.write(overview)
}

func (o *JSONOutput) write(v interface{}) error {
	var (
		data []byte
		err  error
	)
	if o.pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("序列化数据失败: %w", err)
	}
	data = append(data, '\n')

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, err := o.w.Write(data); err != nil {
		return fmt.Errorf("写入输出失败: %w", err)
	}
	if f, ok := o.w.(*os.File); ok && f != os.Stdout {
		if err := f.Sync(); err != nil {
			return fmt.Errorf("刷新输出文件失败: %w", err)
		}
	}
	return nil
}

// Close 关闭输出文件
func (o *JSONOutput) Close() error {
	if o.closer != nil {
		return o.closer.Close()
	}
	return nil
}
