package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	// 默认数据库路径
	DefaultDBPath = "./data/progress.db"

	// 存储桶名称
	ExportBucket = "exports"
)

// ExportProgress 账户导出进度
type ExportProgress struct {
	Address           string    `json:"address"`
	PageSize          int       `json:"page_size"`
	LastPage          int       `json:"last_page"`
	TotalTransactions uint64    `json:"total_transactions"`
	Completed         bool      `json:"completed"`
	StartTime         time.Time `json:"start_time"`
	LastUpdateTime    time.Time `json:"last_update_time"`
}

// Manager 导出进度管理器，按账户地址保存已导出的最后一页
type Manager struct {
	db     *bolt.DB
	logger *logrus.Logger
	dbPath string
	mu     sync.Mutex
}

// NewManager 创建进度管理器
func NewManager(dbPath string, logger *logrus.Logger) (*Manager, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("打开进度数据库失败: %w", err)
	}

	manager := &Manager{
		db:     db,
		logger: logger,
		dbPath: dbPath,
	}

	if err := manager.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}

	logger.Infof("进度管理器已初始化，数据库路径: %s", dbPath)
	return manager, nil
}

// initDB 初始化数据库结构
func (m *Manager) initDB() error {
	return m.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(ExportBucket)); err != nil {
			return fmt.Errorf("创建导出存储桶失败: %w", err)
		}
		return nil
	})
}

func key(address string) []byte {
	return []byte(strings.ToLower(address))
}

// GetProgress 获取账户导出进度，没有记录时返回nil
func (m *Manager) GetProgress(address string) (*ExportProgress, error) {
	var progress *ExportProgress
	err := m.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(ExportBucket)).Get(key(address))
		if data == nil {
			return nil
		}
		progress = &ExportProgress{}
		return json.Unmarshal(data, progress)
	})
	if err != nil {
		return nil, fmt.Errorf("读取导出进度失败: %w", err)
	}
	return progress, nil
}

// ResumePage 返回下一页页码；每页大小变化后从第一页重新开始
func (m *Manager) ResumePage(address string, pageSize int) (int, error) {
	progress, err := m.GetProgress(address)
	if err != nil {
		return 0, err
	}
	if progress == nil {
		return 1, nil
	}
	if progress.PageSize != pageSize {
		m.logger.Warnf("账户 %s 每页大小由 %d 变为 %d，从第一页重新导出", address, progress.PageSize, pageSize)
		return 1, nil
	}
	return progress.LastPage + 1, nil
}

// UpdateProgress 记录已导出的页
func (m *Manager) UpdateProgress(address string, page, pageSize int, txCount int) error {
	return m.update(address, func(p *ExportProgress) {
		if p.PageSize != pageSize {
			p.TotalTransactions = 0
		}
		p.PageSize = pageSize
		p.LastPage = page
		p.TotalTransactions += uint64(txCount)
		p.Completed = false
	})
}

// MarkCompleted 标记账户导出完成
func (m *Manager) MarkCompleted(address string) error {
	return m.update(address, func(p *ExportProgress) {
		p.Completed = true
	})
}

func (m *Manager) update(address string, mutate func(p *ExportProgress)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(ExportBucket))
		if bucket == nil {
			return fmt.Errorf("导出存储桶不存在")
		}

		now := time.Now().UTC()
		progress := &ExportProgress{Address: strings.ToLower(address), StartTime: now}
		if data := bucket.Get(key(address)); data != nil {
			if err := json.Unmarshal(data, progress); err != nil {
				return fmt.Errorf("解析导出进度失败: %w", err)
			}
		}

		mutate(progress)
		progress.LastUpdateTime = now

		data, err := json.Marshal(progress)
		if err != nil {
			return fmt.Errorf("序列化导出进度失败: %w", err)
		}
		if err := bucket.Put(key(address), data); err != nil {
			return fmt.Errorf("保存导出进度失败: %w", err)
		}
		return nil
	})
}

// Reset 清除账户导出进度
func (m *Manager) Reset(address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(ExportBucket)).Delete(key(address))
	})
}

// List 列出所有账户的导出进度
func (m *Manager) List() ([]*ExportProgress, error) {
	var list []*ExportProgress
	err := m.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(ExportBucket)).ForEach(func(k, v []byte) error {
			p := &ExportProgress{}
			if err := json.Unmarshal(v, p); err != nil {
				return fmt.Errorf("解析 %s 的导出进度失败: %w", k, err)
			}
			list = append(list, p)
			return nil
		})
	})
	return list, err
}

// GetStats 获取账户导出统计
func (m *Manager) GetStats(address string) map[string]interface{} {
	progress, err := m.GetProgress(address)
	if err != nil || progress == nil {
		return map[string]interface{}{"address": strings.ToLower(address), "exported": false}
	}

	stats := map[string]interface{}{
		"address":            progress.Address,
		"exported":           true,
		"last_page":          progress.LastPage,
		"page_size":          progress.PageSize,
		"total_transactions": progress.TotalTransactions,
		"completed":          progress.Completed,
		"start_time":         progress.StartTime.Format(time.RFC3339),
		"last_update_time":   progress.LastUpdateTime.Format(time.RFC3339),
	}
	if !progress.StartTime.IsZero() {
		stats["running_duration"] = progress.LastUpdateTime.Sub(progress.StartTime).String()
	}
	return stats
}

// GetDBPath 获取数据库路径
func (m *Manager) GetDBPath() string {
	return m.dbPath
}

// Close 关闭进度管理器
func (m *Manager) Close() error {
	if m.db != nil {
		m.logger.Info("关闭进度管理器")
		return m.db.Close()
	}
	return nil
}
