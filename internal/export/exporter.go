// Package export 按页导出账户的历史交易，每页写入输出后保存断点。
package export

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"txlens/internal/logging"
	"txlens/internal/output"
	"txlens/internal/validation"
	"txlens/pkg/models"
)

// AccountResolver 账户分页解析
type AccountResolver interface {
	ResolveAccount(ctx context.Context, address string, pageSize, page int) (*models.AccountOverview, error)
}

// Checkpoints 导出断点存储
type Checkpoints interface {
	ResumePage(address string, pageSize int) (int, error)
	UpdateProgress(address string, page, pageSize int, txCount int) error
	MarkCompleted(address string) error
	Reset(address string) error
}

// Options 导出参数
type Options struct {
	PageSize int
	MaxPages int  // 0 表示不限制
	Reset    bool // 忽略已有断点，从第一页开始
	// SplitTransactions 除账户页外，每笔交易单独写一条
	SplitTransactions bool
}

// Result 导出统计
type Result struct {
	Address               string        `json:"address"`
	StartPage             int           `json:"start_page"`
	LastPage              int           `json:"last_page"`
	Pages                 int           `json:"pages"`
	TotalTransactions     uint64        `json:"total_transactions"`
	InvalidRecords        int           `json:"invalid_records"`
	Completed             bool          `json:"completed"`
	StartTime             time.Time     `json:"start_time"`
	EndTime               time.Time     `json:"end_time"`
	Duration              time.Duration `json:"duration"`
	TransactionsPerSecond float64       `json:"transactions_per_second"`
}

// Exporter 账户导出任务
type Exporter struct {
	accounts    AccountResolver
	out         output.Output
	checkpoints Checkpoints
	validator   *validation.Validator
	logger      *logrus.Logger
}

// NewExporter 创建导出任务，validator 可为 nil
func NewExporter(accounts AccountResolver, out output.Output, checkpoints Checkpoints, validator *validation.Validator, logger *logrus.Logger) *Exporter {
	return &Exporter{
		accounts:    accounts,
		out:         out,
		checkpoints: checkpoints,
		validator:   validator,
		logger:      logger,
	}
}

// Export 从断点处开始逐页导出，直到某页不满、达到页数上限或上下文取消
//
// 单页解析或写入失败时立即返回，断点停留在上一页。
func (e *Exporter) Export(ctx context.Context, address string, opts Options) (*Result, error) {
	if opts.PageSize <= 0 {
		return nil, fmt.Errorf("每页大小必须大于0: %d", opts.PageSize)
	}

	if opts.Reset {
		if err := e.checkpoints.Reset(address); err != nil {
			return nil, fmt.Errorf("重置导出进度失败: %w", err)
		}
	}

	page, err := e.checkpoints.ResumePage(address, opts.PageSize)
	if err != nil {
		return nil, err
	}
	if page > 1 {
		e.logger.Infof("检测到断点续传，账户 %s 从第 %d 页开始", address, page)
	}

	result := &Result{
		Address:   address,
		StartPage: page,
		StartTime: time.Now(),
	}
	defer result.finish()

	for ; opts.MaxPages == 0 || result.Pages < opts.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("导出被取消")
			return result, err
		}

		log := logging.NewAccountLogger(e.logger, address, page)
		overview, err := e.accounts.ResolveAccount(ctx, address, opts.PageSize, page)
		if err != nil {
			return result, fmt.Errorf("解析第 %d 页失败: %w", page, err)
		}

		count := len(overview.Transactions)
		if count == 0 {
			result.Completed = true
			break
		}

		result.InvalidRecords += e.validate(log, overview)

		if err := e.write(overview, opts.SplitTransactions); err != nil {
			return result, fmt.Errorf("写入第 %d 页失败: %w", page, err)
		}
		if err := e.checkpoints.UpdateProgress(address, page, opts.PageSize, count); err != nil {
			return result, err
		}

		result.Pages++
		result.LastPage = page
		result.TotalTransactions += uint64(count)
		log.Infof("已导出 %d 笔交易", count)

		if count < opts.PageSize {
			result.Completed = true
			break
		}
	}

	if result.Completed {
		if err := e.checkpoints.MarkCompleted(address); err != nil {
			return result, err
		}
		e.logger.Infof("账户 %s 导出完成，共 %d 页 %d 笔交易", address, result.Pages, result.TotalTransactions)
	}
	return result, nil
}

// validate 返回未通过校验的记录数，不阻止导出
func (e *Exporter) validate(log *logrus.Entry, overview *models.AccountOverview) int {
	if e.validator == nil {
		return 0
	}
	invalid := 0
	for _, record := range overview.Transactions {
		if res := e.validator.ValidateRecord(record); !res.Valid {
			invalid++
			log.WithField("tx_hash", record.Hash).Warnf("交易记录未通过校验: %d 个错误, %d 个警告", len(res.Errors), len(res.Warnings))
		}
	}
	return invalid
}

func (e *Exporter) write(overview *models.AccountOverview, split bool) error {
	if split {
		for _, record := range overview.Transactions {
			if err := e.out.WriteTransaction(record); err != nil {
				return err
			}
		}
	}
	return e.out.WriteAccount(overview)
}

func (r *Result) finish() {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
	if secs := r.Duration.Seconds(); secs > 0 {
		r.TransactionsPerSecond = float64(r.TotalTransactions) / secs
	}
}
