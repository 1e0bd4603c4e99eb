package errors

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrorHandler 错误处理器
type ErrorHandler struct {
	logger *logrus.Logger
	stats  *ErrorStats
	mu     sync.RWMutex

	// 错误处理策略
	strategies map[ErrorType]ErrorStrategy

	// 错误回调
	callbacks []ErrorCallback

	// 每小时错误数告警阈值
	thresholds map[ErrorSeverity]int
}

// ErrorStrategy 错误处理策略
type ErrorStrategy interface {
	Handle(ctx context.Context, err *LensError) error
}

// ErrorCallback 错误回调函数
type ErrorCallback func(err *LensError)

// LoggingStrategy 日志记录策略
type LoggingStrategy struct {
	logger *logrus.Logger
}

// NewErrorHandler 创建错误处理器
func NewErrorHandler(logger *logrus.Logger) *ErrorHandler {
	eh := &ErrorHandler{
		logger:     logger,
		stats:      NewErrorStats(),
		strategies: make(map[ErrorType]ErrorStrategy),
		callbacks:  make([]ErrorCallback, 0),
		thresholds: map[ErrorSeverity]int{
			SeverityLow:      500,
			SeverityMedium:   100,
			SeverityHigh:     20,
			SeverityCritical: 5,
		},
	}

	loggingStrategy := &LoggingStrategy{logger: logger}
	for errorType := range errorTypeNames {
		eh.strategies[errorType] = loggingStrategy
	}

	return eh
}

// HandleError 处理错误
func (eh *ErrorHandler) HandleError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	var lensErr *LensError
	if !stderrors.As(err, &lensErr) {
		lensErr = WrapError(err, ErrorTypeData, SeverityMedium, "UNKNOWN_ERROR", "未知错误")
	}

	eh.recordError(lensErr)

	if eh.checkThresholds(lensErr) {
		eh.logger.Warnf("错误达到阈值限制: %s", lensErr.Error())
	}

	eh.executeCallbacks(lensErr)

	return eh.executeStrategy(ctx, lensErr)
}

// recordError 记录错误
func (eh *ErrorHandler) recordError(err *LensError) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.stats.RecordError(err)
}

// checkThresholds 检查阈值
func (eh *ErrorHandler) checkThresholds(err *LensError) bool {
	eh.mu.RLock()
	defer eh.mu.RUnlock()

	limit, exists := eh.thresholds[err.Severity]
	if !exists {
		return false
	}
	return eh.stats.GetErrorRate(time.Hour) > float64(limit)
}

// executeCallbacks 执行错误回调
func (eh *ErrorHandler) executeCallbacks(err *LensError) {
	eh.mu.RLock()
	callbacks := make([]ErrorCallback, len(eh.callbacks))
	copy(callbacks, eh.callbacks)
	eh.mu.RUnlock()

	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					eh.logger.Errorf("错误回调执行时发生panic: %v", r)
				}
			}()
			cb(err)
		}()
	}
}

// executeStrategy 执行处理策略
func (eh *ErrorHandler) executeStrategy(ctx context.Context, err *LensError) error {
	eh.mu.RLock()
	strategy, exists := eh.strategies[err.Type]
	eh.mu.RUnlock()
	if !exists {
		strategy = &LoggingStrategy{logger: eh.logger}
	}
	return strategy.Handle(ctx, err)
}

// Handle 根据严重级别选择日志级别
func (ls *LoggingStrategy) Handle(ctx context.Context, err *LensError) error {
	logEntry := ls.logger.WithFields(logrus.Fields{
		"error_type": err.Type.String(),
		"error_code": err.Code,
		"component":  err.Component,
		"retryable":  err.Retryable,
	})
	if err.BlockNumber != nil {
		logEntry = logEntry.WithField("block_number", *err.BlockNumber)
	}
	if err.TxHash != nil {
		logEntry = logEntry.WithField("tx_hash", *err.TxHash)
	}
	if err.Cause != nil {
		logEntry = logEntry.WithError(err.Cause)
	}

	switch err.Severity {
	case SeverityLow:
		logEntry.Debug(err.Message)
	case SeverityMedium:
		logEntry.Warn(err.Message)
	default:
		logEntry.Error(err.Message)
	}

	return err
}

// AddCallback 添加错误回调
func (eh *ErrorHandler) AddCallback(callback ErrorCallback) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.callbacks = append(eh.callbacks, callback)
}

// SetStrategy 设置错误处理策略
func (eh *ErrorHandler) SetStrategy(errorType ErrorType, strategy ErrorStrategy) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.strategies[errorType] = strategy
}

// Snapshot 获取错误统计快照
func (eh *ErrorHandler) Snapshot() ErrorStats {
	eh.mu.RLock()
	defer eh.mu.RUnlock()

	snap := ErrorStats{
		TotalErrors:       eh.stats.TotalErrors,
		ErrorsByType:      make(map[string]int, len(eh.stats.ErrorsByType)),
		ErrorsBySeverity:  make(map[string]int, len(eh.stats.ErrorsBySeverity)),
		ErrorsByComponent: make(map[string]int, len(eh.stats.ErrorsByComponent)),
		RecentErrors:      append([]*LensError(nil), eh.stats.RecentErrors...),
		LastError:         eh.stats.LastError,
		LastErrorTime:     eh.stats.LastErrorTime,
	}
	for k, v := range eh.stats.ErrorsByType {
		snap.ErrorsByType[k] = v
	}
	for k, v := range eh.stats.ErrorsBySeverity {
		snap.ErrorsBySeverity[k] = v
	}
	for k, v := range eh.stats.ErrorsByComponent {
		snap.ErrorsByComponent[k] = v
	}
	return snap
}

// ClearStats 清除统计信息
func (eh *ErrorHandler) ClearStats() {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.stats = NewErrorStats()
}
