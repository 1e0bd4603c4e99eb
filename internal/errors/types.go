package errors

import (
	"fmt"
	"time"
)

// ErrorType 错误类型
type ErrorType int

const (
	// 网络相关错误
	ErrorTypeNetwork ErrorType = iota
	ErrorTypeTimeout
	ErrorTypeRateLimit

	// 解析相关错误
	ErrorTypeNotFound
	ErrorTypePrimarySource
	ErrorTypeEnrichment
	ErrorTypeBatchPartial

	// 数据相关错误
	ErrorTypeData
	ErrorTypeValidation

	// 系统相关错误
	ErrorTypeConfig
	ErrorTypeStorage

	// 外部服务错误
	ErrorTypeExternalAPI
	ErrorTypeKafka
)

// ErrorSeverity 错误严重级别
type ErrorSeverity int

const (
	SeverityLow ErrorSeverity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// LensError 自定义错误类型
type LensError struct {
	Type        ErrorType              `json:"type"`
	Severity    ErrorSeverity          `json:"severity"`
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	Timestamp   time.Time              `json:"timestamp"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Cause       error                  `json:"-"`
	Retryable   bool                   `json:"retryable"`
	Component   string                 `json:"component"`
	BlockNumber *uint64                `json:"block_number,omitempty"`
	TxHash      *string                `json:"tx_hash,omitempty"`
}

// Error 实现error接口
func (e *LensError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 支持errors.Unwrap
func (e *LensError) Unwrap() error {
	return e.Cause
}

// Is 按错误码匹配，支持 errors.Is(err, ErrPrimarySource)
func (e *LensError) Is(target error) bool {
	t, ok := target.(*LensError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// IsRetryable 判断是否可重试
func (e *LensError) IsRetryable() bool {
	return e.Retryable
}

// WithContext 添加上下文信息
func (e *LensError) WithContext(key string, value interface{}) *LensError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithComponent 设置组件名
func (e *LensError) WithComponent(component string) *LensError {
	e.Component = component
	return e
}

// WithBlockNumber 添加区块号
func (e *LensError) WithBlockNumber(blockNumber uint64) *LensError {
	e.BlockNumber = &blockNumber
	return e
}

// WithTxHash 添加交易哈希
func (e *LensError) WithTxHash(txHash string) *LensError {
	e.TxHash = &txHash
	return e
}

// NewLensError 创建新的错误
func NewLensError(errorType ErrorType, severity ErrorSeverity, code, message string) *LensError {
	return &LensError{
		Type:      errorType,
		Severity:  severity,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Retryable: determineRetryable(errorType, code),
	}
}

// WrapError 包装现有错误
func WrapError(err error, errorType ErrorType, severity ErrorSeverity, code, message string) *LensError {
	e := NewLensError(errorType, severity, code, message)
	e.Cause = err
	return e
}

// determineRetryable 根据错误类型判断是否可重试
func determineRetryable(errorType ErrorType, code string) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeRateLimit:
		return true
	case ErrorTypeExternalAPI, ErrorTypeKafka:
		return true
	case ErrorTypePrimarySource:
		// 数据不一致（有回执无交易）通常是节点同步延迟
		return code != CodeInvalidData
	default:
		return false
	}
}

// 错误码
const (
	CodeNotFound          = "TX_NOT_FOUND"
	CodePrimarySource     = "PRIMARY_SOURCE_FAILED"
	CodeInconsistent      = "PRIMARY_SOURCE_INCONSISTENT"
	CodeEnrichment        = "ENRICHMENT_FAILED"
	CodeBatchPartial      = "BATCH_PARTIAL"
	CodeInvalidData       = "INVALID_DATA"
	CodeValidation        = "VALIDATION_FAILED"
	CodeConfigInvalid     = "CONFIG_INVALID"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeExternalAPI       = "EXTERNAL_API_FAILED"
	CodeKafkaProduce      = "KAFKA_PRODUCE_FAILED"
	CodeStorage           = "STORAGE_FAILED"
)

// 预定义错误，仅用于 errors.Is 比较
var (
	ErrPrimarySource = NewLensError(ErrorTypePrimarySource, SeverityHigh, CodePrimarySource, "主数据源查询失败")
	ErrInconsistent  = NewLensError(ErrorTypePrimarySource, SeverityMedium, CodeInconsistent, "回执存在但交易不存在")
	ErrEnrichment    = NewLensError(ErrorTypeEnrichment, SeverityLow, CodeEnrichment, "补充数据获取失败")
	ErrValidation    = NewLensError(ErrorTypeValidation, SeverityLow, CodeValidation, "参数验证失败")
	ErrConfigInvalid = NewLensError(ErrorTypeConfig, SeverityCritical, CodeConfigInvalid, "配置无效")
	ErrRateLimited   = NewLensError(ErrorTypeRateLimit, SeverityMedium, CodeRateLimitExceeded, "请求频率超限")
)

// PrimarySourceFailure 主数据源（交易/回执/中继）查询失败
func PrimarySourceFailure(source string, err error) *LensError {
	return WrapError(err, ErrorTypePrimarySource, SeverityHigh, CodePrimarySource,
		fmt.Sprintf("主数据源 %s 查询失败", source)).WithComponent(source)
}

// InconsistentPrimary 回执存在但交易对象缺失
func InconsistentPrimary(txHash string) *LensError {
	return NewLensError(ErrorTypePrimarySource, SeverityMedium, CodeInconsistent,
		"回执存在但交易不存在").WithTxHash(txHash)
}

// EnrichmentFailure 补充数据源失败
func EnrichmentFailure(source string, err error) *LensError {
	return WrapError(err, ErrorTypeEnrichment, SeverityLow, CodeEnrichment,
		fmt.Sprintf("补充数据源 %s 失败", source)).WithComponent(source)
}

// BatchPartialFailure 批量查询部分失败
func BatchPartialFailure(source string, failed, total int) *LensError {
	return NewLensError(ErrorTypeBatchPartial, SeverityLow, CodeBatchPartial,
		fmt.Sprintf("批量查询 %s 部分失败: %d/%d", source, failed, total)).WithComponent(source)
}

// ConfigFailure 配置或依赖缺失
func ConfigFailure(reason string) *LensError {
	return NewLensError(ErrorTypeConfig, SeverityCritical, CodeConfigInvalid, "配置无效").
		WithContext("reason", reason)
}

// ValidationFailure 参数验证失败
func ValidationFailure(field string, err error) *LensError {
	return WrapError(err, ErrorTypeValidation, SeverityLow, CodeValidation,
		fmt.Sprintf("参数 %s 无效", field))
}

// 错误类型字符串映射
var errorTypeNames = map[ErrorType]string{
	ErrorTypeNetwork:       "Network",
	ErrorTypeTimeout:       "Timeout",
	ErrorTypeRateLimit:     "RateLimit",
	ErrorTypeNotFound:      "NotFound",
	ErrorTypePrimarySource: "PrimarySource",
	ErrorTypeEnrichment:    "Enrichment",
	ErrorTypeBatchPartial:  "BatchPartial",
	ErrorTypeData:          "Data",
	ErrorTypeValidation:    "Validation",
	ErrorTypeConfig:        "Config",
	ErrorTypeStorage:       "Storage",
	ErrorTypeExternalAPI:   "ExternalAPI",
	ErrorTypeKafka:         "Kafka",
}

// String 返回错误类型的字符串表示
func (et ErrorType) String() string {
	if name, exists := errorTypeNames[et]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", et)
}

// 严重级别字符串映射
var severityNames = map[ErrorSeverity]string{
	SeverityLow:      "Low",
	SeverityMedium:   "Medium",
	SeverityHigh:     "High",
	SeverityCritical: "Critical",
}

// String 返回严重级别的字符串表示
func (es ErrorSeverity) String() string {
	if name, exists := severityNames[es]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", es)
}

const maxRecentErrors = 100

// ErrorStats 错误统计
type ErrorStats struct {
	TotalErrors       int            `json:"total_errors"`
	ErrorsByType      map[string]int `json:"errors_by_type"`
	ErrorsBySeverity  map[string]int `json:"errors_by_severity"`
	ErrorsByComponent map[string]int `json:"errors_by_component"`
	RecentErrors      []*LensError   `json:"recent_errors"`
	LastError         *LensError     `json:"last_error"`
	LastErrorTime     time.Time      `json:"last_error_time"`
}

// NewErrorStats 创建错误统计
func NewErrorStats() *ErrorStats {
	return &ErrorStats{
		ErrorsByType:      make(map[string]int),
		ErrorsBySeverity:  make(map[string]int),
		ErrorsByComponent: make(map[string]int),
		RecentErrors:      make([]*LensError, 0),
	}
}

// RecordError 记录错误
func (es *ErrorStats) RecordError(err *LensError) {
	es.TotalErrors++
	es.ErrorsByType[err.Type.String()]++
	es.ErrorsBySeverity[err.Severity.String()]++
	if err.Component != "" {
		es.ErrorsByComponent[err.Component]++
	}

	es.LastError = err
	es.LastErrorTime = err.Timestamp

	es.RecentErrors = append(es.RecentErrors, err)
	if len(es.RecentErrors) > maxRecentErrors {
		es.RecentErrors = es.RecentErrors[1:]
	}
}

// GetErrorRate 获取错误率（错误/小时）
func (es *ErrorStats) GetErrorRate(duration time.Duration) float64 {
	if duration <= 0 {
		return 0
	}

	cutoff := time.Now().Add(-duration)
	recentCount := 0
	for _, err := range es.RecentErrors {
		if err.Timestamp.After(cutoff) {
			recentCount++
		}
	}

	return float64(recentCount) / duration.Hours()
}
