package validation

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"txlens/internal/errors"
	"txlens/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

var hashRegex = regexp.MustCompile("^0x[0-9a-fA-F]{64}$")

// Validator 数据验证器
type Validator struct {
	logger       *logrus.Logger
	strictMode   bool // 严格模式：警告视为错误
	errorHandler *errors.ErrorHandler
	rules        map[string]ValidationRule
}

// ValidationRule 验证规则接口
type ValidationRule interface {
	Validate(data interface{}) error
	Name() string
	Description() string
}

// ValidationResult 验证结果
type ValidationResult struct {
	Valid    bool                `json:"valid"`
	Errors   []*errors.LensError `json:"errors,omitempty"`
	Warnings []string            `json:"warnings,omitempty"`
	DataType string              `json:"data_type"`
}

// NewValidator 创建数据验证器
func NewValidator(logger *logrus.Logger, strictMode bool) *Validator {
	v := &Validator{
		logger:       logger,
		strictMode:   strictMode,
		errorHandler: errors.NewErrorHandler(logger),
		rules:        make(map[string]ValidationRule),
	}

	v.registerDefaultRules()

	return v
}

// registerDefaultRules 注册默认验证规则
func (v *Validator) registerDefaultRules() {
	v.AddRule(NewRecordValidationRule())
	v.AddRule(NewLogValidationRule())
	v.AddRule(NewAddressValidationRule())
	v.AddRule(NewHashValidationRule())
}

// AddRule 添加验证规则
func (v *Validator) AddRule(rule ValidationRule) {
	v.rules[rule.Name()] = rule
	v.logger.Debugf("已注册验证规则: %s", rule.Name())
}

// ValidateTxHash 校验交易哈希参数
func ValidateTxHash(hash string) error {
	if !isValidHash(hash) {
		return errors.ValidationFailure("hash", fmt.Errorf("交易哈希格式无效: %q", hash))
	}
	return nil
}

// ValidateAddress 校验账户地址参数（不允许为空）
func ValidateAddress(addr string) error {
	if addr == "" || !isValidAddress(addr) {
		return errors.ValidationFailure("address", fmt.Errorf("地址格式无效: %q", addr))
	}
	return nil
}

// ValidatePage 校验分页参数
func ValidatePage(pageSize, page, maxPageSize int) error {
	if pageSize <= 0 {
		return errors.ValidationFailure("pageSize", fmt.Errorf("必须大于0: %d", pageSize))
	}
	if maxPageSize > 0 && pageSize > maxPageSize {
		return errors.ValidationFailure("pageSize", fmt.Errorf("不能超过 %d: %d", maxPageSize, pageSize))
	}
	if page <= 0 {
		return errors.ValidationFailure("page", fmt.Errorf("必须大于0: %d", page))
	}
	return nil
}

// ValidateRecord 验证交易记录的状态不变量
func (v *Validator) ValidateRecord(record *models.TransactionRecord) *ValidationResult {
	if record == nil {
		result := &ValidationResult{
			Valid:    false,
			Errors:   []*errors.LensError{invalid("NIL_RECORD", "交易记录为空")},
			DataType: "record",
		}
		v.finish(result)
		return result
	}

	result := &ValidationResult{
		Valid:    true,
		DataType: "record",
		Errors:   make([]*errors.LensError, 0),
		Warnings: make([]string, 0),
	}

	if err := v.validateRecordBasics(record); err != nil {
		result.addError(err, record.Hash)
	}

	if rule, exists := v.rules["record"]; exists {
		if err := rule.Validate(record); err != nil {
			result.addError(err, record.Hash)
		}
	}

	if record.Mined != nil {
		for _, log := range record.Mined.Logs {
			if rule, exists := v.rules["log"]; exists {
				if err := rule.Validate(log); err != nil {
					result.addError(err, record.Hash)
				}
			}
		}
		v.validateMinedConsistency(record, result)
	}

	v.finish(result)
	return result
}

// validateRecordBasics 验证哈希与地址格式
func (v *Validator) validateRecordBasics(record *models.TransactionRecord) error {
	if !isValidHash(record.Hash) {
		return invalid("INVALID_TX_HASH", "交易哈希格式无效")
	}

	if record.State == models.StateNotFound {
		return nil
	}

	if !isValidAddress(record.From) {
		return invalid("INVALID_FROM_ADDRESS", "发送方地址格式无效")
	}
	if !isValidAddress(record.To) {
		return invalid("INVALID_TO_ADDRESS", "接收方地址格式无效")
	}
	if record.Value.IsNegative() {
		return invalid("NEGATIVE_VALUE", "交易值不能为负数")
	}

	return nil
}

// validateMinedConsistency 已上链交易的数值一致性，只产生警告
func (v *Validator) validateMinedConsistency(record *models.TransactionRecord, result *ValidationResult) {
	mined := record.Mined
	if mined.GasUsed != nil && record.GasLimit > 0 && *mined.GasUsed > record.GasLimit {
		result.Warnings = append(result.Warnings, "Gas使用量超过限制")
	}
	if mined.BundleIndex != nil && *mined.BundleIndex < 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("异常的bundle序号: %d", *mined.BundleIndex))
	}
	if mined.Status != models.TxStatusSuccess && mined.Status != models.TxStatusFail {
		result.Warnings = append(result.Warnings, fmt.Sprintf("异常的交易状态: %q", mined.Status))
	}
}

// ValidateAccount 验证账户概览
func (v *Validator) ValidateAccount(overview *models.AccountOverview) *ValidationResult {
	if overview == nil {
		return &ValidationResult{
			Valid:    false,
			Errors:   []*errors.LensError{invalid("NIL_ACCOUNT", "账户概览为空")},
			DataType: "account",
		}
	}

	result := &ValidationResult{
		Valid:    true,
		DataType: "account",
		Errors:   make([]*errors.LensError, 0),
		Warnings: make([]string, 0),
	}

	if !isValidAddress(overview.Address) || overview.Address == "" {
		result.addError(invalid("INVALID_ADDRESS_FORMAT", "地址格式无效"), "")
	}

	for _, tx := range overview.Transactions {
		sub := v.ValidateRecord(tx)
		if !sub.Valid {
			result.Valid = false
			result.Errors = append(result.Errors, sub.Errors...)
		}
		result.Warnings = append(result.Warnings, sub.Warnings...)
	}

	v.finish(result)
	return result
}

// finish 严格模式下警告同样视为失败，并记录错误统计
func (v *Validator) finish(result *ValidationResult) {
	if v.strictMode && len(result.Warnings) > 0 {
		result.Valid = false
	}
	for _, err := range result.Errors {
		v.errorHandler.HandleError(context.Background(), err)
	}
}

func (r *ValidationResult) addError(err error, txHash string) {
	r.Valid = false
	lensErr, ok := err.(*errors.LensError)
	if !ok {
		lensErr = errors.WrapError(err, errors.ErrorTypeValidation, errors.SeverityMedium,
			"RULE_VALIDATION_FAILED", "规则验证失败")
	}
	if txHash != "" {
		lensErr = lensErr.WithTxHash(txHash)
	}
	r.Errors = append(r.Errors, lensErr)
}

func invalid(code, message string) *errors.LensError {
	return errors.NewLensError(errors.ErrorTypeValidation, errors.SeverityHigh, code, message)
}

// isValidHash 验证哈希格式
func isValidHash(hash string) bool {
	return hashRegex.MatchString(hash)
}

// isValidAddress 验证地址格式
func isValidAddress(addr string) bool {
	if addr == "" {
		return true // 合约创建交易没有接收方
	}

	if !strings.HasPrefix(addr, "0x") {
		return false
	}

	return common.IsHexAddress(addr)
}

// RecordValidationRule 交易记录状态规则
type RecordValidationRule struct{}

func NewRecordValidationRule() *RecordValidationRule {
	return &RecordValidationRule{}
}

func (r *RecordValidationRule) Name() string {
	return "record"
}

func (r *RecordValidationRule) Description() string {
	return "交易记录状态与费用规则"
}

func (r *RecordValidationRule) Validate(data interface{}) error {
	record, ok := data.(*models.TransactionRecord)
	if !ok {
		return fmt.Errorf("数据类型不是交易记录")
	}

	switch record.State {
	case models.StateNotFound:
		if record.From != "" || record.To != "" || record.Input != "" || record.Mined != nil ||
			record.PriorityFee != nil || record.BaseFee != nil || record.Pending || record.ViaPrivateRelay {
			return invalid("NOT_FOUND_HAS_FIELDS", "未找到的记录只能包含哈希")
		}
		return nil
	case models.StatePendingPublic, models.StatePendingPrivate:
		if record.Mined != nil {
			return invalid("PENDING_HAS_MINED_FIELDS", "待打包交易不能包含上链字段")
		}
		if !record.Pending {
			return invalid("PENDING_FLAG_MISMATCH", "待打包交易的 pending 标志必须为 true")
		}
	case models.StateMined:
		if record.Mined == nil {
			return invalid("MINED_MISSING_DETAILS", "已上链交易缺少区块信息")
		}
	default:
		return invalid("UNKNOWN_STATE", fmt.Sprintf("未知的交易状态: %q", record.State))
	}

	if record.BaseFee != nil {
		if record.PriorityFee == nil {
			return invalid("BASE_FEE_WITHOUT_PRIORITY", "存在基础费但缺少优先费")
		}
		if record.BaseFee.Add(*record.PriorityFee).Cmp(record.GasPrice) != 0 {
			return invalid("BASE_FEE_MISMATCH", "基础费与优先费之和不等于gas价格")
		}
		if record.PriorityFee.Equal(record.GasPrice) {
			return invalid("BASE_FEE_REDUNDANT", "优先费等于gas价格时不应有基础费")
		}
	}

	return nil
}

// LogValidationRule 日志验证规则
type LogValidationRule struct{}

func NewLogValidationRule() *LogValidationRule {
	return &LogValidationRule{}
}

func (r *LogValidationRule) Name() string {
	return "log"
}

func (r *LogValidationRule) Description() string {
	return "日志数据验证规则"
}

func (r *LogValidationRule) Validate(data interface{}) error {
	log, ok := data.(*models.TransactionLog)
	if !ok {
		return fmt.Errorf("数据类型不是日志")
	}

	// Solidity事件最多4个indexed参数
	if len(log.Topics) > 4 {
		return errors.NewLensError(errors.ErrorTypeValidation, errors.SeverityMedium,
			"TOO_MANY_TOPICS", "日志主题数量过多")
	}

	if !isValidAddress(log.Address) || log.Address == "" {
		return invalid("INVALID_CONTRACT_ADDRESS", "合约地址格式无效")
	}

	for i, topic := range log.Topics {
		if !isValidHash(topic) {
			return errors.NewLensError(errors.ErrorTypeValidation, errors.SeverityMedium,
				"INVALID_TOPIC", fmt.Sprintf("主题%d格式无效", i))
		}
	}

	return nil
}

// AddressValidationRule 地址验证规则
type AddressValidationRule struct{}

func NewAddressValidationRule() *AddressValidationRule {
	return &AddressValidationRule{}
}

func (r *AddressValidationRule) Name() string {
	return "address"
}

func (r *AddressValidationRule) Description() string {
	return "以太坊地址验证规则"
}

func (r *AddressValidationRule) Validate(data interface{}) error {
	addr, ok := data.(string)
	if !ok {
		return fmt.Errorf("数据类型不是字符串")
	}

	if !isValidAddress(addr) {
		return invalid("INVALID_ADDRESS_FORMAT", "地址格式无效")
	}

	return nil
}

// HashValidationRule 哈希验证规则
type HashValidationRule struct{}

func NewHashValidationRule() *HashValidationRule {
	return &HashValidationRule{}
}

func (r *HashValidationRule) Name() string {
	return "hash"
}

func (r *HashValidationRule) Description() string {
	return "哈希值验证规则"
}

func (r *HashValidationRule) Validate(data interface{}) error {
	hash, ok := data.(string)
	if !ok {
		return fmt.Errorf("数据类型不是字符串")
	}

	if !isValidHash(hash) {
		return invalid("INVALID_HASH_FORMAT", "哈希格式无效")
	}

	return nil
}

// GetValidationStats 获取验证统计信息
func (v *Validator) GetValidationStats() map[string]interface{} {
	stats := v.errorHandler.Snapshot()
	return map[string]interface{}{
		"strict_mode":      v.strictMode,
		"registered_rules": len(v.rules),
		"error_stats":      stats.TotalErrors,
	}
}

// SetStrictMode 设置严格模式
func (v *Validator) SetStrictMode(strict bool) {
	v.strictMode = strict
	v.logger.Infof("验证器严格模式设置为: %t", strict)
}
