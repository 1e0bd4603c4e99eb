package validation

import (
	"io"
	"testing"

	"txlens/pkg/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testHash = "0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"
	testFrom = "0x1234567890abcdef1234567890abcdef12345678"
	testTo   = "0xabcdef1234567890abcdef1234567890abcdef12"
)

func newTestValidator(strict bool) *Validator {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewValidator(logger, strict)
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func minedRecord() *models.TransactionRecord {
	gasUsed := uint64(21000)
	return &models.TransactionRecord{
		Hash:        testHash,
		From:        testFrom,
		To:          testTo,
		State:       models.StateMined,
		Value:       decimal.RequireFromString("1.5"),
		GasLimit:    21000,
		GasPrice:    decimal.RequireFromString("30"),
		PriorityFee: decPtr("2"),
		BaseFee:     decPtr("28"),
		Mined: &models.MinedDetails{
			BlockNumber: 1000,
			Status:      models.TxStatusSuccess,
			GasUsed:     &gasUsed,
			Logs: []*models.TransactionLog{{
				Address: testTo,
				Topics:  []string{testHash},
				Data:    "0x",
			}},
		},
	}
}

func TestNewValidator(t *testing.T) {
	validator := newTestValidator(true)

	assert.NotNil(t, validator)
	assert.True(t, validator.strictMode)
	assert.Equal(t, 4, len(validator.rules))
}

func TestValidateTxHash(t *testing.T) {
	tests := []struct {
		name    string
		hash    string
		wantErr bool
	}{
		{"valid lower", testHash, false},
		{"valid mixed", "0xABCDEF7890abcdef1234567890abcdef1234567890abcdef1234567890abcdef", false},
		{"missing prefix", testHash[2:], true},
		{"too short", "0xabc", true},
		{"non hex", "0x" + "zz" + testHash[4:], true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTxHash(tt.hash)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, ValidateAddress(testFrom))
	assert.Error(t, ValidateAddress(""))
	assert.Error(t, ValidateAddress("1234567890abcdef1234567890abcdef12345678"))
	assert.Error(t, ValidateAddress("0x1234"))
}

func TestValidatePage(t *testing.T) {
	tests := []struct {
		name     string
		pageSize int
		page     int
		wantErr  bool
	}{
		{"valid", 25, 1, false},
		{"max size", 100, 3, false},
		{"zero size", 0, 1, true},
		{"over max", 101, 1, true},
		{"zero page", 25, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePage(tt.pageSize, tt.page, 100)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateRecord_Mined(t *testing.T) {
	validator := newTestValidator(false)

	result := validator.ValidateRecord(minedRecord())

	assert.True(t, result.Valid)
	assert.Equal(t, "record", result.DataType)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestValidateRecord_Invariants(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *models.TransactionRecord)
		code   string
	}{
		{
			name:   "base fee without priority fee",
			mutate: func(r *models.TransactionRecord) { r.PriorityFee = nil },
			code:   "BASE_FEE_WITHOUT_PRIORITY",
		},
		{
			name: "base fee when priority equals gas price",
			mutate: func(r *models.TransactionRecord) {
				r.PriorityFee = decPtr("30")
				r.BaseFee = decPtr("0")
			},
			code: "BASE_FEE_REDUNDANT",
		},
		{
			name:   "base fee does not add up",
			mutate: func(r *models.TransactionRecord) { r.BaseFee = decPtr("27") },
			code:   "BASE_FEE_MISMATCH",
		},
		{
			name:   "mined without details",
			mutate: func(r *models.TransactionRecord) { r.Mined = nil },
			code:   "MINED_MISSING_DETAILS",
		},
		{
			name: "pending with mined details",
			mutate: func(r *models.TransactionRecord) {
				r.State = models.StatePendingPublic
				r.Pending = true
			},
			code: "PENDING_HAS_MINED_FIELDS",
		},
		{
			name: "pending flag mismatch",
			mutate: func(r *models.TransactionRecord) {
				r.State = models.StatePendingPrivate
				r.Mined = nil
			},
			code: "PENDING_FLAG_MISMATCH",
		},
		{
			name:   "unknown state",
			mutate: func(r *models.TransactionRecord) { r.State = "dropped" },
			code:   "UNKNOWN_STATE",
		},
		{
			name:   "invalid from",
			mutate: func(r *models.TransactionRecord) { r.From = "0x12" },
			code:   "INVALID_FROM_ADDRESS",
		},
	}

	validator := newTestValidator(false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := minedRecord()
			tt.mutate(record)

			result := validator.ValidateRecord(record)

			assert.False(t, result.Valid)
			require.NotEmpty(t, result.Errors)
			codes := make([]string, 0, len(result.Errors))
			for _, e := range result.Errors {
				codes = append(codes, e.Code)
			}
			assert.Contains(t, codes, tt.code)
		})
	}
}

func TestValidateRecord_NotFound(t *testing.T) {
	validator := newTestValidator(false)

	result := validator.ValidateRecord(models.NotFoundRecord(testHash))
	assert.True(t, result.Valid)

	record := models.NotFoundRecord(testHash)
	record.From = testFrom
	result = validator.ValidateRecord(record)
	assert.False(t, result.Valid)
	assert.Equal(t, "NOT_FOUND_HAS_FIELDS", result.Errors[0].Code)
	require.NotNil(t, result.Errors[0].TxHash)
	assert.Equal(t, testHash, *result.Errors[0].TxHash)
}

func TestValidateRecord_Nil(t *testing.T) {
	validator := newTestValidator(false)

	result := validator.ValidateRecord(nil)

	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Errors)
}

func TestValidateRecord_StrictModeWarnings(t *testing.T) {
	record := minedRecord()
	record.GasLimit = 20000 // gasUsed 21000

	result := newTestValidator(false).ValidateRecord(record)
	assert.True(t, result.Valid)
	assert.Len(t, result.Warnings, 1)

	result = newTestValidator(true).ValidateRecord(record)
	assert.False(t, result.Valid)
}

func TestValidateRecord_BadLog(t *testing.T) {
	record := minedRecord()
	record.Mined.Logs[0].Topics = []string{testHash, testHash, testHash, testHash, testHash}

	result := newTestValidator(false).ValidateRecord(record)

	assert.False(t, result.Valid)
	assert.Equal(t, "TOO_MANY_TOPICS", result.Errors[0].Code)
}

func TestValidateAccount(t *testing.T) {
	validator := newTestValidator(false)

	overview := &models.AccountOverview{
		Address:      testFrom,
		Transactions: []*models.TransactionRecord{minedRecord()},
	}
	assert.True(t, validator.ValidateAccount(overview).Valid)

	bad := minedRecord()
	bad.Mined = nil
	overview.Transactions = append(overview.Transactions, bad)
	result := validator.ValidateAccount(overview)
	assert.False(t, result.Valid)
	assert.Len(t, result.Errors, 1)

	assert.False(t, validator.ValidateAccount(nil).Valid)
}

func TestRules(t *testing.T) {
	assert.NoError(t, NewAddressValidationRule().Validate(testTo))
	assert.Error(t, NewAddressValidationRule().Validate("bad"))
	assert.Error(t, NewAddressValidationRule().Validate(42))

	assert.NoError(t, NewHashValidationRule().Validate(testHash))
	assert.Error(t, NewHashValidationRule().Validate("0x1"))

	assert.Error(t, NewRecordValidationRule().Validate("not a record"))
	assert.Error(t, NewLogValidationRule().Validate(&models.TransactionLog{Address: ""}))
}

func TestGetValidationStats(t *testing.T) {
	validator := newTestValidator(false)
	validator.ValidateRecord(nil)

	stats := validator.GetValidationStats()
	assert.Equal(t, false, stats["strict_mode"])
	assert.Equal(t, 4, stats["registered_rules"])
	assert.Equal(t, 1, stats["error_stats"])
}
