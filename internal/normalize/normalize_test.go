package normalize

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{"十六进制", "0x1a", 26, false},
		{"大写前缀", "0X10", 16, false},
		{"十进制", "42", 42, false},
		{"空前缀", "0x", 0, false},
		{"带空格", " 7 ", 7, false},
		{"空字符串", "", 0, true},
		{"无效十六进制", "0xzz", 0, true},
		{"无效十进制", "12ab", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseQuantity(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Int64())
		})
	}
}

func TestParseQuantityHexAndDecimalAgree(t *testing.T) {
	hex, err := ParseUint64("0x2a")
	require.NoError(t, err)
	dec, err := ParseUint64("42")
	require.NoError(t, err)
	assert.Equal(t, hex, dec)
}

func TestParseUint64Overflow(t *testing.T) {
	_, err := ParseUint64("0x10000000000000000")
	assert.Error(t, err)
}

func TestUnitConversion(t *testing.T) {
	wei := big.NewInt(1_500_000_000)
	assert.True(t, WeiToGwei(wei).Equal(decimal.RequireFromString("1.5")))

	oneEther, _ := new(big.Int).SetString("1000000000000000000", 10)
	assert.True(t, WeiToEther(oneEther).Equal(decimal.NewFromInt(1)))

	assert.True(t, WeiToGwei(nil).IsZero())
	assert.True(t, GweiToEther(decimal.NewFromInt(1_000_000_000)).Equal(decimal.NewFromInt(1)))
}

func TestChecksumAddress(t *testing.T) {
	assert.Equal(t,
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		ChecksumAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"))
	assert.Equal(t, "not-an-address", ChecksumAddress("not-an-address"))
}

func TestRecipient(t *testing.T) {
	assert.Equal(t, "0x0000000000000000000000000000000000000000", Recipient(""))
	assert.Equal(t, "0x0000000000000000000000000000000000000000", Recipient("  "))
	assert.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", Recipient("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"))
}

func TestDeriveFees(t *testing.T) {
	gasPrice := decimal.NewFromInt(30)

	t.Run("无优先费", func(t *testing.T) {
		fees := DeriveFees(gasPrice, nil)
		assert.Nil(t, fees.PriorityFee)
		assert.Nil(t, fees.BaseFee)
	})

	t.Run("优先费与gasPrice相同", func(t *testing.T) {
		fees := DeriveFees(gasPrice, Ptr(decimal.NewFromInt(30)))
		require.NotNil(t, fees.PriorityFee)
		assert.Nil(t, fees.BaseFee)
	})

	t.Run("优先费小于gasPrice", func(t *testing.T) {
		fees := DeriveFees(gasPrice, Ptr(decimal.NewFromInt(2)))
		require.NotNil(t, fees.BaseFee)
		assert.True(t, fees.BaseFee.Equal(decimal.NewFromInt(28)))
		assert.True(t, fees.PriorityFee.Equal(decimal.NewFromInt(2)))
	})
}

func TestPriorityFromBlockBase(t *testing.T) {
	gasPrice := decimal.NewFromInt(50)
	assert.True(t, PriorityFromBlockBase(gasPrice, big.NewInt(45_000_000_000)).Equal(decimal.NewFromInt(5)))
	assert.True(t, PriorityFromBlockBase(gasPrice, nil).Equal(gasPrice))
}

func TestGasCost(t *testing.T) {
	// 21000 * 100 Gwei = 0.0021 ETH
	cost := GasCost(21000, decimal.NewFromInt(100))
	assert.True(t, cost.Equal(decimal.RequireFromString("0.0021")))
}
