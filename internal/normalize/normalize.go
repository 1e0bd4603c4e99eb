// Package normalize 提供数值解析、单位换算和费用推导
package normalize

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const (
	gweiExp  = -9
	etherExp = -18
)

// ParseQuantity 解析数值，支持 0x 前缀的十六进制和十进制字符串
func ParseQuantity(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("空数值")
	}

	v := new(big.Int)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits := s[2:]
		if digits == "" {
			return v, nil
		}
		if _, ok := v.SetString(digits, 16); !ok {
			return nil, fmt.Errorf("无效的十六进制数值: %s", s)
		}
		return v, nil
	}

	if _, ok := v.SetString(s, 10); !ok {
		return nil, fmt.Errorf("无效的十进制数值: %s", s)
	}
	return v, nil
}

// ParseUint64 解析数值并转换为 uint64
func ParseUint64(s string) (uint64, error) {
	v, err := ParseQuantity(s)
	if err != nil {
		return 0, err
	}
	if v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("数值超出范围: %s", s)
	}
	return v.Uint64(), nil
}

// ParseOptional 解析可选数值，空字符串返回nil
func ParseOptional(s string) (*big.Int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	return ParseQuantity(s)
}

// WeiToGwei wei 转 Gwei
func WeiToGwei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, gweiExp)
}

// WeiToEther wei 转 ETH
func WeiToEther(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, etherExp)
}

// GweiToEther Gwei 转 ETH
func GweiToEther(gwei decimal.Decimal) decimal.Decimal {
	return gwei.Shift(gweiExp)
}

// ChecksumAddress 返回校验和格式地址，无效地址原样返回
func ChecksumAddress(addr string) string {
	if !common.IsHexAddress(addr) {
		return addr
	}
	return common.HexToAddress(addr).Hex()
}

// Recipient 交易接收方；合约创建交易没有接收方，使用零地址
func Recipient(to string) string {
	if strings.TrimSpace(to) == "" {
		return common.Address{}.Hex()
	}
	return ChecksumAddress(to)
}

// Fees 费用推导结果
type Fees struct {
	PriorityFee *decimal.Decimal
	BaseFee     *decimal.Decimal
}

// DeriveFees 根据 gasPrice 和优先费推导 baseFee
//
// 优先费为nil时两者都为nil；baseFee 仅在优先费与 gasPrice 不同时存在。
func DeriveFees(gasPrice decimal.Decimal, priorityFee *decimal.Decimal) Fees {
	if priorityFee == nil {
		return Fees{}
	}
	pf := *priorityFee
	fees := Fees{PriorityFee: &pf}
	if !pf.Equal(gasPrice) {
		base := gasPrice.Sub(pf)
		fees.BaseFee = &base
	}
	return fees
}

// PriorityFromBlockBase 用区块 baseFee 计算实际优先费（gasPrice - baseFee）
//
// 伦敦升级前的区块 baseFee 视为0。
func PriorityFromBlockBase(gasPrice decimal.Decimal, blockBaseFee *big.Int) decimal.Decimal {
	if blockBaseFee == nil {
		return gasPrice
	}
	return gasPrice.Sub(WeiToGwei(blockBaseFee))
}

// GasCost gasUsed * gasPrice，返回 ETH
func GasCost(gasUsed uint64, gasPriceGwei decimal.Decimal) decimal.Decimal {
	return GweiToEther(gasPriceGwei.Mul(decimal.NewFromBigInt(new(big.Int).SetUint64(gasUsed), 0)))
}

// Ptr 返回值的指针
func Ptr[T any](v T) *T {
	return &v
}
