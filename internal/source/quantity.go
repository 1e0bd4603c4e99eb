package source

import (
	"bytes"
	"encoding/json"
	"math/big"

	"txlens/internal/normalize"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Quantity 数值字段，兼容 JSON 字符串（十六进制/十进制）、数字和 null
type Quantity string

// UnmarshalJSON 实现 json.Unmarshaler
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*q = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*q = Quantity(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*q = Quantity(n.String())
	return nil
}

// IsEmpty 字段缺失或为null
func (q Quantity) IsEmpty() bool {
	return q == ""
}

// Big 解析为大整数
func (q Quantity) Big() (*big.Int, error) {
	return normalize.ParseQuantity(string(q))
}

// OptionalBig 字段缺失时返回nil
func (q Quantity) OptionalBig() (*big.Int, error) {
	return normalize.ParseOptional(string(q))
}

// Uint64 解析为 uint64
func (q Quantity) Uint64() (uint64, error) {
	return normalize.ParseUint64(string(q))
}

// RawLog 回执中的日志
type RawLog struct {
	Address  string   `json:"address"`
	Topics   []string `json:"topics"`
	Data     string   `json:"data"`
	LogIndex Quantity `json:"logIndex"`
	Removed  bool     `json:"removed"`
}

// ToEthereumLog 转换为 go-ethereum 日志
func (l *RawLog) ToEthereumLog() *types.Log {
	log := &types.Log{
		Address: common.HexToAddress(l.Address),
		Topics:  make([]common.Hash, len(l.Topics)),
		Removed: l.Removed,
	}
	for i, topic := range l.Topics {
		log.Topics[i] = common.HexToHash(topic)
	}
	if data, err := hexutil.Decode(l.Data); err == nil {
		log.Data = data
	}
	if idx, err := l.LogIndex.Uint64(); err == nil {
		log.Index = uint(idx)
	}
	return log
}
