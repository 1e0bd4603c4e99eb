package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// BlockMeta 区块元数据（补充数据用）
type BlockMeta struct {
	Number        uint64   `json:"block_number"`
	Hash          string   `json:"hash"`
	Timestamp     uint64   `json:"timestamp"`
	Miner         string   `json:"miner"`
	BaseFeePerGas *big.Int `json:"base_fee_per_gas,omitempty"` // 伦敦升级前为nil
	TxCount       int      `json:"transaction_count"`
}

// Time 区块时间
func (b *BlockMeta) Time() time.Time {
	return time.Unix(int64(b.Timestamp), 0).UTC()
}

// RPCBlockHeader eth_getBlockByNumber(number, false) 的返回字段
type RPCBlockHeader struct {
	Number        *hexutil.Big   `json:"number"`
	Hash          string         `json:"hash"`
	Timestamp     hexutil.Uint64 `json:"timestamp"`
	Miner         string         `json:"miner"`
	BaseFeePerGas *hexutil.Big   `json:"baseFeePerGas"`
	Transactions  []string       `json:"transactions"`
}

// ToBlockMeta 转换为内部区块元数据
func (h *RPCBlockHeader) ToBlockMeta() *BlockMeta {
	meta := &BlockMeta{
		Hash:      h.Hash,
		Timestamp: uint64(h.Timestamp),
		Miner:     h.Miner,
		TxCount:   len(h.Transactions),
	}
	if h.Number != nil {
		meta.Number = h.Number.ToInt().Uint64()
	}
	if h.BaseFeePerGas != nil {
		meta.BaseFeePerGas = new(big.Int).Set(h.BaseFeePerGas.ToInt())
	}
	return meta
}

// BlockMetaBatch 批量区块元数据，单个区块失败不影响其他区块
type BlockMetaBatch struct {
	Blocks map[uint64]*BlockMeta `json:"blocks"`
	Failed map[uint64]error      `json:"-"`
}

// NewBlockMetaBatch 创建空批次
func NewBlockMetaBatch() *BlockMetaBatch {
	return &BlockMetaBatch{
		Blocks: make(map[uint64]*BlockMeta),
		Failed: make(map[uint64]error),
	}
}

// Get 获取区块元数据，失败或缺失时返回nil
func (b *BlockMetaBatch) Get(number uint64) *BlockMeta {
	if b == nil {
		return nil
	}
	return b.Blocks[number]
}
