package models

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// LifecycleState 交易生命周期状态（互斥）
type LifecycleState string

const (
	StatePendingPublic  LifecycleState = "pending-public"  // 公共内存池中等待打包
	StatePendingPrivate LifecycleState = "pending-private" // 私有中继内存池中等待打包
	StateMined          LifecycleState = "mined"           // 已上链
	StateNotFound       LifecycleState = "not-found"       // 所有数据源均无记录
)

// IsPending 是否处于待打包状态
func (s LifecycleState) IsPending() bool {
	return s == StatePendingPublic || s == StatePendingPrivate
}

// TxStatus 交易执行结果
type TxStatus string

const (
	TxStatusSuccess TxStatus = "success"
	TxStatusFail    TxStatus = "fail"
)

// TransactionRecord 一次解析得到的交易记录
//
// 构造完成后不再修改。已上链交易的专属字段全部放在 Mined 中，
// 其余状态下 Mined 为 nil。
type TransactionRecord struct {
	Hash    string         `json:"hash"`
	From    string         `json:"from,omitempty"`
	To      string         `json:"to,omitempty"`
	State   LifecycleState `json:"state"`
	Pending bool           `json:"pending"`

	Nonce    uint64          `json:"nonce"`
	Value    decimal.Decimal `json:"value"`     // ETH
	GasLimit uint64          `json:"gas_limit"` // gas
	GasPrice decimal.Decimal `json:"gas_price"` // Gwei
	Input    string          `json:"input,omitempty"`

	PriorityFee *decimal.Decimal `json:"priority_fee,omitempty"` // Gwei
	BaseFee     *decimal.Decimal `json:"base_fee,omitempty"`     // Gwei，仅当与优先费不同

	ViaPrivateRelay bool `json:"via_private_relay"`

	Mined *MinedDetails `json:"mined,omitempty"`
}

// MinedDetails 已上链交易的字段
type MinedDetails struct {
	BlockNumber uint64            `json:"block_number"`
	Index       uint64            `json:"index"`
	Status      TxStatus          `json:"status"`
	GasUsed     *uint64           `json:"gas_used,omitempty"`
	GasCost     *decimal.Decimal  `json:"gas_cost,omitempty"` // ETH
	Logs        []*TransactionLog `json:"logs,omitempty"`

	// 以下为补充数据，每个字段独立可空
	BlockTxCount     *int             `json:"block_tx_count,omitempty"`
	Timestamp        *time.Time       `json:"timestamp,omitempty"`
	BlockBaseFee     *decimal.Decimal `json:"block_base_fee,omitempty"` // Gwei
	FromEdenProducer *bool            `json:"from_eden_producer,omitempty"`
	BundleIndex      *int             `json:"bundle_index,omitempty"`
	MinerTip         decimal.Decimal  `json:"miner_tip"` // ETH，默认0
	SenderStake      *decimal.Decimal `json:"sender_stake,omitempty"`
	SenderRank       *int             `json:"sender_rank,omitempty"`
	ToSlot           *int             `json:"to_slot,omitempty"`
	ContractName     *string          `json:"contract_name,omitempty"`
	DecodedInput     *DecodedCall     `json:"decoded_input,omitempty"`

	// EnrichmentErrors 补充数据源名称 -> 失败原因
	EnrichmentErrors map[string]string `json:"enrichment_errors,omitempty"`
}

// Found 是否查到交易
func (r *TransactionRecord) Found() bool {
	return r != nil && r.State != StateNotFound
}

// NotFoundRecord 构造未找到的记录，仅包含哈希
func NotFoundRecord(hash string) *TransactionRecord {
	return &TransactionRecord{
		Hash:  hash,
		State: StateNotFound,
	}
}

// MarshalJSON 未找到的记录只输出哈希和状态，不输出零值字段
func (r TransactionRecord) MarshalJSON() ([]byte, error) {
	if r.State == StateNotFound {
		return json.Marshal(struct {
			Hash  string         `json:"hash"`
			State LifecycleState `json:"state"`
		}{r.Hash, r.State})
	}
	type plain TransactionRecord
	return json.Marshal(plain(r))
}

// TransactionLog 交易日志模型
type TransactionLog struct {
	Address  string   `json:"address"`
	Topics   []string `json:"topics"`
	Data     string   `json:"data"`
	LogIndex uint     `json:"log_index"`
	Removed  bool     `json:"removed"`
}

// FromEthereumLog 从以太坊日志转换为内部模型
func (l *TransactionLog) FromEthereumLog(log *types.Log) {
	if log == nil {
		return
	}

	l.Address = log.Address.Hex()
	l.Topics = make([]string, len(log.Topics))
	for i, topic := range log.Topics {
		l.Topics[i] = topic.Hex()
	}
	l.Data = hexutil.Encode(log.Data)
	l.LogIndex = log.Index
	l.Removed = log.Removed
}
