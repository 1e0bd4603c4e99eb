// Package source 定义交易解析所需的数据源接口及其实现
package source

import (
	"context"
	"math/big"

	"txlens/pkg/models"
)

// NodeSource 公共节点：交易对象、回执、区块元数据、账户交易数
type NodeSource interface {
	// TransactionByHash 查询交易对象，不存在时返回 (nil, nil)
	TransactionByHash(ctx context.Context, hash string) (*RawTransaction, error)
	// TransactionReceipt 查询回执，未上链时返回 (nil, nil)
	TransactionReceipt(ctx context.Context, hash string) (*RawReceipt, error)
	// BlockMetadata 批量查询区块元数据，单个区块失败记录在 Failed 中
	BlockMetadata(ctx context.Context, blocks []uint64) (*models.BlockMetaBatch, error)
	// TransactionCount 账户已发送交易数（最新区块的nonce）
	TransactionCount(ctx context.Context, address string) (uint64, error)
}

// RelaySource 私有中继 RPC
type RelaySource interface {
	// RelayTransaction 查询中继记录，中继不认识该交易时返回 (nil, nil)
	RelayTransaction(ctx context.Context, hash string) (*RelayRecord, error)
	// RelayTransactions 批量查询，返回 小写哈希 -> 记录，只包含中继认识的交易
	RelayTransactions(ctx context.Context, hashes []string) (map[string]*RelayRecord, error)
}

// MembershipSource 中继区块成员关系（区块是否由中继出块者生产）
type MembershipSource interface {
	RelayBlocks(ctx context.Context, blocks []uint64) (map[uint64]bool, error)
}

// StakeSource 质押登记
type StakeSource interface {
	// Stake 查询地址在指定区块（nil 表示最新）的质押量和排名
	Stake(ctx context.Context, address string, block *uint64) (*StakeInfo, error)
}

// DelegationSource slot 委托登记
type DelegationSource interface {
	// SlotDelegates 返回 小写地址 -> slot 编号
	SlotDelegates(ctx context.Context, block *uint64) (map[string]int, error)
}

// BundleSource MEV bundle 索引
type BundleSource interface {
	BundlesInBlock(ctx context.Context, block uint64) (BundleIndex, error)
}

// ExplorerSource 区块浏览器
type ExplorerSource interface {
	AccountTransactions(ctx context.Context, address string, pageSize, page int) ([]ExplorerTx, error)
}

// CalldataDecoder 调用数据解码
type CalldataDecoder interface {
	// Decode 解码 input，无法识别时返回 (nil, nil)
	Decode(ctx context.Context, to, input string) (*models.DecodedCall, error)
}

// RawTransaction eth_getTransactionByHash 返回的交易对象
//
// 数值字段可能是十六进制或十进制，由 normalize.ParseQuantity 统一解析。
// JSON 字段名匹配不区分大小写，中继返回的小写字段同样适用。
type RawTransaction struct {
	Hash                 string   `json:"hash"`
	From                 string   `json:"from"`
	To                   string   `json:"to"`
	Nonce                Quantity `json:"nonce"`
	Value                Quantity `json:"value"`
	Gas                  Quantity `json:"gas"`
	GasPrice             Quantity `json:"gasPrice"`
	MaxPriorityFeePerGas Quantity `json:"maxPriorityFeePerGas"`
	MaxFeePerGas         Quantity `json:"maxFeePerGas"`
	Input                string   `json:"input"`
	BlockNumber          Quantity `json:"blockNumber"`
	TransactionIndex     Quantity `json:"transactionIndex"`
	Type                 Quantity `json:"type"`
}

// IsPending 交易对象是否未包含区块号
func (t *RawTransaction) IsPending() bool {
	return t.BlockNumber.IsEmpty()
}

// RelayRecord 中继返回的交易记录
type RelayRecord RawTransaction

// IsPending 中继记录没有区块号时处于中继内存池
func (r *RelayRecord) IsPending() bool {
	return r.BlockNumber.IsEmpty()
}

// RawReceipt 交易回执中解析需要的字段
type RawReceipt struct {
	Status            Quantity  `json:"status"`
	GasUsed           Quantity  `json:"gasUsed"`
	EffectiveGasPrice Quantity  `json:"effectiveGasPrice"`
	BlockNumber       Quantity  `json:"blockNumber"`
	TransactionIndex  Quantity  `json:"transactionIndex"`
	Logs              []*RawLog `json:"logs"`
}

// StakeInfo 质押信息，Staked 单位为 wei
type StakeInfo struct {
	Staked *big.Int
	Rank   *int
}

// BundleTx bundle 中的一笔交易
type BundleTx struct {
	BundleIndex int
	MinerTip    *big.Int // wei，可能为nil
}

// BundleIndex 小写交易哈希 -> bundle 信息
type BundleIndex map[string]BundleTx

// ExplorerTx 区块浏览器账户交易（etherscan txlist 格式，数值为十进制字符串）
type ExplorerTx struct {
	BlockNumber      string `json:"blockNumber"`
	TimeStamp        string `json:"timeStamp"`
	Hash             string `json:"hash"`
	Nonce            string `json:"nonce"`
	TransactionIndex string `json:"transactionIndex"`
	From             string `json:"from"`
	To               string `json:"to"`
	Value            string `json:"value"`
	Gas              string `json:"gas"`
	GasPrice         string `json:"gasPrice"`
	GasUsed          string `json:"gasUsed"`
	IsError          string `json:"isError"`
	Input            string `json:"input"`
	ContractAddress  string `json:"contractAddress"`
}
