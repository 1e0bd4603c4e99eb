// Package sourcetest 提供数据源接口的 testify mock 实现，供各包测试使用
package sourcetest

import (
	"context"

	"txlens/internal/source"
	"txlens/pkg/models"

	"github.com/stretchr/testify/mock"
)

// Node NodeSource mock
type Node struct{ mock.Mock }

func (m *Node) TransactionByHash(ctx context.Context, hash string) (*source.RawTransaction, error) {
	args := m.Called(ctx, hash)
	tx, _ := args.Get(0).(*source.RawTransaction)
	return tx, args.Error(1)
}

func (m *Node) TransactionReceipt(ctx context.Context, hash string) (*source.RawReceipt, error) {
	args := m.Called(ctx, hash)
	receipt, _ := args.Get(0).(*source.RawReceipt)
	return receipt, args.Error(1)
}

func (m *Node) BlockMetadata(ctx context.Context, blocks []uint64) (*models.BlockMetaBatch, error) {
	args := m.Called(ctx, blocks)
	batch, _ := args.Get(0).(*models.BlockMetaBatch)
	return batch, args.Error(1)
}

func (m *Node) TransactionCount(ctx context.Context, address string) (uint64, error) {
	args := m.Called(ctx, address)
	count, _ := args.Get(0).(uint64)
	return count, args.Error(1)
}

// Relay RelaySource mock
type Relay struct{ mock.Mock }

func (m *Relay) RelayTransaction(ctx context.Context, hash string) (*source.RelayRecord, error) {
	args := m.Called(ctx, hash)
	record, _ := args.Get(0).(*source.RelayRecord)
	return record, args.Error(1)
}

func (m *Relay) RelayTransactions(ctx context.Context, hashes []string) (map[string]*source.RelayRecord, error) {
	args := m.Called(ctx, hashes)
	records, _ := args.Get(0).(map[string]*source.RelayRecord)
	return records, args.Error(1)
}

// Membership MembershipSource mock
type Membership struct{ mock.Mock }

func (m *Membership) RelayBlocks(ctx context.Context, blocks []uint64) (map[uint64]bool, error) {
	args := m.Called(ctx, blocks)
	set, _ := args.Get(0).(map[uint64]bool)
	return set, args.Error(1)
}

// Stake StakeSource mock
type Stake struct{ mock.Mock }

func (m *Stake) Stake(ctx context.Context, address string, block *uint64) (*source.StakeInfo, error) {
	args := m.Called(ctx, address, block)
	info, _ := args.Get(0).(*source.StakeInfo)
	return info, args.Error(1)
}

// Delegation DelegationSource mock
type Delegation struct{ mock.Mock }

func (m *Delegation) SlotDelegates(ctx context.Context, block *uint64) (map[string]int, error) {
	args := m.Called(ctx, block)
	delegates, _ := args.Get(0).(map[string]int)
	return delegates, args.Error(1)
}

// Bundles BundleSource mock
type Bundles struct{ mock.Mock }

func (m *Bundles) BundlesInBlock(ctx context.Context, block uint64) (source.BundleIndex, error) {
	args := m.Called(ctx, block)
	index, _ := args.Get(0).(source.BundleIndex)
	return index, args.Error(1)
}

// Explorer ExplorerSource mock
type Explorer struct{ mock.Mock }

func (m *Explorer) AccountTransactions(ctx context.Context, address string, pageSize, page int) ([]source.ExplorerTx, error) {
	args := m.Called(ctx, address, pageSize, page)
	txs, _ := args.Get(0).([]source.ExplorerTx)
	return txs, args.Error(1)
}

// Decoder CalldataDecoder mock
type Decoder struct{ mock.Mock }

func (m *Decoder) Decode(ctx context.Context, to, input string) (*models.DecodedCall, error) {
	args := m.Called(ctx, to, input)
	call, _ := args.Get(0).(*models.DecodedCall)
	return call, args.Error(1)
}

// BlockPtr 匹配指向指定区块号的 *uint64 参数
func BlockPtr(n uint64) interface{} {
	return mock.MatchedBy(func(b *uint64) bool { return b != nil && *b == n })
}

// Latest 匹配 nil 区块号（最新）
func Latest() interface{} {
	return mock.MatchedBy(func(b *uint64) bool { return b == nil })
}
