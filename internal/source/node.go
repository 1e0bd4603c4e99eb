package source

import (
	"context"
	"fmt"
	"time"

	"txlens/internal/connection"
	"txlens/internal/metrics"
	"txlens/internal/retry"
	"txlens/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
)

const (
	sourceNode = "node"

	// 单次批量请求的最大元素数
	maxBatchSize = 100
)

// NodeClient 基于连接池的公共节点数据源
type NodeClient struct {
	pool    *connection.ConnectionPool
	retrier *retry.Retrier
	logger  *logrus.Logger
}

// NewNodeClient 创建节点数据源
func NewNodeClient(pool *connection.ConnectionPool, retrier *retry.Retrier, logger *logrus.Logger) *NodeClient {
	return &NodeClient{
		pool:    pool,
		retrier: retrier,
		logger:  logger,
	}
}

// call 在连接池上执行一次带重试的 RPC 调用
func (c *NodeClient) call(ctx context.Context, operation string, fn func(*connection.Node) error) (err error) {
	started := time.Now()
	defer func() { metrics.ObserveSource(sourceNode, operation, err, started) }()

	return c.retrier.Execute(ctx, operation, func() error {
		return c.pool.Do(ctx, fn)
	})
}

// TransactionByHash 查询交易对象
func (c *NodeClient) TransactionByHash(ctx context.Context, hash string) (*RawTransaction, error) {
	var tx *RawTransaction
	err := c.call(ctx, "eth_getTransactionByHash", func(n *connection.Node) error {
		return n.RPC().CallContext(ctx, &tx, "eth_getTransactionByHash", hash)
	})
	if err != nil {
		return nil, fmt.Errorf("查询交易 %s 失败: %w", hash, err)
	}
	return tx, nil
}

// TransactionReceipt 查询交易回执
func (c *NodeClient) TransactionReceipt(ctx context.Context, hash string) (*RawReceipt, error) {
	var receipt *RawReceipt
	err := c.call(ctx, "eth_getTransactionReceipt", func(n *connection.Node) error {
		return n.RPC().CallContext(ctx, &receipt, "eth_getTransactionReceipt", hash)
	})
	if err != nil {
		return nil, fmt.Errorf("查询回执 %s 失败: %w", hash, err)
	}
	return receipt, nil
}

// BlockMetadata 批量查询区块元数据，每个区块对应批量请求中的一个元素
func (c *NodeClient) BlockMetadata(ctx context.Context, blocks []uint64) (*models.BlockMetaBatch, error) {
	batch := models.NewBlockMetaBatch()
	if len(blocks) == 0 {
		return batch, nil
	}

	// 单个分片请求失败只记录该分片的区块，已完成的分片保留
	var chunkErr error
	failedChunks, chunks := 0, 0
	for start := 0; start < len(blocks); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(blocks) {
			end = len(blocks)
		}
		chunks++
		if err := c.blockMetadataChunk(ctx, blocks[start:end], batch); err != nil {
			failedChunks++
			chunkErr = err
			for _, number := range blocks[start:end] {
				batch.Failed[number] = err
			}
			c.logger.Warnf("区块元数据分片 [%d, %d) 查询失败: %v", start, end, err)
		}
	}
	if failedChunks == chunks {
		return nil, chunkErr
	}

	metrics.ObserveBatch(sourceNode, len(blocks), len(batch.Failed))
	if len(batch.Failed) > 0 {
		c.logger.Warnf("批量查询区块元数据部分失败: %d/%d", len(batch.Failed), len(blocks))
	}
	return batch, nil
}

func (c *NodeClient) blockMetadataChunk(ctx context.Context, blocks []uint64, batch *models.BlockMetaBatch) error {
	var (
		elems   []rpc.BatchElem
		headers []*models.RPCBlockHeader
	)

	err := c.call(ctx, "eth_getBlockByNumber_batch", func(n *connection.Node) error {
		elems = make([]rpc.BatchElem, len(blocks))
		headers = make([]*models.RPCBlockHeader, len(blocks))
		for i, number := range blocks {
			elems[i] = rpc.BatchElem{
				Method: "eth_getBlockByNumber",
				Args:   []interface{}{hexutil.EncodeUint64(number), false},
				Result: &headers[i],
			}
		}
		return n.RPC().BatchCallContext(ctx, elems)
	})
	if err != nil {
		return fmt.Errorf("批量查询区块元数据失败: %w", err)
	}

	for i, number := range blocks {
		switch {
		case elems[i].Error != nil:
			batch.Failed[number] = elems[i].Error
		case headers[i] == nil:
			batch.Failed[number] = fmt.Errorf("区块 %d 不存在", number)
		default:
			meta := headers[i].ToBlockMeta()
			meta.Number = number
			batch.Blocks[number] = meta
		}
	}
	return nil
}

// TransactionCount 查询账户交易数
func (c *NodeClient) TransactionCount(ctx context.Context, address string) (uint64, error) {
	var count uint64
	err := c.call(ctx, "eth_getTransactionCount", func(n *connection.Node) error {
		var err error
		count, err = n.Eth().NonceAt(ctx, common.HexToAddress(address), nil)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("查询账户 %s 交易数失败: %w", address, err)
	}
	return count, nil
}
