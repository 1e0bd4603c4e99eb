package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"txlens/internal/config"
	"txlens/internal/metrics"
	"txlens/internal/retry"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
)

const sourceRelay = "relay"

// RelayClient 私有中继 JSON-RPC 数据源
type RelayClient struct {
	client  *rpc.Client
	retrier *retry.Retrier
	logger  *logrus.Logger
}

// NewRelayClient 连接中继 RPC
func NewRelayClient(ctx context.Context, cfg *config.RelayConfig, retrier *retry.Retrier, logger *logrus.Logger) (*RelayClient, error) {
	client, err := rpc.DialOptions(ctx, cfg.RPCURL, rpc.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	if err != nil {
		return nil, fmt.Errorf("连接中继 %s 失败: %w", cfg.RPCURL, err)
	}
	return NewRelayClientFromRPC(client, retrier, logger), nil
}

// NewRelayClientFromRPC 使用已建立的 rpc 客户端
func NewRelayClientFromRPC(client *rpc.Client, retrier *retry.Retrier, logger *logrus.Logger) *RelayClient {
	return &RelayClient{
		client:  client,
		retrier: retrier,
		logger:  logger,
	}
}

// RelayTransaction 查询单笔交易的中继记录
func (c *RelayClient) RelayTransaction(ctx context.Context, hash string) (rec *RelayRecord, err error) {
	started := time.Now()
	defer func() { metrics.ObserveSource(sourceRelay, "eth_getTransactionByHash", err, started) }()

	err = c.retrier.Execute(ctx, "relay_getTransactionByHash", func() error {
		return c.client.CallContext(ctx, &rec, "eth_getTransactionByHash", hash)
	})
	if err != nil {
		return nil, fmt.Errorf("查询中继交易 %s 失败: %w", hash, err)
	}
	return rec, nil
}

// RelayTransactions 批量查询中继记录，单个元素失败视为中继无记录
func (c *RelayClient) RelayTransactions(ctx context.Context, hashes []string) (result map[string]*RelayRecord, err error) {
	started := time.Now()
	defer func() { metrics.ObserveSource(sourceRelay, "eth_getTransactionByHash_batch", err, started) }()

	result = make(map[string]*RelayRecord, len(hashes))
	if len(hashes) == 0 {
		return result, nil
	}

	failed := 0
	for start := 0; start < len(hashes); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(hashes) {
			end = len(hashes)
		}
		chunk := hashes[start:end]

		var (
			elems   []rpc.BatchElem
			records []*RelayRecord
		)
		err = c.retrier.Execute(ctx, "relay_getTransactionByHash_batch", func() error {
			elems = make([]rpc.BatchElem, len(chunk))
			records = make([]*RelayRecord, len(chunk))
			for i, hash := range chunk {
				elems[i] = rpc.BatchElem{
					Method: "eth_getTransactionByHash",
					Args:   []interface{}{hash},
					Result: &records[i],
				}
			}
			return c.client.BatchCallContext(ctx, elems)
		})
		if err != nil {
			return nil, fmt.Errorf("批量查询中继交易失败: %w", err)
		}

		for i, hash := range chunk {
			if elems[i].Error != nil {
				failed++
				c.logger.Debugf("中继批量查询 %s 失败: %v", hash, elems[i].Error)
				continue
			}
			if records[i] != nil {
				result[strings.ToLower(hash)] = records[i]
			}
		}
	}

	metrics.ObserveBatch(sourceRelay, len(hashes), failed)
	if failed == len(hashes) {
		return nil, fmt.Errorf("中继批量查询全部失败: %d 笔", failed)
	}
	return result, nil
}

// Close 关闭连接
func (c *RelayClient) Close() {
	c.client.Close()
}
