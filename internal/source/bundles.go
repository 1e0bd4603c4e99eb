package source

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"txlens/internal/config"
	"txlens/internal/retry"

	"github.com/sirupsen/logrus"
)

const sourceBundles = "bundles"

type bundleBlocksResponse struct {
	Blocks []struct {
		BlockNumber  Quantity `json:"block_number"`
		MinerReward  Quantity `json:"miner_reward"`
		Transactions []struct {
			TransactionHash  string   `json:"transaction_hash"`
			BundleIndex      Quantity `json:"bundle_index"`
			TotalMinerReward Quantity `json:"total_miner_reward"`
		} `json:"transactions"`
	} `json:"blocks"`
}

// BundleClient MEV bundle 索引数据源（/v1/blocks）
type BundleClient struct {
	jsonClient
	baseURL string
}

// NewBundleClient 创建 bundle 数据源
func NewBundleClient(cfg *config.BundleConfig, retrier *retry.Retrier, logger *logrus.Logger) *BundleClient {
	return &BundleClient{
		jsonClient: newJSONClient(sourceBundles, cfg.Timeout, retrier, logger),
		baseURL:    strings.TrimRight(cfg.APIURL, "/"),
	}
}

// BundlesInBlock 返回区块内属于 bundle 的交易
func (c *BundleClient) BundlesInBlock(ctx context.Context, block uint64) (BundleIndex, error) {
	q := url.Values{}
	q.Set("block_number", strconv.FormatUint(block, 10))
	endpoint := fmt.Sprintf("%s/v1/blocks?%s", c.baseURL, q.Encode())

	var resp bundleBlocksResponse
	if err := c.getJSON(ctx, "blocks", endpoint, &resp); err != nil {
		return nil, fmt.Errorf("查询区块 %d 的bundle失败: %w", block, err)
	}

	index := make(BundleIndex)
	for _, b := range resp.Blocks {
		for _, tx := range b.Transactions {
			if tx.TransactionHash == "" {
				continue
			}
			bundleIdx, err := tx.BundleIndex.Uint64()
			if err != nil {
				return nil, fmt.Errorf("解析 bundle_index 失败: %w", err)
			}
			tip, err := tx.TotalMinerReward.OptionalBig()
			if err != nil {
				return nil, fmt.Errorf("解析 total_miner_reward 失败: %w", err)
			}
			index[strings.ToLower(tx.TransactionHash)] = BundleTx{
				BundleIndex: int(bundleIdx),
				MinerTip:    tip,
			}
		}
	}
	return index, nil
}
