package source

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"txlens/internal/config"
	"txlens/internal/retry"

	"github.com/sirupsen/logrus"
)

const (
	sourceSubgraph = "subgraph"

	subgraphPageSize = 1000
)

const relayBlocksQuery = `query relayBlocks($blocks: [BigInt!]!, $first: Int!) {
  blocks(where: { number_in: $blocks, fromActiveProducer: true }, first: $first) {
    number
  }
}`

const stakerQuery = `query staker($id: ID!, $block: Block_height) {
  staker(id: $id, block: $block) {
    staked
    rank
  }
}`

const slotsQuery = `query slots($block: Block_height) {
  slots(block: $block) {
    id
    delegate
  }
}`

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse[T any] struct {
	Data   *T             `json:"data"`
	Errors []graphQLError `json:"errors"`
}

func (r *graphQLResponse[T]) err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Message
	}
	return retry.NewRetryableError(fmt.Errorf("subgraph 错误: %s", strings.Join(msgs, "; ")), false)
}

// SubgraphClient 中继子图：区块成员关系、质押登记和 slot 委托
type SubgraphClient struct {
	jsonClient
	url string
}

// NewSubgraphClient 创建子图数据源
func NewSubgraphClient(cfg *config.RelayConfig, retrier *retry.Retrier, logger *logrus.Logger) *SubgraphClient {
	return &SubgraphClient{
		jsonClient: newJSONClient(sourceSubgraph, cfg.Timeout, retrier, logger),
		url:        cfg.SubgraphURL,
	}
}

func query[T any](ctx context.Context, c *SubgraphClient, operation, q string, vars map[string]interface{}) (*T, error) {
	var resp graphQLResponse[T]
	if err := c.postJSON(ctx, operation, c.url, graphQLRequest{Query: q, Variables: vars}, &resp); err != nil {
		return nil, err
	}
	if err := resp.err(); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("subgraph 响应缺少 data")
	}
	return resp.Data, nil
}

func blockArg(block *uint64) interface{} {
	if block == nil {
		return nil
	}
	return map[string]uint64{"number": *block}
}

// RelayBlocks 返回给定区块中由中继出块者生产的区块集合
func (c *SubgraphClient) RelayBlocks(ctx context.Context, blocks []uint64) (map[uint64]bool, error) {
	result := make(map[uint64]bool, len(blocks))
	if len(blocks) == 0 {
		return result, nil
	}

	for start := 0; start < len(blocks); start += subgraphPageSize {
		end := start + subgraphPageSize
		if end > len(blocks) {
			end = len(blocks)
		}
		chunk := blocks[start:end]

		numbers := make([]string, len(chunk))
		for i, b := range chunk {
			numbers[i] = strconv.FormatUint(b, 10)
		}

		data, err := query[struct {
			Blocks []struct {
				Number Quantity `json:"number"`
			} `json:"blocks"`
		}](ctx, c, "relay_blocks", relayBlocksQuery, map[string]interface{}{
			"blocks": numbers,
			"first":  len(chunk),
		})
		if err != nil {
			return nil, fmt.Errorf("查询中继区块失败: %w", err)
		}

		for _, b := range data.Blocks {
			n, err := b.Number.Uint64()
			if err != nil {
				c.logger.Debugf("忽略无效的区块号 %q: %v", b.Number, err)
				continue
			}
			result[n] = true
		}
	}
	return result, nil
}

// Stake 查询质押量和排名，地址未质押时返回零值
func (c *SubgraphClient) Stake(ctx context.Context, address string, block *uint64) (*StakeInfo, error) {
	data, err := query[struct {
		Staker *struct {
			Staked Quantity `json:"staked"`
			Rank   Quantity `json:"rank"`
		} `json:"staker"`
	}](ctx, c, "stake", stakerQuery, map[string]interface{}{
		"id":    strings.ToLower(address),
		"block": blockArg(block),
	})
	if err != nil {
		return nil, fmt.Errorf("查询质押失败: %w", err)
	}

	info := &StakeInfo{}
	if data.Staker == nil {
		return info, nil
	}

	staked, err := data.Staker.Staked.OptionalBig()
	if err != nil {
		return nil, fmt.Errorf("解析质押量失败: %w", err)
	}
	info.Staked = staked

	if !data.Staker.Rank.IsEmpty() {
		rank, err := data.Staker.Rank.Uint64()
		if err != nil {
			return nil, fmt.Errorf("解析质押排名失败: %w", err)
		}
		r := int(rank)
		info.Rank = &r
	}
	return info, nil
}

// SlotDelegates 查询 slot 委托关系
func (c *SubgraphClient) SlotDelegates(ctx context.Context, block *uint64) (map[string]int, error) {
	data, err := query[struct {
		Slots []struct {
			ID       Quantity `json:"id"`
			Delegate string   `json:"delegate"`
		} `json:"slots"`
	}](ctx, c, "slot_delegates", slotsQuery, map[string]interface{}{
		"block": blockArg(block),
	})
	if err != nil {
		return nil, fmt.Errorf("查询slot委托失败: %w", err)
	}

	delegates := make(map[string]int, len(data.Slots))
	for _, slot := range data.Slots {
		if slot.Delegate == "" {
			continue
		}
		id, err := slot.ID.Uint64()
		if err != nil {
			c.logger.Debugf("忽略无效的slot编号 %q: %v", slot.ID, err)
			continue
		}
		delegates[strings.ToLower(slot.Delegate)] = int(id)
	}
	return delegates, nil
}
