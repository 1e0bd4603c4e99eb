package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"txlens/internal/config"
	"txlens/internal/retry"

	"github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
)

const sourceExplorer = "explorer"

// etherscanResponse etherscan 风格响应，result 可能是数组或错误字符串
type etherscanResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func (r *etherscanResponse) IsOK() bool {
	return r.Status == "1"
}

// resultString result 为字符串时返回其内容
func (r *etherscanResponse) resultString() string {
	var s string
	if err := json.Unmarshal(r.Result, &s); err == nil {
		return s
	}
	return string(r.Result)
}

// ContractInfo 合约源码信息
type ContractInfo struct {
	Name string
	ABI  string // 未验证合约为空
}

// ExplorerClient etherscan 风格区块浏览器，按配置限速
type ExplorerClient struct {
	jsonClient
	apiURL  string
	apiKey  string
	chainID int64
	limiter ratelimit.Limiter
}

// NewExplorerClient 创建区块浏览器数据源
func NewExplorerClient(cfg *config.ExplorerConfig, retrier *retry.Retrier, logger *logrus.Logger) *ExplorerClient {
	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 5
	}
	return &ExplorerClient{
		jsonClient: newJSONClient(sourceExplorer, cfg.Timeout, retrier, logger),
		apiURL:     cfg.APIURL,
		apiKey:     cfg.APIKey,
		chainID:    cfg.ChainID,
		limiter:    ratelimit.New(rps),
	}
}

func (c *ExplorerClient) endpoint(params url.Values) string {
	if c.chainID > 0 {
		params.Set("chainid", strconv.FormatInt(c.chainID, 10))
	}
	if c.apiKey != "" {
		params.Set("apikey", c.apiKey)
	}
	return c.apiURL + "?" + params.Encode()
}

func (c *ExplorerClient) get(ctx context.Context, operation string, params url.Values) (*etherscanResponse, error) {
	var resp etherscanResponse
	endpoint := c.endpoint(params)
	err := c.do(ctx, operation, func() (*http.Request, error) {
		c.limiter.Take()
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	}, &resp, func() error {
		if !resp.IsOK() && strings.Contains(strings.ToLower(resp.resultString()), "rate limit") {
			return retry.NewRetryableError(fmt.Errorf("区块浏览器限流: %s", resp.resultString()), true)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// AccountTransactions 查询账户交易列表（按区块倒序）
func (c *ExplorerClient) AccountTransactions(ctx context.Context, address string, pageSize, page int) ([]ExplorerTx, error) {
	params := url.Values{}
	params.Set("module", "account")
	params.Set("action", "txlist")
	params.Set("address", strings.ToLower(address))
	params.Set("page", strconv.Itoa(page))
	params.Set("offset", strconv.Itoa(pageSize))
	params.Set("sort", "desc")

	resp, err := c.get(ctx, "txlist", params)
	if err != nil {
		return nil, fmt.Errorf("查询账户 %s 交易列表失败: %w", address, err)
	}

	if !resp.IsOK() {
		// 无交易时 status 为 0
		if strings.HasPrefix(strings.ToLower(resp.Message), "no transactions found") {
			return []ExplorerTx{}, nil
		}
		return nil, fmt.Errorf("区块浏览器返回错误: %s: %s", resp.Message, resp.resultString())
	}

	var txs []ExplorerTx
	if err := json.Unmarshal(resp.Result, &txs); err != nil {
		return nil, fmt.Errorf("解析交易列表失败: %w", err)
	}
	return txs, nil
}

// ContractSource 查询合约名称和ABI
func (c *ExplorerClient) ContractSource(ctx context.Context, address string) (*ContractInfo, error) {
	params := url.Values{}
	params.Set("module", "contract")
	params.Set("action", "getsourcecode")
	params.Set("address", address)

	resp, err := c.get(ctx, "getsourcecode", params)
	if err != nil {
		return nil, fmt.Errorf("查询合约 %s 源码失败: %w", address, err)
	}
	if !resp.IsOK() {
		return nil, fmt.Errorf("区块浏览器返回错误: %s: %s", resp.Message, resp.resultString())
	}

	var results []struct {
		ContractName string `json:"ContractName"`
		ABI          string `json:"ABI"`
	}
	if err := json.Unmarshal(resp.Result, &results); err != nil {
		return nil, fmt.Errorf("解析合约源码失败: %w", err)
	}
	if len(results) == 0 {
		return &ContractInfo{}, nil
	}

	info := &ContractInfo{Name: results[0].ContractName}
	if strings.HasPrefix(strings.TrimSpace(results[0].ABI), "[") {
		info.ABI = results[0].ABI
	}
	return info, nil
}
