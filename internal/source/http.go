package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"txlens/internal/metrics"
	"txlens/internal/retry"

	"github.com/sirupsen/logrus"
)

const maxErrorBody = 512

// StatusError HTTP 非 2xx 响应
type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s: %s", e.Code, e.URL, e.Body)
}

// IsRetryable 5xx 和 429 可重试
func (e *StatusError) IsRetryable() bool {
	return e.Code >= http.StatusInternalServerError || e.Code == http.StatusTooManyRequests
}

// jsonClient HTTP JSON 数据源的公共部分
type jsonClient struct {
	source  string
	client  *http.Client
	retrier *retry.Retrier
	logger  *logrus.Logger
}

func newJSONClient(source string, timeout time.Duration, retrier *retry.Retrier, logger *logrus.Logger) jsonClient {
	return jsonClient{
		source:  source,
		client:  &http.Client{Timeout: timeout},
		retrier: retrier,
		logger:  logger,
	}
}

// getJSON GET 请求并解析 JSON
func (c *jsonClient) getJSON(ctx context.Context, operation, url string, out interface{}) error {
	return c.do(ctx, operation, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}, out, nil)
}

// postJSON POST JSON 请求并解析 JSON
func (c *jsonClient) postJSON(ctx context.Context, operation, url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("序列化请求失败: %w", err)
	}
	return c.do(ctx, operation, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, out, nil)
}

// do 执行请求，check 在每次成功解析后调用，返回可重试错误时继续重试
func (c *jsonClient) do(ctx context.Context, operation string, newReq func() (*http.Request, error), out interface{}, check func() error) (err error) {
	started := time.Now()
	defer func() { metrics.ObserveSource(c.source, operation, err, started) }()

	return c.retrier.Execute(ctx, c.source+"_"+operation, func() error {
		req, err := newReq()
		if err != nil {
			return retry.NewRetryableError(err, false)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("读取响应失败: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if len(body) > maxErrorBody {
				body = body[:maxErrorBody]
			}
			return &StatusError{URL: req.URL.Redacted(), Code: resp.StatusCode, Body: string(body)}
		}

		if err := json.Unmarshal(body, out); err != nil {
			return retry.NewRetryableError(fmt.Errorf("解析响应失败: %w", err), false)
		}
		if check != nil {
			return check()
		}
		return nil
	})
}
