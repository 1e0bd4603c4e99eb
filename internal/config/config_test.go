package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := GetDefaultConfig()
	cfg.Blockchain.Nodes[0].URL = "http://localhost:8545"
	return cfg
}

func TestGetDefaultConfig(t *testing.T) {
	config := GetDefaultConfig()

	assert.NotNil(t, config.Blockchain)
	assert.NotNil(t, config.Relay)
	assert.NotNil(t, config.Bundles)
	assert.NotNil(t, config.Explorer)
	assert.NotNil(t, config.Decoder)
	assert.NotNil(t, config.Resolver)
	assert.NotNil(t, config.Classifier)
	assert.NotNil(t, config.Output)
	assert.NotNil(t, config.API)
	assert.NotNil(t, config.Progress)
	assert.NotNil(t, config.Retry)
	assert.NotNil(t, config.Logging)

	firstNode := config.Blockchain.Nodes[0]
	assert.Equal(t, "local_node", firstNode.Name)
	assert.Equal(t, "", firstNode.URL) // 默认为空，需要在YAML、环境变量或数据库中配置

	assert.Equal(t, EnrichmentIsolated, config.Resolver.EnrichmentMode)
	assert.Equal(t, 25, config.Resolver.DefaultPageSize)
	assert.Equal(t, "100", config.Classifier.StakeThreshold)
	assert.Equal(t, "json", config.Output.Format)
	assert.Equal(t, 5, config.Explorer.RateLimit)
	assert.Equal(t, 5*time.Second, config.Decoder.APITimeout)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"有效配置", func(c *Config) {}, false},
		{"节点缺少URL", func(c *Config) { c.Blockchain.Nodes[0].URL = "" }, true},
		{"节点缺少名称", func(c *Config) { c.Blockchain.Nodes[0].Name = "" }, true},
		{"无节点", func(c *Config) { c.Blockchain.Nodes = nil }, true},
		{"负优先级", func(c *Config) { c.Blockchain.Nodes[0].Priority = -1 }, true},
		{"legacy模式", func(c *Config) { c.Resolver.EnrichmentMode = EnrichmentLegacy }, false},
		{"未知模式", func(c *Config) { c.Resolver.EnrichmentMode = "strict" }, true},
		{"分页大小超限", func(c *Config) { c.Resolver.DefaultPageSize = 500 }, true},
		{"无效阈值", func(c *Config) { c.Classifier.StakeThreshold = "lots" }, true},
		{"无效排名", func(c *Config) { c.Classifier.MaxStakerRank = 0 }, true},
		{"kafka无broker", func(c *Config) {
			c.Output.Format = "kafka"
			c.Output.Kafka.Brokers = nil
		}, true},
		{"kafka输出", func(c *Config) { c.Output.Format = "kafka" }, false},
		{"未知输出", func(c *Config) { c.Output.Format = "csv" }, true},
		{"缺少中继地址", func(c *Config) { c.Relay.RPCURL = "" }, true},
		{"缺少bundle地址", func(c *Config) { c.Bundles.APIURL = "" }, true},
		{"缺少浏览器地址", func(c *Config) { c.Explorer.APIURL = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
blockchain:
  nodes:
    - name: primary
      url: http://node:8545
      type: local
      priority: 1
  timeout: 20s
resolver:
  enrichment_mode: legacy
  default_page_size: 10
classifier:
  stake_threshold: "250"
  max_staker_rank: 20
output:
  format: json
  path: out.jsonl
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	require.Len(t, cfg.Blockchain.Nodes, 1)
	assert.Equal(t, "http://node:8545", cfg.Blockchain.Nodes[0].URL)
	assert.Equal(t, 20*time.Second, cfg.Blockchain.Timeout)
	assert.Equal(t, EnrichmentLegacy, cfg.Resolver.EnrichmentMode)
	assert.Equal(t, 10, cfg.Resolver.DefaultPageSize)
	assert.Equal(t, 100, cfg.Resolver.MaxPageSize) // 未配置项保持默认
	assert.Equal(t, "250", cfg.Classifier.StakeThreshold)
	assert.Equal(t, "out.jsonl", cfg.Output.Path)
	assert.NotEmpty(t, cfg.Relay.RPCURL)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFromFile_EnvOverride(t *testing.T) {
	t.Setenv("TXLENS_EXPLORER_API_KEY", "secret")
	t.Setenv("TXLENS_RESOLVER_ENRICHMENT_MODE", "legacy")
	t.Setenv("TXLENS_NODE_URL", "http://env-node:8545")

	cfg, err := LoadConfigFromFile("")
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.Explorer.APIKey)
	assert.Equal(t, EnrichmentLegacy, cfg.Resolver.EnrichmentMode)
	require.Len(t, cfg.Blockchain.Nodes, 1)
	assert.Equal(t, "http://env-node:8545", cfg.Blockchain.Nodes[0].URL)
}

func TestLoadConfigFromFile_Missing(t *testing.T) {
	_, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	assert.NotNil(t, cfg.Blockchain)
	assert.NotNil(t, cfg.Output)
	assert.Equal(t, EnrichmentIsolated, cfg.Resolver.EnrichmentMode)
	assert.NotEmpty(t, cfg.Classifier.Colors)
}

func TestApplyEndpoints(t *testing.T) {
	logger := logrus.New()
	cfg := validConfig()

	applyEndpoints(cfg, map[string]string{
		"relay_rpc_url":       "http://relay",
		"explorer_api_key":    "k",
		"explorer_rate_limit": "2",
		"kafka_brokers":       `["a:9092","b:9092"]`,
		"unknown":             "x",
	}, logger)

	assert.Equal(t, "http://relay", cfg.Relay.RPCURL)
	assert.Equal(t, "k", cfg.Explorer.APIKey)
	assert.Equal(t, 2, cfg.Explorer.RateLimit)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Output.Kafka.Brokers)
}

func BenchmarkGetDefaultConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		GetDefaultConfig()
	}
}
