package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"txlens/internal/logging"
	"txlens/internal/retry"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix 环境变量前缀
	EnvPrefix = "TXLENS"
	// EnvDatabaseDSN 数据库配置源
	EnvDatabaseDSN = "TXLENS_DB_DSN"

	EnrichmentIsolated = "isolated"
	EnrichmentLegacy   = "legacy"
)

// Config 主配置
type Config struct {
	Blockchain *BlockchainConfig  `mapstructure:"blockchain"`
	Relay      *RelayConfig       `mapstructure:"relay"`
	Bundles    *BundleConfig      `mapstructure:"bundles"`
	Explorer   *ExplorerConfig    `mapstructure:"explorer"`
	Decoder    *DecoderConfig     `mapstructure:"decoder"`
	Resolver   *ResolverConfig    `mapstructure:"resolver"`
	Classifier *ClassifierConfig  `mapstructure:"classifier"`
	Output     *OutputConfig      `mapstructure:"output"`
	API        *APIConfig         `mapstructure:"api"`
	Progress   *ProgressConfig    `mapstructure:"progress"`
	Retry      *retry.RetryConfig `mapstructure:"retry"`
	Logging    *logging.LogConfig `mapstructure:"logging"`
}

// BlockchainConfig 区块链节点配置
type BlockchainConfig struct {
	Nodes   []*NodeConfig `mapstructure:"nodes"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// NodeConfig 节点配置
type NodeConfig struct {
	Name      string `mapstructure:"name"`
	URL       string `mapstructure:"url"`
	Type      string `mapstructure:"type"`
	RateLimit int    `mapstructure:"rate_limit"`
	Priority  int    `mapstructure:"priority"`
}

// RelayConfig 私有中继配置
type RelayConfig struct {
	RPCURL      string        `mapstructure:"rpc_url"`      // 中继 JSON-RPC
	SubgraphURL string        `mapstructure:"subgraph_url"` // 区块成员/质押/slot委托
	Timeout     time.Duration `mapstructure:"timeout"`
}

// BundleConfig MEV bundle 索引配置
type BundleConfig struct {
	APIURL  string        `mapstructure:"api_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ExplorerConfig 区块浏览器配置
type ExplorerConfig struct {
	APIURL    string        `mapstructure:"api_url"`
	APIKey    string        `mapstructure:"api_key"`
	ChainID   int64         `mapstructure:"chain_id"`
	RateLimit int           `mapstructure:"rate_limit"` // 每秒请求数
	Timeout   time.Duration `mapstructure:"timeout"`
}

// DecoderConfig 解码器配置
type DecoderConfig struct {
	FourByteAPIURL string        `mapstructure:"fourbyte_api_url"`
	APITimeout     time.Duration `mapstructure:"api_timeout"`
	EnableCache    bool          `mapstructure:"enable_cache"`
	CacheSize      int           `mapstructure:"cache_size"`
	EnableAPI      bool          `mapstructure:"enable_api"`
	EnableABI      bool          `mapstructure:"enable_abi"` // 通过区块浏览器获取合约ABI
}

// ResolverConfig 解析器配置
type ResolverConfig struct {
	EnrichmentMode  string `mapstructure:"enrichment_mode"` // isolated | legacy
	DefaultPageSize int    `mapstructure:"default_page_size"`
	MaxPageSize     int    `mapstructure:"max_page_size"`
}

// ClassifierConfig 分类配置
type ClassifierConfig struct {
	StakeThreshold string            `mapstructure:"stake_threshold"` // ETH
	MaxStakerRank  int               `mapstructure:"max_staker_rank"`
	Colors         map[string]string `mapstructure:"colors"`
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Brokers []string          `mapstructure:"brokers"`
	Topics  map[string]string `mapstructure:"topics"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	Format string       `mapstructure:"format"` // json | kafka
	Path   string       `mapstructure:"path"`   // 空或 "-" 表示标准输出
	Pretty bool         `mapstructure:"pretty"`
	Kafka  *KafkaConfig `mapstructure:"kafka"`
}

// APIConfig HTTP API 配置
type APIConfig struct {
	Port          int  `mapstructure:"port"`
	MaxLogs       int  `mapstructure:"max_logs"`
	EnableMetrics bool `mapstructure:"enable_metrics"`
}

// ProgressConfig 导出进度配置
type ProgressConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// LoadConfig 加载配置（YAML + 环境变量，可选数据库覆盖）
func LoadConfig(configPath string, logger *logrus.Logger) (*Config, error) {
	config, err := LoadConfigFromFile(configPath)
	if err != nil {
		return nil, err
	}

	if dsn := os.Getenv(EnvDatabaseDSN); dsn != "" {
		dbConfig, err := NewDatabaseConfig(dsn, logger)
		if err != nil {
			return nil, fmt.Errorf("连接数据库失败: %w", err)
		}
		defer dbConfig.Close()

		if err := dbConfig.Apply(config); err != nil {
			return nil, fmt.Errorf("从数据库加载配置失败: %w", err)
		}
		logger.Info("已从数据库加载节点和数据源配置")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadConfigFromFile 从文件加载配置，文件路径为空时只使用默认值和环境变量
func LoadConfigFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 敏感字段允许只通过环境变量提供
	for _, key := range []string{
		"relay.rpc_url",
		"relay.subgraph_url",
		"bundles.api_url",
		"explorer.api_url",
		"explorer.api_key",
		"resolver.enrichment_mode",
		"logging.level",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("绑定环境变量失败: %w", err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	config := GetDefaultConfig()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if url := os.Getenv("TXLENS_NODE_URL"); url != "" {
		config.Blockchain.Nodes = []*NodeConfig{{Name: "env_node", URL: url, Type: "env", Priority: 0}}
	}

	config.applyDefaults()
	return config, nil
}

// GetDefaultConfig 获取默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Blockchain: &BlockchainConfig{
			Nodes: []*NodeConfig{
				{
					Name:      "local_node",
					URL:       "", // 需要在YAML配置、环境变量或数据库中指定
					Type:      "local",
					RateLimit: 1000,
					Priority:  1,
				},
			},
			Timeout: 15 * time.Second,
		},
		Relay: &RelayConfig{
			RPCURL:      "https://api.edennetwork.io/v1/rpc",
			SubgraphURL: "https://api.thegraph.com/subgraphs/name/eden-network/network",
			Timeout:     10 * time.Second,
		},
		Bundles: &BundleConfig{
			APIURL:  "https://blocks.flashbots.net",
			Timeout: 10 * time.Second,
		},
		Explorer: &ExplorerConfig{
			APIURL:    "https://api.etherscan.io/api",
			ChainID:   1,
			RateLimit: 5,
			Timeout:   10 * time.Second,
		},
		Decoder: &DecoderConfig{
			FourByteAPIURL: "https://www.4byte.directory/api/v1/signatures/",
			APITimeout:     5 * time.Second,
			EnableCache:    true,
			CacheSize:      10000,
			EnableAPI:      true,
			EnableABI:      true,
		},
		Resolver: &ResolverConfig{
			EnrichmentMode:  EnrichmentIsolated,
			DefaultPageSize: 25,
			MaxPageSize:     100,
		},
		Classifier: &ClassifierConfig{
			StakeThreshold: "100",
			MaxStakerRank:  50,
			Colors: map[string]string{
				"slot":         "purple",
				"stake":        "green",
				"bundle-0":     "blue",
				"bundle-1":     "teal",
				"priority-fee": "gray",
			},
		},
		Output: &OutputConfig{
			Format: "json",
			Path:   "-",
			Kafka: &KafkaConfig{
				Brokers: []string{"localhost:9092"},
				Topics: map[string]string{
					"transactions": "txlens_transactions",
					"accounts":     "txlens_accounts",
				},
			},
		},
		API: &APIConfig{
			Port:          8080,
			MaxLogs:       1000,
			EnableMetrics: true,
		},
		Progress: &ProgressConfig{
			DBPath: "./data/progress.db",
		},
		Retry:   retry.DefaultRetryConfig(),
		Logging: logging.DefaultLogConfig(),
	}
}

// applyDefaults 为缺失的配置段填充默认值
func (c *Config) applyDefaults() {
	def := GetDefaultConfig()
	if c.Blockchain == nil {
		c.Blockchain = def.Blockchain
	}
	if c.Blockchain.Timeout <= 0 {
		c.Blockchain.Timeout = def.Blockchain.Timeout
	}
	if c.Relay == nil {
		c.Relay = def.Relay
	}
	if c.Relay.Timeout <= 0 {
		c.Relay.Timeout = def.Relay.Timeout
	}
	if c.Bundles == nil {
		c.Bundles = def.Bundles
	}
	if c.Bundles.Timeout <= 0 {
		c.Bundles.Timeout = def.Bundles.Timeout
	}
	if c.Explorer == nil {
		c.Explorer = def.Explorer
	}
	if c.Explorer.RateLimit <= 0 {
		c.Explorer.RateLimit = def.Explorer.RateLimit
	}
	if c.Explorer.Timeout <= 0 {
		c.Explorer.Timeout = def.Explorer.Timeout
	}
	if c.Decoder == nil {
		c.Decoder = def.Decoder
	}
	if c.Decoder.APITimeout <= 0 {
		c.Decoder.APITimeout = def.Decoder.APITimeout
	}
	if c.Resolver == nil {
		c.Resolver = def.Resolver
	}
	if c.Resolver.EnrichmentMode == "" {
		c.Resolver.EnrichmentMode = EnrichmentIsolated
	}
	if c.Resolver.DefaultPageSize <= 0 {
		c.Resolver.DefaultPageSize = def.Resolver.DefaultPageSize
	}
	if c.Resolver.MaxPageSize <= 0 {
		c.Resolver.MaxPageSize = def.Resolver.MaxPageSize
	}
	if c.Classifier == nil {
		c.Classifier = def.Classifier
	}
	if c.Classifier.Colors == nil {
		c.Classifier.Colors = def.Classifier.Colors
	}
	if c.Output == nil {
		c.Output = def.Output
	}
	if c.API == nil {
		c.API = def.API
	}
	if c.Progress == nil {
		c.Progress = def.Progress
	}
	if c.Retry == nil {
		c.Retry = def.Retry
	}
	if c.Logging == nil {
		c.Logging = def.Logging
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if err := validateBlockchain(c.Blockchain); err != nil {
		return err
	}
	if err := validateResolver(c.Resolver); err != nil {
		return err
	}
	if err := validateClassifier(c.Classifier); err != nil {
		return err
	}
	if err := validateOutput(c.Output); err != nil {
		return err
	}
	if c.Relay == nil || c.Relay.RPCURL == "" || c.Relay.SubgraphURL == "" {
		return fmt.Errorf("中继配置缺少 rpc_url 或 subgraph_url")
	}
	if c.Bundles == nil || c.Bundles.APIURL == "" {
		return fmt.Errorf("bundle 配置缺少 api_url")
	}
	if c.Explorer == nil || c.Explorer.APIURL == "" {
		return fmt.Errorf("区块浏览器配置缺少 api_url")
	}
	return nil
}

func validateBlockchain(bc *BlockchainConfig) error {
	if bc == nil || len(bc.Nodes) == 0 {
		return fmt.Errorf("至少需要配置一个节点")
	}
	for i, node := range bc.Nodes {
		if node.Name == "" {
			return fmt.Errorf("节点 %d 缺少名称", i)
		}
		if node.URL == "" {
			return fmt.Errorf("节点 %s 缺少URL", node.Name)
		}
		if node.Priority < 0 {
			return fmt.Errorf("节点 %s 优先级不能为负数", node.Name)
		}
	}
	return nil
}

func validateResolver(rc *ResolverConfig) error {
	if rc == nil {
		return fmt.Errorf("缺少解析器配置")
	}
	switch rc.EnrichmentMode {
	case EnrichmentIsolated, EnrichmentLegacy:
	default:
		return fmt.Errorf("不支持的补充数据模式: %s", rc.EnrichmentMode)
	}
	if rc.DefaultPageSize > rc.MaxPageSize {
		return fmt.Errorf("默认分页大小 %d 超过最大值 %d", rc.DefaultPageSize, rc.MaxPageSize)
	}
	return nil
}

func validateClassifier(cc *ClassifierConfig) error {
	if cc == nil {
		return fmt.Errorf("缺少分类配置")
	}
	if _, err := decimal.NewFromString(cc.StakeThreshold); err != nil {
		return fmt.Errorf("无效的质押阈值 '%s': %w", cc.StakeThreshold, err)
	}
	if cc.MaxStakerRank <= 0 {
		return fmt.Errorf("max_staker_rank 必须大于0")
	}
	return nil
}

func validateOutput(oc *OutputConfig) error {
	if oc == nil {
		return fmt.Errorf("缺少输出配置")
	}
	switch oc.Format {
	case "json":
	case "kafka":
		if oc.Kafka == nil || len(oc.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka 输出需要配置 brokers")
		}
	default:
		return fmt.Errorf("不支持的输出格式: %s", oc.Format)
	}
	return nil
}
