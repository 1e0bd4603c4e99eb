package config

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// DatabaseConfig 数据库配置管理器
//
// 节点和数据源地址可集中维护在 postgres 中，覆盖 YAML 中的对应项。
type DatabaseConfig struct {
	DB     *sql.DB
	logger *logrus.Logger
}

// NewDatabaseConfig 创建数据库配置管理器
func NewDatabaseConfig(dsn string, logger *logrus.Logger) (*DatabaseConfig, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	return &DatabaseConfig{
		DB:     db,
		logger: logger,
	}, nil
}

// Apply 用数据库中的配置覆盖已加载的配置
func (dc *DatabaseConfig) Apply(config *Config) error {
	nodes, err := dc.loadNodes()
	if err != nil {
		return fmt.Errorf("加载节点配置失败: %w", err)
	}
	if len(nodes) > 0 {
		config.Blockchain.Nodes = nodes
	}

	endpoints, err := dc.loadEndpoints()
	if err != nil {
		return fmt.Errorf("加载数据源配置失败: %w", err)
	}
	applyEndpoints(config, endpoints, dc.logger)

	if config.Output.Format == "kafka" {
		topics, err := dc.loadKafkaTopics()
		if err != nil {
			return fmt.Errorf("加载Kafka主题失败: %w", err)
		}
		if len(topics) > 0 {
			if config.Output.Kafka == nil {
				config.Output.Kafka = &KafkaConfig{}
			}
			config.Output.Kafka.Topics = topics
		}
	}

	return nil
}

// loadNodes 加载节点配置
func (dc *DatabaseConfig) loadNodes() ([]*NodeConfig, error) {
	query := `SELECT name, url, node_type, rate_limit, priority FROM blockchain_nodes WHERE is_active = true ORDER BY priority`
	rows, err := dc.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []*NodeConfig
	for rows.Next() {
		var node NodeConfig
		if err := rows.Scan(&node.Name, &node.URL, &node.Type, &node.RateLimit, &node.Priority); err != nil {
			return nil, err
		}
		nodes = append(nodes, &node)
	}
	return nodes, rows.Err()
}

// loadEndpoints 加载数据源地址 (config_key -> config_value)
func (dc *DatabaseConfig) loadEndpoints() (map[string]string, error) {
	query := `SELECT config_key, config_value FROM source_endpoints WHERE is_active = true`
	rows, err := dc.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	endpoints := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		endpoints[key] = value
	}
	return endpoints, rows.Err()
}

// loadKafkaTopics 加载Kafka主题配置
func (dc *DatabaseConfig) loadKafkaTopics() (map[string]string, error) {
	query := `SELECT data_type, topic_name FROM kafka_topics WHERE is_active = true`
	rows, err := dc.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	topics := make(map[string]string)
	for rows.Next() {
		var dataType, topicName string
		if err := rows.Scan(&dataType, &topicName); err != nil {
			return nil, err
		}
		topics[dataType] = topicName
	}
	return topics, rows.Err()
}

// applyEndpoints 将键值对写入对应配置项，未知键忽略
func applyEndpoints(config *Config, endpoints map[string]string, logger *logrus.Logger) {
	for key, value := range endpoints {
		switch key {
		case "relay_rpc_url":
			config.Relay.RPCURL = value
		case "relay_subgraph_url":
			config.Relay.SubgraphURL = value
		case "bundles_api_url":
			config.Bundles.APIURL = value
		case "explorer_api_url":
			config.Explorer.APIURL = value
		case "explorer_api_key":
			config.Explorer.APIKey = value
		case "explorer_rate_limit":
			if v, err := strconv.Atoi(value); err == nil {
				config.Explorer.RateLimit = v
			}
		case "kafka_brokers":
			var brokers []string
			if err := json.Unmarshal([]byte(value), &brokers); err == nil {
				if config.Output.Kafka == nil {
					config.Output.Kafka = &KafkaConfig{}
				}
				config.Output.Kafka.Brokers = brokers
			}
		case "enrichment_mode":
			config.Resolver.EnrichmentMode = value
		default:
			logger.Debugf("忽略未知的数据源配置项: %s", key)
		}
	}
}

// Close 关闭数据库连接
func (dc *DatabaseConfig) Close() error {
	if dc.DB != nil {
		return dc.DB.Close()
	}
	return nil
}
