package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"txlens/internal/errors"
	"txlens/pkg/models"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// 默认 topic
const (
	TopicTransactions = "transactions"
	TopicAccounts     = "accounts"

	defaultTransactionsTopic = "txlens_transactions"
	defaultAccountsTopic     = "txlens_accounts"
)

// KafkaOutput Kafka输出器
type KafkaOutput struct {
	logger   *logrus.Logger
	topics   map[string]string // 数据类型到topic的映射
	producer sarama.SyncProducer
}

// NewKafkaOutput 创建Kafka输出器
func NewKafkaOutput(brokers []string, topics map[string]string, logger *logrus.Logger) (*KafkaOutput, error) {
	logger.Infof("初始化Kafka输出器，brokers: %v", brokers)
	logger.Infof("Kafka topics配置: %v", topics)

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Timeout = 5 * time.Second
	config.Version = sarama.V2_8_0_0

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeKafka, errors.SeverityHigh,
			errors.CodeKafkaProduce, "创建Kafka生产者失败")
	}

	logger.Info("Kafka生产者已创建")
	return NewKafkaOutputWithProducer(producer, topics, logger), nil
}

// NewKafkaOutputWithProducer 使用已有生产者创建输出器
func NewKafkaOutputWithProducer(producer sarama.SyncProducer, topics map[string]string, logger *logrus.Logger) *KafkaOutput {
	if topics == nil {
		topics = make(map[string]string)
	}
	return &KafkaOutput{
		logger:   logger,
		topics:   topics,
		producer: producer,
	}
}

func (k *KafkaOutput) topic(kind, fallback string) string {
	if topic, ok := k.topics[kind]; ok && topic != "" {
		return topic
	}
	return fallback
}

// send 发送数据到Kafka，key 决定分区，同一交易或账户的消息有序
func (k *KafkaOutput) send(topic, key string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("序列化数据失败: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(jsonData),
	}

	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeKafka, errors.SeverityHigh,
			errors.CodeKafkaProduce, "发送消息到Kafka失败").WithComponent("kafka:" + topic)
	}

	k.logger.Debugf("成功发送数据到Kafka topic '%s' (partition: %d, offset: %d, key: %s)",
		topic, partition, offset, key)
	return nil
}

// WriteTransaction 写入交易记录
func (k *KafkaOutput) WriteTransaction(record *models.TransactionRecord) error {
	if record == nil {
		return nil
	}
	return k.send(k.topic(TopicTransactions, defaultTransactionsTopic), strings.ToLower(record.Hash), record)
}

// WriteAccount 写入账户概览
func (k *KafkaOutput) WriteAccount(overview *models.AccountOverview) error {
	if overview == nil {
		return nil
	}
	return k.send(k.topic(TopicAccounts, defaultAccountsTopic), strings.ToLower(overview.Address), overview)
}

// Close 关闭Kafka连接
func (k *KafkaOutput) Close() error {
	if k.producer != nil {
		return k.producer.Close()
	}
	return nil
}
