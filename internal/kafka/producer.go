package kafka

import (
	"fmt"

	"github.com/IBM/sarama"
	"github.com/aihub/media-engine/internal/logger"
	"go.uber.org/zap"
)

// Producer Kafka生产者
type Producer struct {
	producer sarama.SyncProducer
}

var globalProducer *Producer

// InitProducer 初始化Kafka生产者
func InitProducer(brokers []string) error {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true
	config.Version = sarama.V2_6_0_0

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return fmt.Errorf("failed to create kafka producer: %w", err)
	}

	globalProducer = &Producer{producer: producer}

	logger.Info("Kafka生产者初始化成功", zap.Strings("brokers", brokers))
	return nil
}

// GetProducer 获取全局生产者实例
func GetProducer() *Producer {
	return globalProducer
}

// GetProducerInstance 获取底层sarama producer实例
func (p *Producer) GetProducerInstance() sarama.SyncProducer {
	if p == nil {
		return nil
	}
	return p.producer
}

// Send 发送消息
func (p *Producer) Send(topic, key string, value []byte) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("producer not initialized")
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(value),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("发送消息失败: %w", err)
	}

	logger.Debug("Kafka消息发送成功",
		zap.String("topic", topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))

	return nil
}

// Close 关闭生产者
func (p *Producer) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

// CloseProducer 关闭全局生产者
func CloseProducer() error {
	if globalProducer == nil {
		return nil
	}
	return globalProducer.Close()
}
