package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"vandaq/internal/pkg"
)

// 初始化时注册 Kafka 策略
func init() {
	Register("kafka", NewKafkaStrategy)
}

// KafkaConfig 包含 Kafka 外发特定的配置
type KafkaConfig struct {
	Brokers         []string `mapstructure:"brokers"`
	Topic           string   `mapstructure:"topic"`
	Async           bool     `mapstructure:"async"`
	WriteTimeoutSec int      `mapstructure:"writeTimeoutSec"`
	RequiredAcks    int      `mapstructure:"requiredAcks"`
}

// KafkaStrategy 把记录组作为 JSON 消息转发到 Kafka 主题
// 消息 key 为 platform:instrument，同一仪器的数据落在同一分区保序
type KafkaStrategy struct {
	writer *kafka.Writer
	cfg    KafkaConfig
	logger *zap.Logger
}

// NewKafkaStrategy 是创建 KafkaStrategy 的工厂函数
func NewKafkaStrategy(cfg pkg.SenderConfig, logger *zap.Logger) (Strategy, error) {
	var kc KafkaConfig
	if err := mapstructure.Decode(cfg.Para, &kc); err != nil {
		return nil, fmt.Errorf("解码 kafka 配置失败: %w", err)
	}
	if len(kc.Brokers) == 0 {
		return nil, fmt.Errorf("kafka 配置校验失败: brokers 不允许为空")
	}
	if kc.Topic == "" {
		return nil, fmt.Errorf("kafka 配置校验失败: topic 不允许为空")
	}
	writeTimeout := 10 * time.Second
	if kc.WriteTimeoutSec > 0 {
		writeTimeout = time.Duration(kc.WriteTimeoutSec) * time.Second
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(kc.Brokers...),
		Topic:        kc.Topic,
		Balancer:     &kafka.Hash{},
		Async:        kc.Async,
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequiredAcks(kc.RequiredAcks),
	}
	return &KafkaStrategy{writer: writer, cfg: kc, logger: logger}, nil
}

// Name 策略类型名
func (k *KafkaStrategy) Name() string { return "kafka" }

// Send 把一个记录组编码为 JSON 并写入主题
func (k *KafkaStrategy) Send(ctx context.Context, batch pkg.RecordBatch) error {
	value, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("编码 kafka 消息失败: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(batch.Platform + ":" + batch.Instrument),
		Value: value,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("写 kafka 消息失败: %w", err)
	}
	return nil
}

// Close 关闭底层 writer
func (k *KafkaStrategy) Close() error {
	return k.writer.Close()
}
