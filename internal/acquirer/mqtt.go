package acquirer

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"vandaq/internal/pkg"
)

// 初始化时注册 MQTT 数据源
func init() {
	Register("mqtt", NewMQTTSource)
}

// MQTTConfig MQTT 数据源配置
type MQTTConfig struct {
	Broker       string `mapstructure:"broker"`
	ClientID     string `mapstructure:"client_id"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Topic        string `mapstructure:"topic"`
	CommandTopic string `mapstructure:"command_topic"`
	QOS          byte   `mapstructure:"qos"`
}

// MQTTSource 订阅仪器网关发布的行数据主题
// 每条消息按行拆开后依序交给采集循环
type MQTTSource struct {
	cfg    MQTTConfig
	logger *zap.Logger
	client mqtt.Client
	lines  chan string
}

// NewMQTTSource 是创建 MQTT 数据源的工厂函数
func NewMQTTSource(cfg *pkg.AcquirerConfig, logger *zap.Logger) (LineSource, error) {
	var mc MQTTConfig
	if err := mapstructure.Decode(cfg.Source.Para, &mc); err != nil {
		return nil, fmt.Errorf("解码 MQTT 数据源配置失败: %w", err)
	}
	if mc.Broker == "" || mc.Topic == "" {
		return nil, fmt.Errorf("MQTT 数据源配置校验失败: broker 与 topic 不允许为空")
	}
	if mc.ClientID == "" {
		mc.ClientID = "vandaq-" + cfg.Platform + "-" + cfg.Instrument
	}
	return &MQTTSource{cfg: mc, logger: logger, lines: make(chan string, 256)}, nil
}

// Connect 连接 broker 并订阅数据主题
func (m *MQTTSource) Connect(_ context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(m.cfg.Broker).
		SetClientID(m.cfg.ClientID).
		SetUsername(m.cfg.Username).
		SetPassword(m.cfg.Password).
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return fmt.Errorf("连接 MQTT broker 失败 %s: %w", m.cfg.Broker, token.Error())
	}
	token := client.Subscribe(m.cfg.Topic, m.cfg.QOS, func(_ mqtt.Client, msg mqtt.Message) {
		for _, line := range strings.Split(strings.TrimSpace(string(msg.Payload())), "\n") {
			select {
			case m.lines <- strings.TrimRight(line, "\r"):
			default:
				m.logger.Warn("MQTT 行缓冲已满，丢弃", zap.String("topic", msg.Topic()))
			}
		}
	})
	if token.WaitTimeout(10*time.Second) && token.Error() != nil {
		client.Disconnect(0)
		return fmt.Errorf("订阅主题 %s 失败: %w", m.cfg.Topic, token.Error())
	}
	m.client = client
	m.logger.Info("MQTT 订阅建立", zap.String("broker", m.cfg.Broker), zap.String("topic", m.cfg.Topic))
	return nil
}

// ReadLine 取出下一行，阻塞直到有数据或 ctx 取消
func (m *MQTTSource) ReadLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line := <-m.lines:
		return line, nil
	}
}

// WriteLine 把命令发布到命令主题，未配置命令主题时为空操作
func (m *MQTTSource) WriteLine(_ context.Context, line string) error {
	if m.cfg.CommandTopic == "" {
		m.logger.Warn("未配置 command_topic，命令丢弃", zap.String("command", line))
		return nil
	}
	if m.client == nil {
		return fmt.Errorf("MQTT 连接未建立")
	}
	token := m.client.Publish(m.cfg.CommandTopic, m.cfg.QOS, false, line)
	if token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return fmt.Errorf("发布命令失败: %w", token.Error())
	}
	return nil
}

// Close 断开 broker 连接
func (m *MQTTSource) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
		m.client = nil
	}
	return nil
}
